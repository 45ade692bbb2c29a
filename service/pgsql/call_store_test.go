package pgsql

import (
	"context"
	"testing"
	"time"

	"PPSignal/tools/errs"

	"github.com/google/uuid"
)

func TestMemoryCallLifecycle(t *testing.T) {
	s := NewMemoryCallStore()
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	c, err := s.Create(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(c.ID); err != nil {
		t.Errorf("id %q is not a uuid", c.ID)
	}
	if c.CallType != CallAudio || c.Status != CallCalling {
		t.Errorf("call = %+v", c)
	}

	clock = clock.Add(time.Minute)
	u, err := s.Update(ctx, c.ID, "accepted", nil)
	if err != nil || u.Status != "accepted" || u.EndedAt != nil || u.UpdatedAt == nil {
		t.Fatalf("update = %+v %v", u, err)
	}

	clock = clock.Add(time.Minute)
	u, _ = s.Update(ctx, c.ID, CallEnded, nil)
	if u.EndedAt == nil || !u.EndedAt.Equal(clock.UTC()) {
		t.Errorf("ended_at = %v", u.EndedAt)
	}

	if _, err := s.Update(ctx, "missing", CallEnded, nil); !errs.ErrRecordNotFound.Is(err) {
		t.Errorf("missing call err = %v", err)
	}
	if _, err := s.Create(ctx, "", "bob", "video"); !errs.ErrArgs.Is(err) {
		t.Errorf("empty caller err = %v", err)
	}
}

func TestMemoryHistory(t *testing.T) {
	s := NewMemoryCallStore()
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }
	ctx := context.Background()

	s.Create(ctx, "alice", "bob", "video")
	s.Create(ctx, "carol", "alice", "audio")
	s.Create(ctx, "bob", "carol", "audio")

	h, _ := s.History(ctx, "alice", 10)
	if len(h) != 2 || h[0].CallerID != "carol" || h[1].CallerID != "alice" {
		t.Errorf("history = %+v", h)
	}
	if h, _ := s.History(ctx, "alice", 1); len(h) != 1 {
		t.Errorf("limit ignored: %d", len(h))
	}
}

func TestOpenWithoutDSN(t *testing.T) {
	s, closeFn, err := Open(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := s.(*MemoryCallStore); !ok {
		t.Errorf("store = %T", s)
	}
}
