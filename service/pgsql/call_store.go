package pgsql

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"PPSignal/tools/errs"

	"github.com/google/uuid"
)

const (
	CallAudio   = "audio"
	CallCalling = "calling"
	CallEnded   = "ended"
)

// Call is one call-history row.
type Call struct {
	ID         string     `db:"id" json:"id"`
	CallerID   string     `db:"caller_id" json:"caller_id"`
	ReceiverID string     `db:"receiver_id" json:"receiver_id"`
	CallType   string     `db:"call_type" json:"call_type"`
	Status     string     `db:"status" json:"status"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
	EndedAt    *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// CallStore records call setup attempts and their outcome.
type CallStore interface {
	Create(ctx context.Context, callerID, receiverID, callType string) (Call, error)
	// Update sets status; endedAt is stored only for "ended", defaulting
	// to now. Unknown ids give errs.ErrRecordNotFound.
	Update(ctx context.Context, id, status string, endedAt *time.Time) (Call, error)
	// History returns calls where userID is caller or receiver, newest first.
	History(ctx context.Context, userID string, limit int) ([]Call, error)
}

func newCall(callerID, receiverID, callType string, now time.Time) (Call, error) {
	callerID, receiverID = strings.TrimSpace(callerID), strings.TrimSpace(receiverID)
	if callerID == "" || receiverID == "" {
		return Call{}, errs.ErrArgs.WrapMsg("caller_id and receiver_id required")
	}
	if callType == "" {
		callType = CallAudio
	}
	return Call{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: receiverID,
		CallType:   callType,
		Status:     CallCalling,
		StartedAt:  now,
	}, nil
}

func endTime(status string, endedAt *time.Time, now time.Time) *time.Time {
	if status != CallEnded {
		return nil
	}
	if endedAt != nil {
		return endedAt
	}
	return &now
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

// MemoryCallStore is the demo-mode call store.
type MemoryCallStore struct {
	mu    sync.Mutex
	calls map[string]Call
	now   func() time.Time
}

func NewMemoryCallStore() *MemoryCallStore {
	return &MemoryCallStore{calls: make(map[string]Call), now: time.Now}
}

func (s *MemoryCallStore) Create(_ context.Context, callerID, receiverID, callType string) (Call, error) {
	c, err := newCall(callerID, receiverID, callType, s.now().UTC())
	if err != nil {
		return Call{}, err
	}
	s.mu.Lock()
	s.calls[c.ID] = c
	s.mu.Unlock()
	return c, nil
}

func (s *MemoryCallStore) Update(_ context.Context, id, status string, endedAt *time.Time) (Call, error) {
	if status == "" {
		return Call{}, errs.ErrArgs.WrapMsg("status required")
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, errs.ErrRecordNotFound.WrapMsg("call not found", "id", id)
	}
	c.Status = status
	c.UpdatedAt = &now
	if e := endTime(status, endedAt, now); e != nil {
		c.EndedAt = e
	}
	s.calls[id] = c
	return c, nil
}

func (s *MemoryCallStore) History(_ context.Context, userID string, limit int) ([]Call, error) {
	s.mu.Lock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if c.CallerID == userID || c.ReceiverID == userID {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if l := clampLimit(limit); len(out) > l {
		out = out[:l]
	}
	return out, nil
}
