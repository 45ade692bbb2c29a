package upload

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"PPSignal/service/mgo"
	"PPSignal/tools/errs"
)

func split(s string, n int) []string {
	var out []string
	size := (len(s) + n - 1) / n
	for i := 0; i < len(s); i += size {
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out
}

func TestAssembleOutOfOrder(t *testing.T) {
	store := mgo.NewMemoryFileStore()
	a := NewAssembler(store)
	ctx := context.Background()

	payload := []byte("a picture worth a thousand words, more or less")
	// 10 chars per slice, not a multiple of the base64 quantum
	parts := split(base64.StdEncoding.EncodeToString(payload), 7)
	total := len(parts)

	for i := total - 1; i > 0; i-- {
		p, err := a.Add(ctx, Chunk{UploadID: "u1", ChunkIndex: i, TotalChunks: total, Data: parts[i], FileName: "pic.png", UserID: "alice"})
		if err != nil {
			t.Fatal(err)
		}
		if p.Complete {
			t.Fatalf("complete after %d chunks", total-i)
		}
	}
	if a.Pending() != 1 {
		t.Errorf("pending = %d", a.Pending())
	}

	p, err := a.Add(ctx, Chunk{UploadID: "u1", ChunkIndex: 0, TotalChunks: total, Data: parts[0], FileName: "pic.png", UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Complete || p.File == nil || p.Percent != 100 {
		t.Fatalf("progress = %+v", p)
	}
	if a.Pending() != 0 {
		t.Errorf("pending = %d after completion", a.Pending())
	}

	info, data, err := store.Get(ctx, p.File.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) || info.Name != "pic.png" || info.UploadedBy != "alice" {
		t.Errorf("stored %+v %q", info, data)
	}
}

func TestDuplicateIndexDoesNotComplete(t *testing.T) {
	a := NewAssembler(mgo.NewMemoryFileStore())
	ctx := context.Background()
	c := Chunk{UploadID: "u2", ChunkIndex: 0, TotalChunks: 2, Data: "aGVs", FileName: "f"}
	a.Add(ctx, c)
	p, err := a.Add(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if p.Complete || p.Received != 1 || p.Percent != 50 {
		t.Errorf("progress = %+v", p)
	}
}

func TestAddValidation(t *testing.T) {
	a := NewAssembler(mgo.NewMemoryFileStore())
	ctx := context.Background()
	bad := []Chunk{
		{UploadID: "x", ChunkIndex: 0, TotalChunks: 0, FileName: "f"},
		{UploadID: "x", ChunkIndex: 2, TotalChunks: 2, FileName: "f"},
		{UploadID: "x", ChunkIndex: -1, TotalChunks: 2, FileName: "f"},
		{UploadID: "", ChunkIndex: 0, TotalChunks: 2, FileName: "f"},
		{UploadID: "x", ChunkIndex: 0, TotalChunks: 2, FileName: " "},
	}
	for _, c := range bad {
		if _, err := a.Add(ctx, c); !errs.ErrArgs.Is(err) {
			t.Errorf("Add(%+v) err = %v", c, err)
		}
	}

	a.Add(ctx, Chunk{UploadID: "y", ChunkIndex: 0, TotalChunks: 3, Data: "aGVs", FileName: "f"})
	if _, err := a.Add(ctx, Chunk{UploadID: "y", ChunkIndex: 1, TotalChunks: 4, Data: "bG8=", FileName: "f"}); !errs.ErrArgs.Is(err) {
		t.Errorf("changed total err = %v", err)
	}
}

func TestSingleChunkWithoutID(t *testing.T) {
	a := NewAssembler(mgo.NewMemoryFileStore())
	p, err := a.Add(context.Background(), Chunk{TotalChunks: 1, Data: "aGVsbG8=", FileName: "hello.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if !p.Complete || p.UploadID == "" || p.File.Size != 5 {
		t.Errorf("progress = %+v", p)
	}
}

func TestInvalidBase64DropsUpload(t *testing.T) {
	a := NewAssembler(mgo.NewMemoryFileStore())
	_, err := a.Add(context.Background(), Chunk{UploadID: "z", TotalChunks: 1, Data: "!!!", FileName: "f"})
	if !errs.ErrArgs.Is(err) {
		t.Errorf("err = %v", err)
	}
	if a.Pending() != 0 {
		t.Errorf("pending = %d", a.Pending())
	}
}

func TestExpire(t *testing.T) {
	now := time.Unix(1700000000, 0)
	a := NewAssembler(mgo.NewMemoryFileStore(), WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	a.Add(ctx, Chunk{UploadID: "old", TotalChunks: 2, Data: "aGVs", FileName: "f"})

	if ids := a.Expire(now.Add(30 * time.Second)); len(ids) != 0 {
		t.Errorf("expired early: %v", ids)
	}
	ids := a.Expire(now.Add(2 * time.Minute))
	if len(ids) != 1 || ids[0] != "old" || a.Pending() != 0 {
		t.Errorf("expired = %v pending = %d", ids, a.Pending())
	}
}

func TestPendingLimit(t *testing.T) {
	a := NewAssembler(mgo.NewMemoryFileStore(), WithMaxPending(2))
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		if _, err := a.Add(ctx, Chunk{UploadID: id, ChunkIndex: 0, TotalChunks: 2, Data: "aGVs", FileName: "f"}); err != nil {
			t.Fatal(err)
		}
	}
	_, err := a.Add(ctx, Chunk{UploadID: "p3", ChunkIndex: 0, TotalChunks: 2, Data: "aGVs", FileName: "f"})
	if !errs.ErrUnavailable.Is(err) {
		t.Fatalf("third upload err = %v", err)
	}
	// known uploads and single chunk files still go through
	if p, err := a.Add(ctx, Chunk{UploadID: "p1", ChunkIndex: 1, TotalChunks: 2, Data: "bG8=", FileName: "f"}); err != nil || !p.Complete {
		t.Fatalf("p1 = %+v %v", p, err)
	}
	if p, err := a.Add(ctx, Chunk{ChunkIndex: 0, TotalChunks: 1, Data: "aGk=", FileName: "g"}); err != nil || !p.Complete {
		t.Fatalf("single = %+v %v", p, err)
	}
	if a.Pending() != 1 {
		t.Errorf("pending = %d", a.Pending())
	}
}

func TestByteLimitDropsUpload(t *testing.T) {
	a := NewAssembler(mgo.NewMemoryFileStore(), WithMaxBytes(8))
	ctx := context.Background()

	if _, err := a.Add(ctx, Chunk{UploadID: "big", ChunkIndex: 0, TotalChunks: 3, Data: "aGVs", FileName: "f"}); err != nil {
		t.Fatal(err)
	}
	// overwriting an index replaces its size instead of adding to it
	if _, err := a.Add(ctx, Chunk{UploadID: "big", ChunkIndex: 0, TotalChunks: 3, Data: "aGVs", FileName: "f"}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Add(ctx, Chunk{UploadID: "big", ChunkIndex: 1, TotalChunks: 3, Data: "bG8g", FileName: "f"}); err != nil {
		t.Fatal(err)
	}
	_, err := a.Add(ctx, Chunk{UploadID: "big", ChunkIndex: 2, TotalChunks: 3, Data: "d29y", FileName: "f"})
	if !errs.ErrArgs.Is(err) {
		t.Fatalf("err = %v", err)
	}
	if a.Pending() != 0 {
		t.Errorf("pending = %d, oversized upload kept", a.Pending())
	}
}
