package chat

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeConn is an in-memory Conn. Frames pushed with send are returned by
// ReadMessage; every WriteJSON lands on out as raw JSON.
type fakeConn struct {
	remote string

	mu          sync.Mutex
	closes      int
	closeCode   int
	closeReason string
	failWrites  bool
	panicClose  bool

	in       chan []byte
	out      chan []byte
	closedCh chan struct{}
}

func newFakeConn(remote string) *fakeConn {
	return &fakeConn{
		remote:   remote,
		in:       make(chan []byte, 16),
		out:      make(chan []byte, 64),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	closed, fail := f.closes > 0, f.failWrites
	f.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	if fail {
		return errors.New("broken pipe")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.out <- b
	return nil
}

func (f *fakeConn) Close(code int, reason string) error {
	f.mu.Lock()
	if f.panicClose {
		f.mu.Unlock()
		panic("close exploded")
	}
	f.closes++
	first := f.closes == 1
	if first {
		f.closeCode, f.closeReason = code, reason
	}
	f.mu.Unlock()
	if first {
		close(f.closedCh)
	}
	return nil
}

func (f *fakeConn) RemoteAddr() string { return f.remote }

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closedCh:
		return nil, io.EOF
	}
}

func (f *fakeConn) send(s string) { f.in <- []byte(s) }

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeConn) closeInfo() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeReason
}

// next waits for the next written frame and decodes it into a map.
func (f *fakeConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case b := <-f.out:
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("bad frame %s: %v", b, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func (f *fakeConn) expectSilent(t *testing.T) {
	t.Helper()
	select {
	case b := <-f.out:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordSink) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
