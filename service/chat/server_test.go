package chat

import (
	"context"
	"testing"
	"time"

	"PPSignal/global/config"
	"PPSignal/tools/errs"
)

// echoRelay is a minimal fallback so the engine can be tested without the
// handlers package: it forwards to target_id when connected.
type echoRelay struct{}

func (echoRelay) Type() string { return "" }

func (echoRelay) Handle(ctx *ChatContext, in *Inbound) error {
	if in.TargetID == "" {
		return ctx.Reply(BuildError(errs.KindValidation, "target_id required", ctx.UserID, ctx.Now))
	}
	ctx.S.ConnMgr().Send(in.TargetID, BuildRelay(in.Type, ctx.UserID, in.TargetID, in.Body(), ctx.Now))
	return nil
}

type pingOnly struct{}

func (pingOnly) Type() string { return TypePing }

func (pingOnly) Handle(ctx *ChatContext, _ *Inbound) error { return ctx.Reply(BuildPong(ctx.Now)) }

func newTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher()
	d.Register(pingOnly{})
	d.SetFallback(echoRelay{})
	rc := config.DefaultRelay()
	return NewServer(ctx, NewConnManager(), d, rc), cancel
}

func serveAsync(s *Server, user string, c *fakeConn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(user, c)
	}()
	return done
}

func waitConnected(t *testing.T, s *Server, user string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !s.ConnMgr().IsConnected(user) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never registered", user)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServePingAndRelay(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	a, b := newFakeConn("a"), newFakeConn("b")
	doneA := serveAsync(s, "alice", a)
	doneB := serveAsync(s, "bob", b)
	waitConnected(t, s, "alice")
	waitConnected(t, s, "bob")

	a.send(`{"type":"ping"}`)
	pong := a.next(t)
	if pong["type"] != "pong" || pong["timestamp"] == nil || pong["server_time"] == nil {
		t.Errorf("pong = %v", pong)
	}
	a.expectSilent(t)

	a.send(`{"type":"candidate","target_id":"bob","data":{"c":1}}`)
	got := b.next(t)
	if got["sender_id"] != "alice" || got["target_id"] != "bob" || got["type"] != "candidate" {
		t.Errorf("relay = %v", got)
	}
	if p, _ := got["payload"].(map[string]any); p["c"] != float64(1) {
		t.Errorf("payload = %v", got["payload"])
	}

	a.Close(CloseNormal, "")
	waitDone(t, doneA)
	if s.ConnMgr().IsConnected("alice") {
		t.Error("alice still registered after her loop ended")
	}

	b.Close(CloseNormal, "")
	waitDone(t, doneB)
}

func TestServeMalformedFrames(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	c := newFakeConn("c")
	done := serveAsync(s, "carol", c)
	waitConnected(t, s, "carol")

	c.send(`not json`)
	if e := c.next(t); e["type"] != "error" || e["error_type"] != errs.KindValidation {
		t.Errorf("reply = %v", e)
	}
	// a good frame resets the counter
	c.send(`{"type":"ping"}`)
	c.next(t)

	for i := 0; i < 3; i++ {
		c.send(`{`)
		c.next(t)
	}
	waitDone(t, done)
	if code, _ := c.closeInfo(); code != ClosePolicyViolation {
		t.Errorf("close code = %d", code)
	}
	if s.ConnMgr().IsConnected("carol") {
		t.Error("carol still registered")
	}
}

func TestServeShutdown(t *testing.T) {
	s, cancel := newTestServer(t)

	c := newFakeConn("c")
	done := serveAsync(s, "dave", c)
	waitConnected(t, s, "dave")

	cancel()
	waitDone(t, done)
	if code, reason := c.closeInfo(); code != CloseGoingAway || reason != "server shutting down" {
		t.Errorf("close = %d %q", code, reason)
	}
}

func TestServeSupersededLoopLeavesNewConnection(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	old := newFakeConn("old")
	doneOld := serveAsync(s, "erin", old)
	waitConnected(t, s, "erin")

	fresh := newFakeConn("new")
	doneNew := serveAsync(s, "erin", fresh)

	// the old loop ends because its channel was closed by supersession
	waitDone(t, doneOld)
	if !s.ConnMgr().IsConnected("erin") {
		t.Fatal("old loop cleanup removed the new connection")
	}
	fresh.send(`{"type":"ping"}`)
	if p := fresh.next(t); p["type"] != "pong" {
		t.Errorf("pong = %v", p)
	}
	fresh.Close(CloseNormal, "")
	waitDone(t, doneNew)
}

func TestNormalizeUserID(t *testing.T) {
	cases := map[string]bool{
		"alice":       true,
		"  bob  ":     true,
		"":            false,
		"   ":         false,
		"undefined":   false,
		"NULL":        false,
		" Undefined ": false,
	}
	for in, ok := range cases {
		if _, got := NormalizeUserID(in); got != ok {
			t.Errorf("NormalizeUserID(%q) ok = %v, want %v", in, got, ok)
		}
	}
	if id, _ := NormalizeUserID("  bob "); id != "bob" {
		t.Errorf("id = %q", id)
	}
}
