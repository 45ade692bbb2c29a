package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"PPSignal/global/config"
	"PPSignal/service/chat"
	"PPSignal/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newRelayServer(t *testing.T) (*chat.Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	d := chat.NewDispatcher()
	Register(d)
	s := chat.NewServer(ctx, chat.NewConnManager(), d, config.DefaultRelay())

	r := gin.New()
	r.GET("/ws/:user_id", s.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		s.ConnMgr().Close()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + user
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitUsers(t *testing.T, s *chat.Server, users ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ok := true
		for _, u := range users {
			if !s.ConnMgr().IsConnected(u) {
				ok = false
			}
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("users %v not all connected: %v", users, s.ConnMgr().ListConnected())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func read(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestOfferRelayedAndAcknowledged(t *testing.T) {
	s, ts := newRelayServer(t)
	a := dial(t, ts, "A")
	b := dial(t, ts, "B")
	waitUsers(t, s, "A", "B")

	err := a.WriteJSON(map[string]any{
		"type":      "offer",
		"target_id": "B",
		"payload":   map[string]any{"sdp": "v=0"},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := read(t, b)
	if got["type"] != "offer" || got["sender_id"] != "A" || got["target_id"] != "B" {
		t.Errorf("relay = %v", got)
	}
	if !reflect.DeepEqual(got["payload"], map[string]any{"sdp": "v=0"}) {
		t.Errorf("payload = %v", got["payload"])
	}
	if _, ok := got["timestamp"].(float64); !ok {
		t.Errorf("timestamp = %v", got["timestamp"])
	}

	ack := read(t, a)
	if ack["type"] != "offer-sent" || ack["target_id"] != "B" || ack["status"] != "delivered" {
		t.Errorf("ack = %v", ack)
	}
	if m := s.ConnMgr().Metrics(); m.MessagesRelayed != 1 {
		t.Errorf("relayed = %d", m.MessagesRelayed)
	}
}

func TestAnswerIsNotAcknowledged(t *testing.T) {
	s, ts := newRelayServer(t)
	a := dial(t, ts, "A")
	b := dial(t, ts, "B")
	waitUsers(t, s, "A", "B")

	a.WriteJSON(map[string]any{"type": "answer", "target_id": "B", "payload": map[string]any{}})
	if got := read(t, b); got["type"] != "answer" {
		t.Fatalf("relay = %v", got)
	}
	// next thing A sees must be the pong, not an ack
	a.WriteJSON(map[string]any{"type": "ping"})
	if got := read(t, a); got["type"] != "pong" {
		t.Errorf("A got %v, want pong", got)
	}
}

func TestMissingTargetIsValidationError(t *testing.T) {
	s, ts := newRelayServer(t)
	a := dial(t, ts, "A")
	b := dial(t, ts, "B")
	waitUsers(t, s, "A", "B")

	a.WriteJSON(map[string]any{"type": "offer", "payload": map[string]any{"sdp": "x"}})
	e := read(t, a)
	if e["type"] != "error" || e["error_type"] != errs.KindValidation || e["sender_id"] != "A" {
		t.Errorf("error = %v", e)
	}
	if m := s.ConnMgr().Metrics(); m.MessagesRelayed != 0 {
		t.Errorf("relayed = %d, want 0", m.MessagesRelayed)
	}
	_ = b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Error("B received a frame")
	}
}

func TestTargetNotConnectedListsUsers(t *testing.T) {
	s, ts := newRelayServer(t)
	a := dial(t, ts, "A")
	dial(t, ts, "C")
	waitUsers(t, s, "A", "C")

	a.WriteJSON(map[string]any{"type": "call", "target_id": "ghost"})
	e := read(t, a)
	if e["error_type"] != errs.KindTargetNotConnected || e["target_id"] != "ghost" {
		t.Fatalf("error = %v", e)
	}
	var users []string
	for _, u := range e["available_users"].([]any) {
		users = append(users, u.(string))
	}
	if !reflect.DeepEqual(users, s.ConnMgr().ListConnected()) {
		t.Errorf("available_users = %v, registry = %v", users, s.ConnMgr().ListConnected())
	}
}

func TestInvalidUserIDRejected(t *testing.T) {
	s, ts := newRelayServer(t)
	for _, id := range []string{"undefined", "NULL", "%20"} {
		c := dial(t, ts, id)
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := c.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Errorf("%s: err = %v, want policy violation close", id, err)
		}
	}
	if n := len(s.ConnMgr().ListConnected()); n != 0 {
		t.Errorf("%d users registered", n)
	}
}

func TestReconnectSupersedes(t *testing.T) {
	s, ts := newRelayServer(t)
	old := dial(t, ts, "A")
	waitUsers(t, s, "A")
	fresh := dial(t, ts, "A")

	_ = old.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := old.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("old conn err = %v", err)
	}
	fresh.WriteJSON(map[string]any{"type": "ping"})
	if got := read(t, fresh); got["type"] != "pong" {
		t.Errorf("got %v", got)
	}
	if got := s.ConnMgr().ListConnected(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("connected = %v", got)
	}
}

// brokenChannel is a registered target whose writes always fail.
type brokenChannel struct{}

func (brokenChannel) WriteJSON(any) error     { return errors.New("broken pipe") }
func (brokenChannel) Close(int, string) error { return nil }
func (brokenChannel) RemoteAddr() string      { return "10.0.0.9:7000" }

func TestSendFailureReportedToSender(t *testing.T) {
	s, ts := newRelayServer(t)
	a := dial(t, ts, "A")
	if _, err := s.ConnMgr().Connect("B", brokenChannel{}, "10.0.0.9:7000"); err != nil {
		t.Fatal(err)
	}
	waitUsers(t, s, "A", "B")

	a.WriteJSON(map[string]any{"type": "offer", "target_id": "B", "payload": map[string]any{"sdp": "v=0"}})
	e := read(t, a)
	if e["type"] != "error" || e["error_type"] != errs.KindSendFailed {
		t.Fatalf("error = %v", e)
	}
	if e["target_id"] != "B" || e["sender_id"] != "A" {
		t.Errorf("error = %v", e)
	}
	m := s.ConnMgr().Metrics()
	if m.Errors != 1 || m.MessagesRelayed != 0 {
		t.Errorf("metrics = %+v", m)
	}
	// a failed send does not evict the target
	if !s.ConnMgr().IsConnected("B") {
		t.Error("target evicted after send failure")
	}
}

func TestCallRelayedAndAcknowledged(t *testing.T) {
	s, ts := newRelayServer(t)
	a := dial(t, ts, "A")
	b := dial(t, ts, "B")
	waitUsers(t, s, "A", "B")

	a.WriteJSON(map[string]any{"type": "call", "target_id": "B", "data": map[string]any{"video": true}})
	got := read(t, b)
	if got["type"] != "call" || got["sender_id"] != "A" {
		t.Errorf("relay = %v", got)
	}
	if !reflect.DeepEqual(got["payload"], map[string]any{"video": true}) {
		t.Errorf("payload = %v", got["payload"])
	}
	ack := read(t, a)
	if ack["type"] != "call-sent" || ack["target_id"] != "B" || ack["status"] != "delivered" {
		t.Errorf("ack = %v", ack)
	}
}
