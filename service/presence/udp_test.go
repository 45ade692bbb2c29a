package presence

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestUDPListenerUpdatesTracker(t *testing.T) {
	tr := NewTracker()
	u, err := ListenUDP("127.0.0.1:0", tr)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Serve(ctx)
		close(done)
	}()

	c, err := net.Dial("udp", u.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	c.Write([]byte("no separator"))
	c.Write([]byte("zoe:ONLINE"))

	deadline := time.Now().Add(2 * time.Second)
	for tr.Get("zoe").Status != StatusOnline {
		if time.Now().After(deadline) {
			t.Fatalf("record = %+v", tr.Get("zoe"))
		}
		time.Sleep(5 * time.Millisecond)
	}
	r := tr.Get("zoe")
	if r.Protocol != ProtoUDP || r.IP != "127.0.0.1" || r.Port == 0 {
		t.Errorf("record = %+v", r)
	}
	if n := len(tr.GetAll()); n != 1 {
		t.Errorf("%d records, want 1", n)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestUDPCloseBeforeServe(t *testing.T) {
	u, err := ListenUDP("127.0.0.1:0", NewTracker())
	if err != nil {
		t.Fatal(err)
	}
	u.Close()
	u.Close()

	done := make(chan struct{})
	go func() {
		u.Serve(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve after Close did not return")
	}
}
