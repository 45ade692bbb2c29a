package storage

import (
	"context"
	"testing"
	"time"

	"PPSignal/service/presence"

	"github.com/redis/go-redis/v9"
)

// memRedis overrides the few commands PresenceStore uses.
type memRedis struct {
	redis.Cmdable
	kv  map[string]string
	ttl map[string]time.Duration
}

func newMemRedis() *memRedis {
	return &memRedis{kv: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.kv[key] = string(v)
	case string:
		m.kv[key] = v
	}
	m.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.kv[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.kv[k]; ok {
			delete(m.kv, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestPresenceStoreRoundTrip(t *testing.T) {
	mem := newMemRedis()
	s := NewPresenceStore(mem, time.Minute)
	ctx := context.Background()

	if _, ok, err := s.Lookup(ctx, "alice"); ok || err != nil {
		t.Fatalf("lookup before save: ok=%v err=%v", ok, err)
	}

	now := time.Unix(1700000000, 0).UTC()
	if err := s.Save(ctx, "alice", presence.Record{Status: "online", LastSeen: &now, Protocol: presence.ProtoUDP}); err != nil {
		t.Fatal(err)
	}
	if mem.ttl["im:presence:alice"] != time.Minute {
		t.Errorf("ttl = %v", mem.ttl["im:presence:alice"])
	}
	r, ok, err := s.Lookup(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if r.Status != "online" || r.Protocol != presence.ProtoUDP || !r.LastSeen.Equal(now) {
		t.Errorf("record = %+v", r)
	}

	if err := s.Save(ctx, "alice", presence.Record{Status: presence.StatusOffline}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Lookup(ctx, "alice"); ok {
		t.Error("offline save must delete the key")
	}
}

func TestPresenceStoreAsTrackerMirror(t *testing.T) {
	mem := newMemRedis()
	tr := presence.NewTracker(presence.WithMirror(NewPresenceStore(mem, 0)))
	tr.Update("bob", "busy", presence.ProtoHTTP)
	if _, ok := mem.kv["im:presence:bob"]; !ok {
		t.Fatal("tracker update not mirrored")
	}
	if mem.ttl["im:presence:bob"] != 3*time.Minute {
		t.Errorf("default ttl = %v", mem.ttl["im:presence:bob"])
	}
}
