package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := cfg.Relay
	if r.HeartbeatInterval != 20*time.Second || r.InactivityTimeout != 90*time.Second ||
		r.ConnectionTimeout != 300*time.Second || r.CleanupInterval != 30*time.Second {
		t.Errorf("unexpected relay defaults %+v", r)
	}
	if r.MaxParseErrors != 3 {
		t.Errorf("MaxParseErrors = %d", r.MaxParseErrors)
	}
	if cfg.Redis.Addr != "" || cfg.Mongo.URI != "" || cfg.Nats.URL != "" || len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("backends must be disabled by default: %+v", cfg)
	}
	if cfg.Presence.UDPAddr != ":5005" {
		t.Errorf("UDPAddr = %q", cfg.Presence.UDPAddr)
	}
}

func TestParseYAMLAndEnv(t *testing.T) {
	doc := []byte(`
server:
  addr: ":9000"
relay:
  heartbeat_interval: 15s
  inactivity_timeout: 60
  max_parse_errors: 0
redis:
  addr: "127.0.0.1:6379"
kafka:
  brokers: ["k1:9092"]
`)
	env := []string{
		"PATH=/usr/bin",
		"PPSIGNAL_RELAY_CLEANUP_INTERVAL=5s",
		"PPSIGNAL_KAFKA_BROKERS=a:9092,b:9092",
		"PPSIGNAL_ADMIN_JWT_SECRET=s3cret",
		"PPSIGNAL_BROKEN",
	}
	cfg, err := Parse(doc, env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Relay.HeartbeatInterval != 15*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.Relay.HeartbeatInterval)
	}
	if cfg.Relay.InactivityTimeout != 60*time.Second {
		t.Errorf("InactivityTimeout = %v", cfg.Relay.InactivityTimeout)
	}
	if cfg.Relay.CleanupInterval != 5*time.Second {
		t.Errorf("CleanupInterval = %v", cfg.Relay.CleanupInterval)
	}
	if cfg.Relay.MaxParseErrors != 3 {
		t.Errorf("zero MaxParseErrors should normalize to 3, got %d", cfg.Relay.MaxParseErrors)
	}
	if cfg.Relay.ConnectionTimeout != 300*time.Second {
		t.Errorf("unset values keep defaults, got %v", cfg.Relay.ConnectionTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "a:9092" {
		t.Errorf("env should override brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Admin.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.Admin.JWTSecret)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	if _, err := Parse([]byte("relay: [unclosed"), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcherApplyBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ppsignal.yaml")
	if err := os.WriteFile(path, []byte("relay:\n  inactivity_timeout: 90s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, DefaultRelay())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.fw.Close()

	var got []RelayConfig
	w.OnRelayChange(func(r RelayConfig) { got = append(got, r) })

	if !w.ApplyBytes([]byte("relay:\n  inactivity_timeout: 45s\n")) {
		t.Fatal("ApplyBytes returned false")
	}
	if len(got) != 1 || got[0].InactivityTimeout != 45*time.Second {
		t.Fatalf("listener got %+v", got)
	}
	// same values again: no notification
	w.ApplyBytes([]byte("relay:\n  inactivity_timeout: 45s\n"))
	if len(got) != 1 {
		t.Errorf("unchanged config notified listeners again")
	}
	if w.ApplyBytes([]byte("relay: [")) {
		t.Error("bad document must be rejected")
	}
	if w.Current().InactivityTimeout != 45*time.Second {
		t.Errorf("Current = %+v", w.Current())
	}
}
