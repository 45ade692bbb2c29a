package decode

import (
	"testing"
	"time"
)

type sample struct {
	Name     string        `json:"name"`
	Count    int           `json:"count"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
	Brokers  []string      `json:"brokers"`
	Enabled  bool          `json:"enabled"`
}

func TestIntoKeepsDefaults(t *testing.T) {
	out := sample{Name: "default", Count: 3, Timeout: time.Minute}
	err := Into(map[string]any{
		"count":    "7",
		"interval": "20s",
		"brokers":  "a:9092,b:9092",
		"enabled":  "true",
	}, &out)
	if err != nil {
		t.Fatalf("Into: %v", err)
	}
	if out.Name != "default" || out.Timeout != time.Minute {
		t.Errorf("defaults overwritten: %+v", out)
	}
	if out.Count != 7 || out.Interval != 20*time.Second || !out.Enabled {
		t.Errorf("unexpected decode result: %+v", out)
	}
	if len(out.Brokers) != 2 || out.Brokers[1] != "b:9092" {
		t.Errorf("brokers = %v", out.Brokers)
	}
}

func TestNumbersAreSeconds(t *testing.T) {
	got, err := Decode[sample](map[string]any{"interval": 90, "timeout": 1.5, "count": 2.0})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Interval != 90*time.Second {
		t.Errorf("interval = %v", got.Interval)
	}
	if got.Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", got.Timeout)
	}
	if got.Count != 2 {
		t.Errorf("count = %d", got.Count)
	}
}
