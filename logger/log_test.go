package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitWritesFile(t *testing.T) {
	old := Log
	defer func() { Log = old }()

	path := filepath.Join(t.TempDir(), "ppsignal.log")
	Init(Options{Level: "warn", File: path, MaxSizeMB: 1})
	Info("dropped below level")
	Warn("kept", zap.String("user", "alice"))
	Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("log file empty")
	}
	if got := string(b); !strings.Contains(got, `"msg":"kept"`) || strings.Contains(got, "dropped below level") {
		t.Errorf("unexpected log contents %q", got)
	}
}

func TestInitUnknownLevel(t *testing.T) {
	old := Log
	defer func() { Log = old }()

	Init(Options{Level: "chatty"})
	if !Log.Core().Enabled(zap.InfoLevel) || Log.Core().Enabled(zap.DebugLevel) {
		t.Error("unknown level should fall back to info")
	}
}
