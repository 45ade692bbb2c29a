package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// RelayListener receives the relay section after every successful reload.
type RelayListener func(RelayConfig)

// Watcher reloads the config file on change and hands the relay section
// to the registered listeners. Other sections need a restart.
type Watcher struct {
	path     string
	fw       *fsnotify.Watcher
	debounce time.Duration

	mu        sync.Mutex
	listeners []RelayListener
	current   RelayConfig
}

// NewWatcher watches the directory holding path, so editors that replace
// the file by rename are still seen.
func NewWatcher(path string, initial RelayConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.WrapMsg(err, "create fsnotify watcher")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, errs.WrapMsg(err, "resolve config path", "path", path)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, errs.WrapMsg(err, "watch config dir", "path", abs)
	}
	return &Watcher{
		path:     abs,
		fw:       fw,
		debounce: 200 * time.Millisecond,
		current:  initial,
	}, nil
}

func (w *Watcher) OnRelayChange(l RelayListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// Current returns the relay section last applied.
func (w *Watcher) Current() RelayConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run blocks until ctx is done, then closes the fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// 编辑器保存往往触发多次事件，合并处理
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		logger.Warn("config reload: read failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.ApplyBytes(data)
}

// ApplyBytes parses data as a full config document and applies its relay
// section. Parse failures keep the previous values.
func (w *Watcher) ApplyBytes(data []byte) bool {
	cfg, err := Parse(data, os.Environ())
	if err != nil {
		logger.Warn("config reload: parse failed, keeping previous values", zap.Error(err))
		return false
	}
	w.apply(cfg.Relay)
	return true
}

func (w *Watcher) apply(r RelayConfig) {
	w.mu.Lock()
	if r == w.current {
		w.mu.Unlock()
		return
	}
	w.current = r
	ls := append([]RelayListener(nil), w.listeners...)
	w.mu.Unlock()

	logger.Info("relay config reloaded",
		zap.Duration("heartbeat_interval", r.HeartbeatInterval),
		zap.Duration("inactivity_timeout", r.InactivityTimeout),
		zap.Duration("connection_timeout", r.ConnectionTimeout),
		zap.Duration("cleanup_interval", r.CleanupInterval),
	)
	for _, l := range ls {
		l(r)
	}
}
