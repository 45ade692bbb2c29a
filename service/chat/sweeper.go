package chat

import (
	"sync"
	"time"

	"PPSignal/global/config"
	"PPSignal/logger"

	"go.uber.org/zap"
)

// Sweeper periodically evicts connections that went quiet or outlived
// the absolute connection timeout.
type Sweeper struct {
	m *ConnManager

	mu      sync.Mutex
	conf    config.RelayConfig
	resetCh chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSweeper(m *ConnManager, conf config.RelayConfig) *Sweeper {
	return &Sweeper{
		m:       m,
		conf:    conf.Normalize(),
		resetCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Apply swaps the thresholds; a changed interval takes effect at once.
func (s *Sweeper) Apply(conf config.RelayConfig) {
	conf = conf.Normalize()
	s.mu.Lock()
	changed := conf.CleanupInterval != s.conf.CleanupInterval
	s.conf = conf
	s.mu.Unlock()
	if changed {
		select {
		case s.resetCh <- struct{}{}:
		default:
		}
	}
}

func (s *Sweeper) current() config.RelayConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conf
}

// Run blocks until Stop is called.
func (s *Sweeper) Run() {
	defer close(s.doneCh)
	t := time.NewTicker(s.current().CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.resetCh:
			t.Reset(s.current().CleanupInterval)
		case now := <-t.C:
			s.SweepOnce(now)
		}
	}
}

// Stop ends Run and waits for it to return. Safe to call more than once,
// but only after Run has been started.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

// SweepOnce evicts every stale entry at now and returns the evicted user
// ids. A failure on one entry does not stop the others.
func (s *Sweeper) SweepOnce(now time.Time) []string {
	conf := s.current()
	var evicted []string
	for _, info := range s.m.Snapshot() {
		if reason := s.evictOne(info, now, conf); reason != "" {
			logger.Warn("evicted stale connection", zap.String("user", info.UserID),
				zap.String("conn", info.ConnID), zap.String("reason", reason),
				zap.Duration("idle", now.Sub(info.LastActivity)),
				zap.Duration("age", now.Sub(info.ConnectedAt)))
			evicted = append(evicted, info.UserID)
		}
	}
	if len(evicted) > 0 {
		logger.Info("sweep finished", zap.Int("evicted", len(evicted)), zap.Int("active", s.m.Metrics().ActiveConnections))
	}
	return evicted
}

func (s *Sweeper) evictOne(info ConnInfo, now time.Time, conf config.RelayConfig) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sweep entry failed", zap.String("user", info.UserID), zap.Any("panic", r))
			reason = ""
		}
	}()
	return s.m.EvictIdle(info.UserID, info.ConnID, now, conf.InactivityTimeout, conf.ConnectionTimeout)
}
