package natsx

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"PPSignal/logger"
	"PPSignal/service/chat"
	"PPSignal/service/presence"
	"PPSignal/tools/safe"

	"go.uber.org/zap"
)

// Publisher is the subset of NatsxClient the event publisher needs.
type Publisher interface {
	Publish(subject string, data []byte, hdr map[string]string) error
}

type outMsg struct {
	subject string
	data    []byte
	hdr     map[string]string
}

// PresenceEvent is published on <prefix>.presence.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	presence.Record
}

// EventPublisher 异步发布器：registry 和 presence 只入队，不等 NATS。
// 队列满时丢弃并计数。
type EventPublisher struct {
	pub    Publisher
	prefix string

	mu      sync.RWMutex
	closed  bool
	queue   chan outMsg
	done    chan struct{}
	dropped atomic.Uint64
}

func NewEventPublisher(pub Publisher, prefix string, size int) *EventPublisher {
	if size <= 0 {
		size = 1024
	}
	p := &EventPublisher{
		pub:    pub,
		prefix: prefix,
		queue:  make(chan outMsg, size),
		done:   make(chan struct{}),
	}
	safe.Go("nats-event-publisher", p.run)
	return p
}

func (p *EventPublisher) run() {
	defer close(p.done)
	for m := range p.queue {
		if err := p.pub.Publish(m.subject, m.data, m.hdr); err != nil {
			logger.Warn("publish event failed", zap.String("subject", m.subject), zap.Error(err))
		}
	}
}

// Publish implements chat.EventSink.
func (p *EventPublisher) Publish(e chat.Event) {
	hdr := map[string]string{HeaderMsgID: e.Type + ":" + e.ConnID}
	p.enqueue(ConnSubject(p.prefix, e.Type), e, hdr)
}

// PresenceChanged implements presence.Notifier.
func (p *EventPublisher) PresenceChanged(userID string, r presence.Record) {
	p.enqueue(p.prefix+".presence", PresenceEvent{UserID: userID, Record: r}, nil)
}

func (p *EventPublisher) enqueue(subject string, v any, hdr map[string]string) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("marshal event failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- outMsg{subject: subject, data: data, hdr: hdr}:
	default:
		if n := p.dropped.Add(1); n&(n-1) == 0 {
			logger.Warn("event queue full, dropping", zap.String("subject", subject), zap.Uint64("dropped", n))
		}
	}
}

func (p *EventPublisher) Dropped() uint64 { return p.dropped.Load() }

// Close flushes queued events and stops the worker.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
}

// ConnSubject is <prefix>.conn.<type>.
func ConnSubject(prefix, typ string) string { return prefix + ".conn." + typ }
