package natsx

import (
	"strings"
	"sync"
	"time"

	"PPSignal/global/config"
	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NatsxClient wraps one core NATS connection and its subscriptions.
type NatsxClient struct {
	nc     *nats.Conn
	prefix string

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNatsxClient 连接 NATS；URL 可以是逗号分隔的多个地址
func NewNatsxClient(cfg config.NatsConfig) (*NatsxClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errs.ErrArgs.WrapMsg("nats url missing")
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "url", cfg.URL)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "ppsignal"
	}
	return &NatsxClient{nc: nc, prefix: prefix}, nil
}

func (c *NatsxClient) Prefix() string { return c.prefix }

func (c *NatsxClient) Connected() bool { return c.nc != nil && c.nc.IsConnected() }

// Publish sends data on subject with optional headers.
func (c *NatsxClient) Publish(subject string, data []byte, hdr map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	if err := c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "nats publish", "subject", subject)
	}
	return nil
}

// Subscribe registers h (wrapped by mws) on subject.
func (c *NatsxClient) Subscribe(subject string, h NatsxHandler, mws ...NatsxMiddleware) error {
	h = NatsxChain(h, mws...)
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		msg := NatsxMessage{
			Subject: m.Subject,
			Data:    append([]byte(nil), m.Data...),
			Header:  headerToMap(m.Header),
		}
		if err := h(msg); err != nil {
			logger.Warn("nats handler failed", zap.String("subject", m.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return errs.WrapMsg(err, "nats subscribe", "subject", subject)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close drains subscriptions then the connection.
func (c *NatsxClient) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Drain()
	}
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
