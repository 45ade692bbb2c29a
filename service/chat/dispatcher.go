package chat

import (
	"fmt"

	"PPSignal/logger"

	"go.uber.org/zap"
)

type Dispatcher struct {
	handlers map[string]Handler
	fallback Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

// SetFallback installs the handler for types nobody registered.
func (d *Dispatcher) SetFallback(h Handler) { d.fallback = h }

func (d *Dispatcher) Dispatch(ctx *ChatContext, in *Inbound) error {
	h := d.GetHandler(in.Type)
	if h == nil {
		// 未注册的类型直接丢弃，不断开连接
		return nil
	}
	if err := h.Handle(ctx, in); err != nil {
		return fmt.Errorf("handle type=%q: %w", in.Type, err)
	}
	return nil
}

func (d *Dispatcher) GetHandler(typ string) Handler {
	if h, ok := d.handlers[typ]; ok {
		return h
	}
	if d.fallback == nil {
		logger.Debug("no handler", zap.String("type", typ))
	}
	return d.fallback
}
