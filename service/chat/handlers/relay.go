package handlers

import (
	"fmt"

	"PPSignal/logger"
	"PPSignal/service/chat"
	"PPSignal/tools/errs"

	"go.uber.org/zap"
)

// RelayHandler forwards any non-ping frame to its target_id. Routing and
// delivery failures are reported to the sender; only a failed reply to
// the sender is returned as an error.
type RelayHandler struct{}

func NewRelayHandler() chat.Handler { return &RelayHandler{} }

// Type is empty: the relay handler is installed as the dispatcher fallback.
func (h *RelayHandler) Type() string { return "" }

func (h *RelayHandler) Handle(ctx *chat.ChatContext, in *chat.Inbound) error {
	reg := ctx.S.ConnMgr()
	target := in.TargetID

	if target == "" {
		return ctx.Reply(chat.BuildError(errs.KindValidation, "target_id required", ctx.UserID, ctx.Now))
	}

	if !reg.IsConnected(target) {
		e := chat.BuildError(errs.KindTargetNotConnected,
			fmt.Sprintf("user %s is not connected", target), ctx.UserID, ctx.Now)
		e.TargetID = target
		e.AvailableUsers = reg.ListConnected()
		logger.Info("relay target offline", zap.String("from", ctx.UserID), zap.String("to", target), zap.String("type", in.Type))
		return ctx.Reply(e)
	}

	frame := chat.BuildRelay(in.Type, ctx.UserID, target, in.Body(), ctx.S.Now())
	if !reg.Send(target, frame) {
		e := chat.BuildError(errs.KindSendFailed,
			fmt.Sprintf("failed to deliver to %s", target), ctx.UserID, ctx.S.Now())
		e.TargetID = target
		return ctx.Reply(e)
	}
	logger.Debug("relayed", zap.String("from", ctx.UserID), zap.String("to", target), zap.String("type", in.Type))

	if chat.NeedsAck(in.Type) {
		return ctx.Reply(chat.BuildAck(in.Type, target, ctx.S.Now()))
	}
	return nil
}

// Register installs the ping handler and the relay fallback on d.
func Register(d *chat.Dispatcher) {
	d.Register(NewPingHandler())
	d.SetFallback(NewRelayHandler())
}
