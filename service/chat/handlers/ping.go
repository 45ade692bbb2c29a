package handlers

import (
	"PPSignal/service/chat"
)

// PingHandler answers application-level pings; it never looks at
// target_id.
type PingHandler struct{}

func NewPingHandler() chat.Handler { return &PingHandler{} }

func (h *PingHandler) Type() string { return chat.TypePing }

func (h *PingHandler) Handle(ctx *chat.ChatContext, _ *chat.Inbound) error {
	return ctx.Reply(chat.BuildPong(ctx.Now))
}
