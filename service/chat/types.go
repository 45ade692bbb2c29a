package chat

import "time"

// Handler processes one inbound frame type. A returned error means the
// sender's channel failed and ends its relay loop.
type Handler interface {
	Type() string
	Handle(*ChatContext, *Inbound) error
}

// ChatContext carries the sender of the frame being handled.
type ChatContext struct {
	S      *Server
	UserID string
	ConnID string
	Conn   Conn
	Now    time.Time
}

// Reply writes v back to the sender.
func (c *ChatContext) Reply(v any) error {
	return c.Conn.WriteJSON(v)
}
