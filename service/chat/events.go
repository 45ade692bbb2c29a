package chat

import "time"

const (
	EventConnected    = "connected"
	EventSuperseded   = "superseded"
	EventDisconnected = "disconnected"
	EventEvicted      = "evicted"
)

// Event describes a registry lifecycle change.
type Event struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	ConnID string    `json:"conn_id"`
	Remote string    `json:"remote,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Node   string    `json:"node,omitempty"`
	At     time.Time `json:"at"`
}

// EventSink receives lifecycle events. Publish must not block the caller
// for long; it is called outside the registry lock.
type EventSink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// NopSink drops every event.
var NopSink EventSink = nopSink{}
