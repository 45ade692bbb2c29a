package chat

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

var emptyPayload = json.RawMessage(`{}`)

// Inbound is a frame as sent by a client. Data is the legacy name of
// Payload.
type Inbound struct {
	Type     string          `json:"type"`
	TargetID string          `json:"target_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ParseInbound decodes one client frame. The frame must be a JSON object.
func ParseInbound(b []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// Body returns the opaque payload: payload, else data, else {}.
func (in *Inbound) Body() json.RawMessage {
	if !isAbsent(in.Payload) {
		return in.Payload
	}
	if !isAbsent(in.Data) {
		return in.Data
	}
	return emptyPayload
}

func isAbsent(r json.RawMessage) bool {
	return len(r) == 0 || bytes.Equal(bytes.TrimSpace(r), []byte("null"))
}

// RelayFrame is what the target receives.
type RelayFrame struct {
	Type      string          `json:"type"`
	SenderID  string          `json:"sender_id"`
	TargetID  string          `json:"target_id"`
	Timestamp float64         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type ErrorFrame struct {
	Type           string   `json:"type"`
	ErrorType      string   `json:"error_type"`
	Message        string   `json:"message"`
	SenderID       string   `json:"sender_id"`
	TargetID       string   `json:"target_id,omitempty"`
	AvailableUsers []string `json:"available_users,omitempty"`
	Timestamp      float64  `json:"timestamp"`
}

type PongFrame struct {
	Type       string  `json:"type"`
	Timestamp  float64 `json:"timestamp"`
	ServerTime string  `json:"server_time"`
}

// AckFrame confirms delivery of call and offer frames to the sender.
type AckFrame struct {
	Type      string  `json:"type"`
	TargetID  string  `json:"target_id"`
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// UnixSeconds formats t as seconds since the epoch with a fractional part.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// ServerTime formats t the way clients expect server_time.
func ServerTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}

func BuildRelay(typ, sender, target string, payload json.RawMessage, now time.Time) *RelayFrame {
	return &RelayFrame{
		Type:      typ,
		SenderID:  sender,
		TargetID:  target,
		Timestamp: UnixSeconds(now),
		Payload:   payload,
	}
}

func BuildError(kind, msg, sender string, now time.Time) *ErrorFrame {
	return &ErrorFrame{
		Type:      TypeError,
		ErrorType: kind,
		Message:   msg,
		SenderID:  sender,
		Timestamp: UnixSeconds(now),
	}
}

func BuildPong(now time.Time) *PongFrame {
	return &PongFrame{
		Type:       TypePong,
		Timestamp:  UnixSeconds(now),
		ServerTime: ServerTime(now),
	}
}

func BuildAck(typ, target string, now time.Time) *AckFrame {
	return &AckFrame{
		Type:      typ + "-sent",
		TargetID:  target,
		Status:    "delivered",
		Timestamp: UnixSeconds(now),
	}
}

// NeedsAck reports whether a successful relay of typ is confirmed to the
// sender.
func NeedsAck(typ string) bool {
	return typ == "call" || typ == "offer"
}
