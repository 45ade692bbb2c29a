package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used on channels.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
	CloseInternalError   = websocket.CloseInternalServerErr
)

var ErrChannelClosed = errors.New("channel closed")

// Channel is the write side of one client connection as the registry
// sees it. Implementations serialize their own writers and refuse writes
// once closed; Close must be idempotent.
type Channel interface {
	WriteJSON(v any) error
	Close(code int, reason string) error
	RemoteAddr() string
}

// Conn is a Channel the relay loop can also read from.
type Conn interface {
	Channel
	ReadMessage() ([]byte, error)
}

// WsChannel wraps a gorilla websocket connection.
type WsChannel struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	wmu       sync.Mutex // 同一连接的写串行化
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewWsChannel(ws *websocket.Conn, writeTimeout time.Duration, readLimit int64) *WsChannel {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if readLimit > 0 {
		ws.SetReadLimit(readLimit)
	}
	return &WsChannel{ws: ws, writeTimeout: writeTimeout}
}

func (c *WsChannel) WriteJSON(v any) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed.Load() {
		return ErrChannelClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a websocket ping control frame.
func (c *WsChannel) Ping() error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout))
}

// OnPong runs fn for every pong control frame seen by the reader.
func (c *WsChannel) OnPong(fn func()) {
	c.ws.SetPongHandler(func(string) error {
		fn()
		return nil
	})
}

func (c *WsChannel) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a close frame with code and reason, then closes the socket.
// Only the first call has any effect.
func (c *WsChannel) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}

func (c *WsChannel) Closed() bool { return c.closed.Load() }

func (c *WsChannel) RemoteAddr() string {
	if ra := c.ws.RemoteAddr(); ra != nil {
		return ra.String()
	}
	return ""
}
