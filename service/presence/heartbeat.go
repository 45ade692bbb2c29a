package presence

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"PPSignal/logger"
	"PPSignal/service/chat"
	"PPSignal/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const TypePresenceAck = "presence_ack"

// Ack confirms one accepted heartbeat.
type Ack struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

type beat struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// ParseHeartbeat accepts {"user_id","status"} or the legacy "id:status"
// text. ok is false when no user id can be extracted.
func ParseHeartbeat(raw []byte) (userID, status string, ok bool) {
	var b beat
	if err := json.Unmarshal(raw, &b); err == nil {
		userID = strings.TrimSpace(b.UserID)
		if userID == "" {
			return "", "", false
		}
		if b.Status == "" {
			b.Status = StatusOnline
		}
		return userID, b.Status, true
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		return "", "", false
	}
	return parseLegacy(string(raw))
}

func parseLegacy(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	id, status, found := strings.Cut(s, ":")
	if !found {
		return "", "", false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", false
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = StatusOnline
	}
	return id, status, true
}

// HeartbeatServer runs the /ws/heartbeat loop.
type HeartbeatServer struct {
	base         context.Context
	t            *Tracker
	writeTimeout time.Duration
	readLimit    int64
}

func NewHeartbeatServer(base context.Context, t *Tracker, writeTimeout time.Duration) *HeartbeatServer {
	return &HeartbeatServer{base: base, t: t, writeTimeout: writeTimeout, readLimit: 4096}
}

func (h *HeartbeatServer) HandleWS(c *gin.Context) {
	ch, err := chat.Upgrade(c, h.writeTimeout, h.readLimit)
	if err != nil {
		logger.Info("upgrade heartbeat websocket failed", zap.Error(err))
		return
	}
	h.Serve(ch)
}

// Serve reads heartbeats until the channel fails, then marks the last
// user seen on it offline.
func (h *HeartbeatServer) Serve(conn chat.Conn) {
	done := make(chan struct{})
	defer close(done)
	safe.Go("heartbeat-shutdown-watch", func() {
		select {
		case <-h.base.Done():
			_ = conn.Close(chat.CloseGoingAway, "server shutting down")
		case <-done:
		}
	})

	last := ""
	defer func() {
		if last == "" {
			return
		}
		if _, err := h.t.Update(last, StatusOffline, ProtoWebSocket); err != nil {
			logger.Warn("mark offline failed", zap.String("user", last), zap.Error(err))
		}
		logger.Info("heartbeat channel closed", zap.String("user", last))
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("heartbeat read ended", zap.String("user", last), zap.Error(err))
			_ = conn.Close(chat.CloseNormal, "")
			return
		}
		userID, status, ok := ParseHeartbeat(data)
		if !ok {
			logger.Warn("malformed heartbeat", zap.String("remote", conn.RemoteAddr()), zap.ByteString("data", data))
			continue
		}
		r, err := h.t.Update(userID, status, ProtoWebSocket)
		if err != nil {
			logger.Warn("heartbeat update failed", zap.String("user", userID), zap.Error(err))
			continue
		}
		last = userID
		ack := Ack{Type: TypePresenceAck, UserID: userID, Status: r.Status, Timestamp: chat.UnixSeconds(*r.LastSeen)}
		if err := conn.WriteJSON(ack); err != nil {
			logger.Info("heartbeat ack failed", zap.String("user", userID), zap.Error(err))
			_ = conn.Close(chat.CloseGoingAway, "write failed")
			return
		}
	}
}
