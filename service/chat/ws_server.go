package chat

import (
	"net/http"
	"strings"
	"time"

	"PPSignal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgraded = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// Upgrade switches the gin request to a websocket wrapped in a WsChannel.
func Upgrade(c *gin.Context, writeTimeout time.Duration, readLimit int64) (*WsChannel, error) {
	ws, err := upgraded.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return nil, err
	}
	return NewWsChannel(ws, writeTimeout, readLimit), nil
}

// NormalizeUserID trims raw and rejects empty, "undefined" and "null"
// (any case).
func NormalizeUserID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	switch strings.ToLower(id) {
	case "", "undefined", "null":
		return "", false
	}
	return id, true
}

// HandleWS upgrades GET /ws/:user_id and runs the relay loop on it.
func (s *Server) HandleWS(c *gin.Context) {
	raw := c.Param("user_id")

	rc := s.RelayConf()
	ch, err := Upgrade(c, rc.WriteTimeout, rc.MaxMessageBytes)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Info("upgrade websocket failed", zap.String("user", raw), zap.Error(err))
		return
	}

	userID, ok := NormalizeUserID(raw)
	if !ok {
		logger.Warn("reject websocket: invalid user id", zap.String("user", raw))
		_ = ch.Close(ClosePolicyViolation, "Invalid user ID")
		return
	}
	s.Serve(userID, ch)
}
