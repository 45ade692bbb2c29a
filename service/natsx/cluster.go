package natsx

import (
	"encoding/json"
	"time"

	"PPSignal/logger"
	"PPSignal/service/chat"
	"PPSignal/tools/errs"

	"go.uber.org/zap"
)

const ReasonOtherNode = "connected on another node"

// KickOnRemoteConnect handles connected events from other nodes. The
// local channel is closed only when it was accepted before the remote
// one; events arrive through an async queue and may be late.
func KickOnRemoteConnect(m *chat.ConnManager, node string) NatsxHandler {
	return func(msg NatsxMessage) error {
		var e chat.Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return errs.WrapMsg(err, "decode conn event", "subject", msg.Subject)
		}
		if e.Type != chat.EventConnected || e.Node == "" || e.Node == node {
			return nil
		}
		if m.KickIfOlder(e.UserID, e.At, ReasonOtherNode) {
			logger.Info("user moved to another node", zap.String("user", e.UserID), zap.String("node", e.Node))
		} else if m.IsConnected(e.UserID) {
			logger.Debug("ignore stale remote connect", zap.String("user", e.UserID),
				zap.String("node", e.Node), zap.Time("at", e.At))
		}
		return nil
	}
}

// WatchRemoteConnects subscribes the kick handler with duplicate filtering.
func WatchRemoteConnects(c *NatsxClient, m *chat.ConnManager, node string) error {
	return c.Subscribe(ConnSubject(c.Prefix(), chat.EventConnected),
		KickOnRemoteConnect(m, node),
		NatsxIdemMiddleware(NewMemIdem(time.Minute), 0))
}
