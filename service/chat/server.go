package chat

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"PPSignal/global/config"
	"PPSignal/logger"
	"PPSignal/tools/errs"
	"PPSignal/tools/safe"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server runs the relay loop of every signaling connection.
type Server struct {
	base    context.Context
	connMgr *ConnManager
	disp    *Dispatcher
	relay   atomic.Pointer[config.RelayConfig]
	clock   func() time.Time
}

// NewServer builds a relay server; base is cancelled on shutdown and
// ends every loop.
func NewServer(base context.Context, connMgr *ConnManager, disp *Dispatcher, relay config.RelayConfig) *Server {
	s := &Server{
		base:    base,
		connMgr: connMgr,
		disp:    disp,
		clock:   time.Now,
	}
	s.Apply(relay)
	return s
}

func (s *Server) ConnMgr() *ConnManager { return s.connMgr }
func (s *Server) Disp() *Dispatcher     { return s.disp }
func (s *Server) Now() time.Time        { return s.clock() }

// Apply swaps the relay limits used by new loops and pings.
func (s *Server) Apply(r config.RelayConfig) {
	r = r.Normalize()
	s.relay.Store(&r)
}

func (s *Server) RelayConf() config.RelayConfig { return *s.relay.Load() }

// Serve registers conn for userID and runs its relay loop until the peer
// goes away, the channel fails, or the server shuts down. The registry
// record is removed exactly once on return.
func (s *Server) Serve(userID string, conn Conn) {
	connID, err := s.connMgr.Connect(userID, conn, conn.RemoteAddr())
	if err != nil {
		logger.Warn("connect rejected", zap.String("user", userID), zap.Error(err))
		_ = conn.Close(CloseInternalError, "Connection failed")
		return
	}
	defer s.connMgr.Disconnect(userID, connID)

	done := make(chan struct{})
	defer close(done)

	if ws, ok := conn.(*WsChannel); ok {
		s.connMgr.AttachPongHandler(ws, userID)
		safe.Go("ping:"+userID, func() { s.startPing(ws, userID, done) })
	}

	// 关机时关闭连接以打断阻塞的读
	safe.Go("shutdown-watch:"+userID, func() {
		select {
		case <-s.base.Done():
			_ = conn.Close(CloseGoingAway, "server shutting down")
		case <-done:
		}
	})

	if err := s.readLoop(userID, connID, conn); err != nil {
		logger.Info("relay loop ended", zap.String("user", userID), zap.String("conn", connID), zap.Error(err))
	}
}

func (s *Server) readLoop(userID, connID string, conn Conn) error {
	maxParse := s.RelayConf().MaxParseErrors
	parseErrs := 0

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			logReadErr(userID, err)
			return nil
		}
		s.connMgr.Touch(userID)
		now := s.clock()

		in, perr := ParseInbound(data)
		if perr != nil {
			parseErrs++
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warn("malformed frame", zap.String("user", userID), zap.Error(perr),
				zap.ByteString("sample", sample), zap.Int("consecutive", parseErrs))
			if werr := conn.WriteJSON(BuildError(errs.KindValidation, "invalid JSON frame", userID, now)); werr != nil {
				return errs.WrapMsg(werr, "reply parse error")
			}
			if parseErrs >= maxParse {
				_ = conn.Close(ClosePolicyViolation, "too many malformed frames")
				return errors.New("too many malformed frames")
			}
			continue
		}
		parseErrs = 0

		ctx := &ChatContext{S: s, UserID: userID, ConnID: connID, Conn: conn, Now: now}
		if err := s.disp.Dispatch(ctx, in); err != nil {
			return err
		}
	}
}

func (s *Server) startPing(ws *WsChannel, userID string, done <-chan struct{}) {
	ticker := time.NewTicker(s.RelayConf().HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.Ping(); err != nil {
				if !errors.Is(err, ErrChannelClosed) {
					logger.Info("ping failed", zap.String("user", userID), zap.Error(err))
					_ = ws.Close(CloseGoingAway, "ping failed")
				}
				return
			}
		}
	}
}

func logReadErr(userID string, err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	):
		logger.Info("peer closed", zap.String("user", userID), zap.Error(err))
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("read timeout", zap.String("user", userID), zap.Error(err))
	default:
		logger.Debug("read ended", zap.String("user", userID), zap.Error(err))
	}
}
