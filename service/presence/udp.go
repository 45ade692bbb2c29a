package presence

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"go.uber.org/zap"
)

const udpBufSize = 1024

// UDPListener feeds "id:status" datagrams into a Tracker.
type UDPListener struct {
	conn *net.UDPConn
	t    *Tracker

	mu      sync.Mutex // guards closed and wg.Add
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

func ListenUDP(addr string, t *Tracker) (*UDPListener, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errs.WrapMsg(err, "resolve udp addr", "addr", addr)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, errs.WrapMsg(err, "listen udp", "addr", addr)
	}
	return &UDPListener{conn: conn, t: t, closeCh: make(chan struct{})}, nil
}

func (u *UDPListener) LocalAddr() net.Addr { return u.conn.LocalAddr() }

// Serve blocks reading datagrams until ctx is done or Close is called.
// After Close it returns at once.
func (u *UDPListener) Serve(ctx context.Context) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.wg.Add(1)
	u.mu.Unlock()
	defer u.wg.Done()

	go func() {
		select {
		case <-ctx.Done():
			u.Close()
		case <-u.closeCh:
		}
	}()

	logger.Info("udp heartbeat listener started", zap.String("addr", u.conn.LocalAddr().String()))
	buf := make([]byte, udpBufSize)
	for {
		n, addr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.closeCh:
				logger.Info("udp heartbeat listener stopped")
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("udp read error", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		u.handle(buf[:n], addr)
	}
}

func (u *UDPListener) handle(data []byte, addr *net.UDPAddr) {
	userID, status, ok := parseLegacy(string(data))
	if !ok {
		logger.Debug("ignore udp datagram", zap.String("from", addr.String()), zap.ByteString("data", data))
		return
	}
	status = strings.ToLower(status)
	if _, err := u.t.UpdateFrom(userID, status, ProtoUDP, addr); err != nil {
		logger.Warn("udp heartbeat update failed", zap.String("user", userID), zap.Error(err))
		return
	}
	logger.Debug("udp heartbeat", zap.String("user", userID), zap.String("status", status), zap.String("from", addr.String()))
}

// Close stops the reader and waits for Serve to return. It is safe to
// call before Serve has started and more than once.
func (u *UDPListener) Close() {
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.closeCh)
		_ = u.conn.Close()
	}
	u.mu.Unlock()
	u.wg.Wait()
}
