package chat

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PPSignal/logger"
	"PPSignal/tools/ids"

	"go.uber.org/zap"
)

var (
	ErrEmptyUser     = errors.New("user id empty")
	ErrNilChannel    = errors.New("channel nil")
	ErrManagerClosed = errors.New("connection manager closed")
)

// ===== 配置 =====

type ManagerConf struct {
	Clock  func() time.Time // 可注入时钟（单测用）；nil => time.Now
	NewID  func() string    // 连接ID 生成；nil => 雪花ID
	Events EventSink        // 生命周期事件；nil => 丢弃
	Node   string           // 本节点标识，写入事件
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewID == nil {
		c.NewID = ids.GenerateString
	}
	if c.Events == nil {
		c.Events = NopSink
	}
}

// ===== 数据结构 =====

// WsConn is the registry record for one user. Only the ConnManager
// creates, mutates or removes it.
type WsConn struct {
	UserID       string
	ConnID       string
	Channel      Channel
	Remote       string
	ConnectedAt  time.Time
	LastActivity time.Time
}

// ConnInfo is a read-only copy of a WsConn.
type ConnInfo struct {
	UserID       string    `json:"user_id"`
	ConnID       string    `json:"connection_id"`
	Remote       string    `json:"remote,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

type Metrics struct {
	ActiveConnections int     `json:"active_connections"`
	TotalConnections  uint64  `json:"total_connections"`
	MessagesRelayed   uint64  `json:"messages_relayed"`
	Errors            uint64  `json:"errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// ConnManager maps user id to exactly one live channel. All map access
// goes through mu; channel writes and closes happen after it is released.
type ConnManager struct {
	mu     sync.RWMutex
	conns  map[string]*WsConn
	closed bool

	conf      ManagerConf
	startedAt time.Time

	total   atomic.Uint64
	relayed atomic.Uint64
	errs    atomic.Uint64
}

// ===== 构造/关闭 =====

func NewConnManager() *ConnManager {
	return NewConnManagerWithConf(ManagerConf{})
}

func NewConnManagerWithConf(conf ManagerConf) *ConnManager {
	conf.norm()
	return &ConnManager{
		conns:     make(map[string]*WsConn),
		conf:      conf,
		startedAt: conf.Clock(),
	}
}

// Connect registers ch as the only channel for userID and returns the new
// connection id. A previous channel for the same user is removed and
// closed with "replaced by new connection".
func (m *ConnManager) Connect(userID string, ch Channel, remote string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUser
	}
	if ch == nil {
		return "", ErrNilChannel
	}
	now := m.conf.Clock()
	connID := m.conf.NewID()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	old := m.conns[userID]
	m.conns[userID] = &WsConn{
		UserID:       userID,
		ConnID:       connID,
		Channel:      ch,
		Remote:       remote,
		ConnectedAt:  now,
		LastActivity: now,
	}
	active := len(m.conns)
	m.mu.Unlock()

	m.total.Add(1)

	if old != nil {
		closeQuiet(old.Channel, CloseNormal, "replaced by new connection")
		logger.Info("connection superseded", zap.String("user", userID),
			zap.String("old_conn", old.ConnID), zap.String("conn", connID))
		m.emit(EventSuperseded, old, "replaced by new connection")
	}
	logger.Info("connected", zap.String("user", userID), zap.String("conn", connID),
		zap.String("remote", remote), zap.Int("active", active))
	m.emit(EventConnected, &WsConn{UserID: userID, ConnID: connID, Remote: remote, ConnectedAt: now}, "")
	return connID, nil
}

// Disconnect removes userID only while connID is still its current
// connection. Stale ids are a no-op.
func (m *ConnManager) Disconnect(userID, connID string) bool {
	m.mu.Lock()
	w, ok := m.conns[userID]
	if !ok || w.ConnID != connID {
		m.mu.Unlock()
		return false
	}
	delete(m.conns, userID)
	m.mu.Unlock()

	closeQuiet(w.Channel, CloseNormal, "")
	logger.Info("disconnected", zap.String("user", userID), zap.String("conn", connID))
	m.emit(EventDisconnected, w, "")
	return true
}

// Kick removes userID whatever its connection id, closing the channel
// with reason.
func (m *ConnManager) Kick(userID, reason string) bool {
	return m.kickWhere(userID, reason, func(*WsConn) bool { return true })
}

// KickIfOlder removes userID only when its current connection was
// accepted before the given time. A connection that is newer than a
// remote connect event stays. A zero time never kicks.
func (m *ConnManager) KickIfOlder(userID string, before time.Time, reason string) bool {
	if before.IsZero() {
		return false
	}
	return m.kickWhere(userID, reason, func(w *WsConn) bool { return w.ConnectedAt.Before(before) })
}

func (m *ConnManager) kickWhere(userID, reason string, match func(*WsConn) bool) bool {
	m.mu.Lock()
	w, ok := m.conns[userID]
	if ok && !match(w) {
		ok = false
	}
	if ok {
		delete(m.conns, userID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	closeQuiet(w.Channel, CloseNormal, reason)
	logger.Info("connection kicked", zap.String("user", userID), zap.String("conn", w.ConnID), zap.String("reason", reason))
	m.emit(EventSuperseded, w, reason)
	return true
}

// Touch 刷新最近活跃时间
func (m *ConnManager) Touch(userID string) bool {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.conns[userID]
	if !ok {
		return false
	}
	w.LastActivity = now
	return true
}

func (m *ConnManager) IsConnected(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[userID]
	return ok
}

// ListConnected returns the connected user ids, sorted.
func (m *ConnManager) ListConnected() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.conns))
	for u := range m.conns {
		out = append(out, u)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Send writes v to the current channel of userID. The lookup holds the
// read lock; the write does not.
func (m *ConnManager) Send(userID string, v any) bool {
	m.mu.RLock()
	w, ok := m.conns[userID]
	var ch Channel
	if ok {
		ch = w.Channel
	}
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if err := ch.WriteJSON(v); err != nil {
		m.errs.Add(1)
		logger.Warn("send failed", zap.String("user", userID), zap.Error(err))
		return false
	}
	m.relayed.Add(1)
	return true
}

// Snapshot copies every record.
func (m *ConnManager) Snapshot() []ConnInfo {
	m.mu.RLock()
	out := make([]ConnInfo, 0, len(m.conns))
	for _, w := range m.conns {
		out = append(out, ConnInfo{
			UserID:       w.UserID,
			ConnID:       w.ConnID,
			Remote:       w.Remote,
			ConnectedAt:  w.ConnectedAt,
			LastActivity: w.LastActivity,
		})
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *ConnManager) Metrics() Metrics {
	m.mu.RLock()
	active := len(m.conns)
	m.mu.RUnlock()
	uptime := m.conf.Clock().Sub(m.startedAt).Seconds()
	return Metrics{
		ActiveConnections: active,
		TotalConnections:  m.total.Load(),
		MessagesRelayed:   m.relayed.Load(),
		Errors:            m.errs.Load(),
		UptimeSeconds:     float64(int64(uptime*10)) / 10,
	}
}

// EvictIdle removes userID when connID is still current and the record
// is idle longer than inactivity or older than maxAge at now. The check
// runs under the lock, so a record touched after the caller's snapshot
// survives. It reports the eviction reason, empty when nothing happened.
func (m *ConnManager) EvictIdle(userID, connID string, now time.Time, inactivity, maxAge time.Duration) string {
	m.mu.Lock()
	w, ok := m.conns[userID]
	if !ok || w.ConnID != connID {
		m.mu.Unlock()
		return ""
	}
	reason := staleReason(w, now, inactivity, maxAge)
	if reason == "" {
		m.mu.Unlock()
		return ""
	}
	delete(m.conns, userID)
	m.mu.Unlock()

	closeQuiet(w.Channel, CloseGoingAway, reason)
	m.emit(EventEvicted, w, reason)
	return reason
}

func staleReason(w *WsConn, now time.Time, inactivity, maxAge time.Duration) string {
	if inactivity > 0 && now.Sub(w.LastActivity) > inactivity {
		return "inactive"
	}
	if maxAge > 0 && now.Sub(w.ConnectedAt) > maxAge {
		return "connection expired"
	}
	return ""
}

// Close closes every remaining channel once and rejects later Connects.
func (m *ConnManager) Close() {
	m.mu.Lock()
	m.closed = true
	all := make([]*WsConn, 0, len(m.conns))
	for _, w := range m.conns {
		all = append(all, w)
	}
	m.conns = make(map[string]*WsConn)
	m.mu.Unlock()

	for _, w := range all {
		closeQuiet(w.Channel, CloseGoingAway, "server shutting down")
		m.emit(EventDisconnected, w, "server shutting down")
	}
	logger.Info("connection manager closed", zap.Int("closed", len(all)))
}

// AttachPongHandler : 绑定 pong 回调，自动续期活跃时间
func (m *ConnManager) AttachPongHandler(ch *WsChannel, userID string) {
	if ch == nil || userID == "" {
		return
	}
	ch.OnPong(func() {
		_ = m.Touch(userID) // 连接可能刚好被清理
	})
}

func (m *ConnManager) emit(typ string, w *WsConn, reason string) {
	at := m.conf.Clock()
	if typ == EventConnected && !w.ConnectedAt.IsZero() {
		at = w.ConnectedAt // 跨节点比较新旧连接用
	}
	m.conf.Events.Publish(Event{
		Type:   typ,
		UserID: w.UserID,
		ConnID: w.ConnID,
		Remote: w.Remote,
		Reason: reason,
		Node:   m.conf.Node,
		At:     at,
	})
}

// ===== 工具函数 =====

// closeQuiet closes ch and swallows both errors and panics.
func closeQuiet(ch Channel, code int, reason string) {
	if ch == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while closing channel", zap.Any("panic", r))
		}
	}()
	_ = ch.Close(code, reason)
}
