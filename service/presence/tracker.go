package presence

import (
	"context"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	ProtoWebSocket = "WebSocket"
	ProtoUDP       = "UDP"
	ProtoHTTP      = "HTTP"
)

// Record is the last known presence of one user.
type Record struct {
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen"`
	Protocol string     `json:"protocol,omitempty"`
	IP       string     `json:"ip,omitempty"`
	Port     int        `json:"port,omitempty"`
}

// Offline is returned for users never seen.
func Offline() Record { return Record{Status: StatusOffline} }

// Mirror copies every update to an external store.
type Mirror interface {
	Save(ctx context.Context, userID string, r Record) error
}

// Notifier is told about every update after it is stored.
type Notifier interface {
	PresenceChanged(userID string, r Record)
}

type Option func(*Tracker)

func WithMirror(m Mirror) Option { return func(t *Tracker) { t.mirror = m } }

func WithNotifier(n Notifier) Option { return func(t *Tracker) { t.notifier = n } }

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.clock = now } }

// Tracker is a last-write-wins map from user id to Record.
type Tracker struct {
	mu      sync.Mutex
	records map[string]Record

	clock         func() time.Time
	mirror        Mirror
	notifier      Notifier
	mirrorTimeout time.Duration
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		records:       make(map[string]Record),
		clock:         time.Now,
		mirrorTimeout: 2 * time.Second,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) Now() time.Time { return t.clock() }

// Update overwrites the record of userID. An empty status means online.
func (t *Tracker) Update(userID, status, protocol string) (Record, error) {
	return t.update(userID, status, protocol, nil)
}

// UpdateFrom is Update for datagram sources; addr lands in ip/port.
func (t *Tracker) UpdateFrom(userID, status, protocol string, addr *net.UDPAddr) (Record, error) {
	return t.update(userID, status, protocol, addr)
}

func (t *Tracker) update(userID, status, protocol string, addr *net.UDPAddr) (Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Record{}, errs.ErrArgs.WrapMsg("empty user id")
	}
	if status == "" {
		status = StatusOnline
	}
	now := t.clock()
	r := Record{Status: status, LastSeen: &now, Protocol: protocol}
	if addr != nil {
		r.IP = addr.IP.String()
		r.Port = addr.Port
	}

	t.mu.Lock()
	t.records[userID] = r
	t.mu.Unlock()

	t.propagate(userID, r)
	return r, nil
}

// propagate runs outside the lock; failures never touch the in-memory record.
func (t *Tracker) propagate(userID string, r Record) {
	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.mirrorTimeout)
		if err := t.mirror.Save(ctx, userID, r); err != nil {
			logger.Warn("presence mirror save failed", zap.String("user", userID), zap.Error(err))
		}
		cancel()
	}
	if t.notifier != nil {
		t.notifier.PresenceChanged(userID, r)
	}
}

// Get returns the record of userID, or Offline when unknown.
func (t *Tracker) Get(userID string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[userID]; ok {
		return r
	}
	return Offline()
}

// GetAll returns a copy of every record.
func (t *Tracker) GetAll() map[string]Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Record, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// Active returns records seen within the last window, whatever their status.
func (t *Tracker) Active(within time.Duration) map[string]Record {
	cutoff := t.clock().Add(-within)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Record)
	for k, v := range t.records {
		if v.LastSeen != nil && v.LastSeen.After(cutoff) {
			out[k] = v
		}
	}
	return out
}

// Users returns the tracked user ids, sorted.
func (t *Tracker) Users() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.records))
	for k := range t.records {
		out = append(out, k)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}
