package storage

import (
	"context"
	"encoding/json"
	"time"

	"PPSignal/service/presence"
	"PPSignal/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: im:presence:<user>
// value: JSON presence.Record, TTL bounds how long a silent user stays visible
func presenceKey(user string) string { return "im:presence:" + user }

// PresenceStore mirrors presence records into redis.
type PresenceStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewPresenceStore(rdb redis.Cmdable, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &PresenceStore{rdb: rdb, ttl: ttl}
}

// Save implements presence.Mirror. Offline users are deleted.
func (s *PresenceStore) Save(ctx context.Context, user string, r presence.Record) error {
	if r.Status == presence.StatusOffline {
		return errors.WithStack(s.rdb.Del(ctx, presenceKey(user)).Err())
	}
	b, err := json.Marshal(r)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(s.rdb.Set(ctx, presenceKey(user), b, s.ttl).Err())
}

// Lookup reads the mirrored record; ok is false when the key expired or
// was never written.
func (s *PresenceStore) Lookup(ctx context.Context, user string) (presence.Record, bool, error) {
	val, err := s.rdb.Get(ctx, presenceKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return presence.Offline(), false, nil
	}
	if err != nil {
		return presence.Offline(), false, errors.WithStack(err)
	}
	var r presence.Record
	if err := json.Unmarshal(val, &r); err != nil {
		return presence.Offline(), false, errs.WrapMsg(err, "decode presence", "user", user)
	}
	return r, true, nil
}

// Ping reports whether redis answers.
func (s *PresenceStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
