package main

import (
	"context"
	"time"

	"PPSignal/global/config"
	"PPSignal/logger"
	"PPSignal/service/chat"
	"PPSignal/service/kafka"
	"PPSignal/service/mgo"
	"PPSignal/service/natsx"
	"PPSignal/service/pgsql"
	"PPSignal/service/presence"
	"PPSignal/service/rpc"
	"PPSignal/service/storage"
	redisx "PPSignal/service/storage/redis"
	"PPSignal/tools/errs"
	"PPSignal/tools/security"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backends holds every optional external dependency. A nil field means
// the backend is disabled and an in-memory or no-op version is used.
type backends struct {
	redis     *redis.Client
	presence  *storage.PresenceStore
	nats      *natsx.NatsxClient
	publisher *natsx.EventPublisher
	stores    *mgo.Stores
	calls     pgsql.CallStore
	closeDB   func()
	reports   *kafka.ReportProducer
	cipher    *security.Cipher
}

func openBackends(ctx context.Context, cfg *config.AppConfig, node string) *backends {
	b := &backends{closeDB: func() {}}

	rdb, err := redisx.Open(ctx, cfg.Redis)
	switch {
	case err != nil:
		logger.Warn("redis unavailable, presence mirror disabled", zap.Error(err))
	case rdb != nil:
		b.redis = rdb
		b.presence = storage.NewPresenceStore(rdb, cfg.Presence.MirrorTTL)
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Nats.URL != "" {
		nc, err := natsx.NewNatsxClient(cfg.Nats)
		if err != nil {
			logger.Warn("nats unavailable, lifecycle events dropped", zap.Error(err))
		} else {
			b.nats = nc
			b.publisher = natsx.NewEventPublisher(nc, nc.Prefix(), 0)
		}
	}

	b.stores = mgo.Open(ctx, cfg.Mongo)

	calls, closeDB, err := pgsql.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Warn("postgres unavailable, call history in memory", zap.Error(err))
		calls = pgsql.NewMemoryCallStore()
	} else {
		b.closeDB = closeDB
	}
	b.calls = calls

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewReportProducer(cfg.Kafka)
		if err != nil {
			logger.Warn("kafka unavailable, reports only logged", zap.Error(err))
		} else {
			b.reports = p
		}
	}

	c, err := security.NewCipher(cfg.Crypto.Key)
	if err != nil {
		logger.Warn("invalid crypto key, encryption disabled", zap.Error(err))
		c, _ = security.NewCipher("")
	}
	b.cipher = c
	logger.Info("backends ready", zap.Any("backends", b.names()), zap.String("node", node))
	return b
}

func (b *backends) events() chat.EventSink {
	if b.publisher == nil {
		return nil
	}
	return b.publisher
}

func natsWatch(b *backends, m *chat.ConnManager, node string) error {
	return natsx.WatchRemoteConnects(b.nats, m, node)
}

func (b *backends) trackerOptions() []presence.Option {
	var opts []presence.Option
	if b.presence != nil {
		opts = append(opts, presence.WithMirror(b.presence))
	}
	if b.publisher != nil {
		opts = append(opts, presence.WithNotifier(b.publisher))
	}
	return opts
}

func (b *backends) names() map[string]string {
	out := map[string]string{
		"messages": b.stores.Backend(),
		"files":    b.stores.Backend(),
		"calls":    "memory",
		"reports":  "log",
		"presence": "memory",
		"events":   "none",
	}
	if _, ok := b.calls.(*pgsql.PgCallStore); ok {
		out["calls"] = "postgres"
	}
	if b.reports != nil {
		out["reports"] = "kafka:" + b.reports.Topic()
	}
	if b.presence != nil {
		out["presence"] = "memory+redis"
	}
	if b.nats != nil {
		out["events"] = "nats:" + b.nats.Prefix()
	}
	return out
}

var errNatsDisconnected = errs.ErrUnavailable.WrapMsg("nats disconnected")

type pinger interface {
	Ping(ctx context.Context) error
}

// probes lists only the configured backends.
func (b *backends) probes() map[string]func(context.Context) error {
	out := map[string]func(context.Context) error{}
	if b.redis != nil {
		out["redis"] = b.presence.Ping
	}
	if b.stores.Backend() == "mongo" {
		out["mongo"] = b.stores.Ping
	}
	if p, ok := b.calls.(pinger); ok {
		out["postgres"] = p.Ping
	}
	if b.nats != nil {
		nc := b.nats
		out["nats"] = func(context.Context) error {
			if !nc.Connected() {
				return errNatsDisconnected
			}
			return nil
		}
	}
	return out
}

func (b *backends) rpcProbes() map[string]rpc.Probe {
	out := map[string]rpc.Probe{}
	for n, p := range b.probes() {
		out[n] = p
	}
	return out
}

func (b *backends) eventsDropped() func() uint64 {
	if b.publisher == nil {
		return nil
	}
	return b.publisher.Dropped
}

func (b *backends) close() {
	if b.publisher != nil {
		b.publisher.Close()
	}
	if b.nats != nil {
		if err := b.nats.Close(); err != nil {
			logger.Warn("nats close", zap.Error(err))
		}
	}
	if b.reports != nil {
		if err := b.reports.Close(); err != nil {
			logger.Warn("kafka close", zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.stores.Close(ctx); err != nil {
		logger.Warn("mongo close", zap.Error(err))
	}
	b.closeDB()
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
