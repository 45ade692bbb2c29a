package mgo

import (
	"context"
	"time"

	"PPSignal/data/database/mgo/mongoutil"
	"PPSignal/global/config"
	"PPSignal/logger"

	"go.uber.org/zap"
)

// Stores bundles the message and file stores with their backend.
type Stores struct {
	Messages MessageStore
	Files    FileStore
	client   *mongoutil.Client
}

// Open connects to mongo when a uri is configured; otherwise (or when the
// connection fails) both stores run in memory.
func Open(ctx context.Context, c config.MongoConfig) *Stores {
	if c.URI == "" {
		logger.Info("mongo disabled, using in-memory message and file stores")
		return memoryStores()
	}
	cli, err := mongoutil.NewMongoDB(ctx, mongoutil.FromAppConfig(c))
	if err != nil {
		logger.Warn("mongo unavailable, using in-memory stores", zap.Error(err))
		return memoryStores()
	}
	msgs := NewMongoMessageStore(cli.GetDB())
	ictx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := msgs.EnsureIndexes(ictx); err != nil {
		logger.Warn("ensure message indexes failed", zap.Error(err))
	}
	logger.Info("mongo connected", zap.String("database", c.Database))
	return &Stores{
		Messages: msgs,
		Files:    NewGridFSStore(cli.GetDB()),
		client:   cli,
	}
}

func memoryStores() *Stores {
	return &Stores{Messages: NewMemoryMessageStore(), Files: NewMemoryFileStore()}
}

// Backend is "mongo" or "memory".
func (s *Stores) Backend() string {
	if s.client == nil {
		return "memory"
	}
	return "mongo"
}

// Ping reports backend reachability; the memory backend is always up.
func (s *Stores) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx)
}

func (s *Stores) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Close(ctx)
}
