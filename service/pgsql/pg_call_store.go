package pgsql

import (
	"context"
	"time"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const createCalls = `
CREATE TABLE IF NOT EXISTS calls (
	id          TEXT PRIMARY KEY,
	caller_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	call_type   TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ,
	ended_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS calls_caller_idx ON calls (caller_id, started_at DESC);
CREATE INDEX IF NOT EXISTS calls_receiver_idx ON calls (receiver_id, started_at DESC);`

const callColumns = `id, caller_id, receiver_id, call_type, status, started_at, updated_at, ended_at`

// PgCallStore keeps call history in postgres.
type PgCallStore struct {
	pool *pgxpool.Pool
}

// Open connects, pings and creates the calls table. An empty dsn returns
// the in-memory store.
func Open(ctx context.Context, dsn string) (CallStore, func(), error) {
	if dsn == "" {
		logger.Info("postgres disabled, call history kept in memory")
		return NewMemoryCallStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, errs.WrapMsg(err, "pgxpool")
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, nil, errs.WrapMsg(err, "postgres ping")
	}
	if _, err := pool.Exec(pctx, createCalls); err != nil {
		pool.Close()
		return nil, nil, errs.WrapMsg(err, "create calls table")
	}
	logger.Info("postgres connected", zap.Int32("max_conns", pool.Config().MaxConns))
	return &PgCallStore{pool: pool}, pool.Close, nil
}

func (s *PgCallStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PgCallStore) Create(ctx context.Context, callerID, receiverID, callType string) (Call, error) {
	c, err := newCall(callerID, receiverID, callType, time.Now().UTC())
	if err != nil {
		return Call{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO calls (id, caller_id, receiver_id, call_type, status, started_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.CallerID, c.ReceiverID, c.CallType, c.Status, c.StartedAt)
	if err != nil {
		return Call{}, errs.WrapMsg(err, "insert call", "caller", c.CallerID)
	}
	return c, nil
}

func (s *PgCallStore) Update(ctx context.Context, id, status string, endedAt *time.Time) (Call, error) {
	if status == "" {
		return Call{}, errs.ErrArgs.WrapMsg("status required")
	}
	now := time.Now().UTC()
	rows, err := s.pool.Query(ctx,
		`UPDATE calls SET status = $2, updated_at = $3, ended_at = COALESCE($4, ended_at)
		 WHERE id = $1 RETURNING `+callColumns,
		id, status, now, endTime(status, endedAt, now))
	if err != nil {
		return Call{}, errs.WrapMsg(err, "update call", "id", id)
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Call])
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, errs.ErrRecordNotFound.WrapMsg("call not found", "id", id)
	}
	if err != nil {
		return Call{}, errs.WrapMsg(err, "scan call", "id", id)
	}
	return c, nil
}

func (s *PgCallStore) History(ctx context.Context, userID string, limit int) ([]Call, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+callColumns+` FROM calls WHERE caller_id = $1 OR receiver_id = $1
		 ORDER BY started_at DESC LIMIT $2`,
		userID, clampLimit(limit))
	if err != nil {
		return nil, errs.WrapMsg(err, "query calls", "user", userID)
	}
	calls, err := pgx.CollectRows(rows, pgx.RowToStructByName[Call])
	if err != nil {
		return nil, errs.WrapMsg(err, "scan calls", "user", userID)
	}
	return calls, nil
}
