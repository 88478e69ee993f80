package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)


// NewPool opens and pings a pgx pool. The queue claim path holds row locks
// only for the duration of one UPDATE, so a small pool goes a long way; the
// worker's concurrency is bounded by Concurrency, not by connections.
func NewPool(dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)

	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx,cfg)

	if err != nil {
		return nil, err
	}

	err = pool.Ping(ctx)

	if err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}