// Package db builds the PostgreSQL connection pool backing the remote
// notification store.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/CampusLink/notify-sync-backend/config"
	"github.com/CampusLink/notify-sync-backend/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool connects a pgx pool using the database configuration and verifies
// the connection with a ping before returning it.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	log := logger.GetLogger()

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Infow("Connected to database",
		"host", cfg.Host,
		"database", cfg.Name,
		"maxConns", poolConfig.MaxConns)

	return pool, nil
}
