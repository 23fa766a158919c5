// Package postgres opens the pgx pool used by the PostgreSQL backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Pool defaults applied when Config leaves them unset.
const (
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultMaxConnLifetime  = time.Hour
	DefaultMaxConnIdleTime  = 30 * time.Minute
	DefaultReadinessTimeout = 10 * time.Second
)

// Config holds connection parameters for the PostgreSQL pool.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32

	// ReadinessTimeout bounds how long NewPool waits for the server to answer.
	ReadinessTimeout time.Duration
}

// NewPool parses the DSN, registers pgvector types on every connection and
// waits until the server answers a ping.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	applyPoolDefaults(pc, cfg)

	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	timeout := cfg.ReadinessTimeout
	if timeout <= 0 {
		timeout = DefaultReadinessTimeout
	}
	if err := WaitForReady(ctx, pool, timeout); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func applyPoolDefaults(pc *pgxpool.Config, cfg Config) {
	pc.MaxConns = DefaultMaxConns
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = DefaultMinConns
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	pc.MaxConnLifetime = DefaultMaxConnLifetime
	pc.MaxConnIdleTime = DefaultMaxConnIdleTime
}

type pinger interface {
	Ping(ctx context.Context) error
}

// WaitForReady polls Ping until the server responds or timeout expires.
func WaitForReady(ctx context.Context, q pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := q.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
