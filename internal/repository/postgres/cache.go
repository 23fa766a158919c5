package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/hubcontext/internal/domain/cache"
)

const (
	getCacheSQL = `SELECT results, hit_count, created_at, last_accessed_at, expires_at
FROM ` + tableCache + ` WHERE cache_key = $1`

	// Overwrites reset hit_count and every timestamp: a recomputed entry starts fresh.
	upsertCacheSQL = `INSERT INTO ` + tableCache + `
  (cache_key, results, hit_count, created_at, last_accessed_at, expires_at)
VALUES ($1, $2, 0, $3, $4, $5)
ON CONFLICT (cache_key) DO UPDATE SET
  results = EXCLUDED.results,
  hit_count = 0,
  created_at = EXCLUDED.created_at,
  last_accessed_at = EXCLUDED.last_accessed_at,
  expires_at = EXCLUDED.expires_at`

	touchCacheSQL = `UPDATE ` + tableCache + `
SET hit_count = hit_count + 1, last_accessed_at = $2
WHERE cache_key = $1`

	evictCacheSQL = `DELETE FROM ` + tableCache + ` WHERE cache_key = $1`
)

// CacheRepo implements usecase/retrieval.Cache on a single upsert table.
type CacheRepo struct {
	db querier
}

// NewCacheRepo creates a context cache repository.
func NewCacheRepo(q querier) *CacheRepo {
	return &CacheRepo{db: q}
}

// Get loads an entry by key. Staleness is left to the caller.
func (r *CacheRepo) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	var (
		payload                          []byte
		hits                             int64
		createdAt, lastAccess, expiresAt time.Time
	)
	err := r.db.QueryRow(ctx, getCacheSQL, key).Scan(&payload, &hits, &createdAt, &lastAccess, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	return cache.Reconstruct(key, payload, hits, createdAt, lastAccess, expiresAt), true, nil
}

// Put upserts an entry by key.
func (r *CacheRepo) Put(ctx context.Context, e cache.Entry) error {
	_, err := r.db.Exec(ctx, upsertCacheSQL,
		e.Key(), e.Payload(), e.CreatedAt(), e.LastAccessedAt(), e.ExpiresAt())
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Touch increments hit_count and bumps last_accessed_at.
func (r *CacheRepo) Touch(ctx context.Context, key string, now time.Time) error {
	if _, err := r.db.Exec(ctx, touchCacheSQL, key, now); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Evict deletes an entry. Evicting a missing key is not an error.
func (r *CacheRepo) Evict(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, evictCacheSQL, key); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}
