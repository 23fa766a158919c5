// Package ctxcache stores memoised retrieval results as Redis/Valkey hashes.
package ctxcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/cache"
)

// Hash field names.
const (
	fieldPayload        = "payload"
	fieldCacheKey       = "cache_key"
	fieldHitCount       = "hit_count"
	fieldCreatedAt      = "created_at"
	fieldLastAccessedAt = "last_accessed_at"
	fieldExpiresAt      = "expires_at"
)

// gcFactor stretches the Redis TTL past the logical expiry.
// Freshness is judged by expires_at; the key TTL only reclaims memory.
const gcFactor = 2

// store is the consumer interface for the context cache (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error
}

// Repo implements usecase/retrieval.Cache.
type Repo struct {
	store  store
	prefix string
}

// New creates a context cache repository. An empty prefix uses domain.KeyPrefix.
func New(s store, keyPrefix string) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	return &Repo{store: s, prefix: keyPrefix + "ctx_cache:"}
}

// storageKey hashes the cache key so arbitrary query text maps to a bounded Redis key.
func (r *Repo) storageKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return r.prefix + hex.EncodeToString(h[:])
}

// Get loads an entry. found is false when the key is absent or the hash is incomplete.
// Staleness is left to the caller.
func (r *Repo) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	h, err := r.store.HGetAll(ctx, r.storageKey(key))
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	e, ok := hashToEntry(key, h)
	return e, ok, nil
}

// Put upserts an entry, replacing payload and timestamps and resetting the hit count.
func (r *Repo) Put(ctx context.Context, e cache.Entry) error {
	ttl := e.ExpiresAt().Sub(e.CreatedAt())
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if err := r.store.HSetWithTTL(ctx, r.storageKey(e.Key()), entryToHash(e), gcFactor*ttl); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Touch records a hit: increments hit_count and bumps last_accessed_at.
// A key that vanished since Get is left alone so no TTL-less hash is created.
func (r *Repo) Touch(ctx context.Context, key string, now time.Time) error {
	sk := r.storageKey(key)

	exists, err := r.store.Exists(ctx, sk)
	if err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	if !exists {
		return nil
	}

	if _, err := r.store.HIncrBy(ctx, sk, fieldHitCount, 1); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	if err := r.store.HSet(ctx, sk, map[string]string{fieldLastAccessedAt: formatTime(now)}); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Evict removes an entry. Evicting a missing key is not an error.
func (r *Repo) Evict(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, r.storageKey(key)); err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	return nil
}

func entryToHash(e cache.Entry) map[string]string {
	return map[string]string{
		fieldPayload:        string(e.Payload()),
		fieldCacheKey:       e.Key(),
		fieldHitCount:       strconv.FormatInt(e.HitCount(), 10),
		fieldCreatedAt:      formatTime(e.CreatedAt()),
		fieldLastAccessedAt: formatTime(e.LastAccessedAt()),
		fieldExpiresAt:      formatTime(e.ExpiresAt()),
	}
}

func hashToEntry(key string, h map[string]string) (cache.Entry, bool) {
	payload, ok := h[fieldPayload]
	if !ok || payload == "" {
		return cache.Entry{}, false
	}
	hits, _ := strconv.ParseInt(h[fieldHitCount], 10, 64)
	return cache.Reconstruct(
		key,
		[]byte(payload),
		hits,
		parseTime(h[fieldCreatedAt]),
		parseTime(h[fieldLastAccessedAt]),
		parseTime(h[fieldExpiresAt]),
	), true
}

// Timestamps are stored as Unix milliseconds.
func formatTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// parseTime returns the zero time for missing or malformed values,
// which makes the entry stale.
func parseTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
