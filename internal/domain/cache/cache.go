// Package cache holds the memoised retrieval result entry and its key derivation.
package cache

import (
	"strings"
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

// DefaultTTL is the freshness window for new entries.
const DefaultTTL = time.Hour

// Key derives the cache key: lower(trim(query)) + "|" + hub area or "all".
func Key(query string, area hub.Area) string {
	return strings.ToLower(strings.TrimSpace(query)) + "|" + area.KeyPart()
}

// Entry is a stored ranked result set.
type Entry struct {
	key            string
	payload        []byte
	hitCount       int64
	createdAt      time.Time
	lastAccessedAt time.Time
	expiresAt      time.Time
}

// New creates a fresh entry written at now, expiring after ttl. Hit count starts at zero.
func New(key string, payload []byte, now time.Time, ttl time.Duration) Entry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Entry{
		key:            key,
		payload:        payload,
		createdAt:      now,
		lastAccessedAt: now,
		expiresAt:      now.Add(ttl),
	}
}

// Reconstruct creates an Entry without validation (storage hydration).
func Reconstruct(
	key string, payload []byte, hitCount int64,
	createdAt, lastAccessedAt, expiresAt time.Time,
) Entry {
	return Entry{
		key: key, payload: payload, hitCount: hitCount,
		createdAt: createdAt, lastAccessedAt: lastAccessedAt, expiresAt: expiresAt,
	}
}

// Key returns the derived cache key.
func (e *Entry) Key() string { return e.key }

// Payload returns the serialized result set.
func (e *Entry) Payload() []byte { return e.payload }

// HitCount returns the number of times the entry was served.
func (e *Entry) HitCount() int64 { return e.hitCount }

// CreatedAt returns when the entry was written.
func (e *Entry) CreatedAt() time.Time { return e.createdAt }

// LastAccessedAt returns when the entry was last served.
func (e *Entry) LastAccessedAt() time.Time { return e.lastAccessedAt }

// ExpiresAt returns the explicit expiry timestamp.
func (e *Entry) ExpiresAt() time.Time { return e.expiresAt }

// IsFresh reports whether the entry may be served at now.
// Entries without an expiry are never fresh.
func (e *Entry) IsFresh(now time.Time) bool {
	if e.expiresAt.IsZero() {
		return false
	}
	return now.Before(e.expiresAt)
}
