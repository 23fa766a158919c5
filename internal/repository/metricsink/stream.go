// Package metricsink persists retrieval performance records to a capped Redis/Valkey stream.
package metricsink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
)

// DefaultMaxLen caps the stream when no limit is configured.
const DefaultMaxLen = 100_000

// store is the consumer interface for the metrics stream (ISP).
type store interface {
	XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error)
}

// Stream appends perf records with XADD MAXLEN ~.
type Stream struct {
	store  store
	key    string
	maxLen int64
}

// New creates a stream sink. An empty prefix uses domain.KeyPrefix.
func New(s store, keyPrefix string, maxLen int64) *Stream {
	if keyPrefix == "" {
		keyPrefix = domain.KeyPrefix
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Stream{store: s, key: keyPrefix + "perf_metrics", maxLen: maxLen}
}

// Record appends one row.
func (s *Stream) Record(ctx context.Context, rec perf.Record) error {
	if _, err := s.store.XAdd(ctx, s.key, s.maxLen, recordToFields(rec)); err != nil {
		return fmt.Errorf("record %s: %w", rec.Operation, err)
	}
	return nil
}

func recordToFields(rec perf.Record) map[string]string {
	fields := map[string]string{
		"operation_type": rec.Operation,
		"hub_area":       rec.HubArea.KeyPart(),
		"duration_ms":    strconv.FormatInt(rec.DurationMs(), 10),
		"cache_hit":      strconv.FormatBool(rec.CacheHit),
		"result_count":   strconv.Itoa(rec.ResultCount),
		"status":         string(rec.Status),
		"recorded_at":    strconv.FormatInt(rec.RecordedAt.UnixMilli(), 10),
	}
	if rec.ErrorMessage != "" {
		fields["error_message"] = rec.ErrorMessage
	}
	return fields
}
