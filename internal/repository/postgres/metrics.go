package postgres

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
)

const insertMetricSQL = `INSERT INTO ` + tableMetrics + `
  (operation_type, hub_area, duration_ms, cache_hit, result_count, status, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// MetricsRepo appends perf records to the metrics table.
type MetricsRepo struct {
	db querier
}

// NewMetricsRepo creates a metrics sink.
func NewMetricsRepo(q querier) *MetricsRepo {
	return &MetricsRepo{db: q}
}

// Record inserts one row. error_message is NULL on success.
func (r *MetricsRepo) Record(ctx context.Context, rec perf.Record) error {
	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}
	_, err := r.db.Exec(ctx, insertMetricSQL,
		rec.Operation, rec.HubArea.KeyPart(), rec.DurationMs(), rec.CacheHit,
		rec.ResultCount, string(rec.Status), errMsg, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("record %s: %w", rec.Operation, err)
	}
	return nil
}
