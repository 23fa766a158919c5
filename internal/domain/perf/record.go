// Package perf holds the performance record emitted for every retrieval.
package perf

import (
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
)

// Status is the retrieval outcome.
type Status string

// Outcome constants.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// OperationContextRetrieval is the operation type recorded for pipeline runs.
const OperationContextRetrieval = "context_retrieval"

// Record is an append-only metrics sink row.
type Record struct {
	Operation    string
	HubArea      hub.Area
	Duration     time.Duration
	CacheHit     bool
	ResultCount  int
	Status       Status
	ErrorMessage string
	RecordedAt   time.Time
}

// DurationMs returns the duration in whole milliseconds.
func (r *Record) DurationMs() int64 { return r.Duration.Milliseconds() }
