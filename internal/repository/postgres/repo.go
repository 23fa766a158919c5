// Package postgres implements the chunk retriever, context cache and metrics sink on PostgreSQL + pgvector.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Table names. The schema is owned by the managed backend.
const (
	tableChunks    = "document_chunks"
	tableDocuments = "documents"
	tableCache     = "context_cache"
	tableMetrics   = "performance_metrics"
)

// querier is the consumer interface over pgxpool.Pool (ISP).
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
