package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/cache"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		mock.Close()
	})
	return mock
}

var chunkColumns = []string{
	"id", "document_id", "content", "chunk_index", "metadata", "similarity", "title", "hub_areas",
}

// --- chunks ---

func TestChunkRepo_Search(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`SELECT c\.id::text.+FROM document_chunks c\s+JOIN documents d.+>= \$2\s+ORDER BY c\.embedding <=> \$1\s+LIMIT \$3`).
		WithArgs(pgxmock.AnyArg(), 0.7, 10).
		WillReturnRows(pgxmock.NewRows(chunkColumns).
			AddRow("c1", "d1", "intro text", 0, []byte(`{"position_label":"introduction"}`), 0.91, "Guide", []string{"sales"}).
			AddRow("c2", "d2", "other text", 2, []byte(`{}`), 0.74, "", []string{}))

	chunks, err := NewChunkRepo(mock, false).Search(context.Background(), query.Candidates{
		Vector: []float32{0.1, 0.2}, Threshold: 0.7, Limit: 10, HubArea: hub.Sales,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	c := chunks[0]
	if c.ID() != "c1" || c.DocumentTitle() != "Guide" || c.Similarity() != 0.91 {
		t.Errorf("chunk = %s %q %v", c.ID(), c.DocumentTitle(), c.Similarity())
	}
	if meta := c.Metadata(); meta.PositionLabel() != "introduction" {
		t.Errorf("position label = %q", meta.PositionLabel())
	}
	if !hub.Contains(c.HubAreas(), hub.Sales) {
		t.Errorf("hub areas = %v", c.HubAreas())
	}
	if chunks[1].Position() != 2 {
		t.Errorf("position = %d", chunks[1].Position())
	}
}

func TestChunkRepo_SearchHubPrefilter(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`AND \$4 = ANY\(d\.hub_areas\)`).
		WithArgs(pgxmock.AnyArg(), 0.5, 4, "legal").
		WillReturnRows(pgxmock.NewRows(chunkColumns))

	chunks, err := NewChunkRepo(mock, true).Search(context.Background(), query.Candidates{
		Vector: []float32{1}, Threshold: 0.5, Limit: 4, HubArea: hub.Legal,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks == nil || len(chunks) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", chunks)
	}
}

func TestChunkRepo_SearchErrors(t *testing.T) {
	mock := newMock(t)
	repo := NewChunkRepo(mock, false)

	if _, err := repo.Search(context.Background(), query.Candidates{Limit: 3}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	boom := errors.New("connection reset")
	mock.ExpectQuery(`FROM document_chunks`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)
	if _, err := repo.Search(context.Background(), query.Candidates{Vector: []float32{1}, Limit: 3}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped query error, got %v", err)
	}
}

// --- cache ---

func TestCacheRepo_Get(t *testing.T) {
	mock := newMock(t)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT results, hit_count, created_at, last_accessed_at, expires_at\s+FROM context_cache WHERE cache_key = \$1`).
		WithArgs("q|all").
		WillReturnRows(pgxmock.NewRows([]string{"results", "hit_count", "created_at", "last_accessed_at", "expires_at"}).
			AddRow([]byte(`[]`), int64(7), created, created.Add(time.Minute), created.Add(time.Hour)))

	e, found, err := NewCacheRepo(mock).Get(context.Background(), "q|all")
	if err != nil || !found {
		t.Fatalf("Get = %v, %v", found, err)
	}
	if e.HitCount() != 7 || string(e.Payload()) != "[]" || !e.ExpiresAt().Equal(created.Add(time.Hour)) {
		t.Errorf("entry = hits %d payload %s expires %v", e.HitCount(), e.Payload(), e.ExpiresAt())
	}
}

func TestCacheRepo_GetMiss(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM context_cache`).WithArgs("q|all").WillReturnError(pgx.ErrNoRows)

	_, found, err := NewCacheRepo(mock).Get(context.Background(), "q|all")
	if err != nil || found {
		t.Errorf("Get = %v, %v", found, err)
	}
}

func TestCacheRepo_PutUpsertsAndResetsHits(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := cache.New("q|sales", []byte(`[{"chunk_id":"c1"}]`), now, time.Hour)

	mock.ExpectExec(`INSERT INTO context_cache.+ON CONFLICT \(cache_key\) DO UPDATE SET.+hit_count = 0`).
		WithArgs("q|sales", []byte(`[{"chunk_id":"c1"}]`), now, now, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := NewCacheRepo(mock).Put(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCacheRepo_TouchAndEvict(t *testing.T) {
	mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE context_cache\s+SET hit_count = hit_count \+ 1, last_accessed_at = \$2`).
		WithArgs("q|all", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM context_cache WHERE cache_key = \$1`).
		WithArgs("q|all").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewCacheRepo(mock)
	if err := repo.Touch(context.Background(), "q|all", now); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := repo.Evict(context.Background(), "q|all"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
}

func TestCacheRepo_PutError(t *testing.T) {
	mock := newMock(t)
	boom := errors.New("boom")
	mock.ExpectExec(`INSERT INTO context_cache`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(boom)

	err := NewCacheRepo(mock).Put(context.Background(), cache.New("k", nil, time.Now(), time.Minute))
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

// --- metrics ---

func TestMetricsRepo_Record(t *testing.T) {
	mock := newMock(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := "embedding provider error"

	mock.ExpectExec(`INSERT INTO performance_metrics`).
		WithArgs("context_retrieval", "all", int64(250), false, 0, "error", &msg, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := NewMetricsRepo(mock).Record(context.Background(), perf.Record{
		Operation:    perf.OperationContextRetrieval,
		Duration:     250 * time.Millisecond,
		Status:       perf.StatusError,
		ErrorMessage: msg,
		RecordedAt:   at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMetricsRepo_RecordSuccessHasNullError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO performance_metrics`).
		WithArgs("context_retrieval", "finance", int64(0), true, 3, "success", (*string)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := NewMetricsRepo(mock).Record(context.Background(), perf.Record{
		Operation:   perf.OperationContextRetrieval,
		HubArea:     hub.Finance,
		CacheHit:    true,
		ResultCount: 3,
		Status:      perf.StatusSuccess,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
