package metricsink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/perf"
)

type mockStore struct {
	xaddFn func(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error)
}

func (m *mockStore) XAdd(ctx context.Context, stream string, maxLen int64, fields map[string]string) (string, error) {
	if m.xaddFn != nil {
		return m.xaddFn(ctx, stream, maxLen, fields)
	}
	return "0-1", nil
}

func TestRecord(t *testing.T) {
	var gotStream string
	var gotMax int64
	var got map[string]string
	ms := &mockStore{
		xaddFn: func(_ context.Context, stream string, maxLen int64, fields map[string]string) (string, error) {
			gotStream, gotMax, got = stream, maxLen, fields
			return "1-0", nil
		},
	}

	sink := New(ms, "", 0)
	err := sink.Record(context.Background(), perf.Record{
		Operation:   perf.OperationContextRetrieval,
		HubArea:     hub.Sales,
		Duration:    1500 * time.Millisecond,
		CacheHit:    true,
		ResultCount: 3,
		Status:      perf.StatusSuccess,
		RecordedAt:  time.UnixMilli(42),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotStream != "hubcontext:perf_metrics" || gotMax != DefaultMaxLen {
		t.Errorf("stream=%q maxLen=%d", gotStream, gotMax)
	}
	want := map[string]string{
		"operation_type": "context_retrieval",
		"hub_area":       "sales",
		"duration_ms":    "1500",
		"cache_hit":      "true",
		"result_count":   "3",
		"status":         "success",
		"recorded_at":    "42",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["error_message"]; ok {
		t.Error("error_message must be omitted on success")
	}
}

func TestRecord_ErrorRow(t *testing.T) {
	var got map[string]string
	ms := &mockStore{
		xaddFn: func(_ context.Context, _ string, _ int64, fields map[string]string) (string, error) {
			got = fields
			return "1-0", nil
		},
	}
	_ = New(ms, "", 10).Record(context.Background(), perf.Record{
		Operation: perf.OperationContextRetrieval, Status: perf.StatusError, ErrorMessage: "embed failed",
	})
	if got["error_message"] != "embed failed" || got["hub_area"] != "all" {
		t.Errorf("fields = %v", got)
	}
}

func TestRecord_StoreError(t *testing.T) {
	boom := errors.New("boom")
	ms := &mockStore{
		xaddFn: func(context.Context, string, int64, map[string]string) (string, error) { return "", boom },
	}
	if err := New(ms, "", 1).Record(context.Background(), perf.Record{}); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
