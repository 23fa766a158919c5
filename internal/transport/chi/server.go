package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hubcontext/internal/domain"
	"github.com/kailas-cloud/hubcontext/internal/domain/hub"
	"github.com/kailas-cloud/hubcontext/internal/domain/query"
	"github.com/kailas-cloud/hubcontext/internal/domain/result"
	domusage "github.com/kailas-cloud/hubcontext/internal/domain/usage"
	healthuc "github.com/kailas-cloud/hubcontext/internal/usecase/health"
	retrievaluc "github.com/kailas-cloud/hubcontext/internal/usecase/retrieval"
)

// maxBodyBytes caps request bodies. Queries are bounded far below this.
const maxBodyBytes = 1 << 20

// Retriever runs the context retrieval pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, q query.Query) (retrievaluc.Response, error)
	Evict(ctx context.Context, text string, area hub.Area) error
}

// UsageReporter builds embedding usage reports.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the HTTP API.
type Server struct {
	retrieval     Retriever
	usage         UsageReporter
	health        HealthChecker
	limits        query.Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval Retriever,
	usage UsageReporter,
	health HealthChecker,
	limits query.Limits,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		usage:     usage,
		health:    health,
		limits:    limits,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest),
		upstreamAuthHandler,
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests),
		upstreamTransientHandler,
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout),
	}
	return s
}

type searchRequest struct {
	Query               string   `json:"query"`
	HubArea             string   `json:"hubArea"`
	SimilarityThreshold *float64 `json:"similarityThreshold"`
	MatchCount          *int     `json:"matchCount"`
	UseCached           *bool    `json:"useCached"`
}

type performance struct {
	DurationMs     int64                 `json:"durationMs"`
	CacheHit       bool                  `json:"cacheHit"`
	QualityMetrics result.QualityMetrics `json:"qualityMetrics"`
}

type searchResponse struct {
	Results     []result.Item `json:"results"`
	Source      result.Source `json:"source"`
	Performance performance   `json:"performance"`
}

// SearchContext handles POST /v1/context/search.
func (s *Server) SearchContext(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.handleDomainError(w, err)
		return
	}

	q, err := query.New(query.Params{
		Text:       req.Query,
		HubArea:    req.HubArea,
		Threshold:  req.SimilarityThreshold,
		MatchCount: req.MatchCount,
		UseCached:  req.UseCached,
	}, s.limits)
	if err != nil {
		s.handleDomainError(w, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}

	// The pipeline outlives a disconnecting client so the remote call and
	// the cache write still complete.
	ctx, usage := domain.NewContextWithUsage(context.WithoutCancel(r.Context()))
	resp, err := s.retrieval.Retrieve(ctx, q)
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	results := resp.Results
	if results == nil {
		results = []result.Item{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Source:  resp.Source,
		Performance: performance{
			DurationMs:     resp.Duration.Milliseconds(),
			CacheHit:       resp.CacheHit,
			QualityMetrics: resp.Quality,
		},
	})
}

type evictRequest struct {
	Query   string `json:"query"`
	HubArea string `json:"hubArea"`
}

// EvictCache handles DELETE /v1/context/cache.
func (s *Server) EvictCache(w http.ResponseWriter, r *http.Request) {
	var req evictRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.handleDomainError(w, fmt.Errorf("%w: query is required", domain.ErrInvalidInput))
		return
	}
	area, err := hub.Parse(req.HubArea)
	if err != nil {
		s.handleDomainError(w, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}

	if err := s.retrieval.Evict(r.Context(), req.Query, area); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type budgetStatus struct {
	TokensLimit     int64      `json:"tokensLimit"`
	TokensUsed      int64      `json:"tokensUsed"`
	TokensRemaining int64      `json:"tokensRemaining"`
	IsExhausted     bool       `json:"isExhausted"`
	ResetsAt        *time.Time `json:"resetsAt,omitempty"`
}

type usageResponse struct {
	Period        domusage.Period `json:"period"`
	PeriodStartAt *time.Time      `json:"periodStartAt,omitempty"`
	PeriodEndAt   *time.Time      `json:"periodEndAt,omitempty"`
	Budget        budgetStatus    `json:"budget"`
}

// GetUsage handles GET /v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
		return
	}

	report := s.usage.GetReport(r.Context(), period)
	b := report.Budget()

	resp := usageResponse{
		Period: report.Period(),
		Budget: budgetStatus{
			TokensLimit:     b.TokensLimit(),
			TokensUsed:      b.TokensUsed(),
			TokensRemaining: b.TokensRemaining(),
			IsExhausted:     b.IsExhausted(),
		},
	}
	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}
	if b.ResetsAt() > 0 {
		resetsAt := time.UnixMilli(b.ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// HealthCheck handles GET /health.
// A degraded service still answers from its cache, so only an unreachable
// database reports 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: report.Status, Checks: report.Checks})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	return nil
}

// setEmbeddingHeaders reports billed tokens. Vectors served from the embedding
// cache cost nothing and leave the header unset.
func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.TotalTokens > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// safeMessage returns a client-facing message without exposing internals.
// Input errors carry the validation detail, upstream errors only their sentinel.
func safeMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrUpstreamAuth,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrRateLimited,
		domain.ErrUpstreamTransient,
		domain.ErrVectorDimMismatch,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, safeMessage(err))
		return true
	}
}

// upstreamAuthHandler preserves the provider's 401 or 403.
func upstreamAuthHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrUpstreamAuth) {
		return false
	}
	status := http.StatusUnauthorized
	if code, ok := domain.UpstreamStatus(err); ok && code == http.StatusForbidden {
		status = http.StatusForbidden
	}
	writeError(w, status, safeMessage(err))
	return true
}

// upstreamTransientHandler maps an exhausted transient failure:
// 429 stays 429, 5xx becomes 502, network failures become 503.
func upstreamTransientHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrUpstreamTransient) {
		return false
	}
	status := http.StatusBadGateway
	code, ok := domain.UpstreamStatus(err)
	switch {
	case ok && code == http.StatusTooManyRequests:
		status = http.StatusTooManyRequests
	case !ok || code == 0:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, safeMessage(err))
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Warn("Request failed", zap.Error(err))
			return
		}
	}
	s.logger.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
