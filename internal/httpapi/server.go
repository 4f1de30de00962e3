// Package httpapi exposes the assistant over HTTP with chi.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"finassist/internal/domain"
	"finassist/internal/metrics"
	"finassist/internal/narrative"
	"finassist/internal/service"
	"finassist/internal/stream"
)

// Assistant is the set of operations served over HTTP.
type Assistant interface {
	ListCases(ctx context.Context) ([]*domain.Case, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	CreateCase(ctx context.Context, in service.NewCase) (*domain.Case, error)
	SendMessage(ctx context.Context, caseID string, sender domain.Sender, content string) (domain.Message, error)
	AttachDocument(ctx context.Context, caseID, filename, text string) (service.Upload, error)
	Documents(ctx context.Context, caseID string) ([]service.DocumentInfo, error)
	SaveNotes(ctx context.Context, caseID, notes string) error
	Notes(ctx context.Context, caseID string) (string, error)
	Recommend(ctx context.Context, caseID string) ([]domain.Recommendation, error)
	StreamRecommend(ctx context.Context, caseID string, sink stream.Sink) stream.Status
	Triage(ctx context.Context, caseID, message string) (domain.TriageResult, error)
	StreamTriage(ctx context.Context, caseID, message string, sink stream.Sink) stream.Status
	AssistConversation(ctx context.Context, caseID, draft string) ([]string, error)
	SuggestResponse(ctx context.Context, caseID, draft string) (narrative.Suggestions, error)
	DetectPatterns(ctx context.Context) (narrative.Patterns, error)
	Insights(ctx context.Context) ([]string, error)
	Analytics(ctx context.Context) (service.Analytics, error)
	RecordOutcome(ctx context.Context, o domain.Outcome) error
	SimilarCases(ctx context.Context, caseID string, n int) ([]domain.Match, error)
	Search(ctx context.Context, query string, k int) ([]domain.Match, error)
	DebugSearch(ctx context.Context) service.DebugReport
}

type Server struct {
	router    *chi.Mux
	assistant Assistant
	logger    *zap.Logger
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	maxUpload int64
}

type Options func(*Server)

func WithLogger(l *zap.Logger) Options {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Options {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithMaxUpload limits the size of uploaded documents in bytes.
func WithMaxUpload(n int64) Options {
	return func(s *Server) { s.maxUpload = n }
}

func New(a Assistant, opts ...Options) *Server {
	r := chi.NewRouter()
	s := &Server{
		router:    r,
		assistant: a,
		logger:    zap.NewNop(),
		maxUpload: 10 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(s.accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/cases", s.listCases)
		r.Post("/cases", s.createCase)
		r.Get("/analytics", s.analytics)

		r.Route("/case/{caseID}", func(r chi.Router) {
			r.Get("/", s.getCase)
			r.Get("/documents", s.documents)
			r.Post("/message", s.sendMessage)
			r.Get("/notes", s.notes)
			r.Post("/notes", s.saveNotes)
			r.Post("/outcome", s.recordOutcome)
			r.Get("/similar", s.similarCases)
		})

		r.Post("/upload", s.upload)
		r.Post("/recommend", s.recommend)
		r.Post("/recommend/stream", s.recommendStream)
		r.Post("/triage", s.triage)
		r.Post("/triage/stream", s.triageStream)
		r.Post("/conversation/assist", s.assist)
		r.Post("/conversation/suggest", s.suggest)
		r.Get("/insights/patterns", s.insights)
		r.Get("/insights/ai-patterns", s.patterns)
		r.Get("/search", s.search)
		r.Get("/debug/vector-search", s.debugSearch)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger logs each request and records its metrics.
func (s *Server) accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			s.metrics.ObserveHTTP(route, strconv.Itoa(ww.Status()), start)
			s.logger.Info("access",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
