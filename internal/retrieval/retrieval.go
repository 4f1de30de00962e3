// Package retrieval turns a case into a similarity query against the resource
// index and joins the hits with the catalog.
package retrieval

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finassist/internal/domain"
	"finassist/internal/embedding"
	"finassist/internal/logging"
	"finassist/internal/metrics"
)

// Config tunes query construction and index calls.
type Config struct {
	MaxDocuments int
	ExcerptChars int
	// Timeout bounds each embed-and-search call.
	Timeout time.Duration
	// Concurrency bounds parallel embedding during ingestion.
	Concurrency int
}

func (c *Config) applyDefaults() {
	if c.MaxDocuments == 0 {
		c.MaxDocuments = DefaultMaxDocuments
	}
	if c.ExcerptChars == 0 {
		c.ExcerptChars = DefaultExcerptChars
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// fallbackDistance gives catalog-order candidates zero relevance.
const fallbackDistance = 2.0

// Service owns the resource and past-case collections.
type Service struct {
	embedder  domain.Embedder
	resources domain.VectorStore
	pastCases domain.VectorStore
	catalog   domain.ResourceRepository
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

// WithPastCases enables the past-case collection.
func WithPastCases(store domain.VectorStore) Option {
	return func(s *Service) { s.pastCases = store }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func New(embedder domain.Embedder, resources domain.VectorStore, catalog domain.ResourceRepository, cfg Config, opts ...Option) *Service {
	cfg.applyDefaults()
	s := &Service{
		embedder:  embedder,
		resources: resources,
		catalog:   catalog,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildQuery renders c with the configured document limits.
func (s *Service) BuildQuery(c *domain.Case) string {
	return BuildQuery(c, s.cfg.MaxDocuments, s.cfg.ExcerptChars)
}

// Retrieve embeds query and returns up to k nearest resource entries.
// Failures are wrapped with domain.ErrRetrievalUnavailable.
func (s *Service) Retrieve(ctx context.Context, query string, k int) ([]domain.Match, error) {
	return s.search(ctx, s.resources, query, k)
}

func (s *Service) search(ctx context.Context, store domain.VectorStore, query string, k int) ([]domain.Match, error) {
	defer s.metrics.ObserveRetrieval(time.Now())

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(domain.ErrRetrievalUnavailable, "failed to embed query",
			goerr.V("embedder", s.embedder.Name()), goerr.V("cause", err.Error()))
	}
	if embedding.IsZero(vec) {
		s.logger.Debug("query shares no vocabulary with the index", zap.String("embedder", s.embedder.Name()))
	}
	matches, err := store.Search(ctx, vec, k)
	if err != nil {
		return nil, goerr.Wrap(domain.ErrRetrievalUnavailable, "vector search failed", goerr.V("cause", err.Error()))
	}
	return matches, nil
}

// Candidates returns resources for c, nearest first, requesting
// max(limit, pool) entries from the index. When the index fails or has no
// matches the first limit catalog resources are returned in catalog order.
// It never fails.
func (s *Service) Candidates(ctx context.Context, c *domain.Case, limit, pool int) []domain.Candidate {
	if limit <= 0 {
		limit = 5
	}
	k := max(limit, pool)

	catalog, err := s.catalog.List(ctx)
	if err != nil {
		logging.Error(s.logger, "failed to list resource catalog", err, zap.String(domain.CaseIDKey, c.ID))
		return []domain.Candidate{}
	}

	matches, err := s.Retrieve(ctx, s.BuildQuery(c), k)
	if err != nil {
		logging.Warn(s.logger, "retrieval unavailable, using catalog order", err, zap.String(domain.CaseIDKey, c.ID))
		s.metrics.Fallback("unavailable")
		return fallback(catalog, limit)
	}

	position := make(map[string]int, len(catalog))
	for i, r := range catalog {
		position[r.ID] = i
	}
	out := make([]domain.Candidate, 0, len(matches))
	for _, m := range matches {
		i, ok := position[m.ID]
		if !ok {
			s.logger.Debug("skipping unknown resource id", zap.String(domain.ResourceIDKey, m.ID))
			continue
		}
		out = append(out, domain.Candidate{Resource: catalog[i], Distance: m.Distance, Position: i})
	}
	if len(out) == 0 {
		s.metrics.Fallback("empty_index")
		return fallback(catalog, limit)
	}
	return out
}

func fallback(catalog []domain.Resource, limit int) []domain.Candidate {
	n := min(limit, len(catalog))
	out := make([]domain.Candidate, n)
	for i := 0; i < n; i++ {
		out[i] = domain.Candidate{Resource: catalog[i], Distance: fallbackDistance, Position: i, Fallback: true}
	}
	return out
}

// IndexResources prepares the embedder on the resource corpus and writes one
// entry per resource in catalog order. Embedding runs concurrently; the
// collection is written by a single upsert. An empty catalog is a no-op.
func (s *Service) IndexResources(ctx context.Context, resources []domain.Resource) error {
	if len(resources) == 0 {
		s.logger.Info("resource catalog is empty, skipping indexing")
		return nil
	}
	corpus := make([]string, len(resources))
	for i, r := range resources {
		corpus[i] = ResourceText(r)
	}
	if err := s.embedder.Prepare(corpus); err != nil {
		return goerr.Wrap(err, "failed to prepare embedder", goerr.V("embedder", s.embedder.Name()))
	}

	vectors := make([][]float64, len(corpus))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, text := range corpus {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, text)
			if err != nil {
				return goerr.Wrap(err, "failed to embed resource", goerr.V(domain.ResourceIDKey, resources[i].ID))
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.resources.Init(ctx, len(vectors[0])); err != nil {
		return goerr.Wrap(err, "failed to initialise resource collection")
	}
	entries := make([]domain.IndexEntry, len(resources))
	for i, r := range resources {
		amount := 0
		if r.MaxAmount != nil {
			amount = *r.MaxAmount
		}
		entries[i] = domain.IndexEntry{
			ID:       r.ID,
			Vector:   vectors[i],
			Document: corpus[i],
			Metadata: map[string]any{
				"name":          r.Name,
				"category":      string(r.Category),
				"max_amount":    amount,
				"success_rate":  r.SuccessRate,
				"approval_time": r.ApprovalTime,
			},
		}
	}
	if err := s.resources.Upsert(ctx, entries); err != nil {
		return goerr.Wrap(err, "failed to upsert resources")
	}
	s.logger.Info("indexed resources", zap.Int("count", len(entries)), zap.String("embedder", s.embedder.Name()))
	return nil
}

// IndexOutcome adds a resolved case to the past-case collection.
func (s *Service) IndexOutcome(ctx context.Context, c *domain.Case, o domain.Outcome) error {
	if s.pastCases == nil {
		return nil
	}
	text := CaseText(c, o)
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return goerr.Wrap(err, "failed to embed case", goerr.V(domain.CaseIDKey, c.ID))
	}
	if err := s.pastCases.Init(ctx, len(vec)); err != nil {
		return goerr.Wrap(err, "failed to initialise past-case collection")
	}
	entry := domain.IndexEntry{
		ID:       "case_" + c.ID,
		Vector:   vec,
		Document: text,
		Metadata: map[string]any{
			"case_id":       c.ID,
			"employee_name": c.EmployeeName,
			"employer":      c.Employer,
			"urgency":       string(c.Urgency),
			"success":       o.Success,
		},
	}
	if err := s.pastCases.Upsert(ctx, []domain.IndexEntry{entry}); err != nil {
		return goerr.Wrap(err, "failed to upsert case", goerr.V(domain.CaseIDKey, c.ID))
	}
	return nil
}

// SimilarCases returns up to n resolved cases resembling c.
func (s *Service) SimilarCases(ctx context.Context, c *domain.Case, n int) ([]domain.Match, error) {
	if s.pastCases == nil {
		return nil, nil
	}
	count, err := s.pastCases.Count(ctx)
	if err != nil || count == 0 {
		return nil, err
	}
	return s.search(ctx, s.pastCases, similarCaseQuery(c), n)
}
