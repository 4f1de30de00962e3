// Package service implements the caseworker operations on top of the
// repositories, retrieval, ranking and triage packages.
package service

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"finassist/internal/domain"
	"finassist/internal/metrics"
	"finassist/internal/narrative"
	"finassist/internal/retrieval"
	"finassist/internal/stream"
	"finassist/internal/summarizer"
)

// Config holds tunables for the assistant.
type Config struct {
	// Limit is the number of recommendations returned.
	Limit int
	// Pool is the number of candidates requested from the index before
	// re-ranking.
	Pool            int
	DigestSentences int
	PreviewChars    int
	Monthly         MonthlySummary
}

// DefaultMonthlySummary is reported until outcome tracking has a month of data.
var DefaultMonthlySummary = MonthlySummary{
	CasesResolved:             12,
	TotalMoneySaved:           45000,
	AvgCreditScoreImprovement: 35,
	AvgResponseTimeHours:      4.2,
}

func (c *Config) applyDefaults() {
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.Pool < c.Limit {
		c.Pool = c.Limit
	}
	if c.DigestSentences <= 0 {
		c.DigestSentences = summarizer.DefaultMaxSentences
	}
	if c.PreviewChars <= 0 {
		c.PreviewChars = 200
	}
	if c.Monthly == (MonthlySummary{}) {
		c.Monthly = DefaultMonthlySummary
	}
}

// Assistant serves every caseworker operation. It holds no per-request
// state and is safe for concurrent use.
type Assistant struct {
	cases      domain.CaseRepository
	resources  domain.ResourceRepository
	retrieval  *retrieval.Service
	triage     TriageProvider
	ranking    RankingProvider
	narrative  narrative.Provider
	summarizer *summarizer.FrequencySummarizer
	streamer   *stream.Streamer
	cfg        Config
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Assistant)

func WithTriage(p TriageProvider) Option { return func(a *Assistant) { a.triage = p } }

func WithRanking(p RankingProvider) Option { return func(a *Assistant) { a.ranking = p } }

// WithNarrative sets the provider for drafting suggestions and caseload
// patterns.
func WithNarrative(p narrative.Provider) Option { return func(a *Assistant) { a.narrative = p } }

func WithStreamer(s *stream.Streamer) Option { return func(a *Assistant) { a.streamer = s } }

func WithConfig(cfg Config) Option { return func(a *Assistant) { a.cfg = cfg } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Assistant) { a.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(a *Assistant) { a.logger = l } }

func WithClock(now func() time.Time) Option { return func(a *Assistant) { a.now = now } }

// New builds an assistant. Without options it triages and ranks
// deterministically and uses fixed narrative payloads.
func New(cases domain.CaseRepository, resources domain.ResourceRepository, r *retrieval.Service, opts ...Option) *Assistant {
	a := &Assistant{
		cases:      cases,
		resources:  resources,
		retrieval:  r,
		triage:     DeterministicTriage{},
		ranking:    DeterministicRanking{},
		narrative:  narrative.NewMock(),
		summarizer: summarizer.NewFrequencySummarizer(),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cfg.applyDefaults()
	if a.streamer == nil {
		a.streamer = stream.New(0, a.metrics, a.logger)
	}
	return a
}

// Index embeds the resource catalog into the vector index.
func (a *Assistant) Index(ctx context.Context) error {
	resources, err := a.resources.List(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to list resources")
	}
	return a.retrieval.IndexResources(ctx, resources)
}

func (a *Assistant) getCase(ctx context.Context, id string) (*domain.Case, error) {
	c, err := a.cases.Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(domain.CaseIDKey, id))
	}
	return c, nil
}

// streamFailure maps a producer error to the message shown to the consumer.
func streamFailure(err error) error {
	if domain.IsNotFound(err) {
		return stream.Fail("Case not found", err)
	}
	return err
}
