package service

import (
	"context"

	"go.uber.org/zap"

	"finassist/internal/domain"
	"finassist/internal/logging"
	"finassist/internal/metrics"
	"finassist/internal/narrative"
	"finassist/internal/ranking"
	"finassist/internal/triage"
)

// TriageProvider classifies an employee message in the context of a case.
// It always returns a result.
type TriageProvider interface {
	Triage(ctx context.Context, message string, c *domain.Case) domain.TriageResult
}

// RankingProvider orders retrieved candidates for a case. It always returns a
// non-nil list.
type RankingProvider interface {
	Rank(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) []domain.Recommendation
}

// Narrative modes.
const (
	ModeDeterministic = "deterministic"
	ModeMock          = "mock"
	ModeLLM           = "llm"
)

type DeterministicTriage struct{}

func (DeterministicTriage) Triage(ctx context.Context, message string, c *domain.Case) domain.TriageResult {
	var docs []string
	if c != nil {
		docs = c.DocumentTexts()
	}
	return triage.Classify(message, docs)
}

type DeterministicRanking struct{}

func (DeterministicRanking) Rank(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) []domain.Recommendation {
	return ranking.Rank(c, candidates, limit)
}

// NarrativeTriage asks a narrative provider and falls back to another
// provider when generation fails.
type NarrativeTriage struct {
	Provider narrative.Provider
	Fallback TriageProvider
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func (n NarrativeTriage) Triage(ctx context.Context, message string, c *domain.Case) domain.TriageResult {
	res, err := n.Provider.Triage(ctx, message, c)
	if err == nil {
		return res
	}
	n.Metrics.NarrativeFailed(narrative.OpTriage)
	logging.Warn(loggerOrNop(n.Logger), "narrative triage failed, using keyword triage", err)
	if n.Fallback == nil {
		return res
	}
	return n.Fallback.Triage(ctx, message, c)
}

// NarrativeRanking asks a narrative provider. Failures yield an empty list.
type NarrativeRanking struct {
	Provider narrative.Provider
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func (n NarrativeRanking) Rank(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) []domain.Recommendation {
	recs, err := n.Provider.Recommend(ctx, c, candidates, limit)
	if err != nil {
		n.Metrics.NarrativeFailed(narrative.OpRecommend)
		logging.Warn(loggerOrNop(n.Logger), "narrative ranking failed", err)
		return []domain.Recommendation{}
	}
	if recs == nil {
		return []domain.Recommendation{}
	}
	return recs
}

// Providers returns the triage and ranking strategies for mode. An unknown
// mode is deterministic.
func Providers(mode string, p narrative.Provider, m *metrics.Metrics, logger *zap.Logger) (TriageProvider, RankingProvider) {
	switch mode {
	case ModeMock, ModeLLM:
		if p == nil {
			break
		}
		return NarrativeTriage{Provider: p, Fallback: DeterministicTriage{}, Metrics: m, Logger: logger},
			NarrativeRanking{Provider: p, Metrics: m, Logger: logger}
	}
	return DeterministicTriage{}, DeterministicRanking{}
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
