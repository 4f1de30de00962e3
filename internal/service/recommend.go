package service

import (
	"context"

	"finassist/internal/domain"
	"finassist/internal/stream"
)

// Recommend retrieves and ranks resources for a case. Only a missing case
// is reported as an error.
func (a *Assistant) Recommend(ctx context.Context, caseID string) ([]domain.Recommendation, error) {
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return a.recommend(ctx, c), nil
}

func (a *Assistant) recommend(ctx context.Context, c *domain.Case) []domain.Recommendation {
	candidates := a.retrieval.Candidates(ctx, c, a.cfg.Limit, a.cfg.Pool)
	recs := a.ranking.Rank(ctx, c, candidates, a.cfg.Limit)
	a.metrics.Recommended()
	return recs
}

var recommendSteps = []string{
	"🔍 Analyzing financial profile...\n",
	"📊 Checking credit score and income...\n",
	"🔎 Searching vector database for relevant resources...\n",
	"📄 Reviewing uploaded documents...\n",
}

// StreamRecommend reports progress to sink and finishes with the ranked list.
func (a *Assistant) StreamRecommend(ctx context.Context, caseID string, sink stream.Sink) stream.Status {
	return a.streamer.Run(ctx, sink, func(ctx context.Context, e *stream.Emitter) (any, error) {
		c, err := a.getCase(ctx, caseID)
		if err != nil {
			return nil, streamFailure(err)
		}
		for _, step := range recommendSteps {
			if err := e.Emit(step); err != nil {
				return nil, err
			}
		}
		if n := len(c.Documents); n > 0 {
			if err := e.Emitf("📋 Found %d uploaded documents\n", n); err != nil {
				return nil, err
			}
		}
		if err := e.Emit("✨ Querying AI knowledge base...\n"); err != nil {
			return nil, err
		}

		candidates := a.retrieval.Candidates(ctx, c, a.cfg.Limit, a.cfg.Pool)
		if err := e.Emitf("✅ Found %d relevant resources\n", len(candidates)); err != nil {
			return nil, err
		}
		recs := a.ranking.Rank(ctx, c, candidates, a.cfg.Limit)
		a.metrics.Recommended()

		if err := e.Emit("🎯 Ranking by relevance...\n"); err != nil {
			return nil, err
		}
		if err := e.Emit("✅ Complete!\n\n"); err != nil {
			return nil, err
		}
		return recs, nil
	})
}

// Triage classifies a message in the context of a case without storing it.
func (a *Assistant) Triage(ctx context.Context, caseID, message string) (domain.TriageResult, error) {
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return domain.TriageResult{}, err
	}
	res := a.triage.Triage(ctx, message, c)
	a.metrics.Triaged(string(res.Urgency))
	return res, nil
}

var triageSteps = []string{
	"📖 Reading message...\n",
	"📄 Checking uploaded documents...\n",
	"😊 Analyzing sentiment...\n",
	"🚨 Identifying urgency indicators...\n",
	"🏷️ Categorizing issues...\n",
	"💡 Generating response...\n",
}

// StreamTriage reports progress to sink and finishes with the triage result.
func (a *Assistant) StreamTriage(ctx context.Context, caseID, message string, sink stream.Sink) stream.Status {
	return a.streamer.Run(ctx, sink, func(ctx context.Context, e *stream.Emitter) (any, error) {
		c, err := a.getCase(ctx, caseID)
		if err != nil {
			return nil, streamFailure(err)
		}
		for _, step := range triageSteps {
			if err := e.Emit(step); err != nil {
				return nil, err
			}
		}
		if n := len(c.Documents); n > 0 {
			if err := e.Emitf("📋 Found %d documents with additional context\n", n); err != nil {
				return nil, err
			}
		}

		res := a.triage.Triage(ctx, message, c)
		a.metrics.Triaged(string(res.Urgency))

		if err := e.Emit("✅ Analysis complete!\n\n"); err != nil {
			return nil, err
		}
		return res, nil
	})
}
