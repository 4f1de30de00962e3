package narrative

import (
	"cmp"
	"context"
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"finassist/internal/domain"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// LLM generates narratives through a gollem client, one session per call.
type LLM struct {
	client  gollem.LLMClient
	timeout time.Duration
}

func NewLLM(client gollem.LLMClient, timeout time.Duration) (*LLM, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLM{client: client, timeout: timeout}, nil
}

// generate runs one prompt and decodes the fenced or bare JSON reply into out.
func (l *LLM) generate(ctx context.Context, op, prompt string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	session, err := l.client.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return failure(op, goerr.Wrap(err, "failed to create LLM session"))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		return failure(op, goerr.Wrap(err, "failed to generate content"))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return failure(op, goerr.New("empty LLM response"))
	}

	body := StripCodeFence(strings.Join(resp.Texts, "\n"))
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return failure(op, goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", body)))
	}
	return nil
}

func (l *LLM) Triage(ctx context.Context, message string, c *domain.Case) (domain.TriageResult, error) {
	var res domain.TriageResult
	if err := l.generate(ctx, OpTriage, triagePrompt(message, c), &res); err != nil {
		return DefaultTriage(), err
	}
	if !res.Urgency.Valid() {
		return DefaultTriage(), failure(OpTriage, goerr.New("unknown urgency", goerr.V("urgency", res.Urgency)))
	}
	if len(res.Categories) == 0 {
		res.Categories = []string{string(domain.CategoryOther)}
	}
	if res.RedFlags == nil {
		res.RedFlags = []string{}
	}
	res.PriorityScore = min(max(res.PriorityScore, 0), 10)
	return res, nil
}

type rankedResource struct {
	ResourceID       string   `json:"resource_id"`
	RelevanceScore   float64  `json:"relevance_score"`
	Reasoning        string   `json:"reasoning"`
	EstimatedSuccess float64  `json:"estimated_success"`
	ActionItems      []string `json:"action_items"`
}

// Recommend asks the model to rank candidates. Entries naming resources that
// were not offered are dropped.
func (l *LLM) Recommend(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) ([]domain.Recommendation, error) {
	if len(candidates) == 0 {
		return []domain.Recommendation{}, nil
	}

	var ranked []rankedResource
	if err := l.generate(ctx, OpRecommend, recommendPrompt(c, candidates, limit), &ranked); err != nil {
		return []domain.Recommendation{}, err
	}

	byID := make(map[string]domain.Candidate, len(candidates))
	for _, cand := range candidates {
		byID[cand.Resource.ID] = cand
	}

	recs := make([]domain.Recommendation, 0, len(ranked))
	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		cand, ok := byID[r.ResourceID]
		if !ok || seen[r.ResourceID] {
			continue
		}
		seen[r.ResourceID] = true
		res := cand.Resource
		recs = append(recs, domain.Recommendation{
			ResourceID:       res.ID,
			Name:             res.Name,
			Description:      res.Description,
			MaxAmount:        res.MaxAmount,
			ApprovalTime:     res.ApprovalTime,
			Difficulty:       res.Difficulty,
			SuccessRate:      res.SuccessRate,
			RelevanceScore:   unit(r.RelevanceScore),
			EstimatedSuccess: unit(r.EstimatedSuccess),
			Reasoning:        r.Reasoning,
			ActionItems:      r.ActionItems,
		})
	}

	slices.SortStableFunc(recs, func(a, b domain.Recommendation) int {
		if c := cmp.Compare(b.RelevanceScore, a.RelevanceScore); c != 0 {
			return c
		}
		return cmp.Compare(byID[a.ResourceID].Position, byID[b.ResourceID].Position)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (l *LLM) Suggest(ctx context.Context, c *domain.Case, draft string) (Suggestions, error) {
	if len(strings.TrimSpace(draft)) < MinDraftLength {
		return EmptySuggestions(), nil
	}
	out := EmptySuggestions()
	if err := l.generate(ctx, OpSuggest, suggestPrompt(c, draft), &out); err != nil {
		return EmptySuggestions(), err
	}
	if out.QuestionsToAsk == nil {
		out.QuestionsToAsk = []string{}
	}
	if out.RedFlags == nil {
		out.RedFlags = []string{}
	}
	if out.NextSteps == nil {
		out.NextSteps = []string{}
	}
	return out, nil
}

func (l *LLM) Patterns(ctx context.Context, cases []*domain.Case) (Patterns, error) {
	out := EmptyPatterns()
	if err := l.generate(ctx, OpPatterns, patternsPrompt(cases), &out); err != nil {
		return EmptyPatterns(), err
	}
	if out.Insights == nil {
		out.Insights = []Insight{}
	}
	return out, nil
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
