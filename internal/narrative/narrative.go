// Package narrative generates free-text triage, ranking, drafting hints and
// caseload patterns. Every operation has a safe default that is returned
// together with an error wrapping domain.ErrNarrativeGeneration.
package narrative

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"finassist/internal/domain"
)

// Provider is implemented by Mock and LLM.
type Provider interface {
	Triage(ctx context.Context, message string, c *domain.Case) (domain.TriageResult, error)
	Recommend(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) ([]domain.Recommendation, error)
	Suggest(ctx context.Context, c *domain.Case, draft string) (Suggestions, error)
	Patterns(ctx context.Context, cases []*domain.Case) (Patterns, error)
}

// Suggestions are hints for a caseworker's draft reply.
type Suggestions struct {
	EmpathyCheck   string   `json:"empathy_check,omitempty"`
	QuestionsToAsk []string `json:"questions_to_ask"`
	RedFlags       []string `json:"red_flags"`
	NextSteps      []string `json:"next_steps"`
	ToneSuggestion *string  `json:"tone_suggestion"`
}

// Insight is one systemic pattern across the caseload.
type Insight struct {
	Type           string   `json:"type"`
	Severity       string   `json:"severity"`
	Description    string   `json:"description"`
	AffectedCases  int      `json:"affected_cases"`
	Recommendation string   `json:"recommendation"`
	Examples       []string `json:"examples"`
}

type Trends struct {
	Increasing []string `json:"increasing"`
	Stable     []string `json:"stable"`
}

type Patterns struct {
	Insights []Insight `json:"insights"`
	Trends   Trends    `json:"trends"`
}

// Operation names used in errors, logs and metrics.
const (
	OpTriage    = "triage"
	OpRecommend = "recommend"
	OpSuggest   = "suggest"
	OpPatterns  = "patterns"
)

// MinDraftLength is the shortest draft worth asking for suggestions.
const MinDraftLength = 10

// DefaultTriage is returned when narrative triage fails.
func DefaultTriage() domain.TriageResult {
	return domain.TriageResult{
		Urgency:           domain.UrgencyMedium,
		PriorityScore:     5,
		Sentiment:         "anxious",
		Categories:        []string{string(domain.CategoryOther)},
		RedFlags:          []string{},
		SuggestedResponse: "Let me help.",
		Reasoning:         "Error",
	}
}

// EmptySuggestions is returned for short drafts and failed calls.
func EmptySuggestions() Suggestions {
	return Suggestions{QuestionsToAsk: []string{}, RedFlags: []string{}, NextSteps: []string{}}
}

// EmptyPatterns is returned when pattern detection fails.
func EmptyPatterns() Patterns {
	return Patterns{Insights: []Insight{}, Trends: Trends{Increasing: []string{}, Stable: []string{}}}
}

func failure(op string, err error) error {
	return goerr.Wrap(errors.Join(domain.ErrNarrativeGeneration, err), "narrative generation failed",
		goerr.V(domain.OperationKey, op))
}

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
