package narrative

import (
	"context"

	"finassist/internal/domain"
)

// Mock returns fixed payloads without calling any external service.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Triage(ctx context.Context, message string, c *domain.Case) (domain.TriageResult, error) {
	return domain.TriageResult{
		Urgency:           domain.UrgencyCritical,
		PriorityScore:     10,
		Sentiment:         "desperate",
		Categories:        []string{string(domain.CategoryRent)},
		RedFlags:          []string{"eviction with children", "very tight deadline"},
		SuggestedResponse: "I understand how stressful this must be with your children. Let's work through this together right away.",
		Reasoning:         "Immediate eviction threat with children involved",
	}, nil
}

func (m *Mock) Recommend(ctx context.Context, c *domain.Case, candidates []domain.Candidate, limit int) ([]domain.Recommendation, error) {
	return []domain.Recommendation{{
		ResourceID:       "res_1",
		RelevanceScore:   0.95,
		Reasoning:        "Amazon employee - hardship fund offers up to $2000 with 2-3 day approval",
		EstimatedSuccess: 0.85,
		ActionItems:      []string{"Apply through AtoZ app", "Prepare pay stubs"},
	}}, nil
}

func (m *Mock) Suggest(ctx context.Context, c *domain.Case, draft string) (Suggestions, error) {
	return Suggestions{
		EmpathyCheck: "Consider starting with acknowledgment of stress",
		QuestionsToAsk: []string{
			"When did you fall behind on rent?",
			"Have you spoken with your landlord?",
		},
		RedFlags:  []string{"Children involved - may need childcare support"},
		NextSteps: []string{"Check employer hardship fund", "Draft email to landlord"},
	}, nil
}

func (m *Mock) Patterns(ctx context.Context, cases []*domain.Case) (Patterns, error) {
	return Patterns{
		Insights: []Insight{{
			Type:           "systemic",
			Severity:       "high",
			Description:    "15% of caseload struggling with medical debt",
			AffectedCases:  3,
			Recommendation: "Consider employer health benefits review",
			Examples:       []string{"case_2", "case_4"},
		}},
		Trends: Trends{
			Increasing: []string{"medical_debt", "food_insecurity"},
			Stable:     []string{"rent", "utilities"},
		},
	}, nil
}
