package narrative

import (
	"fmt"
	"strings"

	"finassist/internal/domain"
)

const systemPrompt = "You assist caseworkers who help employees through financial hardship. " +
	"Respond with a single JSON value and no other text."

func writeProfile(sb *strings.Builder, c *domain.Case) {
	if c == nil {
		return
	}
	s := c.Snapshot
	sb.WriteString("## Employee context\n\n")
	fmt.Fprintf(sb, "- Income: $%d\n", s.AnnualIncome)
	fmt.Fprintf(sb, "- Credit Score: %d\n", s.CreditScore)
	fmt.Fprintf(sb, "- Savings: $%d\n", s.Savings)
	fmt.Fprintf(sb, "- Debt: $%d\n", s.TotalDebt)
	fmt.Fprintf(sb, "- Dependents: %d\n", s.Dependents)
	fmt.Fprintf(sb, "- Employer: %s\n", c.Employer)
	fmt.Fprintf(sb, "- Urgency: %s\n", c.Urgency)
	cats := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = string(cat)
	}
	fmt.Fprintf(sb, "- Categories: %s\n\n", strings.Join(cats, ", "))
}

func triagePrompt(message string, c *domain.Case) string {
	var sb strings.Builder
	writeProfile(&sb, c)
	fmt.Fprintf(&sb, "## Employee message\n\n%q\n\n", message)
	sb.WriteString("Return an object with keys: urgency (critical|high|medium|low), categories (array), ")
	sb.WriteString("sentiment, priority_score (0-10), reasoning, suggested_response, red_flags (array).\n")
	return sb.String()
}

func recommendPrompt(c *domain.Case, candidates []domain.Candidate, limit int) string {
	var sb strings.Builder
	writeProfile(&sb, c)
	sb.WriteString("## Resources found by similarity search\n\n")
	for _, cand := range candidates {
		r := cand.Resource
		fmt.Fprintf(&sb, "ID: %s | %s: %s | Distance: %.3f\n", r.ID, r.Name, r.Description, cand.Distance)
	}
	fmt.Fprintf(&sb, "\nRank the top %d as a JSON array of objects with keys: resource_id, relevance_score (0-1), ", limit)
	sb.WriteString("reasoning (timing, amount and eligibility), estimated_success (0-1), action_items (array).\n")
	return sb.String()
}

func suggestPrompt(c *domain.Case, draft string) string {
	var sb strings.Builder
	writeProfile(&sb, c)
	fmt.Fprintf(&sb, "## Caseworker draft\n\n%q\n\n", draft)
	sb.WriteString("Return an object with keys: empathy_check, questions_to_ask (array), red_flags (array), ")
	sb.WriteString("next_steps (array), tone_suggestion (string or null).\n")
	return sb.String()
}

func patternsPrompt(cases []*domain.Case) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %d active cases\n\n", len(cases))
	for _, c := range cases {
		cats := make([]string, len(c.Categories))
		for i, cat := range c.Categories {
			cats[i] = string(cat)
		}
		fmt.Fprintf(&sb, "- %s | employer %s | urgency %s | categories %s | income $%d | credit %d | debt $%d\n",
			c.ID, c.Employer, c.Urgency, strings.Join(cats, ","), c.Snapshot.AnnualIncome,
			c.Snapshot.CreditScore, c.Snapshot.TotalDebt)
	}
	sb.WriteString("\nReturn an object with keys: insights (array of {type, severity, description, affected_cases, ")
	sb.WriteString("recommendation, examples}) and trends ({increasing, stable}).\n")
	return sb.String()
}
