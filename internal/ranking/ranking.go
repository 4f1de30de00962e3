// Package ranking scores retrieved resources for a case and orders them.
package ranking

import (
	"fmt"
	"sort"
	"strings"

	"finassist/internal/domain"
)

// Scoring constants.
const (
	SuccessRateWeight = 0.7
	CreditWeight      = 0.3
	MaxCreditScore    = 850.0
	GoodCreditScore   = 650
	DefaultLimit      = 5
)

// Relevance maps an index distance in [0,2] onto [0,1]. It is a similarity
// surrogate, not a probability.
func Relevance(distance float64) float64 {
	return clamp01(1 - distance/2)
}

// EstimatedSuccess blends the resource's historical success rate with the
// employee's credit score.
func EstimatedSuccess(successRate float64, creditScore int) float64 {
	credit := clamp01(float64(creditScore) / MaxCreditScore)
	return clamp01(clamp01(successRate)*SuccessRateWeight + credit*CreditWeight)
}

// Reasoning explains why r was recommended for c.
func Reasoning(c *domain.Case, r domain.Resource) string {
	cats := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = string(cat)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Matches your %s situation. ", strings.Join(cats, ", "))
	if c.Urgency.Pressing() {
		fmt.Fprintf(&b, "Fast approval time (%s) suits urgent need. ", r.ApprovalTime)
	}
	if c.Snapshot.CreditScore >= GoodCreditScore {
		b.WriteString("Good credit improves approval odds.")
	} else {
		b.WriteString("May need additional documentation.")
	}
	return b.String()
}

// ActionItems lists next steps for applying to r.
func ActionItems(r domain.Resource) []string {
	var items []string
	if r.ContactInfo != "" {
		items = append(items, "Contact: "+r.ContactInfo)
	}
	switch r.Difficulty {
	case domain.DifficultyModerate:
		items = append(items, "Gather proof of income and hardship documentation")
	case domain.DifficultyDifficult:
		items = append(items, "Gather proof of income and hardship documentation", "Schedule time to complete a detailed application")
	}
	if r.Eligibility != "" {
		items = append(items, "Confirm eligibility: "+r.Eligibility)
	}
	return items
}

// Score builds the recommendation for one candidate.
func Score(c *domain.Case, cand domain.Candidate) domain.Recommendation {
	r := cand.Resource
	return domain.Recommendation{
		ResourceID:       r.ID,
		Name:             r.Name,
		Description:      r.Description,
		MaxAmount:        r.MaxAmount,
		ApprovalTime:     r.ApprovalTime,
		Difficulty:       r.Difficulty,
		SuccessRate:      r.SuccessRate,
		RelevanceScore:   Relevance(cand.Distance),
		EstimatedSuccess: EstimatedSuccess(r.SuccessRate, c.Snapshot.CreditScore),
		Reasoning:        Reasoning(c, r),
		ActionItems:      ActionItems(r),
	}
}

// Rank scores every candidate, orders by descending relevance with ties in
// catalog order, and truncates to limit. The result is never nil.
func Rank(c *domain.Case, candidates []domain.Candidate, limit int) []domain.Recommendation {
	if limit <= 0 {
		limit = DefaultLimit
	}
	type scored struct {
		rec      domain.Recommendation
		position int
	}
	all := make([]scored, len(candidates))
	for i, cand := range candidates {
		all[i] = scored{rec: Score(c, cand), position: cand.Position}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].rec.RelevanceScore != all[j].rec.RelevanceScore {
			return all[i].rec.RelevanceScore > all[j].rec.RelevanceScore
		}
		return all[i].position < all[j].position
	})

	n := min(limit, len(all))
	out := make([]domain.Recommendation, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].rec
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
