package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"finassist/internal/domain"
	"finassist/internal/logging"
	"finassist/internal/narrative"
	"finassist/internal/triage"
)

// Drafting hints.
const (
	HintEmpty     = "Please type a message to get AI suggestions"
	HintTone      = "💡 Consider a more empowering tone: Focus on what you CAN do rather than limitations"
	HintDetail    = "✏️ Add more detail: Explain specific next steps or resources"
	HintERAP      = "🏠 Mention ERAP (Emergency Rental Assistance) - highly relevant for this case"
	HintLIHEAP    = "⚡ Suggest LIHEAP for utility assistance"
	HintLooksGood = "✅ Message looks good! Clear and helpful."
)

// minDraftDetail is the draft length below which more detail is suggested.
const minDraftDetail = 20

var limitingWords = []string{"unfortunately", "sorry", "cannot"}

// AssistConversation reviews a caseworker's draft reply and returns hints.
// The result is never empty.
func (a *Assistant) AssistConversation(ctx context.Context, caseID, draft string) ([]string, error) {
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft) == "" {
		return []string{HintEmpty}, nil
	}

	lower := strings.ToLower(draft)
	labels := caseLabels(c)
	var hints []string
	for _, w := range limitingWords {
		if strings.Contains(lower, w) {
			hints = append(hints, HintTone)
			break
		}
	}
	if len([]rune(draft)) < minDraftDetail {
		hints = append(hints, HintDetail)
	}
	if labels[triage.LabelHousing] && !strings.Contains(lower, "erap") {
		hints = append(hints, HintERAP)
	}
	if labels[triage.LabelUtilities] && !strings.Contains(lower, "liheap") {
		hints = append(hints, HintLIHEAP)
	}
	if len(hints) == 0 {
		hints = []string{HintLooksGood}
	}
	return hints, nil
}

// caseLabels merges the case categories with the labels found by triaging
// its messages.
func caseLabels(c *domain.Case) map[string]bool {
	labels := map[string]bool{}
	for _, cat := range c.Categories {
		switch cat {
		case domain.CategoryRent:
			labels[triage.LabelHousing] = true
		default:
			labels[string(cat)] = true
		}
	}
	for _, m := range c.Messages {
		if m.Analysis == nil {
			continue
		}
		for _, l := range m.Analysis.Categories {
			labels[l] = true
		}
	}
	return labels
}

// SuggestResponse asks the narrative provider for drafting suggestions.
func (a *Assistant) SuggestResponse(ctx context.Context, caseID, draft string) (narrative.Suggestions, error) {
	c, err := a.getCase(ctx, caseID)
	if err != nil {
		return narrative.Suggestions{}, err
	}
	out, err := a.narrative.Suggest(ctx, c, draft)
	if err != nil {
		a.metrics.NarrativeFailed(narrative.OpSuggest)
		logging.Warn(a.logger, "response suggestion failed", err, zap.String(domain.CaseIDKey, caseID))
	}
	return out, nil
}

// DetectPatterns asks the narrative provider for systemic patterns across
// active cases.
func (a *Assistant) DetectPatterns(ctx context.Context) (narrative.Patterns, error) {
	cases, err := a.activeCases(ctx)
	if err != nil {
		return narrative.Patterns{}, err
	}
	out, err := a.narrative.Patterns(ctx, cases)
	if err != nil {
		a.metrics.NarrativeFailed(narrative.OpPatterns)
		logging.Warn(a.logger, "pattern detection failed", err)
	}
	return out, nil
}

func (a *Assistant) activeCases(ctx context.Context) ([]*domain.Case, error) {
	cases, err := a.ListCases(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(cases, func(c *domain.Case) bool { return c.Status != domain.StatusActive }), nil
}

// Insights summarizes the whole caseload in a few sentences.
func (a *Assistant) Insights(ctx context.Context) ([]string, error) {
	cases, err := a.ListCases(ctx)
	if err != nil {
		return nil, err
	}

	total := len(cases)
	var urgent, docs int
	var debt, income, credit float64
	counts := map[domain.Category]int{}
	for _, c := range cases {
		if c.Urgency.Pressing() {
			urgent++
		}
		debt += float64(c.Snapshot.TotalDebt)
		income += float64(c.Snapshot.AnnualIncome)
		credit += float64(c.Snapshot.CreditScore)
		for _, cat := range c.Categories {
			counts[cat]++
		}
		docs += len(c.Documents)
	}

	var urgentPct, ratio, avgCredit float64
	if total > 0 {
		urgentPct = float64(urgent) / float64(total) * 100
		avgCredit = credit / float64(total)
	}
	if income > 0 {
		ratio = debt / income * 100
	}

	top := domain.CategoryRent
	for _, cat := range domain.Categories {
		if counts[cat] > counts[top] {
			top = cat
		}
	}

	out := []string{
		fmt.Sprintf("📊 %d of %d cases need immediate attention (%.0f%%)", urgent, total, urgentPct),
		fmt.Sprintf("💰 Average debt-to-income ratio: %.1f%%", ratio),
		fmt.Sprintf("📈 Most common issue: %s (%d cases)", top, counts[top]),
		fmt.Sprintf("🎯 Average credit score: %.0f - focus on credit rebuilding programs", avgCredit),
	}
	if docs > 0 {
		out = append(out, fmt.Sprintf("📄 %d documents uploaded across cases - AI has more context!", docs))
	}
	return out, nil
}

// MonthlySummary holds the reporting figures for the current month.
type MonthlySummary struct {
	CasesResolved             int     `json:"cases_resolved" yaml:"cases_resolved"`
	TotalMoneySaved           int     `json:"total_money_saved" yaml:"total_money_saved"`
	AvgCreditScoreImprovement int     `json:"avg_credit_score_improvement" yaml:"avg_credit_score_improvement"`
	AvgResponseTimeHours      float64 `json:"avg_response_time_hours" yaml:"avg_response_time_hours"`
}

type Analytics struct {
	TotalActiveCases  int            `json:"total_active_cases"`
	CriticalCases     int            `json:"critical_cases"`
	ThisMonth         MonthlySummary `json:"this_month"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
}

// Analytics counts active cases by urgency and category.
func (a *Assistant) Analytics(ctx context.Context) (Analytics, error) {
	cases, err := a.activeCases(ctx)
	if err != nil {
		return Analytics{}, err
	}
	out := Analytics{
		TotalActiveCases:  len(cases),
		ThisMonth:         a.cfg.Monthly,
		CategoryBreakdown: make(map[string]int, len(domain.Categories)),
	}
	for _, cat := range domain.Categories {
		out.CategoryBreakdown[string(cat)] = 0
	}
	for _, c := range cases {
		if c.Urgency == domain.UrgencyCritical {
			out.CriticalCases++
		}
		for _, cat := range c.Categories {
			out.CategoryBreakdown[string(cat)]++
		}
	}
	return out, nil
}

// Debug queries exercised by DebugSearch.
const (
	DebugHousingQuery   = "I need help with eviction and rent assistance urgently"
	DebugUtilitiesQuery = "My electricity bill is overdue and getting shut off"
)

type SearchReport struct {
	Text       string    `json:"text"`
	TopResults []string  `json:"top_results"`
	Distances  []float64 `json:"distances"`
}

type DebugReport struct {
	Query1      SearchReport `json:"query1"`
	Query2      SearchReport `json:"query2"`
	Explanation string       `json:"explanation"`
}

// Search returns the raw nearest resource entries for query.
func (a *Assistant) Search(ctx context.Context, query string, k int) ([]domain.Match, error) {
	return a.retrieval.Retrieve(ctx, query, k)
}

// DebugSearch runs two fixed queries against the resource index so the
// differing results can be inspected.
func (a *Assistant) DebugSearch(ctx context.Context) DebugReport {
	return DebugReport{
		Query1:      a.searchReport(ctx, DebugHousingQuery, 3),
		Query2:      a.searchReport(ctx, DebugUtilitiesQuery, 3),
		Explanation: "Lower distance = better match. Different queries get different results.",
	}
}

func (a *Assistant) searchReport(ctx context.Context, query string, k int) SearchReport {
	out := SearchReport{Text: query, TopResults: []string{}, Distances: []float64{}}
	matches, err := a.Search(ctx, query, k)
	if err != nil {
		logging.Warn(a.logger, "debug search failed", err, zap.String("query", query))
		return out
	}
	for _, m := range matches {
		out.TopResults = append(out.TopResults, m.ID)
		out.Distances = append(out.Distances, m.Distance)
	}
	return out
}
