// Package triage classifies employee messages without any external service.
// Classify is pure and total: every input string, including the empty one,
// has a defined result.
package triage

import (
	"fmt"
	"strings"

	"finassist/internal/domain"
)

// Sentiment labels.
const (
	SentimentHighlyDistressed = "highly distressed"
	SentimentConcerned        = "concerned"
	SentimentNeutral          = "neutral"
)

// Detected category labels. These describe the message and are distinct from
// the resource categories of the catalog.
const (
	LabelHousing    = "housing"
	LabelUtilities  = "utilities"
	LabelMedical    = "medical"
	LabelEmployment = "employment"
	LabelDebt       = "debt"
	LabelGeneral    = "general"
)

// Red flag advisories.
const (
	FlagEviction   = "⚠️ Eviction notice - immediate action required"
	FlagLegal      = "⚠️ Legal proceedings - may need legal aid"
	FlagDisconnect = "⚠️ Utility disconnection threat"
	FlagDependents = "👨‍👩‍👧‍👦 Dependents involved - prioritize family stability"
)

// NegativeLexicon terms each count at most once toward the sentiment score.
var NegativeLexicon = []string{
	"eviction", "desperate", "urgent", "help", "crisis", "emergency",
	"cant", "can't", "unable", "shutoff", "disconnect",
}

type keywordGroup struct {
	label    string
	keywords []string
}

// categoryGroups are checked in this order, which is also the output order.
var categoryGroups = []keywordGroup{
	{LabelHousing, []string{"eviction", "rent", "landlord", "lease"}},
	{LabelUtilities, []string{"bill", "utility", "electric", "water", "gas"}},
	{LabelMedical, []string{"medical", "hospital", "doctor", "health"}},
	{LabelEmployment, []string{"job", "work", "unemployed", "laid off"}},
	{LabelDebt, []string{"debt", "credit", "loan"}},
}

type redFlag struct {
	flag     string
	keywords []string
}

var redFlags = []redFlag{
	{FlagEviction, []string{"eviction"}},
	{FlagLegal, []string{"court"}},
	{FlagDisconnect, []string{"disconnect", "shutoff", "shut off"}},
	{FlagDependents, []string{"children", "kids", "dependents"}},
}

// Analysis is the intermediate state of a classification. The streaming path
// reports progress between its steps.
type Analysis struct {
	Context        string
	SentimentScore int
	Sentiment      string
	PriorityScore  int
	Categories     []string
	RedFlags       []string
	Urgency        domain.Urgency
}

// SearchContext lower-cases the message and appends every document text.
func SearchContext(message string, documents []string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(message))
	for _, d := range documents {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(d))
	}
	return b.String()
}

// ScoreSentiment counts distinct lexicon terms present in ctx and maps the
// count to a sentiment label and priority.
func ScoreSentiment(ctx string) (score int, sentiment string, priority int) {
	for _, w := range NegativeLexicon {
		if strings.Contains(ctx, w) {
			score++
		}
	}
	switch {
	case score >= 3:
		return score, SentimentHighlyDistressed, 9
	case score == 2:
		return score, SentimentConcerned, 7
	default:
		return score, SentimentNeutral, 5
	}
}

// DetectCategories returns every matching category group, or general.
func DetectCategories(ctx string) []string {
	var out []string
	for _, g := range categoryGroups {
		if containsAny(ctx, g.keywords) {
			out = append(out, g.label)
		}
	}
	if len(out) == 0 {
		return []string{LabelGeneral}
	}
	return out
}

// DetectRedFlags returns the advisories triggered by ctx.
func DetectRedFlags(ctx string) []string {
	out := []string{}
	for _, f := range redFlags {
		if containsAny(ctx, f.keywords) {
			out = append(out, f.flag)
		}
	}
	return out
}

// DecideUrgency is critical on any red flag or strong distress.
func DecideUrgency(sentimentScore int, flags []string) domain.Urgency {
	switch {
	case len(flags) > 0 || sentimentScore >= 3:
		return domain.UrgencyCritical
	case sentimentScore >= 2:
		return domain.UrgencyHigh
	default:
		return domain.UrgencyMedium
	}
}

// SuggestResponse drafts the caseworker's first reply.
func SuggestResponse(urgency domain.Urgency, categories []string) string {
	if urgency == domain.UrgencyCritical {
		return fmt.Sprintf("I understand this is urgent. Let me help you right away. I'm looking into emergency programs for %s. Can you tell me the specific deadline?", categories[0])
	}
	return fmt.Sprintf("Thank you for reaching out. I can help with %s. Let's find the best solution together.", strings.Join(categories, ", "))
}

// Analyze runs every classification step.
func Analyze(message string, documents []string) Analysis {
	ctx := SearchContext(message, documents)
	score, sentiment, priority := ScoreSentiment(ctx)
	flags := DetectRedFlags(ctx)
	return Analysis{
		Context:        ctx,
		SentimentScore: score,
		Sentiment:      sentiment,
		PriorityScore:  priority,
		Categories:     DetectCategories(ctx),
		RedFlags:       flags,
		Urgency:        DecideUrgency(score, flags),
	}
}

// Result renders the analysis as a triage result.
func (a Analysis) Result() domain.TriageResult {
	return domain.TriageResult{
		Urgency:           a.Urgency,
		PriorityScore:     a.PriorityScore,
		Sentiment:         a.Sentiment,
		Categories:        a.Categories,
		RedFlags:          a.RedFlags,
		SuggestedResponse: SuggestResponse(a.Urgency, a.Categories),
		Reasoning: fmt.Sprintf("Detected %s tone with %d urgent indicators. Categories: %s.",
			a.Sentiment, len(a.RedFlags), strings.Join(a.Categories, ", ")),
	}
}

// Classify triages message in the context of the case's document texts.
func Classify(message string, documents []string) domain.TriageResult {
	return Analyze(message, documents).Result()
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
