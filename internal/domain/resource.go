package domain

import (
	"github.com/m-mizutani/goerr/v2"
)

// Resource is an assistance program. Resources are reference data and are
// never modified after they are loaded.
type Resource struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description" yaml:"description"`
	Category     Category   `json:"category" yaml:"category"`
	Eligibility  string     `json:"eligibility_criteria" yaml:"eligibility_criteria"`
	MaxAmount    *int       `json:"max_amount,omitempty" yaml:"max_amount,omitempty"`
	ApprovalTime string     `json:"typical_approval_time" yaml:"typical_approval_time"`
	Difficulty   Difficulty `json:"application_difficulty" yaml:"application_difficulty"`
	SuccessRate  float64    `json:"success_rate" yaml:"success_rate"`
	ContactInfo  string     `json:"contact_info" yaml:"contact_info"`
	Location     string     `json:"location" yaml:"location"`
}

func (r *Resource) Validate() error {
	if r.ID == "" {
		return goerr.Wrap(ErrInvalidRecord, "resource id is required")
	}
	if r.Name == "" {
		return goerr.Wrap(ErrInvalidRecord, "resource name is required", goerr.V(ResourceIDKey, r.ID))
	}
	if !r.Category.Valid() {
		return goerr.Wrap(ErrInvalidRecord, "unknown resource category",
			goerr.V(ResourceIDKey, r.ID), goerr.V("category", r.Category))
	}
	if !r.Difficulty.Valid() {
		return goerr.Wrap(ErrInvalidRecord, "unknown application difficulty",
			goerr.V(ResourceIDKey, r.ID), goerr.V("difficulty", r.Difficulty))
	}
	if r.SuccessRate < 0 || r.SuccessRate > 1 {
		return goerr.Wrap(ErrInvalidRecord, "success rate must be within [0,1]",
			goerr.V(ResourceIDKey, r.ID), goerr.V("success_rate", r.SuccessRate))
	}
	if r.MaxAmount != nil && *r.MaxAmount < 0 {
		return goerr.Wrap(ErrInvalidRecord, "max amount must be non-negative", goerr.V(ResourceIDKey, r.ID))
	}
	return nil
}

// Recommendation is a scored resource for one case. It is built per request.
type Recommendation struct {
	ResourceID       string     `json:"resource_id"`
	Name             string     `json:"name,omitempty"`
	Description      string     `json:"description,omitempty"`
	MaxAmount        *int       `json:"max_amount,omitempty"`
	ApprovalTime     string     `json:"typical_approval_time,omitempty"`
	Difficulty       Difficulty `json:"application_difficulty,omitempty"`
	SuccessRate      float64    `json:"success_rate,omitempty"`
	RelevanceScore   float64    `json:"relevance_score"`
	EstimatedSuccess float64    `json:"estimated_success"`
	Reasoning        string     `json:"reasoning"`
	ActionItems      []string   `json:"action_items,omitempty"`
}

// Candidate is a retrieved resource together with its index distance.
type Candidate struct {
	Resource Resource
	Distance float64
	// Position is the resource's insertion order in the catalog.
	Position int
	// Fallback is set when the candidate came from catalog order rather than
	// from a similarity search.
	Fallback bool
}

// TriageResult is the classification of an employee message.
type TriageResult struct {
	Urgency           Urgency  `json:"urgency"`
	PriorityScore     int      `json:"priority_score"`
	Sentiment         string   `json:"sentiment"`
	Categories        []string `json:"categories"`
	RedFlags          []string `json:"red_flags"`
	SuggestedResponse string   `json:"suggested_response"`
	Reasoning         string   `json:"reasoning"`
}

// Clone copies t including its slices. A nil result clones to nil.
func (t *TriageResult) Clone() *TriageResult {
	if t == nil {
		return nil
	}
	out := *t
	out.Categories = append([]string(nil), t.Categories...)
	out.RedFlags = append([]string(nil), t.RedFlags...)
	return &out
}
