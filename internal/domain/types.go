package domain

import "slices"

// Urgency is how quickly a case needs caseworker attention.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

var urgencies = []Urgency{UrgencyCritical, UrgencyHigh, UrgencyMedium, UrgencyLow}

func (u Urgency) Valid() bool { return slices.Contains(urgencies, u) }

// Pressing reports whether the urgency calls for fast-approval resources.
func (u Urgency) Pressing() bool { return u == UrgencyCritical || u == UrgencyHigh }

// Category classifies the kind of hardship a case or resource addresses.
type Category string

const (
	CategoryRent           Category = "rent"
	CategoryUtilities      Category = "utilities"
	CategoryMedical        Category = "medical"
	CategoryDebt           Category = "debt"
	CategoryTransportation Category = "transportation"
	CategoryFood           Category = "food"
	CategoryOther          Category = "other"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryRent, CategoryUtilities, CategoryMedical, CategoryDebt,
	CategoryTransportation, CategoryFood, CategoryOther,
}

func (c Category) Valid() bool { return slices.Contains(Categories, c) }

// Difficulty is the effort needed to apply for a resource.
type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyModerate  Difficulty = "moderate"
	DifficultyDifficult Difficulty = "difficult"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyModerate || d == DifficultyDifficult
}

// Sender identifies who wrote a message.
type Sender string

const (
	SenderEmployee  Sender = "employee"
	SenderAssistant Sender = "assistant"
)

func (s Sender) Valid() bool { return s == SenderEmployee || s == SenderAssistant }

// Case statuses.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)
