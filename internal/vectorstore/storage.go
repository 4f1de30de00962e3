package vectorstore

import (
	"math"

	"finassist/internal/domain"
)

// Storage persists vectors for one collection and supports similarity search.
type Storage = domain.VectorStore

// Collection names.
const (
	CollectionResources = "financial_resources"
	CollectionPastCases = "past_cases"
)

// DefaultTopK is used when a search asks for a non-positive number of results.
const DefaultTopK = 5

// ClampDistance bounds a cosine-like distance to [0,2].
func ClampDistance(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 2
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
