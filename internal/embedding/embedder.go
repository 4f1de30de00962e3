package embedding

import "finassist/internal/domain"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder = domain.Embedder

// IsZero reports whether vec carries no signal, which happens when a query
// shares no vocabulary with the prepared corpus.
func IsZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
