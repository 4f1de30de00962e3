package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"finassist/internal/domain"
	"finassist/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is an in-memory vector store using brute-force cosine distance.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []domain.IndexEntry
	norms     []float64
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return goerr.New("invalid dimension", goerr.V("dimension", dimension))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.entries = nil
		s.norms = nil
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return goerr.New("storage not initialised")
	}
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return goerr.New("vector dimension mismatch",
				goerr.V("id", e.ID), goerr.V("want", s.dimension), goerr.V("got", len(e.Vector)))
		}
	}
	for _, e := range entries {
		e.Vector = append([]float64(nil), e.Vector...)
		if i := s.indexOf(e.ID); i >= 0 {
			s.entries[i] = e
			s.norms[i] = norm(e.Vector)
			continue
		}
		s.entries = append(s.entries, e)
		s.norms = append(s.norms, norm(e.Vector))
	}
	return nil
}

// Search returns the topK nearest entries by ascending distance. Entries at
// equal distance keep their insertion order.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	if len(s.entries) > 0 && len(vector) != s.dimension {
		return nil, goerr.New("query dimension mismatch",
			goerr.V("want", s.dimension), goerr.V("got", len(vector)))
	}

	qn := norm(vector)
	matches := make([]domain.Match, len(s.entries))
	for i, e := range s.entries {
		matches[i] = domain.Match{
			ID:       e.ID,
			Distance: distance(e.Vector, s.norms[i], vector, qn),
			Document: e.Document,
			Metadata: e.Metadata,
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Storage) indexOf(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// distance is 1 - cosine. A zero vector has no direction and sits at
// distance 1 from everything.
func distance(a []float64, an float64, b []float64, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 1
	}
	return vectorstore.ClampDistance(1 - dot(a, b)/(an*bn))
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 { return math.Sqrt(dot(v, v)) }
