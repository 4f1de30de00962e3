package domain

import "context"

// IndexEntry is one vector stored in a collection.
type IndexEntry struct {
	ID       string
	Vector   []float64
	Document string
	Metadata map[string]any
}

// Match is a nearest-neighbour hit. Distance is cosine-like, within [0,2],
// where 0 means identical direction.
type Match struct {
	ID       string
	Distance float64
	Document string
	Metadata map[string]any
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists vectors for one collection and supports similarity
// search. Collections are append-only.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, entries []IndexEntry) error
	Search(ctx context.Context, vector []float64, topK int) ([]Match, error)
	Count(ctx context.Context) (int, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// CaseRepository stores cases and their conversations.
type CaseRepository interface {
	Get(ctx context.Context, id string) (*Case, error)
	List(ctx context.Context) ([]*Case, error)
	Append(ctx context.Context, c *Case) error
	AppendMessage(ctx context.Context, caseID string, msg Message) (Message, error)
	AttachDocument(ctx context.Context, caseID string, doc Document) error
	SetStatus(ctx context.Context, caseID, status string) error
	SaveNotes(ctx context.Context, caseID, notes string) error
	Notes(ctx context.Context, caseID string) (string, error)
	SaveOutcome(ctx context.Context, outcome Outcome) error
}

// ResourceRepository is the resource catalog. List returns resources in
// insertion order.
type ResourceRepository interface {
	Get(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context) ([]Resource, error)
	Append(ctx context.Context, r Resource) error
}
