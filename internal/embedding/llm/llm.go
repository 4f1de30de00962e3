package llm

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"finassist/internal/embedding"
)

var _ embedding.Embedder = (*Embedder)(nil)

// Embedder generates embeddings through a gollem LLM client.
type Embedder struct {
	client    gollem.LLMClient
	dimension int
}

// New returns an embedder that requests vectors of the given dimension.
func New(client gollem.LLMClient, dimension int) (*Embedder, error) {
	if client == nil {
		return nil, goerr.New("LLM client is required")
	}
	if dimension <= 0 {
		return nil, goerr.New("embedding dimension must be positive", goerr.V("dimension", dimension))
	}
	return &Embedder{client: client, dimension: dimension}, nil
}

func (e *Embedder) Name() string { return "llm" }

func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.client.GenerateEmbedding(ctx, e.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, goerr.New("no embedding returned")
	}
	return vectors[0], nil
}
