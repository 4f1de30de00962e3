package tfidf_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/embedding"
	"finassist/internal/embedding/tfidf"
)

func TestEmbedder_RequiresPrepare(t *testing.T) {
	e := tfidf.NewEmbedder()
	_, err := e.Embed(context.Background(), "rent")
	assert.ErrorIs(t, err, tfidf.ErrNotPrepared)
	assert.ErrorIs(t, e.Prepare(nil), tfidf.ErrEmptyCorpus)
}

func TestEmbedder_NormalisedVectors(t *testing.T) {
	e := tfidf.NewEmbedder()
	require.NoError(t, e.Prepare([]string{
		"Emergency rental assistance for eviction",
		"Utility bill discount for electricity and gas",
		"Medical bill hardship program",
	}))
	assert.Greater(t, e.Dimension(), 0)

	vec, err := e.Embed(context.Background(), "eviction and rental help")
	require.NoError(t, err)
	require.Len(t, vec, e.Dimension())

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedder_UnknownTermsGiveZeroVector(t *testing.T) {
	e := tfidf.NewEmbedder()
	require.NoError(t, e.Prepare([]string{"rent assistance"}))

	vec, err := e.Embed(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.True(t, embedding.IsZero(vec))
}

func TestEmbedder_HonoursCancelledContext(t *testing.T) {
	e := tfidf.NewEmbedder()
	require.NoError(t, e.Prepare([]string{"rent assistance"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, "rent")
	assert.ErrorIs(t, err, context.Canceled)
}
