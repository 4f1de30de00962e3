package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/embedding/llm"
)

type mockLLMClient struct {
	embedFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return nil, errors.New("not implemented")
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return c.embedFn(ctx, dimension, input)
}

func TestEmbedder_Embed(t *testing.T) {
	client := &mockLLMClient{embedFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
		assert.Equal(t, 4, dimension)
		assert.Equal(t, []string{"rent"}, input)
		return [][]float64{{0.1, 0.2, 0.3, 0.4}}, nil
	}}
	e, err := llm.New(client, 4)
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "rent")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 4, e.Dimension())
}

func TestEmbedder_Errors(t *testing.T) {
	_, err := llm.New(nil, 4)
	assert.Error(t, err)

	empty := &mockLLMClient{embedFn: func(context.Context, int, []string) ([][]float64, error) {
		return nil, nil
	}}
	e, err := llm.New(empty, 4)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)

	failing := &mockLLMClient{embedFn: func(context.Context, int, []string) ([][]float64, error) {
		return nil, errors.New("quota exceeded")
	}}
	e, err = llm.New(failing, 4)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "quota exceeded")
}
