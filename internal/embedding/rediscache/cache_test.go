package rediscache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"finassist/internal/embedding/rediscache"
	"finassist/internal/embedding/tfidf"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Name() string                  { return "counting" }
func (c *countingEmbedder) Prepare(corpus []string) error { return nil }
func (c *countingEmbedder) Dimension() int                { return 2 }
func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float64{float64(len(text)), 1}, nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestEmbedder_CachesVectors(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{}
	e := rediscache.New(inner, client, rediscache.Config{TTL: time.Minute}, zaptest.NewLogger(t))

	first, err := e.Embed(context.Background(), "rent help")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "rent help")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, mr.Keys(), 1)
	assert.Equal(t, "counting", e.Name())
}

func TestEmbedder_SurvivesRedisOutage(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{}
	e := rediscache.New(inner, client, rediscache.Config{}, zaptest.NewLogger(t))
	mr.Close()

	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, vec)
}

func TestEmbedder_DiscardsCorruptEntries(t *testing.T) {
	mr, client := setup(t)
	inner := &countingEmbedder{}
	e := rediscache.New(inner, client, rediscache.Config{Prefix: "p:"}, zaptest.NewLogger(t))

	_, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	for _, k := range mr.Keys() {
		require.NoError(t, mr.Set(k, "not-json"))
	}

	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, vec)
	assert.Equal(t, 2, inner.calls)
}

func TestEmbedder_PropagatesInnerErrors(t *testing.T) {
	_, client := setup(t)
	inner := &countingEmbedder{err: errors.New("provider down")}
	e := rediscache.New(inner, client, rediscache.Config{}, zaptest.NewLogger(t))

	_, err := e.Embed(context.Background(), "abc")
	assert.ErrorContains(t, err, "provider down")
}

func TestEmbedder_ScopesEntriesToPreparedCorpus(t *testing.T) {
	mr, client := setup(t)
	e := rediscache.New(tfidf.NewEmbedder(), client, rediscache.Config{}, zaptest.NewLogger(t))

	require.NoError(t, e.Prepare([]string{"rent assistance", "utility grant"}))
	before, err := e.Embed(context.Background(), "rent")
	require.NoError(t, err)

	// same vocabulary size, different terms
	require.NoError(t, e.Prepare([]string{"payday loan", "utility grant"}))
	after, err := e.Embed(context.Background(), "rent")
	require.NoError(t, err)

	assert.Len(t, mr.Keys(), 2)
	assert.NotEqual(t, before, after)
	assert.Equal(t, len(before), len(after))
}
