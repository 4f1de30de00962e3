package retrieval_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"finassist/internal/catalog"
	"finassist/internal/domain"
	"finassist/internal/embedding/tfidf"
	repomemory "finassist/internal/repository/memory"
	"finassist/internal/retrieval"
	"finassist/internal/vectorstore/memory"
)

type failingStore struct{ domain.VectorStore }

func (failingStore) Search(ctx context.Context, vector []float64, topK int) ([]domain.Match, error) {
	return nil, errors.New("index offline")
}

type fixedStore struct {
	domain.VectorStore
	matches []domain.Match
}

func (s fixedStore) Search(ctx context.Context, vector []float64, topK int) ([]domain.Match, error) {
	return s.matches, nil
}

type stubEmbedder struct{ err error }

func (stubEmbedder) Name() string                  { return "stub" }
func (stubEmbedder) Prepare(corpus []string) error { return nil }
func (stubEmbedder) Dimension() int                { return 1 }
func (e stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float64{1}, nil
}

func seeded(t *testing.T) (*repomemory.ResourceRepository, *domain.Case) {
	t.Helper()
	c, err := catalog.Seed(time.Now())
	require.NoError(t, err)
	repo := repomemory.NewResourceRepository()
	for _, r := range c.Resources {
		require.NoError(t, repo.Append(context.Background(), r))
	}
	return repo, c.Cases[0]
}

func TestBuildQuery(t *testing.T) {
	c := &domain.Case{
		ID: "c", Employer: "Target", Urgency: domain.UrgencyHigh,
		Categories: []domain.Category{domain.CategoryUtilities, domain.CategoryDebt},
		Snapshot:   domain.FinancialSnapshot{AnnualIncome: 31000, CreditScore: 610, Savings: 200, TotalDebt: 4500},
		Documents: []domain.Document{
			{Filename: "empty.pdf", Text: "  "},
			{Filename: "a.pdf", Text: strings.Repeat("é", 400)},
			{Filename: "b.pdf", Text: "bill"},
			{Filename: "c.pdf", Text: "notice"},
			{Filename: "d.pdf", Text: "ignored"},
		},
	}
	q := retrieval.BuildQuery(c, 3, 300)

	lines := strings.Split(q, "\n")
	assert.Equal(t, "- Income: $31000", lines[1])
	assert.Equal(t, "- Credit Score: 610", lines[2])
	assert.Equal(t, "- Savings: $200", lines[3])
	assert.Equal(t, "- Debt: $4500", lines[4])
	assert.Equal(t, "- Issues: utilities, debt", lines[5])
	assert.Equal(t, "- Urgency: high", lines[6])
	assert.Equal(t, "- Employer: Target", lines[7])
	assert.Contains(t, q, "- a.pdf: "+strings.Repeat("é", 300)+"\n")
	assert.NotContains(t, q, strings.Repeat("é", 301))
	assert.Contains(t, q, "- c.pdf: notice")
	assert.NotContains(t, q, "empty.pdf")
	assert.NotContains(t, q, "ignored")

	assert.NotContains(t, retrieval.BuildQuery(c, 0, 300), "Document Information")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "ab", retrieval.Truncate("abc", 2))
	assert.Equal(t, "abc", retrieval.Truncate("abc", 5))
	assert.Equal(t, "", retrieval.Truncate("abc", 0))
	assert.Equal(t, "日本", retrieval.Truncate("日本語", 2))
}

func TestCandidates_EmptyCatalog(t *testing.T) {
	repo := repomemory.NewResourceRepository()
	svc := retrieval.New(tfidf.NewEmbedder(), memory.NewStorage(), repo, retrieval.Config{}, retrieval.WithLogger(zaptest.NewLogger(t)))

	require.NoError(t, svc.IndexResources(context.Background(), nil))
	got := svc.Candidates(context.Background(), &domain.Case{ID: "c"}, 5, 8)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCandidates_FallbackWhenIndexFails(t *testing.T) {
	repo, c := seeded(t)
	svc := retrieval.New(stubEmbedder{}, failingStore{}, repo, retrieval.Config{}, retrieval.WithLogger(zaptest.NewLogger(t)))

	got := svc.Candidates(context.Background(), c, 3, 8)
	require.Len(t, got, 3)
	for i, cand := range got {
		assert.True(t, cand.Fallback)
		assert.Equal(t, i, cand.Position)
		assert.Equal(t, 2.0, cand.Distance)
	}
	assert.Equal(t, "res_1", got[0].Resource.ID)
	assert.Equal(t, "res_3", got[2].Resource.ID)
}

func TestCandidates_FallbackWhenEmbedderFails(t *testing.T) {
	repo, c := seeded(t)
	svc := retrieval.New(stubEmbedder{err: errors.New("timeout")}, memory.NewStorage(), repo, retrieval.Config{})

	got := svc.Candidates(context.Background(), c, 5, 5)
	require.Len(t, got, 5)
	assert.True(t, got[0].Fallback)

	_, err := svc.Retrieve(context.Background(), "rent", 5)
	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
}

func TestCandidates_SkipsUnknownIDs(t *testing.T) {
	repo, c := seeded(t)
	store := fixedStore{matches: []domain.Match{
		{ID: "ghost", Distance: 0.1},
		{ID: "res_4", Distance: 0.2},
		{ID: "res_2", Distance: 0.3},
	}}
	svc := retrieval.New(stubEmbedder{}, store, repo, retrieval.Config{})

	got := svc.Candidates(context.Background(), c, 5, 8)
	require.Len(t, got, 2)
	assert.Equal(t, "res_4", got[0].Resource.ID)
	assert.Equal(t, 3, got[0].Position)
	assert.False(t, got[0].Fallback)
	assert.Equal(t, "res_2", got[1].Resource.ID)

	onlyGhosts := retrieval.New(stubEmbedder{}, fixedStore{matches: []domain.Match{{ID: "ghost"}}}, repo, retrieval.Config{})
	got = onlyGhosts.Candidates(context.Background(), c, 2, 2)
	require.Len(t, got, 2)
	assert.True(t, got[0].Fallback)
}

func TestIndexResources_EndToEnd(t *testing.T) {
	repo, c := seeded(t)
	resources, err := repo.List(context.Background())
	require.NoError(t, err)

	store := memory.NewStorage()
	svc := retrieval.New(tfidf.NewEmbedder(), store, repo, retrieval.Config{Concurrency: 2})
	require.NoError(t, svc.IndexResources(context.Background(), resources))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	got := svc.Candidates(context.Background(), c, 5, 8)
	require.Len(t, got, 7)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
		assert.False(t, got[i].Fallback)
	}

	matches, err := svc.Retrieve(context.Background(), "electricity and gas bills discount", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "res_4", matches[0].ID)
	assert.Equal(t, "utilities", matches[0].Metadata["category"])
}

func TestIndexResources_EmbedFailure(t *testing.T) {
	repo, _ := seeded(t)
	resources, err := repo.List(context.Background())
	require.NoError(t, err)

	svc := retrieval.New(stubEmbedder{err: errors.New("boom")}, memory.NewStorage(), repo, retrieval.Config{})
	assert.Error(t, svc.IndexResources(context.Background(), resources))
}

func TestPastCases(t *testing.T) {
	repo, c := seeded(t)
	resources, err := repo.List(context.Background())
	require.NoError(t, err)

	svc := retrieval.New(tfidf.NewEmbedder(), memory.NewStorage(), repo, retrieval.Config{},
		retrieval.WithPastCases(memory.NewStorage()))
	require.NoError(t, svc.IndexResources(context.Background(), resources))

	similar, err := svc.SimilarCases(context.Background(), c, 3)
	require.NoError(t, err)
	assert.Empty(t, similar)

	require.NoError(t, svc.IndexOutcome(context.Background(), c, domain.Outcome{
		CaseID: c.ID, Resolution: "rent paid", ResourcesUsed: []string{"res_1"}, Success: true,
	}))
	similar, err = svc.SimilarCases(context.Background(), c, 3)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "case_"+c.ID, similar[0].ID)
	assert.Contains(t, similar[0].Document, "Outcome: rent paid")

	noPast := retrieval.New(tfidf.NewEmbedder(), memory.NewStorage(), repo, retrieval.Config{})
	assert.NoError(t, noPast.IndexOutcome(context.Background(), c, domain.Outcome{}))
	similar, err = noPast.SimilarCases(context.Background(), c, 3)
	assert.NoError(t, err)
	assert.Nil(t, similar)
}
