package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/config"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, "deterministic", cfg.Narrative.Mode)
	assert.Equal(t, 5, cfg.Ranking.Limit)
	assert.Equal(t, 300*time.Millisecond, cfg.StreamDelay())
	assert.Equal(t, 30*time.Second, cfg.NarrativeTimeout())
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 12, cfg.Reporting.CasesResolved)
}

func TestLoad_AppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: openai
vector_store:
  type: qdrant
ranking:
  limit: 8
  pool: 2
stream:
  delay_ms: 0
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "financial_resources", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "past_cases", cfg.VectorStore.Qdrant.CasesCollection)
	assert.Equal(t, 8, cfg.Ranking.Limit)
	assert.Equal(t, 8, cfg.Ranking.Pool)
	assert.Zero(t, cfg.StreamDelay())
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.Summarizer.MaxSentences)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FINASSIST_NARRATIVE_MODE", "mock")
	t.Setenv("FINASSIST_STREAM_DELAY_MS", "25")
	t.Setenv("FINASSIST_CACHE", "true")
	t.Setenv("FINASSIST_ELASTIC_ADDRESSES", "http://a:9200,http://b:9200")
	t.Setenv("FINASSIST_VECTOR_STORE", "elastic")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.Narrative.Mode)
	assert.Equal(t, 25*time.Millisecond, cfg.StreamDelay())
	assert.True(t, cfg.Cache.Enabled)
	require.NotNil(t, cfg.VectorStore.Elastic)
	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.VectorStore.Elastic.Addresses)
	assert.Equal(t, "financial_resources", cfg.VectorStore.Elastic.Index)
}

func TestLoad_RejectsBadEnvironment(t *testing.T) {
	t.Setenv("FINASSIST_STREAM_DELAY_MS", "soon")
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_RejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [unterminated"), 0o644))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	cfg.Narrative.Mode = "llm"
	cfg.Narrative.Gemini = &config.GeminiConfig{ProjectID: "demo"}

	require.NoError(t, config.Save(path, cfg))
	loaded, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "llm", loaded.Narrative.Mode)
	assert.Equal(t, "demo", loaded.Narrative.Gemini.ProjectID)
	assert.Equal(t, "us-central1", loaded.Narrative.Gemini.Location)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := config.LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "finassist", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
}
