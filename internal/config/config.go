package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"finassist/internal/retrieval"
	"finassist/internal/vectorstore"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries"`
	AllowAnonymous bool   `yaml:"allow_anonymous"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Type is one of tfidf, openai or llm.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	Dimension   int                   `yaml:"dimension"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// CacheConfig enables the Redis embedding cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// VectorStoreConfig selects and configures the vector store implementation.
// Type is one of memory, qdrant or elastic.
type VectorStoreConfig struct {
	Type    string         `yaml:"type"`
	Qdrant  *QdrantConfig  `yaml:"qdrant,omitempty"`
	Elastic *ElasticConfig `yaml:"elastic,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL             string `yaml:"url"`
	APIKey          string `yaml:"api_key"`
	Collection      string `yaml:"collection"`
	CasesCollection string `yaml:"cases_collection"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
}

// ElasticConfig contains connection details for an Elasticsearch cluster.
type ElasticConfig struct {
	Addresses  []string `yaml:"addresses"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	Index      string   `yaml:"index"`
	CasesIndex string   `yaml:"cases_index"`
}

// NarrativeConfig selects the triage and ranking provider. Mode is one of
// deterministic, mock or llm.
type NarrativeConfig struct {
	Mode        string        `yaml:"mode"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Gemini      *GeminiConfig `yaml:"gemini,omitempty"`
}

// GeminiConfig identifies the Vertex AI project used by the llm mode and the
// llm embedder.
type GeminiConfig struct {
	ProjectID string `yaml:"project_id"`
	Location  string `yaml:"location"`
}

type RankingConfig struct {
	Limit int `yaml:"limit"`
	Pool  int `yaml:"pool"`
}

type RetrievalConfig struct {
	MaxDocuments int `yaml:"max_documents"`
	ExcerptChars int `yaml:"excerpt_chars"`
	Concurrency  int `yaml:"concurrency"`
}

type StreamConfig struct {
	DelayMillis int `yaml:"delay_ms"`
}

// DatabaseConfig selects case and resource storage. Type is memory or
// postgres.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SummarizerConfig configures document digests.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// ReportingConfig holds the figures shown in the monthly summary.
type ReportingConfig struct {
	CasesResolved             int     `yaml:"cases_resolved"`
	TotalMoneySaved           int     `yaml:"total_money_saved"`
	AvgCreditScoreImprovement int     `yaml:"avg_credit_score_improvement"`
	AvgResponseTimeHours      float64 `yaml:"avg_response_time_hours"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Catalog     string            `yaml:"catalog"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Cache       CacheConfig       `yaml:"cache"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Narrative   NarrativeConfig   `yaml:"narrative"`
	Ranking     RankingConfig     `yaml:"ranking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Stream      StreamConfig      `yaml:"stream"`
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Reporting   ReportingConfig   `yaml:"reporting"`
}

// EmbedderTimeout bounds each embed call.
func (c *AppConfig) EmbedderTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSecs) * time.Second
}

func (c *AppConfig) NarrativeTimeout() time.Duration {
	return time.Duration(c.Narrative.TimeoutSecs) * time.Second
}

func (c *AppConfig) StreamDelay() time.Duration {
	return time.Duration(c.Stream.DelayMillis) * time.Millisecond
}

func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// FINASSIST_* environment variables override values from the file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			if err := applyEnv(cfg, os.LookupEnv); err != nil {
				return nil, err
			}
			applyConfigDefaults(cfg)
			return cfg, nil
		}
		return nil, goerr.Wrap(err, "failed to read config", goerr.V("path", path))
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config", goerr.V("path", path))
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/finassist/config.yaml.
// If neither exists, it writes defaults to ~/.config/finassist/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create config directory", goerr.V("path", path))
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write config", goerr.V("path", path))
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, ".config", "finassist", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf", TimeoutSecs: 10},
		Cache:       CacheConfig{Addr: "localhost:6379", Prefix: "finassist:embedding:", TTLMinutes: 24 * 60},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Narrative:   NarrativeConfig{Mode: "deterministic", TimeoutSecs: 30},
		Ranking:     RankingConfig{Limit: 5, Pool: 10},
		Retrieval:   RetrievalConfig{MaxDocuments: retrieval.DefaultMaxDocuments, ExcerptChars: retrieval.DefaultExcerptChars, Concurrency: 4},
		Stream:      StreamConfig{DelayMillis: 300},
		Database:    DatabaseConfig{Type: "memory"},
		Server:      ServerConfig{Addr: ":8000", ReadTimeoutSecs: 15, WriteTimeoutSecs: 120, MaxUploadBytes: 10 << 20},
		Logging:     LoggingConfig{Level: "info", Format: "console"},
		Summarizer:  SummarizerConfig{MaxSentences: 3},
		Reporting: ReportingConfig{
			CasesResolved:             12,
			TotalMoneySaved:           45000,
			AvgCreditScoreImprovement: 35,
			AvgResponseTimeHours:      4.2,
		},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.TimeoutSecs <= 0 {
		cfg.Embedder.TimeoutSecs = 10
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 3
		}
	}
	if cfg.Embedder.Type == "llm" && cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = 768
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = vectorstore.CollectionResources
		}
		if cfg.VectorStore.Qdrant.CasesCollection == "" {
			cfg.VectorStore.Qdrant.CasesCollection = vectorstore.CollectionPastCases
		}
	}
	if cfg.VectorStore.Type == "elastic" {
		if cfg.VectorStore.Elastic == nil {
			cfg.VectorStore.Elastic = &ElasticConfig{}
		}
		if len(cfg.VectorStore.Elastic.Addresses) == 0 {
			cfg.VectorStore.Elastic.Addresses = []string{"http://localhost:9200"}
		}
		if cfg.VectorStore.Elastic.Index == "" {
			cfg.VectorStore.Elastic.Index = vectorstore.CollectionResources
		}
		if cfg.VectorStore.Elastic.CasesIndex == "" {
			cfg.VectorStore.Elastic.CasesIndex = vectorstore.CollectionPastCases
		}
	}
	if cfg.Narrative.TimeoutSecs <= 0 {
		cfg.Narrative.TimeoutSecs = 30
	}
	if cfg.Narrative.Gemini == nil && (cfg.Narrative.Mode == "llm" || cfg.Embedder.Type == "llm") {
		cfg.Narrative.Gemini = &GeminiConfig{}
	}
	if cfg.Narrative.Gemini != nil && cfg.Narrative.Gemini.Location == "" {
		cfg.Narrative.Gemini.Location = "us-central1"
	}
	if cfg.Ranking.Limit <= 0 {
		cfg.Ranking.Limit = 5
	}
	if cfg.Ranking.Pool < cfg.Ranking.Limit {
		cfg.Ranking.Pool = cfg.Ranking.Limit
	}
	if cfg.Stream.DelayMillis < 0 {
		cfg.Stream.DelayMillis = 0
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnv overrides file values with FINASSIST_* variables.
func applyEnv(cfg *AppConfig, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return goerr.Wrap(err, "invalid integer in environment", goerr.V("key", key), goerr.V("value", v))
		}
		*dst = n
		return nil
	}

	str("FINASSIST_CATALOG", &cfg.Catalog)
	str("FINASSIST_EMBEDDER", &cfg.Embedder.Type)
	str("FINASSIST_VECTOR_STORE", &cfg.VectorStore.Type)
	str("FINASSIST_NARRATIVE_MODE", &cfg.Narrative.Mode)
	str("FINASSIST_DATABASE", &cfg.Database.Type)
	str("FINASSIST_DATABASE_DSN", &cfg.Database.DSN)
	str("FINASSIST_ADDR", &cfg.Server.Addr)
	str("FINASSIST_LOG_LEVEL", &cfg.Logging.Level)
	str("FINASSIST_LOG_FORMAT", &cfg.Logging.Format)
	str("FINASSIST_REDIS_ADDR", &cfg.Cache.Addr)

	if v, ok := lookup("FINASSIST_CACHE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return goerr.Wrap(err, "invalid boolean in environment", goerr.V("key", "FINASSIST_CACHE"), goerr.V("value", v))
		}
		cfg.Cache.Enabled = b
	}
	if v, ok := lookup("FINASSIST_ELASTIC_ADDRESSES"); ok && v != "" {
		if cfg.VectorStore.Elastic == nil {
			cfg.VectorStore.Elastic = &ElasticConfig{}
		}
		cfg.VectorStore.Elastic.Addresses = strings.Split(v, ",")
	}
	if v, ok := lookup("FINASSIST_QDRANT_URL"); ok && v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.URL = v
	}
	if v, ok := lookup("FINASSIST_GEMINI_PROJECT"); ok && v != "" {
		if cfg.Narrative.Gemini == nil {
			cfg.Narrative.Gemini = &GeminiConfig{}
		}
		cfg.Narrative.Gemini.ProjectID = v
	}

	for key, dst := range map[string]*int{
		"FINASSIST_STREAM_DELAY_MS": &cfg.Stream.DelayMillis,
		"FINASSIST_RANKING_LIMIT":   &cfg.Ranking.Limit,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}
