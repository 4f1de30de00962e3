package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"finassist/internal/catalog"
	"finassist/internal/config"
	"finassist/internal/domain"
	"finassist/internal/embedding/llm"
	"finassist/internal/embedding/openai"
	"finassist/internal/embedding/rediscache"
	"finassist/internal/embedding/tfidf"
	"finassist/internal/logging"
	"finassist/internal/metrics"
	"finassist/internal/narrative"
	"finassist/internal/repository/memory"
	"finassist/internal/repository/postgres"
	"finassist/internal/retrieval"
	"finassist/internal/service"
	"finassist/internal/stream"
	"finassist/internal/vectorstore/elastic"
	vmemory "finassist/internal/vectorstore/memory"
	"finassist/internal/vectorstore/qdrant"
)

// app holds the assembled components and the resources to release on exit.
type app struct {
	assistant *service.Assistant
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	closers   []func() error
	logger    *zap.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
}

// build assembles the assistant from cfg and indexes the catalog. A failed
// index is logged and leaves retrieval on the catalog-order fallback.
func build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &app{registry: registry, metrics: metrics.New(registry), logger: logger}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	cases, resources, err := a.repositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var cat *catalog.Catalog
	if cfg.Catalog != "" {
		cat, err = catalog.Load(cfg.Catalog, time.Now())
	} else {
		cat, err = catalog.Seed(time.Now())
	}
	if err != nil {
		return nil, err
	}
	added, err := cat.Install(ctx, cases, resources)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog installed", zap.Int("added", added), zap.Int("resources", len(cat.Resources)), zap.Int("cases", len(cat.Cases)))

	client, err := llmClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := a.embedder(cfg, client)
	if err != nil {
		return nil, err
	}
	resourceStore, caseStore, err := vectorStores(cfg)
	if err != nil {
		return nil, err
	}

	r := retrieval.New(embedder, resourceStore, resources, retrieval.Config{
		MaxDocuments: cfg.Retrieval.MaxDocuments,
		ExcerptChars: cfg.Retrieval.ExcerptChars,
		Timeout:      cfg.EmbedderTimeout(),
		Concurrency:  cfg.Retrieval.Concurrency,
	},
		retrieval.WithPastCases(caseStore),
		retrieval.WithMetrics(a.metrics),
		retrieval.WithLogger(logger),
	)

	provider, err := narrativeProvider(cfg, client)
	if err != nil {
		return nil, err
	}
	triageProvider, rankingProvider := service.Providers(cfg.Narrative.Mode, provider, a.metrics, logger)

	a.assistant = service.New(cases, resources, r,
		service.WithTriage(triageProvider),
		service.WithRanking(rankingProvider),
		service.WithNarrative(provider),
		service.WithStreamer(stream.New(cfg.StreamDelay(), a.metrics, logger)),
		service.WithConfig(service.Config{
			Limit:           cfg.Ranking.Limit,
			Pool:            cfg.Ranking.Pool,
			DigestSentences: cfg.Summarizer.MaxSentences,
			Monthly: service.MonthlySummary{
				CasesResolved:             cfg.Reporting.CasesResolved,
				TotalMoneySaved:           cfg.Reporting.TotalMoneySaved,
				AvgCreditScoreImprovement: cfg.Reporting.AvgCreditScoreImprovement,
				AvgResponseTimeHours:      cfg.Reporting.AvgResponseTimeHours,
			},
		}),
		service.WithMetrics(a.metrics),
		service.WithLogger(logger),
	)

	// an unindexed catalog still serves recommendations in catalog order
	start := time.Now()
	if err := a.assistant.Index(ctx); err != nil {
		logging.Warn(logger, "failed to index resource catalog, serving catalog order", err,
			zap.String("embedder", embedder.Name()), zap.String("vector_store", cfg.VectorStore.Type))
		a.metrics.Fallback("index_failed")
	} else {
		logger.Info("resource index ready",
			zap.String("embedder", embedder.Name()),
			zap.String("vector_store", cfg.VectorStore.Type),
			zap.String("narrative", cfg.Narrative.Mode),
			zap.Duration("took", time.Since(start)))
	}

	ok = true
	return a, nil
}

func (a *app) repositories(ctx context.Context, cfg *config.AppConfig) (domain.CaseRepository, domain.ResourceRepository, error) {
	switch cfg.Database.Type {
	case "memory", "":
		return memory.NewCaseRepository(), memory.NewResourceRepository(), nil
	case "postgres":
		db, err := postgres.Open(postgres.Config{DSN: cfg.Database.DSN, MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour})
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := pingAndMigrate(ctx, db); err != nil {
			return nil, nil, err
		}
		return postgres.NewCaseRepository(db), postgres.NewResourceRepository(db), nil
	}
	return nil, nil, goerr.New("unknown database type", goerr.V("type", cfg.Database.Type))
}

func pingAndMigrate(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return goerr.Wrap(err, "failed to reach postgres")
	}
	return postgres.Migrate(ctx, db)
}

// llmClient returns nil when neither the narrative layer nor the embedder
// needs a model.
func llmClient(ctx context.Context, cfg *config.AppConfig) (gollem.LLMClient, error) {
	if cfg.Narrative.Mode != service.ModeLLM && cfg.Embedder.Type != "llm" {
		return nil, nil
	}
	g := cfg.Narrative.Gemini
	if g == nil || g.ProjectID == "" {
		return nil, goerr.New("gemini project id is required for llm mode",
			goerr.V("narrative", cfg.Narrative.Mode), goerr.V("embedder", cfg.Embedder.Type))
	}
	client, err := gemini.New(ctx, g.ProjectID, g.Location)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}
	return client, nil
}

func (a *app) embedder(cfg *config.AppConfig, client gollem.LLMClient) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		o := cfg.Embedder.OpenAI
		c, err := openai.NewClient(openai.Config{
			BaseURL:        o.BaseURL,
			APIKeyEnv:      o.APIKeyEnv,
			Model:          o.Model,
			Timeout:        time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries:     o.MaxRetries,
			AllowAnonymous: o.AllowAnonymous,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		emb = c
	case "llm":
		e, err := llm.New(client, cfg.Embedder.Dimension)
		if err != nil {
			return nil, err
		}
		emb = e
	default:
		return nil, goerr.New("unknown embedder", goerr.V("type", cfg.Embedder.Type))
	}

	if !cfg.Cache.Enabled {
		return emb, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, Password: cfg.Cache.Password, DB: cfg.Cache.DB})
	a.closers = append(a.closers, rdb.Close)
	return rediscache.New(emb, rdb, rediscache.Config{Prefix: cfg.Cache.Prefix, TTL: cfg.CacheTTL()}, a.logger), nil
}

// vectorStores returns the resources collection and the past-case collection.
func vectorStores(cfg *config.AppConfig) (domain.VectorStore, domain.VectorStore, error) {
	switch cfg.VectorStore.Type {
	case "memory", "":
		return vmemory.NewStorage(), vmemory.NewStorage(), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		timeout := time.Duration(q.TimeoutSecs) * time.Second
		resources := qdrant.NewStorage(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.Collection, Timeout: timeout})
		cases := qdrant.NewStorage(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.CasesCollection, Timeout: timeout})
		return resources, cases, nil
	case "elastic":
		e := cfg.VectorStore.Elastic
		client, err := elastic.NewClient(elastic.Config{Addresses: e.Addresses, Username: e.Username, Password: e.Password, Index: e.Index})
		if err != nil {
			return nil, nil, err
		}
		return elastic.NewStorage(client, e.Index), elastic.NewStorage(client, e.CasesIndex), nil
	}
	return nil, nil, goerr.New("unknown vector store", goerr.V("type", cfg.VectorStore.Type))
}

func narrativeProvider(cfg *config.AppConfig, client gollem.LLMClient) (narrative.Provider, error) {
	switch cfg.Narrative.Mode {
	case service.ModeDeterministic, service.ModeMock, "":
		return narrative.NewMock(), nil
	case service.ModeLLM:
		return narrative.NewLLM(client, cfg.NarrativeTimeout())
	}
	return nil, goerr.New("unknown narrative mode", goerr.V("mode", cfg.Narrative.Mode))
}
