package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutriqa/nutriqa/db"
	"github.com/nutriqa/nutriqa/internal/chunker"
	"github.com/nutriqa/nutriqa/internal/config"
	"github.com/nutriqa/nutriqa/internal/embedder"
	"github.com/nutriqa/nutriqa/internal/extract"
	"github.com/nutriqa/nutriqa/internal/ingest"
	"github.com/nutriqa/nutriqa/internal/log"
	"github.com/nutriqa/nutriqa/internal/observability"
	"github.com/nutriqa/nutriqa/internal/rag"
	"github.com/nutriqa/nutriqa/internal/vectorstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := log.New(log.Config{Level: cfg.SlogLevel(), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	aiEmbedder := provideEmbedder(g, cfg)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder.New(aiEmbedder, cfg.EmbeddingDimension, logger)

	a.Store = vectorstore.New(pool, logger)

	ch, err := chunker.New(cfg.TokenEncoding, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}
	a.Ingest = ingest.New(extract.DefaultRegistry(), ch, a.Embedder, a.Store, cfg.EmbeddingDimension, logger)

	var rewriter *rag.Rewriter
	if cfg.RewriteEnabled {
		rewriter = rag.NewRewriter(g, cfg.QualifiedModelName(), float64(cfg.Temperature), logger)
	}
	a.RAG = rag.NewPipeline(
		rewriter,
		rag.NewRetriever(a.Embedder, a.Store, logger),
		rag.NewGenerator(g, cfg.QualifiedModelName(), float64(cfg.Temperature), logger),
		rag.Options{
			Index:          cfg.IndexName,
			TopK:           cfg.TopK,
			ScoreThreshold: float64(cfg.ScoreThreshold),
			MinPassages:    cfg.MinPassages,
			RewriteEnabled: cfg.RewriteEnabled,
		},
		logger,
	)

	return a, nil
}

// provideOtelShutdown sets up tracing before Genkit initialization so the
// TracerProvider is ready when Genkit starts instrumenting calls.
func provideOtelShutdown(ctx context.Context, cfg *config.Config) func() {
	if !cfg.Tracing.Enabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.Tracing.AgentHost,
		Environment: cfg.Tracing.Environment,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil || shutdown == nil {
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports openai (default) and gemini providers.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderGemini:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}

	default: // openai
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// Each provider registers embedders differently:
//   - openai: auto-registered in Init(), looked up by model name
//   - gemini: GoogleAIEmbedder(g, modelName)
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderGemini:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	default: // openai
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
