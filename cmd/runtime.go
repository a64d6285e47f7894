package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docvault/docvault/internal/chunker"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/database"
	"github.com/docvault/docvault/internal/ingest"
	"github.com/docvault/docvault/internal/log"
	"github.com/docvault/docvault/internal/observability"
	"github.com/docvault/docvault/internal/provider"
	"github.com/docvault/docvault/internal/rag"
	"github.com/docvault/docvault/internal/ratelimit"
	"github.com/docvault/docvault/internal/store"
)

// app holds the wired application components shared by all commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	store     *store.Store
	llm       *provider.OpenAI
	limiter   *ratelimit.Limiter
	engine    *rag.Engine
	processor *ingest.Processor

	shutdownTracing func(context.Context) error
}

// newApp loads configuration, migrates the schema, and wires every
// component. Callers must Close the returned app.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.TracingEnabled {
		shutdownTracing, err = observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	st := store.NewFromPool(pool, logger)

	limiter, err := ratelimit.New(cfg.RequestsPerMinute, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	llm, err := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.Temperature,
		Timeout:        cfg.ProviderTimeoutDuration(),
	}, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	retriever := rag.NewRetriever(st, llm, limiter, logger)
	engine, err := rag.NewEngine(rag.EngineConfig{
		Retriever:        retriever,
		Chunks:           st,
		Provider:         llm,
		Limiter:          limiter,
		History:          st,
		Logger:           logger,
		ModelName:        llm.Model(),
		MaxContextTokens: cfg.MaxContextTokens,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		pool.Close()
		return nil, err
	}
	processor := ingest.New(st, llm, limiter, splitter, cfg.EmbeddingModel, logger)

	return &app{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		store:           st,
		llm:             llm,
		limiter:         limiter,
		engine:          engine,
		processor:       processor,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases the pool and flushes pending traces.
func (a *app) Close(ctx context.Context) {
	a.pool.Close()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("flushing traces", "error", err)
	}
}
