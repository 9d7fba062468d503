package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/candidex/search/internal/auth"
	"github.com/candidex/search/internal/breaker"
	"github.com/candidex/search/internal/cache"
	"github.com/candidex/search/internal/config"
	"github.com/candidex/search/internal/embedder"
	"github.com/candidex/search/internal/indexing"
	"github.com/candidex/search/internal/llm"
	"github.com/candidex/search/internal/ranking"
	"github.com/candidex/search/internal/rerank"
	"github.com/candidex/search/internal/repository"
	"github.com/candidex/search/internal/repository/postgres"
	"github.com/candidex/search/internal/search"
	"github.com/candidex/search/internal/server"
	"github.com/candidex/search/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting search service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// PostgreSQL with pgvector; the pool is pre-warmed via MinConns.
	db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	tenantRepo := postgres.NewTenantRepo(db)
	profileRepo := postgres.NewProfileRepo(db)
	embeddingRepo := postgres.NewEmbeddingRepo(db)
	vectorStore := vectorstore.NewPgVectorStore(db, slog.Default())

	// Shared caches; a broken cache degrades to always-miss.
	embeddingCache := cache.NewDegrading(cache.NewLRU(cfg.CacheSize, cfg.EmbeddingCacheTTL), slog.Default())
	rerankCache := cache.NewDegrading(cache.NewLRU(cfg.CacheSize, cfg.RerankCacheTTL), slog.Default())

	ollamaEmbedder := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:   cfg.OllamaURL,
		Model:     cfg.OllamaEmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	})
	cachedEmbedder := embedder.NewCached(ollamaEmbedder, embeddingCache)
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	// Rerank provider chain: Gemini primary, local Ollama secondary. The
	// service stays up without a Gemini key, it just has a shorter chain.
	var providers []rerank.ProviderEntry
	if cfg.GeminiAPIKey != "" {
		gemini, err := rerank.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("failed to create gemini provider: %w", err)
		}
		defer gemini.Close()
		providers = append(providers, rerank.ProviderEntry{
			Provider: gemini,
			Breaker:  breaker.New(breaker.WithMaxFailures(cfg.BreakerMaxFailures), breaker.WithCooldown(cfg.BreakerCooldown)),
		})
		slog.Info("initialized Gemini rerank provider", "model", cfg.GeminiModel)
	} else {
		slog.Warn("GEMINI_API_KEY not set, rerank chain has no primary provider")
	}

	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaRerankModel),
	)
	providers = append(providers, rerank.ProviderEntry{
		Provider: rerank.NewOllamaProvider(llmClient, cfg.OllamaRerankModel),
		Breaker:  breaker.New(breaker.WithMaxFailures(cfg.BreakerMaxFailures), breaker.WithCooldown(cfg.BreakerCooldown)),
	})
	slog.Info("initialized Ollama rerank provider", "model", cfg.OllamaRerankModel)

	orchestrator := rerank.NewOrchestrator(providers,
		rerank.WithBudget(cfg.RerankBudget),
		rerank.WithPerCallCap(cfg.RerankPerCallCap),
		rerank.WithReserve(cfg.RerankReserve),
		rerank.WithRetryPolicy(rerank.RetryPolicy{MaxRetries: cfg.RerankRetries, Backoff: cfg.RerankBackoff}),
		rerank.WithCache(rerankCache),
		rerank.WithLogger(slog.Default()),
	)

	ranker, err := ranking.NewRanker(ranking.Weights{
		SkillMatch:       cfg.WeightSkillMatch,
		Confidence:       cfg.WeightConfidence,
		VectorSimilarity: cfg.WeightVectorSimilarity,
		ExperienceMatch:  cfg.WeightExperienceMatch,
	})
	if err != nil {
		return fmt.Errorf("failed to create ranker: %w", err)
	}

	searchSvc := search.NewService(cachedEmbedder, vectorStore, ranker, orchestrator,
		search.WithDefaultLimit(cfg.DefaultLimit),
		search.WithRetrievalMultiplier(cfg.RetrievalMultiplier),
		search.WithRerankTopK(cfg.RerankTopK),
		search.WithMinSimilarity(cfg.MinSimilarity),
		search.WithLogger(slog.Default()),
	)
	indexer := indexing.NewIndexer(cachedEmbedder, embeddingRepo, profileRepo, slog.Default())

	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Expiry = cfg.JWTExpiry
	jwtManager := auth.NewJWTManager(jwtCfg)

	handlers := server.NewHandlers(searchSvc, orchestrator, indexer, slog.Default())
	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
		RequestTimeout: cfg.SearchTimeout + cfg.RerankBudget + 5*time.Second,
	}, handlers, tenantRepo, jwtManager, db)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// Warm the embedding path off the request path so the first query does
	// not pay the model load.
	warm, warmCtx := errgroup.WithContext(ctx)
	warm.Go(func() error {
		warmupCtx, warmupCancel := context.WithTimeout(warmCtx, 10*time.Second)
		defer warmupCancel()
		if _, err := ollamaEmbedder.Embed(warmupCtx, "warmup"); err != nil {
			slog.Warn("embedder warmup failed", "error", err)
		}
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "port", cfg.HTTPPort)
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	slog.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	_ = warm.Wait()
	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.TenantRepository    = (*postgres.TenantRepo)(nil)
	_ repository.ProfileRepository   = (*postgres.ProfileRepo)(nil)
	_ repository.EmbeddingRepository = (*postgres.EmbeddingRepo)(nil)
	_ vectorstore.Retriever          = (*vectorstore.PgVectorStore)(nil)
	_ embedder.Embedder              = (*embedder.OllamaEmbedder)(nil)
	_ search.QueryEmbedder           = (*embedder.Cached)(nil)
	_ search.Reranker                = (*rerank.Orchestrator)(nil)
	_ rerank.Provider                = (*rerank.GeminiProvider)(nil)
	_ rerank.Provider                = (*rerank.OllamaProvider)(nil)
	_ llm.LLM                        = (*llm.OllamaClient)(nil)
)
