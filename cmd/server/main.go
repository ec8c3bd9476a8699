package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"relay-core/internal/adapter/api"
	"relay-core/internal/adapter/client"
	"relay-core/internal/adapter/store"
	"relay-core/internal/config"
	"relay-core/internal/domain/entity"
	"relay-core/internal/domain/repository"
	"relay-core/internal/logging"
	"relay-core/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "console")
		boot.Fatal().Err(err).Msg("configuration error")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// Redis for preferences and usage counters
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	usageStore := store.NewRedisUsageStore(rdb)

	// Provider adapters: the closed variant set
	gemini, err := client.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init gemini client")
	}
	ollama := client.NewOllamaProvider(cfg.OllamaBaseURL, 0)
	imageRelay := client.NewImageRelayProvider(cfg.ImageRelayURL, 0)

	providers := map[string]repository.Provider{
		gemini.Name():     gemini,
		ollama.Name():     ollama,
		imageRelay.Name(): imageRelay,
	}

	searcher := client.NewSearxClient(cfg.SearchBaseURL, 0, log)
	augmenter := usecase.NewPromptAugmenter(searcher, log)
	estimator := usecase.NewCostEstimator(cfg.RatePerMillionUSD)

	router := usecase.NewFailoverRouter(providers, usageStore, usageStore, augmenter, estimator, log)

	// Qdrant semantic cache, optional: missing host disables it
	var cache repository.ResponseCache
	var embedder repository.Embedder
	var judge repository.MatchJudge
	if cfg.QdrantHost != "" {
		qClient, err := qdrant.NewClient(&qdrant.Config{Host: cfg.QdrantHost, Port: cfg.QdrantPort})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to qdrant")
		}
		qCache := store.NewQdrantCache(qClient, cfg.QdrantCollection, float32(cfg.CacheThreshold), log)
		if err := qCache.InitCollection(ctx, 768); err != nil {
			log.Fatal().Err(err).Msg("failed to init qdrant collection")
		}
		cache = qCache
		embedder = client.NewEmbedderFromClient(gemini.Client(), cfg.EmbeddingModel)
		judge = client.NewCacheJudge(gemini.Client(), cfg.JudgeModel)
	}

	orchestrator := usecase.NewOrchestrator(router, augmenter, estimator, embedder, cache, judge, log)

	pipeline := usecase.NewWaterfallPipeline(router, usecase.WaterfallConfig{
		Architect: entity.StageBinding{Provider: cfg.ArchitectProvider, Model: cfg.ArchitectModel},
		Reasoner:  entity.StageBinding{Provider: cfg.ReasonerProvider, Model: cfg.ReasonerModel},
		Executor:  entity.StageBinding{Provider: cfg.ExecutorProvider, Model: cfg.ExecutorModel},
		Reviewer:  entity.StageBinding{Provider: cfg.ReviewerProvider, Model: cfg.ReviewerModel},
	}, log)

	// Warm the embedder and the primary model so the first request does
	// not eat the cold-start latency.
	if embedder != nil {
		go func(emb repository.Embedder) {
			warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := emb.CreateEmbedding(warmCtx, "warmup"); err != nil {
				log.Warn().Err(err).Msg("embedder warm-up failed")
			}
		}(embedder)
	}

	app := fiber.New(fiber.Config{
		AppName:   "Relay-Core Gateway",
		BodyLimit: 32 * 1024 * 1024, // inline images
	})

	handler := api.NewHandler(orchestrator, pipeline, usageStore, usageStore, log)
	api.SetupRouter(app, handler)

	log.Info().Str("port", cfg.Port).Msg("relay-core gateway running")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
