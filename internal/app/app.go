package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yuchen-w/papyra/internal/config"
	"github.com/yuchen-w/papyra/internal/core"
	db "github.com/yuchen-w/papyra/internal/core/database"
	"github.com/yuchen-w/papyra/internal/core/extraction"
	"github.com/yuchen-w/papyra/internal/core/indexengine"
	"github.com/yuchen-w/papyra/internal/core/llm"
	"github.com/yuchen-w/papyra/internal/core/normalizer"
	"github.com/yuchen-w/papyra/internal/core/objectclient"
	"github.com/yuchen-w/papyra/internal/core/pipeline"
	"github.com/yuchen-w/papyra/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Orchestrator *pipeline.Orchestrator
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the generation model, %w", err)
	}

	extractor := newExtractor(cfg)
	log.Printf("Extractor: %s", extractor)

	norm := normalizer.New(cfg.MinTextLength)

	indexer := indexengine.NewEngine(dbClient, embedder, indexengine.Config{
		TargetTokens:  500,
		OverlapTokens: 50,
		BatchSize:     16,
		EmbedDim:      cfg.EmbedDim,
	})

	orch, err := pipeline.New(dbClient, objClient, extractor, norm, indexer, llmProvider, pipeline.Config{
		Bucket:         cfg.BucketName,
		MaxErrorLength: cfg.MaxErrorLength,
		Workers:        cfg.WorkerPoolSize,
	})
	if err != nil {
		return nil, err
	}

	docService := services.NewDocumentService(dbClient, objClient, orch, cfg.BucketName, cfg.MaxUploadMB)
	userService := services.NewUserService(dbClient)

	server := NewServer(cfg, docService, userService)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Orchestrator: orch,
		Server:       server,
	}, nil
}

// newExtractor picks the remote extraction service when configured,
// falling back to the in-process converter.
func newExtractor(cfg *config.Config) core.Extractor {
	if cfg.ExtractAPIURL != "" {
		return extraction.NewClient(extraction.Config{
			BaseURL:        cfg.ExtractAPIURL,
			APIKey:         cfg.ExtractAPIKey,
			RequestTimeout: cfg.ExtractTimeout,
			MaxRetries:     cfg.MaxRetries,
			RetryDelay:     cfg.RetryDelay,
			PollInterval:   cfg.PollInterval,
			MaxPollTime:    cfg.MaxPollTime,
		})
	}
	return extraction.NewLocalExtractor(false)
}

func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Release()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
