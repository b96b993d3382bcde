package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prodexhq/prodex/internal/assistant"
	"github.com/prodexhq/prodex/internal/chat"
	"github.com/prodexhq/prodex/internal/config"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/search"
	"github.com/prodexhq/prodex/internal/server"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/internal/storage/postgres"
	"github.com/prodexhq/prodex/internal/storage/sqlite"
	"github.com/prodexhq/prodex/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides PRODEX_CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerCfg := llm.ProviderConfig{
		Provider:       cfg.Provider.Provider,
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		Model:          cfg.Provider.Model,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		Dimension:      cfg.Provider.Dimension,
	}
	embedder, err := llm.NewEmbeddingGenerator(providerCfg)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}
	generator, err := llm.NewTextGenerator(providerCfg)
	if err != nil {
		log.Fatalf("Failed to create completion client: %v", err)
	}

	ix := indexer.New(store, embedder, cfg.Provider.Dimension)
	hook := indexer.NewHook(store, store, ix)
	worker := indexer.NewWorker(store, ix, indexer.WorkerConfig{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		BatchSize:         cfg.Queue.BatchSize,
		MaxReads:          cfg.Queue.MaxReads,
	})

	searcher := search.New(store, embedder)

	provider := assistant.NewOpenAIClient(assistant.OpenAIConfig{
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.AssistantModel,
		BaseURL: cfg.Provider.BaseURL,
	})
	manager := assistant.NewManager(provider, store, store, store, assistant.ManagerConfig{
		StalenessTTL:    cfg.Sync.StalenessTTL,
		AttachPollDelay: cfg.Sync.AttachPollDelay,
		AttachMaxPolls:  cfg.Sync.AttachMaxPolls,
		RunPollDelay:    cfg.Sync.RunPollDelay,
		RunMaxPolls:     cfg.Sync.RunMaxPolls,
		AssistantName:   cfg.Sync.AssistantName,
		AssistantPrompt: cfg.Sync.AssistantPrompt,
	})

	orchestrator := chat.New(searcher, generator, manager)

	addr, wsHub := server.Start(ctx, cfg, server.Deps{
		Store:        store,
		Hook:         hook,
		Worker:       worker,
		Searcher:     searcher,
		Manager:      manager,
		Orchestrator: orchestrator,
	})
	log.Printf("Prodex chat API running at http://%s", addr)

	worker.OnJobDone(func(job types.QueueJob) {
		wsHub.BroadcastIndexed(job.TenantID, string(job.EntityType), job.EntityID)
	})
	go worker.Run(ctx, cfg.Queue.DrainInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	return sqlite.New(cfg.Storage.DataPath)
}
