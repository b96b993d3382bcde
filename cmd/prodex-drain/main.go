// Command prodex-drain runs one synchronous drain pass over the embedding
// job queue and exits. Intended for cron jobs and manual backfills.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/prodexhq/prodex/internal/config"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/internal/storage/postgres"
	"github.com/prodexhq/prodex/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides PRODEX_CONFIG_FILE)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall drain deadline")
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

	embedder, err := llm.NewEmbeddingGenerator(llm.ProviderConfig{
		Provider:       cfg.Provider.Provider,
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		Dimension:      cfg.Provider.Dimension,
	})
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	ix := indexer.New(store, embedder, cfg.Provider.Dimension)
	worker := indexer.NewWorker(store, ix, indexer.WorkerConfig{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		BatchSize:         cfg.Queue.BatchSize,
		MaxReads:          cfg.Queue.MaxReads,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Keep draining until the queue is empty or the deadline passes.
	total := storage.DrainStats{}
	for {
		stats, err := worker.Drain(ctx)
		if err != nil {
			log.Fatalf("Drain failed: %v", err)
		}
		total.Processed += stats.Processed
		total.Failed += stats.Failed
		total.DeadLettered += stats.DeadLettered
		if stats.Processed+stats.Failed+stats.DeadLettered == 0 {
			break
		}
	}

	log.Printf("Drain complete: processed=%d failed=%d dead=%d",
		total.Processed, total.Failed, total.DeadLettered)
	if total.Failed > 0 || total.DeadLettered > 0 {
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	return sqlite.New(cfg.Storage.DataPath)
}
