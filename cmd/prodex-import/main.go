// Command prodex-import bulk-loads a directory of Markdown product documents
// as page entities for one tenant. Each file is snapshotted and queued for
// embedding exactly like an entity write from the product layer; pass -drain
// to embed the queued pages before exiting.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/prodexhq/prodex/internal/config"
	"github.com/prodexhq/prodex/internal/importer"
	"github.com/prodexhq/prodex/internal/indexer"
	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/internal/storage"
	"github.com/prodexhq/prodex/internal/storage/postgres"
	"github.com/prodexhq/prodex/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (overrides PRODEX_CONFIG_FILE)")
	tenantID := flag.String("tenant", "", "Tenant to import into (required)")
	dir := flag.String("dir", "", "Directory of Markdown documents (required)")
	drain := flag.Bool("drain", false, "Drain the embedding queue after importing")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall import deadline")
	flag.Parse()

	if *tenantID == "" || *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

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
	hook := indexer.NewHook(store, store, ix)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	imp := importer.New(hook)
	jobID, err := imp.StartImport(ctx, *tenantID, *dir)
	if err != nil {
		log.Fatalf("Import failed to start: %v", err)
	}
	result := imp.Wait(jobID)

	log.Printf("Import complete: found=%d pages=%d skipped=%d failed=%d in %v",
		result.FilesFound, result.PagesCreated, result.FilesSkipped, result.FilesFailed,
		result.Duration.Round(time.Millisecond))
	for _, msg := range result.Errors {
		log.Printf("WARNING: %s", msg)
	}

	if *drain {
		worker := indexer.NewWorker(store, ix, indexer.WorkerConfig{
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			BatchSize:         cfg.Queue.BatchSize,
			MaxReads:          cfg.Queue.MaxReads,
		})
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
	}

	if result.FilesFailed > 0 {
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	return sqlite.New(cfg.Storage.DataPath)
}
