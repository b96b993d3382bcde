// Command prodex-backup snapshots the SQLite chat-core database. By default
// it runs as a long-lived service taking interval snapshots; -oneshot,
// -list, and -restore cover manual operation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prodexhq/prodex/internal/backup"
	"github.com/prodexhq/prodex/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (overrides PRODEX_CONFIG_FILE)")
	dbPath     = flag.String("db", "", "Database file (overrides config)")
	backupDir  = flag.String("dir", "./data/backups", "Backup directory")
	interval   = flag.Duration("interval", time.Hour, "Interval between snapshots")
	verify     = flag.Bool("verify", true, "Verify each snapshot after writing it")
	oneshot    = flag.Bool("oneshot", false, "Take one snapshot and exit")
	listCmd    = flag.Bool("list", false, "List snapshots and exit")
	restore    = flag.String("restore", "", "Restore the database from this snapshot and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.Engine != "sqlite" {
		log.Fatalf("prodex-backup only supports the sqlite engine; use your database's own tooling for %s", cfg.Storage.Engine)
	}

	db := cfg.Storage.DataPath
	if *dbPath != "" {
		db = *dbPath
	}

	svc, err := backup.NewService(backup.Config{
		DBPath:   db,
		Dir:      *backupDir,
		Interval: *interval,
		Verify:   *verify,
	})
	if err != nil {
		log.Fatalf("Failed to create backup service: %v", err)
	}

	ctx := context.Background()

	switch {
	case *restore != "":
		if err := svc.Restore(ctx, *restore); err != nil {
			log.Fatalf("Restore failed: %v", err)
		}

	case *listCmd:
		snapshots, err := svc.List()
		if err != nil {
			log.Fatalf("Failed to list backups: %v", err)
		}
		if len(snapshots) == 0 {
			fmt.Println("No backups found.")
			return
		}
		for _, snap := range snapshots {
			fmt.Printf("%s  %10d bytes  %s\n",
				snap.Timestamp.Format(time.RFC3339), snap.Size, snap.Path)
		}

	case *oneshot:
		result, err := svc.BackupNow(ctx)
		if err != nil {
			log.Fatalf("Backup failed: %v", err)
		}
		log.Printf("Backup written: %s (%d bytes, verified=%v)", result.Path, result.Size, result.Verified)

	default:
		ctx, cancel := context.WithCancel(ctx)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			log.Fatalf("Backup service stopped: %v", err)
		}
	}
}
