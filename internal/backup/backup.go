// Package backup snapshots the SQLite chat-core database with integrity
// verification and age-tiered retention. Embeddings are expensive to
// recompute, so losing the store means re-paying the provider for every
// tenant's corpus.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds backup service configuration.
type Config struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir is where snapshots are written.
	Dir string

	// Interval between scheduled snapshots. Default: 1h.
	Interval time.Duration

	// Retention caps how many snapshots survive in each age tier.
	Retention Retention

	// Verify runs an integrity check on every new snapshot.
	Verify bool
}

// Retention is the number of snapshots kept per age tier. Snapshots older
// than a year are always removed.
type Retention struct {
	Hourly  int // younger than 24h, default 24
	Daily   int // 1-7 days, default 7
	Weekly  int // 7-30 days, default 4
	Monthly int // 30-365 days, default 12
}

// Info describes one snapshot on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Result summarizes one completed snapshot.
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
	Verified bool
}

// Service writes scheduled and on-demand snapshots of the database file.
type Service struct {
	cfg Config

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

// NewService validates the configuration, applies defaults, and creates
// the snapshot directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retention.Hourly == 0 {
		cfg.Retention.Hourly = 24
	}
	if cfg.Retention.Daily == 0 {
		cfg.Retention.Daily = 7
	}
	if cfg.Retention.Weekly == 0 {
		cfg.Retention.Weekly = 4
	}
	if cfg.Retention.Monthly == 0 {
		cfg.Retention.Monthly = 12
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// Run takes snapshots at the configured interval until the context ends.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup service is already running")
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Backup service started: interval=%v dir=%s", s.cfg.Interval, s.cfg.Dir)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			if result, err := s.BackupNow(ctx); err != nil {
				log.Printf("ERROR: scheduled backup failed: %v", err)
			} else {
				log.Printf("Backup written: %s (%d bytes in %v, verified=%v)",
					result.Path, result.Size, result.Duration.Round(time.Millisecond), result.Verified)
			}
		}
	}
}

// BackupNow writes one snapshot, verifies it when configured, and prunes
// old snapshots. Pruning failures are logged, never returned.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	name := fmt.Sprintf("prodex-%s.db", time.Now().UTC().Format("20060102-150405.000000"))
	path := filepath.Join(s.cfg.Dir, name)

	if err := snapshotDB(ctx, s.cfg.DBPath, path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	result := &Result{Path: path, Size: info.Size(), Duration: time.Since(start)}
	if s.cfg.Verify {
		if err := verifySnapshot(ctx, path); err != nil {
			return nil, fmt.Errorf("backup verification failed: %w", err)
		}
		result.Verified = true
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	if err := prune(s.cfg.Dir, s.cfg.Retention); err != nil {
		log.Printf("WARNING: failed to prune old backups: %v", err)
	}
	return result, nil
}

// List returns all snapshots in the backup directory, newest first.
func (s *Service) List() ([]Info, error) {
	return listSnapshots(s.cfg.Dir)
}

// Restore replaces the database file with a verified snapshot. The server
// must not be running against the file. The current database is kept as a
// .pre-restore copy until the restore succeeds.
func (s *Service) Restore(ctx context.Context, snapshotPath string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return fmt.Errorf("cannot restore while the backup service is running")
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		return fmt.Errorf("backup not found: %w", err)
	}

	keep := s.cfg.DBPath + ".pre-restore"
	if _, err := os.Stat(s.cfg.DBPath); err == nil {
		if err := snapshotDB(ctx, s.cfg.DBPath, keep); err != nil {
			return fmt.Errorf("failed to save current database: %w", err)
		}
	}

	if err := restoreSnapshot(ctx, snapshotPath, s.cfg.DBPath); err != nil {
		return err
	}
	_ = os.Remove(keep)

	log.Printf("Database restored from %s", snapshotPath)
	return nil
}
