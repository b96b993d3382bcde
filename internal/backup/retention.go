package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// listSnapshots returns every .db file in dir, newest first.
func listSnapshots(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Info{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// prune removes snapshots beyond the per-tier caps. Within each age tier
// the newest survive; anything older than a year goes unconditionally.
func prune(dir string, policy Retention) error {
	snapshots, err := listSnapshots(dir)
	if err != nil {
		return err
	}

	now := time.Now()
	tiers := map[string][]Info{}
	var doomed []string

	for _, snap := range snapshots {
		age := now.Sub(snap.Timestamp)
		switch {
		case age < 24*time.Hour:
			tiers["hourly"] = append(tiers["hourly"], snap)
		case age < 7*24*time.Hour:
			tiers["daily"] = append(tiers["daily"], snap)
		case age < 30*24*time.Hour:
			tiers["weekly"] = append(tiers["weekly"], snap)
		case age < 365*24*time.Hour:
			tiers["monthly"] = append(tiers["monthly"], snap)
		default:
			doomed = append(doomed, snap.Path)
		}
	}

	caps := map[string]int{
		"hourly":  policy.Hourly,
		"daily":   policy.Daily,
		"weekly":  policy.Weekly,
		"monthly": policy.Monthly,
	}
	for tier, kept := range tiers {
		if limit := caps[tier]; len(kept) > limit {
			for _, snap := range kept[limit:] {
				doomed = append(doomed, snap.Path)
			}
		}
	}

	var lastErr error
	for _, path := range doomed {
		if err := os.Remove(path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return nil
}
