package diag

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Prune removes regular files under dir last modified before now-keep.
// A non-positive keep disables retention. Per-file failures are counted,
// not returned.
func Prune(dir string, keep time.Duration, now time.Time) (removed, failed int, err error) {
	if keep <= 0 {
		return 0, 0, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, eris.Wrapf(err, "diag: read dir %s", dir)
	}

	cutoff := now.Add(-keep)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			failed++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			failed++
			continue
		}
		removed++
	}

	zap.L().Info("diag: pruned old artifacts",
		zap.String("dir", dir),
		zap.Int("removed", removed),
		zap.Int("failed", failed),
		zap.Duration("keep", keep),
	)
	return removed, failed, nil
}

// Reset empties dir and recreates it.
func Reset(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return eris.Wrapf(err, "diag: remove %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "diag: create %s", dir)
	}
	return nil
}
