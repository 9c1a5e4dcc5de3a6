package assets

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StartCleanupScheduler runs a daily cleanup pass that removes cached
// assets not touched within maxAge. It stops when stopCh closes. A maxAge
// of 0 keeps everything.
func (c *Cache) StartCleanupScheduler(stopCh <-chan struct{}, maxAge time.Duration) {
	if maxAge == 0 {
		return
	}

	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			slog.Info("cache cleanup: next run scheduled", "at", next.Format(time.DateTime))

			select {
			case <-time.After(next.Sub(now)):
				c.Cleanup(maxAge)
			case <-stopCh:
				slog.Info("cache cleanup scheduler stopped")
				return
			}
		}
	}()
}

// Cleanup deletes cached files whose modification time is older than
// maxAge. In-flight downloads and voice temp files are skipped.
func (c *Cache) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		slog.Warn("cache cleanup: failed to read directory", "dir", c.dir, "error", err)
		return
	}

	var deleted int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".download-") || strings.HasPrefix(name, "voice-") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(c.dir, name)
			if err := os.Remove(path); err != nil {
				slog.Warn("cache cleanup: failed to delete file", "path", path, "error", err)
			} else {
				deleted++
				slog.Debug("cache cleanup: deleted file", "file", name)
			}
		}
	}

	if deleted > 0 {
		slog.Info("cache cleanup: deleted stale assets", "count", deleted)
	}
}
