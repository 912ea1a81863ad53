package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/speech-coach-lab/internal/logging"
)

// StartExportCleaner starts a background goroutine that periodically prunes
// exported WAV files older than retention. Caller must call wg.Add(1)
// before calling this function; the goroutine calls wg.Done() on exit.
func StartExportCleaner(ctx context.Context, wg *sync.WaitGroup, dir string, retention, interval time.Duration) {
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cleanExports(dir, retention)
			}
		}
	}()
}

func cleanExports(dir string, retention time.Duration) {
	files, err := os.ReadDir(dir)
	if err != nil {
		logging.Debugw("export cleaner: readDir failed", "dir", dir, "err", err)
		return
	}
	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, fi := range files {
		if !strings.HasSuffix(fi.Name(), ".wav") {
			continue
		}
		info, err := fi.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, fi.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logging.Infow("export cleaner: pruned old exports", "dir", dir, "removed", removed)
	}
}
