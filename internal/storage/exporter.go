package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/speech-coach-lab/internal/audio"
)

// Exporter writes the final full-session audio to disk as a WAV and records
// the session totals in the store. It implements session.Exporter.
type Exporter struct {
	dir   string
	store *Store
}

func NewExporter(dir string, store *Store) *Exporter {
	return &Exporter{dir: dir, store: store}
}

// Export renders the clip as a 16 kHz mono WAV, writes it atomically, and
// finalizes the session row. Returns the export path.
func (e *Exporter) Export(ctx context.Context, sessionID string, clip *audio.Clip, bytesReceived, chunksAnalyzed int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wav := audio.BuildWAV(clip.PCM16(), audio.SampleRate, 1, 16)
	path := filepath.Join(e.dir, sessionID+".wav")
	if err := SaveFileAtomic(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := e.store.FinalizeSession(sessionID, path, clip.Duration(), bytesReceived, chunksAnalyzed); err != nil {
		return "", err
	}
	return path, nil
}
