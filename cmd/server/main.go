package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/speech-coach-lab/internal/api"
	"github.com/speech-coach-lab/internal/audio"
	"github.com/speech-coach-lab/internal/config"
	"github.com/speech-coach-lab/internal/logging"
	"github.com/speech-coach-lab/internal/metrics"
	"github.com/speech-coach-lab/internal/session"
	"github.com/speech-coach-lab/internal/storage"
	"github.com/speech-coach-lab/internal/stt"
	"github.com/speech-coach-lab/llm"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Errorw("invalid configuration", "err", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		logging.Errorw("failed to open database", "path", cfg.Storage.DBPath, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	decoder := audio.NewDecoder(cfg.Pipeline.FFmpegPath, cfg.Pipeline.DecodeTimeout)
	transcriber := stt.NewClient(cfg.STT.URL, cfg.STT.Language, cfg.STT.Timeout)
	critic := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	dispatcher := session.NewDispatcher()
	exporter := storage.NewExporter(cfg.Storage.ExportDir, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	storage.StartExportCleaner(ctx, &wg, cfg.Storage.ExportDir, cfg.Storage.ExportRetention, cfg.Storage.CleanInterval)

	mux := http.NewServeMux()
	mux.Handle("/ws", &api.WSHandler{
		Dispatcher:  dispatcher,
		Decoder:     decoder,
		Transcriber: transcriber,
		Exporter:    exporter,
		Store:       store,
		Coordinator: session.Config{
			ChunkThresholdBytes: cfg.Pipeline.ChunkThresholdBytes,
			FillerVocabulary:    cfg.Pipeline.FillerVocabulary,
			AnalyzeTimeout:      cfg.Pipeline.AnalyzeTimeout,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	mux.Handle("/api/sessions/", &api.ReportHandler{
		Store:       store,
		Transcriber: transcriber,
		Critic:      critic,
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", api.HandleHealth)

	srv := &http.Server{
		Addr: cfg.ListenAddr(),
		// read/write timeouts stay zero: /ws holds the connection open for
		// the whole session
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      api.CORS(mux, cfg.Server.AllowedOrigins),
	}

	go func() {
		<-ctx.Done()
		logging.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Infow("speech coach server listening",
		"addr", cfg.ListenAddr(),
		"chunk_threshold_bytes", cfg.Pipeline.ChunkThresholdBytes,
		"stt_url", cfg.STT.URL,
		"export_dir", cfg.Storage.ExportDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Errorw("server failed", "err", err)
		os.Exit(1)
	}
	wg.Wait()
}
