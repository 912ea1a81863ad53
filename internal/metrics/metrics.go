package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline metrics. Registered on the default registry and exposed via
// Handler on /metrics.
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speechcoach_active_sessions",
		Help: "Number of currently connected streaming sessions.",
	})

	BytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speechcoach_bytes_ingested_total",
		Help: "Total compressed audio bytes received over WebSocket.",
	})

	ChunksAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speechcoach_chunks_analyzed_total",
		Help: "Chunks successfully decoded and analyzed.",
	})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speechcoach_decode_failures_total",
		Help: "Chunk or full-stream decode failures.",
	})

	TranscribeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speechcoach_transcribe_failures_total",
		Help: "Chunk transcription failures (chunk kept, transcript empty).",
	})

	ChunkAnalysisSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speechcoach_chunk_analysis_seconds",
		Help:    "Wall-clock duration of one chunk analysis task.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	ReportsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speechcoach_reports_served_total",
		Help: "Report requests served, labeled by outcome.",
	}, []string{"outcome"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
