package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/speech-coach-lab/internal/analysis"
	"github.com/speech-coach-lab/internal/audio"
	"github.com/speech-coach-lab/internal/logging"
	"github.com/speech-coach-lab/internal/metrics"
	"github.com/speech-coach-lab/internal/session"
	"github.com/speech-coach-lab/internal/storage"
	"github.com/speech-coach-lab/llm"
)

// ContentCritic produces the LLM content critique for a transcript.
// Implementations never fail; they fall back to a placeholder payload.
type ContentCritic interface {
	AnalyzeContent(ctx context.Context, transcript string) llm.Critique
}

// Report is the full post-session payload.
type Report struct {
	Transcript    string                 `json:"transcript"`
	VocalDelivery analysis.VocalDelivery `json:"vocal_delivery"`
	Content       llm.Critique           `json:"content"`
}

// ReportHandler serves GET /api/sessions/{id}/report. The report is built
// from the exported full-session audio: decode is already done (the export
// is PCM WAV), so the handler transcribes, computes prosody metrics, and
// asks the LLM for a content critique. The rendered JSON is cached in the
// store so repeat requests are cheap.
type ReportHandler struct {
	Store       *storage.Store
	Transcriber session.Transcriber
	Critic      ContentCritic
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := sessionIDFromPath(r.URL.Path)
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if cached, err := h.Store.Report(id); err == nil {
		metrics.ReportsServed.WithLabelValues("cached").Inc()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
		return
	}

	rec, err := h.Store.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && rec.ExportPath == "") {
		// unknown id, still-open session, or a final decode that failed:
		// all surface as not-found
		metrics.ReportsServed.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "no recording found for session")
		return
	}
	if err != nil {
		logging.Errorw("report: session lookup failed", logging.SessionFields(id, "err", err)...)
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	wav, err := os.ReadFile(rec.ExportPath)
	if err != nil {
		if os.IsNotExist(err) {
			metrics.ReportsServed.WithLabelValues("not_found").Inc()
			writeError(w, http.StatusNotFound, "no recording found for session")
			return
		}
		logging.Errorw("report: failed to read export", logging.SessionFields(id, "path", rec.ExportPath, "err", err)...)
		writeError(w, http.StatusInternalServerError, "failed to read recording")
		return
	}
	pcm, sampleRate, channels, err := audio.ParseWAV(wav)
	if err != nil || sampleRate != audio.SampleRate || channels != 1 {
		logging.Errorw("report: export unreadable", logging.SessionFields(id, "path", rec.ExportPath, "err", err, "sample_rate", sampleRate)...)
		writeError(w, http.StatusInternalServerError, "recording unreadable")
		return
	}
	clip := audio.ClipFromPCM16(pcm)

	transcript, err := h.Transcriber.Transcribe(r.Context(), clip, id+"-report")
	if err != nil {
		logging.Warnw("report: transcription failed, continuing with empty transcript",
			logging.SessionFields(id, "err", err)...)
		transcript = ""
	}

	report := Report{
		Transcript:    transcript,
		VocalDelivery: analysis.AnalyzeVocalDelivery(clip, transcript),
		Content:       h.Critic.AnalyzeContent(r.Context(), transcript),
	}
	if len(report.Content.FillerWordCounts) == 0 && transcript != "" {
		// keep the counts useful even when the critique fell back
		report.Content.FillerWordCounts = analysis.CountFillerWords(transcript, analysis.DefaultFillerVocabulary)
	}

	body, err := json.Marshal(report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	if err := h.Store.SaveReport(id, body); err != nil {
		logging.Warnw("report: failed to cache report", logging.SessionFields(id, "err", err)...)
	}
	metrics.ReportsServed.WithLabelValues("generated").Inc()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// sessionIDFromPath extracts {id} from /api/sessions/{id}/report.
func sessionIDFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/sessions/")
	if rest == path {
		return ""
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "report" {
		return ""
	}
	return parts[0]
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
