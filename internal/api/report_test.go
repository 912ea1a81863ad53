package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/speech-coach-lab/internal/audio"
	"github.com/speech-coach-lab/internal/storage"
	"github.com/speech-coach-lab/llm"
)

type stubTranscriber struct {
	text  string
	err   error
	calls atomic.Int32
}

func (s *stubTranscriber) Transcribe(ctx context.Context, clip *audio.Clip, correlationID string) (string, error) {
	s.calls.Add(1)
	return s.text, s.err
}

type stubCritic struct {
	critique llm.Critique
	calls    atomic.Int32
}

func (s *stubCritic) AnalyzeContent(ctx context.Context, transcript string) llm.Critique {
	s.calls.Add(1)
	return s.critique
}

func newReportFixture(t *testing.T) (*storage.Store, *storage.Exporter) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, storage.NewExporter(t.TempDir(), store)
}

func exportSession(t *testing.T, store *storage.Store, exp *storage.Exporter, id string) {
	t.Helper()
	if err := store.CreateSession(id); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	clip := audio.NewClip(make([]float32, 2*audio.SampleRate))
	if _, err := exp.Export(context.Background(), id, clip, 1000, 1); err != nil {
		t.Fatalf("Export: %v", err)
	}
}

func TestReportGeneratedAndCached(t *testing.T) {
	store, exp := newReportFixture(t)
	exportSession(t, store, exp, "s1")

	transcriber := &stubTranscriber{text: "um so this went well you know"}
	critic := &stubCritic{critique: llm.Critique{
		FillerWordCounts: map[string]int{"um": 1},
		ClarityScore:     8,
		Suggestions:      []string{"slow down"},
	}}
	h := &ReportHandler{Store: store, Transcriber: transcriber, Critic: critic}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Transcript != "um so this went well you know" {
		t.Fatalf("transcript: got %q", report.Transcript)
	}
	if report.Content.ClarityScore != 8 {
		t.Fatalf("clarity: got %d", report.Content.ClarityScore)
	}
	// 7 words over the 2s clip
	if report.VocalDelivery.SpeakingRate != 210.0 {
		t.Fatalf("speaking rate: got %v", report.VocalDelivery.SpeakingRate)
	}

	// second request is served from the cache without re-running the pipeline
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/report", nil))
	if rec2.Code != http.StatusOK {
		t.Fatalf("cached status: got %d", rec2.Code)
	}
	if rec2.Body.String() != rec.Body.String() {
		t.Fatal("cached body differs from generated body")
	}
	if transcriber.calls.Load() != 1 || critic.calls.Load() != 1 {
		t.Fatalf("pipeline re-ran: transcribe=%d critic=%d", transcriber.calls.Load(), critic.calls.Load())
	}
}

func TestReportFillerFallbackWhenCritiqueEmpty(t *testing.T) {
	store, exp := newReportFixture(t)
	exportSession(t, store, exp, "s1")

	transcriber := &stubTranscriber{text: "um well um like nothing"}
	critic := &stubCritic{critique: llm.PlaceholderCritique()}
	h := &ReportHandler{Store: store, Transcriber: transcriber, Critic: critic}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Content.FillerWordCounts["um"] != 2 || report.Content.FillerWordCounts["like"] != 1 {
		t.Fatalf("fallback counts: got %v", report.Content.FillerWordCounts)
	}
}

func TestReportTranscribeFailureYieldsEmptyTranscript(t *testing.T) {
	store, exp := newReportFixture(t)
	exportSession(t, store, exp, "s1")

	transcriber := &stubTranscriber{err: context.DeadlineExceeded}
	critic := &stubCritic{critique: llm.PlaceholderCritique()}
	h := &ReportHandler{Store: store, Transcriber: transcriber, Critic: critic}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/report", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Transcript != "" {
		t.Fatalf("transcript: got %q", report.Transcript)
	}
	if report.VocalDelivery.SpeakingRate != 0 {
		t.Fatalf("speaking rate without transcript: got %v", report.VocalDelivery.SpeakingRate)
	}
}

func TestReportNotFoundCases(t *testing.T) {
	store, _ := newReportFixture(t)

	// session never closed with audio: row exists but no export
	if err := store.CreateSession("open"); err != nil {
		t.Fatal(err)
	}

	h := &ReportHandler{Store: store, Transcriber: &stubTranscriber{}, Critic: &stubCritic{}}
	for _, id := range []string{"unknown", "open"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/report", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("id %q: status got %d", id, rec.Code)
		}
	}
}

func TestReportRejectsBadRequests(t *testing.T) {
	store, _ := newReportFixture(t)
	h := &ReportHandler{Store: store, Transcriber: &stubTranscriber{}, Critic: &stubCritic{}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/s1/report", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions//report", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty id status: got %d", rec.Code)
	}
}

func TestSessionIDFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/api/sessions/abc/report", "abc"},
		{"/api/sessions/abc/report/", "abc"},
		{"/api/sessions/abc", ""},
		{"/api/sessions//report", ""},
		{"/other/abc/report", ""},
	}
	for _, tc := range cases {
		if got := sessionIDFromPath(tc.path); got != tc.want {
			t.Errorf("path %q: got %q want %q", tc.path, got, tc.want)
		}
	}
}
