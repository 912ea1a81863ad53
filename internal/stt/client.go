// Package stt talks to the external speech-to-text service over HTTP. The
// service accepts a WAV body and answers {"text": "..."} the way a
// faster-whisper HTTP wrapper does.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speech-coach-lab/internal/audio"
	"github.com/speech-coach-lab/internal/logging"
)

// TranscribeError is the typed failure returned by Transcribe. Callers
// treat it as data: a failed chunk yields an empty transcript, never an
// aborted stream.
type TranscribeError struct {
	Status int // HTTP status, 0 for transport errors
	Err    error
}

func (e *TranscribeError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transcription failed: status %d", e.Status)
	}
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscribeError) Unwrap() error { return e.Err }

// Client posts audio to the STT service.
type Client struct {
	url        string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(sttURL, language string, timeout time.Duration) *Client {
	return &Client{
		url:        sttURL,
		language:   language,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Transcribe wraps the clip's PCM in a WAV and POSTs it. Transient errors
// (network, 5xx) are retried up to 3 times with exponential backoff. The
// returned transcript may be empty even on success.
func (c *Client) Transcribe(ctx context.Context, clip *audio.Clip, correlationID string) (string, error) {
	reqURL := c.url
	if c.language != "" {
		if u, err := url.Parse(c.url); err == nil {
			q := u.Query()
			q.Set("language", c.language)
			u.RawQuery = q.Encode()
			reqURL = u.String()
		}
	}

	wav := audio.BuildWAV(clip.PCM16(), audio.SampleRate, 1, 16)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", &TranscribeError{Err: ctx.Err()}
			case <-time.After(time.Duration(1<<(attempt-1)) * 500 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(wav))
		if err != nil {
			return "", &TranscribeError{Err: err}
		}
		req.Header.Set("Content-Type", "audio/wav")
		if correlationID != "" {
			req.Header.Set("X-Correlation-ID", correlationID)
		}

		sendTs := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TranscribeError{Err: err}
			logging.Warnw("stt: request failed", "attempt", attempt, "err", err, "correlation_id", correlationID)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &TranscribeError{Status: resp.StatusCode}
			logging.Warnw("stt: server error", "attempt", attempt, "status", resp.StatusCode, "correlation_id", correlationID)
			continue
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return "", &TranscribeError{Status: resp.StatusCode}
		}

		var out struct {
			Text string `json:"text"`
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return "", &TranscribeError{Err: fmt.Errorf("decode response: %w", err)}
		}
		logging.Debugw("stt: response received",
			"correlation_id", correlationID, "latency_ms", time.Since(sendTs).Milliseconds(), "transcript_len", len(out.Text))
		return strings.TrimSpace(out.Text), nil
	}
	return "", lastErr
}
