// Package llm calls an OpenAI-compatible chat-completions endpoint to
// critique a speech transcript. Any failure falls back to a placeholder
// critique rather than propagating; the report pipeline never fails on the
// LLM.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/speech-coach-lab/internal/logging"
)

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// Critique is the structured content analysis for one transcript.
type Critique struct {
	FillerWordCounts map[string]int `json:"filler_word_counts"`
	ClarityScore     int            `json:"clarity_score"`
	Suggestions      []string       `json:"suggestions"`
	ImprovedSentence string         `json:"improved_sentence"`
}

// PlaceholderCritique is returned whenever the LLM call fails, with an
// explicit "analysis failed" suggestion instead of an error.
func PlaceholderCritique() Critique {
	return Critique{
		FillerWordCounts: map[string]int{},
		ClarityScore:     0,
		Suggestions:      []string{"Failed to analyze content due to an API error."},
		ImprovedSentence: "",
	}
}

type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

const critiquePrompt = `Analyze the following speech transcript and provide the following metrics in a JSON format:
1. "filler_word_counts": an object where keys are common filler words (e.g., "um", "uh", "like", "so", "you know") and values are their counts in the transcript.
2. "clarity_score": an integer score from 1 (very unclear) to 10 (very clear) representing the overall clarity of the speech.
3. "suggestions": a list of 3-5 specific and actionable suggestions for improving the content and clarity of the speech.
4. "improved_sentence": an example sentence from the transcript rewritten with the suggestions applied.

Transcript:
%q

Please return ONLY the JSON object.`

// AnalyzeContent critiques the transcript. The returned Critique is always
// usable: on any transport, status, or parse failure it is the placeholder.
func (c *Client) AnalyzeContent(ctx context.Context, transcript string) Critique {
	content, err := c.createChatCompletion(ctx, fmt.Sprintf(critiquePrompt, transcript))
	if err != nil {
		logging.Warnw("llm: critique call failed, using placeholder", "err", err)
		return PlaceholderCritique()
	}

	var critique Critique
	if err := json.Unmarshal([]byte(extractJSON(content)), &critique); err != nil {
		logging.Warnw("llm: critique response not parseable, using placeholder", "err", err, "content_len", len(content))
		return PlaceholderCritique()
	}
	if critique.FillerWordCounts == nil {
		critique.FillerWordCounts = map[string]int{}
	}
	return critique
}

// createChatCompletion posts one user message and returns the assistant
// content. 5xx and 429 are transient, other 4xx permanent.
func (c *Client) createChatCompletion(ctx context.Context, userContent string) (string, error) {
	payload := map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": userContent},
		},
		"temperature": 0.2,
	}
	if c.Model != "" {
		payload["model"] = c.Model
	}
	bodyBytes, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/chat/completions", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(bodyBytes)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("%w: decode error: %v", ErrTransient, err)
		}
		if len(out.Choices) == 0 {
			return "", fmt.Errorf("%w: empty choices", ErrPermanent)
		}
		return out.Choices[0].Message.Content, nil
	}
	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		return "", fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	return "", fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
