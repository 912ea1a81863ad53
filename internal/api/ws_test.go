package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/speech-coach-lab/internal/audio"
	"github.com/speech-coach-lab/internal/session"
	"github.com/speech-coach-lab/internal/storage"
)

// wsDecoder turns every input byte into one silent sample, so tests control
// clip sizes without real compressed audio.
type wsDecoder struct{}

func (wsDecoder) Decode(ctx context.Context, span []byte) (*audio.Clip, error) {
	return audio.NewClip(make([]float32, len(span))), nil
}

type wsTranscriber struct{ text string }

func (t wsTranscriber) Transcribe(ctx context.Context, clip *audio.Clip, correlationID string) (string, error) {
	return t.text, nil
}

type wsExporter struct {
	mu       sync.Mutex
	sessions []string
	bytes    int
}

func (e *wsExporter) Export(ctx context.Context, sessionID string, clip *audio.Clip, bytesReceived, chunksAnalyzed int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions = append(e.sessions, sessionID)
	e.bytes = bytesReceived
	return "/exports/" + sessionID + ".wav", nil
}

func newWSServer(t *testing.T, exp *wsExporter, transcript string) *httptest.Server {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &WSHandler{
		Dispatcher:     session.NewDispatcher(),
		Decoder:        wsDecoder{},
		Transcriber:    wsTranscriber{text: transcript},
		Exporter:       exp,
		Store:          store,
		Coordinator:    session.Config{ChunkThresholdBytes: 8},
		AllowedOrigins: []string{"*"},
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSessionID(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hello map[string]string
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	id := hello["session_id"]
	if id == "" {
		t.Fatalf("hello missing session_id: %v", hello)
	}
	return id
}

func TestWSHandshakeSendsSessionID(t *testing.T) {
	srv := newWSServer(t, &wsExporter{}, "")
	conn := dialWS(t, srv)
	readSessionID(t, conn)
}

func TestWSFillerFeedback(t *testing.T) {
	srv := newWSServer(t, &wsExporter{}, "and um you know it went fine")
	conn := dialWS(t, srv)
	readSessionID(t, conn)

	// 16 bytes crosses the 8-byte chunk threshold
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 16)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read feedback: %v", err)
	}
	if ev.Type != session.EventFillerWord {
		t.Fatalf("event type: got %q", ev.Type)
	}
	want := []string{"um", "you know"}
	if len(ev.Words) != 2 || ev.Words[0] != want[0] || ev.Words[1] != want[1] {
		t.Fatalf("words: got %v want %v", ev.Words, want)
	}
}

func TestWSCloseTriggersExport(t *testing.T) {
	exp := &wsExporter{}
	srv := newWSServer(t, exp, "")
	conn := dialWS(t, srv)
	id := readSessionID(t, conn)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("audio-frame")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		exp.mu.Lock()
		n := len(exp.sessions)
		exp.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("export never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	exp.mu.Lock()
	defer exp.mu.Unlock()
	if exp.sessions[0] != id {
		t.Fatalf("exported session: got %q want %q", exp.sessions[0], id)
	}
	if exp.bytes != len("audio-frame") {
		t.Fatalf("exported bytes: got %d", exp.bytes)
	}
}

func TestWSEmptySessionSkipsExport(t *testing.T) {
	exp := &wsExporter{}
	srv := newWSServer(t, exp, "")
	conn := dialWS(t, srv)
	readSessionID(t, conn)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	time.Sleep(200 * time.Millisecond)
	exp.mu.Lock()
	defer exp.mu.Unlock()
	if len(exp.sessions) != 0 {
		t.Fatalf("empty session exported: %v", exp.sessions)
	}
}

func TestOriginAllowed(t *testing.T) {
	cases := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"", []string{"https://a.example"}, true},
		{"https://a.example", []string{"*"}, true},
		{"https://a.example", []string{"https://a.example"}, true},
		{"https://evil.example", []string{"https://a.example"}, false},
	}
	for _, tc := range cases {
		if got := originAllowed(tc.origin, tc.allowed); got != tc.want {
			t.Errorf("originAllowed(%q, %v): got %v", tc.origin, tc.allowed, got)
		}
	}
}
