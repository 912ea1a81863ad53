// Package api holds the HTTP surface: the streaming WebSocket endpoint and
// the post-session report endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/speech-coach-lab/internal/logging"
	"github.com/speech-coach-lab/internal/metrics"
	"github.com/speech-coach-lab/internal/session"
	"github.com/speech-coach-lab/internal/storage"
)

// closeTimeout bounds the final decode+export on disconnect.
const closeTimeout = 90 * time.Second

// feedbackBuffer is the outbound event channel depth per session. Feedback
// is best-effort; a slow client drops events rather than stalling analysis.
const feedbackBuffer = 16

// WSHandler upgrades /ws connections and runs one session coordinator per
// connection: inbound binary frames carry compressed audio, outbound JSON
// messages carry the session id and incremental feedback events.
type WSHandler struct {
	Dispatcher     *session.Dispatcher
	Decoder        session.ChunkDecoder
	Transcriber    session.Transcriber
	Exporter       session.Exporter
	Store          *storage.Store
	Coordinator    session.Config
	AllowedOrigins []string
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), h.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	ch := make(chan session.Event, feedbackBuffer)
	h.Dispatcher.Register(id, ch)
	if err := h.Store.CreateSession(id); err != nil {
		logging.Warnw("ws: failed to record session", logging.SessionFields(id, "err", err)...)
	}
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	coord := session.NewCoordinator(id, h.Coordinator, h.Decoder, h.Transcriber, h.Dispatcher, h.Exporter)
	logging.Infow("ws: client connected", logging.SessionFields(id, "remote", r.RemoteAddr)...)

	// First outbound message hands the client its session token. Written
	// before the writer pump starts so only one goroutine ever writes.
	if err := conn.WriteJSON(map[string]string{"session_id": id}); err != nil {
		logging.Warnw("ws: failed to send session id", logging.SessionFields(id, "err", err)...)
		h.Dispatcher.Deregister(id)
		return
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev := <-ch:
				if err := conn.WriteJSON(ev); err != nil {
					logging.Debugw("ws: feedback write failed", logging.SessionFields(id, "err", err)...)
					return
				}
			}
		}
	}()

	// Ingestion loop. It suspends only waiting for the next frame or the
	// close signal, never on chunk analysis.
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logging.Warnw("ws: read error", logging.SessionFields(id, "err", err)...)
			}
			break
		}
		if mt == websocket.BinaryMessage {
			coord.Ingest(data)
		}
	}

	close(done)
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := coord.Close(ctx); err != nil {
		logging.Warnw("ws: session close failed", logging.SessionFields(id, "err", err)...)
	}
	logging.Infow("ws: client disconnected", logging.SessionFields(id, "state", coord.State().String())...)
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
