package session

import (
	"sync"

	"github.com/speech-coach-lab/internal/logging"
)

// Dispatcher maps session identifiers to their outbound feedback channels.
// It is the only structure shared across sessions' analysis goroutines, so
// all access goes through its lock. Sending to a session that already
// disconnected is a harmless no-op: an in-flight analysis task must be able
// to finish after its session deregistered.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{channels: make(map[string]chan Event)}
}

// Register binds sessionID to ch, overwriting any prior channel for the
// same identifier. Identifiers are unique per connection so an overwrite
// never legitimately happens, but the behavior is defined regardless.
func (d *Dispatcher) Register(sessionID string, ch chan Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.channels[sessionID]; ok {
		logging.Warnw("dispatcher: overwriting existing registration", "session_id", sessionID)
	}
	d.channels[sessionID] = ch
}

// Deregister removes the session's routing entry. The channel itself is
// owned by the connection handler and is not closed here.
func (d *Dispatcher) Deregister(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, sessionID)
}

// Send delivers ev to the session's channel. It returns false without error
// when the session is not registered or its channel is full; feedback is
// best-effort and must never block or crash an analysis task.
func (d *Dispatcher) Send(sessionID string, ev Event) bool {
	d.mu.RLock()
	ch, ok := d.channels[sessionID]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		logging.Debugw("dispatcher: dropping event, channel full", "session_id", sessionID, "type", ev.Type)
		return false
	}
}

// Len returns the number of registered sessions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels)
}
