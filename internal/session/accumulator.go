package session

import "sync"

// Accumulator owns the append-only byte buffers for one session: the
// container header captured from the first frame, the full-session bytes
// kept for the final export, and the rolling pending bytes since the last
// chunk snapshot.
//
// The compressed container format the browser sends is not self-describing
// past its first fragment, so every chunk handed to the decoder is
// materialized as header ++ pending, never pending alone.
//
// One coordinator owns each Accumulator, but the mutex keeps snapshot-and-
// clear atomic relative to Observe under Go's preemptive scheduling.
type Accumulator struct {
	mu      sync.Mutex
	header  []byte
	full    []byte
	pending []byte
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Observe appends frame to the full and pending buffers, capturing it as the
// header if it is the first frame of the session. The Accumulator never
// rejects input; upstream data is trusted to be a contiguous append of the
// same logical stream.
func (a *Accumulator) Observe(frame []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.header == nil {
		a.header = append([]byte(nil), frame...)
	}
	a.full = append(a.full, frame...)
	a.pending = append(a.pending, frame...)
}

// TakePendingSnapshot returns header ++ pending as an independently
// decodable span and clears the pending buffer. The full buffer is not
// touched. With no new bytes since the previous snapshot the result is the
// header alone.
func (a *Accumulator) TakePendingSnapshot() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := make([]byte, 0, len(a.header)+len(a.pending))
	snap = append(snap, a.header...)
	snap = append(snap, a.pending...)
	a.pending = a.pending[:0]
	return snap
}

// FullSnapshot returns a copy of every byte observed so far, in delivery
// order. Called once at stream end for the final decode and export.
func (a *Accumulator) FullSnapshot() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.full...)
}

// PendingSize returns the byte count accumulated since the last snapshot,
// excluding the header.
func (a *Accumulator) PendingSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// TotalSize returns the byte count of the full-session buffer.
func (a *Accumulator) TotalSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.full)
}
