package session

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/speech-coach-lab/internal/analysis"
	"github.com/speech-coach-lab/internal/audio"
	"github.com/speech-coach-lab/internal/logging"
	"github.com/speech-coach-lab/internal/metrics"
)

// State is the coordinator lifecycle position.
type State int32

const (
	StateAwaitingData State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingData:
		return "awaiting_data"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ChunkDecoder converts a self-contained compressed span into a Clip.
type ChunkDecoder interface {
	Decode(ctx context.Context, span []byte) (*audio.Clip, error)
}

// Transcriber produces a transcript for a decoded clip. correlationID ties
// request logs to the chunk that produced them.
type Transcriber interface {
	Transcribe(ctx context.Context, clip *audio.Clip, correlationID string) (string, error)
}

// Exporter persists the final full-session clip and records its location.
type Exporter interface {
	Export(ctx context.Context, sessionID string, clip *audio.Clip, bytesReceived, chunksAnalyzed int) (string, error)
}

// Config tunes one coordinator.
type Config struct {
	ChunkThresholdBytes int
	FillerVocabulary    []string
	AnalyzeTimeout      time.Duration
}

// Coordinator runs the per-connection control loop: it feeds inbound byte
// frames to the session's Accumulator, snapshots a chunk whenever the
// pending bytes cross the configured threshold, and hands each chunk to an
// analysis goroutine it never waits on. Ingest must never block on decode or
// transcription latency. On stream end, Close performs the final full-stream
// decode and export before the session is considered closed.
//
// Exactly one goroutine calls Ingest and Close; the analysis goroutines only
// touch immutable snapshots and the Dispatcher.
type Coordinator struct {
	id         string
	cfg        Config
	accum      *Accumulator
	decoder    ChunkDecoder
	stt        Transcriber
	dispatcher *Dispatcher
	exporter   Exporter

	state    atomic.Int32
	chunkSeq atomic.Int64
	wg       sync.WaitGroup
}

func NewCoordinator(id string, cfg Config, dec ChunkDecoder, stt Transcriber, d *Dispatcher, exp Exporter) *Coordinator {
	if len(cfg.FillerVocabulary) == 0 {
		cfg.FillerVocabulary = analysis.DefaultFillerVocabulary
	}
	return &Coordinator{
		id:         id,
		cfg:        cfg,
		accum:      NewAccumulator(),
		decoder:    dec,
		stt:        stt,
		dispatcher: d,
		exporter:   exp,
	}
}

// ID returns the session identifier.
func (c *Coordinator) ID() string { return c.id }

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Ingest appends one inbound frame and evaluates the chunk threshold. When
// the pending bytes exceed the threshold a snapshot is taken and an analysis
// task dispatched without awaiting it; multiple tasks may be in flight.
// Frames arriving after Close started are dropped.
func (c *Coordinator) Ingest(frame []byte) {
	if len(frame) == 0 {
		return
	}
	if s := c.State(); s == StateClosing || s == StateClosed {
		logging.Debugw("coordinator: dropping frame after close", logging.SessionFields(c.id, "bytes", len(frame))...)
		return
	}
	c.state.CompareAndSwap(int32(StateAwaitingData), int32(StateStreaming))

	c.accum.Observe(frame)
	metrics.BytesIngested.Add(float64(len(frame)))

	if c.accum.PendingSize() < c.cfg.ChunkThresholdBytes {
		return
	}
	span := c.accum.TakePendingSnapshot()
	seq := c.chunkSeq.Add(1)
	c.wg.Add(1)
	go c.analyzeChunk(span, seq)
}

// analyzeChunk decodes one snapshot, transcribes it, and pushes filler-word
// feedback through the dispatcher. Every failure is terminal for this chunk
// only; the stream is never aborted from here. Completion order across
// chunks is not guaranteed.
func (c *Coordinator) analyzeChunk(span []byte, seq int64) {
	defer c.wg.Done()
	start := time.Now()
	defer func() {
		metrics.ChunkAnalysisSeconds.Observe(time.Since(start).Seconds())
	}()

	ctx := context.Background()
	if c.cfg.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AnalyzeTimeout)
		defer cancel()
	}
	correlationID := chunkCorrelationID(c.id, seq)

	clip, err := c.decoder.Decode(ctx, span)
	if err != nil {
		metrics.DecodeFailures.Inc()
		logging.Warnw("coordinator: chunk decode failed",
			logging.SessionFields(c.id, "chunk", seq, "bytes", len(span), "err", err)...)
		return
	}
	metrics.ChunksAnalyzed.Inc()

	transcript, err := c.stt.Transcribe(ctx, clip, correlationID)
	if err != nil {
		// A transcription failure for one chunk must not abort the stream;
		// an empty transcript naturally yields no filler matches.
		metrics.TranscribeFailures.Inc()
		logging.Warnw("coordinator: chunk transcription failed",
			logging.SessionFields(c.id, "chunk", seq, "err", err)...)
		transcript = ""
	}

	pitchVar := analysis.PitchVariance(analysis.TrackPitch(clip.Samples(), audio.SampleRate))
	logging.Debugw("coordinator: chunk analyzed",
		logging.SessionFields(c.id, "chunk", seq, "duration_s", clip.Duration(), "pitch_variance", pitchVar, "transcript_len", len(transcript))...)

	words := analysis.DetectFillerWords(transcript, c.cfg.FillerVocabulary)
	if len(words) == 0 {
		return
	}
	// no-op when the session already deregistered
	c.dispatcher.Send(c.id, Event{Type: EventFillerWord, Words: words})
}

// Close transitions the session through Closing to Closed. With any bytes
// received it takes the full snapshot, decodes the whole stream, and runs
// the export to completion; in-flight chunk analyses are left to finish on
// their own, their sends degrading to no-ops after deregistration. A
// session that never received bytes skips decode and export.
func (c *Coordinator) Close(ctx context.Context) error {
	prev := c.state.Swap(int32(StateClosing))
	if State(prev) == StateClosing || State(prev) == StateClosed {
		return nil
	}
	defer func() {
		c.dispatcher.Deregister(c.id)
		c.state.Store(int32(StateClosed))
	}()

	total := c.accum.TotalSize()
	if total == 0 {
		logging.Infow("coordinator: closing empty session", logging.SessionFields(c.id)...)
		return nil
	}

	full := c.accum.FullSnapshot()
	clip, err := c.decoder.Decode(ctx, full)
	if err != nil {
		metrics.DecodeFailures.Inc()
		logging.Errorw("coordinator: final decode failed, no report will be available",
			logging.SessionFields(c.id, "bytes", total, "err", err)...)
		return err
	}
	path, err := c.exporter.Export(ctx, c.id, clip, total, int(c.chunkSeq.Load()))
	if err != nil {
		logging.Errorw("coordinator: export failed", logging.SessionFields(c.id, "err", err)...)
		return err
	}
	logging.Infow("coordinator: session exported",
		logging.SessionFields(c.id, "path", path, "bytes", total, "duration_s", clip.Duration(), "chunks", c.chunkSeq.Load())...)
	return nil
}

// Wait blocks until all dispatched analysis tasks have finished. Used on
// process shutdown and in tests; a closing session does not wait on them.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func chunkCorrelationID(sessionID string, seq int64) string {
	// short and stable enough for log correlation
	return sessionID + "-c" + strconv.FormatInt(seq, 10)
}
