package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/hraban/opus"

	"github.com/speech-coach-lab/internal/logging"
)

// DecodeErrorKind classifies why a chunk could not be decoded. Callers get
// the failure as data and decide what to do; the decoder never panics past
// its boundary.
type DecodeErrorKind string

const (
	// DecodeErrEmpty means the input span had no bytes.
	DecodeErrEmpty DecodeErrorKind = "empty_input"
	// DecodeErrTranscoder means the external transcoder failed to run or
	// exited nonzero (malformed or truncated compressed audio).
	DecodeErrTranscoder DecodeErrorKind = "transcoder"
	// DecodeErrNoOutput means the transcoder ran but produced no samples.
	DecodeErrNoOutput DecodeErrorKind = "no_output"
	// DecodeErrUnsupported means no decode path accepts the span's format.
	DecodeErrUnsupported DecodeErrorKind = "unsupported_format"
)

// DecodeError is the typed failure returned by Decoder.Decode.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode failed (%s)", e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeKind extracts the failure kind from an error chain, or "" when the
// error is not a decode failure.
func DecodeKind(err error) DecodeErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Decoder converts a self-contained compressed-audio byte span into a Clip
// at SampleRate mono. It shells out to ffmpeg for container formats
// (WebM/Opus, Ogg/Opus, MP4/AAC, ...) and falls back to a native Ogg Opus
// path when ffmpeg is not available. Decoding is stateless; a Decoder is
// safe for concurrent use.
type Decoder struct {
	ffmpegPath string
	timeout    time.Duration
}

// NewDecoder returns a Decoder using the given ffmpeg binary. An empty
// ffmpegPath disables the transcoder and leaves only the native Ogg Opus
// path.
func NewDecoder(ffmpegPath string, timeout time.Duration) *Decoder {
	return &Decoder{ffmpegPath: ffmpegPath, timeout: timeout}
}

// Decode converts span into a Clip or returns a *DecodeError.
func (d *Decoder) Decode(ctx context.Context, span []byte) (*Clip, error) {
	if len(span) == 0 {
		return nil, &DecodeError{Kind: DecodeErrEmpty}
	}

	if d.ffmpegPath != "" {
		clip, err := d.runTranscoder(ctx, span)
		if err == nil {
			return clip, nil
		}
		// An absent binary is an environment problem, not bad audio; try
		// the native path before giving up.
		if !errors.Is(err, exec.ErrNotFound) {
			return nil, err
		}
		logging.Warnw("ffmpeg not found, trying native opus decode", "path", d.ffmpegPath)
	}

	if isOggOpus(span) {
		return decodeOggOpus(span)
	}
	return nil, &DecodeError{Kind: DecodeErrUnsupported, Err: fmt.Errorf("no decode path for %d-byte span", len(span))}
}

// runTranscoder pipes the span through ffmpeg and reads s16le PCM at
// SampleRate mono from stdout. A nonzero exit is a decode failure.
func (d *Decoder) runTranscoder(ctx context.Context, span []byte) (*Clip, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(SampleRate), "-ac", "1",
		"pipe:1")
	cmd.Stdin = bytes.NewReader(span)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, err
		}
		return nil, &DecodeError{Kind: DecodeErrTranscoder, Err: fmt.Errorf("%v: %s", err, truncate(stderr.String(), 200))}
	}
	if stdout.Len() < 2 {
		return nil, &DecodeError{Kind: DecodeErrNoOutput}
	}
	return ClipFromPCM16(stdout.Bytes()), nil
}

// isOggOpus reports whether the span starts with an Ogg capture pattern.
func isOggOpus(span []byte) bool {
	return len(span) >= 4 && bytes.Equal(span[:4], []byte("OggS"))
}

// decodeOggOpus decodes an Ogg Opus stream natively. libopusfile emits
// 48 kHz; the result is decimated to SampleRate. Browser capture here is
// mono, stereo input would come out garbled and is not supported on this
// path.
func decodeOggOpus(span []byte) (*Clip, error) {
	stream, err := opus.NewStream(bytes.NewReader(span))
	if err != nil {
		return nil, &DecodeError{Kind: DecodeErrTranscoder, Err: err}
	}
	defer stream.Close()

	var pcm48 []float32
	buf := make([]float32, 4096)
	for {
		n, err := stream.ReadFloat32(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DecodeError{Kind: DecodeErrTranscoder, Err: err}
		}
		pcm48 = append(pcm48, buf[:n]...)
	}
	if len(pcm48) == 0 {
		return nil, &DecodeError{Kind: DecodeErrNoOutput}
	}
	return NewClip(decimate(pcm48, 48000/SampleRate)), nil
}

// decimate downsamples by averaging each group of factor samples.
func decimate(in []float32, factor int) []float32 {
	if factor <= 1 {
		return in
	}
	out := make([]float32, 0, len(in)/factor+1)
	for i := 0; i+factor <= len(in); i += factor {
		var sum float32
		for j := 0; j < factor; j++ {
			sum += in[i+j]
		}
		out = append(out, sum/float32(factor))
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
