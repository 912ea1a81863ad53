package audio

import "encoding/binary"

// SampleRate is the fixed rate all decoded audio is normalized to.
const SampleRate = 16000

// Clip is a decoded mono audio fragment at SampleRate. Samples are
// normalized float32 in [-1, 1]. A Clip is never mutated after creation;
// consumers treat the sample slice as a read-only view.
type Clip struct {
	samples []float32
}

// NewClip wraps the given samples without copying. The caller must not
// retain a mutable reference to the slice.
func NewClip(samples []float32) *Clip {
	return &Clip{samples: samples}
}

// ClipFromPCM16 converts little-endian signed 16-bit PCM bytes into a Clip.
// A trailing odd byte is ignored.
func ClipFromPCM16(pcm []byte) *Clip {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		samples[i] = float32(v) / 32768.0
	}
	return &Clip{samples: samples}
}

// Samples returns the backing sample slice as a read-only view.
func (c *Clip) Samples() []float32 { return c.samples }

// Len returns the number of samples.
func (c *Clip) Len() int { return len(c.samples) }

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	return float64(len(c.samples)) / float64(SampleRate)
}

// PCM16 renders the clip as little-endian signed 16-bit PCM bytes, the
// format the STT service and the WAV export consume.
func (c *Clip) PCM16() []byte {
	out := make([]byte, 2*len(c.samples))
	for i, s := range c.samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}
