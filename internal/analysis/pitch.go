package analysis

import "math"

// Pitch search bounds, roughly the musical range C2..C7. Fundamental
// frequency estimates outside this band are treated as unvoiced.
const (
	MinPitchHz = 65.41
	MaxPitchHz = 2093.0
)

const (
	pitchFrameSize = 1024 // 64 ms at 16 kHz
	pitchHopSize   = 512

	// voicingThreshold is the minimum normalized autocorrelation peak for a
	// frame to count as voiced. Below it the frame is noise or silence.
	voicingThreshold = 0.5

	// silenceRMS is the frame energy floor; frames quieter than this are
	// unvoiced without running the lag search.
	silenceRMS = 1e-4
)

// PitchFrame is one analysis frame's fundamental-frequency estimate.
type PitchFrame struct {
	F0     float64
	Voiced bool
}

// TrackPitch slides a window across the samples and estimates a fundamental
// frequency per frame using normalized autocorrelation. Silent or aperiodic
// frames come back unvoiced. samples are mono at sampleRate Hz.
func TrackPitch(samples []float32, sampleRate int) []PitchFrame {
	if len(samples) < pitchFrameSize {
		return nil
	}
	minLag := int(float64(sampleRate) / MaxPitchHz)
	maxLag := int(float64(sampleRate) / MinPitchHz)
	if maxLag >= pitchFrameSize {
		maxLag = pitchFrameSize - 1
	}
	if minLag < 2 {
		minLag = 2
	}

	var frames []PitchFrame
	for start := 0; start+pitchFrameSize <= len(samples); start += pitchHopSize {
		frame := samples[start : start+pitchFrameSize]
		frames = append(frames, estimateFrame(frame, sampleRate, minLag, maxLag))
	}
	return frames
}

func estimateFrame(frame []float32, sampleRate, minLag, maxLag int) PitchFrame {
	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	if energy/float64(len(frame)) < silenceRMS*silenceRMS {
		return PitchFrame{}
	}

	corrs := make([]float64, maxLag+1)
	peak := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var num, denA, denB float64
		n := len(frame) - lag
		for i := 0; i < n; i++ {
			a := float64(frame[i])
			b := float64(frame[i+lag])
			num += a * b
			denA += a * a
			denB += b * b
		}
		if denA == 0 || denB == 0 {
			continue
		}
		corrs[lag] = num / math.Sqrt(denA*denB)
		if corrs[lag] > peak {
			peak = corrs[lag]
		}
	}
	if peak < voicingThreshold {
		return PitchFrame{}
	}
	// Prefer the earliest local maximum close to the global peak: the
	// autocorrelation also peaks at integer multiples of the period, and
	// taking the global max can halve the estimate.
	for lag := minLag + 1; lag < maxLag; lag++ {
		c := corrs[lag]
		if c >= 0.9*peak && c >= corrs[lag-1] && c >= corrs[lag+1] {
			return PitchFrame{F0: float64(sampleRate) / float64(lag), Voiced: true}
		}
	}
	return PitchFrame{}
}

// VoicedF0 returns the fundamental-frequency estimates of the voiced frames
// only, in frame order.
func VoicedF0(frames []PitchFrame) []float64 {
	var out []float64
	for _, f := range frames {
		if f.Voiced {
			out = append(out, f.F0)
		}
	}
	return out
}

// PitchVariance returns the population standard deviation of the voiced
// frames' f0. Unvoiced-only or empty input yields 0, never NaN.
func PitchVariance(frames []PitchFrame) float64 {
	return populationStdDev(VoicedF0(frames))
}

func populationStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
