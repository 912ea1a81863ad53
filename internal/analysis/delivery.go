package analysis

import (
	"math"
	"strings"

	"github.com/speech-coach-lab/internal/audio"
)

// Thresholds for the pause detector. A pause is a gap between non-silent
// intervals longer than longPauseSeconds.
const (
	longPauseSeconds = 1.5
	splitFrameSize   = 512
	splitHopSize     = 256

	// splitTopDB mirrors a 20 dB threshold below the loudest frame when
	// deciding what counts as silence.
	splitTopDB = 20.0
)

const (
	pitchSeriesMaxPoints = 100
	paceBucketSeconds    = 5.0
)

// VocalDelivery aggregates the prosody metrics of one complete recording.
type VocalDelivery struct {
	SpeakingRate    float64   `json:"speaking_rate"`
	PitchVariance   float64   `json:"pitch_variance"`
	LongPausesCount int       `json:"long_pauses_count"`
	PitchOverTime   []float64 `json:"pitch_over_time"`
	PaceOverTime    []float64 `json:"pace_over_time"`
}

// Interval is a half-open span of sample indices judged non-silent.
type Interval struct {
	Start int
	End   int
}

// AnalyzeVocalDelivery computes the full prosody report for a decoded clip
// and its transcript. All sub-metrics are defined for degenerate input:
// silence yields zeros, not errors.
func AnalyzeVocalDelivery(clip *audio.Clip, transcript string) VocalDelivery {
	samples := clip.Samples()
	duration := clip.Duration()
	wordCount := len(strings.Fields(transcript))

	frames := TrackPitch(samples, audio.SampleRate)
	voiced := VoicedF0(frames)
	intervals := NonSilentIntervals(samples, audio.SampleRate)

	return VocalDelivery{
		SpeakingRate:    SpeakingRate(wordCount, duration),
		PitchVariance:   populationStdDev(voiced),
		LongPausesCount: CountLongPauses(intervals, audio.SampleRate, longPauseSeconds),
		PitchOverTime:   PitchOverTime(voiced, pitchSeriesMaxPoints),
		PaceOverTime:    PaceOverTime(wordCount, duration, paceBucketSeconds),
	}
}

// SpeakingRate returns words per minute, or 0 for a zero-length recording.
func SpeakingRate(wordCount int, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(wordCount) / duration * 60.0
}

// NonSilentIntervals splits the samples into spans whose frame energy sits
// within splitTopDB of the loudest frame. Adjacent loud frames merge into
// one interval.
func NonSilentIntervals(samples []float32, sampleRate int) []Interval {
	if len(samples) == 0 {
		return nil
	}
	var rms []float64
	for start := 0; start < len(samples); start += splitHopSize {
		end := start + splitFrameSize
		if end > len(samples) {
			end = len(samples)
		}
		var sumSq float64
		for _, s := range samples[start:end] {
			sumSq += float64(s) * float64(s)
		}
		rms = append(rms, sumSq/float64(end-start))
	}

	var peak float64
	for _, e := range rms {
		if e > peak {
			peak = e
		}
	}
	if peak == 0 {
		return nil
	}
	// energy, not amplitude, so the dB ratio doubles
	threshold := peak / math.Pow(10, splitTopDB/10.0)

	var intervals []Interval
	open := false
	start := 0
	for i, e := range rms {
		loud := e >= threshold
		switch {
		case loud && !open:
			open = true
			start = i * splitHopSize
		case !loud && open:
			open = false
			intervals = append(intervals, Interval{Start: start, End: i * splitHopSize})
		}
	}
	if open {
		intervals = append(intervals, Interval{Start: start, End: len(samples)})
	}
	return intervals
}

// CountLongPauses counts gaps between consecutive non-silent intervals
// longer than minPause seconds. Fewer than two intervals means no gaps.
func CountLongPauses(intervals []Interval, sampleRate int, minPause float64) int {
	if len(intervals) <= 1 {
		return 0
	}
	count := 0
	for i := 0; i < len(intervals)-1; i++ {
		gap := float64(intervals[i+1].Start-intervals[i].End) / float64(sampleRate)
		if gap > minPause {
			count++
		}
	}
	return count
}

// PitchOverTime downsamples the voiced f0 series to at most maxPoints values
// for chart rendering, picking evenly spaced indices. Shorter series pass
// through unchanged.
func PitchOverTime(voiced []float64, maxPoints int) []float64 {
	if len(voiced) <= maxPoints {
		out := make([]float64, len(voiced))
		copy(out, voiced)
		return out
	}
	out := make([]float64, maxPoints)
	step := float64(len(voiced)-1) / float64(maxPoints-1)
	for i := range out {
		out[i] = voiced[int(float64(i)*step+0.5)]
	}
	return out
}

// PaceOverTime estimates words per minute per bucketSeconds-sized slice of
// the recording. Word timestamps are not available, so words are assumed
// evenly spread; recordings shorter than two buckets yield no series.
func PaceOverTime(wordCount int, duration, bucketSeconds float64) []float64 {
	if bucketSeconds <= 0 || duration <= 0 {
		return nil
	}
	buckets := int(duration / bucketSeconds)
	if buckets <= 1 {
		return nil
	}
	wordsPerBucket := float64(wordCount) / float64(buckets)
	wpm := wordsPerBucket / bucketSeconds * 60.0
	out := make([]float64, buckets)
	for i := range out {
		out[i] = wpm
	}
	return out
}
