// Package audio loads arbitrary audio/video input and coerces it into the
// fixed waveform format the inference pipelines consume: mono, 16 kHz,
// bounded duration, amplitude in [-1, 1].
package audio

import (
	"fmt"
	"math"
)

// Waveform is a decoded, normalized audio signal. It is created by the
// Normalizer, owned by a single request, and discarded after inference.
type Waveform struct {
	// Samples are mono float32 samples in [-1, 1].
	Samples []float32
	// SampleRate is the sample rate in Hz.
	SampleRate int
}

// Duration returns the clip length in seconds.
func (w *Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Peak returns the maximum absolute sample value.
func (w *Waveform) Peak() float32 {
	var peak float32
	for _, s := range w.Samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	return peak
}

// DecodeError indicates unreadable or corrupt input. It is recoverable from
// the caller's perspective: reject the upload or retry with different input.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
