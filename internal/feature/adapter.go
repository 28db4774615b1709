// Package feature adapts a normalized waveform into the input tensor shape
// the shared speech encoder consumes. It is pure and deterministic: the only
// transformations applied are the padding and attention-mask generation the
// encoder's preprocessing contract requires. Amplitude is never touched here;
// normalization is the audio package's job.
package feature

import (
	"fmt"

	"github.com/ooloteam/toxiscan/internal/audio"
)

// Spec describes the encoder's input contract.
type Spec struct {
	// SampleRate is the rate the encoder was trained at.
	SampleRate int
	// PadMultiple pads the waveform length up to a multiple of this value
	// with zeros. Zero disables padding.
	PadMultiple int
}

// Input is the encoder-ready representation of one clip.
type Input struct {
	// Values is the (possibly zero-padded) sample vector, shape [1, len].
	Values []float32
	// Mask marks real samples with 1 and padding with 0, same length as
	// Values.
	Mask []int64
	// Samples is the sample count before padding.
	Samples int
}

// Prepare wraps a waveform for the encoder described by spec.
func Prepare(w *audio.Waveform, spec Spec) (Input, error) {
	if spec.SampleRate > 0 && w.SampleRate != spec.SampleRate {
		return Input{}, fmt.Errorf("feature: waveform rate %d does not match encoder rate %d",
			w.SampleRate, spec.SampleRate)
	}

	n := len(w.Samples)
	padded := n
	if spec.PadMultiple > 0 && n%spec.PadMultiple != 0 {
		padded = n + spec.PadMultiple - n%spec.PadMultiple
	}

	values := make([]float32, padded)
	copy(values, w.Samples)

	mask := make([]int64, padded)
	for i := 0; i < n; i++ {
		mask[i] = 1
	}

	return Input{Values: values, Mask: mask, Samples: n}, nil
}
