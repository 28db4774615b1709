package model

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ooloteam/toxiscan/internal/classifier"
	"github.com/ooloteam/toxiscan/internal/feature"
)

// Stub dimensions. Small enough that tests stay fast, divisible by the stub
// head's two attention heads.
const (
	StubHiddenSize  = 16
	StubFrameStride = 320 // samples per encoder frame at 16 kHz (20 ms)
)

// StubEncoder derives deterministic per-frame features from the waveform
// without any model weights. Silence maps to all-zero frames.
type StubEncoder struct {
	// Err, when set, is returned by every Encode call. Used to exercise
	// failure paths.
	Err error
	// Calls counts Encode invocations. Not synchronized; test use only.
	Calls int

	spec feature.Spec
}

// NewStubEncoder returns a stub encoder at the standard 16 kHz contract.
func NewStubEncoder() *StubEncoder {
	return &StubEncoder{spec: feature.Spec{SampleRate: 16000}}
}

// Spec returns the encoder input contract.
func (e *StubEncoder) Spec() feature.Spec { return e.spec }

// Encode emits one frame per StubFrameStride samples. Each frame carries the
// window's mean and peak absolute amplitude in alternating dimensions.
func (e *StubEncoder) Encode(_ context.Context, in feature.Input) ([][]float32, error) {
	e.Calls++
	if e.Err != nil {
		return nil, e.Err
	}

	n := in.Samples
	frames := make([][]float32, 0, n/StubFrameStride+1)
	for start := 0; start < n; start += StubFrameStride {
		end := start + StubFrameStride
		if end > n {
			end = n
		}
		var sum, peak float64
		for _, s := range in.Values[start:end] {
			a := math.Abs(float64(s))
			sum += a
			if a > peak {
				peak = a
			}
		}
		mean := sum / float64(end-start)

		frame := make([]float32, StubHiddenSize)
		for d := range frame {
			if d%2 == 0 {
				frame[d] = float32(mean)
			} else {
				frame[d] = float32(peak)
			}
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// StubASRHead emits per-frame logits that greedily decode to Transcript
// through the character vocabulary, with blanks and repeats interleaved so
// the CTC collapse rules are exercised.
type StubASRHead struct {
	Transcript string
	// Err, when set, is returned by every Logits call.
	Err error

	vocab *CTCVocab
}

// NewStubASRHead returns a stub head decoding to the given transcript.
func NewStubASRHead(transcript string) *StubASRHead {
	return &StubASRHead{Transcript: transcript, vocab: CharVocab()}
}

// Vocab returns the character vocabulary.
func (h *StubASRHead) Vocab() *CTCVocab { return h.vocab }

// Logits ignores the encoder frames and synthesizes a logit sequence for the
// configured transcript: blank, then the character twice, per character.
func (h *StubASRHead) Logits(_ context.Context, _ [][]float32) ([][]float32, error) {
	if h.Err != nil {
		return nil, h.Err
	}

	ids := make([]int, 0, len(h.Transcript))
	for _, r := range strings.ToLower(h.Transcript) {
		token := string(r)
		if r == ' ' {
			token = h.vocab.WordDelimiter()
		}
		id := -1
		for i := 0; i < h.vocab.Size(); i++ {
			if h.vocab.Token(i) == token {
				id = i
				break
			}
		}
		if id < 0 {
			return nil, fmt.Errorf("model: stub transcript rune %q not in char vocab", r)
		}
		ids = append(ids, id)
	}

	var logits [][]float32
	emit := func(id int) {
		row := make([]float32, h.vocab.Size())
		row[id] = 5
		logits = append(logits, row)
	}
	for _, id := range ids {
		emit(h.vocab.BlankID())
		emit(id)
		emit(id)
	}
	return logits, nil
}

// StubTextClassifier scores text by keyword: any configured marker makes it
// toxic with a wide margin, empty input scores near the decision boundary.
type StubTextClassifier struct {
	// ToxicMarkers flag a transcript as toxic when present as substrings.
	ToxicMarkers []string
	// Err, when set, is returned by every Logits call.
	Err error
}

// NewStubTextClassifier returns a stub classifier flagging the word "toxic".
func NewStubTextClassifier() *StubTextClassifier {
	return &StubTextClassifier{ToxicMarkers: []string{"toxic"}}
}

// Labels returns the class order matching Logits.
func (c *StubTextClassifier) Labels() []string { return []string{"non-toxic", "toxic"} }

// Logits scores the transcript deterministically.
func (c *StubTextClassifier) Logits(_ context.Context, transcript string) ([]float32, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	lower := strings.ToLower(transcript)
	for _, marker := range c.ToxicMarkers {
		if marker != "" && strings.Contains(lower, marker) {
			return []float32{0, 3}, nil
		}
	}
	if strings.TrimSpace(transcript) == "" {
		// Nothing to classify: stay close to the boundary so the reported
		// confidence is legitimately low.
		return []float32{0.1, 0}, nil
	}
	return []float32{3, 0}, nil
}

// NewStubBundle assembles a fully deterministic bundle: stub encoder, stub
// ASR head with an empty transcript, keyword text classifier, and a zeroed
// toxicity head with a negative output bias so silence scores near zero.
func NewStubBundle() *Bundle {
	return &Bundle{
		Encoder:  NewStubEncoder(),
		ASR:      NewStubASRHead(""),
		Text:     NewStubTextClassifier(),
		Toxicity: NewStubHead(),
		Meta: Metadata{
			Model:   "stub",
			Version: "dev",
			Labels:  []string{"non-toxic", "toxic"},
			Encoder: EncoderMeta{SampleRate: 16000, HiddenSize: StubHiddenSize},
		},
	}
}

// NewStubHead returns a toxicity head with zeroed weights and a negative
// output bias: every clip scores sigmoid(-4) ≈ 0.018, far on the non-toxic
// side of the boundary.
func NewStubHead() *classifier.Head {
	h, err := classifier.NewHead(classifier.Config{
		Dim:     StubHiddenSize,
		Heads:   2,
		Hidden1: 8,
		Hidden2: 8,
	})
	if err != nil {
		panic(err) // static config, cannot fail
	}
	h.Final.B[0] = -4
	return h
}
