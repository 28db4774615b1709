// Package pipeline routes inference requests between the two classification
// paths and shapes their outputs into one uniform result envelope.
package pipeline

import "fmt"

// Selector names an inference path. Invalid values are a hard error, never a
// silent default.
type Selector string

const (
	// SelectorASRClassification transcribes speech and classifies the text.
	SelectorASRClassification Selector = "asr_classification"
	// SelectorAudioToAudio classifies the audio directly.
	SelectorAudioToAudio Selector = "audio_to_audio"
)

// ParseSelector validates a caller-supplied selector string.
func ParseSelector(s string) (Selector, error) {
	switch Selector(s) {
	case SelectorASRClassification:
		return SelectorASRClassification, nil
	case SelectorAudioToAudio:
		return SelectorAudioToAudio, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSelector, s)
}

// Label is a classification outcome.
type Label string

const (
	LabelToxic    Label = "toxic"
	LabelNonToxic Label = "non-toxic"
	// LabelError marks the neutral fallback payload.
	LabelError Label = "ERROR"
)

// Kind tags the result union.
type Kind string

const (
	KindASRClassification Kind = "asr_classification"
	KindAudio             Kind = "audio_to_audio"
	KindError             Kind = "error"
)

// ASRClassification is the speech-to-text path's payload.
type ASRClassification struct {
	Transcription string  `json:"transcription"`
	Label         Label   `json:"label"`
	Confidence    float64 `json:"confidence"`
}

// AudioClassification is the direct audio path's payload.
type AudioClassification struct {
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Label           Label   `json:"label"`
	Probability     float64 `json:"probability"`
	// ConfidencePercent reports distance from the 0.5 decision boundary on
	// the winning side, not the raw probability.
	ConfidencePercent float64 `json:"confidence_percent"`
	SafeProbability   float64 `json:"safe_probability"`
}

// ErrorPayload is the neutral fallback shape: callers rendering a toxicity
// score never need to special-case "no score available".
type ErrorPayload struct {
	Message     string  `json:"message"`
	Label       Label   `json:"label"`
	Probability float64 `json:"probability"`
	Confidence  float64 `json:"confidence"`
}

// Result is a tagged union over the two legitimate payloads and the error
// payload. Exactly one of ASR, Audio, Error is set, per Kind.
type Result struct {
	Kind      Kind                 `json:"kind"`
	RequestID string               `json:"request_id,omitempty"`
	ASR       *ASRClassification   `json:"asr_classification,omitempty"`
	Audio     *AudioClassification `json:"audio_classification,omitempty"`
	Error     *ErrorPayload        `json:"error,omitempty"`
}

// errorResult builds the neutral envelope: label ERROR, probability 0.5,
// confidence 0.
func errorResult(message string) Result {
	return Result{
		Kind: KindError,
		Error: &ErrorPayload{
			Message:     message,
			Label:       LabelError,
			Probability: 0.5,
			Confidence:  0,
		},
	}
}

// decide maps a toxicity probability to its label and boundary-relative
// confidence. A probability of exactly 0.5 resolves to non-toxic with
// confidence 50.
func decide(probability float64) (Label, float64) {
	if probability > 0.5 {
		return LabelToxic, probability * 100
	}
	return LabelNonToxic, (1 - probability) * 100
}
