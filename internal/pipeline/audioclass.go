package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ooloteam/toxiscan/internal/audio"
	"github.com/ooloteam/toxiscan/internal/feature"
	"github.com/ooloteam/toxiscan/internal/model"
)

// AudioPipeline classifies a clip directly: encoder hidden states through the
// attention-pooled toxicity head. This path degrades gracefully: every
// failure, panics included, is converted at this boundary into the neutral
// error payload so consumers always receive a well-formed toxicity shape.
// This asymmetry with the ASR path is deliberate; do not unify them.
type AudioPipeline struct {
	bundle *model.Bundle
	log    *slog.Logger
}

// NewAudioPipeline returns the direct audio classification path.
func NewAudioPipeline(bundle *model.Bundle, logger *slog.Logger) *AudioPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &AudioPipeline{bundle: bundle, log: logger.With("component", "audio_pipeline")}
}

// Classify scores the waveform and always returns a well-formed result. The
// returned envelope is either an audio classification or the neutral error
// payload, never a raised error.
func (p *AudioPipeline) Classify(ctx context.Context, w *audio.Waveform) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("audio classification panicked", "panic", r)
			res = errorResult(fmt.Sprintf("audio classification failed: %v", r))
		}
	}()

	in, err := feature.Prepare(w, p.bundle.Encoder.Spec())
	if err != nil {
		return p.soft("feature adapter", err)
	}

	frames, err := p.bundle.Encoder.Encode(ctx, in)
	if err != nil {
		return p.soft("encoder", err)
	}

	probability, err := p.bundle.Toxicity.Forward(frames)
	if err != nil {
		return p.soft("toxicity head", err)
	}

	label, confidence := decide(probability)
	return Result{
		Kind: KindAudio,
		Audio: &AudioClassification{
			DurationSeconds:   w.Duration(),
			SampleRate:        w.SampleRate,
			Label:             label,
			Probability:       probability,
			ConfidencePercent: confidence,
			SafeProbability:   1 - probability,
		},
	}
}

// soft logs a stage failure and folds it into the neutral envelope.
func (p *AudioPipeline) soft(stage string, err error) Result {
	p.log.Warn("audio classification degraded to neutral result", "stage", stage, "error", err)
	return errorResult(fmt.Sprintf("audio classification failed at %s: %v", stage, err))
}
