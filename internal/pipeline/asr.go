package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ooloteam/toxiscan/internal/audio"
	"github.com/ooloteam/toxiscan/internal/feature"
	"github.com/ooloteam/toxiscan/internal/model"
)

// ASRPipeline decodes speech to text and classifies the transcription. Model
// execution failures on this path propagate to the caller as hard errors.
type ASRPipeline struct {
	bundle *model.Bundle
	log    *slog.Logger
}

// NewASRPipeline returns the ASR+text-classification path over the bundle.
func NewASRPipeline(bundle *model.Bundle, logger *slog.Logger) *ASRPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &ASRPipeline{bundle: bundle, log: logger.With("component", "asr_pipeline")}
}

// TranscribeAndClassify runs the full path: encoder, greedy CTC decode, text
// classification. An empty transcription still classifies: empty or
// unintelligible audio yields a legitimate low-confidence label, never an
// error.
func (p *ASRPipeline) TranscribeAndClassify(ctx context.Context, w *audio.Waveform) (ASRClassification, error) {
	in, err := feature.Prepare(w, p.bundle.Encoder.Spec())
	if err != nil {
		return ASRClassification{}, inferenceErr(ctx, "feature adapter", err)
	}

	frames, err := p.bundle.Encoder.Encode(ctx, in)
	if err != nil {
		return ASRClassification{}, inferenceErr(ctx, "encoder", err)
	}

	logits, err := p.bundle.ASR.Logits(ctx, frames)
	if err != nil {
		return ASRClassification{}, inferenceErr(ctx, "asr head", err)
	}
	transcript := collapseCTC(greedyPath(logits), p.bundle.ASR.Vocab())
	p.log.Debug("transcription decoded", "chars", len(transcript))

	classLogits, err := p.bundle.Text.Logits(ctx, transcript)
	if err != nil {
		return ASRClassification{}, inferenceErr(ctx, "text classifier", err)
	}
	if len(classLogits) == 0 || len(classLogits) != len(p.bundle.Text.Labels()) {
		return ASRClassification{}, inferenceErr(ctx, "text classifier",
			fmt.Errorf("%d class logits for %d labels", len(classLogits), len(p.bundle.Text.Labels())))
	}

	probs := softmax32(classLogits)
	best := 0
	for i, v := range probs[1:] {
		if v > probs[best] {
			best = i + 1
		}
	}
	return ASRClassification{
		Transcription: transcript,
		Label:         Label(p.bundle.Text.Labels()[best]),
		Confidence:    probs[best],
	}, nil
}

// softmax32 is numerically stable over class logits.
func softmax32(logits []float32) []float64 {
	max := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > max {
			max = float64(v)
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - max)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
