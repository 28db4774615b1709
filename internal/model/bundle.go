// Package model owns the process-wide inference state: the shared speech
// encoder, the ASR decoding head, the text classifier, and the audio toxicity
// head. A Bundle is built once at startup, is immutable afterwards, and is
// shared read-only by all concurrent requests. Loading failures are fatal:
// the caller aborts instead of serving partial state.
package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ooloteam/toxiscan/internal/classifier"
	"github.com/ooloteam/toxiscan/internal/config"
	"github.com/ooloteam/toxiscan/internal/feature"
)

// Encoder maps an adapted waveform to a per-frame hidden-state sequence.
// Implementations must be safe for concurrent use.
type Encoder interface {
	Encode(ctx context.Context, in feature.Input) ([][]float32, error)
	Spec() feature.Spec
}

// ASRHead maps encoder hidden states to per-frame token logits for greedy
// CTC decoding.
type ASRHead interface {
	Logits(ctx context.Context, frames [][]float32) ([][]float32, error)
	Vocab() *CTCVocab
}

// TextClassifier scores a transcription. Logits are class logits in the same
// order as Labels. Classification must accept empty input: empty or
// unintelligible audio still produces a legitimate low-confidence result.
type TextClassifier interface {
	Logits(ctx context.Context, transcript string) ([]float32, error)
	Labels() []string
}

// Bundle is the immutable set of loaded models shared by all pipelines.
type Bundle struct {
	Encoder  Encoder
	ASR      ASRHead
	Text     TextClassifier
	Toxicity *classifier.Head
	Meta     Metadata
}

// LoadError is fatal at startup. Callers must abort rather than serve with a
// partially-initialized bundle.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model: load %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load builds the bundle for the configured engine. "auto" prefers the
// native ONNX Runtime backend when it is compiled in and falls back to the
// deterministic stub otherwise.
func Load(ctx context.Context, cfg config.Config, res Resolver, logger *slog.Logger) (*Bundle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "model")

	engine := cfg.Engine
	if engine == "" || engine == config.EngineAuto {
		if NativeAvailable() {
			engine = config.EngineORT
		} else {
			engine = config.EngineStub
			log.Warn("auto-selected stub engine (native backend not compiled in, build with -tags ort for production)")
		}
	}

	switch engine {
	case config.EngineORT:
		if !NativeAvailable() {
			return nil, &LoadError{Stage: "engine", Err: fmt.Errorf("engine %q requested but native backend not compiled in (build with -tags ort)", engine)}
		}
		b, err := newNativeBundle(ctx, cfg, res, log)
		if err != nil {
			return nil, err
		}
		log.Info("model bundle loaded",
			"engine", engine,
			"model", b.Meta.Model,
			"version", b.Meta.Version,
			"hidden_size", b.Meta.Encoder.HiddenSize)
		return b, nil
	case config.EngineStub:
		log.Warn("using stub bundle: results are deterministic and not based on model weights")
		return NewStubBundle(), nil
	default:
		return nil, &LoadError{Stage: "engine", Err: fmt.Errorf("unknown engine %q", engine)}
	}
}
