//go:build ort

package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ooloteam/toxiscan/internal/classifier"
	"github.com/ooloteam/toxiscan/internal/config"
	"github.com/ooloteam/toxiscan/internal/feature"
	"github.com/ooloteam/toxiscan/internal/text"
)

// ONNX graph tensor names the exported models use.
var (
	encoderInputs  = []string{"input_values", "attention_mask"}
	encoderOutputs = []string{"last_hidden_state"}

	asrInputs  = []string{"hidden_states"}
	asrOutputs = []string{"logits"}

	textInputs  = []string{"input_ids", "attention_mask"}
	textOutputs = []string{"logits"}
)

// ortInitOnce ensures the ONNX Runtime environment is initialized exactly
// once. ortInitErr is stored at package scope so subsequent loads surface the
// failure instead of proceeding with an uninitialized environment.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initORT() error {
	ortInitOnce.Do(func() {
		libPath, err := resolveORTLibPath()
		if err != nil {
			ortInitErr = fmt.Errorf("resolve ORT lib: %w", err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// NativeAvailable reports that the ONNX Runtime backend is compiled in.
func NativeAvailable() bool { return true }

// newNativeBundle resolves every artifact through the registry and builds
// ONNX sessions for the encoder, ASR head and text classifier, plus the
// pure-Go toxicity head from its checkpoint. Any failure is a LoadError.
func newNativeBundle(ctx context.Context, cfg config.Config, res Resolver, log *slog.Logger) (*Bundle, error) {
	if err := initORT(); err != nil {
		return nil, &LoadError{Stage: "onnxruntime", Err: err}
	}

	meta := res.Metadata()
	if len(meta.Labels) != 2 {
		return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("expected 2 labels, manifest has %d", len(meta.Labels))}
	}
	if meta.Encoder.SampleRate <= 0 || meta.Encoder.HiddenSize <= 0 {
		return nil, &LoadError{Stage: "manifest", Err: fmt.Errorf("encoder metadata incomplete: %+v", meta.Encoder)}
	}

	encSession, err := newSession(ctx, res, ArtifactEncoder, encoderInputs, encoderOutputs)
	if err != nil {
		return nil, err
	}
	asrSession, err := newSession(ctx, res, ArtifactASRHead, asrInputs, asrOutputs)
	if err != nil {
		return nil, err
	}
	textSession, err := newSession(ctx, res, ArtifactTextClassifier, textInputs, textOutputs)
	if err != nil {
		return nil, err
	}

	vocabPath, err := res.Resolve(ctx, ArtifactASRVocab)
	if err != nil {
		return nil, err
	}
	ctcVocab, err := LoadCTCVocab(vocabPath)
	if err != nil {
		return nil, &LoadError{Stage: ArtifactASRVocab, Err: err}
	}

	textVocabPath, err := res.Resolve(ctx, ArtifactTextVocab)
	if err != nil {
		return nil, err
	}
	tokenizer, err := text.NewTokenizer(textVocabPath, cfg.MaxTextTokens)
	if err != nil {
		return nil, &LoadError{Stage: ArtifactTextVocab, Err: err}
	}

	headPath, err := res.Resolve(ctx, ArtifactToxicityHead)
	if err != nil {
		return nil, err
	}
	head, err := classifier.LoadCheckpointFile(headPath)
	if err != nil {
		return nil, &LoadError{Stage: ArtifactToxicityHead, Err: err}
	}
	if head.Config().Dim != meta.Encoder.HiddenSize {
		return nil, &LoadError{Stage: ArtifactToxicityHead, Err: fmt.Errorf(
			"head dim %d does not match encoder hidden size %d", head.Config().Dim, meta.Encoder.HiddenSize)}
	}

	log.Debug("native sessions created",
		"encoder_hidden", meta.Encoder.HiddenSize,
		"ctc_vocab", ctcVocab.Size())

	return &Bundle{
		Encoder: &ortEncoder{
			session: encSession,
			spec: feature.Spec{
				SampleRate:  meta.Encoder.SampleRate,
				PadMultiple: meta.Encoder.PadMultiple,
			},
			hidden: meta.Encoder.HiddenSize,
		},
		ASR:      &ortASRHead{session: asrSession, vocab: ctcVocab, hidden: meta.Encoder.HiddenSize},
		Text:     &ortTextClassifier{session: textSession, tokenizer: tokenizer, labels: meta.Labels},
		Toxicity: head,
		Meta:     meta,
	}, nil
}

func newSession(ctx context.Context, res Resolver, name string, inputs, outputs []string) (*ort.DynamicAdvancedSession, error) {
	path, err := res.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Stage: name, Err: err}
	}
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data, inputs, outputs, nil)
	if err != nil {
		return nil, &LoadError{Stage: name, Err: fmt.Errorf("create session: %w", err)}
	}
	return session, nil
}

// ortEncoder runs the shared speech encoder: waveform in, per-frame hidden
// states out. Sessions are safe for concurrent Run; tensors are per-call.
type ortEncoder struct {
	session *ort.DynamicAdvancedSession
	spec    feature.Spec
	hidden  int
}

func (e *ortEncoder) Spec() feature.Spec { return e.spec }

func (e *ortEncoder) Encode(ctx context.Context, in feature.Input) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Values) == 0 {
		return nil, fmt.Errorf("model: encoder received empty input")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(in.Values))), in.Values)
	if err != nil {
		return nil, fmt.Errorf("model: create input tensor: %w", err)
	}
	defer inputTensor.Destroy()
	maskTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(in.Mask))), in.Mask)
	if err != nil {
		return nil, fmt.Errorf("model: create mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("model: encoder inference: %w", err)
	}
	return framesFromTensor(outputs[0], e.hidden)
}

// ortASRHead maps encoder hidden states to per-frame CTC logits.
type ortASRHead struct {
	session *ort.DynamicAdvancedSession
	vocab   *CTCVocab
	hidden  int
}

func (h *ortASRHead) Vocab() *CTCVocab { return h.vocab }

func (h *ortASRHead) Logits(ctx context.Context, frames [][]float32) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}

	flat := make([]float32, 0, len(frames)*h.hidden)
	for _, f := range frames {
		flat = append(flat, f...)
	}
	hiddenTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(frames)), int64(h.hidden)), flat)
	if err != nil {
		return nil, fmt.Errorf("model: create hidden-state tensor: %w", err)
	}
	defer hiddenTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := h.session.Run([]ort.Value{hiddenTensor}, outputs); err != nil {
		return nil, fmt.Errorf("model: asr head inference: %w", err)
	}
	return framesFromTensor(outputs[0], h.vocab.Size())
}

// ortTextClassifier tokenizes a transcript and scores it.
type ortTextClassifier struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *text.Tokenizer
	labels    []string
}

func (c *ortTextClassifier) Labels() []string { return c.labels }

func (c *ortTextClassifier) Logits(ctx context.Context, transcript string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := c.tokenizer.Encode(transcript)
	idTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), ids)
	if err != nil {
		return nil, fmt.Errorf("model: create token tensor: %w", err)
	}
	defer idTensor.Destroy()
	maskTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(mask))), mask)
	if err != nil {
		return nil, fmt.Errorf("model: create mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := c.session.Run([]ort.Value{idTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("model: text classifier inference: %w", err)
	}
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("model: text classifier returned non-float32 output")
	}
	defer out.Destroy()

	logits := make([]float32, len(out.GetData()))
	copy(logits, out.GetData())
	if len(logits) != len(c.labels) {
		return nil, fmt.Errorf("model: %d class logits for %d labels", len(logits), len(c.labels))
	}
	return logits, nil
}

// framesFromTensor reshapes a [1, T, width] output tensor into T slices of
// width floats, copying out of ORT-owned memory before destroying it.
func framesFromTensor(v ort.Value, width int) ([][]float32, error) {
	out, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("model: inference returned non-float32 output")
	}
	defer out.Destroy()

	data := out.GetData()
	if width <= 0 || len(data)%width != 0 {
		return nil, fmt.Errorf("model: output length %d not divisible by width %d", len(data), width)
	}
	frames := make([][]float32, len(data)/width)
	for i := range frames {
		frame := make([]float32, width)
		copy(frame, data[i*width:(i+1)*width])
		frames[i] = frame
	}
	return frames, nil
}
