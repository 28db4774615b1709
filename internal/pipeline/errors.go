package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidSelector marks an unsupported pipeline name: a caller bug, not
// retryable.
var ErrInvalidSelector = errors.New("pipeline: invalid pipeline selector")

// ErrInferenceTimeout marks a caller-supplied deadline expiring during
// inference. Retryable from the caller's perspective; there is no internal
// retry.
var ErrInferenceTimeout = errors.New("pipeline: inference deadline exceeded")

// InferenceError is a model execution failure on the ASR/text-classification
// path. It is surfaced to the caller and never auto-retried.
type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// inferenceErr wraps a stage failure, translating context deadline expiry
// into ErrInferenceTimeout.
func inferenceErr(ctx context.Context, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrInferenceTimeout, stage)
	}
	return &InferenceError{Stage: stage, Err: err}
}
