//go:build !ort

package model

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ooloteam/toxiscan/internal/config"
)

// ErrNativeUnavailable indicates the ONNX Runtime backend is not compiled in.
var ErrNativeUnavailable = errors.New("model: ort backend not available (build without -tags ort)")

// NativeAvailable reports that no native backend is compiled in.
func NativeAvailable() bool { return false }

// newNativeBundle returns an error when built without the ort tag.
func newNativeBundle(_ context.Context, _ config.Config, _ Resolver, _ *slog.Logger) (*Bundle, error) {
	return nil, &LoadError{Stage: "engine", Err: ErrNativeUnavailable}
}
