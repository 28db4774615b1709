package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ooloteam/toxiscan/internal/audio"
	"github.com/ooloteam/toxiscan/internal/model"
)

// Router dispatches requests to one of the two pipelines and translates
// every outcome into the uniform result envelope. It performs no inference
// itself. Requests are independent: the router holds only the immutable
// bundle and the stateless normalizer, so concurrent use needs no locking.
type Router struct {
	norm      *audio.Normalizer
	asrPath   *ASRPipeline
	audioPath *AudioPipeline
	log       *slog.Logger
}

// NewRouter wires the two pipelines over a shared bundle and normalizer.
func NewRouter(bundle *model.Bundle, norm *audio.Normalizer, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		norm:      norm,
		asrPath:   NewASRPipeline(bundle, logger),
		audioPath: NewAudioPipeline(bundle, logger),
		log:       logger.With("component", "router"),
	}
}

// RouteFile normalizes the file at path and dispatches to the selected
// pipeline.
func (r *Router) RouteFile(ctx context.Context, selector, path string) (Result, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return errorResult(err.Error()), err
	}
	w, err := r.norm.FromFile(ctx, path)
	if err != nil {
		return errorResult(err.Error()), err
	}
	return r.route(ctx, sel, w)
}

// RouteBytes normalizes an in-memory buffer and dispatches to the selected
// pipeline.
func (r *Router) RouteBytes(ctx context.Context, selector string, data []byte) (Result, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return errorResult(err.Error()), err
	}
	w, err := r.norm.FromBytes(ctx, data)
	if err != nil {
		return errorResult(err.Error()), err
	}
	return r.route(ctx, sel, w)
}

// RouteWaveform dispatches an already-normalized waveform.
func (r *Router) RouteWaveform(ctx context.Context, selector string, w *audio.Waveform) (Result, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return errorResult(err.Error()), err
	}
	return r.route(ctx, sel, w)
}

func (r *Router) route(ctx context.Context, sel Selector, w *audio.Waveform) (Result, error) {
	requestID := uuid.NewString()
	log := r.log.With("request_id", requestID, "selector", sel)
	log.Debug("dispatching request",
		"duration_seconds", w.Duration(),
		"sample_rate", w.SampleRate)

	switch sel {
	case SelectorASRClassification:
		payload, err := r.asrPath.TranscribeAndClassify(ctx, w)
		if err != nil {
			log.Warn("asr classification failed", "error", err)
			res := errorResult(err.Error())
			res.RequestID = requestID
			return res, err
		}
		return Result{Kind: KindASRClassification, RequestID: requestID, ASR: &payload}, nil
	case SelectorAudioToAudio:
		res := r.audioPath.Classify(ctx, w)
		res.RequestID = requestID
		return res, nil
	}
	// Unreachable: route is only called with a parsed selector.
	err := errors.New("pipeline: unhandled selector")
	return errorResult(err.Error()), err
}
