package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	// DefaultTargetRate is the sample rate the shared speech encoder expects.
	DefaultTargetRate = 16000
	// DefaultMaxDurationSeconds bounds per-request latency: longer clips are
	// truncated before any inference runs.
	DefaultMaxDurationSeconds = 60
	// DefaultFFmpegPath is the ffmpeg binary used for non-WAV containers.
	DefaultFFmpegPath = "ffmpeg"
)

// Options configures a Normalizer. Zero values fall back to the defaults
// above.
type Options struct {
	TargetRate         int
	MaxDurationSeconds int
	FFmpegPath         string
	Logger             *slog.Logger
}

// Normalizer coerces arbitrary audio/video input into a mono waveform at the
// target rate, truncated to the duration bound and peak-normalized. It is
// stateless and safe for concurrent use.
type Normalizer struct {
	targetRate  int
	maxDuration int
	ffmpegPath  string
	log         *slog.Logger
}

// NewNormalizer returns a Normalizer with the given options.
func NewNormalizer(opts Options) *Normalizer {
	if opts.TargetRate <= 0 {
		opts.TargetRate = DefaultTargetRate
	}
	if opts.MaxDurationSeconds <= 0 {
		opts.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = DefaultFFmpegPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Normalizer{
		targetRate:  opts.TargetRate,
		maxDuration: opts.MaxDurationSeconds,
		ffmpegPath:  opts.FFmpegPath,
		log:         opts.Logger.With("component", "normalizer"),
	}
}

// TargetRate returns the configured output sample rate.
func (n *Normalizer) TargetRate() int { return n.targetRate }

// MaxDurationSeconds returns the configured duration bound.
func (n *Normalizer) MaxDurationSeconds() int { return n.maxDuration }

// FromFile decodes the file at path and normalizes it. WAV input decodes
// natively; other containers are transcoded through ffmpeg first. Unreadable
// or corrupt input yields a DecodeError.
func (n *Normalizer) FromFile(ctx context.Context, path string) (*Waveform, error) {
	raw, err := n.decodeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return n.normalize(raw, path)
}

// FromBytes decodes an in-memory buffer. WAV payloads decode directly; other
// containers are spilled to a temporary file for ffmpeg.
func (n *Normalizer) FromBytes(ctx context.Context, data []byte) (*Waveform, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Source: "buffer", Err: fmt.Errorf("empty input")}
	}
	if isRIFFWave(data) {
		raw, err := decodeWAV(bytes.NewReader(data), "buffer")
		if err != nil {
			return nil, err
		}
		return n.normalize(raw, "buffer")
	}

	tmp, err := os.CreateTemp("", "toxiscan-upload-*")
	if err != nil {
		return nil, fmt.Errorf("audio: spill buffer: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("audio: spill buffer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("audio: spill buffer: %w", err)
	}
	return n.FromFile(ctx, tmp.Name())
}

// NormalizeToFile normalizes the input and additionally persists the result
// as 16-bit PCM WAV at outPath. The persisted copy is advisory; in-memory
// pipelines use the returned waveform.
func (n *Normalizer) NormalizeToFile(ctx context.Context, path, outPath string) (*Waveform, error) {
	w, err := n.FromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := WriteWAV16(w, outPath); err != nil {
		return nil, err
	}
	return w, nil
}

func (n *Normalizer) decodeFile(ctx context.Context, path string) (rawClip, error) {
	if looksLikeWAV(path) {
		f, err := os.Open(path)
		if err != nil {
			return rawClip{}, &DecodeError{Source: path, Err: err}
		}
		defer f.Close()
		return decodeWAV(f, path)
	}

	n.log.Debug("transcoding container via ffmpeg", "path", path)
	wavPath, cleanup, err := transcodeToWAV(ctx, n.ffmpegPath, path)
	defer cleanup()
	if err != nil {
		return rawClip{}, err
	}
	f, err := os.Open(wavPath)
	if err != nil {
		return rawClip{}, &DecodeError{Source: path, Err: err}
	}
	defer f.Close()
	return decodeWAV(f, path)
}

// normalize applies the fixed coercion pipeline: downmix to mono, resample to
// the target rate when the source rate differs, truncate to the duration
// bound, peak-normalize. A resampling failure is a DecodeError; the returned
// waveform always genuinely carries the target rate.
func (n *Normalizer) normalize(raw rawClip, source string) (*Waveform, error) {
	mono := downmix(raw.samples, raw.channels)

	if raw.rate != n.targetRate && len(mono) > 0 {
		resampled, err := resample(mono, raw.rate, n.targetRate)
		if err != nil {
			return nil, &DecodeError{Source: source, Err: err}
		}
		mono = resampled
	}

	limit := n.targetRate * n.maxDuration
	if len(mono) > limit {
		n.log.Debug("truncating clip to duration bound",
			"samples", len(mono), "limit", limit)
		mono = mono[:limit]
	}

	peakNormalize(mono)
	return &Waveform{Samples: mono, SampleRate: n.targetRate}, nil
}

// downmix averages interleaved channels into a mono signal. Mono input is
// returned unchanged.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// resample converts mono samples from srcRate to dstRate, preserving
// duration semantics (output length scales by dstRate/srcRate). Any failure
// is returned: a waveform stamped with the target rate must actually be at
// the target rate.
func resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resample %d to %d Hz: %w", srcRate, dstRate, err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d to %d Hz: %w", srcRate, dstRate, err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("resample %d to %d Hz produced no samples", srcRate, dstRate)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}

// peakNormalize scales the signal so its loudest sample sits at full scale.
// Silent input is left untouched: never divide by zero.
func peakNormalize(samples []float32) {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}

func looksLikeWAV(path string) bool {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return isRIFFWave(header)
}
