// Package config loads the classifier core's configuration from the
// environment.
package config

import (
	"log/slog"
	"strings"
)

// Engine selects the inference backend.
const (
	EngineAuto = "auto"
	EngineORT  = "ort"
	EngineStub = "stub"
)

const (
	DefaultEngine             = EngineAuto
	DefaultTargetSampleRate   = 16000
	DefaultMaxDurationSeconds = 60
	DefaultMaxTextTokens      = 128
	DefaultFFmpegPath         = "ffmpeg"
)

// Config holds the core configuration.
type Config struct {
	// ModelDir is the local model registry directory (manifest.yaml plus
	// weight artifacts).
	ModelDir string `json:"model_dir"`
	// Engine is auto, ort, or stub.
	Engine   string `json:"engine"`
	LogLevel string `json:"log_level"`

	TargetSampleRate   int `json:"target_sample_rate"`
	MaxDurationSeconds int `json:"max_duration_seconds"`
	MaxTextTokens      int `json:"max_text_tokens"`

	// FFmpegPath is the binary used to transcode non-WAV containers.
	FFmpegPath string `json:"ffmpeg_path"`
}

// SlogLevel maps LogLevel to a slog level. Unknown or empty values fall back
// to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
