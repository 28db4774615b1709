package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load retrieves the core configuration from environment variables: a JSON
// blob in TOXI_CONFIG first, then per-key overrides.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Config{
		Engine:             DefaultEngine,
		TargetSampleRate:   DefaultTargetSampleRate,
		MaxDurationSeconds: DefaultMaxDurationSeconds,
		MaxTextTokens:      DefaultMaxTextTokens,
		FFmpegPath:         DefaultFFmpegPath,
	}

	if raw, ok := l.Lookup("TOXI_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "TOXI_MODEL_DIR", &cfg.ModelDir)
	overrideString(l.Lookup, "TOXI_ENGINE", &cfg.Engine)
	overrideString(l.Lookup, "TOXI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "TOXI_FFMPEG_PATH", &cfg.FFmpegPath)
	if err := overrideInt(l.Lookup, "TOXI_TARGET_SAMPLE_RATE", &cfg.TargetSampleRate); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "TOXI_MAX_DURATION_SECONDS", &cfg.MaxDurationSeconds); err != nil {
		return Config{}, err
	}
	if err := overrideInt(l.Lookup, "TOXI_MAX_TEXT_TOKENS", &cfg.MaxTextTokens); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipelines cannot run with.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineAuto, EngineORT, EngineStub:
	default:
		return fmt.Errorf("config: engine must be one of auto, ort, stub; got %q", c.Engine)
	}
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("config: target_sample_rate must be positive, got %d", c.TargetSampleRate)
	}
	if c.MaxDurationSeconds <= 0 {
		return fmt.Errorf("config: max_duration_seconds must be positive, got %d", c.MaxDurationSeconds)
	}
	if c.MaxTextTokens < 2 {
		return fmt.Errorf("config: max_text_tokens must be at least 2, got %d", c.MaxTextTokens)
	}
	if c.Engine == EngineORT && c.ModelDir == "" {
		return fmt.Errorf("config: model_dir is required for the ort engine")
	}
	return nil
}

func applyJSON(raw string, cfg *Config) error {
	type jsonConfig struct {
		ModelDir           string `json:"model_dir"`
		Engine             string `json:"engine"`
		LogLevel           string `json:"log_level"`
		TargetSampleRate   *int   `json:"target_sample_rate"`
		MaxDurationSeconds *int   `json:"max_duration_seconds"`
		MaxTextTokens      *int   `json:"max_text_tokens"`
		FFmpegPath         string `json:"ffmpeg_path"`
	}
	var payload jsonConfig
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode TOXI_CONFIG: %w", err)
	}
	if payload.ModelDir != "" {
		cfg.ModelDir = payload.ModelDir
	}
	if payload.Engine != "" {
		cfg.Engine = payload.Engine
	}
	if payload.LogLevel != "" {
		cfg.LogLevel = payload.LogLevel
	}
	if payload.TargetSampleRate != nil {
		cfg.TargetSampleRate = *payload.TargetSampleRate
	}
	if payload.MaxDurationSeconds != nil {
		cfg.MaxDurationSeconds = *payload.MaxDurationSeconds
	}
	if payload.MaxTextTokens != nil {
		cfg.MaxTextTokens = *payload.MaxTextTokens
	}
	if payload.FFmpegPath != "" {
		cfg.FFmpegPath = payload.FFmpegPath
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
