package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. NEUROBLOOM_ADDR.
const EnvPrefix = "NEUROBLOOM_"

// FileEnv names the variable holding the optional YAML config path.
const FileEnv = EnvPrefix + "CONFIG"

// Load builds a Config by layering defaults, .env, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. .env in the working directory, if present (never overrides the real env)
//  3. file (YAML) if NEUROBLOOM_CONFIG is set
//  4. env (prefix NEUROBLOOM_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %w", ErrLoadConfig, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// NEUROBLOOM_QUEUE_SIZE -> queue_size; underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.FrameStride <= 0:
		return fmt.Errorf("%w: frame_stride must be positive", ErrInvalidConfig)
	case c.BlinkDebounceFrames < 0:
		return fmt.Errorf("%w: blink_debounce_frames must not be negative", ErrInvalidConfig)
	case c.GazeDistractedThreshold < 0 || c.GazeDistractedThreshold > 1:
		return fmt.Errorf("%w: gaze_distracted_threshold must be within [0,1]", ErrInvalidConfig)
	case c.DownloadRetries < 0:
		return fmt.Errorf("%w: download_retries must not be negative", ErrInvalidConfig)
	case c.PredictorLatencyMaxMS < c.PredictorLatencyMinMS:
		return fmt.Errorf("%w: predictor_latency_max_ms below min", ErrInvalidConfig)
	}
	return nil
}
