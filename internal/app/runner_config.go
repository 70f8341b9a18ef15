package service

import (
	"fmt"

	"github.com/okian/neurobloom/internal/adapters/media"
	"github.com/okian/neurobloom/internal/config"
	"github.com/okian/neurobloom/internal/domain/eeg"
	"github.com/okian/neurobloom/pkg/logger"
)

// RunnerOptions maps configuration onto runner options, including a media
// fetcher honoring the download settings.
func RunnerOptions(cfg *config.Config) ([]RunnerOption, error) {
	opts := []RunnerOption{
		WithStride(cfg.FrameStride),
		WithBlinkThreshold(cfg.BlinkDebounceFrames),
		WithGazeThreshold(cfg.GazeDistractedThreshold),
		WithSeed(cfg.EEGSeed),
		WithFetcher(media.NewFetcher(
			media.WithDir(cfg.DownloadDir),
			media.WithRetries(cfg.DownloadRetries),
			media.WithTimeout(cfg.DownloadTimeout()),
			media.WithLogger(logger.Get().Named("media")),
		)),
	}
	if len(cfg.BasePowers) > 0 {
		base, err := eeg.BandPowersFromMap(cfg.BasePowers)
		if err != nil {
			return nil, fmt.Errorf("%w: base_powers: %w", config.ErrInvalidConfig, err)
		}
		opts = append(opts, WithBasePowers(base))
	}
	return opts, nil
}
