package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimitFilter.
// A zero bound is not enforced.
type DurationLimitConfig struct {
	MinSeconds int `yaml:"min_seconds" mapstructure:"min_seconds" validate:"gte=0"`
	MaxSeconds int `yaml:"max_seconds" mapstructure:"max_seconds" validate:"gte=0"`
	// RejectUnknown rejects tracks whose duration is unknown (streams).
	RejectUnknown bool `yaml:"reject_unknown" mapstructure:"reject_unknown"`
}

// DurationLimitFilter checks if track duration is within allowed limits.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates a new duration limit filter.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Checks if track duration is within allowed limits"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{"duration_limit_exceeded", "duration_unknown"}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeConfig(settings, &config); err != nil {
		return err
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	if config.MaxSeconds > 0 && config.MinSeconds > config.MaxSeconds {
		return errors.New("min_seconds cannot be greater than max_seconds")
	}

	f.config = &config
	zlog.Info().Msgf("duration limit filter config: %+v", config)
	return nil
}

func (f *DurationLimitFilter) AppliesTo(requester track.Requester) bool {
	return userOnly(requester)
}

func (f *DurationLimitFilter) Check(_ context.Context, req Request, _ State) Result {
	// If config is not set, accept all tracks
	if f.config == nil {
		return Accept()
	}

	d := req.Track.Duration
	if d <= 0 {
		if f.config.RejectUnknown {
			return Reject("duration_unknown")
		}
		return Accept()
	}

	if d < time.Duration(f.config.MinSeconds)*time.Second {
		return Reject("duration_limit_exceeded")
	}
	if f.config.MaxSeconds > 0 && d > time.Duration(f.config.MaxSeconds)*time.Second {
		return Reject("duration_limit_exceeded")
	}

	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return &DurationLimitFilter{}
	})
}
