package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/osa030/djbox/internal/domain/track"
)

type UserPendingConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"1" validate:"gte=1"`
}

// UserPendingFilter limits how many tracks one user may have waiting in the queue.
type UserPendingFilter struct {
	config *UserPendingConfig
}

func (f *UserPendingFilter) Name() string {
	return "user_pending_filter"
}

func (f *UserPendingFilter) Description() string {
	return "Limits the number of tracks a user may have waiting to be played"
}

func (f *UserPendingFilter) ReturnCodes() []string {
	return []string{"user_pending"}
}

func (f *UserPendingFilter) ValidateConfig(settings map[string]any) error {
	var config UserPendingConfig
	if err := decodeConfig(settings, &config); err != nil {
		return err
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.config = &config
	return nil
}

func (f *UserPendingFilter) AppliesTo(requester track.Requester) bool {
	return userOnly(requester)
}

func (f *UserPendingFilter) Check(_ context.Context, req Request, state State) Result {
	limit := 1
	if f.config != nil {
		limit = f.config.MaxPending
	}

	pending := 0
	for _, q := range state.Queue {
		if q.RequesterID() == req.Requester.ID {
			pending++
		}
	}
	if pending >= limit {
		return Reject("user_pending")
	}
	return Accept()
}

func init() {
	Register("user_pending_filter", func() Filter {
		return &UserPendingFilter{}
	})
}
