// Package filter provides the filter chain that admits or rejects user track requests.
package filter

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/djbox/internal/domain/track"
)

// Request represents a resolved track request to be validated.
type Request struct {
	GuildID   snowflake.ID
	Requester track.Requester
	Track     track.Info
}

// State is the guild's playback state at the time of the request.
type State struct {
	Current *track.Handle
	Queue   []track.QueuedTrack
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "user_pending", "duplicate_track"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should be applied to the given requester.
	AppliesTo(requester track.Requester) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request, state State) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

// userOnly is the AppliesTo rule of filters that never restrict autoplay.
func userOnly(requester track.Requester) bool {
	return !requester.IsAutoplay()
}
