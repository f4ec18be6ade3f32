// Package playback provides the per-guild playback session controller.
package playback

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing playing, nothing pending
	StateLoading              // Waiting for the default playlist to resolve
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// RepeatMode controls what happens to a track that finished normally.
type RepeatMode int

const (
	RepeatOff   RepeatMode = iota // Finished tracks are dropped
	RepeatTrack                   // Finished track is re-queued at the head
	RepeatAll                     // Finished track is re-queued at the tail
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatTrack:
		return "track"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses a repeat mode name.
// The legacy boolean values map to all ("true") and off ("false"). An empty
// name is off, the value of an unset guild setting.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "false", "none", "":
		return RepeatOff, nil
	case "track", "single", "one":
		return RepeatTrack, nil
	case "all", "true", "queue":
		return RepeatAll, nil
	default:
		return RepeatOff, errors.Newf("unknown repeat mode: %q", s)
	}
}
