// Package playlist provides the named playlist domain entity.
package playlist

import (
	"math/rand/v2"

	"github.com/osa030/djbox/internal/domain/track"
)

// Playlist is a named list of unresolved items (URIs or search queries).
// Membership is read fresh every time the playlist is loaded.
type Playlist struct {
	Name    string   // Playlist name (file base name)
	Items   []string // Queries to resolve, in order
	Shuffle bool     // Play items and their tracks in random order
}

// IsEmpty reports whether the playlist has no items.
func (p *Playlist) IsEmpty() bool {
	return p == nil || len(p.Items) == 0
}

// Order returns the items in the order they should be resolved and played.
func (p *Playlist) Order() []string {
	out := make([]string, len(p.Items))
	copy(out, p.Items)
	if p.Shuffle {
		rand.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}
	return out
}

// Arrange applies the playlist ordering options to the tracks one item resolved to.
func (p *Playlist) Arrange(tracks []track.Info) []track.Info {
	if !p.Shuffle || len(tracks) < 2 {
		return tracks
	}
	out := make([]track.Info, len(tracks))
	copy(out, tracks)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
