// Package track provides the playable track domain entities.
package track

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// Info holds the metadata a resolver attaches to a track.
type Info struct {
	Identifier string        // Source-specific identifier (Spotify ID, URL, ...)
	Title      string        // Track title
	Author     string        // Artist / uploader
	Duration   time.Duration // Track duration (0 if unknown or a stream)
	URI        string        // Canonical source URI
	Source     string        // Name of the resolver source that produced it
}

// DisplayTitle returns the title, falling back to the URI when the title is unknown.
func (i Info) DisplayTitle() string {
	if i.Title == "" || i.Title == "Unknown Title" {
		return i.URI
	}
	return i.Title
}

// Requester represents the user who queued a track.
// A zero ID means the track was queued by the system (autoplay).
type Requester struct {
	ID   snowflake.ID
	Name string
}

// IsAutoplay reports whether the track was not requested by a user.
func (r Requester) IsAutoplay() bool {
	return r.ID == 0
}

// Handle is an immutable reference to a playable track.
// Every handle has its own identity; two handles of the same source are
// distinct playbacks.
type Handle struct {
	id        uuid.UUID
	info      Info
	requester Requester
}

// NewHandle creates a new playable handle.
func NewHandle(info Info, requester Requester) *Handle {
	return &Handle{
		id:        uuid.New(),
		info:      info,
		requester: requester,
	}
}

// ID returns the handle identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Info returns the track metadata.
func (h *Handle) Info() Info {
	return h.info
}

// Requester returns the request metadata attached to the handle.
func (h *Handle) Requester() Requester {
	return h.requester
}

// Clone returns a fresh playable handle for the same source and requester.
func (h *Handle) Clone() *Handle {
	return NewHandle(h.info, h.requester)
}

// SameSource reports whether both handles refer to the same source track.
func (h *Handle) SameSource(other *Handle) bool {
	if h == nil || other == nil {
		return false
	}
	return h.info.Identifier == other.info.Identifier && h.info.URI == other.info.URI
}

// QueuedTrack represents a track waiting in a playback queue.
type QueuedTrack struct {
	Handle  *Handle   // Playable handle
	AddedAt time.Time // Time when added to queue
}

// NewQueuedTrack wraps a handle for queueing.
func NewQueuedTrack(h *Handle) QueuedTrack {
	return QueuedTrack{Handle: h, AddedAt: time.Now()}
}

// RequesterID returns the ID of the user who queued the track.
func (q QueuedTrack) RequesterID() snowflake.ID {
	return q.Handle.Requester().ID
}

// EndReason describes why playback of a track ended.
type EndReason int

const (
	EndFinished   EndReason = iota // Track played to the end
	EndLoadFailed                  // Track could not be loaded
	EndStopped                     // Stopped externally (skip, stop)
	EndReplaced                    // Replaced by another track
	EndCleanup                     // Player was torn down
)

// String returns the string representation of the end reason.
func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "finished"
	case EndLoadFailed:
		return "load_failed"
	case EndStopped:
		return "stopped"
	case EndReplaced:
		return "replaced"
	case EndCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// MayStartNext reports whether the next track may be started after this end reason.
func (r EndReason) MayStartNext() bool {
	return r != EndReplaced && r != EndCleanup
}
