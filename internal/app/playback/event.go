package playback

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/osa030/djbox/internal/domain/track"
)

// Engine is the audio player of one guild.
// It reports track lifecycle back through the controller's OnTrackStarted
// and OnTrackEnded, possibly from inside PlayTrack or StopTrack.
type Engine interface {
	PlayTrack(h *track.Handle) error
	StopTrack()
	IsPaused() bool
	SetPaused(paused bool)
	Position() time.Duration
	Volume() int
}

// Observer is notified whenever the playing track changes.
// h is nil when nothing is playing anymore.
type Observer interface {
	OnTrackUpdate(guildID snowflake.ID, h *track.Handle)
}

// Observers fans a track update out to several observers.
type Observers []Observer

// OnTrackUpdate implements Observer.
func (o Observers) OnTrackUpdate(guildID snowflake.ID, h *track.Handle) {
	for _, obs := range o {
		obs.OnTrackUpdate(guildID, h)
	}
}

// Admission vets an item against the playing track and the queue before it
// is queued. It runs on the controller's worker and must not call back into
// the controller.
type Admission func(current *track.Handle, queued []track.QueuedTrack) error

// Connection owns the voice connection of a guild and decides whether to
// leave when the controller runs out of content.
type Connection interface {
	SignalIdle(guildID snowflake.ID)
}

// Fallback supplies content once the queue is exhausted.
type Fallback interface {
	// Next pops a pre-resolved track.
	Next() (*track.Handle, bool)
	// Push appends a resolved track to the pre-resolved sequence.
	Push(h *track.Handle)
	// Clear drops the pre-resolved sequence.
	Clear()
	// Len returns the number of pre-resolved tracks.
	Len() int
	// Load resolves the default playlist in the background, calling emit for
	// every resolved track and done once with the number emitted.
	// It returns false when there is nothing to load.
	Load(ctx context.Context, emit func(h *track.Handle), done func(count int)) bool
}

type noopObserver struct{}

func (noopObserver) OnTrackUpdate(snowflake.ID, *track.Handle) {}

type noopConnection struct{}

func (noopConnection) SignalIdle(snowflake.ID) {}

type noopFallback struct{}

func (noopFallback) Next() (*track.Handle, bool) { return nil, false }

func (noopFallback) Push(*track.Handle) {}

func (noopFallback) Clear() {}

func (noopFallback) Len() int { return 0 }

func (noopFallback) Load(context.Context, func(*track.Handle), func(int)) bool { return false }

// mailbox is an unbounded FIFO of closures. Posting never blocks.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post appends fn and wakes the worker. It returns false once closed.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, fn)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything posted so far.
func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
}
