package playback

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/app/queue"
	"github.com/osa030/djbox/internal/domain/track"
)

// PlayingNow is the position reported when an enqueued track starts immediately.
const PlayingNow = -1

// Errors
var (
	ErrNoTrack           = errors.New("no track playing")
	ErrInvalidTransition = errors.New("event does not match the current track")
	ErrClosed            = errors.New("controller is closed")
	ErrTrackChanged      = errors.New("current track has changed")
)

// Config holds controller configuration.
type Config struct {
	GuildID    snowflake.ID
	QueueType  queue.Type
	RepeatMode RepeatMode
}

// Deps holds the collaborators of a controller. Nil members are replaced
// with no-ops, except Engine which is required.
type Deps struct {
	Engine     Engine
	Observer   Observer
	Connection Connection
	Fallback   Fallback
}

// Status is a point-in-time view of a controller.
type Status struct {
	State       State
	Track       *track.Handle
	Position    time.Duration
	Volume      int
	Votes       int
	RepeatMode  RepeatMode
	QueueType   queue.Type
	QueueLength int
	Pending     int // Pre-resolved default playlist tracks
}

// Controller drives playback for one guild.
// All state is owned by a single worker goroutine; public methods hand a
// closure to the worker and wait for it, and engine callbacks are posted
// without waiting so they may arrive from inside PlayTrack or StopTrack.
type Controller struct {
	guildID  snowflake.ID
	engine   Engine
	observer Observer
	conn     Connection
	fallback Fallback

	// Owned by the worker
	queue   *queue.Queue
	current *track.Handle
	votes   map[snowflake.ID]struct{}
	repeat  RepeatMode
	idle    bool // Idle has been signalled since the last start
	leaving bool // StopTrack has been requested for current

	// Default playlist resolution
	generation  uint64
	loading     bool
	loadStarted int
	loadCancel  context.CancelFunc

	box *mailbox

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller and starts its worker.
func NewController(config Config, deps Deps) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		guildID:  config.GuildID,
		engine:   deps.Engine,
		observer: deps.Observer,
		conn:     deps.Connection,
		fallback: deps.Fallback,
		queue:    queue.New(config.QueueType),
		votes:    make(map[snowflake.ID]struct{}),
		repeat:   config.RepeatMode,
		box:      newMailbox(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.conn == nil {
		c.conn = noopConnection{}
	}
	if c.fallback == nil {
		c.fallback = noopFallback{}
	}

	go c.run()
	return c
}

// GuildID returns the guild this controller plays for.
func (c *Controller) GuildID() snowflake.ID {
	return c.guildID
}

// Close stops the worker. The playing track, if any, is stopped.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

// EnqueueOrPlay plays the track immediately when nothing is playing and
// returns PlayingNow; otherwise it queues the track and returns its position.
func (c *Controller) EnqueueOrPlay(ctx context.Context, item track.QueuedTrack) (int, error) {
	var pos int
	var err error
	callErr := c.call(ctx, func() {
		pos, err = c.enqueue(item, false)
	})
	if callErr != nil {
		return 0, callErr
	}
	return pos, err
}

// EnqueueOrPlayFront is EnqueueOrPlay but queues at the head.
func (c *Controller) EnqueueOrPlayFront(ctx context.Context, item track.QueuedTrack) (int, error) {
	var pos int
	var err error
	callErr := c.call(ctx, func() {
		pos, err = c.enqueue(item, true)
	})
	if callErr != nil {
		return 0, callErr
	}
	return pos, err
}

// EnqueueIf is EnqueueOrPlay, or EnqueueOrPlayFront when front is set, guarded
// by admit. The check and the enqueue run as one step, so concurrent requests
// are vetted against each other's tracks. The admission error is returned as is.
func (c *Controller) EnqueueIf(ctx context.Context, item track.QueuedTrack, front bool, admit Admission) (int, error) {
	var pos int
	var err error
	callErr := c.call(ctx, func() {
		if admit != nil {
			if err = admit(c.current, c.queue.List()); err != nil {
				return
			}
		}
		pos, err = c.enqueue(item, front)
	})
	if callErr != nil {
		return 0, callErr
	}
	return pos, err
}

// StopAndClear empties the queue and the pre-resolved sequence, abandons any
// default playlist resolution and stops the current track. Nothing starts
// again until the next enqueue.
func (c *Controller) StopAndClear(ctx context.Context) error {
	return c.call(ctx, c.stopAndClear)
}

// RequestVoteSkip records a skip vote and returns the number of votes.
func (c *Controller) RequestVoteSkip(ctx context.Context, userID snowflake.ID) (int, error) {
	var n int
	var err error
	callErr := c.call(ctx, func() {
		if c.current == nil {
			err = ErrNoTrack
			return
		}
		c.votes[userID] = struct{}{}
		n = len(c.votes)
	})
	if callErr != nil {
		return 0, callErr
	}
	return n, err
}

// SkipVote is the outcome of VoteSkip.
type SkipVote struct {
	Track   *track.Handle // The track voted on
	Votes   int
	Skipped bool
}

// VoteSkip records userID's vote against the current track and skips it once
// the votes reach required. The requester of the current track skips it
// without a vote. A non-nil trackID must match the current track, otherwise
// ErrTrackChanged is returned and no vote is counted. Votes against a track
// that is already being skipped also get ErrTrackChanged.
func (c *Controller) VoteSkip(ctx context.Context, userID snowflake.ID, required int, trackID uuid.UUID) (SkipVote, error) {
	var res SkipVote
	var err error
	callErr := c.call(ctx, func() {
		if c.current == nil {
			err = ErrNoTrack
			return
		}
		if c.leaving || (trackID != uuid.Nil && c.current.ID() != trackID) {
			err = ErrTrackChanged
			return
		}
		res.Track = c.current
		if c.current.Requester().ID == userID {
			res.Skipped = true
		} else {
			c.votes[userID] = struct{}{}
			res.Votes = len(c.votes)
			res.Skipped = res.Votes >= required
		}
		if res.Skipped {
			c.skip()
		}
	})
	if callErr != nil {
		return SkipVote{}, callErr
	}
	return res, err
}

// Skip stops the current track. The queue advances when the engine reports
// the end. The skipped track is returned.
func (c *Controller) Skip(ctx context.Context) (*track.Handle, error) {
	var skipped *track.Handle
	callErr := c.call(ctx, func() {
		skipped = c.current
		if skipped != nil {
			c.skip()
		}
	})
	if callErr != nil {
		return nil, callErr
	}
	if skipped == nil {
		return nil, ErrNoTrack
	}
	return skipped, nil
}

// SkipTo drops the first n-1 queued tracks and skips the current one, so the
// track at 1-based position n plays next.
func (c *Controller) SkipTo(ctx context.Context, n int) (*track.Handle, error) {
	var next *track.Handle
	var err error
	callErr := c.call(ctx, func() {
		if c.current == nil {
			err = ErrNoTrack
			return
		}
		if n < 1 || n > c.queue.Len() {
			err = errors.Wrapf(queue.ErrOutOfRange, "skip to %d", n)
			return
		}
		c.queue.Skip(n - 1)
		if items := c.queue.List(); len(items) > 0 {
			next = items[0].Handle
		}
		c.engine.StopTrack()
	})
	if callErr != nil {
		return nil, callErr
	}
	return next, err
}

// Pause pauses the engine.
func (c *Controller) Pause(ctx context.Context) error {
	return c.setPaused(ctx, true)
}

// Resume unpauses the engine.
func (c *Controller) Resume(ctx context.Context) error {
	return c.setPaused(ctx, false)
}

func (c *Controller) setPaused(ctx context.Context, paused bool) error {
	var err error
	callErr := c.call(ctx, func() {
		if c.current == nil {
			err = ErrNoTrack
			return
		}
		c.engine.SetPaused(paused)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// SetRepeatMode changes the repeat mode. It applies to the next track end.
func (c *Controller) SetRepeatMode(ctx context.Context, mode RepeatMode) error {
	return c.call(ctx, func() {
		c.repeat = mode
	})
}

// RepeatMode returns the current repeat mode.
func (c *Controller) RepeatMode(ctx context.Context) (RepeatMode, error) {
	var m RepeatMode
	err := c.call(ctx, func() {
		m = c.repeat
	})
	return m, err
}

// QueueType returns the active queue discipline.
func (c *Controller) QueueType(ctx context.Context) (queue.Type, error) {
	var t queue.Type
	err := c.call(ctx, func() {
		t = c.queue.Type()
	})
	return t, err
}

// Votes returns the number of skip votes for the current track.
func (c *Controller) Votes(ctx context.Context) (int, error) {
	var n int
	err := c.call(ctx, func() {
		n = len(c.votes)
	})
	return n, err
}

// SetQueueType swaps the queue discipline, keeping the queued tracks.
func (c *Controller) SetQueueType(ctx context.Context, t queue.Type) error {
	return c.call(ctx, func() {
		c.queue.SetType(t)
	})
}

// NowPlaying returns the current status.
func (c *Controller) NowPlaying(ctx context.Context) (Status, error) {
	var s Status
	err := c.call(ctx, func() {
		s = c.status()
	})
	return s, err
}

// Queue returns the queued tracks in the order they will play.
func (c *Controller) Queue(ctx context.Context) ([]track.QueuedTrack, error) {
	var items []track.QueuedTrack
	err := c.call(ctx, func() {
		items = c.queue.List()
	})
	return items, err
}

// RemoveAt removes the queued track at the given 0-based position.
func (c *Controller) RemoveAt(ctx context.Context, pos int) (track.QueuedTrack, error) {
	var removed track.QueuedTrack
	var err error
	callErr := c.call(ctx, func() {
		removed, err = c.queue.RemoveAt(pos)
	})
	if callErr != nil {
		return track.QueuedTrack{}, callErr
	}
	return removed, err
}

// RemoveRequester removes every track queued by the user.
func (c *Controller) RemoveRequester(ctx context.Context, userID snowflake.ID) (int, error) {
	var n int
	err := c.call(ctx, func() {
		n = c.queue.RemoveRequester(userID)
	})
	return n, err
}

// Shuffle shuffles the user's queued tracks.
func (c *Controller) Shuffle(ctx context.Context, userID snowflake.ID) (int, error) {
	var n int
	err := c.call(ctx, func() {
		n = c.queue.Shuffle(userID)
	})
	return n, err
}

// Move moves a queued track between 0-based positions.
func (c *Controller) Move(ctx context.Context, from, to int) (track.QueuedTrack, error) {
	var moved track.QueuedTrack
	var err error
	callErr := c.call(ctx, func() {
		moved, err = c.queue.Move(from, to)
	})
	if callErr != nil {
		return track.QueuedTrack{}, callErr
	}
	return moved, err
}

// Snapshot returns the current track followed by the queue, suitable for Restore.
func (c *Controller) Snapshot(ctx context.Context) ([]track.QueuedTrack, error) {
	var items []track.QueuedTrack
	err := c.call(ctx, func() {
		if c.current != nil {
			items = append(items, track.NewQueuedTrack(c.current))
		}
		items = append(items, c.queue.List()...)
	})
	return items, err
}

// Restore enqueues the items in order; the first one starts if nothing plays.
func (c *Controller) Restore(ctx context.Context, items []track.QueuedTrack) error {
	var err error
	callErr := c.call(ctx, func() {
		for _, it := range items {
			if _, e := c.enqueue(it, false); e != nil {
				err = errors.CombineErrors(err, e)
			}
		}
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// OnTrackStarted is called by the engine when a track begins.
func (c *Controller) OnTrackStarted(h *track.Handle) {
	c.post(func() {
		if err := c.trackStarted(h); err != nil {
			zlog.Debug().Msgf("playback: ignored start event: guild=%s err=%v", c.guildID, err)
		}
	})
}

// OnTrackEnded is called by the engine when a track ends for any reason.
func (c *Controller) OnTrackEnded(h *track.Handle, reason track.EndReason) {
	c.post(func() {
		if err := c.trackEnded(h, reason); err != nil {
			zlog.Debug().Msgf("playback: ignored end event: guild=%s reason=%s err=%v", c.guildID, reason, err)
		}
	})
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.box.close()
			c.shutdown()
			return
		case <-c.box.signal:
			for _, fn := range c.box.take() {
				fn()
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.abandonLoad()
	c.queue.Clear()
	c.fallback.Clear()
	if c.current != nil {
		c.current = nil
		c.engine.StopTrack()
	}
}

// call runs fn on the worker and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.box.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Controller) post(fn func()) {
	if !c.box.post(fn) {
		zlog.Debug().Msgf("playback: controller closed, dropping event: guild=%s", c.guildID)
	}
}

func (c *Controller) skip() {
	zlog.Debug().Msgf("playback: skip: guild=%s track=%s", c.guildID, c.current.Info().Title)
	c.leaving = true
	c.engine.StopTrack()
}

func (c *Controller) enqueue(item track.QueuedTrack, front bool) (int, error) {
	if item.Handle == nil {
		return 0, errors.New("enqueue: nil track")
	}
	if c.current == nil {
		if err := c.start(item.Handle); err != nil {
			// Nothing is left to play, so the owner may tear the session down
			if c.queue.IsEmpty() && !c.loading {
				c.goIdle()
			}
			return 0, err
		}
		return PlayingNow, nil
	}
	if front {
		c.queue.AddFront(item)
		return 0, nil
	}
	return c.queue.Add(item), nil
}

// start hands h to the engine and makes it current.
func (c *Controller) start(h *track.Handle) error {
	wasIdle := c.idle
	c.current = h
	c.idle = false
	c.leaving = false
	clear(c.votes)
	if err := c.engine.PlayTrack(h); err != nil {
		c.current = nil
		c.idle = wasIdle
		return errors.Wrapf(err, "play %s", h.Info().Title)
	}
	zlog.Debug().Msgf("playback: playing: guild=%s track=%s requester=%s",
		c.guildID, h.Info().Title, h.Requester().ID)
	return nil
}

func (c *Controller) trackStarted(h *track.Handle) error {
	if h == nil || h != c.current {
		return ErrInvalidTransition
	}
	clear(c.votes)
	c.idle = false
	c.observer.OnTrackUpdate(c.guildID, h)
	return nil
}

func (c *Controller) trackEnded(h *track.Handle, reason track.EndReason) error {
	if h == nil || h != c.current {
		return ErrInvalidTransition
	}
	c.current = nil
	c.leaving = false
	clear(c.votes)

	if reason == track.EndFinished {
		switch c.repeat {
		case RepeatTrack:
			c.queue.AddFront(track.NewQueuedTrack(h.Clone()))
		case RepeatAll:
			c.queue.Add(track.NewQueuedTrack(h.Clone()))
		}
	}
	if !reason.MayStartNext() {
		c.observer.OnTrackUpdate(c.guildID, nil)
		return nil
	}
	c.advance()
	return nil
}

// advance starts the next queued track, falling back to the default content.
func (c *Controller) advance() {
	for !c.queue.IsEmpty() {
		item, err := c.queue.Pop()
		if err != nil {
			break
		}
		if err := c.start(item.Handle); err != nil {
			zlog.Warn().Msgf("playback: failed to start queued track: guild=%s err=%v", c.guildID, err)
			continue
		}
		return
	}
	if c.playFromFallback() {
		return
	}
	c.goIdle()
}

// playFromFallback reports whether fallback content is playing or on its way.
func (c *Controller) playFromFallback() bool {
	for {
		h, ok := c.fallback.Next()
		if !ok {
			break
		}
		if err := c.start(h); err != nil {
			zlog.Warn().Msgf("playback: failed to start default track: guild=%s err=%v", c.guildID, err)
			continue
		}
		return true
	}
	if c.loading {
		return true
	}

	gen := c.generation
	ctx, cancel := context.WithCancel(c.ctx)
	ok := c.fallback.Load(ctx,
		func(h *track.Handle) {
			c.post(func() { c.fallbackTrack(gen, h) })
		},
		func(count int) {
			c.post(func() { c.fallbackDone(gen, count) })
		},
	)
	if !ok {
		cancel()
		return false
	}
	zlog.Debug().Msgf("playback: loading default playlist: guild=%s", c.guildID)
	c.loading = true
	c.loadStarted = 0
	c.loadCancel = cancel
	return true
}

func (c *Controller) fallbackTrack(gen uint64, h *track.Handle) {
	if gen != c.generation {
		return
	}
	if c.current != nil {
		c.fallback.Push(h)
		return
	}
	if err := c.start(h); err != nil {
		zlog.Warn().Msgf("playback: failed to start default track: guild=%s err=%v", c.guildID, err)
		return
	}
	c.loadStarted++
}

func (c *Controller) fallbackDone(gen uint64, count int) {
	if gen != c.generation {
		return
	}
	started := c.loadStarted
	c.abandonLoad()
	zlog.Debug().Msgf("playback: default playlist loaded: guild=%s tracks=%d", c.guildID, count)

	if c.current != nil {
		return
	}
	if count == 0 || (started == 0 && c.fallback.Len() == 0) {
		c.goIdle()
		return
	}
	c.advance()
}

func (c *Controller) abandonLoad() {
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.loading = false
	c.loadStarted = 0
}

// goIdle reports that nothing is left to play. Idle is signalled once until
// the next track starts.
func (c *Controller) goIdle() {
	c.current = nil
	c.engine.SetPaused(false)
	if c.idle {
		return
	}
	c.idle = true
	zlog.Debug().Msgf("playback: idle: guild=%s", c.guildID)
	c.observer.OnTrackUpdate(c.guildID, nil)
	c.conn.SignalIdle(c.guildID)
}

func (c *Controller) stopAndClear() {
	c.generation++
	c.abandonLoad()
	c.queue.Clear()
	c.fallback.Clear()
	clear(c.votes)

	stopped := c.current
	c.current = nil
	if stopped != nil {
		zlog.Debug().Msgf("playback: stop: guild=%s track=%s", c.guildID, stopped.Info().Title)
		c.engine.StopTrack()
		c.observer.OnTrackUpdate(c.guildID, nil)
	}
	c.engine.SetPaused(false)
	// An explicit stop is torn down by the caller, not through SignalIdle.
	c.idle = true
}

func (c *Controller) status() Status {
	s := Status{
		State:       StateIdle,
		Track:       c.current,
		Votes:       len(c.votes),
		RepeatMode:  c.repeat,
		QueueType:   c.queue.Type(),
		QueueLength: c.queue.Len(),
		Pending:     c.fallback.Len(),
		Volume:      c.engine.Volume(),
	}
	switch {
	case c.current != nil && c.engine.IsPaused():
		s.State = StatePaused
		s.Position = c.engine.Position()
	case c.current != nil:
		s.State = StatePlaying
		s.Position = c.engine.Position()
	case c.loading:
		s.State = StateLoading
	}
	return s
}
