package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/djbox/internal/app/queue"
	"github.com/osa030/djbox/internal/domain/track"
)

const testGuild snowflake.ID = 42

// fakeEngine reports starts synchronously and ends on StopTrack.
type fakeEngine struct {
	mu       sync.Mutex
	ctrl     *Controller
	playing  *track.Handle
	played   []*track.Handle
	paused   bool
	unpauses int
	stops    int
	failNext bool
}

func (e *fakeEngine) PlayTrack(h *track.Handle) error {
	e.mu.Lock()
	if e.failNext {
		e.failNext = false
		e.mu.Unlock()
		return errors.New("load failed")
	}
	e.playing = h
	e.played = append(e.played, h)
	e.mu.Unlock()
	e.ctrl.OnTrackStarted(h)
	return nil
}

func (e *fakeEngine) StopTrack() {
	e.mu.Lock()
	h := e.playing
	e.playing = nil
	e.stops++
	e.mu.Unlock()
	if h != nil {
		e.ctrl.OnTrackEnded(h, track.EndStopped)
	}
}

// finish ends the playing track normally.
func (e *fakeEngine) finish() *track.Handle {
	e.mu.Lock()
	h := e.playing
	e.playing = nil
	e.mu.Unlock()
	e.ctrl.OnTrackEnded(h, track.EndFinished)
	return h
}

func (e *fakeEngine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *fakeEngine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
	if !paused {
		e.unpauses++
	}
}

func (e *fakeEngine) Position() time.Duration { return time.Second }

func (e *fakeEngine) Volume() int { return 100 }

func (e *fakeEngine) history() []*track.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*track.Handle(nil), e.played...)
}

type recorder struct {
	mu      sync.Mutex
	updates []*track.Handle
	idle    int
}

func (r *recorder) OnTrackUpdate(_ snowflake.ID, h *track.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, h)
}

func (r *recorder) SignalIdle(snowflake.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idle++
}

func (r *recorder) idleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idle
}

// fakeFallback hands the load callbacks to the test.
type fakeFallback struct {
	mu      sync.Mutex
	pending []*track.Handle
	loads   int
	canLoad bool
	emit    func(*track.Handle)
	done    func(int)
	ctx     context.Context
}

func (f *fakeFallback) Next() (*track.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, false
	}
	h := f.pending[0]
	f.pending = f.pending[1:]
	return h, true
}

func (f *fakeFallback) Push(h *track.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, h)
}

func (f *fakeFallback) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
}

func (f *fakeFallback) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeFallback) Load(ctx context.Context, emit func(*track.Handle), done func(int)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.canLoad {
		return false
	}
	f.loads++
	f.ctx, f.emit, f.done = ctx, emit, done
	return true
}

func (f *fakeFallback) callbacks() (context.Context, func(*track.Handle), func(int)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx, f.emit, f.done
}

type fixture struct {
	ctrl     *Controller
	engine   *fakeEngine
	rec      *recorder
	fallback *fakeFallback
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	cfg.GuildID = testGuild
	f := &fixture{
		engine:   &fakeEngine{},
		rec:      &recorder{},
		fallback: &fakeFallback{},
	}
	f.ctrl = NewController(cfg, Deps{
		Engine:     f.engine,
		Observer:   f.rec,
		Connection: f.rec,
		Fallback:   f.fallback,
	})
	f.engine.ctrl = f.ctrl
	t.Cleanup(f.ctrl.Close)
	return f
}

// status waits for everything posted so far to be processed.
func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	s, err := f.ctrl.NowPlaying(context.Background())
	require.NoError(t, err)
	return s
}

func (f *fixture) queued(t *testing.T) []string {
	t.Helper()
	items, err := f.ctrl.Queue(context.Background())
	require.NoError(t, err)
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Handle.Info().Title
	}
	return out
}

func newTrack(title string, requester snowflake.ID) track.QueuedTrack {
	return track.NewQueuedTrack(track.NewHandle(
		track.Info{Identifier: title, Title: title, URI: "https://example.com/" + title},
		track.Requester{ID: requester},
	))
}

func TestController_EnqueueOrPlay(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	a := newTrack("a", 1)
	pos, err := f.ctrl.EnqueueOrPlay(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, PlayingNow, pos)

	pos, err = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = f.ctrl.EnqueueOrPlay(ctx, newTrack("c", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	s := f.status(t)
	assert.Equal(t, StatePlaying, s.State)
	assert.Same(t, a.Handle, s.Track)
	assert.Equal(t, 2, s.QueueLength)
	assert.Equal(t, []*track.Handle{a.Handle}, f.engine.history())
	assert.Equal(t, []*track.Handle{a.Handle}, f.rec.updates)
}

func TestController_EnqueueOrPlayFront(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	pos, err := f.ctrl.EnqueueOrPlayFront(ctx, newTrack("a", 1))
	require.NoError(t, err)
	assert.Equal(t, PlayingNow, pos)

	_, err = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
	require.NoError(t, err)
	pos, err = f.ctrl.EnqueueOrPlayFront(ctx, newTrack("c", 1))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	assert.Equal(t, []string{"c", "b"}, f.queued(t))
}

func TestController_EnqueueFailedStart(t *testing.T) {
	f := newFixture(t, Config{})
	f.engine.failNext = true

	_, err := f.ctrl.EnqueueOrPlay(context.Background(), newTrack("a", 1))
	assert.Error(t, err)
	assert.Equal(t, StateIdle, f.status(t).State)
	assert.Empty(t, f.queued(t))
	assert.Equal(t, 1, f.rec.idleCount(), "a session that never played is reported idle")
}

func TestController_EnqueueFailedAfterIdle(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	require.NoError(t, err)
	f.engine.finish()
	require.Equal(t, StateIdle, f.status(t).State)
	require.Equal(t, 1, f.rec.idleCount())

	f.engine.failNext = true
	_, err = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
	assert.Error(t, err)
	assert.Equal(t, 1, f.rec.idleCount(), "idle is not signalled twice")

	_, err = f.ctrl.EnqueueOrPlay(ctx, newTrack("c", 1))
	require.NoError(t, err)
	f.engine.finish()
	f.status(t)
	assert.Equal(t, 2, f.rec.idleCount())
}

var errNotAdmitted = errors.New("not admitted")

// maxPending admits an item while its requester has fewer than limit queued items.
func maxPending(requester snowflake.ID, limit int) Admission {
	return func(_ *track.Handle, queued []track.QueuedTrack) error {
		n := 0
		for _, q := range queued {
			if q.RequesterID() == requester {
				n++
			}
		}
		if n >= limit {
			return errNotAdmitted
		}
		return nil
	}
}

func TestController_EnqueueIf(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	var seen *track.Handle
	a := newTrack("a", 1)
	pos, err := f.ctrl.EnqueueIf(ctx, a, false, func(current *track.Handle, _ []track.QueuedTrack) error {
		seen = current
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, PlayingNow, pos)
	assert.Nil(t, seen)

	pos, err = f.ctrl.EnqueueIf(ctx, newTrack("b", 2), false, maxPending(2, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	_, err = f.ctrl.EnqueueIf(ctx, newTrack("c", 2), true, maxPending(2, 1))
	assert.Same(t, errNotAdmitted, err)
	assert.Equal(t, []string{"b"}, f.queued(t))

	pos, err = f.ctrl.EnqueueIf(ctx, newTrack("d", 3), true, func(current *track.Handle, queued []track.QueuedTrack) error {
		seen = current
		assert.Len(t, queued, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	assert.Same(t, a.Handle, seen)
	assert.Equal(t, []string{"d", "b"}, f.queued(t))
}

func TestController_EnqueueIfConcurrent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.ctrl.EnqueueOrPlay(ctx, newTrack("now", 1))
	require.NoError(t, err)

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ctrl.EnqueueIf(ctx, newTrack("t", 2), false, maxPending(2, 1))
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
				return
			}
			assert.Same(t, errNotAdmitted, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, f.status(t).QueueLength)
}

func TestController_VoteSkipDecides(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.ctrl.VoteSkip(ctx, 2, 2, uuid.Nil)
	assert.True(t, errors.Is(err, ErrNoTrack))

	a, b, c := newTrack("a", 1), newTrack("b", 1), newTrack("c", 5)
	for _, it := range []track.QueuedTrack{a, b, c} {
		_, err := f.ctrl.EnqueueOrPlay(ctx, it)
		require.NoError(t, err)
	}

	res, err := f.ctrl.VoteSkip(ctx, 2, 2, a.Handle.ID())
	require.NoError(t, err)
	assert.Equal(t, SkipVote{Track: a.Handle, Votes: 1}, res)

	res, err = f.ctrl.VoteSkip(ctx, 3, 2, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 2, res.Votes)
	assert.Same(t, a.Handle, res.Track)
	assert.Same(t, b.Handle, f.status(t).Track)

	// A vote meant for a is not counted against b
	_, err = f.ctrl.VoteSkip(ctx, 4, 1, a.Handle.ID())
	assert.True(t, errors.Is(err, ErrTrackChanged))
	assert.Zero(t, f.status(t).Votes)

	// The requester skips without a vote
	res, err = f.ctrl.VoteSkip(ctx, 1, 10, b.Handle.ID())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Votes)
	assert.Same(t, c.Handle, f.status(t).Track)
}

func TestController_VoteSkipConcurrent(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	a, b := newTrack("a", 1), newTrack("b", 1)
	for _, it := range []track.QueuedTrack{a, b, newTrack("c", 1)} {
		_, err := f.ctrl.EnqueueOrPlay(ctx, it)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	skips := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(user snowflake.ID) {
			defer wg.Done()
			res, err := f.ctrl.VoteSkip(ctx, user, 3, a.Handle.ID())
			if err != nil {
				assert.True(t, errors.Is(err, ErrTrackChanged))
				return
			}
			if res.Skipped {
				mu.Lock()
				skips++
				mu.Unlock()
			}
		}(snowflake.ID(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, skips)
	assert.Same(t, b.Handle, f.status(t).Track)
}

func TestController_AdvanceOnFinish(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	a, b := newTrack("a", 1), newTrack("b", 2)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, b)

	f.engine.finish()
	s := f.status(t)
	assert.Same(t, b.Handle, s.Track)
	assert.Zero(t, s.QueueLength)

	f.engine.finish()
	s = f.status(t)
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Track)
	assert.Equal(t, 1, f.rec.idleCount())
	assert.Nil(t, f.rec.updates[len(f.rec.updates)-1])
}

func TestController_RepeatTrack(t *testing.T) {
	f := newFixture(t, Config{RepeatMode: RepeatTrack})
	ctx := context.Background()

	a := newTrack("a", 1)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))

	f.engine.finish()
	s := f.status(t)
	require.NotNil(t, s.Track)
	assert.NotSame(t, a.Handle, s.Track, "repeat must play a fresh handle")
	assert.NotEqual(t, a.Handle.ID(), s.Track.ID())
	assert.True(t, a.Handle.SameSource(s.Track))
	assert.Equal(t, []string{"b"}, f.queued(t))
}

func TestController_RepeatAll(t *testing.T) {
	f := newFixture(t, Config{RepeatMode: RepeatAll})
	ctx := context.Background()

	a := newTrack("a", 1)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("c", 1))

	f.engine.finish()
	s := f.status(t)
	assert.Equal(t, "b", s.Track.Info().Title)

	items, err := f.ctrl.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].Handle.Info().Title)
	assert.Equal(t, "a", items[1].Handle.Info().Title)
	assert.NotSame(t, a.Handle, items[1].Handle)
}

func TestController_RepeatOnlyOnFinish(t *testing.T) {
	f := newFixture(t, Config{RepeatMode: RepeatTrack})
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))

	_, err := f.ctrl.Skip(ctx)
	require.NoError(t, err)
	s := f.status(t)
	assert.Equal(t, "b", s.Track.Info().Title)
	assert.Empty(t, f.queued(t))
}

func TestController_SetRepeatMode(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	require.NoError(t, f.ctrl.SetRepeatMode(ctx, RepeatAll))
	assert.Equal(t, RepeatAll, f.status(t).RepeatMode)

	f.engine.finish()
	s := f.status(t)
	assert.Equal(t, "a", s.Track.Info().Title)
}

func TestController_StopAndClearWinsOverLateEnd(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	a := newTrack("a", 1)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))

	require.NoError(t, f.ctrl.StopAndClear(ctx))
	// Late end report for the stopped track.
	f.ctrl.OnTrackEnded(a.Handle, track.EndFinished)

	s := f.status(t)
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Track)
	assert.Zero(t, s.QueueLength)
	assert.Len(t, f.engine.history(), 1)
	assert.Zero(t, f.rec.idleCount())
	assert.Equal(t, 1, f.engine.stops)

	// A new enqueue plays again.
	pos, err := f.ctrl.EnqueueOrPlay(ctx, newTrack("c", 1))
	require.NoError(t, err)
	assert.Equal(t, PlayingNow, pos)
}

func TestController_DuplicateEndIgnored(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("c", 1))

	a := f.engine.finish()
	f.ctrl.OnTrackEnded(a, track.EndFinished)
	f.ctrl.OnTrackEnded(nil, track.EndFinished)

	s := f.status(t)
	assert.Equal(t, "b", s.Track.Info().Title)
	assert.Equal(t, []string{"c"}, f.queued(t))
}

func TestController_EndReasons(t *testing.T) {
	tests := []struct {
		reason  track.EndReason
		advance bool
	}{
		{reason: track.EndFinished, advance: true},
		{reason: track.EndLoadFailed, advance: true},
		{reason: track.EndStopped, advance: true},
		{reason: track.EndReplaced, advance: false},
		{reason: track.EndCleanup, advance: false},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			f := newFixture(t, Config{})
			ctx := context.Background()

			a := newTrack("a", 1)
			_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
			_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
			f.ctrl.OnTrackEnded(a.Handle, tt.reason)

			s := f.status(t)
			if tt.advance {
				require.NotNil(t, s.Track)
				assert.Equal(t, "b", s.Track.Info().Title)
				return
			}
			assert.Nil(t, s.Track, "controller must not keep an ended track")
			assert.Equal(t, 1, s.QueueLength)
			assert.Zero(t, f.rec.idleCount())
		})
	}
}

func TestController_VoteSkip(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.ctrl.RequestVoteSkip(ctx, 1)
	assert.True(t, errors.Is(err, ErrNoTrack))

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))

	n, err := f.ctrl.RequestVoteSkip(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = f.ctrl.RequestVoteSkip(ctx, 1)
	assert.Equal(t, 1, n, "votes are per user")
	n, _ = f.ctrl.RequestVoteSkip(ctx, 2)
	assert.Equal(t, 2, n)

	f.engine.finish()
	assert.Zero(t, f.status(t).Votes, "votes reset when a track starts")
}

func TestController_Skip(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.ctrl.Skip(ctx)
	assert.True(t, errors.Is(err, ErrNoTrack))

	a := newTrack("a", 1)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))

	skipped, err := f.ctrl.Skip(ctx)
	require.NoError(t, err)
	assert.Same(t, a.Handle, skipped)
	assert.Equal(t, "b", f.status(t).Track.Info().Title)
}

func TestController_SkipTo(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d"} {
		_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack(title, 1))
	}

	_, err := f.ctrl.SkipTo(ctx, 9)
	assert.True(t, errors.Is(err, queue.ErrOutOfRange))

	next, err := f.ctrl.SkipTo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "c", next.Info().Title)
	assert.Equal(t, "c", f.status(t).Track.Info().Title)
	assert.Equal(t, []string{"d"}, f.queued(t))
}

func TestController_PauseResume(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	assert.True(t, errors.Is(f.ctrl.Pause(ctx), ErrNoTrack))

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	require.NoError(t, f.ctrl.Pause(ctx))
	assert.Equal(t, StatePaused, f.status(t).State)
	require.NoError(t, f.ctrl.Resume(ctx))
	assert.Equal(t, StatePlaying, f.status(t).State)
}

func TestController_IdleUnpauses(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	require.NoError(t, f.ctrl.Pause(ctx))
	f.engine.finish()
	f.status(t)

	assert.False(t, f.engine.IsPaused())
	assert.Equal(t, 1, f.rec.idleCount())
}

func TestController_FairQueue(t *testing.T) {
	f := newFixture(t, Config{QueueType: queue.TypeFair})
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a0", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a1", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a2", 1))
	pos, _ := f.ctrl.EnqueueOrPlay(ctx, newTrack("b1", 2))
	assert.Equal(t, 1, pos)
	assert.Equal(t, []string{"a1", "b1", "a2"}, f.queued(t))

	require.NoError(t, f.ctrl.SetQueueType(ctx, queue.TypeFIFO))
	assert.Equal(t, []string{"a1", "a2", "b1"}, f.queued(t))
	assert.Equal(t, queue.TypeFIFO, f.status(t).QueueType)
}

func TestController_FallbackResolvesNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.fallback.canLoad = true
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	f.engine.finish()
	assert.Equal(t, StateLoading, f.status(t).State)
	assert.Zero(t, f.rec.idleCount())

	_, _, done := f.fallback.callbacks()
	done(0)
	assert.Equal(t, StateIdle, f.status(t).State)
	assert.Equal(t, 1, f.rec.idleCount())

	// No second signal without a new start.
	f.ctrl.OnTrackEnded(nil, track.EndFinished)
	f.status(t)
	assert.Equal(t, 1, f.rec.idleCount())
}

func TestController_FallbackStreamsTracks(t *testing.T) {
	f := newFixture(t, Config{})
	f.fallback.canLoad = true
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	f.engine.finish()

	_, emit, done := f.fallback.callbacks()
	x := newTrack("x", 0).Handle
	y := newTrack("y", 0).Handle
	emit(x)
	emit(y)
	done(2)

	s := f.status(t)
	assert.Same(t, x, s.Track, "first resolved track plays at once")
	assert.Equal(t, 1, s.Pending)

	f.engine.finish()
	s = f.status(t)
	assert.Same(t, y, s.Track)
	assert.Zero(t, s.Pending)
	assert.Equal(t, 1, f.fallback.loads)
}

func TestController_FallbackPendingFirst(t *testing.T) {
	f := newFixture(t, Config{})
	f.fallback.canLoad = true
	p := newTrack("p", 0).Handle
	f.fallback.Push(p)
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	f.engine.finish()

	assert.Same(t, p, f.status(t).Track)
	assert.Zero(t, f.fallback.loads)
}

func TestController_StopAbandonsLoad(t *testing.T) {
	f := newFixture(t, Config{})
	f.fallback.canLoad = true
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	f.engine.finish()
	loadCtx, emit, done := f.fallback.callbacks()

	require.NoError(t, f.ctrl.StopAndClear(ctx))
	assert.Error(t, loadCtx.Err(), "resolution context must be cancelled")

	emit(newTrack("late", 0).Handle)
	done(1)

	s := f.status(t)
	assert.Equal(t, StateIdle, s.State)
	assert.Nil(t, s.Track)
	assert.Zero(t, s.Pending)
	assert.Zero(t, f.rec.idleCount())
}

func TestController_QueueEditing(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, q := range []struct {
		title string
		who   snowflake.ID
	}{{"a", 1}, {"b", 1}, {"c", 2}, {"d", 1}, {"e", 2}} {
		_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack(q.title, q.who))
	}

	removed, err := f.ctrl.RemoveAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Handle.Info().Title)

	moved, err := f.ctrl.Move(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "e", moved.Handle.Info().Title)
	assert.Equal(t, []string{"e", "c", "d"}, f.queued(t))

	n, err := f.ctrl.Shuffle(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.ctrl.RemoveRequester(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"d"}, f.queued(t))
}

func TestController_SnapshotRestore(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("a", 1))
	_, _ = f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 2))

	items, err := f.ctrl.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Handle.Info().Title)

	g := newFixture(t, Config{})
	require.NoError(t, g.ctrl.Restore(ctx, items))
	s := g.status(t)
	assert.Equal(t, "a", s.Track.Info().Title)
	assert.Equal(t, []string{"b"}, g.queued(t))
}

func TestController_Closed(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	a := newTrack("a", 1)
	_, _ = f.ctrl.EnqueueOrPlay(ctx, a)
	f.ctrl.Close()

	_, err := f.ctrl.EnqueueOrPlay(ctx, newTrack("b", 1))
	assert.True(t, errors.Is(err, ErrClosed))
	assert.Equal(t, 1, f.engine.stops, "close stops the playing track")

	// Events after close are dropped.
	f.ctrl.OnTrackEnded(a.Handle, track.EndFinished)
}

func TestController_ConcurrentEnqueue(t *testing.T) {
	f := newFixture(t, Config{QueueType: queue.TypeFair})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.ctrl.EnqueueOrPlay(ctx, newTrack("t", snowflake.ID(i%3+1)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s := f.status(t)
	assert.NotNil(t, s.Track)
	assert.Equal(t, 19, s.QueueLength)
}

func TestParseRepeatMode(t *testing.T) {
	tests := []struct {
		input    string
		expected RepeatMode
		wantErr  bool
	}{
		{input: "off", expected: RepeatOff},
		{input: "TRACK", expected: RepeatTrack},
		{input: "all", expected: RepeatAll},
		{input: "true", expected: RepeatAll},
		{input: "false", expected: RepeatOff},
		{input: "", expected: RepeatOff},
		{input: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRepeatMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "unknown", State(99).String())
}
