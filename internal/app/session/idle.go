package session

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/app/playback"
	"github.com/osa030/djbox/internal/domain/track"
)

// IdleManager decides what happens to a guild that ran out of content. It
// tears the session down unless the guild is configured to stay.
// It implements playback.Connection.
type IdleManager struct {
	mu       sync.Mutex
	registry *Registry
	onIdle   func(guildID snowflake.ID)
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewIdleManager creates an idle manager. onIdle, if set, is called for every
// idle signal.
func NewIdleManager(onIdle func(guildID snowflake.ID)) *IdleManager {
	return &IdleManager{onIdle: onIdle, timeout: 5 * time.Second}
}

// Attach sets the registry whose sessions are torn down.
func (m *IdleManager) Attach(r *Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry = r
}

// SignalIdle implements playback.Connection. It is called from the
// controller's worker, so the teardown runs on its own goroutine.
func (m *IdleManager) SignalIdle(guildID snowflake.ID) {
	if m.onIdle != nil {
		m.onIdle(guildID)
	}

	m.mu.Lock()
	r := m.registry
	m.mu.Unlock()
	if r == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.leave(r, guildID)
	}()
}

// Wait blocks until pending teardowns are done.
func (m *IdleManager) Wait() {
	m.wg.Wait()
}

func (m *IdleManager) leave(r *Registry, guildID snowflake.ID) {
	s, err := r.Get(guildID)
	if err != nil {
		return
	}
	if s.Settings.Stay {
		zlog.Debug().Msgf("session: idle, staying: guild=%s", guildID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	// A request may have arrived since the signal
	st, err := s.Controller.NowPlaying(ctx)
	if err != nil || st.State != playback.StateIdle || st.QueueLength > 0 {
		return
	}

	if err := r.Remove(guildID); err != nil {
		zlog.Debug().Msgf("session: idle teardown skipped: guild=%s err=%v", guildID, err)
		return
	}
	zlog.Info().Msgf("session: left idle guild: guild=%s", guildID)
}

// Saver stores a guild's queue.
type Saver interface {
	Save(ctx context.Context, guildID snowflake.ID, items []track.QueuedTrack) error
}

// SaveAll stores the current track and queue of every live session. It keeps
// going after a failure and returns the number of sessions saved.
func (r *Registry) SaveAll(ctx context.Context, saver Saver) int {
	saved := 0
	r.Range(func(s *Session) bool {
		items, err := s.Controller.Snapshot(ctx)
		if err != nil {
			zlog.Warn().Msgf("session: failed to snapshot: guild=%s error=%v", s.GuildID, err)
			return ctx.Err() == nil
		}
		if err := saver.Save(ctx, s.GuildID, items); err != nil {
			zlog.Warn().Msgf("session: failed to save snapshot: guild=%s error=%v", s.GuildID, err)
			return ctx.Err() == nil
		}
		saved++
		return true
	})
	return saved
}
