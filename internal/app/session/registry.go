// Package session provides the per-guild playback sessions and their registry.
package session

import (
	"context"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/app/fallback"
	"github.com/osa030/djbox/internal/app/playback"
	"github.com/osa030/djbox/internal/app/queue"
	"github.com/osa030/djbox/internal/domain/track"
	"github.com/osa030/djbox/internal/infra/config"
)

var ErrSessionNotFound = errors.New("session not found")

const shardCount = 32

// Events receives the engine's track lifecycle reports.
type Events interface {
	OnTrackStarted(h *track.Handle)
	OnTrackEnded(h *track.Handle, reason track.EndReason)
}

// EngineFactory creates the engine of a guild. The engine reports to events.
type EngineFactory func(guildID snowflake.ID, settings config.GuildSettings, events Events) playback.Engine

// Restorer loads a guild's saved queue.
type Restorer interface {
	Load(ctx context.Context, guildID snowflake.ID) ([]track.QueuedTrack, error)
}

// Deps holds what the registry needs to assemble sessions.
type Deps struct {
	NewEngine  EngineFactory
	Observer   playback.Observer
	Connection playback.Connection
	Loader     fallback.PlaylistLoader
	Resolver   fallback.Resolver
	Restorer   Restorer // Optional
}

// Session is the playback state of one guild.
type Session struct {
	GuildID    snowflake.ID
	Settings   config.GuildSettings
	Controller *playback.Controller
	Fallback   *fallback.Provider
	Engine     playback.Engine
}

// RequiredVotes returns the votes needed to skip with the given number of listeners.
func (s *Session) RequiredVotes(listeners int) int {
	if listeners < 1 {
		listeners = 1
	}
	return max(1, int(math.Ceil(float64(listeners)*s.Settings.SkipRatio)))
}

func (s *Session) close() {
	s.Controller.Close()
	if c, ok := s.Engine.(interface{ Close() }); ok {
		c.Close()
	}
}

type shard struct {
	mu       sync.RWMutex
	sessions map[snowflake.ID]*Session
}

// Registry maps guilds to sessions. It is safe for concurrent use.
type Registry struct {
	shards [shardCount]*shard
	cfg    *config.Config
	deps   Deps
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, deps Deps) *Registry {
	r := &Registry{cfg: cfg, deps: deps}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[snowflake.ID]*Session)}
	}
	return r
}

func (r *Registry) shardFor(guildID snowflake.ID) *shard {
	return r.shards[uint64(guildID)%shardCount]
}

// GetOrCreate returns the guild's session, creating it on first use.
// Concurrent callers for the same guild get the same session.
func (r *Registry) GetOrCreate(ctx context.Context, guildID snowflake.ID) (*Session, error) {
	sh := r.shardFor(guildID)

	sh.mu.RLock()
	s, ok := sh.sessions[guildID]
	sh.mu.RUnlock()
	if ok {
		return s, nil
	}

	sh.mu.Lock()
	if s, ok := sh.sessions[guildID]; ok {
		sh.mu.Unlock()
		return s, nil
	}
	s, err := r.newSession(guildID)
	if err != nil {
		sh.mu.Unlock()
		return nil, err
	}
	sh.sessions[guildID] = s
	sh.mu.Unlock()

	zlog.Info().Msgf("session: created: guild=%s queue_type=%s repeat_mode=%s default_playlist=%q",
		guildID, s.Settings.QueueType, s.Settings.RepeatMode, s.Settings.DefaultPlaylist)

	r.restore(ctx, s)
	return s, nil
}

// Get returns the guild's session.
func (r *Registry) Get(guildID snowflake.ID) (*Session, error) {
	sh := r.shardFor(guildID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	s, ok := sh.sessions[guildID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove tears down the guild's session.
func (r *Registry) Remove(guildID snowflake.ID) error {
	sh := r.shardFor(guildID)
	sh.mu.Lock()
	s, ok := sh.sessions[guildID]
	delete(sh.sessions, guildID)
	sh.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	zlog.Info().Msgf("session: removed: guild=%s", guildID)
	return nil
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every session until fn returns false.
// Sessions created or removed during the walk may or may not be visited.
func (r *Registry) Range(fn func(s *Session) bool) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		sessions := make([]*Session, 0, len(sh.sessions))
		for _, s := range sh.sessions {
			sessions = append(sessions, s)
		}
		sh.mu.RUnlock()

		for _, s := range sessions {
			if !fn(s) {
				return
			}
		}
	}
}

// Close removes every session.
func (r *Registry) Close() {
	var ids []snowflake.ID
	r.Range(func(s *Session) bool {
		ids = append(ids, s.GuildID)
		return true
	})
	for _, id := range ids {
		_ = r.Remove(id)
	}
}

func (r *Registry) newSession(guildID snowflake.ID) (*Session, error) {
	settings := r.cfg.GuildSettings(guildID)

	queueType, err := queue.ParseType(settings.QueueType)
	if err != nil {
		return nil, errors.Wrapf(err, "guild %s", guildID)
	}
	repeat, err := playback.ParseRepeatMode(settings.RepeatMode)
	if err != nil {
		return nil, errors.Wrapf(err, "guild %s", guildID)
	}
	if r.deps.NewEngine == nil {
		return nil, errors.New("no engine factory configured")
	}

	ev := &relay{}
	engine := r.deps.NewEngine(guildID, settings, ev)
	provider := fallback.NewProvider(settings.DefaultPlaylist, r.deps.Loader, r.deps.Resolver)
	ctrl := playback.NewController(
		playback.Config{
			GuildID:    guildID,
			QueueType:  queueType,
			RepeatMode: repeat,
		},
		playback.Deps{
			Engine:     engine,
			Observer:   r.deps.Observer,
			Connection: r.deps.Connection,
			Fallback:   provider,
		},
	)
	ev.bind(ctrl)

	return &Session{
		GuildID:    guildID,
		Settings:   settings,
		Controller: ctrl,
		Fallback:   provider,
		Engine:     engine,
	}, nil
}

func (r *Registry) restore(ctx context.Context, s *Session) {
	if r.deps.Restorer == nil {
		return
	}
	items, err := r.deps.Restorer.Load(ctx, s.GuildID)
	if err != nil {
		zlog.Warn().Msgf("session: failed to load snapshot: guild=%s error=%v", s.GuildID, err)
		return
	}
	if len(items) == 0 {
		return
	}
	if err := s.Controller.Restore(ctx, items); err != nil {
		zlog.Warn().Msgf("session: failed to restore snapshot: guild=%s error=%v", s.GuildID, err)
		return
	}
	zlog.Info().Msgf("session: restored snapshot: guild=%s tracks=%d", s.GuildID, len(items))
}

// relay forwards engine events to a controller created after the engine.
type relay struct {
	mu   sync.RWMutex
	ctrl *playback.Controller
}

func (r *relay) bind(ctrl *playback.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctrl = ctrl
}

func (r *relay) target() *playback.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctrl
}

func (r *relay) OnTrackStarted(h *track.Handle) {
	if c := r.target(); c != nil {
		c.OnTrackStarted(h)
	}
}

func (r *relay) OnTrackEnded(h *track.Handle, reason track.EndReason) {
	if c := r.target(); c != nil {
		c.OnTrackEnded(h, reason)
	}
}
