// Package fallback provides the default content played once a guild's queue runs dry.
package fallback

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/playlist"
	"github.com/osa030/djbox/internal/domain/track"
)

// PlaylistLoader reads a named playlist. The playlist is read fresh on every call.
type PlaylistLoader interface {
	Load(ctx context.Context, name string) (*playlist.Playlist, error)
}

// Resolver turns a playlist item into playable track metadata.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]track.Info, error)
}

// Provider holds a guild's pre-resolved default tracks and the name of its
// default playlist.
type Provider struct {
	mu       sync.Mutex
	pending  []*track.Handle
	playlist string

	loader   PlaylistLoader
	resolver Resolver
}

// NewProvider creates a provider for the named playlist. An empty name
// disables playlist loading.
func NewProvider(playlistName string, loader PlaylistLoader, resolver Resolver) *Provider {
	return &Provider{
		pending:  make([]*track.Handle, 0),
		playlist: playlistName,
		loader:   loader,
		resolver: resolver,
	}
}

// Playlist returns the default playlist name.
func (p *Provider) Playlist() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist
}

// SetPlaylist changes the default playlist. It applies to the next Load.
func (p *Provider) SetPlaylist(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist = name
}

// Next pops the oldest pre-resolved track.
func (p *Provider) Next() (*track.Handle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, false
	}
	h := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	return h, true
}

// Push appends a resolved track.
func (p *Provider) Push(h *track.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, h)
}

// Clear drops every pre-resolved track.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make([]*track.Handle, 0)
}

// Len returns the number of pre-resolved tracks.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Load reads the default playlist and resolves its items on a new goroutine.
// emit is called for every track as soon as its item resolves, in playlist
// order (shuffled when the playlist asks for it), and done is called once at
// the end with the number of tracks emitted. Load returns false without calling either when there is
// no playlist or it has no items.
func (p *Provider) Load(ctx context.Context, emit func(h *track.Handle), done func(count int)) bool {
	name := p.Playlist()
	if name == "" || p.loader == nil || p.resolver == nil {
		return false
	}

	pl, err := p.loader.Load(ctx, name)
	if err != nil {
		zlog.Warn().Msgf("fallback: failed to load playlist: name=%s error=%v", name, err)
		return false
	}
	if pl.IsEmpty() {
		zlog.Debug().Msgf("fallback: playlist is empty: name=%s", name)
		return false
	}

	go func() {
		count := 0
		p.resolve(ctx, pl, func(infos []track.Info) {
			for _, info := range pl.Arrange(infos) {
				if ctx.Err() != nil {
					return
				}
				emit(track.NewHandle(info, track.Requester{}))
				count++
			}
		})

		zlog.Info().Msgf("fallback: playlist resolved: name=%s items=%d tracks=%d", name, len(pl.Items), count)
		done(count)
	}()
	return true
}

// resolve resolves the items in playlist order, dropping the ones that fail.
// Each item is handed to yield as soon as it resolves.
func (p *Provider) resolve(ctx context.Context, pl *playlist.Playlist, yield func([]track.Info)) {
	for i, item := range pl.Order() {
		if ctx.Err() != nil {
			return
		}
		res, err := p.resolver.Resolve(ctx, item)
		if err != nil {
			zlog.Warn().Msgf("fallback: item could not be resolved: playlist=%s index=%d item=%q error=%v",
				pl.Name, i, item, err)
			continue
		}
		yield(res)
	}
}
