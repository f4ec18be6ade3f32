package fallback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/djbox/internal/domain/playlist"
	"github.com/osa030/djbox/internal/domain/track"
)

type stubLoader struct {
	playlists map[string]*playlist.Playlist
	calls     int
}

func (l *stubLoader) Load(_ context.Context, name string) (*playlist.Playlist, error) {
	l.calls++
	pl, ok := l.playlists[name]
	if !ok {
		return nil, errors.Newf("playlist not found: %s", name)
	}
	return pl, nil
}

type stubResolver struct {
	fail map[string]bool
}

func (r stubResolver) Resolve(_ context.Context, query string) ([]track.Info, error) {
	if r.fail[query] {
		return nil, errors.New("no matches")
	}
	return []track.Info{{Identifier: query, Title: query, URI: query}}, nil
}

type result struct {
	mu     sync.Mutex
	titles []string
	count  int
	done   chan struct{}
}

func newResult() *result {
	return &result{count: -1, done: make(chan struct{})}
}

func (r *result) emit(h *track.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, h.Info().Title)
}

func (r *result) finish(n int) {
	r.mu.Lock()
	r.count = n
	r.mu.Unlock()
	close(r.done)
}

func (r *result) wait(t *testing.T) ([]string, int) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("done was not called")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.titles, r.count
}

func TestProvider_Sequence(t *testing.T) {
	p := NewProvider("", nil, nil)

	_, ok := p.Next()
	assert.False(t, ok)

	a := track.NewHandle(track.Info{Title: "a"}, track.Requester{})
	b := track.NewHandle(track.Info{Title: "b"}, track.Requester{})
	p.Push(a)
	p.Push(b)
	assert.Equal(t, 2, p.Len())

	got, ok := p.Next()
	require.True(t, ok)
	assert.Same(t, a, got)

	p.Clear()
	assert.Zero(t, p.Len())
	_, ok = p.Next()
	assert.False(t, ok)
}

func TestProvider_LoadNothing(t *testing.T) {
	loader := &stubLoader{playlists: map[string]*playlist.Playlist{
		"empty": {Name: "empty"},
	}}

	tests := []struct {
		name     string
		playlist string
	}{
		{name: "no playlist configured", playlist: ""},
		{name: "missing playlist", playlist: "nope"},
		{name: "empty playlist", playlist: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(tt.playlist, loader, stubResolver{})
			called := false
			ok := p.Load(context.Background(),
				func(*track.Handle) { called = true },
				func(int) { called = true })
			assert.False(t, ok)
			assert.False(t, called)
		})
	}
}

func TestProvider_LoadStreamsInOrder(t *testing.T) {
	loader := &stubLoader{playlists: map[string]*playlist.Playlist{
		"chill": {Name: "chill", Items: []string{"one", "bad", "two", "three"}},
	}}
	p := NewProvider("chill", loader, stubResolver{fail: map[string]bool{"bad": true}})

	r := newResult()
	require.True(t, p.Load(context.Background(), r.emit, r.finish))

	titles, count := r.wait(t)
	assert.Equal(t, []string{"one", "two", "three"}, titles)
	assert.Equal(t, 3, count)

	// Membership is re-read on every load.
	r = newResult()
	require.True(t, p.Load(context.Background(), r.emit, r.finish))
	r.wait(t)
	assert.Equal(t, 2, loader.calls)
}

func TestProvider_LoadAllFail(t *testing.T) {
	loader := &stubLoader{playlists: map[string]*playlist.Playlist{
		"broken": {Name: "broken", Items: []string{"x", "y"}},
	}}
	p := NewProvider("broken", loader, stubResolver{fail: map[string]bool{"x": true, "y": true}})

	r := newResult()
	require.True(t, p.Load(context.Background(), r.emit, r.finish))
	titles, count := r.wait(t)
	assert.Empty(t, titles)
	assert.Zero(t, count)
}

// gatedResolver answers its first call at once and holds the rest until release is closed.
type gatedResolver struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (r *gatedResolver) Resolve(ctx context.Context, query string) ([]track.Info, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()
	if !first {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []track.Info{{Identifier: query, Title: query, URI: query}}, nil
}

func TestProvider_LoadShuffle(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f"}
	loader := &stubLoader{playlists: map[string]*playlist.Playlist{
		"mix": {Name: "mix", Items: items, Shuffle: true},
	}}
	resolver := &gatedResolver{release: make(chan struct{})}
	p := NewProvider("mix", loader, resolver)

	r := newResult()
	require.True(t, p.Load(context.Background(), r.emit, r.finish))

	// The first resolved item plays while the others are still resolving
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.titles) == 1
	}, time.Second, 5*time.Millisecond)

	close(resolver.release)
	titles, count := r.wait(t)
	assert.Equal(t, len(items), count)
	assert.ElementsMatch(t, items, titles)
}

func TestProvider_LoadCancelled(t *testing.T) {
	loader := &stubLoader{playlists: map[string]*playlist.Playlist{
		"chill": {Name: "chill", Items: []string{"one", "two"}},
	}}
	p := NewProvider("chill", loader, stubResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newResult()
	require.True(t, p.Load(ctx, r.emit, r.finish))
	titles, count := r.wait(t)
	assert.Empty(t, titles)
	assert.Zero(t, count)
}

func TestProvider_SetPlaylist(t *testing.T) {
	p := NewProvider("a", nil, nil)
	assert.Equal(t, "a", p.Playlist())
	p.SetPlaylist("b")
	assert.Equal(t, "b", p.Playlist())
}
