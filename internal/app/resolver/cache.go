package resolver

import (
	"context"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/track"
)

// Cache remembers successful resolutions. Failures are not cached.
type Cache struct {
	next    Resolver
	entries *lru.Cache[string, []track.Info]
}

// NewCache wraps next with an LRU cache holding up to size queries.
func NewCache(next Resolver, size int) (*Cache, error) {
	entries, err := lru.New[string, []track.Info](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create resolver cache")
	}
	return &Cache{next: next, entries: entries}, nil
}

// Resolve returns the cached result for query or resolves and caches it.
func (c *Cache) Resolve(ctx context.Context, query string) ([]track.Info, error) {
	key := strings.TrimSpace(query)
	if tracks, ok := c.entries.Get(key); ok {
		zlog.Debug().Msgf("resolver: cache hit: query=%q tracks=%d", key, len(tracks))
		return slices.Clone(tracks), nil
	}

	tracks, err := c.next.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(tracks) > 0 {
		c.entries.Add(key, slices.Clone(tracks))
	}
	return tracks, nil
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached result.
func (c *Cache) Purge() {
	c.entries.Purge()
}
