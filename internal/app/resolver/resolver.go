// Package resolver turns user queries and playlist items into playable track metadata.
package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/track"
)

// ErrResolutionFailure is wrapped by every error a resolver returns.
// Callers treat it as "no tracks".
var ErrResolutionFailure = errors.New("track resolution failed")

// failed wraps a source error so it matches ErrResolutionFailure.
func failed(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrResolutionFailure)
}

// Resolver resolves a query (URI, URL or search text) into tracks.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]track.Info, error)
}

// Source is a resolver for the queries it supports.
type Source interface {
	Resolver
	// Supports reports whether the source understands the query.
	Supports(query string) bool
	// Name returns the source name (used in config).
	Name() string
}

// Chain tries its sources in order until one resolves the query.
type Chain struct {
	sources []Source
}

// NewChain creates a new resolver chain.
func NewChain(sources ...Source) *Chain {
	return &Chain{
		sources: sources,
	}
}

// Resolve resolves the query with the first supporting source that returns tracks.
func (c *Chain) Resolve(ctx context.Context, query string) ([]track.Info, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Wrap(ErrResolutionFailure, "empty query")
	}

	for i, s := range c.sources {
		if !s.Supports(query) {
			continue
		}
		zlog.Debug().Msgf("resolver: trying source: index=%d total=%d name=%s query=%q",
			i+1, len(c.sources), s.Name(), query)

		tracks, err := s.Resolve(ctx, query)
		if err != nil {
			zlog.Warn().Msgf("resolver: source failed, trying next: source=%s query=%q error=%v", s.Name(), query, err)
			continue
		}
		if len(tracks) == 0 {
			zlog.Debug().Msgf("resolver: source returned no tracks: source=%s query=%q", s.Name(), query)
			continue
		}
		return tracks, nil
	}

	return nil, errors.Wrapf(ErrResolutionFailure, "no source could resolve %q", query)
}

// Sources returns the names of the configured sources in order.
func (c *Chain) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}
