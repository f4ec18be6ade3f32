package resolver

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/infra/config"
)

// NewFromConfig creates the configured source chain, wrapped in a cache when
// resolver.cache_size is positive. spotify may be nil when no spotify source
// is configured.
func NewFromConfig(cfg *config.Config, spotify SpotifyClient) (Resolver, error) {
	if len(cfg.Resolver.Sources) == 0 {
		return nil, errors.New("no resolver sources configured")
	}

	var sources []Source
	for i, scfg := range cfg.Resolver.Sources {
		var source Source
		var err error
		zlog.Debug().Msgf("creating resolver source: index=%d type=%s", i+1, scfg.Type)
		switch scfg.Type {
		case "spotify":
			source, err = NewSpotifySource(spotify, scfg.Settings)

		case "lastfm":
			source, err = NewLastFmSource(scfg.Settings)

		case "direct":
			source, err = NewDirectSource(scfg.Settings)

		default:
			return nil, errors.Newf("unsupported source type: %s (source index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		sources = append(sources, source)
		zlog.Info().Msgf("registered resolver source: index=%d type=%s", i+1, scfg.Type)
	}

	chain := NewChain(sources...)
	if cfg.Resolver.CacheSize <= 0 {
		return chain, nil
	}
	cache, err := NewCache(chain, cfg.Resolver.CacheSize)
	if err != nil {
		return nil, err
	}
	return cache, nil
}
