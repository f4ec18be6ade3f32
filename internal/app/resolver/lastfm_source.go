package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/djbox/internal/domain/track"
	"github.com/osa030/djbox/internal/infra/lastfm"
)

const lastFmPrefix = "lastfm:"

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.TopTrack, error)
}

type LastFmSourceConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	Limit     int    `yaml:"limit" mapstructure:"limit" default:"20" validate:"gte=1,lte=100"`
	CacheSize int    `yaml:"cache_size" mapstructure:"cache_size" default:"128" validate:"gte=1"`
}

// LastFmSource resolves Last.fm charts, tags and similar-track lookups:
//
//	lastfm:chart
//	lastfm:tag:<tag>
//	lastfm:similar:<artist>/<track>
type LastFmSource struct {
	lastfm LastFmClient
	config *LastFmSourceConfig
}

// NewLastFmSource creates a LastFmSource with its own Last.fm client.
func NewLastFmSource(settings map[string]any) (*LastFmSource, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}
	var config LastFmSourceConfig
	if err := decodeSettings("lastfm", settings, &config); err != nil {
		return nil, err
	}
	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey, CacheSize: config.CacheSize})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return &LastFmSource{lastfm: client, config: &config}, nil
}

// NewLastFmSourceWithClient creates a LastFmSource around an existing client.
func NewLastFmSourceWithClient(client LastFmClient, limit int) *LastFmSource {
	if limit <= 0 {
		limit = 20
	}
	return &LastFmSource{lastfm: client, config: &LastFmSourceConfig{Limit: limit}}
}

// Supports accepts "lastfm:" queries.
func (s *LastFmSource) Supports(query string) bool {
	return strings.HasPrefix(query, lastFmPrefix)
}

// Resolve resolves the query through the Last.fm API.
func (s *LastFmSource) Resolve(ctx context.Context, query string) ([]track.Info, error) {
	kind, arg, _ := strings.Cut(strings.TrimPrefix(query, lastFmPrefix), ":")

	var tracks []lastfm.TopTrack
	var err error
	switch kind {
	case "chart":
		tracks, err = s.lastfm.GetChartTopTracks(ctx, s.config.Limit)
	case "tag":
		if arg == "" {
			return nil, errors.Wrapf(ErrResolutionFailure, "missing tag in %q", query)
		}
		tracks, err = s.lastfm.GetTopTracks(ctx, arg, s.config.Limit)
	case "similar":
		artist, name, ok := strings.Cut(arg, "/")
		if !ok || artist == "" || name == "" {
			return nil, errors.Wrapf(ErrResolutionFailure, "expected lastfm:similar:<artist>/<track>, got %q", query)
		}
		tracks, err = s.lastfm.GetSimilarTracks(ctx, name, artist, s.config.Limit)
	default:
		return nil, errors.Wrapf(ErrResolutionFailure, "unsupported last.fm query %q", query)
	}
	if err != nil {
		return nil, failed(err, "last.fm "+kind)
	}

	infos := make([]track.Info, 0, len(tracks))
	for _, t := range tracks {
		infos = append(infos, track.Info{
			Identifier: t.URL,
			Title:      t.Name,
			Author:     t.Artist,
			Duration:   t.Duration,
			URI:        t.URL,
			Source:     s.Name(),
		})
	}
	return infos, nil
}

// Name returns the source name.
func (s *LastFmSource) Name() string {
	return "lastfm"
}
