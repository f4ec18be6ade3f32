package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/djbox/internal/domain/track"
	"github.com/osa030/djbox/internal/infra/spotify"
)

const searchPrefix = "search:"

// SpotifyClient defines the Spotify operations the spotify source needs.
type SpotifyClient interface {
	GetTrack(ctx context.Context, trackID string) (track.Info, error)
	Search(ctx context.Context, query string, limit int) ([]track.Info, error)
	GetPlaylistTracks(ctx context.Context, playlistURL string) ([]track.Info, error)
}

type SpotifySourceConfig struct {
	SearchLimit   int  `yaml:"search_limit" mapstructure:"search_limit" default:"1" validate:"gte=1,lte=50"`
	DisableSearch bool `yaml:"disable_search" mapstructure:"disable_search"`
}

// SpotifySource resolves Spotify track and playlist references and free text searches.
type SpotifySource struct {
	client SpotifyClient
	config *SpotifySourceConfig
}

// NewSpotifySource creates a new SpotifySource.
func NewSpotifySource(client SpotifyClient, settings map[string]any) (*SpotifySource, error) {
	if client == nil {
		return nil, errors.New("spotify client is required")
	}
	var config SpotifySourceConfig
	if err := decodeSettings("spotify", settings, &config); err != nil {
		return nil, err
	}
	return &SpotifySource{client: client, config: &config}, nil
}

// Supports accepts Spotify references, "search:" queries and, unless search
// is disabled, any text that is not a URL or another source's URI.
func (s *SpotifySource) Supports(query string) bool {
	if spotify.IsTrackRef(query) || spotify.IsPlaylistRef(query) {
		return true
	}
	if s.config.DisableSearch {
		return false
	}
	if strings.HasPrefix(query, searchPrefix) {
		return true
	}
	return !isURL(query) && !strings.Contains(strings.SplitN(query, " ", 2)[0], ":")
}

// Resolve resolves the query through the Spotify Web API.
func (s *SpotifySource) Resolve(ctx context.Context, query string) ([]track.Info, error) {
	switch {
	case spotify.IsTrackRef(query):
		info, err := s.client.GetTrack(ctx, query)
		if err != nil {
			return nil, failed(err, "spotify track")
		}
		return []track.Info{info}, nil

	case spotify.IsPlaylistRef(query):
		tracks, err := s.client.GetPlaylistTracks(ctx, query)
		if err != nil {
			return nil, failed(err, "spotify playlist")
		}
		return tracks, nil

	default:
		text := strings.TrimSpace(strings.TrimPrefix(query, searchPrefix))
		tracks, err := s.client.Search(ctx, text, s.config.SearchLimit)
		if err != nil {
			return nil, failed(err, "spotify search")
		}
		if len(tracks) > s.config.SearchLimit {
			tracks = tracks[:s.config.SearchLimit]
		}
		return tracks, nil
	}
}

// Name returns the source name.
func (s *SpotifySource) Name() string {
	return "spotify"
}
