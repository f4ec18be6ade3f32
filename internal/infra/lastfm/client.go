// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"
)

const defaultCacheSize = 128

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for tag and similar-track lookups
	cache *lru.Cache[string, []TopTrack]
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey    string
	CacheSize int
}

// TopTrack represents a track returned by a chart, tag or similarity lookup.
type TopTrack struct {
	Name     string
	Artist   string
	URL      string
	Duration time.Duration
}

// trackList is the track list shape shared by tag.getTopTracks,
// chart.getTopTracks and track.getSimilar.
type trackList struct {
	Track []struct {
		Name     string          `json:"name"`
		URL      string          `json:"url"`
		Duration json.RawMessage `json:"duration"`
		Artist   struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"track"`
}

// GetTopTracksResponse represents the response from tag.getTopTracks and chart.getTopTracks.
type GetTopTracksResponse struct {
	Tracks trackList `json:"tracks"`
}

// GetSimilarResponse represents the response from track.getSimilar API.
type GetSimilarResponse struct {
	SimilarTracks trackList `json:"similartracks"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []TopTrack](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cache")
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      cache,
	}, nil
}

// GetTopTracks retrieves top tracks for a tag from Last.fm.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit)

	cacheKey := fmt.Sprintf("tagtracks:%s:%d", tagName, limit)
	if tracks, ok := c.cache.Get(cacheKey); ok {
		zlog.Debug().Msgf("lastfm: using cached top tracks for tag: %s", tagName)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(limit))

	var response GetTopTracksResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	tracks := convertTracks(response.Tracks)
	c.cache.Add(cacheKey, tracks)
	zlog.Debug().Msgf("lastfm: cached top tracks for tag: %s (count: %d)", tagName, len(tracks))

	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Chart results change often and are not cached.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit)))

	// Parse successful response (same structure as tag.getTopTracks)
	var response GetTopTracksResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}
	return convertTracks(response.Tracks), nil
}

// GetSimilarTracks retrieves tracks similar to the given one.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]TopTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit)

	cacheKey := fmt.Sprintf("similar:%s:%s:%d", artistName, trackName, limit)
	if tracks, ok := c.cache.Get(cacheKey); ok {
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("autocorrect", "1")

	var response GetSimilarResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	tracks := convertTracks(response.SimilarTracks)
	c.cache.Add(cacheKey, tracks)
	return tracks, nil
}

// get calls an API method and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("last.fm API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func convertTracks(list trackList) []TopTrack {
	tracks := make([]TopTrack, 0, len(list.Track))
	for _, t := range list.Track {
		tracks = append(tracks, TopTrack{
			Name:     t.Name,
			Artist:   t.Artist.Name,
			URL:      t.URL,
			Duration: parseSeconds(t.Duration),
		})
	}
	return tracks
}

// parseSeconds decodes a duration in seconds that the API sends either as a
// number or as a string.
func parseSeconds(raw json.RawMessage) time.Duration {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
