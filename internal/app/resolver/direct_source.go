package resolver

import (
	"context"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/djbox/internal/domain/track"
)

type DirectSourceConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
}

// DirectSource accepts any http(s) URL as a single track.
type DirectSource struct {
	config *DirectSourceConfig
}

// NewDirectSource creates a new DirectSource.
func NewDirectSource(settings map[string]any) (*DirectSource, error) {
	var config DirectSourceConfig
	if err := decodeSettings("direct", settings, &config); err != nil {
		return nil, err
	}
	return &DirectSource{config: &config}, nil
}

// Supports accepts http(s) URLs, restricted to the allowed hosts when configured.
func (s *DirectSource) Supports(query string) bool {
	u, ok := parseURL(query)
	if !ok {
		return false
	}
	return len(s.config.AllowedHosts) == 0 || slices.Contains(s.config.AllowedHosts, u.Hostname())
}

// Resolve returns the URL as a track titled after its last path segment.
func (s *DirectSource) Resolve(_ context.Context, query string) ([]track.Info, error) {
	u, ok := parseURL(query)
	if !ok {
		return nil, errors.Wrapf(ErrResolutionFailure, "not a URL: %q", query)
	}

	title := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(title); err == nil {
		title = unescaped
	}
	if title == "/" || title == "." || title == "" {
		title = u.Hostname()
	}

	return []track.Info{{
		Identifier: u.String(),
		Title:      title,
		URI:        u.String(),
		Source:     s.Name(),
	}}, nil
}

// Name returns the source name.
func (s *DirectSource) Name() string {
	return "direct"
}

func parseURL(query string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(query))
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}

func isURL(query string) bool {
	_, ok := parseURL(query)
	return ok
}
