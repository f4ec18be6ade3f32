// Package playlist reads named playlists from a directory.
//
// A playlist is either a text file (one query per line) or a YAML file:
//
//	# name.txt
//	#shuffle
//	spotify:track:4uLU6hMCjMI75M1A2tKUQC
//	daft punk one more time
//
//	# name.yaml
//	shuffle: true
//	items:
//	  - spotify:track:4uLU6hMCjMI75M1A2tKUQC
package playlist

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/djbox/internal/domain/playlist"
)

// ErrNotFound is returned when no playlist file matches the name.
var ErrNotFound = errors.New("playlist not found")

var extensions = []string{".txt", ".yaml", ".yml"}

type yamlPlaylist struct {
	Shuffle bool     `yaml:"shuffle"`
	Items   []string `yaml:"items"`
}

// Loader reads playlists from a directory. Files are read on every Load so
// edits take effect without a restart.
type Loader struct {
	dir string
}

// NewLoader creates a loader for dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads the named playlist.
func (l *Loader) Load(ctx context.Context, name string) (*playlist.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.find(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read playlist %q", name)
	}

	var p *playlist.Playlist
	if filepath.Ext(path) == ".txt" {
		p = parseText(data)
	} else if p, err = parseYAML(data); err != nil {
		return nil, errors.Wrapf(err, "failed to parse playlist %q", name)
	}
	p.Name = name

	zlog.Debug().Msgf("playlist: loaded: name=%s items=%d shuffle=%v", name, len(p.Items), p.Shuffle)
	return p, nil
}

// Names lists the available playlists, sorted.
func (l *Loader) Names() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read playlist directory")
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || !slices.Contains(extensions, ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ext))
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// find returns the file for name. An exact match wins over a
// case-insensitive one.
func (l *Loader) find(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.Wrapf(ErrNotFound, "invalid name %q", name)
	}

	for _, ext := range extensions {
		path := filepath.Join(l.dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	names, err := l.Names()
	if err != nil {
		return "", errors.Mark(err, ErrNotFound)
	}
	for _, n := range names {
		if n != name && strings.EqualFold(n, name) {
			return l.find(n)
		}
	}
	return "", errors.Wrapf(ErrNotFound, "%q", name)
}

// parseText reads one item per line. Lines starting with "#" or "//" are
// comments, except the "#shuffle" directive.
func parseText(data []byte) *playlist.Playlist {
	p := &playlist.Playlist{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//"):
			directive := strings.Join(strings.Fields(strings.TrimLeft(line, "#/")), "")
			if strings.EqualFold(directive, "shuffle") {
				p.Shuffle = true
			}
		default:
			p.Items = append(p.Items, line)
		}
	}
	return p
}

func parseYAML(data []byte) (*playlist.Playlist, error) {
	var raw yamlPlaylist
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	p := &playlist.Playlist{Shuffle: raw.Shuffle}
	for _, item := range raw.Items {
		if item = strings.TrimSpace(item); item != "" {
			p.Items = append(p.Items, item)
		}
	}
	return p, nil
}
