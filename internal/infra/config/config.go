// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/disgoorg/snowflake/v2"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Playback  PlaybackConfig          `yaml:"playback"`
	Guilds    map[string]GuildConfig  `yaml:"guilds" validate:"dive"`
	Playlists PlaylistsConfig         `yaml:"playlists"`
	Resolver  ResolverConfig          `yaml:"resolver"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	Snapshot  SnapshotConfig          `yaml:"snapshot"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Log       LogConfig               `yaml:"log"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

// PlaybackConfig represents the playback defaults applied to every guild.
type PlaybackConfig struct {
	QueueType       string  `yaml:"queue_type" default:"fifo" validate:"oneof=fifo fair"`
	RepeatMode      string  `yaml:"repeat_mode" default:"off" validate:"oneof=off track all true false"`
	Stay            bool    `yaml:"stay"`
	DefaultPlaylist string  `yaml:"default_playlist"`
	SkipRatio       float64 `yaml:"skip_ratio" default:"0.55" validate:"gt=0,lte=1"`
	Volume          int     `yaml:"volume" default:"100" validate:"gte=0,lte=150"`
	StartDelayMs    int     `yaml:"start_delay_ms" default:"0" validate:"gte=0,lte=30000"`
}

// GuildConfig holds per-guild overrides. Unset fields fall back to PlaybackConfig.
type GuildConfig struct {
	QueueType       *string  `yaml:"queue_type" validate:"omitempty,oneof=fifo fair"`
	RepeatMode      *string  `yaml:"repeat_mode" validate:"omitempty,oneof=off track all true false"`
	Stay            *bool    `yaml:"stay"`
	DefaultPlaylist *string  `yaml:"default_playlist"`
	SkipRatio       *float64 `yaml:"skip_ratio" validate:"omitempty,gt=0,lte=1"`
	Volume          *int     `yaml:"volume" validate:"omitempty,gte=0,lte=150"`
}

// PlaylistsConfig represents playlist storage configuration.
type PlaylistsConfig struct {
	Dir string `yaml:"dir" default:"playlists"`
}

// ResolverConfig represents track resolution configuration.
type ResolverConfig struct {
	CacheSize int            `yaml:"cache_size" default:"256" validate:"gte=0"`
	Sources   []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single resolver source configuration.
type SourceConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=spotify lastfm direct"`
	Settings map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// SnapshotConfig represents the queue snapshot store configuration.
type SnapshotConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" default:"localhost:6379"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db" validate:"gte=0"`
	TTL       time.Duration `yaml:"ttl" default:"24h"`
	KeyPrefix string        `yaml:"key_prefix" default:"djbox"`
}

// FilterConfig represents a request filter configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logging configuration. Command-line flags override it.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

// GuildSettings is the effective, read-only playback configuration of one guild.
type GuildSettings struct {
	QueueType       string
	RepeatMode      string
	Stay            bool
	DefaultPlaylist string
	SkipRatio       float64
	Volume          int
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Resolver.Sources {
			if c.Resolver.Sources[i].Type == "lastfm" {
				if c.Resolver.Sources[i].Settings == nil {
					c.Resolver.Sources[i].Settings = make(map[string]any)
				}
				c.Resolver.Sources[i].Settings["api_key"] = v
				break
			}
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Snapshot.Password = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for key := range c.Guilds {
		if _, err := snowflake.Parse(key); err != nil {
			return errors.Wrapf(err, "invalid guild id %q", key)
		}
	}

	if c.HasSource("spotify") && (c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "") {
		return errors.New("spotify source requires spotify.client_id and spotify.client_secret")
	}

	return nil
}

// HasSource reports whether a resolver source of the given type is configured.
func (c *Config) HasSource(sourceType string) bool {
	for _, s := range c.Resolver.Sources {
		if s.Type == sourceType {
			return true
		}
	}
	return false
}

// GuildSettings returns the effective settings of a guild.
func (c *Config) GuildSettings(id snowflake.ID) GuildSettings {
	s := GuildSettings{
		QueueType:       c.Playback.QueueType,
		RepeatMode:      c.Playback.RepeatMode,
		Stay:            c.Playback.Stay,
		DefaultPlaylist: c.Playback.DefaultPlaylist,
		SkipRatio:       c.Playback.SkipRatio,
		Volume:          c.Playback.Volume,
	}

	g, ok := c.Guilds[strconv.FormatUint(uint64(id), 10)]
	if !ok {
		return s
	}
	if g.QueueType != nil {
		s.QueueType = *g.QueueType
	}
	if g.RepeatMode != nil {
		s.RepeatMode = *g.RepeatMode
	}
	if g.Stay != nil {
		s.Stay = *g.Stay
	}
	if g.DefaultPlaylist != nil {
		s.DefaultPlaylist = *g.DefaultPlaylist
	}
	if g.SkipRatio != nil {
		s.SkipRatio = *g.SkipRatio
	}
	if g.Volume != nil {
		s.Volume = *g.Volume
	}
	return s
}

// StartDelay returns the engine start delay.
func (c *Config) StartDelay() time.Duration {
	return time.Duration(c.Playback.StartDelayMs) * time.Millisecond
}
