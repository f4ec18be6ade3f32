// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/osa030/djbox/internal/api/http"
	"github.com/osa030/djbox/internal/app/filter"
	"github.com/osa030/djbox/internal/app/notification"
	"github.com/osa030/djbox/internal/app/playback"
	"github.com/osa030/djbox/internal/app/resolver"
	"github.com/osa030/djbox/internal/app/session"
	"github.com/osa030/djbox/internal/infra/config"
	"github.com/osa030/djbox/internal/infra/engine"
	"github.com/osa030/djbox/internal/infra/logger"
	"github.com/osa030/djbox/internal/infra/metrics"
	"github.com/osa030/djbox/internal/infra/playlist"
	"github.com/osa030/djbox/internal/infra/snapshot"
	"github.com/osa030/djbox/internal/infra/spotify"
)

const sessionGaugeInterval = 5 * time.Second

var (
	app        = kingpin.New("djbox-server", "djbox playback server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: config log.output)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	// Command-line flags win over the config file
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog.Info().Msgf("Loaded config from %s", *configPath)

	err = run(cfg)
	_ = closeLog()
	if err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filters, err := filter.NewChainFromConfig(cfg.Filters)
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	var spotifyClient resolver.SpotifyClient
	if cfg.HasSource("spotify") {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		spotifyClient = c
	}

	res, err := resolver.NewFromConfig(cfg, spotifyClient)
	if err != nil {
		return errors.Wrap(err, "failed to create resolver")
	}

	loader := playlist.NewLoader(cfg.Playlists.Dir)
	if names, err := loader.Names(); err != nil {
		zlog.Warn().Msgf("Playlist directory is not readable: dir=%s error=%v", cfg.Playlists.Dir, err)
	} else {
		zlog.Info().Msgf("Playlists available: dir=%s count=%d", cfg.Playlists.Dir, len(names))
	}

	var store *snapshot.Store
	if cfg.Snapshot.Enabled {
		store, err = snapshot.New(ctx, snapshot.Config{
			Addr:      cfg.Snapshot.Addr,
			Password:  cfg.Snapshot.Password,
			DB:        cfg.Snapshot.DB,
			TTL:       cfg.Snapshot.TTL,
			KeyPrefix: cfg.Snapshot.KeyPrefix,
		})
		if err != nil {
			return errors.Wrap(err, "failed to connect snapshot store")
		}
		defer func() {
			if err := store.Close(); err != nil {
				zlog.Warn().Msgf("Failed to close snapshot store: %v", err)
			}
		}()
	}

	m := metrics.New()
	hub := notification.NewHub()
	idle := session.NewIdleManager(func(snowflake.ID) { m.OnIdle() })

	deps := session.Deps{
		NewEngine: func(guildID snowflake.ID, settings config.GuildSettings, events session.Events) playback.Engine {
			return engine.NewPlayer(engine.Config{
				GuildID:    guildID,
				StartDelay: cfg.StartDelay(),
				Volume:     settings.Volume,
			}, events)
		},
		Observer:   playback.Observers{m, hub},
		Connection: idle,
		Loader:     loader,
		Resolver:   res,
	}
	if store != nil {
		deps.Restorer = store
	}
	registry := session.NewRegistry(cfg, deps)
	idle.Attach(registry)

	api := apihttp.NewServer(apihttp.Deps{
		Registry:  registry,
		Resolver:  res,
		Filters:   filters,
		Metrics:   m,
		Playlists: loader,
		Events:    hub,
	})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(api.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionGaugeInterval)
		defer ticker.Stop()
		for {
			m.SetActiveSessions(registry.Len())
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		zlog.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Event streams only end once the hub closes
		hub.Close()

		// Stop taking requests before the sessions go away
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Msgf("Failed to shutdown server: %v", err)
		}

		if store != nil {
			n := registry.SaveAll(shutdownCtx, store)
			zlog.Info().Msgf("Saved queue snapshots: sessions=%d", n)
		}
		registry.Close()
		idle.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	zlog.Info().Msg("Server stopped")
	return nil
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range slices.Sorted(maps.Keys(registered)) {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}
