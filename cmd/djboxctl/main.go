// Package main provides the playback control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app      = kingpin.New("djboxctl", "djbox playback control client")
	server   = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("DJBOX_SERVER").String()
	guild    = app.Flag("guild", "Guild ID").Short('g').Envar("DJBOX_GUILD").Required().String()
	userID   = app.Flag("user", "User ID sending the request").Short('u').Envar("DJBOX_USER").Default("1").String()
	userName = app.Flag("name", "Display name of the user").Envar("DJBOX_USER_NAME").String()
	timeout  = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	// status command
	statusCmd = app.Command("status", "Show what is playing").Alias("np")

	// queue command
	queueCmd = app.Command("queue", "List the queue").Alias("q")

	// play command
	playCmd   = app.Command("play", "Queue a track or playlist")
	playQuery = playCmd.Arg("query", "Search text or URL").Required().String()
	playFront = playCmd.Flag("next", "Play the track next").Bool()

	// skip command
	skipCmd       = app.Command("skip", "Vote to skip the current track")
	skipListeners = skipCmd.Flag("listeners", "Number of listeners in the channel").Default("1").Int()

	// skip-to command
	skipToCmd      = app.Command("skip-to", "Skip to a queue position")
	skipToPosition = skipToCmd.Arg("position", "Queue position (1-based)").Required().Int()

	// remove command
	removeCmd      = app.Command("remove", "Remove a queued track")
	removePosition = removeCmd.Arg("position", "Queue position (0-based)").Required().Int()

	// pause command
	pauseCmd = app.Command("pause", "Pause playback")

	// resume command
	resumeCmd = app.Command("resume", "Resume playback")

	// stop command
	stopCmd = app.Command("stop", "Stop playback and clear the queue")

	// repeat command
	repeatCmd  = app.Command("repeat", "Set the repeat mode")
	repeatMode = repeatCmd.Arg("mode", "off, track or all").Required().Enum("off", "track", "all")

	// queue-type command
	queueTypeCmd = app.Command("queue-type", "Set the queue discipline")
	queueType    = queueTypeCmd.Arg("type", "fifo or fair").Required().Enum("fifo", "fair")

	// leave command
	leaveCmd = app.Command("leave", "Tear down the guild's session")

	// playlists command
	playlistsCmd = app.Command("playlists", "List the available default playlists")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := newClient(&http.Client{Timeout: *timeout}, *server, *guild)
	ctx := context.Background()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, c)
	case queueCmd.FullCommand():
		err = listQueue(ctx, c)
	case playCmd.FullCommand():
		err = play(ctx, c, *playQuery, *playFront)
	case skipCmd.FullCommand():
		err = skip(ctx, c, *skipListeners)
	case skipToCmd.FullCommand():
		err = done(c.SkipTo(ctx, *skipToPosition), "Skipped")
	case removeCmd.FullCommand():
		err = done(c.Remove(ctx, *removePosition), "Track removed")
	case pauseCmd.FullCommand():
		err = done(c.Pause(ctx), "Playback paused")
	case resumeCmd.FullCommand():
		err = done(c.Resume(ctx), "Playback resumed")
	case stopCmd.FullCommand():
		err = done(c.Stop(ctx), "Playback stopped")
	case repeatCmd.FullCommand():
		err = done(c.SetRepeat(ctx, *repeatMode), "Repeat mode set to "+*repeatMode)
	case queueTypeCmd.FullCommand():
		err = done(c.SetQueueType(ctx, *queueType), "Queue type set to "+*queueType)
	case leaveCmd.FullCommand():
		err = done(c.Leave(ctx), "Session removed")
	case playlistsCmd.FullCommand():
		err = listPlaylists(ctx, c)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func done(err error, msg string) error {
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func status(ctx context.Context, c *client) error {
	s, err := c.NowPlaying(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== NOW PLAYING ===")
	fmt.Printf("State: %s\n", s.State)
	fmt.Printf("Queue: %d tracks (%s)\n", s.QueueLength, s.QueueType)
	fmt.Printf("Repeat: %s\n", s.RepeatMode)
	fmt.Printf("Volume: %d\n", s.Volume)
	if s.Pending > 0 {
		fmt.Printf("Default playlist tracks pending: %d\n", s.Pending)
	}

	if s.Track != nil {
		fmt.Printf("\nCurrently Playing:\n")
		fmt.Printf("  Title: %s\n", s.Track.Title)
		if s.Track.Author != "" {
			fmt.Printf("  Author: %s\n", s.Track.Author)
		}
		fmt.Printf("  URL: %s\n", s.Track.URI)
		fmt.Printf("  Position: %s / %s\n", formatDuration(s.PositionMs), formatDuration(s.Track.DurationMs))
		if s.Track.RequesterName != "" {
			fmt.Printf("  Requested by: %s\n", s.Track.RequesterName)
		}
		fmt.Printf("  Skip votes: %d\n", s.Votes)
	} else {
		fmt.Println("\nNo track currently playing")
	}
	fmt.Println()
	return nil
}

func listQueue(ctx context.Context, c *client) error {
	tracks, err := c.Queue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Queue (%d):\n", len(tracks))
	for i, t := range tracks {
		fmt.Printf("  %d. %s [%s]", i+1, t.Title, formatDuration(t.DurationMs))
		if t.RequesterName != "" {
			fmt.Printf(" requested by %s", t.RequesterName)
		}
		fmt.Println()
	}
	return nil
}

func play(ctx context.Context, c *client, query string, front bool) error {
	res, err := c.Play(ctx, query, *userID, *userName, front)
	if err != nil {
		return err
	}
	for _, a := range res.Added {
		if a.Position < 0 {
			fmt.Printf("Now playing: %s\n", a.Track.Title)
		} else {
			fmt.Printf("Queued at position %d: %s\n", a.Position+1, a.Track.Title)
		}
	}
	for _, r := range res.Rejected {
		fmt.Printf("Rejected: %s (%s)\n", r.Title, r.Code)
	}
	return nil
}

func skip(ctx context.Context, c *client, listeners int) error {
	res, err := c.Skip(ctx, *userID, listeners)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Println("Track skipped")
		return nil
	}
	fmt.Printf("Skip vote registered (%d/%d)\n", res.Votes, res.Required)
	return nil
}

func listPlaylists(ctx context.Context, c *client) error {
	names, err := c.Playlists(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Playlists (%d):\n", len(names))
	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}
	return nil
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "--:--"
	}
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
