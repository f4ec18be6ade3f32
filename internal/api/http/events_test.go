package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/djbox/internal/app/notification"
)

// readEvent reads the next server-sent event, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) (string, notification.Event) {
	t.Helper()
	var name string
	var ev notification.Event
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" {
				return name, ev
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		}
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/guilds/1/events", nil)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	status, _ := f.enqueue("1", "one", 1)
	require.Equal(t, http.StatusCreated, status)

	name, ev := readEvent(t, r)
	assert.Equal(t, "track_started", name)
	assert.Equal(t, notification.EventTrackStarted, ev.Type)
	require.NotNil(t, ev.Track)
	assert.Equal(t, "one", ev.Track.Title)

	status, _ = f.do(http.MethodPost, "/guilds/1/stop", nil)
	require.Equal(t, http.StatusNoContent, status)

	name, ev = readEvent(t, r)
	assert.Equal(t, "idle", name)
	assert.Nil(t, ev.Track)
}

func TestEventStream_InvalidGuild(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(http.MethodGet, "/guilds/abc/events", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "invalid guild id")
}
