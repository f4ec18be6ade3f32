package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/djbox/internal/domain/track"
)

func TestMetrics_OnTrackUpdate(t *testing.T) {
	m := New()

	requested := track.NewHandle(track.Info{Title: "a", Source: "spotify"}, track.Requester{ID: 1})
	autoplay := track.NewHandle(track.Info{Title: "b"}, track.Requester{})

	m.OnTrackUpdate(1, requested)
	m.OnTrackUpdate(2, autoplay)
	m.OnTrackUpdate(1, requested)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TracksStarted.WithLabelValues("spotify", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TracksStarted.WithLabelValues("unknown", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GuildsPlaying))

	m.OnTrackUpdate(1, nil)
	m.OnTrackUpdate(1, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuildsPlaying))
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.OnIdle()
	m.OnIdle()
	m.RecordRequest("queued")
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IdleSignals))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("queued")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.OnIdle()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "djbox_idle_signals_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
