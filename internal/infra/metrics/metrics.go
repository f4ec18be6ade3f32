// Package metrics exposes playback metrics in Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/djbox/internal/domain/track"
)

const namespace = "djbox"

// Metrics collects playback metrics. It is a playback observer.
type Metrics struct {
	registry *prometheus.Registry

	TracksStarted  *prometheus.CounterVec
	IdleSignals    prometheus.Counter
	GuildsPlaying  prometheus.Gauge
	ActiveSessions prometheus.Gauge
	Requests       *prometheus.CounterVec

	mu      sync.Mutex
	playing map[snowflake.ID]bool
}

// New creates the metrics on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TracksStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracks_started_total",
				Help:      "Total number of tracks that started playing",
			},
			[]string{"source", "autoplay"},
		),
		IdleSignals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idle_signals_total",
				Help:      "Total number of times a guild ran out of content",
			},
		),
		GuildsPlaying: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "guilds_playing",
				Help:      "Number of guilds currently playing a track",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live guild sessions",
			},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of track requests by outcome",
			},
			[]string{"outcome"},
		),
		playing: make(map[snowflake.ID]bool),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TracksStarted,
		m.IdleSignals,
		m.GuildsPlaying,
		m.ActiveSessions,
		m.Requests,
	)
	return m
}

// OnTrackUpdate implements playback.Observer.
func (m *Metrics) OnTrackUpdate(guildID snowflake.ID, h *track.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h == nil {
		delete(m.playing, guildID)
	} else {
		m.playing[guildID] = true
		autoplay := "false"
		if h.Requester().IsAutoplay() {
			autoplay = "true"
		}
		m.TracksStarted.WithLabelValues(sourceLabel(h.Info().Source), autoplay).Inc()
	}
	m.GuildsPlaying.Set(float64(len(m.playing)))
}

// OnIdle records that a guild ran out of content.
func (m *Metrics) OnIdle() {
	m.IdleSignals.Inc()
}

// RecordRequest records the outcome of a track request ("queued", "playing", "failed").
func (m *Metrics) RecordRequest(outcome string) {
	m.Requests.WithLabelValues(outcome).Inc()
}

// SetActiveSessions sets the number of live sessions.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func sourceLabel(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
