// Package http provides the HTTP API for controlling guild playback.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/app/filter"
	"github.com/osa030/djbox/internal/app/notification"
	"github.com/osa030/djbox/internal/app/playback"
	"github.com/osa030/djbox/internal/app/queue"
	"github.com/osa030/djbox/internal/app/resolver"
	"github.com/osa030/djbox/internal/app/session"
	"github.com/osa030/djbox/internal/domain/track"
)

// Metrics records API level metrics.
type Metrics interface {
	RecordRequest(outcome string)
	Handler() http.Handler
}

// PlaylistLister lists the available named playlists.
type PlaylistLister interface {
	Names() ([]string, error)
}

// EventSource streams a guild's playback events.
type EventSource interface {
	Subscribe(guildID snowflake.ID) (string, <-chan notification.Event)
	Unsubscribe(subscriptionID string)
}

// Deps holds the services behind the API.
type Deps struct {
	Registry  *session.Registry
	Resolver  resolver.Resolver
	Filters   *filter.Chain  // Optional
	Metrics   Metrics        // Optional
	Playlists PlaylistLister // Optional
	Events    EventSource    // Optional
}

// Server serves the playback API.
type Server struct {
	registry  *session.Registry
	resolver  resolver.Resolver
	filters   *filter.Chain
	metrics   Metrics
	playlists PlaylistLister
	events    EventSource
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	filters := deps.Filters
	if filters == nil {
		filters = filter.NewChain()
	}
	return &Server{
		registry:  deps.Registry,
		resolver:  deps.Resolver,
		filters:   filters,
		metrics:   deps.Metrics,
		playlists: deps.Playlists,
		events:    deps.Events,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.registry.Len()})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/playlists", s.listPlaylists)

	r.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Get("/now-playing", s.nowPlaying)
		r.Get("/queue", s.listQueue)
		r.Get("/events", s.streamEvents)
		r.Post("/queue", s.enqueue)
		r.Delete("/queue/{position}", s.removeAt)
		r.Post("/queue/move", s.move)
		r.Post("/queue/shuffle", s.shuffle)
		r.Post("/skip", s.voteSkip)
		r.Post("/skip-to", s.skipTo)
		r.Post("/pause", s.pause)
		r.Post("/resume", s.resume)
		r.Post("/stop", s.stop)
		r.Put("/repeat", s.setRepeat)
		r.Put("/queue-type", s.setQueueType)
		r.Put("/playlist", s.setPlaylist)
		r.Delete("/", s.removeSession)
	})
	return r
}

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type trackView struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Author        string       `json:"author,omitempty"`
	DurationMs    int64        `json:"duration_ms"`
	URI           string       `json:"uri"`
	Source        string       `json:"source,omitempty"`
	RequesterID   snowflake.ID `json:"requester_id,omitempty"`
	RequesterName string       `json:"requester_name,omitempty"`
	AddedAt       *time.Time   `json:"added_at,omitempty"`
}

func viewHandle(h *track.Handle) *trackView {
	if h == nil {
		return nil
	}
	info := h.Info()
	r := h.Requester()
	return &trackView{
		ID:            h.ID().String(),
		Title:         info.DisplayTitle(),
		Author:        info.Author,
		DurationMs:    info.Duration.Milliseconds(),
		URI:           info.URI,
		Source:        info.Source,
		RequesterID:   r.ID,
		RequesterName: r.Name,
	}
}

func viewQueued(q track.QueuedTrack) *trackView {
	v := viewHandle(q.Handle)
	added := q.AddedAt
	v.AddedAt = &added
	return v
}

// guildID parses the guild path parameter.
func guildID(r *http.Request) (snowflake.ID, error) {
	id, err := snowflake.Parse(chi.URLParam(r, "guildID"))
	if err != nil || id == 0 {
		return 0, errors.Newf("invalid guild id %q", chi.URLParam(r, "guildID"))
	}
	return id, nil
}

// existing returns the guild's live session.
func (s *Server) existing(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := guildID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	sess, err := s.registry.Get(id)
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return sess, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Warn().Msgf("api: failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeFailure maps service errors to HTTP statuses.
func writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrTrackChanged),
		errors.Is(err, queue.ErrEmptyQueue):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, resolver.ErrResolutionFailure):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, playback.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		zlog.Error().Msgf("api: unexpected error: %v", err)
	}
	writeError(w, status, err)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("api: %s %s status=%d bytes=%d elapsed=%v id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
