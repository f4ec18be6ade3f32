package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/app/filter"
	"github.com/osa030/djbox/internal/app/playback"
	"github.com/osa030/djbox/internal/app/queue"
	"github.com/osa030/djbox/internal/domain/track"
)

// errRejected aborts an enqueue whose track the filter chain turned down.
var errRejected = errors.New("rejected by filter")

type nowPlayingResponse struct {
	State       string     `json:"state"`
	Track       *trackView `json:"track"`
	PositionMs  int64      `json:"position_ms"`
	Volume      int        `json:"volume"`
	Votes       int        `json:"votes"`
	RepeatMode  string     `json:"repeat_mode"`
	QueueType   string     `json:"queue_type"`
	QueueLength int        `json:"queue_length"`
	Pending     int        `json:"pending"`
}

func (s *Server) nowPlaying(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	st, err := sess.Controller.NowPlaying(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nowPlayingResponse{
		State:       st.State.String(),
		Track:       viewHandle(st.Track),
		PositionMs:  st.Position.Milliseconds(),
		Volume:      st.Volume,
		Votes:       st.Votes,
		RepeatMode:  st.RepeatMode.String(),
		QueueType:   st.QueueType.String(),
		QueueLength: st.QueueLength,
		Pending:     st.Pending,
	})
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	items, err := sess.Controller.Queue(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	views := make([]*trackView, 0, len(items))
	for _, it := range items {
		views = append(views, viewQueued(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": views})
}

type enqueueRequest struct {
	Query    string       `json:"query"`
	UserID   snowflake.ID `json:"user_id"`
	UserName string       `json:"user_name"`
	Front    bool         `json:"front"`
}

type addedTrack struct {
	Track    *trackView `json:"track"`
	Position int        `json:"position"` // -1 when playing now
}

type rejectedTrack struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

type enqueueResponse struct {
	Added    []addedTrack    `json:"added"`
	Rejected []rejectedTrack `json:"rejected,omitempty"`
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	id, err := guildID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req enqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Query == "" || req.UserID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("query and user_id are required"))
		return
	}
	ctx := r.Context()

	infos, err := s.resolver.Resolve(ctx, req.Query)
	if err != nil {
		s.record("failed")
		writeFailure(w, err)
		return
	}
	// Play-next takes a single track, as ordering a whole list at the head is ambiguous
	if req.Front && len(infos) > 1 {
		writeError(w, http.StatusBadRequest, errors.Newf("front requires a single track, query resolved to %d", len(infos)))
		return
	}

	sess, err := s.registry.GetOrCreate(ctx, id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	requester := track.Requester{ID: req.UserID, Name: req.UserName}

	resp := enqueueResponse{Added: []addedTrack{}}
	for _, info := range infos {
		var result filter.Result
		admit := func(current *track.Handle, queued []track.QueuedTrack) error {
			result = s.filters.Execute(ctx,
				filter.Request{GuildID: id, Requester: requester, Track: info},
				filter.State{Current: current, Queue: queued})
			if !result.Accepted {
				return errRejected
			}
			return nil
		}

		item := track.NewQueuedTrack(track.NewHandle(info, requester))
		pos, err := sess.Controller.EnqueueIf(ctx, item, req.Front, admit)
		if errors.Is(err, errRejected) {
			s.record("rejected")
			resp.Rejected = append(resp.Rejected, rejectedTrack{Title: info.DisplayTitle(), Code: result.Code})
			continue
		}
		if err != nil {
			writeFailure(w, err)
			return
		}
		if pos == playback.PlayingNow {
			s.record("playing")
		} else {
			s.record("queued")
		}
		resp.Added = append(resp.Added, addedTrack{Track: viewQueued(item), Position: pos})
	}

	zlog.Info().Msgf("api: enqueue: guild=%s user=%s query=%q added=%d rejected=%d",
		id, req.UserID, req.Query, len(resp.Added), len(resp.Rejected))

	if len(resp.Added) == 0 {
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) removeAt(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	pos, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("position must be an integer"))
		return
	}
	removed, err := sess.Controller.RemoveAt(r.Context(), pos)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": viewQueued(removed)})
}

type moveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	moved, err := sess.Controller.Move(r.Context(), req.From, req.To)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"moved": viewQueued(moved)})
}

type userRequest struct {
	UserID snowflake.ID `json:"user_id"`
}

func (s *Server) shuffle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	var req userRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := sess.Controller.Shuffle(r.Context(), req.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shuffled": n})
}

type skipRequest struct {
	UserID    snowflake.ID `json:"user_id"`
	Listeners int          `json:"listeners"`
	TrackID   string       `json:"track_id,omitempty"` // Vote only if this track is still playing
}

type skipResponse struct {
	Votes    int        `json:"votes"`
	Required int        `json:"required"`
	Skipped  bool       `json:"skipped"`
	Track    *trackView `json:"track"`
}

// voteSkip records a vote. The requester of the current track skips it
// outright; anyone else skips once enough listeners agree.
func (s *Server) voteSkip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	var req skipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		writeError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}
	var trackID uuid.UUID
	if req.TrackID != "" {
		var err error
		if trackID, err = uuid.Parse(req.TrackID); err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid track_id"))
			return
		}
	}
	ctx := r.Context()
	required := sess.RequiredVotes(req.Listeners)

	vote, err := sess.Controller.VoteSkip(ctx, req.UserID, required, trackID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := skipResponse{Votes: vote.Votes, Required: required, Skipped: vote.Skipped, Track: viewHandle(vote.Track)}
	if vote.Skipped {
		zlog.Info().Msgf("api: skipped: guild=%s track=%q votes=%d/%d", sess.GuildID, vote.Track.Info().Title, vote.Votes, required)
	}
	writeJSON(w, http.StatusOK, resp)
}

type skipToRequest struct {
	Position int `json:"position"` // 1-based
}

func (s *Server) skipTo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	var req skipToRequest
	if !decodeBody(w, r, &req) {
		return
	}
	next, err := sess.Controller.SkipTo(r.Context(), req.Position)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"next": viewHandle(next)})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.Pause(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.Resume(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.StopAndClear(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type repeatRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) setRepeat(w http.ResponseWriter, r *http.Request) {
	var req repeatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Mode) == "" {
		writeError(w, http.StatusBadRequest, errors.New("mode is required"))
		return
	}
	mode, err := playback.ParseRepeatMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.SetRepeatMode(r.Context(), mode); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repeat_mode": mode.String()})
}

type queueTypeRequest struct {
	Type string `json:"type"`
}

func (s *Server) setQueueType(w http.ResponseWriter, r *http.Request) {
	var req queueTypeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		writeError(w, http.StatusBadRequest, errors.New("type is required"))
		return
	}
	t, err := queue.ParseType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	if err := sess.Controller.SetQueueType(r.Context(), t); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"queue_type": t.String()})
}

type playlistRequest struct {
	Name string `json:"name"` // Empty disables the default playlist
}

func (s *Server) setPlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := s.existing(w, r)
	if !ok {
		return
	}
	sess.Fallback.SetPlaylist(req.Name)
	writeJSON(w, http.StatusOK, map[string]string{"playlist": sess.Fallback.Playlist()})
}

func (s *Server) listPlaylists(w http.ResponseWriter, _ *http.Request) {
	if s.playlists == nil {
		writeJSON(w, http.StatusOK, map[string]any{"playlists": []string{}})
		return
	}
	names, err := s.playlists.Names()
	if err != nil {
		writeFailure(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": names})
}

func (s *Server) removeSession(w http.ResponseWriter, r *http.Request) {
	id, err := guildID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Remove(id); err != nil {
		writeFailure(w, err)
		return
	}
	zlog.Info().Msgf("api: session removed: guild=%s", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRequest(outcome)
	}
}
