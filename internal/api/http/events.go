package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const eventKeepAlive = 15 * time.Second

// streamEvents streams the guild's playback events as server-sent events.
// The guild does not need a session yet.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, errors.New("event stream is not enabled"))
		return
	}
	id, err := guildID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rc := http.NewResponseController(w)
	subID, events := s.events.Subscribe(id)
	defer s.events.Unsubscribe(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := rc.Flush(); err != nil {
		zlog.Warn().Msgf("api: event stream not flushable: guild=%s error=%v", id, err)
		return
	}
	zlog.Debug().Msgf("api: event stream opened: guild=%s subscription=%s", id, subID)

	keepAlive := time.NewTicker(eventKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			zlog.Debug().Msgf("api: event stream closed: guild=%s subscription=%s", id, subID)
			return
		case <-keepAlive.C:
			_, _ = fmt.Fprint(w, ": keep-alive\n\n")
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				zlog.Warn().Msgf("api: failed to encode event: guild=%s error=%v", id, err)
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.SequenceNo, ev.Type, data)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
