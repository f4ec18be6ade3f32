// Package notification provides the hub broadcasting playback events to subscribers.
package notification

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/track"
)

// EventType identifies what happened.
type EventType string

const (
	EventTrackStarted EventType = "track_started"
	EventIdle         EventType = "idle"
)

const defaultBuffer = 16

// Track describes the track carried by an event.
type Track struct {
	Title         string `json:"title"`
	Author        string `json:"author,omitempty"`
	URI           string `json:"uri"`
	DurationMs    int64  `json:"duration_ms"`
	Source        string `json:"source,omitempty"`
	RequesterName string `json:"requester_name,omitempty"`
}

// Event is a playback change of one guild.
type Event struct {
	SequenceNo uint64       `json:"seq"`
	Type       EventType    `json:"type"`
	GuildID    snowflake.ID `json:"guild_id"`
	Track      *Track       `json:"track,omitempty"`
	Time       time.Time    `json:"time"`
}

type subscription struct {
	id      string
	guildID snowflake.ID
	ch      chan Event
}

// Hub manages subscriptions and broadcasts events per guild.
// A subscriber that does not keep up misses events rather than slowing the
// controller down.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	buffer        int
	closed        bool
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]*subscription),
		buffer:        defaultBuffer,
	}
}

// Subscribe registers a subscriber for a guild's events. The channel is
// closed on Unsubscribe or Close.
func (h *Hub) Subscribe(guildID snowflake.ID) (string, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscriptions[id] = &subscription{id: id, guildID: guildID, ch: ch}
	return id, ch
}

// Unsubscribe removes a subscription.
func (h *Hub) Unsubscribe(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscriptions[subscriptionID]; ok {
		delete(h.subscriptions, subscriptionID)
		close(sub.ch)
	}
}

// Broadcast stamps the event with the next sequence number and sends it to
// the guild's subscribers.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.sequenceNo++
	ev.SequenceNo = h.sequenceNo
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	for _, sub := range h.subscriptions {
		if sub.guildID != ev.GuildID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			zlog.Debug().Msgf("notification: subscriber lagging, event dropped: id=%s seq=%d", sub.id, ev.SequenceNo)
		}
	}
}

// OnTrackUpdate implements playback.Observer.
func (h *Hub) OnTrackUpdate(guildID snowflake.ID, handle *track.Handle) {
	if handle == nil {
		h.Broadcast(Event{Type: EventIdle, GuildID: guildID})
		return
	}
	info := handle.Info()
	h.Broadcast(Event{
		Type:    EventTrackStarted,
		GuildID: guildID,
		Track: &Track{
			Title:         info.DisplayTitle(),
			Author:        info.Author,
			URI:           info.URI,
			DurationMs:    info.Duration.Milliseconds(),
			Source:        info.Source,
			RequesterName: handle.Requester().Name,
		},
	})
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// Close removes all subscriptions and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subscriptions {
		close(sub.ch)
		delete(h.subscriptions, id)
	}
	h.closed = true
}
