// Package engine provides a wall-clock simulated audio player.
//
// The player does not decode audio. It plays a track for its duration and
// reports the same lifecycle events a real voice player would, which makes the
// server usable without a voice gateway.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/djbox/internal/domain/track"
)

// ErrNotPlayable is returned by PlayTrack for tracks without a URI.
var ErrNotPlayable = errors.New("track is not playable")

// Listener receives the player's track lifecycle events.
type Listener interface {
	OnTrackStarted(h *track.Handle)
	OnTrackEnded(h *track.Handle, reason track.EndReason)
}

// Config represents player configuration.
type Config struct {
	GuildID snowflake.ID
	// StartDelay is the time between PlayTrack and the track actually starting.
	StartDelay time.Duration
	Volume     int
	// TickInterval is the resolution of the wall-clock timers.
	TickInterval time.Duration
}

// Player plays one track at a time on a wall-clock timer.
type Player struct {
	mu       sync.Mutex
	config   Config
	listener Listener

	current       *track.Handle
	startTime     time.Time
	pausedAt      *time.Time
	pausedElapsed time.Duration
	volume        int
	closed        bool

	startCancel func()
	timerCancel func()
}

// NewPlayer creates a new player reporting to listener.
func NewPlayer(config Config, listener Listener) *Player {
	if config.TickInterval <= 0 {
		config.TickInterval = 100 * time.Millisecond
	}
	if config.Volume <= 0 {
		config.Volume = 100
	}
	return &Player{
		config:   config,
		listener: listener,
		volume:   config.Volume,
	}
}

// PlayTrack replaces the current track with h.
func (p *Player) PlayTrack(h *track.Handle) error {
	if h == nil || h.Info().URI == "" {
		return errors.Wrap(ErrNotPlayable, "no uri")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("player is closed")
	}
	replaced := p.resetLocked()

	now := toWallTime(time.Now())
	p.current = h
	p.startTime = now.Add(p.config.StartDelay)
	p.pausedAt = nil
	p.pausedElapsed = 0

	zlog.Debug().Msgf("engine: play: guild=%s track=%q delay=%v", p.config.GuildID, h.Info().Title, p.config.StartDelay)

	startNow := p.config.StartDelay <= 0
	if !startNow {
		p.startCancel = p.startWallClockTimer(p.config.StartDelay, func() {
			p.mu.Lock()
			if p.current != h {
				p.mu.Unlock()
				return
			}
			p.startCancel = nil
			p.mu.Unlock()
			p.listener.OnTrackStarted(h)
		})
	}
	p.startTrackTimerLocked(h, p.config.StartDelay+h.Info().Duration)
	p.mu.Unlock()

	if replaced != nil {
		p.listener.OnTrackEnded(replaced, track.EndReplaced)
	}
	if startNow {
		p.listener.OnTrackStarted(h)
	}
	return nil
}

// StopTrack stops the current track, if any.
func (p *Player) StopTrack() {
	p.mu.Lock()
	stopped := p.resetLocked()
	p.mu.Unlock()

	if stopped != nil {
		p.listener.OnTrackEnded(stopped, track.EndStopped)
	}
}

// IsPaused reports whether playback is paused.
func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pausedAt != nil
}

// SetPaused pauses or resumes the current track. It is a no-op when nothing
// is playing.
func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || paused == (p.pausedAt != nil) {
		return
	}

	now := toWallTime(time.Now())
	if paused {
		// Still in the start delay: the remaining delay counts as paused time
		if now.Before(p.startTime) {
			p.pausedElapsed += p.startTime.Sub(now)
			p.startTime = now
		}
		p.pausedAt = &now
		p.cancelTrackTimerLocked()
		return
	}

	p.pausedElapsed += now.Sub(*p.pausedAt)
	p.pausedAt = nil
	p.startTrackTimerLocked(p.current, p.remainingLocked(now))
}

// Position returns the elapsed playback time of the current track.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return 0
	}
	return p.elapsedLocked(toWallTime(time.Now()))
}

// Volume returns the player volume.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sets the player volume, clamped to 0-200.
func (p *Player) SetVolume(volume int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = max(0, min(volume, 200))
}

// Close tears the player down. The current track ends with EndCleanup.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	current := p.resetLocked()
	p.mu.Unlock()

	if current != nil {
		p.listener.OnTrackEnded(current, track.EndCleanup)
	}
}

// resetLocked clears the current track and its timers and returns the track
// that was playing.
func (p *Player) resetLocked() *track.Handle {
	if p.startCancel != nil {
		p.startCancel()
		p.startCancel = nil
	}
	p.cancelTrackTimerLocked()
	prev := p.current
	p.current = nil
	p.pausedAt = nil
	p.pausedElapsed = 0
	return prev
}

// startTrackTimerLocked schedules the end of h after d. Tracks with an
// unknown duration play until stopped.
func (p *Player) startTrackTimerLocked(h *track.Handle, d time.Duration) {
	p.cancelTrackTimerLocked()
	if h.Info().Duration <= 0 {
		return
	}
	p.timerCancel = p.startWallClockTimer(d, func() {
		p.onTrackEnd(h)
	})
}

func (p *Player) cancelTrackTimerLocked() {
	if p.timerCancel != nil {
		p.timerCancel()
		p.timerCancel = nil
	}
}

func (p *Player) onTrackEnd(h *track.Handle) {
	p.mu.Lock()
	if p.current != h || p.pausedAt != nil {
		p.mu.Unlock()
		return
	}
	p.timerCancel = nil
	p.current = nil
	p.pausedElapsed = 0
	p.mu.Unlock()

	zlog.Debug().Msgf("engine: finished: guild=%s track=%q", p.config.GuildID, h.Info().Title)
	p.listener.OnTrackEnded(h, track.EndFinished)
}

// rawElapsedLocked is negative while the start delay is still running.
func (p *Player) rawElapsedLocked(now time.Time) time.Duration {
	elapsed := now.Sub(p.startTime) - p.pausedElapsed
	if p.pausedAt != nil {
		elapsed -= now.Sub(*p.pausedAt)
	}
	return elapsed
}

func (p *Player) elapsedLocked(now time.Time) time.Duration {
	elapsed := max(p.rawElapsedLocked(now), 0)
	if d := p.current.Info().Duration; d > 0 && elapsed > d {
		return d
	}
	return elapsed
}

func (p *Player) remainingLocked(now time.Time) time.Duration {
	return max(p.current.Info().Duration-p.rawElapsedLocked(now), 0)
}

// startWallClockTimer starts a timer that triggers callback after duration, using wall clock.
// Returns a cancel function.
func (p *Player) startWallClockTimer(duration time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())
	interval := p.config.TickInterval

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with monotonic clock stripped so differences
// follow the wall clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
