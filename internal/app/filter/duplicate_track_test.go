package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/djbox/internal/domain/track"
)

func TestDuplicateTrackFilter_Check(t *testing.T) {
	tests := []struct {
		name      string
		existing  track.Info
		requested track.Info
		wantDup   bool
	}{
		{
			name:      "Same identifier",
			existing:  track.Info{Identifier: "abc", Title: "Song", Author: "Band"},
			requested: track.Info{Identifier: "abc", Title: "Song", Author: "Band"},
			wantDup:   true,
		},
		{
			name:      "Same URI",
			existing:  track.Info{URI: "https://example.com/a.mp3", Title: "a.mp3"},
			requested: track.Info{URI: "https://example.com/a.mp3", Title: "a.mp3"},
			wantDup:   true,
		},
		{
			name:      "Standard remaster pattern",
			existing:  track.Info{Identifier: "1", Title: "Bohemian Rhapsody", Author: "Queen"},
			requested: track.Info{Identifier: "2", Title: "Bohemian Rhapsody - 2011 Remaster", Author: "Queen"},
			wantDup:   true,
		},
		{
			name:      "Remastered in parentheses, featured artist",
			existing:  track.Info{Identifier: "1", Title: "Yesterday", Author: "The Beatles"},
			requested: track.Info{Identifier: "2", Title: "Yesterday (Remastered 2023)", Author: "the beatles, George Martin"},
			wantDup:   true,
		},
		{
			name:      "Cover song - different artist",
			existing:  track.Info{Identifier: "1", Title: "Hallelujah", Author: "Leonard Cohen"},
			requested: track.Info{Identifier: "2", Title: "Hallelujah", Author: "Jeff Buckley"},
			wantDup:   false,
		},
		{
			name:      "Different songs - similar names",
			existing:  track.Info{Identifier: "1", Title: "Let It Be", Author: "The Beatles"},
			requested: track.Info{Identifier: "2", Title: "Let It Go", Author: "The Beatles"},
			wantDup:   false,
		},
		{
			name:      "Live version",
			existing:  track.Info{Identifier: "1", Title: "Imagine", Author: "John Lennon"},
			requested: track.Info{Identifier: "2", Title: "Imagine - Live", Author: "John Lennon"},
			wantDup:   true,
		},
		{
			name:      "Remix version - should be allowed",
			existing:  track.Info{Identifier: "1", Title: "Come Together", Author: "The Beatles"},
			requested: track.Info{Identifier: "2", Title: "Come Together (2019 Mix)", Author: "The Beatles"},
			wantDup:   false,
		},
		{
			name:      "Unknown artists",
			existing:  track.Info{Identifier: "1", Title: "intro.mp3"},
			requested: track.Info{Identifier: "2", Title: "intro.mp3"},
			wantDup:   false,
		},
	}

	f := NewDuplicateTrackFilter()
	for _, tt := range tests {
		t.Run(tt.name+" (queued)", func(t *testing.T) {
			state := State{Queue: []track.QueuedTrack{queued(tt.existing, bob)}}
			result := f.Check(context.Background(), Request{Requester: alice, Track: tt.requested}, state)
			assert.Equal(t, !tt.wantDup, result.Accepted)
		})
		t.Run(tt.name+" (playing)", func(t *testing.T) {
			state := State{Current: track.NewHandle(tt.existing, bob)}
			result := f.Check(context.Background(), Request{Requester: alice, Track: tt.requested}, state)
			assert.Equal(t, !tt.wantDup, result.Accepted)
		})
	}
}

func TestDuplicateTrackFilter_EmptyState(t *testing.T) {
	result := NewDuplicateTrackFilter().Check(context.Background(), Request{Requester: alice, Track: track.Info{Identifier: "x"}}, State{})
	assert.True(t, result.Accepted)
}

func TestNormalizeTrackName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bohemian Rhapsody", "bohemian rhapsody"},
		{"Bohemian Rhapsody - 2011 Remaster", "bohemian rhapsody"},
		{"Yesterday (Remastered 2023)", "yesterday"},
		{"Hotel California [Remastered]", "hotel california"},
		{"Stairway to Heaven (Radio Edit)", "stairway to heaven"},
		{"Imagine - Live", "imagine"},
		{"Let It Be (Single Version)", "let it be"},
		{"Hey Jude - Remastered Version", "hey jude"},
		{"Come Together (2019 Mix)", "come together (2019 mix)"},
		{"   Extra   Spaces   ", "extra spaces"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeTrackName(tt.input))
		})
	}
}

func TestIsSameArtist(t *testing.T) {
	assert.True(t, isSameArtist("Queen", "queen"))
	assert.True(t, isSameArtist("Queen, David Bowie", "Queen"))
	assert.False(t, isSameArtist("Queen", "David Bowie"))
	assert.False(t, isSameArtist("", ""))
}
