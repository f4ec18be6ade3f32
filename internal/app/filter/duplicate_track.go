package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/djbox/internal/domain/track"
)

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),             // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// DuplicateTrackFilter rejects a track that is already playing or queued.
// Detects:
// - The same source (identifier or URI)
// - Remasters (normalized title + same main artist)
// Covers (same title by another artist) are allowed.
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already playing or queued, including remasters. Covers are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns whether the filter applies to the requester.
func (f *DuplicateTrackFilter) AppliesTo(requester track.Requester) bool {
	return userOnly(requester)
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(_ context.Context, req Request, state State) Result {
	if state.Current != nil && isDuplicate(state.Current.Info(), req.Track) {
		return Reject("duplicate_track")
	}
	for _, queued := range state.Queue {
		if isDuplicate(queued.Handle.Info(), req.Track) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

func isDuplicate(existing, requested track.Info) bool {
	if existing.Identifier != "" && existing.Identifier == requested.Identifier {
		return true
	}
	if existing.URI != "" && existing.URI == requested.URI {
		return true
	}
	return isRemaster(existing, requested)
}

// isRemaster reports whether two tracks are versions of the same recording.
func isRemaster(a, b track.Info) bool {
	if normalizeTrackName(a.Title) != normalizeTrackName(b.Title) {
		return false
	}
	// Same normalized title by different artists is a cover
	return isSameArtist(a.Author, b.Author)
}

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = spaces.ReplaceAllString(strings.TrimSpace(normalized), " ")
	return strings.TrimRight(normalized, " -")
}

// isSameArtist compares the main (first listed) artists.
func isSameArtist(a, b string) bool {
	mainA := strings.TrimSpace(strings.Split(a, ",")[0])
	mainB := strings.TrimSpace(strings.Split(b, ",")[0])
	if mainA == "" || mainB == "" {
		return false
	}
	return strings.EqualFold(mainA, mainB)
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return &DuplicateTrackFilter{}
	})
}
