package extract

import "strings"

// DefaultExclusions returns the default set of filename markers for
// attachments that are not worth keeping: calendar invites, markup,
// stylesheet and script files, and the inline-image formats that
// HTML-rendered mail bodies surface as spurious attachments.
func DefaultExclusions() []string {
	return []string{
		".ics",
		".htm",
		".css",
		".js",
		".png",
		".gif",
		".jpg",
		".jpeg",
		".bmp",
	}
}

// ExclusionFilter decides whether a decoded attachment should be kept
// based on its filename.
type ExclusionFilter struct {
	markers []string
}

// NewExclusionFilter creates a filter for the given markers. A nil or
// empty marker list keeps everything.
func NewExclusionFilter(markers []string) *ExclusionFilter {
	return &ExclusionFilter{markers: markers}
}

// ShouldKeep reports whether filename is free of every exclusion marker.
// The match is substring containment, not suffix-only: email-derived
// filenames are attacker-influenced and not normalized, so a marker
// anywhere in the name excludes it.
func (f *ExclusionFilter) ShouldKeep(filename string) bool {
	for _, marker := range f.markers {
		if strings.Contains(filename, marker) {
			return false
		}
	}
	return true
}
