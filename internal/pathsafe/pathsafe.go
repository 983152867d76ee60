// Package pathsafe validates path segments built from untrusted input.
//
// Attachment filenames come straight out of email headers and are
// attacker-influenced. Before such a name is joined into a destination
// path it must be checked against a small set of markers that could
// escape the output tree or confuse the storage backend.
package pathsafe

import (
	"fmt"
	"strings"
)

// forbidden lists the markers that must never appear in a path segment:
// parent-directory traversal, glob wildcards, Windows separators, shell
// redirection characters, quotes, and NUL.
var forbidden = []string{"..", "*", "\\", "<", ">", "'", "\"", "?", "\x00"}

// UnsafePathError reports the first forbidden marker found in a path.
type UnsafePathError struct {
	Path   string
	Marker string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("unsafe marker %q in path %q", e.Marker, e.Path)
}

// Validate checks a single path segment against the forbidden marker set.
// It returns an *UnsafePathError naming the offending marker, or nil if
// the segment is clean. Validate is a pure function.
func Validate(segment string) error {
	for _, marker := range forbidden {
		if strings.Contains(segment, marker) {
			return &UnsafePathError{Path: segment, Marker: marker}
		}
	}
	return nil
}
