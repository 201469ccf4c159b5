// Package filter provides pattern-based path exclusion for watching
// operations.
package filter

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pkg/errors"
)

// Filter is a callback type that can be used to exclude paths from watching
// operations. It accepts a path and returns true if that path should be
// ignored and excluded from watching and events.
type Filter func(string) bool

// New constructs a Filter from a set of doublestar patterns. A path is
// excluded if any pattern matches either the full path (with separators
// normalized to slashes) or its base name. An invalid pattern results in an
// error. If no patterns are provided, the resulting filter excludes nothing.
func New(patterns []string) (Filter, error) {
	// Validate patterns up-front so that matching can't fail later.
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid exclusion pattern: %s", pattern)
		}
	}

	// If there are no patterns, then use a filter that excludes nothing.
	if len(patterns) == 0 {
		return func(string) bool { return false }, nil
	}

	// Create the filter.
	return func(path string) bool {
		// Normalize the path to slash-separated form for matching.
		normalized := filepath.ToSlash(path)
		base := filepath.Base(path)

		// Check each pattern against the full path and the base name. Pattern
		// validity has already been established, so matching errors can't
		// occur here.
		for _, pattern := range patterns {
			if matched, _ := doublestar.Match(pattern, normalized); matched {
				return true
			}
			if matched, _ := doublestar.Match(pattern, base); matched {
				return true
			}
		}

		// The path isn't excluded.
		return false
	}, nil
}
