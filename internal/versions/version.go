// Package versions implements the filesystem-backed versioned-artifact
// store: monotonic version directories under an export tree, single-slot
// workfiles under a work tree, and the staleness comparison between them.
//
// The store is read-only from this process's perspective. New version
// directories are created by the farm's leaf jobs; allocation races are
// resolved there by exclusive creation, never here.
package versions

import (
	"fmt"
	"strconv"
)

// Version is a monotonically increasing artifact version code. Codes start
// at 1; the zero value means "no version".
type Version int

// ParseVersion parses a version directory or filename component of the
// form "v0001". The numeric part must be at least four digits. The boolean
// reports whether the name is a valid version name; malformed names are
// skipped by directory scans, not reported as errors.
func ParseVersion(name string) (Version, bool) {
	if len(name) < 5 || name[0] != 'v' {
		return 0, false
	}
	digits := name[1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	code, err := strconv.Atoi(digits)
	if err != nil || code < 1 {
		return 0, false
	}
	return Version(code), true
}

// String renders the canonical "v0001" form, widening past four digits.
func (v Version) String() string {
	return fmt.Sprintf("v%04d", int(v))
}

// Next returns the following version code.
func (v Version) Next() Version {
	return v + 1
}

// IsZero reports whether the version is unset.
func (v Version) IsZero() bool {
	return v == 0
}
