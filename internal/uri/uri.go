// Package uri implements the textual addressing scheme used across the
// pipeline. A URI names a subject as a purpose plus a slash-separated
// path, e.g. "entity:/assets/char/hero" or "entity:/groups/trailer".
package uri

import (
	"fmt"
	"strings"
)

// URI is a parsed address. The zero value is invalid; construct via Parse
// or Make. URIs are immutable value types and safe to use as map keys via
// String().
type URI struct {
	Purpose  string
	Segments []string
}

// Parse parses a raw URI string. The purpose and every path segment must
// be non-empty and drawn from [A-Za-z0-9_]. A bare "purpose:/" parses to a
// root URI with no segments.
func Parse(raw string) (URI, error) {
	purpose, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return URI{}, fmt.Errorf("invalid uri %q: missing ':'", raw)
	}
	if !validName(purpose) {
		return URI{}, fmt.Errorf("invalid uri %q: bad purpose %q", raw, purpose)
	}
	if !strings.HasPrefix(rest, "/") {
		return URI{}, fmt.Errorf("invalid uri %q: path must start with '/'", raw)
	}
	if rest == "/" {
		return URI{Purpose: purpose}, nil
	}
	segments := strings.Split(rest[1:], "/")
	for _, seg := range segments {
		if !validName(seg) {
			return URI{}, fmt.Errorf("invalid uri %q: bad segment %q", raw, seg)
		}
	}
	return URI{Purpose: purpose, Segments: segments}, nil
}

// MustParse is Parse that panics on error. Intended for fixtures and
// compile-time-known addresses.
func MustParse(raw string) URI {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Make builds a URI from a purpose and segments, validating each part.
func Make(purpose string, segments ...string) (URI, error) {
	if !validName(purpose) {
		return URI{}, fmt.Errorf("invalid purpose %q", purpose)
	}
	for _, seg := range segments {
		if !validName(seg) {
			return URI{}, fmt.Errorf("invalid segment %q", seg)
		}
	}
	return URI{Purpose: purpose, Segments: append([]string(nil), segments...)}, nil
}

// String renders the canonical textual form. Root URIs render as
// "purpose:/".
func (u URI) String() string {
	return u.Purpose + ":/" + strings.Join(u.Segments, "/")
}

// IsRoot reports whether the URI has no path segments.
func (u URI) IsRoot() bool {
	return len(u.Segments) == 0
}

// Len returns the number of path segments.
func (u URI) Len() int {
	return len(u.Segments)
}

// First returns the first segment, or "" for a root URI.
func (u URI) First() string {
	if len(u.Segments) == 0 {
		return ""
	}
	return u.Segments[0]
}

// Last returns the final segment, or "" for a root URI.
func (u URI) Last() string {
	if len(u.Segments) == 0 {
		return ""
	}
	return u.Segments[len(u.Segments)-1]
}

// Join returns a new URI with the given segments appended. The receiver is
// not modified.
func (u URI) Join(segments ...string) (URI, error) {
	for _, seg := range segments {
		if !validName(seg) {
			return URI{}, fmt.Errorf("invalid segment %q", seg)
		}
	}
	joined := make([]string, 0, len(u.Segments)+len(segments))
	joined = append(joined, u.Segments...)
	joined = append(joined, segments...)
	return URI{Purpose: u.Purpose, Segments: joined}, nil
}

// Equal reports whether two URIs address the same subject.
func (u URI) Equal(other URI) bool {
	if u.Purpose != other.Purpose || len(u.Segments) != len(other.Segments) {
		return false
	}
	for i, seg := range u.Segments {
		if other.Segments[i] != seg {
			return false
		}
	}
	return true
}

// Contains reports whether the receiver is a strict ancestor of other:
// same purpose, strictly fewer segments, and a shared prefix. A URI never
// contains itself.
func (u URI) Contains(other URI) bool {
	if u.Purpose != other.Purpose {
		return false
	}
	if len(u.Segments) >= len(other.Segments) {
		return false
	}
	for i, seg := range u.Segments {
		if other.Segments[i] != seg {
			return false
		}
	}
	return true
}

// Ancestors returns every strict ancestor of the URI from the root down,
// ending with the URI itself. Used for hierarchical property merges.
func (u URI) Ancestors() []URI {
	chain := make([]URI, 0, len(u.Segments)+1)
	for i := 0; i <= len(u.Segments); i++ {
		chain = append(chain, URI{Purpose: u.Purpose, Segments: u.Segments[:i]})
	}
	return chain
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
