// Package resolve maps artifact references to export version directories.
// Composed artifacts embed references that either pin an explicit version
// or stay symbolic; the resolution mode decides how much of that pinning
// to honor.
package resolve

import (
	"errors"
	"fmt"
	"sync"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/versions"
)

// ResolutionMode selects the resolution policy. It is threaded through
// every call explicitly; two requests in one process can resolve under
// different modes without interfering.
type ResolutionMode int

const (
	// Pinned honors explicit versions and resolves symbolic references
	// to the newest version.
	Pinned ResolutionMode = iota
	// Latest ignores pins entirely: every reference resolves to the
	// newest version, so a changed leaf is observed by every ancestor
	// that transitively includes it without republishing each one.
	Latest
)

// String renders the mode for logs and errors.
func (m ResolutionMode) String() string {
	switch m {
	case Pinned:
		return "pinned"
	case Latest:
		return "latest"
	default:
		return fmt.Sprintf("resolution-mode(%d)", int(m))
	}
}

// NotFoundError reports that no export version satisfies a reference.
type NotFoundError struct {
	Key     versions.Key
	Version versions.Version // zero when the reference was symbolic
}

func (e *NotFoundError) Error() string {
	if e.Version.IsZero() {
		return fmt.Sprintf("no versions of %s", e.Key)
	}
	return fmt.Sprintf("version %s of %s does not exist", e.Version, e.Key)
}

// IsNotFound reports whether err means the reference had nothing to
// resolve to, as opposed to the store being unreadable.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Resolver resolves references against one version store.
//
// Pinned resolutions that succeed are cached for the resolver's lifetime:
// a version directory never changes once written. Symbolic and Latest
// resolutions re-scan the store on every call so that versions created
// after this process started are observed.
type Resolver struct {
	store *versions.Store

	mu     sync.Mutex
	pinned map[string]string
}

// NewResolver creates a resolver over a version store.
func NewResolver(store *versions.Store) *Resolver {
	return &Resolver{store: store, pinned: make(map[string]string)}
}

// Resolve returns the export version directory that satisfies a
// reference. An empty variant means the default variant; a zero explicit
// version means the reference is symbolic. Under Latest the explicit
// version is ignored. A missing version is a NotFoundError.
func (r *Resolver) Resolve(e entity.Entity, department, variant string, explicit versions.Version, mode ResolutionMode) (string, error) {
	if mode != Pinned && mode != Latest {
		return "", fmt.Errorf("unknown resolution mode %d", int(mode))
	}
	if variant == "" {
		variant = entity.DefaultVariant
	}
	key := versions.Key{Entity: e, Variant: variant, Department: department}

	if mode == Latest || explicit.IsZero() {
		return r.resolveNewest(key)
	}
	return r.resolvePinned(key, explicit)
}

// ResolveInput resolves one embedded input reference from a context
// record under the given mode.
func (r *Resolver) ResolveInput(ref versions.InputRef, variant string, mode ResolutionMode) (string, error) {
	e, err := entity.ParseString(ref.Entity)
	if err != nil {
		return "", fmt.Errorf("resolving reference: %w", err)
	}
	var explicit versions.Version
	if ref.Version != "" {
		v, ok := versions.ParseVersion(ref.Version)
		if !ok {
			return "", fmt.Errorf("resolving reference to %s: malformed version %q", ref.Entity, ref.Version)
		}
		explicit = v
	}
	return r.Resolve(e, ref.Department, variant, explicit, mode)
}

func (r *Resolver) resolveNewest(key versions.Key) (string, error) {
	latest, ok, err := r.store.LatestVersion(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{Key: key}
	}
	return r.store.VersionDir(key, latest), nil
}

func (r *Resolver) resolvePinned(key versions.Key, v versions.Version) (string, error) {
	cacheKey := key.String() + "#" + v.String()
	r.mu.Lock()
	dir, hit := r.pinned[cacheKey]
	r.mu.Unlock()
	if hit {
		return dir, nil
	}

	exists, err := r.store.Exists(key, v)
	if err != nil {
		return "", err
	}
	if !exists {
		// Not cached: the version may be mid-publish and appear later.
		return "", &NotFoundError{Key: key, Version: v}
	}
	dir = r.store.VersionDir(key, v)

	r.mu.Lock()
	r.pinned[cacheKey] = dir
	r.mu.Unlock()
	return dir, nil
}
