// Package entity defines the pipeline's subjects (assets, shots, kits and
// shot groups) and the ordered department model each kind passes through.
package entity

import (
	"fmt"

	"github.com/framewell/callsheet/internal/uri"
)

// DefaultVariant is the implicit variant every entity carries. Custom
// variants layer on top of it and come from stored entity properties.
const DefaultVariant = "default"

// Kind discriminates the closed set of entity kinds.
type Kind uint8

const (
	KindAsset Kind = iota
	KindShot
	KindKit
	KindGroup
)

// String returns the lowercase kind name used in URIs and job names.
func (k Kind) String() string {
	switch k {
	case KindAsset:
		return "asset"
	case KindShot:
		return "shot"
	case KindKit:
		return "kit"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Entity is a uniquely addressable pipeline subject. The set of
// implementations is closed: Asset, Shot, Kit and Group.
type Entity interface {
	// Kind identifies the concrete variant.
	Kind() Kind
	// Path returns the slash-joined identifying segments, without the
	// kind prefix ("char/hero", "010/0020", "trailer").
	Path() string
	// URI returns the canonical entity address.
	URI() uri.URI

	sealed()
}

// Asset is a reusable subject (character, prop, environment) identified by
// category and name.
type Asset struct {
	Category string
	Name     string
}

func (a Asset) Kind() Kind   { return KindAsset }
func (a Asset) Path() string { return a.Category + "/" + a.Name }
func (a Asset) URI() uri.URI {
	return uri.URI{Purpose: "entity", Segments: []string{"assets", a.Category, a.Name}}
}
func (Asset) sealed() {}

// Shot is a single shot within a sequence.
type Shot struct {
	Sequence string
	Name     string
}

func (s Shot) Kind() Kind   { return KindShot }
func (s Shot) Path() string { return s.Sequence + "/" + s.Name }
func (s Shot) URI() uri.URI {
	return uri.URI{Purpose: "entity", Segments: []string{"shots", s.Sequence, s.Name}}
}
func (Shot) sealed() {}

// Kit is a shared layer of set pieces composed into shots, identified like
// an asset by category and name.
type Kit struct {
	Category string
	Name     string
}

func (k Kit) Kind() Kind   { return KindKit }
func (k Kit) Path() string { return k.Category + "/" + k.Name }
func (k Kit) URI() uri.URI {
	return uri.URI{Purpose: "entity", Segments: []string{"kits", k.Category, k.Name}}
}
func (Kit) sealed() {}

// Group is an authored, ordered collection of shots. Members are attached
// from project configuration; a Group parsed from a bare URI carries none.
type Group struct {
	Name    string
	Members []Shot
}

func (g Group) Kind() Kind   { return KindGroup }
func (g Group) Path() string { return g.Name }
func (g Group) URI() uri.URI {
	return uri.URI{Purpose: "entity", Segments: []string{"groups", g.Name}}
}
func (Group) sealed() {}

// Parse constructs an Entity from an "entity:" URI. Group URIs yield a
// Group with no members; callers attach members from configuration.
func Parse(u uri.URI) (Entity, error) {
	if u.Purpose != "entity" {
		return nil, fmt.Errorf("not an entity uri: %s", u)
	}
	segs := u.Segments
	switch u.First() {
	case "assets":
		if len(segs) != 3 {
			return nil, fmt.Errorf("asset uri %s: want entity:/assets/<category>/<name>", u)
		}
		return Asset{Category: segs[1], Name: segs[2]}, nil
	case "shots":
		if len(segs) != 3 {
			return nil, fmt.Errorf("shot uri %s: want entity:/shots/<sequence>/<shot>", u)
		}
		return Shot{Sequence: segs[1], Name: segs[2]}, nil
	case "kits":
		if len(segs) != 3 {
			return nil, fmt.Errorf("kit uri %s: want entity:/kits/<category>/<name>", u)
		}
		return Kit{Category: segs[1], Name: segs[2]}, nil
	case "groups":
		if len(segs) != 2 {
			return nil, fmt.Errorf("group uri %s: want entity:/groups/<name>", u)
		}
		return Group{Name: segs[1]}, nil
	default:
		return nil, fmt.Errorf("unknown entity kind in %s", u)
	}
}

// ParseString is Parse over a raw URI string.
func ParseString(raw string) (Entity, error) {
	u, err := uri.Parse(raw)
	if err != nil {
		return nil, err
	}
	return Parse(u)
}

// Key returns the stable map/sort key for an entity.
func Key(e Entity) string {
	return e.URI().String()
}
