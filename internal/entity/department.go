package entity

import "fmt"

// Scope names the per-kind department ordering a department belongs to.
// Groups have no scope of their own: they borrow the shots ordering.
type Scope string

const (
	ScopeAssets Scope = "assets"
	ScopeShots  Scope = "shots"
	ScopeKits   Scope = "kits"
)

// Scopes lists all department scopes in canonical order.
var Scopes = []Scope{ScopeAssets, ScopeShots, ScopeKits}

// ScopeForKind maps an entity kind to the department scope that orders its
// pipeline.
func ScopeForKind(k Kind) Scope {
	switch k {
	case KindAsset:
		return ScopeAssets
	case KindShot, KindGroup:
		return ScopeShots
	case KindKit:
		return ScopeKits
	default:
		return ""
	}
}

// ParseScope validates a scope name.
func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeAssets, ScopeShots, ScopeKits:
		return Scope(raw), nil
	default:
		return "", fmt.Errorf("unknown department scope %q", raw)
	}
}

// Department is a named pipeline stage. Its position in the per-scope
// ordering is given by the Model that owns it, not stored on the value.
type Department struct {
	Name        string
	Scope       Scope
	Independent bool
	Publishable bool
	Renderable  bool
	Enabled     bool
}

// Model is the immutable department ordering for every scope, built once
// from compiled project configuration and shared read-only across a
// submission.
type Model struct {
	ordered map[Scope][]Department
	index   map[Scope]map[string]int
}

// NewModel validates the per-scope orderings: department names must be
// unique within a scope and each department must carry its scope.
func NewModel(ordered map[Scope][]Department) (*Model, error) {
	m := &Model{
		ordered: make(map[Scope][]Department, len(ordered)),
		index:   make(map[Scope]map[string]int, len(ordered)),
	}
	for scope, departments := range ordered {
		byName := make(map[string]int, len(departments))
		for i, d := range departments {
			if d.Scope != scope {
				return nil, fmt.Errorf("department %q carries scope %q, listed under %q", d.Name, d.Scope, scope)
			}
			if _, dup := byName[d.Name]; dup {
				return nil, fmt.Errorf("duplicate department %q in scope %q", d.Name, scope)
			}
			byName[d.Name] = i
		}
		m.ordered[scope] = append([]Department(nil), departments...)
		m.index[scope] = byName
	}
	return m, nil
}

// ListDepartments returns the fixed pipeline ordering for a scope.
// Disabled departments are omitted unless includeDisabled is set.
func (m *Model) ListDepartments(scope Scope, includeDisabled bool) []Department {
	all := m.ordered[scope]
	if includeDisabled {
		return append([]Department(nil), all...)
	}
	out := make([]Department, 0, len(all))
	for _, d := range all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Lookup finds a department by name within a scope. The boolean is the
// explicit not-found signal; callers must not treat a miss as a default.
func (m *Model) Lookup(scope Scope, name string) (Department, bool) {
	i, ok := m.index[scope][name]
	if !ok {
		return Department{}, false
	}
	return m.ordered[scope][i], true
}

// DownstreamOf returns the strict suffix of the scope's ordering after the
// named department, disabled stages included. An unknown or final
// department yields an empty slice, which callers read as "nothing
// downstream", never as an error.
func (m *Model) DownstreamOf(scope Scope, name string) []Department {
	i, ok := m.index[scope][name]
	if !ok {
		return nil
	}
	rest := m.ordered[scope][i+1:]
	return append([]Department(nil), rest...)
}

// Position returns the pipeline index of a department within its scope.
func (m *Model) Position(scope Scope, name string) (int, bool) {
	i, ok := m.index[scope][name]
	return i, ok
}
