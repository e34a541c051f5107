// Package config loads and compiles the CUE project configuration into an
// immutable in-memory form: department orderings per scope, authored shot
// groups, and farm submission defaults.
package config

import (
	"fmt"
	"strconv"

	"github.com/framewell/callsheet/internal/entity"
)

// Project is the compiled configuration snapshot. It is immutable after
// Load and safe for concurrent readers.
type Project struct {
	Name        string
	Departments map[entity.Scope][]entity.Department
	Groups      []Group
	Farm        Farm

	model      *entity.Model
	groupIndex map[string]int
}

// Group is an authored, ordered collection of shots.
type Group struct {
	Name    string
	Members []entity.Shot
}

// Farm holds submission defaults and the vocabulary requests are validated
// against.
type Farm struct {
	Pools           []string
	Priorities      map[string]int
	DefaultPool     string
	DefaultPriority int
	ChunkSize       int
}

// Model returns the department ordering model compiled from the
// configuration.
func (p *Project) Model() *entity.Model {
	return p.model
}

// Group finds an authored group by name.
func (p *Project) Group(name string) (Group, bool) {
	i, ok := p.groupIndex[name]
	if !ok {
		return Group{}, false
	}
	return p.Groups[i], true
}

// AttachMembers returns the group entity with its configured member shots
// attached. Unknown groups are a configuration error.
func (p *Project) AttachMembers(g entity.Group) (entity.Group, error) {
	spec, ok := p.Group(g.Name)
	if !ok {
		return entity.Group{}, fmt.Errorf("unknown group %q", g.Name)
	}
	return entity.Group{Name: g.Name, Members: append([]entity.Shot(nil), spec.Members...)}, nil
}

// ValidatePool checks that a pool name is part of the farm vocabulary.
func (f Farm) ValidatePool(pool string) error {
	for _, p := range f.Pools {
		if p == pool {
			return nil
		}
	}
	return fmt.Errorf("unknown pool %q (configured: %v)", pool, f.Pools)
}

// ResolvePriority turns a raw priority (empty, a preset name, or an
// integer literal) into a validated 0-100 value.
func (f Farm) ResolvePriority(raw string) (int, error) {
	if raw == "" {
		return f.DefaultPriority, nil
	}
	if preset, ok := f.Priorities[raw]; ok {
		return preset, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("unknown priority %q: not a preset or integer", raw)
	}
	if n < 0 || n > 100 {
		return 0, fmt.Errorf("priority %d out of range 0-100", n)
	}
	return n, nil
}
