// Package propagate computes what a change to one (entity, department)
// implies: the downstream departments that must republish and the
// dependent shots that must rebuild. Resolution is a pure function of the
// department model and the dependency graph snapshot; it creates no jobs
// and performs no I/O.
package propagate

import (
	"fmt"

	"github.com/framewell/callsheet/internal/entity"
)

// ConsumerIndex answers "which shots reference this provider". The
// dependency graph implements it; resolution only consults it for asset
// and kit requests.
type ConsumerIndex interface {
	FindConsumers(provider entity.Entity) []entity.Shot
}

// Result is the resolved propagation set.
type Result struct {
	// Entity is the requested entity; groups carry their members.
	Entity entity.Entity
	// Department is the requested department.
	Department entity.Department
	// Downstream lists the departments after the requested one that must
	// republish: publishable, enabled and not independent.
	Downstream []entity.Department
	// AffectedShots lists the shots whose builds must rerun: a group's
	// members in authored order, a provider's consumers sorted by URI, or
	// the requested shot itself.
	AffectedShots []entity.Shot
}

// DepartmentsToPublish returns the full publish chain in pipeline order:
// the requested department followed by its downstream set.
func (r Result) DepartmentsToPublish() []entity.Department {
	out := make([]entity.Department, 0, len(r.Downstream)+1)
	out = append(out, r.Department)
	return append(out, r.Downstream...)
}

// IsNoop reports whether the propagation has nothing to do: no downstream
// departments and no affected shots. A no-op is success with zero work,
// not an error.
func (r Result) IsNoop() bool {
	return len(r.Downstream) == 0 && len(r.AffectedShots) == 0
}

// Resolver resolves change requests against an immutable department
// model.
type Resolver struct {
	model *entity.Model
}

// NewResolver creates a resolver over a department model.
func NewResolver(model *entity.Model) *Resolver {
	return &Resolver{model: model}
}

// Resolve expands a changed (entity, department) into the propagation set.
// The index is consulted only for asset and kit requests and may be nil
// otherwise. Unknown, disabled or non-publishable departments are rejected
// before any graph work; groups must arrive with members attached.
func (r *Resolver) Resolve(e entity.Entity, department string, index ConsumerIndex) (Result, error) {
	scope := entity.ScopeForKind(e.Kind())

	requested, ok := r.model.Lookup(scope, department)
	if !ok {
		return Result{}, fmt.Errorf("unknown department %q in scope %q", department, scope)
	}
	if !requested.Enabled {
		return Result{}, fmt.Errorf("department %q is disabled", department)
	}
	if !requested.Publishable {
		return Result{}, fmt.Errorf("department %q is not publishable", department)
	}

	var downstream []entity.Department
	for _, d := range r.model.DownstreamOf(scope, department) {
		if !d.Publishable || !d.Enabled || d.Independent {
			continue
		}
		downstream = append(downstream, d)
	}

	affected, err := r.affectedShots(e, index)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Entity:        e,
		Department:    requested,
		Downstream:    downstream,
		AffectedShots: affected,
	}, nil
}

// affectedShots determines the rebuild set per entity kind: a group's
// members, a provider's consumers, or the shot itself. Shots have no
// dependents in this model, so no further expansion happens.
func (r *Resolver) affectedShots(e entity.Entity, index ConsumerIndex) ([]entity.Shot, error) {
	switch e := e.(type) {
	case entity.Group:
		if len(e.Members) == 0 {
			return nil, fmt.Errorf("group %q has no members attached", e.Name)
		}
		return append([]entity.Shot(nil), e.Members...), nil
	case entity.Asset:
		if index == nil {
			return nil, fmt.Errorf("asset propagation requires a dependency graph")
		}
		return index.FindConsumers(e), nil
	case entity.Kit:
		if index == nil {
			return nil, fmt.Errorf("kit propagation requires a dependency graph")
		}
		return index.FindConsumers(e), nil
	case entity.Shot:
		return []entity.Shot{e}, nil
	default:
		return nil, fmt.Errorf("unsupported entity kind %s", e.Kind())
	}
}
