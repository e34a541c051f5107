package jobgraph

import (
	"fmt"
	"log/slog"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/versions"
)

// BuildUpdate creates the refresh graph for "update every shot through a
// department": one staleness-gated linear publish chain per shot covering
// the given departments in pipeline order, joined by the terminal notify
// job. Chains of different shots never depend on each other. Placeholder
// shots (any "000" path segment) are skipped outright.
func (b *Builder) BuildUpdate(shots []entity.Shot, departments []entity.Department, settings Settings) (*Graph, error) {
	g := NewGraph()
	touched := 0

	for _, shot := range shots {
		if isPlaceholder(shot) {
			continue
		}
		added, err := b.buildShotChain(g, shot, departments, settings)
		if err != nil {
			return nil, err
		}
		if added {
			touched++
		}
	}

	if !g.Empty() {
		through := departments[len(departments)-1].Name
		job := Job{
			Name:     "notify",
			Kind:     KindNotify,
			Pool:     settings.Pool,
			Priority: NotifyPriority,
			Payload: map[string]string{
				"channel": "exports",
				"message": fmt.Sprintf("Updated %d shots through %s", touched, through),
				"user":    settings.User,
			},
		}
		if err := g.AddJob(job); err != nil {
			return nil, err
		}
		for _, j := range g.Jobs() {
			if j.Kind == KindPublish {
				if err := g.AddDependency(job.Name, j.Name); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// buildShotChain emits one shot's linear refresh chain and reports whether
// any job was created.
func (b *Builder) buildShotChain(g *Graph, shot entity.Shot, departments []entity.Department, settings Settings) (bool, error) {
	infected := false
	prev := ""
	added := false

	for _, dept := range departments {
		key := versions.Key{Entity: shot, Variant: settings.variant(), Department: dept.Name}

		forced := !dept.Independent && infected
		if !forced {
			stale, err := b.store.IsStale(key)
			if err != nil {
				return added, err
			}
			if !stale {
				continue
			}
		}

		workfile, ok, err := b.store.LatestWorkfile(shot, dept.Name)
		if err != nil {
			return added, err
		}
		if !ok {
			slog.Info("no workfile, skipping department",
				"entity", shot.URI().String(),
				"department", dept.Name)
			continue
		}

		job, err := b.publishJob(shot, dept, key, workfile, settings)
		if err != nil {
			return added, err
		}
		if err := g.AddJob(job); err != nil {
			return added, err
		}

		if !dept.Independent {
			if prev != "" {
				if err := g.AddDependency(job.Name, prev); err != nil {
					return added, err
				}
			}
			prev = job.Name
		}
		infected = true
		added = true
	}
	return added, nil
}

// isPlaceholder recognizes census rows that reserve a slot in the shot
// numbering without being real shots.
func isPlaceholder(s entity.Shot) bool {
	return s.Sequence == "000" || s.Name == "000"
}
