// Package depgraph derives the usage relations between entities by
// scanning exported artifact metadata: which shots consume which assets
// and kits. The graph is rebuilt per request; a stale graph is bounded by
// re-running the scan, never by caching.
package depgraph

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/versions"
)

// Edge is one derived consumer→provider relation: the consumer's exported
// artifact embeds a reference to the provider's artifact.
type Edge struct {
	Consumer entity.Entity
	Provider entity.Entity
}

// Graph is the derived dependency index. It is immutable after Scan
// returns and safe for concurrent readers.
type Graph struct {
	entities map[string]entity.Entity
	forward  map[string]map[string]bool
	reverse  map[string]map[string]bool
}

func newGraph() *Graph {
	return &Graph{
		entities: make(map[string]entity.Entity),
		forward:  make(map[string]map[string]bool),
		reverse:  make(map[string]map[string]bool),
	}
}

func (g *Graph) addNode(e entity.Entity) {
	g.entities[entity.Key(e)] = e
}

func (g *Graph) addEdge(consumer, provider entity.Entity) {
	g.addNode(consumer)
	g.addNode(provider)
	ck, pk := entity.Key(consumer), entity.Key(provider)
	if g.forward[ck] == nil {
		g.forward[ck] = make(map[string]bool)
	}
	g.forward[ck][pk] = true
	if g.reverse[pk] == nil {
		g.reverse[pk] = make(map[string]bool)
	}
	g.reverse[pk][ck] = true
}

// FindConsumers returns every shot whose latest exported metadata
// references the provider, sorted by URI. Only direct references are
// reported; no transitive chains are modeled.
func (g *Graph) FindConsumers(provider entity.Entity) []entity.Shot {
	var out []entity.Shot
	for ck := range g.reverse[entity.Key(provider)] {
		if shot, ok := g.entities[ck].(entity.Shot); ok {
			out = append(out, shot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return entity.Key(out[i]) < entity.Key(out[j])
	})
	return out
}

// Providers returns the entities the consumer's latest export references,
// sorted by URI.
func (g *Graph) Providers(consumer entity.Entity) []entity.Entity {
	var out []entity.Entity
	for pk := range g.forward[entity.Key(consumer)] {
		out = append(out, g.entities[pk])
	}
	sort.Slice(out, func(i, j int) bool {
		return entity.Key(out[i]) < entity.Key(out[j])
	})
	return out
}

// Entities returns every entity seen during the scan, sorted by URI.
func (g *Graph) Entities() []entity.Entity {
	keys := make([]string, 0, len(g.entities))
	for k := range g.entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]entity.Entity, len(keys))
	for i, k := range keys {
		out[i] = g.entities[k]
	}
	return out
}

// Edges returns the full derived edge set, sorted by consumer then
// provider URI.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for ck, providers := range g.forward {
		for pk := range providers {
			out = append(out, Edge{Consumer: g.entities[ck], Provider: g.entities[pk]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := entity.Key(out[i].Consumer), entity.Key(out[j].Consumer)
		if ci != cj {
			return ci < cj
		}
		return entity.Key(out[i].Provider) < entity.Key(out[j].Provider)
	})
	return out
}

// HasEdge reports whether consumer's latest export references provider.
func (g *Graph) HasEdge(consumer, provider entity.Entity) bool {
	return g.forward[entity.Key(consumer)][entity.Key(provider)]
}

// Scanner walks the export tree and builds the dependency graph.
type Scanner struct {
	store *versions.Store
}

// NewScanner creates a scanner over a version store.
func NewScanner(store *versions.Store) *Scanner {
	return &Scanner{store: store}
}

// Scan reads the latest context record of every exported artifact and
// assembles the consumer→provider edge set. One unreadable record excludes
// that artifact and is logged; an unreadable tree root aborts. A cycle in
// the result is a hard construction error.
func (sc *Scanner) Scan(ctx context.Context) (*Graph, error) {
	g := newGraph()
	entities, err := sc.discoverEntities()
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := sc.scanEntity(g, e); err != nil {
			return nil, err
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	return g, nil
}

// discoverEntities enumerates entities that have export directories,
// sorted by URI for deterministic scan order. A scope that was never
// exported is skipped; any other read failure aborts the scan, so an
// unreadable root can never pass for an empty consumer set.
func (sc *Scanner) discoverEntities() ([]entity.Entity, error) {
	var out []entity.Entity
	exportRoot := filepath.Join(sc.store.Root(), "export")
	for _, scope := range []string{"assets", "shots", "kits", "groups"} {
		scopeDir := filepath.Join(exportRoot, scope)
		firsts, err := os.ReadDir(scopeDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading export scope %s: %w", scope, err)
		}
		for _, first := range firsts {
			if !first.IsDir() {
				continue
			}
			if scope == "groups" {
				if e, err := entity.ParseString("entity:/groups/" + first.Name()); err == nil {
					out = append(out, e)
				}
				continue
			}
			seconds, err := os.ReadDir(filepath.Join(scopeDir, first.Name()))
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading export scope %s/%s: %w", scope, first.Name(), err)
			}
			for _, second := range seconds {
				if !second.IsDir() {
					continue
				}
				raw := fmt.Sprintf("entity:/%s/%s/%s", scope, first.Name(), second.Name())
				if e, err := entity.ParseString(raw); err == nil {
					out = append(out, e)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return entity.Key(out[i]) < entity.Key(out[j])
	})
	return out, nil
}

// scanEntity reads the latest context record of every (variant,
// department) artifact the entity has exported and records its input
// references as edges.
func (sc *Scanner) scanEntity(g *Graph, e entity.Entity) error {
	entityDir := filepath.Join(append([]string{sc.store.Root(), "export"}, e.URI().Segments...)...)
	variants, err := os.ReadDir(entityDir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", e.URI(), err)
	}
	for _, variant := range variants {
		if !variant.IsDir() {
			continue
		}
		departments, err := os.ReadDir(filepath.Join(entityDir, variant.Name()))
		if err != nil {
			return fmt.Errorf("scanning %s variant %s: %w", e.URI(), variant.Name(), err)
		}
		for _, department := range departments {
			if !department.IsDir() {
				continue
			}
			key := versions.Key{Entity: e, Variant: variant.Name(), Department: department.Name()}
			record, ok, err := sc.store.ReadLatestContext(key)
			if err != nil {
				slog.Warn("skipping unreadable artifact metadata",
					"entity", e.URI().String(),
					"variant", variant.Name(),
					"department", department.Name(),
					"error", err)
				continue
			}
			if !ok {
				continue
			}
			g.addNode(e)
			sc.recordInputs(g, e, record)
		}
	}
	return nil
}

func (sc *Scanner) recordInputs(g *Graph, consumer entity.Entity, record *versions.Context) {
	for _, input := range record.Inputs {
		provider, err := entity.ParseString(input.Entity)
		if err != nil {
			slog.Warn("skipping malformed input reference",
				"entity", consumer.URI().String(),
				"reference", input.Entity,
				"error", err)
			continue
		}
		g.addEdge(consumer, provider)
	}
}
