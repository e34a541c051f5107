package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framewell/callsheet/internal/config"
	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/versions"
)

// fixtureBase anchors every relative mtime in a scenario.
var fixtureBase = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

// materialize builds the scenario's project tree and compiled
// configuration under temp directories.
func (s *Scenario) materialize(t *testing.T) (*config.Project, *versions.Store) {
	t.Helper()
	artifacts := versions.NewStore(t.TempDir())
	for _, espec := range s.Entities {
		e, err := entity.ParseString(espec.URI)
		require.NoError(t, err)
		for _, a := range espec.Artifacts {
			seedArtifact(t, artifacts, e, a)
		}
	}
	return s.compileConfig(t), artifacts
}

// seedArtifact drops the v0001 workfile and export for one artifact,
// pinning their mtimes to the scenario's relative offsets. Exports
// always carry a context record, the way real publishes do.
func seedArtifact(t *testing.T, store *versions.Store, e entity.Entity, spec ArtifactSpec) {
	t.Helper()
	variant := spec.Variant
	if variant == "" {
		variant = entity.DefaultVariant
	}

	if spec.WorkfileAt != nil {
		path, err := store.NextWorkfilePath(e, spec.Department)
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("scene"), 0o644))
		at := fixtureBase.Add(time.Duration(*spec.WorkfileAt) * time.Minute)
		require.NoError(t, os.Chtimes(path, at, at))
	}

	if spec.ExportAt != nil {
		key := versions.Key{Entity: e, Variant: variant, Department: spec.Department}
		dir := store.VersionDir(key, 1)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		record := versions.Context{
			Entity:     e.URI().String(),
			Department: spec.Department,
			Version:    "v0001",
			Timestamp:  fixtureBase,
			User:       "scenario",
		}
		for _, input := range spec.Inputs {
			record.Inputs = append(record.Inputs, versions.InputRef{
				Entity:     input.Entity,
				Department: input.Department,
				Version:    input.Version,
			})
		}
		data, err := json.Marshal(record)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, versions.ContextFileName), data, 0o644))

		// The record write bumps the directory mtime, so pin it last.
		at := fixtureBase.Add(time.Duration(*spec.ExportAt) * time.Minute)
		require.NoError(t, os.Chtimes(dir, at, at))
	}
}

// compileConfig renders the scenario's model as CUE and compiles it the
// way production configuration loads.
func (s *Scenario) compileConfig(t *testing.T) *config.Project {
	t.Helper()
	var b strings.Builder
	b.WriteString("project: name: \"scenario\"\n")

	b.WriteString("departments: {\n")
	for _, scope := range []string{"assets", "shots", "kits"} {
		specs, ok := s.Departments[scope]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\t%s: [", scope)
		for i, d := range specs {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "{name: %q", d.Name)
			if d.Independent {
				b.WriteString(", independent: true")
			}
			if d.Disabled {
				b.WriteString(", enabled: false")
			}
			b.WriteString("}")
		}
		b.WriteString("]\n")
	}
	b.WriteString("}\n")

	if len(s.Groups) > 0 {
		b.WriteString("groups: [")
		for i, g := range s.Groups {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "{name: %q, members: [", g.Name)
			for j, m := range g.Members {
				if j > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%q", m)
			}
			b.WriteString("]}")
		}
		b.WriteString("]\n")
	}

	b.WriteString("farm: pools: [\"general\"]\n")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.cue"), []byte(b.String()), 0o644))
	project, errs := config.Load(dir, config.LoadModeFailFast)
	require.Empty(t, errs, "scenario configuration must compile")
	return project
}
