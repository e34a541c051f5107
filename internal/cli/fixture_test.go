package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/versions"
)

// fixtureBase anchors workfile and export mtimes so staleness stays
// deterministic regardless of when the test runs.
var fixtureBase = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

const fixtureShot = "entity:/shots/010/0020"

// testProject builds a project tree with configuration and one shot
// whose light department is stale: the workfile is newer than its only
// export.
func testProject(t *testing.T) string {
	t.Helper()
	root := seedConfig(t)
	seedShot(t, root, fixtureBase.Add(10*time.Minute), fixtureBase)
	return root
}

// testProjectFresh is testProject with the export newer than the
// workfile, so planning finds zero work.
func testProjectFresh(t *testing.T) string {
	t.Helper()
	root := seedConfig(t)
	seedShot(t, root, fixtureBase, fixtureBase.Add(10*time.Minute))
	return root
}

func seedConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	projectCUE := `project: name: "demo"
departments: shots: [{name: "anim"}, {name: "light"}, {name: "comp"}]
farm: {
	pools: ["general", "farm"]
	priorities: {low: 25, high: 75}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "project.cue"), []byte(projectCUE), 0o644))
	return root
}

// seedShot drops a v0001 light workfile and export for the fixture
// shot, pinning both mtimes.
func seedShot(t *testing.T, root string, workfileAt, exportAt time.Time) {
	t.Helper()
	artifacts := versions.NewStore(root)
	shot, err := entity.ParseString(fixtureShot)
	require.NoError(t, err)

	work, err := artifacts.NextWorkfilePath(shot, "light")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(work), 0o755))
	require.NoError(t, os.WriteFile(work, []byte("scene"), 0o644))
	require.NoError(t, os.Chtimes(work, workfileAt, workfileAt))

	key := versions.Key{Entity: shot, Variant: entity.DefaultVariant, Department: "light"}
	dir := artifacts.VersionDir(key, 1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	record := versions.Context{
		Entity:     fixtureShot,
		Department: "light",
		Version:    "v0001",
		Timestamp:  fixtureBase,
		User:       "fixture",
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, versions.ContextFileName), data, 0o644))
	// The record write bumps the directory mtime, so pin it last.
	require.NoError(t, os.Chtimes(dir, exportAt, exportAt))
}

// fakeFarmScript writes an executable that accepts any spool files and
// reports a fixed farm job ID.
func fakeFarmScript(t *testing.T, id string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "farmcmd.sh")
	script := "#!/bin/sh\necho \"JobID=" + id + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
