package versions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framewell/callsheet/internal/entity"
)

var (
	heroKey = Key{
		Entity:     entity.Asset{Category: "char", Name: "hero"},
		Variant:    entity.DefaultVariant,
		Department: "model",
	}
	baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
)

func writeFileAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func makeExport(t *testing.T, s *Store, k Key, v Version, mtime time.Time) string {
	t.Helper()
	dir := s.VersionDir(k, v)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func makeWorkfile(t *testing.T, s *Store, e entity.Entity, department string, v Version, mtime time.Time) {
	t.Helper()
	path := filepath.Join(s.WorkspaceDir(e, department), workfileName(e, department, v))
	writeFileAt(t, path, mtime)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  Version
		valid bool
	}{
		{"first", "v0001", 1, true},
		{"large", "v0123", 123, true},
		{"wide", "v10000", 10000, true},
		{"zero", "v0000", 0, false},
		{"short digits", "v001", 0, false},
		{"no prefix", "0001", 0, false},
		{"letters", "v00a1", 0, false},
		{"empty", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVersion(tt.raw)
			assert.Equal(t, tt.valid, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestVersion_String(t *testing.T) {
	assert.Equal(t, "v0001", Version(1).String())
	assert.Equal(t, "v0042", Version(42).String())
	assert.Equal(t, "v10000", Version(10000).String(), "widens past four digits")
	assert.Equal(t, Version(2), Version(1).Next())
}

func TestStore_ListVersions(t *testing.T) {
	s := NewStore(t.TempDir())

	got, err := s.ListVersions(heroKey)
	require.NoError(t, err)
	assert.Empty(t, got, "missing export dir is empty, not an error")

	makeExport(t, s, heroKey, 2, baseTime)
	makeExport(t, s, heroKey, 1, baseTime)
	makeExport(t, s, heroKey, 10, baseTime)
	require.NoError(t, os.MkdirAll(filepath.Join(s.ExportDir(heroKey), "_staged"), 0o755))
	writeFileAt(t, filepath.Join(s.ExportDir(heroKey), "notes.txt"), baseTime)

	got, err = s.ListVersions(heroKey)
	require.NoError(t, err)
	assert.Equal(t, []Version{1, 2, 10}, got, "sorted by code, malformed names ignored")
}

func TestStore_LatestAndNextVersion(t *testing.T) {
	s := NewStore(t.TempDir())

	_, ok, err := s.LatestVersion(heroKey)
	require.NoError(t, err)
	assert.False(t, ok)

	next, err := s.NextVersion(heroKey)
	require.NoError(t, err)
	assert.Equal(t, Version(1), next, "first version is v0001")

	makeExport(t, s, heroKey, 3, baseTime)

	latest, ok, err := s.LatestVersion(heroKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Version(3), latest)

	next, err = s.NextVersion(heroKey)
	require.NoError(t, err)
	assert.Equal(t, Version(4), next)

	exists, err := s.Exists(heroKey, 3)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Exists(heroKey, 4)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_LatestWorkfile(t *testing.T) {
	s := NewStore(t.TempDir())
	hero := heroKey.Entity

	_, ok, err := s.LatestWorkfile(hero, "model")
	require.NoError(t, err)
	assert.False(t, ok, "no workspace means no workfile")

	makeWorkfile(t, s, hero, "model", 1, baseTime)
	makeWorkfile(t, s, hero, "model", 3, baseTime.Add(-time.Hour))
	makeWorkfile(t, s, hero, "model", 2, baseTime.Add(time.Hour))
	// Non-matching neighbors must be ignored.
	writeFileAt(t, filepath.Join(s.WorkspaceDir(hero, "model"), "scratch.hip"), baseTime)
	writeFileAt(t, filepath.Join(s.WorkspaceDir(hero, "model"), "char_hero_model_backup.hip"), baseTime)

	wf, ok, err := s.LatestWorkfile(hero, "model")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Version(3), wf.Version, "highest version wins, not newest mtime")
	assert.True(t, wf.ModTime.Equal(baseTime.Add(-time.Hour)))

	next, err := s.NextWorkfilePath(hero, "model")
	require.NoError(t, err)
	assert.Equal(t, "char_hero_model_v0004.hip", filepath.Base(next))
}

func TestStore_LatestWorkfile_Group(t *testing.T) {
	s := NewStore(t.TempDir())
	group := entity.Group{Name: "trailer"}

	makeWorkfile(t, s, group, "anim", 1, baseTime)

	wf, ok, err := s.LatestWorkfile(group, "anim")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "trailer_anim_v0001.hip", filepath.Base(wf.Path))
}

func TestStore_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		workfile *time.Time
		export   *time.Time
		want     bool
	}{
		{"no workfile never stale", nil, nil, false},
		{"no workfile with export", nil, timePtr(baseTime), false},
		{"workfile without export", timePtr(baseTime), nil, true},
		{"workfile newer than export", timePtr(baseTime.Add(time.Minute)), timePtr(baseTime), true},
		{"workfile older than export", timePtr(baseTime.Add(-time.Minute)), timePtr(baseTime), false},
		{"equal timestamps not stale", timePtr(baseTime), timePtr(baseTime), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir())
			if tt.workfile != nil {
				makeWorkfile(t, s, heroKey.Entity, heroKey.Department, 1, *tt.workfile)
			}
			if tt.export != nil {
				makeExport(t, s, heroKey, 1, *tt.export)
			}
			stale, err := s.IsStale(heroKey)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stale)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestStore_ListShotsWithWork(t *testing.T) {
	s := NewStore(t.TempDir())

	shots, err := s.ListShotsWithWork()
	require.NoError(t, err)
	assert.Empty(t, shots, "empty tree yields an empty census")

	makeWorkfile(t, s, entity.Shot{Sequence: "020", Name: "0100"}, "comp", 1, baseTime)
	makeWorkfile(t, s, entity.Shot{Sequence: "010", Name: "0040"}, "light", 1, baseTime)
	makeWorkfile(t, s, entity.Shot{Sequence: "010", Name: "0020"}, "anim", 1, baseTime)
	// Assets never enter the shot census.
	makeWorkfile(t, s, heroKey.Entity, "model", 1, baseTime)

	shots, err = s.ListShotsWithWork()
	require.NoError(t, err)
	assert.Equal(t, []entity.Shot{
		{Sequence: "010", Name: "0020"},
		{Sequence: "010", Name: "0040"},
		{Sequence: "020", Name: "0100"},
	}, shots, "sorted by uri")
}

func TestStore_ListShotsWithWork_UnreadableSequence(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}
	s := NewStore(t.TempDir())
	makeWorkfile(t, s, entity.Shot{Sequence: "010", Name: "0020"}, "anim", 1, baseTime)

	seqDir := filepath.Join(s.Root(), "work", "shots", "010")
	require.NoError(t, os.Chmod(seqDir, 0o000))
	t.Cleanup(func() { _ = os.Chmod(seqDir, 0o755) })

	_, err := s.ListShotsWithWork()
	require.Error(t, err, "an unlistable sequence must not shrink the census silently")
	assert.Contains(t, err.Error(), "010")
}

func TestStore_ReadLatestContext(t *testing.T) {
	s := NewStore(t.TempDir())

	_, ok, err := s.ReadLatestContext(heroKey)
	require.NoError(t, err)
	assert.False(t, ok, "no exports yields ok=false without error")

	dir := makeExport(t, s, heroKey, 1, baseTime)
	record := Context{
		Entity:     "entity:/assets/char/hero",
		Department: "model",
		Version:    "v0001",
		Timestamp:  baseTime,
		User:       "mb",
		Inputs: []InputRef{
			{Entity: "entity:/kits/env/forest", Department: "assemble", Version: "v0002"},
			{Entity: "entity:/assets/char/sidekick", Department: "model"},
		},
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ContextFileName), data, 0o644))

	got, ok, err := s.ReadLatestContext(heroKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "entity:/assets/char/hero", got.Entity)
	require.Len(t, got.Inputs, 2)
	assert.Equal(t, "v0002", got.Inputs[0].Version)
	assert.Empty(t, got.Inputs[1].Version, "unpinned input")

	// Export present but record missing: error with ok=true.
	s2 := NewStore(t.TempDir())
	makeExport(t, s2, heroKey, 1, baseTime)
	_, ok, err = s2.ReadLatestContext(heroKey)
	assert.True(t, ok)
	assert.Error(t, err)
}
