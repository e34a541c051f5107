package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framewell/callsheet/internal/config"
	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/farm"
	"github.com/framewell/callsheet/internal/jobgraph"
	"github.com/framewell/callsheet/internal/store"
	"github.com/framewell/callsheet/internal/testutil"
	"github.com/framewell/callsheet/internal/uri"
	"github.com/framewell/callsheet/internal/versions"
)

var engineBase = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

const engineConfig = `
project: name: "teaser"
departments: {
	assets: [{name: "model"}, {name: "lookdev"}]
	shots: [
		{name: "anim"},
		{name: "light", renderable: true},
		{name: "comp", renderable: true},
		{name: "final"},
	]
}
groups: [{name: "trailer", members: ["entity:/shots/010/0020", "entity:/shots/010/0030"]}]
farm: {
	pools: ["general", "render"]
	priorities: {high: 75}
}
`

func loadTestProject(t *testing.T) *config.Project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.cue"), []byte(engineConfig), 0o644))
	p, errs := config.Load(dir, config.LoadModeFailFast)
	require.Empty(t, errs)
	return p
}

// fakeMeta satisfies Metadata with one fixed frames property and an
// in-memory ledger.
type fakeMeta struct {
	mu        sync.Mutex
	frames    string
	recordErr error
	recorded  []store.Submission
}

func (m *fakeMeta) GetProperties(context.Context, uri.URI) (map[string]string, error) {
	if m.frames == "" {
		return map[string]string{}, nil
	}
	return map[string]string{FramesProperty: m.frames}, nil
}

func (m *fakeMeta) RecordSubmission(_ context.Context, sub store.Submission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return false, m.recordErr
	}
	m.recorded = append(m.recorded, sub)
	return true, nil
}

func (m *fakeMeta) submissions() []store.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Submission(nil), m.recorded...)
}

// fakeSubmitter captures the batch and mints sequential farm IDs in
// topological order, the way the spool submitter would.
type fakeSubmitter struct {
	err   error
	batch *farm.Batch
	dest  farm.Destination
	calls int
}

func (s *fakeSubmitter) Submit(_ context.Context, batch *farm.Batch, dest farm.Destination) ([]farm.JobID, error) {
	s.calls++
	s.batch = batch
	s.dest = dest
	if s.err != nil {
		return nil, s.err
	}
	order, err := batch.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	ids := make([]farm.JobID, len(order))
	for i := range order {
		ids[i] = farm.JobID(fmt.Sprintf("fm-%03d", i+1))
	}
	return ids, nil
}

type testEngine struct {
	engine    *Engine
	artifacts *versions.Store
	meta      *fakeMeta
	submitter *fakeSubmitter
	spoolRoot string
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	te := &testEngine{
		artifacts: versions.NewStore(t.TempDir()),
		meta:      &fakeMeta{frames: "1001-1010x1"},
		submitter: &fakeSubmitter{},
		spoolRoot: t.TempDir(),
	}
	te.engine = New(loadTestProject(t), te.artifacts, te.meta, te.submitter,
		WithClock(testutil.NewFixedClock(engineBase)),
		WithTokenGenerator(testutil.FixedTokens("tok-0001")),
		WithSpoolRoot(te.spoolRoot),
	)
	return te
}

func writeFileAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func seedWorkfile(t *testing.T, s *versions.Store, e entity.Entity, department string, mtime time.Time) {
	t.Helper()
	path, err := s.NextWorkfilePath(e, department)
	require.NoError(t, err)
	writeFileAt(t, path, mtime)
}

func seedExport(t *testing.T, s *versions.Store, e entity.Entity, department string, mtime time.Time) {
	t.Helper()
	key := versions.Key{Entity: e, Variant: entity.DefaultVariant, Department: department}
	dir := s.VersionDir(key, 1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
}

func seedStale(t *testing.T, s *versions.Store, e entity.Entity, department string) {
	t.Helper()
	seedExport(t, s, e, department, engineBase)
	seedWorkfile(t, s, e, department, engineBase.Add(time.Hour))
}

func seedFresh(t *testing.T, s *versions.Store, e entity.Entity, department string) {
	t.Helper()
	seedWorkfile(t, s, e, department, engineBase)
	seedExport(t, s, e, department, engineBase.Add(time.Hour))
}

// seedExportRecord drops a version directory with a context record so
// the dependency scanner can find consumers.
func seedExportRecord(t *testing.T, s *versions.Store, e entity.Entity, department string, inputs []versions.InputRef) {
	t.Helper()
	key := versions.Key{Entity: e, Variant: entity.DefaultVariant, Department: department}
	dir := s.VersionDir(key, 1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	record := versions.Context{
		Entity:     e.URI().String(),
		Department: department,
		Version:    "v0001",
		Timestamp:  engineBase,
		User:       "mb",
		Inputs:     inputs,
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, versions.ContextFileName), data, 0o644))
}

func jobNames(jobs []jobgraph.Job) []string {
	names := make([]string, len(jobs))
	for i, j := range jobs {
		names[i] = j.Name
	}
	return names
}

func propagateRequest(e entity.Entity, department string) Request {
	return Request{
		Entity:     e,
		Department: department,
		Settings:   jobgraph.Settings{User: "ada"},
	}
}

// ============================================================================
// Planning
// ============================================================================

func TestEngine_Plan_ShotPropagation(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot, "light")
	seedFresh(t, te.artifacts, shot, "comp")
	seedFresh(t, te.artifacts, shot, "final")

	g, err := te.engine.Plan(context.Background(), propagateRequest(shot, "light"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"publish_shot_010_0020_light",
		"publish_shot_010_0020_comp",
		"publish_shot_010_0020_final",
		"build_shot_010_0020",
		"notify",
	}, jobNames(g.Jobs()))

	light, ok := g.Job("publish_shot_010_0020_light")
	require.True(t, ok)
	assert.Equal(t, "general", light.Pool, "pool defaults from farm config")
	assert.Equal(t, 55, light.Priority, "default priority plus publish boost")
	assert.Equal(t, "1001-1010x1", light.Frames.String(), "frames come from the stored property")
}

func TestEngine_Plan_PureGivenSnapshot(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot, "light")

	first, err := te.engine.Plan(context.Background(), propagateRequest(shot, "light"))
	require.NoError(t, err)
	second, err := te.engine.Plan(context.Background(), propagateRequest(shot, "light"))
	require.NoError(t, err)

	assert.Equal(t, first.MustFingerprint(), second.MustFingerprint())
}

func TestEngine_Plan_GroupAttachesMembers(t *testing.T) {
	te := newTestEngine(t)
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot20, "light")
	seedFresh(t, te.artifacts, shot20, "comp")

	// The request carries the bare group; members come from configuration.
	g, err := te.engine.Plan(context.Background(), propagateRequest(entity.Group{Name: "trailer"}, "light"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"publish_shot_010_0020_light",
		"publish_shot_010_0020_comp",
		"build_shot_010_0020",
		"build_shot_010_0030",
		"notify",
	}, jobNames(g.Jobs()), "both members rebuild even when only one republishes")
}

func TestEngine_Plan_UnknownGroup(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.engine.Plan(context.Background(), propagateRequest(entity.Group{Name: "nosuch"}, "light"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestEngine_Plan_AssetScansForConsumers(t *testing.T) {
	te := newTestEngine(t)
	hero := entity.Asset{Category: "char", Name: "hero"}
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	shot40 := entity.Shot{Sequence: "010", Name: "0040"}

	seedStale(t, te.artifacts, hero, "lookdev")
	seedExportRecord(t, te.artifacts, shot20, "anim", []versions.InputRef{
		{Entity: hero.URI().String(), Department: "lookdev"},
	})
	seedExportRecord(t, te.artifacts, shot40, "anim", nil)

	g, err := te.engine.Plan(context.Background(), propagateRequest(hero, "lookdev"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"publish_asset_char_hero_lookdev",
		"build_shot_010_0020",
		"notify",
	}, jobNames(g.Jobs()), "only the consuming shot rebuilds")
}

func TestEngine_Plan_ScanFailure(t *testing.T) {
	te := newTestEngine(t)
	hero := entity.Asset{Category: "char", Name: "hero"}
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	shot40 := entity.Shot{Sequence: "010", Name: "0040"}

	// Two shots referencing each other's exports form a cycle, which the
	// scanner treats as a hard error.
	seedStale(t, te.artifacts, hero, "lookdev")
	seedExportRecord(t, te.artifacts, shot20, "anim", []versions.InputRef{
		{Entity: shot40.URI().String(), Department: "anim"},
	})
	seedExportRecord(t, te.artifacts, shot40, "anim", []versions.InputRef{
		{Entity: shot20.URI().String(), Department: "anim"},
	})

	_, err := te.engine.Plan(context.Background(), propagateRequest(hero, "lookdev"))
	require.Error(t, err)

	phase, ok := FailedPhase(err)
	require.True(t, ok)
	assert.Equal(t, PhaseScan, phase)
}

func TestEngine_Plan_RequestValidation(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}

	tests := []struct {
		name string
		req  Request
	}{
		{"nil entity", Request{Department: "light", Settings: jobgraph.Settings{User: "ada"}}},
		{"unknown department", propagateRequest(shot, "grade")},
		{"unknown pool", Request{Entity: shot, Department: "light", Settings: jobgraph.Settings{Pool: "gpu", User: "ada"}}},
		{"priority out of range", Request{Entity: shot, Department: "light", Settings: jobgraph.Settings{Priority: 101, User: "ada"}}},
		{"missing user", Request{Entity: shot, Department: "light"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.engine.Plan(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "want config phase, got %v", err)
		})
	}
}

func TestEngine_Plan_BadFramesProperty(t *testing.T) {
	te := newTestEngine(t)
	te.meta.frames = "garbage"
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot, "light")

	_, err := te.engine.Plan(context.Background(), propagateRequest(shot, "light"))
	require.Error(t, err)

	phase, ok := FailedPhase(err)
	require.True(t, ok)
	assert.Equal(t, PhaseBuild, phase)
}

// ============================================================================
// Propagate and submit
// ============================================================================

func TestEngine_PropagateAndSubmit(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot, "light")

	ids, err := te.engine.PropagateAndSubmit(context.Background(), propagateRequest(shot, "light"))
	require.NoError(t, err)
	assert.Equal(t, []farm.JobID{"fm-001", "fm-002", "fm-003"}, ids)

	require.NotNil(t, te.submitter.batch)
	assert.Equal(t, "teaser propagate entity:/shots/010/0020 ada 20250402_090000", te.submitter.batch.Name())
	assert.Equal(t, te.spoolRoot, te.submitter.dest.SpoolRoot)

	subs := te.meta.submissions()
	require.Len(t, subs, 1)
	rec := subs[0]
	assert.Equal(t, "tok-0001", rec.Token)
	assert.Equal(t, "entity:/shots/010/0020", rec.Entity)
	assert.Equal(t, "light", rec.Department)
	assert.Equal(t, "default", rec.Variant)
	assert.Equal(t, "ada", rec.User)
	assert.True(t, rec.SubmittedAt.Equal(engineBase))

	require.Len(t, rec.Jobs, 3)
	assert.Equal(t, store.SubmissionJob{Name: "publish_shot_010_0020_light", Kind: "publish", FarmID: "fm-001"}, rec.Jobs[0])
	assert.Equal(t, store.SubmissionJob{Name: "build_shot_010_0020", Kind: "build", FarmID: "fm-002"}, rec.Jobs[1])
	assert.Equal(t, store.SubmissionJob{Name: "notify", Kind: "notify", FarmID: "fm-003"}, rec.Jobs[2])

	// The recorded fingerprint matches an identical re-plan.
	g, err := te.engine.Plan(context.Background(), propagateRequest(shot, "light"))
	require.NoError(t, err)
	assert.Equal(t, g.MustFingerprint(), rec.Fingerprint)
}

func TestEngine_PropagateAndSubmit_ZeroWork(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedFresh(t, te.artifacts, shot, "light")

	ids, err := te.engine.PropagateAndSubmit(context.Background(), propagateRequest(shot, "light"))
	require.NoError(t, err)

	assert.Nil(t, ids)
	assert.Zero(t, te.submitter.calls, "nothing reaches the farm")
	assert.Empty(t, te.meta.submissions(), "nothing reaches the ledger")
}

func TestEngine_PropagateAndSubmit_SubmitFailure(t *testing.T) {
	te := newTestEngine(t)
	te.submitter.err = errors.New("farm unreachable")
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot, "light")

	_, err := te.engine.PropagateAndSubmit(context.Background(), propagateRequest(shot, "light"))
	require.Error(t, err)

	assert.True(t, IsSubmitError(err))
	assert.Empty(t, te.meta.submissions(), "failed submissions never reach the ledger")
}

func TestEngine_PropagateAndSubmit_LedgerFailure(t *testing.T) {
	te := newTestEngine(t)
	te.meta.recordErr = errors.New("disk full")
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot, "light")

	_, err := te.engine.PropagateAndSubmit(context.Background(), propagateRequest(shot, "light"))
	require.Error(t, err)

	phase, ok := FailedPhase(err)
	require.True(t, ok)
	assert.Equal(t, PhaseLedger, phase)
	assert.Equal(t, 1, te.submitter.calls, "jobs were already handed to the farm")
}

func TestEngine_PropagateAndSubmit_VariantRecorded(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}

	// Stale under the requested variant, not the default one.
	key := versions.Key{Entity: shot, Variant: "crowd", Department: "light"}
	dir := te.artifacts.VersionDir(key, 1)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.Chtimes(dir, engineBase, engineBase))
	seedWorkfile(t, te.artifacts, shot, "light", engineBase.Add(time.Hour))

	req := propagateRequest(shot, "light")
	req.Variant = "crowd"
	ids, err := te.engine.PropagateAndSubmit(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	subs := te.meta.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "crowd", subs[0].Variant)
}

// ============================================================================
// Update flow
// ============================================================================

func updateRequest(through string, shots ...entity.Shot) UpdateRequest {
	return UpdateRequest{
		Shots:    shots,
		Through:  through,
		Settings: jobgraph.Settings{User: "ada"},
	}
}

func TestEngine_PlanUpdate_ChainsThroughDepartment(t *testing.T) {
	te := newTestEngine(t)
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	shot30 := entity.Shot{Sequence: "010", Name: "0030"}
	seedStale(t, te.artifacts, shot20, "light")
	seedFresh(t, te.artifacts, shot20, "comp")
	seedFresh(t, te.artifacts, shot30, "light")

	g, err := te.engine.PlanUpdate(context.Background(), updateRequest("comp", shot20, shot30))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"publish_shot_010_0020_light",
		"publish_shot_010_0020_comp",
		"notify",
	}, jobNames(g.Jobs()), "fresh shots contribute nothing")

	assert.True(t, g.HasEdge("publish_shot_010_0020_comp", "publish_shot_010_0020_light"))

	notify, ok := g.Job("notify")
	require.True(t, ok)
	assert.Equal(t, "Updated 1 shots through comp", notify.Payload["message"])
}

func TestEngine_PlanUpdate_EmptyShotsMeansCensus(t *testing.T) {
	te := newTestEngine(t)
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	shot40 := entity.Shot{Sequence: "010", Name: "0040"}
	seedFresh(t, te.artifacts, shot20, "light")
	seedStale(t, te.artifacts, shot40, "light")

	g, err := te.engine.PlanUpdate(context.Background(), updateRequest("light"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"publish_shot_010_0040_light",
		"notify",
	}, jobNames(g.Jobs()), "census discovers shots the request never named")
}

func TestEngine_PlanUpdate_ThroughValidation(t *testing.T) {
	te := newTestEngine(t)

	tests := []struct {
		name    string
		through string
	}{
		{"unknown department", "grade"},
		{"asset department is out of scope", "lookdev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.engine.PlanUpdate(context.Background(), updateRequest(tt.through))
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestEngine_UpdateAndSubmit(t *testing.T) {
	te := newTestEngine(t)
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	seedStale(t, te.artifacts, shot20, "light")

	ids, err := te.engine.UpdateAndSubmit(context.Background(), updateRequest("comp", shot20))
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	require.NotNil(t, te.submitter.batch)
	assert.Equal(t, "teaser update comp ada 20250402_090000", te.submitter.batch.Name())

	subs := te.meta.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "entity:/shots", subs[0].Entity)
	assert.Equal(t, "comp", subs[0].Department)
}

func TestEngine_UpdateAndSubmit_ZeroWork(t *testing.T) {
	te := newTestEngine(t)
	shot20 := entity.Shot{Sequence: "010", Name: "0020"}
	seedFresh(t, te.artifacts, shot20, "light")

	ids, err := te.engine.UpdateAndSubmit(context.Background(), updateRequest("comp", shot20))
	require.NoError(t, err)

	assert.Nil(t, ids)
	assert.Zero(t, te.submitter.calls)
	assert.Empty(t, te.meta.submissions())
}

// ============================================================================
// Version queries
// ============================================================================

func TestEngine_Versions(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}
	key := versions.Key{Entity: shot, Variant: entity.DefaultVariant, Department: "light"}
	require.NoError(t, os.MkdirAll(te.artifacts.VersionDir(key, 1), 0o755))
	require.NoError(t, os.MkdirAll(te.artifacts.VersionDir(key, 3), 0o755))

	got, err := te.engine.Versions(shot, "light", "")
	require.NoError(t, err)
	assert.Equal(t, versions.Version(3), got.Latest)
	assert.Equal(t, versions.Version(4), got.Next, "next continues past the gap")
}

func TestEngine_Versions_Unpublished(t *testing.T) {
	te := newTestEngine(t)
	shot := entity.Shot{Sequence: "010", Name: "0020"}

	got, err := te.engine.Versions(shot, "light", "")
	require.NoError(t, err)
	assert.Equal(t, versions.Version(0), got.Latest)
	assert.Equal(t, versions.Version(1), got.Next)
}

// ============================================================================
// Phase errors
// ============================================================================

func TestFailedPhase(t *testing.T) {
	err := fmt.Errorf("outer: %w", phaseErr(PhaseSubmit, errors.New("boom")))

	phase, ok := FailedPhase(err)
	require.True(t, ok)
	assert.Equal(t, PhaseSubmit, phase)

	_, ok = FailedPhase(errors.New("plain"))
	assert.False(t, ok)
}

func TestPhaseError_Message(t *testing.T) {
	err := phaseErr(PhaseConfig, errors.New("unknown pool"))
	assert.Equal(t, "config: unknown pool", err.Error())
}
