package harness

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framewell/callsheet/internal/engine"
	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/farm"
	"github.com/framewell/callsheet/internal/jobgraph"
	"github.com/framewell/callsheet/internal/store"
	"github.com/framewell/callsheet/internal/uri"
)

// defaultFrames is the block range every entity reports unless the
// scenario overrides it.
const defaultFrames = "1001-1100x1"

// fixedMeta serves one frames property for every entity. Scenarios
// only plan, so the ledger half of the interface is unreachable.
type fixedMeta struct {
	frames string
}

func (m fixedMeta) GetProperties(context.Context, uri.URI) (map[string]string, error) {
	return map[string]string{engine.FramesProperty: m.frames}, nil
}

func (m fixedMeta) RecordSubmission(context.Context, store.Submission) (bool, error) {
	return false, fmt.Errorf("scenarios only plan, nothing records")
}

// nopSubmitter guards against a scenario reaching the farm.
type nopSubmitter struct{}

func (nopSubmitter) Submit(context.Context, *farm.Batch, farm.Destination) ([]farm.JobID, error) {
	return nil, fmt.Errorf("scenarios only plan, nothing submits")
}

// Result is a planned scenario.
type Result struct {
	Graph *jobgraph.Graph
	root  string
}

// Run materializes the scenario's tree and configuration under temp
// directories and plans the request through a real engine. Through
// selects the update flow; entity and department select propagation.
func Run(t *testing.T, s *Scenario) *Result {
	t.Helper()

	project, artifacts := s.materialize(t)
	frames := s.Frames
	if frames == "" {
		frames = defaultFrames
	}
	eng := engine.New(project, artifacts, fixedMeta{frames: frames}, nopSubmitter{})

	settings := jobgraph.Settings{User: s.Request.User}
	if settings.User == "" {
		settings.User = "scenario"
	}

	ctx := context.Background()
	var g *jobgraph.Graph
	var err error
	if s.Request.Through != "" {
		var shots []entity.Shot
		for _, raw := range s.Request.Shots {
			e, perr := entity.ParseString(raw)
			require.NoError(t, perr)
			shots = append(shots, e.(entity.Shot))
		}
		g, err = eng.PlanUpdate(ctx, engine.UpdateRequest{
			Shots:    shots,
			Through:  s.Request.Through,
			Settings: settings,
		})
	} else {
		e, perr := entity.ParseString(s.Request.Entity)
		require.NoError(t, perr)
		g, err = eng.Plan(ctx, engine.Request{
			Entity:     e,
			Department: s.Request.Department,
			Variant:    s.Request.Variant,
			Settings:   settings,
		})
	}
	require.NoError(t, err, "planning scenario %s", s.Name)
	return &Result{Graph: g, root: artifacts.Root()}
}

// AssertExpectations checks the planned graph against the scenario's
// expect block. Jobs are compared in insertion order; edges only need
// to be present.
func (r *Result) AssertExpectations(t *testing.T, s *Scenario) {
	t.Helper()

	if s.Expect.Empty {
		assert.True(t, r.Graph.Empty(), "expected zero work, got %d jobs", r.Graph.Len())
		return
	}
	if len(s.Expect.Jobs) > 0 {
		names := make([]string, 0, r.Graph.Len())
		for _, j := range r.Graph.Jobs() {
			names = append(names, j.Name)
		}
		assert.Equal(t, s.Expect.Jobs, names)
	}
	for _, edge := range s.Expect.Edges {
		assert.True(t, r.Graph.HasEdge(edge.Job, edge.DependsOn),
			"missing edge %s <- %s", edge.Job, edge.DependsOn)
	}
}
