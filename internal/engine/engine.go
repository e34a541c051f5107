package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/framewell/callsheet/internal/config"
	"github.com/framewell/callsheet/internal/depgraph"
	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/farm"
	"github.com/framewell/callsheet/internal/jobgraph"
	"github.com/framewell/callsheet/internal/propagate"
	"github.com/framewell/callsheet/internal/store"
	"github.com/framewell/callsheet/internal/uri"
	"github.com/framewell/callsheet/internal/versions"
)

// Submitter hands a finished batch to the farm.
// *farm.SpoolSubmitter is the production implementation.
type Submitter interface {
	Submit(ctx context.Context, batch *farm.Batch, dest farm.Destination) ([]farm.JobID, error)
}

// Metadata is the slice of the metadata store the engine touches:
// hierarchical properties for frame ranges and the submission ledger.
// *store.Store implements it.
type Metadata interface {
	GetProperties(ctx context.Context, u uri.URI) (map[string]string, error)
	RecordSubmission(ctx context.Context, sub store.Submission) (bool, error)
}

// batchTimestamp is the layout for the trailing field of batch names.
// Compact so names stay grep-able in farm monitors.
const batchTimestamp = "20060102_150405"

// Request asks for change propagation from one entity and department.
type Request struct {
	Entity     entity.Entity
	Department string
	// Variant selects the artifact variant; empty means default. A
	// non-empty value overrides Settings.Variant.
	Variant  string
	Settings jobgraph.Settings
}

// UpdateRequest asks for per-shot refresh chains through a department.
type UpdateRequest struct {
	// Shots limits the update. Empty means every shot that has
	// workfiles.
	Shots []entity.Shot
	// Through names the last department of each shot's chain.
	Through  string
	Settings jobgraph.Settings
}

// Engine wires the stages of one submission together. It is synchronous:
// each call performs a bounded sequence of reads, builds a graph, and
// (for the submit variants) spools it to the farm and records the
// ledger row. Nothing is cached between calls; every call sees the
// project tree as it is.
type Engine struct {
	project   *config.Project
	artifacts *versions.Store
	meta      Metadata
	submitter Submitter
	spool     farm.Destination
	clock     Clock
	tokens    TokenGenerator

	resolver *propagate.Resolver
	builder  *jobgraph.Builder
	scanner  *depgraph.Scanner
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithClock injects the timestamp source. Tests use a fixed clock for
// stable batch names.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithTokenGenerator injects the submission token source.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithSpoolRoot overrides where batch spool files are staged. The
// default is a spool directory under the project root.
func WithSpoolRoot(root string) Option {
	return func(e *Engine) { e.spool = farm.Destination{SpoolRoot: root} }
}

// New assembles an engine over compiled configuration, the version
// store, the metadata store and a farm submitter. Options override the
// clock, token generator and spool root.
func New(project *config.Project, artifacts *versions.Store, meta Metadata, submitter Submitter, opts ...Option) *Engine {
	e := &Engine{
		project:   project,
		artifacts: artifacts,
		meta:      meta,
		submitter: submitter,
		spool:     farm.Destination{SpoolRoot: filepath.Join(artifacts.Root(), "spool")},
		clock:     SystemClock{},
		tokens:    UUIDv7Generator{},
	}
	e.resolver = propagate.NewResolver(project.Model())
	e.builder = jobgraph.NewBuilder(artifacts, propertyFrames{meta: meta})
	e.scanner = depgraph.NewScanner(artifacts)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan resolves and builds the job graph for a propagation request
// without touching the farm or the ledger. Planning is pure given the
// filesystem snapshot: two plans over unchanged trees carry equal
// fingerprints. An empty graph means nothing was stale.
func (e *Engine) Plan(ctx context.Context, req Request) (*jobgraph.Graph, error) {
	res, settings, err := e.resolveRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.buildGraph(res, settings)
}

// PropagateAndSubmit plans, spools the batch to the farm and records
// the submission. A plan with zero work returns (nil, nil) and leaves
// both the farm and the ledger untouched.
func (e *Engine) PropagateAndSubmit(ctx context.Context, req Request) ([]farm.JobID, error) {
	res, settings, err := e.resolveRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	g, err := e.buildGraph(res, settings)
	if err != nil {
		return nil, err
	}
	if g.Empty() {
		slog.Info("nothing stale, zero work",
			"entity", res.Entity.URI().String(),
			"department", res.Department.Name)
		return nil, nil
	}

	name := e.batchName("propagate", res.Entity.URI().String(), settings.User)
	return e.submitAndRecord(ctx, g, name, res.Entity.URI().String(), res.Department.Name, settings)
}

// PlanUpdate builds per-shot refresh chains through a department
// without submitting. Shots whose chains are entirely fresh contribute
// no jobs; an empty graph means every requested shot is up to date.
func (e *Engine) PlanUpdate(ctx context.Context, req UpdateRequest) (*jobgraph.Graph, error) {
	shots, departments, settings, err := e.resolveUpdate(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.buildUpdateGraph(shots, departments, settings, req.Through)
}

// UpdateAndSubmit plans the update flow, spools it and records the
// submission. Like PropagateAndSubmit, zero work returns (nil, nil).
func (e *Engine) UpdateAndSubmit(ctx context.Context, req UpdateRequest) ([]farm.JobID, error) {
	shots, departments, settings, err := e.resolveUpdate(ctx, req)
	if err != nil {
		return nil, err
	}
	g, err := e.buildUpdateGraph(shots, departments, settings, req.Through)
	if err != nil {
		return nil, err
	}
	if g.Empty() {
		slog.Info("nothing stale across shots",
			"through", req.Through,
			"shots", len(shots))
		return nil, nil
	}

	name := e.batchName("update", req.Through, settings.User)
	return e.submitAndRecord(ctx, g, name, "entity:/shots", req.Through, settings)
}

// ArtifactVersions reports where an artifact's version sequence stands.
type ArtifactVersions struct {
	// Latest is zero when no version has been published yet.
	Latest versions.Version
	// Next is the version the next publish will claim.
	Next versions.Version
}

// Versions returns the latest and next version of one artifact. An
// empty variant means the default variant.
func (e *Engine) Versions(target entity.Entity, department, variant string) (ArtifactVersions, error) {
	if variant == "" {
		variant = entity.DefaultVariant
	}
	key := versions.Key{Entity: target, Variant: variant, Department: department}

	latest, ok, err := e.artifacts.LatestVersion(key)
	if err != nil {
		return ArtifactVersions{}, phaseErr(PhaseVersions, err)
	}
	if !ok {
		latest = 0
	}
	next, err := e.artifacts.NextVersion(key)
	if err != nil {
		return ArtifactVersions{}, phaseErr(PhaseVersions, err)
	}
	return ArtifactVersions{Latest: latest, Next: next}, nil
}

// ScanDependencies walks every context record in the project tree and
// returns the provider graph.
func (e *Engine) ScanDependencies(ctx context.Context) (*depgraph.Graph, error) {
	g, err := e.scanner.Scan(ctx)
	if err != nil {
		return nil, phaseErr(PhaseScan, err)
	}
	return g, nil
}

// resolveRequest validates the request and expands it into the
// propagation set. Asset and kit requests scan the tree for consumers
// first; shots and groups carry their own affected set.
func (e *Engine) resolveRequest(ctx context.Context, req Request) (propagate.Result, jobgraph.Settings, error) {
	zero := propagate.Result{}
	if req.Entity == nil {
		return zero, req.Settings, phaseErr(PhaseConfig, fmt.Errorf("request needs an entity"))
	}
	settings, err := e.effectiveSettings(req.Variant, req.Settings)
	if err != nil {
		return zero, settings, phaseErr(PhaseConfig, err)
	}

	target := req.Entity
	if g, ok := target.(entity.Group); ok {
		attached, err := e.project.AttachMembers(g)
		if err != nil {
			return zero, settings, phaseErr(PhaseConfig, err)
		}
		target = attached
	}

	var index propagate.ConsumerIndex
	if needsScan(target) {
		slog.Debug("scanning for consumers", "entity", target.URI().String())
		g, err := e.scanner.Scan(ctx)
		if err != nil {
			return zero, settings, phaseErr(PhaseScan, err)
		}
		index = g
	}

	res, err := e.resolver.Resolve(target, req.Department, index)
	if err != nil {
		return zero, settings, phaseErr(PhaseConfig, err)
	}
	return res, settings, nil
}

// resolveUpdate validates the update request and gathers the shot
// census and the department chain up to and including Through.
func (e *Engine) resolveUpdate(ctx context.Context, req UpdateRequest) ([]entity.Shot, []entity.Department, jobgraph.Settings, error) {
	settings, err := e.effectiveSettings("", req.Settings)
	if err != nil {
		return nil, nil, settings, phaseErr(PhaseConfig, err)
	}

	model := e.project.Model()
	through, ok := model.Lookup(entity.ScopeShots, req.Through)
	if !ok {
		return nil, nil, settings, phaseErr(PhaseConfig,
			fmt.Errorf("unknown department %q in scope %q", req.Through, entity.ScopeShots))
	}
	if !through.Enabled {
		return nil, nil, settings, phaseErr(PhaseConfig,
			fmt.Errorf("department %q is disabled", req.Through))
	}
	if !through.Publishable {
		return nil, nil, settings, phaseErr(PhaseConfig,
			fmt.Errorf("department %q is not publishable", req.Through))
	}

	position, _ := model.Position(entity.ScopeShots, req.Through)
	all := model.ListDepartments(entity.ScopeShots, true)
	chain := make([]entity.Department, 0, position+1)
	for _, d := range all[:position+1] {
		if d.Enabled && d.Publishable {
			chain = append(chain, d)
		}
	}

	shots := req.Shots
	if len(shots) == 0 {
		shots, err = e.artifacts.ListShotsWithWork()
		if err != nil {
			return nil, nil, settings, phaseErr(PhaseVersions, err)
		}
	}
	return shots, chain, settings, nil
}

// effectiveSettings folds the request variant in and fills pool and
// priority defaults from farm configuration. The user is required; the
// CLI defaults it to the invoking account before it reaches here.
func (e *Engine) effectiveSettings(variant string, s jobgraph.Settings) (jobgraph.Settings, error) {
	if variant != "" {
		s.Variant = variant
	}
	if s.Pool == "" {
		s.Pool = e.project.Farm.DefaultPool
	}
	if err := e.project.Farm.ValidatePool(s.Pool); err != nil {
		return s, err
	}
	if s.Priority == 0 {
		s.Priority = e.project.Farm.DefaultPriority
	}
	if s.Priority < 0 || s.Priority > 100 {
		return s, fmt.Errorf("priority %d out of range 0-100", s.Priority)
	}
	if s.User == "" {
		return s, fmt.Errorf("submission settings need a user")
	}
	return s, nil
}

func (e *Engine) buildGraph(res propagate.Result, settings jobgraph.Settings) (*jobgraph.Graph, error) {
	g, err := e.builder.Build(res, settings)
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	slog.Info("plan built",
		"entity", res.Entity.URI().String(),
		"department", res.Department.Name,
		"jobs", g.Len())
	return g, nil
}

func (e *Engine) buildUpdateGraph(shots []entity.Shot, departments []entity.Department, settings jobgraph.Settings, through string) (*jobgraph.Graph, error) {
	g, err := e.builder.BuildUpdate(shots, departments, settings)
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	slog.Info("update plan built",
		"through", through,
		"shots", len(shots),
		"jobs", g.Len())
	return g, nil
}

// batchName assembles "{project} {verb} {subject} {user} {timestamp}".
func (e *Engine) batchName(verb, subject, user string) string {
	ts := e.clock.Now().UTC().Format(batchTimestamp)
	return fmt.Sprintf("%s %s %s %s %s", e.project.Name, verb, subject, user, ts)
}

// submitAndRecord fingerprints the graph, spools it to the farm and
// writes the ledger row. A ledger failure after a successful submission
// logs the farm IDs before returning, since the jobs are already
// running and the operator needs them for manual reconciliation.
func (e *Engine) submitAndRecord(ctx context.Context, g *jobgraph.Graph, batchName, entityURI, department string, settings jobgraph.Settings) ([]farm.JobID, error) {
	fingerprint, err := g.Fingerprint()
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	batch, err := farm.FromGraph(batchName, g)
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}
	order, err := batch.TopologicalOrder()
	if err != nil {
		return nil, phaseErr(PhaseBuild, err)
	}

	ids, err := e.submitter.Submit(ctx, batch, e.spool)
	if err != nil {
		return nil, phaseErr(PhaseSubmit, err)
	}

	variant := settings.Variant
	if variant == "" {
		variant = entity.DefaultVariant
	}
	rec := store.Submission{
		Token:       e.tokens.Generate(),
		BatchName:   batchName,
		Entity:      entityURI,
		Department:  department,
		Variant:     variant,
		User:        settings.User,
		Fingerprint: fingerprint,
		SubmittedAt: e.clock.Now().UTC(),
		Jobs:        make([]store.SubmissionJob, len(order)),
	}
	for i, index := range order {
		j, _ := batch.Job(index)
		rec.Jobs[i] = store.SubmissionJob{
			Name:   j.Name,
			Kind:   string(j.Kind),
			FarmID: string(ids[i]),
		}
	}

	if _, err := e.meta.RecordSubmission(ctx, rec); err != nil {
		slog.Error("ledger write failed after submission",
			"token", rec.Token,
			"batch", batchName,
			"farm_ids", ids)
		return nil, phaseErr(PhaseLedger, err)
	}
	slog.Info("submission recorded",
		"token", rec.Token,
		"batch", batchName,
		"jobs", len(ids))
	return ids, nil
}

// needsScan reports whether resolution must consult the dependency
// graph. Assets and kits need their consumers discovered; shots and
// groups already name their affected set.
func needsScan(e entity.Entity) bool {
	return e.Kind() == entity.KindAsset || e.Kind() == entity.KindKit
}
