package jobgraph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/propagate"
	"github.com/framewell/callsheet/internal/timeline"
	"github.com/framewell/callsheet/internal/versions"
)

// NotifyPriority outranks regular work so the summary posts promptly once
// its dependencies clear.
const NotifyPriority = 90

// publishPriorityBoost schedules publishes ahead of same-priority builds
// already on the farm.
const publishPriorityBoost = 5

// Settings carries the per-request knobs every job inherits.
type Settings struct {
	Pool     string
	Priority int
	// Variant selects the artifact variant being republished; empty means
	// the default variant.
	Variant string
	User    string
	// Frames overrides the per-entity frame range when non-zero. When
	// zero, each job takes its entity's configured range.
	Frames timeline.BlockRange
}

func (s Settings) variant() string {
	if s.Variant == "" {
		return entity.DefaultVariant
	}
	return s.Variant
}

// FrameSource supplies the configured frame range of an entity. Project
// configuration implements it; jobs fail construction when an entity they
// cover has no range.
type FrameSource interface {
	FrameRange(e entity.Entity) (timeline.BlockRange, bool, error)
}

// Builder turns a resolved propagation set into a job graph. It reads the
// version store for staleness and workfiles but never writes; building
// twice against an unchanged tree yields identical graphs.
type Builder struct {
	store  *versions.Store
	frames FrameSource
}

// NewBuilder creates a builder over a version store and frame range
// source.
func NewBuilder(store *versions.Store, frames FrameSource) *Builder {
	return &Builder{store: store, frames: frames}
}

// Build creates the submission graph for one propagation: staleness-gated
// publish chains for the requested entity, one build job per affected
// shot once any publish exists, and a terminal notify job. An empty graph
// means nothing was stale and is success, not an error.
func (b *Builder) Build(res propagate.Result, settings Settings) (*Graph, error) {
	g := NewGraph()

	publishNames, err := b.buildPublishChain(g, res, settings)
	if err != nil {
		return nil, err
	}

	// Builds reassemble staged scenes from the freshly published layers.
	// With no publishes there is nothing to reassemble.
	var buildNames []string
	if len(publishNames) > 0 {
		for _, shot := range res.AffectedShots {
			name, err := b.addBuildJob(g, shot, settings)
			if err != nil {
				return nil, err
			}
			for _, dep := range publishNames {
				if err := g.AddDependency(name, dep); err != nil {
					return nil, err
				}
			}
			buildNames = append(buildNames, name)
		}
	}

	if !g.Empty() {
		if err := b.addNotifyJob(g, res, settings, append(publishNames, buildNames...)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// buildPublishChain walks the departments to publish in pipeline order
// and emits staleness-gated publish jobs. Republishing a department
// infects everything after it in the same chain; infection crosses
// between a group and its members because a group-level publish covers
// every member. Chain edges run along consecutive non-independent stages,
// preferring the same target's previous job and falling back to the whole
// previous stage (the group job a member chain descends from).
// Independent departments take no incoming edges and are joined again at
// the build stage.
func (b *Builder) buildPublishChain(g *Graph, res propagate.Result, settings Settings) ([]string, error) {
	group, isGroup := res.Entity.(entity.Group)
	groupKey := ""
	if isGroup {
		groupKey = entity.Key(group)
	}

	infected := make(map[string]bool)
	isInfected := func(target entity.Entity) bool {
		key := entity.Key(target)
		if infected[key] {
			return true
		}
		if !isGroup {
			return false
		}
		if key == groupKey {
			for _, m := range group.Members {
				if infected[entity.Key(m)] {
					return true
				}
			}
			return false
		}
		return infected[groupKey]
	}

	var publishNames []string
	prevByTarget := make(map[string]string)
	var prevStage []string

	for _, dept := range res.DepartmentsToPublish() {
		targets, err := b.stageTargets(res.Entity, dept.Name)
		if err != nil {
			return nil, err
		}

		stageByTarget := make(map[string]string)
		var stageJobs []string
		var created []string

		for _, target := range targets {
			key := versions.Key{Entity: target, Variant: settings.variant(), Department: dept.Name}

			// Independence means prior republishes do not invalidate this
			// department, so only its own staleness can trigger it.
			forced := !dept.Independent && isInfected(target)
			if !forced {
				stale, err := b.store.IsStale(key)
				if err != nil {
					return nil, err
				}
				if !stale {
					continue
				}
			}

			workfile, ok, err := b.store.LatestWorkfile(target, dept.Name)
			if err != nil {
				return nil, err
			}
			if !ok {
				slog.Info("no workfile, skipping department",
					"entity", target.URI().String(),
					"department", dept.Name)
				continue
			}

			job, err := b.publishJob(target, dept, key, workfile, settings)
			if err != nil {
				return nil, err
			}
			if err := g.AddJob(job); err != nil {
				return nil, err
			}

			if !dept.Independent {
				deps := prevStage
				if prev, ok := prevByTarget[entity.Key(target)]; ok {
					deps = []string{prev}
				}
				for _, dep := range deps {
					if err := g.AddDependency(job.Name, dep); err != nil {
						return nil, err
					}
				}
				stageByTarget[entity.Key(target)] = job.Name
				stageJobs = append(stageJobs, job.Name)
			}

			publishNames = append(publishNames, job.Name)
			created = append(created, entity.Key(target))
		}

		// Infection applies from the next stage on; siblings within one
		// stage do not force each other.
		for _, key := range created {
			infected[key] = true
		}
		if len(stageJobs) > 0 {
			prevByTarget = stageByTarget
			prevStage = stageJobs
		}
	}
	return publishNames, nil
}

// stageTargets decides which entities one department stage publishes.
// Groups publish at group level when a group workfile exists for the
// department, otherwise the stage splits into the member shots. Group and
// member workfiles are mutually exclusive per department.
func (b *Builder) stageTargets(e entity.Entity, department string) ([]entity.Entity, error) {
	group, isGroup := e.(entity.Group)
	if !isGroup {
		return []entity.Entity{e}, nil
	}
	_, hasGroupWorkfile, err := b.store.LatestWorkfile(group, department)
	if err != nil {
		return nil, err
	}
	if hasGroupWorkfile {
		return []entity.Entity{group}, nil
	}
	out := make([]entity.Entity, 0, len(group.Members))
	for _, m := range group.Members {
		out = append(out, m)
	}
	return out, nil
}

func (b *Builder) publishJob(target entity.Entity, dept entity.Department, key versions.Key, workfile versions.Workfile, settings Settings) (Job, error) {
	frames, err := b.frameRange(target, settings)
	if err != nil {
		return Job{}, err
	}
	next, err := b.store.NextVersion(key)
	if err != nil {
		return Job{}, err
	}
	priority := settings.Priority + publishPriorityBoost
	if priority > 100 {
		priority = 100
	}
	return Job{
		Name:       publishJobName(target, dept.Name),
		Kind:       KindPublish,
		Entity:     target.URI().String(),
		Department: dept.Name,
		Pool:       settings.Pool,
		Priority:   priority,
		Frames:     frames,
		Payload: map[string]string{
			"workfile": workfile.Path,
			"variant":  key.Variant,
			"version":  next.String(),
			"output":   b.store.VersionDir(key, next),
		},
	}, nil
}

func (b *Builder) addBuildJob(g *Graph, shot entity.Shot, settings Settings) (string, error) {
	frames, err := b.frameRange(shot, settings)
	if err != nil {
		return "", err
	}
	key := versions.Key{Entity: shot, Variant: settings.variant(), Department: "staged"}
	next, err := b.store.NextVersion(key)
	if err != nil {
		return "", err
	}
	job := Job{
		Name:     buildJobName(shot),
		Kind:     KindBuild,
		Entity:   shot.URI().String(),
		Pool:     settings.Pool,
		Priority: settings.Priority,
		Frames:   frames,
		Payload: map[string]string{
			"variant": key.Variant,
			"output":  b.store.VersionDir(key, next),
		},
	}
	if err := g.AddJob(job); err != nil {
		return "", err
	}
	return job.Name, nil
}

func (b *Builder) addNotifyJob(g *Graph, res propagate.Result, settings Settings, deps []string) error {
	message := fmt.Sprintf("Propagated %s", res.Entity.URI())
	if n := len(res.Downstream); n > 0 {
		message += fmt.Sprintf(" -> %d departments", n)
	}
	if n := len(res.AffectedShots); n > 0 {
		message += fmt.Sprintf(" -> %d shots", n)
	}
	job := Job{
		Name:     "notify",
		Kind:     KindNotify,
		Pool:     settings.Pool,
		Priority: NotifyPriority,
		Payload: map[string]string{
			"channel": "exports",
			"message": message,
			"user":    settings.User,
		},
	}
	if err := g.AddJob(job); err != nil {
		return err
	}
	for _, dep := range deps {
		if err := g.AddDependency(job.Name, dep); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) frameRange(e entity.Entity, settings Settings) (timeline.BlockRange, error) {
	if !settings.Frames.IsZero() {
		return settings.Frames, nil
	}
	frames, ok, err := b.frames.FrameRange(e)
	if err != nil {
		return timeline.BlockRange{}, err
	}
	if !ok {
		return timeline.BlockRange{}, fmt.Errorf("no frame range configured for %s", e.URI())
	}
	return frames, nil
}

// sanitizePath maps an entity path into the job-name alphabet: lowercase
// with every non-alphanumeric collapsed to an underscore.
func sanitizePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range strings.ToLower(path) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func publishJobName(e entity.Entity, department string) string {
	return fmt.Sprintf("publish_%s_%s_%s", e.Kind(), sanitizePath(e.Path()), department)
}

func buildJobName(s entity.Shot) string {
	return fmt.Sprintf("build_shot_%s", sanitizePath(s.Path()))
}
