// Package farm adapts finished job graphs to the render farm's submission
// command. The core guarantees a structurally valid DAG; everything about
// scheduling, retries and dispatch stays on the farm side of this
// boundary.
package farm

import (
	"fmt"
	"sort"

	"github.com/framewell/callsheet/internal/jobgraph"
)

// JobID is the farm's identifier for a submitted job.
type JobID string

// JobIndex addresses a job within one batch.
type JobIndex int

// Batch collects jobs and index-based dependencies for one submission.
type Batch struct {
	name string
	jobs []jobgraph.Job
	deps map[JobIndex]map[JobIndex]bool
	refs map[JobIndex]map[JobIndex]bool
}

// NewBatch creates an empty batch with the display name the farm groups
// jobs under.
func NewBatch(name string) *Batch {
	return &Batch{
		name: name,
		deps: make(map[JobIndex]map[JobIndex]bool),
		refs: make(map[JobIndex]map[JobIndex]bool),
	}
}

// Name returns the batch display name.
func (b *Batch) Name() string {
	return b.name
}

// Len returns the number of jobs in the batch.
func (b *Batch) Len() int {
	return len(b.jobs)
}

// AddJob appends a job and returns its index. Farm constraints are
// checked here because the spool writer cannot express them as errors.
func (b *Batch) AddJob(j jobgraph.Job) (JobIndex, error) {
	if j.Name == "" {
		return 0, fmt.Errorf("job with empty name")
	}
	if j.Priority < 0 || j.Priority > 100 {
		return 0, fmt.Errorf("job %q: priority %d out of range 0-100", j.Name, j.Priority)
	}
	index := JobIndex(len(b.jobs))
	b.jobs = append(b.jobs, j)
	b.deps[index] = make(map[JobIndex]bool)
	b.refs[index] = make(map[JobIndex]bool)
	return index, nil
}

// Job returns the job at an index.
func (b *Batch) Job(index JobIndex) (jobgraph.Job, bool) {
	if index < 0 || int(index) >= len(b.jobs) {
		return jobgraph.Job{}, false
	}
	return b.jobs[index], true
}

// AddDependency records that job must not start before dependsOn has
// finished.
func (b *Batch) AddDependency(job, dependsOn JobIndex) error {
	if _, ok := b.Job(job); !ok {
		return fmt.Errorf("dependency from unknown job index %d", job)
	}
	if _, ok := b.Job(dependsOn); !ok {
		return fmt.Errorf("dependency on unknown job index %d", dependsOn)
	}
	if job == dependsOn {
		return fmt.Errorf("job %q depends on itself", b.jobs[job].Name)
	}
	b.deps[job][dependsOn] = true
	b.refs[dependsOn][job] = true
	return nil
}

// Deps returns a job's dependency indices in ascending order.
func (b *Batch) Deps(index JobIndex) []JobIndex {
	out := make([]JobIndex, 0, len(b.deps[index]))
	for dep := range b.deps[index] {
		out = append(out, dep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TopologicalOrder returns job indices with every job after its
// dependencies. Deterministic: among ready jobs, the lowest index goes
// first. A cycle is an error.
func (b *Batch) TopologicalOrder() ([]JobIndex, error) {
	remaining := make(map[JobIndex]int, len(b.jobs))
	for i := range b.jobs {
		remaining[JobIndex(i)] = len(b.deps[JobIndex(i)])
	}

	done := make(map[JobIndex]bool, len(b.jobs))
	order := make([]JobIndex, 0, len(b.jobs))
	for len(order) < len(b.jobs) {
		emitted := false
		for i := range b.jobs {
			index := JobIndex(i)
			if done[index] || remaining[index] > 0 {
				continue
			}
			order = append(order, index)
			done[index] = true
			emitted = true
			for ref := range b.refs[index] {
				remaining[ref]--
			}
		}
		if !emitted {
			var stuck []string
			for i, j := range b.jobs {
				if !done[JobIndex(i)] {
					stuck = append(stuck, j.Name)
				}
			}
			sort.Strings(stuck)
			return nil, fmt.Errorf("batch has a dependency cycle among: %v", stuck)
		}
	}
	return order, nil
}

// FromGraph loads a finished job graph into a batch, preserving the
// graph's insertion order and edge set.
func FromGraph(name string, g *jobgraph.Graph) (*Batch, error) {
	b := NewBatch(name)
	indices := make(map[string]JobIndex, g.Len())
	for _, j := range g.Jobs() {
		index, err := b.AddJob(j)
		if err != nil {
			return nil, err
		}
		indices[j.Name] = index
	}
	for _, edge := range g.Edges() {
		if err := b.AddDependency(indices[edge[0]], indices[edge[1]]); err != nil {
			return nil, err
		}
	}
	return b, nil
}
