package jobgraph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/framewell/callsheet/internal/timeline"
)

// Kind discriminates the job families a submission can contain.
type Kind string

const (
	// KindPublish republishes one department of one entity from its
	// latest workfile.
	KindPublish Kind = "publish"
	// KindBuild reassembles a shot's staged scene from the latest
	// published layers.
	KindBuild Kind = "build"
	// KindNotify posts a summary once everything else has finished.
	KindNotify Kind = "notify"
)

// Job is one schedulable unit of work. Entity and Department are
// rendering hints and payload inputs; the farm only cares about Name,
// Priority, Pool, Frames and the dependency edges held by the Graph.
type Job struct {
	Name       string
	Kind       Kind
	Entity     string // entity URI, empty for notify
	Department string // empty for build and notify
	Pool       string
	Priority   int
	Frames     timeline.BlockRange
	// Payload carries the kind-specific inputs the farm hands to the
	// executing plugin (workfile path, output directory, message text).
	Payload map[string]string
}

// Graph is a submission's job DAG. The zero value is not usable; call
// NewGraph.
type Graph struct {
	jobs  []Job
	index map[string]int
	deps  map[string][]string
}

// NewGraph returns an empty job graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int), deps: make(map[string][]string)}
}

// AddJob appends a job. Names must be non-empty and unique within the
// graph; a collision is a builder bug, not a runtime condition.
func (g *Graph) AddJob(j Job) error {
	if j.Name == "" {
		return fmt.Errorf("job with empty name")
	}
	switch j.Kind {
	case KindPublish, KindBuild, KindNotify:
	default:
		return fmt.Errorf("job %q: unknown kind %q", j.Name, j.Kind)
	}
	if _, exists := g.index[j.Name]; exists {
		return fmt.Errorf("duplicate job name %q", j.Name)
	}
	g.index[j.Name] = len(g.jobs)
	g.jobs = append(g.jobs, j)
	return nil
}

// AddDependency records that job name must not start before dependsOn has
// finished. Both jobs must already exist; referencing an absent job is a
// builder bug. Duplicate edges collapse to one.
func (g *Graph) AddDependency(name, dependsOn string) error {
	if _, ok := g.index[name]; !ok {
		return fmt.Errorf("dependency from unknown job %q", name)
	}
	if _, ok := g.index[dependsOn]; !ok {
		return fmt.Errorf("job %q depends on unknown job %q", name, dependsOn)
	}
	if name == dependsOn {
		return fmt.Errorf("job %q depends on itself", name)
	}
	for _, existing := range g.deps[name] {
		if existing == dependsOn {
			return nil
		}
	}
	g.deps[name] = append(g.deps[name], dependsOn)
	return nil
}

// Len returns the number of jobs.
func (g *Graph) Len() int {
	return len(g.jobs)
}

// Empty reports whether the graph holds no jobs. An empty graph is the
// "nothing was stale" success case.
func (g *Graph) Empty() bool {
	return len(g.jobs) == 0
}

// Jobs returns all jobs in insertion order.
func (g *Graph) Jobs() []Job {
	return append([]Job(nil), g.jobs...)
}

// Job looks up a job by name.
func (g *Graph) Job(name string) (Job, bool) {
	i, ok := g.index[name]
	if !ok {
		return Job{}, false
	}
	return g.jobs[i], true
}

// DependenciesOf returns the names a job waits on, in the order the edges
// were added.
func (g *Graph) DependenciesOf(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// HasEdge reports whether name depends on dependsOn.
func (g *Graph) HasEdge(name, dependsOn string) bool {
	for _, d := range g.deps[name] {
		if d == dependsOn {
			return true
		}
	}
	return false
}

// Edges returns every (job, dependency) pair sorted lexicographically.
func (g *Graph) Edges() [][2]string {
	var out [][2]string
	for _, j := range g.jobs {
		for _, dep := range g.deps[j.Name] {
			out = append(out, [2]string{j.Name, dep})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// TopologicalOrder returns the jobs in an order where every job follows
// all of its dependencies. The order is deterministic: among ready jobs,
// insertion order wins. A cycle returns an error naming the jobs left
// unordered.
func (g *Graph) TopologicalOrder() ([]Job, error) {
	remaining := make(map[string]int, len(g.jobs))
	for _, j := range g.jobs {
		remaining[j.Name] = len(g.deps[j.Name])
	}

	done := make(map[string]bool, len(g.jobs))
	out := make([]Job, 0, len(g.jobs))
	for len(out) < len(g.jobs) {
		emitted := false
		for _, j := range g.jobs {
			if done[j.Name] || remaining[j.Name] > 0 {
				continue
			}
			out = append(out, j)
			done[j.Name] = true
			emitted = true
			for _, other := range g.jobs {
				if done[other.Name] {
					continue
				}
				for _, dep := range g.deps[other.Name] {
					if dep == j.Name {
						remaining[other.Name]--
					}
				}
			}
		}
		if !emitted {
			var stuck []string
			for _, j := range g.jobs {
				if !done[j.Name] {
					stuck = append(stuck, j.Name)
				}
			}
			return nil, fmt.Errorf("job graph has a cycle among: %s", strings.Join(stuck, ", "))
		}
	}
	return out, nil
}

// Render writes a human-readable listing of the graph in topological
// order: one line per job with its dependencies, then payload keys
// indented beneath. Used by the dry-run command and golden tests.
func (g *Graph) Render(w io.Writer) error {
	if g.Empty() {
		_, err := fmt.Fprintln(w, "no jobs")
		return err
	}
	ordered, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, j := range ordered {
		line := fmt.Sprintf("%-8s %s", j.Kind, j.Name)
		if deps := g.deps[j.Name]; len(deps) > 0 {
			sorted := append([]string(nil), deps...)
			sort.Strings(sorted)
			line += "  <- " + strings.Join(sorted, ", ")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		keys := make([]string, 0, len(j.Payload))
		for k := range j.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "    %s = %s\n", k, j.Payload[k]); err != nil {
				return err
			}
		}
	}
	return nil
}
