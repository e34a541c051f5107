package cli

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/config"
	"github.com/framewell/callsheet/internal/engine"
	"github.com/framewell/callsheet/internal/entity"
	"github.com/framewell/callsheet/internal/farm"
	"github.com/framewell/callsheet/internal/jobgraph"
	"github.com/framewell/callsheet/internal/store"
	"github.com/framewell/callsheet/internal/timeline"
	"github.com/framewell/callsheet/internal/versions"
)

func (o *RootOptions) configDir() string {
	if o.ConfigDir != "" {
		return o.ConfigDir
	}
	return filepath.Join(o.Root, "config")
}

func (o *RootOptions) storePath() string {
	if o.StorePath != "" {
		return o.StorePath
	}
	return filepath.Join(o.Root, "callsheet.db")
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadProject compiles project configuration. Failures are usage
// errors: nothing has happened yet.
func (o *RootOptions) loadProject() (*config.Project, error) {
	project, errs := config.Load(o.configDir(), config.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitUsage, "loading configuration", errs[0])
	}
	return project, nil
}

func (o *RootOptions) artifactStore() *versions.Store {
	return versions.NewStore(o.Root)
}

func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.storePath())
	if err != nil {
		return nil, WrapExitError(ExitUsage, "opening metadata store", err)
	}
	return st, nil
}

// newEngine wires the full engine for the planning and submission
// commands. The caller closes the returned store.
func newEngine(o *RootOptions, project *config.Project, farmCmd []string, spoolRoot string) (*engine.Engine, *store.Store, error) {
	st, err := o.openStore()
	if err != nil {
		return nil, nil, err
	}
	submitter := farm.NewSpoolSubmitter(farm.CommandRunner{Command: farmCmd}, project.Farm.ChunkSize)
	var opts []engine.Option
	if spoolRoot != "" {
		opts = append(opts, engine.WithSpoolRoot(spoolRoot))
	}
	return engine.New(project, o.artifactStore(), st, submitter, opts...), st, nil
}

func parseEntityArg(raw string) (entity.Entity, error) {
	e, err := entity.ParseString(raw)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "parsing entity", err)
	}
	return e, nil
}

// settingsFlags are the submission knobs shared by plan, submit and
// update.
type settingsFlags struct {
	Pool     string
	Priority string
	Frames   string
	User     string
}

func addSettingsFlags(cmd *cobra.Command, f *settingsFlags) {
	cmd.Flags().StringVar(&f.Pool, "pool", "", "farm pool (default from configuration)")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority preset or 0-100 (default from configuration)")
	cmd.Flags().StringVar(&f.Frames, "frames", "", "frame range override, e.g. 1001-1100x1")
	cmd.Flags().StringVar(&f.User, "user", "", "submitting user (default current account)")
}

// settings folds the flags into submission settings, resolving the
// priority preset against farm configuration.
func (f settingsFlags) settings(project *config.Project) (jobgraph.Settings, error) {
	s := jobgraph.Settings{Pool: f.Pool, User: f.User}
	priority, err := project.Farm.ResolvePriority(f.Priority)
	if err != nil {
		return s, WrapExitError(ExitUsage, "resolving priority", err)
	}
	s.Priority = priority
	if f.Frames != "" {
		frames, err := timeline.ParseBlockRange(f.Frames)
		if err != nil {
			return s, WrapExitError(ExitUsage, "parsing frames", err)
		}
		s.Frames = frames
	}
	if s.User == "" {
		s.User = currentUser()
	}
	return s, nil
}

// currentUser names the invoking account. Submissions are attributed
// to it when --user is not given.
func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// errorCode picks the envelope code for an error: configuration codes
// pass through, engine failures carry their phase name.
func errorCode(err error) string {
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	if phase, ok := engine.FailedPhase(err); ok {
		return string(phase)
	}
	return config.ErrCodeGeneric
}

// exitCodeFor maps an engine failure to an exit code: configuration
// phase failures are usage errors, everything else is operational.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if phase, ok := engine.FailedPhase(err); ok && phase == engine.PhaseConfig {
		return ExitUsage
	}
	return ExitFailure
}

// failure emits err in the configured format and converts it to an
// ExitError with the right code.
func failure(f *OutputFormatter, err error) error {
	return f.Error(exitCodeFor(err), errorCode(err), err.Error(), nil)
}

type jobResult struct {
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	Entity     string            `json:"entity,omitempty"`
	Department string            `json:"department,omitempty"`
	Pool       string            `json:"pool"`
	Priority   int               `json:"priority"`
	Frames     string            `json:"frames,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
}

type graphResult struct {
	Jobs        []jobResult `json:"jobs"`
	Fingerprint string      `json:"fingerprint,omitempty"`
}

// buildGraphResult flattens a job graph for the JSON envelope. Jobs
// appear in topological order, matching the text rendering.
func buildGraphResult(g *jobgraph.Graph) (graphResult, error) {
	ordered, err := g.TopologicalOrder()
	if err != nil {
		return graphResult{}, err
	}
	out := graphResult{Jobs: make([]jobResult, 0, len(ordered))}
	for _, j := range ordered {
		jr := jobResult{
			Name:       j.Name,
			Kind:       string(j.Kind),
			Entity:     j.Entity,
			Department: j.Department,
			Pool:       j.Pool,
			Priority:   j.Priority,
			DependsOn:  g.DependenciesOf(j.Name),
			Payload:    j.Payload,
		}
		sort.Strings(jr.DependsOn)
		if !j.Frames.IsZero() {
			jr.Frames = j.Frames.String()
		}
		out.Jobs = append(out.Jobs, jr)
	}
	if !g.Empty() {
		fp, err := g.Fingerprint()
		if err != nil {
			return graphResult{}, err
		}
		out.Fingerprint = fp
	}
	return out, nil
}

// emitGraph writes a planned graph in the configured format.
func emitGraph(f *OutputFormatter, g *jobgraph.Graph) error {
	if f.JSON() {
		result, err := buildGraphResult(g)
		if err != nil {
			return failure(f, err)
		}
		return f.Success(result)
	}
	return g.Render(f.Writer)
}
