package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/framewell/callsheet/internal/entity"
)

// Scenario is one declarative planning case: a department model, a
// fixture tree and a request, with the expected graph.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Departments lists the pipeline per scope ("assets", "shots",
	// "kits"), in order.
	Departments map[string][]DepartmentSpec `yaml:"departments"`

	// Groups are authored shot groups available to group requests.
	Groups []GroupSpec `yaml:"groups,omitempty"`

	// Frames is the block range every entity reports. Defaults to
	// "1001-1100x1".
	Frames string `yaml:"frames,omitempty"`

	// Entities seed the fixture tree.
	Entities []EntitySpec `yaml:"entities,omitempty"`

	// Request is the planning request under test.
	Request RequestSpec `yaml:"request"`

	// Expect describes the graph the plan must produce.
	Expect ExpectSpec `yaml:"expect,omitempty"`
}

// DepartmentSpec is one pipeline stage.
type DepartmentSpec struct {
	Name        string `yaml:"name"`
	Independent bool   `yaml:"independent,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty"`
}

// GroupSpec is an authored group; members are shot URIs.
type GroupSpec struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// EntitySpec seeds one entity's artifacts.
type EntitySpec struct {
	URI       string         `yaml:"uri"`
	Artifacts []ArtifactSpec `yaml:"artifacts"`
}

// ArtifactSpec seeds one (entity, department) artifact. The offsets
// are minutes relative to the scenario base time; an absent offset
// means the file is absent. A workfile newer than its export makes the
// artifact stale.
type ArtifactSpec struct {
	Department string `yaml:"department"`
	// Variant defaults to the default variant.
	Variant    string `yaml:"variant,omitempty"`
	WorkfileAt *int   `yaml:"workfile_at,omitempty"`
	ExportAt   *int   `yaml:"export_at,omitempty"`
	// Inputs are written into the export's context record, feeding the
	// dependency scanner.
	Inputs []InputSpec `yaml:"inputs,omitempty"`
}

// InputSpec is one upstream reference in a context record. An empty
// version means the reference is symbolic.
type InputSpec struct {
	Entity     string `yaml:"entity"`
	Department string `yaml:"department"`
	Version    string `yaml:"version,omitempty"`
}

// RequestSpec selects the flow: entity+department plans a propagation,
// through plans an update. Shots narrows the update; empty means every
// shot with workfiles.
type RequestSpec struct {
	Entity     string   `yaml:"entity,omitempty"`
	Department string   `yaml:"department,omitempty"`
	Through    string   `yaml:"through,omitempty"`
	Shots      []string `yaml:"shots,omitempty"`
	Variant    string   `yaml:"variant,omitempty"`
	User       string   `yaml:"user,omitempty"`
}

// ExpectSpec describes the planned graph.
type ExpectSpec struct {
	// Jobs is the exact job name list in insertion order.
	Jobs []string `yaml:"jobs,omitempty"`
	// Edges that must be present; others may exist too.
	Edges []EdgeSpec `yaml:"edges,omitempty"`
	// Empty asserts a zero-work plan and excludes the other fields.
	Empty bool `yaml:"empty,omitempty"`
}

// EdgeSpec is one required dependency edge.
type EdgeSpec struct {
	Job       string `yaml:"job"`
	DependsOn string `yaml:"depends_on"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently relaxing the
// scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Departments) == 0 {
		return fmt.Errorf("departments are required")
	}
	for scope, specs := range s.Departments {
		if _, err := entity.ParseScope(scope); err != nil {
			return fmt.Errorf("departments: %w", err)
		}
		if len(specs) == 0 {
			return fmt.Errorf("departments.%s: at least one department is required", scope)
		}
		for i, d := range specs {
			if d.Name == "" {
				return fmt.Errorf("departments.%s[%d]: name is required", scope, i)
			}
		}
	}

	for i, g := range s.Groups {
		if g.Name == "" {
			return fmt.Errorf("groups[%d]: name is required", i)
		}
		if len(g.Members) == 0 {
			return fmt.Errorf("groups[%d]: members are required", i)
		}
		for _, m := range g.Members {
			if err := validateShotURI(m); err != nil {
				return fmt.Errorf("groups[%d]: %w", i, err)
			}
		}
	}

	for i, espec := range s.Entities {
		if espec.URI == "" {
			return fmt.Errorf("entities[%d]: uri is required", i)
		}
		if _, err := entity.ParseString(espec.URI); err != nil {
			return fmt.Errorf("entities[%d]: %w", i, err)
		}
		if len(espec.Artifacts) == 0 {
			return fmt.Errorf("entities[%d]: artifacts are required", i)
		}
		for j, a := range espec.Artifacts {
			if a.Department == "" {
				return fmt.Errorf("entities[%d].artifacts[%d]: department is required", i, j)
			}
			if a.WorkfileAt == nil && a.ExportAt == nil {
				return fmt.Errorf("entities[%d].artifacts[%d]: workfile_at or export_at is required", i, j)
			}
			if len(a.Inputs) > 0 && a.ExportAt == nil {
				return fmt.Errorf("entities[%d].artifacts[%d]: inputs need an export", i, j)
			}
		}
	}

	switch {
	case s.Request.Through != "":
		if s.Request.Entity != "" || s.Request.Department != "" {
			return fmt.Errorf("request: through excludes entity and department")
		}
		for _, raw := range s.Request.Shots {
			if err := validateShotURI(raw); err != nil {
				return fmt.Errorf("request: %w", err)
			}
		}
	case s.Request.Entity == "" || s.Request.Department == "":
		return fmt.Errorf("request: entity and department are required unless through is set")
	case len(s.Request.Shots) > 0:
		return fmt.Errorf("request: shots only apply to the update flow")
	}

	if s.Expect.Empty && (len(s.Expect.Jobs) > 0 || len(s.Expect.Edges) > 0) {
		return fmt.Errorf("expect: empty excludes jobs and edges")
	}
	for i, e := range s.Expect.Edges {
		if e.Job == "" || e.DependsOn == "" {
			return fmt.Errorf("expect.edges[%d]: job and depends_on are required", i)
		}
	}
	return nil
}

func validateShotURI(raw string) error {
	e, err := entity.ParseString(raw)
	if err != nil {
		return err
	}
	if _, ok := e.(entity.Shot); !ok {
		return fmt.Errorf("%s is not a shot", raw)
	}
	return nil
}
