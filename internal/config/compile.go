package config

import (
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/framewell/callsheet/internal/entity"
)

// CompileError is a positioned configuration fault.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileProject parses the unified CUE value of a configuration directory
// into a Project. The value is expected to carry top-level "project",
// "departments" and optionally "groups" and "farm" fields.
func CompileProject(v cue.Value) (*Project, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var errs []error
	p := &Project{
		Departments: make(map[entity.Scope][]entity.Department),
		groupIndex:  make(map[string]int),
	}

	name, err := compileProjectName(v)
	if err != nil {
		errs = append(errs, err)
	}
	p.Name = name

	departments, err := compileDepartments(v)
	if err != nil {
		errs = append(errs, err)
	} else {
		p.Departments = departments
	}

	groups, index, err := compileGroups(v)
	if err != nil {
		errs = append(errs, err)
	} else {
		p.Groups = groups
		p.groupIndex = index
	}

	farm, err := compileFarm(v)
	if err != nil {
		errs = append(errs, err)
	} else {
		p.Farm = farm
	}

	if len(errs) > 0 {
		return nil, errs
	}

	model, err := entity.NewModel(p.Departments)
	if err != nil {
		return nil, []error{&CompileError{Field: "departments", Message: err.Error()}}
	}
	p.model = model
	return p, nil
}

func compileProjectName(v cue.Value) (string, error) {
	projectVal := v.LookupPath(cue.ParsePath("project"))
	if !projectVal.Exists() {
		return "", &CompileError{Field: "project", Message: "project is required", Pos: v.Pos()}
	}
	nameVal := projectVal.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return "", &CompileError{Field: "project.name", Message: "project name is required", Pos: projectVal.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if name == "" {
		return "", &CompileError{Field: "project.name", Message: "project name must be non-empty", Pos: nameVal.Pos()}
	}
	return name, nil
}

func compileDepartments(v cue.Value) (map[entity.Scope][]entity.Department, error) {
	departmentsVal := v.LookupPath(cue.ParsePath("departments"))
	if !departmentsVal.Exists() {
		return nil, &CompileError{Field: "departments", Message: "departments are required", Pos: v.Pos()}
	}

	out := make(map[entity.Scope][]entity.Department)
	iter, err := departmentsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		scope, scopeErr := entity.ParseScope(iter.Label())
		if scopeErr != nil {
			return nil, &CompileError{
				Field:   "departments." + iter.Label(),
				Message: scopeErr.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		list, listErr := compileDepartmentList(scope, iter.Value())
		if listErr != nil {
			return nil, listErr
		}
		out[scope] = list
	}
	return out, nil
}

func compileDepartmentList(scope entity.Scope, v cue.Value) ([]entity.Department, error) {
	listIter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var departments []entity.Department
	for listIter.Next() {
		d, err := compileDepartment(scope, listIter.Value())
		if err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	if len(departments) == 0 {
		return nil, &CompileError{
			Field:   fmt.Sprintf("departments.%s", scope),
			Message: "at least one department is required",
			Pos:     v.Pos(),
		}
	}
	return departments, nil
}

func compileDepartment(scope entity.Scope, v cue.Value) (entity.Department, error) {
	d := entity.Department{
		Scope:       scope,
		Publishable: true,
		Enabled:     true,
	}

	fields, err := v.Fields()
	if err != nil {
		return d, formatCUEError(err)
	}
	for fields.Next() {
		field := fields.Label()
		value := fields.Value()
		switch field {
		case "name":
			name, err := value.String()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.Name = name
		case "independent":
			b, err := value.Bool()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.Independent = b
		case "publishable":
			b, err := value.Bool()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.Publishable = b
		case "renderable":
			b, err := value.Bool()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.Renderable = b
		case "enabled":
			b, err := value.Bool()
			if err != nil {
				return d, formatCUEError(err)
			}
			d.Enabled = b
		default:
			return d, &CompileError{
				Field:   fmt.Sprintf("departments.%s.%s", scope, field),
				Message: fmt.Sprintf("unknown department field %q", field),
				Pos:     value.Pos(),
			}
		}
	}
	if d.Name == "" {
		return d, &CompileError{
			Field:   fmt.Sprintf("departments.%s", scope),
			Message: "department name is required",
			Pos:     v.Pos(),
		}
	}
	return d, nil
}

func compileGroups(v cue.Value) ([]Group, map[string]int, error) {
	index := make(map[string]int)
	groupsVal := v.LookupPath(cue.ParsePath("groups"))
	if !groupsVal.Exists() {
		return nil, index, nil
	}

	listIter, err := groupsVal.List()
	if err != nil {
		return nil, nil, formatCUEError(err)
	}

	var groups []Group
	for listIter.Next() {
		g, err := compileGroup(listIter.Value())
		if err != nil {
			return nil, nil, err
		}
		if _, dup := index[g.Name]; dup {
			return nil, nil, &CompileError{
				Field:   "groups",
				Message: fmt.Sprintf("duplicate group %q", g.Name),
				Pos:     listIter.Value().Pos(),
			}
		}
		index[g.Name] = len(groups)
		groups = append(groups, g)
	}
	return groups, index, nil
}

func compileGroup(v cue.Value) (Group, error) {
	var g Group

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return g, &CompileError{Field: "groups.name", Message: "group name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return g, formatCUEError(err)
	}
	g.Name = name

	membersVal := v.LookupPath(cue.ParsePath("members"))
	if !membersVal.Exists() {
		return g, &CompileError{
			Field:   fmt.Sprintf("groups.%s.members", name),
			Message: "group members are required",
			Pos:     v.Pos(),
		}
	}
	memberIter, err := membersVal.List()
	if err != nil {
		return g, formatCUEError(err)
	}
	for memberIter.Next() {
		raw, err := memberIter.Value().String()
		if err != nil {
			return g, formatCUEError(err)
		}
		member, err := entity.ParseString(raw)
		if err != nil {
			return g, &CompileError{
				Field:   fmt.Sprintf("groups.%s.members", name),
				Message: err.Error(),
				Pos:     memberIter.Value().Pos(),
			}
		}
		shot, ok := member.(entity.Shot)
		if !ok {
			return g, &CompileError{
				Field:   fmt.Sprintf("groups.%s.members", name),
				Message: fmt.Sprintf("group members must be shots, got %s %s", member.Kind(), raw),
				Pos:     memberIter.Value().Pos(),
			}
		}
		g.Members = append(g.Members, shot)
	}
	if len(g.Members) == 0 {
		return g, &CompileError{
			Field:   fmt.Sprintf("groups.%s.members", name),
			Message: "group must have at least one member",
			Pos:     membersVal.Pos(),
		}
	}
	return g, nil
}

func compileFarm(v cue.Value) (Farm, error) {
	farm := Farm{
		Pools:           []string{"general"},
		Priorities:      map[string]int{},
		DefaultPool:     "general",
		DefaultPriority: 50,
		ChunkSize:       1,
	}

	farmVal := v.LookupPath(cue.ParsePath("farm"))
	if !farmVal.Exists() {
		return farm, nil
	}

	if poolsVal := farmVal.LookupPath(cue.ParsePath("pools")); poolsVal.Exists() {
		iter, err := poolsVal.List()
		if err != nil {
			return farm, formatCUEError(err)
		}
		var pools []string
		for iter.Next() {
			pool, err := iter.Value().String()
			if err != nil {
				return farm, formatCUEError(err)
			}
			pools = append(pools, pool)
		}
		if len(pools) == 0 {
			return farm, &CompileError{Field: "farm.pools", Message: "pools must be non-empty", Pos: poolsVal.Pos()}
		}
		farm.Pools = pools
		farm.DefaultPool = pools[0]
	}

	if prioVal := farmVal.LookupPath(cue.ParsePath("priorities")); prioVal.Exists() {
		iter, err := prioVal.Fields()
		if err != nil {
			return farm, formatCUEError(err)
		}
		for iter.Next() {
			n, err := iter.Value().Int64()
			if err != nil {
				return farm, formatCUEError(err)
			}
			if n < 0 || n > 100 {
				return farm, &CompileError{
					Field:   "farm.priorities." + iter.Label(),
					Message: fmt.Sprintf("priority %d out of range 0-100", n),
					Pos:     iter.Value().Pos(),
				}
			}
			farm.Priorities[iter.Label()] = int(n)
		}
	}

	if dpVal := farmVal.LookupPath(cue.ParsePath("defaultPool")); dpVal.Exists() {
		pool, err := dpVal.String()
		if err != nil {
			return farm, formatCUEError(err)
		}
		farm.DefaultPool = pool
	}
	if err := farm.ValidatePool(farm.DefaultPool); err != nil {
		return farm, &CompileError{Field: "farm.defaultPool", Message: err.Error(), Pos: farmVal.Pos()}
	}

	if dprioVal := farmVal.LookupPath(cue.ParsePath("defaultPriority")); dprioVal.Exists() {
		n, err := dprioVal.Int64()
		if err != nil {
			return farm, formatCUEError(err)
		}
		if n < 0 || n > 100 {
			return farm, &CompileError{
				Field:   "farm.defaultPriority",
				Message: fmt.Sprintf("priority %d out of range 0-100", n),
				Pos:     dprioVal.Pos(),
			}
		}
		farm.DefaultPriority = int(n)
	}

	if chunkVal := farmVal.LookupPath(cue.ParsePath("chunkSize")); chunkVal.Exists() {
		n, err := chunkVal.Int64()
		if err != nil {
			return farm, formatCUEError(err)
		}
		if n < 1 {
			return farm, &CompileError{
				Field:   "farm.chunkSize",
				Message: fmt.Sprintf("chunk size %d must be at least 1", n),
				Pos:     chunkVal.Pos(),
			}
		}
		farm.ChunkSize = int(n)
	}

	return farm, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
