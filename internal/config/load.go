package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadMode controls how validation errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error code constants for configuration loading.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeProject    = "E010" // Missing/invalid project block
	ErrCodeDepartment = "E020" // Invalid department definition
	ErrCodeGroup      = "E030" // Invalid group definition
	ErrCodeFarm       = "E040" // Invalid farm definition
)

// LoadError is a coded error produced while loading configuration.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads every CUE file in dir and compiles the unified value into a
// Project. In LoadModeFailFast the first error is returned alone; in
// LoadModeCollectAll every independent section error is gathered.
func Load(dir string, mode LoadMode) (*Project, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("stat %s: %v", dir, err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config path is not a directory: %s", dir)}}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("reading %s: %v", dir, err)}}
	}
	cueFiles := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".cue" {
			cueFiles++
		}
	}
	if cueFiles == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	project, compileErrs := CompileProject(value)
	if len(compileErrs) == 0 {
		return project, nil
	}

	loadErrs := make([]error, 0, len(compileErrs))
	for _, cerr := range compileErrs {
		loadErrs = append(loadErrs, convertCompileError(cerr))
		if mode == LoadModeFailFast {
			break
		}
	}
	return nil, loadErrs
}

// convertCompileError maps a CompileError to a coded LoadError.
func convertCompileError(err error) error {
	cerr, ok := err.(*CompileError)
	if !ok {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return &LoadError{
		Code:    mapFieldToErrorCode(cerr.Field),
		Message: fmt.Sprintf("%s: %s", cerr.Field, cerr.Message),
		Pos:     cerr.Pos,
	}
}

// mapFieldToErrorCode assigns a stable code by configuration section.
func mapFieldToErrorCode(field string) string {
	switch {
	case field == "project" || strings.HasPrefix(field, "project."):
		return ErrCodeProject
	case field == "departments" || strings.HasPrefix(field, "departments."):
		return ErrCodeDepartment
	case field == "groups" || strings.HasPrefix(field, "groups."):
		return ErrCodeGroup
	case field == "farm" || strings.HasPrefix(field, "farm."):
		return ErrCodeFarm
	default:
		return ErrCodeGeneric
	}
}
