package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewell/callsheet/internal/config"
)

type validationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

type validationResult struct {
	Valid  bool              `json:"valid"`
	Errors []validationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate project configuration without planning",
		Long: `Validate compiles the project's CUE configuration and reports every
problem it can find: malformed departments, colliding pipeline
positions, group members that do not exist, farm defaults out of
range. Nothing else is touched.`,
		Example: `  callsheet validate
  callsheet validate --config ./config --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	dir := opts.configDir()
	f.VerboseLog("validating configuration in %s", dir)
	project, errs := config.Load(dir, config.LoadModeCollectAll)
	if project != nil {
		f.VerboseLog("compiled %d scopes, %d groups", len(project.Departments), len(project.Groups))
		return outputValidateSuccess(f)
	}

	issues := make([]validationIssue, 0, len(errs))
	machinery := false
	for _, err := range errs {
		var loadErr *config.LoadError
		if !errors.As(err, &loadErr) {
			issues = append(issues, validationIssue{Code: config.ErrCodeGeneric, Message: err.Error()})
			continue
		}
		issue := validationIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.File = loadErr.Pos.Filename()
			issue.Line = loadErr.Pos.Line()
		}
		if isLoadMachineryCode(loadErr.Code) {
			machinery = true
		}
		issues = append(issues, issue)
	}

	// Unreadable configuration is a usage problem; configuration that
	// compiles with findings is a validation failure.
	exitCode := ExitFailure
	if machinery {
		exitCode = ExitUsage
	}
	return outputValidationIssues(f, issues, exitCode)
}

// isLoadMachineryCode reports whether the code means configuration could
// not even be read, as opposed to compiling with findings.
func isLoadMachineryCode(code string) bool {
	switch code {
	case config.ErrCodeScanError, config.ErrCodeNoFiles, config.ErrCodeLoadFailed,
		config.ErrCodeNotFound, config.ErrCodeBuildFailed:
		return true
	}
	return false
}

func outputValidateSuccess(f *OutputFormatter) error {
	if f.JSON() {
		return f.Success(validationResult{Valid: true})
	}
	fmt.Fprintln(f.Writer, "✓ configuration valid")
	return nil
}

func outputValidationIssues(f *OutputFormatter, issues []validationIssue, exitCode int) error {
	if f.JSON() {
		response := Response{
			Status: "error",
			Result: validationResult{Valid: false, Errors: issues},
			Error:  &ResponseError{Code: issues[0].Code, Message: issues[0].Message},
		}
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(exitCode, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(f.Writer, "✗ configuration invalid")
	fmt.Fprintln(f.Writer)
	for _, issue := range issues {
		if issue.File != "" {
			fmt.Fprintf(f.Writer, "%s:%d\n", issue.File, issue.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return NewExitError(exitCode, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
