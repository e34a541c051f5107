package farm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Runner invokes the farm's submission command with the spool files for
// one job and returns the command's raw output.
type Runner interface {
	Run(ctx context.Context, jobInfoPath, pluginInfoPath string) (string, error)
}

// CommandRunner shells out to the configured submission executable,
// appending the two spool file paths to its arguments.
type CommandRunner struct {
	Command []string
}

// Run executes the submission command and returns its combined output.
func (r CommandRunner) Run(ctx context.Context, jobInfoPath, pluginInfoPath string) (string, error) {
	if len(r.Command) == 0 {
		return "", fmt.Errorf("no farm submission command configured")
	}
	args := append(append([]string(nil), r.Command[1:]...), jobInfoPath, pluginInfoPath)
	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("farm command %q: %w: %s", r.Command[0], err, bytes.TrimSpace(out))
	}
	return string(out), nil
}
