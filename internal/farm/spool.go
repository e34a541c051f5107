package farm

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/framewell/callsheet/internal/jobgraph"
)

// Destination names where spool files are staged before handoff to the
// farm command.
type Destination struct {
	SpoolRoot string
}

const (
	jobIDPrefix      = "JobID="
	spoolDirAttempts = 10
)

// SpoolSubmitter stages each job of a batch as a pair of key=value spool
// files and hands them to the farm command in dependency order, so a
// job's farm ID is known before any job that waits on it is submitted.
type SpoolSubmitter struct {
	runner Runner
	chunk  int
}

// NewSpoolSubmitter builds a submitter around the farm command runner.
// chunkSize caps frames per task; zero means one task for the whole
// range.
func NewSpoolSubmitter(runner Runner, chunkSize int) *SpoolSubmitter {
	return &SpoolSubmitter{runner: runner, chunk: chunkSize}
}

// Submit spools and submits every job of the batch, returning farm IDs
// in submission order. Jobs already handed to the farm stay submitted
// when a later one fails; the error names the job that failed.
func (s *SpoolSubmitter) Submit(ctx context.Context, batch *Batch, dest Destination) ([]JobID, error) {
	if batch.Len() == 0 {
		return nil, fmt.Errorf("batch %q has no jobs", batch.Name())
	}
	order, err := batch.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	spoolDir, err := allocateSpoolDir(dest.SpoolRoot)
	if err != nil {
		return nil, err
	}
	slog.Debug("spooling batch", "batch", batch.Name(), "jobs", batch.Len(), "dir", spoolDir)

	submitted := make(map[JobIndex]JobID, batch.Len())
	ids := make([]JobID, 0, batch.Len())
	for _, index := range order {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		job := batch.jobs[index]
		jobInfoPath := filepath.Join(spoolDir, fmt.Sprintf("%02d_job_info.txt", index))
		pluginInfoPath := filepath.Join(spoolDir, fmt.Sprintf("%02d_plugin_info.txt", index))
		if err := writeKeyValues(jobInfoPath, s.jobInfo(batch, index, submitted)); err != nil {
			return ids, err
		}
		if err := writeKeyValues(pluginInfoPath, pluginInfo(job)); err != nil {
			return ids, err
		}
		out, err := s.runner.Run(ctx, jobInfoPath, pluginInfoPath)
		if err != nil {
			return ids, fmt.Errorf("submitting %q: %w", job.Name, err)
		}
		id, err := parseSubmission(out)
		if err != nil {
			return ids, fmt.Errorf("submitting %q: %w", job.Name, err)
		}
		slog.Info("job submitted", "job", job.Name, "farm_id", id)
		submitted[index] = id
		ids = append(ids, id)
	}
	return ids, nil
}

// jobInfo renders the farm-facing half of a job: identity, scheduling
// knobs and the farm IDs of its dependencies.
func (s *SpoolSubmitter) jobInfo(b *Batch, index JobIndex, submitted map[JobIndex]JobID) map[string]string {
	job := b.jobs[index]
	info := map[string]string{
		"Name":          job.Name,
		"BatchName":     b.name,
		"Plugin":        pluginFor(job.Kind),
		"Pool":          job.Pool,
		"Priority":      strconv.Itoa(job.Priority),
		"InitialStatus": "Active",
	}
	if job.Frames.IsZero() {
		info["Frames"] = "0"
		info["ChunkSize"] = "1"
	} else {
		info["Frames"] = job.Frames.String()
		chunk := job.Frames.Len()
		if s.chunk > 0 && s.chunk < chunk {
			chunk = s.chunk
		}
		info["ChunkSize"] = strconv.Itoa(chunk)
	}
	if out := job.Payload["output"]; out != "" {
		info["OutputDirectory0"] = out
	}
	if deps := b.Deps(index); len(deps) > 0 {
		refs := make([]string, len(deps))
		for i, dep := range deps {
			refs[i] = string(submitted[dep])
		}
		info["JobDependencies"] = strings.Join(refs, ",")
	}
	return info
}

// pluginInfo renders the payload half: what the farm-side plugin needs
// to perform the work.
func pluginInfo(job jobgraph.Job) map[string]string {
	info := make(map[string]string, len(job.Payload)+2)
	for k, v := range job.Payload {
		info[k] = v
	}
	if job.Entity != "" {
		info["entity"] = job.Entity
	}
	if job.Department != "" {
		info["department"] = job.Department
	}
	return info
}

func pluginFor(kind jobgraph.Kind) string {
	if kind == jobgraph.KindNotify {
		return "shell"
	}
	return "houdini"
}

// allocateSpoolDir creates a fresh uniquely named directory under root.
// Mkdir refuses an existing path, so a name collision just triggers
// another attempt.
func allocateSpoolDir(root string) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating spool root: %w", err)
	}
	for attempt := 0; attempt < spoolDirAttempts; attempt++ {
		dir := filepath.Join(root, uuid.NewString())
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating spool directory: %w", err)
		}
	}
	return "", fmt.Errorf("no free spool directory under %s after %d attempts", root, spoolDirAttempts)
}

func writeKeyValues(path string, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(values[k])
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing spool file: %w", err)
	}
	return nil
}

// parseSubmission extracts the farm's job ID from submission output. The
// command prints a status report; the ID rides on a "JobID=" line.
func parseSubmission(out string) (JobID, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, jobIDPrefix) {
			continue
		}
		id := strings.TrimSpace(line[len(jobIDPrefix):])
		if id == "" {
			return "", fmt.Errorf("farm reported an empty job ID")
		}
		return JobID(id), nil
	}
	return "", fmt.Errorf("farm output missing %s line", jobIDPrefix)
}
