package versions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ContextFileName is the metadata record written by leaf executions into
// every version directory. This core reads it and never writes it;
// staleness bookkeeping and dependency scanning depend on its schema.
const ContextFileName = "context.json"

// Context is the per-version metadata record.
type Context struct {
	Entity     string     `json:"entity"`
	Department string     `json:"department"`
	Version    string     `json:"version"`
	Timestamp  time.Time  `json:"timestamp"`
	User       string     `json:"user"`
	Inputs     []InputRef `json:"inputs,omitempty"`
}

// InputRef is an upstream reference embedded in an exported artifact. An
// empty Version means the reference is unpinned and resolves symbolically.
type InputRef struct {
	Entity     string `json:"entity"`
	Department string `json:"department"`
	Version    string `json:"version,omitempty"`
}

// ReadContext loads the context record from a version directory.
func ReadContext(versionDir string) (*Context, error) {
	path := filepath.Join(versionDir, ContextFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context record: %w", err)
	}
	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context record %s: %w", path, err)
	}
	return &ctx, nil
}
