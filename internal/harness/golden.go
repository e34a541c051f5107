package harness

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/stretchr/testify/require"
)

// AssertGolden renders the planned graph in topological order and
// compares it against testdata/golden/{name}.golden. Absolute fixture
// paths are normalized to $ROOT so the rendering is stable across temp
// directories.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func (r *Result) AssertGolden(t *testing.T, name string) {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, r.Graph.Render(&buf))
	rendered := strings.ReplaceAll(buf.String(), r.root, "$ROOT")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(rendered))
}
