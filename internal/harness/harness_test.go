package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ============================================================================
// Scenario corpus
// ============================================================================

// TestScenarios runs every checked-in scenario against its expect block.
// New planner behavior gets a new YAML file, not a new test function.
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "no scenarios checked in")

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			Run(t, s).AssertExpectations(t, s)
		})
	}
}

// ============================================================================
// Golden renderings
// ============================================================================

func TestGolden_LinearChain(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "linear-chain.yaml"))
	require.NoError(t, err)
	Run(t, s).AssertGolden(t, s.Name)
}

func TestGolden_AssetConsumers(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "asset-consumers.yaml"))
	require.NoError(t, err)
	Run(t, s).AssertGolden(t, s.Name)
}
