package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(map[Scope][]Department{
		ScopeShots: {
			{Name: "anim", Scope: ScopeShots, Publishable: true, Enabled: true},
			{Name: "light", Scope: ScopeShots, Publishable: true, Renderable: true, Enabled: true},
			{Name: "comp", Scope: ScopeShots, Publishable: true, Renderable: true, Enabled: true},
			{Name: "edit", Scope: ScopeShots, Publishable: true, Enabled: false},
			{Name: "final", Scope: ScopeShots, Publishable: true, Enabled: true},
		},
		ScopeAssets: {
			{Name: "model", Scope: ScopeAssets, Publishable: true, Enabled: true},
			{Name: "rig", Scope: ScopeAssets, Publishable: true, Enabled: true},
		},
	})
	require.NoError(t, err)
	return m
}

func TestNewModel_Validation(t *testing.T) {
	_, err := NewModel(map[Scope][]Department{
		ScopeShots: {
			{Name: "anim", Scope: ScopeShots, Enabled: true},
			{Name: "anim", Scope: ScopeShots, Enabled: true},
		},
	})
	assert.ErrorContains(t, err, "duplicate department")

	_, err = NewModel(map[Scope][]Department{
		ScopeShots: {{Name: "model", Scope: ScopeAssets, Enabled: true}},
	})
	assert.ErrorContains(t, err, "carries scope")
}

func TestModel_ListDepartments(t *testing.T) {
	m := testModel(t)

	names := func(ds []Department) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = d.Name
		}
		return out
	}

	assert.Equal(t, []string{"anim", "light", "comp", "final"},
		names(m.ListDepartments(ScopeShots, false)), "disabled omitted by default")
	assert.Equal(t, []string{"anim", "light", "comp", "edit", "final"},
		names(m.ListDepartments(ScopeShots, true)))
	assert.Empty(t, m.ListDepartments(ScopeKits, false), "unconfigured scope is empty")
}

func TestModel_DownstreamOf(t *testing.T) {
	m := testModel(t)

	names := func(ds []Department) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = d.Name
		}
		return out
	}

	assert.Equal(t, []string{"comp", "edit", "final"}, names(m.DownstreamOf(ScopeShots, "light")),
		"strict suffix, disabled included")
	assert.Empty(t, m.DownstreamOf(ScopeShots, "final"), "last department has nothing downstream")
	assert.Empty(t, m.DownstreamOf(ScopeShots, "nosuch"), "unknown department yields empty, not error")
}

func TestModel_Lookup(t *testing.T) {
	m := testModel(t)

	d, ok := m.Lookup(ScopeShots, "comp")
	require.True(t, ok)
	assert.True(t, d.Renderable)
	assert.True(t, d.Enabled)

	_, ok = m.Lookup(ScopeShots, "missing")
	assert.False(t, ok, "explicit not-found, never a silent default")

	i, ok := m.Position(ScopeShots, "comp")
	require.True(t, ok)
	assert.Equal(t, 2, i)
}
