package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		deps  map[string][]string
		want  []string
	}{
		{
			name:  "no dependencies keeps registration order",
			names: []string{"A", "B", "C"},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "chain",
			names: []string{"A", "B", "C"},
			deps:  map[string][]string{"B": {"A"}, "C": {"B"}},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "dependency registered later moves first",
			names: []string{"C", "B", "A"},
			deps:  map[string][]string{"C": {"B"}, "B": {"A"}},
			want:  []string{"A", "B", "C"},
		},
		{
			name:  "diamond follows declaration order",
			names: []string{"top", "left", "right", "base"},
			deps: map[string][]string{
				"top":   {"left", "right"},
				"left":  {"base"},
				"right": {"base"},
			},
			want: []string{"base", "left", "right", "top"},
		},
		{
			name:  "missing dependency is still ordered",
			names: []string{"A"},
			deps:  map[string][]string{"A": {"ghost"}},
			want:  []string{"ghost", "A"},
		},
		{
			name: "empty",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveOrder(tt.names, tt.deps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveOrder_Deterministic(t *testing.T) {
	names := []string{"e", "d", "c", "b", "a"}
	deps := map[string][]string{"e": {"a", "c"}, "d": {"b"}, "c": {"b"}}

	first, err := ResolveOrder(names, deps)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := ResolveOrder(names, deps)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveOrder_Cycles(t *testing.T) {
	t.Run("two nodes", func(t *testing.T) {
		_, err := ResolveOrder([]string{"X", "Y"}, map[string][]string{"X": {"Y"}, "Y": {"X"}})
		require.Error(t, err)
		assert.True(t, IsCyclicDependency(err))

		var cyc *CyclicDependencyError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"X", "Y", "X"}, cyc.Cycle)
		assert.Equal(t, "X", cyc.Unit())
		assert.Contains(t, err.Error(), "X -> Y -> X")
	})

	t.Run("self dependency", func(t *testing.T) {
		_, err := ResolveOrder([]string{"S"}, map[string][]string{"S": {"S"}})
		var cyc *CyclicDependencyError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"S", "S"}, cyc.Cycle)
	})

	t.Run("cycle behind an acyclic prefix", func(t *testing.T) {
		_, err := ResolveOrder(
			[]string{"A", "B", "C", "D"},
			map[string][]string{"B": {"C"}, "C": {"D"}, "D": {"B"}},
		)
		var cyc *CyclicDependencyError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"B", "C", "D", "B"}, cyc.Cycle)
	})
}

func TestGraph(t *testing.T) {
	g := NewGraph()
	g.Add("A", []string{"B", "ghost"})
	g.Add("B", nil)
	g.Add("A", []string{"B", "phantom"})

	assert.Equal(t, []string{"A", "B"}, g.Nodes())
	assert.Equal(t, []string{"B", "phantom"}, g.Dependencies("A"))
	assert.True(t, g.Has("B"))
	assert.False(t, g.Has("phantom"))
	assert.Equal(t, []MissingDependency{{Unit: "A", Dependency: "phantom"}}, g.Missing())

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "phantom", "A"}, order)
}
