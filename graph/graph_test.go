package graph

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/eggmigrate/types"
)

func TestGraph_AddEdgeCollapsesDuplicates(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b")
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")

	assert.Equal(t, []string{"a", "b", "c"}, g.Vertices())
	assert.Equal(t, []string{"b", "c"}, g.Dependencies("a"))
	assert.False(t, g.AddVertex("a"))
	assert.Equal(t, 3, g.Len())
}

func TestFromVertices_IgnoresUnknownDependencies(t *testing.T) {
	deps := map[string][]string{
		"app":  {"lib", "outside"},
		"lib":  {},
		"util": {"lib"},
	}
	g := FromVertices([]string{"app", "lib", "util"}, func(v string) []string { return deps[v] })

	assert.Equal(t, []string{"lib"}, g.Dependencies("app"))
	assert.False(t, g.Has("outside"))
}

func TestTopologicalSort(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]string
		want  []string
	}{
		{
			name:  "chain",
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  []string{"c", "b", "a"},
		},
		{
			name:  "diamond",
			edges: [][2]string{{"top", "left"}, {"top", "right"}, {"left", "bottom"}, {"right", "bottom"}},
			want:  []string{"bottom", "left", "right", "top"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New[string]()
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}
			got, err := g.TopologicalSort()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "a")

	_, err := g.TopologicalSort()
	require.Error(t, err)

	var cycleErr *CycleError[string]
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycleErr.Cycle)
	assert.True(t, types.IsErrorCode(err, types.ErrCircularDependency))
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestTopologicalSort_SelfLoop(t *testing.T) {
	g := New[int]()
	g.AddEdge(1, 1)

	_, err := g.TopologicalSort()
	assert.Error(t, err)
}

func TestFindComponents(t *testing.T) {
	g := New[string]()
	g.AddEdge("a2", "b3")
	g.AddEdge("b3", "a2")
	g.AddEdge("b3", "c1")
	g.AddVertex("d1")

	components := g.FindComponents()
	require.Len(t, components, 3)

	assert.Equal(t, []string{"c1"}, components[0].Contents)
	assert.Equal(t, "a2", components[1].Root)
	assert.Equal(t, []string{"a2", "b3"}, components[1].Contents)
	assert.Equal(t, []string{"d1"}, components[2].Contents)
}

func TestSubgraph(t *testing.T) {
	g := New[string]()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	sub := g.Subgraph(func(from, to string) bool { return from == "a" })
	assert.Equal(t, []string{"a", "b"}, sub.Vertices())
	assert.Equal(t, []string{"b"}, sub.Dependencies("a"))
	assert.Empty(t, sub.Dependencies("b"))

	_, err := sub.TopologicalSort()
	assert.NoError(t, err)
}

func TestRender(t *testing.T) {
	g := New[string]()
	g.AddEdge("app", "lib")

	var buf bytes.Buffer
	require.NoError(t, g.Render(&buf, "versions", nil))

	assert.Equal(t, "digraph \"versions\" {\n"+
		"  n0[label=\"app\"];\n"+
		"  n1[label=\"lib\"];\n"+
		"  n0->n1;\n"+
		"}\n", buf.String())
}
