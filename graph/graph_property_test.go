package graph

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomDAG builds a graph over n vertices where an edge only ever points from
// a higher vertex to a lower one, which rules out cycles.
func randomDAG(n int, picks []int) *Graph[int] {
	g := New[int]()
	for v := 0; v < n; v++ {
		g.AddVertex(v)
	}
	for i, p := range picks {
		from := i % n
		if from == 0 {
			continue
		}
		g.AddEdge(from, p%from)
	}
	return g
}

// Feature: dependency-graph, Property 1: Topological order respects every edge
func TestProperty_TopologicalSortRespectsEdges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("dependencies always precede their dependents", prop.ForAll(
		func(n int, picks []int) bool {
			g := randomDAG(n, picks)
			sorted, err := g.TopologicalSort()
			if err != nil {
				t.Logf("unexpected cycle: %v", err)
				return false
			}
			if len(sorted) != n {
				return false
			}
			position := make(map[int]int, n)
			for i, v := range sorted {
				position[v] = i
			}
			for _, v := range g.Vertices() {
				for _, d := range g.Dependencies(v) {
					if position[d] > position[v] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

// Feature: dependency-graph, Property 2: Components partition the vertices
func TestProperty_ComponentsPartitionVertices(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every vertex lands in exactly one component", prop.ForAll(
		func(n int, from []int, to []int) bool {
			g := New[int]()
			for v := 0; v < n; v++ {
				g.AddVertex(v)
			}
			for i := 0; i < len(from) && i < len(to); i++ {
				g.AddEdge(from[i]%n, to[i]%n)
			}

			seen := make(map[int]int)
			for _, c := range g.FindComponents() {
				for _, v := range c.Contents {
					seen[v]++
				}
			}
			if len(seen) != n {
				return false
			}
			for _, count := range seen {
				if count != 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.Property("components on a DAG are singletons", prop.ForAll(
		func(n int, picks []int) bool {
			for _, c := range randomDAG(n, picks).FindComponents() {
				if len(c.Contents) != 1 || c.Contents[0] != c.Root {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
