package graph

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/BaSui01/eggmigrate/types"
)

// Graph is a directed graph over comparable vertices. An edge from a to b
// means a depends on b. Vertices and edges keep their insertion order so that
// every traversal is deterministic.
type Graph[V comparable] struct {
	vertices []V
	index    map[V]int
	edges    map[V][]V
}

// New creates an empty graph.
func New[V comparable]() *Graph[V] {
	return &Graph[V]{
		index: make(map[V]int),
		edges: make(map[V][]V),
	}
}

// FromVertices builds a graph whose edges come from calling deps on every
// vertex. Dependencies outside vertices are ignored.
func FromVertices[V comparable](vertices []V, deps func(V) []V) *Graph[V] {
	g := New[V]()
	for _, v := range vertices {
		g.AddVertex(v)
	}
	for _, v := range vertices {
		for _, d := range deps(v) {
			if g.Has(d) {
				g.AddEdge(v, d)
			}
		}
	}
	return g
}

// AddVertex adds v if it is not present yet and reports whether it was added.
func (g *Graph[V]) AddVertex(v V) bool {
	if _, ok := g.index[v]; ok {
		return false
	}
	g.index[v] = len(g.vertices)
	g.vertices = append(g.vertices, v)
	return true
}

// AddEdge records that from depends on to, adding both vertices as needed.
// Duplicate edges are collapsed.
func (g *Graph[V]) AddEdge(from, to V) {
	g.AddVertex(from)
	g.AddVertex(to)
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// Has reports whether v is a vertex of g.
func (g *Graph[V]) Has(v V) bool {
	_, ok := g.index[v]
	return ok
}

// Len returns the number of vertices.
func (g *Graph[V]) Len() int {
	return len(g.vertices)
}

// Vertices returns the vertices in insertion order.
func (g *Graph[V]) Vertices() []V {
	out := make([]V, len(g.vertices))
	copy(out, g.vertices)
	return out
}

// Dependencies returns the direct dependencies of v in insertion order.
func (g *Graph[V]) Dependencies(v V) []V {
	deps := g.edges[v]
	out := make([]V, len(deps))
	copy(out, deps)
	return out
}

// Subgraph returns a graph with the same vertices and only the edges accepted
// by keepEdge.
func (g *Graph[V]) Subgraph(keepEdge func(from, to V) bool) *Graph[V] {
	sub := New[V]()
	for _, v := range g.vertices {
		sub.AddVertex(v)
	}
	for _, v := range g.vertices {
		for _, d := range g.edges[v] {
			if keepEdge(v, d) {
				sub.AddEdge(v, d)
			}
		}
	}
	return sub
}

// =============================================================================
// Ordering
// =============================================================================

// CycleError reports a cycle found while sorting a graph.
type CycleError[V comparable] struct {
	Cycle []V
}

// Error implements the error interface.
func (e *CycleError[V]) Error() string {
	parts := make([]string, len(e.Cycle))
	for i, v := range e.Cycle {
		parts[i] = fmt.Sprint(v)
	}
	return "circular dependency: " + strings.Join(parts, " -> ")
}

// Unwrap exposes the cycle as a CIRCULAR_DEPENDENCY error.
func (e *CycleError[V]) Unwrap() error {
	return types.NewError(types.ErrCircularDependency, "graph is not acyclic")
}

const (
	white = iota
	grey
	black
)

// TopologicalSort orders the vertices so that every vertex comes after all of
// its dependencies. It fails with a *CycleError when g is not a DAG.
func (g *Graph[V]) TopologicalSort() ([]V, error) {
	colour := make(map[V]int, len(g.vertices))
	sorted := make([]V, 0, len(g.vertices))
	var path []V

	var visit func(v V) error
	visit = func(v V) error {
		colour[v] = grey
		path = append(path, v)
		for _, d := range g.edges[v] {
			switch colour[d] {
			case grey:
				return &CycleError[V]{Cycle: cycleFrom(path, d)}
			case white:
				if err := visit(d); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		colour[v] = black
		sorted = append(sorted, v)
		return nil
	}

	for _, v := range g.vertices {
		if colour[v] == white {
			if err := visit(v); err != nil {
				return nil, err
			}
		}
	}
	return sorted, nil
}

func cycleFrom[V comparable](path []V, start V) []V {
	for i, v := range path {
		if v == start {
			cycle := make([]V, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			return append(cycle, start)
		}
	}
	return []V{start, start}
}

// =============================================================================
// Strongly connected components
// =============================================================================

// Component is a group of mutually reachable vertices. Root is the vertex
// through which the group was first entered.
type Component[V comparable] struct {
	Root     V
	Contents []V
}

// FindComponents groups the vertices into strongly connected components using
// Tarjan's algorithm. Components are returned dependencies first and each
// component lists its contents in insertion order.
func (g *Graph[V]) FindComponents() []Component[V] {
	t := tarjan[V]{
		g:       g,
		index:   make(map[V]int, len(g.vertices)),
		lowLink: make(map[V]int, len(g.vertices)),
		onStack: make(map[V]bool, len(g.vertices)),
	}
	for _, v := range g.vertices {
		if _, seen := t.index[v]; !seen {
			t.strongConnect(v)
		}
	}
	return t.components
}

type tarjan[V comparable] struct {
	g          *Graph[V]
	next       int
	index      map[V]int
	lowLink    map[V]int
	onStack    map[V]bool
	stack      []V
	components []Component[V]
}

func (t *tarjan[V]) strongConnect(v V) {
	t.index[v] = t.next
	t.lowLink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.edges[v] {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			t.lowLink[v] = min(t.lowLink[v], t.lowLink[w])
		} else if t.onStack[w] {
			t.lowLink[v] = min(t.lowLink[v], t.index[w])
		}
	}

	if t.lowLink[v] != t.index[v] {
		return
	}

	var members []V
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		members = append(members, w)
		if w == v {
			break
		}
	}
	t.components = append(t.components, Component[V]{Root: v, Contents: t.g.inInsertionOrder(members)})
}

func (g *Graph[V]) inInsertionOrder(vs []V) []V {
	out := slices.Clone(vs)
	slices.SortFunc(out, func(a, b V) int { return g.index[a] - g.index[b] })
	return out
}

// =============================================================================
// Rendering
// =============================================================================

// Render writes g as a Graphviz digraph. label names each vertex; vertices
// without a label fall back to fmt.Sprint.
func (g *Graph[V]) Render(w io.Writer, name string, label func(V) string) error {
	if label == nil {
		label = func(v V) string { return fmt.Sprint(v) }
	}
	if _, err := fmt.Fprintf(w, "digraph %q {\n", name); err != nil {
		return err
	}
	for i, v := range g.vertices {
		if _, err := fmt.Fprintf(w, "  n%d[label=%q];\n", i, label(v)); err != nil {
			return err
		}
	}
	for i, v := range g.vertices {
		for _, d := range g.edges[v] {
			if _, err := fmt.Fprintf(w, "  n%d->n%d;\n", i, g.index[d]); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
