package migration

import (
	"context"
	"fmt"
)

// VersionGraph maps each version that still needs migrating to the pending
// versions it depends on. Keys keep discovery order.
type VersionGraph struct {
	order []Version
	deps  map[Version][]Version
}

// NewVersionGraph creates an empty graph.
func NewVersionGraph() *VersionGraph {
	return &VersionGraph{deps: make(map[Version][]Version)}
}

// Has reports whether v is a key of the graph.
func (g *VersionGraph) Has(v Version) bool {
	_, ok := g.deps[v]
	return ok
}

// Len returns the number of keys.
func (g *VersionGraph) Len() int {
	return len(g.order)
}

// Versions returns the keys in discovery order.
func (g *VersionGraph) Versions() []Version {
	out := make([]Version, len(g.order))
	copy(out, g.order)
	return out
}

// DependenciesOf returns the recorded dependencies of v.
func (g *VersionGraph) DependenciesOf(v Version) []Version {
	return g.deps[v]
}

func (g *VersionGraph) set(v Version, deps []Version) {
	if !g.Has(v) {
		g.order = append(g.order, v)
	}
	g.deps[v] = deps
}

// DiscoverVersionGraph adds v and everything it transitively needs to graph,
// skipping versions that are already up to date. A version reached only
// through an up-to-date version is never added.
func DiscoverVersionGraph(ctx context.Context, v Version, graph *VersionGraph, orm ORMControl) error {
	if v == nil || graph.Has(v) {
		return nil
	}
	upToDate, err := v.IsUpToDate(ctx, orm)
	if err != nil {
		return fmt.Errorf("check %s: %w", v, err)
	}
	if upToDate {
		return nil
	}

	if err := DiscoverVersionGraph(ctx, v.PreviousVersion(), graph, orm); err != nil {
		return err
	}

	deps, err := pendingDependencies(ctx, v, orm)
	if err != nil {
		return err
	}
	graph.set(v, deps)

	for _, d := range deps {
		if err := DiscoverVersionGraph(ctx, d, graph, orm); err != nil {
			return err
		}
		if err := DiscoverVersionGraph(ctx, d.PreviousVersion(), graph, orm); err != nil {
			return err
		}
	}
	return nil
}

func pendingDependencies(ctx context.Context, v Version, orm ORMControl) ([]Version, error) {
	var pending []Version
	for _, d := range v.Dependencies() {
		if !d.IsComponent() || !d.Resolvable() {
			continue
		}
		best := d.BestVersion()
		if best == nil {
			continue
		}
		upToDate, err := best.IsUpToDate(ctx, orm)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", best, err)
		}
		if !upToDate {
			pending = append(pending, best)
		}
	}
	return pending, nil
}
