package migration

import (
	"slices"
	"strings"
)

// Cluster is a group of versions that are migrated as one unit because they
// depend on each other. A cluster does not change once planning built it.
type Cluster struct {
	root         Version
	versions     []Version
	dependencies []*Cluster
}

// Root returns the version through which the cluster was first entered.
func (c *Cluster) Root() Version {
	return c.root
}

// Versions returns the versions of the cluster in discovery order.
func (c *Cluster) Versions() []Version {
	return slices.Clone(c.versions)
}

// Contains reports whether v belongs to the cluster.
func (c *Cluster) Contains(v Version) bool {
	return slices.Contains(c.versions, v)
}

// Dependencies returns the clusters c depends on, restricted to candidates
// and in the order of candidates.
func (c *Cluster) Dependencies(candidates []*Cluster) []*Cluster {
	var out []*Cluster
	for _, candidate := range candidates {
		if slices.Contains(c.dependencies, candidate) {
			out = append(out, candidate)
		}
	}
	return out
}

// VersionsBiggestFirst returns the versions newest first. Ties between
// versions of different eggs are broken by egg name.
func (c *Cluster) VersionsBiggestFirst() []Version {
	out := slices.Clone(c.versions)
	slices.SortStableFunc(out, func(a, b Version) int {
		if n := b.Compare(a); n != 0 {
			return n
		}
		return strings.Compare(a.EggName(), b.EggName())
	})
	return out
}

func (c *Cluster) String() string {
	names := make([]string, len(c.versions))
	for i, v := range c.versions {
		names[i] = v.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}
