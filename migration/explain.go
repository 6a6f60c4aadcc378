package migration

import (
	"fmt"
	"io"
	"strings"

	"github.com/xlab/treeprint"

	"github.com/BaSui01/eggmigrate/graph"
)

// Explain writes a description of the plan without running anything: the
// schedule tree followed by Graphviz renderings of the version and cluster
// graphs.
func (p *Plan) Explain(w io.Writer) error {
	if p.versionGraph == nil {
		return programmerError("Explain called before DoPlanning")
	}

	tree := treeprint.New()
	root := tree.AddBranch(fmt.Sprintf("migration plan: %d versions, %d clusters, %d schedules",
		p.versionGraph.Len(), len(p.clusters), len(p.schedules)))
	for _, s := range p.schedules {
		s.explain(root)
	}
	if len(p.warnings) > 0 {
		branch := root.AddBranch("warnings")
		for _, warning := range p.warnings {
			branch.AddNode(warning)
		}
	}
	if _, err := io.WriteString(w, tree.String()); err != nil {
		return err
	}

	versions := graph.FromVertices(p.versionGraph.Versions(), p.versionGraph.DependenciesOf)
	if err := versions.Render(w, "versions", Version.String); err != nil {
		return err
	}
	return p.clusterGraph.Render(w, "clusters", (*Cluster).String)
}

func (s *Schedule) explain(parent treeprint.Tree) {
	branch := parent.AddBranch("schedule " + s.cluster.String())

	if len(s.beforeNesting) > 0 {
		addEntries(branch.AddBranch("before nesting"), s.beforeNesting)
	}
	claimed := make(map[*Cluster]bool, len(s.afterNestedOrder))
	for _, nested := range s.nested {
		nested.explain(branch)
		for _, c := range s.afterNestedOrder {
			if !claimed[c] && nested.covers(c) {
				claimed[c] = true
				addEntries(branch.AddBranch("after "+c.String()), s.afterNested[c])
			}
		}
	}
	for _, c := range s.afterNestedOrder {
		if !claimed[c] {
			addEntries(branch.AddBranch("after nesting"), s.afterNested[c])
		}
	}
	for _, phase := range PhasesInOrder {
		if entries := s.phases[phase]; len(entries) > 0 {
			addEntries(branch.AddBranch(string(phase)), entries)
		}
	}
}

func addEntries(branch treeprint.Tree, entries []Entry) {
	for _, e := range entries {
		label := e.Migration + " (" + e.Version.String() + ")"
		if site, ok := e.Context.CallSite(); ok {
			label += " @ " + shortFile(site.File) + fmt.Sprintf(":%d", site.Line)
		}
		branch.AddNode(label)
	}
}

func shortFile(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
