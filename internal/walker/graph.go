package walker

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nickelgen/nickelgen/internal/types"
)

// DependencyGraph records which types reference which, in both directions.
// Keys are fully-qualified names. Self-edges are legal; traversals carry
// their own visited state.
type DependencyGraph struct {
	dependencies map[string]map[string]struct{}
	dependents   map[string]map[string]struct{}
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		dependencies: make(map[string]map[string]struct{}),
		dependents:   make(map[string]map[string]struct{}),
	}
}

// AddDependency records that from references to.
func (g *DependencyGraph) AddDependency(from, to string) {
	if g.dependencies[from] == nil {
		g.dependencies[from] = make(map[string]struct{})
	}
	g.dependencies[from][to] = struct{}{}
	if g.dependents[to] == nil {
		g.dependents[to] = make(map[string]struct{})
	}
	g.dependents[to][from] = struct{}{}
}

// DependenciesOf returns everything fqn references, sorted.
func (g *DependencyGraph) DependenciesOf(fqn string) []string {
	return slices.Sorted(maps.Keys(g.dependencies[fqn]))
}

// DependentsOf returns everything that references fqn, sorted.
func (g *DependencyGraph) DependentsOf(fqn string) []string {
	return slices.Sorted(maps.Keys(g.dependents[fqn]))
}

// CrossModuleDeps returns the dependencies of fqn owned by a module other
// than module, sorted. Same-module references never become imports.
func (g *DependencyGraph) CrossModuleDeps(fqn, module string) []string {
	var out []string
	for dep := range g.dependencies[fqn] {
		if depModule, _ := SplitFQN(dep); depModule != module {
			out = append(out, dep)
		}
	}
	slices.Sort(out)
	return out
}

// ImportSet accumulates one module's imports keyed by path. Repeated
// imports of one path coalesce; one path bound to two aliases is a bug in
// the walker that produced it, surfaced here rather than in emitted code.
type ImportSet struct {
	byPath map[string]*types.Import
}

// NewImportSet returns an empty set.
func NewImportSet() *ImportSet {
	return &ImportSet{byPath: make(map[string]*types.Import)}
}

// Add merges imp into the set.
func (s *ImportSet) Add(imp types.Import) error {
	existing, ok := s.byPath[imp.Path]
	if !ok {
		clone := imp
		clone.Items = slices.Clone(imp.Items)
		s.byPath[imp.Path] = &clone
		return nil
	}
	if existing.Alias != imp.Alias {
		return fmt.Errorf("import %q bound to aliases %q and %q", imp.Path, existing.Alias, imp.Alias)
	}
	existing.Items = append(existing.Items, imp.Items...)
	return nil
}

// Len returns the number of distinct import paths.
func (s *ImportSet) Len() int { return len(s.byPath) }

// Sorted materializes the set: one Import per path, sorted by path, items
// sorted and deduplicated, alias collisions across distinct paths made
// unique by expanding the alias to the full sanitized path.
func (s *ImportSet) Sorted() []types.Import {
	aliasCount := make(map[string]int)
	for _, imp := range s.byPath {
		aliasCount[imp.Alias]++
	}

	out := make([]types.Import, 0, len(s.byPath))
	for _, path := range slices.Sorted(maps.Keys(s.byPath)) {
		imp := *s.byPath[path]
		slices.Sort(imp.Items)
		imp.Items = slices.Compact(imp.Items)
		if imp.Alias != "" && aliasCount[imp.Alias] > 1 {
			imp.Alias = pathAlias(path)
		}
		out = append(out, imp)
	}
	return out
}

// pathAlias derives a collision-proof alias from every path segment.
func pathAlias(path string) string {
	trimmed := strings.TrimSuffix(path, ".ncl")
	var parts []string
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, strings.NewReplacer(".", "_", "-", "_").Replace(seg))
	}
	return strings.Join(parts, "_")
}
