package walker

import (
	"slices"
	"testing"

	"github.com/nickelgen/nickelgen/internal/types"
)

func TestDependencyGraph_BothDirections(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("example.io/v1.Widget", "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta")
	g.AddDependency("example.io/v1.Widget", "example.io/v1.WidgetSpec")
	g.AddDependency("example.io/v1.Widget", "example.io/v1.WidgetSpec") // repeated

	deps := g.DependenciesOf("example.io/v1.Widget")
	if len(deps) != 2 {
		t.Fatalf("expected 2 deduplicated dependencies, got %v", deps)
	}
	dependents := g.DependentsOf("example.io/v1.WidgetSpec")
	if !slices.Equal(dependents, []string{"example.io/v1.Widget"}) {
		t.Errorf("expected reverse edge, got %v", dependents)
	}
}

func TestDependencyGraph_CrossModuleDeps(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("example.io/v1.Widget", "example.io/v1.WidgetSpec")
	g.AddDependency("example.io/v1.Widget", "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta")
	g.AddDependency("example.io/v1.Widget", "example.io/v2.Widget")

	cross := g.CrossModuleDeps("example.io/v1.Widget", "example.io/v1")
	want := []string{
		"example.io/v2.Widget",
		"io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta",
	}
	if !slices.Equal(cross, want) {
		t.Errorf("expected %v, got %v", want, cross)
	}
}

func TestDependencyGraph_SelfLoopLegal(t *testing.T) {
	g := NewDependencyGraph()
	g.AddDependency("example.io/v1.Node", "example.io/v1.Node")

	if deps := g.DependenciesOf("example.io/v1.Node"); len(deps) != 1 {
		t.Errorf("expected recursive edge kept, got %v", deps)
	}
	if cross := g.CrossModuleDeps("example.io/v1.Node", "example.io/v1"); len(cross) != 0 {
		t.Errorf("expected no cross-module deps for a self loop, got %v", cross)
	}
}

func TestImportSet_MergesItemsPerPath(t *testing.T) {
	s := NewImportSet()
	add := func(imp types.Import) {
		t.Helper()
		if err := s.Add(imp); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	add(types.Import{Path: "../../k8s_io/v1/objectmeta.ncl", Alias: "v1_objectmeta", Items: []string{"ObjectMeta"}})
	add(types.Import{Path: "../../k8s_io/v1/objectmeta.ncl", Alias: "v1_objectmeta", Items: []string{"ObjectMeta"}})
	add(types.Import{Path: "../v2/widget.ncl", Alias: "v2_widget", Items: []string{"Widget"}})

	imports := s.Sorted()
	if len(imports) != 2 {
		t.Fatalf("expected one import per path, got %d", len(imports))
	}
	if imports[0].Path != "../../k8s_io/v1/objectmeta.ncl" {
		t.Errorf("expected path-sorted imports, got %q first", imports[0].Path)
	}
	if !slices.Equal(imports[0].Items, []string{"ObjectMeta"}) {
		t.Errorf("expected deduplicated items, got %v", imports[0].Items)
	}
}

func TestImportSet_AliasConflictIsError(t *testing.T) {
	s := NewImportSet()
	if err := s.Add(types.Import{Path: "../v1/widget.ncl", Alias: "v1_widget"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(types.Import{Path: "../v1/widget.ncl", Alias: "widget"}); err == nil {
		t.Error("expected one path bound to two aliases to fail")
	}
}

func TestImportSet_CollidingAliasesExpand(t *testing.T) {
	s := NewImportSet()
	if err := s.Add(types.Import{Path: "../../alpha/v1/widget.ncl", Alias: "v1_widget", Items: []string{"Widget"}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(types.Import{Path: "../../beta/v1/widget.ncl", Alias: "v1_widget", Items: []string{"Widget"}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	imports := s.Sorted()
	if imports[0].Alias != "alpha_v1_widget" || imports[1].Alias != "beta_v1_widget" {
		t.Errorf("expected path-expanded aliases, got %q and %q", imports[0].Alias, imports[1].Alias)
	}
}
