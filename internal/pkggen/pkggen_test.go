package pkggen

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/nickelgen/nickelgen/internal/types"
	"github.com/nickelgen/nickelgen/internal/walker"
)

func field(t types.Type) types.Field {
	return types.Field{Type: t}
}

func widgetIR() types.IR {
	return types.NewIRBuilder().
		Module("example.io/v1").
		AddTypeDef(types.TypeDefinition{
			Name:          "Widget",
			Documentation: "Widget is a widget.",
			Type: types.RecordOf(map[string]types.Field{
				"metadata": field(types.ModuleRef("ObjectMeta", walker.MetaV1Module)),
				"spec":     field(types.Ref("WidgetSpec")),
			}, false),
		}).
		AddType("WidgetSpec", types.RecordOf(map[string]types.Field{
			"replicas": field(types.Integer()),
		}, false)).
		Build()
}

func TestGenerateSplitsTypesIntoFiles(t *testing.T) {
	files, err := Generate(widgetIR(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, path := range []string{"v1/widget.ncl", "v1/widgetspec.ncl", "v1/mod.ncl", "mod.ncl"} {
		if _, ok := files[path]; !ok {
			t.Errorf("missing %s in %v", path, slices.Sorted(maps.Keys(files)))
		}
	}

	want := `# Module: example.io/v1/widget

let v1_objectmeta = import "../../k8s_io/v1/objectmeta.ncl" in
let widgetspec = import "./widgetspec.ncl" in

{
  # Widget is a widget.
  Widget = {
    metadata | optional | v1_objectmeta.ObjectMeta,
    spec | optional | widgetspec.WidgetSpec,
  },
}
`
	if got := files["v1/widget.ncl"]; got != want {
		t.Errorf("widget.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	wantSpec := `# Module: example.io/v1/widgetspec

{
  WidgetSpec = {
    replicas | optional | Number,
  },
}
`
	if got := files["v1/widgetspec.ncl"]; got != wantSpec {
		t.Errorf("widgetspec.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantSpec)
	}
}

func TestGenerateVersionModListsKinds(t *testing.T) {
	files, err := Generate(widgetIR(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `# example.io v1 types
{
  Widget = (import "./widget.ncl").Widget,
  WidgetSpec = (import "./widgetspec.ncl").WidgetSpec,
}
`
	if got := files["v1/mod.ncl"]; got != want {
		t.Errorf("v1/mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateRootModImportsVersions(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("example.io/v1").
		AddType("Widget", types.RecordOf(nil, false)).
		Module("example.io/v2").
		AddType("Widget", types.RecordOf(nil, false)).
		Build()

	files, err := Generate(ir, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `# example.io types
{
  v1 = import "./v1/mod.ncl",
  v2 = import "./v2/mod.ncl",
}
`
	if got := files["mod.ncl"]; got != want {
		t.Errorf("mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateCoreLayout(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("k8s.io/v1").
		AddType("ObjectMeta", types.RecordOf(map[string]types.Field{
			"creationTimestamp": field(types.Ref("Time")),
			"labels":            field(types.MapOf(types.String(), types.String())),
		}, false)).
		AddType("Time", types.String()).
		Module("k8s.io/v0").
		AddType("RawExtension", types.RecordOf(nil, false)).
		Module("k8s.io/v1beta1").
		AddType("PodDisruptionBudget", types.RecordOf(map[string]types.Field{
			"metadata": field(types.ModuleRef("ObjectMeta", "k8s.io/v1")),
			"spec":     field(types.ModuleRef("RawExtension", "k8s.io/v0")),
		}, false)).
		Build()

	files, err := Generate(ir, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// A sibling reference imports from its own directory.
	wantMeta := `# Module: k8s.io/v1/objectmeta

let time = import "./time.ncl" in

{
  ObjectMeta = {
    creationTimestamp | optional | time.Time,
    labels | optional | { _ : String },
  },
}
`
	if got := files["v1/objectmeta.ncl"]; got != wantMeta {
		t.Errorf("objectmeta.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantMeta)
	}

	// Meta types come from the authoritative v1 directory under their bare
	// name; unversioned kinds come from the v0 bucket.
	wantPDB := `# Module: k8s.io/v1beta1/poddisruptionbudget

let RawExtension = import "../v0/rawextension.ncl" in
let ObjectMeta = import "../v1/objectmeta.ncl" in

{
  PodDisruptionBudget = {
    metadata | optional | ObjectMeta.ObjectMeta,
    spec | optional | RawExtension.RawExtension,
  },
}
`
	if got := files["v1beta1/poddisruptionbudget.ncl"]; got != wantPDB {
		t.Errorf("poddisruptionbudget.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantPDB)
	}

	wantV1Mod := `# Kubernetes core v1 types
{
  ObjectMeta = (import "./objectmeta.ncl").ObjectMeta,
  Time = (import "./time.ncl").Time,
}
`
	if got := files["v1/mod.ncl"]; got != wantV1Mod {
		t.Errorf("v1/mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantV1Mod)
	}

	wantRoot := `# Kubernetes core types
{
  v0 = import "./v0/mod.ncl",
  v1 = import "./v1/mod.ncl",
  v1beta1 = import "./v1beta1/mod.ncl",
}
`
	if got := files["mod.ncl"]; got != wantRoot {
		t.Errorf("mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantRoot)
	}
}

func crossplaneIR() types.IR {
	return types.NewIRBuilder().
		Module("apiextensions.crossplane.io/v1").
		AddType("Composition", types.RecordOf(map[string]types.Field{
			"metadata": field(types.ModuleRef("ObjectMeta", walker.MetaV1Module)),
		}, false)).
		Build()
}

func TestGenerateGroupedLayout(t *testing.T) {
	files, err := Generate(crossplaneIR(), Options{Name: "crossplane"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `# Module: apiextensions.crossplane.io/v1/composition

let v1_objectmeta = import "../../../k8s_io/v1/objectmeta.ncl" in

{
  Composition = {
    metadata | optional | v1_objectmeta.ObjectMeta,
  },
}
`
	if got := files["apiextensions.crossplane.io/v1/composition.ncl"]; got != want {
		t.Errorf("composition.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	wantGroup := `# apiextensions.crossplane.io types
{
  v1 = import "./v1/mod.ncl",
}
`
	if got := files["apiextensions.crossplane.io/mod.ncl"]; got != wantGroup {
		t.Errorf("group mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantGroup)
	}

	wantRoot := `# crossplane types
{
  apiextensions_crossplane_io = import "./apiextensions.crossplane.io/mod.ncl",
}
`
	if got := files["mod.ncl"]; got != wantRoot {
		t.Errorf("root mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, wantRoot)
	}
}

func TestGenerateCarriesModuleImportForShortReference(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("example.io/v1").
		AddImport(types.Import{
			Path:  "../../k8s_io/v1/objectmeta.ncl",
			Alias: "v1_objectmeta",
			Items: []string{"ObjectMeta"},
		}).
		AddType("Widget", types.RecordOf(map[string]types.Field{
			"metadata": field(types.Ref("ObjectMeta")),
		}, false)).
		AddType("WidgetSpec", types.RecordOf(map[string]types.Field{
			"replicas": field(types.Integer()),
		}, false)).
		Build()

	files, err := Generate(ir, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	widget := files["v1/widget.ncl"]
	if !strings.Contains(widget, `let v1_objectmeta = import "../../k8s_io/v1/objectmeta.ncl" in`) {
		t.Errorf("expected carried import in widget.ncl:\n%s", widget)
	}
	if !strings.Contains(widget, "metadata | optional | v1_objectmeta.ObjectMeta,") {
		t.Errorf("expected short reference qualified in widget.ncl:\n%s", widget)
	}

	// The import carries only into files that still need it.
	if spec := files["v1/widgetspec.ncl"]; strings.Contains(spec, "import") {
		t.Errorf("expected no imports in widgetspec.ncl:\n%s", spec)
	}
}

func TestGenerateSelfReferenceStaysBare(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("example.io/v1").
		AddType("Node", types.RecordOf(map[string]types.Field{
			"children": field(types.ArrayOf(types.Ref("Node"))),
		}, false)).
		Build()

	files, err := Generate(ir, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `# Module: example.io/v1/node

{
  Node = {
    children | optional | Array Node,
  },
}
`
	if got := files["v1/node.ncl"]; got != want {
		t.Errorf("node.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateAliasCollisionAcrossPackages(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("example.io/v1beta1").
		AddType("WidgetStatus", types.RecordOf(map[string]types.Field{
			"internal": field(types.ModuleRef("Scale", "example.io/v1")),
			"core":     field(types.ModuleRef("Scale", "k8s.io/v1")),
		}, false)).
		Build()

	files, err := Generate(ir, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `# Module: example.io/v1beta1/widgetstatus

let k8s_io_v1_scale = import "../../k8s_io/v1/scale.ncl" in
let v1_scale = import "../v1/scale.ncl" in

{
  WidgetStatus = {
    core | optional | k8s_io_v1_scale.Scale,
    internal | optional | v1_scale.Scale,
  },
}
`
	if got := files["v1beta1/widgetstatus.ncl"]; got != want {
		t.Errorf("widgetstatus.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateConstantsLandInVersionMod(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("example.io/v1").
		AddType("Widget", types.RecordOf(nil, false)).
		AddConstant(types.Constant{
			Name:          "apiVersion",
			Value:         jsontext.Value(`"example.io/v1"`),
			Documentation: "Group and version.",
		}).
		Build()

	files, err := Generate(ir, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := `# example.io v1 types
{
  Widget = (import "./widget.ncl").Widget,

  # Group and version.
  apiVersion = "example.io/v1",
}
`
	if got := files["v1/mod.ncl"]; got != want {
		t.Errorf("v1/mod.ncl mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestGenerateBadModuleNameAbortsAlone(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("docs").
		AddType("Page", types.String()).
		Module("example.io/v1").
		AddType("Widget", types.RecordOf(nil, false)).
		Build()

	files, err := Generate(ir, Options{})
	if err == nil {
		t.Fatal("expected an error for the unplaceable module")
	}
	var genErr *walker.GenerationError
	if !errors.As(err, &genErr) || genErr.Module != "docs" {
		t.Errorf("expected GenerationError for docs, got %v", err)
	}
	if _, ok := files["v1/widget.ncl"]; !ok {
		t.Errorf("expected sibling module generated, got %v", slices.Sorted(maps.Keys(files)))
	}
}

func TestGenerateModCollisionRejected(t *testing.T) {
	ir := types.NewIRBuilder().
		Module("example.io/v1").
		AddType("Mod", types.String()).
		Build()

	_, err := Generate(ir, Options{})
	if err == nil {
		t.Fatal("expected an error for a type named Mod")
	}
	var genErr *walker.GenerationError
	if !errors.As(err, &genErr) || genErr.Module != "example.io/v1" {
		t.Errorf("expected GenerationError for example.io/v1, got %v", err)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	first, err := Generate(widgetIR(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := Generate(widgetIR(), Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !maps.Equal(first, second) {
		t.Error("expected identical file maps across runs")
	}
}
