package walker

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"

	"github.com/nickelgen/nickelgen/internal/types"
)

// Struct tags need backticks, so the fixture spells them with ~.
var goFixture = strings.ReplaceAll(`package fixture

import (
	"encoding/json"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Widget is a declarative widget.
type Widget struct {
	// Standard object metadata.
	Metadata metav1.ObjectMeta ~json:"metadata"~
	Spec     WidgetSpec        ~json:"spec"~
	internal string
}

// WidgetSpec declares the desired state.
type WidgetSpec struct {
	Selector string            ~json:"selector"~
	Replicas *int32            ~json:"replicas,omitempty"~
	Labels   map[string]string ~json:"labels,omitempty"~
	Payload  []byte            ~json:"payload,omitempty"~
	Raw      json.RawMessage   ~json:"raw,omitempty"~
	Extra    any               ~json:"extra,omitempty"~
	Created  time.Time         ~json:"created"~
	Timeout  time.Duration     ~json:"timeout"~
	Ports    []int             ~json:"ports,omitempty"~
	Hidden   string            ~json:"-"~
	Count    int               ~json:",omitempty"~
	NoTag    bool
}

type widgetList struct {
	Items []Widget ~json:"items"~
}
`, "~", "`")

func parseGoSource(t *testing.T, src string) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(token.NewFileSet(), "fixture.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return file
}

func extractFixture(t *testing.T) (*GoWalker, *TypeRegistry) {
	t.Helper()
	w := NewGoWalker("./fixture", logr.Discard())
	reg := NewTypeRegistry()
	w.extractFile(reg, "fixture/v1", parseGoSource(t, goFixture))
	return w, reg
}

func TestGoWalker_ExportedStructsOnly(t *testing.T) {
	_, reg := extractFixture(t)
	want := []string{"Widget", "WidgetSpec"}
	if diff := cmp.Diff(want, reg.ModuleTypes("fixture/v1")); diff != "" {
		t.Errorf("registered types mismatch (-want +got):\n%s", diff)
	}
}

func TestGoWalker_FieldConversion(t *testing.T) {
	_, reg := extractFixture(t)
	def, ok := reg.Get("fixture/v1.WidgetSpec")
	if !ok {
		t.Fatal("WidgetSpec not registered")
	}
	fields := def.Type.Fields

	cases := []struct {
		name     string
		kind     types.Kind
		required bool
	}{
		{"selector", types.KindString, true},
		{"replicas", types.KindOptional, false},
		{"labels", types.KindMap, false},
		{"payload", types.KindString, false},
		{"raw", types.KindAny, false},
		{"extra", types.KindAny, false},
		{"created", types.KindString, true},
		{"timeout", types.KindInteger, true},
		{"ports", types.KindArray, false},
		{"Count", types.KindInteger, false},
		{"NoTag", types.KindBool, true},
	}
	for _, c := range cases {
		f, ok := fields[c.name]
		if !ok {
			t.Errorf("field %q missing", c.name)
			continue
		}
		if f.Type.Kind != c.kind {
			t.Errorf("field %q: expected %s, got %s", c.name, c.kind, f.Type.Kind)
		}
		if f.Required != c.required {
			t.Errorf("field %q: expected required=%v", c.name, c.required)
		}
	}

	if _, ok := fields["Hidden"]; ok {
		t.Error(`expected json:"-" field skipped`)
	}
	if _, ok := fields["internal"]; ok {
		t.Error("expected unexported field skipped")
	}
	if got := fields["replicas"].Type.Elem.Kind; got != types.KindInteger {
		t.Errorf("expected pointer to unwrap to Optional(Integer), got %s", got)
	}
	if got := fields["ports"].Type.Elem.Kind; got != types.KindInteger {
		t.Errorf("expected Array(Integer) ports, got %s", got)
	}
}

func TestGoWalker_MetaTypesAndDocs(t *testing.T) {
	_, reg := extractFixture(t)
	widget, ok := reg.Get("fixture/v1.Widget")
	if !ok {
		t.Fatal("Widget not registered")
	}
	if widget.Documentation != "Widget is a declarative widget." {
		t.Errorf("expected type doc carried over, got %q", widget.Documentation)
	}

	meta := widget.Type.Fields["metadata"]
	if meta.Type.Kind != types.KindRef || meta.Type.Name != "ObjectMeta" || meta.Type.Module != MetaV1Module {
		t.Errorf("expected metav1 selector mapped to ObjectMeta reference, got %+v", meta.Type)
	}
	if meta.Description != "Standard object metadata." {
		t.Errorf("expected field doc carried over, got %q", meta.Description)
	}

	spec := widget.Type.Fields["spec"].Type
	if spec.Kind != types.KindRef || spec.Name != "WidgetSpec" || spec.Module != "" {
		t.Errorf("expected bare local reference, got %+v", spec)
	}
}

func TestGoWalker_GeneratesObjectMetaImport(t *testing.T) {
	w, reg := extractFixture(t)
	graph, err := w.BuildDependencies(reg)
	if err != nil {
		t.Fatalf("BuildDependencies: %v", err)
	}
	ir, err := w.GenerateIR(reg, graph)
	if err != nil {
		t.Fatalf("GenerateIR: %v", err)
	}
	if len(ir.Modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(ir.Modules))
	}
	wantImports := []types.Import{
		{Path: "../../k8s_io/v1/objectmeta.ncl", Alias: "v1_objectmeta", Items: []string{"ObjectMeta"}},
	}
	if diff := cmp.Diff(wantImports, ir.Modules[0].Imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONFieldName(t *testing.T) {
	tag := func(v string) *ast.BasicLit {
		return &ast.BasicLit{Kind: token.STRING, Value: "`" + v + "`"}
	}
	cases := []struct {
		tag       *ast.BasicLit
		fallback  string
		name      string
		omitempty bool
		skip      bool
	}{
		{nil, "Name", "Name", false, false},
		{tag(`json:"name"`), "Name", "name", false, false},
		{tag(`json:"name,omitempty"`), "Name", "name", true, false},
		{tag(`json:",omitempty"`), "Name", "Name", true, false},
		{tag(`json:"-"`), "Name", "", false, true},
		{tag(`yaml:"name"`), "Name", "Name", false, false},
	}
	for _, c := range cases {
		name, omitempty, skip := jsonFieldName(c.tag, c.fallback)
		if name != c.name || omitempty != c.omitempty || skip != c.skip {
			t.Errorf("jsonFieldName(%v, %q) = (%q, %v, %v), want (%q, %v, %v)",
				c.tag, c.fallback, name, omitempty, skip, c.name, c.omitempty, c.skip)
		}
	}
}
