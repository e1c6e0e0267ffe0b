package analyzer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nickelgen/nickelgen/internal/types"
)

const metaV1 = "io.k8s.apimachinery.pkg.apis.meta.v1"

func widgetType() types.Type {
	return types.RecordOf(map[string]types.Field{
		"metadata": {Type: types.ModuleRef("ObjectMeta", metaV1)},
		"spec": {Type: types.RecordOf(map[string]types.Field{
			"template": {Type: types.ModuleRef("PodTemplateSpec", "io.k8s.api.core.v1")},
			"custom":   {Type: types.Ref("WidgetSpec")},
		}, false)},
	}, false)
}

func TestAnalyze_DetectsRegisteredReferences(t *testing.T) {
	a := New()
	a.RegisterCoreTypes()

	refs := a.Analyze(widgetType(), "Widget")
	want := []TypeReference{
		{
			FullName:       metaV1 + ".ObjectMeta",
			SimpleName:     "ObjectMeta",
			APIGroup:       metaV1,
			SourceLocation: "Widget.metadata",
		},
		{
			FullName:       "io.k8s.api.core.v1.PodTemplateSpec",
			SimpleName:     "PodTemplateSpec",
			APIGroup:       "io.k8s.api.core.v1",
			SourceLocation: "Widget.spec.template",
		},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze_UnregisteredReferencesDrop(t *testing.T) {
	a := New()
	a.RegisterCoreTypes()

	refs := a.Analyze(types.Ref("WidgetSpec"), "Widget")
	if len(refs) != 0 {
		t.Errorf("expected no references, got %+v", refs)
	}
}

func TestDetermineDependencies_GroupsByPackage(t *testing.T) {
	a := New()
	a.RegisterCoreTypes()
	a.SetCurrentPackage("crossplane")

	refs := a.Analyze(widgetType(), "Widget")
	deps := a.DetermineDependencies(refs)
	if len(deps) != 1 {
		t.Fatalf("expected 1 dependency, got %+v", deps)
	}
	dep := deps[0]
	if dep.PackageName != CorePackage || !dep.IsCoreType {
		t.Errorf("expected core k8s_io dependency, got %+v", dep)
	}
	if diff := cmp.Diff([]string{"ObjectMeta", "PodTemplateSpec"}, dep.RequiredTypes); diff != "" {
		t.Errorf("required types mismatch (-want +got):\n%s", diff)
	}
	if dep.APIVersion != metaV1 {
		t.Errorf("expected first-seen API group, got %q", dep.APIVersion)
	}
}

func TestDetermineDependencies_OwnPackageSuppressed(t *testing.T) {
	a := New()
	a.RegisterCoreTypes()
	a.SetCurrentPackage(CorePackage)

	refs := a.Analyze(widgetType(), "Widget")
	if deps := a.DetermineDependencies(refs); len(deps) != 0 {
		t.Errorf("expected no self-dependency, got %+v", deps)
	}
}

func TestRegisterPackageURL(t *testing.T) {
	cases := []struct {
		pkg    string
		url    string
		groups []string
	}{
		{"crossplane", "https://github.com/crossplane/crossplane", []string{"apiextensions.crossplane.io", "crossplane.io"}},
		{"prometheus", "https://github.com/prometheus-operator/prometheus-operator", []string{"monitoring.coreos.com"}},
		{"cert-manager", "https://github.com/cert-manager/cert-manager", []string{"cert-manager.io", "acme.cert-manager.io"}},
		{"argo", "https://github.com/argoproj/argo-cd", []string{"argoproj.io", "argoproj.com"}},
	}
	for _, c := range cases {
		a := New()
		a.RegisterPackageURL(c.pkg, c.url)
		for _, group := range c.groups {
			if pkg, ok := a.lookupGroup(group); !ok || pkg != c.pkg {
				t.Errorf("RegisterPackageURL(%q): group %q missing", c.url, group)
			}
		}
	}

	a := New()
	a.RegisterPackageURL("x", "https://gitlab.com/org/repo")
	if len(a.packagesByGroup) != 0 {
		t.Errorf("expected non-GitHub URL to register nothing, got %v", a.packagesByGroup)
	}
}

func TestLookupGroup_ModuleCoordinates(t *testing.T) {
	a := New()
	a.RegisterPackageURL("crossplane", "https://github.com/crossplane/crossplane")

	refs := a.Analyze(types.ModuleRef("Composition", "apiextensions.crossplane.io/v1"), "XRD")
	if len(refs) != 1 {
		t.Fatalf("expected module-coordinate reference detected, got %+v", refs)
	}
	deps := a.DetermineDependencies(refs)
	if len(deps) != 1 || deps[0].PackageName != "crossplane" {
		t.Fatalf("expected crossplane dependency, got %+v", deps)
	}
	if deps[0].APIVersion != "apiextensions.crossplane.io/v1" {
		t.Errorf("expected versioned API group kept, got %q", deps[0].APIVersion)
	}
}

func TestAnalyzeModule_AggregatesDefinitions(t *testing.T) {
	a := New()
	a.RegisterCoreTypes()

	m := types.Module{
		Name: "example.io/v1",
		Types: []types.TypeDefinition{
			{Name: "Widget", Type: types.RecordOf(map[string]types.Field{
				"metadata": {Type: types.ModuleRef("ObjectMeta", metaV1)},
			}, false)},
			{Name: "Gauge", Type: types.RecordOf(map[string]types.Field{
				"selector": {Type: types.ModuleRef("LabelSelector", metaV1)},
			}, false)},
		},
	}
	refs := a.AnalyzeModule(m)
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %+v", refs)
	}
	if refs[0].SourceLocation != "Widget.metadata" || refs[1].SourceLocation != "Gauge.selector" {
		t.Errorf("unexpected locations %q, %q", refs[0].SourceLocation, refs[1].SourceLocation)
	}
}

func TestAnalyzeIR_ClassifiesAcrossModules(t *testing.T) {
	a := New()
	a.RegisterCoreTypes()
	a.SetCurrentPackage("widgets")

	ir := types.NewIRBuilder().
		Module("example.io/v1").
		AddType("Widget", types.RecordOf(map[string]types.Field{
			"metadata": {Type: types.ModuleRef("ObjectMeta", metaV1)},
		}, false)).
		Module("example.io/v2").
		AddType("Gauge", types.RecordOf(map[string]types.Field{
			"selector": {Type: types.ModuleRef("LabelSelector", metaV1)},
		}, false)).
		Build()

	deps := a.AnalyzeIR(ir)
	if len(deps) != 1 || deps[0].PackageName != CorePackage {
		t.Fatalf("expected one core dependency, got %+v", deps)
	}
	want := []string{"LabelSelector", "ObjectMeta"}
	if diff := cmp.Diff(want, deps[0].RequiredTypes); diff != "" {
		t.Errorf("required types mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateImports(t *testing.T) {
	deps := []DetectedDependency{
		{PackageName: "cert-manager"},
		{PackageName: "k8s_io"},
	}

	pkgMode := GenerateImports(deps, true)
	wantPkg := []string{
		`let cert_manager = import "cert-manager" in`,
		`let k8s_io = import "k8s_io" in`,
	}
	if diff := cmp.Diff(wantPkg, pkgMode); diff != "" {
		t.Errorf("package-mode imports mismatch (-want +got):\n%s", diff)
	}

	relative := GenerateImports(deps, false)
	wantRel := []string{
		`let cert_manager = import "../../../cert-manager/mod.ncl" in`,
		`let k8s_io = import "../../../k8s_io/mod.ncl" in`,
	}
	if diff := cmp.Diff(wantRel, relative); diff != "" {
		t.Errorf("relative imports mismatch (-want +got):\n%s", diff)
	}
}
