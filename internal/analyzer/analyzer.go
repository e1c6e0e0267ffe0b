// Package analyzer detects which external packages a set of types depends
// on. It works from registered name and namespace mappings, not from
// special-cased sources: a reference belongs to a package when its simple
// name or its API group is registered to one.
package analyzer

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/nickelgen/nickelgen/internal/types"
)

// TypeReference is one detected cross-package type use.
type TypeReference struct {
	// FullName is the qualified reference, e.g.
	// "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta".
	FullName string
	// SimpleName is the bare type name, e.g. "ObjectMeta".
	SimpleName string
	// APIGroup is the namespace half of the reference, empty when the
	// name carries none.
	APIGroup string
	// SourceLocation is the dotted field path where the reference sits.
	SourceLocation string
}

// DetectedDependency is one external package requirement aggregated from
// type references.
type DetectedDependency struct {
	PackageName   string   `json:"packageName"`
	RequiredTypes []string `json:"requiredTypes"`
	APIVersion    string   `json:"apiVersion,omitempty"`
	IsCoreType    bool     `json:"isCoreType"`
}

// Analyzer classifies type references into providing packages. Mappings
// are registered up front; analysis itself is read-only, so one Analyzer
// may serve many modules.
type Analyzer struct {
	// typesByName maps simple type names to their providing package.
	typesByName map[string]string
	// packagesByGroup maps API groups to their providing package.
	packagesByGroup map[string]string
	// core marks packages whose types ship with the platform rather than
	// with a CRD bundle.
	core map[string]bool
	// currentPackage suppresses self-dependencies.
	currentPackage string
}

// New returns an analyzer with no registered mappings.
func New() *Analyzer {
	return &Analyzer{
		typesByName:     make(map[string]string),
		packagesByGroup: make(map[string]string),
		core:            make(map[string]bool),
	}
}

// CorePackage is the package name the built-in Kubernetes mappings
// register under.
const CorePackage = "k8s_io"

// kubernetesCoreTypes are the simple names CRDs reference constantly,
// keyed to the API group that owns them.
var kubernetesCoreTypes = map[string]string{
	"ObjectMeta":                "io.k8s.apimachinery.pkg.apis.meta.v1",
	"ListMeta":                  "io.k8s.apimachinery.pkg.apis.meta.v1",
	"LabelSelector":             "io.k8s.apimachinery.pkg.apis.meta.v1",
	"Time":                      "io.k8s.apimachinery.pkg.apis.meta.v1",
	"MicroTime":                 "io.k8s.apimachinery.pkg.apis.meta.v1",
	"Status":                    "io.k8s.apimachinery.pkg.apis.meta.v1",
	"StatusDetails":             "io.k8s.apimachinery.pkg.apis.meta.v1",
	"DeleteOptions":             "io.k8s.apimachinery.pkg.apis.meta.v1",
	"OwnerReference":            "io.k8s.apimachinery.pkg.apis.meta.v1",
	"ManagedFieldsEntry":        "io.k8s.apimachinery.pkg.apis.meta.v1",
	"Condition":                 "io.k8s.apimachinery.pkg.apis.meta.v1",
	"Volume":                    "io.k8s.api.core.v1",
	"VolumeMount":               "io.k8s.api.core.v1",
	"Container":                 "io.k8s.api.core.v1",
	"PodSpec":                   "io.k8s.api.core.v1",
	"PodTemplateSpec":           "io.k8s.api.core.v1",
	"ResourceRequirements":      "io.k8s.api.core.v1",
	"Affinity":                  "io.k8s.api.core.v1",
	"Toleration":                "io.k8s.api.core.v1",
	"EnvVar":                    "io.k8s.api.core.v1",
	"ObjectReference":           "io.k8s.api.core.v1",
	"LocalObjectReference":      "io.k8s.api.core.v1",
	"TypedLocalObjectReference": "io.k8s.api.core.v1",
	"SecretKeySelector":         "io.k8s.api.core.v1",
	"ConfigMapKeySelector":      "io.k8s.api.core.v1",
}

// RegisterCoreTypes registers the Kubernetes core mappings under
// CorePackage and marks it core.
func (a *Analyzer) RegisterCoreTypes() {
	for name, group := range kubernetesCoreTypes {
		a.typesByName[name] = CorePackage
		a.packagesByGroup[group] = CorePackage
	}
	a.core[CorePackage] = true
}

// RegisterType maps one simple type name to its providing package.
func (a *Analyzer) RegisterType(simpleName, pkg string) {
	a.typesByName[simpleName] = pkg
}

// RegisterGroup maps one API group to its providing package.
func (a *Analyzer) RegisterGroup(group, pkg string) {
	a.packagesByGroup[group] = pkg
}

// RegisterPackageURL infers the API groups a package serves from its
// GitHub URL and registers them. Non-GitHub URLs register nothing.
func (a *Analyzer) RegisterPackageURL(pkg, url string) {
	_, rest, ok := strings.Cut(url, "github.com/")
	if !ok {
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" {
		return
	}
	org := parts[0]

	var groups []string
	switch {
	case strings.Contains(org, "crossplane"):
		groups = []string{"apiextensions." + org + ".io", org + ".io"}
	case org == "prometheus-operator":
		groups = []string{"monitoring.coreos.com"}
	case org == "cert-manager":
		groups = []string{"cert-manager.io", "acme.cert-manager.io"}
	default:
		groups = []string{strings.ReplaceAll(org, "-", ".") + ".io", org + ".com"}
	}
	for _, group := range groups {
		a.packagesByGroup[group] = pkg
	}
}

// SetCurrentPackage names the package under analysis so its own types do
// not count as dependencies.
func (a *Analyzer) SetCurrentPackage(pkg string) {
	a.currentPackage = pkg
}

// Analyze collects every registered cross-package reference reachable from
// t. location roots the reported field paths, typically the type's name.
func (a *Analyzer) Analyze(t types.Type, location string) []TypeReference {
	var refs []TypeReference
	types.WalkPath(t, location, func(path string, node types.Type) bool {
		if node.Kind != types.KindRef {
			return true
		}
		full := node.Name
		if node.Module != "" {
			full = node.Module + "." + node.Name
		}
		if ref, ok := a.parseReference(full, path); ok {
			refs = append(refs, ref)
		}
		return true
	})
	return refs
}

// AnalyzeModule runs Analyze over every definition in m.
func (a *Analyzer) AnalyzeModule(m types.Module) []TypeReference {
	var refs []TypeReference
	for _, def := range m.Types {
		refs = append(refs, a.Analyze(def.Type, def.Name)...)
	}
	return refs
}

// AnalyzeIR classifies every cross-package reference in the IR into the
// packages that must be depended upon.
func (a *Analyzer) AnalyzeIR(ir types.IR) []DetectedDependency {
	var refs []TypeReference
	for _, m := range ir.Modules {
		refs = append(refs, a.AnalyzeModule(m)...)
	}
	return a.DetermineDependencies(refs)
}

// parseReference decides whether a qualified name is a registered external
// reference.
func (a *Analyzer) parseReference(full, location string) (TypeReference, bool) {
	simple := full
	if i := strings.LastIndex(simple, "."); i >= 0 {
		simple = simple[i+1:]
	}
	ref := TypeReference{
		FullName:       full,
		SimpleName:     simple,
		APIGroup:       extractAPIGroup(full),
		SourceLocation: location,
	}

	if pkg, ok := a.typesByName[simple]; ok && pkg != a.currentPackage {
		return ref, true
	}
	if _, ok := a.lookupGroup(ref.APIGroup); ok {
		return ref, true
	}
	return TypeReference{}, false
}

// lookupGroup resolves an API group to its package, accepting both bare
// groups and "{group}/{version}" module coordinates.
func (a *Analyzer) lookupGroup(group string) (string, bool) {
	if group == "" {
		return "", false
	}
	if pkg, ok := a.packagesByGroup[group]; ok {
		return pkg, true
	}
	if i := strings.Index(group, "/"); i >= 0 {
		if pkg, ok := a.packagesByGroup[group[:i]]; ok {
			return pkg, true
		}
	}
	return "", false
}

// extractAPIGroup strips the type name from a qualified reference. Single
// segments have no group to extract.
func extractAPIGroup(full string) string {
	i := strings.LastIndex(full, ".")
	if i < 0 {
		return ""
	}
	group := full[:i]
	if !strings.Contains(group, ".") && !strings.Contains(group, "/") {
		return ""
	}
	return group
}

// DetermineDependencies groups references by providing package. References
// belonging to no registered package, or to the current one, drop out.
// Output is sorted by package name with sorted type lists.
func (a *Analyzer) DetermineDependencies(refs []TypeReference) []DetectedDependency {
	byPkg := make(map[string]*DetectedDependency)
	for _, ref := range refs {
		pkg, ok := a.typesByName[ref.SimpleName]
		if !ok {
			pkg, ok = a.lookupGroup(ref.APIGroup)
		}
		if !ok || pkg == a.currentPackage {
			continue
		}
		dep, seen := byPkg[pkg]
		if !seen {
			dep = &DetectedDependency{
				PackageName: pkg,
				APIVersion:  ref.APIGroup,
				IsCoreType:  a.core[pkg],
			}
			byPkg[pkg] = dep
		}
		if !slices.Contains(dep.RequiredTypes, ref.SimpleName) {
			dep.RequiredTypes = append(dep.RequiredTypes, ref.SimpleName)
		}
	}

	out := make([]DetectedDependency, 0, len(byPkg))
	for _, name := range slices.Sorted(maps.Keys(byPkg)) {
		dep := byPkg[name]
		slices.Sort(dep.RequiredTypes)
		out = append(out, *dep)
	}
	return out
}

// GenerateImports renders one import line per dependency. Package mode
// imports by package name; otherwise the path is relative to a
// "{package}/{group}/{version}" output layout.
func GenerateImports(deps []DetectedDependency, packageMode bool) []string {
	imports := make([]string, 0, len(deps))
	for _, dep := range deps {
		alias := strings.ReplaceAll(dep.PackageName, "-", "_")
		path := dep.PackageName
		if !packageMode {
			path = "../../../" + dep.PackageName + "/mod.ncl"
		}
		imports = append(imports, fmt.Sprintf("let %s = import %q in", alias, path))
	}
	return imports
}
