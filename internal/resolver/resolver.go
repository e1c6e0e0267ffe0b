// Package resolver qualifies type references against a module's imports
// without special-casing any schema source. It serves IR that did not come
// through a walker (hand-built modules, legacy inputs), where references
// may be short names, reverse-DNS names, or group/version/kind paths.
package resolver

import (
	"maps"
	"slices"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/nickelgen/nickelgen/internal/types"
)

// Table maps short type names to fully-qualified references. It is
// read-only configuration: the resolver copies it at construction.
type Table map[string]string

// DefaultTable returns the built-in short-name mappings for the
// apimachinery meta types every Kubernetes manifest touches.
func DefaultTable() Table {
	return Table{
		"ObjectMeta":    "io.k8s.apimachinery.pkg.apis.meta.v1.ObjectMeta",
		"ListMeta":      "io.k8s.apimachinery.pkg.apis.meta.v1.ListMeta",
		"LabelSelector": "io.k8s.apimachinery.pkg.apis.meta.v1.LabelSelector",
		"Time":          "io.k8s.apimachinery.pkg.apis.meta.v1.Time",
		"MicroTime":     "io.k8s.apimachinery.pkg.apis.meta.v1.MicroTime",
		"Duration":      "io.k8s.apimachinery.pkg.apis.meta.v1.Duration",
	}
}

// ParseTable decodes a YAML or JSON short-name mapping, so deployments can
// extend the built-in table without a rebuild.
func ParseTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// Resolution is one cached resolver answer.
type Resolution struct {
	// ResolvedName is the reference to use in generated code.
	ResolvedName string
	// RequiredImport is the module import that provides the type, nil when
	// the type is local or unresolved.
	RequiredImport *types.Import
}

// Context carries the coordinates of the type being generated. The
// built-in strategies resolve from the reference and module alone.
type Context struct {
	Group   string
	Version string
	Kind    string
}

// Resolver resolves references in strategy order: cache, short-name table,
// import item match, import namespace matching, local types, unchanged. It
// never fails hard; an unresolved reference comes back as-is and the caller
// decides.
//
// The cache is owned by one Resolver and one Resolver serves one
// generation run. Independent runs use independent instances.
type Resolver struct {
	cache map[string]Resolution
	table Table
}

// New returns a resolver using the given short-name table. A nil table
// means DefaultTable.
func New(table Table) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	return &Resolver{
		cache: make(map[string]Resolution),
		table: maps.Clone(table),
	}
}

// Resolve qualifies reference for use inside module.
func (r *Resolver) Resolve(reference string, module *types.Module, _ Context) string {
	if cached, ok := r.cache[reference]; ok {
		return cached.ResolvedName
	}

	full := reference
	if expanded, ok := r.table[reference]; ok {
		full = expanded
	}

	// Imports that declare their exported items are matched exactly before
	// any namespace heuristics run. An import whose alias already prefixes
	// the reference wins outright, so qualified names stay stable when two
	// imports export the same item name.
	for i := range module.Imports {
		imp := module.Imports[i]
		if resolved, ok := resolveByItem(full, imp); ok && resolved == full {
			r.cache[reference] = Resolution{ResolvedName: resolved, RequiredImport: &imp}
			return resolved
		}
	}
	for i := range module.Imports {
		imp := module.Imports[i]
		if resolved, ok := resolveByItem(full, imp); ok {
			r.cache[reference] = Resolution{ResolvedName: resolved, RequiredImport: &imp}
			return resolved
		}
	}

	for i := range module.Imports {
		imp := module.Imports[i]
		if resolved, ok := resolveWithImport(full, imp); ok {
			r.cache[reference] = Resolution{ResolvedName: resolved, RequiredImport: &imp}
			return resolved
		}
	}

	if module.LocalType(reference) {
		r.cache[reference] = Resolution{ResolvedName: reference}
		return reference
	}

	return reference
}

// resolveByItem qualifies reference through one import when the import
// explicitly lists the referenced type among its items.
func resolveByItem(reference string, imp types.Import) (string, bool) {
	name := typeName(reference)
	if !slices.Contains(imp.Items, name) {
		return "", false
	}
	prefix := imp.Alias
	if prefix == "" {
		info, ok := parseImportPath(imp.Path)
		if !ok {
			return "", false
		}
		prefix = info.moduleName
	}
	return prefix + "." + name, true
}

// resolveWithImport qualifies reference through one import if the import's
// namespace plausibly provides it.
func resolveWithImport(reference string, imp types.Import) (string, bool) {
	info, ok := parseImportPath(imp.Path)
	if !ok || !info.matches(reference) {
		return "", false
	}
	prefix := imp.Alias
	if prefix == "" {
		prefix = info.moduleName
	}
	return prefix + "." + typeName(reference), true
}

// typeName extracts the bare type name from any reference shape:
// "group/version/Kind" and "io.k8s...v1.Kind" both end in the kind.
func typeName(reference string) string {
	if i := strings.LastIndex(reference, "/"); i >= 0 {
		reference = reference[i+1:]
	}
	if i := strings.LastIndex(reference, "."); i >= 0 {
		reference = reference[i+1:]
	}
	return reference
}

type importInfo struct {
	moduleName string
	namespace  string
}

// matches reports whether any dot-segment of the import's namespace
// appears verbatim in the reference.
func (info importInfo) matches(reference string) bool {
	if info.namespace == "" {
		return false
	}
	for _, part := range strings.Split(info.namespace, ".") {
		if strings.Contains(reference, part) {
			return true
		}
	}
	return false
}

// parseImportPath derives a module name and namespace from an import path.
// "../../k8s_io/v1/objectmeta.ncl" yields module "objectmeta" in namespace
// "k8s_io.v1"; a "mod" file takes its parent directory's name.
func parseImportPath(path string) (importInfo, bool) {
	path = strings.TrimSuffix(path, ".ncl")

	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return importInfo{}, false
	}

	moduleName := parts[len(parts)-1]
	if moduleName == "mod" && len(parts) > 1 {
		moduleName = parts[len(parts)-2]
	}
	var namespace string
	if len(parts) > 1 {
		namespace = strings.Join(parts[:len(parts)-1], ".")
	}
	return importInfo{moduleName: moduleName, namespace: namespace}, true
}
