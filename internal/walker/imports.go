package walker

import (
	"regexp"
	"strings"
)

// TypeRef locates one type in group/version/kind coordinates.
type TypeRef struct {
	Group   string
	Version string
	Kind    string
}

var versionSegmentRE = regexp.MustCompile(`^v[0-9]+((alpha|beta)[0-9]*)?$`)

// IsVersionSegment reports whether s looks like an API version directory
// (v1, v2, v1beta1, v1alpha2, ...).
func IsVersionSegment(s string) bool {
	return versionSegmentRE.MatchString(s)
}

// ParseTypeRef understands the qualified-name forms walkers produce:
// reverse-DNS Kubernetes definition names, "{group}/{version}.{Kind}" module
// names, dotted "{group}.{version}.{Kind}" names, and bare
// "{version}.{Kind}" names (which default to the core package).
func ParseTypeRef(name string) (TypeRef, bool) {
	if IsK8sName(name) {
		ref, err := ParseK8sName(name)
		return ref, err == nil
	}
	dot := strings.LastIndex(name, ".")
	if dot < 0 || dot == len(name)-1 {
		return TypeRef{}, false
	}
	owner, kind := name[:dot], name[dot+1:]
	if strings.Contains(owner, "/") {
		segs := strings.Split(owner, "/")
		version := segs[len(segs)-1]
		if len(segs) < 2 || !IsVersionSegment(version) {
			return TypeRef{}, false
		}
		return TypeRef{Group: segs[0], Version: version, Kind: kind}, true
	}
	parts := strings.Split(owner, ".")
	last := parts[len(parts)-1]
	if !IsVersionSegment(last) {
		return TypeRef{}, false
	}
	if len(parts) == 1 {
		// Bare "{version}.{Kind}" names belong to the core package.
		return TypeRef{Group: "k8s.io", Version: last, Kind: kind}, true
	}
	return TypeRef{
		Group:   strings.Join(parts[:len(parts)-1], "."),
		Version: last,
		Kind:    kind,
	}, true
}

// ParseModuleRef splits a "{group}/{version}" module name into consumer
// coordinates (Kind left empty).
func ParseModuleRef(module string) (TypeRef, bool) {
	slash := strings.LastIndex(module, "/")
	if slash < 0 {
		return TypeRef{}, false
	}
	group, version := module[:slash], module[slash+1:]
	if group == "" || !IsVersionSegment(version) {
		return TypeRef{}, false
	}
	return TypeRef{Group: group, Version: version}, true
}

// UnversionedBucket is the reserved pseudo-version directory for types with
// no API version of their own (runtime and util helpers).
const UnversionedBucket = "v0"

// AuthoritativeVersion is the version directory that owns the platform meta
// types inside the core package; every sibling version imports from it.
const AuthoritativeVersion = "v1"

// Calculator computes relative import paths and aliases between generated
// files. Generated files live at {package}/[{group-subdir}/]{version}/file;
// paths climb from the consumer's directory to the shared root of all
// packages, then descend to the target file. The group to package-directory
// table is fixed at construction.
type Calculator struct {
	packages map[string]string
}

// NewCalculator returns a calculator with the built-in package table.
func NewCalculator() *Calculator {
	return &Calculator{packages: map[string]string{
		"k8s.io":                      "k8s_io",
		"apiextensions.crossplane.io": "crossplane",
	}}
}

// WithPackageDir maps group to an explicit package directory and returns
// the calculator for chaining during construction.
func (c *Calculator) WithPackageDir(group, dir string) *Calculator {
	c.packages[group] = dir
	return c
}

// PackageDir returns the top-level directory a group's files live under.
// Kubernetes groups all share the core package. A multi-segment group
// ending in a TLD collapses to its organization segment; anything else is
// sanitized whole.
func (c *Calculator) PackageDir(group string) string {
	if dir, ok := c.packages[group]; ok {
		return dir
	}
	if group == "k8s.io" || strings.HasSuffix(group, ".k8s.io") {
		return "k8s_io"
	}
	parts := strings.Split(group, ".")
	if len(parts) >= 3 {
		switch parts[len(parts)-1] {
		case "io", "com", "org":
			return sanitizeSegment(parts[len(parts)-2])
		}
	}
	return sanitizeSegment(group)
}

// GroupSubdir reports whether group needs its own subdirectory inside its
// package (true when several groups collapse into one package directory),
// and the subdirectory name to use. Kubernetes groups share flat version
// directories and never get one.
func (c *Calculator) GroupSubdir(group string) (string, bool) {
	if group == "k8s.io" || strings.HasSuffix(group, ".k8s.io") {
		return "", false
	}
	if c.PackageDir(group) != sanitizeSegment(group) && strings.Contains(group, ".") {
		return group, true
	}
	return "", false
}

// FileName is the emitted file name for a kind.
func FileName(kind string) string {
	return strings.ToLower(kind) + ".ncl"
}

// ImportPath computes the relative path from the consumer's generated file
// to the target's. Same package and version yields a same-directory import;
// same package across versions yields a sibling-directory import; anything
// else climbs to the package root and descends.
func (c *Calculator) ImportPath(from, to TypeRef) string {
	fromPkg := c.PackageDir(from.Group)
	toPkg := c.PackageDir(to.Group)
	file := FileName(to.Kind)

	if fromPkg == toPkg {
		fromSub, _ := c.GroupSubdir(from.Group)
		toSub, _ := c.GroupSubdir(to.Group)
		if fromSub == toSub {
			if from.Version == to.Version {
				return "./" + file
			}
			return "../" + to.Version + "/" + file
		}
	}

	ups := 2 // {package}/{version}/file
	if _, ok := c.GroupSubdir(from.Group); ok {
		ups = 3 // {package}/{group-subdir}/{version}/file
	}
	var b strings.Builder
	for range ups {
		b.WriteString("../")
	}
	b.WriteString(toPkg)
	b.WriteString("/")
	if sub, ok := c.GroupSubdir(to.Group); ok {
		b.WriteString(sub)
		b.WriteString("/")
	}
	b.WriteString(to.Version)
	b.WriteString("/")
	b.WriteString(file)
	return b.String()
}

// Alias picks the import alias for one imported type. An explicit alias
// wins; the "{version}_{lowercased-kind}" default keeps same-named kinds
// from different versions distinct within one module.
func Alias(to TypeRef, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return sanitizeSegment(to.Version) + "_" + strings.ToLower(to.Kind)
}

// ModuleAlias derives a stable alias for a whole group/version module.
func ModuleAlias(ref TypeRef) string {
	return sanitizeSegment(ref.Group) + "_" + sanitizeSegment(ref.Version)
}

// PackageAlias derives an alias for a package or file import from its last
// meaningful path segment, falling back past "mod" to the directory name.
func PackageAlias(path string) string {
	trimmed := strings.TrimSuffix(path, ".ncl")
	segs := strings.Split(trimmed, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		switch segs[i] {
		case "", ".", "..":
			continue
		case "mod":
			if i > 0 {
				return sanitizeSegment(segs[i-1])
			}
		}
		return sanitizeSegment(segs[i])
	}
	return sanitizeSegment(trimmed)
}

func sanitizeSegment(s string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(s)
}
