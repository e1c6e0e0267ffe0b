package pkggen

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/nickelgen/nickelgen/internal/codegen"
)

const (
	manifestFile = "Nickel-pkg.ncl"

	// minimalNickelVersion is the oldest interpreter whose package manager
	// understands the manifests emitted here.
	minimalNickelVersion = "1.9.0"

	defaultVersion = "0.1.0"
	defaultLicense = "Apache-2.0"
)

// Dependency names another generated package and the version requirement
// its manifest index entry pins.
type Dependency struct {
	Name    string
	Version string
}

// renderManifest builds Nickel-pkg.ncl for the generated tree. Dependencies
// come from scanning emitted imports for known sibling package directories,
// overridden or extended by explicit pins; every requirement is validated as
// a semver constraint before it is written.
func renderManifest(files map[string]string, opts Options) (string, error) {
	if opts.Name == "" {
		return "", errors.New("package mode requires a package name")
	}
	version, err := manifestVersion(opts.Version)
	if err != nil {
		return "", fmt.Errorf("package %s: %w", opts.Name, err)
	}

	deps := make(map[string]string)
	for _, root := range slices.Sorted(maps.Keys(opts.DetectRoots)) {
		dep := opts.DetectRoots[root]
		if dep.Name != opts.Name && importsRoot(files, root) {
			deps[dep.Name] = dep.Version
		}
	}
	maps.Copy(deps, opts.Dependencies)
	delete(deps, opts.Name)

	pinned := make([]Dependency, 0, len(deps))
	for _, name := range slices.Sorted(maps.Keys(deps)) {
		req, err := dependencyRequirement(deps[name])
		if err != nil {
			return "", fmt.Errorf("package %s: dependency %s: %w", opts.Name, name, err)
		}
		pinned = append(pinned, Dependency{Name: name, Version: req})
	}

	license := opts.License
	if license == "" {
		license = defaultLicense
	}

	e := codegen.NewEmitter()
	e.Line("# Nickel package manifest for %s", opts.Name)
	e.Line("{")
	e.Indent()
	e.Line("name = %q,", opts.Name)
	e.Line("version = %q,", version)
	e.Line("minimal_nickel_version = %q,", minimalNickelVersion)
	if opts.Description != "" {
		e.Line("description = %q,", opts.Description)
	}
	if len(opts.Keywords) > 0 {
		quoted := make([]string, len(opts.Keywords))
		for i, k := range opts.Keywords {
			quoted[i] = strconv.Quote(k)
		}
		e.Line("keywords = [%s],", strings.Join(quoted, ", "))
	}
	e.Line("authors = [%q],", "nickelgen")
	e.Line("license = %q,", license)
	if len(pinned) == 0 {
		e.Line("dependencies = {},")
	} else {
		e.Line("dependencies = {")
		e.Indent()
		for _, dep := range pinned {
			if opts.LocalPrefix != "" {
				e.Line(`%s = 'Path %q,`, dep.Name, opts.LocalPrefix+"/"+dep.Name)
				continue
			}
			pkg := dep.Name
			if opts.BasePackageID != "" {
				pkg = opts.BasePackageID + "/" + dep.Name
			}
			e.Line(`%s = 'Index { package = %q, version = %q },`, dep.Name, pkg, dep.Version)
		}
		e.Dedent()
		e.Line("},")
	}
	e.Dedent()
	e.Line("} | std.package.Manifest")
	return e.String(), nil
}

// manifestVersion strips a leading v and validates the remainder as an
// exact semantic version; the package's own version cannot be a range.
func manifestVersion(v string) (string, error) {
	if v == "" {
		return defaultVersion, nil
	}
	v = strings.TrimPrefix(v, "v")
	if _, err := semver.NewVersion(v); err != nil {
		return "", fmt.Errorf("version %q: %w", v, err)
	}
	return v, nil
}

// dependencyRequirement validates a dependency version as a semver
// constraint; the package index resolves ranges, so requirements looser
// than an exact pin are legal.
func dependencyRequirement(v string) (string, error) {
	if v == "" {
		return defaultVersion, nil
	}
	v = strings.TrimPrefix(v, "v")
	if _, err := semver.NewConstraint(v); err != nil {
		return "", fmt.Errorf("version requirement %q: %w", v, err)
	}
	return v, nil
}

// importsRoot reports whether any generated file imports from the sibling
// package directory root.
func importsRoot(files map[string]string, root string) bool {
	needle := "/" + root + "/"
	for _, content := range files {
		for line := range strings.Lines(content) {
			if strings.Contains(line, "import ") && strings.Contains(line, needle) {
				return true
			}
		}
	}
	return false
}
