package config

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ValidationResult holds manifest validation results.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidateDetailed performs thorough manifest validation. Errors block
// generation; warnings flag drift a maintainer should look at.
func (m *Manifest) ValidateDetailed() *ValidationResult {
	res := &ValidationResult{}

	if m.Config.OutputBase == "" {
		res.Errors = append(res.Errors, "config.outputBase: required")
	}
	if m.Config.PackageModeOn() && m.Config.BasePackageID == "" {
		res.Errors = append(res.Errors, "config.basePackageID: required when package mode is on")
	}
	if len(m.Packages) == 0 {
		res.Warnings = append(res.Warnings, "packages: empty manifest generates nothing")
	}

	names := make(map[string]bool, len(m.Packages))
	outputs := make(map[string]string, len(m.Packages))
	for i, p := range m.Packages {
		at := fmt.Sprintf("packages[%d]", i)
		if p.Name != "" {
			at = fmt.Sprintf("packages[%d] (%s)", i, p.Name)
		}

		if p.Name == "" {
			res.Errors = append(res.Errors, at+": name is required")
		} else if names[p.Name] {
			res.Errors = append(res.Errors, at+": duplicate package name")
		}
		names[p.Name] = true

		if p.Output == "" {
			res.Errors = append(res.Errors, at+": output is required")
		} else if prev, dup := outputs[p.Output]; dup {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: output %q already used by %s", at, p.Output, prev))
		} else {
			outputs[p.Output] = p.Name
		}

		if !sourceTypes[p.Type] {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: unknown type %q (want %s)", at, p.Type, knownSourceTypes()))
		}

		switch p.Type {
		case SourceURL:
			if p.URL == "" {
				res.Errors = append(res.Errors, at+": url is required for url packages")
			} else if _, err := url.Parse(p.URL); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: url does not parse: %v", at, err))
			} else if p.GitRef == "" {
				res.Warnings = append(res.Warnings, at+": url source has no gitRef, the fetched content floats with the default branch")
			}
		case SourceCRD, SourceOpenAPI, SourceGo:
			if p.File == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: file is required for %s packages", at, p.Type))
			}
		case SourceK8sCore:
			if p.Version == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no version pinned, defaulting to %s", at, DefaultK8sVersion))
			}
		}

		if p.Version != "" {
			if _, err := semver.NewVersion(strings.TrimPrefix(p.Version, "v")); err != nil {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("%s: version %q is not semver, package mode cannot stamp it into a manifest", at, p.Version))
			}
		}

		for _, dep := range slices.Sorted(maps.Keys(p.Dependencies)) {
			spec := p.Dependencies[dep]
			if spec.Version == "" && spec.MinVersion == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: dependency %q has no version constraint", at, dep))
				continue
			}
			if spec.Version != "" {
				if _, err := semver.NewConstraint(strings.TrimPrefix(spec.Version, "v")); err != nil {
					res.Errors = append(res.Errors,
						fmt.Sprintf("%s: dependency %q constraint %q does not parse: %v", at, dep, spec.Version, err))
				}
			}
			if spec.MinVersion != "" {
				if _, err := semver.NewVersion(strings.TrimPrefix(spec.MinVersion, "v")); err != nil {
					res.Errors = append(res.Errors,
						fmt.Sprintf("%s: dependency %q minVersion %q does not parse: %v", at, dep, spec.MinVersion, err))
				}
			}
		}
	}

	// A dependency may name either the package or its output directory.
	// Names outside the manifest can still be external index packages, so
	// they only warn.
	known := make(map[string]bool, len(m.Packages)*2)
	for _, p := range m.Packages {
		known[p.Name] = true
		known[p.Output] = true
	}
	for _, p := range m.Packages {
		for _, dep := range slices.Sorted(maps.Keys(p.Dependencies)) {
			if !known[dep] {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("package %s depends on %q, which is not in this manifest", p.Name, dep))
			}
		}
	}

	return res
}

func knownSourceTypes() string {
	return strings.Join([]string{
		string(SourceK8sCore), string(SourceURL), string(SourceCRD), string(SourceOpenAPI), string(SourceGo),
	}, "|")
}
