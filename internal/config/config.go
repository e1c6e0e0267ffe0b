// Package config loads and validates the generation manifest: the global
// settings plus the list of packages to generate.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// DefaultManifestPath is where the CLI looks for a manifest when none is
// given.
const DefaultManifestPath = "nickelgen.yaml"

// DefaultK8sVersion is the Kubernetes release fetched when a k8s-core
// package does not pin one.
const DefaultK8sVersion = "v1.31.0"

// SourceType discriminates where a package's schemas come from.
type SourceType string

const (
	// SourceK8sCore fetches the upstream Kubernetes OpenAPI document and
	// generates the core types package.
	SourceK8sCore SourceType = "k8s-core"
	// SourceURL fetches CRD manifests from a URL (direct file or GitHub
	// tree/blob).
	SourceURL SourceType = "url"
	// SourceCRD reads CRD manifests from a local file.
	SourceCRD SourceType = "crd"
	// SourceOpenAPI reads an OpenAPI 2.0 document from a local file.
	SourceOpenAPI SourceType = "openapi"
	// SourceGo extracts exported struct types from a local Go package.
	SourceGo SourceType = "go"
)

// sourceTypes lists every accepted type value.
var sourceTypes = map[SourceType]bool{
	SourceK8sCore: true,
	SourceURL:     true,
	SourceCRD:     true,
	SourceOpenAPI: true,
	SourceGo:      true,
}

// Manifest is the decoded generation manifest.
type Manifest struct {
	Config   Settings  `json:"config"`
	Packages []Package `json:"packages"`
}

// Settings holds the manifest-wide knobs.
type Settings struct {
	// OutputBase is the directory every package output nests under.
	OutputBase string `json:"outputBase"`

	// PackageMode emits a Nickel-pkg.ncl manifest per package. Unset
	// means on.
	PackageMode *bool `json:"packageMode,omitempty"`

	// BasePackageID prefixes package names in dependency entries, for
	// example "github/example/nickel-pkgs".
	BasePackageID string `json:"basePackageID,omitempty"`

	// LocalPackagePrefix, when set, marks a development layout where
	// sibling packages resolve by path rather than through an index.
	LocalPackagePrefix string `json:"localPackagePrefix,omitempty"`
}

// PackageModeOn reports whether package manifests should be emitted.
func (s Settings) PackageModeOn() bool {
	return s.PackageMode == nil || *s.PackageMode
}

// Package defines one package to generate.
type Package struct {
	Name        string     `json:"name"`
	Type        SourceType `json:"type"`
	Version     string     `json:"version,omitempty"`
	URL         string     `json:"url,omitempty"`
	GitRef      string     `json:"gitRef,omitempty"`
	File        string     `json:"file,omitempty"`
	Output      string     `json:"output"`
	Description string     `json:"description,omitempty"`
	Keywords    []string   `json:"keywords,omitempty"`

	// Dependencies pins other packages by name to semver constraints.
	Dependencies map[string]Dependency `json:"dependencies,omitempty"`

	// Enabled gates the package. Unset means enabled.
	Enabled *bool `json:"enabled,omitempty"`
}

// Active reports whether the package takes part in generation.
func (p Package) Active() bool {
	return p.Enabled == nil || *p.Enabled
}

// EffectiveVersion returns the pinned version, or the default Kubernetes
// release for k8s-core packages.
func (p Package) EffectiveVersion() string {
	if p.Version == "" && p.Type == SourceK8sCore {
		return DefaultK8sVersion
	}
	return p.Version
}

// ResolvedURL returns the source URL with the package's gitRef applied. A
// tree URL has its ref segment replaced; a URL without one gets a tree ref
// appended.
func (p Package) ResolvedURL() string {
	if p.GitRef == "" {
		return p.URL
	}
	base, rest, found := strings.Cut(p.URL, "/tree/")
	if !found {
		return strings.TrimSuffix(p.URL, "/") + "/tree/" + p.GitRef
	}
	if _, path, ok := strings.Cut(rest, "/"); ok {
		return base + "/tree/" + p.GitRef + "/" + path
	}
	return base + "/tree/" + p.GitRef
}

// Dependency pins another package. The YAML form is either a bare
// constraint string or an object with a version member.
type Dependency struct {
	Version    string `json:"version"`
	MinVersion string `json:"minVersion,omitempty"`
}

func (d *Dependency) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &d.Version)
	}
	type plain Dependency
	return json.Unmarshal(data, (*plain)(d))
}

// Load reads and validates a manifest file, YAML or JSON.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}

	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %q: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %q: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest for errors that make generation impossible.
// Softer diagnostics live in ValidateDetailed.
func (m *Manifest) Validate() error {
	res := m.ValidateDetailed()
	if len(res.Errors) > 0 {
		return fmt.Errorf("%s", strings.Join(res.Errors, "; "))
	}
	return nil
}

// Select returns the active packages named in names, or every active
// package when names is empty. Unknown names are errors.
func (m *Manifest) Select(names []string) ([]Package, error) {
	byName := make(map[string]Package, len(m.Packages))
	for _, p := range m.Packages {
		byName[p.Name] = p
	}

	if len(names) == 0 {
		var out []Package
		for _, p := range m.Packages {
			if p.Active() {
				out = append(out, p)
			}
		}
		return out, nil
	}

	var out []Package
	for _, name := range names {
		p, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("manifest has no package named %q", name)
		}
		if p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}
