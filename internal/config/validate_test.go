package config

import (
	"strings"
	"testing"
)

func validManifest() *Manifest {
	return &Manifest{
		Config: Settings{
			OutputBase:    "out/pkgs",
			BasePackageID: "github/example/nickel-pkgs",
		},
		Packages: []Package{
			{
				Name:    "k8s-io",
				Type:    SourceK8sCore,
				Version: "v1.31.0",
				Output:  "k8s_io",
			},
			{
				Name:   "crossplane",
				Type:   SourceURL,
				URL:    "https://github.com/crossplane/crossplane/tree/main/cluster/crds",
				GitRef: "v1.16.0",
				Output: "crossplane",
				Dependencies: map[string]Dependency{
					"k8s_io": {Version: ">=1.0.0"},
				},
			},
		},
	}
}

func hasEntry(entries []string, substr string) bool {
	for _, e := range entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateDetailed_Valid(t *testing.T) {
	res := validManifest().ValidateDetailed()
	if !res.IsValid() {
		t.Errorf("expected valid manifest, got errors: %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got: %v", res.Warnings)
	}
}

func TestValidateDetailed_MissingSettings(t *testing.T) {
	m := validManifest()
	m.Config.OutputBase = ""
	m.Config.BasePackageID = ""
	res := m.ValidateDetailed()
	if res.IsValid() {
		t.Fatal("expected invalid manifest")
	}
	if !hasEntry(res.Errors, "config.outputBase") {
		t.Errorf("errors %v should name config.outputBase", res.Errors)
	}
	if !hasEntry(res.Errors, "config.basePackageID") {
		t.Errorf("errors %v should name config.basePackageID", res.Errors)
	}
}

func TestValidateDetailed_BasePackageIDOptionalWithoutPackageMode(t *testing.T) {
	off := false
	m := validManifest()
	m.Config.BasePackageID = ""
	m.Config.PackageMode = &off
	if res := m.ValidateDetailed(); !res.IsValid() {
		t.Errorf("basePackageID should not be required with package mode off, got: %v", res.Errors)
	}
}

func TestValidateDetailed_DuplicateNamesAndOutputs(t *testing.T) {
	m := validManifest()
	m.Packages = append(m.Packages, Package{
		Name:   "k8s-io",
		Type:   SourceK8sCore,
		Output: "k8s_io",
	})
	res := m.ValidateDetailed()
	if !hasEntry(res.Errors, "duplicate package name") {
		t.Errorf("errors %v should flag the duplicate name", res.Errors)
	}
	if !hasEntry(res.Errors, `output "k8s_io" already used`) {
		t.Errorf("errors %v should flag the duplicate output", res.Errors)
	}
}

func TestValidateDetailed_SourceRequirements(t *testing.T) {
	m := &Manifest{
		Config: Settings{OutputBase: "pkgs", BasePackageID: "github/x/y"},
		Packages: []Package{
			{Name: "a", Type: SourceURL, Output: "a"},
			{Name: "b", Type: SourceCRD, Output: "b"},
			{Name: "c", Type: SourceOpenAPI, Output: "c"},
			{Name: "d", Type: SourceGo, Output: "d"},
		},
	}
	res := m.ValidateDetailed()
	if !hasEntry(res.Errors, "url is required") {
		t.Errorf("errors %v should require url for url packages", res.Errors)
	}
	for _, typ := range []string{"crd", "openapi", "go"} {
		if !hasEntry(res.Errors, "file is required for "+typ) {
			t.Errorf("errors %v should require file for %s packages", res.Errors, typ)
		}
	}
}

func TestValidateDetailed_DependencyConstraints(t *testing.T) {
	m := validManifest()
	m.Packages[1].Dependencies = map[string]Dependency{
		"k8s_io":  {Version: "@@@"},
		"empty":   {},
		"minonly": {MinVersion: "1.2.0"},
	}
	res := m.ValidateDetailed()
	if !hasEntry(res.Errors, `constraint "@@@"`) {
		t.Errorf("errors %v should flag the unparsable constraint", res.Errors)
	}
	if !hasEntry(res.Errors, `dependency "empty" has no version constraint`) {
		t.Errorf("errors %v should flag the empty constraint", res.Errors)
	}
	if hasEntry(res.Errors, `"minonly"`) {
		t.Errorf("errors %v should accept a minVersion-only dependency", res.Errors)
	}
}

func TestValidateDetailed_Warnings(t *testing.T) {
	m := validManifest()
	m.Packages[0].Version = ""                // k8s-core without a pin
	m.Packages[1].GitRef = ""                 // floating url source
	m.Packages[1].Dependencies["orphan"] = Dependency{Version: "1.0.0"}
	res := m.ValidateDetailed()
	if !res.IsValid() {
		t.Fatalf("expected warnings only, got errors: %v", res.Errors)
	}
	if !hasEntry(res.Warnings, "defaulting to "+DefaultK8sVersion) {
		t.Errorf("warnings %v should mention the version default", res.Warnings)
	}
	if !hasEntry(res.Warnings, "no gitRef") {
		t.Errorf("warnings %v should mention the floating ref", res.Warnings)
	}
	if !hasEntry(res.Warnings, `depends on "orphan"`) {
		t.Errorf("warnings %v should mention the unknown dependency", res.Warnings)
	}
}

func TestValidateDetailed_NonSemverVersionWarns(t *testing.T) {
	m := validManifest()
	m.Packages[0].Version = "master"
	res := m.ValidateDetailed()
	if !res.IsValid() {
		t.Fatalf("expected warnings only, got errors: %v", res.Errors)
	}
	if !hasEntry(res.Warnings, `version "master" is not semver`) {
		t.Errorf("warnings %v should mention the non-semver version", res.Warnings)
	}
}
