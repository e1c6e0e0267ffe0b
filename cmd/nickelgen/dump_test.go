package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/nickelgen/nickelgen/internal/config"
)

const petSwagger = `{
  "swagger": "2.0",
  "info": {"title": "petstore", "version": "1.0.0"},
  "definitions": {
    "Pet": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "tag": {"type": "string"}
      }
    }
  }
}`

func TestBindDumpOptions_Flags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o := bindDumpOptions(fs)
	if err := fs.Parse([]string{"-f", "widgets.yaml", "--format", "crd", "--verbose"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.file != "widgets.yaml" || o.format != "crd" || !o.verbose {
		t.Errorf("options = %+v", o)
	}
}

func TestDumpOptions_Validate(t *testing.T) {
	if err := (&dumpOptions{}).Validate(); err == nil {
		t.Error("Validate should require a file")
	}
	if err := (&dumpOptions{file: "x.yaml", format: "xml"}).Validate(); err == nil {
		t.Error("Validate should reject an unknown format")
	}
	for _, format := range []string{"", "crd", "openapi", "go"} {
		if err := (&dumpOptions{file: "x.yaml", format: format}).Validate(); err != nil {
			t.Errorf("Validate(%q): %v", format, err)
		}
	}
}

func TestSniffFormat(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	if got := sniffFormat(dir); got != config.SourceGo {
		t.Errorf("directory sniffed as %q, want go", got)
	}
	if got := sniffFormat(write("types.go", "package types\n")); got != config.SourceGo {
		t.Errorf(".go file sniffed as %q, want go", got)
	}
	if got := sniffFormat(write("petstore.json", petSwagger)); got != config.SourceOpenAPI {
		t.Errorf("swagger json sniffed as %q, want openapi", got)
	}
	if got := sniffFormat(write("petstore.yaml", "swagger: \"2.0\"\ninfo:\n  title: petstore\n")); got != config.SourceOpenAPI {
		t.Errorf("swagger yaml sniffed as %q, want openapi", got)
	}
	if got := sniffFormat(write("widgets.yaml", widgetCRD)); got != config.SourceCRD {
		t.Errorf("crd yaml sniffed as %q, want crd", got)
	}
	// Only the leading document decides.
	multi := "swagger: \"2.0\"\ninfo:\n  title: petstore\n---\nkind: CustomResourceDefinition\n"
	if got := sniffFormat(write("multi.yaml", multi)); got != config.SourceOpenAPI {
		t.Errorf("multi-doc sniffed as %q, want openapi", got)
	}
	if got := sniffFormat(filepath.Join(dir, "absent.yaml")); got != config.SourceCRD {
		t.Errorf("missing file sniffed as %q, want crd", got)
	}
}

// captureStdout redirects os.Stdout around fn, for commands that print their
// result rather than writing files.
func captureStdout(t *testing.T, fn func() int) (string, int) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	code := fn()
	w.Close()
	os.Stdout = old
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(data), code
}

func TestRunDump_CRD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widgets.yaml")
	if err := os.WriteFile(path, []byte(widgetCRD), 0o644); err != nil {
		t.Fatal(err)
	}

	out, code := captureStdout(t, func() int {
		return runDump([]string{"-f", path})
	})
	if code != 0 {
		t.Fatalf("runDump = %d, want 0", code)
	}
	for _, want := range []string{`"Widget"`, `"WidgetSpec"`, `"example.io/v1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("dump output missing %s:\n%s", want, out)
		}
	}
}

func TestRunDump_OpenAPISniffed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petstore.json")
	if err := os.WriteFile(path, []byte(petSwagger), 0o644); err != nil {
		t.Fatal(err)
	}

	out, code := captureStdout(t, func() int {
		return runDump([]string{"-f", path})
	})
	if code != 0 {
		t.Fatalf("runDump = %d, want 0", code)
	}
	if !strings.Contains(out, `"Pet"`) {
		t.Errorf("dump output missing Pet:\n%s", out)
	}
}

func TestRunDump_MissingFile(t *testing.T) {
	if code := runDump([]string{"-f", filepath.Join(t.TempDir(), "absent.yaml")}); code != 1 {
		t.Errorf("runDump = %d, want 1", code)
	}
}

func TestRunDump_UnknownFormat(t *testing.T) {
	if code := runDump([]string{"-f", "x.yaml", "--format", "xml"}); code != 1 {
		t.Errorf("runDump = %d, want 1", code)
	}
}
