package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"

	"github.com/nickelgen/nickelgen/internal/config"
	"github.com/nickelgen/nickelgen/internal/walker"
)

type dumpOptions struct {
	file    string
	format  string
	verbose bool
}

func bindDumpOptions(fs *pflag.FlagSet) *dumpOptions {
	o := &dumpOptions{}
	fs.StringVarP(&o.file, "file", "f", "", "Schema source to dump: a CRD manifest, an OpenAPI document, or a Go package.")
	fs.StringVar(&o.format, "format", "", "Source format: crd, openapi, or go. Defaults to sniffing the file.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *dumpOptions) Validate() error {
	if o.file == "" {
		return errors.New("--file is required")
	}
	switch config.SourceType(o.format) {
	case "", config.SourceCRD, config.SourceOpenAPI, config.SourceGo:
		return nil
	}
	return fmt.Errorf("unknown format %q (want crd, openapi, or go)", o.format)
}

// runDump prints the intermediate representation of one source as JSON, for
// inspecting what the walkers extracted before any Nickel is emitted.
func runDump(args []string) int {
	fs := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	o := bindDumpOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := newLogger(o.verbose)

	format := config.SourceType(o.format)
	if format == "" {
		format = sniffFormat(o.file)
		log.V(1).Info("sniffed source format", "file", o.file, "format", string(format))
	}

	w, werr := buildWalker(context.Background(), log, config.Package{Name: "dump", Type: format, File: o.file})
	if w == nil {
		log.Error(werr, "Could not read source", "file", o.file)
		return 1
	}
	for _, uerr := range multierr.Errors(werr) {
		log.Error(uerr, "unit failed")
	}

	ir, walkErr := walker.Walk(w)
	for _, uerr := range multierr.Errors(walkErr) {
		log.Error(uerr, "unit failed")
	}

	if err := json.MarshalWrite(os.Stdout, ir, jsontext.WithIndent("  "), json.Deterministic(true)); err != nil {
		log.Error(err, "Could not encode IR")
		return 1
	}
	fmt.Println()

	if werr != nil || walkErr != nil {
		return 1
	}
	return 0
}

// sniffFormat guesses a local source's type. Directories and .go files are
// Go packages; for documents the leading YAML object decides, a swagger
// version meaning OpenAPI and a CustomResourceDefinition kind meaning CRDs.
func sniffFormat(path string) config.SourceType {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return config.SourceGo
	}
	if strings.HasSuffix(path, ".go") {
		return config.SourceGo
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return config.SourceCRD
	}
	first := data
	if i := strings.Index(string(data), "\n---"); i >= 0 {
		first = data[:i]
	}
	var probe struct {
		Swagger string `json:"swagger"`
		Kind    string `json:"kind"`
	}
	if err := yaml.Unmarshal(first, &probe); err == nil && probe.Swagger != "" {
		return config.SourceOpenAPI
	}
	return config.SourceCRD
}
