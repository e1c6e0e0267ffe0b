package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/nickelgen/nickelgen/internal/analyzer"
	"github.com/nickelgen/nickelgen/internal/config"
	"github.com/nickelgen/nickelgen/internal/fetch"
	"github.com/nickelgen/nickelgen/internal/pkggen"
	"github.com/nickelgen/nickelgen/internal/types"
	"github.com/nickelgen/nickelgen/internal/walker"
)

// runImport dispatches "nickelgen import <source>": a one-shot generation
// from a single schema source, without a manifest.
func runImport(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "import needs a source: crd, openapi, url, k8s, or go")
		return 1
	}
	switch args[0] {
	case "crd":
		return runImportCRD(args[1:])
	case "openapi":
		return runImportOpenAPI(args[1:])
	case "url":
		return runImportURL(args[1:])
	case "k8s":
		return runImportK8s(args[1:])
	case "go":
		return runImportGo(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown import source: %s (want crd, openapi, url, k8s, or go)\n", args[0])
		return 1
	}
}

func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, false
		}
		fmt.Fprintln(os.Stderr, err)
		return 1, false
	}
	return 0, true
}

type crdOptions struct {
	file    string
	output  string
	name    string
	version string
	verbose bool
}

func bindCRDOptions(fs *pflag.FlagSet) *crdOptions {
	o := &crdOptions{}
	fs.StringVarP(&o.file, "file", "f", "", "Path to a CRD manifest, YAML or JSON, multi-document streams allowed.")
	fs.StringVarP(&o.output, "output", "o", "", "Output directory. Defaults to the first segment of the first CRD's group.")
	fs.StringVar(&o.name, "package", "", "Package name for the emitted manifest. Defaults to the output directory name.")
	fs.StringVar(&o.version, "package-version", "", "Package version stamped into the manifest.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *crdOptions) Validate() error {
	if o.file == "" {
		return errors.New("--file is required")
	}
	return nil
}

func runImportCRD(args []string) int {
	fs := pflag.NewFlagSet("import crd", pflag.ContinueOnError)
	o := bindCRDOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := newLogger(o.verbose)

	data, err := os.ReadFile(o.file)
	if err != nil {
		log.Error(err, "Could not read CRD manifest")
		return 1
	}
	crds, skipped, parseErr := walker.ParseCRDs(o.file, data)
	if skipped > 0 {
		log.Info("skipped non-CRD documents", "source", o.file, "count", skipped)
	}
	for _, err := range multierr.Errors(parseErr) {
		log.Error(err, "unit failed")
	}
	if len(crds) == 0 {
		log.Error(errors.New("no CustomResourceDefinitions found"), "Could not import", "file", o.file)
		return 1
	}

	output := o.output
	if output == "" {
		output = crdOutputDir(crds)
	}
	code := emitPackage(log, walker.NewCRDWalker(log, crds...), output, importOptions(o.name, o.version, output), true)
	if code == 0 && parseErr != nil {
		return 1
	}
	return code
}

type openapiOptions struct {
	file     string
	output   string
	module   string
	name     string
	version  string
	validate bool
	verbose  bool
}

func bindOpenAPIOptions(fs *pflag.FlagSet) *openapiOptions {
	o := &openapiOptions{}
	fs.StringVarP(&o.file, "file", "f", "", "Path to an OpenAPI 2.0 document, YAML or JSON.")
	fs.StringVarP(&o.output, "output", "o", "", "Output directory. Defaults to the document's file name without extension.")
	fs.StringVar(&o.module, "module", "", "Module path for the generated types, e.g. myapi/v1. Defaults to api/v1.")
	fs.StringVar(&o.name, "package", "", "Package name for the emitted manifest. Defaults to the output directory name.")
	fs.StringVar(&o.version, "package-version", "", "Package version stamped into the manifest.")
	fs.BoolVar(&o.validate, "validate", false, "Validate the document against the OpenAPI 2.0 schema before generating.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *openapiOptions) Validate() error {
	if o.file == "" {
		return errors.New("--file is required")
	}
	return nil
}

func runImportOpenAPI(args []string) int {
	fs := pflag.NewFlagSet("import openapi", pflag.ContinueOnError)
	o := bindOpenAPIOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := newLogger(o.verbose)

	if o.validate {
		if err := fetch.ValidateOpenAPI(o.file); err != nil {
			log.Error(err, "OpenAPI document failed validation", "file", o.file)
			return 1
		}
		log.V(1).Info("document validated", "file", o.file)
	}
	doc, err := fetch.LoadOpenAPI(o.file)
	if err != nil {
		log.Error(err, "Could not load OpenAPI document")
		return 1
	}
	w := walker.NewOpenAPIWalker(doc, log)
	if o.module != "" {
		w = w.WithBaseModule(o.module)
	}

	output := o.output
	if output == "" {
		output = fileStem(o.file)
	}
	return emitPackage(log, w, output, importOptions(o.name, o.version, output), true)
}

type urlOptions struct {
	url     string
	output  string
	name    string
	version string
	verbose bool
}

func bindURLOptions(fs *pflag.FlagSet) *urlOptions {
	o := &urlOptions{}
	fs.StringVarP(&o.url, "url", "u", "", "Direct manifest URL, or a github.com tree or blob URL.")
	fs.StringVarP(&o.output, "output", "o", "", "Output directory. Defaults to the last URL path segment.")
	fs.StringVar(&o.name, "package", "", "Package name for the emitted manifest. Defaults to the output directory name.")
	fs.StringVar(&o.version, "package-version", "", "Package version stamped into the manifest.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *urlOptions) Validate() error {
	if o.url == "" {
		return errors.New("--url is required")
	}
	return nil
}

func runImportURL(args []string) int {
	fs := pflag.NewFlagSet("import url", pflag.ContinueOnError)
	o := bindURLOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := newLogger(o.verbose)

	crds, err := fetch.New(log).FetchCRDs(context.Background(), o.url)
	if err != nil {
		log.Error(err, "Could not fetch CRDs", "url", o.url)
		return 1
	}
	if len(crds) == 0 {
		log.Error(errors.New("no CustomResourceDefinitions found"), "Could not import", "url", o.url)
		return 1
	}

	output := o.output
	if output == "" {
		output = urlOutputDir(o.url)
	}
	return emitPackage(log, walker.NewCRDWalker(log, crds...), output, importOptions(o.name, o.version, output), true)
}

type k8sOptions struct {
	version string
	output  string
	name    string
	verbose bool
}

func bindK8sOptions(fs *pflag.FlagSet) *k8sOptions {
	o := &k8sOptions{}
	fs.StringVar(&o.version, "version", config.DefaultK8sVersion, "Kubernetes release to fetch the OpenAPI document for.")
	fs.StringVarP(&o.output, "output", "o", analyzer.CorePackage, "Output directory.")
	fs.StringVar(&o.name, "package", "", "Package name for the emitted manifest. Defaults to the output directory name.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *k8sOptions) Validate() error {
	if o.version == "" {
		return errors.New("--version must not be empty")
	}
	return nil
}

func runImportK8s(args []string) int {
	fs := pflag.NewFlagSet("import k8s", pflag.ContinueOnError)
	o := bindK8sOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := newLogger(o.verbose)

	doc, err := fetch.New(log).FetchK8sSwagger(context.Background(), o.version)
	if err != nil {
		log.Error(err, "Could not fetch the Kubernetes OpenAPI document", "version", o.version)
		return 1
	}

	// The release tag doubles as the package version; the core package has
	// no version of its own.
	return emitPackage(log, walker.NewK8sCoreWalker(doc, log), o.output, importOptions(o.name, o.version, o.output), false)
}

type goOptions struct {
	pattern string
	output  string
	module  string
	name    string
	version string
	verbose bool
}

func bindGoOptions(fs *pflag.FlagSet) *goOptions {
	o := &goOptions{}
	fs.StringVarP(&o.pattern, "pattern", "p", "", "Go package pattern to load, e.g. ./api/types.")
	fs.StringVarP(&o.output, "output", "o", "", "Output directory. Defaults to the pattern's directory name.")
	fs.StringVar(&o.module, "module", "", "Module path for the generated types, e.g. myapp/v1. Defaults to {package}/v1.")
	fs.StringVar(&o.name, "package", "", "Package name for the emitted manifest. Defaults to the output directory name.")
	fs.StringVar(&o.version, "package-version", "", "Package version stamped into the manifest.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *goOptions) Validate() error {
	if o.pattern == "" {
		return errors.New("--pattern is required")
	}
	return nil
}

func runImportGo(args []string) int {
	fs := pflag.NewFlagSet("import go", pflag.ContinueOnError)
	o := bindGoOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := newLogger(o.verbose)

	w := walker.NewGoWalker(o.pattern, log)
	if o.module != "" {
		w = w.WithModule(o.module)
	}

	output := o.output
	if output == "" {
		output = goOutputDir(o.pattern)
	}
	return emitPackage(log, w, output, importOptions(o.name, o.version, output), true)
}

// importOptions assembles generation options for a one-shot import. Imports
// always run in package mode; manifest-driven generation decides per
// manifest.
func importOptions(name, version, output string) pkggen.Options {
	if name == "" {
		name = filepath.Base(output)
	}
	return pkggen.Options{
		Name:        name,
		Version:     version,
		PackageMode: true,
	}
}

// emitPackage walks one source and writes the generated tree under outDir.
// Unit failures log and fail the exit code; surviving modules still write.
func emitPackage(log logr.Logger, w walker.SchemaWalker, outDir string, opts pkggen.Options, detectDeps bool) int {
	ir, walkErr := walker.Walk(w)
	for _, err := range multierr.Errors(walkErr) {
		log.Error(err, "unit failed")
	}
	if len(ir.Modules) == 0 {
		log.Error(errors.New("no modules survived"), "nothing to write", "output", outDir)
		return 1
	}

	if detectDeps {
		detectCoreDependency(log, ir, &opts)
	}

	files, genErr := pkggen.Generate(ir, opts)
	for _, err := range multierr.Errors(genErr) {
		log.Error(err, "module failed")
	}

	written, removed, err := pkggen.WriteTree(outDir, files)
	if err != nil {
		log.Error(err, "Could not write output tree")
		return 1
	}
	fmt.Fprintf(os.Stderr, "%s: %d file(s) written, %d unchanged, %d stale removed\n",
		outDir, len(written), len(files)-len(written), len(removed))
	if walkErr != nil || genErr != nil {
		return 1
	}
	return 0
}

// detectCoreDependency records a dependency on the Kubernetes core package
// when the walked types reference platform types, so the emitted manifest
// names what the emitted imports reach for.
func detectCoreDependency(log logr.Logger, ir types.IR, opts *pkggen.Options) {
	an := analyzer.New()
	an.RegisterCoreTypes()
	an.SetCurrentPackage(opts.Name)

	for _, dep := range an.AnalyzeIR(ir) {
		log.V(1).Info("detected dependency",
			"package", dep.PackageName, "types", strings.Join(dep.RequiredTypes, ", "))
		if opts.Dependencies == nil {
			opts.Dependencies = make(map[string]string)
		}
		if _, pinned := opts.Dependencies[dep.PackageName]; !pinned {
			opts.Dependencies[dep.PackageName] = ""
		}
	}
	if opts.DetectRoots == nil {
		opts.DetectRoots = map[string]pkggen.Dependency{
			analyzer.CorePackage: {Name: analyzer.CorePackage},
		}
	}
}

// crdOutputDir derives the default output directory from the first CRD's
// group, keeping only the leading segment: cert-manager.io imports into
// cert-manager.
func crdOutputDir(crds []*walker.CRD) string {
	if len(crds) == 0 {
		return ""
	}
	group, _, _ := strings.Cut(crds[0].Spec.Group, ".")
	return group
}

// urlOutputDir derives the default output directory from the last URL path
// segment with any manifest extension trimmed.
func urlOutputDir(rawURL string) string {
	trimmed := strings.TrimSuffix(rawURL, "/")
	seg := trimmed
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		seg = trimmed[i+1:]
	}
	seg = strings.TrimSuffix(seg, ".yaml")
	seg = strings.TrimSuffix(seg, ".yml")
	return seg
}

// fileStem is the file name without directory or extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// goOutputDir derives the default output directory from a Go package
// pattern.
func goOutputDir(pattern string) string {
	p := strings.TrimSuffix(pattern, "/...")
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Base(p)
}
