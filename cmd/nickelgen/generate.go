package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/nickelgen/nickelgen/internal/analyzer"
	"github.com/nickelgen/nickelgen/internal/buildcache"
	"github.com/nickelgen/nickelgen/internal/config"
	"github.com/nickelgen/nickelgen/internal/fetch"
	"github.com/nickelgen/nickelgen/internal/pkggen"
	"github.com/nickelgen/nickelgen/internal/runner"
	"github.com/nickelgen/nickelgen/internal/types"
	"github.com/nickelgen/nickelgen/internal/walker"
	"github.com/nickelgen/nickelgen/internal/watcher"
)

type generateOptions struct {
	manifest string
	packages []string
	force    bool
	dryRun   bool
	watch    bool
	exec     string
	verbose  bool
}

func bindGenerateOptions(fs *pflag.FlagSet) *generateOptions {
	o := &generateOptions{}
	fs.StringVarP(&o.manifest, "manifest", "m", config.DefaultManifestPath, "Path to the generation manifest.")
	fs.StringSliceVar(&o.packages, "packages", nil, "Generate only the named packages. Repeatable or comma-separated.")
	fs.BoolVar(&o.force, "force", false, "Regenerate even when the cache says nothing changed.")
	fs.BoolVar(&o.dryRun, "dry-run", false, "List what would generate and exit.")
	fs.BoolVar(&o.watch, "watch", false, "Keep running and regenerate when the manifest or a local source changes.")
	fs.StringVar(&o.exec, "exec", "", "Shell command to run after each successful generation. Implies --watch.")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable debug logging.")
	return o
}

func (o *generateOptions) Validate() error {
	if o.manifest == "" {
		return errors.New("--manifest must not be empty")
	}
	return nil
}

// runGenerate implements "nickelgen generate": every package the manifest
// names, with an incremental cache deciding what actually regenerates.
func runGenerate(args []string) int {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	o := bindGenerateOptions(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := o.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if o.exec != "" {
		o.watch = true
	}
	log := newLogger(o.verbose)

	m, err := config.Load(o.manifest)
	if err != nil {
		log.Error(err, "Could not load manifest")
		return 1
	}
	for _, warning := range m.ValidateDetailed().Warnings {
		log.Info("manifest warning", "warning", warning)
	}

	if o.dryRun {
		selected, err := m.Select(o.packages)
		if err != nil {
			log.Error(err, "Could not select packages")
			return 1
		}
		for _, p := range selected {
			fmt.Printf("%s -> %s\n", p.Name, filepath.Join(m.Config.OutputBase, p.Output))
		}
		return 0
	}

	rep := generatePass(log, m, o)
	rep.print(os.Stderr)
	failed := len(rep.failed) > 0

	if !o.watch {
		if failed {
			return 1
		}
		return 0
	}
	if failed {
		fmt.Fprintln(os.Stderr, "initial generation failed, watching for changes...")
	}
	return watchLoop(log, m, o, !failed)
}

// report tallies one generation pass.
type report struct {
	generated []string
	unchanged []string
	skipped   []string
	failed    []failure
}

type failure struct {
	name string
	err  error
}

func (r *report) print(w io.Writer) {
	fmt.Fprintf(w, "generated %d, unchanged %d, skipped %d, failed %d\n",
		len(r.generated), len(r.unchanged), len(r.skipped), len(r.failed))
	for _, f := range r.failed {
		fmt.Fprintf(w, "  %s: %v\n", f.name, f.err)
	}
}

// generatePass runs one generation over the manifest's selected packages.
// Disabled packages count as skipped, cache hits as unchanged. A package
// failure never stops its siblings.
func generatePass(log logr.Logger, m *config.Manifest, o *generateOptions) *report {
	rep := &report{}

	selected, err := m.Select(o.packages)
	if err != nil {
		rep.failed = append(rep.failed, failure{name: o.manifest, err: err})
		return rep
	}
	for _, p := range inactivePackages(m, o.packages) {
		log.V(1).Info("package disabled, skipping", "name", p.Name)
		rep.skipped = append(rep.skipped, p.Name)
	}

	an := manifestAnalyzer(m)
	roots := detectRoots(m)

	for _, p := range selected {
		outDir := filepath.Join(m.Config.OutputBase, p.Output)
		cachePath := buildcache.Path(outDir)
		sourceKey := buildcache.SourceKey(p)
		entryKey := buildcache.EntryKey(p)

		if !o.force && buildcache.Load(cachePath).IsValid(sourceKey, entryKey) {
			log.Info("no changes detected, skipping", "name", p.Name)
			rep.unchanged = append(rep.unchanged, p.Name)
			continue
		}

		outcome, err := generatePackage(log, m, p, an, roots, outDir)
		if err != nil {
			log.Error(err, "package failed", "name", p.Name)
			if outcome != nil && outcome.written > 0 {
				log.Info("surviving modules written", "name", p.Name, "files", outcome.written)
			}
			rep.failed = append(rep.failed, failure{name: p.Name, err: err})
			continue
		}
		log.Info("package generated", "name", p.Name, "output", outDir, "files", outcome.written)
		rep.generated = append(rep.generated, p.Name)

		// The cache is written only after a fully clean run; a partial
		// failure must regenerate next time.
		if err := buildcache.Save(cachePath, buildcache.New(sourceKey, entryKey, outcome.outputs)); err != nil {
			log.Info("could not save cache", "name", p.Name, "reason", err.Error())
		}
	}
	return rep
}

// packageOutcome describes what one package generation put on disk.
type packageOutcome struct {
	// outputs is every emitted file, whether or not it changed.
	outputs []string
	// written counts the files whose content actually changed.
	written int
}

// generatePackage builds, walks, and writes one package. A non-nil outcome
// alongside an error means surviving modules were written while others
// failed.
func generatePackage(log logr.Logger, m *config.Manifest, p config.Package, an *analyzer.Analyzer, roots map[string]pkggen.Dependency, outDir string) (*packageOutcome, error) {
	w, err := buildWalker(context.Background(), log, p)
	if w == nil {
		return nil, err
	}
	unitErr := err

	ir, walkErr := walker.Walk(w)
	for _, uerr := range multierr.Errors(walkErr) {
		log.Error(uerr, "unit failed", "name", p.Name)
	}
	unitErr = multierr.Append(unitErr, walkErr)
	if len(ir.Modules) == 0 {
		return nil, multierr.Append(unitErr, errors.New("no modules survived"))
	}

	opts := packageOptions(m, p, roots)
	mergeDetectedDependencies(log, m, p, an, ir, &opts)

	files, genErr := pkggen.Generate(ir, opts)
	for _, gerr := range multierr.Errors(genErr) {
		log.Error(gerr, "module failed", "name", p.Name)
	}
	unitErr = multierr.Append(unitErr, genErr)

	written, removed, err := pkggen.WriteTree(outDir, files)
	if err != nil {
		return nil, multierr.Append(unitErr, err)
	}
	if n := len(removed); n > 0 {
		log.V(1).Info("pruned stale files", "name", p.Name, "count", n)
	}

	return &packageOutcome{outputs: outputPaths(outDir, files), written: len(written)}, unitErr
}

// buildWalker constructs the walker for one package. A nil walker is fatal
// for the package; a non-nil walker may come back with unit errors for
// individual documents that failed to parse.
func buildWalker(ctx context.Context, log logr.Logger, p config.Package) (walker.SchemaWalker, error) {
	switch p.Type {
	case config.SourceK8sCore:
		doc, err := fetch.New(log).FetchK8sSwagger(ctx, p.EffectiveVersion())
		if err != nil {
			return nil, err
		}
		return walker.NewK8sCoreWalker(doc, log), nil

	case config.SourceURL:
		crds, err := fetch.New(log).FetchCRDs(ctx, p.ResolvedURL())
		if err != nil {
			return nil, err
		}
		if len(crds) == 0 {
			return nil, fmt.Errorf("no CustomResourceDefinitions at %s", p.ResolvedURL())
		}
		return walker.NewCRDWalker(log, crds...), nil

	case config.SourceCRD:
		data, err := os.ReadFile(p.File)
		if err != nil {
			return nil, err
		}
		crds, skipped, parseErr := walker.ParseCRDs(p.File, data)
		if skipped > 0 {
			log.V(1).Info("skipped non-CRD documents", "source", p.File, "count", skipped)
		}
		if len(crds) == 0 {
			return nil, multierr.Append(parseErr, fmt.Errorf("no CustomResourceDefinitions in %s", p.File))
		}
		return walker.NewCRDWalker(log, crds...), parseErr

	case config.SourceOpenAPI:
		doc, err := fetch.LoadOpenAPI(p.File)
		if err != nil {
			return nil, err
		}
		return walker.NewOpenAPIWalker(doc, log), nil

	case config.SourceGo:
		return walker.NewGoWalker(p.File, log), nil

	default:
		return nil, fmt.Errorf("unknown source type %q", p.Type)
	}
}

// packageOptions maps one manifest entry onto generation options.
func packageOptions(m *config.Manifest, p config.Package, roots map[string]pkggen.Dependency) pkggen.Options {
	return pkggen.Options{
		Name:          p.Name,
		Version:       p.Version,
		Description:   p.Description,
		Keywords:      p.Keywords,
		PackageMode:   m.Config.PackageModeOn(),
		BasePackageID: m.Config.BasePackageID,
		LocalPrefix:   m.Config.LocalPackagePrefix,
		Dependencies:  explicitDependencies(p),
		DetectRoots:   roots,
	}
}

// explicitDependencies flattens the manifest's dependency pins to semver
// requirement strings.
func explicitDependencies(p config.Package) map[string]string {
	if len(p.Dependencies) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.Dependencies))
	for name, d := range p.Dependencies {
		switch {
		case d.Version != "":
			out[name] = d.Version
		case d.MinVersion != "":
			out[name] = ">=" + d.MinVersion
		default:
			out[name] = ""
		}
	}
	return out
}

// detectRoots indexes every package's output directory, so an emitted
// import reaching into a sibling's directory resolves to a manifest
// dependency on that package.
func detectRoots(m *config.Manifest) map[string]pkggen.Dependency {
	roots := make(map[string]pkggen.Dependency, len(m.Packages))
	for _, p := range m.Packages {
		if p.Output == "" {
			continue
		}
		roots[p.Output] = pkggen.Dependency{Name: p.Name, Version: strings.TrimPrefix(p.Version, "v")}
	}
	return roots
}

// manifestAnalyzer builds the reference analyzer for a manifest: the core
// Kubernetes mappings plus the API groups inferred from every package URL.
func manifestAnalyzer(m *config.Manifest) *analyzer.Analyzer {
	an := analyzer.New()
	an.RegisterCoreTypes()
	for _, p := range m.Packages {
		if p.URL != "" {
			an.RegisterPackageURL(p.Name, p.URL)
		}
	}
	return an
}

// mergeDetectedDependencies adds IR-level reference detections to the
// package's manifest dependencies. Core references pin the manifest's own
// k8s-core package; references to packages outside the manifest only log.
func mergeDetectedDependencies(log logr.Logger, m *config.Manifest, p config.Package, an *analyzer.Analyzer, ir types.IR, opts *pkggen.Options) {
	an.SetCurrentPackage(p.Name)

	byName := make(map[string]config.Package, len(m.Packages))
	var core *config.Package
	for i := range m.Packages {
		byName[m.Packages[i].Name] = m.Packages[i]
		if core == nil && m.Packages[i].Type == config.SourceK8sCore {
			core = &m.Packages[i]
		}
	}

	for _, dep := range an.AnalyzeIR(ir) {
		log.V(1).Info("detected dependency",
			"package", p.Name, "dependsOn", dep.PackageName, "types", strings.Join(dep.RequiredTypes, ", "))

		name, version := dep.PackageName, ""
		if dep.IsCoreType {
			if core == nil {
				log.Info("references core types but the manifest has no k8s-core package", "package", p.Name)
				continue
			}
			name, version = core.Name, core.Version
		} else {
			provider, ok := byName[name]
			if !ok {
				continue
			}
			version = provider.Version
		}
		if name == p.Name {
			continue
		}
		if _, pinned := opts.Dependencies[name]; pinned {
			continue
		}
		if opts.Dependencies == nil {
			opts.Dependencies = make(map[string]string)
		}
		opts.Dependencies[name] = strings.TrimPrefix(version, "v")
	}
}

// outputPaths lists every emitted file under outDir in sorted order, the
// set the cache later checks for existence.
func outputPaths(outDir string, files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for rel := range files {
		paths = append(paths, filepath.Join(outDir, filepath.FromSlash(rel)))
	}
	slices.Sort(paths)
	return paths
}

// inactivePackages lists disabled packages, restricted to names when given.
func inactivePackages(m *config.Manifest, names []string) []config.Package {
	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}
	var out []config.Package
	for _, p := range m.Packages {
		if p.Active() {
			continue
		}
		if len(names) > 0 && !requested[p.Name] {
			continue
		}
		out = append(out, p)
	}
	return out
}

const watchDebounce = 200 * time.Millisecond

// watchExtensions are the file types directory watches react to; explicit
// files like the manifest are watched regardless.
var watchExtensions = []string{".yaml", ".yml", ".json", ".go"}

// watchPaths collects everything worth watching: the manifest itself plus
// every active local source. Remote sources have nothing on disk to watch.
func watchPaths(manifestPath string, m *config.Manifest) []string {
	paths := []string{manifestPath}
	for _, p := range m.Packages {
		if p.Active() && p.File != "" {
			paths = append(paths, p.File)
		}
	}
	return paths
}

// watchLoop keeps regenerating until interrupted. The cache keeps untouched
// packages cheap: a change regenerates only the packages whose fingerprints
// moved.
func watchLoop(log logr.Logger, m *config.Manifest, o *generateOptions, startExec bool) int {
	var proc *runner.Runner
	if o.exec != "" {
		proc = runner.New("sh", []string{"-c", o.exec}, "")
		defer proc.Stop()
		if startExec {
			fmt.Fprintf(os.Stderr, "starting: %s\n", o.exec)
			if err := proc.Start(); err != nil {
				log.Error(err, "Could not start exec command")
				return 1
			}
		}
	}

	paths := watchPaths(o.manifest, m)

	regenerate := func(events []watcher.Event) {
		for _, ev := range events {
			log.V(1).Info("change detected", "path", ev.Path, "op", string(ev.Op))
		}
		fmt.Fprintf(os.Stderr, "detected %d change(s), regenerating...\n", len(events))

		reloaded, err := config.Load(o.manifest)
		if err != nil {
			log.Error(err, "Could not reload manifest, keeping the previous one")
		} else {
			m = reloaded
			if len(watchPaths(o.manifest, m)) != len(paths) {
				log.Info("watched sources changed, restart watch mode to pick them up")
			}
		}

		rep := generatePass(log, m, o)
		rep.print(os.Stderr)
		if len(rep.failed) > 0 {
			fmt.Fprintln(os.Stderr, "generation failed, waiting for changes...")
			return
		}
		if proc != nil && len(rep.generated) > 0 {
			fmt.Fprintln(os.Stderr, "restarting...")
			if err := proc.Restart(); err != nil {
				log.Error(err, "Could not restart exec command")
			}
		}
	}

	w := watcher.New(paths, watchExtensions, watchDebounce, regenerate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		w.Stop()
		if proc != nil {
			proc.Stop()
		}
	}()

	fmt.Fprintln(os.Stderr, "watching for changes...")
	w.Watch()
	return 0
}
