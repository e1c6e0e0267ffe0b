// Package pkggen lays out generated modules as a Nickel package tree: one
// file per type, an aggregation mod.ncl per directory level, and in package
// mode a Nickel-pkg.ncl manifest. Generate returns relative path to content;
// WriteTree materializes the map with change detection and stale-file
// pruning.
package pkggen

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/multierr"

	"github.com/nickelgen/nickelgen/internal/codegen"
	"github.com/nickelgen/nickelgen/internal/types"
	"github.com/nickelgen/nickelgen/internal/walker"
)

// Options configure one package generation.
type Options struct {
	// Name is the package name used in the root mod header and the
	// manifest. Package mode requires it.
	Name        string
	Version     string
	Description string
	Keywords    []string

	// PackageMode adds a Nickel-pkg.ncl manifest to the output.
	PackageMode bool

	// BasePackageID prefixes dependency names in manifest index entries,
	// e.g. "github.com/nickelgen/nickel-pkgs".
	BasePackageID string

	// LocalPrefix switches manifest dependencies from index entries to
	// path entries under this directory, for development layouts where
	// sibling packages live next to each other instead of in an index.
	LocalPrefix string

	// License defaults to Apache-2.0.
	License string

	// Dependencies pins explicit manifest dependencies by name. Entries
	// override versions detected through DetectRoots.
	Dependencies map[string]string

	// DetectRoots maps sibling package directories to the dependency an
	// emitted import of theirs implies.
	DetectRoots map[string]Dependency

	// Calc lays out import paths; nil selects walker.NewCalculator.
	Calc *walker.Calculator
}

// dirState accumulates everything one version directory ends up holding.
type dirState struct {
	group     string
	version   string
	kinds     map[string]string
	constants []types.Constant
}

type stagedFile struct {
	path    string
	content string
	kind    string
}

// Generate renders ir as a package tree. Every type becomes its own file at
// [{group}/]{version}/{lowercased-kind}.ncl with imports recomputed for the
// per-type layout, each directory level gets a mod.ncl re-exporting its
// children, and the root mod.ncl aggregates the whole package. A module
// that cannot be laid out aborts alone; the map still carries its siblings,
// so callers can write what succeeded and report the rest.
func Generate(ir types.IR, opts Options) (map[string]string, error) {
	calc := opts.Calc
	if calc == nil {
		calc = walker.NewCalculator()
	}

	files := make(map[string]string)
	dirs := make(map[string]*dirState)
	var errs error

	for i := range ir.Modules {
		m := &ir.Modules[i]
		consumer, ok := walker.ParseModuleRef(m.Name)
		if !ok {
			errs = multierr.Append(errs, &walker.GenerationError{
				Module: m.Name,
				Err:    errors.New("module name is not a group/version path"),
			})
			continue
		}
		dir := moduleDir(calc, consumer)
		staged, err := stageModule(m, consumer, calc, dir)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := commit(files, staged); err != nil {
			errs = multierr.Append(errs, &walker.GenerationError{Module: m.Name, Err: err})
			continue
		}
		st := dirs[dir]
		if st == nil {
			st = &dirState{group: consumer.Group, version: consumer.Version, kinds: make(map[string]string)}
			dirs[dir] = st
		}
		for _, f := range staged {
			st.kinds[f.kind] = walker.FileName(f.kind)
		}
		st.constants = append(st.constants, m.Constants...)
	}

	if len(dirs) == 0 {
		return files, errs
	}

	for _, dir := range slices.Sorted(maps.Keys(dirs)) {
		content, err := versionMod(dirs[dir])
		if err != nil {
			errs = multierr.Append(errs, &walker.GenerationError{Module: dir, Err: err})
			continue
		}
		files[dir+"/mod.ncl"] = content
	}

	groups := make(map[string][]string)
	var flat []string
	for dir := range dirs {
		if i := strings.LastIndex(dir, "/"); i >= 0 {
			groups[dir[:i]] = append(groups[dir[:i]], dir[i+1:])
		} else {
			flat = append(flat, dir)
		}
	}
	for _, g := range slices.Sorted(maps.Keys(groups)) {
		files[g+"/mod.ncl"] = groupMod(g, groups[g])
	}
	files["mod.ncl"] = rootMod(opts, dirs, flat, groups)

	if opts.PackageMode {
		content, err := renderManifest(files, opts)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			files[manifestFile] = content
		}
	}
	return files, errs
}

// stageModule renders every type of src into its own file without touching
// the shared map, so a failing module leaves no partial output behind.
func stageModule(src *types.Module, consumer walker.TypeRef, calc *walker.Calculator, dir string) ([]stagedFile, error) {
	staged := make([]stagedFile, 0, len(src.Types))
	for i := range src.Types {
		def := &src.Types[i]
		if strings.EqualFold(def.Name, "mod") {
			return nil, &walker.GenerationError{
				Module: src.Name,
				Err:    fmt.Errorf("type %s collides with the aggregation file name", def.Name),
			}
		}
		tm, err := typeModule(src, def, consumer, calc)
		if err != nil {
			return nil, &walker.GenerationError{Module: src.Name, Err: err}
		}
		content, err := codegen.NewNickel().Generate(types.IR{Modules: []types.Module{*tm}})
		if err != nil {
			return nil, err
		}
		staged = append(staged, stagedFile{
			path:    dir + "/" + walker.FileName(def.Name),
			content: content,
			kind:    def.Name,
		})
	}
	return staged, nil
}

func commit(files map[string]string, staged []stagedFile) error {
	for _, f := range staged {
		if existing, ok := files[f.path]; ok && existing != f.content {
			return fmt.Errorf("file %s already generated with different content", f.path)
		}
	}
	for _, f := range staged {
		files[f.path] = f.content
	}
	return nil
}

// typeModule rebuilds one definition as a standalone module: references to
// other files become imports with the reference rewritten to the qualified
// alias.kind form, so emission never depends on name-matching heuristics.
func typeModule(src *types.Module, def *types.TypeDefinition, consumer walker.TypeRef, calc *walker.Calculator) (*types.Module, error) {
	local := make(map[string]bool, len(src.Types))
	for i := range src.Types {
		local[src.Types[i].Name] = true
	}

	imports := walker.NewImportSet()
	targets := make(map[string]walker.TypeRef)
	short := make(map[string]bool)

	for _, ref := range types.References(def.Type) {
		key := types.ReferenceKey(ref)
		if _, done := targets[key]; done {
			continue
		}
		target, ok := refCoordinates(ref, def.Name, consumer, local)
		if !ok {
			if ref.Module == "" && ref.Name != def.Name && !local[ref.Name] {
				short[ref.Name] = true
			}
			continue
		}
		path := calc.ImportPath(consumer, target)
		imp := types.Import{Path: path, Alias: importAlias(path, target), Items: []string{target.Kind}}
		if err := imports.Add(imp); err != nil {
			return nil, err
		}
		targets[key] = target
	}

	// Module-level imports whose items an unqualified reference still needs
	// carry over; the per-type file sits at the module file's directory
	// depth, so their relative paths stay valid.
	for i := range src.Imports {
		imp := src.Imports[i]
		carried := len(imp.Items) == 0 && len(short) > 0
		for _, item := range imp.Items {
			if short[item] {
				carried = true
				break
			}
		}
		if !carried {
			continue
		}
		if err := imports.Add(imp); err != nil {
			return nil, err
		}
	}

	final := imports.Sorted()
	aliasByPath := make(map[string]string, len(final))
	for _, imp := range final {
		aliasByPath[imp.Path] = imp.Alias
	}

	ty := types.Transform(def.Type, func(t types.Type) types.Type {
		if t.Kind != types.KindRef {
			return t
		}
		target, ok := targets[types.ReferenceKey(t)]
		if !ok {
			return t
		}
		alias := aliasByPath[calc.ImportPath(consumer, target)]
		return types.Ref(alias + "." + target.Kind)
	})

	return &types.Module{
		Name:    src.Name + "/" + strings.ToLower(def.Name),
		Imports: final,
		Types: []types.TypeDefinition{{
			Name:          def.Name,
			Type:          ty,
			Documentation: def.Documentation,
			Annotations:   def.Annotations,
		}},
		Meta: src.Meta,
	}, nil
}

// refCoordinates locates the file a reference must import from. The second
// return is false for self references, references left to the emitter's
// resolver, and shapes the calculator cannot place.
func refCoordinates(ref types.Type, self string, consumer walker.TypeRef, local map[string]bool) (walker.TypeRef, bool) {
	if ref.Module == "" || ref.Module == consumer.Group+"/"+consumer.Version {
		if ref.Name == self || !local[ref.Name] {
			return walker.TypeRef{}, false
		}
		return walker.TypeRef{Group: consumer.Group, Version: consumer.Version, Kind: ref.Name}, true
	}
	target, ok := walker.ParseTypeRef(ref.Module + "." + ref.Name)
	if !ok {
		return walker.TypeRef{}, false
	}
	if target.Kind == self && target.Group == consumer.Group && target.Version == consumer.Version {
		return walker.TypeRef{}, false
	}
	return target, true
}

// importAlias picks the alias convention for one import. Same-directory
// siblings take the lowercased kind; hops to the authoritative meta and
// unversioned buckets of the core tree keep the bare type name; everything
// else uses the version-qualified default.
func importAlias(path string, target walker.TypeRef) string {
	switch {
	case strings.HasPrefix(path, "./"):
		return strings.ToLower(target.Kind)
	case target.Group == "k8s.io" && strings.HasPrefix(path, "../") && !strings.HasPrefix(path, "../../"):
		if (target.Version == walker.AuthoritativeVersion && walker.IsCoreMetaType(target.Kind)) ||
			(target.Version == walker.UnversionedBucket && walker.IsUnversionedKind(target.Kind)) {
			return target.Kind
		}
	}
	return walker.Alias(target, "")
}

// moduleDir is the directory a module's files land in, relative to the
// package root.
func moduleDir(calc *walker.Calculator, ref walker.TypeRef) string {
	if sub, ok := calc.GroupSubdir(ref.Group); ok {
		return sub + "/" + ref.Version
	}
	return ref.Version
}

func coreGroup(group string) bool {
	return group == "k8s.io" || strings.HasSuffix(group, ".k8s.io")
}

func versionMod(st *dirState) (string, error) {
	e := codegen.NewEmitter()
	if coreGroup(st.group) {
		e.Line("# Kubernetes core %s types", st.version)
	} else {
		e.Line("# %s %s types", st.group, st.version)
	}
	e.Line("{")
	e.Indent()
	for _, kind := range slices.Sorted(maps.Keys(st.kinds)) {
		e.Line(`%s = (import "./%s").%s,`, kind, st.kinds[kind], kind)
	}
	if len(st.constants) > 0 {
		e.Blank()
		for i := range st.constants {
			c := &st.constants[i]
			if c.Documentation != "" {
				e.Comment(c.Documentation)
			}
			v, err := codegen.FormatValue(c.Value, 1)
			if err != nil {
				return "", fmt.Errorf("constant %s: %w", c.Name, err)
			}
			e.Line("%s = %s,", c.Name, v)
		}
	}
	e.Dedent()
	e.Line("}")
	return e.String(), nil
}

func groupMod(group string, versions []string) string {
	e := codegen.NewEmitter()
	e.Line("# %s types", group)
	e.Line("{")
	e.Indent()
	slices.Sort(versions)
	for _, v := range versions {
		e.Line(`%s = import "./%s/mod.ncl",`, v, v)
	}
	e.Dedent()
	e.Line("}")
	return e.String()
}

func rootMod(opts Options, dirs map[string]*dirState, flat []string, groups map[string][]string) string {
	e := codegen.NewEmitter()
	e.Line("# %s types", rootTitle(opts, dirs))
	e.Line("{")
	e.Indent()
	type entry struct{ alias, path string }
	entries := make([]entry, 0, len(flat)+len(groups))
	for _, v := range flat {
		entries = append(entries, entry{alias: v, path: "./" + v + "/mod.ncl"})
	}
	for g := range groups {
		entries = append(entries, entry{alias: walker.PackageAlias(g + "/mod.ncl"), path: "./" + g + "/mod.ncl"})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.alias, b.alias) })
	for _, en := range entries {
		e.Line(`%s = import "%s",`, en.alias, en.path)
	}
	e.Dedent()
	e.Line("}")
	return e.String()
}

// rootTitle labels the package root. A tree holding nothing but core
// Kubernetes groups keeps the established core header; otherwise the
// package name wins, falling back to the first group.
func rootTitle(opts Options, dirs map[string]*dirState) string {
	core := true
	groups := make(map[string]bool)
	for _, st := range dirs {
		groups[st.group] = true
		core = core && coreGroup(st.group)
	}
	if core {
		return "Kubernetes core"
	}
	if opts.Name != "" {
		return opts.Name
	}
	return slices.Min(slices.Collect(maps.Keys(groups)))
}
