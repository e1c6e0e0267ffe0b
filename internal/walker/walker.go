// Package walker turns heterogeneous schema sources (CRDs, OpenAPI
// documents, Go declarations) into the shared type model: a registry of
// fully-qualified definitions, a dependency graph between them, and
// finally modules with computed imports.
package walker

import (
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/nickelgen/nickelgen/internal/types"
)

// SchemaWalker is the three-phase contract every schema source implements.
// Each phase is callable on its own so tests and tooling can inspect the
// intermediate registry and graph.
type SchemaWalker interface {
	// ExtractTypes parses the walker's input and registers every named
	// type. A non-nil registry may accompany a non-nil error when some
	// units failed while others parsed.
	ExtractTypes() (*TypeRegistry, error)
	// BuildDependencies records reference edges between registered types.
	BuildDependencies(reg *TypeRegistry) (*DependencyGraph, error)
	// GenerateIR groups definitions into modules with computed imports.
	GenerateIR(reg *TypeRegistry, graph *DependencyGraph) (types.IR, error)
}

var (
	_ SchemaWalker = (*CRDWalker)(nil)
	_ SchemaWalker = (*OpenAPIWalker)(nil)
	_ SchemaWalker = (*GoWalker)(nil)
)

// Walk runs the three phases in order. Unit-scoped failures from earlier
// phases aggregate with later ones; the returned IR holds everything that
// survived.
func Walk(w SchemaWalker) (types.IR, error) {
	reg, err := w.ExtractTypes()
	if reg == nil {
		return types.IR{}, err
	}
	graph, depErr := w.BuildDependencies(reg)
	err = multierr.Append(err, depErr)
	if graph == nil {
		return types.IR{}, err
	}
	ir, genErr := w.GenerateIR(reg, graph)
	return ir, multierr.Append(err, genErr)
}

// defaultExternalPrefixes are the namespace prefixes treated as resolvable
// even when the target is not in the registry, because the platform
// package that owns them is generated separately.
var defaultExternalPrefixes = []string{"io.k8s."}

// refTarget qualifies a reference for graph keys: module-less references
// belong to the module of the type that holds them.
func refTarget(ref types.Type, ownModule string) string {
	if ref.Module != "" {
		return ref.Module + "." + ref.Name
	}
	if ownModule == "" {
		return ref.Name
	}
	return ownModule + "." + ref.Name
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// BuildGraph first degrades references that resolve neither in the
// registry nor in a recognized external namespace (the field weakens to
// Any, the name still emits), then records a dependency edge for every
// reference that survives. All walkers share it.
func BuildGraph(reg *TypeRegistry, log logr.Logger, externalPrefixes []string) *DependencyGraph {
	if externalPrefixes == nil {
		externalPrefixes = defaultExternalPrefixes
	}

	for _, fqn := range reg.FQNs() {
		def, _ := reg.Get(fqn)
		module, _ := SplitFQN(fqn)
		def.Type = types.Transform(def.Type, func(t types.Type) types.Type {
			if t.Kind != types.KindRef {
				return t
			}
			target := refTarget(t, module)
			if reg.Has(target) || hasAnyPrefix(target, externalPrefixes) {
				return t
			}
			err := &InvalidReferenceError{Reference: target, Location: fqn}
			log.Info("degrading to Any", "reason", err.Error())
			return types.Any()
		})
		reg.Add(fqn, def)
	}

	g := NewDependencyGraph()
	for _, fqn := range reg.FQNs() {
		def, _ := reg.Get(fqn)
		module, _ := SplitFQN(fqn)
		for _, ref := range types.References(def.Type) {
			g.AddDependency(fqn, refTarget(ref, module))
		}
	}
	return g
}

// AssembleIR groups the registry by module and computes one sorted import
// list per module from its cross-module dependencies. A module whose
// imports conflict aborts with a GenerationError; sibling modules emit.
func AssembleIR(reg *TypeRegistry, graph *DependencyGraph, calc *Calculator, log logr.Logger) (types.IR, error) {
	var ir types.IR
	var errs error
	for _, module := range reg.Modules() {
		m, err := assembleModule(reg, graph, calc, module)
		if err != nil {
			log.Error(err, "module aborted", "module", module)
			errs = multierr.Append(errs, err)
			continue
		}
		ir.AddModule(*m)
	}
	return ir, errs
}

func assembleModule(reg *TypeRegistry, graph *DependencyGraph, calc *Calculator, module string) (*types.Module, error) {
	consumer, located := ParseModuleRef(module)
	m := types.Module{Name: module}
	imports := NewImportSet()

	for _, name := range reg.ModuleTypes(module) {
		fqn := module + "." + name
		def, _ := reg.Get(fqn)
		m.Types = append(m.Types, def)
		if !located {
			continue
		}
		for _, dep := range graph.CrossModuleDeps(fqn, module) {
			target, ok := ParseTypeRef(dep)
			if !ok {
				continue
			}
			imp := types.Import{
				Path:  calc.ImportPath(consumer, target),
				Alias: Alias(target, ""),
				Items: []string{target.Kind},
			}
			if err := imports.Add(imp); err != nil {
				return nil, &GenerationError{Module: module, Err: err}
			}
		}
	}
	m.Imports = imports.Sorted()
	return &m, nil
}
