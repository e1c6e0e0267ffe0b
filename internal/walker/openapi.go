package walker

import (
	"encoding/json"
	"errors"
	"maps"
	"slices"

	"github.com/go-logr/logr"
	"github.com/go-openapi/spec"
	"go.uber.org/multierr"

	"github.com/nickelgen/nickelgen/internal/types"
)

// FromOpenAPI converts a loaded go-openapi schema into the walker subset
// through its JSON form, so CRD and OpenAPI inputs share one conversion.
func FromOpenAPI(s *spec.Schema) (*Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out Schema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenAPIWalker walks a swagger document's definitions. Kubernetes-style
// reverse-DNS definition names group into the core package's version
// directories; plain names group into the walker's base module.
type OpenAPIWalker struct {
	doc        *spec.Swagger
	log        logr.Logger
	calc       *Calculator
	prefixes   []string
	baseModule string
	coreOnly   bool
}

// NewOpenAPIWalker returns a walker over every definition in doc.
func NewOpenAPIWalker(doc *spec.Swagger, log logr.Logger) *OpenAPIWalker {
	return &OpenAPIWalker{doc: doc, log: log, calc: NewCalculator(), baseModule: "api/v1"}
}

// NewK8sCoreWalker returns a walker restricted to the transitive closure of
// the core-type seed list. It generates the platform core package.
func NewK8sCoreWalker(doc *spec.Swagger, log logr.Logger) *OpenAPIWalker {
	w := NewOpenAPIWalker(doc, log)
	w.coreOnly = true
	return w
}

// WithBaseModule changes the module plain definition names land in.
func (w *OpenAPIWalker) WithBaseModule(module string) *OpenAPIWalker {
	w.baseModule = module
	return w
}

// WithCalculator replaces the import calculator.
func (w *OpenAPIWalker) WithCalculator(c *Calculator) *OpenAPIWalker {
	w.calc = c
	return w
}

// ExtractTypes converts every selected definition. Definitions that fail
// to decode fail as their own unit; the rest still register.
func (w *OpenAPIWalker) ExtractTypes() (*TypeRegistry, error) {
	reg := NewTypeRegistry()
	if w.doc == nil {
		return reg, &ParseError{Source: "openapi document", Err: errors.New("no document loaded")}
	}

	var errs error
	converted := make(map[string]*Schema, len(w.doc.Definitions))
	for name := range w.doc.Definitions {
		def := w.doc.Definitions[name]
		s, err := FromOpenAPI(&def)
		if err != nil {
			errs = multierr.Append(errs, &ParseError{Source: name, Err: err})
			continue
		}
		converted[name] = s
	}

	names := slices.Sorted(maps.Keys(converted))
	if w.coreOnly {
		names = CoreClosure(converted, nil)
	}
	defined := make(map[string]bool, len(names))
	for _, name := range names {
		defined[name] = true
	}

	conv := &Converter{
		BaseModule: w.baseModule,
		Log:        w.log,
		MapRef: func(target string) (types.Type, bool) {
			if !IsK8sName(target) {
				return types.Type{}, false
			}
			return K8sRefType(target)
		},
	}
	for _, name := range names {
		s := converted[name]
		module, typeName := w.locate(name)
		ty := normalizeK8sRefs(conv.Convert(s, name), defined)
		reg.Add(module+"."+typeName, types.TypeDefinition{
			Name:          typeName,
			Type:          ty,
			Documentation: s.Description,
		})
	}
	return reg, errs
}

// locate picks the owning module for a definition name.
func (w *OpenAPIWalker) locate(name string) (module, typeName string) {
	if IsK8sName(name) {
		if ref, err := ParseK8sName(name); err == nil {
			return "k8s.io/" + K8sVersionDir(ref), ref.Kind
		}
	}
	return w.baseModule, name
}

// BuildDependencies delegates to the shared graph construction.
func (w *OpenAPIWalker) BuildDependencies(reg *TypeRegistry) (*DependencyGraph, error) {
	return BuildGraph(reg, w.log, w.prefixes), nil
}

// GenerateIR delegates to the shared module assembly.
func (w *OpenAPIWalker) GenerateIR(reg *TypeRegistry, graph *DependencyGraph) (types.IR, error) {
	return AssembleIR(reg, graph, w.calc, w.log)
}

// normalizeK8sRefs moves reverse-DNS reference coordinates into the core
// package's version-directory module space, but only for targets generated
// from this document. Out-of-document references keep their reverse-DNS
// module and import the core package externally.
func normalizeK8sRefs(t types.Type, defined map[string]bool) types.Type {
	return types.Transform(t, func(node types.Type) types.Type {
		if node.Kind != types.KindRef || node.Module == "" {
			return node
		}
		full := node.Module + "." + node.Name
		if !IsK8sName(full) || !defined[full] {
			return node
		}
		ref, err := ParseK8sName(full)
		if err != nil {
			return node
		}
		return types.ModuleRef(ref.Kind, "k8s.io/"+K8sVersionDir(ref))
	})
}
