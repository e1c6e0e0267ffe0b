package walker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"

	"github.com/nickelgen/nickelgen/internal/types"
)

// CRDKind is the manifest kind the CRD walker accepts.
const CRDKind = "CustomResourceDefinition"

// CRD is the subset of an apiextensions.k8s.io/v1 CustomResourceDefinition
// the walker reads. Decoding keeps the version schemas as generic trees so
// no vendor-specific construct is lost before conversion.
type CRD struct {
	APIVersion string      `json:"apiVersion"`
	Kind       string      `json:"kind"`
	Metadata   CRDMetadata `json:"metadata"`
	Spec       CRDSpec     `json:"spec"`
}

type CRDMetadata struct {
	Name string `json:"name"`
}

type CRDSpec struct {
	Group    string       `json:"group"`
	Names    CRDNames     `json:"names"`
	Scope    string       `json:"scope,omitempty"`
	Versions []CRDVersion `json:"versions"`
}

type CRDNames struct {
	Plural   string `json:"plural"`
	Singular string `json:"singular,omitempty"`
	Kind     string `json:"kind"`
	ListKind string `json:"listKind,omitempty"`
}

type CRDVersion struct {
	Name    string            `json:"name"`
	Served  bool              `json:"served"`
	Storage bool              `json:"storage"`
	Schema  *CRDVersionSchema `json:"schema,omitempty"`
}

type CRDVersionSchema struct {
	OpenAPIV3Schema *Schema `json:"openAPIV3Schema,omitempty"`
}

// ParseCRD decodes one CRD manifest (YAML or JSON). source names the unit
// in errors.
func ParseCRD(source string, data []byte) (*CRD, error) {
	var crd CRD
	if err := yaml.Unmarshal(data, &crd); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if crd.Kind != CRDKind {
		return nil, &ParseError{Source: source, Err: fmt.Errorf("kind %q is not a %s", crd.Kind, CRDKind)}
	}
	return &crd, nil
}

// ParseCRDs decodes a multi-document YAML stream, keeping only CRD
// manifests. Documents of other kinds count as skipped, not as errors;
// documents that fail to decode fail individually.
func ParseCRDs(source string, data []byte) (crds []*CRD, skipped int, err error) {
	for i, doc := range splitYAMLDocs(data) {
		unit := fmt.Sprintf("%s[%d]", source, i)
		var probe struct {
			Kind string `json:"kind"`
		}
		if probeErr := yaml.Unmarshal(doc, &probe); probeErr != nil {
			err = multierr.Append(err, &ParseError{Source: unit, Err: probeErr})
			continue
		}
		if probe.Kind != CRDKind {
			skipped++
			continue
		}
		crd, parseErr := ParseCRD(unit, doc)
		if parseErr != nil {
			err = multierr.Append(err, parseErr)
			continue
		}
		crds = append(crds, crd)
	}
	return crds, skipped, err
}

func splitYAMLDocs(data []byte) [][]byte {
	var docs [][]byte
	var current []string
	flush := func() {
		doc := strings.TrimSpace(strings.Join(current, "\n"))
		current = nil
		if doc != "" {
			docs = append(docs, []byte(doc))
		}
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimRight(line, " \t") == "---" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return docs
}

// CRDWalker generates one module per CRD version: the kind itself plus
// extracted {Kind}Spec and {Kind}Status definitions.
type CRDWalker struct {
	crds     []*CRD
	log      logr.Logger
	calc     *Calculator
	prefixes []string
}

// NewCRDWalker returns a walker over the given CRDs.
func NewCRDWalker(log logr.Logger, crds ...*CRD) *CRDWalker {
	return &CRDWalker{crds: crds, log: log, calc: NewCalculator()}
}

// WithCalculator replaces the import calculator.
func (w *CRDWalker) WithCalculator(c *Calculator) *CRDWalker {
	w.calc = c
	return w
}

// WithExternalPrefixes replaces the recognized external namespace prefixes.
func (w *CRDWalker) WithExternalPrefixes(prefixes ...string) *CRDWalker {
	w.prefixes = prefixes
	return w
}

// ExtractTypes converts every version of every CRD. A version without a
// schema fails as its own unit; the remaining versions still register.
func (w *CRDWalker) ExtractTypes() (*TypeRegistry, error) {
	reg := NewTypeRegistry()
	var errs error
	for _, crd := range w.crds {
		for _, version := range crd.Spec.Versions {
			if err := w.extractVersion(reg, crd, version); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return reg, errs
}

func (w *CRDWalker) extractVersion(reg *TypeRegistry, crd *CRD, version CRDVersion) error {
	kind := crd.Spec.Names.Kind
	if version.Schema == nil || version.Schema.OpenAPIV3Schema == nil {
		return &ParseError{
			Source: fmt.Sprintf("%s/%s", crd.Metadata.Name, version.Name),
			Err:    errors.New("version has no schema"),
		}
	}
	module := crd.Spec.Group + "/" + version.Name
	conv := &Converter{BaseModule: module, Log: w.log}

	root := conv.Convert(version.Schema.OpenAPIV3Schema, kind)
	root = enhanceKubernetesType(root)
	root = extractSubresource(reg, module, kind, root, "spec")
	root = extractSubresource(reg, module, kind, root, "status")

	reg.Add(module+"."+kind, types.TypeDefinition{
		Name:          kind,
		Type:          root,
		Documentation: version.Schema.OpenAPIV3Schema.Description,
	})
	return nil
}

// BuildDependencies delegates to the shared graph construction.
func (w *CRDWalker) BuildDependencies(reg *TypeRegistry) (*DependencyGraph, error) {
	return BuildGraph(reg, w.log, w.prefixes), nil
}

// GenerateIR delegates to the shared module assembly.
func (w *CRDWalker) GenerateIR(reg *TypeRegistry, graph *DependencyGraph) (types.IR, error) {
	return AssembleIR(reg, graph, w.calc, w.log)
}

// enhanceKubernetesType replaces an untyped object-manifest metadata field
// with the canonical ObjectMeta reference.
func enhanceKubernetesType(t types.Type) types.Type {
	return types.Transform(t, func(node types.Type) types.Type {
		if node.Kind != types.KindRecord {
			return node
		}
		f, ok := node.Fields["metadata"]
		if !ok || f.Type.Kind != types.KindRecord || len(f.Type.Fields) > 0 {
			return node
		}
		f.Type = types.ModuleRef("ObjectMeta", MetaV1Module)
		node.Fields["metadata"] = f
		return node
	})
}

// extractSubresource lifts a spec or status subtree out of the root record
// into its own definition, leaving a local reference behind.
func extractSubresource(reg *TypeRegistry, module, kind string, root types.Type, field string) types.Type {
	if root.Kind != types.KindRecord {
		return root
	}
	f, ok := root.Fields[field]
	if !ok || f.Type.Kind != types.KindRecord {
		return root
	}
	name := kind + capitalize(field)
	reg.Add(module+"."+name, types.TypeDefinition{
		Name:          name,
		Type:          f.Type,
		Documentation: f.Description,
	})
	f.Type = types.Ref(name)
	root.Fields[field] = f
	return root
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
