package types

import "github.com/go-json-experiment/json/jsontext"

// TypeDefinition is a named type owned by exactly one module. Definitions
// are treated as immutable once registered; passes that need to rewrite a
// definition clone it first (see Transform).
type TypeDefinition struct {
	Name          string            `json:"name"`
	Type          Type              `json:"type"`
	Documentation string            `json:"documentation,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty"`
}

// Import binds one imported file or package to a local alias.
// Within a module every alias is unique and every distinct path appears
// exactly once; repeated imports of the same path coalesce.
type Import struct {
	Path  string   `json:"path"`
	Alias string   `json:"alias,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Constant is a named literal emitted alongside a module's types.
type Constant struct {
	Name          string         `json:"name"`
	Value         jsontext.Value `json:"value"`
	Documentation string         `json:"documentation,omitempty"`
}

// ModuleMeta records provenance for a generated module. It is informational
// only; emitters never render it, so it cannot perturb output determinism.
type ModuleMeta struct {
	Source      string `json:"source,omitempty"`
	Version     string `json:"version,omitempty"`
	GeneratedAt string `json:"generatedAt,omitempty"`
}

// Module is one generation unit: a fully-qualified group/version path, the
// imports its types need, and the definitions themselves.
type Module struct {
	Name      string           `json:"name"`
	Imports   []Import         `json:"imports,omitempty"`
	Types     []TypeDefinition `json:"types,omitempty"`
	Constants []Constant       `json:"constants,omitempty"`
	Meta      ModuleMeta       `json:"meta,omitempty"`
}

// LocalType reports whether name is defined by the module itself.
func (m *Module) LocalType(name string) bool {
	for i := range m.Types {
		if m.Types[i].Name == name {
			return true
		}
	}
	return false
}

// IR is the source-agnostic output of a walker: every module extracted from
// one input, ready for target emission.
type IR struct {
	Modules []Module `json:"modules"`
}

// AddModule appends m to the IR.
func (ir *IR) AddModule(m Module) {
	ir.Modules = append(ir.Modules, m)
}

// IRBuilder assembles IR by hand, mainly for tests and legacy inputs that
// bypass the walkers.
type IRBuilder struct {
	ir      IR
	current *Module
}

// NewIRBuilder returns an empty builder.
func NewIRBuilder() *IRBuilder {
	return &IRBuilder{}
}

// Module finishes any in-progress module and starts a new one.
func (b *IRBuilder) Module(name string) *IRBuilder {
	b.flush()
	b.current = &Module{Name: name}
	return b
}

// AddType registers a bare type definition in the current module.
func (b *IRBuilder) AddType(name string, ty Type) *IRBuilder {
	return b.AddTypeDef(TypeDefinition{Name: name, Type: ty})
}

// AddTypeDef registers a full type definition in the current module.
func (b *IRBuilder) AddTypeDef(def TypeDefinition) *IRBuilder {
	if b.current == nil {
		b.current = &Module{}
	}
	b.current.Types = append(b.current.Types, def)
	return b
}

// AddImport appends an import to the current module.
func (b *IRBuilder) AddImport(imp Import) *IRBuilder {
	if b.current == nil {
		b.current = &Module{}
	}
	b.current.Imports = append(b.current.Imports, imp)
	return b
}

// AddConstant appends a constant to the current module.
func (b *IRBuilder) AddConstant(c Constant) *IRBuilder {
	if b.current == nil {
		b.current = &Module{}
	}
	b.current.Constants = append(b.current.Constants, c)
	return b
}

// Build finishes the in-progress module and returns the accumulated IR.
func (b *IRBuilder) Build() IR {
	b.flush()
	return b.ir
}

func (b *IRBuilder) flush() {
	if b.current != nil {
		b.ir.Modules = append(b.ir.Modules, *b.current)
		b.current = nil
	}
}
