package walker

import (
	"maps"
	"slices"
	"strings"

	"github.com/nickelgen/nickelgen/internal/types"
)

// TypeRegistry holds every type definition a walk extracted, keyed by
// fully-qualified name, with a per-module name index. It is built once
// during extraction and read-only afterwards.
type TypeRegistry struct {
	defs    map[string]types.TypeDefinition
	modules map[string][]string
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		defs:    make(map[string]types.TypeDefinition),
		modules: make(map[string][]string),
	}
}

// SplitFQN splits a fully-qualified name at its last dot into module and
// type name. A name with no dot has an empty module.
func SplitFQN(fqn string) (module, name string) {
	if i := strings.LastIndex(fqn, "."); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}

// Add registers def under fqn, indexing it by the module part of the name.
func (r *TypeRegistry) Add(fqn string, def types.TypeDefinition) {
	module, name := SplitFQN(fqn)
	if _, seen := r.defs[fqn]; !seen && module != "" {
		r.modules[module] = append(r.modules[module], name)
	}
	r.defs[fqn] = def
}

// Get returns the definition registered under fqn.
func (r *TypeRegistry) Get(fqn string) (types.TypeDefinition, bool) {
	def, ok := r.defs[fqn]
	return def, ok
}

// Has reports whether fqn is registered.
func (r *TypeRegistry) Has(fqn string) bool {
	_, ok := r.defs[fqn]
	return ok
}

// Len returns the number of registered definitions.
func (r *TypeRegistry) Len() int { return len(r.defs) }

// Modules returns every module that owns at least one type, sorted.
func (r *TypeRegistry) Modules() []string {
	return slices.Sorted(maps.Keys(r.modules))
}

// ModuleTypes returns the type names owned by module, sorted.
func (r *TypeRegistry) ModuleTypes(module string) []string {
	names := slices.Clone(r.modules[module])
	slices.Sort(names)
	return names
}

// FQNs returns every registered fully-qualified name, sorted.
func (r *TypeRegistry) FQNs() []string {
	return slices.Sorted(maps.Keys(r.defs))
}
