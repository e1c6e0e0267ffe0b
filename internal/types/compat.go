package types

// TypeSystem resolves references while checking structural compatibility.
// It is the injected side table of spec-to-target passes: registered names
// stand in for definitions living elsewhere, and an unknown reference makes
// the check fail closed.
type TypeSystem struct {
	types map[string]Type
}

// NewTypeSystem returns an empty type system.
func NewTypeSystem() *TypeSystem {
	return &TypeSystem{types: make(map[string]Type)}
}

// Register records a named type for reference resolution.
func (ts *TypeSystem) Register(name string, ty Type) {
	ts.types[name] = ty
}

// Resolve looks up a registered type by name.
func (ts *TypeSystem) Resolve(name string) (Type, bool) {
	ty, ok := ts.types[name]
	return ty, ok
}

// Compatible reports whether a value of type source can stand where target
// is expected. The rules, in order:
//
//   - Any is compatible in either position.
//   - Null is compatible with any Optional.
//   - Any source is compatible with Optional(t) when it is compatible
//     with t.
//   - Integer widens to Number, never the reverse.
//   - References resolve through the registered table; an unresolvable
//     reference is incompatible.
//   - Arrays compare element-wise.
//   - A Union source needs every member compatible with the target; a
//     Union target needs any member compatible with the source.
//   - Everything else requires structural equality.
func (ts *TypeSystem) Compatible(source, target Type) bool {
	if source.Kind == KindAny || target.Kind == KindAny {
		return true
	}
	if source.Kind == KindNull && target.Kind == KindOptional {
		return true
	}
	if target.Kind == KindOptional && target.Elem != nil {
		return ts.Compatible(source, *target.Elem)
	}
	if source.Kind == KindInteger && target.Kind == KindNumber {
		return true
	}
	if source.Kind == KindRef {
		resolved, ok := ts.Resolve(source.Name)
		if !ok {
			return false
		}
		return ts.Compatible(resolved, target)
	}
	if target.Kind == KindRef {
		resolved, ok := ts.Resolve(target.Name)
		if !ok {
			return false
		}
		return ts.Compatible(source, resolved)
	}
	if source.Kind == KindArray && target.Kind == KindArray {
		if source.Elem == nil || target.Elem == nil {
			return source.Elem == target.Elem
		}
		return ts.Compatible(*source.Elem, *target.Elem)
	}
	if source.Kind == KindUnion {
		for _, m := range source.Members {
			if !ts.Compatible(m, target) {
				return false
			}
		}
		return true
	}
	if target.Kind == KindUnion {
		for _, m := range target.Members {
			if ts.Compatible(source, m) {
				return true
			}
		}
		return false
	}
	return Equal(source, target)
}
