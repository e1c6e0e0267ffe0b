package types

import (
	"maps"
	"slices"
)

// Walk visits t and every type nested inside it in depth-first order.
// Returning false from visit skips the current node's children. Record
// fields and tagged-union variants are visited in sorted name order so
// traversal order is deterministic.
func Walk(t Type, visit func(Type) bool) {
	WalkPath(t, "", func(_ string, ty Type) bool { return visit(ty) })
}

// WalkPath is Walk with a dotted location path threaded through, rooted at
// base. Record fields extend the path with ".{field}" and tagged-union
// variants with "[{tag}]"; container wrappers pass it through unchanged.
func WalkPath(t Type, base string, visit func(path string, t Type) bool) {
	if !visit(base, t) {
		return
	}
	switch t.Kind {
	case KindArray, KindOptional:
		if t.Elem != nil {
			WalkPath(*t.Elem, base, visit)
		}
	case KindMap:
		if t.Value != nil {
			WalkPath(*t.Value, base, visit)
		}
	case KindRecord:
		for _, name := range slices.Sorted(maps.Keys(t.Fields)) {
			WalkPath(t.Fields[name].Type, base+"."+name, visit)
		}
	case KindUnion:
		for _, m := range t.Members {
			WalkPath(m, base, visit)
		}
	case KindTagged:
		for _, tag := range slices.Sorted(maps.Keys(t.Variants)) {
			WalkPath(t.Variants[tag], base+"["+tag+"]", visit)
		}
	case KindContract:
		if t.Base != nil {
			WalkPath(*t.Base, base, visit)
		}
	}
}

// Transform rebuilds the type tree bottom-up, applying fn to every node
// after its children have been rebuilt. The result shares no containers
// with the input, so registered definitions stay untouched when a pass
// rewrites their clone.
func Transform(t Type, fn func(Type) Type) Type {
	switch t.Kind {
	case KindArray, KindOptional:
		if t.Elem != nil {
			elem := Transform(*t.Elem, fn)
			t.Elem = &elem
		}
	case KindMap:
		if t.Key != nil {
			key := Transform(*t.Key, fn)
			t.Key = &key
		}
		if t.Value != nil {
			value := Transform(*t.Value, fn)
			t.Value = &value
		}
	case KindRecord:
		fields := make(map[string]Field, len(t.Fields))
		for name, f := range t.Fields {
			f.Type = Transform(f.Type, fn)
			fields[name] = f
		}
		t.Fields = fields
	case KindUnion:
		members := make([]Type, len(t.Members))
		for i, m := range t.Members {
			members[i] = Transform(m, fn)
		}
		t.Members = members
	case KindTagged:
		variants := make(map[string]Type, len(t.Variants))
		for tag, v := range t.Variants {
			variants[tag] = Transform(v, fn)
		}
		t.Variants = variants
	case KindContract:
		if t.Base != nil {
			base := Transform(*t.Base, fn)
			t.Base = &base
		}
	}
	return fn(t)
}

// Clone returns a deep copy of t.
func Clone(t Type) Type {
	return Transform(t, func(ty Type) Type { return ty })
}

// ReferenceKey is the dependency-graph key for a reference: the qualified
// "{module}.{name}" when the reference carries a module, else the bare name.
func ReferenceKey(t Type) string {
	if t.Kind != KindRef {
		return ""
	}
	if t.Module != "" {
		return t.Module + "." + t.Name
	}
	return t.Name
}

// References collects every reference nested in t, in deterministic order,
// without deduplication.
func References(t Type) []Type {
	var refs []Type
	Walk(t, func(ty Type) bool {
		if ty.Kind == KindRef {
			refs = append(refs, ty)
		}
		return true
	})
	return refs
}
