// Package types defines the algebraic type model shared by every schema
// walker and code generator in nickelgen. All source formats (CRD, OpenAPI,
// Go declarations) normalize into this one representation before emission.
package types

import (
	"reflect"

	"github.com/go-json-experiment/json/jsontext"
)

// Kind identifies the primary kind of a Type.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindInteger  Kind = "integer"
	KindBool     Kind = "bool"
	KindNull     Kind = "null"
	KindAny      Kind = "any"
	KindArray    Kind = "array"    // homogeneous sequence
	KindMap      Kind = "map"      // dictionary with uniform value type
	KindOptional Kind = "optional" // inner type or null
	KindRecord   Kind = "record"   // named fields, optionally open
	KindUnion    Kind = "union"    // untagged alternation
	KindTagged   Kind = "tagged"   // discriminated union
	KindRef      Kind = "ref"      // reference to a named type
	KindContract Kind = "contract" // base type refined by a predicate
)

// CoercionHint biases how a Union is rendered by a target emitter.
type CoercionHint string

const (
	// NoPreference renders a true alternation of all members.
	NoPreference CoercionHint = ""
	// PreferString renders the target's string type (e.g. IntOrString).
	PreferString CoercionHint = "prefer-string"
	// PreferNumber renders the target's numeric type.
	PreferNumber CoercionHint = "prefer-number"
	// CustomCoercion renders the union's CustomExpr verbatim.
	CustomCoercion CoercionHint = "custom"
)

// Type is the algebraic type representation. Kind selects the variant;
// the remaining fields are only meaningful for the kinds noted on each.
type Type struct {
	// Kind identifies the variant.
	Kind Kind `json:"kind"`

	// Elem is the element type for KindArray and the inner type for
	// KindOptional.
	Elem *Type `json:"elem,omitempty"`

	// Key and Value describe KindMap entries. Keys are assumed
	// string-like by emitters.
	Key   *Type `json:"key,omitempty"`
	Value *Type `json:"value,omitempty"`

	// Fields holds the named fields of a KindRecord. Iteration order is
	// unspecified; emitters sort by name.
	Fields map[string]Field `json:"fields,omitempty"`

	// Open is true when a KindRecord accepts fields beyond those listed.
	Open bool `json:"open,omitempty"`

	// Members holds the alternatives of a KindUnion.
	Members []Type `json:"members,omitempty"`

	// Hint biases union emission. Only set when Kind == KindUnion.
	Hint CoercionHint `json:"hint,omitempty"`

	// CustomExpr is the literal target expression emitted when
	// Hint == CustomCoercion.
	CustomExpr string `json:"customExpr,omitempty"`

	// TagField names the discriminator of a KindTagged union; Variants
	// maps each tag value to its variant type.
	TagField string          `json:"tagField,omitempty"`
	Variants map[string]Type `json:"variants,omitempty"`

	// Name is the referenced type name for KindRef. Module, when
	// non-empty, is the dot-separated fully-qualified owner path;
	// empty means the reference is local to the consuming module.
	Name   string `json:"name,omitempty"`
	Module string `json:"module,omitempty"`

	// Base and Predicate describe a KindContract refinement.
	Base      *Type  `json:"base,omitempty"`
	Predicate string `json:"predicate,omitempty"`
}

// Field is one named member of a record.
type Field struct {
	Type        Type   `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`

	// Default is the raw JSON default value, if the schema declared one.
	// A field with a default is constructable without supplying it,
	// independent of Required.
	Default jsontext.Value `json:"default,omitempty"`
}

// HasDefault reports whether the field declared a default value.
func (f Field) HasDefault() bool {
	return len(f.Default) > 0
}

func String() Type  { return Type{Kind: KindString} }
func Number() Type  { return Type{Kind: KindNumber} }
func Integer() Type { return Type{Kind: KindInteger} }
func Bool() Type    { return Type{Kind: KindBool} }
func Null() Type    { return Type{Kind: KindNull} }
func Any() Type     { return Type{Kind: KindAny} }

// ArrayOf builds a sequence of elem.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// MapOf builds a dictionary from key to value.
func MapOf(key, value Type) Type {
	return Type{Kind: KindMap, Key: &key, Value: &value}
}

// OptionalOf wraps inner as nullable.
func OptionalOf(inner Type) Type {
	return Type{Kind: KindOptional, Elem: &inner}
}

// RecordOf builds a record from fields. open allows unlisted fields.
func RecordOf(fields map[string]Field, open bool) Type {
	return Type{Kind: KindRecord, Fields: fields, Open: open}
}

// UnionOf builds an alternation with no coercion hint.
func UnionOf(members ...Type) Type {
	return Type{Kind: KindUnion, Members: members}
}

// HintedUnionOf builds an alternation carrying a coercion hint.
func HintedUnionOf(hint CoercionHint, members ...Type) Type {
	return Type{Kind: KindUnion, Members: members, Hint: hint}
}

// TaggedUnionOf builds a discriminated union keyed on tagField.
func TaggedUnionOf(tagField string, variants map[string]Type) Type {
	return Type{Kind: KindTagged, TagField: tagField, Variants: variants}
}

// Ref builds a reference local to the consuming module.
func Ref(name string) Type {
	return Type{Kind: KindRef, Name: name}
}

// ModuleRef builds a reference owned by another module.
func ModuleRef(name, module string) Type {
	return Type{Kind: KindRef, Name: name, Module: module}
}

// ContractOf refines base with a named predicate.
func ContractOf(base Type, predicate string) Type {
	return Type{Kind: KindContract, Base: &base, Predicate: predicate}
}

// IsPrimitive reports whether k is a leaf kind with no nested types.
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindString, KindNumber, KindInteger, KindBool, KindNull, KindAny:
		return true
	}
	return false
}

// Equal reports deep structural equality of two types.
func Equal(a, b Type) bool {
	return reflect.DeepEqual(a, b)
}
