package walker

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/go-logr/logr"

	"github.com/nickelgen/nickelgen/internal/types"
)

// Schema is the JSON-schema subset the walkers understand. It decodes from
// CRD openAPIV3Schema trees and round-trips go-openapi definitions.
// Constructs outside the subset degrade during conversion, never during
// decoding.
type Schema struct {
	Ref         string   `json:"$ref,omitempty"`
	Type        string   `json:"type,omitempty"`
	Format      string   `json:"format,omitempty"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`

	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *SchemaOrBool      `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`

	OneOf []*Schema `json:"oneOf,omitempty"`
	AnyOf []*Schema `json:"anyOf,omitempty"`
	AllOf []*Schema `json:"allOf,omitempty"`
	Not   *Schema   `json:"not,omitempty"`

	Enum    []jsontext.Value `json:"enum,omitempty"`
	Default jsontext.Value   `json:"default,omitempty"`

	XIntOrString           bool  `json:"x-kubernetes-int-or-string,omitempty"`
	XPreserveUnknownFields *bool `json:"x-kubernetes-preserve-unknown-fields,omitempty"`
	XEmbeddedResource      bool  `json:"x-kubernetes-embedded-resource,omitempty"`
}

// SchemaOrBool holds an additionalProperties value, which is either a
// nested schema or a boolean toggle.
type SchemaOrBool struct {
	Bool   *bool
	Schema *Schema
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SchemaOrBool) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == 't' || data[0] == 'f' {
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		s.Bool = &b
		return nil
	}
	var sub Schema
	if err := json.Unmarshal(data, &sub); err != nil {
		return err
	}
	s.Schema = &sub
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s SchemaOrBool) MarshalJSON() ([]byte, error) {
	if s.Bool != nil {
		return json.Marshal(*s.Bool)
	}
	if s.Schema != nil {
		return json.Marshal(s.Schema)
	}
	return []byte("{}"), nil
}

// openRecord implements the truthy-or-present additionalProperties rule:
// only an explicit false keeps the record closed.
func (s *Schema) openRecord() bool {
	if s.XPreserveUnknownFields != nil && *s.XPreserveUnknownFields {
		return true
	}
	ap := s.AdditionalProperties
	if ap == nil {
		return false
	}
	if ap.Bool != nil {
		return *ap.Bool
	}
	return true
}

// Converter turns the schema subset into type values. The zero value is
// usable; fields left unset disable the corresponding behavior.
type Converter struct {
	// BaseModule qualifies reference targets that carry no module path.
	BaseModule string
	// MapRef overrides reference conversion, e.g. to collapse wire-format
	// scalars. A false return falls through to standard handling.
	MapRef func(target string) (types.Type, bool)
	// Log receives degradation notices; the zero Logger discards them.
	Log logr.Logger
}

// Convert maps s onto the type model. loc is the dotted location used in
// degradation notices. Conversion never fails: anything outside the subset
// becomes Any so the surrounding type still emits.
func (c *Converter) Convert(s *Schema, loc string) types.Type {
	if s == nil {
		return types.Any()
	}
	if s.Ref != "" {
		return c.refType(s.Ref)
	}
	if s.XIntOrString {
		return types.HintedUnionOf(types.PreferString, types.Integer(), types.String())
	}
	switch s.Type {
	case "string":
		return types.String()
	case "number":
		return types.Number()
	case "integer":
		return types.Integer()
	case "boolean":
		return types.Bool()
	case "null":
		return types.Null()
	case "array":
		if s.Items == nil {
			return types.Any()
		}
		return types.ArrayOf(c.Convert(s.Items, loc))
	case "object":
		return c.convertObject(s, loc)
	case "":
		switch {
		case len(s.OneOf) > 0:
			return types.UnionOf(c.convertAll(s.OneOf, loc)...)
		case len(s.AnyOf) > 0:
			return types.UnionOf(c.convertAll(s.AnyOf, loc)...)
		case len(s.AllOf) > 0:
			c.degrade(&UnsupportedFeatureError{Feature: "allOf", Location: loc})
			return types.Any()
		case s.Not != nil:
			c.degrade(&UnsupportedFeatureError{Feature: "not", Location: loc})
			return types.Any()
		case len(s.Properties) > 0 || s.AdditionalProperties != nil:
			return c.convertObject(s, loc)
		}
		return types.Any()
	default:
		c.degrade(&UnsupportedFeatureError{Feature: "type " + s.Type, Location: loc})
		return types.Any()
	}
}

func (c *Converter) convertAll(subs []*Schema, loc string) []types.Type {
	out := make([]types.Type, len(subs))
	for i, sub := range subs {
		out[i] = c.Convert(sub, loc)
	}
	return out
}

func (c *Converter) convertObject(s *Schema, loc string) types.Type {
	open := s.openRecord()
	if len(s.Properties) == 0 {
		if ap := s.AdditionalProperties; ap != nil && ap.Schema != nil {
			return types.MapOf(types.String(), c.Convert(ap.Schema, loc))
		}
		return types.RecordOf(map[string]types.Field{}, open)
	}
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	fields := make(map[string]types.Field, len(s.Properties))
	for name, prop := range s.Properties {
		field := types.Field{
			Type:     c.Convert(prop, loc+"."+name),
			Required: required[name],
		}
		if prop != nil {
			field.Description = prop.Description
			if len(prop.Default) > 0 {
				field.Default = prop.Default
			}
		}
		fields[name] = field
	}
	return types.RecordOf(fields, open)
}

// refType keeps references as references; they are never inlined, so the
// import machinery sees every cross-type pointer.
func (c *Converter) refType(ref string) types.Type {
	target := strings.TrimPrefix(ref, "#/definitions/")
	target = strings.TrimPrefix(target, "#/components/schemas/")
	if c.MapRef != nil {
		if ty, ok := c.MapRef(target); ok {
			return ty
		}
	}
	if i := strings.LastIndex(target, "/"); i >= 0 {
		target = target[i+1:]
	}
	if IsK8sName(target) {
		module, name := SplitFQN(target)
		return types.ModuleRef(name, module)
	}
	if i := strings.LastIndex(target, "."); i >= 0 {
		return types.ModuleRef(target[i+1:], target[:i])
	}
	return types.ModuleRef(target, c.BaseModule)
}

func (c *Converter) degrade(err error) {
	c.Log.V(1).Info("degrading to Any", "reason", err.Error())
}

// schemaRefs collects every definition name referenced inside s, in
// deterministic order.
func schemaRefs(s *Schema) []string {
	var out []string
	var visit func(*Schema)
	visit = func(s *Schema) {
		if s == nil {
			return
		}
		if t := strings.TrimPrefix(s.Ref, "#/definitions/"); t != s.Ref && t != "" {
			out = append(out, t)
		}
		for _, name := range slices.Sorted(maps.Keys(s.Properties)) {
			visit(s.Properties[name])
		}
		if s.AdditionalProperties != nil {
			visit(s.AdditionalProperties.Schema)
		}
		visit(s.Items)
		for _, sub := range s.OneOf {
			visit(sub)
		}
		for _, sub := range s.AnyOf {
			visit(sub)
		}
		for _, sub := range s.AllOf {
			visit(sub)
		}
		visit(s.Not)
	}
	visit(s)
	return out
}
