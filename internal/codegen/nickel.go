package codegen

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"golang.org/x/text/unicode/norm"

	"github.com/nickelgen/nickelgen/internal/resolver"
	"github.com/nickelgen/nickelgen/internal/types"
	"github.com/nickelgen/nickelgen/internal/walker"
)

// Generator renders an intermediate representation as target-language source.
type Generator interface {
	Generate(ir types.IR) (string, error)
}

// Nickel renders IR modules as Nickel contract files. Every field becomes a
// contract annotation; defaults and documentation ride along as metadata.
// Output is deterministic: identical IR yields byte-identical source.
type Nickel struct {
	res *resolver.Resolver

	// live collects cross-version imports discovered while rendering the
	// current module. Keyed by (version, lowercased type name).
	live map[liveImport]struct{}
}

var _ Generator = (*Nickel)(nil)

type liveImport struct {
	version string
	file    string
}

// NewNickel returns a generator backed by the default short-name table.
func NewNickel() *Nickel {
	return NewNickelWithResolver(resolver.New(nil))
}

// NewNickelWithResolver returns a generator that qualifies references
// through res. Callers supply a resolver built from a custom table when the
// built-in Kubernetes mappings are not enough.
func NewNickelWithResolver(res *resolver.Resolver) *Nickel {
	return &Nickel{
		res:  res,
		live: make(map[liveImport]struct{}),
	}
}

// Generate renders every module in ir, in order, into one source string.
// A failure inside a module aborts with a GenerationError naming it.
func (g *Nickel) Generate(ir types.IR) (string, error) {
	e := NewEmitter()
	for i := range ir.Modules {
		m := &ir.Modules[i]
		if err := g.generateModule(e, m); err != nil {
			return "", &walker.GenerationError{Module: m.Name, Err: err}
		}
	}
	return e.String(), nil
}

func (g *Nickel) generateModule(e *Emitter, m *types.Module) error {
	clear(g.live)

	// Render all types up front so cross-version imports are known before
	// the header is written.
	rendered := make([]string, len(m.Types))
	for i := range m.Types {
		s, err := g.typeString(m.Types[i].Type, m, 1)
		if err != nil {
			return err
		}
		rendered[i] = s
	}

	e.Line("# Module: %s", m.Name)
	e.Blank()

	bound := make(map[string]bool)
	if len(g.live) > 0 {
		keys := slices.SortedFunc(maps.Keys(g.live), func(a, b liveImport) int {
			if c := strings.Compare(a.version, b.version); c != 0 {
				return c
			}
			return strings.Compare(a.file, b.file)
		})
		for _, li := range keys {
			alias := li.version + "_" + li.file
			e.Line(`let %s = import "../%s/%s.ncl" in`, alias, li.version, li.file)
			bound[alias] = true
		}
		e.Blank()
	}
	if len(m.Imports) > 0 {
		wrote := false
		for i := range m.Imports {
			imp := &m.Imports[i]
			alias := imp.Alias
			if alias == "" {
				alias = strings.ReplaceAll(imp.Path, "/", "_")
			}
			if bound[alias] {
				continue
			}
			bound[alias] = true
			e.Line(`let %s = import %q in`, alias, imp.Path)
			wrote = true
		}
		if wrote {
			e.Blank()
		}
	}

	e.Line("{")
	e.Indent()
	for i := range m.Types {
		def := &m.Types[i]
		if def.Documentation != "" {
			e.Comment(def.Documentation)
		}
		e.Line("%s = %s,", def.Name, rendered[i])
		if i < len(m.Types)-1 {
			e.Blank()
		}
	}
	if len(m.Constants) > 0 {
		e.Blank()
		for i := range m.Constants {
			c := &m.Constants[i]
			if c.Documentation != "" {
				e.Comment(c.Documentation)
			}
			v, err := formatJSONValue(c.Value, 1)
			if err != nil {
				return fmt.Errorf("constant %s: %w", c.Name, err)
			}
			e.Line("%s = %s,", c.Name, v)
		}
	}
	e.Dedent()
	e.Line("}")
	return nil
}

// typeString renders ty as a Nickel contract expression. level is the
// indentation depth of the surrounding context; nested records indent one
// step further.
func (g *Nickel) typeString(ty types.Type, m *types.Module, level int) (string, error) {
	switch ty.Kind {
	case types.KindString:
		return "String", nil
	case types.KindNumber, types.KindInteger:
		// Nickel has a single numeric type.
		return "Number", nil
	case types.KindBool:
		return "Bool", nil
	case types.KindNull:
		return "Null", nil
	case types.KindAny:
		return "Dyn", nil

	case types.KindArray:
		if ty.Elem == nil {
			return "", fmt.Errorf("array without element type")
		}
		elem, err := g.typeString(*ty.Elem, m, level)
		if err != nil {
			return "", err
		}
		return "Array " + elem, nil

	case types.KindMap:
		if ty.Value == nil {
			return "", fmt.Errorf("map without value type")
		}
		value, err := g.typeString(*ty.Value, m, level)
		if err != nil {
			return "", err
		}
		return "{ _ : " + value + " }", nil

	case types.KindOptional:
		if ty.Elem == nil {
			return "", fmt.Errorf("optional without inner type")
		}
		inner, err := g.typeString(*ty.Elem, m, level)
		if err != nil {
			return "", err
		}
		return inner + " | Null", nil

	case types.KindRecord:
		return g.recordString(ty, m, level)

	case types.KindUnion:
		switch ty.Hint {
		case types.PreferString:
			return "String", nil
		case types.PreferNumber:
			return "Number", nil
		case types.CustomCoercion:
			return ty.CustomExpr, nil
		}
		parts := make([]string, len(ty.Members))
		for i := range ty.Members {
			s, err := g.typeString(ty.Members[i], m, level)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, " | "), nil

	case types.KindTagged:
		tags := slices.Sorted(maps.Keys(ty.Variants))
		alts := make([]string, len(tags))
		for i, tag := range tags {
			s, err := g.typeString(ty.Variants[tag], m, level)
			if err != nil {
				return "", err
			}
			alts[i] = fmt.Sprintf("(%s == %q && %s)", ty.TagField, tag, s)
		}
		return strings.Join(alts, " | "), nil

	case types.KindRef:
		if ty.Module != "" {
			if ver, ok := crossVersionTarget(ty.Module, m.Name); ok {
				file := strings.ToLower(ty.Name)
				g.live[liveImport{version: ver, file: file}] = struct{}{}
				return ver + "_" + file + "." + ty.Name, nil
			}
		}
		return g.res.Resolve(ty.Name, m, resolver.Context{}), nil

	case types.KindContract:
		if ty.Base == nil {
			return "", fmt.Errorf("contract without base type")
		}
		base, err := g.typeString(*ty.Base, m, level)
		if err != nil {
			return "", err
		}
		return base + " | Contract(" + ty.Predicate + ")", nil
	}
	return "", fmt.Errorf("unknown type kind %q", ty.Kind)
}

func (g *Nickel) recordString(ty types.Type, m *types.Module, level int) (string, error) {
	if len(ty.Fields) == 0 && ty.Open {
		return "{ .. }", nil
	}
	var b strings.Builder
	b.WriteString("{\n")
	for _, name := range slices.Sorted(maps.Keys(ty.Fields)) {
		fs, err := g.fieldString(name, ty.Fields[name], m, level+1)
		if err != nil {
			return "", err
		}
		b.WriteString(fs)
		b.WriteString(",\n")
	}
	if ty.Open {
		b.WriteString(indent(level+1) + ".. | Dyn,\n")
	}
	b.WriteString(indent(level))
	b.WriteByte('}')
	return b.String(), nil
}

// fieldString renders one record field with its annotations. The annotation
// order is fixed by Nickel's grammar: name, optional, contract, doc, default.
// A field with a default is constructable without supplying it, so optional
// is only emitted when no default exists.
func (g *Nickel) fieldString(name string, f types.Field, m *types.Module, level int) (string, error) {
	ts, err := g.typeString(f.Type, m, level)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", name, err)
	}

	parts := []string{indent(level) + escapeFieldName(name)}
	if !f.HasDefault() {
		parts = append(parts, "optional")
	}
	parts = append(parts, ts)
	if f.Description != "" {
		parts = append(parts, "doc "+formatDoc(f.Description))
	}
	if f.HasDefault() {
		dv, err := formatJSONValue(f.Default, level)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
		parts = append(parts, "default = "+dv)
	}
	return strings.Join(parts, " | "), nil
}

// crossVersionTarget reports whether refModule and current name sibling
// versions of the Kubernetes core tree, and if so which version directory
// the import must point at. Both reverse-DNS names (io.k8s.apimachinery...)
// and path-shaped names (k8s.io/v1) are recognized.
func crossVersionTarget(refModule, current string) (string, bool) {
	refVer, ok := k8sVersion(refModule)
	if !ok {
		return "", false
	}
	curVer, ok := k8sVersion(current)
	if !ok || refVer == curVer {
		return "", false
	}
	return refVer, true
}

func k8sVersion(module string) (string, bool) {
	switch {
	case strings.Contains(module, "io.k8s."):
		parts := strings.Split(module, ".")
		if len(parts) <= 2 {
			return "", false
		}
		return parts[len(parts)-1], true
	case strings.HasPrefix(module, "k8s.io/"):
		return module[strings.LastIndex(module, "/")+1:], true
	}
	return "", false
}

// indent returns the whitespace prefix for one nesting level.
func indent(level int) string {
	return strings.Repeat("  ", level)
}

// reservedWords are Nickel keywords that cannot appear as bare field names.
var reservedWords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "if": {}, "then": {}, "else": {},
	"let": {}, "in": {}, "fun": {}, "import": {}, "match": {}, "rec": {},
	"null": {}, "true": {}, "false": {}, "switch": {}, "default": {},
	"forall": {}, "doc": {}, "optional": {}, "priority": {}, "force": {},
	"merge": {},
}

// escapeFieldName quotes names that Nickel cannot take bare: reserved words,
// names starting with $ or a digit, and anything else outside the identifier
// grammar. Names are NFC-normalized first so equivalent Unicode spellings
// emit identically.
func escapeFieldName(name string) string {
	name = norm.NFC.String(name)
	if _, reserved := reservedWords[name]; reserved || !isIdentifier(name) {
		escaped := strings.ReplaceAll(name, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return name
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '\'' {
			return false
		}
	}
	return true
}

// formatDoc renders a documentation string. Short single-line docs use a
// plain quoted string; multiline or long docs use a multiline string whose
// %-guard grows until it cannot collide with the content.
func formatDoc(doc string) string {
	if strings.Contains(doc, "\n") || len(doc) > 80 {
		guard := strings.Repeat("%", guardLevel(doc))
		return "m" + guard + "\"\n" + strings.TrimSpace(doc) + "\n\"" + guard
	}
	escaped := strings.ReplaceAll(doc, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// guardLevel returns the smallest percent count that makes the multiline
// delimiter unambiguous for doc.
func guardLevel(doc string) int {
	level := 1
	for i := 0; i < len(doc); i++ {
		if doc[i] != '"' {
			continue
		}
		n := 0
		for i+1+n < len(doc) && doc[i+1+n] == '%' {
			n++
		}
		if n >= level {
			level = n + 1
		}
	}
	return level
}

// FormatValue renders a raw JSON value as a Nickel expression at the given
// record nesting level. The package layout generator uses it to place
// module constants in aggregation files.
func FormatValue(v jsontext.Value, level int) (string, error) {
	return formatJSONValue(v, level)
}

// formatJSONValue renders a raw JSON value as a Nickel expression. Number
// literals pass through byte-for-byte so defaults like 1.0 keep their
// spelling; object keys are sorted and escaped like record fields.
func formatJSONValue(v jsontext.Value, level int) (string, error) {
	raw := jsontext.Value(bytes.TrimSpace(v))
	switch raw.Kind() {
	case 'n', 't', 'f', '0':
		return string(raw), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("malformed default %s: %w", raw, err)
		}
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`, nil
	case '[':
		elems, err := splitArray(raw)
		if err != nil {
			return "", err
		}
		items := make([]string, len(elems))
		for i, el := range elems {
			s, err := formatJSONValue(el, level)
			if err != nil {
				return "", err
			}
			items[i] = s
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case '{':
		members, err := splitObject(raw)
		if err != nil {
			return "", err
		}
		if len(members) == 0 {
			return "{}", nil
		}
		slices.SortStableFunc(members, func(a, b objectMember) int {
			return strings.Compare(a.key, b.key)
		})
		inner := indent(level + 1)
		items := make([]string, len(members))
		for i, mem := range members {
			s, err := formatJSONValue(mem.value, level+1)
			if err != nil {
				return "", err
			}
			items[i] = inner + escapeFieldName(mem.key) + " = " + s
		}
		return "{\n" + strings.Join(items, ",\n") + "\n" + indent(level) + "}", nil
	}
	return "", fmt.Errorf("malformed default %s", raw)
}

type objectMember struct {
	key   string
	value jsontext.Value
}

func splitArray(v jsontext.Value) ([]jsontext.Value, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(v))
	if _, err := dec.ReadToken(); err != nil {
		return nil, err
	}
	var out []jsontext.Value
	for dec.PeekKind() != ']' {
		ev, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}
		out = append(out, jsontext.Value(bytes.Clone(ev)))
	}
	return out, nil
}

func splitObject(v jsontext.Value) ([]objectMember, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(v))
	if _, err := dec.ReadToken(); err != nil {
		return nil, err
	}
	var out []objectMember
	for dec.PeekKind() != '}' {
		key, err := dec.ReadToken()
		if err != nil {
			return nil, err
		}
		// The token is only valid until the next Decoder call; take the
		// key string before ReadValue voids it.
		name := key.String()
		val, err := dec.ReadValue()
		if err != nil {
			return nil, err
		}
		out = append(out, objectMember{
			key:   name,
			value: jsontext.Value(bytes.Clone(val)),
		})
	}
	return out, nil
}
