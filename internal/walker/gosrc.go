package walker

import (
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"reflect"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/tools/go/packages"

	"github.com/nickelgen/nickelgen/internal/types"
)

// GoWalker converts the exported struct declarations of a Go package into
// record definitions. Field names and optionality follow encoding/json
// conventions: the json tag names the field, omitempty and pointer types
// mark it optional, "-" skips it.
type GoWalker struct {
	pattern  string
	module   string
	log      logr.Logger
	calc     *Calculator
	prefixes []string
}

// NewGoWalker returns a walker over the packages matched by pattern. The
// generated module defaults to "{package-name}/v1".
func NewGoWalker(pattern string, log logr.Logger) *GoWalker {
	return &GoWalker{pattern: pattern, log: log, calc: NewCalculator()}
}

// WithModule overrides the generated "{group}/{version}" module name.
func (w *GoWalker) WithModule(module string) *GoWalker {
	w.module = module
	return w
}

// WithCalculator replaces the import calculator.
func (w *GoWalker) WithCalculator(c *Calculator) *GoWalker {
	w.calc = c
	return w
}

// ExtractTypes loads the matched packages and registers every exported
// struct type. Packages that fail to load fail as their own unit.
func (w *GoWalker) ExtractTypes() (*TypeRegistry, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles | packages.NeedSyntax,
	}
	pkgs, err := packages.Load(cfg, w.pattern)
	if err != nil {
		return nil, &ParseError{Source: w.pattern, Err: err}
	}

	reg := NewTypeRegistry()
	var errs error
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			for _, pe := range pkg.Errors {
				errs = multierr.Append(errs, &ParseError{Source: pkg.PkgPath, Err: errors.New(pe.Msg)})
			}
			continue
		}
		module := w.module
		if module == "" {
			module = pkg.Name + "/v1"
		}
		for _, file := range pkg.Syntax {
			w.extractFile(reg, module, file)
		}
	}
	return reg, errs
}

// BuildDependencies delegates to the shared graph construction.
func (w *GoWalker) BuildDependencies(reg *TypeRegistry) (*DependencyGraph, error) {
	return BuildGraph(reg, w.log, w.prefixes), nil
}

// GenerateIR delegates to the shared module assembly.
func (w *GoWalker) GenerateIR(reg *TypeRegistry, graph *DependencyGraph) (types.IR, error) {
	return AssembleIR(reg, graph, w.calc, w.log)
}

func (w *GoWalker) extractFile(reg *TypeRegistry, module string, file *ast.File) {
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, s := range gen.Specs {
			ts, ok := s.(*ast.TypeSpec)
			if !ok || !ts.Name.IsExported() {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			reg.Add(module+"."+ts.Name.Name, types.TypeDefinition{
				Name:          ts.Name.Name,
				Type:          w.convertStruct(st, ts.Name.Name),
				Documentation: declDoc(ts, gen),
			})
		}
	}
}

func (w *GoWalker) convertStruct(st *ast.StructType, loc string) types.Type {
	fields := make(map[string]types.Field)
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 {
			w.log.V(1).Info("skipping embedded field", "struct", loc)
			continue
		}
		for _, ident := range f.Names {
			if !ident.IsExported() {
				continue
			}
			name, omitempty, skip := jsonFieldName(f.Tag, ident.Name)
			if skip {
				continue
			}
			_, ptr := f.Type.(*ast.StarExpr)
			fields[name] = types.Field{
				Type:        w.convertExpr(f.Type, loc+"."+ident.Name),
				Required:    !omitempty && !ptr,
				Description: fieldDoc(f),
			}
		}
	}
	return types.RecordOf(fields, false)
}

func (w *GoWalker) convertExpr(expr ast.Expr, loc string) types.Type {
	switch e := expr.(type) {
	case *ast.Ident:
		return convertIdent(e)
	case *ast.StarExpr:
		return types.OptionalOf(w.convertExpr(e.X, loc))
	case *ast.ArrayType:
		// []byte marshals as a base64 string.
		if id, ok := e.Elt.(*ast.Ident); ok && id.Name == "byte" {
			return types.String()
		}
		return types.ArrayOf(w.convertExpr(e.Elt, loc))
	case *ast.MapType:
		return types.MapOf(w.convertExpr(e.Key, loc), w.convertExpr(e.Value, loc))
	case *ast.InterfaceType:
		return types.Any()
	case *ast.SelectorExpr:
		return convertSelector(e)
	}
	w.log.V(1).Info("degrading to Any",
		"reason", (&UnsupportedFeatureError{Feature: fmt.Sprintf("%T", expr), Location: loc}).Error())
	return types.Any()
}

func convertIdent(e *ast.Ident) types.Type {
	switch e.Name {
	case "string":
		return types.String()
	case "bool":
		return types.Bool()
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"byte", "rune":
		return types.Integer()
	case "float32", "float64":
		return types.Number()
	case "any":
		return types.Any()
	}
	return types.Ref(e.Name)
}

func convertSelector(e *ast.SelectorExpr) types.Type {
	if pkg, ok := e.X.(*ast.Ident); ok {
		switch pkg.Name + "." + e.Sel.Name {
		case "time.Time":
			return types.String()
		case "time.Duration":
			return types.Integer()
		case "json.RawMessage", "jsontext.Value":
			return types.Any()
		}
		// The conventional alias for apimachinery meta types.
		if pkg.Name == "metav1" {
			return types.ModuleRef(e.Sel.Name, MetaV1Module)
		}
	}
	return types.Ref(e.Sel.Name)
}

// jsonFieldName applies encoding/json tag rules to pick the emitted field
// name.
func jsonFieldName(tag *ast.BasicLit, fallback string) (name string, omitempty, skip bool) {
	if tag == nil {
		return fallback, false, false
	}
	jsonTag := reflect.StructTag(strings.Trim(tag.Value, "`")).Get("json")
	if jsonTag == "" {
		return fallback, false, false
	}
	parts := strings.Split(jsonTag, ",")
	if parts[0] == "-" && len(parts) == 1 {
		return "", false, true
	}
	name = parts[0]
	if name == "" {
		name = fallback
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func declDoc(ts *ast.TypeSpec, gen *ast.GenDecl) string {
	if ts.Doc != nil {
		return strings.TrimSpace(ts.Doc.Text())
	}
	if gen.Doc != nil {
		return strings.TrimSpace(gen.Doc.Text())
	}
	return ""
}

func fieldDoc(f *ast.Field) string {
	if f.Doc != nil {
		return strings.TrimSpace(f.Doc.Text())
	}
	if f.Comment != nil {
		return strings.TrimSpace(f.Comment.Text())
	}
	return ""
}
