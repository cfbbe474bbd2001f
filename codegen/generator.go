// Package codegen renders a frozen symbol table as a single Go source
// file.
package codegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/ir"
	"github.com/refaktor/pybindgen/textutils"
	"github.com/refaktor/pybindgen/typemap"
)

type Options struct {
	// Package is the Go package name. It defaults to the last element
	// of the first root module.
	Package string
	// Jobs is the number of module sections rendered concurrently.
	Jobs int
	// Filename is the name recorded in the syntax tree's positions.
	Filename string
}

type Output struct {
	Package string
	// Source is the formatted Go source.
	Source []byte
	Fset   *token.FileSet
	File   *ast.File
}

// SyntaxError is returned when the generated text is not valid Go. It
// carries the unformatted text.
type SyntaxError struct {
	Err    error
	Source string
}

func (e *SyntaxError) Error() string {
	return "generated code: " + e.Err.Error()
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// PackageName returns the Go package name for t.
func PackageName(t *ir.Table, name string) string {
	if name == "" && len(t.Roots) > 0 {
		root := t.Roots[0]
		name = root[strings.LastIndex(root, ".")+1:]
	}
	name = ir.Escape(ir.Sanitize(strings.ToLower(name), false))
	if name == "main" {
		// A main package would need a main function.
		name += "_"
	}
	return name
}

// Generate renders t, which must be frozen.
func Generate(ctx context.Context, t *ir.Table, opts Options) (*Output, error) {
	if !t.Frozen() {
		return nil, errors.New("symbol table is not frozen")
	}
	if opts.Filename == "" {
		opts.Filename = "bindings.go"
	}
	pkg := PackageName(t, opts.Package)
	gen := &generator{t: t}

	var modules []*ir.Module
	for _, m := range t.Modules() {
		if m.Emit {
			modules = append(modules, m)
		}
	}
	sections := make([]string, len(modules))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Jobs, 1))
	for i, m := range modules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sections[i] = gen.module(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prelude, err := renderPrelude(pkg, t.Entries)
	if err != nil {
		return nil, fmt.Errorf("render prelude: %w", err)
	}
	var src strings.Builder
	src.WriteString(gen.header(pkg))
	src.WriteString(prelude)
	for _, s := range sections {
		src.WriteString("\n")
		src.WriteString(s)
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, opts.Filename, src.String(), parser.ParseComments)
	if err != nil {
		return nil, &SyntaxError{Err: err, Source: src.String()}
	}
	if err := pruneImports(fset, f); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, f); err != nil {
		return nil, &SyntaxError{Err: err, Source: src.String()}
	}

	out := &Output{Package: pkg, Source: buf.Bytes(), Fset: token.NewFileSet()}
	out.File, err = parser.ParseFile(out.Fset, opts.Filename, out.Source, parser.ParseComments)
	if err != nil {
		return nil, &SyntaxError{Err: err, Source: string(out.Source)}
	}
	return out, nil
}

type generator struct {
	t *ir.Table
}

func (g *generator) header(pkg string) string {
	var cb CodeBuilder
	cb.Linef("// Code generated by pybindgen from %v. DO NOT EDIT.", strings.Join(g.t.Entries, ", "))
	cb.Linef("")
	doc := fmt.Sprintf("Package %v binds the Python modules %v.", pkg, strings.Join(g.t.Roots, ", "))
	if len(g.t.Roots) == 1 {
		root := g.t.Module(g.t.Roots[0])
		doc = fmt.Sprintf("Package %v binds the Python module %v.", pkg, root.Path)
		if root.Namespace == "" && root.Doc != "" {
			doc += "\n\n" + textutils.CleanDoc(root.Doc)
		}
	}
	cb.Doc(doc)
	cb.Linef("package %v", pkg)
	cb.Linef("")
	cb.Linef("import (")
	cb.Indent++
	cb.Linef(`"errors"`)
	cb.Linef(`"math"`)
	cb.Linef(`"sync"`)
	cb.Indent--
	cb.Linef(")")
	cb.Linef("")
	return cb.String()
}

func (g *generator) module(m *ir.Module) string {
	var cb CodeBuilder
	if m.Namespace != "" {
		g.namespace(&cb, m)
	}
	for _, it := range g.t.Members(m.Members) {
		if !it.Common().Emit {
			continue
		}
		switch it := it.(type) {
		case *ir.Function:
			g.function(&cb, it)
		case *ir.Constant:
			g.constant(&cb, it)
		case *ir.Class:
			g.class(&cb, it)
		}
	}
	return cb.String()
}

func (g *generator) namespace(cb *CodeBuilder, m *ir.Module) {
	if m.Parent == "" || g.t.Module(m.Parent).Namespace == "" {
		cb.Doc(fmt.Sprintf("%v binds the Python module %v.", m.Field, m.Path))
		cb.Linef("var %v %v", m.Field, m.Namespace)
		cb.Linef("")
	}
	doc := fmt.Sprintf("%v binds the Python module %v.", m.Namespace, m.Path)
	if m.Doc != "" {
		doc += "\n\n" + textutils.CleanDoc(m.Doc)
	}
	cb.Doc(doc)
	var fields []*ir.Module
	for _, sub := range m.Submodules {
		if s := g.t.Module(sub); s != nil && s.Emit {
			fields = append(fields, s)
		}
	}
	if len(fields) == 0 {
		cb.Linef("type %v struct{}", m.Namespace)
		cb.Linef("")
		return
	}
	cb.Linef("type %v struct {", m.Namespace)
	cb.Indent++
	for _, s := range fields {
		cb.Doc(fmt.Sprintf("%v binds %v.", s.Field, s.Path))
		cb.Linef("%v %v", s.Field, s.Namespace)
	}
	cb.Indent--
	cb.Linef("}")
	cb.Linef("")
}

// doc writes an item's docstring, or a default one.
func (g *generator) doc(cb *CodeBuilder, b *ir.Base, ident, format string) {
	if strings.TrimSpace(b.Doc) != "" {
		cb.Doc(b.Doc)
		return
	}
	cb.Doc(fmt.Sprintf(format, ident, b.Path))
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = strconv.Quote(s)
	}
	return strings.Join(q, ", ")
}

// result returns the result list of a binding returning d and the
// expression extracting it from call.
func (g *generator) result(d typemap.Descriptor, call string) (results, expr string) {
	if typemap.IsNone(d) {
		return "error", "discard(" + call + ")"
	}
	if o, ok := d.(typemap.Optional); ok {
		if u, ok := o.Inner.(typemap.UserDefined); ok {
			if c := g.t.Class(u.Path); c != nil && c.Emit {
				return "(*" + c.Ident + ", error)", "extractOptional[" + c.Ident + "](" + call + ")"
			}
		}
	}
	typ := GoType(g.t, d)
	return "(" + typ + ", error)", "extract[" + typ + "](" + call + ")"
}

// argExpr returns the expression passing the parameter ident of Go type
// typ.
func argExpr(ident, typ string, hasDefault bool) string {
	if !hasDefault {
		if strings.HasPrefix(typ, "*") {
			return "deref(" + ident + ")"
		}
		return ident
	}
	switch {
	case strings.HasPrefix(typ, "*"):
		return "opt(" + ident + ")"
	case strings.HasPrefix(typ, "[]"):
		return "optSlice(" + ident + ")"
	case strings.HasPrefix(typ, "map["):
		return "optMap(" + ident + ")"
	}
	return "optObject(" + ident + ")"
}

// params returns the Go parameter list of f and the expressions for its
// positional and keyword arguments.
func (g *generator) params(f *ir.Function) (sig, args, kwargs string) {
	hasVarPos := false
	for _, p := range f.Params {
		if p.Kind == bridge.ParamVarPositional {
			hasVarPos = true
		}
	}
	var goParams, pos, kw []string
	var varPos, varKw string
	for _, p := range f.Params {
		switch p.Kind {
		case bridge.ParamVarPositional:
			varPos = p.Ident
			continue
		case bridge.ParamVarKeyword:
			varKw = p.Ident
			continue
		}
		byPos := p.Kind == bridge.ParamPositionalOnly ||
			(p.Kind == bridge.ParamPositionalOrKeyword && (!p.HasDefault || hasVarPos))
		// Extra positional arguments follow every positional parameter,
		// so none of them can be omitted.
		optional := p.HasDefault && !(byPos && hasVarPos)
		typ := GoType(g.t, p.Type)
		if optional && !nilable(typ) {
			typ = "*" + typ
		}
		goParams = append(goParams, p.Ident+" "+typ)
		val := argExpr(p.Ident, typ, optional)
		if byPos {
			pos = append(pos, val)
		} else {
			kw = append(kw, strconv.Quote(p.Name), val)
		}
	}
	if varKw != "" {
		goParams = append(goParams, varKw+" map[string]any")
	}
	if varPos != "" {
		goParams = append(goParams, varPos+" ...any")
	}

	args = "nil"
	if len(pos) > 0 {
		args = "positional(" + strings.Join(pos, ", ") + ")"
	}
	if varPos != "" {
		args = "variadic(" + args + ", " + varPos + ")"
	}
	kwargs = "nil"
	if len(kw) > 0 {
		kwargs = "keywords(" + strings.Join(kw, ", ") + ")"
	}
	if varKw != "" {
		kwargs = "mergeKeywords(" + kwargs + ", " + varKw + ")"
	}
	return strings.Join(goParams, ", "), args, kwargs
}

func (g *generator) function(cb *CodeBuilder, f *ir.Function) {
	owner := g.t.Class(f.Owner)
	sig, args, kwargs := g.params(f)

	var decl, call string
	switch {
	case f.Call:
		decl = fmt.Sprintf("func (%v %v) %v", recv, owner.Ident, f.Ident)
		call = fmt.Sprintf("callObject(%v.h, %v, %v)", recv, args, kwargs)
	case f.Bound():
		decl = fmt.Sprintf("func (%v %v) %v", recv, owner.Ident, f.Ident)
		call = fmt.Sprintf("callMethod(%v.h, %q, %v, %v)", recv, f.Name, args, kwargs)
	case f.Constructor:
		decl = "func " + f.Ident
		call = fmt.Sprintf("callFunc(%q, []string{%v}, %v, %v)", owner.Module, quoteAll(owner.Attr), args, kwargs)
	default:
		decl = "func " + f.Ident
		if m := g.t.Module(f.Module); owner == nil && m != nil && m.Namespace != "" {
			decl = fmt.Sprintf("func (%v) %v", m.Namespace, f.Ident)
		}
		call = fmt.Sprintf("callFunc(%q, []string{%v}, %v, %v)", f.Module, quoteAll(f.Attr), args, kwargs)
	}
	results, expr := g.result(f.Return, call)

	switch {
	case f.Constructor:
		g.doc(cb, &f.Base, f.Ident, "%v creates a new instance of %v.")
	default:
		g.doc(cb, &f.Base, f.Ident, "%v calls %v.")
	}
	cb.Linef("%v(%v) %v {", decl, sig, results)
	cb.Indent++
	cb.Linef("return %v", expr)
	cb.Indent--
	cb.Linef("}")
	cb.Linef("")
}

func (g *generator) property(cb *CodeBuilder, owner *ir.Class, p *ir.Property) {
	if p.Getter {
		results, expr := g.result(p.Type, fmt.Sprintf("getAttr(%v.h, %q)", recv, p.Name))
		g.doc(cb, &p.Base, p.Ident, "%v returns %v.")
		cb.Linef("func (%v %v) %v() %v {", recv, owner.Ident, p.Ident, results)
		cb.Indent++
		cb.Linef("return %v", expr)
		cb.Indent--
		cb.Linef("}")
		cb.Linef("")
	}
	if p.Setter {
		typ := GoType(g.t, p.Type)
		if typemap.IsNone(p.Type) {
			typ = objectType
		}
		cb.Doc(fmt.Sprintf("%v sets %v.", p.SetterIdent, p.Path))
		cb.Linef("func (%v %v) %v(v %v) error {", recv, owner.Ident, p.SetterIdent, typ)
		cb.Indent++
		cb.Linef("return setAttr(%v.h, %q, %v)", recv, p.Name, argExpr("v", typ, false))
		cb.Indent--
		cb.Linef("}")
		cb.Linef("")
	}
}

func formatFloat(text string) (expr string, isConst bool) {
	v, _ := strconv.ParseFloat(text, 64)
	switch {
	case math.IsNaN(v):
		return "math.NaN()", false
	case math.IsInf(v, 1):
		return "math.Inf(1)", false
	case math.IsInf(v, -1):
		return "math.Inf(-1)", false
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s, true
}

// literal returns the Go type and value expression of a literal
// constant.
func literal(c *ir.Constant) (typ, expr string, isConst bool) {
	switch c.Literal {
	case bridge.LiteralStr:
		return "string", strconv.Quote(c.Value), true
	case bridge.LiteralBool:
		b, _ := strconv.ParseBool(c.Value)
		return "bool", strconv.FormatBool(b), true
	case bridge.LiteralInt:
		v, _ := strconv.ParseInt(c.Value, 10, 64)
		return "int64", strconv.FormatInt(v, 10), true
	case bridge.LiteralFloat:
		expr, isConst := formatFloat(c.Value)
		return "float64", expr, isConst
	case bridge.LiteralComplex:
		re, im, _ := strings.Cut(c.Value, ",")
		reExpr, reConst := formatFloat(re)
		imExpr, imConst := formatFloat(im)
		return "complex128", "complex(" + reExpr + ", " + imExpr + ")", reConst && imConst
	}
	return objectType, "nil", false
}

func (g *generator) constant(cb *CodeBuilder, c *ir.Constant) {
	if c.IsLiteral() {
		typ, expr, isConst := literal(c)
		g.doc(cb, &c.Base, c.Ident, "%v is the value of %v.")
		if isConst {
			cb.Linef("const %v %v = %v", c.Ident, typ, expr)
		} else {
			cb.Linef("var %v %v = %v", c.Ident, typ, expr)
		}
		cb.Linef("")
		return
	}

	d := c.Type
	switch c.Literal {
	case bridge.LiteralInt, bridge.LiteralFloat, bridge.LiteralComplex, bridge.LiteralNone:
		// Values the literal couldn't represent.
		d = typemap.Unknown{}
	}
	if typemap.IsNone(d) {
		d = typemap.Unknown{}
	}
	results, expr := g.result(d, fmt.Sprintf("lookup(%q, %v)", c.Module, quoteAll(c.Attr)))
	decl := "func " + c.Ident
	if m := g.t.Module(c.Module); c.Owner == "" && m != nil && m.Namespace != "" {
		decl = fmt.Sprintf("func (%v) %v", m.Namespace, c.Ident)
	}
	g.doc(cb, &c.Base, c.Ident, "%v returns the current value of %v.")
	cb.Linef("%v() %v {", decl, results)
	cb.Indent++
	cb.Linef("return %v", expr)
	cb.Indent--
	cb.Linef("}")
	cb.Linef("")
}

func (g *generator) class(cb *CodeBuilder, c *ir.Class) {
	doc := fmt.Sprintf("%v binds the Python class %v.", c.Ident, c.Path)
	if strings.TrimSpace(c.Doc) != "" {
		doc = textutils.CleanDoc(c.Doc)
	}
	var unbound []string
	for _, b := range c.Bases {
		if !b.Resolved {
			unbound = append(unbound, b.Path)
		}
	}
	if len(unbound) > 0 {
		doc += "\n\nUnbound base classes: " + strings.Join(unbound, ", ") + "."
	}
	cb.Doc(doc)
	cb.Linef("type %v struct {", c.Ident)
	cb.Indent++
	cb.Linef("h Object")
	cb.Indent--
	cb.Linef("}")
	cb.Linef("")
	cb.Linef("// Handle returns the Python object.")
	cb.Linef("func (%v %v) Handle() Object { return %v.h }", recv, c.Ident, recv)
	cb.Linef("")
	cb.Linef("// SetHandle makes %v refer to the Python object h.", recv)
	cb.Linef("func (%v *%v) SetHandle(h Object) { %v.h = h }", recv, c.Ident, recv)
	cb.Linef("")
	for _, b := range c.Bases {
		if !b.Resolved {
			continue
		}
		base := g.t.Class(b.Path)
		cb.Linef("// %v returns %v as a %v.", b.Ident, recv, base.Ident)
		cb.Linef("func (%v %v) %v() %v { return %v{h: %v.h} }", recv, c.Ident, b.Ident, base.Ident, base.Ident, recv)
		cb.Linef("")
	}

	for _, it := range g.t.Members(c.Members) {
		if !it.Common().Emit {
			continue
		}
		switch it := it.(type) {
		case *ir.Function:
			g.function(cb, it)
		case *ir.Property:
			g.property(cb, c, it)
		case *ir.Constant:
			g.constant(cb, it)
		case *ir.Class:
			g.class(cb, it)
		}
	}
}
