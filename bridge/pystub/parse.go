package pystub

import (
	"errors"
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/refaktor/pybindgen/bridge"
)

var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

// Names bases may refer to without an import.
var builtinClasses = map[string]bool{
	"object": true, "type": true, "int": true, "float": true, "str": true,
	"bytes": true, "bool": true, "list": true, "dict": true, "set": true,
	"tuple": true, "frozenset": true, "complex": true,
	"BaseException": true, "Exception": true, "ValueError": true,
	"TypeError": true, "KeyError": true, "IndexError": true,
	"RuntimeError": true, "OSError": true, "LookupError": true,
	"AttributeError": true, "NotImplementedError": true,
}

type moduleParser struct {
	b    *Bridge
	path string
	src  source
	code []byte
	// imports maps local names to qualified paths.
	imports map[string]string
}

// syntaxError returns the first error or missing node below n, which
// must have an error.
func syntaxError(n *sitter.Node) *sitter.Node {
	for n.HasError() && !n.IsError() && !n.IsMissing() {
		next := n
		for i := uint(0); i < n.ChildCount(); i++ {
			if c := n.Child(i); c.HasError() || c.IsMissing() {
				next = c
				break
			}
		}
		if next == n {
			break
		}
		n = next
	}
	return n
}

func (b *Bridge) parseModule(path string, src source) (bridge.Handle, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(pythonLanguage); err != nil {
		return 0, err
	}
	tree := parser.Parse(src.code, nil)
	if tree == nil {
		return 0, errors.New("parse failed")
	}
	defer tree.Close()
	if root := tree.RootNode(); root.HasError() {
		pos := syntaxError(root).StartPosition()
		return 0, fmt.Errorf("invalid syntax (line %d)", pos.Row+1)
	}

	desc := bridge.RawDescriptor{
		Kind:    bridge.KindModule,
		Name:    path[strings.LastIndex(path, ".")+1:],
		Module:  path,
		Package: src.pkg,
	}
	if src.pkg {
		desc.Submodules = b.submodules(path, src)
	}
	mod := &object{desc: desc}
	h := b.add(mod)

	p := &moduleParser{b: b, path: path, src: src, code: src.code, imports: map[string]string{}}
	p.block(tree.RootNode(), mod, "", false)
	return h, nil
}

func (p *moduleParser) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(p.code[n.StartByte():n.EndByte()])
}

// statements returns the named children of a module or block, without
// comments.
func statements(n *sitter.Node) []*sitter.Node {
	var res []*sitter.Node
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "comment" {
			res = append(res, c)
		}
	}
	return res
}

// docstring returns the docstring of a module or block.
func (p *moduleParser) docstring(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	stmts := statements(n)
	if len(stmts) == 0 || stmts[0].Kind() != "expression_statement" || stmts[0].NamedChildCount() != 1 {
		return ""
	}
	s := stmts[0].NamedChild(0)
	if s.Kind() != "string" {
		return ""
	}
	doc, isBytes, ok := unquote(p.text(s))
	if !ok || isBytes {
		return ""
	}
	return doc
}

func join(qual, name string) string {
	if qual == "" {
		return name
	}
	return qual + "." + name
}

func (p *moduleParser) block(n *sitter.Node, owner *object, qual string, inClass bool) {
	if n == nil {
		return
	}
	owner.desc.Doc = p.docstring(n)
	for _, stmt := range statements(n) {
		switch stmt.Kind() {
		case "function_definition":
			p.function(stmt, owner, qual, inClass, nil)
		case "class_definition":
			p.class(stmt, owner, qual)
		case "decorated_definition":
			var decorators []string
			for i := uint(0); i < stmt.NamedChildCount(); i++ {
				if d := stmt.NamedChild(i); d.Kind() == "decorator" && d.NamedChildCount() > 0 {
					decorators = append(decorators, p.text(d.NamedChild(0)))
				}
			}
			def := stmt.ChildByFieldName("definition")
			switch {
			case def == nil:
			case def.Kind() == "function_definition":
				p.function(def, owner, qual, inClass, decorators)
			case def.Kind() == "class_definition":
				p.class(def, owner, qual)
			}
		case "expression_statement":
			for i := uint(0); i < stmt.NamedChildCount(); i++ {
				switch e := stmt.NamedChild(i); e.Kind() {
				case "assignment":
					p.assignment(e, owner, qual, inClass)
				case "augmented_assignment":
					if !inClass && p.text(e.ChildByFieldName("left")) == "__all__" {
						owner.desc.All = append(owner.desc.All, p.stringList(e.ChildByFieldName("right"))...)
					}
				}
			}
		case "import_statement":
			if !inClass {
				p.importStatement(stmt, owner)
			}
		case "import_from_statement":
			if !inClass {
				p.importFrom(stmt, owner)
			}
		}
	}
}

func (p *moduleParser) importStatement(n *sitter.Node, owner *object) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		switch c.Kind() {
		case "dotted_name":
			// "import a.b" binds a.
			path := p.text(c)
			first, _, _ := strings.Cut(path, ".")
			p.imports[first] = first
			owner.set(first, p.b.add(&object{ref: &ref{module: first}}))
		case "aliased_import":
			path := p.text(c.ChildByFieldName("name"))
			alias := p.text(c.ChildByFieldName("alias"))
			if path == "" || alias == "" {
				continue
			}
			p.imports[alias] = path
			owner.set(alias, p.b.add(&object{ref: &ref{module: path}}))
		}
	}
}

// resolveRelative makes a possibly relative module path absolute.
func (p *moduleParser) resolveRelative(path string) string {
	rest := strings.TrimLeft(path, ".")
	level := len(path) - len(rest)
	if level == 0 {
		return path
	}
	base := p.path
	if !p.src.pkg {
		level++
	}
	for range level - 1 {
		if i := strings.LastIndex(base, "."); i != -1 {
			base = base[:i]
		} else {
			base = ""
		}
	}
	if rest == "" {
		return base
	}
	if base == "" {
		return rest
	}
	return base + "." + rest
}

func (p *moduleParser) importFrom(n *sitter.Node, owner *object) {
	module := p.resolveRelative(p.text(n.ChildByFieldName("module_name")))
	if module == "" || module == "__future__" {
		return
	}
	afterImport := false
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c.Kind() == "import" {
			afterImport = true
			continue
		}
		if !afterImport {
			continue
		}
		var name, alias string
		switch c.Kind() {
		case "dotted_name", "identifier":
			name = p.text(c)
			alias = name
		case "aliased_import":
			name = p.text(c.ChildByFieldName("name"))
			alias = p.text(c.ChildByFieldName("alias"))
		default:
			continue
		}
		if name == "" || alias == "" {
			continue
		}
		p.imports[alias] = module + "." + name
		owner.set(alias, p.b.add(&object{ref: &ref{module: module, name: name}}))
	}
}

// resolveName turns a dotted name used in the module into a qualified
// path.
func (p *moduleParser) resolveName(name string) string {
	first, rest, hasRest := strings.Cut(name, ".")
	if full, ok := p.imports[first]; ok {
		if hasRest {
			return full + "." + rest
		}
		return full
	}
	if !hasRest && builtinClasses[name] {
		return "builtins." + name
	}
	return p.path + "." + name
}

// qualify returns the text of an annotation with imported names
// replaced by their qualified paths. String forward references are
// kept as written.
func (p *moduleParser) qualify(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	last := n.StartByte()
	var walk func(c *sitter.Node)
	walk = func(c *sitter.Node) {
		switch c.Kind() {
		case "string":
			return
		case "identifier":
			if parent := c.Parent(); parent != nil && parent.Kind() == "attribute" && parent.StartByte() != c.StartByte() {
				// The attribute part of a.b.
				return
			}
			if full, ok := p.imports[p.text(c)]; ok {
				b.Write(p.code[last:c.StartByte()])
				b.WriteString(full)
				last = c.EndByte()
			}
			return
		}
		for i := uint(0); i < c.ChildCount(); i++ {
			walk(c.Child(i))
		}
	}
	walk(n)
	b.Write(p.code[last:n.EndByte()])
	return b.String()
}

func (p *moduleParser) class(n *sitter.Node, owner *object, qual string) {
	name := p.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	cqual := join(qual, name)
	var bases []string
	if args := n.ChildByFieldName("superclasses"); args != nil {
		for i := uint(0); i < args.NamedChildCount(); i++ {
			switch a := args.NamedChild(i); a.Kind() {
			case "identifier", "attribute":
				bases = append(bases, p.resolveName(p.text(a)))
			case "subscript":
				// Generic[T], Base[int]
				if v := a.ChildByFieldName("value"); v != nil {
					if base := p.resolveName(p.text(v)); base != "typing.Generic" && base != "typing.Protocol" {
						bases = append(bases, base)
					}
				}
			}
		}
	}
	cls := &object{desc: bridge.RawDescriptor{
		Kind:     bridge.KindClass,
		Name:     name,
		Module:   p.path,
		QualName: cqual,
		Bases:    bases,
	}}
	owner.set(name, p.b.add(cls))
	p.block(n.ChildByFieldName("body"), cls, cqual, true)
}

// param returns the name and kind of a parameter pattern.
func (p *moduleParser) param(n *sitter.Node, kind bridge.ParamKind) (string, bridge.ParamKind) {
	switch n.Kind() {
	case "list_splat_pattern":
		return p.text(n.NamedChild(0)), bridge.ParamVarPositional
	case "dictionary_splat_pattern":
		return p.text(n.NamedChild(0)), bridge.ParamVarKeyword
	}
	return p.text(n), kind
}

func (p *moduleParser) signature(params, ret *sitter.Node) *bridge.Signature {
	sig := &bridge.Signature{Return: p.qualify(ret)}
	if params == nil {
		return sig
	}
	kind := bridge.ParamPositionalOrKeyword
	for i := uint(0); i < params.NamedChildCount(); i++ {
		c := params.NamedChild(i)
		var prm bridge.Param
		switch c.Kind() {
		case "positional_separator":
			for j := range sig.Params {
				sig.Params[j].Kind = bridge.ParamPositionalOnly
			}
			continue
		case "keyword_separator":
			kind = bridge.ParamKeywordOnly
			continue
		case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
			prm.Name, prm.Kind = p.param(c, kind)
		case "typed_parameter":
			if c.NamedChildCount() == 0 {
				continue
			}
			prm.Name, prm.Kind = p.param(c.NamedChild(0), kind)
			prm.Annotation = p.qualify(c.ChildByFieldName("type"))
		case "default_parameter", "typed_default_parameter":
			prm.Name, prm.Kind = p.param(c.ChildByFieldName("name"), kind)
			prm.Annotation = p.qualify(c.ChildByFieldName("type"))
			prm.HasDefault = true
		default:
			continue
		}
		if prm.Name == "" {
			continue
		}
		if prm.Kind == bridge.ParamVarPositional {
			kind = bridge.ParamKeywordOnly
		}
		sig.Params = append(sig.Params, prm)
	}
	return sig
}

func (p *moduleParser) function(n *sitter.Node, owner *object, qual string, inClass bool, decorators []string) {
	name := p.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}
	sig := p.signature(n.ChildByFieldName("parameters"), n.ChildByFieldName("return_type"))
	doc := p.docstring(n.ChildByFieldName("body"))

	desc := bridge.RawDescriptor{
		Kind:      bridge.KindFunction,
		Name:      name,
		Module:    p.path,
		QualName:  join(qual, name),
		Doc:       doc,
		Signature: sig,
	}
	if inClass {
		desc.Kind = bridge.KindMethod
	}
	overload := false
	for _, d := range decorators {
		switch d {
		case "staticmethod":
			desc.Binding = bridge.BindingStatic
		case "classmethod":
			desc.Binding = bridge.BindingClass
		case "overload", "typing.overload":
			overload = true
		case "property", "functools.cached_property", "cached_property":
			if inClass {
				desc = bridge.RawDescriptor{
					Kind:       bridge.KindProperty,
					Name:       name,
					Module:     p.path,
					QualName:   join(qual, name),
					Doc:        doc,
					GetterDoc:  doc,
					Getter:     true,
					Annotation: sig.Return,
				}
			}
		case name + ".setter":
			if h, ok := owner.get(name); ok {
				if o, _ := p.b.get(h); o.desc.Kind == bridge.KindProperty {
					o.desc.Setter = true
				}
			}
			return
		case name + ".deleter":
			return
		}
	}
	if h, ok := owner.get(name); ok && overload {
		// The first overload stands for all of them.
		if o, _ := p.b.get(h); o.overload {
			return
		}
	}
	owner.set(name, p.b.add(&object{desc: desc, overload: overload}))
}

// stringList returns the strings of a list or tuple display.
func (p *moduleParser) stringList(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	var res []string
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() != "string" {
			continue
		}
		if s, isBytes, ok := unquote(p.text(c)); ok && !isBytes {
			res = append(res, s)
		}
	}
	return res
}

func (p *moduleParser) value(n *sitter.Node) bridge.Value {
	switch n.Kind() {
	case "integer", "float":
		return number(p.text(n), false)
	case "unary_operator":
		arg := n.ChildByFieldName("argument")
		op := p.text(n.ChildByFieldName("operator"))
		if arg != nil && (arg.Kind() == "integer" || arg.Kind() == "float") && (op == "-" || op == "+") {
			return number(p.text(arg), op == "-")
		}
	case "true":
		return bridge.Value{Kind: bridge.LiteralBool, Text: "true", Type: "bool"}
	case "false":
		return bridge.Value{Kind: bridge.LiteralBool, Text: "false", Type: "bool"}
	case "none":
		return bridge.Value{Kind: bridge.LiteralNone}
	case "string", "concatenated_string":
		parts := []*sitter.Node{n}
		if n.Kind() == "concatenated_string" {
			parts = statements(n)
		}
		var b strings.Builder
		isBytes := false
		for _, part := range parts {
			s, bs, ok := unquote(p.text(part))
			if !ok {
				return bridge.Value{Kind: bridge.LiteralOpaque, Type: "str"}
			}
			isBytes = bs
			b.WriteString(s)
		}
		if isBytes {
			return bridge.Value{Kind: bridge.LiteralBytes, Text: b.String(), Type: "bytes"}
		}
		return bridge.Value{Kind: bridge.LiteralStr, Text: b.String(), Type: "str"}
	case "call":
		fn := n.ChildByFieldName("function")
		if fn != nil && (fn.Kind() == "identifier" || fn.Kind() == "attribute") {
			return bridge.Value{Kind: bridge.LiteralOpaque, Type: p.resolveName(p.text(fn))}
		}
	case "list", "list_comprehension":
		return bridge.Value{Kind: bridge.LiteralOpaque, Type: "list"}
	case "dictionary", "dictionary_comprehension":
		return bridge.Value{Kind: bridge.LiteralOpaque, Type: "dict"}
	case "tuple":
		return bridge.Value{Kind: bridge.LiteralOpaque, Type: "tuple"}
	case "set", "set_comprehension":
		return bridge.Value{Kind: bridge.LiteralOpaque, Type: "set"}
	}
	return bridge.Value{Kind: bridge.LiteralOpaque}
}

func (p *moduleParser) assignment(n *sitter.Node, owner *object, qual string, inClass bool) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := p.text(left)
	typ := n.ChildByFieldName("type")
	right := n.ChildByFieldName("right")
	for right != nil && right.Kind() == "assignment" {
		// a = b = value
		right = right.ChildByFieldName("right")
	}

	if name == "__all__" && !inClass {
		owner.desc.HasAll = true
		owner.desc.All = p.stringList(right)
		return
	}

	if right == nil {
		switch {
		case typ == nil:
			return
		case inClass:
			// An annotated attribute of instances.
			owner.set(name, p.b.add(&object{desc: bridge.RawDescriptor{
				Kind:       bridge.KindProperty,
				Name:       name,
				Module:     p.path,
				QualName:   join(qual, name),
				Annotation: p.qualify(typ),
				Getter:     true,
				Setter:     true,
			}}))
			return
		case !p.src.stub:
			// A bare annotation doesn't create the attribute at runtime.
			return
		}
	}

	if right != nil && typ == nil && (right.Kind() == "identifier" || right.Kind() == "attribute") {
		// An alias of another member or of an imported name.
		target := p.text(right)
		if h, ok := owner.get(target); ok {
			owner.set(name, h)
			return
		}
		if full, ok := p.imports[target]; ok {
			if i := strings.LastIndex(full, "."); i != -1 {
				owner.set(name, p.b.add(&object{ref: &ref{module: full[:i], name: full[i+1:]}}))
			} else {
				owner.set(name, p.b.add(&object{ref: &ref{module: full}}))
			}
			return
		}
	}

	v := bridge.Value{Kind: bridge.LiteralOpaque}
	if right != nil {
		v = p.value(right)
	}
	owner.set(name, p.b.add(&object{desc: bridge.RawDescriptor{
		Kind:       bridge.KindConstant,
		Name:       name,
		Module:     p.path,
		QualName:   join(qual, name),
		Value:      &v,
		Annotation: p.qualify(typ),
	}}))
}
