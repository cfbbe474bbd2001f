package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/introspect"
	"github.com/refaktor/pybindgen/typemap"
)

type BuildOptions struct {
	// IncludePrivate emits private items and ignores __all__.
	IncludePrivate bool
	// Recognizers extend the type mapper.
	Recognizers []typemap.Recognizer
}

type builder struct {
	opts   BuildOptions
	res    *introspect.Result
	t      *Table
	mapper *typemap.Mapper
	diags  []introspect.Diagnostic
	// canon maps a class origin to the path it is bound under.
	canon       map[string]string
	moduleDescs map[string]*bridge.RawDescriptor
}

// Build constructs an unfrozen table from an introspection result.
// Problems with individual items are returned as diagnostics.
func Build(res *introspect.Result, opts BuildOptions) (*Table, []introspect.Diagnostic) {
	b := &builder{
		opts:  opts,
		res:   res,
		t:     NewTable(),
		canon:       map[string]string{},
		moduleDescs: map[string]*bridge.RawDescriptor{},
	}
	for i := range res.Items {
		if it := &res.Items[i]; it.Desc.Kind == bridge.KindModule && it.Path == it.Module {
			b.moduleDescs[it.Path] = it.Desc
		}
	}
	b.t.Entries = slices.Clone(res.Entries)
	b.collectClasses()
	b.mapper = typemap.New(b.t.classes, opts.Recognizers...)

	modules := map[string]*Module{}
	for _, mod := range res.Modules {
		m := &Module{
			Base: Base{
				Kind:   KindModule,
				Path:   mod,
				Name:   mod[strings.LastIndex(mod, ".")+1:],
				Module: mod,
			},
			Entry: slices.Contains(res.Entries, mod),
		}
		for p := parentPath(mod); p != ""; p = parentPath(p) {
			if slices.Contains(res.Modules, p) {
				m.Parent = p
				break
			}
		}
		modules[mod] = m
	}

	for i := range res.Items {
		it := &res.Items[i]
		if it.Desc.Kind == bridge.KindModule && it.Path == it.Module {
			m := modules[it.Path]
			if m == nil {
				continue
			}
			if it.Desc.HasDoc() {
				m.Doc = it.Desc.Doc
			}
			m.Private = it.Private && !m.Entry
			m.Emit = !m.Private || opts.IncludePrivate
			b.add(m)
			if m.Parent != "" {
				if p := modules[m.Parent]; p != nil {
					p.Submodules = append(p.Submodules, m.Path)
				}
			}
			continue
		}
		b.item(it, modules[it.Module])
	}

	for _, m := range b.t.Modules() {
		if m.Parent == "" {
			b.t.Roots = append(b.t.Roots, m.Path)
		}
	}
	return b.t, b.diags
}

func parentPath(p string) string {
	i := strings.LastIndex(p, ".")
	if i == -1 {
		return ""
	}
	return p[:i]
}

func (b *builder) diag(path, format string, args ...any) {
	b.diags = append(b.diags, introspect.Diagnostic{Path: path, Reason: fmt.Sprintf(format, args...)})
}

func (b *builder) add(it Item) {
	if err := b.t.Add(it); err != nil {
		b.diag(it.Common().Path, "%v", err)
	}
}

// collectClasses picks the path each class is bound under: the first
// path its members were walked under, which is its first visible
// occurrence.
func (b *builder) collectClasses() {
	var classes []*introspect.Item
	for i := range b.res.Items {
		if b.res.Items[i].Desc.Kind == bridge.KindClass {
			classes = append(classes, &b.res.Items[i])
		}
	}
	for _, it := range classes {
		if o := it.Origin(); b.canon[o] == "" && (!it.Private || b.opts.IncludePrivate) {
			b.canon[o] = it.Path
		}
	}
	for _, it := range classes {
		if o := it.Origin(); b.canon[o] == "" {
			b.canon[o] = it.Path
		}
	}
	for _, it := range classes {
		c := b.canon[it.Origin()]
		b.t.classes[it.Path] = c
		b.t.classes[it.Origin()] = c
	}
}

func (b *builder) scopeOf(it *introspect.Item) string {
	if it.Owner != "" {
		return it.Owner
	}
	return it.Module
}

func (b *builder) mapType(ann, scope string) typemap.Descriptor {
	if ann == "" {
		return typemap.Unknown{}
	}
	return b.mapper.Map(ann, scope)
}

func (b *builder) emitMember(it *introspect.Item, mod *Module) bool {
	if b.opts.IncludePrivate {
		return true
	}
	if it.Owner == "" && mod != nil {
		if d := b.moduleDescs[mod.Path]; d != nil && d.HasAll {
			return slices.Contains(d.All, it.Name)
		}
	}
	return !it.Private
}

// attr returns the attribute chain from the module to it.
func (b *builder) attr(it *introspect.Item) []string {
	if it.Owner == "" {
		return []string{it.Name}
	}
	if c := b.t.Class(it.Owner); c != nil {
		return append(slices.Clone(c.Attr), it.Name)
	}
	return []string{it.Name}
}

func (b *builder) item(it *introspect.Item, mod *Module) {
	d := it.Desc
	base := Base{
		Path:    it.Path,
		Name:    it.Name,
		Module:  it.Module,
		Owner:   it.Owner,
		Private: it.Private,
		Emit:    b.emitMember(it, mod),
	}
	if d.HasDoc() {
		base.Doc = d.Doc
	}

	var item Item
	switch d.Kind {
	case bridge.KindModule:
		base.Kind = KindImport
		base.Emit = false
		item = &Import{Base: base, Target: d.Path()}
	case bridge.KindClass:
		canon := b.canon[it.Origin()]
		if canon != it.Path {
			base.Kind = KindImport
			base.Emit = false
			item = &Import{Base: base, Target: canon}
			break
		}
		base.Kind = KindClass
		c := &Class{Base: base, Origin: it.Origin(), Attr: b.attr(it)}
		for _, bp := range d.Bases {
			if p, ok := b.t.classes[bp]; ok {
				bp = p
			}
			if bp == "builtins.object" || bp == "object" {
				continue
			}
			c.Bases = append(c.Bases, BaseRef{Path: bp})
		}
		item = c
	case bridge.KindFunction, bridge.KindMethod:
		item = b.function(it, base)
	case bridge.KindProperty:
		base.Kind = KindProperty
		p := &Property{
			Base:   base,
			Type:   b.mapType(d.Annotation, b.scopeOf(it)),
			Getter: d.Getter,
			Setter: d.Setter,
		}
		if !p.Getter && !p.Setter {
			p.Getter = true
		}
		if p.Doc == "" && strings.TrimSpace(d.GetterDoc) != "" && strings.TrimSpace(d.GetterDoc) != "None" {
			p.Doc = d.GetterDoc
		}
		if it.Owner == "" {
			// Module-level properties don't exist in Python; treat as
			// a value.
			c := &Constant{Base: p.Base, Type: p.Type, Attr: b.attr(it)}
			c.Kind = KindConstant
			item = c
			break
		}
		item = p
	default:
		item = b.constant(it, base)
	}

	b.add(item)
	if it.Owner != "" {
		if c := b.t.Class(it.Owner); c != nil {
			c.Members = append(c.Members, it.Path)
		}
	} else if mod != nil {
		mod.Members = append(mod.Members, it.Path)
	}
}

func (b *builder) constant(it *introspect.Item, base Base) *Constant {
	d := it.Desc
	base.Kind = KindConstant
	c := &Constant{Base: base, Attr: b.attr(it)}
	if d.Value != nil {
		c.Literal = d.Value.Kind
		c.Value = d.Value.Text
	}
	scope := b.scopeOf(it)
	switch c.Literal {
	case bridge.LiteralInt:
		c.Type = typemap.Primitive{Kind: typemap.Int}
	case bridge.LiteralFloat:
		c.Type = typemap.Primitive{Kind: typemap.Float}
	case bridge.LiteralStr:
		c.Type = typemap.Primitive{Kind: typemap.Str}
	case bridge.LiteralBool:
		c.Type = typemap.Primitive{Kind: typemap.Bool}
	case bridge.LiteralBytes:
		c.Type = typemap.Primitive{Kind: typemap.Bytes}
	case bridge.LiteralComplex:
		c.Type = typemap.Primitive{Kind: typemap.Complex}
	default:
		c.Type = b.mapType(d.Annotation, scope)
		if typemap.IsUnknown(c.Type) && d.Value != nil {
			c.Type = b.mapType(d.Value.Type, scope)
		}
		if typemap.IsNone(c.Type) {
			c.Type = typemap.Unknown{}
		}
	}
	return c
}

var receiverNames = map[string]bool{"self": true, "cls": true}

func (b *builder) function(it *introspect.Item, base Base) *Function {
	d := it.Desc
	f := &Function{Base: base, Attr: b.attr(it), Return: typemap.Unknown{}}

	sig := d.Signature
	if sig == nil && d.SignatureText != "" {
		var err error
		sig, err = bridge.ParseSignature(d.SignatureText)
		if err != nil {
			b.diag(it.Path, "signature: %v", err)
		}
	}

	if it.Owner == "" {
		f.Kind = KindFunction
	} else {
		f.Kind = KindMethod
		f.Binding = d.Binding
		if f.Binding == bridge.BindingNone {
			f.Binding = bridge.BindingInstance
			if sig != nil {
				switch {
				case len(sig.Params) > 0 && sig.Params[0].Name == "cls":
					f.Binding = bridge.BindingClass
				case len(sig.Params) == 0 || !receiverNames[sig.Params[0].Name]:
					f.Binding = bridge.BindingStatic
				}
			}
		}
		switch it.Name {
		case "__init__":
			f.Constructor = true
		case "__call__":
			f.Call = true
			f.Binding = bridge.BindingInstance
		}
	}

	if sig == nil {
		f.Generic = true
		f.Params = []Param{
			{Name: "args", Kind: bridge.ParamVarPositional, Type: typemap.Unknown{}},
			{Name: "kwargs", Kind: bridge.ParamVarKeyword, Type: typemap.Unknown{}},
		}
	} else {
		params := sig.Params
		receiver := f.Kind == KindMethod &&
			(f.Constructor || f.Binding == bridge.BindingInstance || f.Binding == bridge.BindingClass)
		if receiver && len(params) > 0 &&
			(params[0].Kind == bridge.ParamPositionalOnly || params[0].Kind == bridge.ParamPositionalOrKeyword) {
			params = params[1:]
		}
		scope := b.scopeOf(it)
		for _, p := range params {
			t := typemap.Descriptor(typemap.Unknown{})
			if p.Kind != bridge.ParamVarPositional && p.Kind != bridge.ParamVarKeyword {
				t = b.mapType(p.Annotation, scope)
			}
			f.Params = append(f.Params, Param{Name: p.Name, Kind: p.Kind, Type: t, HasDefault: p.HasDefault})
		}
		if sig.Return != "" {
			f.Return = b.mapType(sig.Return, scope)
		}
	}

	if f.Constructor {
		f.Return = typemap.UserDefined{Path: it.Owner}
	}
	return f
}
