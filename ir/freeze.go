package ir

import (
	"slices"
	"strings"

	"github.com/refaktor/pybindgen/digraphutils"
	"github.com/refaktor/pybindgen/typemap"
)

type NameOptions struct {
	// Preserve keeps Python names instead of converting them to
	// exported CamelCase.
	Preserve bool
	// Reserved identifiers in package scope.
	Reserved []string
	// MemberReserved identifiers in class and namespace scopes.
	MemberReserved []string
	// LocalReserved identifiers in parameter scopes. Parameter scopes
	// also exclude every package-level identifier.
	LocalReserved []string
}

// Freeze finalizes emission, resolves base classes, drops references to
// classes that aren't emitted and assigns all identifiers. The table
// can't be modified afterwards.
func (t *Table) Freeze(opts NameOptions) error {
	if t.frozen {
		return ErrFrozen
	}
	t.propagateEmit()
	t.pruneTypes()
	t.resolveBases()
	t.assignNames(opts)
	t.frozen = true
	return nil
}

// propagateEmit hides the members of hidden classes and modules.
// Owners are always discovered before their members.
func (t *Table) propagateEmit() {
	for _, it := range t.Items() {
		b := it.Common()
		if !b.Emit {
			continue
		}
		switch {
		case b.Kind == KindModule:
			if m := it.(*Module); m.Parent != "" && !t.Emitted(m.Parent) {
				b.Emit = false
			}
		case b.Owner != "":
			b.Emit = t.Emitted(b.Owner)
		default:
			b.Emit = t.Emitted(b.Module)
		}
	}
}

func (t *Table) prune(d typemap.Descriptor) typemap.Descriptor {
	return typemap.Rewrite(d, func(d typemap.Descriptor) typemap.Descriptor {
		switch d := d.(type) {
		case typemap.UserDefined:
			if t.Class(d.Path) == nil || !t.Emitted(d.Path) {
				return typemap.Unknown{}
			}
		case typemap.Optional:
			if typemap.IsUnknown(d.Inner) {
				return typemap.Unknown{}
			}
		}
		return d
	})
}

func (t *Table) pruneTypes() {
	for _, it := range t.Items() {
		switch it := it.(type) {
		case *Function:
			for i := range it.Params {
				it.Params[i].Type = t.prune(it.Params[i].Type)
			}
			it.Return = t.prune(it.Return)
		case *Property:
			it.Type = t.prune(it.Type)
		case *Constant:
			it.Type = t.prune(it.Type)
		}
	}
}

// candidateBases returns the bases of the class at path that are
// emitted classes.
func (t *Table) candidateBases(path string) []string {
	c := t.Class(path)
	if c == nil {
		return nil
	}
	var res []string
	for _, b := range c.Bases {
		if b.Path != path && t.Class(b.Path) != nil && t.Emitted(b.Path) {
			res = append(res, b.Path)
		}
	}
	return res
}

// resolveBases marks the bases that can be represented. Unknown bases,
// hidden bases and bases that inherit from the class itself are left
// unresolved.
func (t *Table) resolveBases() {
	for _, it := range t.Items() {
		c, ok := it.(*Class)
		if !ok || !c.Emit {
			continue
		}
		candidates := t.candidateBases(c.Path)
		for i := range c.Bases {
			b := &c.Bases[i]
			if !slices.Contains(candidates, b.Path) {
				continue
			}
			_, cyclic := digraphutils.Reachable([]string{b.Path}, t.candidateBases)[c.Path]
			b.Resolved = !cyclic
		}
	}
}

func nsName(path string) string {
	return "ns" + Namer{}.Exported(strings.Split(path, ".")...)
}

func (t *Table) assignNames(opts NameOptions) {
	n := Namer{Preserve: opts.Preserve}
	pkg := NewScope(opts.Reserved...)
	scopes := map[string]*Scope{}
	member := func(path string) *Scope {
		s := scopes[path]
		if s == nil {
			s = NewScope(opts.MemberReserved...)
			scopes[path] = s
		}
		return s
	}
	set := func(s *Scope, scope, path string, role Role, ident string) string {
		id := s.Claim(ident)
		t.Names[NameKey{Scope: scope, Path: path, Role: role}] = id
		return id
	}
	items := t.Items()

	// Types first, so they keep their natural names.
	for _, it := range items {
		c, ok := it.(*Class)
		if !ok || !c.Emit {
			continue
		}
		if owner := t.Class(c.Owner); owner != nil {
			c.Ident = set(pkg, PackageScope, c.Path, RoleDecl, n.Exported(owner.Ident, c.NameSource()))
		} else {
			c.Ident = set(pkg, PackageScope, c.Path, RoleDecl, n.Exported(c.NameSource()))
		}
	}

	namespaced := len(t.Roots) > 1
	for _, m := range t.Modules() {
		if !m.Emit || (m.Parent == "" && !namespaced) {
			continue
		}
		m.Namespace = set(pkg, PackageScope, m.Path, RoleNamespace, nsName(m.Path))
		switch {
		case m.Parent == "":
			m.Field = set(pkg, PackageScope, m.Path, RoleDecl, n.Exported(strings.Split(m.Path, ".")...))
		case t.Module(m.Parent).Namespace == "":
			// Children of a package-scope module are package variables.
			m.Field = set(pkg, PackageScope, m.Path, RoleDecl, n.Exported(m.NameSource()))
		default:
			m.Field = set(member(m.Parent), m.Parent, m.Path, RoleDecl, n.Exported(m.NameSource()))
		}
		m.Ident = m.Field
	}

	for _, it := range items {
		b := it.Common()
		if !b.Emit {
			continue
		}
		if c, ok := it.(*Class); ok {
			for i := range c.Bases {
				base := &c.Bases[i]
				if !base.Resolved {
					continue
				}
				key := c.Path + ":" + base.Path
				base.Ident = set(member(c.Path), c.Path, key, RoleConversion, n.Exported("As", t.Class(base.Path).Ident))
			}
			continue
		}
		if b.Kind == KindModule || b.Kind == KindImport {
			continue
		}

		if owner := t.Class(b.Owner); owner != nil {
			t.nameClassMember(it, owner, n, pkg, member(owner.Path), set)
			continue
		}

		m := t.Module(b.Module)
		if m == nil {
			continue
		}
		if m.Namespace == "" {
			b.Ident = set(pkg, PackageScope, b.Path, RoleDecl, n.Exported(b.NameSource()))
			continue
		}
		if c, ok := it.(*Constant); ok && c.IsLiteral() {
			parts := append(t.relativeParts(m), b.NameSource())
			b.Ident = set(pkg, PackageScope, b.Path, RoleDecl, n.Exported(parts...))
			continue
		}
		b.Ident = set(member(m.Path), m.Path, b.Path, RoleDecl, n.Exported(b.NameSource()))
	}

	for _, it := range items {
		f, ok := it.(*Function)
		if !ok || !f.Emit {
			continue
		}
		local := pkg.Clone()
		for _, r := range opts.LocalReserved {
			local.taken[r] = true
		}
		for i := range f.Params {
			p := &f.Params[i]
			p.Ident = set(local, f.Path+"()", p.Name, RoleDecl, n.Local(p.Name))
		}
	}
}

// relativeParts returns the path elements that prefix package-level
// names declared for a namespaced module.
func (t *Table) relativeParts(m *Module) []string {
	parts := strings.Split(m.Path, ".")
	if len(t.Roots) > 1 {
		return parts
	}
	for _, r := range t.Roots {
		if strings.HasPrefix(m.Path, r+".") {
			return parts[strings.Count(r, ".")+1:]
		}
	}
	return parts
}

func (t *Table) nameClassMember(
	it Item, owner *Class, n Namer, pkg, cls *Scope,
	set func(s *Scope, scope, path string, role Role, ident string) string,
) {
	b := it.Common()
	switch it := it.(type) {
	case *Function:
		switch {
		case it.Constructor:
			b.Ident = set(pkg, PackageScope, b.Path, RoleDecl, n.Exported("New", owner.Ident))
		case it.Call:
			b.Ident = set(cls, owner.Path, b.Path, RoleDecl, n.Exported("Call"))
		case it.Bound():
			b.Ident = set(cls, owner.Path, b.Path, RoleDecl, n.Exported(b.NameSource()))
		default:
			b.Ident = set(pkg, PackageScope, b.Path, RoleDecl, n.Exported(owner.Ident, b.NameSource()))
		}
	case *Property:
		if it.Getter {
			b.Ident = set(cls, owner.Path, b.Path, RoleDecl, n.Exported(b.NameSource()))
		}
		if it.Setter {
			it.SetterIdent = set(cls, owner.Path, b.Path, RoleSetter, n.Exported("set", b.NameSource()))
		}
	case *Constant:
		b.Ident = set(pkg, PackageScope, b.Path, RoleDecl, n.Exported(owner.Ident, b.NameSource()))
	}
}
