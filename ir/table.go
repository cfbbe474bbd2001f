package ir

import (
	"errors"
	"fmt"

	"github.com/refaktor/pybindgen/typemap"
)

var ErrFrozen = errors.New("symbol table is frozen")

// Role distinguishes the identifiers assigned to one item.
type Role int

const (
	RoleDecl Role = iota
	RoleSetter
	// RoleNamespace is the namespace type of a module.
	RoleNamespace
	// RoleConversion is a base class conversion method; the key's Path
	// is "<class path>:<base path>".
	RoleConversion
)

// PackageScope is the scope of package-level identifiers. Other scopes
// are named by the path of the class or module they belong to, or by
// the path of a callable followed by "()" for its parameters.
const PackageScope = ""

// NameKey identifies one assigned identifier.
type NameKey struct {
	Scope string
	Path  string
	Role  Role
}

// Table is the symbol table. Items are added during construction and
// the table is frozen once names are assigned. A frozen table is not
// modified any more and may be read concurrently.
type Table struct {
	// Entries are the entry module paths.
	Entries []string
	// Roots are the modules not nested in another module of the table.
	Roots []string
	items map[string]Item
	order []string
	// classes maps every spelling of a class to its canonical path.
	classes typemap.Classes
	frozen  bool
	// Names maps each assigned identifier's key to the identifier.
	Names map[NameKey]string
}

func NewTable() *Table {
	return &Table{
		items:   map[string]Item{},
		classes: typemap.Classes{},
		Names:   map[NameKey]string{},
	}
}

// Add inserts it. Paths are unique.
func (t *Table) Add(it Item) error {
	if t.frozen {
		return ErrFrozen
	}
	path := it.Common().Path
	if _, ok := t.items[path]; ok {
		return fmt.Errorf("duplicate item %v", path)
	}
	t.items[path] = it
	t.order = append(t.order, path)
	return nil
}

func (t *Table) Get(path string) (Item, bool) {
	it, ok := t.items[path]
	return it, ok
}

// Items returns all items in discovery order.
func (t *Table) Items() []Item {
	res := make([]Item, len(t.order))
	for i, p := range t.order {
		res[i] = t.items[p]
	}
	return res
}

func (t *Table) Len() int {
	return len(t.order)
}

func (t *Table) Module(path string) *Module {
	m, _ := t.items[path].(*Module)
	return m
}

func (t *Table) Class(path string) *Class {
	c, _ := t.items[path].(*Class)
	return c
}

// Modules returns the modules in discovery order.
func (t *Table) Modules() []*Module {
	var res []*Module
	for _, p := range t.order {
		if m, ok := t.items[p].(*Module); ok {
			res = append(res, m)
		}
	}
	return res
}

// Members returns the items with the given paths, skipping unknown ones.
func (t *Table) Members(paths []string) []Item {
	var res []Item
	for _, p := range paths {
		if it, ok := t.items[p]; ok {
			res = append(res, it)
		}
	}
	return res
}

// Emitted reports whether the item at path exists and is rendered.
func (t *Table) Emitted(path string) bool {
	it, ok := t.items[path]
	return ok && it.Common().Emit
}

// Classes returns the class spellings known to the table.
func (t *Table) Classes() typemap.Classes {
	return t.classes
}

// ResolveClass returns the canonical path of a class spelling.
func (t *Table) ResolveClass(path string) (string, bool) {
	c, ok := t.classes[path]
	return c, ok
}

func (t *Table) Frozen() bool {
	return t.frozen
}

// Ident returns the identifier assigned for key, or "".
func (t *Table) Ident(scope, path string, role Role) string {
	return t.Names[NameKey{Scope: scope, Path: path, Role: role}]
}

// SetEmit sets whether the item at path is rendered.
func (t *Table) SetEmit(path string, emit bool) error {
	if t.frozen {
		return ErrFrozen
	}
	it, ok := t.items[path]
	if !ok {
		return fmt.Errorf("unknown item %v", path)
	}
	it.Common().Emit = emit
	return nil
}

// SetRename makes the item at path use name in place of its Python
// name when deriving identifiers.
func (t *Table) SetRename(path, name string) error {
	if t.frozen {
		return ErrFrozen
	}
	it, ok := t.items[path]
	if !ok {
		return fmt.Errorf("unknown item %v", path)
	}
	it.Common().Rename = name
	return nil
}
