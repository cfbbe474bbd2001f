// Package ir holds the intermediate representation of a bound module
// graph: a symbol table of modules, classes, callables, properties and
// constants keyed by their qualified Python path, with output names
// assigned once the table is frozen.
package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/typemap"
)

type Kind int

const (
	KindModule Kind = iota
	KindClass
	KindFunction
	KindMethod
	KindProperty
	KindConstant
	// KindImport is a name that refers to an object defined elsewhere.
	// Imports are never emitted.
	KindImport
)

var kindNames = [...]string{
	KindModule:   "module",
	KindClass:    "class",
	KindFunction: "function",
	KindMethod:   "method",
	KindProperty: "property",
	KindConstant: "constant",
	KindImport:   "import",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Item is implemented by all symbol table entries.
type Item interface {
	Common() *Base
}

// Base holds the fields shared by all items.
type Base struct {
	Kind Kind
	// Path is the qualified path the item is bound under.
	Path string
	// Name is the Python name.
	Name string
	// Module is the module the item belongs to.
	Module string
	// Owner is the path of the owning class, if any.
	Owner   string
	Private bool
	Doc     string
	// Emit reports whether the item is rendered.
	Emit bool
	// Rename replaces Name when deriving the output identifier.
	Rename string
	// Ident is the output identifier, set by [Table.Freeze].
	Ident string
}

func (b *Base) Common() *Base { return b }

// NameSource returns the name output identifiers are derived from.
func (b *Base) NameSource() string {
	if b.Rename != "" {
		return b.Rename
	}
	return b.Name
}

type Module struct {
	Base
	Entry bool
	// Parent is the path of the enclosing module in the table, or "".
	Parent string
	// Members are the paths of module-level items in discovery order.
	Members []string
	// Submodules are the paths of walked child modules.
	Submodules []string
	// Namespace is the name of the generated namespace type, or "" if
	// the module's members live at package scope.
	Namespace string
	// Field is the identifier of the module's field in its parent
	// namespace, or of the package-level variable for namespaced
	// entries.
	Field string
}

// BaseRef is a base class of a class.
type BaseRef struct {
	// Path is the canonical path of the base.
	Path string
	// Resolved is false for bases that can't be represented, i.e.
	// unknown classes and classes on an inheritance cycle.
	Resolved bool
	// Ident is the name of the conversion method, for resolved bases.
	Ident string
}

type Class struct {
	Base
	// Origin is the path the class was defined under.
	Origin string
	Bases  []BaseRef
	// Members are the paths of class-level items in discovery order.
	Members []string
	// Attr is the attribute chain from Module to the class.
	Attr []string
}

type Param struct {
	// Name is the Python parameter name.
	Name       string
	Ident      string
	Kind       bridge.ParamKind
	Type       typemap.Descriptor
	HasDefault bool
}

type Function struct {
	Base
	// Attr is the attribute chain from Module to the function, for
	// module functions and static and class methods.
	Attr    []string
	Binding bridge.Binding
	// Constructor is set for __init__.
	Constructor bool
	// Call is set for __call__.
	Call   bool
	Params []Param
	Return typemap.Descriptor
	// Generic is set when the signature was unavailable and the
	// callable takes arbitrary arguments.
	Generic bool
}

// Bound reports whether f is called through an instance.
func (f *Function) Bound() bool {
	return f.Kind == KindMethod && f.Binding == bridge.BindingInstance && !f.Constructor
}

type Property struct {
	Base
	Type   typemap.Descriptor
	Getter bool
	Setter bool
	// SetterIdent is the setter method name, set by [Table.Freeze].
	SetterIdent string
}

type Constant struct {
	Base
	Literal bridge.LiteralKind
	// Value is the canonical text form of literal values.
	Value string
	Type  typemap.Descriptor
	Attr  []string
}

// IsLiteral reports whether the constant can be rendered as a literal.
// Integers must fit in 64 bits.
func (c *Constant) IsLiteral() bool {
	switch c.Literal {
	case bridge.LiteralStr, bridge.LiteralBool:
		return true
	case bridge.LiteralInt:
		_, err := strconv.ParseInt(c.Value, 10, 64)
		return err == nil
	case bridge.LiteralFloat:
		_, err := strconv.ParseFloat(c.Value, 64)
		return err == nil
	case bridge.LiteralComplex:
		re, im, ok := strings.Cut(c.Value, ",")
		if !ok {
			return false
		}
		_, err1 := strconv.ParseFloat(re, 64)
		_, err2 := strconv.ParseFloat(im, 64)
		return err1 == nil && err2 == nil
	}
	return false
}

type Import struct {
	Base
	Target string
}
