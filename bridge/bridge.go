// Package bridge defines the boundary between the generator and a foreign
// Python runtime.
//
// A [Bridge] answers three synchronous questions: import a module by its
// dotted path, enumerate the members of an object, and describe an object.
// Nothing outside package introspect talks to a Bridge directly. Every call
// is expected to run under exclusive access to the runtime, see [Exclusive].
package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Handle references an object living inside the foreign runtime.
// Handles are only meaningful to the Bridge that produced them.
type Handle uint64

// Member is a named attribute of a foreign object.
type Member struct {
	Name   string `json:"name"`
	Handle Handle `json:"handle"`
}

// Bridge is the contract consumed by the introspector.
type Bridge interface {
	// Import imports a module by its dotted path. A failed import
	// returns an error wrapping or being an [*ImportError].
	Import(path string) (Handle, error)
	// MembersOf returns the attributes of an object in a stable order.
	MembersOf(h Handle) ([]Member, error)
	// Describe reads kind, signature, annotation and docstring of an object.
	Describe(h Handle) (*RawDescriptor, error)
}

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrClosed        = errors.New("bridge closed")
)

// ImportError reports that a module could not be imported.
type ImportError struct {
	Path   string
	Reason string
}

func (e *ImportError) Error() string {
	if e.Reason == "" {
		return "import " + e.Path + ": failed"
	}
	return "import " + e.Path + ": " + e.Reason
}

// IsImportError reports whether err is or wraps an [*ImportError].
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}

// Kind is the category of a foreign object.
type Kind int

const (
	KindOther Kind = iota
	KindModule
	KindClass
	KindFunction
	KindMethod
	KindProperty
	KindConstant
	KindTypeVar
)

var kindNames = [...]string{
	KindOther:    "other",
	KindModule:   "module",
	KindClass:    "class",
	KindFunction: "function",
	KindMethod:   "method",
	KindProperty: "property",
	KindConstant: "constant",
	KindTypeVar:  "typevar",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if strings.EqualFold(name, string(text)) {
			*k = Kind(i)
			return nil
		}
	}
	// Unknown kinds degrade to KindOther instead of failing the whole
	// descriptor.
	*k = KindOther
	return nil
}

// Binding says how a method is bound to its class.
type Binding int

const (
	BindingNone Binding = iota
	BindingInstance
	BindingClass
	BindingStatic
)

var bindingNames = [...]string{
	BindingNone:     "",
	BindingInstance: "instance",
	BindingClass:    "class",
	BindingStatic:   "static",
}

func (b Binding) String() string {
	if b < 0 || int(b) >= len(bindingNames) {
		return fmt.Sprintf("Binding(%d)", int(b))
	}
	return bindingNames[b]
}

func (b Binding) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Binding) UnmarshalText(text []byte) error {
	*b = BindingNone
	for i, name := range bindingNames {
		if name != "" && strings.EqualFold(name, string(text)) {
			*b = Binding(i)
		}
	}
	return nil
}

// ParamKind mirrors the parameter kinds of Python's inspect module.
type ParamKind int

const (
	ParamPositionalOrKeyword ParamKind = iota
	ParamPositionalOnly
	ParamVarPositional
	ParamKeywordOnly
	ParamVarKeyword
)

var paramKindNames = [...]string{
	ParamPositionalOrKeyword: "positional_or_keyword",
	ParamPositionalOnly:      "positional_only",
	ParamVarPositional:       "var_positional",
	ParamKeywordOnly:         "keyword_only",
	ParamVarKeyword:          "var_keyword",
}

func (k ParamKind) String() string {
	if k < 0 || int(k) >= len(paramKindNames) {
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
	return paramKindNames[k]
}

func (k ParamKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ParamKind) UnmarshalText(text []byte) error {
	for i, name := range paramKindNames {
		if strings.EqualFold(name, string(text)) {
			*k = ParamKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown parameter kind %q", text)
}

// Param is one parameter of a callable.
type Param struct {
	Name       string    `json:"name"`
	Kind       ParamKind `json:"kind"`
	Annotation string    `json:"annotation,omitempty"`
	HasDefault bool      `json:"has_default,omitempty"`
}

// Signature is the structured signature of a callable.
// Annotations are kept as the text the runtime reports.
type Signature struct {
	Params []Param `json:"params"`
	Return string  `json:"return,omitempty"`
}

// LiteralKind is the kind of a constant's value.
type LiteralKind int

const (
	LiteralOpaque LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralStr
	LiteralBool
	LiteralBytes
	LiteralComplex
	LiteralNone
)

var literalKindNames = [...]string{
	LiteralOpaque:  "opaque",
	LiteralInt:     "int",
	LiteralFloat:   "float",
	LiteralStr:     "str",
	LiteralBool:    "bool",
	LiteralBytes:   "bytes",
	LiteralComplex: "complex",
	LiteralNone:    "none",
}

func (k LiteralKind) String() string {
	if k < 0 || int(k) >= len(literalKindNames) {
		return fmt.Sprintf("LiteralKind(%d)", int(k))
	}
	return literalKindNames[k]
}

func (k LiteralKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *LiteralKind) UnmarshalText(text []byte) error {
	*k = LiteralOpaque
	for i, name := range literalKindNames {
		if strings.EqualFold(name, string(text)) {
			*k = LiteralKind(i)
		}
	}
	return nil
}

// Value is the value of a constant, in canonical text form:
//   - int: decimal digits with optional sign (arbitrary size)
//   - float: Python repr ("0.5", "1e+20", "inf", "-inf", "nan")
//   - str: the decoded string
//   - bool: "true" or "false"
//   - complex: "re,im" with both parts in float form
//   - bytes, none, opaque: Text is informational only
type Value struct {
	Kind LiteralKind `json:"kind"`
	Text string      `json:"text,omitempty"`
	// Type is the runtime type name of the value, e.g. "int" or
	// "logging.Logger".
	Type string `json:"type,omitempty"`
}

// RawDescriptor is everything the bridge knows about one object.
type RawDescriptor struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	// Module is the defining module (__module__), or the module's own
	// path for modules.
	Module   string `json:"module,omitempty"`
	QualName string `json:"qualname,omitempty"`
	Doc      string `json:"doc,omitempty"`

	// Module only.
	Package bool     `json:"package,omitempty"`
	HasAll  bool     `json:"has_all,omitempty"`
	All     []string `json:"all,omitempty"`
	// Submodules lists the direct submodule names of a package that
	// are not necessarily imported yet.
	Submodules []string `json:"submodules,omitempty"`

	// Callables.
	Signature     *Signature `json:"signature,omitempty"`
	SignatureText string     `json:"signature_text,omitempty"`
	Binding       Binding    `json:"binding,omitempty"`

	// Properties and constants.
	Annotation string `json:"annotation,omitempty"`
	Getter     bool   `json:"getter,omitempty"`
	Setter     bool   `json:"setter,omitempty"`
	// GetterDoc is the docstring of a property's getter function.
	GetterDoc string `json:"getter_doc,omitempty"`
	Value     *Value `json:"value,omitempty"`

	// Classes.
	Bases []string `json:"bases,omitempty"`
}

// Path returns the qualified path of the object, derived from Module and
// QualName when available.
func (d *RawDescriptor) Path() string {
	if d.Kind == KindModule {
		if d.Module != "" {
			return d.Module
		}
		return d.Name
	}
	name := d.QualName
	if name == "" {
		name = d.Name
	}
	if d.Module == "" {
		return name
	}
	return d.Module + "." + name
}

// HasDoc reports whether d carries a meaningful docstring.
// Empty docstrings and the literal "None" count as absent.
func (d *RawDescriptor) HasDoc() bool {
	doc := strings.TrimSpace(d.Doc)
	return doc != "" && doc != "None"
}
