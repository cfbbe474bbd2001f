// Package typemap maps Python type annotations to a closed set of type
// descriptors.
//
// Mapping never fails: anything that is not understood becomes [Unknown].
package typemap

import (
	"strings"
)

// PrimitiveKind enumerates the primitive types.
type PrimitiveKind int

const (
	Int PrimitiveKind = iota
	Float
	Str
	Bool
	Bytes
	Complex
	// None is the type of a callable that returns nothing.
	None
)

func (k PrimitiveKind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	case Bool:
		return "bool"
	case Bytes:
		return "bytes"
	case Complex:
		return "complex"
	case None:
		return "None"
	default:
		return "invalid"
	}
}

// Descriptor is a host-side type. The set of implementations is closed:
// [Primitive], [Sequence], [Mapping], [Tuple], [Optional], [UserDefined]
// and [Unknown].
type Descriptor interface {
	// String returns the descriptor in annotation-like form.
	String() string

	sealed()
}

type Primitive struct {
	Kind PrimitiveKind
}

type Sequence struct {
	Elem Descriptor
}

type Mapping struct {
	Key   Descriptor
	Value Descriptor
}

// Tuple is a fixed-size, heterogeneous tuple.
type Tuple struct {
	Elems []Descriptor
}

type Optional struct {
	Inner Descriptor
}

// UserDefined is a class known to the symbol table, by qualified path.
type UserDefined struct {
	Path string
}

// Unknown is the fallback for everything the mapper does not understand.
type Unknown struct{}

func (Primitive) sealed()   {}
func (Sequence) sealed()    {}
func (Mapping) sealed()     {}
func (Tuple) sealed()       {}
func (Optional) sealed()    {}
func (UserDefined) sealed() {}
func (Unknown) sealed()     {}

func (d Primitive) String() string { return d.Kind.String() }
func (d Sequence) String() string  { return "list[" + d.Elem.String() + "]" }
func (d Mapping) String() string {
	return "dict[" + d.Key.String() + ", " + d.Value.String() + "]"
}
func (d Tuple) String() string {
	if len(d.Elems) == 0 {
		return "tuple[()]"
	}
	elems := make([]string, len(d.Elems))
	for i, e := range d.Elems {
		elems[i] = e.String()
	}
	return "tuple[" + strings.Join(elems, ", ") + "]"
}
func (d Optional) String() string    { return "Optional[" + d.Inner.String() + "]" }
func (d UserDefined) String() string { return d.Path }
func (Unknown) String() string       { return "Unknown" }

// IsUnknown reports whether d is [Unknown] (or nil).
func IsUnknown(d Descriptor) bool {
	if d == nil {
		return true
	}
	_, ok := d.(Unknown)
	return ok
}

// IsNone reports whether d is the None primitive.
func IsNone(d Descriptor) bool {
	p, ok := d.(Primitive)
	return ok && p.Kind == None
}

// Walk calls fn for d and all nested descriptors, outermost first.
func Walk(d Descriptor, fn func(Descriptor)) {
	if d == nil {
		return
	}
	fn(d)
	switch d := d.(type) {
	case Sequence:
		Walk(d.Elem, fn)
	case Mapping:
		Walk(d.Key, fn)
		Walk(d.Value, fn)
	case Tuple:
		for _, e := range d.Elems {
			Walk(e, fn)
		}
	case Optional:
		Walk(d.Inner, fn)
	}
}

// References returns the paths of all classes referenced by d, in
// order of appearance.
func References(d Descriptor) []string {
	var res []string
	Walk(d, func(d Descriptor) {
		if u, ok := d.(UserDefined); ok {
			res = append(res, u.Path)
		}
	})
	return res
}

// Rewrite returns d with every nested descriptor replaced by fn's
// result, innermost first.
func Rewrite(d Descriptor, fn func(Descriptor) Descriptor) Descriptor {
	switch dd := d.(type) {
	case Sequence:
		d = Sequence{Elem: Rewrite(dd.Elem, fn)}
	case Mapping:
		d = Mapping{Key: Rewrite(dd.Key, fn), Value: Rewrite(dd.Value, fn)}
	case Tuple:
		elems := make([]Descriptor, len(dd.Elems))
		for i, e := range dd.Elems {
			elems[i] = Rewrite(e, fn)
		}
		d = Tuple{Elems: elems}
	case Optional:
		d = Optional{Inner: Rewrite(dd.Inner, fn)}
	case nil:
		d = Unknown{}
	}
	return fn(d)
}
