package codegen

import (
	"fmt"
	"strings"

	"github.com/refaktor/pybindgen/ir"
	"github.com/refaktor/pybindgen/typemap"
)

const objectType = "Object"

// GoType returns the Go spelling of d. Classes are looked up in t.
func GoType(t *ir.Table, d typemap.Descriptor) string {
	switch d := d.(type) {
	case typemap.Primitive:
		switch d.Kind {
		case typemap.Int:
			return "int64"
		case typemap.Float:
			return "float64"
		case typemap.Str:
			return "string"
		case typemap.Bool:
			return "bool"
		case typemap.Bytes:
			return "[]byte"
		case typemap.Complex:
			return "complex128"
		}
		return objectType
	case typemap.Sequence:
		return "[]" + GoType(t, d.Elem)
	case typemap.Mapping:
		if !comparableKey(d.Key) {
			return objectType
		}
		return "map[" + GoType(t, d.Key) + "]" + GoType(t, d.Value)
	case typemap.Tuple:
		if len(d.Elems) == 0 {
			return objectType
		}
		fields := make([]string, len(d.Elems))
		for i, e := range d.Elems {
			fields[i] = fmt.Sprintf("F%d %s", i, GoType(t, e))
		}
		return "struct{ " + strings.Join(fields, "; ") + " }"
	case typemap.Optional:
		inner := GoType(t, d.Inner)
		if inner == objectType {
			return objectType
		}
		return "*" + inner
	case typemap.UserDefined:
		if c := t.Class(d.Path); c != nil && c.Emit {
			return c.Ident
		}
	}
	return objectType
}

func comparableKey(d typemap.Descriptor) bool {
	switch d := d.(type) {
	case typemap.Primitive:
		return d.Kind != typemap.Bytes && d.Kind != typemap.None
	case typemap.UserDefined:
		return true
	case typemap.Tuple:
		if len(d.Elems) == 0 {
			return false
		}
		for _, e := range d.Elems {
			if !comparableKey(e) {
				return false
			}
		}
		return true
	}
	return false
}

// nilable reports whether nil is a valid value of the Go type typ.
func nilable(typ string) bool {
	return typ == objectType || strings.HasPrefix(typ, "*") ||
		strings.HasPrefix(typ, "[]") || strings.HasPrefix(typ, "map[")
}
