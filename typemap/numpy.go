package typemap

import "strings"

var numpyArrayNames = map[string]bool{
	"numpy.ndarray":        true,
	"np.ndarray":           true,
	"numpy.typing.NDArray": true,
	"npt.NDArray":          true,
	"NDArray":              true,
}

var numpyDtypes = map[string]PrimitiveKind{
	"float16": Float, "float32": Float, "float64": Float, "float128": Float,
	"float_": Float, "double": Float, "single": Float, "longdouble": Float,
	"int8": Int, "int16": Int, "int32": Int, "int64": Int, "intp": Int, "int_": Int,
	"uint8": Int, "uint16": Int, "uint32": Int, "uint64": Int, "uintp": Int,
	"bool_": Bool, "bool": Bool,
	"complex64": Complex, "complex128": Complex, "complex_": Complex, "cdouble": Complex,
	"str_": Str, "bytes_": Bytes,
}

// NumPy recognizes NumPy arrays ("numpy.ndarray", "numpy.typing.NDArray[X]")
// as sequences of the array's element type.
func NumPy(e *Expr, mapArg func(*Expr) Descriptor) (Descriptor, bool) {
	if e.Kind != ExprName || !numpyArrayNames[e.Text] {
		return nil, false
	}
	if len(e.Args) == 0 {
		return Sequence{Elem: Unknown{}}, true
	}
	// ndarray[shape, dtype[X]] and NDArray[X]: the dtype is the last argument.
	dtype := e.Args[len(e.Args)-1]
	if dtype.Kind == ExprName && dtype.Subscripted && len(dtype.Args) == 1 &&
		strings.HasSuffix(dtype.Text, "dtype") {
		dtype = dtype.Args[0]
	}
	if dtype.Kind != ExprName || dtype.Subscripted {
		return Sequence{Elem: Unknown{}}, true
	}
	name := dtype.Text
	for _, pfx := range []string{"numpy.", "np."} {
		name = strings.TrimPrefix(name, pfx)
	}
	if kind, ok := numpyDtypes[name]; ok {
		return Sequence{Elem: Primitive{Kind: kind}}, true
	}
	// Plain Python types are valid dtypes too.
	if d := mapArg(dtype); !IsUnknown(d) {
		if _, ok := d.(Primitive); ok {
			return Sequence{Elem: d}, true
		}
	}
	return Sequence{Elem: Unknown{}}, true
}
