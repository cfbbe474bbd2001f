package typemap

import (
	"strings"
)

// Classes maps every known spelling of a class (its qualified path,
// and the path of every re-export) to the class's canonical path.
//
// A Classes value must not be modified after it is passed to [New].
type Classes map[string]string

// Recognizer is an extension point for additional primitive or container
// spellings. It returns ok == false if it doesn't recognize e. mapArg maps
// a nested expression with the full mapper.
type Recognizer func(e *Expr, mapArg func(*Expr) Descriptor) (d Descriptor, ok bool)

// Mapper maps annotation text to descriptors. It is safe for concurrent
// use and has no mutable state.
type Mapper struct {
	classes     Classes
	recognizers []Recognizer
}

func New(classes Classes, recognizers ...Recognizer) *Mapper {
	return &Mapper{classes: classes, recognizers: recognizers}
}

// Prefixes stripped from names before recognition.
var namePrefixes = []string{
	"typing_extensions.",
	"typing.",
	"collections.abc.",
	"collections.",
	"builtins.",
	"_collections_abc.",
	"t.",
}

var primitiveNames = map[string]PrimitiveKind{
	"int":        Int,
	"float":      Float,
	"str":        Str,
	"bool":       Bool,
	"bytes":      Bytes,
	"bytearray":  Bytes,
	"memoryview": Bytes,
	"complex":    Complex,
	"None":       None,
	"NoneType":   None,
}

var sequenceNames = map[string]bool{
	"list": true, "List": true,
	"Sequence": true, "MutableSequence": true,
	"Iterable": true, "Iterator": true, "Collection": true, "Reversible": true,
	"Generator": true, "AsyncIterable": true, "AsyncIterator": true,
	"set": true, "Set": true, "AbstractSet": true, "MutableSet": true,
	"frozenset": true, "FrozenSet": true,
	"deque": true, "Deque": true,
	"KeysView": true, "ValuesView": true,
}

var mappingNames = map[string]bool{
	"dict": true, "Dict": true,
	"Mapping": true, "MutableMapping": true,
	"OrderedDict": true, "defaultdict": true, "DefaultDict": true,
	"ChainMap": true,
}

// Qualifiers that wrap a type without changing it.
var transparentNames = map[string]bool{
	"Annotated": true, "Final": true, "ClassVar": true,
	"Required": true, "NotRequired": true, "ReadOnly": true,
	"InitVar": true,
}

func stripPrefixes(name string) string {
	for _, pfx := range namePrefixes {
		if s, ok := strings.CutPrefix(name, pfx); ok && s != "" {
			return s
		}
	}
	return name
}

// Map maps annotation text to a descriptor. scope is the dotted path of
// the module (or class) the annotation appears in; it is used to resolve
// unqualified class names. An empty annotation yields [Unknown].
func (m *Mapper) Map(annotation, scope string) Descriptor {
	if strings.TrimSpace(annotation) == "" {
		return Unknown{}
	}
	e, err := ParseExpr(annotation)
	if err != nil {
		return Unknown{}
	}
	return m.MapExpr(e, scope)
}

// MapExpr maps a parsed annotation.
func (m *Mapper) MapExpr(e *Expr, scope string) Descriptor {
	return m.mapExpr(e, scope, 0)
}

func (m *Mapper) mapExpr(e *Expr, scope string, depth int) (d Descriptor) {
	if e == nil || depth > maxDepth {
		return Unknown{}
	}
	mapArg := func(e *Expr) Descriptor {
		return m.mapExpr(e, scope, depth+1)
	}
	arg := func(i int) Descriptor {
		if i >= len(e.Args) {
			return Unknown{}
		}
		return mapArg(e.Args[i])
	}

	switch e.Kind {
	case ExprString:
		// Forward reference.
		inner, err := ParseExpr(e.Text)
		if err != nil {
			return Unknown{}
		}
		return mapArg(inner)
	case ExprUnion:
		return m.mapUnion(e.Args, mapArg)
	case ExprName:
	default:
		return Unknown{}
	}

	for _, rec := range m.recognizers {
		if d, ok := rec(e, mapArg); ok && d != nil {
			return d
		}
	}

	name := stripPrefixes(e.Text)
	if kind, ok := primitiveNames[name]; ok {
		if e.Subscripted {
			return Unknown{}
		}
		return Primitive{Kind: kind}
	}
	switch {
	case sequenceNames[name]:
		return Sequence{Elem: arg(0)}
	case mappingNames[name]:
		return Mapping{Key: arg(0), Value: arg(1)}
	case name == "Counter":
		return Mapping{Key: arg(0), Value: Primitive{Kind: Int}}
	case transparentNames[name]:
		return arg(0)
	case name == "tuple" || name == "Tuple":
		return m.mapTuple(e, mapArg)
	case name == "Optional":
		if len(e.Args) != 1 {
			return Unknown{}
		}
		return m.mapUnion([]*Expr{e.Args[0], {Kind: ExprName, Text: "None"}}, mapArg)
	case name == "Union":
		return m.mapUnion(e.Args, mapArg)
	case name == "Literal":
		return m.mapLiteral(e.Args)
	}

	if !e.Subscripted {
		if path, ok := m.resolveClass(e.Text, scope); ok {
			return UserDefined{Path: path}
		}
	} else if path, ok := m.resolveClass(e.Text, scope); ok {
		// Generic user class, e.g. Box[int]; type arguments are dropped.
		return UserDefined{Path: path}
	}
	return Unknown{}
}

func (m *Mapper) mapTuple(e *Expr, mapArg func(*Expr) Descriptor) Descriptor {
	switch {
	case !e.Subscripted:
		return Sequence{Elem: Unknown{}}
	case len(e.Args) == 1 && e.Args[0].Kind == ExprEmptyTuple:
		return Tuple{}
	case len(e.Args) == 2 && e.Args[1].Kind == ExprEllipsis:
		return Sequence{Elem: mapArg(e.Args[0])}
	}
	elems := make([]Descriptor, len(e.Args))
	for i, a := range e.Args {
		if a.Kind == ExprEllipsis {
			return Unknown{}
		}
		elems[i] = mapArg(a)
	}
	return Tuple{Elems: elems}
}

// mapUnion collapses "X | None" into Optional(X). Unions of more than
// one non-None type have no host representation and become Unknown.
func (m *Mapper) mapUnion(alts []*Expr, mapArg func(*Expr) Descriptor) Descriptor {
	var types []Descriptor
	seen := map[string]bool{}
	hasNone := false
	var add func(d Descriptor)
	add = func(d Descriptor) {
		switch dd := d.(type) {
		case Primitive:
			if dd.Kind == None {
				hasNone = true
				return
			}
		case Optional:
			hasNone = true
			add(dd.Inner)
			return
		}
		if s := d.String(); !seen[s] {
			seen[s] = true
			types = append(types, d)
		}
	}
	for _, a := range alts {
		add(mapArg(a))
	}

	var res Descriptor
	switch len(types) {
	case 0:
		if hasNone {
			return Primitive{Kind: None}
		}
		return Unknown{}
	case 1:
		res = types[0]
	default:
		return Unknown{}
	}
	if hasNone && !IsUnknown(res) {
		return Optional{Inner: res}
	}
	return res
}

// mapLiteral maps Literal[...] to the primitive kind shared by all values.
func (m *Mapper) mapLiteral(args []*Expr) Descriptor {
	var kind PrimitiveKind = -1
	hasNone := false
	for _, a := range args {
		var k PrimitiveKind
		switch {
		case a.Kind == ExprString:
			k = Str
		case a.Kind == ExprNumber && !strings.ContainsAny(a.Text, ".e"):
			k = Int
		case a.Kind == ExprNumber:
			k = Float
		case a.Kind == ExprName && (a.Text == "True" || a.Text == "False"):
			k = Bool
		case a.Kind == ExprName && a.Text == "None":
			hasNone = true
			continue
		default:
			return Unknown{}
		}
		if kind != -1 && kind != k {
			return Unknown{}
		}
		kind = k
	}
	if kind == -1 {
		if hasNone {
			return Primitive{Kind: None}
		}
		return Unknown{}
	}
	if hasNone {
		return Optional{Inner: Primitive{Kind: kind}}
	}
	return Primitive{Kind: kind}
}

// resolveClass looks name up as written, then relative to scope and each
// of its parents.
func (m *Mapper) resolveClass(name, scope string) (string, bool) {
	if path, ok := m.classes[name]; ok {
		return path, true
	}
	for scope != "" {
		if path, ok := m.classes[scope+"."+name]; ok {
			return path, true
		}
		i := strings.LastIndex(scope, ".")
		if i == -1 {
			break
		}
		scope = scope[:i]
	}
	return "", false
}
