package ir

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iancoleman/strcase"
	"golang.org/x/text/unicode/norm"
)

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

var goPredeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true, "complex64": true,
	"complex128": true, "error": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true, "rune": true,
	"string": true, "uint": true, "uint8": true, "uint16": true, "uint32": true,
	"uint64": true, "uintptr": true,
	"true": true, "false": true, "iota": true, "nil": true,
	"append": true, "cap": true, "clear": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true, "make": true,
	"max": true, "min": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true,
	"_": true,
}

// IsReserved reports whether s can't be used as a declared Go
// identifier as is.
func IsReserved(s string) bool {
	return goKeywords[s] || goPredeclared[s]
}

// Escape appends "_" to reserved words.
func Escape(s string) string {
	if IsReserved(s) {
		return s + "_"
	}
	return s
}

// Sanitize turns s into a valid Go identifier. s is NFKC-normalized,
// runes that can't appear in an identifier become "_", and a leading
// digit is prefixed. If exported is set, the result starts with an
// upper case letter.
func Sanitize(s string, exported bool) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s = b.String()
	first, _ := utf8.DecodeRuneInString(s)
	switch {
	case s == "":
		if exported {
			return "X"
		}
		return "x"
	case unicode.IsDigit(first):
		if exported {
			return "X" + s
		}
		return "_" + s
	case exported && unicode.IsLower(first):
		return string(unicode.ToUpper(first)) + s[utf8.RuneLen(first):]
	case exported && !unicode.IsUpper(first):
		return "X" + s
	}
	return s
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// toCamel converts snake_case to CamelCase. strcase only handles
// ASCII and drops other bytes, so non-ASCII names are split on "_" and
// each part is capitalized.
func toCamel(s string, upper bool) string {
	if isASCII(s) {
		if upper {
			return strcase.ToCamel(s)
		}
		return strcase.ToLowerCamel(s)
	}
	var b strings.Builder
	for i, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		r, n := utf8.DecodeRuneInString(part)
		if upper || i > 0 && b.Len() > 0 {
			r = unicode.ToUpper(r)
		} else {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
		b.WriteString(part[n:])
	}
	return b.String()
}

// Namer derives output identifiers from Python names.
type Namer struct {
	// Preserve keeps Python names as is, apart from sanitization.
	Preserve bool
}

// Exported returns the identifier for a declaration named name.
// Several parts are joined into one identifier.
func (n Namer) Exported(parts ...string) string {
	if n.Preserve {
		var ps []string
		for _, p := range parts {
			if p != "" {
				ps = append(ps, Sanitize(p, false))
			}
		}
		return Escape(Sanitize(strings.Join(ps, "_"), false))
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(toCamel(norm.NFKC.String(p), true))
	}
	return Escape(Sanitize(b.String(), true))
}

// Local returns the identifier for a parameter named name.
func (n Namer) Local(name string) string {
	s := toCamel(norm.NFKC.String(name), false)
	if strings.Trim(s, "_") == "" {
		s = "arg"
	}
	return Escape(Sanitize(s, false))
}

// Scope hands out identifiers unique within it. The first claim of a
// name gets it unchanged, later ones get "_1", "_2" and so on.
type Scope struct {
	taken map[string]bool
}

func NewScope(reserved ...string) *Scope {
	s := &Scope{taken: map[string]bool{}}
	for _, r := range reserved {
		s.taken[r] = true
	}
	return s
}

// Clone returns an independent copy of s.
func (s *Scope) Clone() *Scope {
	c := NewScope()
	for k := range s.taken {
		c.taken[k] = true
	}
	return c
}

func (s *Scope) Taken(name string) bool {
	return s.taken[name]
}

// Claim returns name, or name with the lowest free numeric suffix.
func (s *Scope) Claim(name string) string {
	res := name
	for i := 1; s.taken[res]; i++ {
		res = name + "_" + strconv.Itoa(i)
	}
	s.taken[res] = true
	return res
}
