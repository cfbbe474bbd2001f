package typemap

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ExprKind is the kind of a parsed annotation expression.
type ExprKind int

const (
	// ExprName is a (possibly dotted and subscripted) name.
	ExprName ExprKind = iota
	// ExprUnion is "X | Y | ...".
	ExprUnion
	// ExprList is "[X, Y]", as in Callable[[X, Y], Z].
	ExprList
	// ExprString is a string literal (forward reference or Literal value).
	ExprString
	// ExprNumber is a numeric literal.
	ExprNumber
	// ExprEllipsis is "...".
	ExprEllipsis
	// ExprEmptyTuple is "()", as in tuple[()].
	ExprEmptyTuple
)

// Expr is a parsed annotation.
type Expr struct {
	Kind ExprKind
	// Dotted name for ExprName, literal text for ExprString/ExprNumber.
	Text string
	// Subscript arguments of an ExprName, alternatives of an ExprUnion,
	// elements of an ExprList.
	Args []*Expr
	// Subscripted is true if an ExprName had "[...]", even if empty.
	Subscripted bool
}

func (e *Expr) String() string {
	switch e.Kind {
	case ExprName:
		if !e.Subscripted {
			return e.Text
		}
		return e.Text + "[" + joinExprs(e.Args, ", ") + "]"
	case ExprUnion:
		return joinExprs(e.Args, " | ")
	case ExprList:
		return "[" + joinExprs(e.Args, ", ") + "]"
	case ExprString:
		return strconv.Quote(e.Text)
	case ExprNumber:
		return e.Text
	case ExprEllipsis:
		return "..."
	case ExprEmptyTuple:
		return "()"
	default:
		return "?"
	}
}

func joinExprs(es []*Expr, sep string) string {
	s := make([]string, len(es))
	for i, e := range es {
		s[i] = e.String()
	}
	return strings.Join(s, sep)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Maximum nesting of brackets accepted by [ParseExpr].
const maxDepth = 64

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '_' || unicode.IsLetter(c) || c >= 0x80:
			start := i
			for i < len(src) {
				c := rune(src[i])
				if c != '_' && c != '.' && !unicode.IsLetter(c) && !unicode.IsDigit(c) && c < 0x80 {
					break
				}
				i++
			}
			name := src[start:i]
			if strings.HasSuffix(name, ".") || strings.Contains(name, "..") {
				return nil, fmt.Errorf("offset %v: malformed name %q", start, name)
			}
			toks = append(toks, token{kind: tokName, text: name, pos: start})
		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(src) && (src[i] == '.' || src[i] == '_' || src[i] == 'x' || src[i] == 'e' ||
				(src[i] >= '0' && src[i] <= '9') || (src[i] >= 'a' && src[i] <= 'f')) {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case c == '\'' || c == '"':
			start := i
			quote := src[i]
			i++
			var b strings.Builder
			for {
				if i >= len(src) {
					return nil, fmt.Errorf("offset %v: unterminated string", start)
				}
				if src[i] == '\\' && i+1 < len(src) {
					b.WriteByte(src[i+1])
					i += 2
					continue
				}
				if src[i] == quote {
					i++
					break
				}
				b.WriteByte(src[i])
				i++
			}
			toks = append(toks, token{kind: tokString, text: b.String(), pos: start})
		case strings.HasPrefix(src[i:], "..."):
			toks = append(toks, token{kind: tokPunct, text: "...", pos: i})
			i += 3
		case strings.ContainsRune("[](),|", c):
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("offset %v: unexpected character %q", i, c)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

// unwrapReprs removes the decorations Python puts around runtime type
// reprs, e.g. "<class 'int'>" or "<enum 'Color'>".
func unwrapReprs(s string) string {
	s = strings.TrimSpace(s)
	for _, pfx := range []string{"<class '", "<enum '"} {
		if inner, ok := strings.CutPrefix(s, pfx); ok {
			if inner, ok := strings.CutSuffix(inner, "'>"); ok {
				return inner
			}
		}
	}
	return s
}

// ParseExpr parses Python annotation text.
func ParseExpr(src string) (*Expr, error) {
	toks, err := tokenize(unwrapReprs(src))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", src, err)
	}

	i := 0 // current token index
	errorHere := func(format string, args ...any) error {
		var context string
		if toks[i].kind == tokEOF {
			context = "at end of input"
		} else {
			context = "at " + strconv.Quote(toks[i].text)
		}
		return fmt.Errorf("parse %q: offset %v: %v: %w", src, toks[i].pos, context, fmt.Errorf(format, args...))
	}
	isPunct := func(s string) bool {
		return toks[i].kind == tokPunct && toks[i].text == s
	}

	var parseUnion func(depth int) (*Expr, error)
	// parseList parses comma separated expressions up to and including
	// the closing token.
	parseList := func(depth int, closing string) ([]*Expr, error) {
		var res []*Expr
		for !isPunct(closing) {
			e, err := parseUnion(depth + 1)
			if err != nil {
				return nil, err
			}
			res = append(res, e)
			if isPunct(",") {
				i++
			} else if !isPunct(closing) {
				return nil, errorHere("expected %q or \",\"", closing)
			}
		}
		i++
		return res, nil
	}
	parseAtom := func(depth int) (*Expr, error) {
		if depth > maxDepth {
			return nil, errorHere("nesting too deep")
		}
		tok := toks[i]
		switch tok.kind {
		case tokName:
			i++
			e := &Expr{Kind: ExprName, Text: tok.text}
			if isPunct("[") {
				i++
				args, err := parseList(depth, "]")
				if err != nil {
					return nil, err
				}
				e.Args = args
				e.Subscripted = true
			}
			return e, nil
		case tokString:
			i++
			return &Expr{Kind: ExprString, Text: tok.text}, nil
		case tokNumber:
			i++
			return &Expr{Kind: ExprNumber, Text: tok.text}, nil
		case tokPunct:
			switch tok.text {
			case "...":
				i++
				return &Expr{Kind: ExprEllipsis}, nil
			case "[":
				i++
				args, err := parseList(depth, "]")
				if err != nil {
					return nil, err
				}
				return &Expr{Kind: ExprList, Args: args}, nil
			case "(":
				i++
				args, err := parseList(depth, ")")
				if err != nil {
					return nil, err
				}
				switch len(args) {
				case 0:
					return &Expr{Kind: ExprEmptyTuple}, nil
				case 1:
					return args[0], nil
				default:
					return nil, errorHere("unexpected parenthesized tuple")
				}
			}
		}
		return nil, errorHere("expected type")
	}
	parseUnion = func(depth int) (*Expr, error) {
		first, err := parseAtom(depth)
		if err != nil {
			return nil, err
		}
		if !isPunct("|") {
			return first, nil
		}
		u := &Expr{Kind: ExprUnion, Args: []*Expr{first}}
		for isPunct("|") {
			i++
			e, err := parseAtom(depth)
			if err != nil {
				return nil, err
			}
			u.Args = append(u.Args, e)
		}
		return u, nil
	}

	e, err := parseUnion(0)
	if err != nil {
		return nil, err
	}
	if toks[i].kind != tokEOF {
		return nil, errorHere("unexpected trailing input")
	}
	return e, nil
}
