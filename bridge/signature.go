package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// ParseSignature parses a textual Python signature such as
//
//	(a, b: int = 3, /, *args, c: str, **kw) -> list[int]
//
// as produced by str(inspect.signature(f)) or __text_signature__.
func ParseSignature(text string) (*Signature, error) {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "(") {
		return nil, fmt.Errorf("parse signature %q: expected '('", text)
	}
	end := matchingClose(s, 0)
	if end == -1 {
		return nil, fmt.Errorf("parse signature %q: unbalanced parentheses", text)
	}

	sig := &Signature{}
	if rest := strings.TrimSpace(s[end+1:]); rest != "" {
		ret, ok := strings.CutPrefix(rest, "->")
		if !ok {
			return nil, fmt.Errorf("parse signature %q: unexpected %q after parameters", text, rest)
		}
		sig.Return = strings.TrimSpace(ret)
	}

	kind := ParamPositionalOrKeyword
	for _, field := range splitTopLevel(s[1:end], ',') {
		field = strings.TrimSpace(field)
		switch {
		case field == "":
			continue
		case field == "/":
			for i := range sig.Params {
				sig.Params[i].Kind = ParamPositionalOnly
			}
			continue
		case field == "*":
			kind = ParamKeywordOnly
			continue
		}

		p := Param{Kind: kind}
		switch {
		case strings.HasPrefix(field, "**"):
			p.Kind = ParamVarKeyword
			field = field[2:]
		case strings.HasPrefix(field, "*"):
			p.Kind = ParamVarPositional
			kind = ParamKeywordOnly
			field = field[1:]
		}

		if i := indexTopLevel(field, '='); i != -1 {
			p.HasDefault = true
			field = field[:i]
		}
		if i := indexTopLevel(field, ':'); i != -1 {
			p.Annotation = strings.TrimSpace(field[i+1:])
			field = field[:i]
		}
		// Builtins mark the bound argument as "$self".
		p.Name = strings.TrimPrefix(strings.TrimSpace(field), "$")
		if p.Name == "" {
			return nil, fmt.Errorf("parse signature %q: empty parameter name", text)
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

var errUnbalanced = errors.New("unbalanced brackets")

// matchingClose returns the index of the bracket closing the one at
// s[open], or -1.
func matchingClose(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// scanTopLevel calls fn for every byte of s outside of brackets and
// string literals. fn returns false to stop.
func scanTopLevel(s string, fn func(i int) bool) error {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			continue
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return errUnbalanced
			}
			continue
		}
		if depth == 0 && !fn(i) {
			return nil
		}
	}
	return nil
}

func splitTopLevel(s string, sep byte) []string {
	var res []string
	start := 0
	_ = scanTopLevel(s, func(i int) bool {
		if s[i] == sep {
			res = append(res, s[start:i])
			start = i + 1
		}
		return true
	})
	return append(res, s[start:])
}

// indexTopLevel finds sep outside of brackets. For '=' comparison
// operators ("==", "<=", ">=", "!=") are not matches.
func indexTopLevel(s string, sep byte) int {
	idx := -1
	_ = scanTopLevel(s, func(i int) bool {
		if s[i] != sep {
			return true
		}
		if sep == '=' {
			if i+1 < len(s) && s[i+1] == '=' {
				return true
			}
			if i > 0 && strings.IndexByte("=<>!", s[i-1]) != -1 {
				return true
			}
		}
		idx = i
		return false
	})
	return idx
}
