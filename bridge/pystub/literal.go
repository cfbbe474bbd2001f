package pystub

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/refaktor/pybindgen/bridge"
)

// splitString splits the text of a Python string literal into its
// lowercased prefix and the content between the quotes.
func splitString(text string) (prefix, content string, ok bool) {
	i := strings.IndexAny(text, `'"`)
	if i == -1 {
		return "", "", false
	}
	prefix, body := strings.ToLower(text[:i]), text[i:]
	q := body[:1]
	if strings.HasPrefix(body, q+q+q) && len(body) >= 6 {
		q = q + q + q
	}
	if len(body) < 2*len(q) || !strings.HasSuffix(body, q) {
		return "", "", false
	}
	return prefix, body[len(q) : len(body)-len(q)], true
}

// unquote decodes a Python string literal. It fails for f-strings.
func unquote(text string) (s string, isBytes, ok bool) {
	prefix, content, ok := splitString(text)
	if !ok || strings.Contains(prefix, "f") {
		return "", false, false
	}
	isBytes = strings.Contains(prefix, "b")
	if strings.Contains(prefix, "r") {
		return content, isBytes, true
	}
	return unescape(content, isBytes), isBytes, true
}

var hexDigits = map[byte]int{'x': 2, 'u': 4, 'U': 8}

func isOctal(c byte) bool { return '0' <= c && c <= '7' }

// unescape resolves the backslash escapes of a non-raw literal. Unknown
// escapes are kept verbatim, like Python does.
func unescape(s string, isBytes bool) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch e := s[i]; e {
		case '\n':
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\\', '\'', '"':
			b.WriteByte(e)
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'v':
			b.WriteByte('\v')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && isOctal(s[j]) {
				j++
			}
			v, _ := strconv.ParseUint(s[i:j], 8, 32)
			writeCode(&b, rune(v), isBytes)
			i = j - 1
		case 'x', 'u', 'U':
			n := hexDigits[e]
			if e != 'x' && isBytes || i+1+n > len(s) {
				b.WriteByte('\\')
				b.WriteByte(e)
				continue
			}
			v, err := strconv.ParseUint(s[i+1:i+1+n], 16, 32)
			if err != nil {
				b.WriteByte('\\')
				b.WriteByte(e)
				continue
			}
			writeCode(&b, rune(v), isBytes)
			i += n
		default:
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
	return b.String()
}

func writeCode(b *strings.Builder, r rune, isBytes bool) {
	if isBytes || r < utf8.RuneSelf {
		b.WriteByte(byte(r))
		return
	}
	b.WriteRune(r)
}

// formatFloat formats v the way Python's repr spells special values.
func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// number converts the text of an integer or float literal. Imaginary
// literals become complex values.
func number(text string, negative bool) bridge.Value {
	t := strings.ToLower(strings.ReplaceAll(text, "_", ""))
	if im, ok := strings.CutSuffix(t, "j"); ok {
		v, err := strconv.ParseFloat(im, 64)
		if err != nil {
			return bridge.Value{Kind: bridge.LiteralOpaque, Type: "complex"}
		}
		if negative {
			v = -v
		}
		return bridge.Value{Kind: bridge.LiteralComplex, Text: "0," + formatFloat(v), Type: "complex"}
	}
	if !strings.ContainsAny(t, ".e") || strings.HasPrefix(t, "0x") {
		var n big.Int
		if _, ok := n.SetString(t, 0); ok {
			if negative {
				n.Neg(&n)
			}
			return bridge.Value{Kind: bridge.LiteralInt, Text: n.String(), Type: "int"}
		}
		// Leading zeros like "007" aren't accepted with base 0.
		if _, ok := n.SetString(t, 10); ok && strings.Trim(t, "0") == "" {
			return bridge.Value{Kind: bridge.LiteralInt, Text: "0", Type: "int"}
		}
		return bridge.Value{Kind: bridge.LiteralOpaque, Type: "int"}
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil && v == 0 {
		return bridge.Value{Kind: bridge.LiteralOpaque, Type: "float"}
	}
	if negative {
		v = -v
	}
	return bridge.Value{Kind: bridge.LiteralFloat, Text: formatFloat(v), Type: "float"}
}
