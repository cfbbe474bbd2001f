package textutils

import (
	"strings"
)

var asciiSpace = [256]bool{'\t': true, '\n': true, '\v': true, '\f': true, '\r': true, ' ': true}

func isBlank(line string) bool {
	for i := 0; i < len(line); i++ {
		if !asciiSpace[line[i]] {
			return false
		}
	}
	return true
}

// Prepends indent nIndent times to each line beginning in s.
// Lines consisting only of whitespace are emptied.
func IndentString(s string, indent string, nIndent int) string {
	var res strings.Builder
	res.Grow(len(s) + (strings.Count(s, "\n")+1)*nIndent*len(indent))

	prefix := strings.Repeat(indent, nIndent)
	for len(s) > 0 {
		line, rest, hitNewline := strings.Cut(s, "\n")
		if !isBlank(line) {
			res.WriteString(prefix)
			res.WriteString(line)
		}
		if hitNewline {
			res.WriteByte('\n')
		}
		s = rest
	}
	return res.String()
}

// NormalizeNewlines converts "\r\n" and lone "\r" line endings to "\n".
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// CleanDoc normalizes a docstring: line endings become "\n", tabs
// expand to 8 columns, the common indentation of all lines after the
// first is removed, and leading and trailing blank lines are dropped.
func CleanDoc(doc string) string {
	lines := strings.Split(NormalizeNewlines(doc), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(expandTabs(l), " \t\v\f")
	}
	lines[0] = strings.TrimLeft(lines[0], " ")

	margin := -1
	for _, l := range lines[1:] {
		if l == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " "))
		if margin == -1 || n < margin {
			margin = n
		}
	}
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			}
		}
	}

	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := 8 - col%8
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

// Bytes Go source can't contain anywhere, and a byte order mark, which
// is only allowed as the first character of a file.
var commentReplacer = strings.NewReplacer("\x00", "\uFFFD", "\uFEFF", "\uFFFD")

// CommentLines renders text as a block of "//" line comments, one per
// line, each prefixed by indent. Empty lines become a bare "//".
// Invalid UTF-8 and characters a Go scanner rejects become U+FFFD.
func CommentLines(text, indent string) string {
	if text == "" {
		return ""
	}
	text = commentReplacer.Replace(strings.ToValidUTF8(text, "\uFFFD"))
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(indent)
		if line == "" {
			b.WriteString("//\n")
			continue
		}
		b.WriteString("// ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
