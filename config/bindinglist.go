package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/refaktor/pybindgen/textutils"
)

// BindingList is a per-binding override file. Bindings are qualified
// Python paths. [enabled] and [disabled] switch bindings on and off,
// "name => new_name" renames one, and [export] forces a private binding
// or one left out of __all__ to be emitted.
type BindingList struct {
	Enabled map[string]bool
	Renames map[string]string
	Export  map[string]struct{}
}

func NewBindingList() *BindingList {
	return &BindingList{
		Enabled: make(map[string]bool),
		Renames: make(map[string]string),
		Export:  make(map[string]struct{}),
	}
}

var bindingSections = map[string]section{
	"[export]":   sectionExport,
	"[enabled]":  sectionEnabled,
	"[disabled]": sectionDisabled,
}

type section int

const (
	sectionNone section = iota
	sectionExport
	sectionEnabled
	sectionDisabled
)

func LoadBindingListFromFile(filename string) (*BindingList, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bl, err := ParseBindingList(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return bl, nil
}

// ParseBindingList reads a binding list. The quoted docstring column
// written by SaveToFile is ignored.
func ParseBindingList(r io.Reader) (*BindingList, error) {
	res := NewBindingList()
	curr := sectionNone
	sc := bufio.NewScanner(r)
	for lineNum := 1; sc.Scan(); lineNum++ {
		line, _, _ := strings.Cut(sc.Text(), `"`)
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			s, ok := bindingSections[line]
			if !ok {
				return nil, fmt.Errorf("line %v: invalid section name %v", lineNum, line)
			}
			curr = s
			continue
		}
		if err := res.add(curr, line); err != nil {
			return nil, fmt.Errorf("line %v: %w", lineNum, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// add records the entry "name" or "name => rename" of section s.
func (bl *BindingList) add(s section, entry string) error {
	name, rename, hasRename := strings.Cut(entry, "=>")
	name, rename = strings.TrimSpace(name), strings.TrimSpace(rename)
	switch {
	case s == sectionNone:
		return fmt.Errorf("expected binding name %q to be under a section ([enabled], [disabled], or [export])", name)
	case name == "" || strings.ContainsFunc(name, unicode.IsSpace):
		return fmt.Errorf("expected one binding name in %q", entry)
	case !hasRename:
	case s == sectionExport:
		return errors.New(`rename ("=>") not allowed in [export] section`)
	case rename == "" || strings.ContainsFunc(rename, unicode.IsSpace):
		return errors.New(`expected one new name after "=>" (rename)`)
	case strings.Contains(rename, "."):
		return errors.New(`rename string cannot contain "."; give the new local name only`)
	default:
		bl.Renames[name] = rename
	}

	if s == sectionExport {
		bl.Export[name] = struct{}{}
		return nil
	}
	enabled := s == sectionEnabled
	if v, ok := bl.Enabled[name]; ok && v != enabled {
		return fmt.Errorf("cannot have binding %q in both [enabled] and [disabled] sections", name)
	}
	bl.Enabled[name] = enabled
	return nil
}

// firstLine returns the first line of a docstring.
func firstLine(doc string) string {
	line, _, _ := strings.Cut(textutils.CleanDoc(doc), "\n")
	return line
}

// SaveToFile writes the list, adding every binding in docs that isn't
// listed yet to [enabled]. Bindings no longer in docs are dropped.
func (bl *BindingList) SaveToFile(filename string, docs map[string]string) error {
	var enabled, disabled []string
	for _, name := range slices.Sorted(maps.Keys(docs)) {
		if on, ok := bl.Enabled[name]; on || !ok {
			enabled = append(enabled, name)
		} else {
			disabled = append(disabled, name)
		}
	}

	var res bytes.Buffer
	fmt.Fprintln(&res, "# This file contains a list of bindings, which can be enabled/disabled by placing them under the according section.")
	fmt.Fprintln(&res, "# Re-run pybindgen to update and sort the list.")
	fmt.Fprintln(&res, "# Renaming a binding: e.g. `demo.answer => ask` or `demo.Config.load => from_file`")
	fmt.Fprintln(&res, "# Bindings placed in the export section are emitted even if private or left out of __all__.")
	bl.writeSection(&res, "[export]", slices.Sorted(maps.Keys(bl.Export)), docs, false)
	bl.writeSection(&res, "[enabled]", enabled, docs, true)
	bl.writeSection(&res, "[disabled]", disabled, docs, true)
	return os.WriteFile(filename, res.Bytes(), 0o666)
}

// writeSection writes one entry per line, with the first docstring line
// quoted in an aligned second column.
func (bl *BindingList) writeSection(w *bytes.Buffer, title string, names []string, docs map[string]string, renames bool) {
	entries := make([]string, len(names))
	width := 0
	for i, name := range names {
		entries[i] = name
		if rename, ok := bl.Renames[name]; ok && renames {
			entries[i] += " => " + rename
		}
		width = max(width, len(entries[i]))
	}

	fmt.Fprintf(w, "\n%v\n", title)
	for i, entry := range entries {
		doc := firstLine(docs[names[i]])
		if doc == "" {
			fmt.Fprintln(w, entry)
			continue
		}
		fmt.Fprintf(w, "%-*v %v\n", width, entry, strconv.Quote(doc))
	}
}
