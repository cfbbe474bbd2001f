package rules

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refaktor/pybindgen/config"
)

func rule(module, class, name, typ string) config.Rule {
	var r config.Rule
	if module != "" {
		g := config.MustCompileGlob(module)
		r.Select.Module = &g
	}
	if class != "" {
		r.Select.Class = regexp.MustCompile(class)
	}
	if name != "" {
		r.Select.Name = regexp.MustCompile(name)
	}
	r.Select.Type = typ
	return r
}

var syms = []Symbol{
	{Path: "demo.get_answer", Module: "demo", Name: "get_answer", Type: SymbolFunc},
	{Path: "demo.Config", Module: "demo", Name: "Config", Type: SymbolClass},
	{Path: "demo.Config.get_timeout", Module: "demo", Class: "Config", Name: "get_timeout", Type: SymbolMethod},
	{Path: "demo.sub.helper", Module: "demo.sub", Name: "helper", Type: SymbolFunc},
}

func TestExecute(t *testing.T) {
	require := require.New(t)

	rename := rule("", "", "get_(.*)", "")
	rename.Actions.Rename = `fetch_\1`

	classRename := rule("", "(Con)fig", "fetch_(.*)", "method")
	classRename.Actions.Rename = `\1_\2`

	exclude := rule("demo.*", "", "", "func")
	f := false
	exclude.Actions.Include = &f

	casing := rule("", "", "", "class")
	casing.Actions.ToCasing = "snake"

	names, included, err := Execute([]config.Rule{rename, classRename, exclude, casing}, syms)
	require.NoError(err)
	require.Equal(map[string]string{
		"demo.get_answer":         "fetch_answer",
		"demo.Config":             "config",
		"demo.Config.get_timeout": "Con_timeout",
		"demo.sub.helper":         "helper",
	}, names)
	require.Equal(map[string]bool{
		"demo.get_answer":         true,
		"demo.Config":             true,
		"demo.Config.get_timeout": true,
		"demo.sub.helper":         false,
	}, included)
}

func TestExecuteErrors(t *testing.T) {
	require := require.New(t)

	_, _, err := Execute([]config.Rule{rule("", "", "", "widget")}, syms)
	require.ErrorContains(err, "unknown symbol type")

	bad := rule("", "", "", "")
	bad.Actions.ToCasing = "shouty"
	_, _, err = Execute([]config.Rule{bad}, syms)
	require.ErrorContains(err, "unknown casing")

	_, _, err = Execute(nil, append(syms, syms[0]))
	require.ErrorContains(err, "duplicate")
}

func TestSymbolType(t *testing.T) {
	require := require.New(t)

	typ, ok := SymbolTypeFromString("constructor")
	require.True(ok)
	require.Equal(SymbolConstructor, typ)
	require.Equal("Constructor", typ.String())
	_, ok = SymbolTypeFromString("getter")
	require.False(ok)
}
