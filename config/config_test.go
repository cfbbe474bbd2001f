package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o666))
	return path
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	writeFile(t, dir, "base.toml", `
modules = ["base"]
exclude-modules = ["**.tests"]

[[rule]]
select.name = "get_(.*)"
action.rename = "\\1"
`)
	path := writeFile(t, dir, "pybindgen.toml", `
imports = ["base.toml"]
modules = ["demo"]
package = "demo"
include-private = true
extension-types = ["numpy"]
include-modules = ["demo", "demo.*"]

[[rule]]
select.module = "demo.**"
select.type = "func"
action.include = false
`)

	c, err := Load(path)
	require.NoError(err)
	require.Equal([]string{"demo", "base"}, c.Modules)
	require.Equal("demo", c.Package)
	require.True(c.IncludePrivate)
	require.True(*c.Recurse)
	require.Equal(BridgePython, c.Bridge)
	require.Equal("python3", c.Python)
	require.Len(c.Rules, 2)
	require.True(c.Rules[0].Select.Module.Match("demo.sub.x"))
	require.False(*c.Rules[0].Actions.Include)
	require.Equal(`\1`, c.Rules[1].Actions.Rename)
	require.Equal("get_(.*)", c.Rules[1].Select.Name.String())

	filter := c.ModuleFilter()
	require.True(filter("demo"))
	require.True(filter("demo.sub"))
	require.False(filter("demo.sub.deep"))
	require.False(filter("other"))
	require.False(filter("demo.tests"))
}

func TestLoadErrors(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	var cErr *Error

	_, err := Load(writeFile(t, dir, "unknown.toml", "modulez = [\"x\"]\n"))
	require.ErrorAs(err, &cErr)
	require.Contains(cErr.String(), "Error in file")

	_, err = Load(writeFile(t, dir, "syntax.toml", "modules = [\n"))
	require.ErrorAs(err, &cErr)

	_, err = Load(writeFile(t, dir, "bridge.toml", "bridge = \"ruby\"\n"))
	require.ErrorContains(err, "unknown bridge")

	_, err = Load(writeFile(t, dir, "casing.toml", "[[rule]]\naction.to-casing = \"shouty\"\n"))
	require.ErrorContains(err, "unknown casing")

	_, err = Load(writeFile(t, dir, "glob.toml", "exclude-modules = [\"[\"]\n"))
	require.ErrorAs(err, &cErr)

	a := writeFile(t, dir, "a.toml", "imports = [\"b.toml\"]\n")
	writeFile(t, dir, "b.toml", "imports = [\"a.toml\"]\n")
	_, err = Load(a)
	require.ErrorContains(err, "import cycle")

	_, err = Load(filepath.Join(dir, "missing.toml"))
	require.True(errors.Is(err, os.ErrNotExist))
}

func TestBindingList(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := writeFile(t, dir, "bindings.txt", `
# comment
[export]
demo._private

[enabled]
demo.answer => ask "Returns answer to question."
demo.Config

[disabled]
demo.internal "Old doc."
`)
	bl, err := LoadBindingListFromFile(path)
	require.NoError(err)
	require.Equal(map[string]bool{"demo.answer": true, "demo.Config": true, "demo.internal": false}, bl.Enabled)
	require.Equal(map[string]string{"demo.answer": "ask"}, bl.Renames)
	require.Contains(bl.Export, "demo._private")

	require.NoError(bl.SaveToFile(path, map[string]string{
		"demo.answer":   "Returns answer to question.\n\nMore.",
		"demo.internal": "",
		"demo.new":      "New.",
	}))
	got, err := os.ReadFile(path)
	require.NoError(err)
	require.Contains(string(got), `demo.answer => ask "Returns answer to question."`)
	require.Contains(string(got), "[disabled]\ndemo.internal\n")
	require.Contains(string(got), "demo.new")
	require.NotContains(string(got), "demo.Config")

	bl2, err := LoadBindingListFromFile(path)
	require.NoError(err)
	require.Equal(map[string]bool{"demo.answer": true, "demo.new": true, "demo.internal": false}, bl2.Enabled)
	require.Equal(bl.Renames, bl2.Renames)
}

func TestBindingListErrors(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"nosection.txt": "demo.a\n",
		"badsection.txt": "[other]\n",
		"both.txt":       "[enabled]\ndemo.a\n[disabled]\ndemo.a\n",
		"export.txt":     "[export]\ndemo.a => b\n",
		"norename.txt":   "[enabled]\ndemo.a =>\n",
		"dotted.txt":     "[enabled]\ndemo.a => x.y\n",
		"spaced.txt":     "[enabled]\ndemo.a => x y\n",
		"twonames.txt":   "[enabled]\ndemo.a demo.b\n",
	} {
		_, err := LoadBindingListFromFile(writeFile(t, dir, name, content))
		require.Error(t, err, name)
	}
}

func TestParseBindingList(t *testing.T) {
	require := require.New(t)

	bl, err := ParseBindingList(strings.NewReader("[enabled]\ndemo.answer    \"Maps a => b.\"\ndemo.load => from_file \"Loads.\"\n"))
	require.NoError(err)
	require.Equal(map[string]bool{"demo.answer": true, "demo.load": true}, bl.Enabled)
	require.Equal(map[string]string{"demo.load": "from_file"}, bl.Renames)

	_, err = ParseBindingList(strings.NewReader("# header\n\n[disabled]\ndemo.a =>\n"))
	require.EqualError(err, `line 4: expected one new name after "=>" (rename)`)
}
