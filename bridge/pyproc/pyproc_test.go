package pyproc

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/introspect"
)

const demoInit = `"""Demo module."""
import os

print("noise on import")

VERSION = "1.2.3"
MAX = 10
RATIO = 0.5


def answer(question: str) -> int:
    """Returns answer to question."""
    return 42


class Config:
    """Configuration."""

    def __init__(self, timeout: int = 3):
        self._timeout = timeout

    @property
    def timeout(self) -> int:
        return self._timeout

    @timeout.setter
    def timeout(self, v):
        self._timeout = v

    @staticmethod
    def load(path: str, /, *, strict: bool = False) -> "Config":
        return Config()

    @classmethod
    def default(cls) -> "Config":
        return cls()
`

func start(t *testing.T) (*Process, string) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "demo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo", "__init__.py"), []byte(demoInit), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo", "util.py"), []byte("def helper(*args, **kwargs):\n    pass\n"), 0o644))

	p, err := Start(context.Background(), Options{Paths: []string{dir}, QuietStdout: true})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, dir
}

func TestProcessDescribe(t *testing.T) {
	p, _ := start(t)
	require := require.New(t)

	require.NotEmpty(p.Version())

	h, err := p.Import("demo")
	require.NoError(err)
	desc, err := p.Describe(h)
	require.NoError(err)
	require.Equal(bridge.KindModule, desc.Kind)
	require.Equal("demo", desc.Module)
	require.True(desc.Package)
	require.Equal([]string{"util"}, desc.Submodules)
	require.Equal("Demo module.", desc.Doc)

	members, err := p.MembersOf(h)
	require.NoError(err)
	byName := map[string]bridge.Handle{}
	for _, m := range members {
		byName[m.Name] = m.Handle
	}

	desc, err = p.Describe(byName["answer"])
	require.NoError(err)
	require.Equal(bridge.KindFunction, desc.Kind)
	require.Equal(&bridge.Signature{
		Params: []bridge.Param{{Name: "question", Kind: bridge.ParamPositionalOrKeyword, Annotation: "str"}},
		Return: "int",
	}, desc.Signature)

	desc, err = p.Describe(byName["MAX"])
	require.NoError(err)
	require.Equal(bridge.KindConstant, desc.Kind)
	require.Equal(&bridge.Value{Kind: bridge.LiteralInt, Text: "10", Type: "int"}, desc.Value)

	cfg, err := p.MembersOf(byName["Config"])
	require.NoError(err)
	for _, m := range cfg {
		desc, err := p.Describe(m.Handle)
		require.NoError(err)
		switch m.Name {
		case "load":
			require.Equal(bridge.KindMethod, desc.Kind)
			require.Equal(bridge.BindingStatic, desc.Binding)
			require.Equal(bridge.ParamPositionalOnly, desc.Signature.Params[0].Kind)
			require.Equal(bridge.ParamKeywordOnly, desc.Signature.Params[1].Kind)
			require.True(desc.Signature.Params[1].HasDefault)
		case "default":
			require.Equal(bridge.BindingClass, desc.Binding)
		case "timeout":
			require.Equal(bridge.KindProperty, desc.Kind)
			require.True(desc.Getter)
			require.True(desc.Setter)
			require.Equal("int", desc.Annotation)
		}
	}
}

func TestProcessImportError(t *testing.T) {
	p, _ := start(t)

	_, err := p.Import("no_such_module_here")
	require.True(t, bridge.IsImportError(err))

	_, err = p.Describe(99999)
	require.Error(t, err)
	require.False(t, bridge.IsImportError(err))
}

func TestProcessWalk(t *testing.T) {
	p, _ := start(t)
	require := require.New(t)

	res, err := introspect.Walk(p, []string{"demo"}, introspect.Options{Recurse: true})
	require.NoError(err)
	require.Equal([]string{"demo", "demo.util"}, res.Modules)
	var paths []string
	for _, it := range res.Items {
		paths = append(paths, it.Path)
	}
	require.Contains(paths, "demo.answer")
	require.Contains(paths, "demo.Config.load")
	require.Contains(paths, "demo.util.helper")
}

func TestProcessClosed(t *testing.T) {
	p, _ := start(t)
	require.NoError(t, p.Close())
	_, err := p.Import("demo")
	require.ErrorIs(t, err, bridge.ErrClosed)
}
