package pybindgen

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/bridge/bridgetest"
	"github.com/refaktor/pybindgen/config"
	"github.com/refaktor/pybindgen/ir"
)

func demo() *bridgetest.Fake {
	f := bridgetest.New()
	demo := f.Module("demo", "Demo module.")
	demo.Function("answer", "(question: str) -> int", "Returns answer to question.")
	demo.Function("_hidden", "() -> None", "")
	demo.Constant("VERSION", bridge.Value{Kind: bridge.LiteralStr, Text: "1.2.3"}, "")
	cfg := demo.Class("Config", "Configuration.")
	cfg.Property("timeout", "int", true, "Timeout in seconds.")
	cfg.Method("__init__", bridge.BindingInstance, "(self, timeout: int = 3)", "")
	cfg.Method("load", bridge.BindingStatic, "(path: str) -> Config", "")
	return f
}

func TestGenerate(t *testing.T) {
	require := require.New(t)

	res, err := Generate(context.Background(), demo(), Options{Modules: []string{"demo"}, Recurse: true})
	require.NoError(err)
	src := string(res.Source)

	require.Equal("demo", res.Package)
	require.NotNil(res.File)
	require.Contains(src, "func Answer(question string) (int64, error) {")
	require.Contains(src, `const Version string = "1.2.3"`)
	require.Contains(src, "type Config struct {")
	require.Contains(src, "func (o Config) Timeout() (int64, error) {")
	require.NotContains(src, "_hidden")
	require.Empty(res.Diagnostics)
	require.Nil(res.Bindings)

	require.Equal(1, res.Counts[ir.KindModule])
	require.Equal(1, res.Counts[ir.KindClass])
	require.Equal(1, res.Counts[ir.KindConstant])
	require.Equal(1, res.Counts[ir.KindProperty])

	var phases []string
	for _, tm := range res.Timings {
		phases = append(phases, tm.Phase)
	}
	require.Equal([]string{"introspect", "build", "generate"}, phases)
}

func TestGenerateDeterministic(t *testing.T) {
	require := require.New(t)

	a, err := Generate(context.Background(), demo(), Options{Modules: []string{"demo"}, Jobs: 4})
	require.NoError(err)
	b, err := Generate(context.Background(), demo(), Options{Modules: []string{"demo"}, Jobs: 1})
	require.NoError(err)
	require.Equal(string(a.Source), string(b.Source))
}

func TestGenerateEntryError(t *testing.T) {
	require := require.New(t)

	f := demo()
	f.FailImport("broken", "boom")
	_, err := Generate(context.Background(), f, Options{Modules: []string{"demo", "broken"}})
	var entryErr *EntryError
	require.ErrorAs(err, &entryErr)
	require.Equal("broken", entryErr.Module)
	require.True(bridge.IsImportError(err))

	_, err = Generate(context.Background(), f, Options{})
	require.Error(err)
}

func TestGenerateOptionErrors(t *testing.T) {
	require := require.New(t)

	_, err := Generate(context.Background(), demo(), Options{Modules: []string{"demo"}, ExtensionTypes: []string{"torch"}})
	require.ErrorContains(err, `unknown extension type "torch"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Generate(ctx, demo(), Options{Modules: []string{"demo"}})
	require.ErrorIs(err, context.Canceled)
}

func TestGenerateRules(t *testing.T) {
	require := require.New(t)

	exclude := false
	var rename, drop config.Rule
	rename.Select.Name = regexp.MustCompile(`answer`)
	rename.Actions.Rename = "ask"
	drop.Select.Type = "constant"
	drop.Actions.Include = &exclude

	res, err := Generate(context.Background(), demo(), Options{
		Modules: []string{"demo"},
		Rules:   []config.Rule{rename, drop},
	})
	require.NoError(err)
	src := string(res.Source)
	require.Contains(src, "func Ask(question string) (int64, error) {")
	require.Contains(src, `callFunc("demo", []string{"answer"}`)
	require.NotContains(src, "Version")
	require.Zero(res.Counts[ir.KindConstant])
}

func TestGenerateBindingList(t *testing.T) {
	require := require.New(t)

	bl := config.NewBindingList()
	bl.Enabled["demo.answer"] = false
	bl.Enabled["demo.gone"] = true
	bl.Renames["demo.Config.load"] = "from_file"
	bl.Export["demo._hidden"] = struct{}{}

	var logs bytes.Buffer
	res, err := Generate(context.Background(), demo(), Options{
		Modules:     []string{"demo"},
		BindingList: bl,
		Logger:      &Logger{Writer: &logs},
	})
	require.NoError(err)
	src := string(res.Source)
	require.NotContains(src, "func Answer(")
	require.Contains(src, "func ConfigFromFile(path string) (Config, error) {")
	require.Contains(src, `callFunc("demo", []string{"_hidden"}`)
	require.Empty(logs.String())

	require.Contains(res.Bindings, "demo.answer")
	require.Contains(res.Bindings, "demo._hidden")
	require.Equal("Returns answer to question.", res.Bindings["demo.answer"])
	require.NotContains(res.Bindings, "demo")
	require.NotContains(res.Bindings, "demo.gone")

	path := filepath.Join(t.TempDir(), "bindings.txt")
	require.NoError(bl.SaveToFile(path, res.Bindings))
	reloaded, err := config.LoadBindingListFromFile(path)
	require.NoError(err)
	require.False(reloaded.Enabled["demo.answer"])
	require.True(reloaded.Enabled["demo.VERSION"])
	require.Equal("from_file", reloaded.Renames["demo.Config.load"])
}

func TestGenerateBindingListUnknown(t *testing.T) {
	require := require.New(t)

	bl := config.NewBindingList()
	bl.Renames["demo.nope"] = "x"
	var logs bytes.Buffer
	_, err := Generate(context.Background(), demo(), Options{
		Modules:     []string{"demo"},
		BindingList: bl,
		Logger:      &Logger{Writer: &logs},
	})
	require.NoError(err)
	require.Equal("WARNING: binding list: unknown binding demo.nope\n", logs.String())
}

const geometry = `"""Geometry helpers."""

ORIGIN_NAME = "origin"


def distance(x: float, y: float = 0.0) -> float:
    """Distance from the origin."""
    return (x * x + y * y) ** 0.5


class Point:
    """A point in the plane."""

    def __init__(self, x: float, y: float) -> None:
        self.x = x
        self.y = y

    @property
    def norm(self) -> float:
        return distance(self.x, self.y)
`

func TestGenerateFromSource(t *testing.T) {
	require := require.New(t)

	res, err := GenerateFromSource(context.Background(), geometry, "geometry", Options{})
	require.NoError(err)
	src := string(res.Source)

	require.Equal("geometry", res.Package)
	require.Contains(src, "// Package geometry binds the Python module geometry.\n//\n// Geometry helpers.\npackage geometry\n")
	require.Contains(src, `const OriginName string = "origin"`)
	require.Contains(src, "// Distance from the origin.\nfunc Distance(x float64, y *float64) (float64, error) {")
	require.Contains(src, "type Point struct {")
	require.Contains(src, "func NewPoint(x float64, y float64) (Point, error) {")
	require.Contains(src, "func (o Point) Norm() (float64, error) {")
	require.NotContains(src, "SetNorm")
}

func TestGenerateFromSourceSyntaxError(t *testing.T) {
	require := require.New(t)

	_, err := GenerateFromSource(context.Background(), "def broken(:\n", "broken", Options{})
	require.Error(err)
	require.True(bridge.IsImportError(err))
}

func TestWriteFile(t *testing.T) {
	require := require.New(t)

	res, err := Generate(context.Background(), demo(), Options{Modules: []string{"demo"}})
	require.NoError(err)

	dir := t.TempDir()
	path := filepath.Join(dir, "demo.go")
	require.NoError(os.WriteFile(path, []byte("old"), 0o644))
	require.NoError(res.WriteFile(path))

	got, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal(res.Source, got)

	entries, err := os.ReadDir(dir)
	require.NoError(err)
	require.Len(entries, 1)

	require.Error(res.WriteFile(filepath.Join(dir, "missing", "demo.go")))

	// A failed rename leaves no temporary file behind.
	taken := filepath.Join(dir, "taken.go")
	require.NoError(os.MkdirAll(filepath.Join(taken, "sub"), 0o755))
	require.Error(res.WriteFile(taken))
	entries, err = os.ReadDir(dir)
	require.NoError(err)
	require.Len(entries, 2)
}

func TestOptionsFromConfig(t *testing.T) {
	require := require.New(t)

	c := config.Default()
	c.Modules = []string{"demo"}
	c.Output = "out/demo.go"
	c.ExcludeModules = []config.Glob{config.MustCompileGlob("demo.tests.**")}
	opts := OptionsFromConfig(c)
	require.True(opts.Recurse)
	require.Equal("demo.go", opts.Filename)
	require.True(opts.ModuleFilter("demo.sub"))
	require.False(opts.ModuleFilter("demo.tests.unit"))

	c.Output = "-"
	require.Empty(OptionsFromConfig(c).Filename)
}

func TestLogger(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	l := &Logger{Writer: &buf, Prefix: "pybindgen", MinLevel: WARN}
	l.Infof("hidden")
	l.Warnf("skipped %v", "demo.x")
	l.Errorf("first\nsecond")
	require.Equal("pybindgen WARNING: skipped demo.x\npybindgen ERROR:\n  first\n  second\n", buf.String())

	var nilLogger *Logger
	nilLogger.Warnf("no panic")
}
