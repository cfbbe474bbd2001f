package introspect

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/bridge/bridgetest"
)

func paths(items []Item) []string {
	var res []string
	for _, it := range items {
		res = append(res, it.Path)
	}
	return res
}

func TestWalkBasic(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	demo := f.Module("demo", "Demo module.")
	demo.Function("answer", "(question: str) -> int", "Returns answer to question.")
	demo.Constant("VERSION", bridge.Value{Kind: bridge.LiteralStr, Text: "1.2.3"}, "")
	demo.Constant("_secret", bridge.Value{Kind: bridge.LiteralInt, Text: "42"}, "")
	cfg := demo.Class("Config", "")
	cfg.Property("timeout", "int", true, "")
	cfg.Method("__init__", bridge.BindingInstance, "(self, timeout: int = 3)", "")
	cfg.Method("__repr__", bridge.BindingInstance, "(self)", "")
	demo.Raw("__doc__", bridge.RawDescriptor{Kind: bridge.KindConstant})
	demo.Raw("T", bridge.RawDescriptor{Kind: bridge.KindTypeVar})
	demo.Raw("Optional", bridge.RawDescriptor{Kind: bridge.KindFunction, Module: "typing"})

	res, err := Walk(f, []string{"demo"}, Options{Recurse: true})
	require.NoError(err)
	require.NoError(res.Err())
	require.Equal([]string{"demo"}, res.Modules)
	require.Equal([]string{
		"demo",
		"demo.answer",
		"demo.VERSION",
		"demo._secret",
		"demo.Config",
		"demo.Config.timeout",
		"demo.Config.__init__",
	}, paths(res.Items))

	secret := res.Items[3]
	require.True(secret.Private)
	require.Equal("demo", secret.Module)

	timeout := res.Items[5]
	require.Equal("demo.Config", timeout.Owner)
	require.Equal(bridge.KindProperty, timeout.Desc.Kind)
}

func TestWalkCycleTerminates(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	a := pkg.Submodule("a", "")
	b := pkg.Submodule("b", "")
	// a imports b, b imports a, both reference the package.
	a.Attach("b", b)
	b.Attach("a", a)
	a.Attach("pkg", pkg)
	b.Attach("parent", pkg)
	// A package listing its own children again.
	pkg.Desc().Submodules = []string{"a", "b"}

	res, err := Walk(f, []string{"pkg", "pkg.a"}, Options{Recurse: true})
	require.NoError(err)
	require.Equal([]string{"pkg", "pkg.a", "pkg.b"}, res.Modules)
	for _, mod := range res.Modules {
		require.Equal(1, f.Imports[mod], mod)
	}
	require.Equal([]string{"pkg.a", "pkg.b"}, res.Submodules["pkg"])
}

func TestWalkNoRecurse(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	pkg.Submodule("sub", "").Function("f", "()", "")

	res, err := Walk(f, []string{"pkg"}, Options{})
	require.NoError(err)
	require.Equal([]string{"pkg"}, res.Modules)
	require.Equal([]string{"pkg.sub"}, res.Submodules["pkg"])
	require.Zero(f.Imports["pkg.sub"])
}

func TestWalkPrivateAndFiltered(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	pkg.Submodule("_impl", "").Function("g", "()", "")
	pkg.Submodule("tests", "")
	pkg.Class("_Hidden", "").Method("m", bridge.BindingInstance, "(self)", "")

	filter := func(p string) bool { return p != "pkg.tests" }
	res, err := Walk(f, []string{"pkg"}, Options{Recurse: true, ModuleFilter: filter})
	require.NoError(err)
	require.Equal([]string{"pkg"}, res.Modules)
	require.Equal([]string{"pkg", "pkg._Hidden"}, paths(res.Items))

	res, err = Walk(f, []string{"pkg"}, Options{Recurse: true, IncludePrivate: true, ModuleFilter: filter})
	require.NoError(err)
	require.Equal([]string{"pkg", "pkg._impl"}, res.Modules)
	require.Contains(paths(res.Items), "pkg._Hidden.m")
	require.Contains(paths(res.Items), "pkg._impl.g")
}

func TestWalkEntryImportFailureIsFatal(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	f.Module("demo", "")

	_, err := Walk(f, []string{"demo", "missing"}, Options{})
	var entryErr *EntryError
	require.ErrorAs(err, &entryErr)
	require.Equal("missing", entryErr.Module)
	require.True(bridge.IsImportError(err))

	_, err = Walk(f, nil, Options{})
	require.Error(err)
	_, err = Walk(f, []string{"demo."}, Options{})
	require.ErrorAs(err, &entryErr)
}

func TestWalkMemberFailuresAreDiagnostics(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	pkg.Function("ok", "()", "")
	pkg.Function("broken", "()", "").FailDescribe(errors.New("boom"))
	pkg.Function("explodes", "()", "").PanicDescribe("kaboom")
	pkg.Class("Weird", "").FailMembers(errors.New("no members"))
	pkg.Submodule("bad", "")
	f.FailImport("pkg.bad", "ImportError: circular")

	res, err := Walk(f, []string{"pkg"}, Options{Recurse: true})
	require.NoError(err)
	require.Equal([]string{"pkg", "pkg.ok", "pkg.Weird"}, paths(res.Items))
	require.Len(res.Diagnostics, 4)
	require.Equal(Diagnostic{Path: "pkg.broken", Reason: "describe: boom"}, res.Diagnostics[0])
	require.Equal("pkg.explodes", res.Diagnostics[1].Path)
	require.Contains(res.Diagnostics[1].Reason, "kaboom")
	require.Equal("pkg.Weird", res.Diagnostics[2].Path)
	require.Equal("pkg.bad", res.Diagnostics[3].Path)

	var merr *multierror.Error
	require.ErrorAs(res.Err(), &merr)
	require.Len(merr.Errors, 4)
}

func TestWalkEntryDescribeFailure(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	pkg.Function("f", "()", "")
	pkg.FailDescribe(nil)

	res, err := Walk(f, []string{"pkg"}, Options{})
	require.NoError(err)
	require.Equal([]string{"pkg", "pkg.f"}, paths(res.Items))
	require.Equal(bridge.KindModule, res.Items[0].Desc.Kind)
	require.Len(res.Diagnostics, 1)
}

func TestWalkSelfReferencingClass(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	node := pkg.Class("Node", "")
	node.Attach("Self", node)
	pkg.Attach("Alias", node)

	res, err := Walk(f, []string{"pkg"}, Options{})
	require.NoError(err)
	require.Equal([]string{"pkg", "pkg.Node", "pkg.Node.Self", "pkg.Alias"}, paths(res.Items))
	require.Equal("pkg.Node", res.Items[3].Origin())
}
