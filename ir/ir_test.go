package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/bridge/bridgetest"
	"github.com/refaktor/pybindgen/introspect"
	"github.com/refaktor/pybindgen/typemap"
)

var testNameOpts = NameOptions{
	Reserved:       []string{"Object", "Bridge"},
	MemberReserved: []string{"h", "Handle", "SetHandle"},
	LocalReserved:  []string{"self"},
}

func build(t *testing.T, f *bridgetest.Fake, entries []string, includePrivate bool, nameOpts NameOptions) *Table {
	t.Helper()
	res, err := introspect.Walk(f, entries, introspect.Options{Recurse: true, IncludePrivate: includePrivate})
	require.NoError(t, err)
	tbl, diags := Build(res, BuildOptions{IncludePrivate: includePrivate, Recognizers: []typemap.Recognizer{typemap.NumPy}})
	require.Empty(t, diags)
	require.NoError(t, tbl.Freeze(nameOpts))
	return tbl
}

func demo() *bridgetest.Fake {
	f := bridgetest.New()
	demo := f.Module("demo", "Demo module.")
	demo.Function("answer", "(question: str) -> int", "Returns answer to question.")
	demo.Constant("VERSION", bridge.Value{Kind: bridge.LiteralStr, Text: "1.2.3"}, "")
	cfg := demo.Class("Config", "Configuration.")
	cfg.Property("timeout", "int", true, "")
	cfg.Method("__init__", bridge.BindingInstance, "(self, timeout: int = 3)", "")
	cfg.Method("load", bridge.BindingStatic, "(path: str) -> Config", "")
	cfg.Method("copy", bridge.BindingInstance, "(self) -> 'Config'", "")
	cfg.Method("__call__", bridge.BindingInstance, "(self, *args, **kwargs)", "")
	demo.Function("untyped", "", "")
	return f
}

func TestBuildDemo(t *testing.T) {
	require := require.New(t)

	tbl := build(t, demo(), []string{"demo"}, false, testNameOpts)
	require.True(tbl.Frozen())
	require.Equal([]string{"demo"}, tbl.Roots)

	m := tbl.Module("demo")
	require.True(m.Entry)
	require.Empty(m.Namespace)
	require.Equal("Demo module.", m.Doc)
	require.Equal([]string{"demo.answer", "demo.VERSION", "demo.Config", "demo.untyped"}, m.Members)

	it, ok := tbl.Get("demo.answer")
	require.True(ok)
	answer := it.(*Function)
	require.Equal("Answer", answer.Ident)
	require.Equal("Returns answer to question.", answer.Doc)
	require.Equal(KindFunction, answer.Kind)
	require.Len(answer.Params, 1)
	require.Equal("question", answer.Params[0].Ident)
	require.Equal(typemap.Primitive{Kind: typemap.Str}, answer.Params[0].Type)
	require.Equal(typemap.Primitive{Kind: typemap.Int}, answer.Return)
	require.Equal([]string{"answer"}, answer.Attr)

	it, _ = tbl.Get("demo.VERSION")
	version := it.(*Constant)
	require.True(version.IsLiteral())
	require.NotEmpty(version.Ident)
	require.Equal(typemap.Primitive{Kind: typemap.Str}, version.Type)

	cfg := tbl.Class("demo.Config")
	require.Equal("Config", cfg.Ident)
	require.Equal(tbl.Ident(PackageScope, "demo.Config", RoleDecl), cfg.Ident)

	it, _ = tbl.Get("demo.Config.timeout")
	timeout := it.(*Property)
	require.Equal("Timeout", timeout.Ident)
	require.Equal("SetTimeout", timeout.SetterIdent)
	require.Equal("SetTimeout", tbl.Ident("demo.Config", "demo.Config.timeout", RoleSetter))

	it, _ = tbl.Get("demo.Config.__init__")
	ctor := it.(*Function)
	require.True(ctor.Constructor)
	require.Equal("NewConfig", ctor.Ident)
	require.Len(ctor.Params, 1)
	require.True(ctor.Params[0].HasDefault)
	require.Equal(typemap.UserDefined{Path: "demo.Config"}, ctor.Return)

	it, _ = tbl.Get("demo.Config.load")
	load := it.(*Function)
	require.False(load.Bound())
	require.Equal("ConfigLoad", load.Ident)
	require.Equal([]string{"Config", "load"}, load.Attr)
	require.Equal(typemap.UserDefined{Path: "demo.Config"}, load.Return)

	it, _ = tbl.Get("demo.Config.copy")
	cp := it.(*Function)
	require.True(cp.Bound())
	require.Equal("Copy", cp.Ident)
	require.Empty(cp.Params)

	it, _ = tbl.Get("demo.Config.__call__")
	call := it.(*Function)
	require.True(call.Call)
	require.Equal("Call", call.Ident)
	require.Equal(bridge.ParamVarPositional, call.Params[0].Kind)

	it, _ = tbl.Get("demo.untyped")
	untyped := it.(*Function)
	require.True(untyped.Generic)
	require.Equal("args", untyped.Params[0].Ident)
	require.Equal("kwargs", untyped.Params[1].Ident)
}

func TestFreezeOnce(t *testing.T) {
	require := require.New(t)

	tbl := build(t, demo(), []string{"demo"}, false, testNameOpts)
	require.ErrorIs(tbl.Freeze(testNameOpts), ErrFrozen)
	require.ErrorIs(tbl.Add(&Constant{Base: Base{Path: "demo.X"}}), ErrFrozen)
	require.ErrorIs(tbl.SetEmit("demo.answer", false), ErrFrozen)
}

func TestNamesAreDeterministic(t *testing.T) {
	require := require.New(t)

	a := build(t, demo(), []string{"demo"}, false, testNameOpts)
	for range 5 {
		b := build(t, demo(), []string{"demo"}, false, testNameOpts)
		require.Equal(a.Names, b.Names)
	}
}

func TestPreserveNames(t *testing.T) {
	require := require.New(t)

	opts := testNameOpts
	opts.Preserve = true
	tbl := build(t, demo(), []string{"demo"}, false, opts)
	it, _ := tbl.Get("demo.answer")
	require.Equal("answer", it.Common().Ident)
	require.Equal("VERSION", tbl.Ident(PackageScope, "demo.VERSION", RoleDecl))
}

func TestNameCollisions(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	m := f.Module("m", "")
	m.Function("get_value", "()", "")
	m.Function("getValue", "()", "")
	m.Function("config", "()", "")
	m.Class("Config", "")
	m.Function("Object", "()", "")
	m.Function("f", "(type, len, _, self, positional: int, question)", "")
	m.Function("init", "()", "")

	opts := testNameOpts
	opts.Reserved = append(opts.Reserved, "init")
	opts.LocalReserved = append(opts.LocalReserved, "positional")
	tbl := build(t, f, []string{"m"}, false, opts)

	ident := func(path string) string {
		it, ok := tbl.Get(path)
		require.True(ok, path)
		return it.Common().Ident
	}
	require.Equal("GetValue", ident("m.get_value"))
	require.Equal("GetValue_1", ident("m.getValue"))
	require.Equal("Config", ident("m.Config"))
	require.Equal("Config_1", ident("m.config"))
	require.Equal("Object_1", ident("m.Object"))
	require.Equal("Init", ident("m.init"))

	it, _ := tbl.Get("m.f")
	var params []string
	for _, p := range it.(*Function).Params {
		params = append(params, p.Ident)
	}
	require.Equal([]string{"type_", "len_", "arg", "self_1", "positional_1", "question"}, params)
}

func TestReexportedClass(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	impl := pkg.Submodule("impl", "")
	cls := impl.Class("Config", "")
	cls.Method("m", bridge.BindingInstance, "(self)", "")
	pkg.Attach("Config", cls)
	impl.Function("make", "() -> Config", "")

	tbl := build(t, f, []string{"pkg"}, false, testNameOpts)
	require.NotNil(tbl.Class("pkg.Config"))
	require.Nil(tbl.Class("pkg.impl.Config"))

	it, ok := tbl.Get("pkg.impl.Config")
	require.True(ok)
	require.Equal(KindImport, it.Common().Kind)
	require.False(it.Common().Emit)
	require.Equal("pkg.Config", it.(*Import).Target)

	it, _ = tbl.Get("pkg.impl.make")
	require.Equal(typemap.UserDefined{Path: "pkg.Config"}, it.(*Function).Return)
	_, ok = tbl.Get("pkg.Config.m")
	require.True(ok)

	c, ok := tbl.ResolveClass("pkg.impl.Config")
	require.True(ok)
	require.Equal("pkg.Config", c)
}

func TestPrivateAndAll(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	m := f.Module("m", "")
	m.Function("a", "()", "")
	m.Function("b", "()", "")
	m.Class("_Hidden", "")
	m.Function("uses", "(x: _Hidden) -> Optional[_Hidden]", "")
	m.SetAll("a", "uses")

	tbl := build(t, f, []string{"m"}, false, testNameOpts)
	require.True(tbl.Emitted("m.a"))
	require.False(tbl.Emitted("m.b"))
	require.False(tbl.Emitted("m._Hidden"))
	it, _ := tbl.Get("m.uses")
	uses := it.(*Function)
	require.Equal(typemap.Unknown{}, uses.Params[0].Type)
	require.Equal(typemap.Unknown{}, uses.Return)

	tbl = build(t, f, []string{"m"}, true, testNameOpts)
	require.True(tbl.Emitted("m.b"))
	require.True(tbl.Emitted("m._Hidden"))
	require.Equal("Hidden", tbl.Class("m._Hidden").Ident)
	it, _ = tbl.Get("m.uses")
	require.Equal(typemap.Optional{Inner: typemap.UserDefined{Path: "m._Hidden"}}, it.(*Function).Return)
}

func TestBases(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	m := f.Module("m", "")
	m.Class("Base", "")
	m.Class("Child", "", "m.Base", "builtins.object", "other.Unknown")
	m.Class("A", "", "m.B")
	m.Class("B", "", "m.A")
	m.Class("Self", "", "m.Self")

	tbl := build(t, f, []string{"m"}, false, testNameOpts)
	child := tbl.Class("m.Child")
	require.Equal([]BaseRef{
		{Path: "m.Base", Resolved: true, Ident: "AsBase"},
		{Path: "other.Unknown"},
	}, child.Bases)
	require.Equal("AsBase", tbl.Ident("m.Child", "m.Child:m.Base", RoleConversion))
	require.False(tbl.Class("m.A").Bases[0].Resolved)
	require.False(tbl.Class("m.B").Bases[0].Resolved)
	require.False(tbl.Class("m.Self").Bases[0].Resolved)
}

func TestNamespaces(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	pkg := f.Module("pkg", "")
	sub := pkg.Submodule("sub", "")
	sub.Function("run", "()", "")
	sub.Constant("MAX", bridge.Value{Kind: bridge.LiteralInt, Text: "10"}, "")
	sub.Constant("logger", bridge.Value{Kind: bridge.LiteralOpaque, Type: "logging.Logger"}, "")
	sub.Submodule("inner", "")

	tbl := build(t, f, []string{"pkg"}, false, testNameOpts)
	require.Equal([]string{"pkg"}, tbl.Roots)
	require.Equal([]string{"pkg.sub"}, tbl.Module("pkg").Submodules)
	s := tbl.Module("pkg.sub")
	require.Equal("nsPkgSub", s.Namespace)
	require.Equal("Sub", s.Field)
	require.Equal("Sub", tbl.Ident(PackageScope, "pkg.sub", RoleDecl))
	require.Equal("nsPkgSubInner", tbl.Module("pkg.sub.inner").Namespace)
	require.Equal("Inner", tbl.Ident("pkg.sub", "pkg.sub.inner", RoleDecl))
	require.Equal("Run", tbl.Ident("pkg.sub", "pkg.sub.run", RoleDecl))
	require.Equal("SubMax", tbl.Ident(PackageScope, "pkg.sub.MAX", RoleDecl))
	require.Equal("Logger", tbl.Ident("pkg.sub", "pkg.sub.logger", RoleDecl))

	f = bridgetest.New()
	f.Module("json", "").Function("dumps", "(obj) -> str", "")
	f.Module("csv", "").Constant("QUOTE_ALL", bridge.Value{Kind: bridge.LiteralInt, Text: "1"}, "")
	tbl = build(t, f, []string{"json", "csv"}, false, testNameOpts)
	require.Equal([]string{"json", "csv"}, tbl.Roots)
	require.Equal("Json", tbl.Module("json").Field)
	require.Equal("nsJson", tbl.Module("json").Namespace)
	require.Equal("Dumps", tbl.Ident("json", "json.dumps", RoleDecl))
	require.Equal("CsvQuoteAll", tbl.Ident(PackageScope, "csv.QUOTE_ALL", RoleDecl))
}

func TestSignatureTextFallback(t *testing.T) {
	require := require.New(t)

	f := bridgetest.New()
	m := f.Module("m", "")
	m.Raw("good", bridge.RawDescriptor{Kind: bridge.KindFunction, SignatureText: "(a, /, b=1, *, c) -> bool"})
	m.Raw("bad", bridge.RawDescriptor{Kind: bridge.KindFunction, SignatureText: "(a, b"})

	res, err := introspect.Walk(f, []string{"m"}, introspect.Options{})
	require.NoError(err)
	tbl, diags := Build(res, BuildOptions{})
	require.Len(diags, 1)
	require.Equal("m.bad", diags[0].Path)
	require.NoError(tbl.Freeze(testNameOpts))

	it, _ := tbl.Get("m.good")
	good := it.(*Function)
	require.Len(good.Params, 3)
	require.Equal(bridge.ParamPositionalOnly, good.Params[0].Kind)
	require.True(good.Params[1].HasDefault)
	require.Equal(bridge.ParamKeywordOnly, good.Params[2].Kind)
	require.Equal(typemap.Primitive{Kind: typemap.Bool}, good.Return)

	it, _ = tbl.Get("m.bad")
	require.True(it.(*Function).Generic)
}
