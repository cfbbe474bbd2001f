package pybindgen

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/refaktor/pybindgen/bridge"
	"github.com/refaktor/pybindgen/bridge/pystub"
	"github.com/refaktor/pybindgen/codegen"
	"github.com/refaktor/pybindgen/config"
	"github.com/refaktor/pybindgen/config/rules"
	"github.com/refaktor/pybindgen/introspect"
	"github.com/refaktor/pybindgen/ir"
	"github.com/refaktor/pybindgen/loader"
	"github.com/refaktor/pybindgen/typemap"
)

// EntryError is returned when an entry module cannot be imported.
type EntryError = introspect.EntryError

type Options struct {
	// Modules are the entry module paths.
	Modules []string
	// Package is the Go package name. Derived from the first entry
	// module if empty.
	Package string
	// Filename is recorded in the syntax tree's positions.
	Filename       string
	Recurse        bool
	IncludePrivate bool
	// ExtensionTypes enables extra type recognizers, e.g. "numpy".
	ExtensionTypes []string
	PreserveNames  bool
	// Jobs is the number of module sections rendered concurrently.
	Jobs int
	// ModuleFilter reports whether a discovered submodule may be
	// walked. Nil walks every module.
	ModuleFilter func(path string) bool
	Rules        []config.Rule
	// BindingList overrides rules for individual bindings.
	BindingList *config.BindingList
	// Verify type-checks the generated package with the go command.
	Verify bool
	Logger *Logger
}

// OptionsFromConfig converts a loaded configuration.
func OptionsFromConfig(c *config.Config) Options {
	var filename string
	if c.Output != "" && c.Output != "-" {
		filename = filepath.Base(c.Output)
	}
	return Options{
		Modules:        slices.Clone(c.Modules),
		Package:        c.Package,
		Filename:       filename,
		Recurse:        c.Recurse == nil || *c.Recurse,
		IncludePrivate: c.IncludePrivate,
		ExtensionTypes: slices.Clone(c.ExtensionTypes),
		PreserveNames:  c.PreserveNames,
		Jobs:           c.Jobs,
		ModuleFilter:   c.ModuleFilter(),
		Rules:          c.Rules,
	}
}

// Timing is the duration of one pipeline phase.
type Timing struct {
	Phase    string
	Duration time.Duration
}

type Result struct {
	Package string
	// Source is the formatted Go source.
	Source []byte
	Fset   *token.FileSet
	File   *ast.File
	// Table is the frozen symbol table the source was rendered from.
	Table *ir.Table
	// Diagnostics in the order they were found.
	Diagnostics []introspect.Diagnostic
	// Counts holds the number of emitted items per kind.
	Counts map[ir.Kind]int
	// Bindings maps the path of every binding eligible for the binding
	// list to its docstring.
	Bindings map[string]string
	Timings  []Timing
}

// WriteFile writes the source to path. The file is replaced atomically.
func (r *Result) WriteFile(path string) (err error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	_, err = f.Write(r.Source)
	if err == nil {
		err = f.Chmod(0o644)
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

type timer struct {
	start   time.Time
	timings []Timing
}

func (t *timer) done(phase string) {
	now := time.Now()
	t.timings = append(t.timings, Timing{Phase: phase, Duration: now.Sub(t.start)})
	t.start = now
}

func recognizers(exts []string) ([]typemap.Recognizer, error) {
	var res []typemap.Recognizer
	for _, ext := range exts {
		switch ext {
		case "numpy":
			res = append(res, typemap.NumPy)
		default:
			return nil, fmt.Errorf("unknown extension type %q", ext)
		}
	}
	return res, nil
}

func symbolType(it ir.Item) (rules.SymbolType, bool) {
	switch it := it.(type) {
	case *ir.Module:
		return rules.SymbolModule, true
	case *ir.Class:
		return rules.SymbolClass, true
	case *ir.Function:
		switch {
		case it.Constructor:
			return rules.SymbolConstructor, true
		case it.Kind == ir.KindMethod:
			return rules.SymbolMethod, true
		}
		return rules.SymbolFunc, true
	case *ir.Property:
		return rules.SymbolProperty, true
	case *ir.Constant:
		return rules.SymbolConstant, true
	}
	return 0, false
}

// Symbols lists the items of t that rules can select, in discovery
// order.
func Symbols(t *ir.Table) []rules.Symbol {
	var syms []rules.Symbol
	for _, it := range t.Items() {
		typ, ok := symbolType(it)
		if !ok {
			continue
		}
		b := it.Common()
		syms = append(syms, rules.Symbol{
			Path:   b.Path,
			Module: b.Module,
			Class:  strings.TrimPrefix(b.Owner, b.Module+"."),
			Name:   b.Name,
			Type:   typ,
		})
	}
	return syms
}

func applyRules(t *ir.Table, rs []config.Rule) error {
	if len(rs) == 0 {
		return nil
	}
	syms := Symbols(t)
	names, included, err := rules.Execute(rs, syms)
	if err != nil {
		return err
	}
	for _, sym := range syms {
		if name := names[sym.Path]; name != sym.Name {
			if err := t.SetRename(sym.Path, name); err != nil {
				return err
			}
		}
		if !included[sym.Path] {
			if err := t.SetEmit(sym.Path, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// bindingDocs collects the bindings the binding list may switch: every
// non-module item that is emitted after the rules ran, plus the
// exported ones.
func bindingDocs(t *ir.Table, bl *config.BindingList) map[string]string {
	docs := map[string]string{}
	for _, it := range t.Items() {
		b := it.Common()
		if _, ok := symbolType(it); !ok || b.Kind == ir.KindModule {
			continue
		}
		_, exported := bl.Export[b.Path]
		if b.Emit || exported {
			docs[b.Path] = b.Doc
		}
	}
	return docs
}

func applyBindingList(t *ir.Table, bl *config.BindingList, log *Logger) error {
	unknown := func(path string) bool {
		if _, ok := t.Get(path); !ok {
			log.Warnf("binding list: unknown binding %v", path)
			return true
		}
		return false
	}
	for _, path := range slices.Sorted(maps.Keys(bl.Export)) {
		if unknown(path) {
			continue
		}
		if err := t.SetEmit(path, true); err != nil {
			return err
		}
	}
	for _, path := range slices.Sorted(maps.Keys(bl.Enabled)) {
		if _, ok := t.Get(path); !ok {
			// Stale entries are dropped when the list is rewritten.
			continue
		}
		if !bl.Enabled[path] {
			if err := t.SetEmit(path, false); err != nil {
				return err
			}
		}
	}
	for _, path := range slices.Sorted(maps.Keys(bl.Renames)) {
		if unknown(path) {
			continue
		}
		if err := t.SetRename(path, bl.Renames[path]); err != nil {
			return err
		}
	}
	return nil
}

func countEmitted(t *ir.Table) map[ir.Kind]int {
	counts := map[ir.Kind]int{}
	for _, it := range t.Items() {
		if b := it.Common(); b.Emit && b.Kind != ir.KindImport {
			counts[b.Kind]++
		}
	}
	return counts
}

// Generate binds the entry modules in opts.Modules, reachable through
// b. Problems with individual members are reported as diagnostics and
// don't fail the run. A failing entry module import returns an
// [*EntryError]. Output is produced only once the whole tree is built.
func Generate(ctx context.Context, b bridge.Bridge, opts Options) (*Result, error) {
	if len(opts.Modules) == 0 {
		return nil, errors.New("no entry modules")
	}
	recs, err := recognizers(opts.ExtensionTypes)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	tm := &timer{start: time.Now()}

	walked, err := introspect.Walk(bridge.Exclusive(b), opts.Modules, introspect.Options{
		Recurse:        opts.Recurse,
		IncludePrivate: opts.IncludePrivate,
		ModuleFilter:   opts.ModuleFilter,
	})
	if err != nil {
		return nil, err
	}
	tm.done("introspect")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tbl, diags := ir.Build(walked, ir.BuildOptions{
		IncludePrivate: opts.IncludePrivate,
		Recognizers:    recs,
	})
	res := &Result{
		Table:       tbl,
		Diagnostics: slices.Concat(walked.Diagnostics, diags),
	}
	if err := applyRules(tbl, opts.Rules); err != nil {
		return nil, err
	}
	if bl := opts.BindingList; bl != nil {
		res.Bindings = bindingDocs(tbl, bl)
		if err := applyBindingList(tbl, bl, log); err != nil {
			return nil, err
		}
	}
	if err := tbl.Freeze(codegen.NameOptions(opts.PreserveNames)); err != nil {
		return nil, err
	}
	res.Counts = countEmitted(tbl)
	tm.done("build")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := codegen.Generate(ctx, tbl, codegen.Options{
		Package:  opts.Package,
		Jobs:     opts.Jobs,
		Filename: opts.Filename,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	res.Package, res.Source, res.Fset, res.File = out.Package, out.Source, out.Fset, out.File
	tm.done("generate")

	if opts.Verify {
		filename := opts.Filename
		if filename == "" {
			filename = "bindings.go"
		}
		if _, err := loader.Check(ctx, nil, filename, res.Source); err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		tm.done("verify")
	}

	for _, d := range res.Diagnostics {
		log.Warnf("%v", d)
	}
	res.Timings = tm.timings
	return res, nil
}

// GenerateFromSource binds the Python module given as source code,
// without a Python runtime. opts.Modules defaults to module.
func GenerateFromSource(ctx context.Context, code, module string, opts Options) (*Result, error) {
	b := pystub.New()
	b.AddSource(module, []byte(code))
	if len(opts.Modules) == 0 {
		opts.Modules = []string{module}
	}
	return Generate(ctx, b, opts)
}
