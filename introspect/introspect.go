// Package introspect walks a Python module graph through a [bridge.Bridge]
// and collects the raw descriptors of everything reachable from a set of
// entry modules.
package introspect

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/refaktor/pybindgen/bridge"
)

type Options struct {
	// Recurse into submodules.
	Recurse bool
	// Walk the members of private classes and private submodules.
	// Private members themselves are always collected.
	IncludePrivate bool
	// ModuleFilter reports whether a discovered submodule may be walked.
	// A nil filter allows every module. Entry modules are never filtered.
	ModuleFilter func(path string) bool
}

// Item is one collected object.
type Item struct {
	// Path is the qualified path the object was found under.
	Path string
	// Module is the module the object was found in.
	Module string
	// Owner is the path of the owning class, or "" for module members
	// and modules.
	Owner string
	// Name is the local name (last path element).
	Name    string
	Private bool
	Desc    *bridge.RawDescriptor
}

// Origin returns the path the object was defined under, which differs
// from Path for re-exported objects.
func (it *Item) Origin() string {
	if it.Desc.Kind == bridge.KindModule {
		return it.Desc.Path()
	}
	if it.Desc.Module == "" {
		return it.Path
	}
	return it.Desc.Path()
}

// Diagnostic records a member that was skipped.
type Diagnostic struct {
	Path   string
	Reason string
}

func (d Diagnostic) Error() string {
	return d.Path + ": " + d.Reason
}

// EntryError is returned when an entry module cannot be imported.
type EntryError struct {
	Module string
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry module %v: %v", e.Module, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

type Result struct {
	Entries []string
	// Modules in the order they were walked.
	Modules []string
	// Items in discovery order.
	Items       []Item
	Diagnostics []Diagnostic
	// Submodules maps a module path to the submodule paths discovered
	// in it, in discovery order.
	Submodules map[string][]string
}

// Err returns the diagnostics as a single *multierror.Error, or nil.
func (r *Result) Err() error {
	var err *multierror.Error
	for _, d := range r.Diagnostics {
		err = multierror.Append(err, d)
	}
	return err.ErrorOrNil()
}

// Modules whose members are never bound.
var ignoredModules = map[string]bool{
	"typing":            true,
	"typing_extensions": true,
	"__future__":        true,
}

// Dunder names kept inside classes.
var classDunders = map[string]bool{
	"__init__": true,
	"__call__": true,
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// IsPrivate reports whether name is private by Python convention.
func IsPrivate(name string) bool {
	return strings.HasPrefix(name, "_") && !isDunder(name)
}

type walker struct {
	b       bridge.Bridge
	opts    Options
	res     *Result
	visited map[string]bool
	queue   []string
	// Origin paths of classes whose members have been walked.
	walkedClasses map[string]bool
}

// Walk collects everything reachable from the entry modules.
//
// A failure to import an entry module aborts the walk with an
// [*EntryError]. Any other failure is recorded as a diagnostic and the
// offending member is skipped.
func Walk(b bridge.Bridge, entries []string, opts Options) (*Result, error) {
	if len(entries) == 0 {
		return nil, errors.New("no entry modules")
	}
	w := &walker{
		b:    bridge.Exclusive(b),
		opts: opts,
		res: &Result{
			Submodules: map[string][]string{},
		},
		visited:       map[string]bool{},
		walkedClasses: map[string]bool{},
	}
	for _, e := range entries {
		if e == "" || strings.HasPrefix(e, ".") || strings.HasSuffix(e, ".") {
			return nil, &EntryError{Module: e, Err: errors.New("invalid module path")}
		}
		if w.visited[e] {
			continue
		}
		w.visited[e] = true
		w.res.Entries = append(w.res.Entries, e)
		w.queue = append(w.queue, e)
	}

	for len(w.queue) > 0 {
		mod := w.queue[0]
		w.queue = w.queue[1:]
		if err := w.walkModule(mod, slices.Contains(w.res.Entries, mod)); err != nil {
			return nil, err
		}
	}
	return w.res, nil
}

func (w *walker) diag(path, format string, args ...any) {
	w.res.Diagnostics = append(w.res.Diagnostics, Diagnostic{Path: path, Reason: fmt.Sprintf(format, args...)})
}

// guard runs fn, converting a panic into an error.
func guard[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge panic: %v", r)
		}
	}()
	return fn()
}

func (w *walker) describe(path string, h bridge.Handle) (*bridge.RawDescriptor, bool) {
	d, err := guard(func() (*bridge.RawDescriptor, error) { return w.b.Describe(h) })
	if err == nil && d == nil {
		err = errors.New("no descriptor")
	}
	if err != nil {
		w.diag(path, "describe: %v", err)
		return nil, false
	}
	return d, true
}

func (w *walker) members(path string, h bridge.Handle) []bridge.Member {
	ms, err := guard(func() ([]bridge.Member, error) { return w.b.MembersOf(h) })
	if err != nil {
		w.diag(path, "members: %v", err)
		return nil
	}
	return ms
}

func (w *walker) enqueue(parent, sub string, private bool) {
	subs := w.res.Submodules[parent]
	if !slices.Contains(subs, sub) {
		w.res.Submodules[parent] = append(subs, sub)
	}
	if !w.opts.Recurse || w.visited[sub] || (private && !w.opts.IncludePrivate) {
		return
	}
	if w.opts.ModuleFilter != nil && !w.opts.ModuleFilter(sub) {
		return
	}
	w.visited[sub] = true
	w.queue = append(w.queue, sub)
}

func (w *walker) walkModule(mod string, isEntry bool) error {
	h, err := guard(func() (bridge.Handle, error) { return w.b.Import(mod) })
	if err != nil {
		if isEntry {
			return &EntryError{Module: mod, Err: err}
		}
		w.diag(mod, "%v", err)
		return nil
	}
	w.res.Modules = append(w.res.Modules, mod)

	desc, ok := w.describe(mod, h)
	if !ok {
		desc = &bridge.RawDescriptor{}
	}
	desc.Kind = bridge.KindModule
	desc.Module = mod
	name := mod[strings.LastIndex(mod, ".")+1:]
	if desc.Name == "" {
		desc.Name = name
	}
	w.res.Items = append(w.res.Items, Item{
		Path:    mod,
		Module:  mod,
		Name:    name,
		Private: IsPrivate(name),
		Desc:    desc,
	})

	seen := map[string]bool{}
	for _, m := range w.members(mod, h) {
		if seen[m.Name] || m.Name == "" || isDunder(m.Name) {
			continue
		}
		seen[m.Name] = true
		w.walkMember(mod, "", m)
	}
	for _, sub := range desc.Submodules {
		if !seen[sub] && sub != "" && !strings.Contains(sub, ".") {
			w.enqueue(mod, mod+"."+sub, IsPrivate(sub))
		}
	}
	return nil
}

// walkMember handles a member of module mod, or of class owner if
// owner != "".
func (w *walker) walkMember(mod, owner string, m bridge.Member) {
	scope := mod
	if owner != "" {
		scope = owner
	}
	path := scope + "." + m.Name
	d, ok := w.describe(path, m.Handle)
	if !ok {
		return
	}
	if d.Module == "" && d.Kind != bridge.KindModule {
		d.Module = mod
	}
	item := Item{
		Path:    path,
		Module:  mod,
		Owner:   owner,
		Name:    m.Name,
		Private: IsPrivate(m.Name),
		Desc:    d,
	}

	switch d.Kind {
	case bridge.KindTypeVar:
		return
	case bridge.KindModule:
		if owner != "" {
			return
		}
		target := d.Path()
		if target == path {
			w.enqueue(mod, target, item.Private)
			return
		}
		// A reference to a module imported from elsewhere.
		w.res.Items = append(w.res.Items, item)
		return
	case bridge.KindClass, bridge.KindFunction, bridge.KindMethod:
		if ignoredModules[d.Module] {
			return
		}
	}

	w.res.Items = append(w.res.Items, item)

	if d.Kind == bridge.KindClass {
		origin := item.Origin()
		// Class members are walked once per class, so self-referencing
		// class attributes terminate.
		if w.walkedClasses[origin] || (item.Private && !w.opts.IncludePrivate) {
			return
		}
		w.walkedClasses[origin] = true
		w.walkClass(mod, path, m.Handle)
	}
}

func (w *walker) walkClass(mod, classPath string, h bridge.Handle) {
	seen := map[string]bool{}
	for _, m := range w.members(classPath, h) {
		if seen[m.Name] || m.Name == "" || (isDunder(m.Name) && !classDunders[m.Name]) {
			continue
		}
		seen[m.Name] = true
		w.walkMember(mod, classPath, m)
	}
}
