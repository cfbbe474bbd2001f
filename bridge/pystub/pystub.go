// Package pystub implements a bridge that reads Python source and stub
// files instead of running an interpreter.
//
// Modules are looked up below a list of search roots, preferring .pyi
// stubs over .py sources, and parsed with tree-sitter. Only what is
// visible statically is reported: top-level functions, classes and
// assignments, class bodies, docstrings, __all__ and imports. Imported
// names are resolved lazily when they are described.
package pystub

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/refaktor/pybindgen/bridge"
)

type source struct {
	code []byte
	// file is empty for sources added with [Bridge.AddSource].
	file string
	pkg  bool
	stub bool
}

// ref is an imported name, resolved on first use.
type ref struct {
	module string
	// name is the imported attribute, or "" for the module itself.
	name string
}

type object struct {
	desc    bridge.RawDescriptor
	members []bridge.Member
	index   map[string]int
	ref     *ref
	// overload marks functions declared with typing.overload.
	overload bool
}

// set adds or replaces the member name. A replaced member keeps its
// position.
func (o *object) set(name string, h bridge.Handle) {
	if o.index == nil {
		o.index = map[string]int{}
	}
	if i, ok := o.index[name]; ok {
		o.members[i].Handle = h
		return
	}
	o.index[name] = len(o.members)
	o.members = append(o.members, bridge.Member{Name: name, Handle: h})
}

func (o *object) get(name string) (bridge.Handle, bool) {
	i, ok := o.index[name]
	if !ok {
		return 0, false
	}
	return o.members[i].Handle, true
}

// Bridge answers from Python source. It is safe for concurrent use.
type Bridge struct {
	paths []string

	runtime sync.Mutex
	mu      sync.Mutex
	sources map[string]source
	objects []*object
	modules map[string]bridge.Handle
	failed  map[string]error
}

// New returns a bridge searching modules below paths.
func New(paths ...string) *Bridge {
	return &Bridge{
		paths:   slices.Clone(paths),
		sources: map[string]source{},
		modules: map[string]bridge.Handle{},
		failed:  map[string]error{},
	}
}

// AddSource registers the Python code of module. It takes precedence
// over files on the search path. A module is a package when sources
// of submodules are registered too.
func (b *Bridge) AddSource(module string, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources[module] = source{code: code}
}

func (b *Bridge) RuntimeLock() sync.Locker {
	return &b.runtime
}

func (b *Bridge) add(o *object) bridge.Handle {
	b.objects = append(b.objects, o)
	return bridge.Handle(len(b.objects))
}

func (b *Bridge) get(h bridge.Handle) (*object, error) {
	if h == 0 || int(h) > len(b.objects) {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnknownHandle, h)
	}
	return b.objects[h-1], nil
}

func validModulePath(path string) bool {
	if path == "" {
		return false
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" || strings.ContainsAny(part, `/\ `) {
			return false
		}
	}
	return true
}

// find locates the source of module path.
func (b *Bridge) find(path string) (source, bool) {
	if src, ok := b.sources[path]; ok {
		for name := range b.sources {
			if strings.HasPrefix(name, path+".") {
				src.pkg = true
				break
			}
		}
		return src, true
	}
	rel := filepath.Join(strings.Split(path, ".")...)
	candidates := []struct {
		file string
		pkg  bool
	}{
		{filepath.Join(rel, "__init__.pyi"), true},
		{filepath.Join(rel, "__init__.py"), true},
		{rel + ".pyi", false},
		{rel + ".py", false},
	}
	for _, root := range b.paths {
		for _, c := range candidates {
			file := filepath.Join(root, c.file)
			code, err := os.ReadFile(file)
			if err != nil {
				continue
			}
			return source{code: code, file: file, pkg: c.pkg, stub: filepath.Ext(file) == ".pyi"}, true
		}
	}
	return source{}, false
}

// submodules lists the direct submodules of the package path.
func (b *Bridge) submodules(path string, src source) []string {
	seen := map[string]bool{}
	for name := range b.sources {
		if rest, ok := strings.CutPrefix(name, path+"."); ok {
			rest, _, _ = strings.Cut(rest, ".")
			seen[rest] = true
		}
	}
	if src.file != "" {
		dir := filepath.Dir(src.file)
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				for _, init := range []string{"__init__.py", "__init__.pyi"} {
					if _, err := os.Stat(filepath.Join(dir, name, init)); err == nil {
						seen[name] = true
					}
				}
				continue
			}
			stem := strings.TrimSuffix(strings.TrimSuffix(name, ".pyi"), ".py")
			if stem != name && stem != "__init__" && !strings.Contains(stem, ".") {
				seen[stem] = true
			}
		}
	}
	var res []string
	for name := range seen {
		res = append(res, name)
	}
	slices.Sort(res)
	return res
}

func (b *Bridge) Import(path string) (bridge.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.importLocked(path)
}

func (b *Bridge) importLocked(path string) (bridge.Handle, error) {
	if h, ok := b.modules[path]; ok {
		return h, nil
	}
	if err, ok := b.failed[path]; ok {
		return 0, err
	}
	src, ok := b.find(path)
	if !validModulePath(path) || !ok {
		err := &bridge.ImportError{Path: path, Reason: fmt.Sprintf("No module named '%v'", path)}
		b.failed[path] = err
		return 0, err
	}
	h, err := b.parseModule(path, src)
	if err != nil {
		err = &bridge.ImportError{Path: path, Reason: err.Error()}
		b.failed[path] = err
		return 0, err
	}
	b.modules[path] = h
	return h, nil
}

// maxRefDepth bounds chains of re-exports.
const maxRefDepth = 16

// target resolves h to the handle of a defined object. ok is false for
// imports that can't be resolved.
func (b *Bridge) target(h bridge.Handle) (res bridge.Handle, ok bool, err error) {
	for range maxRefDepth {
		o, err := b.get(h)
		if err != nil {
			return 0, false, err
		}
		if o.ref == nil {
			return h, true, nil
		}
		r := o.ref
		if r.name == "" {
			mh, err := b.importLocked(r.module)
			if err != nil {
				return 0, false, nil
			}
			h = mh
			continue
		}
		if mh, err := b.importLocked(r.module); err == nil {
			m, _ := b.get(mh)
			if next, found := m.get(r.name); found && next != h {
				h = next
				continue
			}
		}
		if sh, err := b.importLocked(r.module + "." + r.name); err == nil {
			h = sh
			continue
		}
		return 0, false, nil
	}
	return 0, false, nil
}

func (b *Bridge) MembersOf(h bridge.Handle) ([]bridge.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok, err := b.target(h)
	if err != nil || !ok {
		return nil, err
	}
	o, _ := b.get(t)
	return slices.Clone(o.members), nil
}

func (b *Bridge) Describe(h bridge.Handle) (*bridge.RawDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok, err := b.target(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		o, _ := b.get(h)
		name := o.ref.name
		if name == "" {
			name = o.ref.module[strings.LastIndex(o.ref.module, ".")+1:]
		}
		return &bridge.RawDescriptor{Kind: bridge.KindOther, Name: name, Module: o.ref.module}, nil
	}
	o, _ := b.get(t)
	desc := o.desc
	desc.All = slices.Clone(desc.All)
	desc.Bases = slices.Clone(desc.Bases)
	desc.Submodules = slices.Clone(desc.Submodules)
	return &desc, nil
}
