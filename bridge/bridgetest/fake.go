// Package bridgetest provides an in-memory [bridge.Bridge] for tests.
//
// Module graphs are assembled with a small builder:
//
//	f := bridgetest.New()
//	demo := f.Module("demo", "")
//	demo.Function("answer", "(question: str) -> int", "Returns answer to question.")
package bridgetest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/refaktor/pybindgen/bridge"
)

type object struct {
	desc        bridge.RawDescriptor
	members     []bridge.Member
	describeErr error
	membersErr  error
	panicMsg    string
}

// Fake is an in-memory foreign runtime.
type Fake struct {
	mu           sync.Mutex
	objects      []*object // handle = index+1
	modules      map[string]bridge.Handle
	importErrors map[string]string

	// Number of Import calls per path.
	Imports map[string]int
	// Number of Describe calls.
	Describes int
}

func New() *Fake {
	return &Fake{
		modules:      map[string]bridge.Handle{},
		importErrors: map[string]string{},
		Imports:      map[string]int{},
	}
}

// RuntimeLock implements [bridge.RuntimeLocker].
func (f *Fake) RuntimeLock() sync.Locker {
	return &f.mu
}

func (f *Fake) add(desc bridge.RawDescriptor) *Node {
	f.objects = append(f.objects, &object{desc: desc})
	return &Node{f: f, Handle: bridge.Handle(len(f.objects))}
}

func (f *Fake) get(h bridge.Handle) (*object, error) {
	if h == 0 || int(h) > len(f.objects) {
		return nil, fmt.Errorf("%w: %v", bridge.ErrUnknownHandle, h)
	}
	return f.objects[h-1], nil
}

// Module registers an importable module. Modules are not attached to
// their parent package; use [Node.Submodule] or [Node.Attach] for that.
func (f *Fake) Module(path, doc string) *Node {
	name := path[strings.LastIndex(path, ".")+1:]
	n := f.add(bridge.RawDescriptor{Kind: bridge.KindModule, Name: name, Module: path, Doc: doc})
	f.modules[path] = n.Handle
	return n
}

// FailImport makes importing path fail with reason.
func (f *Fake) FailImport(path, reason string) {
	f.importErrors[path] = reason
}

func (f *Fake) Import(path string) (bridge.Handle, error) {
	f.Imports[path]++
	if reason, ok := f.importErrors[path]; ok {
		return 0, &bridge.ImportError{Path: path, Reason: reason}
	}
	h, ok := f.modules[path]
	if !ok {
		return 0, &bridge.ImportError{Path: path, Reason: fmt.Sprintf("No module named '%v'", path)}
	}
	return h, nil
}

func (f *Fake) MembersOf(h bridge.Handle) ([]bridge.Member, error) {
	obj, err := f.get(h)
	if err != nil {
		return nil, err
	}
	if obj.membersErr != nil {
		return nil, obj.membersErr
	}
	return append([]bridge.Member(nil), obj.members...), nil
}

func (f *Fake) Describe(h bridge.Handle) (*bridge.RawDescriptor, error) {
	f.Describes++
	obj, err := f.get(h)
	if err != nil {
		return nil, err
	}
	if obj.panicMsg != "" {
		panic(obj.panicMsg)
	}
	if obj.describeErr != nil {
		return nil, obj.describeErr
	}
	desc := obj.desc
	return &desc, nil
}

// Node is a handle to an object of a [Fake] under construction.
type Node struct {
	f      *Fake
	Handle bridge.Handle
}

func (n *Node) obj() *object {
	return n.f.objects[n.Handle-1]
}

// Desc gives direct access to the descriptor returned by Describe.
func (n *Node) Desc() *bridge.RawDescriptor {
	return &n.obj().desc
}

func (n *Node) scope() (module, qual string) {
	d := n.Desc()
	if d.Kind == bridge.KindModule {
		return d.Module, ""
	}
	return d.Module, d.QualName
}

func (n *Node) child(name string, desc bridge.RawDescriptor) *Node {
	module, qual := n.scope()
	desc.Name = name
	if desc.Module == "" {
		desc.Module = module
	}
	switch {
	case desc.QualName != "":
	case qual != "":
		desc.QualName = qual + "." + name
	default:
		desc.QualName = name
	}
	c := n.f.add(desc)
	n.Attach(name, c)
	return c
}

// Attach adds an existing object as a member of n.
func (n *Node) Attach(name string, member *Node) *Node {
	o := n.obj()
	o.members = append(o.members, bridge.Member{Name: name, Handle: member.Handle})
	return n
}

// Submodule registers the module "<n's path>.<name>" and attaches it.
func (n *Node) Submodule(name, doc string) *Node {
	module, _ := n.scope()
	sub := n.f.Module(module+"."+name, doc)
	n.Desc().Package = true
	n.Attach(name, sub)
	return sub
}

// Function adds a function. sig is a signature in Python text form,
// or "" for none.
func (n *Node) Function(name, sig, doc string) *Node {
	return n.child(name, bridge.RawDescriptor{Kind: bridge.KindFunction, Doc: doc, Signature: mustSig(sig)})
}

// Method adds a method to a class node.
func (n *Node) Method(name string, binding bridge.Binding, sig, doc string) *Node {
	return n.child(name, bridge.RawDescriptor{Kind: bridge.KindMethod, Binding: binding, Doc: doc, Signature: mustSig(sig)})
}

// Class adds a class with the given base class paths.
func (n *Node) Class(name, doc string, bases ...string) *Node {
	return n.child(name, bridge.RawDescriptor{Kind: bridge.KindClass, Doc: doc, Bases: bases})
}

// Property adds a property with a getter and optionally a setter.
func (n *Node) Property(name, annotation string, setter bool, doc string) *Node {
	return n.child(name, bridge.RawDescriptor{
		Kind:       bridge.KindProperty,
		Annotation: annotation,
		Getter:     true,
		Setter:     setter,
		Doc:        doc,
	})
}

// Constant adds a constant with an optional declared annotation.
func (n *Node) Constant(name string, v bridge.Value, annotation string) *Node {
	return n.child(name, bridge.RawDescriptor{Kind: bridge.KindConstant, Value: &v, Annotation: annotation})
}

// Raw adds a member with a hand-written descriptor. Name, Module and
// QualName are filled in.
func (n *Node) Raw(name string, desc bridge.RawDescriptor) *Node {
	return n.child(name, desc)
}

// FailDescribe makes Describe of n return err.
func (n *Node) FailDescribe(err error) *Node {
	if err == nil {
		err = errors.New("describe failed")
	}
	n.obj().describeErr = err
	return n
}

// FailMembers makes MembersOf of n return err.
func (n *Node) FailMembers(err error) *Node {
	n.obj().membersErr = err
	return n
}

// PanicDescribe makes Describe of n panic with msg.
func (n *Node) PanicDescribe(msg string) *Node {
	n.obj().panicMsg = msg
	return n
}

// SetAll sets the module's __all__.
func (n *Node) SetAll(names ...string) *Node {
	d := n.Desc()
	d.HasAll = true
	d.All = names
	return n
}

func mustSig(text string) *bridge.Signature {
	if text == "" {
		return nil
	}
	sig, err := bridge.ParseSignature(text)
	if err != nil {
		panic(err)
	}
	return sig
}
