package bridge

import (
	"reflect"
	"sync"
)

// RuntimeLocker is implemented by bridges that own the lock guarding
// their runtime. Bridges that don't implement it get a lock keyed by
// their identity.
type RuntimeLocker interface {
	RuntimeLock() sync.Locker
}

// runtime instance -> *sync.Mutex. Entries live as long as the process,
// so long-lived programs creating many runtimes should implement
// RuntimeLocker.
var runtimeLocks sync.Map

// sharedLock guards bridges that can't be told apart, whose type is not
// comparable. They all serialize against each other.
var sharedLock sync.Mutex

func lockFor(b Bridge) sync.Locker {
	if rl, ok := b.(RuntimeLocker); ok {
		return rl.RuntimeLock()
	}
	if t := reflect.TypeOf(b); t == nil || !t.Comparable() {
		return &sharedLock
	}
	mu, _ := runtimeLocks.LoadOrStore(b, new(sync.Mutex))
	return mu.(*sync.Mutex)
}

type exclusive struct {
	b  Bridge
	mu sync.Locker
}

// Exclusive wraps b so that every call holds the runtime's lock for
// exactly the duration of the call. The lock is released on every exit
// path, panics included.
//
// Wrapping the same runtime twice yields wrappers sharing one lock, so
// concurrent generation runs against one runtime serialize. Wrapping an
// already exclusive bridge returns it unchanged.
func Exclusive(b Bridge) Bridge {
	if e, ok := b.(*exclusive); ok {
		return e
	}
	return &exclusive{b: b, mu: lockFor(b)}
}

// acquire locks the runtime and returns the matching release func,
// meant to be used as `defer e.acquire()()`.
func (e *exclusive) acquire() (release func()) {
	e.mu.Lock()
	return e.mu.Unlock
}

func (e *exclusive) Import(path string) (Handle, error) {
	defer e.acquire()()
	return e.b.Import(path)
}

func (e *exclusive) MembersOf(h Handle) ([]Member, error) {
	defer e.acquire()()
	return e.b.MembersOf(h)
}

func (e *exclusive) Describe(h Handle) (*RawDescriptor, error) {
	defer e.acquire()()
	return e.b.Describe(h)
}

// Unwrap returns the wrapped bridge.
func (e *exclusive) Unwrap() Bridge {
	return e.b
}
