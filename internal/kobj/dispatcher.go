package kobj

import (
	"sync"

	"github.com/nebulet/nebulet/internal/nabi"
)

// ObserverResult is returned from every StateObserver callback, telling
// the Context whether to keep the observer installed.
type ObserverResult int

const (
	ObserverKeep ObserverResult = iota
	ObserverRemove
)

// StateObserver is the protocol spec.md §4.5 describes: installed on a
// Context via AddObserver, it is told the current signal state once at
// install time and again on every subsequent change, until it asks to be
// removed or the object is destroyed. Grounded on
// original_source/src/object/dispatcher.rs's StateObserver trait.
type StateObserver interface {
	OnInit(signals Signal) ObserverResult
	OnStateChange(signals Signal) ObserverResult
	OnDestruction()
	OnRemoval()
}

// Context is the state every kernel object shares regardless of its
// concrete payload: a signal word and the observer list watching it. A
// concrete dispatcher embeds *Context by value and exposes it through
// Ctx(), the way object::dispatcher::Dispatcher implementors each hold a
// common header.
type Context struct {
	mu        sync.Mutex
	signals   Signal
	observers []StateObserver
	refs      int32
}

// Signals returns the object's current signal state.
func (c *Context) Signals() Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signals
}

// AddObserver installs o per spec.md §4.5: on_init is invoked first, and
// only a Keep result gets o appended to the list. Returns whether o was
// installed; callers that get false must not expect OnStateChange or
// OnRemoval to ever fire for this observer (OnInit already reported the
// final answer).
func (c *Context) AddObserver(o StateObserver) bool {
	c.mu.Lock()
	cur := c.signals
	c.mu.Unlock()

	if o.OnInit(cur) == ObserverRemove {
		return false
	}

	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
	return true
}

// RemoveObserver detaches o if still installed, firing OnRemoval exactly
// once. Safe to call on an observer that was never installed or has
// already been removed by a state change.
func (c *Context) RemoveObserver(o StateObserver) {
	c.mu.Lock()
	for i, ob := range c.observers {
		if ob == o {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			c.mu.Unlock()
			ob.OnRemoval()
			return
		}
	}
	c.mu.Unlock()
}

// Signal updates the signal word: new = (old &^ deassert) | assert,
// short-circuiting on no change, then walks the observer list invoking
// OnStateChange and dropping observers that answer Remove (spec.md
// §4.5's exact algorithm).
func (c *Context) Signal(assert, deassert Signal) {
	c.mu.Lock()
	next := (c.signals &^ deassert) | assert
	if next == c.signals {
		c.mu.Unlock()
		return
	}
	c.signals = next

	kept := c.observers[:0]
	var removed []StateObserver
	for _, o := range c.observers {
		if o.OnStateChange(next) == ObserverKeep {
			kept = append(kept, o)
		} else {
			removed = append(removed, o)
		}
	}
	c.observers = kept
	c.mu.Unlock()

	for _, o := range removed {
		o.OnRemoval()
	}
}

// destroy notifies every remaining observer that the object is going
// away, fired once from a dispatcher's teardown path (channel peer drop,
// process exit).
func (c *Context) destroy() {
	c.mu.Lock()
	observers := c.observers
	c.observers = nil
	c.mu.Unlock()
	for _, o := range observers {
		o.OnDestruction()
	}
}

// Dispatcher is the interface every concrete kernel object implements
// (spec.md §3 "Dispatch<T>"): access to its shared Context, the signal
// bits user code is allowed to manipulate, and the hook fired when the
// last Handle referencing it is freed.
type Dispatcher interface {
	Ctx() *Context
	AllowedUserSignals() Signal
	OnZeroHandles()
}

// Dispatch is a reference-counted handle to a kernel object (spec.md
// §4.5's Dispatch<T>). Because Go payload types are already pointers
// with shared state, Dispatch does not add a second indirection the way
// Rust's Arc<Spinlock<..>> does; it exists to carry the refcount
// spec.md's copy_ref/on-zero-handles contract depends on, decoupled from
// Go's own garbage collector (a Dispatch can still be reachable from a
// live HandleTable slot after every *user* handle referencing it would
// have been freed, and on_zero_handles must fire at that point, not at
// GC time).
type Dispatch[T Dispatcher] struct {
	Value T
	ctx   *Context
}

// NewDispatch wraps value with an initial refcount of 1.
func NewDispatch[T Dispatcher](value T) *Dispatch[T] {
	ctx := value.Ctx()
	ctx.refs = 1
	return &Dispatch[T]{Value: value, ctx: ctx}
}

// CopyRef increments the shared refcount and returns a new Dispatch
// pointing at the same payload, the Go analogue of Rust's
// Dispatch::copy_ref via Arc::clone.
func (d *Dispatch[T]) CopyRef() *Dispatch[T] {
	d.ctx.mu.Lock()
	d.ctx.refs++
	d.ctx.mu.Unlock()
	return &Dispatch[T]{Value: d.Value, ctx: d.ctx}
}

// Release drops one reference; at zero it fires the payload's
// OnZeroHandles hook and destroys any observers still installed.
func (d *Dispatch[T]) Release() {
	d.ctx.mu.Lock()
	d.ctx.refs--
	zero := d.ctx.refs <= 0
	d.ctx.mu.Unlock()
	if zero {
		d.Value.OnZeroHandles()
		d.ctx.destroy()
	}
}

// DowncastRef type-asserts d's payload to T and returns a new Dispatch[T]
// sharing d's underlying refcount (like CopyRef, but changing the
// statically known payload type back from the erased Dispatcher a
// HandleTable slot stores). Used where a generic handle must be handed to
// an API wanting a concretely typed Dispatch it independently Releases
// later (process_create handing a Wasm handle to CreateProcess).
func DowncastRef[T Dispatcher](d *Dispatch[Dispatcher]) (*Dispatch[T], error) {
	v, ok := d.Value.(T)
	if !ok {
		return nil, nabi.WrongType("dispatch: value is not the expected type")
	}
	bumped := d.CopyRef()
	return &Dispatch[T]{Value: v, ctx: bumped.ctx}, nil
}

// Upcast erases the concrete payload type to a plain Dispatcher, the
// form a HandleTable slot stores regardless of which concrete dispatcher
// backs a given handle. The returned Dispatch shares the same refcount.
func (d *Dispatch[T]) Upcast() *Dispatch[Dispatcher] {
	d.ctx.mu.Lock()
	d.ctx.refs++
	d.ctx.mu.Unlock()
	return &Dispatch[Dispatcher]{Value: Dispatcher(d.Value), ctx: d.ctx}
}
