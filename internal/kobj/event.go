package kobj

import (
	"sync"

	"github.com/nebulet/nebulet/internal/sched"
)

// EventVariant selects an Event's wake semantics (spec.md §4.6 "Event").
type EventVariant int

const (
	// EventNormal wakes every waiter on signal and stays signaled until
	// Unsignal is called explicitly.
	EventNormal EventVariant = iota
	// EventAutoUnsignal wakes exactly one waiter per signal and reverts
	// to unsignaled immediately.
	EventAutoUnsignal
)

// Event is both the low-level scheduler-blocking primitive every other
// blocking dispatcher (Channel waits, Mutex hand-off, futex) is built
// from, and, wrapped in a Dispatch, the user-visible event_create/wait/
// trigger object. Grounded on original_source/src/object/event.rs, with
// the waiter queue translated from an intrusive linked list to a plain
// slice of *sched.Thread since this rewrite has no intrusive-list
// primitive and thread counts are small.
type Event struct {
	Context
	sched   *sched.Scheduler
	variant EventVariant

	mu       sync.Mutex
	signaled bool
	waiters  []*sched.Thread
}

// NewEvent constructs an Event bound to s, the scheduler whose threads
// may wait on and trigger it.
func NewEvent(s *sched.Scheduler, variant EventVariant) *Event {
	return &Event{sched: s, variant: variant}
}

func (e *Event) Ctx() *Context { return &e.Context }

func (e *Event) AllowedUserSignals() Signal { return SignalEventSignaled }

func (e *Event) OnZeroHandles() {}

// Wait blocks the calling thread (the scheduler's current thread) until
// the event is signaled. On a Normal event already signaled, Wait
// returns immediately without consuming the signal; on an AutoUnsignal
// event already signaled, Wait consumes it and returns immediately.
func (e *Event) Wait() {
	e.mu.Lock()
	if e.signaled {
		if e.variant == EventAutoUnsignal {
			e.signaled = false
		}
		e.mu.Unlock()
		return
	}
	e.waiters = append(e.waiters, e.sched.Current())
	e.mu.Unlock()

	e.sched.Block()
}

// Trigger signals the event, waking waiters per variant, and reports how
// many waiters were actually woken by this call.
func (e *Event) Trigger() int {
	e.mu.Lock()
	if e.variant == EventAutoUnsignal {
		if len(e.waiters) == 0 {
			e.signaled = true
			e.mu.Unlock()
			return 0
		}
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		e.mu.Unlock()
		e.sched.Unblock(w)
		return 1
	}

	e.signaled = true
	woken := e.waiters
	e.waiters = nil
	e.mu.Unlock()
	for _, w := range woken {
		e.sched.Unblock(w)
	}
	e.Context.Signal(SignalEventSignaled, 0)
	return len(woken)
}

// Unsignal reverts a Normal event to unsignaled; meaningless on
// AutoUnsignal events, which never stay signaled once waited on.
func (e *Event) Unsignal() {
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
	e.Context.Signal(0, SignalEventSignaled)
}

// HasWaiters reports whether any thread is currently parked on this
// event, the check the futex slow path uses to decide between storing
// IN_DEMAND and storing empty on release (spec.md §4.6 "Futex").
func (e *Event) HasWaiters() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waiters) > 0
}
