package kobj

// WaitObserver bridges a Context's signal changes to a blocking Event,
// the mechanism object_wait_one (internal/abi) uses to park a thread
// until a handle's signals intersect a requested mask. Grounded on
// original_source/src/object/wait_observer.rs's WaitObserver /
// LocalObserver pair, collapsed into one type since this rewrite has no
// separate stack-local observer wrapper to manage drop ordering for.
type WaitObserver struct {
	event    *Event
	signals  Signal
	observed Signal
}

// NewWaitObserver constructs an observer that triggers event the first
// time the watched object's signals intersect signals.
func NewWaitObserver(event *Event, signals Signal) *WaitObserver {
	return &WaitObserver{event: event, signals: signals}
}

func (w *WaitObserver) OnInit(cur Signal) ObserverResult {
	if cur&w.signals != 0 {
		w.observed = cur & w.signals
		return ObserverRemove
	}
	return ObserverKeep
}

func (w *WaitObserver) OnStateChange(cur Signal) ObserverResult {
	if cur&w.signals != 0 {
		w.observed = cur & w.signals
		w.event.Trigger()
		return ObserverRemove
	}
	return ObserverKeep
}

// OnDestruction wakes the waiter when the watched object is torn down
// out from under it (its last handle freed while a wait was pending).
func (w *WaitObserver) OnDestruction() { w.event.Trigger() }

func (w *WaitObserver) OnRemoval() {}

// Observed returns the subset of the requested signals that was
// actually seen, valid once the waiter has woken.
func (w *WaitObserver) Observed() Signal { return w.observed }

// WaitOne blocks the calling thread until ctx's signals intersect mask,
// then returns the observed subset. This is the shared implementation
// behind the ABI's object_wait_one call.
func WaitOne(ctx *Context, event *Event, mask Signal) Signal {
	w := NewWaitObserver(event, mask)
	if ctx.AddObserver(w) {
		event.Wait()
		ctx.RemoveObserver(w)
	}
	return w.Observed()
}
