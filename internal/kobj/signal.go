// Package kobj implements Nebulet's kernel object model (spec.md §4.5-§4.8):
// Dispatcher/Dispatch, HandleTable, the concrete dispatchers (Channel,
// Stream, Event, Mutex, Interrupt), the futex map, and the per-process
// Instance and Process that tie them to a compiled Wasm artifact and a
// sched.Scheduler. Grounded throughout on original_source/src/object/*.rs
// and original_source/src/task/process.rs, translated from Rust's
// Arc<Spinlock<..>> idiom to plain Go pointers guarded by sync.Mutex.
package kobj

// Signal is the 32-bit bit set every dispatcher carries (spec.md §3
// "Signals"), grounded on original_source/src/signals.rs. Each dispatcher
// declares via AllowedUserSignals which of these bits user code may wait
// on or assert through object_signal.
type Signal uint32

const (
	SignalReadable     Signal = 1 << 0
	SignalWritable     Signal = 1 << 1
	SignalPeerClosed   Signal = 1 << 2
	SignalPeerSignaled Signal = 1 << 3
	SignalEventSignaled Signal = 1 << 4
	SignalHandleClosed Signal = 1 << 5

	SignalUser0 Signal = 1 << 24
	SignalUser1 Signal = 1 << 25
	SignalUser2 Signal = 1 << 26
	SignalUser3 Signal = 1 << 27
	SignalUser4 Signal = 1 << 28
	SignalUser5 Signal = 1 << 29
	SignalUser6 Signal = 1 << 30
	SignalUser7 Signal = 1 << 31

	SignalUserAll = SignalUser0 | SignalUser1 | SignalUser2 | SignalUser3 |
		SignalUser4 | SignalUser5 | SignalUser6 | SignalUser7
)

func (s Signal) Has(bits Signal) bool { return s&bits == bits }
func (s Signal) Any(bits Signal) bool { return s&bits != 0 }
