package kobj

import (
	"runtime"
	"sync"

	"github.com/nebulet/nebulet/internal/sched"
)

// Futex flag bits, spec.md §4.6 "Futex (pfex)": a two-bit state word
// keyed by an offset into the caller's first wasm memory. Grounded on
// original_source/src/abi/pfex.rs's PfexFlags.
const (
	PfexLocked   uint32 = 1 << 0
	PfexInDemand uint32 = 1 << 1
)

// spinBound is the number of fast-path spin attempts before falling back
// to blocking (spec.md §4.6: "spin a bounded number of times (20, with
// exponential pause then yield)").
const spinBound = 20

// FutexMemory is the narrow slice of WasmMemory the futex fast/slow path
// needs: atomic-enough read/CAS/store of a single word at a caller-given
// offset. Implemented by *Instance.
type FutexMemory interface {
	LoadUint32(offset uint32) (uint32, error)
	StoreUint32(offset uint32, val uint32) error
	CompareAndSwapUint32(offset uint32, old, new uint32) (bool, error)
}

// PfexMap is a Process's offset-keyed futex waiter registry (spec.md §3
// "Process... a futex map"), created lazily per offset on first demand.
// Grounded on original_source/src/task/process.rs's pfex_map field.
type PfexMap struct {
	sched *sched.Scheduler

	mu     sync.Mutex
	events map[uint32]*Event
}

// NewPfexMap returns an empty map bound to s, the scheduler whose
// threads may block on a futex.
func NewPfexMap(s *sched.Scheduler) *PfexMap {
	return &PfexMap{sched: s, events: make(map[uint32]*Event)}
}

func (p *PfexMap) eventFor(offset uint32) *Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev, ok := p.events[offset]
	if !ok {
		ev = NewEvent(p.sched, EventAutoUnsignal)
		p.events[offset] = ev
	}
	return ev
}

// spinPause stands in for the original's cpu_relax (a PAUSE instruction
// this hosted rewrite has no access to): a short, increasingly long
// run of Gosched calls for the first half of the spin bound.
func spinPause(i int) {
	for n := 0; n < 1<<uint(i); n++ {
		runtime.Gosched()
	}
}

// PfexAcquire implements the futex fast/slow acquire path (spec.md
// §4.6): a bounded CAS spin, then mark IN_DEMAND and block on the
// offset's Event, reclaiming LOCKED on wake.
func PfexAcquire(mem FutexMemory, offset uint32, pmap *PfexMap) error {
	for i := 0; i < spinBound; i++ {
		swapped, err := mem.CompareAndSwapUint32(offset, 0, PfexLocked)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
		if i < spinBound/2 {
			spinPause(i)
		} else {
			pmap.sched.Yield()
		}
	}

	for {
		cur, err := mem.LoadUint32(offset)
		if err != nil {
			return err
		}
		if cur == 0 {
			swapped, err := mem.CompareAndSwapUint32(offset, 0, PfexLocked)
			if err != nil {
				return err
			}
			if swapped {
				return nil
			}
			continue
		}
		swapped, err := mem.CompareAndSwapUint32(offset, cur, cur|PfexInDemand)
		if err != nil {
			return err
		}
		if swapped {
			break
		}
	}

	pmap.eventFor(offset).Wait()

	// The waker cleared LOCKED (possibly leaving IN_DEMAND set for
	// threads still queued behind us) before triggering; reclaim LOCKED
	// now that we have been specifically handed ownership.
	for {
		cur, err := mem.LoadUint32(offset)
		if err != nil {
			return err
		}
		next := cur | PfexLocked
		swapped, err := mem.CompareAndSwapUint32(offset, cur, next)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
}

// PfexRelease implements the futex release path (spec.md §4.6): CAS
// LOCKED to empty; on failure (contended), either hand off to a queued
// waiter (store IN_DEMAND, trigger) or clear outright (store empty,
// trigger; with no waiter parked, the auto-unsignal event stays
// signaled, so the next acquirer's Wait returns at once).
func PfexRelease(mem FutexMemory, offset uint32, pmap *PfexMap) error {
	swapped, err := mem.CompareAndSwapUint32(offset, PfexLocked, 0)
	if err != nil {
		return err
	}
	if swapped {
		return nil
	}

	ev := pmap.eventFor(offset)
	if ev.HasWaiters() {
		if err := mem.StoreUint32(offset, PfexInDemand); err != nil {
			return err
		}
	} else {
		if err := mem.StoreUint32(offset, 0); err != nil {
			return err
		}
	}
	ev.Trigger()
	return nil
}
