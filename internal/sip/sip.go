// Package sip implements the SipAllocator and the two object kinds it
// hands out: WasmMemory (lazy-paged linear memory with an 8 GiB guarded
// window) and WasmStack (lazy-paged thread stack with guard pages).
package sip

import (
	"sync"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/region"
)

// Allocator is a process-wide bump allocator handing out Regions,
// WasmMemory, and WasmStack objects against a fixed byte budget. It never
// reclaims: like the kernel it's modeled on, freed objects return their
// address space to the OS (via Close) but do not replenish the budget.
type Allocator struct {
	mu       sync.Mutex
	used     int64
	capacity int64
}

// New constructs an Allocator with the given byte budget. Most callers
// should pass sip.WindowSize.
func New(capacity int64) *Allocator {
	return &Allocator{capacity: capacity}
}

func (a *Allocator) reserve(n int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used+n > a.capacity {
		return nabi.NoResources("sip: allocator budget exhausted (used=%d requested=%d capacity=%d)", a.used, n, a.capacity)
	}
	a.used += n
	return nil
}

// Used returns the cumulative number of bytes handed out so far.
func (a *Allocator) Used() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// AllocRegion hands out a page-rounded Region of the given size and
// protection.
func (a *Allocator) AllocRegion(size int, prot region.Prot, zero bool) (*region.Region, error) {
	if err := a.reserve(int64(size)); err != nil {
		return nil, err
	}
	return region.New(size, prot, zero)
}

// AllocWasmMemory hands out a WasmMemory. preSize reserves extra address
// space immediately below the heap for the caller's VM-context struct
// (only the process's first linear memory needs this); pass 0 otherwise.
func (a *Allocator) AllocWasmMemory(preSize int) (*WasmMemory, error) {
	if preSize < 0 {
		return nil, nabi.InvalidArgs("sip: negative pre-region size %d", preSize)
	}
	total := int64(preSize) + TotalSize
	if err := a.reserve(total); err != nil {
		return nil, err
	}
	return newWasmMemory(preSize)
}

// AllocWasmStack hands out a WasmStack usable for `size` bytes, flanked by
// two unmapped guard pages.
func (a *Allocator) AllocWasmStack(size int) (*WasmStack, error) {
	if size <= 0 {
		return nil, nabi.InvalidArgs("sip: invalid stack size %d", size)
	}
	total := int64(size) + 2*StackGuardSize
	if err := a.reserve(total); err != nil {
		return nil, err
	}
	return newWasmStack(size)
}
