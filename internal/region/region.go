// Package region implements Region and LazyRegion: the kernel's owned
// spans of virtual memory. Region is eagerly mapped for its whole span;
// LazyRegion commits pages on demand, the way a process's wasm linear
// memory and thread stacks are backed.
//
// Both types are hosted on top of internal/memmap (real mmap/mprotect):
// this rewrite runs as an ordinary process rather than owning page tables,
// so the OS's demand paging stands in for the physical frame allocator and
// page-table mapper the core spec treats as external collaborators.
package region

import (
	"fmt"

	"github.com/nebulet/nebulet/internal/memmap"
	"github.com/nebulet/nebulet/internal/nabi"
)

// PageSize is the unit of commit/protection change throughout this
// package, matching the 4-KiB page the spec's target ISA assumes.
const PageSize = 4096

// Prot re-exports memmap's protection bits under the vocabulary the rest
// of the kernel uses (read/write/execute).
type Prot = memmap.Prot

const (
	Read  = memmap.ProtRead
	Write = memmap.ProtWrite
	Exec  = memmap.ProtExec
)

// Region is the exclusive owner of a contiguous virtual span that is
// fully mapped and accessible under a current protection set for its
// entire lifetime.
type Region struct {
	mem  []byte
	prot Prot
}

// New maps size bytes (rounded up to a page by the OS) under prot. zero is
// accepted for contract symmetry with the original spec: anonymous mmap
// pages are always zero-filled by the kernel, so this is never observably
// false, but callers that need not-necessarily-zeroed semantics should not
// rely on region ever returning garbage.
func New(size int, prot Prot, zero bool) (*Region, error) {
	if size <= 0 {
		return nil, nabi.InvalidArgs("region: invalid size %d", size)
	}
	mem, err := memmap.Reserve(size, prot)
	if err != nil {
		return nil, nabi.NoMemory("region: %v", err)
	}
	return &Region{mem: mem, prot: prot}, nil
}

// Bytes returns the region's backing slice. Callers must not retain it
// past Close.
func (r *Region) Bytes() []byte { return r.mem }

// Len returns the region's current size in bytes.
func (r *Region) Len() int { return len(r.mem) }

// Prot returns the region's current protection set.
func (r *Region) Prot() Prot { return r.prot }

// Remap updates the protection of every page in the region, e.g. the
// compiler's read+write→read+execute transition once code emission into a
// code region is finished.
func (r *Region) Remap(newProt Prot) error {
	if err := memmap.Protect(r.mem, newProt); err != nil {
		return nabi.Internal("region: remap: %v", err)
	}
	r.prot = newProt
	return nil
}

// Resize grows the region by mapping newSize-len(r.mem) bytes at the tail
// (zeroing, vacuously, since fresh anonymous pages always are), or shrinks
// it by releasing the tail pages. The region may move in the process
// address space; Bytes must be re-read afterward.
func (r *Region) Resize(newSize int, zero bool) error {
	if newSize <= 0 {
		return nabi.InvalidArgs("region: invalid resize target %d", newSize)
	}
	if newSize == len(r.mem) {
		return nil
	}
	next, err := memmap.Reserve(newSize, memmap.ProtRead|memmap.ProtWrite)
	if err != nil {
		return nabi.NoMemory("region: resize: %v", err)
	}
	n := len(r.mem)
	if newSize < n {
		n = newSize
	}
	copy(next, r.mem[:n])
	if err := memmap.Protect(next, r.prot); err != nil {
		memmap.Unmap(next)
		return nabi.Internal("region: resize: protect new span: %v", err)
	}
	if err := memmap.Unmap(r.mem); err != nil {
		return nabi.Internal("region: resize: unmap old span: %v", err)
	}
	r.mem = next
	return nil
}

// Close unmaps the region's entire span. A Region must never be used
// after Close.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	err := memmap.Unmap(r.mem)
	r.mem = nil
	if err != nil {
		return fmt.Errorf("region: close: %w", err)
	}
	return nil
}
