// Package memmap provides the mmap/mprotect primitives that back every
// virtual-memory abstraction in this kernel: Region/LazyRegion guard pages
// and lazy commit (internal/region), the SipAllocator's reserved windows
// (internal/sip), and the executable code segments the compiler writes
// native function bodies into (internal/codegen).
//
// The original kernel manages its own page tables and physical frames;
// this rewrite runs hosted, so the OS's own demand-paged virtual memory —
// reached here through golang.org/x/sys/unix — stands in for that
// external collaborator.
package memmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Prot is a bitset of memory protection flags, mirroring mmap(2)'s PROT_*.
type Prot int

const (
	ProtNone  Prot = 0
	ProtRead  Prot = 1 << 0
	ProtWrite Prot = 1 << 1
	ProtExec  Prot = 1 << 2
)

func (p Prot) unix() int {
	var v int
	if p&ProtRead != 0 {
		v |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		v |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		v |= unix.PROT_EXEC
	}
	return v
}

// Reserve maps a size-byte anonymous, private region with the given initial
// protection. size is rounded up by the kernel to a whole number of pages;
// callers that need guard pages should Reserve with ProtNone and Protect
// the committed sub-ranges afterward.
func Reserve(size int, prot Prot) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memmap: invalid reservation size %d", size)
	}
	b, err := unix.Mmap(-1, 0, size, prot.unix(), unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("memmap: mmap %d bytes: %w", size, err)
	}
	return b, nil
}

// Protect changes the protection of an existing mapped range in place. b
// must be (a sub-slice of) a []byte previously returned by Reserve.
func Protect(b []byte, prot Prot) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Mprotect(b, prot.unix()); err != nil {
		return fmt.Errorf("memmap: mprotect %d bytes: %w", len(b), err)
	}
	return nil
}

// Unmap releases a mapping previously returned by Reserve. Unmapping twice,
// or unmapping a slice that isn't exactly a mapping's backing array, is a
// programmer error and returns an error rather than panicking the process.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("memmap: munmap %d bytes: %w", len(b), err)
	}
	return nil
}

// MmapCodeSegment reserves a fresh read+write region sized for size bytes
// of native machine code. Callers write instructions into the returned
// slice, then call Protect(seg, ProtRead|ProtExec) once code emission for
// that segment is finished — machine code is never both writable and
// executable at the same time.
func MmapCodeSegment(size int) ([]byte, error) {
	return Reserve(size, ProtRead|ProtWrite)
}

// MunmapCodeSegment unmaps a code segment returned by MmapCodeSegment.
func MunmapCodeSegment(seg []byte) error {
	return Unmap(seg)
}

// RemapCodeSegment grows (or shrinks) a code segment to newSize, copying
// its contents. mmap has no portable "extend in place" primitive, so this
// allocates a new mapping, copies min(len(old), newSize) bytes across, and
// unmaps the old one — mirroring how a bump allocator would grow a carved
// region by remapping rather than sliding neighbours.
func RemapCodeSegment(old []byte, newSize int) ([]byte, error) {
	next, err := MmapCodeSegment(newSize)
	if err != nil {
		return nil, err
	}
	n := copy(next, old)
	_ = n
	if err := MunmapCodeSegment(old); err != nil {
		// The new mapping is still valid; surface the unmap failure but
		// keep the caller's data intact rather than losing the segment.
		return next, fmt.Errorf("memmap: remap: %w", err)
	}
	return next, nil
}
