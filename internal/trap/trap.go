// Package trap implements the page-fault bridge (spec.md §4.8): the
// single function the architecture's fault handler would call with a
// faulting address, classifying it as a lazy-commit candidate, a heap
// out-of-bounds access, or a recorded code trap. No real hardware
// page-fault handler can be installed from a hosted Go process (spec.md
// §1 puts the architecture layer out of scope), so this package is
// reached proactively: the ABI's buffer accessor (internal/abi's carve)
// calls Resolve against the offset and length it is about to touch,
// before it calls sip.WasmMemory.Carve, instead of reacting to an
// asynchronous SIGSEGV. Faults raised by compiled code itself are not
// routed here.
package trap

import (
	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/kobj"
	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/sip"
)

// Kind distinguishes what Classify found.
type Kind int

const (
	// KindOK means the access already lies within the committed heap
	// prefix; nothing to resolve.
	KindOK Kind = iota
	// KindLazyCommit means the access lies within the declared heap but
	// past the committed prefix: spec.md §4.8 steps 2-3, the hot path.
	KindLazyCommit
	// KindHeapOutOfBounds means the access falls in the guard region or
	// beyond it entirely: spec.md §4.8 step 4.
	KindHeapOutOfBounds
)

// Fault is the result of classifying one heap access.
type Fault struct {
	Kind Kind
}

// Classify implements spec.md §4.8 steps 2-4 against a single linear
// memory: given the offset and length an ABI call is about to read or
// write, report whether the access is already satisfied, needs a lazy
// commit, or is out of bounds.
func Classify(mem *sip.WasmMemory, offset, length int) Fault {
	if mem.InMappedBounds(offset, length) {
		return Fault{Kind: KindOK}
	}
	if mem.InUnmappedBounds(offset, length) {
		return Fault{Kind: KindLazyCommit}
	}
	return Fault{Kind: KindHeapOutOfBounds}
}

// ClassifyCode implements spec.md §4.8 step 5: an illegal-opcode fault
// at codeOffset within the code region is resolved by looking up the
// compiled artifact's trap table rather than anything inferred from the
// fault address itself.
func ClassifyCode(art *compiler.Artifact, codeOffset uint64) (compiler.TrapKind, bool) {
	for _, rec := range art.TrapTable {
		if rec.Offset == codeOffset {
			return rec.Kind, true
		}
	}
	return 0, false
}

// Resolve implements the resolution half of spec.md §4.8: given the
// access an ABI call is about to make, it grows mem to cover the access
// on the lazy-commit path and returns nil, or terminates proc (step 6:
// "handling a trap other than lazy-commit terminates the Process") and
// never returns on anything else. Callers can treat a nil return as
// "safe to Carve now"; Resolve's termination path does not return to its
// caller at all.
func Resolve(proc *kobj.Process, mem *sip.WasmMemory, offset, length int) error {
	switch Classify(mem, offset, length).Kind {
	case KindOK:
		return nil
	case KindLazyCommit:
		pagesNeeded := pagesToCover(mem, offset, length)
		if _, err := mem.Grow(pagesNeeded); err != nil {
			proc.Trap(compiler.TrapHeapOutOfBounds)
		}
		return nil
	default:
		proc.Trap(compiler.TrapHeapOutOfBounds)
		return nabi.OutOfBounds("trap: unreachable, Process.Trap does not return")
	}
}

// pagesToCover returns how many additional WasmPageSize pages mem must
// grow by so that [offset, offset+length) falls within the committed
// prefix.
func pagesToCover(mem *sip.WasmMemory, offset, length int) int {
	need := offset + length - mem.CurrentPages()*sip.WasmPageSize
	if need <= 0 {
		return 0
	}
	pages := need / sip.WasmPageSize
	if need%sip.WasmPageSize != 0 {
		pages++
	}
	return pages
}
