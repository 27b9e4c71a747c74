package abi

import "github.com/nebulet/nebulet/internal/nabi"

// rawArgs holds an ABI call's six possible argument registers, already
// widened to 64 bits by the caller (compiled wasm code sign/zero-extends
// i32 params itself, per internal/codegen's parameter convention).
// Individual op handlers reinterpret only as many fields as their
// registered signature declares.
type rawArgs struct {
	a0, a1, a2, a3, a4, a5 uint64
}

func (a rawArgs) u32(i int) uint32 {
	switch i {
	case 0:
		return uint32(a.a0)
	case 1:
		return uint32(a.a1)
	case 2:
		return uint32(a.a2)
	case 3:
		return uint32(a.a3)
	case 4:
		return uint32(a.a4)
	default:
		return uint32(a.a5)
	}
}

func (a rawArgs) u64(i int) uint64 {
	switch i {
	case 0:
		return a.a0
	case 1:
		return a.a1
	case 2:
		return a.a2
	case 3:
		return a.a3
	case 4:
		return a.a4
	default:
		return a.a5
	}
}

// pack multiplexes a call's outcome into the Result<u32> layout spec.md
// §6 defines: the low 32 bits carry val (meaningless on error), the high
// 32 bits carry the nabi.Status discriminant.
func pack(val uint32, err error) uint64 {
	return uint64(val) | uint64(nabi.StatusOf(err))<<32
}

// op is the signature every registered ABI operation implements:
// reinterpret the raw argument registers against vmctx's Process and
// Instance, perform the kernel operation, and report the packed result.
type op func(args rawArgs, vmctx uintptr) uint64
