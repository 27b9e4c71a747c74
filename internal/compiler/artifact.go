// Package compiler implements the WebAssembly→machine-code translator
// (spec.md §4.2): decode already done by internal/wasmdecode, lower each
// function body to x86-64 with internal/codegen, collect relocations and
// trap sites, merge into a single code Region carved from a
// sip.Allocator, resolve every relocation, and remap the Region
// read+execute.
package compiler

import (
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/nebulet/nebulet/internal/wasmtype"
)

// TrapKind identifies why a trapping instruction faulted, recorded in the
// Artifact's trap table so the page-fault bridge (internal/trap) can
// classify a code-region fault without re-decoding the instruction.
type TrapKind int

const (
	TrapHeapOutOfBounds TrapKind = iota
	TrapIntegerDivideByZero
	TrapBadConversionToInteger
	TrapUnreachable
	TrapIndirectCallTypeMismatch
	TrapStackOverflow
	TrapInterrupt
)

func (k TrapKind) String() string {
	switch k {
	case TrapHeapOutOfBounds:
		return "heap_out_of_bounds"
	case TrapIntegerDivideByZero:
		return "integer_divide_by_zero"
	case TrapBadConversionToInteger:
		return "bad_conversion_to_integer"
	case TrapUnreachable:
		return "unreachable"
	case TrapIndirectCallTypeMismatch:
		return "indirect_call_type_mismatch"
	case TrapStackOverflow:
		return "stack_overflow"
	case TrapInterrupt:
		return "interrupt"
	default:
		return "unknown_trap"
	}
}

// TrapRecord maps a code offset (absolute, within the final code Region)
// to the trap kind a fault there represents.
type TrapRecord struct {
	Offset uint64
	Kind   TrapKind
}

// HostFunction describes one entry in the fixed ABI table the Compiler's
// relocation step resolves imports against: a name, the wasm-visible
// signature (the trailing VM-context pointer is implicit, never part of
// this FuncType), and the function's native entry address.
type HostFunction struct {
	Name      string
	Signature wasmtype.FuncType
	Addr      uintptr
}

// HostResolver resolves an import's (module, name) to the host ABI
// function backing it. internal/abi implements this against its fixed
// call table.
type HostResolver interface {
	Resolve(module, name string) (HostFunction, bool)
}

// Artifact is the Wasm dispatcher's immutable compiled form (spec.md §3
// "Wasm (compiled module)"): the code Region (remapped read+execute), the
// ordered function-offset table, the trap table, the decoded module
// metadata, and the resolved entry point.
type Artifact struct {
	Code            *region.Region
	FuncOffsets     []uint64 // absolute offset of each module-defined function, parallel to Module.Functions
	TrapTable       []TrapRecord
	Module          *wasmdecode.Module
	EntryOffset     uint64 // absolute offset of the resolved start/main function
	HasEntry        bool
}
