// Package wasmtype carries the WebAssembly value- and external-kind byte
// vocabulary used throughout decode, compile, and the ABI signature-match
// rule. Adapted from the teacher's api value-type constants, trimmed of
// the embedder-facing Module/Function/Memory interfaces this kernel has
// no use for: Nebulet has no multi-tenant embedding surface, just the one
// compiled artifact a process runs.
package wasmtype

// ValueType is the binary encoding of a WebAssembly value type.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Size returns the value's size in bytes.
func (v ValueType) Size() int {
	switch v {
	case ValueTypeI32, ValueTypeF32:
		return 4
	case ValueTypeI64, ValueTypeF64:
		return 8
	default:
		return 0
	}
}

// ExternType is the binary encoding of a WebAssembly import/export kind.
type ExternType byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

func (e ExternType) String() string {
	switch e {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// FuncType is a function signature: parameter and result value types.
// The ABI signature-match rule (spec.md §4.2) compares these
// element-wise against the host ABI table.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two signatures match element-wise.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// GlobalType is a global variable's value type and mutability.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

// Limits is a WebAssembly resizable-limits pair (table/memory).
type Limits struct {
	Min uint32
	Max uint32 // valid only if HasMax
	HasMax bool
}
