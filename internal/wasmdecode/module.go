// Package wasmdecode parses the WebAssembly MVP binary format into a
// Module description the compiler (internal/compiler) lowers to machine
// code. Split out as its own package the way every wasm-touching repo in
// the retrieval pack (the teacher included) separates decode from
// compile — spec.md folds this into "Compiler" step 1, but keeping decode
// independent lets it be tested and reused on its own.
package wasmdecode

import "github.com/nebulet/nebulet/internal/wasmtype"

// Module is the fully decoded, immutable description of a WebAssembly
// binary's static structure.
type Module struct {
	Types     []wasmtype.FuncType
	Imports   []Import
	Functions []uint32 // type index per module-defined function, parallel to Code
	Tables    []wasmtype.Limits
	Memories  []wasmtype.Limits
	Globals   []Global
	Exports   []Export
	Elements  []ElementSegment
	Code      []CodeBody
	Data      []DataSegment
	StartFunc *uint32
}

// Import describes a single imported definition.
type Import struct {
	Module string
	Name   string
	Kind   wasmtype.ExternType

	TypeIndex    uint32             // valid when Kind == ExternTypeFunc
	TableLimits  wasmtype.Limits    // valid when Kind == ExternTypeTable
	MemoryLimits wasmtype.Limits    // valid when Kind == ExternTypeMemory
	Global       wasmtype.GlobalType // valid when Kind == ExternTypeGlobal
}

// Export describes a single exported definition.
type Export struct {
	Name  string
	Kind  wasmtype.ExternType
	Index uint32
}

// Global is a module-defined global: its type and constant initializer.
// spec.md §4.3 restricts supported initializer forms to I32/I64/F32/F64
// constants.
type Global struct {
	Type wasmtype.GlobalType
	Init ConstExpr
}

// ConstKind identifies which field of a ConstExpr is populated.
type ConstKind byte

const (
	ConstI32 ConstKind = iota
	ConstI64
	ConstF32
	ConstF64
)

// ConstExpr is a constant initializer expression: a single const
// instruction followed by `end`, the only form spec.md §4.3 requires.
type ConstExpr struct {
	Kind ConstKind
	I32  int32
	I64  int64
	F32  float32
	F64  float64
}

// ElementSegment initializes a range of a table with resolved function
// indices.
type ElementSegment struct {
	TableIndex  uint32
	Offset      ConstExpr
	FuncIndices []uint32
}

// CodeBody is a module-defined function's decoded locals declaration and
// raw instruction bytes; the compiler lowers the instruction stream
// itself (wasmdecode stops at the boundary between structure and code).
type CodeBody struct {
	Locals []wasmtype.ValueType
	Body   []byte
}

// DataSegment initializes a range of a memory with literal bytes.
type DataSegment struct {
	MemoryIndex uint32
	Offset      ConstExpr
	Bytes       []byte
}

// FuncType returns the declared signature of function index idx, counting
// imported functions first the way the wasm index space does.
func (m *Module) FuncType(idx uint32) (wasmtype.FuncType, bool) {
	n := uint32(0)
	for _, imp := range m.Imports {
		if imp.Kind != wasmtype.ExternTypeFunc {
			continue
		}
		if n == idx {
			return m.Types[imp.TypeIndex], true
		}
		n++
	}
	local := idx - n
	if local >= uint32(len(m.Functions)) {
		return wasmtype.FuncType{}, false
	}
	return m.Types[m.Functions[local]], true
}

// NumImportedFuncs returns the number of function imports, i.e. the size
// of the imported prefix of the function index space.
func (m *Module) NumImportedFuncs() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == wasmtype.ExternTypeFunc {
			n++
		}
	}
	return n
}
