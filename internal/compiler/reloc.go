package compiler

// relocKind identifies what a relocation's 8-byte absolute-address slot
// must be patched with.
type relocKind int

const (
	relocIntraModule relocKind = iota
	relocImport
	relocIntrinsic
)

// reloc is a pending absolute-address patch within one function's
// compiled code, function-relative until the function is copied into the
// merged code Region (spec.md §4.2 step 5: "resolve every relocation to
// an absolute address").
type reloc struct {
	offset          uint64 // byte offset, function-relative, of the 8-byte slot to patch
	kind            relocKind
	targetFuncIndex uint32 // relocIntraModule: global function index of the callee
	importIndex     uint32 // relocImport: index into Module.Imports
	intrinsic       string // relocIntrinsic: "grow_memory" | "current_memory"
}
