package compiler

// VM-context field layout (spec.md §4.4): the struct placed immediately
// below a process's first linear memory, whose address every compiled
// function receives in codegen.RegVMCtx as its hidden trailing argument.
// internal/kobj builds the struct at these exact offsets so compiled code
// and the kernel agree on its shape without either importing the other.
const (
	VMCtxGlobalsOffset  = 0  // *uint64, the instance's globals buffer
	VMCtxMemoriesOffset = 8  // **byte, secondary linear memories array
	VMCtxTablesOffset   = 16 // **uintptr, tables array (resolved function addresses)
	VMCtxUserDataOffset = 24 // *UserData (opaque to compiled code; Process+Instance)
	VMCtxFixedSize      = 32
)
