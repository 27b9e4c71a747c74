package sip

// WasmPageSize is the unit WebAssembly linear memory grows by.
const WasmPageSize = 64 * 1024

// Per spec.md §6 "Memory layout": each wasm memory occupies 8 GiB of
// virtual address space (4 GiB heap + 4 GiB guard). Compiled code assumes
// the 4 GiB offset fast path for bounds-free indexing, so these are
// contracts, not tuning knobs.
const (
	HeapSize  = 4 << 30
	GuardSize = 4 << 30
	TotalSize = HeapSize + GuardSize
)

// StackGuardSize is the size of the two unmapped guard pages flanking a
// WasmStack.
const StackGuardSize = 4096

// WindowSize bounds the total bytes the SipAllocator will ever hand out.
// spec.md §6 places the SIP window at a 2 GiB *offset* below the
// handle-table window in the kernel's fixed address map; that figure
// describes placement in a bare-metal layout this hosted rewrite doesn't
// reproduce (addresses come from the OS, not a fixed map). The budget
// below is sized generously instead, scaled to how many 8 GiB wasm
// memories and stacks a real boot sequence needs; SipAllocator enforces
// it as a NO_RESOURCES ceiling rather than a literal address range.
const WindowSize = 1 << 40

