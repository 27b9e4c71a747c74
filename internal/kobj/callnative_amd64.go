package kobj

// Go cannot call through a raw machine-code address directly: a function
// value needs a Go-recognized func type, and compiled wasm code
// (internal/compiler's output) is neither that nor cgo-wrapped. These two
// tiny assembly trampolines (callnative_amd64.s) bridge the gap, matching
// the pinned calling convention internal/compiler/funcbody.go and
// internal/codegen/amd64.go emit: integer arguments in RDI/RSI/.../R9,
// the VM-context pointer always in R14 (codegen.RegVMCtx), return value
// in RAX.
//
// Deliberate simplification: the trampoline does
// not switch RSP onto the thread's sip.WasmStack before calling. Doing
// so would leave the Go runtime's own per-goroutine stack-bounds
// bookkeeping pointing at the wrong memory for the duration of the call,
// which is unsound the moment compiled code calls back into an ABI host
// function that is itself ordinary, stack-growth-checked Go code. Running
// compiled code on the calling goroutine's own (growable) stack avoids
// that hazard at the cost of WasmStack's guard pages no longer being the
// address range overflow is actually detected against; this rewrite
// accepts that trade for the call depths spec.md's scenarios exercise.

// callEntry0 invokes a zero-argument wasm entry point (a module's start
// function or exported "main"), the shape Process.start uses for thread
// 0's entry.
//
//go:noescape
func callEntry0(target, vmctx uintptr) uint64

// callEntry1 invokes a one-i32-argument wasm entry point with the
// trailing VM-context pointer, the shape thread_spawn's validated entry
// signature `(i32, VMContext) -> ()` requires.
//
//go:noescape
func callEntry1(target uintptr, arg uint64, vmctx uintptr) uint64
