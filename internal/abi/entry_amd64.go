package abi

import "github.com/nebulet/nebulet/internal/nabi"

// abiEntry is the single native landing pad every generated stub (stub.go)
// jumps into: it spills the incoming SysV-ish argument registers
// internal/compiler/funcbody.go's calling convention uses (RDI, RSI, RDX,
// RCX, R8, R9), plus R15 (the op index the stub set) and R14 (the pinned
// VM-context pointer), onto the stack in the layout Go's ABI0 calling
// convention expects, then calls abiDispatchTrampoline — an ordinary Go
// function — exactly the way hand-written runtime assembly calls back
// into Go-implemented helpers. One shared entry point regardless of a
// call's real arity keeps this package's only hand-written assembly to a
// single function; ops that take fewer than six arguments simply ignore
// the unused trailing ones.
//
//go:noescape
func abiEntry()

// abiDispatchTrampoline is abiEntry's sole Go-side callee. op selects
// which registered ABI operation to run; a0..a5 carry its raw argument
// registers (reinterpreted per-op, since wasm i32/i64 params are already
// sign/zero-extended into 64-bit registers by the caller); vmctx is the
// VM-context pointer every ABI call dereferences to reach its Process and
// Instance (internal/kobj.UserDataAt).
func abiDispatchTrampoline(op, a0, a1, a2, a3, a4, a5 uint64, vmctx uintptr) uint64 {
	if int(op) >= len(ops) {
		return pack(0, nabi.Internal("abi: op index %d out of range", op))
	}
	return ops[op](rawArgs{a0, a1, a2, a3, a4, a5}, vmctx)
}
