package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doPfexAcquire implements env::pfex_acquire(offset), the futex fast/slow
// acquire path keyed on an offset into the caller's first wasm memory
// (spec.md §4.6).
func doPfexAcquire(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	err := kobj.PfexAcquire(ud.Instance, args.u32(0), ud.Process.Futex())
	return pack(0, err)
}

// doPfexRelease implements env::pfex_release(offset).
func doPfexRelease(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	err := kobj.PfexRelease(ud.Instance, args.u32(0), ud.Process.Futex())
	return pack(0, err)
}
