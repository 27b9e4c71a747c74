package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doProcessCreate implements env::process_create(wasm_handle), building a
// child Process against an already-compiled Wasm dispatch the caller
// holds a handle to, and installing it under a new handle (spec.md §4.3's
// Process::create, re-entered from inside a running process rather than
// only from internal/boot).
func doProcessCreate(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	h, err := ud.Process.Handles().Get(args.u32(0))
	if err != nil {
		return pack(0, err)
	}
	wasm, err := kobj.DowncastRef[*kobj.Wasm](h.Dispatch)
	if err != nil {
		return pack(0, err)
	}

	child, err := kobj.CreateProcess(ud.Process.Name+"-child", wasm, ud.Process.Allocator(), ud.Process.Scheduler())
	if err != nil {
		return pack(0, err)
	}
	handle := ud.Process.Handles().Allocate(kobj.NewDispatch[*kobj.Process](child).Upcast(), kobj.RightsAll)
	return pack(handle, nil)
}

// doProcessStart implements env::process_start(process_handle), running
// the entry point of the Process referenced by handle.
func doProcessStart(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	child, err := kobj.GetTyped[*kobj.Process](ud.Process.Handles(), args.u32(0), kobj.RightWrite)
	if err != nil {
		return pack(0, err)
	}
	return pack(0, child.Start())
}
