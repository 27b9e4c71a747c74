package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doHandleClose implements env::handle_close(handle).
func doHandleClose(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	_, err := ud.Process.Handles().Free(args.u32(0))
	return pack(0, err)
}

// doHandleDuplicate implements env::handle_duplicate(handle, new_rights).
func doHandleDuplicate(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	newHandle, err := ud.Process.Handles().Duplicate(args.u32(0), kobj.HandleRights(args.u32(1)))
	return pack(newHandle, err)
}
