package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doThreadYield implements env::thread_yield(), cooperatively giving up
// the calling thread's turn (spec.md §4.7).
func doThreadYield(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ud.Process.Scheduler().Yield()
	return pack(0, nil)
}

// doThreadSpawn implements env::thread_spawn(func_table_index, arg),
// starting a new thread inside the calling process at a module-defined
// function index with a single i32 argument.
func doThreadSpawn(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	idx, err := ud.Process.SpawnEntry(args.u32(0), args.u32(1))
	return pack(uint32(idx), err)
}
