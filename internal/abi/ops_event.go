package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doEventCreate implements env::event_create() -> handle.
func doEventCreate(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ev := kobj.NewDispatch[*kobj.Event](kobj.NewEvent(ud.Process.Scheduler(), kobj.EventNormal))
	handle := ud.Process.Handles().Allocate(ev.Upcast(), kobj.RightsAll)
	return pack(handle, nil)
}

// doEventWait implements env::event_wait(handle), blocking the calling
// thread until the event is signaled.
func doEventWait(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ev, err := kobj.GetTyped[*kobj.Event](ud.Process.Handles(), args.u32(0), kobj.RightRead)
	if err != nil {
		return pack(0, err)
	}
	ev.Wait()
	return pack(0, nil)
}

// doEventTrigger implements env::event_trigger(handle), returning the
// number of waiters woken.
func doEventTrigger(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ev, err := kobj.GetTyped[*kobj.Event](ud.Process.Handles(), args.u32(0), kobj.RightWrite)
	if err != nil {
		return pack(0, err)
	}
	return pack(uint32(ev.Trigger()), nil)
}
