package abi

import (
	"github.com/nebulet/nebulet/internal/kobj"
	"github.com/nebulet/nebulet/internal/nabi"
)

// doObjectWaitOne implements env::object_wait_one(handle, signals),
// blocking until any of the requested signals are observed on handle's
// object, then returning the observed subset.
func doObjectWaitOne(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	h, err := ud.Process.Handles().Get(args.u32(0))
	if err != nil {
		return pack(0, err)
	}
	mask := kobj.Signal(args.u32(1))
	ev := kobj.NewEvent(ud.Process.Scheduler(), kobj.EventAutoUnsignal)
	observed := kobj.WaitOne(h.Dispatch.Value.Ctx(), ev, mask)
	return pack(uint32(observed), nil)
}

// doObjectSignal implements env::object_signal(handle, assert, deassert),
// restricted to the bits the target dispatcher declares user-assignable.
func doObjectSignal(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	h, err := ud.Process.Handles().Get(args.u32(0))
	if err != nil {
		return pack(0, err)
	}
	assert := kobj.Signal(args.u32(1))
	deassert := kobj.Signal(args.u32(2))
	allowed := h.Dispatch.Value.AllowedUserSignals()
	if assert&^allowed != 0 || deassert&^allowed != 0 {
		return pack(0, nabi.AccessDenied("object_signal: signal bits not user-assignable"))
	}
	h.Dispatch.Value.Ctx().Signal(assert, deassert)
	return pack(0, nil)
}
