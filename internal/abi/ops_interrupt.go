package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doInterruptCreate implements env::interrupt_create(vector, flags,
// out_channel_handle_ptr). Binds vector to a fresh Interrupt (unmasking
// before a wait, remasking after ack, per the flags), installs the
// Interrupt itself under a returned handle, and writes the handle of the
// channel a driver reads fired timestamps from to out_channel_handle_ptr.
//
// Adapted from original_source/src/abi/interrupt.rs, which instead takes
// an already-allocated channel handle: this rewrite's Interrupt always
// owns its own channel pair (internal/kobj.NewInterrupt), so creation
// hands back both resulting handles instead of consuming one.
func doInterruptCreate(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	vector := args.u32(0)
	flags := kobj.InterruptFlags(args.u32(1))
	outPtr := int(args.u32(2))

	irq, readEnd := kobj.NewInterrupt(vector, flags)
	irqHandle := ud.Process.Handles().Allocate(kobj.NewDispatch[*kobj.Interrupt](irq).Upcast(), kobj.RightsAll)
	chanHandle := ud.Process.Handles().Allocate(readEnd.Upcast(), kobj.RightsAll)

	mem := ud.Instance.Memories()[0]
	if err := mem.WriteUint32(outPtr, chanHandle); err != nil {
		return pack(0, err)
	}
	return pack(irqHandle, nil)
}

// doInterruptAck implements env::interrupt_ack(handle).
func doInterruptAck(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	irq, err := kobj.GetTyped[*kobj.Interrupt](ud.Process.Handles(), args.u32(0), kobj.RightWrite)
	if err != nil {
		return pack(0, err)
	}
	return pack(0, irq.Ack())
}
