package abi

import (
	"github.com/nebulet/nebulet/internal/kobj"
	"github.com/nebulet/nebulet/internal/nabi"
)

// doChannelCreate implements env::channel_create(out_handles_ptr),
// writing both endpoints of a fresh pair (spec.md §4.6) as two
// consecutive little-endian u32s at out_handles_ptr.
func doChannelCreate(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	a, b := kobj.NewChannelPair()
	handleA := ud.Process.Handles().Allocate(a.Upcast(), kobj.RightsAll)
	handleB := ud.Process.Handles().Allocate(b.Upcast(), kobj.RightsAll)

	mem := ud.Instance.Memories()[0]
	outPtr := int(args.u32(0))
	if err := mem.WriteUint32(outPtr, handleA); err != nil {
		return pack(0, err)
	}
	if err := mem.WriteUint32(outPtr+4, handleB); err != nil {
		return pack(0, err)
	}
	return pack(0, nil)
}

// doChannelSend implements env::channel_send(handle, ptr, len), copying
// len bytes out of the caller's first memory into a new queued message.
func doChannelSend(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ch, err := kobj.GetTyped[*kobj.Channel](ud.Process.Handles(), args.u32(0), kobj.RightWrite)
	if err != nil {
		return pack(0, err)
	}
	mem := ud.Instance.Memories()[0]
	buf, err := carve(ud, mem, int(args.u32(1)), int(args.u32(2)))
	if err != nil {
		return pack(0, err)
	}
	msg := kobj.Message{Bytes: append([]byte(nil), buf...)}
	return pack(0, ch.Send(msg))
}

// doChannelRecv implements env::channel_recv(handle, ptr, max_len),
// copying the oldest queued message into the caller's first memory if it
// fits within max_len, returning the message's actual byte length.
func doChannelRecv(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ch, err := kobj.GetTyped[*kobj.Channel](ud.Process.Handles(), args.u32(0), kobj.RightRead)
	if err != nil {
		return pack(0, err)
	}
	maxLen := int(args.u32(2))
	n, err := ch.FirstMsgLen()
	if err != nil {
		return pack(0, err)
	}
	if n > maxLen {
		return pack(0, nabi.InvalidArgs("channel_recv: %d-byte message exceeds %d-byte buffer", n, maxLen))
	}
	msg, err := ch.Recv()
	if err != nil {
		return pack(0, err)
	}
	mem := ud.Instance.Memories()[0]
	dst, err := carve(ud, mem, int(args.u32(1)), len(msg.Bytes))
	if err != nil {
		return pack(0, err)
	}
	copy(dst, msg.Bytes)
	return pack(uint32(len(msg.Bytes)), nil)
}

// doChannelFirstMsgLen implements env::channel_first_msg_len(handle).
func doChannelFirstMsgLen(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	ch, err := kobj.GetTyped[*kobj.Channel](ud.Process.Handles(), args.u32(0), kobj.RightRead)
	if err != nil {
		return pack(0, err)
	}
	n, err := ch.FirstMsgLen()
	return pack(uint32(n), err)
}
