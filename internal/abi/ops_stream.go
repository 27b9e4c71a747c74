package abi

import "github.com/nebulet/nebulet/internal/kobj"

// doStreamCreate implements env::stream_create(out_handles_ptr), the
// byte-oriented analogue of doChannelCreate.
func doStreamCreate(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	a, b := kobj.NewStreamPair()
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

// doStreamWrite implements env::stream_write(handle, ptr, len), possibly
// short (spec.md §4.6), returning the byte count actually accepted.
func doStreamWrite(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	s, err := kobj.GetTyped[*kobj.Stream](ud.Process.Handles(), args.u32(0), kobj.RightWrite)
	if err != nil {
		return pack(0, err)
	}
	mem := ud.Instance.Memories()[0]
	buf, err := carve(ud, mem, int(args.u32(1)), int(args.u32(2)))
	if err != nil {
		return pack(0, err)
	}
	n, err := s.Write(buf)
	return pack(uint32(n), err)
}

// doStreamRead implements env::stream_read(handle, ptr, max_len),
// possibly short, returning the byte count actually read.
func doStreamRead(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	s, err := kobj.GetTyped[*kobj.Stream](ud.Process.Handles(), args.u32(0), kobj.RightRead)
	if err != nil {
		return pack(0, err)
	}
	mem := ud.Instance.Memories()[0]
	buf, err := carve(ud, mem, int(args.u32(1)), int(args.u32(2)))
	if err != nil {
		return pack(0, err)
	}
	n, err := s.Read(buf)
	return pack(uint32(n), err)
}
