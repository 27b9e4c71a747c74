package abi

import (
	"crypto/rand"

	"github.com/nebulet/nebulet/internal/kobj"
)

// doRandRandomFill implements rand::random_fill(ptr, len): fills len
// bytes of the caller's first memory at ptr with non-deterministic
// randomness. crypto/rand is the standard library's own CSPRNG source;
// no third-party package in the retrieval pack offers one (see
// DESIGN.md).
func doRandRandomFill(args rawArgs, vmctx uintptr) uint64 {
	return fillRandom(args, vmctx)
}

// doRandCprngFill implements rand::cprng_fill(ptr, len), the
// cryptographically-secure variant. crypto/rand already is a CSPRNG, so
// this rewrite backs both calls with the same source; the original
// kernel's distinction between a fast non-crypto generator and a slower
// CSPRNG has no hosted-process analogue worth keeping separate here.
func doRandCprngFill(args rawArgs, vmctx uintptr) uint64 {
	return fillRandom(args, vmctx)
}

func fillRandom(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	mem := ud.Instance.Memories()[0]
	buf, err := carve(ud, mem, int(args.u32(0)), int(args.u32(1)))
	if err != nil {
		return pack(0, err)
	}
	n, err := rand.Read(buf)
	return pack(uint32(n), err)
}
