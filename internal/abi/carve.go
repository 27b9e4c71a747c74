package abi

import (
	"github.com/nebulet/nebulet/internal/kobj"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/trap"
)

// carve is the page-fault-bridge-checked alternative to calling
// mem.Carve directly: the ABI ops that read or write a caller-supplied
// buffer (print, channel_send/channel_recv, stream_write/stream_read,
// random_fill/cprng_fill) run the access through trap.Resolve first
// (spec.md §4.8), so a pointer into the declared-but-not-yet-committed
// heap grows the heap instead of failing OUT_OF_BOUNDS, and a pointer
// past the guard region terminates the process instead of returning an
// error the caller could ignore. The handle out-pointer writes of
// channel_create, stream_create and interrupt_create, and the futex word
// accesses, do not go through carve: they use WasmMemory's own
// bounds-checked Read/WriteUint32, which return OUT_OF_BOUNDS for any
// address outside the committed heap.
func carve(ud *kobj.UserData, mem *sip.WasmMemory, offset, length int) ([]byte, error) {
	if err := trap.Resolve(ud.Process, mem, offset, length); err != nil {
		return nil, err
	}
	return mem.Carve(offset, length)
}
