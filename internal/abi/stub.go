package abi

import (
	"encoding/binary"
	"reflect"
	"unsafe"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sip"
)

// stubSize covers the two instructions a generated stub holds: MOV
// R15D, imm32 (6 bytes) then JMP rel32 (5 bytes). Allocated a full page
// at a time since region.New always rounds up; one page comfortably
// holds every stub this table will ever generate, but each op gets its
// own region for uniform lifetime bookkeeping (Table.Close).
const stubSize = 11

// abiEntryAddr is abiEntry's native code address (entry_amd64.s),
// resolved once via the func-value-to-entry-PC trick every hand-written
// Go/assembly call bridge in this codebase relies on (see also
// internal/kobj/callnative_amd64.go).
var abiEntryAddr = reflect.ValueOf(abiEntry).Pointer()

// generateStub writes a tiny native thunk into a fresh Region: load op
// into R15 (the same scratch register internal/codegen/amd64.go reserves
// as caller-clobbered, so clobbering it here is safe — the wasm caller's
// own use of it as a CALL target is already spent by the time this stub
// runs), then jump to the shared abiEntry trampoline. Compiled wasm code
// calls the returned address directly, exactly as it would call any
// other function (spec.md §4.2 step 5b).
func generateStub(alloc *sip.Allocator, op uint32) (uintptr, *region.Region, error) {
	r, err := alloc.AllocRegion(stubSize, region.Read|region.Write, true)
	if err != nil {
		return 0, nil, err
	}
	buf := r.Bytes()

	// MOV R15D, imm32 — REX.B (0x41) + opcode 0xB8+7 (R15D) + imm32.
	buf[0] = 0x41
	buf[1] = 0xBF
	binary.LittleEndian.PutUint32(buf[2:], op)

	// JMP rel32 — relative to the address of the instruction following
	// this JMP (offset 11, the stub's own end).
	stubBase := uintptr(unsafe.Pointer(&buf[0]))
	jmpEnd := stubBase + stubSize
	rel := int32(int64(abiEntryAddr) - int64(jmpEnd))
	buf[6] = 0xE9
	binary.LittleEndian.PutUint32(buf[7:], uint32(rel))

	if err := r.Remap(region.Read | region.Exec); err != nil {
		return 0, nil, nabi.Internal("abi: remap stub for op %d: %v", op, err)
	}
	return stubBase, r, nil
}
