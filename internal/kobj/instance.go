package kobj

import (
	"encoding/binary"
	"math"
	"sync"
	"unsafe"

	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
)

// UserData is what a process's VM context's hidden user-data pointer
// resolves to: the Process and Instance an ABI call needs to service a
// request (spec.md §4.4: "dereference the context to obtain the Process
// and the Instance"). Compiled code never reads this struct itself; only
// internal/abi's host functions do, after recovering it from the raw
// pointer the VM context stores.
type UserData struct {
	Process  *Process
	Instance *Instance
}

// Instance is a process's mutable runtime state constructed from a
// compiled Wasm artifact (spec.md §3 "Instance", §4.3): one LazyRegion
// per declared memory (the first reserving a pre-region for the VM
// context), one resolved function-address table per declared table, and
// a flat globals buffer. Grounded on
// original_source/src/task/process.rs's Instance field and
// original_source/src/vmctx.rs's context layout.
type Instance struct {
	artifact *compiler.Artifact
	memories []*sip.WasmMemory

	tableRegions []*region.Region // one per declared table, holding resolved func addrs
	tablesPtr    *region.Region   // array of pointers to each tableRegions entry
	secondaryMem *region.Region   // array of pointers to memories[1:], for VMCtxMemoriesOffset

	globals *region.Region // flat []uint64, one slot per declared global

	userData *UserData

	memMu sync.Mutex // serializes the futex fast path against memories[0]
}

// NewInstance allocates and initializes an Instance from art (spec.md
// §4.3's exact algorithm): grow each memory to its declared initial page
// count, apply data initializers, build each table and apply element
// initializers, and initialize globals from their constant
// initializers.
func NewInstance(art *compiler.Artifact, alloc *sip.Allocator) (*Instance, error) {
	mod := art.Module
	if len(mod.Memories) == 0 {
		return nil, nabi.Internal("instance: module declares no memories")
	}

	inst := &Instance{artifact: art}

	for i, limit := range mod.Memories {
		preSize := 0
		if i == 0 {
			preSize = compiler.VMCtxFixedSize
		}
		mem, err := alloc.AllocWasmMemory(preSize)
		if err != nil {
			return nil, err
		}
		if _, err := mem.Grow(int(limit.Min)); err != nil {
			return nil, err
		}
		inst.memories = append(inst.memories, mem)
	}

	for _, d := range mod.Data {
		if int(d.MemoryIndex) >= len(inst.memories) {
			return nil, nabi.Internal("instance: data segment references missing memory %d", d.MemoryIndex)
		}
		mem := inst.memories[d.MemoryIndex]
		off := int(d.Offset.I32)
		need := off + len(d.Bytes)
		if committed := mem.CurrentPages() * sip.WasmPageSize; need > committed {
			pages := (need-committed+sip.WasmPageSize-1) / sip.WasmPageSize
			if _, err := mem.Grow(pages); err != nil {
				return nil, err
			}
		}
		dst, err := mem.Carve(off, len(d.Bytes))
		if err != nil {
			return nil, err
		}
		copy(dst, d.Bytes)
	}

	numImported := mod.NumImportedFuncs()
	funcAddr := func(funcIdx uint32) (uintptr, error) {
		if funcIdx < numImported {
			return 0, nabi.Internal("instance: table element references imported function %d (unsupported)", funcIdx)
		}
		local := funcIdx - numImported
		if int(local) >= len(art.FuncOffsets) {
			return 0, nabi.Internal("instance: table element references out-of-range function %d", funcIdx)
		}
		base := uintptr(unsafe.Pointer(&art.Code.Bytes()[0]))
		return base + uintptr(art.FuncOffsets[local]), nil
	}

	tableSlices := make([][]uintptr, len(mod.Tables))
	for i, limit := range mod.Tables {
		size := int(limit.Min)
		if size == 0 {
			size = 1
		}
		tableSlices[i] = make([]uintptr, size)
	}
	for _, el := range mod.Elements {
		if int(el.TableIndex) >= len(tableSlices) {
			return nil, nabi.Internal("instance: element segment references missing table %d", el.TableIndex)
		}
		table := tableSlices[el.TableIndex]
		off := int(el.Offset.I32)
		for i, funcIdx := range el.FuncIndices {
			addr, err := funcAddr(funcIdx)
			if err != nil {
				return nil, err
			}
			if off+i >= len(table) {
				return nil, nabi.OutOfBounds("instance: element segment overruns table %d", el.TableIndex)
			}
			table[off+i] = addr
		}
	}

	for _, table := range tableSlices {
		r, err := alloc.AllocRegion(max(len(table)*8, 8), region.Read|region.Write, true)
		if err != nil {
			return nil, err
		}
		for i, addr := range table {
			binary.LittleEndian.PutUint64(r.Bytes()[i*8:], uint64(addr))
		}
		inst.tableRegions = append(inst.tableRegions, r)
	}

	tablesPtr, err := alloc.AllocRegion(max(len(inst.tableRegions)*8, 8), region.Read|region.Write, true)
	if err != nil {
		return nil, err
	}
	for i, r := range inst.tableRegions {
		binary.LittleEndian.PutUint64(tablesPtr.Bytes()[i*8:], uint64(uintptr(unsafe.Pointer(&r.Bytes()[0]))))
	}
	inst.tablesPtr = tablesPtr

	secondary, err := alloc.AllocRegion(max((len(inst.memories)-1)*8, 8), region.Read|region.Write, true)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(inst.memories); i++ {
		addr := uintptr(unsafe.Pointer(&inst.memories[i].Memory()[0]))
		binary.LittleEndian.PutUint64(secondary.Bytes()[(i-1)*8:], uint64(addr))
	}
	inst.secondaryMem = secondary

	globals, err := alloc.AllocRegion(max(len(mod.Globals)*8, 8), region.Read|region.Write, true)
	if err != nil {
		return nil, err
	}
	for i, g := range mod.Globals {
		var bits uint64
		switch g.Init.Kind {
		case wasmdecode.ConstI32:
			bits = uint64(uint32(g.Init.I32))
		case wasmdecode.ConstI64:
			bits = uint64(g.Init.I64)
		case wasmdecode.ConstF32:
			bits = uint64(math.Float32bits(g.Init.F32))
		case wasmdecode.ConstF64:
			bits = math.Float64bits(g.Init.F64)
		default:
			return nil, nabi.Internal("instance: unsupported global initializer kind")
		}
		binary.LittleEndian.PutUint64(globals.Bytes()[i*8:], bits)
	}
	inst.globals = globals

	return inst, nil
}

// Memories returns the instance's linear memories, memories[0] always
// present and carrying the VM-context pre-region.
func (inst *Instance) Memories() []*sip.WasmMemory { return inst.memories }

// Artifact returns the compiled artifact this instance was built from,
// the handle thread_spawn (internal/abi) needs to resolve a function
// table index to a native call address.
func (inst *Instance) Artifact() *compiler.Artifact { return inst.artifact }

// FuncAddr resolves a module-defined (non-imported) function index to
// its native code address, the same lookup NewInstance performs when
// populating table element addresses.
func (inst *Instance) FuncAddr(funcIdx uint32) (uintptr, error) {
	numImported := inst.artifact.Module.NumImportedFuncs()
	if funcIdx < numImported {
		return 0, nabi.Internal("instance: function index %d is an import, not callable directly", funcIdx)
	}
	local := funcIdx - numImported
	if int(local) >= len(inst.artifact.FuncOffsets) {
		return 0, nabi.OutOfBounds("instance: function index %d out of range", funcIdx)
	}
	base := uintptr(unsafe.Pointer(&inst.artifact.Code.Bytes()[0]))
	return base + uintptr(inst.artifact.FuncOffsets[local]), nil
}

// BuildVMContext writes the fixed-layout VM-context struct
// (internal/compiler's VMCtx*Offset constants) into memories[0]'s
// pre-region and records userData as the context u's hidden user-data
// pointer resolves to.
func (inst *Instance) BuildVMContext(proc *Process) error {
	if len(inst.memories) == 0 {
		return nabi.Internal("instance: no memories to host a VM context")
	}
	inst.userData = &UserData{Process: proc, Instance: inst}

	area := inst.memories[0].VMContextArea()
	if len(area) < compiler.VMCtxFixedSize {
		return nabi.Internal("instance: VM-context pre-region too small")
	}
	binary.LittleEndian.PutUint64(area[compiler.VMCtxGlobalsOffset:], uint64(uintptr(unsafe.Pointer(&inst.globals.Bytes()[0]))))
	binary.LittleEndian.PutUint64(area[compiler.VMCtxMemoriesOffset:], uint64(uintptr(unsafe.Pointer(&inst.secondaryMem.Bytes()[0]))))
	binary.LittleEndian.PutUint64(area[compiler.VMCtxTablesOffset:], uint64(uintptr(unsafe.Pointer(&inst.tablesPtr.Bytes()[0]))))
	binary.LittleEndian.PutUint64(area[compiler.VMCtxUserDataOffset:], uint64(uintptr(unsafe.Pointer(inst.userData))))
	return nil
}

// VMContextAddr returns the address compiled code receives as its
// hidden trailing argument: the base of memories[0]'s pre-region.
func (inst *Instance) VMContextAddr() uintptr {
	return uintptr(unsafe.Pointer(&inst.memories[0].VMContextArea()[0]))
}

// UserDataAt recovers the UserData a VM-context pointer resolves to,
// the operation every ABI host function performs on entry.
func UserDataAt(vmctx uintptr) *UserData {
	area := unsafe.Slice((*byte)(unsafe.Pointer(vmctx)), compiler.VMCtxFixedSize)
	addr := binary.LittleEndian.Uint64(area[compiler.VMCtxUserDataOffset:])
	return (*UserData)(unsafe.Pointer(uintptr(addr)))
}

// Close releases every region and memory the instance allocated.
func (inst *Instance) Close() {
	for _, m := range inst.memories {
		m.Close()
	}
	for _, r := range inst.tableRegions {
		r.Close()
	}
	if inst.tablesPtr != nil {
		inst.tablesPtr.Close()
	}
	if inst.secondaryMem != nil {
		inst.secondaryMem.Close()
	}
	if inst.globals != nil {
		inst.globals.Close()
	}
}

// LoadUint32 implements FutexMemory against the instance's first memory,
// the only one ABI futex calls ever key an offset into (spec.md §4.6:
// "Keyed by a 32-bit offset into the caller's first wasm memory").
func (inst *Instance) LoadUint32(offset uint32) (uint32, error) {
	inst.memMu.Lock()
	defer inst.memMu.Unlock()
	return inst.memories[0].ReadUint32(int(offset))
}

// StoreUint32 implements FutexMemory.
func (inst *Instance) StoreUint32(offset uint32, val uint32) error {
	inst.memMu.Lock()
	defer inst.memMu.Unlock()
	return inst.memories[0].WriteUint32(int(offset), val)
}

// CompareAndSwapUint32 implements FutexMemory. This rewrite has no real
// lock-free CAS against the hosted memory mapping, so it serializes
// through memMu instead; correctness, not lock-freedom, is what spec.md's
// testable properties require.
func (inst *Instance) CompareAndSwapUint32(offset uint32, old, new uint32) (bool, error) {
	inst.memMu.Lock()
	defer inst.memMu.Unlock()
	cur, err := inst.memories[0].ReadUint32(int(offset))
	if err != nil {
		return false, err
	}
	if cur != old {
		return false, nil
	}
	return true, inst.memories[0].WriteUint32(int(offset), new)
}
