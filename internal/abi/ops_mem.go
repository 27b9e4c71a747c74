package abi

import (
	"sync"

	"github.com/nebulet/nebulet/internal/console"
	"github.com/nebulet/nebulet/internal/kobj"
)

var (
	consoleMu  sync.RWMutex
	consoleOut = console.Default()
)

// SetConsole redirects every print ABI call to c, the kernel's single
// console device (internal/boot wires its own Console here before
// starting any process).
func SetConsole(c *console.Console) {
	consoleMu.Lock()
	consoleOut = c
	consoleMu.Unlock()
}

func activeConsole() *console.Console {
	consoleMu.RLock()
	defer consoleMu.RUnlock()
	return consoleOut
}

// doPrint implements env::print(ptr, len): copy len bytes starting at
// ptr out of the caller's first memory and write them to the console.
func doPrint(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	mem := ud.Instance.Memories()[0]
	ptr, length := int(args.u32(0)), int(args.u32(1))
	buf, err := carve(ud, mem, ptr, length)
	if err != nil {
		return pack(0, err)
	}
	n, err := activeConsole().Write(buf)
	return pack(uint32(n), err)
}

// doPhysicalMap implements env::physical_map(phys_addr, page_count),
// mapping host physical frames into the caller's first memory (driver
// use; spec.md §4.3's PhysicalMap). Returns the wasm-memory byte offset
// where the mapping begins.
func doPhysicalMap(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	mem := ud.Instance.Memories()[0]
	physAddr := args.u64(0)
	pageCount := int(args.u32(1))
	off, err := mem.PhysicalMap(physAddr, pageCount)
	return pack(uint32(off), err)
}

// doGrowMemory implements the $intrinsic grow_memory(delta) wasm
// emits for a memory.grow instruction against the caller's first
// memory, returning the page count prior to growth or -1 on failure
// (spec.md §4.3's Grow, following memory.grow's own convention).
func doGrowMemory(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	mem := ud.Instance.Memories()[0]
	prior, err := mem.Grow(int(args.u32(0)))
	if err != nil {
		return pack(uint32(0xFFFFFFFF), nil)
	}
	return pack(uint32(prior), nil)
}

// doCurrentMemory implements the $intrinsic current_memory() wasm emits
// for memory.size.
func doCurrentMemory(args rawArgs, vmctx uintptr) uint64 {
	ud := kobj.UserDataAt(vmctx)
	mem := ud.Instance.Memories()[0]
	return pack(uint32(mem.CurrentPages()), nil)
}
