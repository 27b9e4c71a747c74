// Package abi implements the fixed host-function call table compiled
// wasm code imports against (spec.md §6 "ABI call surface", §4.4
// "VM-context and ABI dispatch"). Every entry point dereferences the
// trailing VM-context pointer to recover the calling Process and
// Instance (internal/kobj.UserDataAt), performs the requested kernel
// operation, and packs its outcome into the `Result<u32>` multiplex
// internal/nabi defines: the low 32 bits carry an Ok value, the high 32
// bits an nabi.Status discriminant.
//
// Grounded on original_source/src/abi/*.rs, one file per call family
// (mem.rs, event.rs, handle.rs, interrupt.rs, wait.rs, process.rs,
// thread.rs, pfex.rs, channel.rs, stream.rs, io.rs, rand.rs): this
// package keeps that one-file-per-family layout.
package abi

import (
	"sync"

	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmtype"
)

// Table is the compiler.HostResolver every Process compiles its wasm
// artifact against. Each distinct ABI function gets a tiny native call
// stub generated into codeRegion at first Resolve (a two-instruction
// "load my op index, jump to the shared entry point" thunk); compiled
// wasm code calls that stub address directly, the same way it calls any
// other function (spec.md §4.2 step 5b's relocation target).
type Table struct {
	alloc *sip.Allocator

	mu      sync.Mutex
	stubs   map[uint32]uintptr
	regions []*region.Region // one stub-holding page per op, released on Close
}

// NewTable returns a Table bound to alloc, the SipAllocator that backs
// its generated call stubs.
func NewTable(alloc *sip.Allocator) *Table {
	return &Table{alloc: alloc, stubs: make(map[uint32]uintptr)}
}

// Close releases every generated stub region. A Table outlives a single
// Process (stubs are shared, keyed only by op), so this is only ever
// called at kernel shutdown, not per-process teardown.
func (t *Table) Close() {
	for _, r := range t.regions {
		r.Close()
	}
}

// entry describes one ABI call's declared wasm-visible signature and the
// op index abiDispatchTrampoline (entry_amd64.go) looks up at call time.
type entry struct {
	module string
	name   string
	sig    wasmtype.FuncType
	op     uint32
}

func i32() wasmtype.ValueType { return wasmtype.ValueTypeI32 }
func i64() wasmtype.ValueType { return wasmtype.ValueTypeI64 }

func sig(params []wasmtype.ValueType, results ...wasmtype.ValueType) wasmtype.FuncType {
	return wasmtype.FuncType{Params: params, Results: results}
}

// registry is the fixed call table spec.md §6 enumerates, indexed by op:
// abiDispatchTrampoline's ops slice (entry_amd64.go) must stay parallel
// to this list.
var registry = []entry{
	{"env", "print", sig([]wasmtype.ValueType{i32(), i32()}), opPrint},
	{"env", "physical_map", sig([]wasmtype.ValueType{i64(), i32()}, i32()), opPhysicalMap},
	{"env", "event_create", sig(nil, i32()), opEventCreate},
	{"env", "event_wait", sig([]wasmtype.ValueType{i32()}, i32()), opEventWait},
	{"env", "event_trigger", sig([]wasmtype.ValueType{i32()}, i32()), opEventTrigger},
	{"env", "handle_close", sig([]wasmtype.ValueType{i32()}, i32()), opHandleClose},
	{"env", "handle_duplicate", sig([]wasmtype.ValueType{i32(), i32()}, i32()), opHandleDuplicate},
	{"env", "interrupt_create", sig([]wasmtype.ValueType{i32(), i32(), i32()}, i32()), opInterruptCreate},
	{"env", "interrupt_ack", sig([]wasmtype.ValueType{i32()}, i32()), opInterruptAck},
	{"env", "object_wait_one", sig([]wasmtype.ValueType{i32(), i32()}, i32()), opObjectWaitOne},
	{"env", "object_signal", sig([]wasmtype.ValueType{i32(), i32(), i32()}, i32()), opObjectSignal},
	{"env", "process_create", sig([]wasmtype.ValueType{i32()}, i32()), opProcessCreate},
	{"env", "process_start", sig([]wasmtype.ValueType{i32()}, i32()), opProcessStart},
	{"env", "thread_yield", sig(nil, i32()), opThreadYield},
	{"env", "thread_spawn", sig([]wasmtype.ValueType{i32(), i32()}, i32()), opThreadSpawn},
	{"env", "pfex_acquire", sig([]wasmtype.ValueType{i32()}, i32()), opPfexAcquire},
	{"env", "pfex_release", sig([]wasmtype.ValueType{i32()}, i32()), opPfexRelease},
	{"env", "channel_create", sig([]wasmtype.ValueType{i32()}, i32()), opChannelCreate},
	{"env", "channel_send", sig([]wasmtype.ValueType{i32(), i32(), i32()}, i32()), opChannelSend},
	{"env", "channel_recv", sig([]wasmtype.ValueType{i32(), i32(), i32()}, i32()), opChannelRecv},
	{"env", "channel_first_msg_len", sig([]wasmtype.ValueType{i32()}, i32()), opChannelFirstMsgLen},
	{"env", "stream_create", sig([]wasmtype.ValueType{i32()}, i32()), opStreamCreate},
	{"env", "stream_write", sig([]wasmtype.ValueType{i32(), i32(), i32()}, i32()), opStreamWrite},
	{"env", "stream_read", sig([]wasmtype.ValueType{i32(), i32(), i32()}, i32()), opStreamRead},
	{"io", "read_port_u8", sig([]wasmtype.ValueType{i32()}, i32()), opIOReadPortU8},
	{"io", "write_port_u8", sig([]wasmtype.ValueType{i32(), i32()}, i32()), opIOWritePortU8},
	{"rand", "random_fill", sig([]wasmtype.ValueType{i32(), i32()}, i32()), opRandRandomFill},
	{"rand", "cprng_fill", sig([]wasmtype.ValueType{i32(), i32()}, i32()), opRandCprngFill},
	{"$intrinsic", "grow_memory", sig([]wasmtype.ValueType{i32()}, i32()), opGrowMemory},
	{"$intrinsic", "current_memory", sig(nil, i32()), opCurrentMemory},
}

func registryKey(module, name string) string { return module + "." + name }

var registryByKey = func() map[string]entry {
	m := make(map[string]entry, len(registry))
	for _, e := range registry {
		m[registryKey(e.module, e.name)] = e
	}
	return m
}()

// Resolve implements compiler.HostResolver. The first resolution of a
// given name generates its call stub; later resolutions reuse it, so the
// same import appearing in two modules' relocations shares one stub.
func (t *Table) Resolve(module, name string) (compiler.HostFunction, bool) {
	e, ok := registryByKey[registryKey(module, name)]
	if !ok {
		return compiler.HostFunction{}, false
	}
	addr, err := t.stubFor(e.op)
	if err != nil {
		return compiler.HostFunction{}, false
	}
	return compiler.HostFunction{Name: name, Signature: e.sig, Addr: addr}, true
}

// stubFor returns the cached native call stub for op, generating it on
// first use.
func (t *Table) stubFor(op uint32) (uintptr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if addr, ok := t.stubs[op]; ok {
		return addr, nil
	}
	addr, r, err := generateStub(t.alloc, op)
	if err != nil {
		return 0, err
	}
	t.stubs[op] = addr
	t.regions = append(t.regions, r)
	return addr, nil
}
