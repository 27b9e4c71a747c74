package compiler

import (
	"encoding/binary"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/nebulet/nebulet/internal/wasmtype"
)

// movImmOffset is the byte offset, within a MOVQ $imm64, reg instruction
// as golang-asm encodes it (REX.W + opcode byte, then the 8-byte
// immediate), of the immediate this package patches at relocation time.
const movImmOffset = 2

// relocPlaceholder is the immediate emitted in a call site's MOVQ before
// relocation. It does not fit in 32 bits, so the assembler picks the
// 8-byte-immediate encoding that movImmOffset describes.
const relocPlaceholder int64 = 0x7fffffffffffffff

// intrinsicModule is the pseudo module name under which memory.size and
// memory.grow are resolved, distinguishing them from genuine wasm
// imports at the HostResolver boundary.
const intrinsicModule = "$intrinsic"

// Compile lowers every function in mod to native code, merges the result
// into a single executable Region carved from alloc, and resolves every
// relocation against it (spec.md §4.2 steps 2-6). resolver answers ABI
// import lookups; a nil resolver is only valid for modules with no
// imported functions.
func Compile(mod *wasmdecode.Module, alloc *sip.Allocator, resolver HostResolver) (*Artifact, error) {
	numImported := mod.NumImportedFuncs()
	compiled := make([]*compiledFunc, len(mod.Code))
	for i, body := range mod.Code {
		cf, err := compileFunction(mod, numImported+uint32(i), body)
		if err != nil {
			return nil, nabi.Internal("compiler: function %d: %v", numImported+uint32(i), err)
		}
		compiled[i] = cf
	}

	total := 0
	for _, cf := range compiled {
		total += len(cf.code)
	}
	if total == 0 {
		total = 1 // a Region of size zero is not meaningful to allocate
	}

	codeRegion, err := alloc.AllocRegion(total, region.Read|region.Write, false)
	if err != nil {
		return nil, err
	}

	funcOffsets := make([]uint64, len(compiled))
	dst := codeRegion.Bytes()
	cursor := 0
	var traps []TrapRecord
	var relocs []reloc
	for i, cf := range compiled {
		base := uint64(cursor)
		funcOffsets[i] = base
		copy(dst[cursor:], cf.code)
		for _, t := range cf.traps {
			traps = append(traps, TrapRecord{Offset: base + t.Offset, Kind: t.Kind})
		}
		for _, rl := range cf.relocs {
			rl.offset += base
			relocs = append(relocs, rl)
		}
		cursor += len(cf.code)
	}

	if err := resolveRelocations(dst, relocs, mod, funcOffsets, numImported, resolver); err != nil {
		return nil, err
	}

	if err := codeRegion.Remap(region.Read | region.Exec); err != nil {
		return nil, err
	}

	entryOffset, hasEntry, err := resolveEntry(mod, funcOffsets, numImported)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Code:        codeRegion,
		FuncOffsets: funcOffsets,
		TrapTable:   traps,
		Module:      mod,
		EntryOffset: entryOffset,
		HasEntry:    hasEntry,
	}, nil
}

func resolveRelocations(code []byte, relocs []reloc, mod *wasmdecode.Module, funcOffsets []uint64, numImported uint32, resolver HostResolver) error {
	patch := func(offset uint64, addr uint64) {
		binary.LittleEndian.PutUint64(code[offset+movImmOffset:], addr)
	}

	for _, rl := range relocs {
		switch rl.kind {
		case relocIntraModule:
			if rl.targetFuncIndex < numImported {
				return nabi.Internal("compiler: intra-module call target %d is an import", rl.targetFuncIndex)
			}
			localIdx := rl.targetFuncIndex - numImported
			if int(localIdx) >= len(funcOffsets) {
				return nabi.Internal("compiler: call target %d out of range", rl.targetFuncIndex)
			}
			patch(rl.offset, funcOffsets[localIdx])
		case relocImport:
			if int(rl.importIndex) >= len(mod.Imports) {
				return nabi.Internal("compiler: import index %d out of range", rl.importIndex)
			}
			imp := mod.Imports[rl.importIndex]
			if resolver == nil {
				return nabi.Internal("compiler: module imports %s.%s but no host resolver was supplied", imp.Module, imp.Name)
			}
			host, ok := resolver.Resolve(imp.Module, imp.Name)
			if !ok {
				return nabi.Internal("compiler: unresolved import %s.%s", imp.Module, imp.Name)
			}
			wantSig, ok := mod.FuncType(importFuncGlobalIndex(mod, rl.importIndex))
			if ok && !wantSig.Equal(host.Signature) {
				return nabi.Internal("compiler: import %s.%s signature mismatch", imp.Module, imp.Name)
			}
			patch(rl.offset, uint64(host.Addr))
		case relocIntrinsic:
			// memory.size/memory.grow need access to the instance's
			// WasmMemory, so they are resolved through the same
			// HostResolver as ordinary imports, under a reserved
			// pseudo-module name internal/kobj's resolver recognizes.
			if resolver == nil {
				return nabi.Internal("compiler: module uses %s but no host resolver was supplied", rl.intrinsic)
			}
			host, ok := resolver.Resolve(intrinsicModule, rl.intrinsic)
			if !ok {
				return nabi.Internal("compiler: unresolved intrinsic %q", rl.intrinsic)
			}
			patch(rl.offset, uint64(host.Addr))
		}
	}
	return nil
}

// importFuncGlobalIndex returns the global function index of the idx'th
// function import, so its declared FuncType can be looked up the same
// way a call-site's callee signature is.
func importFuncGlobalIndex(mod *wasmdecode.Module, idx uint32) uint32 {
	var seen uint32
	for i, imp := range mod.Imports {
		if imp.Kind != wasmtype.ExternTypeFunc {
			continue
		}
		if seen == idx {
			return uint32(i)
		}
		seen++
	}
	return 0
}

func resolveEntry(mod *wasmdecode.Module, funcOffsets []uint64, numImported uint32) (offset uint64, has bool, err error) {
	if mod.StartFunc != nil {
		idx := *mod.StartFunc
		if idx < numImported || int(idx-numImported) >= len(funcOffsets) {
			return 0, false, nabi.Internal("compiler: start function index %d out of range", idx)
		}
		return funcOffsets[idx-numImported], true, nil
	}
	for _, exp := range mod.Exports {
		if exp.Kind != wasmtype.ExternTypeFunc {
			continue
		}
		if exp.Name == "main" {
			if exp.Index < numImported || int(exp.Index-numImported) >= len(funcOffsets) {
				return 0, false, nabi.Internal("compiler: exported main index %d out of range", exp.Index)
			}
			return funcOffsets[exp.Index-numImported], true, nil
		}
	}
	return 0, false, nil
}
