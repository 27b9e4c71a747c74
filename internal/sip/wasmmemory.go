package sip

import (
	"encoding/binary"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/region"
)

// WasmMemory is a process's WebAssembly linear memory: a LazyRegion sized
// to HeapSize+GuardSize (8 GiB) so the compiled code's fast-path bounds
// checking can assume the whole 4 GiB offset range is addressable, backed
// by only as many pages as have actually been grown into. An optional
// pre-region immediately below the heap holds the VM-context struct for a
// process's first memory.
type WasmMemory struct {
	lazy       *region.LazyRegion
	preSize    int
	mappedHeap int // bytes of the 4 GiB heap committed so far
}

func newWasmMemory(preSize int) (*WasmMemory, error) {
	lazy, err := region.NewLazy(preSize+TotalSize, preSize, region.Read|region.Write)
	if err != nil {
		return nil, err
	}
	if preSize > 0 {
		if err := lazy.MapRange(0, preSize); err != nil {
			lazy.Close()
			return nil, err
		}
	}
	return &WasmMemory{lazy: lazy, preSize: preSize}, nil
}

// CurrentPages returns the number of 64 KiB pages presently committed to
// the heap.
func (m *WasmMemory) CurrentPages() int { return m.mappedHeap / WasmPageSize }

// Grow extends the committed heap prefix by n WebAssembly pages, returning
// the page count prior to growth (mirroring grow_memory's wasm return
// convention). Growing past HeapSize fails with NO_RESOURCES.
func (m *WasmMemory) Grow(n int) (priorPages int, err error) {
	if n < 0 {
		return 0, nabi.InvalidArgs("wasmmemory: negative grow count %d", n)
	}
	prior := m.CurrentPages()
	if n == 0 {
		return prior, nil
	}
	delta := n * WasmPageSize
	if m.mappedHeap+delta > HeapSize {
		return 0, nabi.NoResources("wasmmemory: grow by %d pages exceeds heap size", n)
	}
	lo := m.preSize + m.mappedHeap
	hi := lo + delta
	if err := m.lazy.MapRange(lo, hi); err != nil {
		return 0, err
	}
	m.mappedHeap += delta
	return prior, nil
}

// PhysicalMap extends the heap by mapping pageCount pages to explicit
// physical frames starting at physAddr (driver use), returning the
// wasm-memory byte offset where the mapping begins.
func (m *WasmMemory) PhysicalMap(physAddr uint64, pageCount int) (offset int, err error) {
	if pageCount <= 0 {
		return 0, nabi.InvalidArgs("wasmmemory: invalid page_count %d", pageCount)
	}
	by := pageCount * WasmPageSize
	if m.mappedHeap+by > HeapSize {
		return 0, nabi.NoResources("wasmmemory: physical_map exceeds heap size")
	}
	lo := m.preSize + m.mappedHeap
	if err := m.lazy.GrowFromPhysAddr(by, physAddr); err != nil {
		return 0, err
	}
	m.mappedHeap += by
	return lo - m.preSize, nil
}

// Memory returns the heap portion of the reserved window: offset 0 is the
// first heap byte, offset HeapSize the start of the guard region. Reads or
// writes past CurrentPages()*WasmPageSize fault at the OS level until
// committed by Grow or the trap bridge's lazy-commit path.
func (m *WasmMemory) Memory() []byte {
	return m.lazy.Bytes()[m.preSize:]
}

// VMContextArea returns the pre-region reserved immediately below the
// heap, for VmCtx struct storage. Only the process's first memory
// allocates one; callers must check PreSize() > 0.
func (m *WasmMemory) VMContextArea() []byte {
	return m.lazy.Bytes()[:m.preSize]
}

// PreSize returns the size of the VM-context pre-region, 0 if none.
func (m *WasmMemory) PreSize() int { return m.preSize }

// InMappedBounds reports whether [offset, offset+length) lies entirely
// within the committed heap prefix.
func (m *WasmMemory) InMappedBounds(offset, length int) bool {
	if offset < 0 || length < 0 {
		return false
	}
	end := offset + length
	return end >= offset && end <= m.mappedHeap
}

// InUnmappedBounds reports whether [offset, offset+length) lies within the
// declared heap but beyond the committed prefix: a lazy-commit candidate,
// as opposed to the guard region past HeapSize which is always OOB.
func (m *WasmMemory) InUnmappedBounds(offset, length int) bool {
	if offset < 0 || length < 0 {
		return false
	}
	end := offset + length
	return offset >= m.mappedHeap && end <= HeapSize
}

// Carve returns a slice view of [offset, offset+length) within the
// committed heap prefix, the accessor the ABI layer uses to read or write
// caller memory. Returns OUT_OF_BOUNDS if any byte falls outside the
// committed prefix.
func (m *WasmMemory) Carve(offset, length int) ([]byte, error) {
	if !m.InMappedBounds(offset, length) {
		return nil, nabi.OutOfBounds("wasmmemory: carve [%d,%d) outside committed heap (mapped=%d)", offset, offset+length, m.mappedHeap)
	}
	mem := m.Memory()
	return mem[offset : offset+length], nil
}

// ReadUint32 reads a little-endian u32 from the committed heap.
func (m *WasmMemory) ReadUint32(offset int) (uint32, error) {
	b, err := m.Carve(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteUint32 writes a little-endian u32 into the committed heap.
func (m *WasmMemory) WriteUint32(offset int, v uint32) error {
	b, err := m.Carve(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// ReadUint64 reads a little-endian u64 from the committed heap.
func (m *WasmMemory) ReadUint64(offset int) (uint64, error) {
	b, err := m.Carve(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// WriteUint64 writes a little-endian u64 into the committed heap.
func (m *WasmMemory) WriteUint64(offset int, v uint64) error {
	b, err := m.Carve(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// Close releases the memory's entire reserved window.
func (m *WasmMemory) Close() error {
	return m.lazy.Close()
}
