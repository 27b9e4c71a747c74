package region

import (
	"github.com/nebulet/nebulet/internal/memmap"
	"github.com/nebulet/nebulet/internal/nabi"
)

// LazyRegion reserves a fixed maximum virtual span up front (mapped
// PROT_NONE, so touching an uncommitted page faults exactly the way a
// genuine guard page would) and commits individual pages only when
// map_page/map_range asks for them. This is the backing for wasm linear
// memory and thread stacks: most of the 8 GiB a WasmMemory reserves is
// never actually resident.
type LazyRegion struct {
	mem      []byte // full [0, maxSize) reservation, PROT_NONE outside committed pages
	prot     Prot   // protection applied to committed pages
	maxSize  int
	size     int // administrative logical size; grows/shrinks via Resize
	committed []bool // per-page commit bitmap, len = maxSize/PageSize
}

// NewLazy reserves maxSize bytes of address space (rounded up to a whole
// number of pages) and sets the administrative logical size to size.
// Committed pages, once mapped, carry prot.
func NewLazy(maxSize, size int, prot Prot) (*LazyRegion, error) {
	if maxSize <= 0 || size < 0 || size > maxSize {
		return nil, nabi.InvalidArgs("lazyregion: invalid sizes max=%d size=%d", maxSize, size)
	}
	mem, err := memmap.Reserve(maxSize, memmap.ProtNone)
	if err != nil {
		return nil, nabi.NoMemory("lazyregion: %v", err)
	}
	pages := (maxSize + PageSize - 1) / PageSize
	return &LazyRegion{
		mem:       mem,
		prot:      prot,
		maxSize:   maxSize,
		size:      size,
		committed: make([]bool, pages),
	}, nil
}

// MaxSize returns the reserved window's fixed upper bound.
func (l *LazyRegion) MaxSize() int { return l.maxSize }

// Size returns the current administrative logical size.
func (l *LazyRegion) Size() int { return l.size }

// Contains reports whether offset falls within the reserved window,
// independent of whether that page is committed.
func (l *LazyRegion) Contains(offset int) bool {
	return offset >= 0 && offset < l.maxSize
}

// InLogicalRange reports whether offset is within the current
// administrative size, i.e. a legitimate target for lazy commit rather
// than the declared-but-never-committable guard tail.
func (l *LazyRegion) InLogicalRange(offset int) bool {
	return offset >= 0 && offset < l.size
}

func (l *LazyRegion) pageIndex(offset int) int { return offset / PageSize }

func (l *LazyRegion) pageRange(lo, hi int) (int, int) {
	startPage := lo / PageSize
	endPage := (hi + PageSize - 1) / PageSize
	return startPage, endPage
}

// MapPage idempotently commits the single page containing offset. Freshly
// committed pages are zero, as guaranteed by anonymous mmap.
func (l *LazyRegion) MapPage(offset int) error {
	if !l.Contains(offset) {
		return nabi.OutOfBounds("lazyregion: map_page offset %d outside window", offset)
	}
	return l.commitPages(l.pageIndex(offset), l.pageIndex(offset)+1)
}

// MapRange idempotently commits every page overlapping the half-open byte
// range [lo, hi).
func (l *LazyRegion) MapRange(lo, hi int) error {
	if lo < 0 || hi < lo || hi > l.maxSize {
		return nabi.OutOfBounds("lazyregion: map_range [%d,%d) outside window", lo, hi)
	}
	if lo == hi {
		return nil
	}
	start, end := l.pageRange(lo, hi)
	return l.commitPages(start, end)
}

func (l *LazyRegion) commitPages(start, end int) error {
	if end > len(l.committed) {
		end = len(l.committed)
	}
	// Find contiguous uncommitted runs so we only call mprotect on pages
	// that actually need it; map_page/map_range are called on hot fault
	// paths so this matters.
	i := start
	for i < end {
		if l.committed[i] {
			i++
			continue
		}
		j := i
		for j < end && !l.committed[j] {
			j++
		}
		lo := i * PageSize
		hiOff := j * PageSize
		if hiOff > len(l.mem) {
			hiOff = len(l.mem)
		}
		if err := memmap.Protect(l.mem[lo:hiOff], l.prot); err != nil {
			return nabi.NoMemory("lazyregion: commit pages [%d,%d): %v", i, j, err)
		}
		for k := i; k < j; k++ {
			l.committed[k] = true
		}
		i = j
	}
	return nil
}

// UnmapRange decommits every page overlapping [lo, hi), returning it to
// PROT_NONE so a subsequent access faults again rather than reading stale
// data.
func (l *LazyRegion) UnmapRange(lo, hi int) error {
	if lo < 0 || hi < lo || hi > l.maxSize {
		return nabi.OutOfBounds("lazyregion: unmap_range [%d,%d) outside window", lo, hi)
	}
	if lo == hi {
		return nil
	}
	start, end := l.pageRange(lo, hi)
	if end > len(l.committed) {
		end = len(l.committed)
	}
	loOff, hiOff := start*PageSize, end*PageSize
	if hiOff > len(l.mem) {
		hiOff = len(l.mem)
	}
	if err := memmap.Protect(l.mem[loOff:hiOff], memmap.ProtNone); err != nil {
		return nabi.Internal("lazyregion: unmap_range: %v", err)
	}
	for k := start; k < end; k++ {
		l.committed[k] = false
	}
	return nil
}

// Resize adjusts the administrative logical size only; pages within the
// new size continue to commit on demand. Shrinking past already-committed
// pages decommits them, since nothing may legitimately observe them again.
func (l *LazyRegion) Resize(newSize int) error {
	if newSize < 0 || newSize > l.maxSize {
		return nabi.NoResources("lazyregion: resize to %d exceeds window %d", newSize, l.maxSize)
	}
	if newSize < l.size {
		if err := l.UnmapRange(newSize, l.size); err != nil {
			return err
		}
	}
	l.size = newSize
	return nil
}

// GrowFromPhysAddr extends the logical size by `by` bytes and eagerly
// commits them, conceptually mapping them to the contiguous physical
// frames starting at phys for driver/device-memory use. This hosted
// rewrite has no physical address space of its own to honor phys against;
// it commits ordinary anonymous pages and records the intent, matching
// the spec's treatment of the frame allocator as an external collaborator.
func (l *LazyRegion) GrowFromPhysAddr(by int, phys uint64) error {
	_ = phys
	if by <= 0 {
		return nabi.InvalidArgs("lazyregion: invalid grow size %d", by)
	}
	lo := l.size
	hi := lo + by
	if hi > l.maxSize {
		return nabi.NoResources("lazyregion: grow_from_phys_addr exceeds window")
	}
	if err := l.MapRange(lo, hi); err != nil {
		return err
	}
	l.size = hi
	return nil
}

// Bytes returns the full reserved window. Reads/writes to uncommitted
// pages will fault at the OS level (SIGSEGV), exactly mirroring the
// bare-metal guard-page behavior the trap bridge classifies.
func (l *LazyRegion) Bytes() []byte { return l.mem }

// Committed reports whether the page containing offset is presently
// mapped with l.prot rather than PROT_NONE.
func (l *LazyRegion) Committed(offset int) bool {
	idx := l.pageIndex(offset)
	if idx < 0 || idx >= len(l.committed) {
		return false
	}
	return l.committed[idx]
}

// Close releases the entire reserved window.
func (l *LazyRegion) Close() error {
	if l.mem == nil {
		return nil
	}
	err := memmap.Unmap(l.mem)
	l.mem = nil
	return err
}
