package sip

import (
	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/region"
)

// WasmStack is a lazy-paged thread stack flanked by two unmapped 4 KiB
// guard pages. The top page (where the stack pointer starts, since the
// stack grows down) is eagerly mapped so a thread's first push never
// faults.
type WasmStack struct {
	lazy *region.LazyRegion
	size int
}

func newWasmStack(size int) (*WasmStack, error) {
	maxSize := size + 2*StackGuardSize
	lazy, err := region.NewLazy(maxSize, maxSize, region.Read|region.Write)
	if err != nil {
		return nil, err
	}
	// Leave both guard pages at PROT_NONE; only the usable middle range
	// is a candidate for commit. The administrative size above covers the
	// whole window so offsets within the guard pages still read as
	// in-window via Contains, but they are never committed.
	if err := lazy.UnmapRange(0, StackGuardSize); err != nil {
		lazy.Close()
		return nil, err
	}
	if err := lazy.UnmapRange(maxSize-StackGuardSize, maxSize); err != nil {
		lazy.Close()
		return nil, err
	}
	top := maxSize - StackGuardSize - PageSizeFor(size)
	if err := lazy.MapRange(top, maxSize-StackGuardSize); err != nil {
		lazy.Close()
		return nil, err
	}
	return &WasmStack{lazy: lazy, size: size}, nil
}

// PageSizeFor returns the single page size used to eagerly map a stack's
// topmost page.
func PageSizeFor(size int) int {
	if size < region.PageSize {
		return size
	}
	return region.PageSize
}

// Bounds returns the byte offsets [lo, hi) of the usable stack region
// within Bytes(), excluding both guard pages.
func (s *WasmStack) Bounds() (lo, hi int) {
	return StackGuardSize, StackGuardSize + s.size
}

// Bytes returns the stack's full reserved window, guard pages included.
// Accessing a guard page faults at the OS level.
func (s *WasmStack) Bytes() []byte { return s.lazy.Bytes() }

// MapPage commits the page containing offset (relative to Bytes()),
// refusing to touch either guard page.
func (s *WasmStack) MapPage(offset int) error {
	lo, hi := s.Bounds()
	if offset < lo || offset >= hi {
		return nabi.OutOfBounds("wasmstack: map_page offset %d in guard page", offset)
	}
	return s.lazy.MapPage(offset)
}

// Close releases the stack's entire reserved window, guard pages
// included.
func (s *WasmStack) Close() error {
	return s.lazy.Close()
}
