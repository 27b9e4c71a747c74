package kobj

import "github.com/nebulet/nebulet/internal/nabi"

// HandleRights is the bit set a Handle carries alongside its Dispatch,
// gating which operations a caller may perform through it (spec.md §3
// "Handle").
type HandleRights uint32

const (
	RightDuplicate HandleRights = 1 << 0
	RightTransfer  HandleRights = 1 << 1
	RightRead      HandleRights = 1 << 2
	RightWrite     HandleRights = 1 << 3

	RightsAll = RightDuplicate | RightTransfer | RightRead | RightWrite
)

func (r HandleRights) Has(bits HandleRights) bool { return r&bits == bits }

// Handle pairs a reference-counted kernel object with the rights this
// particular reference carries (spec.md §3 "Handle").
type Handle struct {
	Dispatch *Dispatch[Dispatcher]
	Rights   HandleRights
}

// HandleTable is a per-process dense index from a 32-bit user handle to
// an optional Handle, backed by an intrusive free list (spec.md §4.5).
// Grounded on original_source/src/object/table.rs, translated from its
// generation-tagged slab to a plain free-list slice since this rewrite
// has no use-after-free class of bug a generation counter would catch
// (Go's garbage collector, not a handle table, owns memory safety).
type HandleTable struct {
	slots    []*Handle
	freeList []uint32
}

// NewHandleTable returns an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{}
}

// Allocate installs d with rights under a fresh or recycled index.
func (t *HandleTable) Allocate(d *Dispatch[Dispatcher], rights HandleRights) uint32 {
	h := &Handle{Dispatch: d, Rights: rights}
	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.slots[idx] = h
		return idx
	}
	t.slots = append(t.slots, h)
	return uint32(len(t.slots) - 1)
}

func (t *HandleTable) bounds(handle uint32) bool {
	return int(handle) < len(t.slots)
}

// Get returns the Handle stored at handle, NOT-FOUND if out of bounds or
// on the free list.
func (t *HandleTable) Get(handle uint32) (*Handle, error) {
	if !t.bounds(handle) || t.slots[handle] == nil {
		return nil, nabi.NotFound("handle table: no handle %d", handle)
	}
	return t.slots[handle], nil
}

// GetTyped fetches handle, checks requiredRights, and downcasts its
// Dispatch's payload to T, the pattern every ABI call that consumes a
// handle follows (spec.md §4.5 "callers supply an expected concrete
// type").
func GetTyped[T Dispatcher](t *HandleTable, handle uint32, requiredRights HandleRights) (T, error) {
	var zero T
	h, err := t.Get(handle)
	if err != nil {
		return zero, err
	}
	if !h.Rights.Has(requiredRights) {
		return zero, nabi.AccessDenied("handle %d missing required rights", handle)
	}
	v, ok := h.Dispatch.Value.(T)
	if !ok {
		return zero, nabi.WrongType("handle %d is not the expected type", handle)
	}
	return v, nil
}

// Free removes and returns the Handle at handle, releasing its
// reference and pushing the slot onto the free list.
func (t *HandleTable) Free(handle uint32) (*Handle, error) {
	h, err := t.Get(handle)
	if err != nil {
		return nil, err
	}
	t.slots[handle] = nil
	t.freeList = append(t.freeList, handle)
	h.Dispatch.Release()
	return h, nil
}

// Duplicate installs a second Handle referencing the same object under
// newRights, requiring the source hold DUPLICATE and newRights be a
// subset of the source's own rights.
func (t *HandleTable) Duplicate(handle uint32, newRights HandleRights) (uint32, error) {
	h, err := t.Get(handle)
	if err != nil {
		return 0, err
	}
	if !h.Rights.Has(RightDuplicate) {
		return 0, nabi.AccessDenied("handle %d lacks DUPLICATE", handle)
	}
	if newRights&^h.Rights != 0 {
		return 0, nabi.AccessDenied("handle %d: requested rights exceed source", handle)
	}
	return t.Allocate(h.Dispatch.CopyRef(), newRights), nil
}

// Transfer removes handle from t (requiring TRANSFER) and installs it
// into dst, for moving a handle across a process boundary during
// channel handle-passing.
func (t *HandleTable) Transfer(handle uint32, dst *HandleTable) (uint32, error) {
	h, err := t.Get(handle)
	if err != nil {
		return 0, err
	}
	if !h.Rights.Has(RightTransfer) {
		return 0, nabi.AccessDenied("handle %d lacks TRANSFER", handle)
	}
	t.slots[handle] = nil
	t.freeList = append(t.freeList, handle)
	return dst.Allocate(h.Dispatch, h.Rights), nil
}
