package kobj

import (
	"testing"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/stretchr/testify/require"
)

func TestHandleTableAllocateGetFree(t *testing.T) {
	table := NewHandleTable()
	s := sched.New()
	ev := NewDispatch[*Event](NewEvent(s, EventNormal))

	h := table.Allocate(ev.Upcast(), RightsAll)
	got, err := table.Get(h)
	require.NoError(t, err)
	require.Equal(t, RightsAll, got.Rights)

	_, err = table.Free(h)
	require.NoError(t, err)
	_, err = table.Get(h)
	require.Equal(t, nabi.KindNotFound, nabi.KindOf(err))
}

func TestHandleTableFreeListReusesSlot(t *testing.T) {
	table := NewHandleTable()
	s := sched.New()
	a := NewDispatch[*Event](NewEvent(s, EventNormal)).Upcast()
	b := NewDispatch[*Event](NewEvent(s, EventNormal)).Upcast()

	h1 := table.Allocate(a, RightsAll)
	table.Free(h1)
	h2 := table.Allocate(b, RightsAll)
	require.Equal(t, h1, h2)
}

func TestHandleTableGetTypedWrongType(t *testing.T) {
	table := NewHandleTable()
	s := sched.New()
	ev := NewDispatch[*Event](NewEvent(s, EventNormal))
	h := table.Allocate(ev.Upcast(), RightsAll)

	_, err := GetTyped[*Mutex](table, h, RightRead)
	require.Equal(t, nabi.KindWrongType, nabi.KindOf(err))

	got, err := GetTyped[*Event](table, h, RightRead)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestHandleTableGetTypedMissingRights(t *testing.T) {
	table := NewHandleTable()
	s := sched.New()
	ev := NewDispatch[*Event](NewEvent(s, EventNormal))
	h := table.Allocate(ev.Upcast(), RightRead)

	_, err := GetTyped[*Event](table, h, RightWrite)
	require.Equal(t, nabi.KindAccessDenied, nabi.KindOf(err))
}

func TestHandleTableDuplicateRequiresDuplicateRight(t *testing.T) {
	table := NewHandleTable()
	s := sched.New()
	ev := NewDispatch[*Event](NewEvent(s, EventNormal))
	h := table.Allocate(ev.Upcast(), RightRead)

	_, err := table.Duplicate(h, RightRead)
	require.Equal(t, nabi.KindAccessDenied, nabi.KindOf(err))
}

func TestHandleTableDuplicateRejectsEscalatedRights(t *testing.T) {
	table := NewHandleTable()
	s := sched.New()
	ev := NewDispatch[*Event](NewEvent(s, EventNormal))
	h := table.Allocate(ev.Upcast(), RightRead|RightDuplicate)

	_, err := table.Duplicate(h, RightsAll)
	require.Equal(t, nabi.KindAccessDenied, nabi.KindOf(err))

	dup, err := table.Duplicate(h, RightRead)
	require.NoError(t, err)
	require.NotEqual(t, h, dup)
}

func TestHandleTableTransferMovesBetweenTables(t *testing.T) {
	src := NewHandleTable()
	dst := NewHandleTable()
	s := sched.New()
	ev := NewDispatch[*Event](NewEvent(s, EventNormal))
	h := src.Allocate(ev.Upcast(), RightTransfer|RightRead)

	moved, err := src.Transfer(h, dst)
	require.NoError(t, err)

	_, err = src.Get(h)
	require.Equal(t, nabi.KindNotFound, nabi.KindOf(err))

	got, err := dst.Get(moved)
	require.NoError(t, err)
	require.Equal(t, RightTransfer|RightRead, got.Rights)
}
