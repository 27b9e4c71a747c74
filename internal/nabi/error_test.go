package nabi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindRoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		is   func(error) bool
	}{
		{InvalidArgs("bad handle %d", 7), KindInvalidArgs, IsInvalidArgs},
		{NotFound("no such object"), KindNotFound, IsNotFound},
		{AccessDenied("missing right"), KindAccessDenied, IsAccessDenied},
		{WrongType("not a channel"), KindWrongType, IsWrongType},
		{ShouldWait("would block"), KindShouldWait, IsShouldWait},
		{PeerClosed("peer gone"), KindPeerClosed, IsPeerClosed},
		{NoMemory("out of pages"), KindNoMemory, IsNoMemory},
		{NoResources("handle table full"), KindNoResources, IsNoResources},
		{OutOfBounds("addr past region"), KindOutOfBounds, IsOutOfBounds},
		{Internal("unreachable"), KindInternal, IsInternal},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.err))
			require.True(t, tt.is(tt.err))
			require.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestKindOfNilAndPlainError(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(nil))
	require.Equal(t, KindUnknown, KindOf(fmt.Errorf("plain")))
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, StatusOK, StatusOf(nil))
	require.Equal(t, StatusShouldWait, StatusOf(ShouldWait("retry")))
	require.Equal(t, StatusInternal, StatusOf(fmt.Errorf("plain")))
}
