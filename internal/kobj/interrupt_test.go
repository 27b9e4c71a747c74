package kobj

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInterruptFireDeliversTimestampAndRequiresAck(t *testing.T) {
	irq, readEnd := NewInterrupt(7, InterruptUnmaskPrewait|InterruptMaskPostwait)
	irq.masked = true

	at := time.Unix(0, 1234567890)
	require.NoError(t, irq.Fire(at))
	require.False(t, irq.Masked(), "UNMASK_PREWAIT should have cleared the mask")

	msg, err := readEnd.Value.Recv()
	require.NoError(t, err)
	require.Len(t, msg.Bytes, 8)
	require.Equal(t, uint64(1234567890), binary.LittleEndian.Uint64(msg.Bytes))

	require.NoError(t, irq.Ack())
	require.True(t, irq.Masked(), "MASK_POSTWAIT should have re-masked on ack")
}

func TestInterruptAckOutsideNeedAckFails(t *testing.T) {
	irq, _ := NewInterrupt(3, 0)
	require.Error(t, irq.Ack())
}

func TestInterruptDoubleAckFails(t *testing.T) {
	irq, _ := NewInterrupt(3, 0)
	require.NoError(t, irq.Fire(time.Now()))
	require.NoError(t, irq.Ack())
	require.Error(t, irq.Ack())
}
