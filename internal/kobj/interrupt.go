package kobj

import (
	"sync"
	"time"

	"github.com/nebulet/nebulet/internal/nabi"
)

// InterruptFlags configure an Interrupt's ack discipline (spec.md §4.6).
type InterruptFlags uint32

const (
	InterruptUnmaskPrewait  InterruptFlags = 1 << 0
	InterruptMaskPostwait   InterruptFlags = 1 << 1
)

// interruptState is the NeedAck state machine spec.md §4.6 describes.
type interruptState int

const (
	interruptIdle interruptState = iota
	interruptNeedAck
)

// Interrupt binds a hardware vector to a Channel: firing posts a
// fixed-size timestamp message and sets NeedAck; ack() is only legal in
// NeedAck and clears it, optionally unmasking. Grounded on
// original_source/src/abi/interrupt.rs and original_source/src/object/
// interrupt.rs (fire/ack wrapping a Channel), with masking itself
// (actual PIC/IDT manipulation, original_source/src/abi/irq.rs) out of
// scope per spec.md §1's exclusion of interrupt-vector plumbing: Mask
// and Unmask here only flip the bookkeeping flag a driver would consult.
type Interrupt struct {
	Context
	vector  uint32
	flags   InterruptFlags
	channel *Dispatch[*Channel]

	mu     sync.Mutex
	state  interruptState
	masked bool
}

// NewInterrupt binds vector with flags, backed by the write end of a
// fresh Channel pair; the read end is returned for the caller (a driver
// process) to hold a handle to.
func NewInterrupt(vector uint32, flags InterruptFlags) (*Interrupt, *Dispatch[*Channel]) {
	write, read := NewChannelPair()
	return &Interrupt{vector: vector, flags: flags, channel: write, masked: false}, read
}

func (i *Interrupt) Ctx() *Context { return &i.Context }

func (i *Interrupt) AllowedUserSignals() Signal { return 0 }

func (i *Interrupt) OnZeroHandles() { i.channel.Release() }

// Fire posts a fixed-size timestamp message on the bound Channel and
// transitions to NeedAck, unmasking the vector per
// InterruptUnmaskPrewait. Nothing in this hosted rewrite calls it from
// real hardware; only tests drive it.
func (i *Interrupt) Fire(at time.Time) error {
	i.mu.Lock()
	if i.flags&InterruptUnmaskPrewait != 0 {
		i.masked = false
	}
	i.state = interruptNeedAck
	i.mu.Unlock()

	ts := make([]byte, 8)
	nanos := uint64(at.UnixNano())
	for n := 0; n < 8; n++ {
		ts[n] = byte(nanos >> (8 * n))
	}
	return i.channel.Value.Send(Message{Bytes: ts})
}

// Ack clears NeedAck, legal only while it is set, optionally masking the
// vector per InterruptMaskPostwait.
func (i *Interrupt) Ack() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != interruptNeedAck {
		return nabi.InvalidArgs("interrupt: ack outside NeedAck")
	}
	i.state = interruptIdle
	if i.flags&InterruptMaskPostwait != 0 {
		i.masked = true
	}
	return nil
}

// Masked reports the bookkeeping mask bit.
func (i *Interrupt) Masked() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.masked
}
