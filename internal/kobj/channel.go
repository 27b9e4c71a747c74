package kobj

import (
	"sync"

	"github.com/nebulet/nebulet/internal/nabi"
)

const (
	// ChannelMaxMsgs bounds the shared message deque (spec.md §4.6).
	ChannelMaxMsgs = 1000
	// ChannelMaxMsgSize bounds a single message's byte payload.
	ChannelMaxMsgSize = 64 * 1024
)

// Message is one Channel payload: a byte blob plus any handles being
// transferred alongside it.
type Message struct {
	Bytes   []byte
	Handles []*Handle
}

// channelShared is the single deque both ends of a pair push to and pop
// from (spec.md §4.6 describes one "shared mutable message deque" per
// pair, not one per direction), grounded on
// original_source/src/object/channel.rs's SharedData.
type channelShared struct {
	mu   sync.Mutex
	msgs []Message
}

// Channel is a message-passing endpoint; a Process talks to the handle
// it owns for one endpoint, and the kernel (or another process, after a
// handle transfer) holds the other. Grounded on
// original_source/src/object/channel.rs.
type Channel struct {
	Context
	shared *channelShared

	peerMu sync.Mutex
	peer   *Dispatch[*Channel]
}

// NewChannelPair returns two endpoints sharing one deque, each holding a
// live reference to the other.
func NewChannelPair() (*Dispatch[*Channel], *Dispatch[*Channel]) {
	shared := &channelShared{}
	first := NewDispatch(&Channel{shared: shared})
	second := NewDispatch(&Channel{shared: shared})

	first.Value.peer = second.CopyRef()
	second.Value.peer = first.CopyRef()
	return first, second
}

func (c *Channel) Ctx() *Context { return &c.Context }

func (c *Channel) AllowedUserSignals() Signal {
	return SignalReadable | SignalWritable | SignalPeerClosed | SignalPeerSignaled
}

func (c *Channel) peerDispatch() *Dispatch[*Channel] {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	return c.peer
}

// OnZeroHandles detaches this endpoint from its peer so the peer
// observes PEER_CLOSED instead of holding a dangling reference.
func (c *Channel) OnZeroHandles() {
	peer := c.peerDispatch()
	if peer == nil {
		return
	}
	peer.Value.peerMu.Lock()
	peer.Value.peer = nil
	peer.Value.peerMu.Unlock()
	peer.Value.Context.Signal(SignalPeerClosed, 0)
}

// Send appends msg to the shared deque (spec.md §4.6's exact Send
// algorithm): SHOULD-WAIT if full, else push, assert READABLE on the
// peer, and clear WRITABLE on self if that push filled the deque.
func (c *Channel) Send(msg Message) error {
	if len(msg.Bytes) > ChannelMaxMsgSize {
		return nabi.InvalidArgs("channel: message exceeds %d bytes", ChannelMaxMsgSize)
	}
	peer := c.peerDispatch()
	if peer == nil {
		return nabi.PeerClosed("channel: peer closed")
	}

	c.shared.mu.Lock()
	if len(c.shared.msgs) == ChannelMaxMsgs {
		c.shared.mu.Unlock()
		return nabi.ShouldWait("channel: deque full")
	}
	c.shared.msgs = append(c.shared.msgs, msg)
	full := len(c.shared.msgs) == ChannelMaxMsgs
	c.shared.mu.Unlock()

	if full {
		c.Context.Signal(0, SignalWritable)
	}
	peer.Value.Context.Signal(SignalReadable, 0)
	return nil
}

// Recv pops the oldest message (spec.md §4.6's exact Recv algorithm):
// SHOULD-WAIT if empty and the peer is alive, PEER-CLOSED if empty and
// the peer is gone, else pop, assert WRITABLE on the peer if the deque
// was transitioning out of full, and clear READABLE on self if now
// empty.
func (c *Channel) Recv() (Message, error) {
	c.shared.mu.Lock()
	wasFull := len(c.shared.msgs) == ChannelMaxMsgs
	if len(c.shared.msgs) == 0 {
		c.shared.mu.Unlock()
		if c.peerDispatch() != nil {
			return Message{}, nabi.ShouldWait("channel: deque empty")
		}
		return Message{}, nabi.PeerClosed("channel: peer closed")
	}
	msg := c.shared.msgs[0]
	c.shared.msgs = c.shared.msgs[1:]
	empty := len(c.shared.msgs) == 0
	c.shared.mu.Unlock()

	if empty {
		c.Context.Signal(0, SignalReadable)
	}
	if wasFull {
		if peer := c.peerDispatch(); peer != nil {
			peer.Value.Context.Signal(SignalWritable, 0)
		}
	}
	return msg, nil
}

// FirstMsgLen returns the byte length of the oldest queued message
// without consuming it, SHOULD-WAIT/PEER-CLOSED under the same rule as
// Recv when the deque is empty.
func (c *Channel) FirstMsgLen() (int, error) {
	c.shared.mu.Lock()
	defer c.shared.mu.Unlock()
	if len(c.shared.msgs) == 0 {
		if c.peerDispatch() != nil {
			return 0, nabi.ShouldWait("channel: deque empty")
		}
		return 0, nabi.PeerClosed("channel: peer closed")
	}
	return len(c.shared.msgs[0].Bytes), nil
}
