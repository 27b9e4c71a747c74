package kobj

import (
	"sync"

	"github.com/nebulet/nebulet/internal/nabi"
)

// StreamRingSize is the byte capacity of a Stream's ring buffer (spec.md
// §4.6 "Stream").
const StreamRingSize = 64 * 1024

// streamShared is the ring both ends of a Stream pair read and write,
// the byte-oriented analogue of channelShared.
type streamShared struct {
	mu   sync.Mutex
	ring []byte
}

// Stream is the byte-oriented variant of Channel (spec.md §4.6): writes
// and reads may be short, and the same READABLE/WRITABLE/PEER_CLOSED
// signal discipline applies at the ring's empty/full boundaries rather
// than at per-message boundaries.
type Stream struct {
	Context
	shared *streamShared

	peerMu sync.Mutex
	peer   *Dispatch[*Stream]
}

// NewStreamPair returns two endpoints sharing one ring.
func NewStreamPair() (*Dispatch[*Stream], *Dispatch[*Stream]) {
	shared := &streamShared{}
	first := NewDispatch(&Stream{shared: shared})
	second := NewDispatch(&Stream{shared: shared})

	first.Value.peer = second.CopyRef()
	second.Value.peer = first.CopyRef()
	return first, second
}

func (s *Stream) Ctx() *Context { return &s.Context }

func (s *Stream) AllowedUserSignals() Signal {
	return SignalReadable | SignalWritable | SignalPeerClosed | SignalPeerSignaled
}

func (s *Stream) peerDispatch() *Dispatch[*Stream] {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	return s.peer
}

func (s *Stream) OnZeroHandles() {
	peer := s.peerDispatch()
	if peer == nil {
		return
	}
	peer.Value.peerMu.Lock()
	peer.Value.peer = nil
	peer.Value.peerMu.Unlock()
	peer.Value.Context.Signal(SignalPeerClosed, 0)
}

// Write appends as much of data as the ring has room for, returning the
// byte count actually accepted (possibly short). A ring with no room at
// all returns SHOULD-WAIT and accepts nothing; a closed peer returns
// PEER-CLOSED.
func (s *Stream) Write(data []byte) (int, error) {
	peer := s.peerDispatch()
	if peer == nil {
		return 0, nabi.PeerClosed("stream: peer closed")
	}

	s.shared.mu.Lock()
	room := StreamRingSize - len(s.shared.ring)
	if room == 0 {
		s.shared.mu.Unlock()
		return 0, nabi.ShouldWait("stream: ring full")
	}
	n := len(data)
	if n > room {
		n = room
	}
	s.shared.ring = append(s.shared.ring, data[:n]...)
	full := len(s.shared.ring) == StreamRingSize
	s.shared.mu.Unlock()

	if full {
		s.Context.Signal(0, SignalWritable)
	}
	peer.Value.Context.Signal(SignalReadable, 0)
	return n, nil
}

// Read copies up to len(buf) bytes out of the ring, returning the count
// actually read.
func (s *Stream) Read(buf []byte) (int, error) {
	s.shared.mu.Lock()
	wasFull := len(s.shared.ring) == StreamRingSize
	if len(s.shared.ring) == 0 {
		s.shared.mu.Unlock()
		if s.peerDispatch() != nil {
			return 0, nabi.ShouldWait("stream: ring empty")
		}
		return 0, nabi.PeerClosed("stream: peer closed")
	}
	n := copy(buf, s.shared.ring)
	s.shared.ring = s.shared.ring[n:]
	empty := len(s.shared.ring) == 0
	s.shared.mu.Unlock()

	if empty {
		s.Context.Signal(0, SignalReadable)
	}
	if wasFull {
		if peer := s.peerDispatch(); peer != nil {
			peer.Value.Context.Signal(SignalWritable, 0)
		}
	}
	return n, nil
}
