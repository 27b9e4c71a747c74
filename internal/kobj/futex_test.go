package kobj

import (
	"sync"
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/stretchr/testify/require"
)

// fakeFutexMemory stands in for an Instance's wasm memory, word-addressed
// for simplicity since the futex protocol only ever touches one offset at
// a time in these tests.
type fakeFutexMemory struct {
	mu   sync.Mutex
	word map[uint32]uint32
}

func newFakeFutexMemory() *fakeFutexMemory {
	return &fakeFutexMemory{word: make(map[uint32]uint32)}
}

func (f *fakeFutexMemory) LoadUint32(offset uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.word[offset], nil
}

func (f *fakeFutexMemory) StoreUint32(offset uint32, val uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.word[offset] = val
	return nil
}

func (f *fakeFutexMemory) CompareAndSwapUint32(offset uint32, old, new uint32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.word[offset] != old {
		return false, nil
	}
	f.word[offset] = new
	return true, nil
}

// counter is not guarded by fakeFutexMemory's own lock, only by the futex
// protocol under test: a bug in PfexAcquire/PfexRelease's hand-off would
// show up as a wrong final count here, the same property spec.md's S4
// scenario exercises (8 threads x 1000 increments = 8000).
func TestFutexProtectsConcurrentIncrements(t *testing.T) {
	const threads = 8
	const perThread = 1000
	const offset = 0

	s := sched.New()
	mem := newFakeFutexMemory()
	pmap := NewPfexMap(s)

	var counter int
	done := make(chan struct{}, threads)

	for i := 0; i < threads; i++ {
		s.Spawn("incrementer", func() {
			for j := 0; j < perThread; j++ {
				require.NoError(t, PfexAcquire(mem, offset, pmap))
				counter++
				require.NoError(t, PfexRelease(mem, offset, pmap))
				s.Yield()
			}
			done <- struct{}{}
		})
	}

	for i := 0; i < threads; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("incrementers never finished")
		}
	}
	require.Equal(t, threads*perThread, counter)
}

func TestFutexAcquireReleaseUncontended(t *testing.T) {
	s := sched.New()
	mem := newFakeFutexMemory()
	pmap := NewPfexMap(s)
	done := make(chan error, 1)

	s.Spawn("solo", func() {
		if err := PfexAcquire(mem, 4, pmap); err != nil {
			done <- err
			return
		}
		v, _ := mem.LoadUint32(4)
		if v != PfexLocked {
			done <- nabi.Internal("expected LOCKED after acquire, got %d", v)
			return
		}
		done <- PfexRelease(mem, 4, pmap)
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("solo acquire/release never completed")
	}

	v, _ := mem.LoadUint32(4)
	require.Equal(t, uint32(0), v)
}
