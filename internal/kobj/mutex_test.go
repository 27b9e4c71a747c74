package kobj

import (
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/sched"
	"github.com/stretchr/testify/require"
)

func TestMutexSerializesConcurrentIncrements(t *testing.T) {
	s := sched.New()
	m := NewMutex(s)
	counter := 0
	done := make(chan struct{}, 20)

	for i := 0; i < 20; i++ {
		s.Spawn("worker", func() {
			for j := 0; j < 50; j++ {
				m.Acquire()
				counter++
				m.Release()
				s.Yield()
			}
			done <- struct{}{}
		})
	}

	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("workers never finished")
		}
	}
	require.Equal(t, 1000, counter)
}

func TestMutexRecursiveAcquireFromSameThread(t *testing.T) {
	s := sched.New()
	m := NewMutex(s)
	done := make(chan bool, 1)

	s.Spawn("recurser", func() {
		m.Acquire()
		m.Acquire()
		m.Release()
		m.Release()
		// A third Acquire after both Releases must not incorrectly
		// think itself still the owner.
		m.Acquire()
		owner := m.owner == s.Current()
		m.Release()
		done <- owner
	})

	select {
	case ok := <-done:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("recurser never finished")
	}
}
