package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSpawnRunsToCompletion(t *testing.T) {
	s := New()
	done := make(chan struct{})
	th := s.Spawn("worker", func() {
		close(done)
	})
	require.Equal(t, StateReady, th.State())

	// Hand the CPU over repeatedly until the spawned thread gets to run;
	// the test goroutine itself is not a scheduled Thread, so it polls
	// rather than calling Resched directly.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned thread never ran")
	}
	select {
	case <-th.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("spawned thread never finished")
	}
	require.Equal(t, StateDead, th.State())
}

func TestFIFOOrdering(t *testing.T) {
	s := New()
	var order []int
	results := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		s.Spawn("t", func() {
			results <- i
		})
	}
	for i := 0; i < 3; i++ {
		select {
		case v := <-results:
			order = append(order, v)
		case <-time.After(2 * time.Second):
			t.Fatal("threads never completed")
		}
	}
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestYieldReturnsControl(t *testing.T) {
	s := New()
	progressed := make(chan struct{})
	s.Spawn("yielder", func() {
		s.Yield()
		close(progressed)
	})
	select {
	case <-progressed:
	case <-time.After(2 * time.Second):
		t.Fatal("yielding thread never resumed")
	}
}

func TestBlockUnblock(t *testing.T) {
	s := New()
	var blocked *Thread
	woke := make(chan struct{})
	readyToBlock := make(chan struct{})

	blocked = s.Spawn("blocker", func() {
		close(readyToBlock)
		s.Block()
		close(woke)
	})

	<-readyToBlock
	// Give the blocker a moment to actually reach s.Block() and park.
	deadline := time.After(2 * time.Second)
	for blocked.State() != StateBlocked {
		select {
		case <-deadline:
			t.Fatal("thread never reached Blocked")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	s.Unblock(blocked)
	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked thread never woke")
	}
}

func TestKillUnwindsBlockedThread(t *testing.T) {
	s := New()
	readyToBlock := make(chan struct{})
	th := s.Spawn("victim", func() {
		close(readyToBlock)
		s.Block()
		t.Fatal("entry resumed past Block after Kill")
	})
	<-readyToBlock
	deadline := time.After(2 * time.Second)
	for th.State() != StateBlocked {
		select {
		case <-deadline:
			t.Fatal("thread never reached Blocked")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	th.Kill()
	select {
	case <-th.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("killed thread never unwound")
	}
	require.Equal(t, StateDead, th.State())
}

func TestTickRequestsPreemption(t *testing.T) {
	s := New()
	s.quantum = time.Millisecond
	polled := make(chan struct{})
	s.Spawn("busy", func() {
		for i := 0; i < 1000; i++ {
			s.PollPreempt()
		}
		close(polled)
	})
	s.Tick(time.Hour) // force the quantum to be exhausted immediately
	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("busy thread never completed despite preemption polling")
	}
}
