package kobj

import (
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/sched"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/stretchr/testify/require"
)

func TestCreateProcessBuildsInstanceAndHandleTable(t *testing.T) {
	art := minimalArtifact(t)
	wasm := NewDispatch[*Wasm](NewWasm(art))
	alloc := sip.New(sip.WindowSize)
	s := sched.New()

	proc, err := CreateProcess("test-proc", wasm, alloc, s)
	require.NoError(t, err)
	defer proc.Close()

	require.NotNil(t, proc.Instance())
	require.NotNil(t, proc.Handles())
	require.NotNil(t, proc.Futex())
	require.Same(t, s, proc.Scheduler())
}

func TestProcessStartRunsEntryOnThreadZero(t *testing.T) {
	art := minimalArtifact(t)
	wasm := NewDispatch[*Wasm](NewWasm(art))
	alloc := sip.New(sip.WindowSize)
	s := sched.New()

	proc, err := CreateProcess("ret-only", wasm, alloc, s)
	require.NoError(t, err)
	defer proc.Close()

	require.NoError(t, proc.Start())

	// A second Start must be rejected: a process only boots once.
	err = proc.Start()
	require.Error(t, err)

	deadline := time.After(2 * time.Second)
	for {
		if len(proc.threads) > 0 && proc.threads[0].State() == sched.StateDead {
			break
		}
		select {
		case <-deadline:
			t.Fatal("thread 0 never exited")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestProcessExitKillsOtherThreads(t *testing.T) {
	art := minimalArtifact(t)
	wasm := NewDispatch[*Wasm](NewWasm(art))
	alloc := sip.New(sip.WindowSize)
	s := sched.New()

	proc, err := CreateProcess("multi-thread", wasm, alloc, s)
	require.NoError(t, err)
	defer proc.Close()

	blocked := make(chan struct{})
	thread, _ := proc.CreateThread("worker", func() {
		close(blocked)
		for {
			s.Yield()
		}
	})
	_ = thread

	<-blocked
	s.Spawn("killer", func() {
		proc.Exit()
	})

	deadline := time.After(2 * time.Second)
	for {
		if proc.threads[0].State() == sched.StateDead {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker thread never killed by Exit")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
