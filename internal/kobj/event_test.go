package kobj

import (
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/sched"
	"github.com/stretchr/testify/require"
)

func TestEventNormalWakesAllWaiters(t *testing.T) {
	s := sched.New()
	ev := NewEvent(s, EventNormal)
	woken := make(chan int, 2)

	s.Spawn("w1", func() {
		ev.Wait()
		woken <- 1
	})
	s.Spawn("w2", func() {
		ev.Wait()
		woken <- 2
	})

	deadline := time.After(2 * time.Second)
	for !ev.HasWaiters() {
		select {
		case <-deadline:
			t.Fatal("waiters never registered")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	ev.Trigger()
	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-woken:
			seen[v] = true
		case <-time.After(2 * time.Second):
			t.Fatal("not all waiters woke")
		}
	}
	require.True(t, seen[1] && seen[2])
}

func TestEventAutoUnsignalWakesExactlyOne(t *testing.T) {
	s := sched.New()
	ev := NewEvent(s, EventAutoUnsignal)
	woken := make(chan int, 2)

	s.Spawn("w1", func() {
		ev.Wait()
		woken <- 1
	})
	s.Spawn("w2", func() {
		ev.Wait()
		woken <- 2
	})

	deadline := time.After(2 * time.Second)
	for {
		ev.mu.Lock()
		n := len(ev.waiters)
		ev.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("waiters never registered")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	n := ev.Trigger()
	require.Equal(t, 1, n)

	select {
	case <-woken:
	case <-time.After(2 * time.Second):
		t.Fatal("single waiter never woke")
	}

	select {
	case <-woken:
		t.Fatal("a second waiter woke on one AutoUnsignal trigger")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWaitOneReturnsImmediatelyWhenAlreadySatisfied(t *testing.T) {
	s := sched.New()
	ctx := &Context{}
	ctx.Signal(SignalUser0, 0)

	ev := NewEvent(s, EventAutoUnsignal)
	observed := WaitOne(ctx, ev, SignalUser0)
	require.Equal(t, SignalUser0, observed)
}
