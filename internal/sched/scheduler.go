package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is a single-CPU, cooperative FIFO run queue with an idle
// thread and timer-tick-assisted preemption (spec.md §4.7). There is no
// per-CPU indirection (spec.md's Non-goals rule out multicore
// scheduling): one Scheduler, one logical CPU, one current thread at a
// time, matching original_source/src/task/scheduler.rs's round-robin
// Mpsc-backed queue more closely than the priority-bitmap sched.rs
// (spec.md §4.7 calls for FIFO explicitly; see DESIGN.md).
type Scheduler struct {
	mu       sync.Mutex
	runQueue []*Thread
	idle     *Thread
	current  *Thread
	nextID   uint64
	quantum  time.Duration

	preemptPending int32
}

// New creates a Scheduler with its idle thread already running.
func New() *Scheduler {
	s := &Scheduler{quantum: DefaultQuantum}
	s.idle = s.newThreadLocked("[idle]", func() {
		for {
			time.Sleep(time.Millisecond)
			s.Yield()
		}
	})
	s.current = s.idle
	s.idle.setState(StateRunning)
	s.idle.lastStart = time.Now()
	s.idle.signalResume()
	return s
}

func (s *Scheduler) newThreadLocked(name string, entry func()) *Thread {
	s.nextID++
	t := &Thread{
		id:        s.nextID,
		name:      name,
		state:     StateReady,
		resumeCh:  make(chan struct{}, 1),
		killCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		entry:     entry,
		sched:     s,
		remaining: s.quantum,
	}
	go t.loop()
	return t
}

// Spawn creates a new Ready thread and enqueues it on the run queue. It
// does not itself run until the scheduler gets to it.
func (s *Scheduler) Spawn(name string, entry func()) *Thread {
	s.mu.Lock()
	t := s.newThreadLocked(name, entry)
	s.enqueueLocked(t)
	s.mu.Unlock()
	return t
}

func (s *Scheduler) enqueueLocked(t *Thread) {
	s.runQueue = append(s.runQueue, t)
}

func (s *Scheduler) popNextLocked() *Thread {
	if len(s.runQueue) == 0 {
		return nil
	}
	t := s.runQueue[0]
	s.runQueue = s.runQueue[1:]
	return t
}

// Current returns the thread presently holding the CPU.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// switchTo performs the actual handoff: accounts runtime for the
// outgoing thread, re-enqueues it if requested, marks the incoming
// thread Running, and parks the caller (which must be running on the
// outgoing thread's own goroutine) until it is scheduled again.
func (s *Scheduler) switchTo(next *Thread, requeueCurrent bool) {
	s.mu.Lock()
	cur := s.current
	if next == nil {
		next = s.idle
	}
	if next == cur {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	if cur != nil {
		cur.mu.Lock()
		cur.runtime += now.Sub(cur.lastStart)
		cur.mu.Unlock()
		if requeueCurrent && cur.State() != StateDead {
			cur.setState(StateReady)
			s.enqueueLocked(cur)
		}
	}
	next.lastStart = now
	next.setState(StateRunning)
	s.current = next
	s.mu.Unlock()

	next.signalResume()
	if cur != nil && cur != next {
		cur.park()
	}
}

// Resched implements the cooperative yield: the currently running
// thread, by calling this, becomes Ready and is re-enqueued, and the
// next Ready thread (or the idle thread if none) takes the CPU. A thread
// calling Resched must be the scheduler's current thread.
func (s *Scheduler) Resched() {
	s.mu.Lock()
	next := s.popNextLocked()
	s.mu.Unlock()
	s.switchTo(next, true)
}

// Yield is the cooperative-yield entry point ABI's thread_yield and the
// idle thread both call.
func (s *Scheduler) Yield() { s.Resched() }

// Block parks the calling thread (the scheduler's current thread)
// without re-enqueuing it, marking it Blocked. A blocked thread is woken
// only by a later Unblock call from whichever kernel object it is
// waiting on (Event, Channel, Mutex, futex).
func (s *Scheduler) Block() {
	s.mu.Lock()
	s.current.setState(StateBlocked)
	next := s.popNextLocked()
	s.mu.Unlock()
	s.switchTo(next, false)
}

// Unblock moves a previously Blocked thread back onto the ready queue. A
// thread already Dead (killed while blocked) is dropped instead of
// re-enqueued.
func (s *Scheduler) Unblock(t *Thread) {
	if t == nil {
		return
	}
	if t.State() == StateDead {
		return
	}
	s.mu.Lock()
	t.setState(StateReady)
	s.enqueueLocked(t)
	s.mu.Unlock()
}

// onThreadExit is called from a thread's own goroutine right after its
// entry function returns or unwinds; it hands the CPU to the next Ready
// thread without re-enqueuing the now-Dead thread.
func (s *Scheduler) onThreadExit(t *Thread) {
	s.mu.Lock()
	next := s.popNextLocked()
	s.mu.Unlock()
	s.switchTo(next, false)
}

// Tick accounts elapsed wall-clock time against the current thread's
// remaining quantum, the timer-interrupt side of spec.md §4.7's
// "timer-assisted preemption". It never preempts directly (spec.md's
// Non-goals rule out preemption mid-instruction); it only raises a flag
// that PollPreempt observes at the next safe point.
func (s *Scheduler) Tick(elapsed time.Duration) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || cur == s.idle {
		return
	}
	cur.mu.Lock()
	cur.remaining -= elapsed
	exhausted := cur.remaining <= 0
	if exhausted {
		cur.remaining = s.quantum
	}
	cur.mu.Unlock()
	if exhausted {
		atomic.StoreInt32(&s.preemptPending, 1)
	}
}

// PollPreempt is the safe point every ABI call checks (spec.md §4.7: "the
// implementation maintains an in-kernel guard that defers yields" —
// here, ABI entry/exit is the only place preemption is ever observed).
// If a preemption is pending it marks the current thread Preempted and
// reschedules.
func (s *Scheduler) PollPreempt() {
	if !atomic.CompareAndSwapInt32(&s.preemptPending, 1, 0) {
		return
	}
	s.mu.Lock()
	cur := s.current
	if cur != nil && cur != s.idle {
		cur.setState(StatePreempted)
	}
	s.mu.Unlock()
	s.Resched()
}
