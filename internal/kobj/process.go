package kobj

import (
	"sync"
	"unsafe"

	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/nebulet/nebulet/internal/sip"
)

// Process owns everything a running wasm program needs (spec.md §3
// "Process"): an optional name, the immutable compiled code it was
// launched from, the Instance built against it, a HandleTable, the list
// of threads it has spawned, and a futex map. Grounded on
// original_source/src/task/process.rs, with compile() folded into
// CreateProcess's caller (internal/boot owns artifact compilation; a
// Process is handed an already-compiled Wasm dispatch).
type Process struct {
	Context
	Name string

	wasm     *Dispatch[*Wasm]
	instance *Instance
	handles  *HandleTable
	pfex     *PfexMap
	sched    *sched.Scheduler
	alloc    *sip.Allocator

	mu      sync.Mutex
	threads []*sched.Thread
	started bool
}

func (p *Process) Ctx() *Context { return &p.Context }

// AllowedUserSignals lets a holder of a handle to the Process (e.g. a
// parent) set, clear and wait for SignalHandleClosed. The Process does
// not assert it itself: neither Exit, Trap nor a thread's exit signals
// it (process_create's returned handle is otherwise inert: process_start
// is the only other operation it is valid for).
func (p *Process) AllowedUserSignals() Signal { return SignalHandleClosed }

// OnZeroHandles tears the process down once nothing references it
// anymore: every other thread is killed exactly as Exit does, and the
// underlying Instance and Wasm reference are released.
func (p *Process) OnZeroHandles() {
	p.Exit()
	p.Close()
}

// CreateProcess builds the Instance against wasm's artifact and wires up
// an empty HandleTable and futex map (spec.md §4.3's Instance
// construction, invoked at process-creation time).
func CreateProcess(name string, wasm *Dispatch[*Wasm], alloc *sip.Allocator, s *sched.Scheduler) (*Process, error) {
	inst, err := NewInstance(wasm.Value.Artifact, alloc)
	if err != nil {
		return nil, err
	}
	p := &Process{
		Name:     name,
		wasm:     wasm,
		instance: inst,
		handles:  NewHandleTable(),
		pfex:     NewPfexMap(s),
		sched:    s,
		alloc:    alloc,
	}
	if err := inst.BuildVMContext(p); err != nil {
		inst.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) Handles() *HandleTable       { return p.handles }
func (p *Process) Instance() *Instance         { return p.instance }
func (p *Process) Futex() *PfexMap             { return p.pfex }
func (p *Process) Scheduler() *sched.Scheduler { return p.sched }
func (p *Process) Allocator() *sip.Allocator   { return p.alloc }

// CreateThread registers a new thread body and enqueues it on the
// scheduler, returning both the Thread and its index in the process's
// thread table (the ABI's thread_spawn return value).
func (p *Process) CreateThread(name string, entry func()) (*sched.Thread, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.threads)
	t := p.sched.Spawn(name, entry)
	p.threads = append(p.threads, t)
	return t, idx
}

// SpawnEntry resolves funcIdx to a native address within the process's
// own artifact and spawns a thread invoking it with arg and the process's
// VM-context pointer, the ABI's thread_spawn operation (spec.md §6).
func (p *Process) SpawnEntry(funcIdx uint32, arg uint32) (int, error) {
	target, err := p.instance.FuncAddr(funcIdx)
	if err != nil {
		return 0, err
	}
	vmctx := p.instance.VMContextAddr()
	_, idx := p.CreateThread(p.Name+"-thread", func() {
		callEntry1(target, uint64(arg), vmctx)
	})
	return idx, nil
}

// Start runs the process's entry point on thread 0 (spec.md §6 boot
// flow): invokes the artifact's resolved entry offset with the
// Instance's VM-context pointer through the native-call trampoline,
// since Go cannot call a raw machine-code address directly.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nabi.InvalidArgs("process: already started")
	}
	p.started = true
	p.mu.Unlock()

	art := p.wasm.Value.Artifact
	if !art.HasEntry {
		return nabi.Internal("process: artifact has no resolved entry point")
	}
	codeBase := uintptr(unsafe.Pointer(&art.Code.Bytes()[0]))
	target := codeBase + uintptr(art.EntryOffset)
	vmctx := p.instance.VMContextAddr()

	p.CreateThread(p.Name+"-0", func() {
		callEntry0(target, vmctx)
	})
	return nil
}

// Trap terminates the process in response to a fault the page-fault
// bridge (internal/trap) classified as anything other than a lazy
// commit (spec.md §4.8: "handling a trap other than lazy-commit
// terminates the Process: kill every thread except the current one, then
// exit the current one"). kind is recorded for diagnostics only; Trap
// never returns; the current thread's own entry function unwinds via
// the same Kill-then-park mechanism Exit uses on every other thread, no
// thread in the process calls this concurrently since Trap always
// occurs on the thread that caused the fault.
func (p *Process) Trap(kind compiler.TrapKind) {
	cur := p.sched.Current()
	p.Exit()
	if cur != nil {
		cur.Kill()
	}
	p.sched.Yield()
	panic("kobj: Process.Trap: killed thread resumed instead of unwinding")
}

// Exit tears down every thread but the caller's (spec.md §4.7
// "Cancellation": process exit kills every other thread without its
// cooperation).
func (p *Process) Exit() {
	cur := p.sched.Current()
	p.mu.Lock()
	threads := append([]*sched.Thread(nil), p.threads...)
	p.mu.Unlock()
	for _, t := range threads {
		if t == cur {
			continue
		}
		t.Kill()
	}
}

// Close releases the process's Instance and Wasm reference. Callers
// must ensure every thread has exited first.
func (p *Process) Close() {
	p.instance.Close()
	p.wasm.Release()
}
