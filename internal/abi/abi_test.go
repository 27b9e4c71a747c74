package abi

import (
	"bytes"
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/console"
	"github.com/nebulet/nebulet/internal/kobj"
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/nebulet/nebulet/internal/wasmtype"
	"github.com/stretchr/testify/require"
)

// minimalArtifact mirrors internal/kobj's own test helper: just enough
// of a compiled artifact (one memory, a RET-only code region) to build a
// real Process and exercise ABI calls against it without running the
// decode/compile pipeline.
func minimalArtifact(t *testing.T) *compiler.Artifact {
	t.Helper()
	code, err := region.New(region.PageSize, region.Read|region.Write|region.Exec, true)
	require.NoError(t, err)
	code.Bytes()[0] = 0xC3

	return &compiler.Artifact{
		Code:        code,
		FuncOffsets: []uint64{0},
		EntryOffset: 0,
		HasEntry:    true,
		Module: &wasmdecode.Module{
			Memories: []wasmtype.Limits{{Min: 2}},
		},
	}
}

// newTestProcess builds a real Process (and thus a real UserData/vmctx
// pair) backed by minimalArtifact, the fixture every op test below calls
// into directly rather than through the unrunnable native stub path.
func newTestProcess(t *testing.T) (*kobj.Process, uintptr) {
	t.Helper()
	art := minimalArtifact(t)
	wasm := kobj.NewDispatch[*kobj.Wasm](kobj.NewWasm(art))
	alloc := sip.New(sip.WindowSize)
	s := sched.New()

	proc, err := kobj.CreateProcess("abi-test", wasm, alloc, s)
	require.NoError(t, err)
	t.Cleanup(proc.Close)
	return proc, proc.Instance().VMContextAddr()
}

func statusOf(packed uint64) uint32  { return uint32(packed >> 32) }
func valueOf(packed uint64) uint32   { return uint32(packed) }
func isOK(t *testing.T, packed uint64) uint32 {
	t.Helper()
	require.EqualValues(t, 0, statusOf(packed), "expected StatusOK, got status %d", statusOf(packed))
	return valueOf(packed)
}

func TestEventCreateWaitTriggerRoundTrip(t *testing.T) {
	proc, vmctx := newTestProcess(t)

	handle := isOK(t, doEventCreate(rawArgs{}, vmctx))

	done := make(chan struct{})
	proc.Scheduler().Spawn("waiter", func() {
		isOK(t, doEventWait(rawArgs{a0: uint64(handle)}, vmctx))
		close(done)
	})

	select {
	case <-done:
		t.Fatal("event_wait returned before trigger")
	case <-time.After(20 * time.Millisecond):
	}

	woken := isOK(t, doEventTrigger(rawArgs{a0: uint64(handle)}, vmctx))
	require.EqualValues(t, 1, woken)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event_wait never woke after trigger")
	}
}

func TestHandleCloseThenGetFails(t *testing.T) {
	_, vmctx := newTestProcess(t)
	handle := isOK(t, doEventCreate(rawArgs{}, vmctx))

	packed := doHandleClose(rawArgs{a0: uint64(handle)}, vmctx)
	require.EqualValues(t, 0, statusOf(packed))

	packed = doEventTrigger(rawArgs{a0: uint64(handle)}, vmctx)
	require.NotEqualValues(t, 0, statusOf(packed), "trigger on a closed handle should fail")
}

func TestHandleDuplicateRejectsEscalatedRights(t *testing.T) {
	_, vmctx := newTestProcess(t)
	handle := isOK(t, doEventCreate(rawArgs{}, vmctx))

	packed := doHandleDuplicate(rawArgs{a0: uint64(handle), a1: uint64(kobj.RightsAll + 1)}, vmctx)
	require.NotEqualValues(t, 0, statusOf(packed))
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]

	const outPtr = 0
	require.EqualValues(t, 0, statusOf(doChannelCreate(rawArgs{a0: outPtr}, vmctx)))
	hA, err := mem.ReadUint32(outPtr)
	require.NoError(t, err)
	hB, err := mem.ReadUint32(outPtr + 4)
	require.NoError(t, err)

	const payloadPtr = 64
	buf, err := mem.Carve(payloadPtr, 5)
	require.NoError(t, err)
	copy(buf, "hello")

	packed := doChannelSend(rawArgs{a0: uint64(hA), a1: payloadPtr, a2: 5}, vmctx)
	require.EqualValues(t, 0, statusOf(packed))

	const recvPtr = 128
	n := isOK(t, doChannelRecv(rawArgs{a0: uint64(hB), a1: recvPtr, a2: 16}, vmctx))
	require.EqualValues(t, 5, n)

	got, err := mem.Carve(recvPtr, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestChannelRecvBufferTooSmallFails(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]

	const outPtr = 0
	require.EqualValues(t, 0, statusOf(doChannelCreate(rawArgs{a0: outPtr}, vmctx)))
	hA, _ := mem.ReadUint32(outPtr)
	hB, _ := mem.ReadUint32(outPtr + 4)

	buf, err := mem.Carve(64, 5)
	require.NoError(t, err)
	copy(buf, "hello")
	require.EqualValues(t, 0, statusOf(doChannelSend(rawArgs{a0: uint64(hA), a1: 64, a2: 5}, vmctx)))

	packed := doChannelRecv(rawArgs{a0: uint64(hB), a1: 128, a2: 2}, vmctx)
	require.NotEqualValues(t, 0, statusOf(packed))
}

func TestStreamWriteReadShort(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]

	const outPtr = 0
	require.EqualValues(t, 0, statusOf(doStreamCreate(rawArgs{a0: outPtr}, vmctx)))
	hA, _ := mem.ReadUint32(outPtr)
	hB, _ := mem.ReadUint32(outPtr + 4)

	buf, err := mem.Carve(64, 4)
	require.NoError(t, err)
	copy(buf, "data")

	n := isOK(t, doStreamWrite(rawArgs{a0: uint64(hA), a1: 64, a2: 4}, vmctx))
	require.EqualValues(t, 4, n)

	n = isOK(t, doStreamRead(rawArgs{a0: uint64(hB), a1: 128, a2: 16}, vmctx))
	require.EqualValues(t, 4, n)

	got, err := mem.Carve(128, 4)
	require.NoError(t, err)
	require.Equal(t, "data", string(got))
}

func TestPfexAcquireReleaseRoundTrip(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]
	require.NoError(t, mem.WriteUint32(256, 0))

	require.EqualValues(t, 0, statusOf(doPfexAcquire(rawArgs{a0: 256}, vmctx)))
	locked, err := mem.ReadUint32(256)
	require.NoError(t, err)
	require.EqualValues(t, kobj.PfexLocked, locked)

	require.EqualValues(t, 0, statusOf(doPfexRelease(rawArgs{a0: 256}, vmctx)))
	cleared, err := mem.ReadUint32(256)
	require.NoError(t, err)
	require.EqualValues(t, 0, cleared)
}

func TestObjectWaitOneObservesSignalSetByObjectSignal(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	handle := isOK(t, doEventCreate(rawArgs{}, vmctx))

	done := make(chan uint64, 1)
	proc.Scheduler().Spawn("waiter", func() {
		done <- doObjectWaitOne(rawArgs{a0: uint64(handle), a1: uint64(kobj.SignalEventSignaled)}, vmctx)
	})

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 0, statusOf(doEventTrigger(rawArgs{a0: uint64(handle)}, vmctx)))

	select {
	case packed := <-done:
		require.EqualValues(t, kobj.SignalEventSignaled, valueOf(packed))
	case <-time.After(time.Second):
		t.Fatal("object_wait_one never observed the trigger")
	}
}

func TestInterruptCreateFireAck(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]

	const outPtr = 512
	irqHandle := isOK(t, doInterruptCreate(rawArgs{a0: 7, a1: uint64(kobj.InterruptUnmaskPrewait | kobj.InterruptMaskPostwait), a2: outPtr}, vmctx))
	chanHandle, err := mem.ReadUint32(outPtr)
	require.NoError(t, err)

	ch, err := kobj.GetTyped[*kobj.Channel](proc.Handles(), chanHandle, kobj.RightRead)
	require.NoError(t, err)

	irq, err := kobj.GetTyped[*kobj.Interrupt](proc.Handles(), irqHandle, kobj.RightWrite)
	require.NoError(t, err)
	require.NoError(t, irq.Fire(time.Now()))

	_, err = ch.Recv()
	require.NoError(t, err)

	require.EqualValues(t, 0, statusOf(doInterruptAck(rawArgs{a0: uint64(irqHandle)}, vmctx)))
}

func TestIOPortReadWriteRoundTrip(t *testing.T) {
	_, vmctx := newTestProcess(t)
	SetPortIO(&fakePortIO{})

	require.EqualValues(t, 0, statusOf(doIOWritePortU8(rawArgs{a0: 0x3f8, a1: 42}, vmctx)))
	v := isOK(t, doIOReadPortU8(rawArgs{a0: 0x3f8}, vmctx))
	require.EqualValues(t, 42, v)
}

func TestRandomFillWritesNonZeroBuffer(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]
	require.NoError(t, mem.WriteUint32(1024, 0))

	n := isOK(t, doRandRandomFill(rawArgs{a0: 1024, a1: 256}, vmctx))
	require.EqualValues(t, 256, n)

	buf, err := mem.Carve(1024, 256)
	require.NoError(t, err)
	require.False(t, bytes.Equal(buf, make([]byte, 256)), "random_fill should not leave the buffer all zero")
}

func TestGrowMemoryAndCurrentMemory(t *testing.T) {
	_, vmctx := newTestProcess(t)

	prior := isOK(t, doGrowMemory(rawArgs{a0: 1}, vmctx))
	require.EqualValues(t, 2, prior)

	cur := isOK(t, doCurrentMemory(rawArgs{}, vmctx))
	require.EqualValues(t, 3, cur)
}

func TestPrintWritesToConsole(t *testing.T) {
	proc, vmctx := newTestProcess(t)
	mem := proc.Instance().Memories()[0]

	var buf bytes.Buffer
	SetConsole(console.New(&buf))
	t.Cleanup(func() { SetConsole(console.Default()) })

	dst, err := mem.Carve(2048, 5)
	require.NoError(t, err)
	copy(dst, "howdy")

	n := isOK(t, doPrint(rawArgs{a0: 2048, a1: 5}, vmctx))
	require.EqualValues(t, 5, n)
	require.Equal(t, "howdy", buf.String())
}

func TestProcessCreateAndStart(t *testing.T) {
	proc, vmctx := newTestProcess(t)

	art := minimalArtifact(t)
	wasmDispatch := kobj.NewDispatch[*kobj.Wasm](kobj.NewWasm(art))
	handle := proc.Handles().Allocate(wasmDispatch.Upcast(), kobj.RightsAll)

	childHandle := isOK(t, doProcessCreate(rawArgs{a0: uint64(handle)}, vmctx))
	require.EqualValues(t, 0, statusOf(doProcessStart(rawArgs{a0: uint64(childHandle)}, vmctx)))
}

func TestThreadYieldAndSpawn(t *testing.T) {
	proc, vmctx := newTestProcess(t)

	done := make(chan uint64, 1)
	proc.Scheduler().Spawn("yielder", func() {
		done <- doThreadYield(rawArgs{}, vmctx)
	})
	select {
	case packed := <-done:
		require.EqualValues(t, 0, statusOf(packed))
	case <-time.After(time.Second):
		t.Fatal("thread_yield never returned")
	}

	idx := isOK(t, doThreadSpawn(rawArgs{a0: 0, a1: 99}, vmctx))
	require.GreaterOrEqual(t, int(idx), 0)
}
