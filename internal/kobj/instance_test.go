package kobj

import (
	"testing"

	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/nebulet/nebulet/internal/wasmtype"
	"github.com/stretchr/testify/require"
)

// minimalArtifact builds just enough of a compiler.Artifact to exercise
// Instance construction without running the real decode/compile
// pipeline: one memory, one global, a RET-only code region.
func minimalArtifact(t *testing.T) *compiler.Artifact {
	t.Helper()
	code, err := region.New(region.PageSize, region.Read|region.Write|region.Exec, true)
	require.NoError(t, err)
	code.Bytes()[0] = 0xC3 // RET

	return &compiler.Artifact{
		Code:        code,
		FuncOffsets: []uint64{0},
		EntryOffset: 0,
		HasEntry:    true,
		Module: &wasmdecode.Module{
			Memories: []wasmtype.Limits{{Min: 1}},
			Globals: []wasmdecode.Global{
				{Init: wasmdecode.ConstExpr{Kind: wasmdecode.ConstI64, I64: 42}},
			},
		},
	}
}

func TestNewInstanceBuildsVMContext(t *testing.T) {
	art := minimalArtifact(t)
	alloc := sip.New(sip.WindowSize)

	inst, err := NewInstance(art, alloc)
	require.NoError(t, err)
	defer inst.Close()

	require.Len(t, inst.Memories(), 1)
	require.Equal(t, 1, inst.Memories()[0].CurrentPages())

	proc := &Process{Name: "test"}
	require.NoError(t, inst.BuildVMContext(proc))

	vmctx := inst.VMContextAddr()
	require.NotZero(t, vmctx)

	ud := UserDataAt(vmctx)
	require.Same(t, proc, ud.Process)
	require.Same(t, inst, ud.Instance)
}

func TestInstanceFutexMemoryRoundTrip(t *testing.T) {
	art := minimalArtifact(t)
	alloc := sip.New(sip.WindowSize)

	inst, err := NewInstance(art, alloc)
	require.NoError(t, err)
	defer inst.Close()

	require.NoError(t, inst.StoreUint32(8, 7))
	v, err := inst.LoadUint32(8)
	require.NoError(t, err)
	require.Equal(t, uint32(7), v)

	swapped, err := inst.CompareAndSwapUint32(8, 7, 9)
	require.NoError(t, err)
	require.True(t, swapped)

	swapped, err = inst.CompareAndSwapUint32(8, 7, 10)
	require.NoError(t, err)
	require.False(t, swapped)
}
