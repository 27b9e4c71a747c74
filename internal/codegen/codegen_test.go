package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleSimpleFunction(t *testing.T) {
	a, err := New("amd64")
	require.NoError(t, err)

	// mov $42, AX; ret
	a.EmitConstReg(MOVQ, 42, RegAX)
	a.EmitStandalone(RET)

	code, err := a.Assemble()
	require.NoError(t, err)
	require.NotEmpty(t, code)
}

func TestAssembleWithJumpTarget(t *testing.T) {
	a, err := New("amd64")
	require.NoError(t, err)

	a.EmitConstReg(MOVL, 0, RegAX)
	jmp := a.EmitJump(JMP)
	a.EmitConstReg(MOVL, 1, RegAX) // skipped
	target := a.EmitStandalone(NOP)
	jmp.SetJumpTarget(target)

	code, err := a.Assemble()
	require.NoError(t, err)
	require.NotEmpty(t, code)
}

func TestCodeSegmentGrowAndWrite(t *testing.T) {
	seg, err := NewCodeSegment(8)
	require.NoError(t, err)
	defer seg.Close()

	n, err := seg.Write([]byte{0xC3})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	big := make([]byte, 4096)
	_, err = seg.Write(big)
	require.NoError(t, err)
	require.Equal(t, 1+len(big), seg.Len())

	seg.Reset()
	require.Equal(t, 0, seg.Len())
}
