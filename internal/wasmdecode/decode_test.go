package wasmdecode

import (
	"bytes"
	"testing"

	"github.com/nebulet/nebulet/internal/wasmtype"
	"github.com/stretchr/testify/require"
)

// buildMinimalModule returns a hand-assembled WebAssembly binary exporting
// a zero-argument function "main" that returns the i32 constant 42,
// mirroring the module the fault/compile testable properties (spec.md §8,
// property 7) exercise.
func buildMinimalModule() []byte {
	var b bytes.Buffer
	b.Write(magic)
	b.Write(version)

	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}

	// type section: () -> i32
	writeSection(sectionType, []byte{0x01, 0x60, 0x00, 0x01, 0x7f})
	// function section: func 0 uses type 0
	writeSection(sectionFunction, []byte{0x01, 0x00})
	// export section: "main" -> func 0
	writeSection(sectionExport, []byte{0x01, 0x04, 'm', 'a', 'i', 'n', 0x00, 0x00})
	// code section: no locals, i32.const 42; end
	writeSection(sectionCode, []byte{0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b})

	return b.Bytes()
}

func TestDecodeMinimalModule(t *testing.T) {
	m, err := Decode(bytes.NewReader(buildMinimalModule()))
	require.NoError(t, err)

	require.Len(t, m.Types, 1)
	require.Empty(t, m.Types[0].Params)
	require.Equal(t, []wasmtype.ValueType{wasmtype.ValueTypeI32}, m.Types[0].Results)

	require.Equal(t, []uint32{0}, m.Functions)

	require.Len(t, m.Exports, 1)
	require.Equal(t, "main", m.Exports[0].Name)
	require.Equal(t, wasmtype.ExternTypeFunc, m.Exports[0].Kind)
	require.Equal(t, uint32(0), m.Exports[0].Index)

	require.Len(t, m.Code, 1)
	require.Empty(t, m.Code[0].Locals)
	require.Equal(t, []byte{0x41, 0x2a, 0x0b}, m.Code[0].Body)

	ft, ok := m.FuncType(0)
	require.True(t, ok)
	require.True(t, ft.Equal(m.Types[0]))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x00}))
	require.Error(t, err)
}

func TestDecodeConstExprVariants(t *testing.T) {
	var b bytes.Buffer
	b.Write(magic)
	b.Write(version)
	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}
	// memory section: one memory, min=1 page, no max
	writeSection(sectionMemory, []byte{0x01, 0x00, 0x01})
	// data section: memory 0, offset i32.const 0, bytes "hi"
	writeSection(sectionData, []byte{0x01, 0x00, 0x41, 0x00, 0x0b, 0x02, 'h', 'i'})

	m, err := Decode(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	require.Len(t, m.Memories, 1)
	require.EqualValues(t, 1, m.Memories[0].Min)
	require.False(t, m.Memories[0].HasMax)

	require.Len(t, m.Data, 1)
	require.Equal(t, ConstI32, m.Data[0].Offset.Kind)
	require.Equal(t, int32(0), m.Data[0].Offset.I32)
	require.Equal(t, []byte("hi"), m.Data[0].Bytes)
}
