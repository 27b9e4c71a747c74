package compiler

import (
	"bytes"
	"testing"

	"github.com/nebulet/nebulet/internal/region"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/stretchr/testify/require"
)

// buildMinimalModule hand-assembles a module exporting a zero-argument
// "main" returning the i32 constant 42, the same shape wasmdecode's own
// decode test exercises, so the compiler's entry-point resolution has a
// fixed point to aim at.
func buildMinimalModule() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	b.Write([]byte{0x01, 0x00, 0x00, 0x00})

	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(wasmdecode.EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}
	writeSection(1, []byte{0x01, 0x60, 0x00, 0x01, 0x7f})               // type: () -> i32
	writeSection(3, []byte{0x01, 0x00})                                 // function: func0 uses type0
	writeSection(7, []byte{0x01, 0x04, 'm', 'a', 'i', 'n', 0x00, 0x00}) // export "main" -> func0
	writeSection(10, []byte{0x01, 0x04, 0x00, 0x41, 0x2a, 0x0b})        // code: i32.const 42; end
	return b.Bytes()
}

// buildAddTwoModule builds a module exporting "add" with signature
// (i32, i32) -> i32 computing local0 + local1, exercising local.get and
// the i32 arithmetic lowering path end to end.
func buildAddTwoModule() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	b.Write([]byte{0x01, 0x00, 0x00, 0x00})
	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(wasmdecode.EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}
	writeSection(1, []byte{0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}) // (i32,i32)->i32
	writeSection(3, []byte{0x01, 0x00})
	writeSection(7, []byte{0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00})
	// code: no extra locals; local.get 0; local.get 1; i32.add; end
	writeSection(10, []byte{0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b})
	return b.Bytes()
}

func TestCompileMinimalModuleResolvesEntry(t *testing.T) {
	mod, err := wasmdecode.Decode(bytes.NewReader(buildMinimalModule()))
	require.NoError(t, err)

	alloc := sip.New(sip.WindowSize)
	art, err := Compile(mod, alloc, nil)
	require.NoError(t, err)
	defer art.Code.Close()

	require.True(t, art.HasEntry)
	require.Len(t, art.FuncOffsets, 1)
	require.Equal(t, art.FuncOffsets[0], art.EntryOffset)
	require.Equal(t, region.Read|region.Exec, art.Code.Prot())
}

func TestCompileAddTwoModule(t *testing.T) {
	mod, err := wasmdecode.Decode(bytes.NewReader(buildAddTwoModule()))
	require.NoError(t, err)

	alloc := sip.New(sip.WindowSize)
	art, err := Compile(mod, alloc, nil)
	require.NoError(t, err)
	defer art.Code.Close()

	require.Len(t, art.FuncOffsets, 1)
	require.False(t, art.HasEntry) // no start func, no exported "main"
}

func TestCompileRejectsFloatOpcode(t *testing.T) {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	b.Write([]byte{0x01, 0x00, 0x00, 0x00})
	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(wasmdecode.EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}
	writeSection(1, []byte{0x01, 0x60, 0x00, 0x01, 0x7c}) // () -> f64
	writeSection(3, []byte{0x01, 0x00})
	writeSection(10, []byte{0x01, 0x0b, 0x00, 0x44, 0, 0, 0, 0, 0, 0, 0, 0, 0x0b}) // f64.const 0; end

	mod, err := wasmdecode.Decode(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)

	alloc := sip.New(sip.WindowSize)
	_, err = Compile(mod, alloc, nil)
	require.Error(t, err)
}
