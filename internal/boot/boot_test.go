package boot

import (
	"archive/tar"
	"bytes"
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/abi"
	"github.com/nebulet/nebulet/internal/console"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/stretchr/testify/require"
)

// buildSipinitModule hand-assembles a module matching spec.md §8's S1
// scenario: it imports env.print, declares one memory, initializes
// offset 0 with "hello\n", and calls print(0, 6) from its start
// function.
func buildSipinitModule() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	b.Write([]byte{0x01, 0x00, 0x00, 0x00})

	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(wasmdecode.EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}

	// type section: type0 (i32,i32)->() for print; type1 ()->() for start.
	writeSection(1, []byte{
		0x02,
		0x60, 0x02, 0x7f, 0x7f, 0x00, // (i32,i32)->()
		0x60, 0x00, 0x00, // ()->()
	})
	// import section: env.print, func using type0 -> global func index 0.
	writeSection(2, append([]byte{0x01, 0x03, 'e', 'n', 'v'}, append([]byte{0x05, 'p', 'r', 'i', 'n', 't', 0x00, 0x00})...))
	// function section: one local function (func index 1) using type1.
	writeSection(3, []byte{0x01, 0x01})
	// memory section: one memory, min 1 page.
	writeSection(5, []byte{0x01, 0x00, 0x01})
	// start section: func index 1.
	writeSection(8, []byte{0x01})
	// code section: func1 body — no locals; i32.const 0; i32.const 6; call 0; end.
	writeSection(10, []byte{
		0x01,
		0x08, 0x00,
		0x41, 0x00, // i32.const 0
		0x41, 0x06, // i32.const 6
		0x10, 0x00, // call 0
		0x0b, // end
	})
	// data section: memory 0, offset i32.const 0, bytes "hello\n".
	data := append([]byte{0x00, 0x41, 0x00, 0x0b}, wasmdecode.EncodeUint32(6)...)
	data = append(data, []byte("hello\n")...)
	writeSection(11, append([]byte{0x01}, data...))

	return b.Bytes()
}

func buildArchive(t *testing.T, wasm []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: InitEntryName, Mode: 0o644, Size: int64(len(wasm))}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err := tw.Write(wasm)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestBootRunsSipinitAndPrintsHello(t *testing.T) {
	archive := buildArchive(t, buildSipinitModule())

	alloc := sip.New(sip.WindowSize)
	table := abi.NewTable(alloc)
	t.Cleanup(table.Close)
	s := sched.New()

	var out bytes.Buffer
	con := console.New(&out)
	abi.SetConsole(con)
	t.Cleanup(func() { abi.SetConsole(console.Default()) })

	proc, err := Boot(archive, alloc, table, s, con)
	require.NoError(t, err)
	t.Cleanup(proc.Close)

	require.Eventually(t, func() bool {
		return out.String() == "hello\n"
	}, time.Second, time.Millisecond, "sipinit never printed hello")
}

func TestBootFailsWithoutSipinitEntry(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.Close())

	alloc := sip.New(sip.WindowSize)
	table := abi.NewTable(alloc)
	t.Cleanup(table.Close)
	s := sched.New()

	_, err := Boot(buf.Bytes(), alloc, table, s, console.Default())
	require.Error(t, err)
}

func TestExtractEntryReadsNamedMember(t *testing.T) {
	archive := buildArchive(t, []byte("payload"))
	got, err := extractEntry(archive, InitEntryName)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}
