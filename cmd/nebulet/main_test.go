package main

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/nebulet/nebulet/internal/wasmdecode"
	"github.com/stretchr/testify/require"
)

// buildNoopModule hand-assembles the smallest module Process.Start
// accepts: a start function whose body does nothing.
func buildNoopModule() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d})
	b.Write([]byte{0x01, 0x00, 0x00, 0x00})

	writeSection := func(id byte, payload []byte) {
		b.WriteByte(id)
		b.Write(wasmdecode.EncodeUint32(uint32(len(payload))))
		b.Write(payload)
	}

	writeSection(1, []byte{0x01, 0x60, 0x00, 0x00}) // type0 ()->()
	writeSection(3, []byte{0x01, 0x00})             // one func, type0
	writeSection(5, []byte{0x01, 0x00, 0x01})       // memory0: min 1 page
	writeSection(8, []byte{0x00})                   // start: func index 0
	writeSection(10, []byte{0x01, 0x02, 0x00, 0x0b}) // func0: no locals, end

	return b.Bytes()
}

func buildArchive(t *testing.T, wasm []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: "sipinit.wasm", Mode: 0o644, Size: int64(len(wasm))}
	require.NoError(t, tw.WriteHeader(hdr))
	_, err := tw.Write(wasm)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestHelp(t *testing.T) {
	var stdErr bytes.Buffer
	code := doMain([]string{"-h"}, io.Discard, &stdErr)
	require.Equal(t, 0, code)
	require.Contains(t, stdErr.String(), "nebulet [-v]")
}

func TestMissingArchivePath(t *testing.T) {
	var stdErr bytes.Buffer
	code := doMain(nil, io.Discard, &stdErr)
	require.Equal(t, 1, code)
	require.Contains(t, stdErr.String(), "missing path to init archive")
}

func TestArchiveNotFound(t *testing.T) {
	var stdErr bytes.Buffer
	code := doMain([]string{filepath.Join(t.TempDir(), "missing.tar")}, io.Discard, &stdErr)
	require.Equal(t, 1, code)
	require.Contains(t, stdErr.String(), "error reading init archive")
}

func TestArchiveMissingSipinitEntry(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.Close())

	path := filepath.Join(t.TempDir(), "init.tar")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var stdErr bytes.Buffer
	code := doMain([]string{path}, io.Discard, &stdErr)
	require.Equal(t, 1, code)
	require.Contains(t, stdErr.String(), "error booting init archive")
}

func TestRunBootsAndExitsOnSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "init.tar")
	require.NoError(t, os.WriteFile(path, buildArchive(t, buildNoopModule()), 0o644))

	done := make(chan int, 1)
	var stdOut, stdErr bytes.Buffer
	go func() {
		done <- doMain([]string{"-v", path}, &stdOut, &stdErr)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(time.Second):
		t.Fatal("doMain never returned after SIGTERM")
	}
}
