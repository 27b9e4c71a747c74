// Package boot implements the kernel's init sequence (spec.md §6 "Init
// format"): read a TAR archive containing sipinit.wasm, compile it,
// create its Process, hand it a Channel endpoint as handle 0, start it,
// and stream the raw archive bytes to its peer in 64-KiB messages.
//
// Grounded on original_source/tools/src/bin/boot.rs and
// original_source/src/main.rs's kmain/first_thread sequence; the TAR
// reader itself uses the standard library's archive/tar (see
// DESIGN.md): the original's common/tar.rs is a hand-rolled reader
// because the kernel has no libc, a constraint this hosted rewrite does
// not share.
package boot

import (
	"archive/tar"
	"bytes"
	"io"

	"github.com/nebulet/nebulet/internal/abi"
	"github.com/nebulet/nebulet/internal/compiler"
	"github.com/nebulet/nebulet/internal/console"
	"github.com/nebulet/nebulet/internal/kobj"
	"github.com/nebulet/nebulet/internal/nabi"
	"github.com/nebulet/nebulet/internal/sched"
	"github.com/nebulet/nebulet/internal/sip"
	"github.com/nebulet/nebulet/internal/wasmdecode"
)

// InitEntryName is the archive member the kernel requires (spec.md §6:
// "The archive must contain sipinit.wasm").
const InitEntryName = "sipinit.wasm"

// StreamChunkSize is the message size the raw archive is split into
// while streaming it to sipinit (spec.md §6: "64-KiB messages").
const StreamChunkSize = 64 * 1024

// Boot runs the entire init sequence against archiveData, the raw bytes
// of a TAR archive: extract and compile sipinit.wasm, create its
// Process, create a Channel pair and install the read end as handle 0,
// start the process, then stream archiveData itself (not just the
// extracted entry) to the write end in StreamChunkSize messages before
// releasing it. log receives boot diagnostics the way
// original_source/src/main.rs's kmain prints to its serial console.
func Boot(archiveData []byte, alloc *sip.Allocator, table *abi.Table, s *sched.Scheduler, log *console.Console) (*kobj.Process, error) {
	l := log.Logger("boot")

	wasmBytes, err := extractEntry(archiveData, InitEntryName)
	if err != nil {
		l.Error().Err(err).Msg("failed to extract init archive entry")
		return nil, err
	}

	mod, err := wasmdecode.Decode(bytes.NewReader(wasmBytes))
	if err != nil {
		l.Error().Err(err).Msg("failed to decode sipinit.wasm")
		return nil, err
	}

	art, err := compiler.Compile(mod, alloc, table)
	if err != nil {
		l.Error().Err(err).Msg("failed to compile sipinit.wasm")
		return nil, err
	}

	wasm := kobj.NewDispatch[*kobj.Wasm](kobj.NewWasm(art))
	proc, err := kobj.CreateProcess("sipinit", wasm, alloc, s)
	if err != nil {
		l.Error().Err(err).Msg("failed to create init process")
		return nil, err
	}

	readEnd, writeEnd := kobj.NewChannelPair()
	handle := proc.Handles().Allocate(readEnd.Upcast(), kobj.RightsAll)
	if handle != 0 {
		proc.Close()
		return nil, nabi.Internal("boot: init process's first handle was %d, not 0", handle)
	}

	if err := proc.Start(); err != nil {
		l.Error().Err(err).Msg("failed to start init process")
		proc.Close()
		return nil, err
	}

	l.Info().Int("bytes", len(archiveData)).Msg("streaming init archive to sipinit")
	if err := streamArchive(writeEnd.Value, archiveData, s); err != nil {
		l.Error().Err(err).Msg("failed to stream init archive")
		return nil, err
	}
	writeEnd.Release()

	return proc, nil
}

// streamArchive sends raw in StreamChunkSize messages over ch,
// cooperatively yielding and retrying on SHOULD_WAIT (spec.md §4.6's
// Send contract) instead of busy-spinning.
func streamArchive(ch *kobj.Channel, raw []byte, s *sched.Scheduler) error {
	for len(raw) > 0 {
		n := StreamChunkSize
		if n > len(raw) {
			n = len(raw)
		}
		chunk := raw[:n]
		raw = raw[n:]

		msg := kobj.Message{Bytes: append([]byte(nil), chunk...)}
		for {
			err := ch.Send(msg)
			if err == nil {
				break
			}
			if !nabi.IsShouldWait(err) {
				return err
			}
			s.Yield()
		}
	}
	return nil
}

// extractEntry reads archiveData as a TAR stream and returns the full
// contents of the member named name.
func extractEntry(archiveData []byte, name string) ([]byte, error) {
	tr := tar.NewReader(bytes.NewReader(archiveData))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, nabi.NotFound("boot: init archive has no %q entry", name)
		}
		if err != nil {
			return nil, nabi.Internal("boot: malformed init archive: %v", err)
		}
		if hdr.Name != name {
			continue
		}
		return io.ReadAll(tr)
	}
}
