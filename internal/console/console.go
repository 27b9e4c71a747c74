// Package console is Nebulet's one serial-console sink: every kernel
// subsystem's diagnostics and every process's print ABI call write
// through it, mirroring the original kernel's single Writer-backed VGA
// console with a zerolog logger standing in for println!.
package console

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Console owns the single io.Writer every process's print ABI call and
// every kernel subsystem's logger writes through.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

// New wraps out (os.Stdout in cmd/nebulet, a bytes.Buffer in tests) as
// the kernel's console device.
func New(out io.Writer) *Console {
	return &Console{
		out: out,
		log: zerolog.New(out).With().Timestamp().Logger(),
	}
}

// Default returns a Console writing to os.Stdout, for callers that do
// not need to capture output.
func Default() *Console {
	return New(os.Stdout)
}

// Logger returns a subsystem-scoped logger, the way every pack repo
// derives a child logger via .With().Str("subsystem", ...) rather than
// logging through a bare global.
func (c *Console) Logger(subsystem string) zerolog.Logger {
	return c.log.With().Str("subsystem", subsystem).Logger()
}

// Write implements io.Writer, serializing concurrent process print calls
// onto the single underlying device the way a real serial port would.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}
