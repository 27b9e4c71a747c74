package codegen

import (
	"fmt"

	"github.com/nebulet/nebulet/internal/memmap"
)

// CodeSegment is a growable, page-backed scratch buffer for machine code.
// Adapted from
// the teacher's mmap'd code-segment pattern (internal/platform +
// internal/asm.Buffer in wazero's historical compiler engine); rewired
// onto internal/memmap since that package's own mmap backend was specific
// to wazero's embedding API and didn't carry forward.
//
// Unlike wazero — which keeps one long-lived executable segment per
// compiled module — nothing here runs code out of a CodeSegment, and it
// is never itself marked executable. internal/compiler does not use it:
// it takes each function body's bytes from Assembler.Assemble and copies
// them into the module's immutable code Region (internal/region).
type CodeSegment struct {
	mem []byte
	len int
}

// NewCodeSegment reserves a code segment with room for at least size
// bytes.
func NewCodeSegment(size int) (*CodeSegment, error) {
	if size <= 0 {
		size = 4096
	}
	mem, err := memmap.MmapCodeSegment(size)
	if err != nil {
		return nil, fmt.Errorf("codegen: code segment: %w", err)
	}
	return &CodeSegment{mem: mem}, nil
}

// Len returns the number of bytes written so far.
func (c *CodeSegment) Len() int { return c.len }

// Bytes returns the written prefix of the segment.
func (c *CodeSegment) Bytes() []byte { return c.mem[:c.len] }

// Grow ensures at least n more bytes are available past Len, growing the
// backing mapping if necessary.
func (c *CodeSegment) Grow(n int) error {
	need := c.len + n
	if need <= len(c.mem) {
		return nil
	}
	newSize := len(c.mem) * 2
	if newSize < need {
		newSize = need
	}
	next, err := memmap.RemapCodeSegment(c.mem, newSize)
	if err != nil {
		return fmt.Errorf("codegen: grow code segment: %w", err)
	}
	c.mem = next
	return nil
}

// Write appends p to the segment, growing as needed.
func (c *CodeSegment) Write(p []byte) (int, error) {
	if err := c.Grow(len(p)); err != nil {
		return 0, err
	}
	n := copy(c.mem[c.len:], p)
	c.len += n
	return n, nil
}

// Reset truncates the segment back to empty without releasing its
// backing mapping, for reuse across function bodies.
func (c *CodeSegment) Reset() { c.len = 0 }

// Close releases the segment's backing mapping.
func (c *CodeSegment) Close() error {
	if c.mem == nil {
		return nil
	}
	err := memmap.MunmapCodeSegment(c.mem)
	c.mem = nil
	return err
}
