package abi

import (
	"sync"

	"github.com/nebulet/nebulet/internal/nabi"
)

// PortIO is the external-collaborator seam io::read_port_u8 and
// io::write_port_u8 dispatch through: no hosted process can issue real
// x86 IN/OUT instructions (that requires ring-0 and the architecture
// layer spec.md §1 puts out of scope), so this rewrite routes driver
// port access through an interface a real architecture backend would
// implement, with an in-memory fake standing in here.
type PortIO interface {
	InB(port uint16) (uint8, error)
	OutB(port uint16, val uint8) error
}

// fakePortIO backs every process until a real backend is wired in: a
// plain byte-per-port array, giving drivers something observably
// stateful to read back what they wrote without any real hardware.
type fakePortIO struct {
	mu    sync.Mutex
	ports [1 << 16]uint8
}

func (f *fakePortIO) InB(port uint16) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ports[port], nil
}

func (f *fakePortIO) OutB(port uint16, val uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports[port] = val
	return nil
}

var (
	portIOMu sync.RWMutex
	portIO   PortIO = &fakePortIO{}
)

// SetPortIO installs backend as the target of every io::read_port_u8 and
// io::write_port_u8 call. internal/boot calls this with a real backend
// where one exists; tests may install their own fake to assert on.
func SetPortIO(backend PortIO) {
	portIOMu.Lock()
	portIO = backend
	portIOMu.Unlock()
}

func activePortIO() PortIO {
	portIOMu.RLock()
	defer portIOMu.RUnlock()
	return portIO
}

// doIOReadPortU8 implements io::read_port_u8(port).
func doIOReadPortU8(args rawArgs, vmctx uintptr) uint64 {
	port := args.u32(0)
	if port > 0xFFFF {
		return pack(0, nabi.InvalidArgs("io: port %d out of range", port))
	}
	val, err := activePortIO().InB(uint16(port))
	return pack(uint32(val), err)
}

// doIOWritePortU8 implements io::write_port_u8(port, val).
func doIOWritePortU8(args rawArgs, vmctx uintptr) uint64 {
	port := args.u32(0)
	if port > 0xFFFF {
		return pack(0, nabi.InvalidArgs("io: port %d out of range", port))
	}
	err := activePortIO().OutB(uint16(port), uint8(args.u32(1)))
	return pack(0, err)
}
