// Package codegen drives golang-asm (the same native-codegen dependency
// the teacher's historical compiler engine used) to emit x86-64 machine
// code for compiled WebAssembly function bodies. It exposes the small,
// operand-shape-specific emit surface internal/compiler actually needs —
// register-to-register, constant-to-register, memory-with-displacement,
// jumps, and calls — rather than reproducing a general-purpose assembler.
package codegen

import (
	"fmt"
	"reflect"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// FuncAddr returns the entry address of a Go function value, the way a
// host-function table resolves an ABI call's target for the compiler's
// relocation step (spec.md §4.2 step 5). fn must be a non-nil function
// value; methods and closures over captured state are not supported.
func FuncAddr(fn interface{}) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// Reg is an x86-64 register, numbered the way golang-asm's obj/x86
// package numbers them (REG_AX, REG_CX, ...).
type Reg = int16

// As is an instruction opcode, the type of the constants in amd64.go.
type As = obj.As

// Node is a handle to one emitted instruction, returned so callers can
// later patch it as a jump's destination.
type Node struct {
	prog *obj.Prog
}

// OffsetInBinary returns the node's program-counter offset once Assemble
// has run; used to compute relocations and trap-site offsets.
func (n Node) OffsetInBinary() uint64 { return uint64(n.prog.Pc) }

// SetJumpTarget makes n (a jump instruction) branch to target.
func (n Node) SetJumpTarget(target Node) {
	n.prog.To.SetTarget(target.prog)
}

func (n Node) String() string { return n.prog.String() }

// Assembler accumulates a linear sequence of instructions for one
// function body and assembles them into relocatable machine code.
// Forward branches are resolved by emitting an explicit NOP landing pad
// and pointing the branch at it with Node.SetJumpTarget, rather than a
// deferred "apply to whatever comes next" mechanism.
type Assembler struct {
	b          *goasm.Builder
	onGenerate []func(code []byte) error
}

// New creates an Assembler targeting arch (e.g. "amd64").
func New(arch string) (*Assembler, error) {
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, fmt.Errorf("codegen: new builder: %w", err)
	}
	return &Assembler{b: b}, nil
}

func (a *Assembler) newProg() *obj.Prog {
	return a.b.NewProg()
}

func (a *Assembler) add(p *obj.Prog) Node {
	a.b.AddInstruction(p)
	return Node{prog: p}
}

// OnGenerate registers a callback invoked with the final machine code
// once Assemble succeeds, used to patch in absolute relocations that can
// only be computed after the code's final address is known.
func (a *Assembler) OnGenerate(cb func(code []byte) error) {
	a.onGenerate = append(a.onGenerate, cb)
}

// Assemble finalizes the instruction stream into machine code.
func (a *Assembler) Assemble() ([]byte, error) {
	code := a.b.Assemble()
	for _, cb := range a.onGenerate {
		if err := cb(code); err != nil {
			return nil, err
		}
	}
	return code, nil
}

// EmitStandalone emits an instruction with no operands (e.g. RET, NOP,
// CDQ, CQO).
func (a *Assembler) EmitStandalone(as obj.As) Node {
	p := a.newProg()
	p.As = as
	return a.add(p)
}

// EmitRegReg emits `as from, to` where both operands are registers.
func (a *Assembler) EmitRegReg(as obj.As, from, to Reg) Node {
	p := a.newProg()
	p.As = as
	p.From.Type, p.From.Reg = obj.TYPE_REG, from
	p.To.Type, p.To.Reg = obj.TYPE_REG, to
	return a.add(p)
}

// EmitConstReg emits `as $value, to`.
func (a *Assembler) EmitConstReg(as obj.As, value int64, to Reg) Node {
	p := a.newProg()
	p.As = as
	p.From.Type, p.From.Offset = obj.TYPE_CONST, value
	p.To.Type, p.To.Reg = obj.TYPE_REG, to
	return a.add(p)
}

// EmitMemReg emits `as baseReg+offset, to`, a load.
func (a *Assembler) EmitMemReg(as obj.As, baseReg Reg, offset int64, to Reg) Node {
	p := a.newProg()
	p.As = as
	p.From.Type, p.From.Reg, p.From.Offset = obj.TYPE_MEM, baseReg, offset
	p.To.Type, p.To.Reg = obj.TYPE_REG, to
	return a.add(p)
}

// EmitRegMem emits `as from, baseReg+offset`, a store.
func (a *Assembler) EmitRegMem(as obj.As, from Reg, baseReg Reg, offset int64) Node {
	p := a.newProg()
	p.As = as
	p.From.Type, p.From.Reg = obj.TYPE_REG, from
	p.To.Type, p.To.Reg, p.To.Offset = obj.TYPE_MEM, baseReg, offset
	return a.add(p)
}

// EmitConstMem emits `as $value, baseReg+offset`.
func (a *Assembler) EmitConstMem(as obj.As, value int64, baseReg Reg, offset int64) Node {
	p := a.newProg()
	p.As = as
	p.From.Type, p.From.Offset = obj.TYPE_CONST, value
	p.To.Type, p.To.Reg, p.To.Offset = obj.TYPE_MEM, baseReg, offset
	return a.add(p)
}

// EmitJump emits an unconditional or conditional branch (as is e.g.
// AJMP/AJEQ/AJNE); its destination is left unset until SetJumpTarget is
// used.
func (a *Assembler) EmitJump(as obj.As) Node {
	p := a.newProg()
	p.As = as
	p.To.Type = obj.TYPE_BRANCH
	return a.add(p)
}

// EmitCallReg emits an indirect call through a register (used for
// call_indirect against a table-resolved function address).
func (a *Assembler) EmitCallReg(as obj.As, target Reg) Node {
	p := a.newProg()
	p.As = as
	p.To.Type, p.To.Reg = obj.TYPE_REG, target
	return a.add(p)
}

// EmitPushReg emits a push of reg onto the native stack, the operand
// stack discipline the compiler uses for the wasm value stack.
func (a *Assembler) EmitPushReg(as obj.As, reg Reg) Node {
	p := a.newProg()
	p.As = as
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg
	return a.add(p)
}

// EmitPopReg emits a pop from the native stack into reg.
func (a *Assembler) EmitPopReg(as obj.As, reg Reg) Node {
	p := a.newProg()
	p.As = as
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg
	return a.add(p)
}

// EmitUnaryReg emits an instruction with a single register operand, the
// shape IDIV/DIV use (dividing DX:AX or RDX:RAX by reg).
func (a *Assembler) EmitUnaryReg(as obj.As, reg Reg) Node {
	p := a.newProg()
	p.As = as
	p.To.Type, p.To.Reg = obj.TYPE_REG, reg
	return a.add(p)
}

// EmitCallMem emits a call through a memory operand, baseReg+offset.
// internal/compiler does not use it: its direct calls load the target
// into a register (a patched MOVQ immediate) and go through
// EmitCallReg.
func (a *Assembler) EmitCallMem(as obj.As, baseReg Reg, offset int64) Node {
	p := a.newProg()
	p.As = as
	p.To.Type, p.To.Reg, p.To.Offset = obj.TYPE_MEM, baseReg, offset
	return a.add(p)
}
