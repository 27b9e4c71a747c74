package compiler

import (
	"fmt"

	"github.com/nebulet/nebulet/internal/codegen"
	"github.com/nebulet/nebulet/internal/wasmdecode"
)

// memBase loads the primary linear memory's base address into RegCX. The
// VM context sits immediately below the first memory and takes exactly
// VMCtxFixedSize bytes, so that base is RegVMCtx+VMCtxFixedSize; the
// memories-array pointer at VMCtxMemoriesOffset covers only the
// secondary memories.
func (fc *funcCompiler) memBase() {
	fc.a.EmitRegReg(codegen.MOVQ, codegen.RegVMCtx, codegen.RegCX)
	fc.a.EmitConstReg(codegen.ADDQ, VMCtxFixedSize, codegen.RegCX)
}

// readMemarg consumes a memory instruction's (align, offset) pair,
// discarding the alignment hint (this compiler does not exploit it).
func readMemarg(r byteReader) (offset uint32, err error) {
	if _, _, err = wasmdecode.DecodeUint32(r); err != nil {
		return 0, err
	}
	offset, _, err = wasmdecode.DecodeUint32(r)
	return offset, err
}

// byteReader is the subset of *bytes.Reader the memarg/LEB128 decoders need.
type byteReader interface {
	ReadByte() (byte, error)
}

type loadInfo struct {
	instr codegen.As
}

var loadOps = map[byte]loadInfo{
	0x28: {codegen.MOVL},
	0x29: {codegen.MOVQ},
	0x2c: {codegen.MOVBLSX},
	0x2d: {codegen.MOVBLZX},
	0x2e: {codegen.MOVWLSX},
	0x2f: {codegen.MOVWLZX},
	0x30: {codegen.MOVBQSX},
	0x31: {codegen.MOVBQZX},
	0x32: {codegen.MOVWQSX},
	0x33: {codegen.MOVWQZX},
	0x34: {codegen.MOVLQSX},
	0x35: {codegen.MOVL},
}

var storeOps = map[byte]codegen.As{
	0x36: codegen.MOVL,
	0x37: codegen.MOVQ,
	0x3a: codegen.MOVB,
	0x3b: codegen.MOVW,
	0x3c: codegen.MOVB,
	0x3d: codegen.MOVW,
	0x3e: codegen.MOVL,
}

// emitLoad lowers the i32/i64 load family. Heap-out-of-bounds is not
// checked here: an access past the committed heap lands on an
// uncommitted or guard page of WasmMemory (internal/sip) and faults at
// the OS level. No fault handler is installed, so such a fault does not
// reach internal/trap.
func (fc *funcCompiler) emitLoad(op byte, r byteReader) error {
	info, ok := loadOps[op]
	if !ok {
		return fmt.Errorf("unsupported load opcode 0x%x", op)
	}
	offset, err := readMemarg(r)
	if err != nil {
		return err
	}
	fc.memBase()
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegAX)
	fc.a.EmitRegReg(codegen.ADDQ, codegen.RegAX, codegen.RegCX)
	fc.a.EmitMemReg(info.instr, codegen.RegCX, int64(offset), codegen.RegAX)
	fc.a.EmitPushReg(codegen.PUSHQ, codegen.RegAX)
	return nil
}

func (fc *funcCompiler) emitStore(op byte, r byteReader) error {
	instr, ok := storeOps[op]
	if !ok {
		return fmt.Errorf("unsupported store opcode 0x%x", op)
	}
	offset, err := readMemarg(r)
	if err != nil {
		return err
	}
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegDX) // value
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegAX) // address
	fc.memBase()
	fc.a.EmitRegReg(codegen.ADDQ, codegen.RegAX, codegen.RegCX)
	fc.a.EmitRegMem(instr, codegen.RegDX, codegen.RegCX, int64(offset))
	return nil
}

var compareOps = map[byte]codegen.As{
	0x46: codegen.JEQ, 0x47: codegen.JNE,
	0x48: codegen.JLT, 0x49: codegen.JCS,
	0x4a: codegen.JGT, 0x4b: codegen.JHI,
	0x4c: codegen.JLE, 0x4d: codegen.JLS,
	0x4e: codegen.JGE, 0x4f: codegen.JCC,
	0x51: codegen.JEQ, 0x52: codegen.JNE,
	0x53: codegen.JLT, 0x54: codegen.JCS,
	0x55: codegen.JGT, 0x56: codegen.JHI,
	0x57: codegen.JLE, 0x58: codegen.JLS,
	0x59: codegen.JGE, 0x5a: codegen.JCC,
}

// emitCompare lowers the i32/i64 relational operators to a CMP followed
// by the set-from-flags pattern (set CX to 0, jump on the condition
// code to a landing pad that sets CX to 1, push CX).
func (fc *funcCompiler) emitCompare(op byte) error {
	cc, ok := compareOps[op]
	if !ok {
		return fmt.Errorf("unsupported comparison opcode 0x%x", op)
	}
	width := codegen.CMPL
	if op >= 0x51 {
		width = codegen.CMPQ
	}
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegCX) // rhs
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegAX) // lhs
	fc.a.EmitRegReg(width, codegen.RegCX, codegen.RegAX)
	fc.emitSetFromFlags(cc)
	return nil
}

var arithOps = map[byte]codegen.As{
	0x6a: codegen.ADDL, 0x6b: codegen.SUBL, 0x6c: codegen.IMULL,
	0x71: codegen.ANDL, 0x72: codegen.ORL, 0x73: codegen.XORL,
	0x74: codegen.SHLL, 0x75: codegen.SARL, 0x76: codegen.SHRL,
	0x7c: codegen.ADDQ, 0x7d: codegen.SUBQ, 0x7e: codegen.IMULQ,
	0x83: codegen.ANDQ, 0x84: codegen.ORQ, 0x85: codegen.XORQ,
	0x86: codegen.SHLQ, 0x87: codegen.SARQ, 0x88: codegen.SHRQ,
}

// emitArith lowers binary integer arithmetic/bitwise/shift ops. Shifts
// place their count in CX, matching the implicit-CL encoding the
// underlying x86 instruction requires.
func (fc *funcCompiler) emitArith(op byte) error {
	instr, ok := arithOps[op]
	if !ok {
		return fmt.Errorf("unsupported arithmetic opcode 0x%x", op)
	}
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegCX) // rhs
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegAX) // lhs
	fc.a.EmitRegReg(instr, codegen.RegCX, codegen.RegAX)
	fc.a.EmitPushReg(codegen.PUSHQ, codegen.RegAX)
	return nil
}

type divInfo struct {
	div       codegen.As
	signed    bool
	extend    codegen.As // CDQ/CQO, only used when signed
	zero      codegen.As // XORL/XORQ, only used when unsigned
	remainder bool
}

var divOps = map[byte]divInfo{
	0x6d: {div: codegen.IDIVL, signed: true, extend: codegen.CDQ},
	0x6e: {div: codegen.DIVL, signed: false, zero: codegen.XORL},
	0x6f: {div: codegen.IDIVL, signed: true, extend: codegen.CDQ, remainder: true},
	0x70: {div: codegen.DIVL, signed: false, zero: codegen.XORL, remainder: true},
	0x7f: {div: codegen.IDIVQ, signed: true, extend: codegen.CQO},
	0x80: {div: codegen.DIVQ, signed: false, zero: codegen.XORQ},
	0x81: {div: codegen.IDIVQ, signed: true, extend: codegen.CQO, remainder: true},
	0x82: {div: codegen.DIVQ, signed: false, zero: codegen.XORQ, remainder: true},
}

// emitDivRem lowers integer division/remainder. A TrapIntegerDivideByZero
// record is placed at the division instruction itself rather than behind
// an explicit zero-check branch: a zero divisor raises the CPU's divide
// error at that instruction, and the record maps its code offset to the
// trap kind for trap.ClassifyCode.
func (fc *funcCompiler) emitDivRem(op byte) error {
	info, ok := divOps[op]
	if !ok {
		return fmt.Errorf("unsupported division opcode 0x%x", op)
	}
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegCX) // divisor
	fc.a.EmitPopReg(codegen.POPQ, codegen.RegAX) // dividend
	if info.signed {
		fc.a.EmitStandalone(info.extend)
	} else {
		fc.a.EmitRegReg(info.zero, codegen.RegDX, codegen.RegDX)
	}
	divAt := fc.a.EmitUnaryReg(info.div, codegen.RegCX)
	fc.traps = append(fc.traps, TrapRecord{Offset: divAt.OffsetInBinary(), Kind: TrapIntegerDivideByZero})
	result := codegen.RegAX
	if info.remainder {
		result = codegen.RegDX
	}
	fc.a.EmitPushReg(codegen.PUSHQ, result)
	return nil
}
