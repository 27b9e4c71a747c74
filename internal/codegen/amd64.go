package codegen

import "github.com/twitchyliquid64/golang-asm/obj/x86"

// General-purpose registers, aliased from golang-asm's vendored
// cmd/internal/obj/x86 package under the names the Compiler (§4.2) uses
// for the pinned calling convention: the VM-context pointer always
// arrives in RegVMCtx, matching the "trailing hidden argument" contract.
const (
	RegAX = x86.REG_AX
	RegCX = x86.REG_CX
	RegDX = x86.REG_DX
	RegBX = x86.REG_BX
	RegSP = x86.REG_SP
	RegBP = x86.REG_BP
	RegSI = x86.REG_SI
	RegDI = x86.REG_DI
	RegR8  = x86.REG_R8
	RegR9  = x86.REG_R9
	RegR10 = x86.REG_R10
	RegR11 = x86.REG_R11
	RegR12 = x86.REG_R12
	RegR13 = x86.REG_R13
	RegR14 = x86.REG_R14
	RegR15 = x86.REG_R15

	// RegVMCtx is the register the pinned calling convention reserves for
	// the trailing VM-context pointer on every compiled function.
	RegVMCtx = RegR14
	// RegScratch is a caller-clobbered scratch register free for
	// intermediate computation within a single compiled instruction.
	RegScratch = RegR15
)

// Instruction opcodes actually used by internal/compiler's supported
// subset (spec.md §4.2/SPEC_FULL.md "Compiler"): i32/i64 const, local/
// global get/set, integer arithmetic/comparison/bitwise ops, branch,
// direct/indirect call, the sign/zero-extending load/store family,
// unreachable/drop/select/return. This intentionally does not reproduce
// the teacher's full floating-point/SIMD opcode table: Nebulet's
// documented instruction subset has no float support yet, so there is
// nothing in this compiler that would emit ADDSD/MOVUPS/etc.
const (
	MOVB = x86.AMOVB
	MOVW = x86.AMOVW
	MOVL = x86.AMOVL
	MOVQ = x86.AMOVQ

	MOVBLZX = x86.AMOVBLZX
	MOVBLSX = x86.AMOVBLSX
	MOVWLZX = x86.AMOVWLZX
	MOVWLSX = x86.AMOVWLSX
	MOVBQZX = x86.AMOVBQZX
	MOVBQSX = x86.AMOVBQSX
	MOVWQZX = x86.AMOVWQZX
	MOVWQSX = x86.AMOVWQSX
	MOVLQSX = x86.AMOVLQSX

	ADDL = x86.AADDL
	ADDQ = x86.AADDQ
	SUBL = x86.ASUBL
	SUBQ = x86.ASUBQ
	IMULL = x86.AIMULL
	IMULQ = x86.AIMULQ
	IDIVL = x86.AIDIVL
	IDIVQ = x86.AIDIVQ
	DIVL  = x86.ADIVL
	DIVQ  = x86.ADIVQ
	CDQ  = x86.ACDQ
	CQO  = x86.ACQO

	ANDL = x86.AANDL
	ANDQ = x86.AANDQ
	ORL  = x86.AORL
	ORQ  = x86.AORQ
	XORL = x86.AXORL
	XORQ = x86.AXORQ
	SHLL = x86.ASHLL
	SHLQ = x86.ASHLQ
	SHRL = x86.ASHRL
	SHRQ = x86.ASHRQ
	SARL = x86.ASARL
	SARQ = x86.ASARQ

	CMPL = x86.ACMPL
	CMPQ = x86.ACMPQ

	JMP  = x86.AJMP
	JEQ  = x86.AJEQ
	JNE  = x86.AJNE
	JLT  = x86.AJLT
	JGE  = x86.AJGE
	JLE  = x86.AJLE
	JGT  = x86.AJGT
	// Unsigned comparison branches (wasm's _u comparison family), distinct
	// from the signed JLT/JGE/JLE/JGT above.
	JCS = x86.AJCS // unsigned <
	JLS = x86.AJLS // unsigned <=
	JHI = x86.AJHI // unsigned >
	JCC = x86.AJCC // unsigned >=

	CALL = x86.ACALL
	RET  = x86.ARET
	NOP  = x86.ANOP

	PUSHQ = x86.APUSHQ
	POPQ  = x86.APOPQ
)
