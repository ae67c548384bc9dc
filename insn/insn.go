// Package insn decodes the textual instruction set understood by bpfcheck.
//
// The instruction set is a small model of eBPF: register moves and
// additions in full or half register width, conditional forward jumps
// and exit. Every line of a program decodes to exactly one
// Instruction; malformed lines decode to instructions with Op Invalid
// that carry their decoding error, so that a single bad line only
// affects the execution contexts that reach it.
package insn

import (
	"fmt"
	"strings"
)

// Op is an instruction opcode.
type Op uint8

const (
	Invalid Op = iota
	Mov
	Add
	Jeq
	Jne
	Jgt
	Jge
	Jlt
	Jle
	Jsgt
	Jsge
	Jslt
	Jsle
	Exit
)

var opNames = [...]string{
	Invalid: "invalid",
	Mov:     "mov",
	Add:     "add",
	Jeq:     "jeq",
	Jne:     "jne",
	Jgt:     "jgt",
	Jge:     "jge",
	Jlt:     "jlt",
	Jle:     "jle",
	Jsgt:    "jsgt",
	Jsge:    "jsge",
	Jslt:    "jslt",
	Jsle:    "jsle",
	Exit:    "exit",
}

var opsByName = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		if Op(op) == Invalid {
			continue
		}
		m[name] = Op(op)
	}
	// long forms used in hand-written test programs
	m["jump-equal"] = Jeq
	m["jump-not-equal"] = Jne
	m["jump-greater"] = Jgt
	m["jump-signed-greater"] = Jsgt
	return m
}()

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

// IsJump reports whether op is a conditional jump.
func (op Op) IsJump() bool { return op >= Jeq && op <= Jsle }

// Signed reports whether the jump compares its operands as signed integers.
func (op Op) Signed() bool { return op >= Jsgt && op <= Jsle }

// Mode is the operand mode of an instruction.
type Mode uint8

const (
	Imm Mode = iota // immediate-to-register
	Reg             // register-to-register
)

func (m Mode) String() string {
	if m == Reg {
		return "reg"
	}
	return "imm"
}

// Width is the bit-width class of an instruction's operands.
type Width uint8

const (
	Full Width = iota
	Half
)

// Bits returns the operand width in bits for registers of regWidth bits.
func (w Width) Bits(regWidth int) int {
	if w == Half {
		return regWidth / 2
	}
	return regWidth
}

// An Instruction is one decoded line of a program. Instructions are
// created once by the decoder and never modified afterwards.
type Instruction struct {
	// Index is the position of the instruction in its program.
	Index int
	Op    Op
	Mode  Mode
	Width Width
	// Dst is the target register.
	Dst int
	// Src is the source register index if Mode is Reg and the
	// literal operand otherwise.
	Src int64
	// Off is the jump offset, relative to the following instruction.
	Off int
	// Poison is set when the literal operand does not fit the
	// declared operand width.
	Poison bool
	// Err is the decoding error of an Invalid instruction.
	Err error
	// Text is the source text the instruction was decoded from.
	Text string
}

// Target returns the index of the instruction a jump transfers control to.
func (ins *Instruction) Target() int { return ins.Index + 1 + ins.Off }

// IsTerminal reports whether control never falls through ins.
func (ins *Instruction) IsTerminal() bool { return ins.Op == Exit }

// Defines returns the register written by ins, if any.
func (ins *Instruction) Defines() (int, bool) {
	switch ins.Op {
	case Mov, Add:
		return ins.Dst, true
	default:
		return 0, false
	}
}

// Uses returns the registers read by ins.
func (ins *Instruction) Uses() []int {
	var regs []int
	switch {
	case ins.Op == Add, ins.Op.IsJump():
		regs = append(regs, ins.Dst)
	case ins.Op == Mov:
	default:
		return nil
	}
	if ins.Mode == Reg && int(ins.Src) != ins.Dst {
		regs = append(regs, int(ins.Src))
	}
	return regs
}

func (ins *Instruction) String() string {
	switch ins.Op {
	case Invalid:
		return fmt.Sprintf("invalid %q", ins.Text)
	case Exit:
		return "exit"
	}
	var sb strings.Builder
	sb.WriteString(ins.Op.String())
	if ins.Width == Half {
		sb.WriteString("32")
	}
	sb.WriteByte('_')
	sb.WriteString(ins.Mode.String())
	fmt.Fprintf(&sb, " r%d ", ins.Dst)
	if ins.Mode == Reg {
		fmt.Fprintf(&sb, "r%d", ins.Src)
	} else {
		fmt.Fprintf(&sb, "%d", ins.Src)
	}
	if ins.Op.IsJump() {
		fmt.Fprintf(&sb, " %+d", ins.Off)
	}
	return sb.String()
}
