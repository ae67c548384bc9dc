package symbolic

import (
	"errors"
	"fmt"

	"honnef.co/go/bpfcheck/insn"
	"honnef.co/go/bpfcheck/smt"
)

var (
	ErrUninitialized = errors.New("read of uninitialized register")
	ErrPoison        = errors.New("literal too large for operand width")
	ErrInvalid       = errors.New("invalid instruction")
	ErrOverflow      = errors.New("addition cannot avoid overflow")
	ErrUnstructured  = errors.New("jump leaves its enclosing span")
)

// An Interpreter translates single instructions into constraints.
type Interpreter struct {
	// Width is the register width in bits.
	Width int
	// SignedOverflow selects the signed form of the overflow guard
	// for additions. By default the guard treats the operands as
	// unsigned.
	SignedOverflow bool
}

// Apply interprets ins in context c. It defines a fresh name for the
// register ins writes, if any, and returns the constraints ins
// contributes. It does not add them to c's formula.
//
// For a conditional jump, the single returned term is the condition
// under which the jump is taken. For exit, it is a fresh boolean
// marker. If ins cannot execute, Apply returns a constant false
// fragment and an error describing the fault.
func (it *Interpreter) Apply(ins *insn.Instruction, c *Context) ([]smt.Value, error) {
	poison := []smt.Value{smt.False}
	switch {
	case ins.Op == insn.Invalid:
		return poison, fmt.Errorf("%w: %w", ErrInvalid, ins.Err)
	case ins.Poison:
		return poison, fmt.Errorf("%d does not fit %d bits: %w", ins.Src, ins.Width.Bits(it.Width), ErrPoison)
	}

	switch ins.Op {
	case insn.Exit:
		return []smt.Value{ExitMarker(ins.Index)}, nil

	case insn.Mov:
		src, err := it.source(ins, c)
		if err != nil {
			return poison, err
		}
		n := Name{Reg: ins.Dst, Def: ins.Index}
		c.define(n)
		return []smt.Value{smt.Eq(c.Var(n), src)}, nil

	case insn.Add:
		old, err := it.register(ins.Dst, c)
		if err != nil {
			return poison, err
		}
		src, err := it.source(ins, c)
		if err != nil {
			return poison, err
		}
		n := Name{Reg: ins.Dst, Def: ins.Index}
		c.define(n)
		return append([]smt.Value{smt.Eq(c.Var(n), smt.Add(old, src))}, it.addGuards(ins, old, src)...), nil

	default:
		if !ins.Op.IsJump() {
			return poison, fmt.Errorf("%w: unhandled opcode %s", ErrInvalid, ins.Op)
		}
		x, err := it.register(ins.Dst, c)
		if err != nil {
			return poison, err
		}
		y, err := it.source(ins, c)
		if err != nil {
			return poison, err
		}
		if ins.Width == insn.Half {
			// only the low halves take part in the comparison
			hi := it.Width/2 - 1
			x, y = smt.Extract(hi, 0, x), smt.Extract(hi, 0, y)
		}
		return []smt.Value{Compare(ins.Op, x, y)}, nil
	}
}

// addGuards returns the constraints under which old + src stays in
// range. A negative literal is subtracted from an unsigned register,
// so it must not take the register below zero.
func (it *Interpreter) addGuards(ins *insn.Instruction, old, src smt.Value) []smt.Value {
	if !it.SignedOverflow && ins.Mode == insn.Imm && ins.Src < 0 {
		return []smt.Value{smt.AddNoBorrow(old, src)}
	}
	return []smt.Value{
		smt.AddNoOverflow(old, src, it.SignedOverflow),
		smt.AddNoUnderflow(old, src),
	}
}

// ExitMarker returns the marker asserted when the exit at idx is
// reached.
func ExitMarker(idx int) smt.Var {
	return smt.NewVar(fmt.Sprintf("exit.%d", idx), smt.Bool)
}

// Compare returns the condition under which a jump with opcode op
// and operands x and y is taken.
func Compare(op insn.Op, x, y smt.Value) smt.Value {
	switch op {
	case insn.Jeq:
		return smt.Eq(x, y)
	case insn.Jne:
		return smt.Distinct(x, y)
	case insn.Jgt:
		return smt.Ugt(x, y)
	case insn.Jge:
		return smt.Uge(x, y)
	case insn.Jlt:
		return smt.Ult(x, y)
	case insn.Jle:
		return smt.Ule(x, y)
	case insn.Jsgt:
		return smt.Sgt(x, y)
	case insn.Jsge:
		return smt.Sge(x, y)
	case insn.Jslt:
		return smt.Slt(x, y)
	case insn.Jsle:
		return smt.Sle(x, y)
	default:
		panic(fmt.Sprintf("%s is not a conditional jump", op))
	}
}

func (it *Interpreter) register(r int, c *Context) (smt.Value, error) {
	n, ok := c.Current(r)
	if !ok {
		return nil, fmt.Errorf("r%d: %w", r, ErrUninitialized)
	}
	return c.Var(n), nil
}

// source returns the source operand of ins, extended to the register
// width.
func (it *Interpreter) source(ins *insn.Instruction, c *Context) (smt.Value, error) {
	if ins.Mode == insn.Reg {
		v, err := it.register(int(ins.Src), c)
		if err != nil {
			return nil, err
		}
		if ins.Width == insn.Half {
			half := it.Width / 2
			v = smt.ZeroExtend(it.Width-half, smt.Extract(half-1, 0, v))
		}
		return v, nil
	}
	return Extend(ins.Src, ins.Width.Bits(it.Width), it.Width), nil
}

// Extend returns the literal v, declared as an operand of bits bits,
// extended to width bits: negative literals are sign-extended and
// all others zero-extended.
func Extend(v int64, bits, width int) smt.Value {
	if bits >= width {
		return smt.BVConst(v, width)
	}
	k := smt.BVConst(v, bits)
	if v < 0 {
		return smt.SignExtend(width-bits, k)
	}
	return smt.ZeroExtend(width-bits, k)
}
