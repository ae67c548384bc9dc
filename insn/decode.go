package insn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrArity     = errors.New("wrong number of operands")
	ErrUnknownOp = errors.New("unknown opcode")
	ErrRegister  = errors.New("invalid register")
	ErrLiteral   = errors.New("invalid literal")
	ErrOffset    = errors.New("invalid jump offset")
	ErrBadJump   = errors.New("jump target out of range")
	ErrMachine   = errors.New("unsupported machine")
)

// A DecodeError describes a line that could not be decoded.
type DecodeError struct {
	Index int
	Text  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("instruction %d (%q): %s", e.Index, e.Text, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// maxRegisters is the largest register count a machine may have.
const maxRegisters = 63

// An OperandOrder is the order in which mov and add name their
// destination register and their source operand. Jumps always name the
// compared register first.
type OperandOrder uint8

const (
	DstSrc OperandOrder = iota // mov r1 4
	SrcDst                     // mov 4 r1
)

// ParseOperandOrder parses "dst-src" or "src-dst".
func ParseOperandOrder(s string) (OperandOrder, error) {
	switch s {
	case "dst-src":
		return DstSrc, nil
	case "src-dst":
		return SrcDst, nil
	default:
		return 0, fmt.Errorf("unknown operand order %q", s)
	}
}

func (o OperandOrder) String() string {
	if o == SrcDst {
		return "src-dst"
	}
	return "dst-src"
}

// A Decoder decodes instructions for a machine with Registers
// registers of Width bits each. A zero Registers disables the upper
// bound check on register numbers.
type Decoder struct {
	Width     int
	Registers int
	Order     OperandOrder
}

// Decode decodes a single instruction for registers of width bits.
// It is a pure function of its inputs.
func Decode(text string, width int) (Instruction, error) {
	return Decoder{Width: width}.Decode(text)
}

// Decode decodes a single line of program text. The returned
// instruction has Index 0; errors are of type *DecodeError.
func (d Decoder) Decode(text string) (Instruction, error) {
	ins := Instruction{Text: text}
	if err := d.decode(&ins); err != nil {
		ins = Instruction{Op: Invalid, Text: text}
		ins.Err = &DecodeError{Text: text, Err: err}
		return ins, ins.Err
	}
	return ins, nil
}

func (d Decoder) decode(ins *Instruction) error {
	registers := d.Registers
	if registers == 0 {
		registers = maxRegisters
	}
	if err := CheckMachine(d.Width, registers); err != nil {
		return err
	}
	fields := strings.Fields(stripComment(ins.Text))
	if len(fields) == 0 {
		return ErrArity
	}
	mnemonic := strings.ToLower(fields[0])
	if mnemonic == "exit" {
		if len(fields) != 1 {
			return fmt.Errorf("exit takes no operands: %w", ErrArity)
		}
		ins.Op = Exit
		return nil
	}

	base, suffix, hasSuffix := strings.Cut(mnemonic, "_")
	switch {
	case strings.HasSuffix(base, "32"):
		ins.Width = Half
		base = strings.TrimSuffix(base, "32")
	case strings.HasSuffix(base, "64"):
		base = strings.TrimSuffix(base, "64")
	}
	op, ok := opsByName[base]
	if !ok || op == Exit {
		return fmt.Errorf("%q: %w", fields[0], ErrUnknownOp)
	}
	ins.Op = op

	want := 3
	if op.IsJump() {
		want = 4
	}
	if len(fields) != want {
		return fmt.Errorf("%s wants %d operands, got %d: %w", op, want-1, len(fields)-1, ErrArity)
	}
	if d.Order == SrcDst && !op.IsJump() {
		fields[1], fields[2] = fields[2], fields[1]
	}

	dst, err := d.register(fields[1])
	if err != nil {
		return err
	}
	ins.Dst = dst

	mode := Imm
	if hasSuffix {
		switch suffix {
		case "reg", "x":
			mode = Reg
		case "imm", "k":
			mode = Imm
		default:
			return fmt.Errorf("operand mode %q: %w", suffix, ErrUnknownOp)
		}
	} else if isRegisterToken(fields[2]) {
		mode = Reg
	}
	ins.Mode = mode

	if mode == Reg {
		src, err := d.register(fields[2])
		if err != nil {
			return err
		}
		ins.Src = int64(src)
	} else {
		lit, fits, err := parseLiteral(fields[2], ins.Width.Bits(d.Width))
		if err != nil {
			return err
		}
		ins.Src = lit
		ins.Poison = !fits
	}

	if op.IsJump() {
		off, err := parseOffset(fields[3])
		if err != nil {
			return err
		}
		ins.Off = off
	}
	return nil
}

// CheckMachine validates a register width and count. A machine has
// between 1 and 63 registers.
func CheckMachine(width, registers int) error {
	if width < 2 || width > 64 || width%2 != 0 {
		return fmt.Errorf("register width %d: %w", width, ErrMachine)
	}
	if registers < 1 || registers > maxRegisters {
		return fmt.Errorf("register count %d: %w", registers, ErrMachine)
	}
	return nil
}

func stripComment(s string) string {
	if i := strings.IndexAny(s, ";#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func isRegisterToken(s string) bool {
	return len(s) > 1 && (s[0] == 'r' || s[0] == 'R')
}

func (d Decoder) register(s string) (int, error) {
	t := s
	if isRegisterToken(t) {
		t = t[1:]
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q: %w", s, ErrRegister)
	}
	if d.Registers > 0 && n > d.Registers {
		return 0, fmt.Errorf("%q: only %d registers: %w", s, d.Registers, ErrRegister)
	}
	return n, nil
}

// parseLiteral parses an integer literal and reports whether it fits
// into bits bits, either as a signed or as an unsigned quantity.
// Literals too large for an int64 never fit.
func parseLiteral(s string, bits int) (v int64, fits bool, err error) {
	v, err = strconv.ParseInt(s, 0, 64)
	if err == nil {
		return v, Fits(v, bits), nil
	}
	if !errors.Is(err, strconv.ErrRange) {
		return 0, false, fmt.Errorf("%q: %w", s, ErrLiteral)
	}
	u, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		// wider than any register
		return 0, false, nil
	}
	return int64(u), bits == 64, nil
}

// Fits reports whether v is representable in bits bits, as either a
// signed or an unsigned integer.
func Fits(v int64, bits int) bool {
	if bits >= 64 {
		return true
	}
	if v < 0 {
		return v >= -(int64(1) << (bits - 1))
	}
	return uint64(v) <= uint64(1)<<bits-1
}

func parseOffset(s string) (int, error) {
	t := strings.TrimPrefix(strings.ToLower(s), "offset=")
	off, err := strconv.Atoi(t)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrOffset)
	}
	return off, nil
}
