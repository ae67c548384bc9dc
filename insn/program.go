package insn

import (
	"errors"
	"fmt"
	"strings"
)

// A Program is an ordered list of decoded instructions for a machine
// with Registers registers of Width bits.
type Program struct {
	Instrs    []*Instruction
	Width     int
	Registers int
}

// DecodeProgram decodes one instruction per line. It only fails if
// the machine description is invalid; lines that cannot be decoded,
// and jumps whose target lies outside the program or does not lie
// strictly ahead of the jump, become Invalid instructions.
func DecodeProgram(lines []string, width, registers int) (*Program, error) {
	return Decoder{Width: width, Registers: registers}.DecodeProgram(lines)
}

// DecodeProgram is like the package-level DecodeProgram but honors
// d's operand order. Unlike Decode, it requires a register count.
func (d Decoder) DecodeProgram(lines []string) (*Program, error) {
	if err := CheckMachine(d.Width, d.Registers); err != nil {
		return nil, err
	}
	prog := &Program{
		Instrs:    make([]*Instruction, len(lines)),
		Width:     d.Width,
		Registers: d.Registers,
	}
	for i, line := range lines {
		ins, _ := d.Decode(line)
		ins.Index = i
		if derr, ok := ins.Err.(*DecodeError); ok {
			derr.Index = i
		}
		prog.Instrs[i] = &ins
	}
	for _, ins := range prog.Instrs {
		if !ins.Op.IsJump() {
			continue
		}
		if t := ins.Target(); t <= ins.Index || t >= len(prog.Instrs) {
			*ins = Instruction{
				Index: ins.Index,
				Op:    Invalid,
				Text:  ins.Text,
				Err: &DecodeError{
					Index: ins.Index,
					Text:  ins.Text,
					Err:   fmt.Errorf("offset %d targets instruction %d: %w", ins.Off, t, ErrBadJump),
				},
			}
		}
	}
	return prog, nil
}

// ParseSource decodes a program from source text, skipping blank and
// comment-only lines.
func ParseSource(src string, width, registers int) (*Program, error) {
	return Decoder{Width: width, Registers: registers}.ParseSource(src)
}

// ParseSource is like the package-level ParseSource but honors d's
// operand order.
func (d Decoder) ParseSource(src string) (*Program, error) {
	var lines []string
	for _, line := range strings.Split(src, "\n") {
		if strings.TrimSpace(stripComment(line)) == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return d.DecodeProgram(lines)
}

// Len returns the number of instructions in the program.
func (prog *Program) Len() int { return len(prog.Instrs) }

// Err returns the decoding errors of all invalid instructions, or nil.
func (prog *Program) Err() error {
	var errs []error
	for _, ins := range prog.Instrs {
		if ins.Err != nil {
			errs = append(errs, ins.Err)
		}
	}
	return errors.Join(errs...)
}

func (prog *Program) String() string {
	var sb strings.Builder
	for _, ins := range prog.Instrs {
		fmt.Fprintf(&sb, "%3d: %s\n", ins.Index, ins)
	}
	return sb.String()
}
