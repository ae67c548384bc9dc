// Package symbolic executes programs symbolically.
//
// Every register write gets a fresh SSA name, and every instruction
// contributes constraints to the path formula of the execution
// context that runs it: value extension, overflow and underflow guards
// for additions, and jump conditions. Control-flow merges are resolved
// either by forking contexts and pruning equivalent or infeasible ones
// (Fork), or by executing both arms of a jump in one context and
// merging register values with if-then-else terms (Inline).
package symbolic

import (
	"fmt"
	"log"
	"slices"

	"honnef.co/go/bpfcheck/smt"
)

const debugging = false

func debugf(f string, args ...any) {
	if debugging {
		log.Printf(f, args...)
	}
}

// NameKind tells how an SSA name came into existence.
type NameKind uint8

const (
	Def   NameKind = iota // written by instruction Def
	Input                 // initial value of an input register
	Phi                   // merged at the target of the jump at Def
	Undef                 // not defined on every path reaching Def
)

// A Name is an SSA name: one immutable value of a register.
type Name struct {
	Reg  int
	Def  int
	Kind NameKind
}

func (n Name) String() string {
	switch n.Kind {
	case Input:
		return fmt.Sprintf("r%d.in", n.Reg)
	case Phi:
		return fmt.Sprintf("r%d.phi%d", n.Reg, n.Def)
	case Undef:
		return fmt.Sprintf("r%d.undef%d", n.Reg, n.Def)
	default:
		return fmt.Sprintf("r%d.%d", n.Reg, n.Def)
	}
}

// Status is the state of an execution context.
type Status uint8

const (
	Running Status = iota
	Exited
	Faulted
	Pruned
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Faulted:
		return "faulted"
	case Pruned:
		return "pruned"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// A Context is one thread of symbolic execution. It owns its register
// table and its formula; forking copies both.
type Context struct {
	ID int
	// Spawn is the index of the jump that created the context, or -1
	// for the root context.
	Spawn  int
	Cursor int
	Status Status
	// FaultAt is the index of the instruction that faulted the
	// context, or -1.
	FaultAt int
	Err     error
	// LastIdx is the index of the last instruction processed
	// successfully, or -1.
	LastIdx int
	// PrunedBy is the ID of the context that made this one redundant,
	// or -1 if it was pruned because its path is infeasible.
	PrunedBy int

	// regs[r] is the history of register r, most recent last.
	// regs[0] is unused.
	regs    [][]Name
	formula []smt.Value
	model   smt.Model
	width   int
}

// NewContext returns a root context for a machine with registers
// registers of width bits. The registers in inputs start out with
// symbolic values; all others are uninitialized.
func NewContext(width, registers int, inputs []int) *Context {
	c := &Context{
		Spawn:    -1,
		FaultAt:  -1,
		LastIdx:  -1,
		PrunedBy: -1,
		regs:     make([][]Name, registers+1),
		width:    width,
	}
	for _, r := range inputs {
		if r >= 1 && r <= registers {
			c.regs[r] = []Name{{Reg: r, Def: -1, Kind: Input}}
		}
	}
	return c
}

// Fork returns a copy of c with the given ID, spawned by the
// instruction at spawn.
func (c *Context) Fork(id, spawn int) *Context {
	d := *c
	d.ID = id
	d.Spawn = spawn
	d.regs = make([][]Name, len(c.regs))
	for r, h := range c.regs {
		d.regs[r] = slices.Clip(h)
	}
	d.formula = slices.Clip(c.formula)
	return &d
}

func (c *Context) Registers() int { return len(c.regs) - 1 }

func (c *Context) Width() int { return c.width }

// Current returns the current name of register r. It reports false if
// r has no value.
func (c *Context) Current(r int) (Name, bool) {
	if r < 1 || r >= len(c.regs) || len(c.regs[r]) == 0 {
		return Name{}, false
	}
	n := c.regs[r][len(c.regs[r])-1]
	return n, n.Kind != Undef
}

// History returns all names register r has had, oldest first.
func (c *Context) History(r int) []Name {
	if r < 1 || r >= len(c.regs) {
		return nil
	}
	return c.regs[r]
}

func (c *Context) define(n Name) {
	c.regs[n.Reg] = append(c.regs[n.Reg], n)
}

// Var returns the solver variable of n.
func (c *Context) Var(n Name) smt.Var {
	return smt.NewVar(n.String(), smt.BitVec(c.width))
}

// Formula returns the constraints of c's path formula. Their
// conjunction is the formula.
func (c *Context) Formula() []smt.Value { return c.formula }

// Model returns the model of the most recent satisfiable check of
// c's formula, or nil.
func (c *Context) Model() smt.Model { return c.model }

// Value returns the value of register r in c's model.
func (c *Context) Value(r int) (uint64, bool) {
	n, ok := c.Current(r)
	if !ok || c.model == nil {
		return 0, false
	}
	return c.model[n.String()], true
}

func (c *Context) assert(fs ...smt.Value) {
	c.formula = append(c.formula, fs...)
}

func (c *Context) fault(idx int, err error) {
	debugf("context %d: fault at %d: %s", c.ID, idx, err)
	c.Status = Faulted
	c.FaultAt = idx
	c.Err = err
}

func (c *Context) String() string {
	s := fmt.Sprintf("context %d %s cursor=%d last=%d", c.ID, c.Status, c.Cursor, c.LastIdx)
	if c.Status == Faulted {
		s += fmt.Sprintf(" fault@%d: %s", c.FaultAt, c.Err)
	}
	return s
}
