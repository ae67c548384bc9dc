package symbolic

import (
	"context"
	"fmt"
	"slices"

	"honnef.co/go/bpfcheck/insn"
	"honnef.co/go/bpfcheck/ir"
	"honnef.co/go/bpfcheck/smt"
)

// Inline resolves conditional jumps within a single context. The
// instructions between a jump and its target are executed as the
// fall-through arm, with their constraints guarded by the arm's path
// condition. At the target, every register whose value differs
// between the arms gets a merge value selected by the jump condition.
//
// An exit inside an arm ends that arm; execution continues after the
// target with the pre-jump values, under the jump condition. Jumps
// that leave the arm they appear in are not supported and fault the
// context with ErrUnstructured.
type Inline struct {
	Options
}

// A frame is a jump whose fall-through arm is being executed.
type frame struct {
	jump   int
	target int
	cond   smt.Value
	// guard is the path condition inside the arm.
	guard []smt.Value
	// saved are the register values at the jump, indexed by register.
	saved  []Name
	exited bool
}

type inlineRun struct {
	*Inline
	fn    *ir.Function
	prog  *insn.Program
	it    *Interpreter
	c     *Context
	stack []*frame
	// guard is the path condition outside of any arm.
	guard []smt.Value
}

func (in *Inline) Run(ctx context.Context, fn *ir.Function) ([]*Context, error) {
	r := &inlineRun{
		Inline: in,
		fn:     fn,
		prog:   fn.Prog,
		it:     in.interpreter(fn.Prog.Width),
		c:      NewContext(fn.Prog.Width, fn.Prog.Registers, in.Inputs),
	}
	c := r.c
	for c.Status == Running {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for len(r.stack) > 0 && r.top().target == c.Cursor {
			if err := r.merge(); err != nil {
				return nil, err
			}
		}
		if c.Cursor >= r.prog.Len() {
			c.Status = Exited
			break
		}
		if err := r.step(ctx); err != nil {
			return nil, err
		}
	}
	if _, err := r.solve(ctx, c); err != nil {
		return nil, err
	}
	return []*Context{c}, nil
}

func (r *inlineRun) top() *frame { return r.stack[len(r.stack)-1] }

// pathGuard returns the path condition at the current instruction.
func (r *inlineRun) pathGuard() []smt.Value {
	if len(r.stack) == 0 {
		return r.guard
	}
	return r.top().guard
}

func (r *inlineRun) restrict(cond smt.Value) {
	if len(r.stack) == 0 {
		r.guard = append(slices.Clip(r.guard), cond)
		return
	}
	f := r.top()
	f.guard = append(slices.Clip(f.guard), cond)
}

// emit adds fs to the formula, guarded by the current path condition.
func (r *inlineRun) emit(fs ...smt.Value) {
	g := smt.And(r.pathGuard()...)
	for _, f := range fs {
		r.c.assert(smt.Implies(g, f))
	}
}

func (r *inlineRun) step(ctx context.Context) error {
	c := r.c
	idx := c.Cursor
	ins := r.prog.Instrs[idx]

	if ins.Op.IsJump() && len(r.stack) > 0 && ins.Target() > r.top().target {
		c.assert(smt.False)
		c.fault(idx, fmt.Errorf("target %d is past %d: %w", ins.Target(), r.top().target, ErrUnstructured))
		return nil
	}

	// Whether the instruction can be reached at all. Faults on dead
	// arms never happen.
	reachable := true
	if ins.Op == insn.Add {
		var err error
		if reachable, err = r.reachable(ctx); err != nil {
			return err
		}
	}

	frags, err := r.it.Apply(ins, c)
	if err != nil {
		if ins.Op != insn.Add {
			var serr error
			if reachable, serr = r.reachable(ctx); serr != nil {
				return serr
			}
		}
		if !reachable {
			debugf("inline: %d is unreachable, ignoring %s", idx, err)
			r.emit(frags...)
			c.LastIdx = idx
			c.Cursor = idx + 1
			return nil
		}
		c.assert(frags...)
		c.fault(idx, err)
		return nil
	}

	switch {
	case ins.Op.IsJump():
		cond := frags[0]
		f := &frame{
			jump:   idx,
			target: ins.Target(),
			cond:   cond,
			guard:  append(slices.Clone(r.pathGuard()), smt.Not(cond)),
			saved:  make([]Name, c.Registers()+1),
		}
		for reg := 1; reg <= c.Registers(); reg++ {
			if n, ok := c.Current(reg); ok {
				f.saved[reg] = n
			} else {
				f.saved[reg] = Name{Reg: reg, Def: idx, Kind: Undef}
			}
		}
		r.stack = append(r.stack, f)
		debugf("inline: open %d -> %d", idx, f.target)
		c.LastIdx = idx
		c.Cursor = idx + 1

	case ins.Op == insn.Exit:
		r.emit(frags...)
		c.LastIdx = idx
		if len(r.stack) == 0 {
			c.Cursor = idx + 1
			c.Status = Exited
			return nil
		}
		f := r.top()
		f.exited = true
		c.Cursor = f.target
		debugf("inline: arm of %d exits at %d", f.jump, idx)

	default:
		r.emit(frags...)
		if ins.Op == insn.Add && reachable {
			st, err := r.solveUnder(ctx, c, r.pathGuard())
			if err != nil {
				return err
			}
			if st == smt.Unsat {
				c.fault(idx, fmt.Errorf("%s: %w", ins, ErrOverflow))
				return nil
			}
		}
		c.LastIdx = idx
		c.Cursor = idx + 1
	}
	return nil
}

// reachable reports whether the current path guard is satisfiable
// together with the formula so far.
func (r *inlineRun) reachable(ctx context.Context) (bool, error) {
	g := r.pathGuard()
	if len(g) == 0 {
		return true, nil
	}
	st, err := r.solveUnder(ctx, r.c, g)
	if err != nil {
		return false, err
	}
	return st == smt.Sat, nil
}

// merge closes the innermost frame at its target.
func (r *inlineRun) merge() error {
	c := r.c
	f := r.top()
	r.stack = r.stack[:len(r.stack)-1]

	if f.exited {
		// Only the taken arm reaches the target.
		for reg := 1; reg <= c.Registers(); reg++ {
			if !sameName(c, reg, f.saved[reg]) {
				c.define(f.saved[reg])
			}
		}
		r.restrict(f.cond)
		debugf("inline: close %d at %d (arm exited)", f.jump, f.target)
		return nil
	}

	b := r.fn.BlockOf(f.target)
	for reg := 1; reg <= c.Registers(); reg++ {
		taken := f.saved[reg]
		if sameName(c, reg, taken) {
			continue
		}
		if !b.HasPhi(reg) {
			return fmt.Errorf("r%d differs between the arms of the jump at %d, but %s has no merge point for it", reg, f.jump, b)
		}
		fall, ok := c.Current(reg)
		if !ok || taken.Kind == Undef {
			// Defined on one arm only.
			c.define(Name{Reg: reg, Def: f.jump, Kind: Undef})
			continue
		}
		phi := Name{Reg: reg, Def: f.jump, Kind: Phi}
		c.define(phi)
		r.emit(smt.Eq(c.Var(phi), smt.Ite(f.cond, c.Var(taken), c.Var(fall))))
	}
	debugf("inline: close %d at %d", f.jump, f.target)
	return nil
}

// sameName reports whether register reg of c currently holds n. All
// names of kind Undef are considered equal.
func sameName(c *Context, reg int, n Name) bool {
	cur, ok := c.Current(reg)
	if ok != (n.Kind != Undef) {
		return false
	}
	return !ok || cur == n
}
