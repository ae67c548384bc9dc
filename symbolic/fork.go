package symbolic

import (
	"context"
	"fmt"
	"slices"

	"honnef.co/go/bpfcheck/insn"
	"honnef.co/go/bpfcheck/ir"
	"honnef.co/go/bpfcheck/smt"
)

// Fork resolves every conditional jump by splitting the context: the
// jumping context continues at the fall-through instruction assuming
// the condition is false, and a new context continues at the target
// assuming it is true.
//
// Execution proceeds in passes. Each pass advances every running
// context at the lowest pending instruction by one instruction, in
// order of creation, so that contexts arriving at a join point by
// paths of different length meet there. Programs have no back-edges,
// so every context eventually becomes the lowest.
//
// After every step, the stepped context's formula is checked:
// unsatisfiable jump arms are pruned, and additions that cannot avoid
// overflow fault their context. After every pass, running contexts
// that have reached the same instruction and agree on the value of
// every register under their models are redundant, and all but the
// oldest of them are pruned.
type Fork struct {
	Options
}

func (f *Fork) Run(ctx context.Context, fn *ir.Function) ([]*Context, error) {
	prog := fn.Prog
	r := &forkRun{
		Fork: f,
		prog: prog,
		it:   f.interpreter(prog.Width),
	}
	root := NewContext(prog.Width, prog.Registers, f.Inputs)
	r.live = []*Context{root}
	r.nextID = 1
	if prog.Len() == 0 {
		root.Status = Exited
	}

	for pass := 0; len(r.live) > 0; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		low := r.prog.Len()
		for _, c := range r.live {
			if c.Status == Running {
				low = min(low, c.Cursor)
			}
		}
		// Contexts forked during this pass start in the next one.
		n := len(r.live)
		for _, c := range r.live[:n] {
			if c.Status != Running || c.Cursor != low {
				continue
			}
			if err := r.step(ctx, c); err != nil {
				return nil, err
			}
		}
		r.pruneEquivalent()
		r.compact()
		debugf("fork: pass %d: %d live, %d done", pass, len(r.live), len(r.done))
	}

	slices.SortFunc(r.done, func(a, b *Context) int { return a.ID - b.ID })
	return r.done, nil
}

type forkRun struct {
	*Fork
	prog   *insn.Program
	it     *Interpreter
	live   []*Context
	done   []*Context
	nextID int
}

func (r *forkRun) step(ctx context.Context, c *Context) error {
	idx := c.Cursor
	ins := r.prog.Instrs[idx]
	frags, err := r.it.Apply(ins, c)
	if err != nil {
		c.assert(frags...)
		c.fault(idx, err)
		return nil
	}

	switch {
	case ins.Op.IsJump():
		if r.MaxContexts > 0 && r.nextID >= r.MaxContexts {
			return fmt.Errorf("forking at instruction %d: %w (limit %d)", idx, ErrContextLimit, r.MaxContexts)
		}
		cond := frags[0]
		child := c.Fork(r.nextID, idx)
		r.nextID++
		child.assert(cond)
		child.Cursor = ins.Target()
		child.LastIdx = idx
		c.assert(smt.Not(cond))
		c.Cursor = idx + 1
		c.LastIdx = idx
		r.live = append(r.live, child)
		debugf("fork: context %d spawns %d at %d", c.ID, child.ID, idx)

		for _, arm := range []*Context{c, child} {
			st, err := r.solve(ctx, arm)
			if err != nil {
				return err
			}
			if st == smt.Unsat {
				debugf("fork: context %d infeasible after %d", arm.ID, idx)
				arm.Status = Pruned
			}
		}
		r.finish(c)
		r.finish(child)
		return nil

	case ins.Op == insn.Exit:
		c.assert(frags...)
		c.LastIdx = idx
		c.Cursor = idx + 1
		c.Status = Exited
		_, err := r.solve(ctx, c)
		return err

	default:
		c.assert(frags...)
		st, err := r.solve(ctx, c)
		if err != nil {
			return err
		}
		if st == smt.Unsat {
			c.fault(idx, fmt.Errorf("%s: %w", ins, ErrOverflow))
			return nil
		}
		c.LastIdx = idx
		c.Cursor = idx + 1
		r.finish(c)
		return nil
	}
}

// finish marks c as exited if it ran off the end of the program.
func (r *forkRun) finish(c *Context) {
	if c.Status == Running && c.Cursor >= r.prog.Len() {
		c.Status = Exited
	}
}

// pruneEquivalent prunes running contexts that are equivalent to an
// older running context at the same instruction.
func (r *forkRun) pruneEquivalent() {
	for i, a := range r.live {
		if a.Status != Running {
			continue
		}
		for _, b := range r.live[i+1:] {
			if b.Status != Running || b.Cursor != a.Cursor {
				continue
			}
			if sameValues(a, b) {
				debugf("fork: context %d is equivalent to %d at %d", b.ID, a.ID, a.Cursor)
				b.Status = Pruned
				b.PrunedBy = a.ID
			}
		}
	}
}

// sameValues reports whether a and b assign the same concrete value
// to every register under their most recent models.
func sameValues(a, b *Context) bool {
	if a.model == nil || b.model == nil {
		return false
	}
	for reg := 1; reg <= a.Registers(); reg++ {
		na, oka := a.Current(reg)
		nb, okb := b.Current(reg)
		if oka != okb {
			return false
		}
		if oka && a.model[na.String()] != b.model[nb.String()] {
			return false
		}
	}
	return true
}

// compact moves contexts that stopped running out of the live set,
// preserving the order of the survivors.
func (r *forkRun) compact() {
	live := r.live[:0]
	for _, c := range r.live {
		if c.Status == Running {
			live = append(live, c)
		} else {
			r.done = append(r.done, c)
		}
	}
	clear(r.live[len(live):])
	r.live = live
}
