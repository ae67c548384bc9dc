// Package verifier checks programs for arithmetic that can overflow
// or violate operand widths on some path.
//
// It ties together decoding, control-flow recovery, solver selection
// and symbolic execution, and summarizes the resulting execution
// contexts in a Report.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"honnef.co/go/bpfcheck/config"
	"honnef.co/go/bpfcheck/insn"
	"honnef.co/go/bpfcheck/ir"
	"honnef.co/go/bpfcheck/smt"
	"honnef.co/go/bpfcheck/symbolic"
)

// ErrNoSolver is returned when the configured solver backend cannot
// be used.
var ErrNoSolver = errors.New("solver not available")

// A ContextReport describes one execution context after the run.
type ContextReport struct {
	ID int
	// Spawn is the index of the jump that created the context, or -1
	// for the root context.
	Spawn   int
	Status  symbolic.Status
	FaultAt int
	Err     error
	LastIdx int
	// PrunedBy is the context this one was found equivalent to, or -1.
	PrunedBy int
	// Values holds the concrete value of every register that has one
	// in the context's model, indexed by register.
	Values map[int]uint64
	Model  smt.Model
}

func (cr *ContextReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "context %d", cr.ID)
	if cr.Spawn >= 0 {
		fmt.Fprintf(&sb, " (spawned at %d)", cr.Spawn)
	}
	switch cr.Status {
	case symbolic.Faulted:
		fmt.Fprintf(&sb, ": faulted at %d: %s", cr.FaultAt, cr.Err)
	case symbolic.Pruned:
		if cr.PrunedBy >= 0 {
			fmt.Fprintf(&sb, ": pruned after %d, equivalent to context %d", cr.LastIdx, cr.PrunedBy)
		} else {
			fmt.Fprintf(&sb, ": pruned after %d, infeasible", cr.LastIdx)
		}
	default:
		fmt.Fprintf(&sb, ": %s after %d", cr.Status, cr.LastIdx)
	}
	regs := make([]int, 0, len(cr.Values))
	for r := range cr.Values {
		regs = append(regs, r)
	}
	slices.Sort(regs)
	for i, r := range regs {
		if i == 0 {
			sb.WriteString(";")
		}
		fmt.Fprintf(&sb, " r%d=%d", r, cr.Values[r])
	}
	return sb.String()
}

// A Report is the result of checking one program.
type Report struct {
	Program  *insn.Program
	Func     *ir.Function
	Strategy symbolic.Strategy
	// Contexts are ordered by ID; the root context comes first.
	Contexts []*ContextReport
}

// Root returns the report of the root context.
func (r *Report) Root() *ContextReport {
	if len(r.Contexts) == 0 {
		return nil
	}
	return r.Contexts[0]
}

// Failed reports whether the program is rejected: no context ran to
// completion, or the root context faulted at the first instruction.
// Pruned contexts do not count either way.
func (r *Report) Failed() bool {
	if root := r.Root(); root != nil && root.Status == symbolic.Faulted && root.FaultAt == 0 {
		return true
	}
	for _, cr := range r.Contexts {
		if cr.Status == symbolic.Exited {
			return false
		}
	}
	return true
}

// Faults returns the reports of all faulted contexts.
func (r *Report) Faults() []*ContextReport {
	var out []*ContextReport
	for _, cr := range r.Contexts {
		if cr.Status == symbolic.Faulted {
			out = append(out, cr)
		}
	}
	return out
}

func (r *Report) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "strategy %s, %d contexts\n", r.Strategy, len(r.Contexts))
	for _, cr := range r.Contexts {
		sb.WriteString(cr.String())
		sb.WriteString("\n")
	}
	if r.Failed() {
		sb.WriteString("FAIL\n")
	} else {
		sb.WriteString("ok\n")
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func (r *Report) String() string {
	var sb strings.Builder
	r.WriteTo(&sb)
	return sb.String()
}

// Check decodes src for the machine described by conf and checks it.
func Check(ctx context.Context, src string, conf config.Config) (*Report, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	d, err := conf.Decoder()
	if err != nil {
		return nil, err
	}
	prog, err := d.ParseSource(src)
	if err != nil {
		return nil, err
	}
	return CheckProgram(ctx, prog, conf)
}

// CheckProgram checks an already decoded program. The machine section
// of conf is ignored except for the input registers; the program's own
// width and register count apply.
//
// Malformed instructions do not make CheckProgram fail; they fault
// the contexts that reach them. An error is returned only if the
// configuration is invalid, the solver fails or the context is done.
func CheckProgram(ctx context.Context, prog *insn.Program, conf config.Config) (*Report, error) {
	s, err := NewSolver(conf.Solver)
	if err != nil {
		return nil, err
	}
	return check(ctx, prog, conf, s)
}

func check(ctx context.Context, prog *insn.Program, conf config.Config, s smt.Solver) (*Report, error) {
	strategy, err := symbolic.ParseStrategy(conf.Analysis.Strategy)
	if err != nil {
		return nil, err
	}
	inputs, err := conf.InputRegisters()
	if err != nil {
		return nil, err
	}

	fn := ir.Build(prog)
	exec := symbolic.New(strategy, symbolic.Options{
		Solver:         s,
		SignedOverflow: conf.Analysis.SignedOverflow,
		Inputs:         inputs,
		MaxContexts:    conf.Analysis.MaxContexts,
	})
	cs, err := exec.Run(ctx, fn)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Program:  prog,
		Func:     fn,
		Strategy: strategy,
		Contexts: make([]*ContextReport, len(cs)),
	}
	for i, c := range cs {
		rep.Contexts[i] = newContextReport(c)
	}
	return rep, nil
}

func newContextReport(c *symbolic.Context) *ContextReport {
	cr := &ContextReport{
		ID:       c.ID,
		Spawn:    c.Spawn,
		Status:   c.Status,
		FaultAt:  c.FaultAt,
		Err:      c.Err,
		LastIdx:  c.LastIdx,
		PrunedBy: c.PrunedBy,
		Values:   map[int]uint64{},
		Model:    c.Model(),
	}
	for r := 1; r <= c.Registers(); r++ {
		if v, ok := c.Value(r); ok {
			cr.Values[r] = v
		}
	}
	return cr
}
