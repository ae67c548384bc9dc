package circuit

import (
	"context"
	"fmt"
	"log"

	"honnef.co/go/bpfcheck/smt"

	"github.com/crillab/gophersat/solver"
)

// If true, log the size of every CNF handed to the SAT solver.
const debugSolver = false

// Solver is an in-process smt.Solver. It bit-blasts the assertions and
// decides the resulting CNF with gophersat. The zero value is ready
// to use.
type Solver struct{}

var _ smt.Solver = Solver{}

func (Solver) Check(ctx context.Context, assertions []smt.Value) (smt.Result, error) {
	if err := ctx.Err(); err != nil {
		return smt.Result{}, err
	}
	b := New()
	bl := NewBlaster(b)
	for _, f := range assertions {
		l, err := bl.Bool(f)
		if err != nil {
			return smt.Result{}, err
		}
		b.Assert(l)
	}
	if debugSolver {
		log.Printf("circuit: %d assertions, %d variables, %d clauses", len(assertions), b.NumVars(), len(b.Clauses()))
	}

	type outcome struct {
		status solver.Status
		model  []bool
	}
	done := make(chan outcome, 1)
	go func() {
		s := solver.New(solver.ParseSlice(b.Clauses()))
		st := s.Solve()
		var model []bool
		if st == solver.Sat {
			model = s.Model()
		}
		done <- outcome{st, model}
	}()

	// gophersat cannot be interrupted; a cancelled query is abandoned
	// and its goroutine runs to completion in the background.
	select {
	case <-ctx.Done():
		return smt.Result{}, ctx.Err()
	case out := <-done:
		switch out.status {
		case solver.Sat:
			return smt.Result{Status: smt.Sat, Model: bl.Model(out.model)}, nil
		case solver.Unsat:
			return smt.Result{Status: smt.Unsat}, nil
		case solver.Indet:
			return smt.Result{Status: smt.Unknown}, smt.ErrUnknown
		default:
			return smt.Result{}, fmt.Errorf("unexpected SAT solver status %v", out.status)
		}
	}
}
