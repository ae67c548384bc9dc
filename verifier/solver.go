package verifier

import (
	"context"
	"fmt"
	"time"

	"honnef.co/go/bpfcheck/config"
	"honnef.co/go/bpfcheck/smt"
	"honnef.co/go/bpfcheck/smt/circuit"
	"honnef.co/go/bpfcheck/smt/z3"
)

// NewSolver returns the solver selected by conf. Every query is
// bounded by conf.Timeout, if set.
func NewSolver(conf config.SolverConfig) (smt.Solver, error) {
	var s smt.Solver
	switch conf.Backend {
	case "sat", "":
		s = circuit.Solver{}
	case "z3":
		zs := &z3.Solver{Path: conf.Z3Path, Timeout: conf.Timeout.Duration}
		if !zs.Available() {
			return nil, fmt.Errorf("z3 executable %q: %w", conf.Z3Path, ErrNoSolver)
		}
		s = zs
	default:
		return nil, fmt.Errorf("unknown solver backend %q: %w", conf.Backend, ErrNoSolver)
	}
	if conf.Timeout.Duration > 0 {
		s = timeoutSolver{s, conf.Timeout.Duration}
	}
	return s, nil
}

type timeoutSolver struct {
	smt.Solver
	timeout time.Duration
}

func (s timeoutSolver) Check(ctx context.Context, assertions []smt.Value) (smt.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.Solver.Check(ctx, assertions)
}
