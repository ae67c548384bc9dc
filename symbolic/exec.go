package symbolic

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"honnef.co/go/bpfcheck/ir"
	"honnef.co/go/bpfcheck/smt"
)

// ErrContextLimit is returned when forking would exceed the
// configured number of contexts.
var ErrContextLimit = errors.New("too many execution contexts")

// Strategy selects how conditional jumps are resolved.
type Strategy int

const (
	ForkStrategy Strategy = iota
	InlineStrategy
)

func (s Strategy) String() string {
	switch s {
	case ForkStrategy:
		return "fork"
	case InlineStrategy:
		return "inline"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "fork" or "inline".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "fork", "":
		return ForkStrategy, nil
	case "inline":
		return InlineStrategy, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q", s)
	}
}

type Options struct {
	Solver smt.Solver
	// SignedOverflow selects the signed overflow guard for additions.
	SignedOverflow bool
	// Inputs are the registers that hold symbolic values on entry.
	Inputs []int
	// MaxContexts bounds the number of contexts the fork strategy
	// creates. Zero means no limit.
	MaxContexts int
}

// An Executor runs a program to completion and returns every context
// it created, ordered by ID.
type Executor interface {
	Run(ctx context.Context, fn *ir.Function) ([]*Context, error)
}

// New returns an executor that resolves jumps with strategy s.
func New(s Strategy, opts Options) Executor {
	if s == InlineStrategy {
		return &Inline{Options: opts}
	}
	return &Fork{Options: opts}
}

func (o *Options) interpreter(width int) *Interpreter {
	return &Interpreter{Width: width, SignedOverflow: o.SignedOverflow}
}

// solve checks c's formula and records the model if it is
// satisfiable.
func (o *Options) solve(ctx context.Context, c *Context) (smt.Status, error) {
	return o.solveUnder(ctx, c, nil)
}

// solveUnder checks c's formula conjoined with assumptions. A model
// satisfying both is recorded in c.
func (o *Options) solveUnder(ctx context.Context, c *Context, assumptions []smt.Value) (smt.Status, error) {
	fs := c.formula
	if len(assumptions) > 0 {
		fs = append(slices.Clip(fs), assumptions...)
	}
	res, err := o.Solver.Check(ctx, fs)
	if err != nil {
		return smt.Unknown, fmt.Errorf("context %d: %w", c.ID, err)
	}
	if res.Status == smt.Sat {
		c.model = res.Model
	}
	return res.Status, nil
}
