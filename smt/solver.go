package smt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknown is returned by solvers that could not decide a query, for
// example because they ran out of time.
var ErrUnknown = errors.New("solver returned unknown")

type Status int

const (
	Unknown Status = iota
	Sat
	Unsat
)

func (s Status) String() string {
	switch s {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// A Model assigns concrete values to variables by name. Booleans are
// 0 or 1.
type Model map[string]uint64

func (m Model) String() string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%d", name, m[name])
	}
	sb.WriteByte('}')
	return sb.String()
}

type Result struct {
	Status Status
	// Model is set if Status is Sat. It assigns a value to every
	// variable of the query.
	Model Model
}

// A Solver decides the conjunction of a list of boolean terms.
//
// Implementations must be safe to use from one goroutine at a time;
// callers that share a Solver between goroutines must serialize
// access.
type Solver interface {
	Check(ctx context.Context, assertions []Value) (Result, error)
}
