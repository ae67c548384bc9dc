// Package circuit decides bit-vector formulas by bit-blasting them into
// a boolean circuit, encoding the circuit as CNF and handing it to a
// SAT solver.
package circuit

import "fmt"

// A Lit is a literal in DIMACS convention: a positive variable number
// or its negation.
type Lit int

func (l Lit) Var() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}

func (l Lit) String() string {
	if l < 0 {
		return fmt.Sprintf("~%d", -l)
	}
	return fmt.Sprintf("%d", int(l))
}

// A Builder accumulates gates as clauses. Every gate gets a fresh
// variable constrained to equal the gate's output (Tseitin encoding).
// Gates over constant inputs are folded and produce no clauses.
type Builder struct {
	nvars   int
	clauses [][]int
	ands    map[[2]Lit]Lit
	xors    map[[2]Lit]Lit
}

// lTrue is variable 1, which is asserted by New.
const lTrue Lit = 1

func New() *Builder {
	b := &Builder{
		nvars: 1,
		ands:  map[[2]Lit]Lit{},
		xors:  map[[2]Lit]Lit{},
	}
	b.clause(lTrue)
	return b
}

func (b *Builder) True() Lit  { return lTrue }
func (b *Builder) False() Lit { return -lTrue }

func (b *Builder) Const(v bool) Lit {
	if v {
		return lTrue
	}
	return -lTrue
}

// Var returns a fresh unconstrained variable.
func (b *Builder) Var() Lit {
	b.nvars++
	return Lit(b.nvars)
}

func (b *Builder) NumVars() int { return b.nvars }

// Clauses returns the CNF built so far. The slice is owned by b.
func (b *Builder) Clauses() [][]int { return b.clauses }

func (b *Builder) clause(ls ...Lit) {
	c := make([]int, len(ls))
	for i, l := range ls {
		c[i] = int(l)
	}
	b.clauses = append(b.clauses, c)
}

// Assert constrains x to be true.
func (b *Builder) Assert(x Lit) {
	b.clause(x)
}

func Not(x Lit) Lit { return -x }

func isConst(x Lit) bool { return x == lTrue || x == -lTrue }

func ordered(x, y Lit) [2]Lit {
	if x > y {
		x, y = y, x
	}
	return [2]Lit{x, y}
}

func (b *Builder) and2(x, y Lit) Lit {
	switch {
	case x == -lTrue || y == -lTrue || x == -y:
		return -lTrue
	case x == lTrue:
		return y
	case y == lTrue, x == y:
		return x
	}
	key := ordered(x, y)
	if g, ok := b.ands[key]; ok {
		return g
	}
	g := b.Var()
	b.clause(-g, x)
	b.clause(-g, y)
	b.clause(g, -x, -y)
	b.ands[key] = g
	return g
}

// And returns the conjunction of xs, which is true if xs is empty.
func (b *Builder) And(xs ...Lit) Lit {
	out := lTrue
	for _, x := range xs {
		out = b.and2(out, x)
	}
	return out
}

// Or returns the disjunction of xs, which is false if xs is empty.
func (b *Builder) Or(xs ...Lit) Lit {
	out := -lTrue
	for _, x := range xs {
		out = -b.and2(-out, -x)
	}
	return out
}

func (b *Builder) Xor(x, y Lit) Lit {
	switch {
	case x == -lTrue:
		return y
	case y == -lTrue:
		return x
	case x == lTrue:
		return -y
	case y == lTrue:
		return -x
	case x == y:
		return -lTrue
	case x == -y:
		return lTrue
	}
	key := ordered(x, y)
	if g, ok := b.xors[key]; ok {
		return g
	}
	g := b.Var()
	b.clause(-g, x, y)
	b.clause(-g, -x, -y)
	b.clause(g, -x, y)
	b.clause(g, x, -y)
	b.xors[key] = g
	return g
}

func (b *Builder) Equal(x, y Lit) Lit {
	return -b.Xor(x, y)
}

func (b *Builder) Implies(x, y Lit) Lit {
	return b.Or(-x, y)
}

// Mux returns t if c is true and e otherwise.
func (b *Builder) Mux(c, t, e Lit) Lit {
	switch {
	case c == lTrue:
		return t
	case c == -lTrue:
		return e
	case t == e:
		return t
	case isConst(t) && isConst(e):
		if t == lTrue {
			return c
		}
		return -c
	}
	g := b.Var()
	b.clause(-c, -t, g)
	b.clause(-c, t, -g)
	b.clause(c, -e, g)
	b.clause(c, e, -g)
	return g
}
