package circuit

import (
	"fmt"

	"honnef.co/go/bpfcheck/smt"
)

// A Blaster translates terms into circuits. Booleans become vectors
// of length one. Shared subterms are translated once.
type Blaster struct {
	b     *Builder
	vars  map[string]Vec
	sorts map[string]smt.Sort
	memo  map[*smt.Sexp]Vec
}

func NewBlaster(b *Builder) *Blaster {
	return &Blaster{
		b:     b,
		vars:  map[string]Vec{},
		sorts: map[string]smt.Sort{},
		memo:  map[*smt.Sexp]Vec{},
	}
}

// Bool returns the literal for the boolean term f.
func (bl *Blaster) Bool(f smt.Value) (Lit, error) {
	if !f.Sort().IsBool() {
		return 0, fmt.Errorf("%s is not a boolean term", f)
	}
	v, err := bl.Vec(f)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (bl *Blaster) Vec(v smt.Value) (Vec, error) {
	switch v := v.(type) {
	case smt.Const:
		return bl.b.ConstVec(v.Bits, width(v.Sort())), nil
	case smt.Var:
		if s, ok := bl.sorts[v.Name]; ok {
			if s != v.Sort() {
				return nil, fmt.Errorf("variable %s used with sorts %s and %s", v, s, v.Sort())
			}
			return bl.vars[v.Name], nil
		}
		out := bl.b.VarVec(width(v.Sort()))
		bl.vars[v.Name] = out
		bl.sorts[v.Name] = v.Sort()
		return out, nil
	case *smt.Sexp:
		if out, ok := bl.memo[v]; ok {
			return out, nil
		}
		out, err := bl.sexp(v)
		if err != nil {
			return nil, err
		}
		bl.memo[v] = out
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected term %T", v)
	}
}

func width(s smt.Sort) int {
	if s.IsBool() {
		return 1
	}
	return s.Bits
}

func (bl *Blaster) sexp(s *smt.Sexp) (Vec, error) {
	in := make([]Vec, len(s.In))
	for i, x := range s.In {
		v, err := bl.Vec(x)
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	b := bl.b
	bit := func(l Lit) Vec { return Vec{l} }
	heads := func() []Lit {
		out := make([]Lit, len(in))
		for i, v := range in {
			out[i] = v[0]
		}
		return out
	}

	switch s.Verb {
	case smt.VerbAnd:
		return bit(b.And(heads()...)), nil
	case smt.VerbOr:
		return bit(b.Or(heads()...)), nil
	case smt.VerbNot:
		return bit(Not(in[0][0])), nil
	case smt.VerbImplies:
		return bit(b.Implies(in[0][0], in[1][0])), nil
	case smt.VerbEqual:
		return bit(b.EqVec(in[0], in[1])), nil
	case smt.VerbDistinct:
		return bit(Not(b.EqVec(in[0], in[1]))), nil
	case smt.VerbIte:
		return b.IteVec(in[0][0], in[1], in[2]), nil
	case smt.VerbBvadd:
		return b.AddVec(in[0], in[1]), nil
	case smt.VerbBvult:
		return bit(b.Ult(in[0], in[1])), nil
	case smt.VerbBvule:
		return bit(b.Ule(in[0], in[1])), nil
	case smt.VerbBvugt:
		return bit(b.Ult(in[1], in[0])), nil
	case smt.VerbBvuge:
		return bit(b.Ule(in[1], in[0])), nil
	case smt.VerbBvslt:
		return bit(b.Slt(in[0], in[1])), nil
	case smt.VerbBvsle:
		return bit(b.Sle(in[0], in[1])), nil
	case smt.VerbBvsgt:
		return bit(b.Slt(in[1], in[0])), nil
	case smt.VerbBvsge:
		return bit(b.Sle(in[1], in[0])), nil
	case smt.VerbExtract:
		return Extract(s.Params[0], s.Params[1], in[0]), nil
	case smt.VerbZeroExtend:
		return b.ZeroExtend(s.Params[0], in[0]), nil
	case smt.VerbSignExtend:
		return b.SignExtend(s.Params[0], in[0]), nil
	default:
		return nil, fmt.Errorf("unsupported verb %s", s.Verb)
	}
}

// Model reads the values of all translated variables from a
// satisfying assignment of the builder's variables, indexed by
// variable number minus one.
func (bl *Blaster) Model(assignment []bool) smt.Model {
	m := smt.Model{}
	for name, vec := range bl.vars {
		var v uint64
		for i, l := range vec {
			if litValue(l, assignment) {
				v |= 1 << i
			}
		}
		m[name] = v
	}
	return m
}

func litValue(l Lit, assignment []bool) bool {
	i := l.Var() - 1
	val := i < len(assignment) && assignment[i]
	if l == lTrue || l == -lTrue {
		val = true
	}
	if l < 0 {
		return !val
	}
	return val
}
