package smt

import "fmt"

// Eval computes the value of v under m. Booleans evaluate to 0 or 1,
// bit-vectors to their unsigned value. Variables absent from m are 0.
func Eval(v Value, m Model) uint64 {
	switch v := v.(type) {
	case Const:
		return v.Bits
	case Var:
		return m[v.Name] & mask(v.typ)
	case *Sexp:
		return evalSexp(v, m)
	default:
		panic(fmt.Sprintf("unexpected value %T", v))
	}
}

// Holds reports whether all of fs evaluate to true under m.
func Holds(m Model, fs ...Value) bool {
	for _, f := range fs {
		if Eval(f, m) == 0 {
			return false
		}
	}
	return true
}

func mask(s Sort) uint64 {
	if s.IsBool() {
		return 1
	}
	return Mask(s.Bits)
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func evalSexp(s *Sexp, m Model) uint64 {
	arg := func(i int) uint64 { return Eval(s.In[i], m) }
	switch s.Verb {
	case VerbAnd:
		for i := range s.In {
			if arg(i) == 0 {
				return 0
			}
		}
		return 1
	case VerbOr:
		for i := range s.In {
			if arg(i) != 0 {
				return 1
			}
		}
		return 0
	case VerbNot:
		return 1 - arg(0)
	case VerbImplies:
		return b2u(arg(0) == 0 || arg(1) != 0)
	case VerbEqual:
		return b2u(arg(0) == arg(1))
	case VerbDistinct:
		return b2u(arg(0) != arg(1))
	case VerbIte:
		if arg(0) != 0 {
			return arg(1)
		}
		return arg(2)
	case VerbBvadd:
		return (arg(0) + arg(1)) & mask(s.typ)
	}

	if s.Verb >= VerbBvult && s.Verb <= VerbBvsge {
		bits := s.In[0].Sort().Bits
		x, y := arg(0), arg(1)
		sx, sy := Signed(x, bits), Signed(y, bits)
		switch s.Verb {
		case VerbBvult:
			return b2u(x < y)
		case VerbBvule:
			return b2u(x <= y)
		case VerbBvugt:
			return b2u(x > y)
		case VerbBvuge:
			return b2u(x >= y)
		case VerbBvslt:
			return b2u(sx < sy)
		case VerbBvsle:
			return b2u(sx <= sy)
		case VerbBvsgt:
			return b2u(sx > sy)
		case VerbBvsge:
			return b2u(sx >= sy)
		}
	}

	switch s.Verb {
	case VerbExtract:
		hi, lo := s.Params[0], s.Params[1]
		return (arg(0) >> lo) & Mask(hi-lo+1)
	case VerbZeroExtend:
		return arg(0)
	case VerbSignExtend:
		return uint64(Signed(arg(0), s.In[0].Sort().Bits)) & mask(s.typ)
	}
	panic(fmt.Sprintf("unhandled verb %d", s.Verb))
}
