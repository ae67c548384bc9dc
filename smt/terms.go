package smt

import "fmt"

func sexp(s Sort, verb Verb, params []int, in ...Value) *Sexp {
	return &Sexp{value: value{s}, Verb: verb, Params: params, In: in}
}

func isConst(v Value, bits uint64) bool {
	k, ok := v.(Const)
	return ok && k.typ.IsBool() && k.Bits == bits
}

func mustBool(verb Verb, vs ...Value) {
	for _, v := range vs {
		if !v.Sort().IsBool() {
			panic(fmt.Sprintf("%s: operand %s has sort %s, want Bool", verb, v, v.Sort()))
		}
	}
}

func mustSame(verb Verb, x, y Value) {
	if x.Sort() != y.Sort() {
		panic(fmt.Sprintf("%s: operands %s and %s have different sorts %s and %s", verb, x, y, x.Sort(), y.Sort()))
	}
}

func mustBV(verb Verb, vs ...Value) {
	for _, v := range vs {
		if v.Sort().IsBool() {
			panic(fmt.Sprintf("%s: operand %s is not a bit-vector", verb, v))
		}
	}
}

// And returns the conjunction of xs. Constant operands are folded.
func And(xs ...Value) Value {
	mustBool(VerbAnd, xs...)
	var in []Value
	for _, x := range xs {
		switch {
		case isConst(x, 0):
			return False
		case isConst(x, 1):
		default:
			in = append(in, x)
		}
	}
	switch len(in) {
	case 0:
		return True
	case 1:
		return in[0]
	default:
		return sexp(Bool, VerbAnd, nil, in...)
	}
}

// Or returns the disjunction of xs. Constant operands are folded.
func Or(xs ...Value) Value {
	mustBool(VerbOr, xs...)
	var in []Value
	for _, x := range xs {
		switch {
		case isConst(x, 1):
			return True
		case isConst(x, 0):
		default:
			in = append(in, x)
		}
	}
	switch len(in) {
	case 0:
		return False
	case 1:
		return in[0]
	default:
		return sexp(Bool, VerbOr, nil, in...)
	}
}

func Not(x Value) Value {
	mustBool(VerbNot, x)
	switch {
	case isConst(x, 0):
		return True
	case isConst(x, 1):
		return False
	}
	if s, ok := x.(*Sexp); ok && s.Verb == VerbNot {
		return s.In[0]
	}
	return sexp(Bool, VerbNot, nil, x)
}

func Implies(x, y Value) Value {
	mustBool(VerbImplies, x, y)
	switch {
	case isConst(x, 1):
		return y
	case isConst(x, 0), isConst(y, 1):
		return True
	}
	return sexp(Bool, VerbImplies, nil, x, y)
}

func Eq(x, y Value) Value {
	mustSame(VerbEqual, x, y)
	return sexp(Bool, VerbEqual, nil, x, y)
}

func Distinct(x, y Value) Value {
	mustSame(VerbDistinct, x, y)
	return sexp(Bool, VerbDistinct, nil, x, y)
}

// Ite returns "if c then x else y".
func Ite(c, x, y Value) Value {
	mustBool(VerbIte, c)
	mustSame(VerbIte, x, y)
	switch {
	case isConst(c, 1):
		return x
	case isConst(c, 0):
		return y
	}
	return sexp(x.Sort(), VerbIte, nil, c, x, y)
}

func Add(x, y Value) Value {
	mustBV(VerbBvadd, x, y)
	mustSame(VerbBvadd, x, y)
	return sexp(x.Sort(), VerbBvadd, nil, x, y)
}

func compare(verb Verb, x, y Value) Value {
	mustBV(verb, x, y)
	mustSame(verb, x, y)
	return sexp(Bool, verb, nil, x, y)
}

func Ult(x, y Value) Value { return compare(VerbBvult, x, y) }
func Ule(x, y Value) Value { return compare(VerbBvule, x, y) }
func Ugt(x, y Value) Value { return compare(VerbBvugt, x, y) }
func Uge(x, y Value) Value { return compare(VerbBvuge, x, y) }
func Slt(x, y Value) Value { return compare(VerbBvslt, x, y) }
func Sle(x, y Value) Value { return compare(VerbBvsle, x, y) }
func Sgt(x, y Value) Value { return compare(VerbBvsgt, x, y) }
func Sge(x, y Value) Value { return compare(VerbBvsge, x, y) }

// Extract returns bits hi down to lo of x.
func Extract(hi, lo int, x Value) Value {
	mustBV(VerbExtract, x)
	if lo < 0 || hi < lo || hi >= x.Sort().Bits {
		panic(fmt.Sprintf("extract %d..%d out of range for %s", hi, lo, x.Sort()))
	}
	if lo == 0 && hi == x.Sort().Bits-1 {
		return x
	}
	return sexp(BitVec(hi-lo+1), VerbExtract, []int{hi, lo}, x)
}

// ZeroExtend widens x by n zero bits.
func ZeroExtend(n int, x Value) Value {
	mustBV(VerbZeroExtend, x)
	if n == 0 {
		return x
	}
	return sexp(BitVec(x.Sort().Bits+n), VerbZeroExtend, []int{n}, x)
}

// SignExtend widens x by n copies of its most significant bit.
func SignExtend(n int, x Value) Value {
	mustBV(VerbSignExtend, x)
	if n == 0 {
		return x
	}
	return sexp(BitVec(x.Sort().Bits+n), VerbSignExtend, []int{n}, x)
}

// AddNoOverflow holds iff x + y does not wrap around. If signed is
// false the operands are unsigned and the sum must not be smaller than
// x, which is equivalent to a clear carry out of the most significant
// bit. If signed is true, two positive operands must have a positive
// sum.
func AddNoOverflow(x, y Value, signed bool) Value {
	if signed {
		zero := BVConst(0, x.Sort().Bits)
		return Implies(And(Sgt(x, zero), Sgt(y, zero)), Sgt(Add(x, y), zero))
	}
	return Uge(Add(x, y), x)
}

// AddNoBorrow holds iff adding y, the two's complement encoding of a
// negative number, to the unsigned x leaves a result of at least zero.
func AddNoBorrow(x, y Value) Value {
	return Ule(Add(x, y), x)
}

// AddNoUnderflow holds iff the signed sum of two negative operands
// does not wrap around to a non-negative value.
func AddNoUnderflow(x, y Value) Value {
	zero := BVConst(0, x.Sort().Bits)
	return Implies(And(Slt(x, zero), Slt(y, zero)), Slt(Add(x, y), zero))
}
