package circuit

// A Vec is a bit-vector of literals, least significant bit first.
type Vec []Lit

func (b *Builder) ConstVec(v uint64, bits int) Vec {
	out := make(Vec, bits)
	for i := range out {
		out[i] = b.Const(v>>i&1 == 1)
	}
	return out
}

func (b *Builder) VarVec(bits int) Vec {
	out := make(Vec, bits)
	for i := range out {
		out[i] = b.Var()
	}
	return out
}

// AddVec returns x + y modulo 2^len(x) using a ripple-carry adder.
func (b *Builder) AddVec(x, y Vec) Vec {
	out := make(Vec, len(x))
	carry := b.False()
	for i := range x {
		xy := b.Xor(x[i], y[i])
		out[i] = b.Xor(xy, carry)
		carry = b.Or(b.And(x[i], y[i]), b.And(carry, xy))
	}
	return out
}

func (b *Builder) EqVec(x, y Vec) Lit {
	eqs := make([]Lit, len(x))
	for i := range x {
		eqs[i] = b.Equal(x[i], y[i])
	}
	return b.And(eqs...)
}

// Ult reports whether x < y as unsigned integers. Walking from the
// least significant bit, a more significant difference overrides the
// verdict of the lower bits.
func (b *Builder) Ult(x, y Vec) Lit {
	lt := b.False()
	for i := range x {
		lt = b.Mux(b.Xor(x[i], y[i]), y[i], lt)
	}
	return lt
}

func (b *Builder) Ule(x, y Vec) Lit { return -b.Ult(y, x) }

// Slt reports whether x < y as two's complement integers, which is
// the unsigned comparison with the sign bits inverted.
func (b *Builder) Slt(x, y Vec) Lit {
	return b.Ult(flipSign(x), flipSign(y))
}

func (b *Builder) Sle(x, y Vec) Lit { return -b.Slt(y, x) }

func flipSign(x Vec) Vec {
	out := append(Vec(nil), x...)
	out[len(out)-1] = Not(out[len(out)-1])
	return out
}

func (b *Builder) IteVec(c Lit, x, y Vec) Vec {
	out := make(Vec, len(x))
	for i := range x {
		out[i] = b.Mux(c, x[i], y[i])
	}
	return out
}

func (b *Builder) ZeroExtend(n int, x Vec) Vec {
	out := append(Vec(nil), x...)
	for i := 0; i < n; i++ {
		out = append(out, b.False())
	}
	return out
}

func (b *Builder) SignExtend(n int, x Vec) Vec {
	out := append(Vec(nil), x...)
	msb := x[len(x)-1]
	for i := 0; i < n; i++ {
		out = append(out, msb)
	}
	return out
}

// Extract returns bits hi down to lo of x.
func Extract(hi, lo int, x Vec) Vec {
	return append(Vec(nil), x[lo:hi+1]...)
}
