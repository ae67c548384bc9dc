package smt

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	x := NewVar("r1.0", BitVec(4))
	y := NewVar("r2.in", BitVec(4))
	tests := []struct {
		v    Value
		want string
	}{
		{x, "r1.0"},
		{NewVar("has space", Bool), "|has space|"},
		{NewVar("0start", Bool), "|0start|"},
		{BVConst(5, 4), "#b0101"},
		{BVConst(-1, 4), "#b1111"},
		{True, "true"},
		{Add(x, y), "(bvadd r1.0 r2.in)"},
		{Extract(3, 2, x), "((_ extract 3 2) r1.0)"},
		{ZeroExtend(4, x), "((_ zero_extend 4) r1.0)"},
		{Eq(x, BVConst(3, 4)), "(= r1.0 #b0011)"},
		{Ite(NewVar("c", Bool), x, y), "(ite c r1.0 r2.in)"},
		{Implies(NewVar("c", Bool), Slt(x, y)), "(=> c (bvslt r1.0 r2.in))"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.v.String())
	}
}

func TestFolding(t *testing.T) {
	c := NewVar("c", Bool)
	require.Equal(t, Value(False), And(c, False))
	require.Equal(t, Value(c), And(True, c))
	require.Equal(t, Value(True), And())
	require.Equal(t, Value(True), Or(c, True))
	require.Equal(t, Value(c), Or(False, c))
	require.Equal(t, Value(c), Not(Not(c)))
	require.Equal(t, Value(True), Implies(False, c))
	require.Equal(t, Value(c), Implies(True, c))

	x := NewVar("x", BitVec(8))
	require.Equal(t, Value(x), Extract(7, 0, x))
	require.Equal(t, Value(x), SignExtend(0, x))
	require.Equal(t, Value(x), Ite(True, x, BVConst(0, 8)))
}

func TestSortPanics(t *testing.T) {
	x := NewVar("x", BitVec(8))
	y := NewVar("y", BitVec(4))
	require.Panics(t, func() { Add(x, y) })
	require.Panics(t, func() { And(x) })
	require.Panics(t, func() { Ult(True, False) })
	require.Panics(t, func() { Extract(8, 0, x) })
	require.Panics(t, func() { BitVec(65) })
}

func TestEval(t *testing.T) {
	x := NewVar("x", BitVec(4))
	y := NewVar("y", BitVec(4))
	m := Model{"x": 0b1110, "y": 3}
	tests := []struct {
		v    Value
		want uint64
	}{
		{Add(x, y), 1},
		{Ult(x, y), 0},
		{Slt(x, y), 1}, // x is -2
		{Sge(x, y), 0},
		{Ugt(x, y), 1},
		{Extract(3, 1, x), 0b111},
		{ZeroExtend(4, x), 0b1110},
		{SignExtend(4, x), 0b11111110},
		{Eq(x, BVConst(-2, 4)), 1},
		{Distinct(x, y), 1},
		{Ite(Eq(x, y), x, y), 3},
		{NewVar("missing", BitVec(4)), 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Eval(tt.v, m), "%s", tt.v)
	}
	require.True(t, Holds(m, Ugt(x, y), Distinct(x, y)))
	require.False(t, Holds(m, Ugt(x, y), Eq(x, y)))
}

func TestSigned(t *testing.T) {
	require.Equal(t, int64(-2), Signed(0b1110, 4))
	require.Equal(t, int64(7), Signed(7, 4))
	require.Equal(t, int64(-1), Signed(^uint64(0), 64))
	require.Equal(t, uint64(0xf), Mask(4))
	require.Equal(t, ^uint64(0), Mask(64))
}

// For every pair of 4-bit operands, the guards hold exactly when the
// mathematical sum is representable.
func TestAddGuards(t *testing.T) {
	const bits = 4
	for a := uint64(0); a < 16; a++ {
		for b := uint64(0); b < 16; b++ {
			x, y := BVConst(a, bits), BVConst(b, bits)
			require.Equal(t, b2u(a+b <= 15), Eval(AddNoOverflow(x, y, false), nil), "%d+%d", a, b)

			sa, sb := Signed(a, bits), Signed(b, bits)
			sum := sa + sb
			require.Equal(t, b2u(sum <= 7), Eval(AddNoOverflow(x, y, true), nil), "%d+%d signed", sa, sb)
			require.Equal(t, b2u(sum >= -8), Eval(AddNoUnderflow(x, y), nil), "%d+%d", sa, sb)
			if sb < 0 {
				require.Equal(t, b2u(int64(a)+sb >= 0), Eval(AddNoBorrow(x, y), nil), "%d%+d", a, sb)
			}
		}
	}
}

func TestVars(t *testing.T) {
	x := NewVar("x", BitVec(4))
	y := NewVar("y", BitVec(4))
	sum := Add(x, y)
	vars, err := Vars([]Value{Eq(sum, sum), Ult(y, x), NewVar("c", Bool)})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"c", "x", "y"}, varNames(vars)); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}

	_, err = Vars([]Value{Eq(x, x), NewVar("x", Bool)})
	require.Error(t, err)
}

func varNames(vs []Var) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Name
	}
	return out
}

func TestWriteScript(t *testing.T) {
	x := NewVar("r1.0", BitVec(4))
	var sb strings.Builder
	vars, err := WriteScript(&sb, []Value{Eq(x, BVConst(4, 4)), NewVar("exit.1", Bool)}, ScriptOptions{
		Timeout: 2 * time.Second,
		Values:  true,
	})
	require.NoError(t, err)
	require.Len(t, vars, 2)
	want := `(set-option :produce-models true)
(set-option :timeout 2000)
(set-logic QF_BV)
(declare-const exit.1 Bool)
(declare-const r1.0 (_ BitVec 4))
(assert (= r1.0 #b0100))
(assert exit.1)
(check-sat)
(get-value (exit.1 r1.0))
`
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("script mismatch (-want +got):\n%s", diff)
	}

	_, err = WriteScript(&sb, []Value{x}, ScriptOptions{})
	require.Error(t, err)
}

func TestModelString(t *testing.T) {
	require.Equal(t, "{a=1 b=2}", Model{"b": 2, "a": 1}.String())
	require.Equal(t, "sat", Sat.String())
}
