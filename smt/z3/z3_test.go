package z3

import (
	"context"
	"testing"
	"time"

	"honnef.co/go/bpfcheck/smt"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	x := smt.NewVar("r1.0", smt.BitVec(8))
	y := smt.NewVar("r2.0", smt.BitVec(4))
	c := smt.NewVar("exit.8", smt.Bool)
	vars := []smt.Var{c, x, y}

	tests := []struct {
		name string
		out  string
		want smt.Result
		err  bool
	}{
		{
			name: "sat",
			out:  "sat\n((exit.8 true)\n (r1.0 #x0f)\n (r2.0 #b1010))\n",
			want: smt.Result{Status: smt.Sat, Model: smt.Model{"exit.8": 1, "r1.0": 15, "r2.0": 10}},
		},
		{
			name: "quoted and indexed",
			out:  "sat\n((|exit.8| false) (r1.0 (_ bv200 8)) (r2.0 #b0000))",
			want: smt.Result{Status: smt.Sat, Model: smt.Model{"exit.8": 0, "r1.0": 200, "r2.0": 0}},
		},
		{
			name: "unsat with model error",
			out:  "unsat\n(error \"line 9 column 10: model is not available\")\n",
			want: smt.Result{Status: smt.Unsat},
		},
		{name: "unknown", out: "unknown\n", want: smt.Result{Status: smt.Unknown}},
		{name: "error", out: "(error \"line 1 column 2: invalid command\")\n", err: true},
		{name: "empty", out: "", err: true},
		{name: "missing value", out: "sat\n((exit.8 true) (r1.0 #x00))", err: true},
		{name: "truncated", out: "sat\n((exit.8 true)", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOutput([]byte(tt.out), vars)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize(`sat ((|a b| #x1) ("s" x))`)
	want := []string{"sat", "(", "(", "|a b|", "#x1", ")", "(", `"s"`, "x", ")", ")"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestSolver(t *testing.T) {
	s := &Solver{Timeout: 10 * time.Second}
	if !s.Available() {
		t.Skip("z3 not found in PATH")
	}
	x := smt.NewVar("x", smt.BitVec(8))
	y := smt.NewVar("y", smt.BitVec(8))
	res, err := s.Check(context.Background(), []smt.Value{
		smt.Eq(smt.Add(x, y), smt.BVConst(7, 8)),
		smt.Eq(x, smt.BVConst(3, 8)),
	})
	require.NoError(t, err)
	require.Equal(t, smt.Sat, res.Status)
	require.Equal(t, uint64(4), res.Model["y"])

	res, err = s.Check(context.Background(), []smt.Value{smt.Ult(x, x)})
	require.NoError(t, err)
	require.Equal(t, smt.Unsat, res.Status)
}

func TestSolverMissingBinary(t *testing.T) {
	s := &Solver{Path: "/nonexistent/z3"}
	require.False(t, s.Available())
	_, err := s.Check(context.Background(), []smt.Value{smt.True})
	require.Error(t, err)
}
