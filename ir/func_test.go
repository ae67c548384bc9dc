package ir

import (
	"fmt"
	"math/rand"
	"testing"

	"honnef.co/go/bpfcheck/insn"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func mustProgram(t testing.TB, width, regs int, lines ...string) *insn.Program {
	t.Helper()
	prog, err := insn.DecodeProgram(lines, width, regs)
	require.NoError(t, err)
	require.NoError(t, prog.Err())
	return prog
}

func blockIndices(bs []*BasicBlock) []int {
	out := make([]int, len(bs))
	for i, b := range bs {
		out[i] = b.Index
	}
	return out
}

type blockShape struct {
	First, Last int
	In, Out     []int
	Preds       []int
	Succs       []int
	Idom        int
	Frontier    []int
	Phis        []int
}

func shape(fn *Function) []blockShape {
	var out []blockShape
	for _, b := range fn.Blocks {
		s := blockShape{
			First:    b.First,
			Last:     b.Last,
			In:       b.In,
			Out:      b.Out,
			Preds:    blockIndices(b.Preds),
			Succs:    blockIndices(b.Succs),
			Idom:     -1,
			Frontier: blockIndices(fn.Frontier(b)),
			Phis:     b.Phis(),
		}
		if b.Idom() != nil {
			s.Idom = b.Idom().Index
		}
		out = append(out, s)
	}
	return out
}

func TestBuildScenario(t *testing.T) {
	prog := mustProgram(t, 4, 2,
		"mov r1 4",
		"mov r2 3",
		"add r2 r1",
		"jump-not-equal r2 5 offset=2",
		"add r1 r1",
		"add r2 3",
		"add r2 r1",
		"add r1 r2",
		"exit",
	)
	fn := Build(prog)
	require.Equal(t, []int{0, 4, 6}, Leaders(prog))
	require.Equal(t, []int{0, 4, 6}, fn.Leaders())

	want := []blockShape{
		{First: 0, Last: 3, In: nil, Out: []int{4, 6}, Preds: []int{}, Succs: []int{1, 2}, Idom: -1, Frontier: []int{}, Phis: nil},
		{First: 4, Last: 5, In: []int{3}, Out: []int{6}, Preds: []int{0}, Succs: []int{2}, Idom: 0, Frontier: []int{2}, Phis: nil},
		{First: 6, Last: 8, In: []int{3, 5}, Out: nil, Preds: []int{0, 1}, Succs: []int{}, Idom: 0, Frontier: []int{}, Phis: []int{1, 2}},
	}
	if diff := cmp.Diff(want, shape(fn), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, SanityCheck(fn))
	require.Same(t, fn.Blocks[1], fn.BlockOf(5))
}

func TestBuildNested(t *testing.T) {
	prog := mustProgram(t, 8, 2,
		"mov r1 1",
		"mov r2 1",
		"jeq r1 1 +3",
		"jeq r2 1 +1",
		"mov r2 2",
		"add r1 r2",
		"exit",
	)
	fn := Build(prog)
	require.Equal(t, []int{0, 3, 4, 5, 6}, fn.Leaders())
	want := []blockShape{
		{First: 0, Last: 2, Out: []int{3, 6}, Preds: []int{}, Succs: []int{1, 4}, Idom: -1, Frontier: []int{}},
		{First: 3, Last: 3, In: []int{2}, Out: []int{4, 5}, Preds: []int{0}, Succs: []int{2, 3}, Idom: 0, Frontier: []int{4}},
		{First: 4, Last: 4, In: []int{3}, Out: []int{5}, Preds: []int{1}, Succs: []int{3}, Idom: 1, Frontier: []int{3}},
		{First: 5, Last: 5, In: []int{3, 4}, Out: []int{6}, Preds: []int{1, 2}, Succs: []int{4}, Idom: 1, Frontier: []int{4}, Phis: []int{2}},
		{First: 6, Last: 6, In: []int{2, 5}, Preds: []int{0, 3}, Succs: []int{}, Idom: 0, Frontier: []int{}, Phis: []int{1, 2}},
	}
	if diff := cmp.Diff(want, shape(fn), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, SanityCheck(fn))

	b3 := fn.Blocks[3]
	require.Equal(t, []*BasicBlock{fn.Blocks[0], fn.Blocks[1], b3}, b3.Dominators())
	require.True(t, fn.Blocks[1].Dominates(b3))
	require.False(t, fn.Blocks[2].Dominates(b3))
	require.True(t, b3.HasPhi(2))
	require.False(t, b3.HasPhi(1))
}

func TestBuildStraightLine(t *testing.T) {
	prog := mustProgram(t, 64, 3,
		"mov r1 1",
		"mov r2 r1",
		"add r3 7",
		"add r3 r2",
		"exit",
	)
	fn := Build(prog)
	require.Len(t, fn.Blocks, 1)
	b := fn.Entry()
	require.Equal(t, 0, b.First)
	require.Equal(t, 4, b.Last)
	require.Len(t, b.Instrs, 5)
	require.Empty(t, b.Phis())
	require.Empty(t, fn.Frontier(b))
	require.Nil(t, b.Idom())
	require.NoError(t, SanityCheck(fn))
}

func TestBuildEmpty(t *testing.T) {
	fn := Build(mustProgram(t, 8, 1))
	require.Nil(t, fn.Entry())
	require.Empty(t, fn.Blocks)
	require.NoError(t, SanityCheck(fn))
}

func TestGraphExitAndInvalid(t *testing.T) {
	prog, err := insn.DecodeProgram([]string{"mov r1 1", "exit", "bogus", "jeq r1 1 -1", "exit"}, 8, 1)
	require.NoError(t, err)
	g := BuildGraph(prog)
	want := &Graph{
		Succs: [][]int{{1}, nil, {3}, {4}, nil},
		Preds: [][]int{nil, {0}, nil, {2}, {3}},
	}
	if diff := cmp.Diff(want, g, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
}

// randomProgram generates a program with only forward jumps, so that
// it passes decoding.
func randomProgram(r *rand.Rand) []string {
	n := 1 + r.Intn(14)
	lines := make([]string, n)
	for i := range lines {
		reg := 1 + r.Intn(3)
		switch k := r.Intn(10); {
		case k < 3:
			lines[i] = fmt.Sprintf("mov r%d %d", reg, r.Intn(16))
		case k < 6:
			lines[i] = fmt.Sprintf("add r%d r%d", reg, 1+r.Intn(3))
		case k < 9 && i+1 < n:
			lines[i] = fmt.Sprintf("jgt r%d %d +%d", reg, r.Intn(16), r.Intn(n-i-1))
		default:
			lines[i] = "exit"
		}
	}
	return lines
}

func TestPropertiesRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for iter := 0; iter < 500; iter++ {
		lines := randomProgram(r)
		prog := mustProgram(t, 8, 3, lines...)
		fn := Build(prog)
		n := prog.Len()

		// Leader correctness.
		want := map[int]bool{0: true}
		for i, ins := range prog.Instrs {
			if ins.Op.IsJump() {
				want[ins.Target()] = true
				if i+1 < n {
					want[i+1] = true
				}
			}
		}
		leaders := fn.Leaders()
		require.Len(t, leaders, len(want), "%q", lines)
		for _, l := range leaders {
			require.True(t, want[l], "%q: unexpected leader %d", lines, l)
		}

		// Partition completeness and contiguity.
		next := 0
		for _, b := range fn.Blocks {
			require.Equal(t, next, b.First, "%q", lines)
			for j, ins := range b.Instrs {
				require.Equal(t, b.First+j, ins.Index)
				if j > 0 {
					require.False(t, want[ins.Index], "%q: leader %d inside %s", lines, ins.Index, b)
				}
			}
			next = b.Last + 1
		}
		require.Equal(t, n, next, "%q", lines)

		// Dominance.
		require.NoError(t, SanityCheck(fn), "%q", lines)
		entry := fn.Entry()
		for _, b := range fn.Blocks {
			require.True(t, entry.Dominates(b), "%q: entry does not dominate %s", lines, b)
			for _, f := range fn.Frontier(b) {
				require.NotSame(t, b, f, "%q: %s in its own frontier", lines, b)
			}
			// Merges only happen at join points.
			if len(b.Phis()) > 0 {
				require.GreaterOrEqual(t, len(b.Preds), 2, "%q: φ at %s", lines, b)
			}
		}
	}
}
