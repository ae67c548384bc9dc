package debug

import (
	"strings"
	"testing"

	"honnef.co/go/bpfcheck/insn"
	"honnef.co/go/bpfcheck/ir"

	"github.com/stretchr/testify/require"
)

func build(t *testing.T, lines ...string) *ir.Function {
	t.Helper()
	prog, err := insn.DecodeProgram(lines, 8, 2)
	require.NoError(t, err)
	return ir.Build(prog)
}

func diamond(t *testing.T) *ir.Function {
	return build(t,
		"mov r1 1",
		"jeq r1 1 +2",
		"mov r2 1",
		"exit",
		"mov r2 2",
		"exit",
	)
}

func TestDomTreeText(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, DomTreeText(&sb, diamond(t)))
	want := "b0\n    b1\n    b2\n"
	require.Equal(t, want, sb.String())
}

func TestDomTreeTextNested(t *testing.T) {
	fn := build(t,
		"mov r1 1",
		"mov r2 1",
		"jeq r1 1 +3",
		"jeq r2 1 +1",
		"mov r2 2",
		"add r1 r2",
		"exit",
	)
	var sb strings.Builder
	require.NoError(t, DomTreeText(&sb, fn))
	require.Equal(t, "b0\n    b1\n        b2\n        b3\n    b4\n", sb.String())
}

func TestDomTreeDot(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, DomTreeDot(&sb, diamond(t)))
	out := sb.String()
	require.True(t, strings.HasPrefix(out, "digraph domtree {\n"), out)
	require.Contains(t, out, "\tn0 -> n1 [style=\"solid\",weight=100];\n")
	require.Contains(t, out, "\tn0 -> n2 [style=\"dotted\",weight=0];\n")
	require.True(t, strings.HasSuffix(out, "}\n"), out)
}

func TestCFGDot(t *testing.T) {
	fn := build(t,
		"mov r1 1",
		"jeq r1 1 +1",
		"mov r1 2",
		"add r1 r1",
		"exit",
	)
	var sb strings.Builder
	require.NoError(t, CFGDot(&sb, fn))
	out := sb.String()
	require.Contains(t, out, "n0 -> n1 [label=\"F\"];")
	require.Contains(t, out, "n0 -> n2 [label=\"T\"];")
	require.Contains(t, out, "n1 -> n2;")
	require.Contains(t, out, "r1 = phi\\l")
}

func TestEmpty(t *testing.T) {
	fn := build(t)
	var sb strings.Builder
	require.NoError(t, DomTreeText(&sb, fn))
	require.Empty(t, sb.String())
	require.NoError(t, CFGDot(&sb, fn))
	require.Equal(t, "digraph cfg {\n\tnode [shape=\"box\",fontname=\"monospace\"];\n}\n", sb.String())
}
