// Package ir recovers the control flow of a decoded program.
//
// It builds the instruction-level successor graph, partitions the
// program into basic blocks using leaders, links the blocks into a
// control-flow graph, computes the dominator tree and dominance
// frontiers, and determines at which blocks each register needs a
// merge (φ) value. Programs have no back-edges; the decoder rejects
// jumps that do not go forward.
package ir

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"honnef.co/go/bpfcheck/insn"

	"golang.org/x/tools/container/intsets"
)

// If true, print diagnostic information while building functions.
const debugBuild = false

// A Graph is the successor/predecessor relation between instruction
// indices. The outer slices are indexed by instruction index.
type Graph struct {
	Succs [][]int
	Preds [][]int
}

func (g *Graph) addEdge(from, to int) {
	g.Succs[from] = append(g.Succs[from], to)
	g.Preds[to] = append(g.Preds[to], from)
}

// BuildGraph computes the instruction graph of prog. Every
// instruction falls through to its successor unless it is an exit,
// and every jump with a nonzero offset has an edge to its target.
func BuildGraph(prog *insn.Program) *Graph {
	n := prog.Len()
	g := &Graph{
		Succs: make([][]int, n),
		Preds: make([][]int, n),
	}
	for i, ins := range prog.Instrs {
		if !ins.IsTerminal() && i+1 < n {
			g.addEdge(i, i+1)
		}
		if ins.Op.IsJump() && ins.Off != 0 {
			if t := ins.Target(); t >= 0 && t < n {
				g.addEdge(i, t)
			}
		}
	}
	return g
}

// A BasicBlock is a maximal run of instructions with a single entry
// at its first instruction.
type BasicBlock struct {
	Index  int                 // index of this block within Function.Blocks
	First  int                 // index of the first instruction
	Last   int                 // index of the last instruction
	Instrs []*insn.Instruction // instructions in order
	In     []int               // instructions that transfer control to First
	Out    []int               // instructions that Last transfers control to
	Preds  []*BasicBlock       // predecessors in the block graph
	Succs  []*BasicBlock       // successors in the block graph

	phis intsets.Sparse // registers needing a merge value at entry
	dom  domInfo
}

func (b *BasicBlock) String() string { return fmt.Sprintf("b%d", b.Index) }

// Contains reports whether instruction i belongs to b.
func (b *BasicBlock) Contains(i int) bool { return i >= b.First && i <= b.Last }

// Phis returns the registers that need a merge value at the entry of
// b, in increasing order.
func (b *BasicBlock) Phis() []int { return b.phis.AppendTo(nil) }

// HasPhi reports whether register r needs a merge value at the entry of b.
func (b *BasicBlock) HasPhi(r int) bool { return b.phis.Has(r) }

// Function is the block graph of a program.
type Function struct {
	Prog   *insn.Program
	Graph  *Graph
	Blocks []*BasicBlock // in leader order; Blocks[0] is the entry

	blockOf []*BasicBlock // indexed by instruction
	df      domFrontier
}

// Build recovers the complete control flow of prog: instruction
// graph, basic blocks, block graph, dominator tree, dominance
// frontiers and merge points.
func Build(prog *insn.Program) *Function {
	g := BuildGraph(prog)
	fn := &Function{
		Prog:   prog,
		Graph:  g,
		Blocks: Partition(prog, Leaders(prog)),
	}
	Link(fn.Blocks, g)
	fn.blockOf = make([]*BasicBlock, prog.Len())
	for _, b := range fn.Blocks {
		for i := b.First; i <= b.Last; i++ {
			fn.blockOf[i] = b
		}
	}
	if len(fn.Blocks) == 0 {
		return fn
	}
	buildDomTree(fn)
	fn.df = buildDomFrontier(fn)
	placePhis(fn)
	if debugBuild {
		fn.WriteTo(os.Stderr)
	}
	return fn
}

// Leaders returns the indices of the instructions that start a basic
// block, in increasing order. The first instruction, every jump
// target and every instruction following a jump are leaders.
func Leaders(prog *insn.Program) []int {
	n := prog.Len()
	if n == 0 {
		return nil
	}
	leader := make([]bool, n)
	leader[0] = true
	for i, ins := range prog.Instrs {
		if !ins.Op.IsJump() {
			continue
		}
		if t := ins.Target(); t >= 0 && t < n {
			leader[t] = true
		}
		if i+1 < n {
			leader[i+1] = true
		}
	}
	var out []int
	for i, ok := range leader {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// Partition carves prog into basic blocks, one per leader. Each block
// extends from its leader up to, but excluding, the next leader.
func Partition(prog *insn.Program, leaders []int) []*BasicBlock {
	blocks := make([]*BasicBlock, len(leaders))
	for i, first := range leaders {
		last := prog.Len() - 1
		if i+1 < len(leaders) {
			last = leaders[i+1] - 1
		}
		blocks[i] = &BasicBlock{
			Index:  i,
			First:  first,
			Last:   last,
			Instrs: prog.Instrs[first : last+1 : last+1],
		}
	}
	return blocks
}

// Link connects block A to block B if the last instruction of A has
// an edge to the first instruction of B in g. Blocks ending in exit
// have no successors.
func Link(blocks []*BasicBlock, g *Graph) {
	byFirst := make(map[int]*BasicBlock, len(blocks))
	for _, b := range blocks {
		byFirst[b.First] = b
		b.In = g.Preds[b.First]
		b.Out = g.Succs[b.Last]
	}
	for _, b := range blocks {
		if b.Instrs[len(b.Instrs)-1].IsTerminal() {
			continue
		}
		for _, s := range b.Out {
			succ, ok := byFirst[s]
			if !ok {
				continue
			}
			b.Succs = append(b.Succs, succ)
			succ.Preds = append(succ.Preds, b)
		}
	}
}

// Entry returns the entry block, or nil for an empty program.
func (fn *Function) Entry() *BasicBlock {
	if len(fn.Blocks) == 0 {
		return nil
	}
	return fn.Blocks[0]
}

// BlockOf returns the block containing instruction i.
func (fn *Function) BlockOf(i int) *BasicBlock { return fn.blockOf[i] }

// Leaders returns the first instruction of every block.
func (fn *Function) Leaders() []int {
	out := make([]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		out[i] = b.First
	}
	return out
}

// Frontier returns the dominance frontier of b.
func (fn *Function) Frontier(b *BasicBlock) []*BasicBlock {
	if fn.df == nil {
		return nil
	}
	return fn.df[b.Index]
}

// WriteTo writes a human-readable description of fn's blocks,
// dominators, frontiers and merge points to w.
func (fn *Function) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, b := range fn.Blocks {
		fmt.Fprintf(&buf, "%s [%d..%d]", b, b.First, b.Last)
		if idom := b.Idom(); idom != nil {
			fmt.Fprintf(&buf, " idom=%s", idom)
		}
		fmt.Fprintf(&buf, " preds=%v succs=%v frontier=%v", b.Preds, b.Succs, fn.Frontier(b))
		if phis := b.Phis(); len(phis) > 0 {
			fmt.Fprintf(&buf, " phis=%v", phis)
		}
		buf.WriteByte('\n')
		for _, ins := range b.Instrs {
			fmt.Fprintf(&buf, "\t%3d: %s\n", ins.Index, ins)
		}
	}
	return buf.WriteTo(w)
}

func (fn *Function) String() string {
	var buf bytes.Buffer
	fn.WriteTo(&buf)
	return buf.String()
}
