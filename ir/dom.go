// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// This file defines algorithms related to dominance.

// Dominator tree construction ----------------------------------------
//
// We use the iterative algorithm described in Cooper, Harvey,
// Kennedy. 2001. A Simple, Fast Dominance Algorithm. Block graphs of
// checked programs are small and acyclic, so the fixed point is
// reached after a single pass over the reverse postorder.

import (
	"fmt"
	"math/big"
)

// Idom returns the block that immediately dominates b:
// its parent in the dominator tree, if any.
// The entry block and unreachable blocks do not have a parent.
func (b *BasicBlock) Idom() *BasicBlock { return b.dom.idom }

// Dominees returns the list of blocks that b immediately dominates:
// its children in the dominator tree.
func (b *BasicBlock) Dominees() []*BasicBlock { return b.dom.children }

// Reachable reports whether b is reachable from the entry block.
func (b *BasicBlock) Reachable() bool { return b.dom.reachable }

// Dominates reports whether b dominates c. Unreachable blocks neither
// dominate nor are dominated by any block.
func (b *BasicBlock) Dominates(c *BasicBlock) bool {
	if !b.dom.reachable || !c.dom.reachable {
		return false
	}
	return b.dom.pre <= c.dom.pre && c.dom.post <= b.dom.post
}

// Dominators returns the blocks that dominate b, starting with the
// entry block and ending with b itself.
func (b *BasicBlock) Dominators() []*BasicBlock {
	if !b.dom.reachable {
		return nil
	}
	var out []*BasicBlock
	for d := b; d != nil; d = d.dom.idom {
		out = append(out, d)
	}
	for i := 0; i < len(out)/2; i++ {
		o := len(out) - i - 1
		out[i], out[o] = out[o], out[i]
	}
	return out
}

// domInfo contains a BasicBlock's dominance information.
type domInfo struct {
	idom      *BasicBlock   // immediate dominator (parent in domtree)
	children  []*BasicBlock // nodes immediately dominated by this one
	pre, post int32         // pre- and post-order numbering within domtree
	reachable bool
}

// buildDomTree computes the dominator tree of fn using the
// Cooper-Harvey-Kennedy algorithm.
func buildDomTree(fn *Function) {
	for _, b := range fn.Blocks {
		b.dom = domInfo{}
	}

	idoms := make([]*BasicBlock, len(fn.Blocks))
	post := make([]int, len(fn.Blocks))

	order := make([]*BasicBlock, 0, len(fn.Blocks))
	var seen BlockSet
	var dfs func(b *BasicBlock)
	dfs = func(b *BasicBlock) {
		if !seen.Add(b) {
			return
		}
		b.dom.reachable = true
		for _, succ := range b.Succs {
			dfs(succ)
		}
		order = append(order, b)
		post[b.Index] = len(order) - 1
	}
	entry := fn.Blocks[0]
	dfs(entry)

	for i := 0; i < len(order)/2; i++ {
		o := len(order) - i - 1
		order[i], order[o] = order[o], order[i]
	}

	idoms[entry.Index] = entry
	changed := true
	for changed {
		changed = false
		// iterate over all nodes in reverse postorder, except for the
		// entry node
		for _, b := range order[1:] {
			var newIdom *BasicBlock
			for _, p := range b.Preds {
				if idoms[p.Index] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					finger1 := p
					finger2 := newIdom
					for finger1 != finger2 {
						for post[finger1.Index] < post[finger2.Index] {
							finger1 = idoms[finger1.Index]
						}
						for post[finger2.Index] < post[finger1.Index] {
							finger2 = idoms[finger2.Index]
						}
					}
					newIdom = finger1
				}
			}

			if idoms[b.Index] != newIdom {
				idoms[b.Index] = newIdom
				changed = true
			}
		}
	}

	for i, b := range idoms {
		if b == nil || i == b.Index {
			continue
		}
		fn.Blocks[i].dom.idom = b
		b.dom.children = append(b.dom.children, fn.Blocks[i])
	}

	numberDomTree(entry, 0, 0)
}

// numberDomTree sets the pre- and post-order numbers of a depth-first
// traversal of the dominator tree rooted at v.  These are used to
// answer dominance queries in constant time.
func numberDomTree(v *BasicBlock, pre, post int32) (int32, int32) {
	v.dom.pre = pre
	pre++
	for _, child := range v.dom.children {
		pre, post = numberDomTree(child, pre, post)
	}
	v.dom.post = post
	post++
	return pre, post
}

// domFrontier maps each block to the set of blocks in its dominance
// frontier.  The outer slice is conceptually a map keyed by
// Block.Index.  The inner slice is a set, in insertion order.
type domFrontier [][]*BasicBlock

func (df domFrontier) add(u, v *BasicBlock) {
	for _, w := range df[u.Index] {
		if w == v {
			return
		}
	}
	df[u.Index] = append(df[u.Index], v)
}

// build builds the dominance frontier df for the dominator tree of
// fn, using the algorithm found in A Simple, Fast Dominance
// Algorithm, Figure 5.
//
// A block D is in the frontier of N iff N dominates a predecessor of
// D but does not strictly dominate D. Only join points (blocks with
// two or more predecessors) can be in any frontier; walking up the
// dominator tree from each predecessor until reaching the join
// point's immediate dominator visits exactly the blocks whose
// frontier contains it.
func (df domFrontier) build(fn *Function) {
	for _, b := range fn.Blocks {
		if len(b.Preds) < 2 || !b.dom.reachable {
			continue
		}
		for _, p := range b.Preds {
			if !p.dom.reachable {
				continue
			}
			runner := p
			for runner != b.dom.idom {
				df.add(runner, b)
				runner = runner.dom.idom
			}
		}
	}
}

func buildDomFrontier(fn *Function) domFrontier {
	df := make(domFrontier, len(fn.Blocks))
	df.build(fn)
	return df
}

// Testing utilities ----------------------------------------

// SanityCheck checks the correctness of the dominator tree computed
// by the CHK algorithm by comparing against the dominance relation
// computed by a naive Kildall-style forward dataflow analysis
// (Algorithm 10.16 from the "Dragon" book), and checks the dominance
// frontier against its definition.
func SanityCheck(fn *Function) error {
	n := len(fn.Blocks)
	if n == 0 {
		return nil
	}

	// D[i] is the set of blocks that dominate fn.Blocks[i],
	// represented as a bit-set of block indices.
	D := make([]big.Int, n)

	one := big.NewInt(1)

	// all is the set of all reachable blocks; constant.
	var all big.Int
	for _, b := range fn.Blocks {
		if b.dom.reachable {
			all.SetBit(&all, b.Index, 1)
		}
	}

	// Initialization.
	for i := range fn.Blocks {
		if i == 0 {
			// A root is dominated only by itself.
			D[i].Set(one)
		} else {
			// All other blocks are (initially) dominated
			// by every block.
			D[i].Set(&all)
		}
	}

	// Iteration until fixed point.
	for changed := true; changed; {
		changed = false
		for i, b := range fn.Blocks {
			if i == 0 || !b.dom.reachable {
				continue
			}
			// Compute intersection across predecessors.
			var x big.Int
			x.Set(&all)
			for _, pred := range b.Preds {
				if pred.dom.reachable {
					x.And(&x, &D[pred.Index])
				}
			}
			x.SetBit(&x, i, 1) // a block always dominates itself.
			if D[i].Cmp(&x) != 0 {
				D[i].Set(&x)
				changed = true
			}
		}
	}

	// Check the entire relation.  O(n^2).
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			b, c := fn.Blocks[i], fn.Blocks[j]
			if !b.dom.reachable || !c.dom.reachable {
				if b.Dominates(c) {
					return fmt.Errorf("dominates(%s, %s) for unreachable block", b, c)
				}
				continue
			}
			actual := b.Dominates(c)
			expected := D[j].Bit(i) == 1
			if actual != expected {
				return fmt.Errorf("dominates(%s, %s)==%t, want %t", b, c, actual, expected)
			}
		}
	}

	// Check the frontier against its definition.
	for _, d := range fn.Blocks {
		for _, x := range fn.Blocks {
			want := false
			if d.dom.reachable && x.dom.reachable {
				for _, p := range x.Preds {
					if d.Dominates(p) && (d == x || !d.Dominates(x)) {
						want = true
					}
				}
			}
			got := false
			for _, y := range fn.Frontier(d) {
				if y == x {
					got = true
				}
			}
			if got != want {
				return fmt.Errorf("%s in frontier of %s: %t, want %t", x, d, got, want)
			}
		}
	}
	return nil
}
