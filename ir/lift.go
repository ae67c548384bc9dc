// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// This file places merge (φ) points for registers.
//
// Cited papers and resources:
//
// Ron Cytron et al. 1991. Efficiently computing SSA form...
// http://doi.acm.org/10.1145/115372.115320
//
// Cooper, Harvey, Kennedy.  2001.  A Simple, Fast Dominance Algorithm.
// Software Practice and Experience 2001, 4:1-10.
// http://www.hipersoft.rice.edu/grads/publications/dom14.pdf

import (
	"fmt"
	"math/big"
	"os"
	"sort"
)

// If true, show diagnostic information at each step of φ placement.
// Very verbose.
const debugLifting = false

// BlockSet is a set of blocks, represented by their indices.
type BlockSet struct{ big.Int } // (inherit methods from Int)

// Add adds b to the set and returns true if the set changed.
func (s *BlockSet) Add(b *BasicBlock) bool {
	i := b.Index
	if s.Bit(i) != 0 {
		return false
	}
	s.SetBit(&s.Int, i, 1)
	return true
}

func (s *BlockSet) Has(b *BasicBlock) bool {
	return s.Bit(b.Index) == 1
}

// Take removes an arbitrary element from a set s and
// returns its index, or returns -1 if empty.
func (s *BlockSet) Take() int {
	l := s.BitLen()
	for i := 0; i < l; i++ {
		if s.Bit(i) == 1 {
			s.SetBit(&s.Int, i, 0)
			return i
		}
	}
	return -1
}

// defBlocks returns, for every register assigned anywhere in fn, the
// set of blocks containing an assignment to it.
func defBlocks(fn *Function) map[int]*BlockSet {
	defs := map[int]*BlockSet{}
	for _, b := range fn.Blocks {
		for _, instr := range b.Instrs {
			r, ok := instr.Defines()
			if !ok {
				continue
			}
			s := defs[r]
			if s == nil {
				s = new(BlockSet)
				defs[r] = s
			}
			s.Add(b)
		}
	}
	return defs
}

// placePhis records, for every register, the blocks that need a
// merge value for it at entry.
//
// What follows is the insert-φ function described by Cytron et al:
// for every register, the work-list starts out as the blocks that
// assign the register. Each block taken from the work-list places a
// φ in every block of its dominance frontier that doesn't have one
// yet, and a block receiving a φ is itself a new definition and
// joins the work-list unless it was visited before. Each block gets
// at most one φ per register, which bounds the work-list.
func placePhis(fn *Function) {
	defs := defBlocks(fn)
	regs := make([]int, 0, len(defs))
	for r := range defs {
		regs = append(regs, r)
	}
	sort.Ints(regs)

	for _, r := range regs {
		var Aphi BlockSet
		var visited BlockSet
		var W BlockSet
		visited.Set(&defs[r].Int)
		W.Set(&defs[r].Int)

		for i := W.Take(); i != -1; i = W.Take() {
			n := fn.Blocks[i]
			for _, y := range fn.df[n.Index] {
				if Aphi.Add(y) {
					if debugLifting {
						fmt.Fprintf(os.Stderr, "\tplace φ(r%d) at %s (frontier of %s)\n", r, y, n)
					}
					y.phis.Insert(r)
					if visited.Add(y) {
						W.Add(y)
					}
				}
			}
		}
	}
}
