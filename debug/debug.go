// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debug renders the block graph and dominator tree of a
// program for inspection.
package debug

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"honnef.co/go/bpfcheck/ir"
)

// DomTreeText writes fn's dominator tree to w, one block per line,
// children indented below their immediate dominator.
func DomTreeText(w io.Writer, fn *ir.Function) error {
	var buf bytes.Buffer
	if entry := fn.Entry(); entry != nil {
		printDomTreeText(&buf, entry, 0)
	}
	_, err := buf.WriteTo(w)
	return err
}

func printDomTreeText(buf *bytes.Buffer, v *ir.BasicBlock, indent int) {
	fmt.Fprintf(buf, "%*s%s\n", 4*indent, "", v)
	for _, child := range v.Dominees() {
		printDomTreeText(buf, child, indent+1)
	}
}

// DomTreeDot writes the dominator tree of fn in Graphviz format. Tree
// edges are solid, block graph edges dotted.
func DomTreeDot(w io.Writer, fn *ir.Function) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "digraph domtree {")
	for _, b := range fn.Blocks {
		fmt.Fprintf(&buf, "\tn%d [label=\"%s [%d..%d]\",shape=\"rectangle\"];\n", b.Index, b, b.First, b.Last)
		if idom := b.Idom(); idom != nil {
			fmt.Fprintf(&buf, "\tn%d -> n%d [style=\"solid\",weight=100];\n", idom.Index, b.Index)
		}
		for _, pred := range b.Preds {
			fmt.Fprintf(&buf, "\tn%d -> n%d [style=\"dotted\",weight=0];\n", pred.Index, b.Index)
		}
	}
	fmt.Fprintln(&buf, "}")
	_, err := buf.WriteTo(w)
	return err
}

// CFGDot writes fn's block graph in Graphviz format. Every node lists
// the block's instructions and the registers merged at its entry.
func CFGDot(w io.Writer, fn *ir.Function) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "digraph cfg {")
	fmt.Fprintln(&buf, "\tnode [shape=\"box\",fontname=\"monospace\"];")
	for _, b := range fn.Blocks {
		var label strings.Builder
		fmt.Fprintf(&label, "%s\\l", b)
		for _, r := range b.Phis() {
			fmt.Fprintf(&label, "r%d = phi\\l", r)
		}
		for _, ins := range b.Instrs {
			fmt.Fprintf(&label, "%d: %s\\l", ins.Index, escape(ins.String()))
		}
		fmt.Fprintf(&buf, "\tn%d [label=\"%s\"];\n", b.Index, label.String())
		for i, succ := range b.Succs {
			// A conditional jump's first successor is its fall-through.
			attr := ""
			if len(b.Succs) == 2 {
				if i == 0 {
					attr = " [label=\"F\"]"
				} else {
					attr = " [label=\"T\"]"
				}
			}
			fmt.Fprintf(&buf, "\tn%d -> n%d%s;\n", b.Index, succ.Index, attr)
		}
	}
	fmt.Fprintln(&buf, "}")
	_, err := buf.WriteTo(w)
	return err
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
