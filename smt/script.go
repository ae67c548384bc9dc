package smt

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Vars returns the free variables of fs, sorted by name. It is an
// error for two variables with the same name to have different sorts.
func Vars(fs []Value) ([]Var, error) {
	vars := map[string]Var{}
	seen := map[*Sexp]struct{}{}
	var err error
	var walk func(v Value)
	walk = func(v Value) {
		switch v := v.(type) {
		case Var:
			if old, ok := vars[v.Name]; ok && old.typ != v.typ {
				if err == nil {
					err = fmt.Errorf("variable %s used with sorts %s and %s", v, old.typ, v.typ)
				}
				return
			}
			vars[v.Name] = v
		case *Sexp:
			if _, ok := seen[v]; ok {
				return
			}
			seen[v] = struct{}{}
			for _, in := range v.In {
				walk(in)
			}
		}
	}
	for _, f := range fs {
		walk(f)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Var, 0, len(vars))
	for _, v := range vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type ScriptOptions struct {
	// Timeout, if nonzero, is emitted as the solver's :timeout option.
	Timeout time.Duration
	// Values requests the values of all variables after a satisfiable
	// check-sat.
	Values bool
}

// WriteScript writes an SMT-LIB2 script to w that declares the free
// variables of fs, asserts every element of fs and checks
// satisfiability. It returns the declared variables.
func WriteScript(w io.Writer, fs []Value, opts ScriptOptions) ([]Var, error) {
	vars, err := Vars(fs)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(w)
	if opts.Values {
		fmt.Fprintln(bw, "(set-option :produce-models true)")
	}
	if opts.Timeout > 0 {
		fmt.Fprintf(bw, "(set-option :timeout %d)\n", opts.Timeout.Milliseconds())
	}
	fmt.Fprintln(bw, "(set-logic QF_BV)")
	for _, v := range vars {
		fmt.Fprintf(bw, "(declare-const %s %s)\n", v, v.typ)
	}
	for _, f := range fs {
		if !f.Sort().IsBool() {
			return nil, fmt.Errorf("assertion %s has sort %s", f, f.Sort())
		}
		fmt.Fprintf(bw, "(assert %s)\n", f)
	}
	fmt.Fprintln(bw, "(check-sat)")
	if opts.Values && len(vars) > 0 {
		names := make([]string, len(vars))
		for i, v := range vars {
			names[i] = v.String()
		}
		fmt.Fprintf(bw, "(get-value (%s))\n", strings.Join(names, " "))
	}
	return vars, bw.Flush()
}

// Script returns the script WriteScript would write, without values.
func Script(fs []Value) string {
	var sb strings.Builder
	if _, err := WriteScript(&sb, fs, ScriptOptions{}); err != nil {
		return fmt.Sprintf("; %s\n", err)
	}
	return sb.String()
}
