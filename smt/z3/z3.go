// Package z3 implements smt.Solver by running the z3 binary on
// SMT-LIB2 scripts.
package z3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"honnef.co/go/bpfcheck/smt"
)

// If true, log every script sent to z3 and its reply.
const debugZ3 = false

type Solver struct {
	// Path is the z3 executable. If empty, "z3" is looked up in PATH.
	Path string
	// Timeout bounds every query inside z3. Zero means no limit.
	Timeout time.Duration
}

var _ smt.Solver = (*Solver)(nil)

func (s *Solver) path() string {
	if s.Path == "" {
		return "z3"
	}
	return s.Path
}

// Available reports whether the z3 executable can be found.
func (s *Solver) Available() bool {
	_, err := exec.LookPath(s.path())
	return err == nil
}

func (s *Solver) Check(ctx context.Context, assertions []smt.Value) (smt.Result, error) {
	var script bytes.Buffer
	vars, err := smt.WriteScript(&script, assertions, smt.ScriptOptions{Timeout: s.Timeout, Values: true})
	if err != nil {
		return smt.Result{}, err
	}
	if debugZ3 {
		log.Printf("z3 <<<\n%s", script.String())
	}

	cmd := exec.CommandContext(ctx, s.path(), "-in", "-smt2")
	cmd.Stdin = &script
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return smt.Result{}, ctx.Err()
	}
	if debugZ3 {
		log.Printf("z3 >>>\n%s", stdout.String())
	}

	res, err := ParseOutput(stdout.Bytes(), vars)
	if err != nil {
		if runErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(runErr, &exitErr) {
				return smt.Result{}, fmt.Errorf("running z3: %w", runErr)
			}
			return smt.Result{}, fmt.Errorf("z3 failed: %w (stderr: %q)", err, strings.TrimSpace(stderr.String()))
		}
		return smt.Result{}, err
	}
	if res.Status == smt.Unknown {
		return res, smt.ErrUnknown
	}
	return res, nil
}

// ParseOutput parses z3's reply to a script written by
// smt.WriteScript with values requested. vars are the script's
// declared variables; the model assigns every one of them.
func ParseOutput(out []byte, vars []smt.Var) (smt.Result, error) {
	toks := tokenize(string(out))
	if len(toks) == 0 {
		return smt.Result{}, errors.New("no output from z3")
	}
	var res smt.Result
	switch toks[0] {
	case "sat":
		res.Status = smt.Sat
	case "unsat":
		return smt.Result{Status: smt.Unsat}, nil
	case "unknown", "timeout":
		return smt.Result{Status: smt.Unknown}, nil
	case "(":
		return smt.Result{}, fmt.Errorf("z3 reported %s", strings.Join(toks, " "))
	default:
		return smt.Result{}, fmt.Errorf("unexpected z3 status %q", toks[0])
	}

	res.Model = smt.Model{}
	if len(vars) == 0 {
		return res, nil
	}
	p := &parser{toks: toks[1:]}
	list, err := p.sexp()
	if err != nil {
		return smt.Result{}, fmt.Errorf("parsing z3 model: %w", err)
	}
	pairs, ok := list.([]any)
	if !ok {
		return smt.Result{}, fmt.Errorf("parsing z3 model: expected list, got %v", list)
	}
	for _, pair := range pairs {
		kv, ok := pair.([]any)
		if !ok || len(kv) != 2 {
			return smt.Result{}, fmt.Errorf("parsing z3 model: malformed binding %v", pair)
		}
		name, ok := kv[0].(string)
		if !ok {
			return smt.Result{}, fmt.Errorf("parsing z3 model: malformed name %v", kv[0])
		}
		v, err := parseValue(kv[1])
		if err != nil {
			return smt.Result{}, fmt.Errorf("parsing z3 model: value of %s: %w", name, err)
		}
		res.Model[unquote(name)] = v
	}
	for _, v := range vars {
		if _, ok := res.Model[v.Name]; !ok {
			return smt.Result{}, fmt.Errorf("z3 model has no value for %s", v)
		}
	}
	return res, nil
}

func unquote(sym string) string {
	if len(sym) >= 2 && sym[0] == '|' && sym[len(sym)-1] == '|' {
		return sym[1 : len(sym)-1]
	}
	return sym
}

func parseValue(v any) (uint64, error) {
	switch v := v.(type) {
	case string:
		switch {
		case v == "true":
			return 1, nil
		case v == "false":
			return 0, nil
		case strings.HasPrefix(v, "#x"):
			return strconv.ParseUint(v[2:], 16, 64)
		case strings.HasPrefix(v, "#b"):
			return strconv.ParseUint(v[2:], 2, 64)
		}
	case []any:
		// (_ bvN W)
		if len(v) == 3 && v[0] == "_" {
			if s, ok := v[1].(string); ok && strings.HasPrefix(s, "bv") {
				return strconv.ParseUint(s[2:], 10, 64)
			}
		}
	}
	return 0, fmt.Errorf("unsupported value %v", v)
}

// tokenize splits SMT-LIB2 output into parentheses and atoms. Quoted
// symbols and string literals are kept whole.
func tokenize(s string) []string {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')':
			toks = append(toks, s[i:i+1])
			i++
		case c == '|' || c == '"':
			j := strings.IndexByte(s[i+1:], c)
			if j < 0 {
				toks = append(toks, s[i:])
				return toks
			}
			toks = append(toks, s[i:i+j+2])
			i += j + 2
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t\r\n()", rune(s[j])) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

type parser struct {
	toks []string
}

// sexp parses one s-expression into a string atom or a []any list.
func (p *parser) sexp() (any, error) {
	if len(p.toks) == 0 {
		return nil, errors.New("unexpected end of output")
	}
	tok := p.toks[0]
	p.toks = p.toks[1:]
	switch tok {
	case ")":
		return nil, errors.New("unexpected )")
	case "(":
		list := []any{}
		for {
			if len(p.toks) == 0 {
				return nil, errors.New("unterminated list")
			}
			if p.toks[0] == ")" {
				p.toks = p.toks[1:]
				return list, nil
			}
			x, err := p.sexp()
			if err != nil {
				return nil, err
			}
			list = append(list, x)
		}
	default:
		return tok, nil
	}
}
