// Package smt models quantifier-free formulas over booleans and
// fixed-width bit-vectors, and the boundary to the solvers that decide
// them.
//
// Formulas are immutable trees of Values. They render as SMT-LIB2
// terms, so that any SMT-LIB2 solver can consume them, and they can be
// evaluated directly under a Model.
package smt

import (
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// Sort is the type of a Value: either Bool (Bits == 0) or a bit-vector
// of Bits bits.
type Sort struct {
	Bits int
}

var Bool = Sort{}

func BitVec(bits int) Sort {
	if bits <= 0 || bits > 64 {
		panic(fmt.Sprintf("unsupported bit-vector width %d", bits))
	}
	return Sort{Bits: bits}
}

func (s Sort) IsBool() bool { return s.Bits == 0 }

func (s Sort) String() string {
	if s.IsBool() {
		return "Bool"
	}
	return fmt.Sprintf("(_ BitVec %d)", s.Bits)
}

type Value interface {
	Sort() Sort
	String() string
}

type value struct {
	typ Sort
}

func (v value) Sort() Sort {
	return v.typ
}

// A Var is a free variable. Variables are identified by name; two
// variables with the same name must have the same sort.
type Var struct {
	value
	Name string
}

func NewVar(name string, s Sort) Var {
	return Var{value{s}, name}
}

func (v Var) String() string {
	return symbol(v.Name)
}

// A Const is a boolean (0 or 1) or bit-vector constant.
type Const struct {
	value
	Bits uint64
}

var (
	True  = Const{value{Bool}, 1}
	False = Const{value{Bool}, 0}
)

// BVConst returns the bit-vector constant of the given width holding
// the two's complement representation of v, truncated to bits bits.
func BVConst[T constraints.Integer](v T, bits int) Const {
	return Const{value{BitVec(bits)}, uint64(v) & Mask(bits)}
}

func (k Const) String() string {
	if k.typ.IsBool() {
		if k.Bits != 0 {
			return "true"
		}
		return "false"
	}
	return fmt.Sprintf("#b%0*b", k.typ.Bits, k.Bits)
}

// Sexp is the application of a Verb to its operands. Indexed verbs
// (extract, zero_extend, sign_extend) carry their indices in Params.
type Sexp struct {
	value
	Verb   Verb
	Params []int
	In     []Value
}

func (s *Sexp) String() string {
	args := make([]string, len(s.In))
	for i, in := range s.In {
		args[i] = in.String()
	}
	head := s.Verb.String()
	if len(s.Params) > 0 {
		params := make([]string, len(s.Params))
		for i, p := range s.Params {
			params[i] = fmt.Sprint(p)
		}
		head = fmt.Sprintf("(_ %s %s)", head, strings.Join(params, " "))
	}
	return fmt.Sprintf("(%s %s)", head, strings.Join(args, " "))
}

type Verb int

var verbs = map[Verb]string{
	VerbAnd:        "and",
	VerbOr:         "or",
	VerbNot:        "not",
	VerbImplies:    "=>",
	VerbEqual:      "=",
	VerbDistinct:   "distinct",
	VerbIte:        "ite",
	VerbBvadd:      "bvadd",
	VerbBvult:      "bvult",
	VerbBvule:      "bvule",
	VerbBvugt:      "bvugt",
	VerbBvuge:      "bvuge",
	VerbBvslt:      "bvslt",
	VerbBvsle:      "bvsle",
	VerbBvsgt:      "bvsgt",
	VerbBvsge:      "bvsge",
	VerbExtract:    "extract",
	VerbZeroExtend: "zero_extend",
	VerbSignExtend: "sign_extend",
}

func (v Verb) String() string {
	return verbs[v]
}

const (
	VerbAnd Verb = iota
	VerbOr
	VerbNot
	VerbImplies
	VerbEqual
	VerbDistinct
	VerbIte
	VerbBvadd
	VerbBvult
	VerbBvule
	VerbBvugt
	VerbBvuge
	VerbBvslt
	VerbBvsle
	VerbBvsgt
	VerbBvsge
	VerbExtract
	VerbZeroExtend
	VerbSignExtend
)

// Mask returns a mask of the low bits bits.
func Mask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<bits - 1
}

// Signed interprets the low bits bits of v as a two's complement integer.
func Signed(v uint64, bits int) int64 {
	v &= Mask(bits)
	if bits < 64 && v&(uint64(1)<<(bits-1)) != 0 {
		v |= ^Mask(bits)
	}
	return int64(v)
}

// symbol renders name as an SMT-LIB2 symbol, quoting it if necessary.
func symbol(name string) string {
	if name == "" {
		return "||"
	}
	simple := name[0] < '0' || name[0] > '9'
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("~!@$%^&*_-+=<>.?/", r):
		default:
			simple = false
		}
	}
	if simple {
		return name
	}
	return "|" + strings.ReplaceAll(name, "|", "") + "|"
}
