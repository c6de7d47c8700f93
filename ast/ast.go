// Package ast defines the intermediate representation produced by the
// parser: one declared variable per bus, and at most one equation per
// non-input variable. This is the shape the scheduler and bytecode
// writer consume; it is never exposed past scheduling.
//
// The equation shapes mirror original_source/src/program.hpp's
// Instruction subclasses (ConstInstruction, NotInstruction, ...) one for
// one; we keep them as a closed set of Go structs implementing a single
// marker interface (Expr) rather than a virtual-dispatch class hierarchy,
// trading the original's polymorphism for plain tagged variants.
package ast

import "github.com/desfreng/netlist/token"

// BinOp identifies a two-input bitwise gate.
type BinOp int

const (
	AND BinOp = iota
	NAND
	OR
	NOR
	XOR
	XNOR
)

func (op BinOp) String() string {
	switch op {
	case AND:
		return "AND"
	case NAND:
		return "NAND"
	case OR:
		return "OR"
	case NOR:
		return "NOR"
	case XOR:
		return "XOR"
	case XNOR:
		return "XNOR"
	default:
		return "?"
	}
}

// Arg is a leaf operand: either a reference to a declared variable or an
// immediate constant. Exactly one of the two forms applies, selected by
// IsConst.
type Arg struct {
	Pos     token.Pos
	IsConst bool

	// valid when IsConst
	Value uint64
	// Width is set for both forms: the literal's width (explicit ":N" or
	// implied by its digit count) for a constant, the declared width of
	// the referenced variable otherwise.
	Width int

	// valid when !IsConst
	Name string
}

// Expr is the right-hand side of an equation. It is implemented by exactly
// the structs below, one per netlist operator (plus Ref for a bare
// "var = arg" equation).
type Expr interface {
	exprNode()
}

// Ref is a bare "var = arg" equation: a pass-through of another variable
// or of a literal constant.
type Ref struct {
	Pos token.Pos
	Arg Arg
}

// Not is "var = NOT arg".
type Not struct {
	Pos token.Pos
	X   Arg
}

// Binary is "var = <op> lhs rhs" for the six bitwise two-input gates.
type Binary struct {
	Pos     token.Pos
	Op      BinOp
	L, R    Arg
}

// Mux is "var = MUX choice a b". By convention here, choice = 1
// selects B, choice = 0 selects A.
type Mux struct {
	Pos           token.Pos
	Choice, A, B  Arg
}

// Concat is "var = CONCAT lhs rhs"; lhs occupies the low bits of the
// result.
type Concat struct {
	Pos  token.Pos
	L, R Arg
}

// Select is "var = SELECT i arg": extracts bit i of arg.
type Select struct {
	Pos   token.Pos
	Index int
	X     Arg
}

// Slice is "var = SLICE first end arg": extracts bits [first..end].
type Slice struct {
	Pos         token.Pos
	First, End  int
	X           Arg
}

// Reg is "var = REG ident": a one-cycle delayed reference. Its argument
// must be a variable; the grammar already enforces this (the REG
// production takes an IDENT, not an arg).
type Reg struct {
	Pos  token.Pos
	Name string
}

// Rom is "var = ROM addr_size word_size read_addr".
type Rom struct {
	Pos                 token.Pos
	AddrSize, WordSize   int
	ReadAddr             Arg
}

// Ram is "var = RAM addr_size word_size read_addr we write_addr write_data".
type Ram struct {
	Pos                             token.Pos
	AddrSize, WordSize              int
	ReadAddr, WriteEnable           Arg
	WriteAddr, WriteData            Arg
}

func (*Ref) exprNode()    {}
func (*Not) exprNode()    {}
func (*Binary) exprNode() {}
func (*Mux) exprNode()    {}
func (*Concat) exprNode() {}
func (*Select) exprNode() {}
func (*Slice) exprNode()  {}
func (*Reg) exprNode()    {}
func (*Rom) exprNode()    {}
func (*Ram) exprNode()    {}

// VarDecl is one entry of the netlist's VAR section, plus whether it was
// also listed as an INPUT and/or OUTPUT.
type VarDecl struct {
	Name     string
	Width    int
	Pos      token.Pos
	IsInput  bool
	IsOutput bool
}

// Equation binds a declared, non-input variable to its defining
// expression.
type Equation struct {
	Var  string
	Expr Expr
	Pos  token.Pos
}

// Program is the parsed, not-yet-scheduled netlist: the VAR declarations
// in source order plus one Equation per non-input variable.
type Program struct {
	Inputs  []string
	Outputs []string

	// VarOrder preserves VAR-section declaration order; the scheduler
	// ties-breaks on it for reproducible schedules.
	VarOrder []string
	Vars     map[string]*VarDecl

	// Equations indexes by Equation.Var; a variable present in Vars but
	// absent here (and not an input) is a missing-equation error,
	// already rejected by the parser.
	Equations map[string]*Equation
}

// NewProgram returns an empty Program ready to be filled in by the
// parser.
func NewProgram() *Program {
	return &Program{
		Vars:      make(map[string]*VarDecl),
		Equations: make(map[string]*Equation),
	}
}
