// Package compile is the bytecode writer: it lowers a parsed and
// scheduled ast.Program into a bytecode.Program, one register per
// declared variable, one instruction per equation, in schedule order.
//
// Every width, range and declaration invariant is guaranteed to already
// hold by the time a Program reaches here, since the parser rejected
// anything that would violate one. Accordingly this package never
// returns a diag.Diagnostic. It panics on the violations it meets while
// lowering (a scheduled variable without an equation, a reference to an
// undeclared variable, an unknown expression node); widths, SELECT/SLICE
// ranges and literal sizes are not re-checked here. This is the same
// posture db47h-hwsim's PartSpec.NewPart
// takes for malformed input that is contractually guaranteed not to
// occur (parse.go's own caller has already validated its connection
// string grammar).
package compile

import (
	"fmt"

	"github.com/desfreng/netlist/ast"
	"github.com/desfreng/netlist/bytecode"
)

// constKey identifies a literal operand for deduplication: two literals
// with the same bit pattern but different declared widths are distinct
// registers, since a narrower width could later be the target of a
// different invariant check.
type constKey struct {
	value uint64
	width int
}

type writer struct {
	prog     *bytecode.Program
	varReg   map[string]bytecode.RegIndex
	consts   map[constKey]bytecode.RegIndex
	constNum int
}

// Compile lowers prog (whose equations must already be listed in
// dependency order by package scheduler) into a bytecode.Program.
func Compile(prog *ast.Program, order []string) *bytecode.Program {
	w := &writer{
		prog:   &bytecode.Program{},
		varReg: make(map[string]bytecode.RegIndex, len(prog.VarOrder)),
		consts: make(map[constKey]bytecode.RegIndex),
	}

	for _, name := range prog.VarOrder {
		decl := prog.Vars[name]
		var flags bytecode.RegFlag
		if decl.IsInput {
			flags |= bytecode.FlagInput
		}
		if decl.IsOutput {
			flags |= bytecode.FlagOutput
		}
		w.varReg[name] = w.prog.AddRegister(name, uint8(decl.Width), flags)
	}

	for _, name := range order {
		eq, ok := prog.Equations[name]
		if !ok {
			panic("compile: scheduled variable " + name + " has no equation")
		}
		w.emit(w.varReg[name], eq.Expr)
	}

	return w.prog
}

// reg resolves an Arg to a register: a direct lookup for a variable
// reference, or a (possibly newly materialized) constant register for a
// literal.
func (w *writer) reg(a ast.Arg) bytecode.RegIndex {
	if !a.IsConst {
		r, ok := w.varReg[a.Name]
		if !ok {
			panic("compile: reference to undeclared variable " + a.Name)
		}
		return r
	}
	key := constKey{value: a.Value, width: a.Width}
	if r, ok := w.consts[key]; ok {
		return r
	}
	name := fmt.Sprintf("_const%d", w.constNum)
	w.constNum++
	r := w.prog.AddRegister(name, uint8(a.Width), 0)
	w.prog.EmitConst(r, a.Value)
	w.consts[key] = r
	return r
}

func (w *writer) emit(out bytecode.RegIndex, e ast.Expr) {
	switch n := e.(type) {
	case *ast.Ref:
		if n.Arg.IsConst {
			w.prog.EmitConst(out, n.Arg.Value)
			return
		}
		// No dedicated copy opcode exists; OR'ing a register with itself is
		// the identity, so it doubles as the pass-through move.
		src := w.reg(n.Arg)
		w.prog.EmitBinary(bytecode.OR, out, src, src)

	case *ast.Not:
		w.prog.EmitNot(out, w.reg(n.X))

	case *ast.Binary:
		w.prog.EmitBinary(binOpcode(n.Op), out, w.reg(n.L), w.reg(n.R))

	case *ast.Mux:
		w.prog.EmitMux(out, w.reg(n.Choice), w.reg(n.A), w.reg(n.B))

	case *ast.Concat:
		w.prog.EmitBinary(bytecode.CONCAT, out, w.reg(n.L), w.reg(n.R))

	case *ast.Select:
		w.prog.EmitSelect(out, w.reg(n.X), n.Index)

	case *ast.Slice:
		w.prog.EmitSlice(out, w.reg(n.X), n.First, n.End)

	case *ast.Reg:
		in, ok := w.varReg[n.Name]
		if !ok {
			panic("compile: REG of undeclared variable " + n.Name)
		}
		w.prog.EmitReg(out, in)

	case *ast.Rom:
		mem := w.prog.AddMemory(uint8(n.AddrSize), uint8(n.WordSize), out, false)
		w.prog.EmitRom(out, w.reg(n.ReadAddr), mem)

	case *ast.Ram:
		mem := w.prog.AddMemory(uint8(n.AddrSize), uint8(n.WordSize), out, true)
		w.prog.EmitRam(out, w.reg(n.ReadAddr), w.reg(n.WriteEnable), w.reg(n.WriteAddr), w.reg(n.WriteData), mem)

	default:
		panic("compile: unhandled expression node")
	}
}

func binOpcode(op ast.BinOp) bytecode.Opcode {
	switch op {
	case ast.AND:
		return bytecode.AND
	case ast.NAND:
		return bytecode.NAND
	case ast.OR:
		return bytecode.OR
	case ast.NOR:
		return bytecode.NOR
	case ast.XOR:
		return bytecode.XOR
	case ast.XNOR:
		return bytecode.XNOR
	default:
		panic("compile: unknown binary operator")
	}
}
