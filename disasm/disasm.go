// Package disasm turns a bytecode.Program back into netlist surface
// syntax: an INPUT/OUTPUT/VAR header followed by one equation per
// instruction, in bytecode order.
//
// This is the Go counterpart of original_source/src/program.hpp's
// Disassembler/Printer visitor, rewritten as a single type switch over
// bytecode.Instr (the "visitor polymorphism -> tagged variants" move
// applied uniformly across this codebase) instead of one virtual method
// override per instruction subclass.
package disasm

import (
	"fmt"
	"strings"

	"github.com/desfreng/netlist/bytecode"
)

// Text renders prog as netlist source text.
func Text(prog *bytecode.Program) string {
	var b strings.Builder

	writeIDList(&b, "INPUT", prog, bytecode.FlagInput)
	writeIDList(&b, "OUTPUT", prog, bytecode.FlagOutput)

	b.WriteString("VAR ")
	for i, r := range prog.Registers {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%d", r.Name, r.Width)
	}
	b.WriteString("\n\nIN\n")

	for pc := 0; pc < len(prog.Code); {
		in, next := bytecode.Decode(prog.Code, pc)
		if line := formatInstr(prog, in); line != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
		pc = next
	}
	return b.String()
}

func writeIDList(b *strings.Builder, keyword string, prog *bytecode.Program, flag bytecode.RegFlag) {
	b.WriteString(keyword)
	b.WriteString(" ")
	first := true
	for _, r := range prog.Registers {
		if r.Flags&flag == 0 {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(r.Name)
	}
	b.WriteString("\n")
}

func formatInstr(prog *bytecode.Program, in bytecode.Instr) string {
	name := func(idx bytecode.RegIndex) string { return prog.Registers[idx].Name }

	switch in.Op {
	case bytecode.NOP, bytecode.BREAK:
		return ""
	case bytecode.CONST:
		width := prog.Registers[in.Out].Width
		return fmt.Sprintf("%s = 0b%s:%d", name(in.Out), binaryString(in.Imm, width), width)
	case bytecode.NOT:
		return fmt.Sprintf("%s = NOT %s", name(in.Out), name(in.A))
	case bytecode.AND, bytecode.OR, bytecode.NAND, bytecode.NOR, bytecode.XOR, bytecode.XNOR:
		return fmt.Sprintf("%s = %s %s %s", name(in.Out), in.Op, name(in.A), name(in.B))
	case bytecode.CONCAT:
		return fmt.Sprintf("%s = CONCAT %s %s", name(in.Out), name(in.A), name(in.B))
	case bytecode.SELECT:
		return fmt.Sprintf("%s = SELECT %d %s", name(in.Out), in.N0, name(in.A))
	case bytecode.SLICE:
		return fmt.Sprintf("%s = SLICE %d %d %s", name(in.Out), in.N0, in.N1, name(in.A))
	case bytecode.MUX:
		return fmt.Sprintf("%s = MUX %s %s %s", name(in.Out), name(in.A), name(in.B), name(in.C))
	case bytecode.REG:
		return fmt.Sprintf("%s = REG %s", name(in.Out), name(in.A))
	case bytecode.ROM:
		m := prog.Memories[in.Mem]
		return fmt.Sprintf("%s = ROM %d %d %s", name(in.Out), m.AddrSize, m.WordSize, name(in.A))
	case bytecode.RAM:
		m := prog.Memories[in.Mem]
		return fmt.Sprintf("%s = RAM %d %d %s %s %s %s", name(in.Out), m.AddrSize, m.WordSize, name(in.A), name(in.B), name(in.C), name(in.D))
	default:
		return ""
	}
}

func binaryString(v uint64, width uint8) string {
	s := fmt.Sprintf("%b", v)
	if len(s) < int(width) {
		s = strings.Repeat("0", int(width)-len(s)) + s
	}
	return s
}
