package disasm_test

import (
	"strings"
	"testing"

	"github.com/desfreng/netlist/bytecode"
	"github.com/desfreng/netlist/compile"
	"github.com/desfreng/netlist/disasm"
	"github.com/desfreng/netlist/parser"
	"github.com/desfreng/netlist/scheduler"
)

func compileSource(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	prog, _, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	order, err := scheduler.Schedule(prog)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	return compile.Compile(prog, order)
}

func TestTextHeaderListsInputsAndOutputs(t *testing.T) {
	p := compileSource(t, `
INPUT a, b
OUTPUT s
VAR a, b, s
IN
s = XOR a b
`)
	text := disasm.Text(p)
	lines := strings.Split(text, "\n")
	if lines[0] != "INPUT a, b" {
		t.Errorf("first line = %q, want %q", lines[0], "INPUT a, b")
	}
	if lines[1] != "OUTPUT s" {
		t.Errorf("second line = %q, want %q", lines[1], "OUTPUT s")
	}
}

func TestTextRendersEveryEquation(t *testing.T) {
	p := compileSource(t, `
INPUT a, b
OUTPUT s, c
VAR a, b, s, c
IN
s = XOR a b
c = AND a b
`)
	text := disasm.Text(p)
	if !strings.Contains(text, "s = XOR a b") {
		t.Errorf("Text() missing %q:\n%s", "s = XOR a b", text)
	}
	if !strings.Contains(text, "c = AND a b") {
		t.Errorf("Text() missing %q:\n%s", "c = AND a b", text)
	}
}

func TestTextRendersConstAsBinaryLiteral(t *testing.T) {
	p := compileSource(t, `
INPUT
OUTPUT b
VAR b:4
IN
b = 0b0101:4
`)
	text := disasm.Text(p)
	if !strings.Contains(text, "= 0b0101:4") {
		t.Errorf("Text() missing binary literal rendering:\n%s", text)
	}
}

func TestTextOmitsBreakAndNop(t *testing.T) {
	p := &bytecode.Program{}
	out := p.AddRegister("out", 1, bytecode.FlagOutput)
	p.EmitNop()
	p.EmitConst(out, 1)

	text := disasm.Text(p)
	if strings.Contains(text, "NOP") || strings.Contains(text, "BREAK") {
		t.Errorf("Text() rendered a NOP/BREAK line:\n%s", text)
	}
}

func TestTextRoundTripsThroughParser(t *testing.T) {
	p := compileSource(t, `
INPUT a, b
OUTPUT s, c
VAR a, b, s, c
IN
s = XOR a b
c = AND a b
`)
	text := disasm.Text(p)
	if _, _, err := parser.Parse(text); err != nil {
		t.Fatalf("re-parsing disassembled text failed: %v\n%s", err, text)
	}
}
