package parser_test

import (
	"testing"

	"github.com/desfreng/netlist/ast"
	"github.com/desfreng/netlist/diag"
	"github.com/desfreng/netlist/parser"
)

func diagCode(t *testing.T, err error) int {
	t.Helper()
	d, ok := err.(*diag.Diagnostic)
	if !ok {
		t.Fatalf("error %v is not a *diag.Diagnostic", err)
	}
	return d.Code
}

func TestParseHalfAdder(t *testing.T) {
	src := `
INPUT a, b
OUTPUT s, c
VAR a, b, s, c
IN
s = XOR a b
c = AND a b
`
	prog, _, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(prog.Inputs) != 2 || len(prog.Outputs) != 2 {
		t.Fatalf("Inputs/Outputs = %v/%v", prog.Inputs, prog.Outputs)
	}
	if !prog.Vars["a"].IsInput || prog.Vars["a"].IsOutput {
		t.Errorf("a flags = %+v", prog.Vars["a"])
	}
	eq, ok := prog.Equations["s"]
	if !ok {
		t.Fatal("no equation for s")
	}
	bin, ok := eq.Expr.(*ast.Binary)
	if !ok || bin.Op != ast.XOR {
		t.Fatalf("s equation = %#v, want XOR", eq.Expr)
	}
}

func TestParseRegisterAndBusWidths(t *testing.T) {
	src := `
INPUT clk
OUTPUT q
VAR clk:1, q:4, next:4
IN
next = 0b0001:4
q = REG next
`
	prog, _, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	qEq := prog.Equations["q"]
	reg, ok := qEq.Expr.(*ast.Reg)
	if !ok || reg.Name != "next" {
		t.Fatalf("q equation = %#v, want REG next", qEq.Expr)
	}
	if prog.Vars["q"].Width != 4 {
		t.Errorf("q width = %d, want 4", prog.Vars["q"].Width)
	}
}

func TestParseConcatSelectSlice(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a:4, wide:8, bit, o:2
IN
wide = CONCAT a a
bit = SELECT 3 wide
o = SLICE 0 1 wide
`
	prog, _, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, ok := prog.Equations["wide"].Expr.(*ast.Concat); !ok {
		t.Errorf("wide equation is %#v, want *ast.Concat", prog.Equations["wide"].Expr)
	}
	sel, ok := prog.Equations["bit"].Expr.(*ast.Select)
	if !ok || sel.Index != 3 {
		t.Errorf("bit equation = %#v, want SELECT 3", prog.Equations["bit"].Expr)
	}
	sl, ok := prog.Equations["o"].Expr.(*ast.Slice)
	if !ok || sl.First != 0 || sl.End != 1 {
		t.Errorf("o equation = %#v, want SLICE 0 1", prog.Equations["o"].Expr)
	}
}

func TestParseRomAndRam(t *testing.T) {
	src := `
INPUT addr, we, waddr, wdata
OUTPUT rv, mv
VAR addr:2, we, waddr:2, wdata:8, rv:8, mv:8
IN
rv = ROM 2 8 addr
mv = RAM 2 8 addr we waddr wdata
`
	prog, _, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	rom, ok := prog.Equations["rv"].Expr.(*ast.Rom)
	if !ok || rom.AddrSize != 2 || rom.WordSize != 8 {
		t.Errorf("rv equation = %#v", prog.Equations["rv"].Expr)
	}
	ram, ok := prog.Equations["mv"].Expr.(*ast.Ram)
	if !ok || ram.AddrSize != 2 || ram.WordSize != 8 {
		t.Errorf("mv equation = %#v", prog.Equations["mv"].Expr)
	}
}

func TestBareIntegerIsBinary(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a, o:4
IN
o = CONCAT a 101
`
	_, _, err := parser.Parse(src)
	// a is width 1, CONCAT a 101 -> 1 + 3 = 4, matches o's width 4: should parse fine.
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}

func TestBareIntegerRejectsNonBinaryDigits(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a:4, o:4
IN
o = AND a 129
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a malformed-literal error")
	}
	if code := diagCode(t, err); code != diag.CodeParseMalformedLiteral {
		t.Errorf("code = %d, want %d", code, diag.CodeParseMalformedLiteral)
	}
}

func TestDecimalConstantRequiresWidth(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a:4, o:4
IN
o = AND a 0d5
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a missing-width error")
	}
	if code := diagCode(t, err); code != diag.CodeParseMissingWidth {
		t.Errorf("code = %d, want %d", code, diag.CodeParseMissingWidth)
	}
}

func TestLiteralOverflow(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a:2, o:2
IN
o = AND a 0b11:1
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a width-overflow error")
	}
	if code := diagCode(t, err); code != diag.CodeParseWidthOverflow {
		t.Errorf("code = %d, want %d", code, diag.CodeParseWidthOverflow)
	}
}

func TestWidthMismatchOnBinaryOperands(t *testing.T) {
	src := `
INPUT a, b
OUTPUT o
VAR a:2, b:4, o:4
IN
o = AND a b
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a width-mismatch error")
	}
	if code := diagCode(t, err); code != diag.CodeTypeWidthMismatch {
		t.Errorf("code = %d, want %d", code, diag.CodeTypeWidthMismatch)
	}
}

func TestSelectOutOfRange(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a:4, o
IN
o = SELECT 4 a
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a bad-index error")
	}
	if code := diagCode(t, err); code != diag.CodeTypeBadIndex {
		t.Errorf("code = %d, want %d", code, diag.CodeTypeBadIndex)
	}
}

func TestUndeclaredVariable(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a, o
IN
o = AND a b
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want an undeclared-variable error")
	}
	if code := diagCode(t, err); code != diag.CodeParseUndeclared {
		t.Errorf("code = %d, want %d", code, diag.CodeParseUndeclared)
	}
}

func TestAssignToInputIsRejected(t *testing.T) {
	src := `
INPUT a
OUTPUT a
VAR a
IN
a = NOT a
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want an assign-to-input error")
	}
	if code := diagCode(t, err); code != diag.CodeSemaAssignToInput {
		t.Errorf("code = %d, want %d", code, diag.CodeSemaAssignToInput)
	}
}

func TestMissingEquationIsRejected(t *testing.T) {
	src := `
INPUT a
OUTPUT o
VAR a, o, extra
IN
o = NOT a
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a missing-equation error")
	}
	if code := diagCode(t, err); code != diag.CodeSemaMissingEquation {
		t.Errorf("code = %d, want %d", code, diag.CodeSemaMissingEquation)
	}
}

func TestDuplicateDeclarationIsRejected(t *testing.T) {
	src := `
INPUT a
OUTPUT a
VAR a, a
IN
`
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a duplicate-declaration error")
	}
	if code := diagCode(t, err); code != diag.CodeParseDuplicateDecl {
		t.Errorf("code = %d, want %d", code, diag.CodeParseDuplicateDecl)
	}
}

func TestUnknownCharacterSurfacesAsLexError(t *testing.T) {
	src := "INPUT a & OUTPUT o VAR a, o IN o = NOT a"
	_, _, err := parser.Parse(src)
	if err == nil {
		t.Fatal("Parse() error = nil, want a lexer error")
	}
	if code := diagCode(t, err); code != diag.CodeLexUnknownChar {
		t.Errorf("code = %d, want %d", code, diag.CodeLexUnknownChar)
	}
}

func TestParseLiteral(t *testing.T) {
	cases := []struct {
		text      string
		wantValue uint64
		wantWidth int
	}{
		{"101", 5, 3},
		{"0b101", 5, 3},
		{"0x1f", 31, 8},
		{"0d9:4", 9, 4},
	}
	for _, c := range cases {
		a, err := parser.ParseLiteral(c.text)
		if err != nil {
			t.Fatalf("ParseLiteral(%q) error = %v", c.text, err)
		}
		if !a.IsConst || a.Value != c.wantValue || a.Width != c.wantWidth {
			t.Errorf("ParseLiteral(%q) = %+v, want value=%d width=%d", c.text, a, c.wantValue, c.wantWidth)
		}
	}
}

func TestParseLiteralRejectsVariableReference(t *testing.T) {
	if _, err := parser.ParseLiteral("foo"); err == nil {
		t.Fatal("ParseLiteral(\"foo\") error = nil, want an error")
	}
}
