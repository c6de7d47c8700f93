package compile_test

import (
	"testing"

	"github.com/desfreng/netlist/bytecode"
	"github.com/desfreng/netlist/compile"
	"github.com/desfreng/netlist/parser"
	"github.com/desfreng/netlist/scheduler"
)

func mustCompile(t *testing.T, src string) *bytecode.Program {
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

func findRegister(p *bytecode.Program, name string) (bytecode.RegIndex, bool) {
	for i, r := range p.Registers {
		if r.Name == name {
			return bytecode.RegIndex(i), true
		}
	}
	return 0, false
}

func TestCompileOneRegisterPerVariable(t *testing.T) {
	p := mustCompile(t, `
INPUT a, b
OUTPUT s
VAR a, b, s
IN
s = AND a b
`)
	for _, name := range []string{"a", "b", "s"} {
		if _, ok := findRegister(p, name); !ok {
			t.Errorf("no register for %q", name)
		}
	}
}

func TestCompileDeduplicatesLiteralOperands(t *testing.T) {
	p := mustCompile(t, `
INPUT a
OUTPUT x, y
VAR a:4, x:4, y:4
IN
x = AND a 0b0011:4
y = OR a 0b0011:4
`)
	constRegs := 0
	for _, r := range p.Registers {
		if r.Name == "_const0" {
			constRegs++
		}
	}
	if constRegs != 1 {
		t.Errorf("found %d registers named _const0, want exactly 1 (shared literal)", constRegs)
	}

	count := 0
	for pc := 0; pc < len(p.Code); {
		in, next := bytecode.Decode(p.Code, pc)
		if in.Op == bytecode.CONST {
			count++
		}
		pc = next
	}
	if count != 1 {
		t.Errorf("CONST instruction count = %d, want 1 (literal deduplicated)", count)
	}
}

func TestCompileDistinctWidthLiteralsAreNotMerged(t *testing.T) {
	p := mustCompile(t, `
INPUT a, b
OUTPUT x, y
VAR a:4, b:8, x:4, y:8
IN
x = AND a 0b0011:4
y = AND b 0b00000011:8
`)
	count := 0
	for pc := 0; pc < len(p.Code); {
		in, next := bytecode.Decode(p.Code, pc)
		if in.Op == bytecode.CONST {
			count++
		}
		pc = next
	}
	if count != 2 {
		t.Errorf("CONST instruction count = %d, want 2 (same value, different widths)", count)
	}
}

func TestCompileBareReferenceLowersToOR(t *testing.T) {
	p := mustCompile(t, `
INPUT a
OUTPUT b
VAR a, b
IN
b = a
`)
	bReg, _ := findRegister(p, "b")
	for pc := 0; pc < len(p.Code); {
		in, next := bytecode.Decode(p.Code, pc)
		if in.Out == bReg {
			if in.Op != bytecode.OR || in.A != in.B {
				t.Fatalf("b's instruction = %+v, want OR with A==B (self-identity)", in)
			}
			return
		}
		pc = next
	}
	t.Fatal("no instruction found for b")
}

func TestCompileBareLiteralLowersToConst(t *testing.T) {
	p := mustCompile(t, `
INPUT
OUTPUT b
VAR b:4
IN
b = 0b0101:4
`)
	bReg, _ := findRegister(p, "b")
	for pc := 0; pc < len(p.Code); {
		in, next := bytecode.Decode(p.Code, pc)
		if in.Out == bReg {
			if in.Op != bytecode.CONST || in.Imm != 5 {
				t.Fatalf("b's instruction = %+v, want CONST 5", in)
			}
			return
		}
		pc = next
	}
	t.Fatal("no instruction found for b")
}

func TestCompileMuxOperandOrder(t *testing.T) {
	p := mustCompile(t, `
INPUT sel, a, b
OUTPUT o
VAR sel, a, b, o
IN
o = MUX sel a b
`)
	oReg, _ := findRegister(p, "o")
	selReg, _ := findRegister(p, "sel")
	aReg, _ := findRegister(p, "a")
	bReg, _ := findRegister(p, "b")
	for pc := 0; pc < len(p.Code); {
		in, next := bytecode.Decode(p.Code, pc)
		if in.Out == oReg {
			if in.Op != bytecode.MUX || in.A != selReg || in.B != aReg || in.C != bReg {
				t.Fatalf("o's instruction = %+v, want MUX choice=%d a=%d b=%d", in, selReg, aReg, bReg)
			}
			return
		}
		pc = next
	}
	t.Fatal("no instruction found for o")
}

func TestCompileRomAndRamAllocateMemoryBlocks(t *testing.T) {
	p := mustCompile(t, `
INPUT addr, we, waddr, wdata
OUTPUT rv, mv
VAR addr:2, we, waddr:2, wdata:8, rv:8, mv:8
IN
rv = ROM 2 8 addr
mv = RAM 2 8 addr we waddr wdata
`)
	if len(p.Memories) != 2 {
		t.Fatalf("Memories = %+v, want 2 entries", p.Memories)
	}
	rvReg, _ := findRegister(p, "rv")
	mvReg, _ := findRegister(p, "mv")
	var sawRom, sawRam bool
	for i, m := range p.Memories {
		switch bytecode.RegIndex(m.Register) {
		case rvReg:
			sawRom = true
			if m.Writable {
				t.Errorf("Memories[%d] (rv/ROM) is writable, want false", i)
			}
		case mvReg:
			sawRam = true
			if !m.Writable {
				t.Errorf("Memories[%d] (mv/RAM) is not writable, want true", i)
			}
		}
	}
	if !sawRom || !sawRam {
		t.Fatalf("Memories = %+v, missing ROM or RAM entry", p.Memories)
	}
}
