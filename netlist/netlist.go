// Package netlist is the facade tying the pipeline stages together:
// parse, schedule and compile source text into a runnable
// bytecode.Program in one call, the way a library's top-level package
// usually wraps its own internal stages (db47h-hwsim's hwsim.NewCircuit
// wraps parts, wiring and chip-building behind one call the same way).
package netlist

import (
	"os"

	"github.com/desfreng/netlist/bytecode"
	"github.com/desfreng/netlist/compile"
	"github.com/desfreng/netlist/diag"
	"github.com/desfreng/netlist/parser"
	"github.com/desfreng/netlist/scheduler"
	"github.com/desfreng/netlist/token"
)

// Compile parses, schedules and compiles src, returning the resulting
// bytecode.Program and any warnings collected along the way. The first
// fatal diagnostic aborts the pipeline and is returned as err.
func Compile(src string) (*bytecode.Program, *diag.Context, error) {
	prog, ctx, err := parser.Parse(src)
	if err != nil {
		return nil, ctx, err
	}

	order, err := scheduler.Schedule(prog)
	if err != nil {
		return nil, ctx, err
	}

	for _, name := range scheduler.UnusedVars(prog) {
		ctx.Report(diag.Warnf(diag.CodeSemaUnusedVar, prog.Vars[name].Pos, "variable %q is never used by any output", name))
	}

	return compile.Compile(prog, order), ctx, nil
}

// CompileFile reads path and compiles its contents.
func CompileFile(path string) (*bytecode.Program, *diag.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, diag.Errorf(diag.CodeFileIO, token.Pos{}, "%s: %v", path, err)
	}
	return Compile(string(data))
}
