// Package scheduler orders a parsed netlist's equations so that every
// variable is computed after the combinational inputs it reads. REG's
// argument is read from the *previous* cycle's state, and RAM's
// write-enable/write-address/write-data operands are only used when the
// write is committed at the end of the cycle, so they never participate
// in the combinational dependency graph; only ROM/RAM's read-address
// (and every other operator's operands) do.
//
// The DFS-based topological sort with declaration-order tie-breaking and
// named-cycle error reporting mirrors the traversal original_source's
// Program::schedule_instructions (program.cpp) performs over the same
// dependency notion, adapted to Go idioms (explicit visited/on-stack
// maps instead of a recursive-call color field on each node).
package scheduler

import (
	"fmt"
	"strings"

	"github.com/desfreng/netlist/ast"
	"github.com/desfreng/netlist/diag"
)

// Schedule returns prog's non-input variables in an order where every
// combinational dependency of a variable precedes it, or a fatal
// diag.Diagnostic naming a combinational cycle.
func Schedule(prog *ast.Program) ([]string, error) {
	s := &scheduler{
		prog:    prog,
		visited: make(map[string]int8),
		order:   make([]string, 0, len(prog.VarOrder)),
	}
	for _, name := range prog.VarOrder {
		if prog.Vars[name].IsInput {
			continue
		}
		if err := s.visit(name, nil); err != nil {
			return nil, err
		}
	}
	return s.order, nil
}

const (
	unvisited int8 = 0
	onStack   int8 = 1
	done      int8 = 2
)

type scheduler struct {
	prog    *ast.Program
	visited map[string]int8
	order   []string
}

func (s *scheduler) visit(name string, path []string) error {
	switch s.visited[name] {
	case done:
		return nil
	case onStack:
		return cycleError(s.prog, append(path, name))
	}

	s.visited[name] = onStack
	path = append(path, name)

	if eq, ok := s.prog.Equations[name]; ok {
		for _, dep := range combinationalDeps(eq.Expr) {
			if s.prog.Vars[dep].IsInput {
				continue
			}
			if err := s.visit(dep, path); err != nil {
				return err
			}
		}
	}

	s.visited[name] = done
	s.order = append(s.order, name)
	return nil
}

// combinationalDeps lists the variables an expression reads *this* cycle.
// REG's target and RAM's write-enable/write-address/write-data operands
// are deliberately excluded: REG reads the previous cycle's register
// state, and the RAM write operands are read only after every
// instruction of the cycle has run, so they cannot participate in a
// combinational cycle.
func combinationalDeps(e ast.Expr) []string {
	var deps []string
	add := func(a ast.Arg) {
		if !a.IsConst {
			deps = append(deps, a.Name)
		}
	}
	switch n := e.(type) {
	case *ast.Ref:
		add(n.Arg)
	case *ast.Not:
		add(n.X)
	case *ast.Binary:
		add(n.L)
		add(n.R)
	case *ast.Mux:
		add(n.Choice)
		add(n.A)
		add(n.B)
	case *ast.Concat:
		add(n.L)
		add(n.R)
	case *ast.Select:
		add(n.X)
	case *ast.Slice:
		add(n.X)
	case *ast.Reg:
		// Reads the register's previous value; not a combinational dependency.
	case *ast.Rom:
		add(n.ReadAddr)
	case *ast.Ram:
		add(n.ReadAddr)
		// WriteEnable, WriteAddr and WriteData are committed at the end of
		// the cycle and read back only on a later cycle.
	}
	return deps
}

// UnusedVars returns prog's declared, non-input, non-output variables
// that no output depends on, even transitively. Unlike the
// combinational dependency graph Schedule walks, reachability here
// follows every operand an equation reads: REG's target and RAM's
// write-enable/write-address/write-data operands count as uses even
// though they are excluded from the combinational graph.
func UnusedVars(prog *ast.Program) []string {
	reachable := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		eq, ok := prog.Equations[name]
		if !ok {
			return
		}
		for _, dep := range allDeps(eq.Expr) {
			visit(dep)
		}
	}
	for _, name := range prog.Outputs {
		visit(name)
	}

	var unused []string
	for _, name := range prog.VarOrder {
		decl := prog.Vars[name]
		if decl.IsInput || decl.IsOutput || reachable[name] {
			continue
		}
		unused = append(unused, name)
	}
	return unused
}

// allDeps lists every variable an expression reads, combinational or
// not.
func allDeps(e ast.Expr) []string {
	deps := combinationalDeps(e)
	switch n := e.(type) {
	case *ast.Reg:
		deps = append(deps, n.Name)
	case *ast.Ram:
		add := func(a ast.Arg) {
			if !a.IsConst {
				deps = append(deps, a.Name)
			}
		}
		add(n.WriteEnable)
		add(n.WriteAddr)
		add(n.WriteData)
	}
	return deps
}

func cycleError(prog *ast.Program, path []string) error {
	i := indexOf(path, path[len(path)-1])
	cycle := path[i:]
	var pos = prog.Vars[cycle[0]].Pos
	if eq, ok := prog.Equations[cycle[0]]; ok {
		pos = eq.Pos
	}
	return diag.Errorf(diag.CodeSemaCombLoop, pos, "combinational cycle: %s", strings.Join(cycle, " -> "))
}

// DOT renders the scheduled combinational dependency graph as Graphviz
// DOT text: one node per non-input variable, one edge per dependency.
// original_source/main.cpp references a DotExport action backed by its
// own dot_printer, but that source file is not part of this pack's
// retrieval, so the writer below is hand-built against the plain
// Graphviz DOT grammar instead of being translated from source we don't
// have.
func DOT(prog *ast.Program, order []string) string {
	var b strings.Builder
	b.WriteString("digraph netlist {\n")
	for _, name := range order {
		fmt.Fprintf(&b, "  %q;\n", name)
		eq, ok := prog.Equations[name]
		if !ok {
			continue
		}
		for _, dep := range combinationalDeps(eq.Expr) {
			fmt.Fprintf(&b, "  %q -> %q;\n", dep, name)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func indexOf(path []string, name string) int {
	for i, n := range path {
		if n == name {
			return i
		}
	}
	// unreachable: name is always path's own last element, already in path
	panic(fmt.Sprintf("scheduler: %q not found in its own cycle path", name))
}
