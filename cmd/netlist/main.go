// Command netlist is the CLI driver around the netlist package: it
// parses, schedules, compiles and simulates netlist source files.
//
// Structured as a cobra root command with subcommands, grounded on
// jam-duna-jamduna/cmd/wallet-demo/main.go's root+subcommand shape (the
// only cobra usage in the retrieval pack) rather than on db47h-hwsim's
// own cmd/main.go, which is a flat flag.Parse-based demo with no
// subcommands at all.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/desfreng/netlist/ast"
	"github.com/desfreng/netlist/bytecode"
	"github.com/desfreng/netlist/diag"
	"github.com/desfreng/netlist/inputfile"
	"github.com/desfreng/netlist/netlist"
	"github.com/desfreng/netlist/parser"
	"github.com/desfreng/netlist/scheduler"
	"github.com/desfreng/netlist/token"
	"github.com/desfreng/netlist/vm"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "netlist",
		Short: "Parse, schedule, compile and simulate synchronous netlist circuits",
	}
	root.AddCommand(simulateCmd(), astCmd(), scheduleCmd(), dotCmd())
	return root
}

func exitCode(err error) int {
	if d, ok := err.(*diag.Diagnostic); ok {
		return d.Code
	}
	return 1
}

func reportWarnings(ctx *diag.Context) {
	if ctx == nil {
		return
	}
	for _, w := range ctx.Warnings {
		log.Print(w.Error())
	}
}

// nameValue splits a "name=value" CLI flag into its two halves.
func nameValue(flag string) (string, string, error) {
	name, value, ok := strings.Cut(flag, "=")
	if !ok {
		return "", "", fmt.Errorf("expected name=value, got %q", flag)
	}
	return name, value, nil
}

func astCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ast <file>",
		Short: "Print the parsed program before scheduling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, ctx, err := parser.Parse(string(data))
			if err != nil {
				return err
			}
			reportWarnings(ctx)
			printProgram(cmd, prog)
			return nil
		},
	}
}

func printProgram(cmd *cobra.Command, prog *ast.Program) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "INPUT %s\n", strings.Join(prog.Inputs, ", "))
	fmt.Fprintf(out, "OUTPUT %s\n", strings.Join(prog.Outputs, ", "))
	for _, name := range prog.VarOrder {
		decl := prog.Vars[name]
		fmt.Fprintf(out, "%s:%d\n", decl.Name, decl.Width)
	}
	fmt.Fprintln(out)
	for _, name := range prog.VarOrder {
		eq, ok := prog.Equations[name]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%s = %s\n", name, formatExpr(eq.Expr))
	}
}

func formatArg(a ast.Arg) string {
	if a.IsConst {
		if a.Width > 0 {
			return fmt.Sprintf("0d%d:%d", a.Value, a.Width)
		}
		return fmt.Sprintf("0d%d", a.Value)
	}
	return a.Name
}

// formatExpr renders an equation's right-hand side back into its source
// form, one case per ast.Expr variant.
func formatExpr(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ref:
		return formatArg(x.Arg)
	case *ast.Not:
		return fmt.Sprintf("NOT %s", formatArg(x.X))
	case *ast.Binary:
		return fmt.Sprintf("%s %s %s", x.Op, formatArg(x.L), formatArg(x.R))
	case *ast.Mux:
		return fmt.Sprintf("MUX %s %s %s", formatArg(x.Choice), formatArg(x.A), formatArg(x.B))
	case *ast.Concat:
		return fmt.Sprintf("CONCAT %s %s", formatArg(x.L), formatArg(x.R))
	case *ast.Select:
		return fmt.Sprintf("SELECT %d %s", x.Index, formatArg(x.X))
	case *ast.Slice:
		return fmt.Sprintf("SLICE %d %d %s", x.First, x.End, formatArg(x.X))
	case *ast.Reg:
		return fmt.Sprintf("REG %s", x.Name)
	case *ast.Rom:
		return fmt.Sprintf("ROM %d %d %s", x.AddrSize, x.WordSize, formatArg(x.ReadAddr))
	case *ast.Ram:
		return fmt.Sprintf("RAM %d %d %s %s %s %s", x.AddrSize, x.WordSize,
			formatArg(x.ReadAddr), formatArg(x.WriteEnable), formatArg(x.WriteAddr), formatArg(x.WriteData))
	default:
		return "?"
	}
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <file>",
		Short: "Print the scheduled variable order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, ctx, err := parser.Parse(string(data))
			if err != nil {
				return err
			}
			reportWarnings(ctx)
			order, err := scheduler.Schedule(prog)
			if err != nil {
				return err
			}
			for _, name := range order {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func dotCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "dot <file>",
		Short: "Export the scheduled dependency graph as Graphviz DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prog, ctx, err := parser.Parse(string(data))
			if err != nil {
				return err
			}
			reportWarnings(ctx)
			order, err := scheduler.Schedule(prog)
			if err != nil {
				return err
			}
			text := scheduler.DOT(prog, order)
			if out == "" {
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			}
			return os.WriteFile(out, []byte(text), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write DOT output to this file instead of stdout")
	return cmd
}

func simulateCmd() *cobra.Command {
	var cycles int
	var verbose bool
	var inputFlags, romFlags, ramFlags []string

	cmd := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Compile and run a netlist program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cyclesDefined := cmd.Flags().Changed("cycles")
			return runSimulate(cmd, args[0], cycles, cyclesDefined, verbose, inputFlags, romFlags, ramFlags)
		},
	}
	cmd.Flags().IntVar(&cycles, "cycles", 0, "number of cycles to run (omit to run until interrupted with SIGINT/SIGTERM)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print every register's value after each cycle")
	cmd.Flags().StringArrayVar(&inputFlags, "input", nil, "name=path: per-cycle values for input bus name")
	cmd.Flags().StringArrayVar(&romFlags, "rom", nil, "name=path: initial memory image for ROM/RAM bus name")
	cmd.Flags().StringArrayVar(&ramFlags, "ram", nil, "name=path: initial memory image for ROM/RAM bus name")
	return cmd
}

// runSimulate runs the compiled program for cycles cycles, or, when
// cyclesDefined is false, until SIGINT/SIGTERM arrives, mirroring
// original_source/src/main.cpp's cycle_amount_defined() branch between a
// bounded for-loop and a while(!stop_flag) loop.
func runSimulate(cmd *cobra.Command, file string, cycles int, cyclesDefined, verbose bool, inputFlags, romFlags, ramFlags []string) error {
	prog, diagCtx, err := netlist.CompileFile(file)
	if err != nil {
		return err
	}
	reportWarnings(diagCtx)

	sim := vm.New(prog, vm.Options{})

	sources := make(map[string]*inputfile.Source)
	for _, flag := range inputFlags {
		name, path, err := nameValue(flag)
		if err != nil {
			return err
		}
		src, err := inputfile.Load(path)
		if err != nil {
			return err
		}
		sources[name] = src
	}

	loaded := make(map[string]bool)
	for _, flag := range append(append([]string{}, romFlags...), ramFlags...) {
		name, path, err := nameValue(flag)
		if err != nil {
			return err
		}
		words, err := inputfile.LoadMemoryImage(path)
		if err != nil {
			return err
		}
		if err := sim.LoadMemory(name, words); err != nil {
			return err
		}
		loaded[name] = true
	}
	if err := warnUnloadedMemories(prog, loaded); err != nil {
		return err
	}

	ctx := context.Background()
	if !cyclesDefined {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()
	}

	for cycle := 0; ; cycle++ {
		if cyclesDefined && cycle >= cycles {
			break
		}
		if ctx.Err() != nil {
			break
		}
		inputs := make(map[string]uint64)
		exhausted := false
		for name, src := range sources {
			v, ok := src.Value(cycle)
			if !ok {
				if !cyclesDefined {
					exhausted = true
					break
				}
				return diag.Errorf(diag.CodeRuntimeInputOverflow, token.Pos{}, "input %q has no value for cycle %d", name, cycle)
			}
			inputs[name] = v
		}
		if exhausted {
			break
		}
		if err := sim.Cycle(ctx, inputs); err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if verbose {
			printCycle(cmd, prog, sim, cycle)
		}
	}
	if !verbose {
		printOutputs(cmd, prog, sim)
	}
	return nil
}

func printCycle(cmd *cobra.Command, prog *bytecode.Program, sim *vm.Simulator, cycle int) {
	fmt.Fprintf(cmd.OutOrStdout(), "cycle %d:\n", cycle)
	for _, r := range prog.Registers {
		if r.Name == "" {
			continue
		}
		v, _ := sim.Value(r.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "  %s = %d\n", r.Name, v)
	}
}

// warnUnloadedMemories reports (non-fatally for RAM, fatally for ROM) a
// ROM/RAM block that no --rom/--ram flag provided an image for.
func warnUnloadedMemories(prog *bytecode.Program, loaded map[string]bool) error {
	for _, m := range prog.Memories {
		name := prog.Registers[m.Register].Name
		if loaded[name] {
			continue
		}
		if m.Writable {
			log.Printf("warning: RAM %q has no initial image, left zero-initialized", name)
			continue
		}
		return diag.Errorf(diag.CodeRuntimeMemoryImage, token.Pos{}, "ROM %q has no initial image", name)
	}
	return nil
}

func printOutputs(cmd *cobra.Command, prog *bytecode.Program, sim *vm.Simulator) {
	for _, r := range prog.Registers {
		if !r.IsOutput() {
			continue
		}
		v, _ := sim.Value(r.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", r.Name, v)
	}
}
