// Package vm is the simulator: a cycle-by-cycle interpreter over a
// bytecode.Program, with double buffered registers, masked writes,
// deferred RAM commits, and a breakpoint mechanism that patches BREAK
// into the word stream in place.
//
// The hot Step/Execute path mirrors db47h-hwsim's Circuit.tick: it trusts
// that the writer already enforced every invariant and stays
// allocation-free, reserving bounds/width assertions for an opt-in
// Options.Validate mode (the same split hwsim.Circuit.Get/Set keep
// between their checked and trusted forms).
package vm

import (
	"context"

	"github.com/desfreng/netlist/bytecode"
	"github.com/desfreng/netlist/diag"
	"github.com/desfreng/netlist/token"
	"github.com/pkg/errors"
)

// Options configures a Simulator.
type Options struct {
	// Validate enables register-index-bounds and operand-width-equality
	// assertions on every instruction. Off by default: the writer (package
	// compile) is contractually required to have already enforced these,
	// so production runs skip them.
	Validate bool
}

// Breakpoint marks a word offset in the bytecode where execution should
// halt. Activate returns one; Deactivate removes it.
type Breakpoint struct {
	Offset    int
	Oneshot   bool
	savedWord uint32
	active    bool
}

type pendingWrite struct {
	mem            bytecode.MemIndex
	we, addr, data bytecode.RegIndex
}

// Simulator executes a bytecode.Program one cycle at a time.
type Simulator struct {
	prog *bytecode.Program
	opts Options

	regs []uint64
	prev []uint64
	mem  [][]uint64

	pc           int
	atBreakpoint bool
	breakpoints  []*Breakpoint
	pending      []pendingWrite
}

// New returns a Simulator over prog, with every register and memory cell
// initialized to zero.
func New(prog *bytecode.Program, opts Options) *Simulator {
	s := &Simulator{
		prog: prog,
		opts: opts,
		regs: make([]uint64, len(prog.Registers)),
		prev: make([]uint64, len(prog.Registers)),
		mem:  make([][]uint64, len(prog.Memories)),
	}
	for i, m := range prog.Memories {
		s.mem[i] = make([]uint64, m.Size())
	}
	return s
}

func maskFor(width uint8) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

func (s *Simulator) regIndex(name string) (bytecode.RegIndex, bool) {
	for i, r := range s.prog.Registers {
		if r.Name == name {
			return bytecode.RegIndex(i), true
		}
	}
	return 0, false
}

// SetInput assigns value to the input register named name. A value that
// does not fit in the register's declared width is not stored; SetInput
// returns a fatal diagnostic instead.
func (s *Simulator) SetInput(name string, value uint64) error {
	idx, ok := s.regIndex(name)
	if !ok || !s.prog.Registers[idx].IsInput() {
		return errors.Errorf("vm: %q is not an input register", name)
	}
	width := s.prog.Registers[idx].Width
	if value&^maskFor(width) != 0 {
		return diag.Errorf(diag.CodeRuntimeInputOverflow, token.Pos{}, "input %q: value %d does not fit in %d bits", name, value, width)
	}
	s.regs[idx] = value
	return nil
}

// Value returns the current-cycle value of the named register.
func (s *Simulator) Value(name string) (uint64, bool) {
	idx, ok := s.regIndex(name)
	if !ok {
		return 0, false
	}
	return s.regs[idx], true
}

// LoadMemory fills the ROM/RAM block backing the output register named
// name with words, masked to the block's word size. It is a fatal
// diagnostic for words to be longer than the block.
func (s *Simulator) LoadMemory(name string, words []uint64) error {
	idx, ok := s.regIndex(name)
	if !ok {
		return errors.Errorf("vm: %q is not a register", name)
	}
	for i, m := range s.prog.Memories {
		if m.Register != idx {
			continue
		}
		if len(words) > m.Size() {
			return diag.Errorf(diag.CodeRuntimeMemoryImage, token.Pos{}, "memory image for %q has %d words, block holds only %d", name, len(words), m.Size())
		}
		mask := maskFor(m.WordSize)
		for j, w := range words {
			s.mem[i][j] = w & mask
		}
		return nil
	}
	return errors.Errorf("vm: %q is not backed by a ROM/RAM block", name)
}

// BeginCycle starts a new cycle: it copies regs into prev (so REG reads
// this cycle see the value registers held at the *end* of the previous
// one) and applies this cycle's input values. Call Execute (or
// Step/repeatedly) afterwards to run it to completion.
func (s *Simulator) BeginCycle(inputs map[string]uint64) error {
	copy(s.prev, s.regs)
	for name, v := range inputs {
		if err := s.SetInput(name, v); err != nil {
			return err
		}
	}
	s.pc = 0
	s.atBreakpoint = false
	s.pending = s.pending[:0]
	return nil
}

// Cycle runs one full cycle to completion, ignoring breakpoints. It is
// the non-interactive fast path; use BeginCycle+Execute directly to
// interact with breakpoints mid-cycle. Cancellation is checked only at
// the cycle boundary: if ctx is already done, Cycle returns its error
// without starting the cycle.
func (s *Simulator) Cycle(ctx context.Context, inputs map[string]uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.BeginCycle(inputs); err != nil {
		return err
	}
	for s.pc < len(s.prog.Code) {
		s.stepIgnoringBreakpoints()
	}
	s.commitWrites()
	return nil
}

// AtBreakpoint reports whether execution is currently halted at a
// breakpoint.
func (s *Simulator) AtBreakpoint() bool { return s.atBreakpoint }

// PC returns the current word offset into the bytecode.
func (s *Simulator) PC() int { return s.pc }

// Done reports whether the current cycle has run off the end of the
// bytecode (and thus, implicitly, that its deferred RAM writes have been
// committed).
func (s *Simulator) Done() bool { return s.pc >= len(s.prog.Code) && !s.atBreakpoint }

// Activate patches the bytecode at offset with BREAK, saving the word it
// replaced so it can be restored later.
func (s *Simulator) Activate(offset int, oneshot bool) *Breakpoint {
	bp := &Breakpoint{Offset: offset, Oneshot: oneshot, savedWord: s.prog.Code[offset], active: true}
	s.prog.Code[offset] = uint32(bytecode.BREAK)
	s.breakpoints = append(s.breakpoints, bp)
	return bp
}

// Deactivate removes bp, restoring the word it had patched over.
func (s *Simulator) Deactivate(bp *Breakpoint) {
	if !bp.active {
		return
	}
	s.prog.Code[bp.Offset] = bp.savedWord
	bp.active = false
	for i, b := range s.breakpoints {
		if b == bp {
			s.breakpoints = append(s.breakpoints[:i], s.breakpoints[i+1:]...)
			break
		}
	}
}

// FindBreakpoint linearly scans the active breakpoint list for one at
// offset.
func (s *Simulator) FindBreakpoint(offset int) (*Breakpoint, bool) {
	for _, b := range s.breakpoints {
		if b.Offset == offset {
			return b, true
		}
	}
	return nil, false
}

// Step executes exactly one instruction. If halted at a breakpoint, it
// temporarily restores the original instruction, executes it, then
// re-arms the breakpoint (or removes it, if Oneshot).
func (s *Simulator) Step() {
	if s.atBreakpoint {
		bp, ok := s.FindBreakpoint(s.pc)
		if !ok {
			s.atBreakpoint = false
			return
		}
		s.prog.Code[bp.Offset] = bp.savedWord
		s.atBreakpoint = false
		s.stepOne()
		if bp.Oneshot {
			s.Deactivate(bp)
		} else if bp.active {
			s.prog.Code[bp.Offset] = uint32(bytecode.BREAK)
		}
		if s.pc >= len(s.prog.Code) {
			s.commitWrites()
		}
		return
	}
	s.stepOne()
	if s.pc >= len(s.prog.Code) {
		s.commitWrites()
	}
}

// Execute runs from the current pc until the cycle completes or a
// breakpoint is hit.
func (s *Simulator) Execute() {
	if s.atBreakpoint {
		s.Step()
	}
	for s.pc < len(s.prog.Code) && !s.atBreakpoint {
		s.stepOne()
	}
	if s.pc >= len(s.prog.Code) {
		s.commitWrites()
	}
}

// stepOne decodes and runs the instruction at pc. A BREAK leaves pc
// unmoved so a later Step can restore and re-execute the real
// instruction it replaced.
func (s *Simulator) stepOne() {
	op := bytecode.Opcode(byte(s.prog.Code[s.pc]))
	if op == bytecode.BREAK {
		s.atBreakpoint = true
		return
	}
	in, next := bytecode.Decode(s.prog.Code, s.pc)
	s.exec(in)
	s.pc = next
}

// stepIgnoringBreakpoints executes the instruction at pc as if no
// breakpoint had ever patched it, by substituting the breakpoint's saved
// word back in for the duration of the decode. Unlike stepOne, it always
// advances pc. Used by Cycle, which does not honor breakpoints at all.
func (s *Simulator) stepIgnoringBreakpoints() {
	if bp, ok := s.FindBreakpoint(s.pc); ok && bp.active {
		saved := s.prog.Code[s.pc]
		s.prog.Code[s.pc] = bp.savedWord
		in, next := bytecode.Decode(s.prog.Code, s.pc)
		s.prog.Code[s.pc] = saved
		s.exec(in)
		s.pc = next
		return
	}
	in, next := bytecode.Decode(s.prog.Code, s.pc)
	s.exec(in)
	s.pc = next
}

func (s *Simulator) setReg(out bytecode.RegIndex, value uint64) {
	s.regs[out] = value & maskFor(s.prog.Registers[out].Width)
}

func (s *Simulator) exec(in bytecode.Instr) {
	if s.opts.Validate {
		s.validate(in)
	}
	switch in.Op {
	case bytecode.NOP:
	case bytecode.CONST:
		s.setReg(in.Out, in.Imm)
	case bytecode.NOT:
		s.setReg(in.Out, ^s.regs[in.A])
	case bytecode.AND:
		s.setReg(in.Out, s.regs[in.A]&s.regs[in.B])
	case bytecode.OR:
		s.setReg(in.Out, s.regs[in.A]|s.regs[in.B])
	case bytecode.NAND:
		s.setReg(in.Out, ^(s.regs[in.A] & s.regs[in.B]))
	case bytecode.NOR:
		s.setReg(in.Out, ^(s.regs[in.A] | s.regs[in.B]))
	case bytecode.XOR:
		s.setReg(in.Out, s.regs[in.A]^s.regs[in.B])
	case bytecode.XNOR:
		s.setReg(in.Out, ^(s.regs[in.A] ^ s.regs[in.B]))
	case bytecode.CONCAT:
		lhsWidth := s.prog.Registers[in.A].Width
		s.setReg(in.Out, s.regs[in.A]|(s.regs[in.B]<<lhsWidth))
	case bytecode.SELECT:
		s.setReg(in.Out, (s.regs[in.A]>>uint(in.N0))&1)
	case bytecode.SLICE:
		width := in.N1 - in.N0 + 1
		s.setReg(in.Out, (s.regs[in.A]>>uint(in.N0))&maskFor(uint8(width)))
	case bytecode.MUX:
		if s.regs[in.A]&1 != 0 {
			s.setReg(in.Out, s.regs[in.C])
		} else {
			s.setReg(in.Out, s.regs[in.B])
		}
	case bytecode.REG:
		s.setReg(in.Out, s.prev[in.A])
	case bytecode.ROM:
		addr := s.regs[in.A]
		s.setReg(in.Out, s.mem[in.Mem][addr])
	case bytecode.RAM:
		addr := s.regs[in.A]
		s.setReg(in.Out, s.mem[in.Mem][addr])
		s.pending = append(s.pending, pendingWrite{mem: in.Mem, we: in.B, addr: in.C, data: in.D})
	}
}

// commitWrites applies every RAM write queued during the cycle: writes
// made during a cycle are never visible to reads within that same
// cycle. Write-enable, address and data are read here, from the
// registers' end-of-cycle values.
func (s *Simulator) commitWrites() {
	for _, w := range s.pending {
		if s.regs[w.we]&1 == 0 {
			continue
		}
		block := s.mem[w.mem]
		mask := maskFor(s.prog.Memories[w.mem].WordSize)
		block[s.regs[w.addr]] = s.regs[w.data] & mask
	}
	s.pending = s.pending[:0]
}

func (s *Simulator) validate(in bytecode.Instr) {
	check := func(idx bytecode.RegIndex) {
		if int(idx) >= len(s.regs) {
			panic(errors.Errorf("vm: register index %d out of range", idx).Error())
		}
	}
	check(in.Out)
	switch in.Op {
	case bytecode.NOT, bytecode.REG:
		check(in.A)
		if s.prog.Registers[in.A].Width != s.prog.Registers[in.Out].Width {
			panic("vm: width mismatch")
		}
	case bytecode.AND, bytecode.OR, bytecode.NAND, bytecode.NOR, bytecode.XOR, bytecode.XNOR:
		check(in.A)
		check(in.B)
		if s.prog.Registers[in.A].Width != s.prog.Registers[in.B].Width || s.prog.Registers[in.A].Width != s.prog.Registers[in.Out].Width {
			panic("vm: width mismatch")
		}
	case bytecode.MUX:
		check(in.A)
		check(in.B)
		check(in.C)
		if s.prog.Registers[in.B].Width != s.prog.Registers[in.C].Width {
			panic("vm: width mismatch")
		}
	case bytecode.RAM:
		check(in.A)
		check(in.B)
		check(in.C)
		check(in.D)
	case bytecode.ROM, bytecode.SELECT, bytecode.SLICE:
		check(in.A)
	case bytecode.CONCAT:
		check(in.A)
		check(in.B)
	}
}
