// Package bytecode defines a flat, word-addressed instruction stream: a
// register table (name, width, flags), a memory-block table (address
// size, word size) and a slice of 32-bit words, little-endian, one
// instruction's worth at a time. Instruction length is a pure function
// of its opcode, so the decoder never needs a length prefix.
//
// This plays the role of original_source/src/instruction.hpp's
// Instruction hierarchy, but as one flat word stream instead of a vector
// of heap-allocated instruction objects: tagged variants over a byte
// stream, taken one step further than a plain tagged-union rewrite
// would go, so the simulator (package vm) never walks pointers at all.
package bytecode

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Opcode is the tag stored in the low byte of an instruction's first
// word.
type Opcode byte

const (
	NOP Opcode = iota
	BREAK
	CONST
	NOT
	AND
	OR
	NAND
	NOR
	XOR
	XNOR
	CONCAT
	SELECT
	SLICE
	MUX
	REG
	ROM
	RAM
)

var opcodeNames = [...]string{
	NOP: "NOP", BREAK: "BREAK", CONST: "CONST", NOT: "NOT",
	AND: "AND", OR: "OR", NAND: "NAND", NOR: "NOR", XOR: "XOR", XNOR: "XNOR",
	CONCAT: "CONCAT", SELECT: "SELECT", SLICE: "SLICE", MUX: "MUX",
	REG: "REG", ROM: "ROM", RAM: "RAM",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// instrLen gives, in 32-bit words, the length of an instruction with the
// given opcode. This is the single source of truth the decoder, the
// breakpoint patcher and the disassembler all use to know where the next
// instruction starts.
var instrLen = [...]int{
	NOP: 1, BREAK: 1, CONST: 3, NOT: 2,
	AND: 3, OR: 3, NAND: 3, NOR: 3, XOR: 3, XNOR: 3,
	CONCAT: 3, SELECT: 3, SLICE: 3, MUX: 4,
	REG: 2, ROM: 3, RAM: 6,
}

// Len returns op's instruction length in 32-bit words.
func (op Opcode) Len() int {
	if int(op) < len(instrLen) {
		return instrLen[op]
	}
	return 1
}

// RegFlag marks a register's role, orthogonal to its width.
type RegFlag uint8

const (
	FlagInput RegFlag = 1 << iota
	FlagOutput
)

// Register is one entry of the register table: a named bus of width in
// [1,64], persisting for the program's lifetime.
type Register struct {
	Name  string
	Width uint8
	Flags RegFlag
}

func (r Register) IsInput() bool  { return r.Flags&FlagInput != 0 }
func (r Register) IsOutput() bool { return r.Flags&FlagOutput != 0 }

// Memory is one ROM/RAM block: 2^AddrSize words of WordSize bits each.
// Register names the ROM/RAM instruction's output, so a memory image
// loader (cmd/netlist) can address a block by the netlist variable name
// it backs rather than by a positional index.
type Memory struct {
	AddrSize uint8
	WordSize uint8
	Register RegIndex
	Writable bool // true for RAM, false for ROM
}

func (m Memory) Size() int { return 1 << uint(m.AddrSize) }

// RegIndex identifies a register by its dense position in Program.Registers.
type RegIndex uint32

// MemIndex identifies a memory block by its position in Program.Memories.
type MemIndex uint32

// Program is a complete compiled netlist: its register and memory
// tables plus the flat instruction word stream.
type Program struct {
	Registers []Register
	Memories  []Memory
	Code      []uint32
}

// AddRegister appends a new register and returns its index.
func (p *Program) AddRegister(name string, width uint8, flags RegFlag) RegIndex {
	p.Registers = append(p.Registers, Register{Name: name, Width: width, Flags: flags})
	return RegIndex(len(p.Registers) - 1)
}

// AddMemory appends a new memory block owned by out and returns its
// index.
func (p *Program) AddMemory(addrSize, wordSize uint8, out RegIndex, writable bool) MemIndex {
	p.Memories = append(p.Memories, Memory{AddrSize: addrSize, WordSize: wordSize, Register: out, Writable: writable})
	return MemIndex(len(p.Memories) - 1)
}

// PC returns the word offset the next Emit* call will write to: the
// start offset of the instruction about to be appended.
func (p *Program) PC() int { return len(p.Code) }

func word0(op Opcode, out RegIndex) uint32 {
	return uint32(op) | uint32(out)<<8
}

func (p *Program) EmitNop() { p.Code = append(p.Code, word0(NOP, 0)) }

func (p *Program) EmitConst(out RegIndex, imm uint64) {
	p.Code = append(p.Code, word0(CONST, out), uint32(imm), uint32(imm>>32))
}

func (p *Program) EmitNot(out, in RegIndex) {
	p.Code = append(p.Code, word0(NOT, out), uint32(in))
}

// EmitBinary appends an out/lhs/rhs instruction; it serves every opcode
// with that wire shape (AND..XNOR and CONCAT).
func (p *Program) EmitBinary(op Opcode, out, lhs, rhs RegIndex) {
	p.Code = append(p.Code, word0(op, out), uint32(lhs), uint32(rhs))
}

func (p *Program) EmitSelect(out, in RegIndex, index int) {
	p.Code = append(p.Code, word0(SELECT, out), uint32(in), uint32(index))
}

func (p *Program) EmitSlice(out, in RegIndex, first, end int) {
	p.Code = append(p.Code, word0(SLICE, out), uint32(in), uint32(first)|uint32(end)<<8)
}

func (p *Program) EmitMux(out, choice, a, b RegIndex) {
	p.Code = append(p.Code, word0(MUX, out), uint32(choice), uint32(a), uint32(b))
}

func (p *Program) EmitReg(out, in RegIndex) {
	p.Code = append(p.Code, word0(REG, out), uint32(in))
}

func (p *Program) EmitRom(out, readAddr RegIndex, mem MemIndex) {
	p.Code = append(p.Code, word0(ROM, out), uint32(readAddr), uint32(mem))
}

func (p *Program) EmitRam(out, readAddr, we, writeAddr, writeData RegIndex, mem MemIndex) {
	p.Code = append(p.Code, word0(RAM, out), uint32(readAddr), uint32(we), uint32(writeAddr), uint32(writeData), uint32(mem))
}

// Instr is a decoded instruction: the fields populated depend on Op, the
// same way an original_source Instruction subclass's own fields would,
// but collapsed into one struct so the simulator and disassembler can
// both dispatch with a single type switch on Op instead of walking a
// class hierarchy.
type Instr struct {
	Op  Opcode
	Out RegIndex

	A, B, C, D RegIndex // operand registers, meaning depends on Op
	Imm        uint64   // CONST
	N0, N1     int      // SELECT's index; SLICE's first/end
	Mem        MemIndex // ROM/RAM
}

// Decode reads the instruction at word offset pc, returning it along
// with the offset of the instruction that follows.
func Decode(code []uint32, pc int) (Instr, int) {
	op := Opcode(byte(code[pc]))
	out := RegIndex(code[pc] >> 8)
	in := Instr{Op: op, Out: out}

	switch op {
	case NOP, BREAK:
	case CONST:
		in.Imm = uint64(code[pc+1]) | uint64(code[pc+2])<<32
	case NOT:
		in.A = RegIndex(code[pc+1])
	case AND, OR, NAND, NOR, XOR, XNOR, CONCAT:
		in.A = RegIndex(code[pc+1])
		in.B = RegIndex(code[pc+2])
	case SELECT:
		in.A = RegIndex(code[pc+1])
		in.N0 = int(code[pc+2])
	case SLICE:
		in.A = RegIndex(code[pc+1])
		in.N0 = int(code[pc+2] & 0xff)
		in.N1 = int(code[pc+2]>>8) & 0xff
	case MUX:
		in.A = RegIndex(code[pc+1])
		in.B = RegIndex(code[pc+2])
		in.C = RegIndex(code[pc+3])
	case REG:
		in.A = RegIndex(code[pc+1])
	case ROM:
		in.A = RegIndex(code[pc+1])
		in.Mem = MemIndex(code[pc+2])
	case RAM:
		in.A = RegIndex(code[pc+1])
		in.B = RegIndex(code[pc+2])
		in.C = RegIndex(code[pc+3])
		in.D = RegIndex(code[pc+4])
		in.Mem = MemIndex(code[pc+5])
	}
	return in, pc + op.Len()
}

const magic = uint32(0x6e746c42) // "ntlB" in little-endian bytes

// Encode writes the persisted binary form of a compiled program: a
// small fixed header followed by the register table, the memory table
// and the code words, all little-endian. A from-scratch fixed layout
// like this has no use for encoding/gob's self-describing Go-value
// encoding, so it is written directly with encoding/binary.
func (p *Program) Encode(w io.Writer) error {
	header := []uint32{magic, uint32(len(p.Registers)), uint32(len(p.Memories)), uint32(len(p.Code))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return errors.Wrap(err, "bytecode: write header")
		}
	}
	for _, r := range p.Registers {
		if err := writeRegister(w, r); err != nil {
			return errors.Wrap(err, "bytecode: write register table")
		}
	}
	for _, m := range p.Memories {
		if err := binary.Write(w, binary.LittleEndian, m); err != nil {
			return errors.Wrap(err, "bytecode: write memory table")
		}
	}
	if err := binary.Write(w, binary.LittleEndian, p.Code); err != nil {
		return errors.Wrap(err, "bytecode: write code")
	}
	return nil
}

func writeRegister(w io.Writer, r Register) error {
	nameBytes := []byte(r.Name)
	if err := binary.Write(w, binary.LittleEndian, uint32(len(nameBytes))); err != nil {
		return err
	}
	if _, err := w.Write(nameBytes); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, r.Width); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, r.Flags)
}

// DecodeProgram reads back a Program written by Encode.
func DecodeProgram(r io.Reader) (*Program, error) {
	var hdr [4]uint32
	for i := range hdr {
		if err := binary.Read(r, binary.LittleEndian, &hdr[i]); err != nil {
			return nil, errors.Wrap(err, "bytecode: read header")
		}
	}
	if hdr[0] != magic {
		return nil, errors.Errorf("bytecode: bad magic %#x", hdr[0])
	}

	p := &Program{
		Registers: make([]Register, hdr[1]),
		Memories:  make([]Memory, hdr[2]),
		Code:      make([]uint32, hdr[3]),
	}
	for i := range p.Registers {
		reg, err := readRegister(r)
		if err != nil {
			return nil, errors.Wrap(err, "bytecode: read register table")
		}
		p.Registers[i] = reg
	}
	for i := range p.Memories {
		if err := binary.Read(r, binary.LittleEndian, &p.Memories[i]); err != nil {
			return nil, errors.Wrap(err, "bytecode: read memory table")
		}
	}
	if err := binary.Read(r, binary.LittleEndian, p.Code); err != nil {
		return nil, errors.Wrap(err, "bytecode: read code")
	}
	return p, nil
}

func readRegister(r io.Reader) (Register, error) {
	var nameLen uint32
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return Register{}, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return Register{}, err
	}
	var reg Register
	reg.Name = string(nameBytes)
	if err := binary.Read(r, binary.LittleEndian, &reg.Width); err != nil {
		return Register{}, err
	}
	if err := binary.Read(r, binary.LittleEndian, &reg.Flags); err != nil {
		return Register{}, err
	}
	return reg, nil
}
