// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

type instfunc func(c *CPU, inst *Instruction) error

type groupfunc func(c *CPU, m *ModRM) error

// An Instruction describes the handler registered for one opcode byte.
type Instruction struct {
	Name   string // mnemonic, empty when no handler is registered
	Opcode byte   // opcode byte
	fn     instfunc
}

// Implemented returns true if a handler is registered for the opcode.
func (inst *Instruction) Implemented() bool {
	return inst.fn != nil
}

// An InstructionSet maps every opcode byte to its instruction handler.
// It is built once and never modified afterwards.
type InstructionSet struct {
	instructions [256]Instruction
}

// Lookup retrieves the instruction for the opcode. The returned
// instruction is never nil; check Implemented before executing it.
func (s *InstructionSet) Lookup(opcode byte) *Instruction {
	return &s.instructions[opcode]
}

// Emulator implementation for each opcode. Opcodes that encode a register
// in their low three bits occupy 'count' consecutive table slots.
var impl = []struct {
	opcode byte
	count  int
	name   string
	fn     instfunc
}{
	{0x01, 1, "ADD", (*CPU).addRM32R32},
	{0x50, 8, "PUSH", (*CPU).pushR32},
	{0x58, 8, "POP", (*CPU).popR32},
	{0x68, 1, "PUSH", (*CPU).pushImm32},
	{0x6a, 1, "PUSH", (*CPU).pushImm8},
	{0x83, 1, "GRP1", (*CPU).code83},
	{0x89, 1, "MOV", (*CPU).movRM32R32},
	{0x8b, 1, "MOV", (*CPU).movR32RM32},
	{0xb8, 8, "MOV", (*CPU).movR32Imm32},
	{0xc3, 1, "RET", (*CPU).ret},
	{0xc7, 1, "MOV", (*CPU).movRM32Imm32},
	{0xc9, 1, "LEAVE", (*CPU).leave},
	{0xe8, 1, "CALL", (*CPU).callRel32},
	{0xe9, 1, "JMP", (*CPU).nearJump},
	{0xeb, 1, "JMP", (*CPU).shortJump},
	{0xff, 1, "GRP5", (*CPU).codeFF},
}

// Group opcode sub-operations, indexed by the ModRM extension field.
// Empty slots fault.
var (
	group83 = [8]groupfunc{
		0: (*CPU).addRM32Imm8,
		5: (*CPU).subRM32Imm8,
	}
	groupFF = [8]groupfunc{
		0: (*CPU).incRM32,
	}
)

// NewInstructionSet builds the opcode dispatch table.
func NewInstructionSet() *InstructionSet {
	set := &InstructionSet{}
	for i := range set.instructions {
		set.instructions[i].Opcode = byte(i)
	}
	for _, d := range impl {
		for i := 0; i < d.count; i++ {
			inst := &set.instructions[int(d.opcode)+i]
			inst.Name = d.name
			inst.fn = d.fn
		}
	}
	return set
}

// Move a 32-bit immediate into the register encoded in the opcode.
func (cpu *CPU) movR32Imm32(inst *Instruction) error {
	v, err := cpu.FetchU32(1)
	if err != nil {
		return err
	}
	if err := cpu.WriteRegister(inst.Opcode-0xb8, v); err != nil {
		return err
	}
	cpu.Reg.EIP += 5
	return nil
}

// Move a register (reg field) into the r/m operand.
func (cpu *CPU) movRM32R32(inst *Instruction) error {
	cpu.Reg.EIP++
	m, err := cpu.DecodeModRM()
	if err != nil {
		return err
	}
	v, err := cpu.ReadR32(&m)
	if err != nil {
		return err
	}
	return cpu.WriteRM32(&m, v)
}

// Move the r/m operand into a register (reg field).
func (cpu *CPU) movR32RM32(inst *Instruction) error {
	cpu.Reg.EIP++
	m, err := cpu.DecodeModRM()
	if err != nil {
		return err
	}
	v, err := cpu.ReadRM32(&m)
	if err != nil {
		return err
	}
	return cpu.WriteR32(&m, v)
}

// Move a 32-bit immediate, which follows the addressing bytes, into the
// r/m operand.
func (cpu *CPU) movRM32Imm32(inst *Instruction) error {
	cpu.Reg.EIP++
	m, err := cpu.DecodeModRM()
	if err != nil {
		return err
	}
	v, err := cpu.FetchU32(0)
	if err != nil {
		return err
	}
	cpu.Reg.EIP += 4
	return cpu.WriteRM32(&m, v)
}

// Add a register (reg field) to the r/m operand.
func (cpu *CPU) addRM32R32(inst *Instruction) error {
	cpu.Reg.EIP++
	m, err := cpu.DecodeModRM()
	if err != nil {
		return err
	}
	r32, err := cpu.ReadR32(&m)
	if err != nil {
		return err
	}
	rm32, err := cpu.ReadRM32(&m)
	if err != nil {
		return err
	}
	return cpu.WriteRM32(&m, rm32+r32)
}

// Group 1 with a sign-extended 8-bit immediate.
func (cpu *CPU) code83(inst *Instruction) error {
	return cpu.execGroup(inst, &group83)
}

// Group 5.
func (cpu *CPU) codeFF(inst *Instruction) error {
	return cpu.execGroup(inst, &groupFF)
}

// Decode the addressing bytes of a group opcode and dispatch on the
// extension field.
func (cpu *CPU) execGroup(inst *Instruction, group *[8]groupfunc) error {
	cpu.Reg.EIP++
	m, err := cpu.DecodeModRM()
	if err != nil {
		return err
	}
	ext := m.ExtensionSelector()
	fn := group[ext&7]
	if fn == nil {
		return &Fault{Kind: FaultUnimplementedExtension, Opcode: inst.Opcode, Field: ext}
	}
	return fn(cpu, &m)
}

func (cpu *CPU) addRM32Imm8(m *ModRM) error {
	rm32, err := cpu.ReadRM32(m)
	if err != nil {
		return err
	}
	imm8, err := cpu.FetchI8(0)
	if err != nil {
		return err
	}
	cpu.Reg.EIP++
	return cpu.WriteRM32(m, rm32+uint32(int32(imm8)))
}

func (cpu *CPU) subRM32Imm8(m *ModRM) error {
	rm32, err := cpu.ReadRM32(m)
	if err != nil {
		return err
	}
	imm8, err := cpu.FetchI8(0)
	if err != nil {
		return err
	}
	cpu.Reg.EIP++
	return cpu.WriteRM32(m, rm32-uint32(int32(imm8)))
}

func (cpu *CPU) incRM32(m *ModRM) error {
	v, err := cpu.ReadRM32(m)
	if err != nil {
		return err
	}
	return cpu.WriteRM32(m, v+1)
}

// Push the register encoded in the opcode.
func (cpu *CPU) pushR32(inst *Instruction) error {
	v, err := cpu.ReadRegister(inst.Opcode - 0x50)
	if err != nil {
		return err
	}
	if err := cpu.Push32(v); err != nil {
		return err
	}
	cpu.Reg.EIP++
	return nil
}

// Pop into the register encoded in the opcode.
func (cpu *CPU) popR32(inst *Instruction) error {
	v, err := cpu.Pop32()
	if err != nil {
		return err
	}
	if err := cpu.WriteRegister(inst.Opcode-0x58, v); err != nil {
		return err
	}
	cpu.Reg.EIP++
	return nil
}

func (cpu *CPU) pushImm32(inst *Instruction) error {
	v, err := cpu.FetchU32(1)
	if err != nil {
		return err
	}
	if err := cpu.Push32(v); err != nil {
		return err
	}
	cpu.Reg.EIP += 5
	return nil
}

// Push an 8-bit immediate. The byte is widened without sign extension.
func (cpu *CPU) pushImm8(inst *Instruction) error {
	v, err := cpu.FetchU8(1)
	if err != nil {
		return err
	}
	if err := cpu.Push32(uint32(v)); err != nil {
		return err
	}
	cpu.Reg.EIP += 2
	return nil
}

// Push the return address and jump by a signed 32-bit displacement.
func (cpu *CPU) callRel32(inst *Instruction) error {
	diff, err := cpu.FetchI32(1)
	if err != nil {
		return err
	}
	if err := cpu.Push32(cpu.Reg.EIP + 5); err != nil {
		return err
	}
	cpu.Reg.EIP += uint32(diff) + 5
	return nil
}

func (cpu *CPU) ret(inst *Instruction) error {
	v, err := cpu.Pop32()
	if err != nil {
		return err
	}
	cpu.Reg.EIP = v
	return nil
}

// Tear down the stack frame: ESP takes EBP, then EBP is popped.
func (cpu *CPU) leave(inst *Instruction) error {
	ebp := cpu.Reg.Get(EBP)
	sp := cpu.Reg.Get(ESP)
	cpu.Reg.Set(ESP, ebp)
	v, err := cpu.Pop32()
	if err != nil {
		cpu.Reg.Set(ESP, sp)
		return err
	}
	cpu.Reg.Set(EBP, v)
	cpu.Reg.EIP++
	return nil
}

func (cpu *CPU) shortJump(inst *Instruction) error {
	diff, err := cpu.FetchI8(1)
	if err != nil {
		return err
	}
	cpu.Reg.EIP += uint32(int32(diff)) + 2
	return nil
}

func (cpu *CPU) nearJump(inst *Instruction) error {
	diff, err := cpu.FetchI32(1)
	if err != nil {
		return err
	}
	cpu.Reg.EIP += uint32(diff) + 5
	return nil
}
