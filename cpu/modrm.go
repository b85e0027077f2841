// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// ModRM describes the operand addressing decoded from the mode byte (and
// any SIB and displacement bytes) that follows an opcode. It lives only
// for the duration of one instruction.
type ModRM struct {
	Mod         byte   // 3 = register direct, 0/1/2 = memory with 0/8/32-bit displacement
	RegOrOpcode byte   // register selector or opcode extension, uninterpreted
	RM          byte   // register, or memory base selector
	SIB         byte   // scale-index-base byte, valid when HasSIB
	HasSIB      bool   // a SIB byte was consumed
	DispSize    byte   // displacement size in bytes: 0, 1 or 4
	Disp        uint32 // raw displacement bits
}

// RegisterSelector interprets the reg field as a register operand.
func (m *ModRM) RegisterSelector() byte {
	return m.RegOrOpcode
}

// ExtensionSelector interprets the reg field as a group opcode extension.
func (m *ModRM) ExtensionSelector() byte {
	return m.RegOrOpcode
}

// Disp8 returns the 8-bit displacement as a signed value.
func (m *ModRM) Disp8() int8 {
	return int8(byte(m.Disp))
}

// Len returns the number of bytes the addressing form occupies.
func (m *ModRM) Len() uint32 {
	n := uint32(1) + uint32(m.DispSize)
	if m.HasSIB {
		n++
	}
	return n
}

// DecodeModRM decodes the addressing bytes at EIP and advances EIP past
// them. EIP must point at the mode byte that follows an already consumed
// opcode.
func (cpu *CPU) DecodeModRM() (ModRM, error) {
	var m ModRM

	code, err := cpu.FetchU8(0)
	if err != nil {
		return m, err
	}
	m.Mod = code >> 6
	m.RegOrOpcode = (code >> 3) & 7
	m.RM = code & 7
	cpu.Reg.EIP++

	if m.Mod != 3 && m.RM == 4 {
		if m.SIB, err = cpu.FetchU8(0); err != nil {
			return m, err
		}
		m.HasSIB = true
		cpu.Reg.EIP++
	}

	switch {
	case m.Mod == 2 || (m.Mod == 0 && m.RM == 5):
		if m.Disp, err = cpu.FetchU32(0); err != nil {
			return m, err
		}
		m.DispSize = 4
		cpu.Reg.EIP += 4
	case m.Mod == 1:
		b, err := cpu.FetchU8(0)
		if err != nil {
			return m, err
		}
		m.Disp, m.DispSize = uint32(b), 1
		cpu.Reg.EIP++
	}

	return m, nil
}

// EffectiveAddress computes the memory address named by a memory-form
// ModRM. Register-direct forms and forms that need SIB decoding fault.
func (cpu *CPU) EffectiveAddress(m *ModRM) (uint32, error) {
	if m.Mod == 3 {
		return 0, &Fault{Kind: FaultInvalidAddressing, Mod: m.Mod, Field: m.RM}
	}
	if m.RM == 4 {
		return 0, &Fault{Kind: FaultUnsupportedSIB, Mod: m.Mod, Field: m.RM}
	}

	switch m.Mod {
	case 0:
		if m.RM == 5 {
			return m.Disp, nil
		}
		return cpu.ReadRegister(m.RM)
	case 1:
		base, err := cpu.ReadRegister(m.RM)
		if err != nil {
			return 0, err
		}
		return base + uint32(int32(m.Disp8())), nil
	default:
		base, err := cpu.ReadRegister(m.RM)
		if err != nil {
			return 0, err
		}
		return base + m.Disp, nil
	}
}

// ReadRM32 loads the dword operand named by the r/m field.
func (cpu *CPU) ReadRM32(m *ModRM) (uint32, error) {
	if m.Mod == 3 {
		return cpu.ReadRegister(m.RM)
	}
	addr, err := cpu.EffectiveAddress(m)
	if err != nil {
		return 0, err
	}
	return cpu.ReadMem32(addr)
}

// WriteRM32 stores a dword to the operand named by the r/m field.
func (cpu *CPU) WriteRM32(m *ModRM, v uint32) error {
	if m.Mod == 3 {
		return cpu.WriteRegister(m.RM, v)
	}
	addr, err := cpu.EffectiveAddress(m)
	if err != nil {
		return err
	}
	return cpu.WriteMem32(addr, v)
}

// ReadR32 loads the register named by the reg field.
func (cpu *CPU) ReadR32(m *ModRM) (uint32, error) {
	return cpu.ReadRegister(m.RegisterSelector())
}

// WriteR32 stores to the register named by the reg field.
func (cpu *CPU) WriteR32(m *ModRM, v uint32) error {
	return cpu.WriteRegister(m.RegisterSelector(), v)
}
