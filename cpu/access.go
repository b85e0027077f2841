// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// ToSigned8 reinterprets a byte as a two's-complement value: x when x < 128,
// otherwise x - 256.
func ToSigned8(b byte) int8 {
	return int8(b)
}

// FetchU8 reads the byte at EIP+offset.
func (cpu *CPU) FetchU8(offset uint32) (byte, error) {
	return cpu.Mem.LoadByte(cpu.Reg.EIP + offset)
}

// FetchI8 reads the byte at EIP+offset as a signed value.
func (cpu *CPU) FetchI8(offset uint32) (int8, error) {
	b, err := cpu.FetchU8(offset)
	return ToSigned8(b), err
}

// FetchU32 reads the little-endian dword at EIP+offset, one byte at a
// time.
func (cpu *CPU) FetchU32(offset uint32) (uint32, error) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, err := cpu.FetchU8(offset + i)
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

// FetchI32 reads the dword at EIP+offset as a signed value.
func (cpu *CPU) FetchI32(offset uint32) (int32, error) {
	v, err := cpu.FetchU32(offset)
	return int32(v), err
}

// ReadRegister returns the register selected by a raw 3-bit index.
func (cpu *CPU) ReadRegister(index byte) (uint32, error) {
	r, err := RegisterFromIndex(index)
	if err != nil {
		return 0, err
	}
	return cpu.Reg.Get(r), nil
}

// WriteRegister updates the register selected by a raw 3-bit index.
func (cpu *CPU) WriteRegister(index byte, v uint32) error {
	r, err := RegisterFromIndex(index)
	if err != nil {
		return err
	}
	cpu.Reg.Set(r, v)
	return nil
}

// ReadMem8 loads the byte at an absolute address.
func (cpu *CPU) ReadMem8(addr uint32) (byte, error) {
	return cpu.Mem.LoadByte(addr)
}

// ReadMem32 loads the little-endian dword at an absolute address. The
// address need not be aligned.
func (cpu *CPU) ReadMem32(addr uint32) (uint32, error) {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, err := cpu.Mem.LoadByte(addr + i)
		if err != nil {
			return 0, err
		}
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

// WriteMem8 stores a byte at an absolute address.
func (cpu *CPU) WriteMem8(addr uint32, v byte) error {
	return cpu.storeByte(cpu, addr, v)
}

// WriteMem32 stores a dword at an absolute address in little-endian
// order. The four bytes are bounds-checked before any is written.
func (cpu *CPU) WriteMem32(addr uint32, v uint32) error {
	if uint64(addr)+4 > uint64(cpu.Mem.Size()) {
		return &Fault{Kind: FaultMemoryBounds, Addr: addr, Size: 4}
	}
	for i := uint32(0); i < 4; i++ {
		if err := cpu.storeByte(cpu, addr+i, byte(v>>(8*i))); err != nil {
			return err
		}
	}
	return nil
}

// Push32 decrements ESP by 4 and stores 'v' at the new ESP.
func (cpu *CPU) Push32(v uint32) error {
	sp := cpu.Reg.Get(ESP) - 4
	if err := cpu.WriteMem32(sp, v); err != nil {
		return err
	}
	cpu.Reg.Set(ESP, sp)
	return nil
}

// Pop32 loads the dword at ESP, then increments ESP by 4.
func (cpu *CPU) Pop32() (uint32, error) {
	sp := cpu.Reg.Get(ESP)
	v, err := cpu.ReadMem32(sp)
	if err != nil {
		return 0, err
	}
	cpu.Reg.Set(ESP, sp+4)
	return v, nil
}
