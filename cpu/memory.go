// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// The Memory interface presents an interface to the CPU through which all
// memory accesses occur. Addresses are absolute byte offsets into a single
// linear address space. Accesses outside the space return a memory-bounds
// fault.
type Memory interface {
	// Size returns the number of addressable bytes.
	Size() uint32

	// LoadByte loads a single byte from the address and returns it.
	LoadByte(addr uint32) (byte, error)

	// LoadBytes loads len(b) bytes starting at the address into 'b'.
	LoadBytes(addr uint32, b []byte) error

	// StoreByte stores a byte to the requested address.
	StoreByte(addr uint32, v byte) error

	// StoreBytes stores multiple bytes to the requested address.
	StoreBytes(addr uint32, b []byte) error
}

// FlatMemory represents the entire address space as one contiguous
// buffer.
type FlatMemory struct {
	b []byte
}

// NewFlatMemory creates a zero-filled memory space of 'size' bytes.
func NewFlatMemory(size uint32) *FlatMemory {
	return &FlatMemory{b: make([]byte, size)}
}

// NewImageMemory creates a memory space holding 'image' at address 'base'.
// The memory is exactly base+len(image) bytes long, and every byte below
// 'base' is zero.
func NewImageMemory(base uint32, image []byte) *FlatMemory {
	m := NewFlatMemory(base + uint32(len(image)))
	copy(m.b[base:], image)
	return m
}

// Size returns the number of addressable bytes.
func (m *FlatMemory) Size() uint32 {
	return uint32(len(m.b))
}

// LoadByte loads a single byte from the address and returns it.
func (m *FlatMemory) LoadByte(addr uint32) (byte, error) {
	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	return m.b[addr], nil
}

// LoadBytes loads multiple bytes from the address into 'b'.
func (m *FlatMemory) LoadBytes(addr uint32, b []byte) error {
	if err := m.check(addr, len(b)); err != nil {
		return err
	}
	copy(b, m.b[addr:])
	return nil
}

// StoreByte stores a byte at the requested address.
func (m *FlatMemory) StoreByte(addr uint32, v byte) error {
	if err := m.check(addr, 1); err != nil {
		return err
	}
	m.b[addr] = v
	return nil
}

// StoreBytes stores multiple bytes to the requested address.
func (m *FlatMemory) StoreBytes(addr uint32, b []byte) error {
	if err := m.check(addr, len(b)); err != nil {
		return err
	}
	copy(m.b[addr:], b)
	return nil
}

func (m *FlatMemory) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(len(m.b)) {
		return &Fault{Kind: FaultMemoryBounds, Addr: addr, Size: n}
	}
	return nil
}
