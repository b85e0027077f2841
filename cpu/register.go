// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// Register identifies one of the eight IA-32 general-purpose registers. Its
// value is the 3-bit index used by the binary encoding.
type Register byte

// General-purpose registers, in encoding order.
const (
	EAX Register = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

// NumRegisters is the number of general-purpose registers.
const NumRegisters = 8

var registerNames = [NumRegisters]string{
	"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI",
}

func (r Register) String() string {
	if int(r) < len(registerNames) {
		return registerNames[r]
	}
	return "R?"
}

// RegisterFromIndex maps a raw 3-bit register field to a Register. Any
// index outside 0..7 produces an invalid-register fault.
func RegisterFromIndex(index byte) (Register, error) {
	if index >= NumRegisters {
		return 0, &Fault{Kind: FaultInvalidRegister, Field: index}
	}
	return Register(index), nil
}

// LookupRegister finds a register by its (case-insensitive) name.
func LookupRegister(name string) (Register, bool) {
	name = strings.ToUpper(name)
	for i, n := range registerNames {
		if n == name {
			return Register(i), true
		}
	}
	return 0, false
}

// Registers contains the state of the IA-32 register file.
type Registers struct {
	GPR    [NumRegisters]uint32 // general-purpose registers, by index
	EFlags uint32               // flags word (stored, not interpreted)
	EIP    uint32               // instruction pointer
}

// Init initializes all registers. Every general-purpose register is zero
// except ESP, which takes the initial stack pointer. EIP takes the entry
// address.
func (r *Registers) Init(eip, esp uint32) {
	r.GPR = [NumRegisters]uint32{}
	r.GPR[ESP] = esp
	r.EFlags = 0
	r.EIP = eip
}

// Get returns the value of register 'reg'.
func (r *Registers) Get(reg Register) uint32 {
	return r.GPR[reg&7]
}

// Set updates the value of register 'reg'.
func (r *Registers) Set(reg Register, v uint32) {
	r.GPR[reg&7] = v
}
