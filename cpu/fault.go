// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "fmt"

// FaultKind classifies a hard fault.
type FaultKind byte

// All hard fault kinds. Every fault terminates the run.
const (
	FaultInvalidRegister        FaultKind = iota + 1 // register field outside 0..7
	FaultUnimplementedExtension                      // group opcode extension with no handler
	FaultUnsupportedSIB                              // memory operand requires SIB decoding
	FaultInvalidAddressing                           // effective address requested for mod=3
	FaultMemoryBounds                                // access outside emulated memory
)

var faultKindNames = []string{
	FaultInvalidRegister:        "invalid register index",
	FaultUnimplementedExtension: "unimplemented opcode extension",
	FaultUnsupportedSIB:         "unsupported SIB addressing",
	FaultInvalidAddressing:      "invalid addressing mode",
	FaultMemoryBounds:           "memory access out of bounds",
}

func (k FaultKind) String() string {
	if int(k) < len(faultKindNames) && faultKindNames[k] != "" {
		return faultKindNames[k]
	}
	return "unknown fault"
}

// A Fault is an unrecoverable condition raised while decoding or executing
// an instruction. Fields that do not apply to the fault's kind are zero.
type Fault struct {
	Kind   FaultKind
	EIP    uint32 // address of the faulting instruction
	Opcode byte   // opcode of the faulting instruction
	Field  byte   // offending register or extension field
	Mod    byte   // ModRM mode, for addressing faults
	Addr   uint32 // offending address, for memory faults
	Size   int    // access size in bytes, for memory faults
}

func (f *Fault) Error() string {
	switch f.Kind {
	case FaultInvalidRegister:
		return fmt.Sprintf("%v: %d (opcode %02x at %08x)", f.Kind, f.Field, f.Opcode, f.EIP)
	case FaultUnimplementedExtension:
		return fmt.Sprintf("%v: %02x /%d at %08x", f.Kind, f.Opcode, f.Field, f.EIP)
	case FaultUnsupportedSIB, FaultInvalidAddressing:
		return fmt.Sprintf("%v: mod=%d rm=%d (opcode %02x at %08x)", f.Kind, f.Mod, f.Field, f.Opcode, f.EIP)
	case FaultMemoryBounds:
		return fmt.Sprintf("%v: %d byte(s) at %08x (opcode %02x at %08x)", f.Kind, f.Size, f.Addr, f.Opcode, f.EIP)
	default:
		return fmt.Sprintf("%v (opcode %02x at %08x)", f.Kind, f.Opcode, f.EIP)
	}
}
