// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements an IA-32 disassembler for code stored in the
// emulator's memory.
package disasm

import (
	"fmt"
	"strings"

	"github.com/beevik/go386/cpu"
	"golang.org/x/arch/x86/x86asm"
)

// MaxInstructionLen is the longest encoding an IA-32 instruction may have.
const MaxInstructionLen = 15

// A SymbolLookup returns the name of the symbol containing 'addr' and the
// symbol's base address. It returns an empty name when no symbol is known.
type SymbolLookup func(addr uint32) (name string, base uint32)

// Disassemble the machine code in memory 'm' at address 'addr'. Return a
// 'line' string representing the disassembled instruction and a 'next'
// address that starts the following line of machine code. Branch targets
// are named using 'sym' when it is non-nil.
//
// Bytes that do not decode to a valid instruction are shown as a single
// "db" byte.
func Disassemble(m cpu.Memory, addr uint32, sym SymbolLookup) (line string, next uint32) {
	code := fetch(m, addr)
	if len(code) == 0 {
		return "??", addr + 1
	}

	inst, err := x86asm.Decode(code, 32)
	if err != nil || inst.Len == 0 {
		return fmt.Sprintf("db 0x%02x", code[0]), addr + 1
	}

	symname := func(a uint64) (string, uint64) {
		if sym == nil {
			return "", 0
		}
		name, base := sym(uint32(a))
		return name, uint64(base)
	}
	line = x86asm.IntelSyntax(inst, uint64(addr), symname)
	return line, addr + uint32(inst.Len)
}

// Load up to MaxInstructionLen bytes, clipped to the end of memory.
func fetch(m cpu.Memory, addr uint32) []byte {
	size := m.Size()
	if addr >= size {
		return nil
	}
	n := size - addr
	if n > MaxInstructionLen {
		n = MaxInstructionLen
	}
	b := make([]byte, n)
	if err := m.LoadBytes(addr, b); err != nil {
		return nil
	}
	return b
}

// CodeString returns the hexadecimal representation of the bytes at
// [addr, next), separated by spaces.
func CodeString(m cpu.Memory, addr, next uint32) string {
	if next <= addr {
		return ""
	}
	b := make([]byte, next-addr)
	if err := m.LoadBytes(addr, b); err != nil {
		return ""
	}
	s := make([]string, len(b))
	for i, v := range b {
		s[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(s, " ")
}

// RegisterString returns a string describing the contents of the
// general-purpose registers and EIP.
func RegisterString(r *cpu.Registers) string {
	var sb strings.Builder
	for i := 0; i < cpu.NumRegisters; i++ {
		reg := cpu.Register(i)
		fmt.Fprintf(&sb, "%s=%08X ", reg, r.Get(reg))
	}
	fmt.Fprintf(&sb, "EIP=%08X", r.EIP)
	return sb.String()
}
