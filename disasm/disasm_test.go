// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"strings"
	"testing"

	"github.com/beevik/go386/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	image := []byte{
		0x55,                         // push ebp
		0x89, 0xe5,                   // mov ebp, esp
		0xb8, 0x29, 0x00, 0x00, 0x00, // mov eax, 0x29
		0xc9, // leave
		0xc3, // ret
	}
	m := cpu.NewImageMemory(0x7c00, image)

	tests := []struct {
		addr     uint32
		mnemonic string
		next     uint32
	}{
		{0x7c00, "push", 0x7c01},
		{0x7c01, "mov", 0x7c03},
		{0x7c03, "mov", 0x7c08},
		{0x7c08, "leave", 0x7c09},
		{0x7c09, "ret", 0x7c0a},
	}
	for _, tt := range tests {
		line, next := Disassemble(m, tt.addr, nil)
		assert.True(t, strings.HasPrefix(line, tt.mnemonic), "line %q at %#x", line, tt.addr)
		assert.Equal(t, tt.next, next)
	}

	line, _ := Disassemble(m, 0x7c03, nil)
	assert.Contains(t, line, "eax")
	assert.Contains(t, line, "0x29")
}

func TestDisassembleTruncated(t *testing.T) {
	// A mov with its immediate cut off by the end of memory.
	m := cpu.NewImageMemory(0x7c00, []byte{0xb8, 0x01})
	line, next := Disassemble(m, 0x7c00, nil)
	assert.Equal(t, "db 0xb8", line)
	assert.Equal(t, uint32(0x7c01), next)

	line, next = Disassemble(m, 0x7c02, nil)
	assert.Equal(t, "??", line)
	assert.Equal(t, uint32(0x7c03), next)
}

func TestDisassembleSymbols(t *testing.T) {
	// call to 0x7c05, the instruction that follows.
	m := cpu.NewImageMemory(0x7c00, []byte{0xe8, 0x00, 0x00, 0x00, 0x00, 0xc3})
	sym := func(addr uint32) (string, uint32) {
		if addr == 0x7c05 {
			return "func", 0x7c05
		}
		return "", 0
	}
	line, next := Disassemble(m, 0x7c00, sym)
	require.Equal(t, uint32(0x7c05), next)
	assert.Contains(t, line, "call")
	assert.Contains(t, line, "func")
}

func TestCodeString(t *testing.T) {
	m := cpu.NewImageMemory(0x7c00, []byte{0xb8, 0x29, 0x00, 0x00, 0x00})
	assert.Equal(t, "B8 29 00 00 00", CodeString(m, 0x7c00, 0x7c05))
	assert.Equal(t, "", CodeString(m, 0x7c05, 0x7c05))
	assert.Equal(t, "", CodeString(m, 0x7c04, 0x7c08))
}

func TestRegisterString(t *testing.T) {
	var r cpu.Registers
	r.Init(0x7c00, 0x7c00)
	r.Set(cpu.EAX, 0x29)
	exp := "EAX=00000029 ECX=00000000 EDX=00000000 EBX=00000000 " +
		"ESP=00007C00 EBP=00000000 ESI=00000000 EDI=00000000 EIP=00007C00"
	assert.Equal(t, exp, RegisterString(&r))
}
