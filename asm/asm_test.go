// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func assemble(code string) (*Assembly, *SourceMap, error) {
	return Assemble(strings.NewReader(code), "test", 0x7c00, io.Discard, 0)
}

func checkASM(t *testing.T, asm string, expected string) {
	t.Helper()
	assembly, _, err := assemble(asm)
	if err != nil {
		t.Error(err)
		for _, e := range assembly.Errors {
			t.Error(e)
		}
		return
	}

	s := fmt.Sprintf("%X", assembly.Code)
	if s != expected {
		t.Error("code doesn't match expected")
		t.Errorf("got: %s\n", s)
		t.Errorf("exp: %s\n", expected)
	}
}

func checkASMError(t *testing.T, asm string, msg string) {
	t.Helper()
	assembly, _, err := assemble(asm)
	if err == nil {
		t.Errorf("Expected error on %s, didn't get one\n", asm)
		return
	}
	if err.Error() != "parse error" {
		t.Errorf("Expected 'parse error', got '%v'\n", err)
	}
	if len(assembly.Errors) == 0 || !strings.Contains(assembly.Errors[0], msg) {
		t.Errorf("Expected error containing '%s', got %v\n", msg, assembly.Errors)
	}
}

func TestMovImmediate(t *testing.T) {
	asm := `
	mov eax, 41
	mov ecx, 0x7c00
	mov edi, -1`

	checkASM(t, asm, "B829000000B9007C0000BFFFFFFFFF")
}

func TestMovModRM(t *testing.T) {
	asm := `
	mov ebp, esp
	mov eax, [ebp-4]
	mov [ebp+8], ecx
	mov [ebx], eax
	mov edx, [0x7e00]
	mov [ebp], eax
	mov [esi+0x200], eax
	mov [esp+4], eax`

	checkASM(t, asm, "89E58B45FC894D0889038B15007E0000894500"+
		"89860002000089442404")
}

func TestMovImmediateToMemory(t *testing.T) {
	asm := `
	mov dword [ebp-8], 5
	mov dword ptr [0x7e00], $12345678`

	checkASM(t, asm, "C745F805000000C705007E000078563412")
}

func TestArithmetic(t *testing.T) {
	asm := `
	add eax, ebx
	add [ebp-4], eax
	add esp, 8
	sub esp, 16
	add eax, -1
	sub dword [ebp-4], 1
	inc eax
	inc dword [ebp-4]`

	checkASM(t, asm, "01D80145FC83C40883EC1083C0FF836DFC01FFC0FF45FC")
}

func TestStack(t *testing.T) {
	asm := `
	push ebp
	push edi
	pop eax
	pop ebx
	push 1
	push 0x80
	push byte 0xff
	push dword 5
	push -1`

	checkASM(t, asm, "5557585B6A0168800000006AFF680500000068FFFFFFFF")
}

func TestBranches(t *testing.T) {
	asm := `
start:
	call func       ; forward reference
	jmp short done
	jmp start
func:	push ebp
	mov ebp, esp
	leave
	ret
done:`

	checkASM(t, asm, "E807000000EB0AE9F4FFFFFF5589E5C9C3")
}

func TestData(t *testing.T) {
	asm := `
	org 0x1000
value:
	dd value, 1
	db "Hi", 0
	db 'A', -128, 255`

	checkASM(t, asm, "00100000010000004869004180FF")

	assembly, _, err := assemble(asm)
	if err != nil {
		t.Fatal(err)
	}
	if assembly.Origin != 0x1000 {
		t.Errorf("Origin incorrect. exp: $1000, got: $%X", assembly.Origin)
	}
}

func TestOriginPadding(t *testing.T) {
	asm := `
	mov eax, 1
	org 0x7c08
	ret`

	checkASM(t, asm, "B801000000000000C3")
}

func TestComments(t *testing.T) {
	asm := `
	; a full-line comment
	db ";", 1   ; trailing comment
	RET`

	checkASM(t, asm, "3B01C3")
}

func TestErrors(t *testing.T) {
	checkASMError(t, "\tmov eax", "expected 2 operand(s), got 1")
	checkASMError(t, "\tsub eax, ebx", "unsupported operand combination")
	checkASMError(t, "\tadd eax, 200", "value 200 does not fit in 1 byte(s)")
	checkASMError(t, "\tcall missing", "undefined label 'missing'")
	checkASMError(t, "\tbogus eax", "unknown instruction 'bogus'")
	checkASMError(t, "x:\nx:", "label 'x' defined more than once")
	checkASMError(t, "\tmov [eax+ebx], ecx", "only one register allowed")
	checkASMError(t, "\tpop 5", "unsupported operand combination")
	checkASMError(t, "\tmov eax, 0x1g", "invalid digit 'g'")
	checkASMError(t, "\tdb 256", "value 256 does not fit in 1 byte(s)")
	checkASMError(t, "\tret\n\torg 0x7b00", "precedes current address")

	asm := `
	jmp short far
	org 0x7d00
far:`
	checkASMError(t, asm, "short branch target out of range (254)")
}

func TestErrorLocation(t *testing.T) {
	assembly, _, err := assemble("\tret\n\tmov eax, [ecx+edx]")
	if err == nil {
		t.Fatal("expected an error")
	}
	exp := "Syntax error in 'test' line 2, col 23: only one register allowed in a memory operand"
	if len(assembly.Errors) != 1 || assembly.Errors[0] != exp {
		t.Errorf("got %v\nexp %s", assembly.Errors, exp)
	}
}

func TestSourceMap(t *testing.T) {
	asm := `
start:
	mov eax, 1
loop:	inc eax
	jmp short loop`

	_, sm, err := assemble(asm)
	if err != nil {
		t.Fatal(err)
	}

	if sm.Origin != 0x7c00 || sm.Size != 9 {
		t.Errorf("origin/size incorrect. got: $%X/%d", sm.Origin, sm.Size)
	}
	if line, ok := sm.Find(0x7c05); !ok || line != 4 {
		t.Errorf("line for $7C05 incorrect. exp: 4, got: %d", line)
	}
	if _, ok := sm.Find(0x7c06); ok {
		t.Error("unexpected line for $7C06")
	}
	if addr, ok := sm.LookupLabel("LOOP"); !ok || addr != 0x7c05 {
		t.Errorf("label 'loop' incorrect. got: $%X", addr)
	}
	if name, ok := sm.LabelAt(0x7c00); !ok || name != "start" {
		t.Errorf("label at $7C00 incorrect. got: %s", name)
	}
}
