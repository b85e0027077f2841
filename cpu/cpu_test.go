// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/beevik/go386/asm"
	"github.com/beevik/go386/cpu"
	"github.com/pkg/errors"
)

func loadCPU(t *testing.T, asmString string) *cpu.CPU {
	t.Helper()
	b := strings.NewReader(asmString)
	r, _, err := asm.Assemble(b, "test.asm", cpu.DefaultBase, io.Discard, 0)
	if err != nil {
		t.Fatal(err, r.Errors)
	}
	return cpu.LoadImage(r.Origin, cpu.DefaultStack, r.Code, nil)
}

func stepCPU(t *testing.T, c *cpu.CPU, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		if r, err := c.Step(); err != nil || r.Status != cpu.Running {
			t.Fatalf("step %d stopped: %v %v", i, r.Status, err)
		}
	}
}

func runCPU(t *testing.T, asmString string, steps int) *cpu.CPU {
	t.Helper()
	c := loadCPU(t, asmString)
	stepCPU(t, c, steps)
	return c
}

func expectEIP(t *testing.T, c *cpu.CPU, eip uint32) {
	t.Helper()
	if c.Reg.EIP != eip {
		t.Errorf("EIP incorrect. exp: %08x, got: %08x", eip, c.Reg.EIP)
	}
}

func expectReg(t *testing.T, c *cpu.CPU, r cpu.Register, v uint32) {
	t.Helper()
	if got := c.Reg.Get(r); got != v {
		t.Errorf("%v incorrect. exp: %08x, got: %08x", r, v, got)
	}
}

func expectMem32(t *testing.T, c *cpu.CPU, addr uint32, v uint32) {
	t.Helper()
	got, err := c.ReadMem32(addr)
	if err != nil {
		t.Errorf("Memory at %08x unreadable: %v", addr, err)
		return
	}
	if got != v {
		t.Errorf("Memory at %08x incorrect. exp: %08x, got: %08x", addr, v, got)
	}
}

func expectFault(t *testing.T, err error, kind cpu.FaultKind) *cpu.Fault {
	t.Helper()
	var f *cpu.Fault
	if !errors.As(err, &f) {
		t.Fatalf("expected %v fault, got %v", kind, err)
	}
	if f.Kind != kind {
		t.Errorf("fault kind incorrect. exp: %v, got: %v", kind, f.Kind)
	}
	return f
}

func TestToSigned8(t *testing.T) {
	cases := []struct {
		in  byte
		out int8
	}{
		{0x00, 0}, {0x01, 1}, {0x7f, 127}, {0x80, -128}, {0xfc, -4}, {0xff, -1},
	}
	for _, c := range cases {
		if got := cpu.ToSigned8(c.in); got != c.out {
			t.Errorf("ToSigned8(%02x) incorrect. exp: %d, got: %d", c.in, c.out, got)
		}
	}
}

func TestRegisterFromIndex(t *testing.T) {
	for i := byte(0); i < cpu.NumRegisters; i++ {
		r, err := cpu.RegisterFromIndex(i)
		if err != nil || byte(r) != i {
			t.Errorf("RegisterFromIndex(%d) = %v, %v", i, r, err)
		}
	}
	_, err := cpu.RegisterFromIndex(8)
	f := expectFault(t, err, cpu.FaultInvalidRegister)
	if f.Field != 8 {
		t.Errorf("fault field incorrect. exp: 8, got: %d", f.Field)
	}

	if r, ok := cpu.LookupRegister("ebp"); !ok || r != cpu.EBP {
		t.Errorf("LookupRegister(ebp) = %v, %v", r, ok)
	}
	if _, ok := cpu.LookupRegister("eip"); ok {
		t.Error("LookupRegister(eip) should fail")
	}
}

func TestLoadImage(t *testing.T) {
	c := cpu.LoadImage(0x7c00, 0x7c00, []byte{0xb8, 0x29, 0x00, 0x00, 0x00}, nil)

	if c.Mem.Size() != 0x7c05 {
		t.Errorf("memory size incorrect. exp: 7c05, got: %x", c.Mem.Size())
	}
	for i := 0; i < cpu.NumRegisters; i++ {
		exp := uint32(0)
		if cpu.Register(i) == cpu.ESP {
			exp = 0x7c00
		}
		expectReg(t, c, cpu.Register(i), exp)
	}
	expectEIP(t, c, 0x7c00)

	if b, _ := c.ReadMem8(0x7bff); b != 0 {
		t.Errorf("memory below base not zero: %02x", b)
	}
	if b, _ := c.ReadMem8(0x7c01); b != 0x29 {
		t.Errorf("image byte incorrect. exp: 29, got: %02x", b)
	}
}

func TestMemoryAccess(t *testing.T) {
	c := cpu.NewCPU(cpu.NewFlatMemory(0x100), nil)

	// Unaligned little-endian round trip.
	if err := c.WriteMem32(0x11, 0x12345678); err != nil {
		t.Fatal(err)
	}
	expectMem32(t, c, 0x11, 0x12345678)
	for i, exp := range []byte{0x78, 0x56, 0x34, 0x12} {
		if b, _ := c.ReadMem8(0x11 + uint32(i)); b != exp {
			t.Errorf("byte %d incorrect. exp: %02x, got: %02x", i, exp, b)
		}
	}

	if err := c.WriteMem8(0x20, 0xab); err != nil {
		t.Fatal(err)
	}
	expectMem32(t, c, 0x20, 0xab)

	// A dword that straddles the end faults without writing anything.
	err := c.WriteMem32(0xfe, 0xffffffff)
	f := expectFault(t, err, cpu.FaultMemoryBounds)
	if f.Addr != 0xfe || f.Size != 4 {
		t.Errorf("fault location incorrect: %08x/%d", f.Addr, f.Size)
	}
	if b, _ := c.ReadMem8(0xfe); b != 0 {
		t.Errorf("partial write at 000000fe: %02x", b)
	}

	_, err = c.ReadMem32(0xfd)
	expectFault(t, err, cpu.FaultMemoryBounds)
	_, err = c.ReadMem8(0x100)
	expectFault(t, err, cpu.FaultMemoryBounds)
}

func TestFetch(t *testing.T) {
	c := cpu.LoadImage(0x10, 0x10, []byte{0x90, 0xfe, 0x01, 0x02, 0x03, 0x84}, nil)

	if v, _ := c.FetchU8(1); v != 0xfe {
		t.Errorf("FetchU8 incorrect. exp: fe, got: %02x", v)
	}
	if v, _ := c.FetchI8(1); v != -2 {
		t.Errorf("FetchI8 incorrect. exp: -2, got: %d", v)
	}
	if v, _ := c.FetchU32(2); v != 0x84030201 {
		t.Errorf("FetchU32 incorrect. exp: 84030201, got: %08x", v)
	}
	if v, _ := c.FetchI32(2); v != -2080177663 {
		t.Errorf("FetchI32 incorrect. exp: -2080177663, got: %d", v)
	}
	_, err := c.FetchU32(3)
	expectFault(t, err, cpu.FaultMemoryBounds)
}

func TestPushPop(t *testing.T) {
	c := cpu.LoadImage(0x100, 0x100, []byte{0xc3}, nil)

	for _, v := range []uint32{0x11111111, 0x22222222} {
		if err := c.Push32(v); err != nil {
			t.Fatal(err)
		}
	}
	expectReg(t, c, cpu.ESP, 0xf8)
	expectMem32(t, c, 0xfc, 0x11111111)
	expectMem32(t, c, 0xf8, 0x22222222)

	for _, exp := range []uint32{0x22222222, 0x11111111} {
		v, err := c.Pop32()
		if err != nil || v != exp {
			t.Errorf("Pop32 incorrect. exp: %08x, got: %08x (%v)", exp, v, err)
		}
	}
	expectReg(t, c, cpu.ESP, 0x100)

	// Popping past the end of memory faults and leaves ESP untouched.
	c.Reg.Set(cpu.ESP, 0xfe)
	_, err := c.Pop32()
	expectFault(t, err, cpu.FaultMemoryBounds)
	expectReg(t, c, cpu.ESP, 0xfe)
}

func TestDecodeModRM(t *testing.T) {
	cases := []struct {
		code   []byte
		length uint32
		mod    byte
		reg    byte
		rm     byte
		sib    bool
		disp   uint32
	}{
		{[]byte{0xc1}, 1, 3, 0, 1, false, 0},
		{[]byte{0xe4}, 1, 3, 4, 4, false, 0},
		{[]byte{0x03}, 1, 0, 0, 3, false, 0},
		{[]byte{0x05, 0x00, 0x7e, 0x00, 0x00}, 5, 0, 0, 5, false, 0x7e00},
		{[]byte{0x04, 0x24}, 2, 0, 0, 4, true, 0},
		{[]byte{0x45, 0xfc}, 2, 1, 0, 5, false, 0xfc},
		{[]byte{0x44, 0x24, 0x08}, 3, 1, 0, 4, true, 0x08},
		{[]byte{0x86, 0x00, 0x02, 0x00, 0x00}, 5, 2, 0, 6, false, 0x200},
		{[]byte{0xac, 0x24, 0x01, 0x02, 0x03, 0x04}, 6, 2, 5, 4, true, 0x04030201},
	}

	for _, tc := range cases {
		c := cpu.LoadImage(0x100, 0x100, tc.code, nil)
		m, err := c.DecodeModRM()
		if err != nil {
			t.Errorf("% x: %v", tc.code, err)
			continue
		}
		if c.Reg.EIP-0x100 != tc.length || m.Len() != tc.length {
			t.Errorf("% x: length incorrect. exp: %d, got: %d/%d", tc.code, tc.length, c.Reg.EIP-0x100, m.Len())
		}
		if m.Mod != tc.mod || m.RegOrOpcode != tc.reg || m.RM != tc.rm || m.HasSIB != tc.sib || m.Disp != tc.disp {
			t.Errorf("% x: decoded %+v", tc.code, m)
		}
	}
}

func TestEffectiveAddress(t *testing.T) {
	c := cpu.NewCPU(cpu.NewFlatMemory(0x100), nil)
	c.Reg.Set(cpu.EBP, 0x80)

	cases := []struct {
		m    cpu.ModRM
		addr uint32
	}{
		{cpu.ModRM{Mod: 0, RM: 5, Disp: 0x7e00, DispSize: 4}, 0x7e00},
		{cpu.ModRM{Mod: 0, RM: 5}, 0},
		{cpu.ModRM{Mod: 1, RM: 5, Disp: 0xfc, DispSize: 1}, 0x7c},
		{cpu.ModRM{Mod: 1, RM: 5, Disp: 0x04, DispSize: 1}, 0x84},
		{cpu.ModRM{Mod: 2, RM: 5, Disp: 0xffffff80, DispSize: 4}, 0},
	}
	for _, tc := range cases {
		addr, err := c.EffectiveAddress(&tc.m)
		if err != nil || addr != tc.addr {
			t.Errorf("%+v: exp: %08x, got: %08x (%v)", tc.m, tc.addr, addr, err)
		}
	}

	_, err := c.EffectiveAddress(&cpu.ModRM{Mod: 1, RM: 4, HasSIB: true})
	expectFault(t, err, cpu.FaultUnsupportedSIB)
	_, err = c.EffectiveAddress(&cpu.ModRM{Mod: 3, RM: 0})
	expectFault(t, err, cpu.FaultInvalidAddressing)
}

func TestMovImmediateEndOfImage(t *testing.T) {
	c := cpu.LoadImage(0x7c00, 0x7c00, []byte{0xb8, 0x29, 0x00, 0x00, 0x00}, nil)
	var trace []uint32
	c.AttachTracer(cpu.TracerFunc(func(_ *cpu.CPU, eip uint32, opcode byte) {
		trace = append(trace, eip<<8|uint32(opcode))
	}))

	r := c.Run()
	if r.Status != cpu.Halted || r.Reason != cpu.HaltEndOfMemory {
		t.Errorf("result incorrect: %v %v %v", r.Status, r.Reason, r.Err)
	}
	expectReg(t, c, cpu.EAX, 0x29)
	expectEIP(t, c, 0x7c05)
	if len(trace) != 1 || trace[0] != 0x7c00b8 {
		t.Errorf("trace incorrect: %x", trace)
	}
}

func TestPushImmediatePop(t *testing.T) {
	c := cpu.LoadImage(0x7c00, 0x7c00, []byte{0x68, 0x01, 0x00, 0x00, 0x00, 0x58}, nil)

	stepCPU(t, c, 1)
	expectReg(t, c, cpu.ESP, 0x7bfc)
	expectMem32(t, c, 0x7bfc, 1)
	expectEIP(t, c, 0x7c05)

	r := c.Run()
	if r.Status != cpu.Halted || r.Steps != 1 {
		t.Errorf("result incorrect: %v %v steps=%d", r.Status, r.Reason, r.Steps)
	}
	expectReg(t, c, cpu.EAX, 1)
	expectReg(t, c, cpu.ESP, 0x7c00)
	expectEIP(t, c, 0x7c06)
}

func TestUnknownOpcode(t *testing.T) {
	c := cpu.LoadImage(0x7c00, 0x7c00, []byte{0x0f}, nil)
	fetches := 0
	c.AttachTracer(cpu.TracerFunc(func(*cpu.CPU, uint32, byte) { fetches++ }))

	r := c.Run()
	if r.Status != cpu.Halted || r.Reason != cpu.HaltUnknownOpcode || r.Opcode != 0x0f {
		t.Errorf("result incorrect: %v %v %02x", r.Status, r.Reason, r.Opcode)
	}
	if fetches != 1 {
		t.Errorf("fetch count incorrect. exp: 1, got: %d", fetches)
	}
	expectEIP(t, c, 0x7c00)
	if c.Steps != 0 {
		t.Errorf("steps incorrect. exp: 0, got: %d", c.Steps)
	}
}

func TestUnimplementedExtension(t *testing.T) {
	cases := [][]byte{
		{0x83, 0xc8, 0x01}, // or eax, 1
		{0xff, 0xf0},       // push eax (FF /6)
	}
	for _, code := range cases {
		c := cpu.LoadImage(0x7c00, 0x7c00, code, nil)
		r := c.Run()
		if r.Status != cpu.Faulted {
			t.Errorf("% x: status incorrect: %v", code, r.Status)
			continue
		}
		f := expectFault(t, r.Err, cpu.FaultUnimplementedExtension)
		if r.Fault != f {
			t.Errorf("% x: result fault not set", code)
		}
		if f.Opcode != code[0] || f.Field != (code[1]>>3)&7 || f.EIP != 0x7c00 {
			t.Errorf("% x: fault incorrect: %v", code, f)
		}
	}
}

func TestFaults(t *testing.T) {
	cases := []struct {
		asm  string
		kind cpu.FaultKind
	}{
		{"mov eax, [0x10000000]", cpu.FaultMemoryBounds},
		{"mov [esp+4], eax", cpu.FaultUnsupportedSIB},
		{"mov dword [0x7c08], 1", cpu.FaultMemoryBounds},
		{"pop eax", cpu.FaultMemoryBounds},
	}
	for _, tc := range cases {
		c := loadCPU(t, "\t"+tc.asm)
		r := c.Run()
		if r.Status != cpu.Faulted {
			t.Errorf("%s: status incorrect: %v", tc.asm, r.Status)
			continue
		}
		f := expectFault(t, r.Err, tc.kind)
		if f.EIP != 0x7c00 {
			t.Errorf("%s: fault EIP incorrect: %08x", tc.asm, f.EIP)
		}
	}
}

func TestMovAndArithmetic(t *testing.T) {
	asm := `
	mov eax, 10
	add eax, -1
	sub eax, -2
	mov ebx, eax
	add ebx, eax
	mov ecx, 0xffffffff
	add ecx, 1
	mov edx, 0xffffffff
	inc edx
	sub esi, 1`

	c := runCPU(t, asm, 10)
	expectReg(t, c, cpu.EAX, 11)
	expectReg(t, c, cpu.EBX, 22)
	expectReg(t, c, cpu.ECX, 0)
	expectReg(t, c, cpu.EDX, 0)
	expectReg(t, c, cpu.ESI, 0xffffffff)
}

func TestMemoryOperands(t *testing.T) {
	asm := `
	mov ebx, data
	mov dword [ebx], 0x11223344
	mov eax, [ebx]
	mov [ebx+4], eax
	add [ebx+4], eax
	inc dword [ebx+4]
	sub dword [data], 4
	mov ecx, [ebx+4]
	mov edx, [data+8]
	ret
data:
	dd 0, 0, 0xcafef00d`

	c := runCPU(t, asm, 9)
	expectReg(t, c, cpu.EAX, 0x11223344)
	expectReg(t, c, cpu.ECX, 0x22446689)
	expectReg(t, c, cpu.EDX, 0xcafef00d)
	data := c.Reg.Get(cpu.EBX)
	expectMem32(t, c, data, 0x11223340)
	expectMem32(t, c, data+4, 0x22446689)
}

func TestEIPAdvance(t *testing.T) {
	asm := `
	mov eax, 1
	push eax
	pop ecx
	push 0x12345678
	push 5
	mov ebp, esp
	mov [ebp], eax
	mov edx, [ebp+4]
	add esp, 8
	mov dword [ebp-4], 1
	inc dword [ebp-4]`

	c := loadCPU(t, asm)
	deltas := []uint32{5, 1, 1, 5, 2, 2, 3, 3, 3, 7, 3}
	for i, d := range deltas {
		eip := c.Reg.EIP
		stepCPU(t, c, 1)
		if c.Reg.EIP-eip != d {
			t.Errorf("instruction %d: EIP delta incorrect. exp: %d, got: %d", i, d, c.Reg.EIP-eip)
		}
	}
	expectReg(t, c, cpu.ECX, 1)
	expectReg(t, c, cpu.EDX, 0x12345678)
	expectReg(t, c, cpu.ESP, 0x7c00)
}

func TestPushImmediateByte(t *testing.T) {
	asm := `
	push byte 0xff
	pop eax
	push 0x7f
	pop ebx`

	c := runCPU(t, asm, 4)
	expectReg(t, c, cpu.EAX, 0xff)
	expectReg(t, c, cpu.EBX, 0x7f)
	expectReg(t, c, cpu.ESP, 0x7c00)
}

func TestJumps(t *testing.T) {
	asm := `
	jmp short skip
	mov eax, 1
skip:
	mov ebx, 2
	jmp near
	mov ecx, 3
near:
	mov edx, 4`

	c := runCPU(t, asm, 4)
	expectReg(t, c, cpu.EAX, 0)
	expectReg(t, c, cpu.EBX, 2)
	expectReg(t, c, cpu.ECX, 0)
	expectReg(t, c, cpu.EDX, 4)

	asm = `
loop:
	inc eax
	jmp short loop`

	c = runCPU(t, asm, 6)
	expectReg(t, c, cpu.EAX, 3)
	expectEIP(t, c, 0x7c00)
}

func TestCallLeaveRet(t *testing.T) {
	asm := `
	mov eax, 5
	push eax
	call double
	add esp, 4
	jmp 0
double:
	push ebp
	mov ebp, esp
	sub esp, 4
	mov eax, [ebp+8]
	mov ecx, [ebp+8]
	add eax, ecx
	mov [ebp-4], eax
	inc dword [ebp-4]
	mov eax, [ebp-4]
	leave
	ret`

	c := loadCPU(t, asm)

	stepCPU(t, c, 3)
	expectEIP(t, c, 0x7c13)
	expectReg(t, c, cpu.ESP, 0x7bf8)
	expectMem32(t, c, 0x7bf8, 0x7c0b)

	r := c.Run()
	if r.Status != cpu.Halted || r.Reason != cpu.HaltReturnedToZero {
		t.Errorf("result incorrect: %v %v %v", r.Status, r.Reason, r.Err)
	}
	if c.Steps != 16 {
		t.Errorf("steps incorrect. exp: 16, got: %d", c.Steps)
	}
	expectReg(t, c, cpu.EAX, 11)
	expectReg(t, c, cpu.ECX, 5)
	expectReg(t, c, cpu.EBP, 0)
	expectReg(t, c, cpu.ESP, 0x7c00)
	expectEIP(t, c, 0)
}

func TestLeave(t *testing.T) {
	asm := `
	mov ebp, 0x7bf0
	mov dword [ebp], 0x1234
	leave`

	c := runCPU(t, asm, 3)
	expectReg(t, c, cpu.EBP, 0x1234)
	expectReg(t, c, cpu.ESP, 0x7bf4)
}

func TestSafetyBound(t *testing.T) {
	c := loadCPU(t, "\tjmp 0x100000")
	r := c.Run()
	if r.Status != cpu.Halted || r.Reason != cpu.HaltSafetyBound {
		t.Errorf("result incorrect: %v %v", r.Status, r.Reason)
	}
	expectEIP(t, c, cpu.DefaultMaxEIP)
}

func TestDumpRegisters(t *testing.T) {
	c := cpu.LoadImage(0x7c00, 0x7c00, []byte{0xb8, 0x29, 0x00, 0x00, 0x00}, nil)
	c.Run()

	var buf bytes.Buffer
	if err := c.DumpRegisters(&buf); err != nil {
		t.Fatal(err)
	}
	exp := "EAX = 00000029\n" +
		"ECX = 00000000\n" +
		"EDX = 00000000\n" +
		"EBX = 00000000\n" +
		"ESP = 00007c00\n" +
		"EBP = 00000000\n" +
		"ESI = 00000000\n" +
		"EDI = 00000000\n" +
		"EIP = 00007c05\n"
	if buf.String() != exp {
		t.Errorf("dump incorrect.\ngot:\n%s\nexp:\n%s", buf.String(), exp)
	}
}

func TestInstructionSet(t *testing.T) {
	set := cpu.NewInstructionSet()
	implemented := 0
	for i := 0; i < 256; i++ {
		inst := set.Lookup(byte(i))
		if inst.Opcode != byte(i) {
			t.Errorf("opcode %02x stored as %02x", i, inst.Opcode)
		}
		if inst.Implemented() {
			implemented++
		}
	}
	if implemented != 37 {
		t.Errorf("implemented opcode count incorrect. exp: 37, got: %d", implemented)
	}
	if set.Lookup(0xe8).Name != "CALL" || set.Lookup(0x5f).Name != "POP" {
		t.Error("instruction names incorrect")
	}
}

type breakpointRecorder struct {
	hits     []uint32
	dataHits []uint32
}

func (r *breakpointRecorder) OnBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	r.hits = append(r.hits, b.Address)
}

func (r *breakpointRecorder) OnDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	r.dataHits = append(r.dataHits, b.Address)
}

func TestDebugger(t *testing.T) {
	asm := `
	mov eax, 1
	mov ebx, 2
	mov dword [0x7b00], 0x0200
	mov dword [0x7b00], 0x0300
	ret`

	c := loadCPU(t, asm)
	rec := &breakpointRecorder{}
	d := cpu.NewDebugger(rec)
	c.AttachDebugger(d)

	d.AddBreakpoint(0x7c0a)
	d.AddBreakpoint(0x7c05)
	d.AddBreakpoint(0x7c20).Disabled = true
	d.AddDataBreakpoint(0x7b00)
	d.AddConditionalDataBreakpoint(0x7b01, 0x03)

	bps := d.GetBreakpoints()
	if len(bps) != 3 || bps[0].Address != 0x7c05 || bps[2].Address != 0x7c20 {
		t.Errorf("breakpoints not sorted by address")
	}

	stepCPU(t, c, 4)
	if len(rec.hits) != 2 || rec.hits[0] != 0x7c05 || rec.hits[1] != 0x7c0a {
		t.Errorf("breakpoint hits incorrect: %x", rec.hits)
	}
	if len(rec.dataHits) != 3 || rec.dataHits[2] != 0x7b01 {
		t.Errorf("data breakpoint hits incorrect: %x", rec.dataHits)
	}

	d.RemoveBreakpoint(0x7c05)
	if d.GetBreakpoint(0x7c05) != nil {
		t.Error("breakpoint not removed")
	}
	d.RemoveDataBreakpoint(0x7b00)
	if len(d.GetDataBreakpoints()) != 1 {
		t.Error("data breakpoint not removed")
	}

	c.DetachDebugger()
	if err := c.WriteMem8(0x7b01, 0x03); err != nil {
		t.Fatal(err)
	}
	if len(rec.dataHits) != 3 {
		t.Error("detached debugger still notified")
	}
}
