// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"math"

	"github.com/beevik/go386/cpu"
)

// Immediate operand widths and how they are range-checked.
type immKind byte

const (
	immNone   immKind = iota
	immS8             // signed byte, sign-extended by the CPU
	immU8             // unsigned byte, zero-extended by the CPU
	imm32             // dword
	relative8         // signed byte displacement from the next instruction
	relative32        // dword displacement from the next instruction
)

var immSize = []int{
	immNone:    0,
	immS8:      1,
	immU8:      1,
	imm32:      4,
	relative8:  1,
	relative32: 4,
}

// An encoding is the machine-code layout chosen for an instruction during
// parsing. Its length is fixed before any label is resolved.
type encoding struct {
	opcode   byte
	hasModRM bool
	regField byte    // reg field: a register or an opcode extension
	rm       operand // register or memory operand encoded in the r/m field
	imm      expr    // immediate value or branch target
	immKind  immKind
}

// Choose the ModRM layout of the r/m operand. Labels in a displacement
// force the 32-bit form.
func (e *encoding) modrmLayout() (mod, rmField byte, hasSIB bool, dispSize int) {
	o := &e.rm
	if o.kind == kindReg {
		return 3, byte(o.reg), false, 0
	}
	if !o.hasBase {
		return 0, 5, false, 4
	}

	rmField = byte(o.reg)
	hasSIB = o.reg == cpu.ESP
	disp, literal := o.expr.literal()
	switch {
	case !literal:
		mod, dispSize = 2, 4
	case disp == 0 && o.reg != cpu.EBP:
		mod, dispSize = 0, 0
	case disp >= math.MinInt8 && disp <= math.MaxInt8:
		mod, dispSize = 1, 1
	default:
		mod, dispSize = 2, 4
	}
	return mod, rmField, hasSIB, dispSize
}

// Return the encoded length of the instruction in bytes.
func (e *encoding) size() int {
	n := 1 + immSize[e.immKind]
	if e.hasModRM {
		_, _, hasSIB, dispSize := e.modrmLayout()
		n += 1 + dispSize
		if hasSIB {
			n++
		}
	}
	return n
}

// Generate the machine code for an instruction located at 'addr'.
func (e *encoding) emit(addr uint32, labels map[string]uint32) ([]byte, error) {
	b := []byte{e.opcode}

	if e.hasModRM {
		mod, rmField, hasSIB, dispSize := e.modrmLayout()
		b = append(b, mod<<6|(e.regField&7)<<3|rmField)
		if hasSIB {
			b = append(b, 0x24) // no index, ESP base
		}
		if dispSize > 0 {
			disp, err := e.rm.expr.eval(labels)
			if err != nil {
				return nil, err
			}
			if dispSize == 4 && (disp < math.MinInt32 || disp > math.MaxUint32) {
				return nil, newError(e.rm.text, "displacement out of range")
			}
			b = appendValue(b, disp, dispSize)
		}
	}

	if e.immKind == immNone {
		return b, nil
	}

	v, err := e.imm.eval(labels)
	if err != nil {
		return nil, err
	}
	n := immSize[e.immKind]
	switch e.immKind {
	case relative8, relative32:
		next := int64(addr) + int64(len(b)+n)
		v -= next
	}

	var lo, hi int64
	switch e.immKind {
	case immS8, relative8:
		lo, hi = math.MinInt8, math.MaxInt8
	case immU8:
		lo, hi = 0, math.MaxUint8
	case imm32:
		lo, hi = math.MinInt32, math.MaxUint32
	case relative32:
		lo, hi = math.MinInt32, math.MaxInt32
	}
	if v < lo || v > hi {
		if e.immKind == relative8 {
			return nil, newError(e.imm.text, "short branch target out of range (%d)", v)
		}
		return nil, newError(e.imm.text, "value %d does not fit in %d byte(s)", v, n)
	}
	return appendValue(b, v, n), nil
}

// Append 'n' little-endian bytes of 'v'.
func appendValue(b []byte, v int64, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

type encoder func(l fstring, ops []operand) (*encoding, error)

// Encoders for every supported mnemonic.
var mnemonics = map[string]encoder{
	"add":   encodeAdd,
	"call":  encodeCall,
	"inc":   encodeInc,
	"jmp":   encodeJmp,
	"leave": encodeImplied(0xc9),
	"mov":   encodeMov,
	"pop":   encodePop,
	"push":  encodePush,
	"ret":   encodeImplied(0xc3),
	"sub":   encodeSub,
}

func checkOperands(l fstring, ops []operand, n int) error {
	if len(ops) != n {
		return newError(l, "expected %d operand(s), got %d", n, len(ops))
	}
	return nil
}

func unsupported(l fstring) error {
	return newError(l, "unsupported operand combination")
}

func encodeImplied(opcode byte) encoder {
	return func(l fstring, ops []operand) (*encoding, error) {
		if err := checkOperands(l, ops, 0); err != nil {
			return nil, err
		}
		return &encoding{opcode: opcode}, nil
	}
}

func encodeMov(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 2); err != nil {
		return nil, err
	}
	dst, src := ops[0], ops[1]
	switch {
	case dst.kind == kindReg && src.kind == kindImm:
		return &encoding{opcode: 0xb8 + byte(dst.reg), imm: src.expr, immKind: imm32}, nil
	case dst.kind == kindMem && src.kind == kindImm:
		return &encoding{opcode: 0xc7, hasModRM: true, rm: dst, imm: src.expr, immKind: imm32}, nil
	case dst.kind == kindReg && src.kind == kindMem:
		return &encoding{opcode: 0x8b, hasModRM: true, regField: byte(dst.reg), rm: src}, nil
	case dst.kind != kindImm && src.kind == kindReg:
		return &encoding{opcode: 0x89, hasModRM: true, regField: byte(src.reg), rm: dst}, nil
	}
	return nil, unsupported(l)
}

func encodeAdd(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 2); err != nil {
		return nil, err
	}
	dst, src := ops[0], ops[1]
	switch {
	case dst.kind != kindImm && src.kind == kindReg:
		return &encoding{opcode: 0x01, hasModRM: true, regField: byte(src.reg), rm: dst}, nil
	case dst.kind != kindImm && src.kind == kindImm:
		return &encoding{opcode: 0x83, hasModRM: true, regField: 0, rm: dst, imm: src.expr, immKind: immS8}, nil
	}
	return nil, unsupported(l)
}

func encodeSub(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 2); err != nil {
		return nil, err
	}
	dst, src := ops[0], ops[1]
	if dst.kind != kindImm && src.kind == kindImm {
		return &encoding{opcode: 0x83, hasModRM: true, regField: 5, rm: dst, imm: src.expr, immKind: immS8}, nil
	}
	return nil, unsupported(l)
}

func encodeInc(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 1); err != nil {
		return nil, err
	}
	if ops[0].kind == kindImm {
		return nil, unsupported(l)
	}
	return &encoding{opcode: 0xff, hasModRM: true, regField: 0, rm: ops[0]}, nil
}

func encodePush(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 1); err != nil {
		return nil, err
	}
	o := ops[0]
	switch o.kind {
	case kindReg:
		return &encoding{opcode: 0x50 + byte(o.reg)}, nil
	case kindImm:
		// Literals 0..127 take the short form unless a size is given.
		v, literal := o.expr.literal()
		if o.hint == sizeByte || (o.hint == sizeNone && literal && v >= 0 && v <= math.MaxInt8) {
			return &encoding{opcode: 0x6a, imm: o.expr, immKind: immU8}, nil
		}
		return &encoding{opcode: 0x68, imm: o.expr, immKind: imm32}, nil
	}
	return nil, unsupported(l)
}

func encodePop(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 1); err != nil {
		return nil, err
	}
	if ops[0].kind != kindReg {
		return nil, unsupported(l)
	}
	return &encoding{opcode: 0x58 + byte(ops[0].reg)}, nil
}

func encodeCall(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 1); err != nil {
		return nil, err
	}
	if ops[0].kind != kindImm {
		return nil, unsupported(l)
	}
	return &encoding{opcode: 0xe8, imm: ops[0].expr, immKind: relative32}, nil
}

func encodeJmp(l fstring, ops []operand) (*encoding, error) {
	if err := checkOperands(l, ops, 1); err != nil {
		return nil, err
	}
	o := ops[0]
	if o.kind != kindImm {
		return nil, unsupported(l)
	}
	if o.hint == sizeShort {
		return &encoding{opcode: 0xeb, imm: o.expr, immKind: relative8}, nil
	}
	return &encoding{opcode: 0xe9, imm: o.expr, immKind: relative32}, nil
}
