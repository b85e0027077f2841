// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/go386/cpu"
)

// An asmerror describes a problem at a specific location in the source.
type asmerror struct {
	line fstring // text causing the error
	msg  string  // error message
}

func (e *asmerror) Error() string {
	return fmt.Sprintf("line %d, col %d: %s", e.line.row, e.line.column+1, e.msg)
}

func newError(l fstring, format string, args ...any) *asmerror {
	return &asmerror{l, fmt.Sprintf(format, args...)}
}

// A term is one signed component of an expression: either a literal value
// or a label reference.
type term struct {
	neg   bool
	value int64
	label string
	text  fstring
}

// An expr is a sum of terms. Label terms are resolved once addresses are
// known.
type expr struct {
	terms []term
	text  fstring
}

// Return the value of an expression that contains no labels.
func (e *expr) literal() (int64, bool) {
	var v int64
	for _, t := range e.terms {
		if t.label != "" {
			return 0, false
		}
		if t.neg {
			v -= t.value
		} else {
			v += t.value
		}
	}
	return v, true
}

// Evaluate the expression against the label table.
func (e *expr) eval(labels map[string]uint32) (int64, error) {
	var v int64
	for _, t := range e.terms {
		tv := t.value
		if t.label != "" {
			addr, ok := labels[strings.ToLower(t.label)]
			if !ok {
				return 0, newError(t.text, "undefined label '%s'", t.label)
			}
			tv = int64(addr)
		}
		if t.neg {
			v -= tv
		} else {
			v += tv
		}
	}
	return v, nil
}

// Parse a number in one of the supported notations: $hex, 0xhex, 0bbinary,
// decimal, or a single quoted character.
func parseNumber(l fstring) (int64, fstring, error) {
	var base int
	var digits, remain fstring
	switch {
	case l.startsWithChar('$'):
		base = 16
		digits, remain = l.consume(1).consumeWhile(hexadecimal)
	case strings.HasPrefix(strings.ToLower(l.str), "0x"):
		base = 16
		digits, remain = l.consume(2).consumeWhile(hexadecimal)
	case strings.HasPrefix(strings.ToLower(l.str), "0b"):
		base = 2
		digits, remain = l.consume(2).consumeWhile(binarynum)
	case l.startsWithChar('\''):
		if len(l.str) < 3 || l.str[2] != '\'' {
			return 0, l, newError(l, "invalid character literal")
		}
		return int64(l.str[1]), l.consume(3), nil
	default:
		base = 10
		digits, remain = l.consumeWhile(decimal)
	}

	if digits.isEmpty() {
		return 0, l, newError(l, "invalid number")
	}
	if remain.startsWith(identifierChar) {
		return 0, l, newError(remain, "invalid digit '%c'", remain.str[0])
	}
	v, err := strconv.ParseUint(digits.str, base, 32)
	if err != nil {
		return 0, l, newError(digits, "number '%s' out of range", digits.str)
	}
	return int64(v), remain, nil
}

// Parse a single expression term, which is either a number or an
// identifier.
func parseTerm(l fstring, neg bool) (term, fstring, error) {
	if l.startsWith(identifierStartChar) {
		id, remain := l.consumeWhile(identifierChar)
		return term{neg: neg, label: id.str, text: id}, remain, nil
	}
	v, remain, err := parseNumber(l)
	if err != nil {
		return term{}, l, err
	}
	return term{neg: neg, value: v, text: l.trunc(len(l.str) - len(remain.str))}, remain, nil
}

// Parse an expression of the form [-]term {(+|-) term}. Parsing stops at
// the first character that cannot continue the expression.
func parseExpr(l fstring) (expr, fstring, error) {
	e := expr{text: l}
	start := l
	l = l.consumeWhitespace()
	neg := false
	if l.startsWithChar('-') || l.startsWithChar('+') {
		neg = l.str[0] == '-'
		l = l.consume(1).consumeWhitespace()
	}
	for {
		t, remain, err := parseTerm(l, neg)
		if err != nil {
			return e, l, err
		}
		e.terms = append(e.terms, t)
		l = remain.consumeWhitespace()
		if !l.startsWithChar('+') && !l.startsWithChar('-') {
			break
		}
		neg = l.str[0] == '-'
		l = l.consume(1).consumeWhitespace()
	}
	e.text = start.trunc(len(start.str) - len(l.str)).trimRight()
	return e, l, nil
}

// The kinds of instruction operand.
type operandKind byte

const (
	kindReg operandKind = iota
	kindImm
	kindMem
)

// Operand size hints given by a keyword prefix.
type sizeHint byte

const (
	sizeNone sizeHint = iota
	sizeByte
	sizeDword
	sizeShort
)

var sizeKeywords = map[string]sizeHint{
	"byte":  sizeByte,
	"dword": sizeDword,
	"short": sizeShort,
}

// An operand is a parsed instruction operand.
type operand struct {
	kind    operandKind
	reg     cpu.Register // register, or memory base register
	hasBase bool         // memory operand has a base register
	expr    expr         // immediate value, or memory displacement
	hint    sizeHint     // size keyword preceding the operand
	text    fstring
}

// Parse one operand, stopping at a comma or the end of the line.
func parseOperand(l fstring) (operand, fstring, error) {
	l = l.consumeWhitespace()
	o := operand{text: l}

	if l.startsWith(identifierStartChar) {
		id, remain := l.consumeWhile(identifierChar)
		if h, ok := sizeKeywords[strings.ToLower(id.str)]; ok {
			o.hint = h
			l = remain.consumeWhitespace()
			if strings.HasPrefix(strings.ToLower(l.str), "ptr") && !l.consume(3).startsWith(identifierChar) {
				l = l.consume(3).consumeWhitespace()
			}
		}
	}

	switch {
	case l.startsWithChar('['):
		return parseMemory(o, l)

	case l.startsWith(identifierStartChar):
		id, remain := l.consumeWhile(identifierChar)
		if r, ok := cpu.LookupRegister(id.str); ok {
			if o.hint != sizeNone {
				return o, l, newError(l, "size keyword not allowed on a register")
			}
			o.kind, o.reg, o.text = kindReg, r, id
			return o, remain.consumeWhitespace(), nil
		}
	}

	e, remain, err := parseExpr(l)
	if err != nil {
		return o, l, err
	}
	o.kind, o.expr, o.text = kindImm, e, e.text
	return o, remain, nil
}

// Parse a bracketed memory operand: [reg], [reg+disp], [reg-disp] or
// [disp]. At most one register is allowed and it must be added.
func parseMemory(o operand, l fstring) (operand, fstring, error) {
	start := l
	l = l.consume(1).consumeWhitespace()
	o.kind = kindMem
	o.expr.text = l

	neg := false
	if l.startsWithChar('-') {
		neg = true
		l = l.consume(1).consumeWhitespace()
	}
	for {
		isReg := false
		if l.startsWith(identifierStartChar) {
			id, remain := l.consumeWhile(identifierChar)
			if r, ok := cpu.LookupRegister(id.str); ok {
				if o.hasBase {
					return o, id, newError(id, "only one register allowed in a memory operand")
				}
				if neg {
					return o, id, newError(id, "register cannot be subtracted")
				}
				o.reg, o.hasBase, isReg = r, true, true
				l = remain.consumeWhitespace()
			}
		}
		if !isReg {
			t, remain, err := parseTerm(l, neg)
			if err != nil {
				return o, l, err
			}
			o.expr.terms = append(o.expr.terms, t)
			l = remain.consumeWhitespace()
		}

		if l.startsWithChar(']') {
			break
		}
		if !l.startsWithChar('+') && !l.startsWithChar('-') {
			return o, l, newError(l, "expected ']'")
		}
		neg = l.str[0] == '-'
		l = l.consume(1).consumeWhitespace()
	}

	l = l.consume(1)
	o.text = start.trunc(len(start.str) - len(l.str))
	if !o.hasBase && len(o.expr.terms) == 0 {
		return o, l, newError(start, "empty memory operand")
	}
	return o, l.consumeWhitespace(), nil
}

// Parse a comma-separated operand list that runs to the end of the line.
func parseOperands(l fstring) ([]operand, error) {
	var ops []operand
	l = l.consumeWhitespace()
	if l.isEmpty() {
		return ops, nil
	}
	for {
		o, remain, err := parseOperand(l)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
		if remain.isEmpty() {
			return ops, nil
		}
		if !remain.startsWithChar(',') {
			return nil, newError(remain, "unexpected '%s'", remain.str)
		}
		l = remain.consume(1)
	}
}
