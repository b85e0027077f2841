// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var errExprParse = errors.New("expression syntax error")

// A resolver supplies the values of identifiers and memory contents
// referenced by an expression.
type resolver interface {
	resolveIdentifier(s string) (int64, error)
	loadDword(addr uint32) (uint32, error)
}

// Binary operators grouped by precedence, lowest first.
var binaryOps = [][]string{
	{"|"},
	{"^"},
	{"&"},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

// An exprParser evaluates debugger expressions such as
// "[ebp-4] + 0x10" or "start + 2*$10".
type exprParser struct {
	hexMode bool
}

func newExprParser() *exprParser {
	return &exprParser{}
}

// exprState tracks the position of the parser within one expression.
type exprState struct {
	p   *exprParser
	r   resolver
	s   string
	pos int
}

// Parse evaluates the expression using 'r' to resolve identifiers and
// memory dereferences.
func (p *exprParser) Parse(expr string, r resolver) (int64, error) {
	st := &exprState{p: p, r: r, s: expr}
	v, err := st.parseBinary(0)
	if err != nil {
		return 0, err
	}
	st.skipSpace()
	if st.pos < len(st.s) {
		return 0, errors.Wrapf(errExprParse, "unexpected '%c'", st.s[st.pos])
	}
	return v, nil
}

func (st *exprState) skipSpace() {
	for st.pos < len(st.s) && (st.s[st.pos] == ' ' || st.s[st.pos] == '\t') {
		st.pos++
	}
}

func (st *exprState) peekOp(ops []string) string {
	st.skipSpace()
	rest := st.s[st.pos:]
	for _, op := range ops {
		if strings.HasPrefix(rest, op) {
			return op
		}
	}
	return ""
}

func (st *exprState) parseBinary(level int) (int64, error) {
	if level == len(binaryOps) {
		return st.parseUnary()
	}

	v, err := st.parseBinary(level + 1)
	if err != nil {
		return 0, err
	}

	for {
		op := st.peekOp(binaryOps[level])
		if op == "" {
			return v, nil
		}
		st.pos += len(op)

		rhs, err := st.parseBinary(level + 1)
		if err != nil {
			return 0, err
		}

		switch op {
		case "|":
			v |= rhs
		case "^":
			v ^= rhs
		case "&":
			v &= rhs
		case "<<":
			v <<= uint64(rhs)
		case ">>":
			v >>= uint64(rhs)
		case "+":
			v += rhs
		case "-":
			v -= rhs
		case "*":
			v *= rhs
		case "/", "%":
			if rhs == 0 {
				return 0, errors.New("divide by zero")
			}
			if op == "/" {
				v /= rhs
			} else {
				v %= rhs
			}
		}
	}
}

func (st *exprState) parseUnary() (int64, error) {
	st.skipSpace()
	if st.pos >= len(st.s) {
		return 0, errors.Wrap(errExprParse, "missing operand")
	}

	switch st.s[st.pos] {
	case '-':
		st.pos++
		v, err := st.parseUnary()
		return -v, err
	case '+':
		st.pos++
		return st.parseUnary()
	case '~':
		st.pos++
		v, err := st.parseUnary()
		return ^v, err
	case '(':
		st.pos++
		v, err := st.parseBinary(0)
		if err != nil {
			return 0, err
		}
		if err := st.expect(')'); err != nil {
			return 0, err
		}
		return v, nil
	case '[':
		st.pos++
		addr, err := st.parseBinary(0)
		if err != nil {
			return 0, err
		}
		if err := st.expect(']'); err != nil {
			return 0, err
		}
		if st.r == nil {
			return 0, errors.New("memory not available")
		}
		v, err := st.r.loadDword(uint32(addr))
		return int64(v), err
	}
	return st.parsePrimary()
}

func (st *exprState) expect(c byte) error {
	st.skipSpace()
	if st.pos >= len(st.s) || st.s[st.pos] != c {
		return errors.Wrapf(errExprParse, "expected '%c'", c)
	}
	st.pos++
	return nil
}

func (st *exprState) parsePrimary() (int64, error) {
	start := st.pos
	for st.pos < len(st.s) && isTokenChar(st.s[st.pos]) {
		st.pos++
	}
	tok := st.s[start:st.pos]
	if tok == "" {
		return 0, errors.Wrapf(errExprParse, "unexpected '%c'", st.s[start])
	}

	if tok == "." || tok[0] == '_' || isAlpha(tok[0]) {
		// Hex mode treats bare tokens like "ff" as numbers when they are
		// not also identifiers.
		v, err := st.resolve(tok)
		if err == nil || !st.p.hexMode {
			return v, err
		}
		if n, errN := strconv.ParseInt(tok, 16, 64); errN == nil {
			return n, nil
		}
		return 0, err
	}
	return st.p.parseNumber(tok)
}

func (st *exprState) resolve(tok string) (int64, error) {
	if st.r == nil {
		return 0, errors.Errorf("identifier '%s' not found", tok)
	}
	return st.r.resolveIdentifier(tok)
}

func (p *exprParser) parseNumber(tok string) (int64, error) {
	base := 10
	if p.hexMode {
		base = 16
	}
	digits := tok
	switch {
	case tok[0] == '$':
		base, digits = 16, tok[1:]
	case len(tok) > 2 && (tok[:2] == "0x" || tok[:2] == "0X"):
		base, digits = 16, tok[2:]
	case len(tok) > 2 && (tok[:2] == "0b" || tok[:2] == "0B") && !p.hexMode:
		base, digits = 2, tok[2:]
	case len(tok) > 2 && (tok[:2] == "0d" || tok[:2] == "0D") && p.hexMode:
		base, digits = 10, tok[2:]
	}

	v, err := strconv.ParseUint(digits, base, 32)
	if err != nil {
		return 0, errors.Wrapf(errExprParse, "invalid number '%s'", tok)
	}
	return int64(v), nil
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isTokenChar(c byte) bool {
	return isAlpha(c) || (c >= '0' && c <= '9') || c == '_' || c == '$' || c == '.'
}
