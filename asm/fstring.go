// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "strings"

// An fstring is a substring of a source line that remembers where in the
// line it starts, so errors can point at the offending column.
type fstring struct {
	row    int    // 1-based line number
	column int    // 0-based column of the start of str
	str    string // the substring of interest
	full   string // the full line as read from the source
}

func newFstring(row int, str string) fstring {
	return fstring{row, 0, str, str}
}

func (l fstring) String() string {
	return l.str
}

func (l fstring) consume(n int) fstring {
	c := l.column
	for i := 0; i < n; i++ {
		if l.str[i] == '\t' {
			c += 8 - (c % 8)
		} else {
			c++
		}
	}
	return fstring{l.row, c, l.str[n:], l.full}
}

func (l fstring) trunc(n int) fstring {
	return fstring{l.row, l.column, l.str[:n], l.full}
}

func (l fstring) isEmpty() bool {
	return len(l.str) == 0
}

func (l fstring) startsWith(fn func(c byte) bool) bool {
	return len(l.str) > 0 && fn(l.str[0])
}

func (l fstring) startsWithChar(c byte) bool {
	return len(l.str) > 0 && l.str[0] == c
}

func (l fstring) consumeWhitespace() fstring {
	return l.consume(l.scanWhile(whitespace))
}

// Strip whitespace from the end of the string.
func (l fstring) trimRight() fstring {
	return l.trunc(len(strings.TrimRight(l.str, " \t")))
}

func (l fstring) scanWhile(fn func(c byte) bool) int {
	i := 0
	for ; i < len(l.str) && fn(l.str[i]); i++ {
	}
	return i
}

func (l fstring) consumeWhile(fn func(c byte) bool) (consumed, remain fstring) {
	i := l.scanWhile(fn)
	return l.trunc(i), l.consume(i)
}

// Split the string at the first unquoted occurrence of 'c'. The separator
// itself is left at the start of 'remain'.
func (l fstring) consumeUntilUnquotedChar(c byte) (consumed, remain fstring) {
	var quote byte
	i := 0
	for ; i < len(l.str); i++ {
		switch {
		case quote != 0:
			if l.str[i] == quote {
				quote = 0
			}
		case l.str[i] == c:
			return l.trunc(i), l.consume(i)
		case stringQuote(l.str[i]):
			quote = l.str[i]
		}
	}
	return l.trunc(i), l.consume(i)
}

func (l fstring) stripTrailingComment() fstring {
	s, _ := l.consumeUntilUnquotedChar(';')
	return s.trimRight()
}

//
// character helper functions
//

func whitespace(c byte) bool {
	return c == ' ' || c == '\t'
}

func alpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func decimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func hexadecimal(c byte) bool {
	return decimal(c) || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func binarynum(c byte) bool {
	return c == '0' || c == '1'
}

func identifierStartChar(c byte) bool {
	return alpha(c) || c == '_' || c == '.' || c == '@'
}

func identifierChar(c byte) bool {
	return alpha(c) || decimal(c) || c == '_' || c == '.' || c == '@'
}

func stringQuote(c byte) bool {
	return c == '"' || c == '\''
}
