// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"strings"
)

func stringToBool(s string) (bool, error) {
	s = strings.ToLower(s)
	switch s {
	case "0", "false", "off":
		return false, nil
	case "1", "true", "on":
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool value '%s'", s)
	}
}

var hexString = "0123456789ABCDEF"

func addrToBuf(addr uint32, b []byte) {
	for i := 7; i >= 0; i-- {
		b[i] = hexString[addr&0xf]
		addr >>= 4
	}
}

func byteToBuf(v byte, b []byte) {
	b[0] = hexString[(v>>4)&0xf]
	b[1] = hexString[v&0xf]
}

func toPrintableChar(v byte) byte {
	if v >= 32 && v < 127 {
		return v
	}
	return '.'
}

// Word-wrap 's' to lines of at most 72 columns, each indented by
// 'indent' spaces.
func indentWrap(indent int, s string) string {
	const width = 72
	pad := strings.Repeat(" ", indent)

	var sb strings.Builder
	n := 0
	for _, w := range strings.Fields(s) {
		switch {
		case n == 0:
			sb.WriteString(pad)
			n = indent
		case n+1+len(w) > width:
			sb.WriteString("\n")
			sb.WriteString(pad)
			n = indent
		default:
			sb.WriteByte(' ')
			n++
		}
		sb.WriteString(w)
		n += len(w)
	}
	return sb.String()
}
