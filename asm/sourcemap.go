// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
)

// A SourceMap describes the mapping between source code line numbers and
// machine code addresses, along with the labels defined by the source.
type SourceMap struct {
	Origin uint32       // address of the first byte of code
	Size   uint32       // size of the machine code in bytes
	CRC    uint32       // CRC-32 (IEEE) of the machine code
	File   string       // source file name
	Lines  []SourceLine // address-ordered line mappings
	Labels []Label      // labels in definition order
}

// A SourceLine represents a mapping between a machine code address and
// the source code line used to generate it.
type SourceLine struct {
	Address uint32 // machine code address
	Line    int    // source code line number
}

// A Label associates a source label with its address.
type Label struct {
	Name    string
	Address uint32
}

// Find searches the source map for the line that generated the code at
// the requested address.
func (s *SourceMap) Find(addr uint32) (line int, ok bool) {
	i := sort.Search(len(s.Lines), func(i int) bool {
		return s.Lines[i].Address >= addr
	})
	if i < len(s.Lines) && s.Lines[i].Address == addr {
		return s.Lines[i].Line, true
	}
	return -1, false
}

// LabelAt returns the first label defined at the address.
func (s *SourceMap) LabelAt(addr uint32) (string, bool) {
	for _, l := range s.Labels {
		if l.Address == addr {
			return l.Name, true
		}
	}
	return "", false
}

// LookupLabel returns the address of a label, ignoring case.
func (s *SourceMap) LookupLabel(name string) (uint32, bool) {
	for _, l := range s.Labels {
		if strings.EqualFold(l.Name, name) {
			return l.Address, true
		}
	}
	return 0, false
}

// ReadFrom reads the contents of an exported source map file.
func (s *SourceMap) ReadFrom(r io.Reader) (n int64, err error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(b, s); err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// WriteTo writes the contents of the source map to an output stream.
func (s *SourceMap) WriteTo(w io.Writer) (n int64, err error) {
	b, err := json.Marshal(*s)
	if err != nil {
		return 0, err
	}
	nn, err := w.Write(b)
	return int64(nn), err
}
