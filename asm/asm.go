// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a two-pass assembler for the IA-32 instruction
// subset executed by the cpu package.
package asm

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/go386/cpu"
	"github.com/pkg/errors"
)

var errParse = errors.New("parse error")

// A statement is one assembled source line that produces bytes.
type statement struct {
	line  fstring
	addr  uint32
	size  int
	enc   *encoding // instruction encoding, or nil for data
	data  []dataItem
	width int // data item width in bytes
}

// A dataItem is one comma-separated value of a data directive.
type dataItem struct {
	expr expr
	str  []byte // bytes of a string literal, db only
}

// The assembler is a state object used during the assembly of machine
// code from assembly code.
type assembler struct {
	filename string
	origin   uint32            // address of the first byte of code
	pc       uint32            // address of the next statement
	stmts    []*statement      // statements in source order
	labels   map[string]uint32 // lower-case label -> address
	names    []Label           // labels in definition order
	lines    []SourceLine      // source line mappings
	code     []byte            // generated machine code
	out      io.Writer         // output used for verbose output
	verbose  bool              // verbose output
	errors   []asmerror        // errors encountered during assembly
}

// Assembly contains the assembled machine code and any errors produced
// while generating it.
type Assembly struct {
	Origin uint32   // address of the first byte of Code
	Code   []byte   // assembled machine code
	Errors []string // errors encountered during assembly
}

// WriteTo saves machine code as binary data into an output writer.
func (a *Assembly) WriteTo(w io.Writer) (n int64, err error) {
	nn, err := w.Write(a.Code)
	return int64(nn), err
}

// Option type used by the Assemble function.
type Option uint

// Options for the Assemble function.
const (
	Verbose Option = 1 << iota // verbose output during assembly
)

// Directive handlers, keyed by lower-case name.
var directives = map[string]func(a *assembler, line, remain fstring) error{
	"db":  (*assembler).parseBytes,
	"dd":  (*assembler).parseDwords,
	"org": (*assembler).parseOrigin,
}

// AssembleFile reads a file containing assembly code, assembles it for the
// requested origin, and writes a binary image (.bin) and a source map
// (.map) next to it.
func AssembleFile(path string, origin uint32, options Option, out io.Writer) error {
	inFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer inFile.Close()

	assembly, sourceMap, err := Assemble(inFile, path, origin, out, options)
	if err != nil {
		for _, e := range assembly.Errors {
			fmt.Fprintln(out, e)
		}
		return err
	}

	ext := filepath.Ext(path)
	prefix := path[:len(path)-len(ext)]
	binPath := prefix + ".bin"
	if err := writeFile(binPath, assembly); err != nil {
		return err
	}
	mapPath := prefix + ".map"
	if err := writeFile(mapPath, sourceMap); err != nil {
		return err
	}

	fmt.Fprintf(out, "Assembled '%s' to produce '%s' and '%s'.\n",
		filepath.Base(path),
		filepath.Base(binPath),
		filepath.Base(mapPath))
	return nil
}

func writeFile(path string, w io.WriterTo) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = w.WriteTo(file)
	return errors.Wrapf(err, "writing %s", path)
}

// Assemble reads assembly code from the provided stream and assembles it
// into machine code starting at 'origin'. An org directive that precedes
// all code overrides the origin.
func Assemble(r io.Reader, filename string, origin uint32, out io.Writer, options Option) (*Assembly, *SourceMap, error) {
	if out == nil {
		out = os.Stdout
	}

	a := &assembler{
		filename: filename,
		origin:   origin,
		pc:       origin,
		labels:   make(map[string]uint32),
		out:      out,
		verbose:  (options & Verbose) != 0,
	}

	// Pass one parses every line and fixes its address. Pass two resolves
	// labels and generates code.
	err := a.parse(r)
	if err == nil && len(a.errors) == 0 {
		err = a.generateCode()
	}
	if err == nil && len(a.errors) > 0 {
		err = errParse
	}

	msgs := make([]string, 0, len(a.errors))
	for _, e := range a.errors {
		msgs = append(msgs, fmt.Sprintf("Syntax error in '%s' line %d, col %d: %s",
			a.filename, e.line.row, e.line.column+1, e.msg))
	}

	assembly := &Assembly{
		Origin: a.origin,
		Code:   a.code,
		Errors: msgs,
	}

	sourceMap := &SourceMap{
		Origin: a.origin,
		Size:   uint32(len(a.code)),
		CRC:    crc32.ChecksumIEEE(a.code),
		File:   filename,
		Lines:  a.lines,
		Labels: a.names,
	}

	return assembly, sourceMap, err
}

// Read the assembly code, record labels, and assign an address to every
// statement.
func (a *assembler) parse(r io.Reader) error {
	a.logSection("Parsing assembly code")

	scanner := bufio.NewScanner(r)
	for row := 1; scanner.Scan(); row++ {
		line := newFstring(row, scanner.Text())
		if err := a.parseLine(line); err != nil {
			a.addError(err)
		}
	}
	return errors.Wrapf(scanner.Err(), "reading %s", a.filename)
}

func (a *assembler) parseLine(line fstring) error {
	l := line.stripTrailingComment().consumeWhitespace()
	if l.isEmpty() {
		return nil
	}

	// An identifier immediately followed by a colon is a label.
	if l.startsWith(identifierStartChar) {
		id, remain := l.consumeWhile(identifierChar)
		if remain.startsWithChar(':') {
			if err := a.storeLabel(id); err != nil {
				return err
			}
			l = remain.consume(1).consumeWhitespace()
			if l.isEmpty() {
				return nil
			}
		}
	}

	if !l.startsWith(identifierStartChar) {
		return newError(l, "expected instruction or directive")
	}
	word, remain := l.consumeWhile(identifierChar)
	if !remain.isEmpty() && !remain.startsWith(whitespace) {
		return newError(remain, "unexpected '%c'", remain.str[0])
	}
	name := strings.ToLower(word.str)

	if fn, ok := directives[name]; ok {
		return fn(a, l, remain)
	}

	encode, ok := mnemonics[name]
	if !ok {
		return newError(word, "unknown instruction '%s'", word.str)
	}
	ops, err := parseOperands(remain)
	if err != nil {
		return err
	}
	enc, err := encode(l, ops)
	if err != nil {
		return err
	}
	a.addStatement(&statement{line: l, enc: enc, size: enc.size()})
	a.logLine(l, "size=%d", enc.size())
	return nil
}

func (a *assembler) addStatement(s *statement) {
	s.addr = a.pc
	a.stmts = append(a.stmts, s)
	a.pc += uint32(s.size)
}

func (a *assembler) storeLabel(id fstring) error {
	if _, ok := cpu.LookupRegister(id.str); ok {
		return newError(id, "register name '%s' used as a label", id.str)
	}
	key := strings.ToLower(id.str)
	if _, ok := a.labels[key]; ok {
		return newError(id, "label '%s' defined more than once", id.str)
	}
	a.labels[key] = a.pc
	a.names = append(a.names, Label{Name: id.str, Address: a.pc})
	a.logLine(id, "label=%08X", a.pc)
	return nil
}

// Parse an "org" directive. The first org, if it precedes all code, sets
// the origin. Later ones pad with zeros up to the requested address.
func (a *assembler) parseOrigin(line, remain fstring) error {
	e, rest, err := parseExpr(remain)
	if err != nil {
		return err
	}
	if !rest.isEmpty() {
		return newError(rest, "unexpected '%s'", rest.str)
	}
	v, ok := e.literal()
	if !ok || v < 0 || v > math.MaxUint32 {
		return newError(e.text, "org requires a constant address")
	}
	addr := uint32(v)

	switch {
	case a.pc == a.origin:
		if len(a.names) > 0 && addr != a.pc {
			return newError(line, "org after a label must not move the origin")
		}
		a.origin, a.pc = addr, addr
	case addr < a.pc:
		return newError(e.text, "org address %08X precedes current address %08X", addr, a.pc)
	default:
		pad := make([]byte, addr-a.pc)
		a.addStatement(&statement{line: line, size: len(pad), width: 1, data: []dataItem{{str: pad}}})
	}
	a.logLine(line, "org=%08X", addr)
	return nil
}

func (a *assembler) parseBytes(line, remain fstring) error {
	return a.parseData(line, remain, 1)
}

func (a *assembler) parseDwords(line, remain fstring) error {
	return a.parseData(line, remain, 4)
}

// Parse a data directive with comma-separated values, each 'width' bytes
// wide. Byte directives also accept double-quoted strings.
func (a *assembler) parseData(line, remain fstring, width int) error {
	s := &statement{line: line, width: width}
	remain = remain.consumeWhitespace()
	if remain.isEmpty() {
		return newError(line, "missing data values")
	}

	for {
		var item fstring
		item, remain = remain.consumeUntilUnquotedChar(',')
		item = item.consumeWhitespace().trimRight()

		switch {
		case item.startsWithChar('"'):
			if width != 1 {
				return newError(item, "strings are only allowed in db")
			}
			if len(item.str) < 2 || item.str[len(item.str)-1] != '"' {
				return newError(item, "unterminated string")
			}
			str := []byte(item.str[1 : len(item.str)-1])
			s.data = append(s.data, dataItem{str: str})
			s.size += len(str)
		default:
			e, rest, err := parseExpr(item)
			if err != nil {
				return err
			}
			if !rest.isEmpty() {
				return newError(rest, "unexpected '%s'", rest.str)
			}
			s.data = append(s.data, dataItem{expr: e})
			s.size += width
		}

		if remain.isEmpty() {
			break
		}
		remain = remain.consume(1)
	}

	a.addStatement(s)
	a.logLine(line, "size=%d", s.size)
	return nil
}

// Resolve labels and generate the machine code for every statement.
func (a *assembler) generateCode() error {
	a.logSection("Generating code")

	a.code = make([]byte, 0, a.pc-a.origin)
	for _, s := range a.stmts {
		b, err := a.emit(s)
		if err != nil {
			a.addError(err)
			continue
		}
		a.lines = append(a.lines, SourceLine{Address: s.addr, Line: s.line.row})
		a.logBytes(s.addr, b, s.line)
		a.code = append(a.code, b...)
	}
	return nil
}

func (a *assembler) emit(s *statement) ([]byte, error) {
	if s.enc != nil {
		return s.enc.emit(s.addr, a.labels)
	}

	b := make([]byte, 0, s.size)
	for _, d := range s.data {
		if d.str != nil {
			b = append(b, d.str...)
			continue
		}
		v, err := d.expr.eval(a.labels)
		if err != nil {
			return nil, err
		}
		lo, hi := int64(math.MinInt8), int64(math.MaxUint8)
		if s.width == 4 {
			lo, hi = math.MinInt32, math.MaxUint32
		}
		if v < lo || v > hi {
			return nil, newError(d.expr.text, "value %d does not fit in %d byte(s)", v, s.width)
		}
		b = appendValue(b, v, s.width)
	}
	return b, nil
}

func (a *assembler) addError(err error) {
	var e *asmerror
	if !errors.As(err, &e) {
		e = &asmerror{msg: err.Error()}
	}
	a.errors = append(a.errors, *e)
	if a.verbose {
		fmt.Fprintf(a.out, "Syntax error in '%s' line %d, col %d: %s\n", a.filename, e.line.row, e.line.column+1, e.msg)
		fmt.Fprintln(a.out, e.line.full)
		fmt.Fprintln(a.out, strings.Repeat("-", e.line.column)+"^")
	}
}

// In verbose mode, log a string and its associated line of assembly code.
func (a *assembler) logLine(line fstring, format string, args ...any) {
	if a.verbose {
		detail := fmt.Sprintf(format, args...)
		fmt.Fprintf(a.out, "%-3d %-3d | %-20s | %s\n", line.row, line.column+1, detail, line.str)
	}
}

// In verbose mode, log the bytes generated for a source line.
func (a *assembler) logBytes(addr uint32, b []byte, line fstring) {
	if a.verbose {
		fmt.Fprintf(a.out, "%08X  % -24X %s\n", addr, b, line.str)
	}
}

// In verbose mode, log a section header to the output.
func (a *assembler) logSection(name string) {
	if a.verbose {
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
		fmt.Fprintf(a.out, "-- %s --\n", name)
		fmt.Fprintln(a.out, strings.Repeat("-", len(name)+6))
	}
}
