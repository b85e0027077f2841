// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host allows you to create a "host" that emulates a system with
// an IA-32 CPU running a flat binary image, a built-in assembler, a
// built-in debugger, and other useful tools.
//
// Within the host it is possible to assemble and load machine code into
// memory, debug and step through machine code, set address and data
// breakpoints, dump the contents of memory, disassemble the contents of
// memory, manipulate CPU registers and memory, and evaluate arbitrary
// expressions.
package host

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/beevik/cmd"
	"github.com/beevik/go386/asm"
	"github.com/beevik/go386/cpu"
	"github.com/beevik/go386/disasm"
	"github.com/beevik/go386/log"
	"github.com/chzyer/readline"
	"github.com/mgutz/ansi"
	"github.com/pkg/errors"
)

var errQuit = errors.New("exiting program")

type displayFlags uint8

const (
	displayRegisters displayFlags = 1 << iota
	displayLabels

	displayAll = displayRegisters | displayLabels
)

type state byte

const (
	stateProcessingCommands state = iota
	stateRunning
	stateBreakpoint
	stateStepOverBreakpoint
	stateHalted
)

// A lineReader supplies command lines to the host.
type lineReader interface {
	readLine() (string, error)
}

// A scanReader reads command lines from a stream, displaying its own
// prompt when the host is interactive.
type scanReader struct {
	h       *Host
	scanner *bufio.Scanner
}

func (r *scanReader) readLine() (string, error) {
	if r.h.interactive {
		r.h.printf("* ")
	}
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// A terminalReader reads command lines from a terminal with line editing
// and history.
type terminalReader struct {
	rl *readline.Instance
}

func (r *terminalReader) readLine() (string, error) {
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", nil
	}
	return line, err
}

// A Host represents a fully emulated IA-32 system, a built-in assembler,
// a built-in debugger, and other useful tools.
type Host struct {
	input       lineReader
	output      *bufio.Writer
	interactive bool
	cpu         *cpu.CPU
	instSet     *cpu.InstructionSet
	debugger    *cpu.Debugger
	lastCmd     *cmd.Selection
	state       state
	exprParser  *exprParser
	sourceMap   *asm.SourceMap
	settings    *settings
	image       []byte
	origin      uint32
	prevReg     cpu.Registers
}

// New creates a new IA-32 host environment with an empty image loaded at
// the default base address.
func New() *Host {
	h := &Host{
		state:      stateProcessingCommands,
		exprParser: newExprParser(),
		settings:   newSettings(),
		instSet:    cpu.NewInstructionSet(),
		output:     bufio.NewWriter(io.Discard),
	}

	// Create a CPU debugger. It is attached to every CPU the host creates.
	h.debugger = cpu.NewDebugger(newDebugHandler(h))

	h.LoadImage(h.settings.LoadBase, nil)
	return h
}

// LoadImage places a flat binary image at address 'origin' and resets the
// CPU to execute it.
func (h *Host) LoadImage(origin uint32, image []byte) {
	h.origin = origin
	h.image = image
	h.reset()
}

// SetStackPointer changes the initial ESP used by the next load or reset.
func (h *Host) SetStackPointer(sp uint32) {
	h.settings.StackPointer = sp
}

// CPU returns the host's emulated CPU.
func (h *Host) CPU() *cpu.CPU {
	return h.cpu
}

// Create a fresh memory space and CPU from the current image.
func (h *Host) reset() {
	h.cpu = cpu.LoadImage(h.origin, h.settings.StackPointer, h.image, h.instSet)
	h.cpu.AttachDebugger(h.debugger)
	h.prevReg = h.cpu.Reg
	h.settings.NextDisasmAddr = h.origin
	h.settings.NextMemDumpAddr = h.origin
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.interactive = interactive
	h.run(&scanReader{h: h, scanner: bufio.NewScanner(r)}, w)
}

// RunTerminal accepts host commands from the terminal using an editable
// command line. Command history is saved to 'historyFile' unless it is
// empty.
func (h *Host) RunTerminal(historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "* ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
	})
	if err != nil {
		return errors.Wrap(err, "opening terminal")
	}
	defer rl.Close()

	h.interactive = true
	h.run(&terminalReader{rl: rl}, rl.Stdout())
	return nil
}

func (h *Host) run(input lineReader, w io.Writer) {
	h.input = input
	h.output = bufio.NewWriter(w)
	defer h.flush()

	if h.interactive {
		h.println()
	}

	h.displayEIP()

	for {
		line, err := h.input.readLine()
		if err != nil {
			break
		}

		var c cmd.Selection
		if line != "" {
			c, err = cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				h.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}
			if c.Command == nil {
				h.displaySubtree(strings.Fields(line)[0])
				continue
			}
		} else if h.lastCmd != nil {
			c = *h.lastCmd
		}

		if c.Command == nil {
			continue
		}
		h.lastCmd = &c

		handler := c.Command.Data.(*command).handler
		if err := handler(h, c); err != nil {
			break
		}
	}
}

// Break interrupts a running CPU.
func (h *Host) Break() {
	h.println()

	if h.state == stateRunning {
		h.displayEIP()
	}
	if h.state == stateProcessingCommands && h.interactive {
		h.printf("* ")
	}
	h.state = stateProcessingCommands
}

func (h *Host) print(args ...any) {
	fmt.Fprint(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) displayEIP() {
	if h.interactive {
		d, _ := h.disassemble(h.cpu.Reg.EIP, displayAll)
		h.println(d)
	}
}

func (h *Host) cmdAssemble(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command.Data.(*command))
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	err := asm.AssembleFile(filename, h.settings.LoadBase, 0, h.output)
	if err != nil {
		h.printf("Failed to assemble '%s': %v\n", filepath.Base(filename), err)
		log.Warn(log.Host, "assembly failed", "file", filename, "err", err)
	}
	h.flush()
	return nil
}

func (h *Host) cmdBreakpointList(c cmd.Selection) error {
	h.println("Addr      Enabled")
	h.println("--------- -------")
	for _, b := range h.debugger.GetBreakpoints() {
		h.printf("$%08X %v\n", b.Address, !b.Disabled)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(c cmd.Selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	h.debugger.AddBreakpoint(addr)
	h.printf("Breakpoint added at $%08X.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointRemove(c cmd.Selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	if h.debugger.GetBreakpoint(addr) == nil {
		h.printf("No breakpoint was set on $%08X.\n", addr)
		return nil
	}

	h.debugger.RemoveBreakpoint(addr)
	h.printf("Breakpoint at $%08X removed.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointEnable(c cmd.Selection) error {
	return h.enableBreakpoint(c, true)
}

func (h *Host) cmdBreakpointDisable(c cmd.Selection) error {
	return h.enableBreakpoint(c, false)
}

func (h *Host) enableBreakpoint(c cmd.Selection, enable bool) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	b := h.debugger.GetBreakpoint(addr)
	if b == nil {
		h.printf("No breakpoint was set on $%08X.\n", addr)
		return nil
	}

	b.Disabled = !enable
	h.printf("Breakpoint at $%08X %s.\n", addr, enabledString(enable))
	return nil
}

func (h *Host) cmdDataBreakpointList(c cmd.Selection) error {
	h.println("Addr      Enabled  Value")
	h.println("--------- -------  -----")
	for _, b := range h.debugger.GetDataBreakpoints() {
		if b.Conditional {
			h.printf("$%08X %-5v    $%02X\n", b.Address, !b.Disabled, b.Value)
		} else {
			h.printf("$%08X %-5v    <none>\n", b.Address, !b.Disabled)
		}
	}
	return nil
}

func (h *Host) cmdDataBreakpointAdd(c cmd.Selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	if len(c.Args) > 1 {
		value, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.debugger.AddConditionalDataBreakpoint(addr, byte(value))
		h.printf("Conditional data breakpoint added at $%08X for value $%02X.\n", addr, byte(value))
	} else {
		h.debugger.AddDataBreakpoint(addr)
		h.printf("Data breakpoint added at $%08X.\n", addr)
	}

	return nil
}

func (h *Host) cmdDataBreakpointRemove(c cmd.Selection) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	if h.debugger.GetDataBreakpoint(addr) == nil {
		h.printf("No data breakpoint was set on $%08X.\n", addr)
		return nil
	}

	h.debugger.RemoveDataBreakpoint(addr)
	h.printf("Data breakpoint at $%08X removed.\n", addr)
	return nil
}

func (h *Host) cmdDataBreakpointEnable(c cmd.Selection) error {
	return h.enableDataBreakpoint(c, true)
}

func (h *Host) cmdDataBreakpointDisable(c cmd.Selection) error {
	return h.enableDataBreakpoint(c, false)
}

func (h *Host) enableDataBreakpoint(c cmd.Selection, enable bool) error {
	addr, ok := h.parseAddrArg(c)
	if !ok {
		return nil
	}

	b := h.debugger.GetDataBreakpoint(addr)
	if b == nil {
		h.printf("No data breakpoint was set on $%08X.\n", addr)
		return nil
	}

	b.Disabled = !enable
	h.printf("Data breakpoint at $%08X %s.\n", addr, enabledString(enable))
	return nil
}

func enabledString(enable bool) string {
	if enable {
		return "enabled"
	}
	return "disabled"
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint32
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextDisasmAddr
	case ".":
		addr = h.cpu.Reg.EIP
	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		l, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = int(l)
	}

	for i := 0; i < lines; i++ {
		d, next := h.disassemble(addr, displayLabels)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", lines)}
	return nil
}

func (h *Host) cmdEvaluate(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command.Data.(*command))
		return nil
	}

	expr := strings.Join(c.Args, " ")
	v, err := h.exprParser.Parse(expr, h)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("$%08X (%d)\n", uint32(v), v)
	return nil
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.println("go386 commands:")
		h.print(commandTree(""))
		h.flush()
		return nil
	}

	s, err := cmds.Lookup(strings.Join(c.Args, " "))
	if err != nil || s.Command == nil {
		if h.displaySubtree(c.Args[0]) {
			return nil
		}
		if err == nil {
			err = cmd.ErrNotFound
		}
		h.printf("%v\n", err)
		return nil
	}

	cm := s.Command.Data.(*command)
	if cm.usage != "" {
		h.printf("Syntax: %s\n\n", cm.usage)
	}
	switch {
	case cm.description != "":
		h.printf("Description:\n%s\n\n", indentWrap(3, cm.description))
	case cm.brief != "":
		h.printf("Description:\n%s.\n\n", indentWrap(3, cm.brief))
	}
	return nil
}

func (h *Host) cmdLabels(c cmd.Selection) error {
	if h.sourceMap == nil || len(h.sourceMap.Labels) == 0 {
		h.println("No labels loaded.")
		return nil
	}
	for _, l := range h.sourceMap.Labels {
		h.printf("%-16s $%08X\n", l.Name, l.Address)
	}
	return nil
}

func (h *Host) cmdLoad(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command.Data.(*command))
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".bin"
	}

	addr := h.settings.LoadBase
	if len(c.Args) >= 2 {
		a, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	if err := h.load(filename, addr); err != nil {
		h.printf("%v\n", err)
		log.Warn(log.Host, "load failed", "file", filename, "err", err)
	}
	return nil
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint32
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextMemDumpAddr
	case ".":
		addr = h.cpu.Reg.EIP
	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	bytes := uint32(h.settings.MemDumpBytes)
	if len(c.Args) >= 2 {
		var err error
		bytes, err = h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	h.dumpMemory(addr, bytes)

	h.settings.NextMemDumpAddr = addr + bytes
	h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", bytes)}
	return nil
}

func (h *Host) cmdMemorySet(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayUsage(c.Command.Data.(*command))
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := make([]byte, 0, len(c.Args)-1)
	for _, arg := range c.Args[1:] {
		v, err := h.parseExpr(arg)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		b = append(b, byte(v))
	}

	if err := h.cpu.Mem.StoreBytes(addr, b); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.printf("Stored %d byte(s) at $%08X.\n", len(b), addr)
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errQuit
}

func (h *Host) cmdRegister(c cmd.Selection) error {
	if len(c.Args) == 0 {
		d, _ := h.disassemble(h.cpu.Reg.EIP, displayAll)
		h.println(d)
		return nil
	}
	if len(c.Args) < 2 {
		h.displayUsage(c.Command.Data.(*command))
		return nil
	}

	name := strings.ToUpper(c.Args[0])
	v, err := h.parseExpr(strings.Join(c.Args[1:], " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	switch name {
	case ".", "EIP":
		name = "EIP"
		h.cpu.SetEIP(v)
	case "EFLAGS":
		h.cpu.Reg.EFlags = v
	default:
		r, ok := cpu.LookupRegister(name)
		if !ok {
			h.printf("Unknown register '%s'.\n", c.Args[0])
			return nil
		}
		h.cpu.Reg.Set(r, v)
	}

	h.printf("Register %s set to $%08X.\n", name, v)
	return nil
}

func (h *Host) cmdReset(c cmd.Selection) error {
	h.reset()
	h.printf("CPU reset. EIP = $%08X, ESP = $%08X.\n", h.cpu.Reg.EIP, h.cpu.Reg.Get(cpu.ESP))
	return nil
}

func (h *Host) cmdRun(c cmd.Selection) error {
	if len(c.Args) > 0 {
		eip, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.cpu.SetEIP(eip)
	}

	h.printf("Running from $%08X. Press ctrl-C to break.\n", h.cpu.Reg.EIP)

	h.state = stateRunning
	for h.state == stateRunning {
		h.step()
	}
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.cpu.Reg.EIP
	return nil
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayUsage(c.Command.Data.(*command))

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = errors.Errorf("setting '%s' not found", key)
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v int64
			v, err = h.exprParser.Parse(value, h)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.println("Setting updated.")
		} else {
			h.printf("%v\n", err)
		}

		h.onSettingsUpdate()
	}

	return nil
}

func (h *Host) cmdStepIn(c cmd.Selection) error {
	return h.stepCount(c, h.step)
}

func (h *Host) cmdStepOver(c cmd.Selection) error {
	return h.stepCount(c, h.stepOver)
}

func (h *Host) stepCount(c cmd.Selection, step func()) error {
	// Parse the number of steps.
	count := 1
	if len(c.Args) > 0 {
		n, err := h.parseExpr(c.Args[0])
		if err == nil {
			count = int(n)
		}
	}

	// Step the CPU count times.
	h.state = stateRunning
	for i := count - 1; i >= 0 && h.state == stateRunning; i-- {
		step()
		switch {
		case i == h.settings.MaxStepLines:
			h.println("...")
		case i < h.settings.MaxStepLines:
			h.displayEIP()
		}
	}
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.cpu.Reg.EIP
	return nil
}

func (h *Host) load(filename string, addr uint32) error {
	code, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to read '%s'", filepath.Base(filename))
	}

	// A matching source map supplies the origin and labels.
	ext := filepath.Ext(filename)
	mapFilename := filename[:len(filename)-len(ext)] + ".map"
	h.sourceMap = nil
	if file, err := os.Open(mapFilename); err == nil {
		sm := &asm.SourceMap{}
		_, err = sm.ReadFrom(file)
		file.Close()
		switch {
		case err != nil:
			h.printf("Failed to read '%s': %v\n", filepath.Base(mapFilename), err)
		case sm.CRC != crc32.ChecksumIEEE(code):
			h.printf("Source map '%s' does not match the binary; ignoring it.\n", filepath.Base(mapFilename))
		default:
			h.sourceMap = sm
			addr = sm.Origin
			h.printf("Loaded '%s' source map\n", filepath.Base(mapFilename))
		}
	}

	h.LoadImage(addr, code)
	h.printf("Loaded '%s' to $%08X..$%08X\n", filepath.Base(filename), addr, int64(addr)+int64(len(code))-1)
	log.Info(log.Host, "image loaded", "file", filename, "origin", fmt.Sprintf("%08x", addr), "size", len(code))
	return nil
}

func (h *Host) step() {
	r, err := h.cpu.Step()
	switch r.Status {
	case cpu.Halted:
		h.state = stateHalted
		h.printf("CPU halted at $%08X: %s.\n", r.EIP, r.Reason)
		if r.Reason == cpu.HaltUnknownOpcode {
			log.Warn(log.Host, "unknown opcode", "eip", fmt.Sprintf("%08x", r.EIP), "opcode", fmt.Sprintf("%02x", r.Opcode))
		}
	case cpu.Faulted:
		h.state = stateHalted
		h.printf("CPU fault: %v\n", err)
		log.Error(log.Host, "cpu fault", "err", err)
	}
}

func (h *Host) stepOver() {
	c := h.cpu

	// CALL instructions need to be handled specially.
	inst, err := c.GetInstruction(c.Reg.EIP)
	if err != nil || inst.Opcode != 0xe8 {
		h.step()
		return
	}

	// Place a step-over breakpoint on the instruction following the CALL.
	// Either modify an already existing breakpoint on that instruction, or
	// create a temporary one.
	next := c.Reg.EIP + 5
	tmpBreakpointCreated := false
	b := h.debugger.GetBreakpoint(next)
	if b == nil {
		b = h.debugger.AddBreakpoint(next)
		tmpBreakpointCreated = true
	}
	b.StepOver = true

	// Run until interrupted.
	for h.state == stateRunning {
		h.step()
	}
	b.StepOver = false

	// If we were interrupted by the temporary step-over breakpoint,
	// then continue as normal.
	if h.state == stateStepOverBreakpoint {
		h.state = stateRunning
	}

	// Remove the temporarily created breakpoint.
	if tmpBreakpointCreated {
		h.debugger.RemoveBreakpoint(next)
	}
}

func (h *Host) onSettingsUpdate() {
	h.exprParser.hexMode = h.settings.HexMode
}

func (h *Host) parseExpr(expr string) (uint32, error) {
	v, err := h.exprParser.Parse(expr, h)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// Parse the first argument of a command as an address. Display the
// command's usage when it is missing.
func (h *Host) parseAddrArg(c cmd.Selection) (uint32, bool) {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command.Data.(*command))
		return 0, false
	}
	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return 0, false
	}
	return addr, true
}

func (h *Host) disassemble(addr uint32, flags displayFlags) (str string, next uint32) {
	mem := h.cpu.Mem

	var line string
	line, next = disasm.Disassemble(mem, addr, h.symbol)
	str = fmt.Sprintf("%08X-   %-20s  %-28s", addr, disasm.CodeString(mem, addr, next), line)

	if (flags & displayRegisters) != 0 {
		str += " " + h.registerString()
	}

	if (flags & displayLabels) != 0 {
		if name, _ := h.symbol(addr); name != "" {
			str += " ; " + name
		}
	}

	return strings.TrimRight(str, " "), next
}

// Return the register line, highlighting registers that changed since
// the last time it was displayed.
func (h *Host) registerString() string {
	if !h.settings.Color {
		h.prevReg = h.cpu.Reg
		return disasm.RegisterString(&h.cpu.Reg)
	}

	reg := &h.cpu.Reg
	fields := make([]string, 0, cpu.NumRegisters+1)
	for i := 0; i < cpu.NumRegisters; i++ {
		r := cpu.Register(i)
		s := fmt.Sprintf("%s=%08X", r, reg.Get(r))
		if reg.Get(r) != h.prevReg.Get(r) {
			s = ansi.Color(s, "yellow+b")
		}
		fields = append(fields, s)
	}
	s := fmt.Sprintf("EIP=%08X", reg.EIP)
	if reg.EIP != h.prevReg.EIP {
		s = ansi.Color(s, "yellow+b")
	}
	fields = append(fields, s)

	h.prevReg = *reg
	return strings.Join(fields, " ")
}

func (h *Host) symbol(addr uint32) (string, uint32) {
	if h.sourceMap == nil {
		return "", 0
	}
	if name, ok := h.sourceMap.LabelAt(addr); ok {
		return name, addr
	}
	return "", 0
}

func (h *Host) dumpMemory(addr0, bytes uint32) {
	if bytes == 0 {
		return
	}

	addr1 := addr0 + bytes - 1
	if addr1 < addr0 {
		addr1 = 0xffffffff
	}

	// Each row holds 16 bytes: the address, the hex bytes in two groups
	// of eight, and their printable characters.
	const hexCol, charCol = 10, 61
	buf := []byte(strings.Repeat(" ", charCol+16))
	buf[8] = '-'

	size := h.cpu.Mem.Size()
	for row := addr0 &^ 0xf; ; row += 16 {
		addrToBuf(row, buf[0:8])
		for i := uint32(0); i < 16; i++ {
			c1 := hexCol + 3*int(i)
			if i >= 8 {
				c1++
			}
			c2 := charCol + int(i)

			a := row + i
			if a >= addr0 && a <= addr1 && a < size {
				m, _ := h.cpu.Mem.LoadByte(a)
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1], buf[c1+1], buf[c2] = ' ', ' ', ' '
			}
		}
		h.println(strings.TrimRight(string(buf), " "))

		if row+15 >= addr1 || row+16 < row {
			break
		}
	}
}

func (h *Host) displayUsage(c *command) {
	if c.usage != "" {
		h.printf("Syntax: %s\n", c.usage)
	} else {
		h.println("<no help text>")
	}
}

// Display the commands of the subtree named by 'prefix'. Return false if
// no subtree matches.
func (h *Host) displaySubtree(prefix string) bool {
	name, ok := findSubtree(prefix)
	if !ok {
		return false
	}
	h.printf("%s commands:\n", name)
	h.print(commandTree(name))
	h.flush()
	return true
}

func (h *Host) resolveIdentifier(s string) (int64, error) {
	s = strings.ToLower(s)

	switch s {
	case ".", "eip":
		return int64(h.cpu.Reg.EIP), nil
	case "eflags":
		return int64(h.cpu.Reg.EFlags), nil
	}

	if r, ok := cpu.LookupRegister(s); ok {
		return int64(h.cpu.Reg.Get(r)), nil
	}

	if h.sourceMap != nil {
		if addr, ok := h.sourceMap.LookupLabel(s); ok {
			return int64(addr), nil
		}
	}

	return 0, errors.Errorf("identifier '%s' not found", s)
}

func (h *Host) loadDword(addr uint32) (uint32, error) {
	return h.cpu.ReadMem32(addr)
}

func (h *Host) onBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	if b.StepOver {
		h.state = stateStepOverBreakpoint
	} else {
		h.state = stateBreakpoint
		h.printf("Breakpoint hit at $%08X.\n", b.Address)
		h.displayEIP()
	}
}

func (h *Host) onDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	h.printf("Data breakpoint hit on address $%08X.\n", b.Address)

	h.state = stateBreakpoint

	if c.LastEIP != c.Reg.EIP {
		d, _ := h.disassemble(c.LastEIP, displayAll)
		h.println(d)
	}

	h.displayEIP()
}
