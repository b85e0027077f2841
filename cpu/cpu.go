// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements a small subset of the IA-32 instruction set and
// an emulator that executes it against a flat linear memory.
package cpu

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Default machine layout.
const (
	DefaultBase   = 0x7c00  // address at which images are loaded
	DefaultStack  = 0x7c00  // initial stack pointer
	DefaultMaxEIP = 1 << 20 // execution stops once EIP reaches this address
)

// Status describes the execution state of the CPU.
type Status byte

// Execution states.
const (
	Running Status = iota
	Halted
	Faulted
)

var statusNames = []string{"running", "halted", "faulted"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// HaltReason describes why a run ended normally.
type HaltReason byte

// Reasons for a normal halt.
const (
	HaltNone           HaltReason = iota
	HaltUnknownOpcode             // no handler registered for the fetched opcode
	HaltReturnedToZero            // an instruction left EIP at zero
	HaltSafetyBound               // EIP reached MaxEIP
	HaltEndOfMemory               // the opcode fetch address lies past the end of memory
)

var haltReasonNames = []string{
	HaltNone:           "none",
	HaltUnknownOpcode:  "unknown opcode",
	HaltReturnedToZero: "returned to address zero",
	HaltSafetyBound:    "safety bound reached",
	HaltEndOfMemory:    "end of memory",
}

func (r HaltReason) String() string {
	if int(r) < len(haltReasonNames) {
		return haltReasonNames[r]
	}
	return "unknown"
}

// A Tracer receives the address and value of every opcode the CPU fetches,
// before the opcode is dispatched.
type Tracer interface {
	OnFetch(cpu *CPU, eip uint32, opcode byte)
}

// TracerFunc adapts an ordinary function to the Tracer interface.
type TracerFunc func(cpu *CPU, eip uint32, opcode byte)

// OnFetch calls f(cpu, eip, opcode).
func (f TracerFunc) OnFetch(cpu *CPU, eip uint32, opcode byte) {
	f(cpu, eip, opcode)
}

// StepResult describes the outcome of a single Step.
type StepResult struct {
	Status Status     // state of the CPU after the step
	Reason HaltReason // why the CPU halted, when Status is Halted
	EIP    uint32     // address of the fetched opcode
	Opcode byte       // fetched opcode, when one was fetched
}

// Result describes the outcome of a Run.
type Result struct {
	StepResult
	Fault *Fault // the terminating fault, when Status is Faulted
	Err   error  // the terminating error, when Status is Faulted
	Steps uint64 // number of instructions executed
}

// CPU represents a single IA-32 core. It contains a pointer to the memory
// associated with the CPU.
type CPU struct {
	Reg       Registers       // CPU registers
	Mem       Memory          // assigned memory
	InstSet   *InstructionSet // instruction set used by the CPU
	MaxEIP    uint32          // EIP at or above this halts execution
	Steps     uint64          // total executed instructions
	LastEIP   uint32          // address of the most recently executed instruction
	debugger  *Debugger
	tracer    Tracer
	storeByte func(cpu *CPU, addr uint32, v byte) error
}

// NewCPU creates an emulated CPU bound to the specified memory and
// instruction set. If 'set' is nil, a new instruction set is built.
func NewCPU(m Memory, set *InstructionSet) *CPU {
	if set == nil {
		set = NewInstructionSet()
	}
	cpu := &CPU{
		Mem:       m,
		InstSet:   set,
		MaxEIP:    DefaultMaxEIP,
		storeByte: (*CPU).storeByteNormal,
	}
	cpu.Reg.Init(0, 0)
	return cpu
}

// LoadImage creates a memory space holding 'image' at 'base' and a CPU
// bound to it, with EIP at 'base' and ESP at 'sp'.
func LoadImage(base, sp uint32, image []byte, set *InstructionSet) *CPU {
	cpu := NewCPU(NewImageMemory(base, image), set)
	cpu.Reg.Init(base, sp)
	return cpu
}

// SetEIP updates the instruction pointer.
func (cpu *CPU) SetEIP(addr uint32) {
	cpu.Reg.EIP = addr
}

// GetInstruction returns the instruction for the opcode stored at the
// requested address.
func (cpu *CPU) GetInstruction(addr uint32) (*Instruction, error) {
	opcode, err := cpu.Mem.LoadByte(addr)
	if err != nil {
		return nil, err
	}
	return cpu.InstSet.Lookup(opcode), nil
}

// AttachTracer attaches a tracer that observes every opcode fetch. Pass
// nil to remove it.
func (cpu *CPU) AttachTracer(t Tracer) {
	cpu.tracer = t
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a byte
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
	cpu.storeByte = (*CPU).storeByteDebugger
}

// DetachDebugger detaches the currently attached debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
	cpu.storeByte = (*CPU).storeByteNormal
}

// Step the cpu by one instruction. A non-nil error is always accompanied
// by the Faulted status and wraps a *Fault.
func (cpu *CPU) Step() (StepResult, error) {
	eip := cpu.Reg.EIP
	r := StepResult{Status: Running, EIP: eip}

	if eip >= cpu.MaxEIP {
		r.Status, r.Reason = Halted, HaltSafetyBound
		return r, nil
	}

	// An image that simply runs off its end stops here rather than
	// faulting.
	if eip >= cpu.Mem.Size() {
		r.Status, r.Reason = Halted, HaltEndOfMemory
		return r, nil
	}

	opcode, err := cpu.Mem.LoadByte(eip)
	if err != nil {
		return cpu.fault(r, err)
	}
	r.Opcode = opcode

	if cpu.tracer != nil {
		cpu.tracer.OnFetch(cpu, eip, opcode)
	}

	inst := cpu.InstSet.Lookup(opcode)
	if !inst.Implemented() {
		r.Status, r.Reason = Halted, HaltUnknownOpcode
		return r, nil
	}

	cpu.LastEIP = eip
	if err := inst.fn(cpu, inst); err != nil {
		return cpu.fault(r, err)
	}
	cpu.Steps++

	if cpu.Reg.EIP == 0 {
		r.Status, r.Reason = Halted, HaltReturnedToZero
		return r, nil
	}

	// Update the debugger so it can handle breakpoints.
	if cpu.debugger != nil {
		cpu.debugger.onUpdateEIP(cpu, cpu.Reg.EIP)
	}
	return r, nil
}

// Record the location of a fault raised while executing an instruction.
func (cpu *CPU) fault(r StepResult, err error) (StepResult, error) {
	var f *Fault
	if errors.As(err, &f) {
		f.EIP, f.Opcode = r.EIP, r.Opcode
	}
	r.Status = Faulted
	return r, err
}

// Run steps the CPU until it halts or faults.
func (cpu *CPU) Run() Result {
	start := cpu.Steps
	for {
		r, err := cpu.Step()
		if r.Status == Running {
			continue
		}
		res := Result{StepResult: r, Err: err, Steps: cpu.Steps - start}
		if err != nil {
			errors.As(err, &res.Fault)
		}
		return res
	}
}

// DumpRegisters writes each general-purpose register in canonical order
// followed by EIP, one per line, as eight hex digits.
func (cpu *CPU) DumpRegisters(w io.Writer) error {
	for i := 0; i < NumRegisters; i++ {
		r := Register(i)
		if _, err := fmt.Fprintf(w, "%s = %08x\n", r, cpu.Reg.Get(r)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "EIP = %08x\n", cpu.Reg.EIP)
	return err
}

func (cpu *CPU) storeByteNormal(addr uint32, v byte) error {
	return cpu.Mem.StoreByte(addr, v)
}

func (cpu *CPU) storeByteDebugger(addr uint32, v byte) error {
	if err := cpu.Mem.StoreByte(addr, v); err != nil {
		return err
	}
	cpu.debugger.onDataStore(cpu, addr, v)
	return nil
}
