// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command go386 loads a flat binary image at a fixed base address and runs
// it on an emulated IA-32 CPU, tracing every opcode it fetches and dumping
// the registers when the program halts.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/beevik/go386/asm"
	"github.com/beevik/go386/cpu"
	"github.com/beevik/go386/disasm"
	"github.com/beevik/go386/host"
	"github.com/beevik/go386/log"
	"github.com/beevik/term"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type options struct {
	base        uint32
	stack       uint32
	maxEIP      uint32
	logLevel    string
	trace       bool
	disasm      bool
	interactive bool
	assemble    bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// Run the command line and return the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	exitCode := 0
	rootCmd := newRootCmd(stdout, stderr, &exitCode)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "go386 [flags] <image>",
		Short: "Run a flat binary image on an emulated IA-32 CPU",
		Long:  "Run a flat binary image on an emulated IA-32 CPU. With --assemble, the argument is an assembly source file to translate instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			log.SetDefault(log.NewLogger(stderr, lvl))

			*exitCode = run(&opts, args[0], stdout)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	f := rootCmd.Flags()
	f.Uint32Var(&opts.base, "base", cpu.DefaultBase, "load address of the image")
	f.Uint32Var(&opts.stack, "stack", cpu.DefaultStack, "initial stack pointer")
	f.Uint32Var(&opts.maxEIP, "max-eip", cpu.DefaultMaxEIP, "halt once EIP reaches this address")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error, crit)")
	f.BoolVar(&opts.trace, "trace", true, "print each fetched opcode")
	f.BoolVar(&opts.disasm, "disasm", false, "append disassembly to trace lines")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "open the debugger instead of running")
	f.BoolVarP(&opts.assemble, "assemble", "a", false, "assemble the source file to a .bin and .map instead of running")
	return rootCmd
}

// Load and execute the image. Return the process exit code.
func run(opts *options, path string, stdout io.Writer) int {
	if opts.assemble {
		if err := asm.AssembleFile(path, opts.base, 0, stdout); err != nil {
			log.Error(log.CLI, "failed to assemble", "path", path, "err", err)
			return 1
		}
		return 0
	}

	image, err := os.ReadFile(path)
	if err != nil {
		log.Error(log.CLI, "failed to load image", "err", errors.Wrapf(err, "reading image %s", path))
		return 1
	}
	log.Info(log.CLI, "image loaded", "path", path, "size", len(image), "base", fmt.Sprintf("%08x", opts.base))

	if opts.interactive {
		return debug(opts, image, stdout)
	}

	c := cpu.LoadImage(opts.base, opts.stack, image, nil)
	c.MaxEIP = opts.maxEIP
	if opts.trace {
		c.AttachTracer(newTracer(stdout, opts.disasm))
	}

	res := c.Run()
	switch res.Status {
	case cpu.Faulted:
		log.Error(log.CLI, "cpu fault", "err", res.Err, "steps", res.Steps)
		return 1
	default:
		if res.Reason == cpu.HaltUnknownOpcode {
			log.Warn(log.CLI, "unimplemented opcode", "eip", fmt.Sprintf("%08x", res.EIP), "opcode", fmt.Sprintf("%02x", res.Opcode))
		}
		log.Info(log.CLI, "cpu halted", "reason", res.Reason, "steps", res.Steps)
		if err := c.DumpRegisters(stdout); err != nil {
			log.Error(log.CLI, "failed to write registers", "err", err)
			return 1
		}
		return 0
	}
}

func newTracer(w io.Writer, withDisasm bool) cpu.Tracer {
	return cpu.TracerFunc(func(c *cpu.CPU, eip uint32, opcode byte) {
		if !withDisasm {
			fmt.Fprintf(w, "EIP = %x, Code = %02x\n", eip, opcode)
			return
		}
		line, _ := disasm.Disassemble(c.Mem, eip, nil)
		fmt.Fprintf(w, "EIP = %x, Code = %02x    %s\n", eip, opcode, line)
	})
}

// Open the interactive debugger on the image.
func debug(opts *options, image []byte, stdout io.Writer) int {
	h := host.New()
	h.SetStackPointer(opts.stack)
	h.LoadImage(opts.base, image)
	h.CPU().MaxEIP = opts.maxEIP

	// Break on Ctrl-C.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	defer signal.Stop(c)
	go handleInterrupt(h, c)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		h.RunCommands(os.Stdin, stdout, false)
		return 0
	}

	var history string
	if dir, err := os.UserCacheDir(); err == nil {
		history = filepath.Join(dir, "go386_history")
	}
	if err := h.RunTerminal(history); err != nil {
		log.Error(log.CLI, "debugger failed", "err", err)
		return 1
	}
	return 0
}

func handleInterrupt(h *host.Host, c chan os.Signal) {
	for range c {
		h.Break()
	}
}
