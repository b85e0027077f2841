// Copyright 2014-2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"strings"

	"github.com/beevik/cmd"
	"github.com/xlab/treeprint"
)

// A command describes a host command and the handler that executes it.
type command struct {
	path        string // full command name, e.g. "breakpoint add"
	brief       string
	description string
	usage       string
	handler     func(h *Host, c cmd.Selection) error
}

var subtrees = []cmd.TreeDescriptor{
	{Name: "breakpoint", Brief: "Breakpoint commands"},
	{Name: "databreakpoint", Brief: "Data breakpoint commands"},
	{Name: "memory", Brief: "Memory commands"},
	{Name: "step", Brief: "Step the debugger"},
}

var commands = []*command{
	{
		path:        "help",
		description: "Display help for a command.",
		usage:       "help [<command>]",
		handler:     (*Host).cmdHelp,
	},
	{
		path:  "assemble",
		brief: "Assemble a file from disk and save the binary to disk",
		description: "Run the cross-assembler on the specified file," +
			" producing a binary file and source map file if successful." +
			" The code is assembled at the LoadBase address unless the file" +
			" starts with an org directive.",
		usage:   "assemble <filename>",
		handler: (*Host).cmdAssemble,
	},

	{
		path:        "breakpoint list",
		brief:       "List breakpoints",
		description: "List all current breakpoints.",
		usage:       "breakpoint list",
		handler:     (*Host).cmdBreakpointList,
	},
	{
		path:  "breakpoint add",
		brief: "Add a breakpoint",
		description: "Add a breakpoint at the specified address." +
			" The breakpoint starts enabled.",
		usage:   "breakpoint add <address>",
		handler: (*Host).cmdBreakpointAdd,
	},
	{
		path:        "breakpoint remove",
		brief:       "Remove a breakpoint",
		description: "Remove a breakpoint at the specified address.",
		usage:       "breakpoint remove <address>",
		handler:     (*Host).cmdBreakpointRemove,
	},
	{
		path:        "breakpoint enable",
		brief:       "Enable a breakpoint",
		description: "Enable a previously added breakpoint.",
		usage:       "breakpoint enable <address>",
		handler:     (*Host).cmdBreakpointEnable,
	},
	{
		path:  "breakpoint disable",
		brief: "Disable a breakpoint",
		description: "Disable a previously added breakpoint. This" +
			" prevents the breakpoint from being hit when running the CPU.",
		usage:   "breakpoint disable <address>",
		handler: (*Host).cmdBreakpointDisable,
	},

	{
		path:        "databreakpoint list",
		brief:       "List data breakpoints",
		description: "List all current data breakpoints.",
		usage:       "databreakpoint list",
		handler:     (*Host).cmdDataBreakpointList,
	},
	{
		path:  "databreakpoint add",
		brief: "Add a data breakpoint",
		description: "Add a new data breakpoint at the specified memory" +
			" address. When the CPU stores a byte to this address, the" +
			" breakpoint will stop the CPU. Optionally, a byte value may" +
			" be specified, and the CPU will stop only when this value is" +
			" stored. The data breakpoint starts enabled.",
		usage:   "databreakpoint add <address> [<value>]",
		handler: (*Host).cmdDataBreakpointAdd,
	},
	{
		path:  "databreakpoint remove",
		brief: "Remove a data breakpoint",
		description: "Remove a previously added data breakpoint at" +
			" the specified memory address.",
		usage:   "databreakpoint remove <address>",
		handler: (*Host).cmdDataBreakpointRemove,
	},
	{
		path:        "databreakpoint enable",
		brief:       "Enable a data breakpoint",
		description: "Enable a previously added data breakpoint.",
		usage:       "databreakpoint enable <address>",
		handler:     (*Host).cmdDataBreakpointEnable,
	},
	{
		path:        "databreakpoint disable",
		brief:       "Disable a data breakpoint",
		description: "Disable a previously added data breakpoint.",
		usage:       "databreakpoint disable <address>",
		handler:     (*Host).cmdDataBreakpointDisable,
	},

	{
		path:  "disassemble",
		brief: "Disassemble code",
		description: "Disassemble machine code starting at the requested" +
			" address. The number of instruction lines to disassemble may be" +
			" specified as an option. If no address is specified, the" +
			" disassembly continues from where the last disassembly left off.",
		usage:   "disassemble [<address>] [<lines>]",
		handler: (*Host).cmdDisassemble,
	},
	{
		path:  "evaluate",
		brief: "Evaluate an expression",
		description: "Evaluate a mathematical expression. Expressions may" +
			" refer to registers, source map labels and dword memory" +
			" contents using [address].",
		usage:   "evaluate <expression>",
		handler: (*Host).cmdEvaluate,
	},
	{
		path:  "labels",
		brief: "List source map labels",
		description: "Display the labels stored in the source map of the" +
			" most recently loaded binary file.",
		usage:   "labels",
		handler: (*Host).cmdLabels,
	},
	{
		path:  "load",
		brief: "Load a binary file",
		description: "Load the contents of a binary file into the emulated" +
			" system's memory. If the file has an associated source map, it" +
			" will be loaded too and its origin is used as the load address." +
			" Otherwise the data is loaded at the specified address, or at" +
			" LoadBase when no address is given.",
		usage:   "load <filename> [<address>]",
		handler: (*Host).cmdLoad,
	},

	{
		path:  "memory dump",
		brief: "Dump memory at address",
		description: "Dump the contents of memory starting from the" +
			" specified address. The number of bytes to dump may be" +
			" specified as an option. If no address is specified, the" +
			" memory dump continues from where the last dump left off.",
		usage:   "memory dump [<address>] [<bytes>]",
		handler: (*Host).cmdMemoryDump,
	},
	{
		path:  "memory set",
		brief: "Set memory at address",
		description: "Set the contents of memory starting from the specified" +
			" address. The values to assign should be a series of" +
			" space-separated byte values. You may use an expression for each" +
			" byte value.",
		usage:   "memory set <address> <byte> [<byte> ...]",
		handler: (*Host).cmdMemorySet,
	},

	{
		path:        "quit",
		brief:       "Quit the program",
		description: "Quit the program.",
		usage:       "quit",
		handler:     (*Host).cmdQuit,
	},
	{
		path:  "register",
		brief: "View or change register values",
		description: "When used without arguments, this command displays the" +
			" current contents of the CPU registers. When used with arguments," +
			" this command changes the value of a register. Allowed register" +
			" names include EAX, ECX, EDX, EBX, ESP, EBP, ESI, EDI, EIP and" +
			" EFLAGS.",
		usage:   "register [<name> <value>]",
		handler: (*Host).cmdRegister,
	},
	{
		path:  "reset",
		brief: "Reset the CPU",
		description: "Reload the most recently loaded image into a fresh" +
			" memory space and reinitialize the registers. Breakpoints are" +
			" kept.",
		usage:   "reset",
		handler: (*Host).cmdReset,
	},
	{
		path:  "run",
		brief: "Run the CPU",
		description: "Run the CPU until it halts, faults, hits a breakpoint" +
			" or the user types Ctrl-C. An optional address sets EIP first.",
		usage:   "run [<address>]",
		handler: (*Host).cmdRun,
	},
	{
		path:  "set",
		brief: "Set a configuration variable",
		description: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		usage:   "set [<var> <value>]",
		handler: (*Host).cmdSet,
	},

	{
		path:  "step in",
		brief: "Step into next instruction",
		description: "Step the CPU by a single instruction. If the" +
			" instruction is a subroutine call, step into the subroutine." +
			" The number of steps may be specified as an option.",
		usage:   "step in [<count>]",
		handler: (*Host).cmdStepIn,
	},
	{
		path:  "step over",
		brief: "Step over next instruction",
		description: "Step the CPU by a single instruction. If the" +
			" instruction is a subroutine call, step over the subroutine." +
			" The number of steps may be specified as an option.",
		usage:   "step over [<count>]",
		handler: (*Host).cmdStepOver,
	},
}

var shortcuts = [][2]string{
	{"a", "assemble"},
	{"b", "breakpoint"},
	{"bp", "breakpoint"},
	{"ba", "breakpoint add"},
	{"br", "breakpoint remove"},
	{"bl", "breakpoint list"},
	{"be", "breakpoint enable"},
	{"bd", "breakpoint disable"},
	{"d", "disassemble"},
	{"db", "databreakpoint"},
	{"dbp", "databreakpoint"},
	{"dbl", "databreakpoint list"},
	{"dba", "databreakpoint add"},
	{"dbr", "databreakpoint remove"},
	{"dbe", "databreakpoint enable"},
	{"dbd", "databreakpoint disable"},
	{"e", "evaluate"},
	{"m", "memory dump"},
	{"ms", "memory set"},
	{"r", "register"},
	{"s", "step over"},
	{"si", "step in"},
	{"?", "help"},
	{".", "register"},
}

var cmds *cmd.Tree

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "go386"})

	trees := map[string]*cmd.Tree{"": root}
	for _, d := range subtrees {
		trees[d.Name] = root.AddSubtree(d)
	}

	for _, c := range commands {
		parent, name := splitPath(c.path)
		trees[parent].AddCommand(cmd.CommandDescriptor{
			Name:        name,
			Brief:       c.brief,
			Description: c.description,
			Usage:       c.usage,
			Data:        c,
		})
	}

	for _, s := range shortcuts {
		root.AddShortcut(s[0], s[1])
	}

	cmds = root
}

// Split a command path into its subtree name and command name.
func splitPath(path string) (parent, name string) {
	if i := strings.IndexByte(path, ' '); i >= 0 {
		return path[:i], path[i+1:]
	}
	return "", path
}

// Render the commands under the subtree 'parent' (or all commands when
// 'parent' is empty) as a tree.
func commandTree(parent string) string {
	tree := treeprint.New()
	branches := make(map[string]treeprint.Tree)
	for _, d := range subtrees {
		if parent == "" || parent == d.Name {
			branches[d.Name] = tree.AddBranch(fmt.Sprintf("%-15s %s", d.Name, d.Brief))
		}
	}

	for _, c := range commands {
		if c.brief == "" {
			continue
		}
		p, name := splitPath(c.path)
		switch {
		case p == "" && parent == "":
			tree.AddNode(fmt.Sprintf("%-15s %s", name, c.brief))
		case p != "" && branches[p] != nil:
			branches[p].AddNode(fmt.Sprintf("%-15s %s", name, c.brief))
		}
	}
	return tree.String()
}

// Find the subtree whose name starts with 'prefix'.
func findSubtree(prefix string) (string, bool) {
	prefix = strings.ToLower(prefix)
	for _, s := range shortcuts {
		if s[0] == prefix && !strings.Contains(s[1], " ") {
			prefix = s[1]
		}
	}
	for _, d := range subtrees {
		if strings.HasPrefix(d.Name, prefix) {
			return d.Name, true
		}
	}
	return "", false
}
