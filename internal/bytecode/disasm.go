package bytecode

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Disassemble writes a human-readable listing of c (and, recursively,
// every nested child code object produced by MakeFunction/MakeClass/
// MakeExceptionKind) to w. Offsets are padded to a width that comfortably
// covers instruction counts into the low thousands; go-humanize renders
// the header's instruction count with thousands separators so a large
// generated module's disassembly stays skimmable.
func Disassemble(w io.Writer, c *Code) {
	disassemble(w, c, 0)
}

// DisassembleStdout writes the listing to stdout: it colors the header
// line when stdout is a real terminal and leaves it plain when piped.
func DisassembleStdout(c *Code) {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	disassembleColor(os.Stdout, c, 0, color)
}

func disassemble(w io.Writer, c *Code, depth int) {
	disassembleColor(w, c, depth, false)
}

func disassembleColor(w io.Writer, c *Code, depth int, color bool) {
	indent := strings.Repeat("  ", depth)
	header := fmt.Sprintf("%s%s %s (line %d, %s instructions)", indent, c.Kind, codeLabel(c), c.StartLine, humanize.Comma(int64(len(c.Instructions))))
	if color {
		header = "\x1b[1m" + header + "\x1b[0m"
	}
	fmt.Fprintln(w, header)
	for pc, instr := range c.Instructions {
		fmt.Fprintf(w, "%s%6d  %-24s%s\n", indent, pc, instr.Op.String(), formatArgs(c, instr))
	}
	for _, child := range c.ChildCodes {
		disassembleColor(w, child, depth+1, color)
	}
}

func codeLabel(c *Code) string {
	if c.FullName != "" {
		return c.FullName
	}
	if c.ShortName != "" {
		return c.ShortName
	}
	return "<anonymous>"
}

func formatArgs(c *Code, instr Instruction) string {
	types := ArgTypes(instr.Op)
	if len(types) == 0 {
		return ""
	}
	var parts []string
	for i, t := range types {
		arg := instr.Args[i]
		switch t {
		case ArgConstIndex:
			if int(arg) < len(c.Constants) {
				parts = append(parts, fmt.Sprintf("const[%d]=%v", arg, c.Constants[arg]))
			} else {
				parts = append(parts, fmt.Sprintf("const[%d]", arg))
			}
		case ArgNameIndex:
			if int(arg) < len(c.Names) {
				parts = append(parts, fmt.Sprintf("name[%d]=%s", arg, c.Names[arg].String()))
			} else {
				parts = append(parts, fmt.Sprintf("name[%d]", arg))
			}
		case ArgLocalSlot:
			if int(arg) < len(c.Locals) {
				parts = append(parts, fmt.Sprintf("local[%d]=%s", arg, c.Locals[arg].String()))
			} else {
				parts = append(parts, fmt.Sprintf("local[%d]", arg))
			}
		case ArgCellSlot:
			parts = append(parts, fmt.Sprintf("cell[%d]", arg))
		case ArgChildCodeIndex:
			if int(arg) < len(c.ChildCodes) {
				parts = append(parts, fmt.Sprintf("code[%d]=%s", arg, codeLabel(c.ChildCodes[arg])))
			} else {
				parts = append(parts, fmt.Sprintf("code[%d]", arg))
			}
		case ArgJumpTarget:
			parts = append(parts, fmt.Sprintf("-> %d", arg))
		case ArgCount, ArgRaw:
			parts = append(parts, fmt.Sprintf("%d", arg))
		case ArgLine:
			parts = append(parts, fmt.Sprintf("line=%d", arg))
		}
	}
	return strings.Join(parts, " ")
}
