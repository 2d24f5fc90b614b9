package vm

import (
	"mtots/internal/bytecode"
	"mtots/internal/mvalue"
)

// handler is one entry on a Frame's exception-handler stack, pushed by
// OpPushHandler and consulted by raise/unwind: target is the instruction
// offset execution resumes at (the compiler's `handler` label in
// VisitTry), and stackDepth is the operand-stack height to restore to
// before jumping there, discarding whatever the protected body had
// pushed past its entry point.
type handler struct {
	target     int
	stackDepth int
}

// Frame is the VM's per-call activation record (§3): an instruction
// pointer into a single Code object, its own operand stack, a locals
// array sized to Code.Locals, and a cellvars array sized to
// Code.NumCells() holding the captured freevars (copied in from the
// calling Function's bound cells) followed by freshly allocated owned
// cells — directly grounded on the original implementation's
// `struct Frame { i, stack, locals, cellvars }`
// (_examples/original_source/src/base/code/mod.rs).
type Frame struct {
	code  *bytecode.Code
	ip    int
	stack []mvalue.Value

	locals  []mvalue.Value
	cellvars []*mvalue.Cell

	handlers []handler
	// curException is the exception in flight at the current handler
	// entry point, observed by OpCurrentException and re-thrown by
	// OpReraise. It is only meaningful between a handler jump and the
	// catch body completing.
	curException *mvalue.Exception

	// generator is non-nil only when this Frame is the body of a
	// suspended Generator's coroutine; OpYield hands control back
	// through it instead of treating yield as a no-op or an error.
	generator *Generator
}

// newFrame allocates a Frame for code with freevarCells already bound
// (copied from the calling Function's closure) and fresh Uninitialized
// owned cells appended, per Frame::for_func in the original
// implementation.
func newFrame(code *bytecode.Code, freevarCells []*mvalue.Cell) *Frame {
	locals := make([]mvalue.Value, len(code.Locals))
	for i := range locals {
		locals[i] = mvalue.Uninitialized
	}
	cells := make([]*mvalue.Cell, 0, code.NumCells())
	cells = append(cells, freevarCells...)
	for i := len(cells); i < code.NumCells(); i++ {
		cells = append(cells, mvalue.NewCell(mvalue.Uninitialized))
	}
	return &Frame{
		code:     code,
		locals:   locals,
		cellvars: cells,
		stack:    make([]mvalue.Value, 0, 16),
	}
}

func (f *Frame) push(v mvalue.Value) { f.stack = append(f.stack, v) }

func (f *Frame) pop() mvalue.Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *Frame) peek(offsetFromTop int) mvalue.Value {
	return f.stack[len(f.stack)-1-offsetFromTop]
}

func (f *Frame) popN(n int) []mvalue.Value {
	out := make([]mvalue.Value, n)
	copy(out, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

// currentLine reports the source line in effect at the Frame's current
// instruction, for error messages and the breakpoint view's Line.
func (f *Frame) currentLine() int {
	off := f.ip - 1
	if off < 0 {
		off = 0
	}
	return f.code.Lines.Find(off)
}
