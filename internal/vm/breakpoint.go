package vm

import (
	"mtots/internal/globals"
	"mtots/internal/mvalue"
)

// hitBreakpoint invokes Globals.Breakpoint, if one is installed, with a
// view onto frame's current state, and applies the `step` verdict to
// vm.stepping. A nil hook makes this — and therefore OpBreakpoint
// itself — a no-op.
func (vm *VM) hitBreakpoint(frame *Frame) error {
	if vm.g.Breakpoint == nil {
		return nil
	}
	step, err := vm.g.Breakpoint(vm.breakpointView(frame))
	if err != nil {
		return err
	}
	vm.stepping = step
	return nil
}

func (vm *VM) breakpointView(frame *Frame) globals.BreakpointContext {
	return &frameBreakpointView{vm: vm, frame: frame}
}

// frameBreakpointView adapts a live Frame to globals.BreakpointContext,
// letting a breakpoint hook inspect a suspended frame without
// importing internal/vm's full surface.
type frameBreakpointView struct {
	vm    *VM
	frame *Frame
}

func (v *frameBreakpointView) ModuleName() string { return v.frame.code.ModuleName }

func (v *frameBreakpointView) Line() int { return v.frame.currentLine() }

func (v *frameBreakpointView) LocalNames() []string {
	names := make([]string, len(v.frame.code.Locals))
	for i, s := range v.frame.code.Locals {
		names[i] = s.String()
	}
	return names
}

func (v *frameBreakpointView) LocalValue(name string) (mvalue.Value, bool) {
	for i, s := range v.frame.code.Locals {
		if s.String() == name {
			val := v.frame.locals[i]
			if mvalue.IsUninitialized(val) {
				return nil, false
			}
			return val, true
		}
	}
	for i, s := range v.frame.code.Freevars {
		if s.String() == name {
			return v.frame.cellvars[i].Load(), true
		}
	}
	return nil, false
}

func (v *frameBreakpointView) Traceback() []globals.TraceEntry {
	return v.vm.g.TraceStack
}
