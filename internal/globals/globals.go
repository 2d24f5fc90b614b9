// Package globals owns the process-wide singleton a running interpreter
// needs that is not itself part of any one Frame: the interned-symbol
// table, the exception-kind taxonomy, the module cache, the builtin
// function table, the call-site trace stack used for tracebacks, and the
// program arguments (Args). One Globals exists per interpreter (§4.4);
// internal/vm holds a *Globals and never constructs its own.
//
// This package cannot import internal/vm — NativeFunc bodies that need
// to call back into user code (map, filter, reduce) take a Caller
// instead, which internal/vm.VM satisfies. That is
// the same "supply the capability as an interface, not an import" trick
// internal/module uses for module.Runner.
package globals

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"mtots/internal/module"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// Caller lets a native function invoke a Value as if it were a call
// expression in user code, without this package importing internal/vm.
type Caller interface {
	Call(callee mvalue.Value, args []mvalue.Value) (mvalue.Value, error)
}

// NativeFunc is the signature every builtin implements. kwargs is nil
// when the call site supplied none, matching CallFunction's shape (only
// CallFunctionGeneric call sites ever populate it).
type NativeFunc func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error)

var nativeFunctionClass = mvalue.NewClass(mvalue.KindNativeClass, "NativeFunction", "NativeFunction", "a built-in function", nil, nil, nil, nil)

// NativeFunction wraps a Go closure as a first-class callable Value.
type NativeFunction struct {
	Name string
	Func NativeFunc
}

func (f *NativeFunction) ClassOf() *mvalue.Class { return nativeFunctionClass }

// TraceEntry is one call site on the trace stack (§4.4): every opcode
// that can call user code pushes one of these before the call and pops
// it on return, successful or not, so an uncaught exception can print a
// full traceback rather than just its raise site.
type TraceEntry struct {
	Module string
	Line   int
}

// BreakpointContext is what a `breakpoint()` call (or, in single-step
// mode, every subsequent instruction) in user code exposes to the hook
// installed in Breakpoint — defined here (rather than in internal/vm,
// which implements it) so a hook can be written against this package
// alone instead of also needing internal/vm's full surface.
type BreakpointContext interface {
	ModuleName() string
	Line() int
	LocalNames() []string
	LocalValue(name string) (mvalue.Value, bool)
	Traceback() []TraceEntry
}

// BreakpointHook is invoked by OpBreakpoint (and, while stepping, by
// every instruction boundary) with the current frame's view. It returns
// whether the VM should keep single-stepping (the REPL's `s` command)
// or run free until the next breakpoint (`c`). A nil Breakpoint on
// Globals makes OpBreakpoint a no-op.
type BreakpointHook func(ctx BreakpointContext) (step bool, err error)

// Globals is the process-wide singleton (§4.4). ID is generated once by
// New, so embedders juggling multiple interpreter instances in one
// process have something stable to log; no builtin exposes it.
type Globals struct {
	ID      uuid.UUID
	Symtab  *symbol.Registry
	Exceptions *mvalue.ExceptionRegistry
	Builtins map[symbol.Symbol]mvalue.Value

	// Modules is set once by the embedder after both Globals and the VM
	// exist (module.NewLoader needs a Runner, which is vm.VM.RunModule,
	// which needs a *VM, which needs a *Globals) — the same
	// construction-order knot module.Runner exists to untie.
	Modules *module.Loader

	Args []string

	TraceStack []TraceEntry

	Breakpoint BreakpointHook
}

// New builds a Globals with the full builtin table registered but
// Modules left nil — the caller wires that in once its VM exists.
func New(args []string) *Globals {
	symtab := symbol.NewRegistry()
	g := &Globals{
		ID:         uuid.New(),
		Symtab:     symtab,
		Exceptions: mvalue.NewExceptionRegistry(symtab),
		Builtins:   map[symbol.Symbol]mvalue.Value{},
		Args:       args,
	}
	registerCore(g)
	registerTime(g)
	registerContainers(g)
	return g
}

func (g *Globals) register(name string, fn NativeFunc) {
	sym := g.Symtab.Intern(name)
	g.Builtins[sym] = &NativeFunction{Name: name, Func: fn}
}

// PushTrace records a call site, per §4.4's "every opcode that can call
// user code pushes a trace entry before the call and pops it after".
func (g *Globals) PushTrace(module string, line int) {
	g.TraceStack = append(g.TraceStack, TraceEntry{Module: module, Line: line})
}

func (g *Globals) PopTrace() {
	g.TraceStack = g.TraceStack[:len(g.TraceStack)-1]
}

// Traceback renders the current trace stack top-to-bottom, the form an
// uncaught exception's report prints under its message.
func (g *Globals) Traceback() string {
	out := ""
	for i := len(g.TraceStack) - 1; i >= 0; i-- {
		e := g.TraceStack[i]
		out += fmt.Sprintf("  at %s:%d\n", e.Module, e.Line)
	}
	return out
}

// BuiltinNames returns every registered builtin name, sorted with
// golang.org/x/exp/slices.Sort.
func (g *Globals) BuiltinNames() []string {
	names := make([]string, 0, len(g.Builtins))
	for sym := range g.Builtins {
		names = append(names, sym.String())
	}
	slices.Sort(names)
	return names
}
