// Package vm implements the stack-based step loop (§4.4): Frame
// activation records, the opcode dispatch switch, argument binding
// (§4.5), generators (§4.6) and the exception raise/unwind machinery that
// backs `try`/`catch`/`finally`. It is the top of the dependency stack —
// everything below it (bytecode, mvalue, symbol, module, globals) is
// written so this package can import all of them without creating a
// cycle; module.Runner is how the dependency the other direction (module
// execution needing a VM) is satisfied without module importing vm.
package vm

import (
	"fmt"

	"mtots/internal/bytecode"
	"mtots/internal/globals"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// VM is a single-threaded interpreter instance bound to one Globals.
// Per §5, multiple VMs may run concurrently in separate goroutines but
// share no mutable state beyond whatever a caller deliberately hands
// them (e.g. two VMs both passed the same Globals).
type VM struct {
	g         *globals.Globals
	callDepth int

	// stepping is set by the breakpoint hook's `s` command (§4.4): while
	// true, every instruction boundary re-invokes the hook instead of
	// only OpBreakpoint sites, and is cleared the moment the hook
	// answers with `c` (continue).
	stepping bool
}

// maxCallDepth is the runaway-recursion guard, grounded on the dead
// EnhancedVM's own instrCount/maxFrames circuit breakers
// (_examples/sentra-language-sentra/internal/vm/vm.go) — adapted from an
// instruction counter to a call-depth counter, which is what actually
// bounds a stack-overflowing recursive script rather than a
// long-running-but-shallow loop.
const maxCallDepth = 4096

func New(g *globals.Globals) *VM { return &VM{g: g} }

// Call implements globals.Caller so native functions registered in
// internal/globals (map/filter/reduce, anything taking a callback)
// can invoke back into user code without that package importing vm.
func (vm *VM) Call(callee mvalue.Value, args []mvalue.Value) (mvalue.Value, error) {
	return vm.callValue(callee, args, nil)
}

// RunModule implements module.Runner: execute code's body to completion
// in a fresh top-level Frame and return its finished owned-cell array.
// Per §4.7, a module's freevars (if any — builtins referenced free at
// top level) are resolved against Globals.Builtins plus the special
// `__name`/`__file` bindings rather than against any enclosing closure,
// since a module has no lexical parent.
func (vm *VM) RunModule(code *bytecode.Code) ([]*mvalue.Cell, error) {
	freevarCells := make([]*mvalue.Cell, len(code.Freevars))
	for i, name := range code.Freevars {
		switch name.ID() {
		case vm.g.Symtab.Known(symbol.KnownName).ID():
			freevarCells[i] = mvalue.NewCell(code.ModuleName)
		case vm.g.Symtab.Known(symbol.KnownFile).ID():
			freevarCells[i] = mvalue.NewCell(code.ModuleName)
		default:
			v, ok := vm.g.Builtins[name]
			if !ok {
				return nil, mvalue.NewException(vm.g.Exceptions.NameError, []mvalue.Value{name})
			}
			freevarCells[i] = mvalue.NewCell(v)
		}
	}
	frame := newFrame(code, freevarCells)
	_, err := vm.runFrame(frame)
	if err != nil {
		return nil, err
	}
	return frame.cellvars[len(code.Freevars):], nil
}

// asException recovers the *mvalue.Exception carried by err, which is
// every error a VM-level operation ever returns: mvalue.Exception
// implements Go's error interface directly (mvalue/exception.go), so
// there is exactly one representation for "something was raised" from
// the bottom of the call stack (a failed HashMap probe) to the top
// (an uncaught `raise` statement).
func asException(err error) (*mvalue.Exception, bool) {
	exc, ok := err.(*mvalue.Exception)
	return exc, ok
}

func (vm *VM) typeError(msg string) error {
	return mvalue.NewException(vm.g.Exceptions.TypeError, []mvalue.Value{msg})
}

func (vm *VM) expectedType(expected, got mvalue.Value) error {
	return mvalue.NewException(vm.g.Exceptions.ExpectedType, []mvalue.Value{expected, mvalue.TypeName(got)})
}

func (vm *VM) operandTypeError(op string, a, b mvalue.Value) error {
	return mvalue.NewException(vm.g.Exceptions.OperandType, []mvalue.Value{op, fmt.Sprintf("%s, %s", mvalue.TypeName(a), mvalue.TypeName(b))})
}

func (vm *VM) nameError(name symbol.Symbol) error {
	return mvalue.NewException(vm.g.Exceptions.NameError, []mvalue.Value{name})
}

// frameResult is what runFrame returns on normal completion: the value
// an OpReturn (or a generator's final OpReturn) produced.
type frameResult struct {
	value mvalue.Value
}

// runFrame drives frame's step loop to completion (a Return) or to the
// first unhandled raise, which it reports as an error rather than a
// frameResult. Handled raises (frame.handlers non-empty at the point of
// failure) are resolved internally and never escape this function.
func (vm *VM) runFrame(frame *Frame) (mvalue.Value, error) {
	for {
		v, err := vm.stepUntilReturnOrRaise(frame)
		if err == nil {
			return v, nil
		}
		exc, ok := asException(err)
		if !ok {
			return nil, err
		}
		if len(frame.handlers) == 0 {
			return nil, err
		}
		h := frame.handlers[len(frame.handlers)-1]
		frame.handlers = frame.handlers[:len(frame.handlers)-1]
		frame.stack = frame.stack[:h.stackDepth]
		frame.curException = exc
		frame.ip = h.target
		_ = exc
	}
}

// stepUntilReturnOrRaise runs instructions until OpReturn (returns its
// value, nil) or an opcode raises (returns nil, the exception as error).
// It does NOT itself consult frame.handlers — that happens one level up
// in runFrame, so a single unwind path serves both opcodes that raise
// directly (OpRaise) and Go errors bubbling up from a nested callValue.
func (vm *VM) stepUntilReturnOrRaise(frame *Frame) (mvalue.Value, error) {
	for {
		if vm.stepping {
			if err := vm.hitBreakpoint(frame); err != nil {
				return nil, err
			}
		}
		instr := frame.code.Instructions[frame.ip]
		frame.ip++
		ret, done, err := vm.step(frame, instr)
		if err != nil {
			return nil, err
		}
		if done {
			return ret, nil
		}
	}
}

// step executes one instruction. done is true only for OpReturn, the
// opcode that ends the step loop; OpYield hands its value to the
// generator's consumer and continues once resumed.
func (vm *VM) step(frame *Frame, instr bytecode.Instruction) (ret mvalue.Value, done bool, err error) {
	switch instr.Op {

	case bytecode.OpPop:
		frame.pop()

	case bytecode.OpRotTwo:
		n := len(frame.stack)
		frame.stack[n-1], frame.stack[n-2] = frame.stack[n-2], frame.stack[n-1]

	case bytecode.OpPullTos2:
		pullToTop(frame.stack, 2)

	case bytecode.OpPullTos3:
		pullToTop(frame.stack, 3)

	case bytecode.OpDupTop:
		frame.push(frame.peek(0))

	case bytecode.OpUnpack:
		n := int(instr.Args[0])
		items, uerr := vm.unpackValue(frame.pop(), n)
		if uerr != nil {
			return nil, false, uerr
		}
		for i := n - 1; i >= 0; i-- {
			frame.push(items[i])
		}

	case bytecode.OpLoadConst:
		frame.push(frame.code.Constants[instr.Args[0]])

	case bytecode.OpMakeMutableString:
		s := frame.pop().(string)
		frame.push(&mvalue.MutableString{Value: s})

	case bytecode.OpLoadLocal:
		slot := int(instr.Args[0])
		v := frame.locals[slot]
		if mvalue.IsUninitialized(v) {
			return nil, false, vm.nameError(frame.code.Locals[slot])
		}
		if _, unbound := v.(bytecode.Unbound); unbound {
			return nil, false, vm.nameError(frame.code.Locals[slot])
		}
		frame.push(v)

	case bytecode.OpStoreLocal:
		frame.locals[instr.Args[0]] = frame.pop()

	case bytecode.OpLoadDeref:
		slot := int(instr.Args[0])
		v := frame.cellvars[slot].Load()
		if mvalue.IsUninitialized(v) {
			return nil, false, vm.nameError(cellSlotName(frame.code, slot))
		}
		if _, unbound := v.(bytecode.Unbound); unbound {
			return nil, false, vm.nameError(cellSlotName(frame.code, slot))
		}
		frame.push(v)

	case bytecode.OpStoreDeref:
		frame.cellvars[instr.Args[0]].Store(frame.pop())

	case bytecode.OpLoadCell:
		frame.push(frame.cellvars[instr.Args[0]])

	case bytecode.OpMakeList:
		n := int(instr.Args[0])
		frame.push(mvalue.NewList(frame.popN(n)))

	case bytecode.OpMakeMutableList:
		n := int(instr.Args[0])
		frame.push(mvalue.NewMutableList(frame.popN(n)))

	case bytecode.OpMakeTable:
		n := int(instr.Args[0])
		pairs := frame.popN(2 * n)
		keys := make([]symbol.Symbol, n)
		vals := make([]mvalue.Value, n)
		for i := 0; i < n; i++ {
			sym, ok := pairs[2*i].(symbol.Symbol)
			if !ok {
				return nil, false, vm.typeError("record literal keys must be symbols")
			}
			keys[i] = sym
			vals[i] = pairs[2*i+1]
		}
		frame.push(mvalue.NewTable(keys, vals))

	case bytecode.OpMakeMap:
		n := int(instr.Args[0])
		pairs := frame.popN(2 * n)
		keys, vals := splitPairs(pairs)
		m, merr := mvalue.NewMap(vm.eqHasher(), keys, vals)
		if merr != nil {
			return nil, false, vm.unhashableErr(merr)
		}
		frame.push(m)

	case bytecode.OpMakeMutableMap:
		n := int(instr.Args[0])
		pairs := frame.popN(2 * n)
		keys, vals := splitPairs(pairs)
		m, merr := mvalue.NewMutableMap(vm.eqHasher(), keys, vals)
		if merr != nil {
			return nil, false, vm.unhashableErr(merr)
		}
		frame.push(m)

	case bytecode.OpLoadAttribute:
		name := frame.code.Names[instr.Args[0]]
		v, lerr := vm.loadAttribute(frame.pop(), name)
		if lerr != nil {
			return nil, false, lerr
		}
		frame.push(v)

	case bytecode.OpStoreAttribute:
		name := frame.code.Names[instr.Args[0]]
		value := frame.pop()
		object := frame.pop()
		if serr := vm.storeAttribute(object, name, value); serr != nil {
			return nil, false, serr
		}

	case bytecode.OpLoadStaticAttribute:
		name := frame.code.Names[instr.Args[0]]
		v, lerr := vm.loadStaticAttribute(frame.pop(), name)
		if lerr != nil {
			return nil, false, lerr
		}
		frame.push(v)

	case bytecode.OpLoadMethod:
		name := frame.code.Names[instr.Args[0]]
		v, lerr := vm.loadMethod(frame.pop(), name)
		if lerr != nil {
			return nil, false, lerr
		}
		frame.push(v)

	case bytecode.OpLoadSubscript:
		index := frame.pop()
		object := frame.pop()
		v, serr := vm.loadSubscript(object, index)
		if serr != nil {
			return nil, false, serr
		}
		frame.push(v)

	case bytecode.OpStoreSubscript:
		value := frame.pop()
		index := frame.pop()
		object := frame.pop()
		if serr := vm.storeSubscript(object, index, value); serr != nil {
			return nil, false, serr
		}

	case bytecode.OpSlice:
		hi := frame.pop()
		lo := frame.pop()
		object := frame.pop()
		v, serr := vm.slice(object, lo, hi)
		if serr != nil {
			return nil, false, serr
		}
		frame.push(v)

	case bytecode.OpCallFunction:
		argc := int(instr.Args[1])
		args := frame.popN(argc)
		callee := frame.pop()
		vm.g.PushTrace(frame.code.ModuleName, int(instr.Args[0]))
		v, cerr := vm.callValue(callee, args, nil)
		vm.g.PopTrace()
		if cerr != nil {
			return nil, false, cerr
		}
		frame.push(v)

	case bytecode.OpCallFunctionGeneric:
		callee := frame.pop()
		kwargsVal := frame.pop()
		argsVal := frame.pop()
		argsList, ok := argsVal.(*mvalue.List)
		if !ok {
			return nil, false, vm.typeError("call argument expansion requires a List")
		}
		kwargsMap, ok := kwargsVal.(*mvalue.Map)
		if !ok {
			return nil, false, vm.typeError("call keyword-argument expansion requires a Map")
		}
		vm.g.PushTrace(frame.code.ModuleName, int(instr.Args[0]))
		v, cerr := vm.callValue(callee, append([]mvalue.Value(nil), argsList.Items...), kwargsMap)
		vm.g.PopTrace()
		if cerr != nil {
			return nil, false, cerr
		}
		frame.push(v)

	case bytecode.OpExtendList:
		more := frame.pop()
		baseVal := frame.pop()
		base, ok := baseVal.(*mvalue.List)
		if !ok {
			return nil, false, vm.typeError("ExtendList requires a List accumulator")
		}
		items, uerr := vm.iterateAll(more)
		if uerr != nil {
			return nil, false, uerr
		}
		frame.push(mvalue.NewList(append(append([]mvalue.Value(nil), base.Items...), items...)))

	case bytecode.OpExtendTable:
		more := frame.pop()
		baseVal := frame.pop()
		base, ok := baseVal.(*mvalue.Map)
		if !ok {
			return nil, false, vm.typeError("ExtendTable requires a Map accumulator")
		}
		moreMap, ok := more.(*mvalue.Map)
		if !ok {
			return nil, false, vm.typeError("ExtendTable requires a Map of extra keyword args")
		}
		keys := make([]mvalue.Value, 0, base.Len()+moreMap.Len())
		vals := make([]mvalue.Value, 0, base.Len()+moreMap.Len())
		for _, e := range base.Entries() {
			keys = append(keys, e.Key)
			vals = append(vals, e.Value)
		}
		for _, e := range moreMap.Entries() {
			keys = append(keys, e.Key)
			vals = append(vals, e.Value)
		}
		m, merr := mvalue.NewMap(vm.eqHasher(), keys, vals)
		if merr != nil {
			return nil, false, vm.unhashableErr(merr)
		}
		frame.push(m)

	case bytecode.OpMakeFunction:
		child := frame.code.ChildCodes[instr.Args[0]]
		cellsVal := frame.pop().(*mvalue.List)
		cells := make([]*mvalue.Cell, len(cellsVal.Items))
		for i, v := range cellsVal.Items {
			cells[i] = v.(*mvalue.Cell)
		}
		frame.push(&Function{Code: child, Cells: cells})

	case bytecode.OpMakeClass:
		name := frame.code.Names[instr.Args[0]]
		isTrait := instr.Args[1] != 0
		staticTbl := frame.pop().(*mvalue.Table)
		instanceTbl := frame.pop().(*mvalue.Table)
		fieldsList := frame.pop().(*mvalue.List)
		basesList := frame.pop().(*mvalue.List)
		cls, cerr := vm.makeClass(name, isTrait, basesList, fieldsList, instanceTbl, staticTbl, frame.code.ModuleName)
		if cerr != nil {
			return nil, false, cerr
		}
		frame.push(cls)

	case bytecode.OpMakeExceptionKind:
		name := frame.code.Names[instr.Args[0]]
		parentVal := frame.pop()
		fieldsList := frame.pop().(*mvalue.List)
		template := frame.pop().(string)
		var parent *mvalue.ExceptionKind
		if !mvalue.IsNil(parentVal) {
			p, ok := parentVal.(*mvalue.ExceptionKind)
			if !ok {
				return nil, false, vm.expectedType("ExceptionKind", parentVal)
			}
			parent = p
		}
		fields := make([]symbol.Symbol, len(fieldsList.Items))
		for i, f := range fieldsList.Items {
			fields[i] = f.(symbol.Symbol)
		}
		frame.push(vm.g.Exceptions.Register(name.String(), parent, template, fields))

	case bytecode.OpJump:
		frame.ip = int(instr.Args[0])

	case bytecode.OpPopJumpIfTrue:
		if mvalue.Truthy(frame.pop()) {
			frame.ip = int(instr.Args[0])
		}

	case bytecode.OpPopJumpIfFalse:
		if !mvalue.Truthy(frame.pop()) {
			frame.ip = int(instr.Args[0])
		}

	case bytecode.OpJumpIfTrueOrPop:
		if mvalue.Truthy(frame.peek(0)) {
			frame.ip = int(instr.Args[0])
		} else {
			frame.pop()
		}

	case bytecode.OpJumpIfFalseOrPop:
		if !mvalue.Truthy(frame.peek(0)) {
			frame.ip = int(instr.Args[0])
		} else {
			frame.pop()
		}

	case bytecode.OpGetIter:
		it, ierr := vm.newIterator(frame.pop())
		if ierr != nil {
			return nil, false, ierr
		}
		frame.push(it)

	case bytecode.OpForIter:
		it := frame.peek(0).(*nativeIterator)
		v, more, ierr := it.next()
		if ierr != nil {
			return nil, false, ierr
		}
		if !more {
			frame.pop()
			frame.ip = int(instr.Args[0])
		} else {
			frame.push(v)
		}

	case bytecode.OpReturn:
		return frame.pop(), true, nil

	case bytecode.OpYield:
		v := frame.pop()
		if frame.generator == nil {
			return nil, false, mvalue.NewException(vm.g.Exceptions.YieldOutsideGenerator, nil)
		}
		sent, yerr := frame.generator.yieldValue(v)
		if yerr != nil {
			return nil, false, yerr
		}
		frame.push(sent)

	case bytecode.OpBreakpoint:
		if verr := vm.hitBreakpoint(frame); verr != nil {
			return nil, false, verr
		}

	case bytecode.OpBinaryAdd, bytecode.OpBinarySub, bytecode.OpBinaryMul, bytecode.OpBinaryDiv,
		bytecode.OpBinaryTruncDiv, bytecode.OpBinaryRem, bytecode.OpBinaryPower:
		b := frame.pop()
		a := frame.pop()
		v, berr := vm.binaryArith(instr.Op, a, b)
		if berr != nil {
			return nil, false, berr
		}
		frame.push(v)

	case bytecode.OpBinaryLt:
		b := frame.pop()
		a := frame.pop()
		v, berr := vm.binaryLt(a, b)
		if berr != nil {
			return nil, false, berr
		}
		frame.push(v)

	case bytecode.OpBinaryEq:
		b := frame.pop()
		a := frame.pop()
		eq, eerr := vm.eqHasher().Eq(a, b)
		if eerr != nil {
			return nil, false, vm.unhashableErr(eerr)
		}
		frame.push(eq)

	case bytecode.OpBinaryIs:
		b := frame.pop()
		a := frame.pop()
		frame.push(mvalue.Is(a, b))

	case bytecode.OpUnaryNot:
		frame.push(!mvalue.Truthy(frame.pop()))

	case bytecode.OpUnaryNeg:
		v, nerr := vm.unaryNeg(frame.pop())
		if nerr != nil {
			return nil, false, nerr
		}
		frame.push(v)

	case bytecode.OpUnaryPos:
		v := frame.pop()
		switch v.(type) {
		case int64, float64:
			frame.push(v)
		default:
			return nil, false, vm.typeError(fmt.Sprintf("unary + not supported on %s", mvalue.TypeName(v)))
		}

	case bytecode.OpImport:
		dotted := frame.code.Names[instr.Args[1]]
		mod, ierr := vm.g.Modules.Load(dotted.String())
		if ierr != nil {
			if exc, ok := asException(ierr); ok {
				return nil, false, exc
			}
			return nil, false, mvalue.NewException(vm.g.Exceptions.NameError, []mvalue.Value{dotted})
		}
		frame.push(mod)

	case bytecode.OpRaise:
		v := frame.pop()
		exc, ok := v.(*mvalue.Exception)
		if !ok {
			return nil, false, vm.typeError("raise requires an Exception value")
		}
		return nil, false, exc

	case bytecode.OpPushHandler:
		frame.handlers = append(frame.handlers, handler{target: int(instr.Args[0]), stackDepth: len(frame.stack)})

	case bytecode.OpPopHandler:
		frame.handlers = frame.handlers[:len(frame.handlers)-1]

	case bytecode.OpCurrentException:
		frame.push(frame.curException)

	case bytecode.OpReraise:
		if frame.curException == nil {
			return nil, false, vm.typeError("reraise with no exception in flight")
		}
		return nil, false, frame.curException

	case bytecode.OpMatchException:
		kindVal := frame.pop()
		excVal := frame.pop()
		exc, ok := excVal.(*mvalue.Exception)
		if !ok {
			return nil, false, vm.expectedType("Exception", excVal)
		}
		kind, ok := kindVal.(*mvalue.ExceptionKind)
		if !ok {
			return nil, false, vm.expectedType("ExceptionKind", kindVal)
		}
		frame.push(exc.Kind.Matches(kind))

	default:
		return nil, false, vm.typeError(fmt.Sprintf("unimplemented opcode %s", instr.Op))
	}
	return nil, false, nil
}

// pullToTop rotates the top `depth` stack elements so the one `depth`
// positions below the top becomes the new top, shifting everything above
// it down by one slot — a Forth-style "roll" with no real compiler call
// site today (neither OpPullTos2 nor OpPullTos3 is emitted by
// internal/compiler, confirmed by grep), kept implemented for a complete
// dispatch table and exercised directly on a plain slice by
// TestPullToTop.
func pullToTop(stack []mvalue.Value, depth int) {
	n := len(stack)
	v := stack[n-depth]
	copy(stack[n-depth:n-1], stack[n-depth+1:n])
	stack[n-1] = v
}

func splitPairs(pairs []mvalue.Value) (keys, vals []mvalue.Value) {
	n := len(pairs) / 2
	keys = make([]mvalue.Value, n)
	vals = make([]mvalue.Value, n)
	for i := 0; i < n; i++ {
		keys[i] = pairs[2*i]
		vals[i] = pairs[2*i+1]
	}
	return keys, vals
}

func cellSlotName(code *bytecode.Code, slot int) symbol.Symbol {
	if slot < len(code.Freevars) {
		return code.Freevars[slot]
	}
	return code.OwnedCells[slot-len(code.Freevars)]
}

func (vm *VM) unhashableErr(err error) error {
	if ue, ok := err.(*mvalue.UnhashableError); ok {
		return mvalue.NewException(vm.g.Exceptions.HashError, []mvalue.Value{mvalue.TypeName(ue.Value)})
	}
	return err
}
