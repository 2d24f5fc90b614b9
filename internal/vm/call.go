package vm

import (
	"mtots/internal/bytecode"
	"mtots/internal/globals"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// callValue implements every call-site shape the step loop can produce
// (plain CallFunction, CallFunctionGeneric, and the calls globals'
// higher-order builtins make through the Caller interface): it
// type-switches on the callee's concrete representation rather than
// requiring every callable to share one Go interface, since Class
// instantiation and ExceptionKind construction are call-shaped but do
// not run a Code object at all.
func (vm *VM) callValue(callee mvalue.Value, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
	vm.callDepth++
	defer func() { vm.callDepth-- }()
	if vm.callDepth > maxCallDepth {
		return nil, mvalue.NewException(vm.g.Exceptions.RuntimeError, []mvalue.Value{"maximum call depth exceeded"})
	}

	switch fn := callee.(type) {
	case *Function:
		return vm.callFunction(fn, args, kwargs)

	case *boundMethod:
		return vm.callValue(fn.Fn, prepend(fn.Self, args), kwargs)

	case *nativeBoundMethod:
		return fn.fn(args)

	case *globals.NativeFunction:
		return fn.Func(vm, args, kwargs)

	case *mvalue.Class:
		return vm.instantiate(fn, args, kwargs)

	case *mvalue.ExceptionKind:
		return mvalue.NewException(fn, args), nil

	default:
		return nil, vm.typeError(mvalue.TypeName(callee) + " is not callable")
	}
}

func prepend(self mvalue.Value, args []mvalue.Value) []mvalue.Value {
	out := make([]mvalue.Value, 0, len(args)+1)
	out = append(out, self)
	out = append(out, args...)
	return out
}

// callFunction runs an ordinary Function or, for a generator-marked
// Code object, binds arguments into a fresh suspended Frame and wraps
// it as a Generator without running any of the body (§4.6).
func (vm *VM) callFunction(fn *Function, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
	frame := newFrame(fn.Code, fn.Cells)
	if err := vm.bindArgs(fn.Code, frame.locals, args, kwargs); err != nil {
		return nil, err
	}
	if fn.Code.IsGenerator() {
		return newGenerator(vm, frame), nil
	}
	return vm.runFrame(frame)
}

// instantiate implements `new Class(...)`/bare `Class(...)` call syntax
// (VisitNew compiles identically to an ordinary call, so this is reached
// through the same CallFunction opcode): binds fields positionally via
// mvalue.NewInstance, then dispatches __init if the class defines one.
func (vm *VM) instantiate(cls *mvalue.Class, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
	if !cls.Instantiable() {
		return nil, vm.typeError("cannot instantiate " + cls.ShortName)
	}
	initSym := vm.g.Symtab.Known(symbol.KnownInit)
	if initFn, ok := cls.GetMethod(initSym); ok {
		obj := mvalue.NewInstance(cls, nil)
		if _, err := vm.callValue(initFn, prepend(obj, args), kwargs); err != nil {
			return nil, err
		}
		return obj, nil
	}
	fieldValues, err := vm.bindFields(cls, args, kwargs)
	if err != nil {
		return nil, err
	}
	return mvalue.NewInstance(cls, fieldValues), nil
}

// bindFields binds constructor arguments positionally-or-by-keyword
// against a class's field descriptor, the same algorithm bindArgs uses
// for a Code object's ParameterInfo, since a field list IS a parameter
// list as far as binding is concerned (§4.5 applies to both).
func (vm *VM) bindFields(cls *mvalue.Class, args []mvalue.Value, kwargs *mvalue.Map) ([]mvalue.Value, error) {
	out := make([]mvalue.Value, len(cls.Fields))
	remaining := map[string]mvalue.Value{}
	if kwargs != nil {
		for _, e := range kwargs.Entries() {
			if sym, ok := e.Key.(symbol.Symbol); ok {
				remaining[sym.String()] = e.Value
			}
		}
	}
	posIdx := 0
	for i, f := range cls.Fields {
		if v, ok := remaining[f.Name.String()]; ok {
			out[i] = v
			delete(remaining, f.Name.String())
			continue
		}
		if posIdx < len(args) {
			out[i] = args[posIdx]
			posIdx++
			continue
		}
		if f.HasDflt {
			out[i] = f.Default
			continue
		}
		return nil, mvalue.NewException(vm.g.Exceptions.TypeError, []mvalue.Value{"missing required field " + f.Name.String() + " for " + cls.ShortName})
	}
	if posIdx < len(args) || len(remaining) > 0 {
		return nil, mvalue.NewException(vm.g.Exceptions.TypeError, []mvalue.Value{"too many arguments constructing " + cls.ShortName})
	}
	return out, nil
}

// bindArgs implements §4.5's two-branch argument binding algorithm
// against a Code object's precomputed ParameterInfo/ArgMap. Branch one
// (no kwargs at the call site, and no keyword-dict parameter to soak up
// an empty one) is the fast path every non-kwargs call takes. Branch two
// walks required-then-optional parameters preferring a same-named kwarg
// over the next positional, exactly as the spec prescribes.
func (vm *VM) bindArgs(code *bytecode.Code, locals []mvalue.Value, args []mvalue.Value, kwargs *mvalue.Map) error {
	params := &code.Params
	argMap := code.Args
	slots := argMap.PositionalSlots
	nReq := len(params.Required)
	nOpt := len(params.Optional)

	noKwargsPath := (kwargs == nil || kwargs.Len() == 0) && params.Kwargs == nil
	if noKwargsPath {
		max := nReq + nOpt
		if len(args) < nReq || (params.Variadic == nil && len(args) > max) {
			return vm.arityError(code, len(args))
		}
		for i := 0; i < nReq; i++ {
			locals[slots[i]] = args[i]
		}
		for i := 0; i < nOpt; i++ {
			slot := slots[nReq+i]
			if nReq+i < len(args) {
				locals[slot] = args[nReq+i]
			} else {
				locals[slot] = code.Constants[params.Optional[i].DefaultConst]
			}
		}
		if params.Variadic != nil {
			var overflow []mvalue.Value
			if len(args) > max {
				overflow = append([]mvalue.Value(nil), args[max:]...)
			}
			locals[argMap.VariadicSlot] = mvalue.NewList(overflow)
		}
		return nil
	}

	remaining := map[string]mvalue.Value{}
	order := make([]symbol.Symbol, 0)
	if kwargs != nil {
		for _, e := range kwargs.Entries() {
			sym, ok := e.Key.(symbol.Symbol)
			if !ok {
				return vm.typeError("keyword argument names must be symbols")
			}
			remaining[sym.String()] = e.Value
			order = append(order, sym)
		}
	}
	posIdx := 0
	bindOne := func(name symbol.Symbol, slot int, hasDefault bool, def mvalue.Value) error {
		if v, ok := remaining[name.String()]; ok {
			delete(remaining, name.String())
			locals[slot] = v
			return nil
		}
		if posIdx < len(args) {
			locals[slot] = args[posIdx]
			posIdx++
			return nil
		}
		if hasDefault {
			locals[slot] = def
			return nil
		}
		return vm.arityError(code, len(args))
	}
	for i, name := range params.Required {
		if err := bindOne(name, slots[i], false, nil); err != nil {
			return err
		}
	}
	for i, opt := range params.Optional {
		if err := bindOne(opt.Name, slots[nReq+i], true, code.Constants[opt.DefaultConst]); err != nil {
			return err
		}
	}
	if posIdx < len(args) {
		if params.Variadic == nil {
			return vm.arityError(code, len(args))
		}
		locals[argMap.VariadicSlot] = mvalue.NewList(append([]mvalue.Value(nil), args[posIdx:]...))
	} else if params.Variadic != nil {
		locals[argMap.VariadicSlot] = mvalue.NewList(nil)
	}
	if len(remaining) > 0 {
		if params.Kwargs == nil {
			return vm.typeError("unexpected keyword arguments")
		}
		keys := make([]mvalue.Value, 0, len(remaining))
		vals := make([]mvalue.Value, 0, len(remaining))
		for _, sym := range order {
			if v, ok := remaining[sym.String()]; ok {
				keys = append(keys, sym)
				vals = append(vals, v)
			}
		}
		m, err := mvalue.NewMap(vm.eqHasher(), keys, vals)
		if err != nil {
			return vm.unhashableErr(err)
		}
		locals[argMap.KwargsSlot] = m
	} else if params.Kwargs != nil {
		m, _ := mvalue.NewMap(vm.eqHasher(), nil, nil)
		locals[argMap.KwargsSlot] = m
	}
	return nil
}

func (vm *VM) arityError(code *bytecode.Code, got int) error {
	min, max := code.Params.Arity()
	name := code.ShortName
	if name == "" {
		name = "<anonymous>"
	}
	return mvalue.NewException(vm.g.Exceptions.TypeError, []mvalue.Value{formatArity(name, min, max, got)})
}

func formatArity(name string, min, max, got int) string {
	if max < 0 {
		return name + "() takes at least " + itoa(min) + " argument(s), got " + itoa(got)
	}
	if min == max {
		return name + "() takes " + itoa(min) + " argument(s), got " + itoa(got)
	}
	return name + "() takes between " + itoa(min) + " and " + itoa(max) + " argument(s), got " + itoa(got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// unpackValue implements OpUnpack(n): materialize v's elements (any
// iterable, not just List — `let a, b = some_generator()` is legal) and
// return them in order; the OpUnpack handler pushes them in reverse, so
// the StoreLocal/StoreDeref instructions the compiler emits immediately
// afterward (left-to-right declaration order) pop item[0] first.
func (vm *VM) unpackValue(v mvalue.Value, n int) ([]mvalue.Value, error) {
	items, err := vm.iterateAll(v)
	if err != nil {
		return nil, err
	}
	if len(items) != n {
		return nil, mvalue.NewException(vm.g.Exceptions.UnpackError, []mvalue.Value{int64(n), int64(len(items))})
	}
	return items, nil
}

// iterateAll drains an iterable value into a slice, used by OpUnpack and
// OpExtendList/Table.
func (vm *VM) iterateAll(v mvalue.Value) ([]mvalue.Value, error) {
	it, err := vm.newIterator(v)
	if err != nil {
		return nil, err
	}
	var out []mvalue.Value
	for {
		item, more, err := it.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		out = append(out, item)
	}
}

// makeClass implements OpMakeClass. parser.ClassKind only distinguishes
// class-vs-trait (confirmed by grep over internal/parser/ast.go — there
// is no `case class` or `mutable class` syntax), so every non-trait
// ClassDisplay becomes a plain KindUserDefinedClass; case classes and
// mutable classes described in the data model have no surface syntax in
// this grammar and are reachable only as native classes (the exception
// hierarchy's own Exception type, built directly in Go).
func (vm *VM) makeClass(name symbol.Symbol, isTrait bool, bases *mvalue.List, fields *mvalue.List, instanceTbl, staticTbl *mvalue.Table, moduleName string) (mvalue.Value, error) {
	baseClasses := make([]*mvalue.Class, len(bases.Items))
	for i, b := range bases.Items {
		cls, ok := b.(*mvalue.Class)
		if !ok {
			return nil, vm.expectedType("Class", b)
		}
		baseClasses[i] = cls
	}
	fieldInfos := make([]mvalue.FieldInfo, len(fields.Items))
	for i, f := range fields.Items {
		sym, ok := f.(symbol.Symbol)
		if !ok {
			return nil, vm.expectedType("Symbol", f)
		}
		fieldInfos[i] = mvalue.FieldInfo{Name: sym}
	}
	instance := map[symbol.Symbol]mvalue.Value{}
	for _, k := range instanceTbl.Keys() {
		v, _ := instanceTbl.Get(k)
		instance[k] = v
	}
	static := map[symbol.Symbol]mvalue.Value{}
	for _, k := range staticTbl.Keys() {
		v, _ := staticTbl.Get(k)
		static[k] = v
	}
	kind := mvalue.KindUserDefinedClass
	if isTrait {
		kind = mvalue.KindTrait
	}
	fullName := moduleName + "." + name.String()
	return mvalue.NewClass(kind, fullName, name.String(), "", fieldInfos, instance, static, baseClasses), nil
}
