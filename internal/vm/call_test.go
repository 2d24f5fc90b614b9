package vm

import (
	"testing"

	"mtots/internal/bytecode"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// optSpec is a tiny builder-input pair for buildSig's optional parameters.
type optSpec struct {
	name         string
	defaultConst int
}

// buildSig assembles a minimal *bytecode.Code carrying just enough of
// ParameterInfo/ArgMap/Locals/Constants for bindArgs (§4.5) to run against
// it, mirroring the layout internal/scope's real code builder produces:
// locals in Required, then Optional, then Variadic, then Kwargs order.
func buildSig(symtab *symbol.Registry, required []string, optional []optSpec, variadic, kwargs string, consts []mvalue.Value) *bytecode.Code {
	var locals []symbol.Symbol
	var reqSyms []symbol.Symbol
	var slots []int
	for _, n := range required {
		s := symtab.Intern(n)
		reqSyms = append(reqSyms, s)
		slots = append(slots, len(locals))
		locals = append(locals, s)
	}
	var optParams []bytecode.OptionalParam
	for _, o := range optional {
		s := symtab.Intern(o.name)
		optParams = append(optParams, bytecode.OptionalParam{Name: s, DefaultConst: o.defaultConst})
		slots = append(slots, len(locals))
		locals = append(locals, s)
	}
	variadicSlot, kwargsSlot := -1, -1
	var variadicSym, kwargsSym *symbol.Symbol
	if variadic != "" {
		s := symtab.Intern(variadic)
		variadicSym = &s
		variadicSlot = len(locals)
		locals = append(locals, s)
	}
	if kwargs != "" {
		s := symtab.Intern(kwargs)
		kwargsSym = &s
		kwargsSlot = len(locals)
		locals = append(locals, s)
	}
	return &bytecode.Code{
		Kind:      bytecode.KindFunction,
		ShortName: "f",
		Locals:    locals,
		Constants: consts,
		Params: bytecode.ParameterInfo{
			Required: reqSyms,
			Optional: optParams,
			Variadic: variadicSym,
			Kwargs:   kwargsSym,
		},
		Args: bytecode.ArgMap{PositionalSlots: slots, VariadicSlot: variadicSlot, KwargsSlot: kwargsSlot},
		Lines: oneLine(),
	}
}

func kwargsMap(t *testing.T, pairs ...mvalue.Value) *mvalue.Map {
	t.Helper()
	var keys, vals []mvalue.Value
	for i := 0; i < len(pairs); i += 2 {
		keys = append(keys, pairs[i])
		vals = append(vals, pairs[i+1])
	}
	m, err := mvalue.NewMap(mvalue.DefaultEqHasher{}, keys, vals)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestBindArgsRequiredOnly(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a", "b"}, nil, "", "", nil)
	locals := make([]mvalue.Value, len(code.Locals))
	if err := vm.bindArgs(code, locals, []mvalue.Value{int64(1), int64(2)}, nil); err != nil {
		t.Fatal(err)
	}
	if locals[0].(int64) != 1 || locals[1].(int64) != 2 {
		t.Fatalf("got %v", locals)
	}
}

func TestBindArgsTooFewRaisesArityError(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a", "b"}, nil, "", "", nil)
	locals := make([]mvalue.Value, len(code.Locals))
	err := vm.bindArgs(code, locals, []mvalue.Value{int64(1)}, nil)
	exc, ok := asException(err)
	if !ok || exc.Kind != g.Exceptions.TypeError {
		t.Fatalf("got %v, want a TypeError", err)
	}
}

func TestBindArgsOptionalDefault(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a"}, []optSpec{{"b", 0}}, "", "", []mvalue.Value{int64(99)})
	locals := make([]mvalue.Value, len(code.Locals))
	if err := vm.bindArgs(code, locals, []mvalue.Value{int64(1)}, nil); err != nil {
		t.Fatal(err)
	}
	if locals[1].(int64) != 99 {
		t.Fatalf("got %v, want default 99", locals[1])
	}
	locals2 := make([]mvalue.Value, len(code.Locals))
	if err := vm.bindArgs(code, locals2, []mvalue.Value{int64(1), int64(2)}, nil); err != nil {
		t.Fatal(err)
	}
	if locals2[1].(int64) != 2 {
		t.Fatalf("got %v, want explicit 2", locals2[1])
	}
}

func TestBindArgsVariadicOverflow(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a"}, nil, "rest", "", nil)
	locals := make([]mvalue.Value, len(code.Locals))
	if err := vm.bindArgs(code, locals, []mvalue.Value{int64(1), int64(2), int64(3), int64(4)}, nil); err != nil {
		t.Fatal(err)
	}
	if locals[0].(int64) != 1 {
		t.Fatalf("got %v", locals[0])
	}
	rest, ok := locals[1].(*mvalue.List)
	if !ok || len(rest.Items) != 3 {
		t.Fatalf("got %v", locals[1])
	}
	if rest.Items[0].(int64) != 2 || rest.Items[2].(int64) != 4 {
		t.Fatalf("got %v", rest.Items)
	}
}

func TestBindArgsKwargPreferredOverPositionalAndLeftoverCollected(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a", "b"}, nil, "", "extra", nil)
	kw := kwargsMap(t, g.Symtab.Intern("b"), int64(20), g.Symtab.Intern("c"), int64(30))
	locals := make([]mvalue.Value, len(code.Locals))
	if err := vm.bindArgs(code, locals, []mvalue.Value{int64(10)}, kw); err != nil {
		t.Fatal(err)
	}
	if locals[0].(int64) != 10 {
		t.Fatalf("a: got %v", locals[0])
	}
	if locals[1].(int64) != 20 {
		t.Fatalf("b: got %v, want 20 from kwargs (must win over positional)", locals[1])
	}
	extra, ok := locals[2].(*mvalue.Map)
	if !ok {
		t.Fatalf("extra slot: got %T", locals[2])
	}
	if extra.Len() != 1 {
		t.Fatalf("extra: got %d entries, want exactly {c: 30}", extra.Len())
	}
	v, found, _ := extra.Get(g.Symtab.Intern("c"))
	if !found || v.(int64) != 30 {
		t.Fatalf("extra[c]: got %v, %v", v, found)
	}
}

func TestBindArgsUnexpectedKwargWithNoKwargsParamRaises(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a"}, nil, "", "", nil)
	kw := kwargsMap(t, g.Symtab.Intern("z"), int64(1))
	locals := make([]mvalue.Value, len(code.Locals))
	err := vm.bindArgs(code, locals, []mvalue.Value{int64(5)}, kw)
	if err == nil {
		t.Fatal("expected an unexpected-keyword-arguments error")
	}
	exc, ok := asException(err)
	if !ok || exc.Kind != g.Exceptions.TypeError {
		t.Fatalf("got %v, want a TypeError", err)
	}
}

func TestBindArgsEmptyKwargsDictWhenEveryKwargIsConsumed(t *testing.T) {
	vm, g := newTestVM(t)
	code := buildSig(g.Symtab, []string{"a"}, nil, "", "extra", nil)
	locals := make([]mvalue.Value, len(code.Locals))
	kw := kwargsMap(t, g.Symtab.Intern("a"), int64(1))
	if err := vm.bindArgs(code, locals, nil, kw); err != nil {
		t.Fatal(err)
	}
	extra, ok := locals[1].(*mvalue.Map)
	if !ok || extra.Len() != 0 {
		t.Fatalf("got %v", locals[1])
	}
}

func TestInstantiateWithoutInitBindsFieldsPositionally(t *testing.T) {
	vm, g := newTestVM(t)
	nameSym := g.Symtab.Intern("name")
	cls := mvalue.NewClass(mvalue.KindUserDefinedClass, "test.Greeter", "Greeter", "",
		[]mvalue.FieldInfo{{Name: nameSym}}, nil, nil, nil)
	v, err := vm.instantiate(cls, []mvalue.Value{"Bob"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	obj, ok := v.(*mvalue.UserObject)
	if !ok {
		t.Fatalf("got %T", v)
	}
	if obj.Fields[nameSym].(string) != "Bob" {
		t.Fatalf("got %v", obj.Fields[nameSym])
	}
}

func TestInstantiateMissingRequiredFieldRaises(t *testing.T) {
	vm, g := newTestVM(t)
	nameSym := g.Symtab.Intern("name")
	cls := mvalue.NewClass(mvalue.KindUserDefinedClass, "test.Greeter", "Greeter", "",
		[]mvalue.FieldInfo{{Name: nameSym}}, nil, nil, nil)
	_, err := vm.instantiate(cls, nil, nil)
	if err == nil {
		t.Fatal("expected a missing-field error")
	}
}
