package vm

import (
	"testing"

	"mtots/internal/bytecode"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// TestVMEqHasherDispatchesCustomEq builds a class with a __eq method that
// compares self.id to the other operand's id, confirming vmEqHasher.Eq
// dispatches to it instead of falling back to StructuralEqual.
func TestVMEqHasherDispatchesCustomEq(t *testing.T) {
	vm, g := newTestVM(t)
	selfSym := g.Symtab.Intern("self")
	otherSym := g.Symtab.Intern("other")
	idSym := g.Symtab.Intern("id")
	eqSym := g.Symtab.Known(symbol.KnownEq)

	eqCode := &bytecode.Code{
		Kind:      bytecode.KindFunction,
		Locals:    []mvalue.Symbol{selfSym, otherSym},
		Names:     []mvalue.Symbol{idSym},
		Params:    bytecode.ParameterInfo{Required: []symbol.Symbol{selfSym, otherSym}},
		Args:      bytecode.ArgMap{PositionalSlots: []int{0, 1}, VariadicSlot: -1, KwargsSlot: -1},
		Constants: []interface{}{},
		Instructions: []bytecode.Instruction{
			{Op: bytecode.OpLoadLocal, Args: [2]int32{0, 0}},
			{Op: bytecode.OpLoadAttribute, Args: [2]int32{0, 0}},
			{Op: bytecode.OpLoadLocal, Args: [2]int32{1, 0}},
			{Op: bytecode.OpLoadAttribute, Args: [2]int32{0, 0}},
			{Op: bytecode.OpBinaryEq, Args: [2]int32{1, 0}},
			{Op: bytecode.OpReturn},
		},
		Lines: oneLine(),
	}
	eqFn := &Function{Code: eqCode}

	cls := mvalue.NewClass(mvalue.KindUserDefinedClass, "test.Tagged", "Tagged", "",
		[]mvalue.FieldInfo{{Name: idSym}},
		map[mvalue.Symbol]mvalue.Value{eqSym: eqFn}, nil, nil)

	a := mvalue.NewInstance(cls, []mvalue.Value{int64(1)})
	b := mvalue.NewInstance(cls, []mvalue.Value{int64(1)})
	c := mvalue.NewInstance(cls, []mvalue.Value{int64(2)})

	hasher := vm.eqHasher()
	eq, err := hasher.Eq(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Fatal("expected a and b to compare equal via __eq (same id)")
	}
	eq, err = hasher.Eq(a, c)
	if err != nil {
		t.Fatal(err)
	}
	if eq {
		t.Fatal("expected a and c to compare unequal via __eq (different id)")
	}
}

// TestVMEqHasherDispatchesCustomHash builds a class with a __hash method
// returning a fixed constant, confirming vmEqHasher.Hash calls through to
// it rather than raising UnhashableError.
func TestVMEqHasherDispatchesCustomHash(t *testing.T) {
	vm, g := newTestVM(t)
	selfSym := g.Symtab.Intern("self")
	hashSym := g.Symtab.Known(symbol.KnownHash)

	hashCode := &bytecode.Code{
		Kind:      bytecode.KindFunction,
		Locals:    []mvalue.Symbol{selfSym},
		Params:    bytecode.ParameterInfo{Required: []symbol.Symbol{selfSym}},
		Args:      bytecode.ArgMap{PositionalSlots: []int{0}, VariadicSlot: -1, KwargsSlot: -1},
		Constants: []interface{}{int64(42)},
		Instructions: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, Args: [2]int32{0, 0}},
			{Op: bytecode.OpReturn},
		},
		Lines: oneLine(),
	}
	hashFn := &Function{Code: hashCode}

	cls := mvalue.NewClass(mvalue.KindUserDefinedClass, "test.Tagged", "Tagged", "", nil,
		map[mvalue.Symbol]mvalue.Value{hashSym: hashFn}, nil, nil)
	obj := mvalue.NewInstance(cls, nil)

	h, err := vm.eqHasher().Hash(obj)
	if err != nil {
		t.Fatal(err)
	}
	if h != 42 {
		t.Fatalf("got %v, want 42", h)
	}
}

// TestVMEqHasherFallsBackToStructuralEqual confirms a class with no __eq
// falls through to mvalue.StructuralEqual, which has no case for user
// objects at all and so reports them unequal regardless of identity --
// the fallback vmEqHasher.Eq uses for every non-overriding case.
func TestVMEqHasherFallsBackToStructuralEqual(t *testing.T) {
	vm, g := newTestVM(t)
	idSym := g.Symtab.Intern("id")
	cls := mvalue.NewClass(mvalue.KindUserDefinedClass, "test.Plain", "Plain", "",
		[]mvalue.FieldInfo{{Name: idSym}}, nil, nil, nil)
	a := mvalue.NewInstance(cls, []mvalue.Value{int64(1)})
	b := mvalue.NewInstance(cls, []mvalue.Value{int64(1)})

	eq, err := vm.eqHasher().Eq(a, a)
	if err != nil {
		t.Fatal(err)
	}
	if eq {
		t.Fatal("StructuralEqual has no user-object case, so even a value compared to itself is unequal without __eq")
	}
	eq, err = vm.eqHasher().Eq(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if eq {
		t.Fatal("expected distinct instances with no __eq to compare unequal")
	}
}
