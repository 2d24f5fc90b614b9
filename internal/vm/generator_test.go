package vm

import (
	"testing"

	"mtots/internal/bytecode"
)

// sumGeneratorCode yields 1, then 2, then returns 3 — just enough body to
// exercise every transition of §4.6's tri-state resume contract (value,
// done, raised) without needing a real `for`/`yield` surface syntax.
func sumGeneratorCode() *bytecode.Code {
	return &bytecode.Code{
		Kind:      bytecode.KindGenerator,
		ShortName: "gen",
		Args:      bytecode.ArgMap{VariadicSlot: -1, KwargsSlot: -1},
		Constants: []interface{}{int64(1), int64(2), int64(3)},
		Instructions: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, Args: [2]int32{0, 0}},
			{Op: bytecode.OpYield},
			{Op: bytecode.OpPop},
			{Op: bytecode.OpLoadConst, Args: [2]int32{1, 0}},
			{Op: bytecode.OpYield},
			{Op: bytecode.OpPop},
			{Op: bytecode.OpLoadConst, Args: [2]int32{2, 0}},
			{Op: bytecode.OpReturn},
		},
		Lines: oneLine(),
	}
}

func TestGeneratorResumeSequence(t *testing.T) {
	vm, _ := newTestVM(t)
	fn := &Function{Code: sumGeneratorCode()}
	v, err := vm.callValue(fn, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	gen, ok := v.(*Generator)
	if !ok {
		t.Fatalf("calling a generator function must suspend without running the body, got %T", v)
	}

	val, done, err := gen.Resume(vm, nil)
	if err != nil || done || val.(int64) != 1 {
		t.Fatalf("first resume: got %v, %v, %v", val, done, err)
	}
	val, done, err = gen.Resume(vm, nil)
	if err != nil || done || val.(int64) != 2 {
		t.Fatalf("second resume: got %v, %v, %v", val, done, err)
	}
	val, done, err = gen.Resume(vm, nil)
	if err != nil || !done || val.(int64) != 3 {
		t.Fatalf("third resume: got %v, %v, %v", val, done, err)
	}
}

func TestGeneratorResumeAfterDoneRaises(t *testing.T) {
	vm, g := newTestVM(t)
	fn := &Function{Code: sumGeneratorCode()}
	v, _ := vm.callValue(fn, nil, nil)
	gen := v.(*Generator)
	for !mustDone(t, gen, vm) {
	}
	_, _, err := gen.Resume(vm, nil)
	exc, ok := asException(err)
	if !ok || exc.Kind != g.Exceptions.GeneratorResumeAfterDone {
		t.Fatalf("got %v, want GeneratorResumeAfterDone", err)
	}
}

func mustDone(t *testing.T, gen *Generator, vm *VM) bool {
	t.Helper()
	_, done, err := gen.Resume(vm, nil)
	if err != nil {
		t.Fatal(err)
	}
	return done
}

func TestGeneratorStartedWithNonNilValueRaises(t *testing.T) {
	vm, g := newTestVM(t)
	fn := &Function{Code: sumGeneratorCode()}
	v, _ := vm.callValue(fn, nil, nil)
	gen := v.(*Generator)
	_, _, err := gen.Resume(vm, int64(5))
	exc, ok := asException(err)
	if !ok || exc.Kind != g.Exceptions.GeneratorStartedWithNonNilValue {
		t.Fatalf("got %v, want GeneratorStartedWithNonNilValue", err)
	}
}

func TestYieldOutsideGeneratorRaises(t *testing.T) {
	vm, g := newTestVM(t)
	code := &bytecode.Code{
		Kind: bytecode.KindModule,
		Instructions: []bytecode.Instruction{
			{Op: bytecode.OpLoadConst, Args: [2]int32{0, 0}},
			{Op: bytecode.OpYield},
		},
		Constants: []interface{}{int64(1)},
		Lines:     oneLine(),
	}
	_, err := vm.runFrame(newFrame(code, nil))
	exc, ok := asException(err)
	if !ok || exc.Kind != g.Exceptions.YieldOutsideGenerator {
		t.Fatalf("got %v, want YieldOutsideGenerator", err)
	}
}
