package compiler

import (
	"testing"

	"mtots/internal/bytecode"
	"mtots/internal/lexer"
	"mtots/internal/parser"
	"mtots/internal/symbol"
)

func compileSource(t *testing.T, src string) *bytecode.Code {
	t.Helper()
	tokens := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(tokens)
	block := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("parse errors for %q: %v", src, p.Errors)
	}
	reg := symbol.NewRegistry()
	code, err := Compile(reg, block, "test")
	if err != nil {
		t.Fatalf("compile error for %q: %v", src, err)
	}
	return code
}

func ops(code *bytecode.Code) []bytecode.OpCode {
	out := make([]bytecode.OpCode, len(code.Instructions))
	for i, ins := range code.Instructions {
		out[i] = ins.Op
	}
	return out
}

func assertOpsContain(t *testing.T, code *bytecode.Code, want ...bytecode.OpCode) {
	t.Helper()
	got := ops(code)
	gi := 0
	for _, w := range want {
		for gi < len(got) && got[gi] != w {
			gi++
		}
		if gi == len(got) {
			t.Fatalf("expected ops to contain %v in order, got %v", want, got)
		}
		gi++
	}
}

func countOp(code *bytecode.Code, op bytecode.OpCode) int {
	n := 0
	for _, ins := range code.Instructions {
		if ins.Op == op {
			n++
		}
	}
	return n
}

func TestCompileArithmeticLeavesOneValue(t *testing.T) {
	code := compileSource(t, "1 + 2 * 3")
	assertOpsContain(t, code,
		bytecode.OpLoadConst, bytecode.OpLoadConst, bytecode.OpLoadConst,
		bytecode.OpBinaryMul, bytecode.OpBinaryAdd, bytecode.OpReturn)
}

func TestCompileBlockDiscardsNonFinalValues(t *testing.T) {
	code := compileSource(t, "{ 1 2 3 }")
	if n := countOp(code, bytecode.OpPop); n < 2 {
		t.Fatalf("expected at least 2 Pop for 2 discarded sub-expressions, got %d", n)
	}
}

func TestCompileIfElse(t *testing.T) {
	code := compileSource(t, "if x < 10 { 1 } else { 2 }")
	if countOp(code, bytecode.OpPopJumpIfFalse) != 1 {
		t.Fatalf("expected exactly one PopJumpIfFalse, got instructions %v", ops(code))
	}
	if countOp(code, bytecode.OpJump) != 1 {
		t.Fatalf("expected exactly one Jump (then-branch to end), got instructions %v", ops(code))
	}
}

func TestCompileIfNoElsePushesNil(t *testing.T) {
	code := compileSource(t, "if x { 1 }")
	foundNilConst := false
	for _, v := range code.Constants {
		if v == nil {
			foundNilConst = true
		}
	}
	if !foundNilConst {
		t.Fatalf("expected a nil constant for the missing else branch, constants: %v", code.Constants)
	}
}

func TestCompileWhileHasNoBreakCleanup(t *testing.T) {
	code := compileSource(t, "while x { break }")
	// A While loop's break should jump straight out with no extra Pop,
	// since nothing persists on the stack across iterations.
	idx := -1
	for i, ins := range code.Instructions {
		if ins.Op == bytecode.OpJump {
			idx = i
			break
		}
	}
	if idx <= 0 {
		t.Fatalf("expected a Jump for break, got %v", ops(code))
	}
	if code.Instructions[idx-1].Op == bytecode.OpPop {
		t.Fatalf("did not expect a cleanup Pop before a While's break jump, got %v", ops(code))
	}
}

func TestCompileForInBreakEmitsCleanupPop(t *testing.T) {
	code := compileSource(t, "for x in y { break }")
	idx := -1
	for i, ins := range code.Instructions {
		if ins.Op == bytecode.OpJump {
			idx = i
			break
		}
	}
	if idx <= 0 {
		t.Fatalf("expected a Jump for break, got %v", ops(code))
	}
	if code.Instructions[idx-1].Op != bytecode.OpPop {
		t.Fatalf("expected ForIn's break to Pop the persistent iterator before jumping, got %v", ops(code))
	}
}

func TestCompileForInUsesGetIterAndForIter(t *testing.T) {
	code := compileSource(t, "for x in y { x }")
	assertOpsContain(t, code, bytecode.OpGetIter, bytecode.OpForIter)
}

func TestCompileFunctionDisplayMakesChildCode(t *testing.T) {
	code := compileSource(t, "fn f(a, b) { a + b }")
	if len(code.ChildCodes) != 1 {
		t.Fatalf("expected 1 child code, got %d", len(code.ChildCodes))
	}
	child := code.ChildCodes[0]
	if child.Kind != bytecode.KindFunction {
		t.Fatalf("expected child Kind Function, got %v", child.Kind)
	}
	if len(child.Params.Required) != 2 {
		t.Fatalf("expected 2 required params, got %d", len(child.Params.Required))
	}
	if countOp(code, bytecode.OpMakeFunction) != 1 {
		t.Fatalf("expected exactly one MakeFunction, got %v", ops(code))
	}
}

func TestCompileClosureCapturesFreevar(t *testing.T) {
	code := compileSource(t, `
		fn outer() {
			x = 1
			fn inner() {
				x
			}
		}
	`)
	if len(code.ChildCodes) != 1 {
		t.Fatalf("expected 1 child code for outer, got %d", len(code.ChildCodes))
	}
	outer := code.ChildCodes[0]
	if len(outer.ChildCodes) != 1 {
		t.Fatalf("expected 1 child code for inner, got %d", len(outer.ChildCodes))
	}
	inner := outer.ChildCodes[0]
	if len(inner.Freevars) != 1 {
		t.Fatalf("expected inner to capture 1 freevar, got %d (%v)", len(inner.Freevars), inner.Freevars)
	}
	foundOwnedCell := false
	for _, n := range outer.OwnedCells {
		if n.ID() == inner.Freevars[0].ID() {
			foundOwnedCell = true
		}
	}
	if !foundOwnedCell {
		t.Fatalf("expected outer to promote x to an owned cell, got %v", outer.OwnedCells)
	}
}

func TestCompileOptionalParamDefaultConstIndexMatchesPool(t *testing.T) {
	code := compileSource(t, "fn f(a, b = 5) { a }")
	child := code.ChildCodes[0]
	if len(child.Params.Optional) != 1 {
		t.Fatalf("expected 1 optional param, got %d", len(child.Params.Optional))
	}
	opt := child.Params.Optional[0]
	if opt.DefaultConst < 0 || opt.DefaultConst >= len(child.Constants) {
		t.Fatalf("DefaultConst %d out of range of %d constants", opt.DefaultConst, len(child.Constants))
	}
	if v, ok := child.Constants[opt.DefaultConst].(int64); !ok || v != 5 {
		t.Fatalf("expected DefaultConst to point at constant 5, got %#v", child.Constants[opt.DefaultConst])
	}
}

func TestCompileCallWithoutKwargsUsesCallFunction(t *testing.T) {
	code := compileSource(t, "f(1, 2)")
	if countOp(code, bytecode.OpCallFunction) != 1 {
		t.Fatalf("expected exactly one CallFunction, got %v", ops(code))
	}
	if countOp(code, bytecode.OpCallFunctionGeneric) != 0 {
		t.Fatalf("did not expect CallFunctionGeneric for a plain positional call, got %v", ops(code))
	}
}

func TestCompileCallWithKwargsUsesCallFunctionGeneric(t *testing.T) {
	code := compileSource(t, "f(1, x: 2)")
	if countOp(code, bytecode.OpCallFunctionGeneric) != 1 {
		t.Fatalf("expected exactly one CallFunctionGeneric, got %v", ops(code))
	}
	assertOpsContain(t, code, bytecode.OpMakeList, bytecode.OpMakeMap, bytecode.OpCallFunctionGeneric)
}

func TestCompileMethodCallUsesLoadMethod(t *testing.T) {
	code := compileSource(t, "obj.m(1)")
	assertOpsContain(t, code, bytecode.OpLoadMethod, bytecode.OpCallFunction)
}

func TestCompileNewCompilesLikeACall(t *testing.T) {
	code := compileSource(t, "new Foo(1, 2)")
	if countOp(code, bytecode.OpCallFunction) != 1 {
		t.Fatalf("expected new Foo(...) to compile via CallFunction, got %v", ops(code))
	}
}

func TestCompileClassDisplayPushOrder(t *testing.T) {
	code := compileSource(t, `
		class Foo(Base) {
			var x
			fn m(self) { self.x }
			static fn s() { 1 }
		}
	`)
	// bases list, fields list, instance-methods table, static-methods table, then MakeClass.
	assertOpsContain(t, code,
		bytecode.OpMakeList,  // bases
		bytecode.OpMakeList,  // fields
		bytecode.OpMakeTable, // instance methods
		bytecode.OpMakeTable, // static methods
		bytecode.OpMakeClass)
	if countOp(code, bytecode.OpMakeFunction) != 2 {
		t.Fatalf("expected 2 MakeFunction (one instance method, one static method), got %v", ops(code))
	}
}

func TestCompileExceptionKindDisplayPushOrder(t *testing.T) {
	code := compileSource(t, `exception MyError { "something went wrong" }`)
	assertOpsContain(t, code, bytecode.OpMakeList, bytecode.OpMakeExceptionKind)
}

func TestCompileSubscriptOpcodes(t *testing.T) {
	code := compileSource(t, "x[0]")
	assertOpsContain(t, code, bytecode.OpLoadSubscript)
}

func TestCompileAssignSubscriptOpcodes(t *testing.T) {
	code := compileSource(t, "x[0] = 1")
	assertOpsContain(t, code, bytecode.OpStoreSubscript)
}

func TestCompileSliceOpcode(t *testing.T) {
	code := compileSource(t, "x[1:2]")
	assertOpsContain(t, code, bytecode.OpSlice)
}

func TestCompileRaise(t *testing.T) {
	code := compileSource(t, "raise err")
	assertOpsContain(t, code, bytecode.OpRaise)
}

func TestCompileTryCatchAllEmitsHandler(t *testing.T) {
	code := compileSource(t, `
		try {
			1
		} catch e {
			2
		}
	`)
	assertOpsContain(t, code, bytecode.OpPushHandler, bytecode.OpPopHandler)
	if countOp(code, bytecode.OpCurrentException) == 0 {
		t.Fatalf("expected at least one CurrentException to bind the catch name, got %v", ops(code))
	}
	if countOp(code, bytecode.OpMatchException) != 0 {
		t.Fatalf("a catch-all handler should not emit MatchException, got %v", ops(code))
	}
}

func TestCompileTryCatchKindEmitsMatchException(t *testing.T) {
	code := compileSource(t, `
		try {
			1
		} catch (SomeError as e) {
			2
		}
	`)
	assertOpsContain(t, code, bytecode.OpPushHandler, bytecode.OpCurrentException, bytecode.OpMatchException, bytecode.OpPopJumpIfFalse)
	if countOp(code, bytecode.OpReraise) != 1 {
		t.Fatalf("expected exactly one Reraise on the no-match path, got %v", ops(code))
	}
}

func TestCompileTryFinallyRunsOnEveryPath(t *testing.T) {
	code := compileSource(t, `
		try {
			1
		} finally {
			2
		}
	`)
	assertOpsContain(t, code, bytecode.OpPushHandler, bytecode.OpPopHandler)
	if countOp(code, bytecode.OpReraise) != 1 {
		t.Fatalf("expected exactly one Reraise for the no-catch handler path, got %v", ops(code))
	}
}

func TestCompileImportBindsFirstSegment(t *testing.T) {
	code := compileSource(t, "import pkg.mod")
	assertOpsContain(t, code, bytecode.OpImport, bytecode.OpDupTop, bytecode.OpStoreDeref)
	// A module's top level promotes every local to an owned cell, so the
	// binding for `pkg` lands in OwnedCells rather than Locals.
	found := false
	for _, n := range code.OwnedCells {
		if n.String() == "pkg" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected import to bind the first dotted segment %q as an owned cell, got %v", "pkg", code.OwnedCells)
	}
}

func TestCompileStarFunctionMarksGenerator(t *testing.T) {
	code := compileSource(t, "fn* gen() { yield 1 }")
	child := code.ChildCodes[0]
	if child.Kind != bytecode.KindGenerator {
		t.Fatalf("expected a fn* function to compile as KindGenerator, got %v", child.Kind)
	}
	assertOpsContain(t, child, bytecode.OpYield)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	tokens := lexer.NewScanner("break").ScanTokens()
	p := parser.NewParser(tokens)
	block := p.Parse()
	if len(p.Errors) > 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors)
	}
	reg := symbol.NewRegistry()
	_, err := Compile(reg, block, "test")
	if err == nil {
		t.Fatalf("expected a compile error for break outside a loop")
	}
}

func TestCompileDelPushesNilAndMaskesVariable(t *testing.T) {
	code := compileSource(t, "x = 1\ndel x")
	foundNilConst := false
	for _, v := range code.Constants {
		if v == nil {
			foundNilConst = true
		}
	}
	if !foundNilConst {
		t.Fatalf("expected del to leave a nil value on the stack, constants: %v", code.Constants)
	}
	foundUnbound := false
	for _, v := range code.Constants {
		if _, ok := v.(bytecode.Unbound); ok {
			foundUnbound = true
		}
	}
	if !foundUnbound {
		t.Fatalf("expected del to mask the variable with the Unbound sentinel, constants: %v", code.Constants)
	}
}
