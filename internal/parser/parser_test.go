package parser

import (
	"testing"

	"mtots/internal/lexer"
)

func parseString(src string) (*Block, []error) {
	tokens := lexer.NewScanner(src).ScanTokens()
	p := NewParser(tokens)
	block := p.Parse()
	return block, p.Errors
}

func assertParseSuccess(t *testing.T, src, description string) *Block {
	t.Helper()
	block, errs := parseString(src)
	if len(errs) > 0 {
		t.Fatalf("%s: parse errors: %v", description, errs)
	}
	return block
}

func TestParseArithmetic(t *testing.T) {
	block := assertParseSuccess(t, "1 + 2 * 3", "arithmetic precedence")
	if len(block.Exprs) != 1 {
		t.Fatalf("expected 1 top-level expr, got %d", len(block.Exprs))
	}
	add, ok := block.Exprs[0].(*Binop)
	if !ok || add.Operator != "+" {
		t.Fatalf("expected top-level '+', got %#v", block.Exprs[0])
	}
	mul, ok := add.Right.(*Binop)
	if !ok || mul.Operator != "*" {
		t.Fatalf("expected '*' to bind tighter than '+', got %#v", add.Right)
	}
}

func TestParsePowerRightAssociative(t *testing.T) {
	block := assertParseSuccess(t, "2 ** 3 ** 2", "power associativity")
	top, ok := block.Exprs[0].(*Binop)
	if !ok || top.Operator != "**" {
		t.Fatalf("expected top-level '**', got %#v", block.Exprs[0])
	}
	if _, ok := top.Right.(*Binop); !ok {
		t.Fatalf("expected '**' to be right-associative (2 ** (3 ** 2))")
	}
	if _, ok := top.Left.(*Int); !ok {
		t.Fatalf("expected left operand to be a plain Int, got %#v", top.Left)
	}
}

func TestParseIfElse(t *testing.T) {
	block := assertParseSuccess(t, `if x < 10 { 1 } else { 2 }`, "if/else")
	ifExpr, ok := block.Exprs[0].(*If)
	if !ok {
		t.Fatalf("expected *If, got %#v", block.Exprs[0])
	}
	if ifExpr.Else == nil {
		t.Fatalf("expected an else branch")
	}
}

func TestParseFunctionDisplay(t *testing.T) {
	block := assertParseSuccess(t, `fn add(a, b = 1, *rest, **kw) { return a + b }`, "function display")
	fd, ok := block.Exprs[0].(*FunctionDisplay)
	if !ok {
		t.Fatalf("expected *FunctionDisplay, got %#v", block.Exprs[0])
	}
	if len(fd.Required) != 1 || fd.Required[0] != "a" {
		t.Errorf("Required = %v, want [a]", fd.Required)
	}
	if len(fd.Optional) != 1 || fd.Optional[0].Name != "b" {
		t.Errorf("Optional = %v, want [b]", fd.Optional)
	}
	if fd.Variadic != "rest" || fd.Kwargs != "kw" {
		t.Errorf("Variadic/Kwargs = %q/%q, want rest/kw", fd.Variadic, fd.Kwargs)
	}
}

func TestParseGeneratorFunction(t *testing.T) {
	block := assertParseSuccess(t, `fn *gen() { yield 1 }`, "generator display")
	fd, ok := block.Exprs[0].(*FunctionDisplay)
	if !ok || !fd.IsGenerator {
		t.Fatalf("expected a generator FunctionDisplay, got %#v", block.Exprs[0])
	}
}

func TestParseClassDisplay(t *testing.T) {
	block := assertParseSuccess(t, `class Counter(Base) { var count fn inc() { self.count += 1 } }`, "class display")
	cd, ok := block.Exprs[0].(*ClassDisplay)
	if !ok {
		t.Fatalf("expected *ClassDisplay, got %#v", block.Exprs[0])
	}
	if len(cd.Bases) != 1 {
		t.Errorf("expected one base class, got %v", cd.Bases)
	}
	if len(cd.Fields) != 1 || cd.Fields[0] != "count" {
		t.Errorf("Fields = %v, want [count]", cd.Fields)
	}
	if len(cd.Methods) != 1 || cd.Methods[0].Name != "inc" {
		t.Errorf("Methods = %v, want [inc]", cd.Methods)
	}
}

func TestParseExceptionKindDisplay(t *testing.T) {
	block := assertParseSuccess(t, `exception Foo { x, "foo: {x}" }`, "exception kind display")
	ek, ok := block.Exprs[0].(*ExceptionKindDisplay)
	if !ok {
		t.Fatalf("expected *ExceptionKindDisplay, got %#v", block.Exprs[0])
	}
	if len(ek.Fields) != 1 || ek.Fields[0] != "x" {
		t.Errorf("Fields = %v, want [x]", ek.Fields)
	}
	if ek.MessageTemplate != "foo: {x}" {
		t.Errorf("MessageTemplate = %q, want %q", ek.MessageTemplate, "foo: {x}")
	}
}

func TestParseTryCatchFinally(t *testing.T) {
	block := assertParseSuccess(t, `try { risky() } catch (TypeError as e) { handle(e) } finally { cleanup() }`, "try/catch/finally")
	tr, ok := block.Exprs[0].(*Try)
	if !ok {
		t.Fatalf("expected *Try, got %#v", block.Exprs[0])
	}
	if !tr.HasCatch || tr.CatchName != "e" {
		t.Errorf("expected catch binding 'e', got HasCatch=%v Name=%q", tr.HasCatch, tr.CatchName)
	}
	if !tr.HasFinally {
		t.Errorf("expected a finally clause")
	}
}

func TestParseForIn(t *testing.T) {
	block := assertParseSuccess(t, `for x in items { print(x) }`, "for-in loop")
	fi, ok := block.Exprs[0].(*ForIn)
	if !ok {
		t.Fatalf("expected *ForIn, got %#v", block.Exprs[0])
	}
	if fi.Var != "x" {
		t.Errorf("Var = %q, want x", fi.Var)
	}
}

func TestParseAugAssignAndSubscript(t *testing.T) {
	block := assertParseSuccess(t, `xs[0] += 1`, "subscript aug-assign")
	as, ok := block.Exprs[0].(*AssignSubscript)
	if !ok {
		t.Fatalf("expected *AssignSubscript, got %#v", block.Exprs[0])
	}
	if _, ok := as.Value.(*Binop); !ok {
		t.Fatalf("expected AssignSubscript.Value to be the desugared '+' binop, got %#v", as.Value)
	}
}

func TestParseMethodCallAndNew(t *testing.T) {
	block := assertParseSuccess(t, `new Foo(1, 2).bar(3)`, "new + method call")
	mc, ok := block.Exprs[0].(*MethodCall)
	if !ok {
		t.Fatalf("expected *MethodCall, got %#v", block.Exprs[0])
	}
	if _, ok := mc.Object.(*New); !ok {
		t.Fatalf("expected method call receiver to be a *New, got %#v", mc.Object)
	}
}

func TestParseMapDisplayVsBlock(t *testing.T) {
	block := assertParseSuccess(t, `{x: 1, "y": 2}`, "map display")
	md, ok := block.Exprs[0].(*MapDisplay)
	if !ok {
		t.Fatalf("expected *MapDisplay, got %#v", block.Exprs[0])
	}
	if len(md.Keys) != 2 || len(md.Values) != 2 {
		t.Fatalf("expected 2 key/value pairs, got %d/%d", len(md.Keys), len(md.Values))
	}
	if _, ok := md.Keys[0].(*SymbolLit); !ok {
		t.Errorf("expected bare ident key to parse as *SymbolLit, got %#v", md.Keys[0])
	}

	plain := assertParseSuccess(t, `{ print(1) }`, "plain block")
	if _, ok := plain.Exprs[0].(*Block); !ok {
		t.Fatalf("expected *Block for non key:value braces, got %#v", plain.Exprs[0])
	}
}

func TestParseErrorRecoverySynchronizes(t *testing.T) {
	_, errs := parseString(`)) fn ok() { return 1 }`)
	if len(errs) == 0 {
		t.Fatalf("expected at least one parse error")
	}
}
