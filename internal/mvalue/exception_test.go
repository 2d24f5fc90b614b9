package mvalue

import (
	"testing"

	"mtots/internal/symbol"
)

func TestExceptionAncestryMatches(t *testing.T) {
	symtab := symbol.NewRegistry()
	reg := NewExceptionRegistry(symtab)

	fooKind := reg.Register("Foo", reg.Exception, "foo: {x}", []symbol.Symbol{symtab.Intern("x")})
	if !fooKind.Matches(reg.Exception) {
		t.Fatalf("Foo should match Exception (its parent)")
	}
	if !fooKind.Matches(reg.BaseException) {
		t.Fatalf("Foo should match BaseException (transitive ancestor)")
	}
	if fooKind.Matches(reg.TypeError) {
		t.Fatalf("Foo should not match an unrelated sibling kind")
	}
}

func TestExceptionMessageTemplate(t *testing.T) {
	symtab := symbol.NewRegistry()
	reg := NewExceptionRegistry(symtab)
	xSym := symtab.Intern("x")
	fooKind := reg.Register("Foo", reg.Exception, "foo: {x}", []symbol.Symbol{xSym})
	exc := NewException(fooKind, []Value{int64(42)})
	if got, want := exc.String(), "Foo: foo: 42"; got != want {
		t.Fatalf("exc.String() = %q, want %q", got, want)
	}
}

func TestUnpackErrorFields(t *testing.T) {
	symtab := symbol.NewRegistry()
	reg := NewExceptionRegistry(symtab)
	exc := NewException(reg.UnpackError, []Value{int64(2), int64(3)})
	expected := symtab.Intern("expected")
	if v, ok := exc.Field(expected); !ok || v.(int64) != 2 {
		t.Fatalf("Field(expected) = %v, %v", v, ok)
	}
	if got, want := exc.Message(), "expected 2 values, got 3"; got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
}
