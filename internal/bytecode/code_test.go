package bytecode

import (
	"testing"

	"mtots/internal/symbol"
)

func TestLineTableFind(t *testing.T) {
	lt := LineTable{
		{Offset: 0, Line: 1},
		{Offset: 3, Line: 2},
		{Offset: 7, Line: 4},
	}
	tests := []struct {
		offset int
		want   int
	}{
		{0, 1}, {1, 1}, {2, 1},
		{3, 2}, {6, 2},
		{7, 4}, {100, 4},
	}
	for _, tt := range tests {
		if got := lt.Find(tt.offset); got != tt.want {
			t.Errorf("Find(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}

func TestCodeSlotIndices(t *testing.T) {
	symtab := symbol.NewRegistry()
	x := symtab.Intern("x")
	y := symtab.Intern("y")
	f := symtab.Intern("f")

	c := &Code{
		Locals:     []symbol.Symbol{x, y},
		Freevars:   []symbol.Symbol{f},
		OwnedCells: []symbol.Symbol{y},
	}

	if got := c.LocalSlot(x); got != 0 {
		t.Errorf("LocalSlot(x) = %d, want 0", got)
	}
	if got := c.LocalSlot(y); got != 1 {
		t.Errorf("LocalSlot(y) = %d, want 1", got)
	}
	if got := c.CellSlot(f); got != 0 {
		t.Errorf("CellSlot(f) = %d, want 0 (freevars come first)", got)
	}
	if got := c.CellSlot(y); got != 1 {
		t.Errorf("CellSlot(y) = %d, want 1 (owned cells after freevars)", got)
	}
	if got, want := c.NumCells(), 2; got != want {
		t.Errorf("NumCells() = %d, want %d", got, want)
	}
}

func TestParameterInfoArity(t *testing.T) {
	symtab := symbol.NewRegistry()
	a := symtab.Intern("a")
	b := symtab.Intern("b")
	variadic := symtab.Intern("rest")

	t.Run("required only", func(t *testing.T) {
		p := &ParameterInfo{Required: []symbol.Symbol{a, b}}
		min, max := p.Arity()
		if min != 2 || max != 2 {
			t.Errorf("Arity() = (%d, %d), want (2, 2)", min, max)
		}
	})

	t.Run("with optionals", func(t *testing.T) {
		p := &ParameterInfo{
			Required: []symbol.Symbol{a},
			Optional: []OptionalParam{{Name: b, DefaultConst: 0}},
		}
		min, max := p.Arity()
		if min != 1 || max != 2 {
			t.Errorf("Arity() = (%d, %d), want (1, 2)", min, max)
		}
	})

	t.Run("variadic makes max unbounded", func(t *testing.T) {
		p := &ParameterInfo{Required: []symbol.Symbol{a}, Variadic: &variadic}
		min, max := p.Arity()
		if min != 1 || max != -1 {
			t.Errorf("Arity() = (%d, %d), want (1, -1)", min, max)
		}
	})
}

func TestStackEffectVariableArity(t *testing.T) {
	tests := []struct {
		name     string
		op       OpCode
		arg      int32
		wantPop  int
		wantPush int
	}{
		{"Unpack(3)", OpUnpack, 3, 1, 3},
		{"MakeList(4)", OpMakeList, 4, 4, 1},
		{"MakeMap(2 pairs)", OpMakeMap, 2, 4, 1},
		{"CallFunction(argc=2)", OpCallFunction, 2, 3, 1},
	}
	for _, tt := range tests {
		pop, push, ok := StackEffect(tt.op, tt.arg)
		if !ok {
			t.Fatalf("%s: StackEffect not ok", tt.name)
		}
		if pop != tt.wantPop || push != tt.wantPush {
			t.Errorf("%s: StackEffect = (%d, %d), want (%d, %d)", tt.name, pop, push, tt.wantPop, tt.wantPush)
		}
	}
}

func TestOpCodeString(t *testing.T) {
	if got, want := OpBinaryAdd.String(), "BinaryAdd"; got != want {
		t.Errorf("OpBinaryAdd.String() = %q, want %q", got, want)
	}
	if got := OpCode(999).String(); got != "OpUnknown" {
		t.Errorf("out-of-range OpCode.String() = %q, want OpUnknown", got)
	}
}
