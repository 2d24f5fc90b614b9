package globals

import (
	"testing"

	"mtots/internal/mvalue"
)

type stubCaller struct{}

func (stubCaller) Call(callee mvalue.Value, args []mvalue.Value) (mvalue.Value, error) {
	fn := callee.(*NativeFunction)
	return fn.Func(stubCaller{}, args, nil)
}

func call(t *testing.T, g *Globals, name string, args ...mvalue.Value) mvalue.Value {
	t.Helper()
	sym := g.Symtab.Intern(name)
	fn, ok := g.Builtins[sym]
	if !ok {
		t.Fatalf("no builtin named %q", name)
	}
	v, err := fn.(*NativeFunction).Func(stubCaller{}, args, nil)
	if err != nil {
		t.Fatalf("%s(...): %v", name, err)
	}
	return v
}

func TestLenAcrossVariants(t *testing.T) {
	g := New(nil)
	if got := call(t, g, "len", "hello"); got != int64(5) {
		t.Fatalf("len(hello) = %v", got)
	}
	if got := call(t, g, "len", mvalue.NewList([]mvalue.Value{1, 2, 3})); got != int64(3) {
		t.Fatalf("len([1,2,3]) = %v", got)
	}
}

func TestMapFilterReduce(t *testing.T) {
	g := New(nil)
	double := &NativeFunction{Name: "double", Func: func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return args[0].(int64) * 2, nil
	}}
	doubled := call(t, g, "map", double, mvalue.NewList([]mvalue.Value{int64(1), int64(2), int64(3)}))
	list := doubled.(*mvalue.List)
	if list.Items[0] != int64(2) || list.Items[2] != int64(6) {
		t.Fatalf("map result = %v", list.Items)
	}

	isEven := &NativeFunction{Name: "isEven", Func: func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return args[0].(int64)%2 == 0, nil
	}}
	evens := call(t, g, "filter", isEven, mvalue.NewList([]mvalue.Value{int64(1), int64(2), int64(3), int64(4)}))
	if len(evens.(*mvalue.List).Items) != 2 {
		t.Fatalf("filter result = %v", evens)
	}

	add := &NativeFunction{Name: "add", Func: func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return args[0].(int64) + args[1].(int64), nil
	}}
	sum := call(t, g, "reduce", add, mvalue.NewList([]mvalue.Value{int64(1), int64(2), int64(3), int64(4)}))
	if sum != int64(10) {
		t.Fatalf("reduce sum = %v", sum)
	}
}

func TestAssertRaises(t *testing.T) {
	g := New(nil)
	sym := g.Symtab.Intern("assert")
	fn := g.Builtins[sym].(*NativeFunction)
	_, err := fn.Func(stubCaller{}, []mvalue.Value{false, "boom"}, nil)
	if err == nil {
		t.Fatal("expected assert(false) to raise")
	}
	exc, ok := err.(*mvalue.Exception)
	if !ok || !exc.Kind.Matches(g.Exceptions.AssertionError) {
		t.Fatalf("expected AssertionError, got %v", err)
	}
}

func TestSetAndDictBuiltins(t *testing.T) {
	g := New(nil)
	s := call(t, g, "set", mvalue.NewList([]mvalue.Value{int64(1), int64(2), int64(2)}))
	if s.(*mvalue.Set).Len() != 2 {
		t.Fatalf("set dedup failed: %v", s)
	}
	d := call(t, g, "dict", mvalue.NewList([]mvalue.Value{
		mvalue.NewList([]mvalue.Value{"a", int64(1)}),
	}))
	v, ok, err := d.(*mvalue.Map).Get("a")
	if err != nil || !ok || v != int64(1) {
		t.Fatalf("dict()[a] = %v, %v, %v", v, ok, err)
	}
}

func TestTraceStack(t *testing.T) {
	g := New(nil)
	g.PushTrace("main", 10)
	g.PushTrace("main", 12)
	if len(g.TraceStack) != 2 {
		t.Fatalf("expected 2 trace entries, got %d", len(g.TraceStack))
	}
	g.PopTrace()
	if len(g.TraceStack) != 1 {
		t.Fatalf("expected 1 trace entry after pop, got %d", len(g.TraceStack))
	}
}
