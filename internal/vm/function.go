package vm

import (
	"mtots/internal/bytecode"
	"mtots/internal/mvalue"
)

// functionClass/boundMethodClass are the native classes Function and the
// internal bound-method wrapper report through ClassOf, matching the
// "every Value variant implements Classified" contract from
// internal/mvalue's doc comment.
var functionClass = mvalue.NewClass(mvalue.KindNativeClass, "Function", "Function", "a compiled function or generator", nil, nil, nil, nil)
var boundMethodClass = mvalue.NewClass(mvalue.KindNativeClass, "BoundMethod", "BoundMethod", "a method bound to its receiver", nil, nil, nil, nil)

// Function is a closure: a compiled Code object paired with the cells it
// captured at MakeFunction time, in Code.Freevars order. Calling one
// whose Code.Kind is KindGenerator does not run the body — it binds
// arguments into a fresh, not-yet-started Frame and wraps it as a
// Generator instead (§4.6).
type Function struct {
	Code  *bytecode.Code
	Cells []*mvalue.Cell
}

func (f *Function) ClassOf() *mvalue.Class { return functionClass }

// boundMethod is what OpLoadMethod pushes: a receiver plus the unbound
// function/native looked up on its class, so a subsequent CallFunction
// can supply just the call-site arguments while self is threaded in
// automatically.
type boundMethod struct {
	Self mvalue.Value
	Fn   mvalue.Value
}

func (b *boundMethod) ClassOf() *mvalue.Class { return boundMethodClass }
