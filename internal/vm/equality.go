package vm

import (
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// vmEqHasher extends mvalue.DefaultEqHasher with the one case that
// package cannot implement itself: UserObject/MutableUserObject
// equality and hashing dispatch to a `__eq`/`__hash` method if the
// class defines one, per the doc comment on mvalue.EqHasher directing
// internal/vm to override DefaultEqHasher this way. Every other variant
// falls through to HashPrimitive/StructuralEqual exactly as
// DefaultEqHasher does.
type vmEqHasher struct {
	vm *VM
}

func (vm *VM) eqHasher() vmEqHasher { return vmEqHasher{vm: vm} }

func (h vmEqHasher) Hash(v mvalue.Value) (uint64, error) {
	if n, ok := mvalue.HashPrimitive(v); ok {
		return n, nil
	}
	obj, cls, ok := userClassOf(v)
	if !ok {
		return 0, &mvalue.UnhashableError{Value: v}
	}
	method, ok := cls.GetMethod(h.vm.g.Symtab.Known(symbol.KnownHash))
	if !ok {
		return 0, &mvalue.UnhashableError{Value: v}
	}
	result, err := h.vm.callValue(method, []mvalue.Value{obj}, nil)
	if err != nil {
		return 0, err
	}
	n, ok := result.(int64)
	if !ok {
		return 0, &mvalue.UnhashableError{Value: v}
	}
	return uint64(n), nil
}

func (h vmEqHasher) Eq(a, b mvalue.Value) (bool, error) {
	aObj, aCls, aOK := userClassOf(a)
	if aOK {
		if method, ok := aCls.GetMethod(h.vm.g.Symtab.Known(symbol.KnownEq)); ok {
			result, err := h.vm.callValue(method, []mvalue.Value{aObj, b}, nil)
			if err != nil {
				return false, err
			}
			return mvalue.Truthy(result), nil
		}
	}
	return mvalue.StructuralEqual(a, b), nil
}

func userClassOf(v mvalue.Value) (mvalue.Value, *mvalue.Class, bool) {
	switch x := v.(type) {
	case *mvalue.UserObject:
		return x, x.Class, true
	case *mvalue.MutableUserObject:
		return x, x.Class, true
	default:
		return nil, nil, false
	}
}
