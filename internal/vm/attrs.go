package vm

import (
	"mtots/internal/module"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// loadAttribute implements OpLoadAttribute (§4.4): instance fields win
// over methods (a field named the same as a method shadows it, matching
// "instance_map" being consulted only on a field miss), modules resolve
// through Module.Get, and every other Classified value (Function,
// Generator, Exception, native containers) falls back to its class's
// instance map via GetMethod, with the native-container fast path tried
// first since those never have a backing *mvalue.Class-declared field.
func (vm *VM) loadAttribute(obj mvalue.Value, name symbol.Symbol) (mvalue.Value, error) {
	switch x := obj.(type) {
	case *mvalue.UserObject:
		if v, ok := x.Fields[name]; ok {
			return v, nil
		}
		if m, ok := x.Class.GetMethod(name); ok {
			return &boundMethod{Self: obj, Fn: m}, nil
		}
		return nil, vm.instanceAttrError(name, x.Class)
	case *mvalue.MutableUserObject:
		if c, ok := x.Fields[name]; ok {
			return c.Load(), nil
		}
		if m, ok := x.Class.GetMethod(name); ok {
			return &boundMethod{Self: obj, Fn: m}, nil
		}
		return nil, vm.instanceAttrError(name, x.Class)
	case *module.Module:
		if v, ok := x.Get(name); ok {
			return v, nil
		}
		return nil, vm.nameError(name)
	default:
		if nm, ok := vm.lookupNativeMethod(obj, name); ok {
			return nm, nil
		}
		if cl, ok := obj.(mvalue.Classified); ok {
			if m, ok := cl.ClassOf().GetMethod(name); ok {
				return &boundMethod{Self: obj, Fn: m}, nil
			}
		}
		return nil, vm.instanceAttrError(name, nil)
	}
}

// storeAttribute implements OpStoreAttribute: only a mutable instance
// can have a field assigned after construction, per §3's "mutable
// classes wrap each field in an interior-mutable cell" — a frozen
// UserObject raises rather than silently rebinding.
func (vm *VM) storeAttribute(obj mvalue.Value, name symbol.Symbol, value mvalue.Value) error {
	switch x := obj.(type) {
	case *mvalue.MutableUserObject:
		c, ok := x.Fields[name]
		if !ok {
			return vm.instanceAttrError(name, x.Class)
		}
		c.Store(value)
		return nil
	case *mvalue.UserObject:
		return vm.typeError("cannot assign to frozen instance attribute " + name.String())
	default:
		return vm.typeError("cannot assign attributes on " + mvalue.TypeName(obj))
	}
}

// loadStaticAttribute implements OpLoadStaticAttribute: `Class::name`
// syntax resolves only against static_map, never instance_map.
func (vm *VM) loadStaticAttribute(obj mvalue.Value, name symbol.Symbol) (mvalue.Value, error) {
	cls, ok := obj.(*mvalue.Class)
	if !ok {
		return nil, vm.expectedType("Class", obj)
	}
	v, ok := cls.GetStatic(name)
	if !ok {
		return nil, mvalue.NewException(vm.g.Exceptions.StaticAttr, []mvalue.Value{name, cls.ShortName})
	}
	return v, nil
}

// loadMethod implements OpLoadMethod: the native-container fast path is
// tried first (push/pop/len/... on List/Map/Set variants), falling back
// to the general instance-attribute path (which already returns bound
// methods for Class-declared methods) for everything else.
func (vm *VM) loadMethod(obj mvalue.Value, name symbol.Symbol) (mvalue.Value, error) {
	if nm, ok := vm.lookupNativeMethod(obj, name); ok {
		return nm, nil
	}
	return vm.loadAttribute(obj, name)
}

func (vm *VM) instanceAttrError(name symbol.Symbol, cls *mvalue.Class) error {
	className := "Object"
	if cls != nil {
		className = cls.ShortName
	}
	return mvalue.NewException(vm.g.Exceptions.InstanceAttr, []mvalue.Value{name, className})
}

// loadSubscript implements OpLoadSubscript over every indexable variant
// (§4.4): Lists/Bytes/String are integer-indexed with bounds checking,
// Maps/Tables are key-indexed. There is no dedicated IndexError kind in
// the registry (§7 lists KeyError for Maps but nothing List-specific),
// so an out-of-range List index raises the message-only RuntimeError.
func (vm *VM) loadSubscript(obj, index mvalue.Value) (mvalue.Value, error) {
	switch x := obj.(type) {
	case *mvalue.List:
		i, err := vm.asIndex(index, len(x.Items))
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case *mvalue.MutableList:
		i, err := vm.asIndex(index, len(x.Items))
		if err != nil {
			return nil, err
		}
		return x.Items[i], nil
	case string:
		runes := []rune(x)
		i, err := vm.asIndex(index, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case *mvalue.MutableString:
		runes := []rune(x.Value)
		i, err := vm.asIndex(index, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case mvalue.Bytes:
		i, err := vm.asIndex(index, len(x))
		if err != nil {
			return nil, err
		}
		return int64(x[i]), nil
	case *mvalue.Map:
		v, ok, err := x.Get(index)
		if err != nil {
			return nil, vm.unhashableErr(err)
		}
		if !ok {
			return nil, mvalue.NewException(vm.g.Exceptions.KeyError, []mvalue.Value{index})
		}
		return v, nil
	case *mvalue.MutableMap:
		v, ok, err := x.Get(index)
		if err != nil {
			return nil, vm.unhashableErr(err)
		}
		if !ok {
			return nil, mvalue.NewException(vm.g.Exceptions.KeyError, []mvalue.Value{index})
		}
		return v, nil
	case *mvalue.Table:
		sym, ok := index.(symbol.Symbol)
		if !ok {
			return nil, vm.expectedType("Symbol", index)
		}
		v, ok := x.Get(sym)
		if !ok {
			return nil, mvalue.NewException(vm.g.Exceptions.KeyError, []mvalue.Value{index})
		}
		return v, nil
	default:
		return nil, vm.typeError(mvalue.TypeName(obj) + " does not support subscripting")
	}
}

// storeSubscript implements OpStoreSubscript: only the mutable-shared
// variants accept assignment; frozen List/Map raise the way a frozen
// UserObject's attribute store does.
func (vm *VM) storeSubscript(obj, index, value mvalue.Value) error {
	switch x := obj.(type) {
	case *mvalue.MutableList:
		i, err := vm.asIndex(index, len(x.Items))
		if err != nil {
			return err
		}
		x.Items[i] = value
		return nil
	case *mvalue.MutableMap:
		if err := x.Set(index, value); err != nil {
			return vm.unhashableErr(err)
		}
		return nil
	default:
		return vm.typeError(mvalue.TypeName(obj) + " does not support subscript assignment")
	}
}

func (vm *VM) asIndex(v mvalue.Value, n int) (int, error) {
	i, ok := v.(int64)
	if !ok {
		return 0, vm.expectedType("Int", v)
	}
	idx := int(i)
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, mvalue.NewException(vm.g.Exceptions.RuntimeError, []mvalue.Value{"index out of range"})
	}
	return idx, nil
}

// slice implements OpSlice over List/MutableList/String, with Nil bounds
// clamped to the open start/end of the sequence.
func (vm *VM) slice(obj, lo, hi mvalue.Value) (mvalue.Value, error) {
	switch x := obj.(type) {
	case *mvalue.List:
		a, b, err := vm.sliceBounds(lo, hi, len(x.Items))
		if err != nil {
			return nil, err
		}
		out := append([]mvalue.Value(nil), x.Items[a:b]...)
		return mvalue.NewList(out), nil
	case *mvalue.MutableList:
		a, b, err := vm.sliceBounds(lo, hi, len(x.Items))
		if err != nil {
			return nil, err
		}
		out := append([]mvalue.Value(nil), x.Items[a:b]...)
		return mvalue.NewList(out), nil
	case string:
		runes := []rune(x)
		a, b, err := vm.sliceBounds(lo, hi, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[a:b]), nil
	default:
		return nil, vm.typeError(mvalue.TypeName(obj) + " does not support slicing")
	}
}

func (vm *VM) sliceBounds(lo, hi mvalue.Value, n int) (int, int, error) {
	a, b := 0, n
	if !mvalue.IsNil(lo) {
		i, ok := lo.(int64)
		if !ok {
			return 0, 0, vm.expectedType("Int", lo)
		}
		a = clampSlice(int(i), n)
	}
	if !mvalue.IsNil(hi) {
		i, ok := hi.(int64)
		if !ok {
			return 0, 0, vm.expectedType("Int", hi)
		}
		b = clampSlice(int(i), n)
	}
	if a > b {
		a = b
	}
	return a, b, nil
}

func clampSlice(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
