package vm

import (
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// nativeBoundMethod is a Go closure already bound to its receiver,
// pushed by OpLoadMethod when the receiver is one of the built-in
// container variants rather than a user-defined class instance. Method
// names are grounded on the original implementation's per-type native
// classes (_examples/original_source/src/base/globals/nclss/{mlist,mmap,
// mset}.rs): push/pop/len for MutableList, get/has_key/len for
// MutableMap, add/has/len for MutableSet.
type nativeBoundMethod struct {
	name string
	fn   func(args []mvalue.Value) (mvalue.Value, error)
}

func (m *nativeBoundMethod) ClassOf() *mvalue.Class { return boundMethodClass }

// lookupNativeMethod returns the bound native method named `name` on
// receiver self, or ok=false if self's variant has no such method (the
// caller then tries the general attribute/class path, and ultimately
// raises InstanceAttributeError/AttributeError if nothing matches).
func (vm *VM) lookupNativeMethod(self mvalue.Value, name symbol.Symbol) (mvalue.Value, bool) {
	n := name.String()
	switch x := self.(type) {
	case *mvalue.MutableList:
		switch n {
		case "len":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(len(x.Items)), nil
			}), true
		case "push":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				x.Append(arg(args, 0))
				return nil, nil
			}), true
		case "pop":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				v, ok := x.Pop()
				if !ok {
					return nil, mvalue.NewException(vm.g.Exceptions.PopFromEmpty, nil)
				}
				return v, nil
			}), true
		}
	case *mvalue.List:
		if n == "len" {
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(len(x.Items)), nil
			}), true
		}
	case *mvalue.MutableMap:
		switch n {
		case "len":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(x.Len()), nil
			}), true
		case "get":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				v, ok, err := x.Get(arg(args, 0))
				if err != nil {
					return nil, vm.unhashable(err)
				}
				if ok {
					return v, nil
				}
				if len(args) > 1 {
					return args[1], nil
				}
				return nil, mvalue.NewException(vm.g.Exceptions.KeyError, nil)
			}), true
		case "has_key":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				_, ok, err := x.Get(arg(args, 0))
				if err != nil {
					return nil, vm.unhashable(err)
				}
				return ok, nil
			}), true
		}
	case *mvalue.Map:
		switch n {
		case "len":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(x.Len()), nil
			}), true
		case "get":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				v, ok, err := x.Get(arg(args, 0))
				if err != nil {
					return nil, vm.unhashable(err)
				}
				if ok {
					return v, nil
				}
				if len(args) > 1 {
					return args[1], nil
				}
				return nil, mvalue.NewException(vm.g.Exceptions.KeyError, nil)
			}), true
		}
	case *mvalue.MutableSet:
		switch n {
		case "len":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(x.Len()), nil
			}), true
		case "add":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				if err := x.Add(arg(args, 0)); err != nil {
					return nil, vm.unhashable(err)
				}
				return nil, nil
			}), true
		case "has":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				ok, err := x.Contains(arg(args, 0))
				if err != nil {
					return nil, vm.unhashable(err)
				}
				return ok, nil
			}), true
		}
	case *mvalue.Set:
		switch n {
		case "len":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(x.Len()), nil
			}), true
		case "has":
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				ok, err := x.Contains(arg(args, 0))
				if err != nil {
					return nil, vm.unhashable(err)
				}
				return ok, nil
			}), true
		}
	case *mvalue.MutableString:
		if n == "len" {
			return vm.nm(n, func(args []mvalue.Value) (mvalue.Value, error) {
				return int64(len(x.Value)), nil
			}), true
		}
	}
	return nil, false
}

func (vm *VM) nm(name string, fn func(args []mvalue.Value) (mvalue.Value, error)) *nativeBoundMethod {
	return &nativeBoundMethod{name: name, fn: fn}
}

func arg(args []mvalue.Value, i int) mvalue.Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func (vm *VM) unhashable(err error) error {
	if ue, ok := err.(*mvalue.UnhashableError); ok {
		return mvalue.NewException(vm.g.Exceptions.HashError, []mvalue.Value{mvalue.TypeName(ue.Value)})
	}
	return err
}
