package vm

import (
	"fmt"

	"mtots/internal/mvalue"
)

// nativeIterator is what OpGetIter pushes onto the operand stack: a
// closure-backed cursor over one of the built-in iterable variants, or
// over a Generator's yielded values. It never escapes to user-visible
// storage (no variable can hold one directly), so it does not need a
// Class of its own the way Function/Module do.
type nativeIterator struct {
	next func() (mvalue.Value, bool, error)
}

// newIterator builds the cursor for OpGetIter's operand. err is non-nil
// only for a value with no iteration protocol, and is then a TypeError.
func (vm *VM) newIterator(v mvalue.Value) (*nativeIterator, error) {
	switch x := v.(type) {
	case *mvalue.List:
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if i >= len(x.Items) {
				return nil, false, nil
			}
			item := x.Items[i]
			i++
			return item, true, nil
		}}, nil

	case *mvalue.MutableList:
		i := 0
		version := x.Version()
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if x.Version() != version {
				return nil, false, vm.mutatedDuringIteration()
			}
			if i >= len(x.Items) {
				return nil, false, nil
			}
			item := x.Items[i]
			i++
			return item, true, nil
		}}, nil

	case *mvalue.Set:
		items := x.Items()
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if i >= len(items) {
				return nil, false, nil
			}
			item := items[i]
			i++
			return item, true, nil
		}}, nil

	case *mvalue.MutableSet:
		items := x.Items()
		version := x.Version()
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if x.Version() != version {
				return nil, false, vm.mutatedDuringIteration()
			}
			if i >= len(items) {
				return nil, false, nil
			}
			item := items[i]
			i++
			return item, true, nil
		}}, nil

	case *mvalue.Map:
		entries := x.Entries()
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if i >= len(entries) {
				return nil, false, nil
			}
			k := entries[i].Key
			i++
			return k, true, nil
		}}, nil

	case *mvalue.MutableMap:
		entries := x.Entries()
		version := x.Version()
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if x.Version() != version {
				return nil, false, vm.mutatedDuringIteration()
			}
			if i >= len(entries) {
				return nil, false, nil
			}
			k := entries[i].Key
			i++
			return k, true, nil
		}}, nil

	case *mvalue.Table:
		keys := x.Keys()
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if i >= len(keys) {
				return nil, false, nil
			}
			v, _ := x.Get(keys[i])
			i++
			return v, true, nil
		}}, nil

	case string:
		runes := []rune(x)
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if i >= len(runes) {
				return nil, false, nil
			}
			r := string(runes[i])
			i++
			return r, true, nil
		}}, nil

	case mvalue.Bytes:
		i := 0
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			if i >= len(x) {
				return nil, false, nil
			}
			b := int64(x[i])
			i++
			return b, true, nil
		}}, nil

	case *Generator:
		return &nativeIterator{next: func() (mvalue.Value, bool, error) {
			val, done, err := x.Resume(vm, nil)
			if err != nil {
				return nil, false, err
			}
			if done {
				return nil, false, nil
			}
			return val, true, nil
		}}, nil

	default:
		return nil, vm.typeError(fmt.Sprintf("%s is not iterable", mvalue.TypeName(v)))
	}
}

func (vm *VM) mutatedDuringIteration() error {
	return mvalue.NewException(vm.g.Exceptions.RuntimeError, []mvalue.Value{"container modified during iteration"})
}
