package globals

import (
	"fmt"

	"mtots/internal/mvalue"
)

// registerCore wires the small set of always-available builtins every
// script sees without an import: print/repr/len/type, the map/filter/
// reduce higher-order functions (grounded on the original
// implementation's src/base/globals/nfuncs.rs, which registers exactly
// this set as free functions rather than methods), and assert.
func registerCore(g *Globals) {
	g.register("print", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		for i, a := range args {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(displayString(a))
		}
		fmt.Println()
		return nil, nil
	})

	g.register("repr", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return reprString(arg0(args)), nil
	})

	g.register("len", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return lengthOf(arg0(args), g)
	})

	g.register("type", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return mvalue.TypeName(arg0(args)), nil
	})

	g.register("assert", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		if !mvalue.Truthy(arg0(args)) {
			msg := "assertion failed"
			if len(args) > 1 {
				msg = displayString(args[1])
			}
			return nil, mvalue.NewException(g.Exceptions.AssertionError, []mvalue.Value{msg})
		}
		return nil, nil
	})

	g.register("map", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		fn := arg0(args)
		items, err := asItems(args, 1, g)
		if err != nil {
			return nil, err
		}
		out := make([]mvalue.Value, len(items))
		for i, it := range items {
			v, err := caller.Call(fn, []mvalue.Value{it})
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return mvalue.NewList(out), nil
	})

	g.register("filter", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		fn := arg0(args)
		items, err := asItems(args, 1, g)
		if err != nil {
			return nil, err
		}
		out := make([]mvalue.Value, 0, len(items))
		for _, it := range items {
			v, err := caller.Call(fn, []mvalue.Value{it})
			if err != nil {
				return nil, err
			}
			if mvalue.Truthy(v) {
				out = append(out, it)
			}
		}
		return mvalue.NewList(out), nil
	})

	g.register("reduce", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		fn := arg0(args)
		items, err := asItems(args, 1, g)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			if len(args) > 2 {
				return args[2], nil
			}
			return nil, mvalue.NewException(g.Exceptions.ValueKindError, []mvalue.Value{"non-empty iterable", "empty"})
		}
		acc := items[0]
		rest := items[1:]
		if len(args) > 2 {
			acc = args[2]
			rest = items
		}
		for _, it := range rest {
			v, err := caller.Call(fn, []mvalue.Value{acc, it})
			if err != nil {
				return nil, err
			}
			acc = v
		}
		return acc, nil
	})
}

func arg0(args []mvalue.Value) mvalue.Value {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func asItems(args []mvalue.Value, idx int, g *Globals) ([]mvalue.Value, error) {
	if idx >= len(args) {
		return nil, mvalue.NewException(g.Exceptions.TypeError, []mvalue.Value{"missing iterable argument"})
	}
	switch x := args[idx].(type) {
	case *mvalue.List:
		return x.Items, nil
	case *mvalue.MutableList:
		return x.Items, nil
	default:
		return nil, mvalue.NewException(g.Exceptions.ExpectedType, []mvalue.Value{"List", mvalue.TypeName(args[idx])})
	}
}

func lengthOf(v mvalue.Value, g *Globals) (mvalue.Value, error) {
	switch x := v.(type) {
	case string:
		return int64(len([]rune(x))), nil
	case mvalue.Bytes:
		return int64(len(x)), nil
	case *mvalue.MutableString:
		return int64(len([]rune(x.Value))), nil
	case *mvalue.List:
		return int64(len(x.Items)), nil
	case *mvalue.MutableList:
		return int64(len(x.Items)), nil
	case *mvalue.Map:
		return int64(x.Len()), nil
	case *mvalue.MutableMap:
		return int64(x.Len()), nil
	case *mvalue.Set:
		return int64(x.Len()), nil
	case *mvalue.MutableSet:
		return int64(x.Len()), nil
	case *mvalue.Table:
		return int64(x.Len()), nil
	default:
		return nil, mvalue.NewException(g.Exceptions.TypeError, []mvalue.Value{"object of type " + mvalue.TypeName(v) + " has no len()"})
	}
}

func displayString(v mvalue.Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case *mvalue.MutableString:
		return x.Value
	default:
		return reprString(v)
	}
}

func reprString(v mvalue.Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case string:
		return fmt.Sprintf("%q", x)
	case *mvalue.Exception:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
