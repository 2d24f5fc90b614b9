package globals

import "mtots/internal/mvalue"

// registerContainers wires the only way script code can build a Set
// value: internal/parser's grammar has no Set-display literal syntax
// (confirmed by grep over internal/parser/ast.go), so `set`/
// `mutable_set` are the sole constructors, mirroring how the original
// implementation's nclss/mset.rs exposes Set construction as a function
// rather than literal syntax.
func registerContainers(g *Globals) {
	g.register("set", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		items, err := itemsOf(args, g)
		if err != nil {
			return nil, err
		}
		s, serr := mvalue.NewSet(mvalue.DefaultEqHasher{}, items)
		if serr != nil {
			return nil, unhashableException(serr, g)
		}
		return s, nil
	})

	g.register("mutable_set", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		items, err := itemsOf(args, g)
		if err != nil {
			return nil, err
		}
		s, serr := mvalue.NewMutableSet(mvalue.DefaultEqHasher{}, items)
		if serr != nil {
			return nil, unhashableException(serr, g)
		}
		return s, nil
	})

	g.register("dict", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		entries, err := pairsOf(args, g)
		if err != nil {
			return nil, err
		}
		keys := make([]mvalue.Value, len(entries))
		vals := make([]mvalue.Value, len(entries))
		for i, e := range entries {
			keys[i], vals[i] = e[0], e[1]
		}
		m, merr := mvalue.NewMap(mvalue.DefaultEqHasher{}, keys, vals)
		if merr != nil {
			return nil, unhashableException(merr, g)
		}
		return m, nil
	})
}

func itemsOf(args []mvalue.Value, g *Globals) ([]mvalue.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	switch x := args[0].(type) {
	case *mvalue.List:
		return x.Items, nil
	case *mvalue.MutableList:
		return x.Items, nil
	default:
		return nil, mvalue.NewException(g.Exceptions.ExpectedType, []mvalue.Value{"List", mvalue.TypeName(args[0])})
	}
}

func pairsOf(args []mvalue.Value, g *Globals) ([][2]mvalue.Value, error) {
	items, err := itemsOf(args, g)
	if err != nil {
		return nil, err
	}
	out := make([][2]mvalue.Value, len(items))
	for i, it := range items {
		pair, ok := it.(*mvalue.List)
		if !ok || len(pair.Items) != 2 {
			return nil, mvalue.NewException(g.Exceptions.TypeError, []mvalue.Value{"dict() requires a List of 2-element [key, value] Lists"})
		}
		out[i] = [2]mvalue.Value{pair.Items[0], pair.Items[1]}
	}
	return out, nil
}

func unhashableException(err error, g *Globals) error {
	if ue, ok := err.(*mvalue.UnhashableError); ok {
		return mvalue.NewException(g.Exceptions.HashError, []mvalue.Value{mvalue.TypeName(ue.Value)})
	}
	return err
}
