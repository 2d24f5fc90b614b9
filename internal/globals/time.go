package globals

import (
	"time"

	"github.com/ncruces/go-strftime"

	"mtots/internal/mvalue"
)

// registerTime wires `now`/`sleep`, grounded directly on
// _examples/original_source/src/base/globals/nmods/time.rs (the original
// implementation's `time` native module exposes exactly these two
// functions), plus `strftime` which the original source has no
// equivalent of — added here as the concrete exerciser for
// github.com/ncruces/go-strftime, one of the teacher's declared but
// otherwise-unwired dependencies.
func registerTime(g *Globals) {
	g.register("now", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})

	g.register("sleep", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		secs, err := asFloat(arg0(args), g)
		if err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(secs * float64(time.Second)))
		return nil, nil
	})

	g.register("strftime", func(caller Caller, args []mvalue.Value, kwargs *mvalue.Map) (mvalue.Value, error) {
		if len(args) < 2 {
			return nil, mvalue.NewException(g.Exceptions.TypeError, []mvalue.Value{"strftime(format, epochSeconds) requires 2 arguments"})
		}
		format, ok := args[0].(string)
		if !ok {
			return nil, mvalue.NewException(g.Exceptions.ExpectedType, []mvalue.Value{"String", mvalue.TypeName(args[0])})
		}
		secs, err := asFloat(args[1], g)
		if err != nil {
			return nil, err
		}
		t := time.Unix(0, int64(secs*1e9)).UTC()
		return strftime.Format(format, t), nil
	})
}

func asFloat(v mvalue.Value, g *Globals) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, mvalue.NewException(g.Exceptions.ExpectedType, []mvalue.Value{"Int or Float", mvalue.TypeName(v)})
	}
}
