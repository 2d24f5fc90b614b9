package vm

import (
	"math"

	"mtots/internal/bytecode"
	"mtots/internal/mvalue"
)

// binaryArith implements the five arithmetic opcodes plus power,
// widening Int to Float whenever either operand is a Float (§4.4) and
// special-casing `+` to also mean string/list concatenation, matching
// emitBinop's emission (internal/compiler/compiler.go): `>`/`<=` are
// synthesized from `<`/`RotTwo` at compile time and never reach here,
// so only Add/Sub/Mul/Div/TruncDiv/Rem/Power need a case.
func (vm *VM) binaryArith(op bytecode.OpCode, a, b mvalue.Value) (mvalue.Value, error) {
	if op == bytecode.OpBinaryAdd {
		if v, ok := tryConcat(a, b); ok {
			return v, nil
		}
	}
	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		switch op {
		case bytecode.OpBinaryAdd:
			return ai + bi, nil
		case bytecode.OpBinarySub:
			return ai - bi, nil
		case bytecode.OpBinaryMul:
			return ai * bi, nil
		case bytecode.OpBinaryTruncDiv:
			if bi == 0 {
				return nil, vm.typeError("division by zero")
			}
			return ai / bi, nil
		case bytecode.OpBinaryRem:
			if bi == 0 {
				return nil, vm.typeError("division by zero")
			}
			return ai % bi, nil
		case bytecode.OpBinaryDiv:
			return float64(ai) / float64(bi), nil
		case bytecode.OpBinaryPower:
			return int64(math.Pow(float64(ai), float64(bi))), nil
		}
	}
	af, aOK := asFloat(a)
	bf, bOK := asFloat(b)
	if !aOK || !bOK {
		return nil, vm.operandTypeError(opSymbol(op), a, b)
	}
	switch op {
	case bytecode.OpBinaryAdd:
		return af + bf, nil
	case bytecode.OpBinarySub:
		return af - bf, nil
	case bytecode.OpBinaryMul:
		return af * bf, nil
	case bytecode.OpBinaryDiv:
		return af / bf, nil
	case bytecode.OpBinaryTruncDiv:
		return math.Trunc(af / bf), nil
	case bytecode.OpBinaryRem:
		return math.Mod(af, bf), nil
	case bytecode.OpBinaryPower:
		return math.Pow(af, bf), nil
	}
	return nil, vm.operandTypeError(opSymbol(op), a, b)
}

func tryConcat(a, b mvalue.Value) (mvalue.Value, bool) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return x + y, true
		}
	case *mvalue.List:
		if y, ok := b.(*mvalue.List); ok {
			out := make([]mvalue.Value, 0, len(x.Items)+len(y.Items))
			out = append(out, x.Items...)
			out = append(out, y.Items...)
			return mvalue.NewList(out), true
		}
	case mvalue.Bytes:
		if y, ok := b.(mvalue.Bytes); ok {
			out := make(mvalue.Bytes, 0, len(x)+len(y))
			out = append(out, x...)
			out = append(out, y...)
			return out, true
		}
	}
	return nil, false
}

func asFloat(v mvalue.Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func opSymbol(op bytecode.OpCode) string {
	switch op {
	case bytecode.OpBinaryAdd:
		return "+"
	case bytecode.OpBinarySub:
		return "-"
	case bytecode.OpBinaryMul:
		return "*"
	case bytecode.OpBinaryDiv:
		return "/"
	case bytecode.OpBinaryTruncDiv:
		return "//"
	case bytecode.OpBinaryRem:
		return "%"
	case bytecode.OpBinaryPower:
		return "**"
	case bytecode.OpBinaryLt:
		return "<"
	default:
		return op.String()
	}
}

// binaryLt implements `<`; `>` and `<=` are compile-time rewrites of
// `<` (emitBinop swaps operands for `>`, and synthesizes `<=` as
// `not (b < a)` via RotTwo+Not), so this is the only ordering comparison
// the step loop itself needs to handle.
func (vm *VM) binaryLt(a, b mvalue.Value) (mvalue.Value, error) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x < y, nil
		case float64:
			return float64(x) < y, nil
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return x < float64(y), nil
		case float64:
			return x < y, nil
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y, nil
		}
	}
	return nil, vm.operandTypeError("<", a, b)
}

func (vm *VM) unaryNeg(v mvalue.Value) (mvalue.Value, error) {
	switch x := v.(type) {
	case int64:
		return -x, nil
	case float64:
		return -x, nil
	default:
		return nil, vm.typeError("unary - not supported on " + mvalue.TypeName(v))
	}
}
