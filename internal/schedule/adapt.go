package schedule

import (
	"github.com/shopspring/decimal"

	"loom/internal/ir"
	"loom/internal/types"
)

// coerceValue normalizes a committed value to the edge's consumer-side type,
// applying the whitelist adapters the validator accepted: numeric widening,
// decimal promotion, option/result wrapping and element-level lifts. Values
// already in the target shape pass through untouched.
func coerceValue(v ir.Value, t *types.TypeSpec) ir.Value {
	if t == nil {
		return v
	}
	switch t.Kind {
	case types.KindScalar:
		return coerceScalar(v, t.Scalar)
	case types.KindOption:
		if v.Kind == ir.KindOption {
			if v.Inner == nil {
				return v
			}
			return ir.SomeValue(coerceValue(*v.Inner, t.Elem))
		}
		return ir.SomeValue(coerceValue(v, t.Elem))
	case types.KindResult:
		if v.Kind == ir.KindResult {
			if v.Inner == nil {
				return v
			}
			if v.OK {
				return ir.OkValue(coerceValue(*v.Inner, t.Ok))
			}
			return ir.ErrValue(coerceValue(*v.Inner, t.Err))
		}
		return ir.OkValue(coerceValue(v, t.Ok))
	case types.KindStream, types.KindEvent:
		// Elements cross one at a time; the lift acts on the element type.
		return coerceValue(v, t.Elem)
	case types.KindList:
		if v.Kind != ir.KindList {
			return v
		}
		elems := make([]ir.Value, len(v.Elems))
		for i, el := range v.Elems {
			elems[i] = coerceValue(el, t.Elem)
		}
		return ir.ListValue(elems...)
	default:
		return v
	}
}

func coerceScalar(v ir.Value, s types.Scalar) ir.Value {
	switch s {
	case types.ScalarI64:
		if v.Kind == ir.KindUint {
			return ir.IntValue(int64(v.Uint)) //nolint:gosec
		}
		return v
	case types.ScalarDecimal:
		switch v.Kind {
		case ir.KindInt:
			return ir.DecimalValue(decimal.NewFromInt(v.Int))
		case ir.KindUint:
			return ir.DecimalValue(decimal.NewFromUint64(v.Uint))
		default:
			return v
		}
	default:
		return v
	}
}
