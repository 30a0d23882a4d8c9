package params

import "math"

// CheckSet applies the descriptor rules to an incoming value in order:
// read-only, type locking, then range/step. A nil result means the value
// may be handed to the Provider's setter.
func CheckSet(desc Descriptor, v Value) error {
	if desc.ReadOnly {
		return ErrReadOnly
	}
	if !desc.DynamicTyping && v.Type != desc.Type {
		return ErrTypeMismatch
	}
	return CheckRange(desc, v)
}

// CheckRange enforces the descriptor range on v (every element for
// arrays). A declared range bounds any numeric value, so a double sent to
// a dynamically typed integer parameter is compared against the integer
// range and vice versa. Non-numeric and deferred values are not inspected.
func CheckRange(desc Descriptor, v Value) error {
	if !v.Type.integerFamily() && !v.Type.doubleFamily() {
		return nil
	}
	var ok bool
	switch {
	case desc.IntRange != nil:
		r := *desc.IntRange
		ok = eachNumber(v, r.Contains, func(x float64) bool { return intRangeContains(r, x) })
	case desc.FloatRange != nil:
		r := *desc.FloatRange
		ok = eachNumber(v, func(x int64) bool { return r.Contains(float64(x)) }, r.Contains)
	default:
		return nil
	}
	if !ok {
		return ErrOutOfRange
	}
	return nil
}

func eachNumber(v Value, ints func(int64) bool, doubles func(float64) bool) bool {
	switch v.Type {
	case TypeInteger:
		return ints(v.Int)
	case TypeDouble:
		return doubles(v.Double)
	case TypeIntegerArray:
		for _, x := range v.Ints {
			if !ints(x) {
				return false
			}
		}
	case TypeDoubleArray:
		for _, x := range v.Doubles {
			if !doubles(x) {
				return false
			}
		}
	}
	return true
}

// intRangeContains checks a double against an integer range. With a step
// the double must be a whole number on the grid.
func intRangeContains(r IntegerRange, x float64) bool {
	if math.IsNaN(x) || x < float64(r.Min) || x > float64(r.Max) {
		return false
	}
	if r.Step <= 0 || x == float64(r.Max) {
		return true
	}
	if x != math.Trunc(x) {
		return false
	}
	return r.Contains(int64(x))
}
