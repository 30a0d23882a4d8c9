package params

import (
	"fmt"
	"math"
)

// FloatingPointRange bounds double and double-array parameters.
type FloatingPointRange struct {
	Min  float64
	Max  float64
	Step float64
}

// IntegerRange bounds integer and integer-array parameters.
type IntegerRange struct {
	Min  int64
	Max  int64
	Step int64
}

// stepTolerance is how far (in steps) a double may sit from the grid.
const stepTolerance = 1e-9

// Contains reports whether x lies in [Min, Max] and, when Step > 0, on the
// grid Min + k*Step. Max itself is always accepted.
func (r FloatingPointRange) Contains(x float64) bool {
	if math.IsNaN(x) || x < r.Min || x > r.Max {
		return false
	}
	if r.Step <= 0 || x == r.Max {
		return true
	}
	k := (x - r.Min) / r.Step
	return math.Abs(k-math.Round(k)) <= stepTolerance*math.Max(1, math.Abs(k))
}

// Contains reports whether x lies in [Min, Max] and, when Step > 0, on the
// grid Min + k*Step. Max itself is always accepted.
func (r IntegerRange) Contains(x int64) bool {
	if x < r.Min || x > r.Max {
		return false
	}
	if r.Step <= 0 || x == r.Max {
		return true
	}
	return (uint64(x)-uint64(r.Min))%uint64(r.Step) == 0
}

// Descriptor is the parameter metadata returned by describe and used to
// validate every Set. At most one of FloatRange and IntRange is set.
type Descriptor struct {
	Name                  string
	Type                  Type
	Description           string
	AdditionalConstraints string
	ReadOnly              bool
	DynamicTyping         bool
	FloatRange            *FloatingPointRange
	IntRange              *IntegerRange
}

// Validate checks the structural descriptor invariants.
func (d Descriptor) Validate() error {
	if !ValidName(d.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: %s: tag %d", ErrInvalidDescriptor, d.Name, uint8(d.Type))
	}
	if d.FloatRange != nil && d.IntRange != nil {
		return fmt.Errorf("%w: %s: both float and integer range", ErrInvalidDescriptor, d.Name)
	}
	if r := d.FloatRange; r != nil {
		if !d.Type.doubleFamily() && !d.DynamicTyping {
			return fmt.Errorf("%w: %s: float range on %s", ErrInvalidDescriptor, d.Name, d.Type)
		}
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max || r.Step < 0 {
			return fmt.Errorf("%w: %s: bad float range [%g, %g] step %g", ErrInvalidDescriptor, d.Name, r.Min, r.Max, r.Step)
		}
	}
	if r := d.IntRange; r != nil {
		if !d.Type.integerFamily() && !d.DynamicTyping {
			return fmt.Errorf("%w: %s: integer range on %s", ErrInvalidDescriptor, d.Name, d.Type)
		}
		if r.Min > r.Max || r.Step < 0 {
			return fmt.Errorf("%w: %s: bad integer range [%d, %d] step %d", ErrInvalidDescriptor, d.Name, r.Min, r.Max, r.Step)
		}
	}
	return nil
}
