package params

import (
	"fmt"
	"strings"

	"github.com/danmuck/edgeparams/internal/cdr"
)

// ElementWriter streams array element n straight into the reply at encode
// time. It must write exactly one element of the CDR type matching the
// value's tag (uint8, bool, int64, double or string).
type ElementWriter interface {
	WriteElement(w *cdr.Writer, n uint32) error
}

// ElementWriterFunc adapts a function to ElementWriter.
type ElementWriterFunc func(w *cdr.Writer, n uint32) error

func (f ElementWriterFunc) WriteElement(w *cdr.Writer, n uint32) error {
	return f(w, n)
}

// Value is the ParameterValue tagged union. Exactly one inline field is
// meaningful for Type, or, for array tags only, Deferred produces the
// elements at encode time and Length is their count. Inline data and a
// deferred writer are mutually exclusive. Array slices are borrowed from
// whoever built the value.
type Value struct {
	Type Type

	Bool    bool
	Int     int64
	Double  float64
	String  string
	Bytes   []byte
	Bools   []bool
	Ints    []int64
	Doubles []float64
	Strings []string

	Deferred ElementWriter
	Length   uint32
}

func BoolValue(v bool) Value { return Value{Type: TypeBool, Bool: v} }
func IntValue(v int64) Value { return Value{Type: TypeInteger, Int: v} }
func DoubleValue(v float64) Value { return Value{Type: TypeDouble, Double: v} }
func StringValue(v string) Value { return Value{Type: TypeString, String: v} }

func ByteArrayValue(v []byte) Value { return Value{Type: TypeByteArray, Bytes: v} }
func BoolArrayValue(v []bool) Value { return Value{Type: TypeBoolArray, Bools: v} }
func IntArrayValue(v []int64) Value { return Value{Type: TypeIntegerArray, Ints: v} }
func DoubleArrayValue(v []float64) Value { return Value{Type: TypeDoubleArray, Doubles: v} }
func StringArrayValue(v []string) Value { return Value{Type: TypeStringArray, Strings: v} }

// DeferredValue builds an array value whose n elements are produced by w.
func DeferredValue(t Type, n uint32, w ElementWriter) Value {
	return Value{Type: t, Deferred: w, Length: n}
}

// IsDeferred reports whether elements come from a deferred writer.
func (v Value) IsDeferred() bool {
	return v.Deferred != nil
}

// Len is 1 for scalars, 0 for not-set, and the element count for arrays.
func (v Value) Len() uint32 {
	if v.Deferred != nil {
		return v.Length
	}
	switch v.Type {
	case TypeNotSet:
		return 0
	case TypeByteArray:
		return uint32(len(v.Bytes))
	case TypeBoolArray:
		return uint32(len(v.Bools))
	case TypeIntegerArray:
		return uint32(len(v.Ints))
	case TypeDoubleArray:
		return uint32(len(v.Doubles))
	case TypeStringArray:
		return uint32(len(v.Strings))
	default:
		return 1
	}
}

func (v Value) hasInlineArray() bool {
	return v.Bytes != nil || v.Bools != nil || v.Ints != nil || v.Doubles != nil || v.Strings != nil
}

// Validate checks the union invariants.
func (v Value) Validate() error {
	if !v.Type.Valid() {
		return fmt.Errorf("%w: tag %d", ErrUnknownType, uint8(v.Type))
	}
	if v.Deferred != nil {
		if !v.Type.IsArray() {
			return fmt.Errorf("%w: deferred writer on scalar %s", ErrInvalidValue, v.Type)
		}
		if v.hasInlineArray() {
			return fmt.Errorf("%w: deferred writer with inline data", ErrInvalidValue)
		}
		return nil
	}
	if !v.Type.IsArray() && v.Length > 1 {
		return fmt.Errorf("%w: length %d on scalar %s", ErrInvalidValue, v.Length, v.Type)
	}
	return nil
}

// Clone returns a copy that owns its array storage. Deferred values are
// returned unchanged.
func (v Value) Clone() Value {
	if v.Deferred != nil {
		return v
	}
	out := Value{Type: v.Type}
	switch v.Type {
	case TypeBool:
		out.Bool = v.Bool
	case TypeInteger:
		out.Int = v.Int
	case TypeDouble:
		out.Double = v.Double
	case TypeString:
		out.String = v.String
	case TypeByteArray:
		out.Bytes = append([]byte(nil), v.Bytes...)
	case TypeBoolArray:
		out.Bools = append([]bool(nil), v.Bools...)
	case TypeIntegerArray:
		out.Ints = append([]int64(nil), v.Ints...)
	case TypeDoubleArray:
		out.Doubles = append([]float64(nil), v.Doubles...)
	case TypeStringArray:
		out.Strings = append([]string(nil), v.Strings...)
	}
	return out
}

// Equal compares tag and inline payload. Deferred values are never equal.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.Deferred != nil || o.Deferred != nil {
		return false
	}
	switch v.Type {
	case TypeNotSet:
		return true
	case TypeBool:
		return v.Bool == o.Bool
	case TypeInteger:
		return v.Int == o.Int
	case TypeDouble:
		return v.Double == o.Double
	case TypeString:
		return v.String == o.String
	case TypeByteArray:
		return equalSlices(v.Bytes, o.Bytes)
	case TypeBoolArray:
		return equalSlices(v.Bools, o.Bools)
	case TypeIntegerArray:
		return equalSlices(v.Ints, o.Ints)
	case TypeDoubleArray:
		return equalSlices(v.Doubles, o.Doubles)
	case TypeStringArray:
		return equalSlices(v.Strings, o.Strings)
	}
	return false
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Any returns the inline payload as a plain Go value, for logs and JSON.
func (v Value) Any() any {
	if v.Deferred != nil {
		return fmt.Sprintf("<deferred %s len=%d>", v.Type, v.Length)
	}
	switch v.Type {
	case TypeBool:
		return v.Bool
	case TypeInteger:
		return v.Int
	case TypeDouble:
		return v.Double
	case TypeString:
		return v.String
	case TypeByteArray:
		return v.Bytes
	case TypeBoolArray:
		return v.Bools
	case TypeIntegerArray:
		return v.Ints
	case TypeDoubleArray:
		return v.Doubles
	case TypeStringArray:
		return v.Strings
	}
	return nil
}

func (v Value) GoString() string {
	return fmt.Sprintf("%s(%v)", v.Type, v.Any())
}

// Parameter pairs a name with a value.
type Parameter struct {
	Name  string
	Value Value
}

// ValidName reports whether name is usable as a parameter path: non-empty,
// no whitespace, no empty '/'-separated segments other than a single
// leading slash.
func ValidName(name string) bool {
	name = strings.TrimPrefix(name, Separator)
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return false
	}
	for _, seg := range strings.Split(name, Separator) {
		if seg == "" {
			return false
		}
	}
	return true
}

// Separator delimits levels of the parameter hierarchy.
const Separator = "/"
