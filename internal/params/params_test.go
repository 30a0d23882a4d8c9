package params

import (
	"errors"
	"math"
	"testing"

	"github.com/danmuck/edgeparams/internal/cdr"
)

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"bool":          TypeBool,
		"Integer":       TypeInteger,
		"int":           TypeInteger,
		"float":         TypeDouble,
		"string":        TypeString,
		"bytes":         TypeByteArray,
		"double[]":      TypeDoubleArray,
		" string_array": TypeStringArray,
	}
	for raw, want := range cases {
		got, err := ParseType(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q = %s want %s", raw, got, want)
		}
	}
	if _, err := ParseType("quaternion"); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestValueValidate(t *testing.T) {
	noop := ElementWriterFunc(func(*cdr.Writer, uint32) error { return nil })
	bad := []Value{
		{Type: 10},
		DeferredValue(TypeString, 1, noop),
		{Type: TypeIntegerArray, Ints: []int64{1}, Deferred: noop, Length: 1},
		{Type: TypeBool, Length: 2},
	}
	for _, v := range bad {
		if err := v.Validate(); err == nil {
			t.Fatalf("expected %#v to be invalid", v)
		}
	}
	if err := DeferredValue(TypeStringArray, 4, noop).Validate(); err != nil {
		t.Fatalf("deferred array: %v", err)
	}
}

func TestValueCloneOwnsStorage(t *testing.T) {
	src := []int64{1, 2, 3}
	v := IntArrayValue(src).Clone()
	src[0] = 99
	if v.Ints[0] != 1 {
		t.Fatalf("clone aliases caller slice")
	}
	if v.Len() != 3 {
		t.Fatalf("len=%d", v.Len())
	}
}

func TestValidName(t *testing.T) {
	for _, ok := range []string{"a", "/a", "a/b", "motor/left/gain"} {
		if !ValidName(ok) {
			t.Fatalf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "/", "a//b", "a/", "has space"} {
		if ValidName(bad) {
			t.Fatalf("%q should be invalid", bad)
		}
	}
}

func TestCheckSetOrder(t *testing.T) {
	desc := Descriptor{Name: "rate", Type: TypeInteger, ReadOnly: true, IntRange: &IntegerRange{Min: 0, Max: 10}}
	if err := CheckSet(desc, StringValue("x")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("read-only must win, got %v", err)
	}
	desc.ReadOnly = false
	if err := CheckSet(desc, StringValue("x")); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if err := CheckSet(desc, IntValue(11)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if err := CheckSet(desc, IntValue(10)); err != nil {
		t.Fatalf("in range: %v", err)
	}
	desc.DynamicTyping = true
	if err := CheckSet(desc, StringValue("x")); err != nil {
		t.Fatalf("dynamic typing should accept retag: %v", err)
	}
}

func TestCheckRangeArrays(t *testing.T) {
	desc := Descriptor{Name: "weights", Type: TypeDoubleArray, FloatRange: &FloatingPointRange{Min: 0, Max: 1, Step: 0.25}}
	if err := CheckRange(desc, DoubleArrayValue([]float64{0, 0.5, 1})); err != nil {
		t.Fatalf("on grid: %v", err)
	}
	if err := CheckRange(desc, DoubleArrayValue([]float64{0, 0.3})); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("off grid: %v", err)
	}
	idesc := Descriptor{Name: "ids", Type: TypeIntegerArray, IntRange: &IntegerRange{Min: -4, Max: 4, Step: 2}}
	if err := CheckRange(idesc, IntArrayValue([]int64{-4, 0, 4})); err != nil {
		t.Fatalf("int grid: %v", err)
	}
	if err := CheckRange(idesc, IntArrayValue([]int64{1})); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("int off grid: %v", err)
	}
}

func TestCheckRangeAcrossNumericFamilies(t *testing.T) {
	desc := Descriptor{Name: "x", Type: TypeInteger, DynamicTyping: true, IntRange: &IntegerRange{Min: 0, Max: 10, Step: 2}}
	cases := []struct {
		v    Value
		want error
	}{
		{DoubleValue(1000), ErrOutOfRange},
		{DoubleValue(4), nil},
		{DoubleValue(4.5), ErrOutOfRange},
		{DoubleValue(3), ErrOutOfRange},
		{DoubleArrayValue([]float64{2, 12}), ErrOutOfRange},
		{StringValue("free text"), nil},
	}
	for _, tc := range cases {
		if err := CheckSet(desc, tc.v); !errors.Is(err, tc.want) {
			t.Fatalf("%#v: got %v want %v", tc.v, err, tc.want)
		}
	}

	fdesc := Descriptor{Name: "gain", Type: TypeDouble, DynamicTyping: true, FloatRange: &FloatingPointRange{Min: 0, Max: 1}}
	if err := CheckSet(fdesc, IntValue(5)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("integer above double range: %v", err)
	}
	if err := CheckSet(fdesc, IntArrayValue([]int64{0, 1})); err != nil {
		t.Fatalf("integers inside double range: %v", err)
	}
}

func TestRangeContains(t *testing.T) {
	fr := FloatingPointRange{Min: 0, Max: 1, Step: 0.3}
	if !fr.Contains(1) {
		t.Fatalf("max is always accepted")
	}
	if !fr.Contains(0.6) {
		t.Fatalf("0.6 is on the 0.3 grid")
	}
	if fr.Contains(math.NaN()) {
		t.Fatalf("NaN accepted")
	}
	ir := IntegerRange{Min: math.MinInt64, Max: math.MaxInt64, Step: 3}
	if !ir.Contains(math.MinInt64 + 3) {
		t.Fatalf("wide range step")
	}
	if !ir.Contains(math.MaxInt64) {
		t.Fatalf("max is always accepted")
	}
}

func TestDescriptorValidate(t *testing.T) {
	bad := []Descriptor{
		{Name: "", Type: TypeBool},
		{Name: "x", Type: 40},
		{Name: "x", Type: TypeDouble, FloatRange: &FloatingPointRange{Max: 1}, IntRange: &IntegerRange{Max: 1}},
		{Name: "x", Type: TypeString, IntRange: &IntegerRange{Max: 1}},
		{Name: "x", Type: TypeInteger, IntRange: &IntegerRange{Min: 2, Max: 1}},
		{Name: "x", Type: TypeDouble, FloatRange: &FloatingPointRange{Max: 1, Step: -1}},
	}
	for _, d := range bad {
		if err := d.Validate(); err == nil {
			t.Fatalf("expected %+v to be invalid", d)
		}
	}
	ok := Descriptor{Name: "x", Type: TypeString, DynamicTyping: true, IntRange: &IntegerRange{Max: 1}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("dynamic descriptor: %v", err)
	}
}

func TestBatchCapacity(t *testing.T) {
	var b Batch[string]
	for i := 0; i < MaxRequestStrings; i++ {
		if err := b.Append("n"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := b.Append("overflow"); !errors.Is(err, ErrBatchFull) {
		t.Fatalf("expected ErrBatchFull, got %v", err)
	}
	if b.Len() != MaxRequestStrings || len(b.Items()) != MaxRequestStrings {
		t.Fatalf("len=%d", b.Len())
	}
	b.Reset()
	if b.Len() != 0 || b.items[0] != "" {
		t.Fatalf("reset left state behind")
	}
}
