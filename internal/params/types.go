package params

import (
	"fmt"
	"strings"
)

// Type is the ParameterType tag. Values match rcl_interfaces/msg/ParameterType.
type Type uint8

const (
	TypeNotSet Type = iota
	TypeBool
	TypeInteger
	TypeDouble
	TypeString
	TypeByteArray
	TypeBoolArray
	TypeIntegerArray
	TypeDoubleArray
	TypeStringArray
)

var typeNames = [...]string{
	TypeNotSet:       "not_set",
	TypeBool:         "bool",
	TypeInteger:      "integer",
	TypeDouble:       "double",
	TypeString:       "string",
	TypeByteArray:    "byte_array",
	TypeBoolArray:    "bool_array",
	TypeIntegerArray: "integer_array",
	TypeDoubleArray:  "double_array",
	TypeStringArray:  "string_array",
}

// Valid reports whether t is one of the defined tags.
func (t Type) Valid() bool {
	return int(t) < len(typeNames)
}

// IsArray reports whether t carries a sequence of elements.
func (t Type) IsArray() bool {
	return t >= TypeByteArray && t <= TypeStringArray
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return typeNames[t]
}

// ParseType maps a type name (as printed by String) back to its tag.
// "int", "float", "double[]" style aliases are accepted for config files.
func ParseType(raw string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "int", "int64":
		return TypeInteger, nil
	case "float", "float64":
		return TypeDouble, nil
	case "bytes", "byte[]":
		return TypeByteArray, nil
	case "bool[]":
		return TypeBoolArray, nil
	case "int[]", "integer[]":
		return TypeIntegerArray, nil
	case "double[]", "float[]":
		return TypeDoubleArray, nil
	case "string[]":
		return TypeStringArray, nil
	}
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return TypeNotSet, fmt.Errorf("%w: %q", ErrUnknownType, raw)
}

func (t Type) integerFamily() bool {
	return t == TypeInteger || t == TypeIntegerArray
}

func (t Type) doubleFamily() bool {
	return t == TypeDouble || t == TypeDoubleArray
}
