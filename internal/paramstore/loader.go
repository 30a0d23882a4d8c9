package paramstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/rs/zerolog/log"
)

var ErrInvalidDeclaration = errors.New("paramstore: invalid declaration")

// Declaration is one [[parameter]] table.
type Declaration struct {
	Descriptor params.Descriptor
	Value      params.Value
}

type declFile struct {
	Parameters []declEntry `toml:"parameter"`
}

type declEntry struct {
	Name                  string          `toml:"name"`
	Type                  string          `toml:"type"`
	Description           string          `toml:"description"`
	AdditionalConstraints string          `toml:"additional_constraints"`
	ReadOnly              bool            `toml:"read_only"`
	DynamicTyping         bool            `toml:"dynamic_typing"`
	Value                 any             `toml:"value"`
	IntegerRange          *declIntRange   `toml:"integer_range"`
	FloatRange            *declFloatRange `toml:"float_range"`
}

type declIntRange struct {
	Min  int64 `toml:"min"`
	Max  int64 `toml:"max"`
	Step int64 `toml:"step"`
}

type declFloatRange struct {
	Min  float64 `toml:"min"`
	Max  float64 `toml:"max"`
	Step float64 `toml:"step"`
}

// LoadFile decodes a declaration file. Unknown keys are rejected so typos
// do not silently drop constraints.
func LoadFile(path string) ([]Declaration, error) {
	var f declFile
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("paramstore: %s: %w", path, err)
	}
	return fromFile(f, meta)
}

// Parse decodes declarations from TOML text.
func Parse(data string) ([]Declaration, error) {
	var f declFile
	meta, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("paramstore: %w", err)
	}
	return fromFile(f, meta)
}

func fromFile(f declFile, meta toml.MetaData) ([]Declaration, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidDeclaration, strings.Join(keys, ", "))
	}
	out := make([]Declaration, 0, len(f.Parameters))
	seen := make(map[string]struct{}, len(f.Parameters))
	for i, raw := range f.Parameters {
		d, err := raw.declaration()
		if err != nil {
			return nil, fmt.Errorf("%w: parameter[%d]: %w", ErrInvalidDeclaration, i, err)
		}
		if _, dup := seen[d.Descriptor.Name]; dup {
			return nil, fmt.Errorf("%w: parameter[%d]: duplicate name %q", ErrInvalidDeclaration, i, d.Descriptor.Name)
		}
		seen[d.Descriptor.Name] = struct{}{}
		if err := checkDeclaration(d.Descriptor, d.Value); err != nil {
			return nil, fmt.Errorf("%w: parameter[%d]: %w", ErrInvalidDeclaration, i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (e declEntry) declaration() (Declaration, error) {
	t, err := params.ParseType(e.Type)
	if err != nil {
		return Declaration{}, err
	}
	desc := params.Descriptor{
		Name:                  normalize(e.Name),
		Type:                  t,
		Description:           e.Description,
		AdditionalConstraints: e.AdditionalConstraints,
		ReadOnly:              e.ReadOnly,
		DynamicTyping:         e.DynamicTyping,
	}
	if r := e.IntegerRange; r != nil {
		desc.IntRange = &params.IntegerRange{Min: r.Min, Max: r.Max, Step: r.Step}
	}
	if r := e.FloatRange; r != nil {
		desc.FloatRange = &params.FloatingPointRange{Min: r.Min, Max: r.Max, Step: r.Step}
	}
	var v params.Value
	if e.Value != nil {
		if v, err = convertValue(t, e.Value); err != nil {
			return Declaration{}, fmt.Errorf("%s: %w", desc.Name, err)
		}
	}
	return Declaration{Descriptor: desc, Value: v}, nil
}

// ParseValue reads a command-line literal as a value of type t. The literal
// uses TOML syntax ("3", "[1, 2]", "\"x\""); bare words are accepted for
// strings.
func ParseValue(t params.Type, literal string) (params.Value, error) {
	literal = strings.TrimSpace(literal)
	if t == params.TypeString && !strings.HasPrefix(literal, "\"") && !strings.HasPrefix(literal, "'") {
		return params.StringValue(literal), nil
	}
	var doc struct {
		V any `toml:"v"`
	}
	if _, err := toml.Decode("v = "+literal, &doc); err != nil {
		return params.Value{}, fmt.Errorf("%w: %q: %v", params.ErrInvalidValue, literal, err)
	}
	return convertValue(t, doc.V)
}

// convertValue maps a decoded TOML value onto the declared type. Integers
// are accepted where doubles are expected.
func convertValue(t params.Type, raw any) (params.Value, error) {
	bad := func() (params.Value, error) {
		return params.Value{}, fmt.Errorf("%w: %T for %s", params.ErrTypeMismatch, raw, t)
	}
	switch t {
	case params.TypeBool:
		if b, ok := raw.(bool); ok {
			return params.BoolValue(b), nil
		}
	case params.TypeInteger:
		if i, ok := raw.(int64); ok {
			return params.IntValue(i), nil
		}
	case params.TypeDouble:
		if f, ok := toFloat(raw); ok {
			return params.DoubleValue(f), nil
		}
	case params.TypeString:
		if s, ok := raw.(string); ok {
			return params.StringValue(s), nil
		}
	case params.TypeByteArray:
		if s, ok := raw.(string); ok {
			return params.ByteArrayValue([]byte(s)), nil
		}
		out, ok := convertSlice(raw, func(x any) (byte, bool) {
			i, ok := x.(int64)
			return byte(i), ok && i >= 0 && i <= math.MaxUint8
		})
		if ok {
			return params.ByteArrayValue(out), nil
		}
	case params.TypeBoolArray:
		if out, ok := convertSlice(raw, asBool); ok {
			return params.BoolArrayValue(out), nil
		}
	case params.TypeIntegerArray:
		if out, ok := convertSlice(raw, asInt); ok {
			return params.IntArrayValue(out), nil
		}
	case params.TypeDoubleArray:
		if out, ok := convertSlice(raw, toFloat); ok {
			return params.DoubleArrayValue(out), nil
		}
	case params.TypeStringArray:
		if out, ok := convertSlice(raw, asString); ok {
			return params.StringArrayValue(out), nil
		}
	}
	return bad()
}

func asBool(x any) (bool, bool) {
	b, ok := x.(bool)
	return b, ok
}

func asInt(x any) (int64, bool) {
	i, ok := x.(int64)
	return i, ok
}

func asString(x any) (string, bool) {
	s, ok := x.(string)
	return s, ok
}

func toFloat(x any) (float64, bool) {
	switch v := x.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func convertSlice[T any](raw any, conv func(any) (T, bool)) ([]T, bool) {
	items, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]T, len(items))
	for i, item := range items {
		if out[i], ok = conv(item); !ok {
			return nil, false
		}
	}
	return out, true
}

// Apply declares new parameters and refreshes descriptors of existing ones.
// Current values are kept across reloads unless they no longer satisfy the
// new descriptor, in which case the declared value replaces them.
// Parameters missing from decls stay declared.
func (s *Store) Apply(decls []Declaration) (added, updated int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range decls {
		name := normalize(d.Descriptor.Name)
		d.Descriptor.Name = name
		e, ok := s.entries[name]
		if !ok {
			s.entries[name] = &entry{name: name, desc: d.Descriptor, value: d.Value.Clone()}
			added++
			continue
		}
		e.desc = d.Descriptor
		e.rev++
		if e.value.Type != params.TypeNotSet && checkDeclaration(e.desc, e.value) != nil {
			log.Warn().Str("name", name).Msg("paramstore.Store.Apply value reset to declared default")
			e.value = d.Value.Clone()
		}
		updated++
	}
	return added, updated
}

// LoadInto reads path and applies it to s.
func LoadInto(s *Store, path string) (added, updated int, err error) {
	decls, err := LoadFile(path)
	if err != nil {
		return 0, 0, err
	}
	added, updated = s.Apply(decls)
	return added, updated, nil
}
