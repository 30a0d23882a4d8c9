package params

import (
	"fmt"

	"github.com/danmuck/edgeparams/internal/cdr"
)

// WriteValue encodes v as rcl_interfaces/msg/ParameterValue: the type tag,
// every scalar slot, then every array slot, with only the tagged slot
// populated. A deferred writer is invoked once per element in place of
// inline data. On error the writer may hold a partial value; callers that
// truncate rewind to a mark taken before the call.
func WriteValue(w *cdr.Writer, v Value) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(v.Type)); err != nil {
		return err
	}
	if err := w.WriteBool(v.Type == TypeBool && v.Bool); err != nil {
		return err
	}
	var i int64
	if v.Type == TypeInteger {
		i = v.Int
	}
	if err := w.WriteInt64(i); err != nil {
		return err
	}
	var d float64
	if v.Type == TypeDouble {
		d = v.Double
	}
	if err := w.WriteFloat64(d); err != nil {
		return err
	}
	var s string
	if v.Type == TypeString {
		s = v.String
	}
	if err := w.WriteString(s); err != nil {
		return err
	}
	for t := TypeByteArray; t <= TypeStringArray; t++ {
		if t != v.Type {
			if err := w.WriteUint32(0); err != nil {
				return err
			}
			continue
		}
		if err := writeArray(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeArray(w *cdr.Writer, v Value) error {
	if v.Type == TypeByteArray && v.Deferred == nil {
		return w.WriteOctets(v.Bytes)
	}
	seq, err := w.BeginSequence()
	if err != nil {
		return err
	}
	n := v.Len()
	for i := uint32(0); i < n; i++ {
		if v.Deferred != nil {
			err = v.Deferred.WriteElement(w, i)
		} else {
			err = writeElement(w, v, i)
		}
		if err != nil {
			return err
		}
		seq.Add()
	}
	seq.End()
	return nil
}

func writeElement(w *cdr.Writer, v Value, i uint32) error {
	switch v.Type {
	case TypeBoolArray:
		return w.WriteBool(v.Bools[i])
	case TypeIntegerArray:
		return w.WriteInt64(v.Ints[i])
	case TypeDoubleArray:
		return w.WriteFloat64(v.Doubles[i])
	case TypeStringArray:
		return w.WriteString(v.Strings[i])
	default:
		return fmt.Errorf("%w: %s is not an array", ErrInvalidValue, v.Type)
	}
}

// ReadValue decodes one rcl_interfaces/msg/ParameterValue. An unknown tag
// fails with ErrUnknownType.
func ReadValue(r *cdr.Reader) (Value, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return Value{}, err
	}
	t := Type(tag)
	if !t.Valid() {
		return Value{}, fmt.Errorf("%w: tag %d", ErrUnknownType, tag)
	}
	v := Value{Type: t}

	b, err := r.ReadBool()
	if err != nil {
		return Value{}, err
	}
	i, err := r.ReadInt64()
	if err != nil {
		return Value{}, err
	}
	d, err := r.ReadFloat64()
	if err != nil {
		return Value{}, err
	}
	s, err := r.ReadString()
	if err != nil {
		return Value{}, err
	}
	bytes, err := r.ReadOctets()
	if err != nil {
		return Value{}, err
	}
	bools, err := readSeq(r, 1, (*cdr.Reader).ReadBool)
	if err != nil {
		return Value{}, err
	}
	ints, err := readSeq(r, 8, (*cdr.Reader).ReadInt64)
	if err != nil {
		return Value{}, err
	}
	doubles, err := readSeq(r, 8, (*cdr.Reader).ReadFloat64)
	if err != nil {
		return Value{}, err
	}
	strs, err := readSeq(r, 4, (*cdr.Reader).ReadString)
	if err != nil {
		return Value{}, err
	}

	switch t {
	case TypeBool:
		v.Bool = b
	case TypeInteger:
		v.Int = i
	case TypeDouble:
		v.Double = d
	case TypeString:
		v.String = s
	case TypeByteArray:
		v.Bytes = bytes
	case TypeBoolArray:
		v.Bools = bools
	case TypeIntegerArray:
		v.Ints = ints
	case TypeDoubleArray:
		v.Doubles = doubles
	case TypeStringArray:
		v.Strings = strs
	}
	return v, nil
}

func readSeq[T any](r *cdr.Reader, minElem int, read func(*cdr.Reader) (T, error)) ([]T, error) {
	n, err := r.ReadSequenceLen(0, minElem)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = read(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteParameter encodes rcl_interfaces/msg/Parameter.
func WriteParameter(w *cdr.Writer, p Parameter) error {
	if err := w.WriteString(p.Name); err != nil {
		return err
	}
	return WriteValue(w, p.Value)
}

// ReadParameter decodes rcl_interfaces/msg/Parameter.
func ReadParameter(r *cdr.Reader) (Parameter, error) {
	name, err := r.ReadString()
	if err != nil {
		return Parameter{}, err
	}
	v, err := ReadValue(r)
	if err != nil {
		return Parameter{}, err
	}
	return Parameter{Name: name, Value: v}, nil
}

// WriteDescriptor encodes rcl_interfaces/msg/ParameterDescriptor. Each
// range is a bounded sequence of at most one element.
func WriteDescriptor(w *cdr.Writer, d Descriptor) error {
	if err := w.WriteString(d.Name); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(d.Type)); err != nil {
		return err
	}
	if err := w.WriteString(d.Description); err != nil {
		return err
	}
	if err := w.WriteString(d.AdditionalConstraints); err != nil {
		return err
	}
	if err := w.WriteBool(d.ReadOnly); err != nil {
		return err
	}
	if err := w.WriteBool(d.DynamicTyping); err != nil {
		return err
	}
	if r := d.FloatRange; r != nil {
		if err := w.WriteUint32(1); err != nil {
			return err
		}
		for _, x := range [...]float64{r.Min, r.Max, r.Step} {
			if err := w.WriteFloat64(x); err != nil {
				return err
			}
		}
	} else if err := w.WriteUint32(0); err != nil {
		return err
	}
	if r := d.IntRange; r != nil {
		if err := w.WriteUint32(1); err != nil {
			return err
		}
		if err := w.WriteInt64(r.Min); err != nil {
			return err
		}
		if err := w.WriteInt64(r.Max); err != nil {
			return err
		}
		return w.WriteUint64(uint64(r.Step))
	}
	return w.WriteUint32(0)
}

// ReadDescriptor decodes rcl_interfaces/msg/ParameterDescriptor.
func ReadDescriptor(r *cdr.Reader) (Descriptor, error) {
	var d Descriptor
	var err error
	if d.Name, err = r.ReadString(); err != nil {
		return Descriptor{}, err
	}
	tag, err := r.ReadUint8()
	if err != nil {
		return Descriptor{}, err
	}
	d.Type = Type(tag)
	if !d.Type.Valid() {
		return Descriptor{}, fmt.Errorf("%w: tag %d", ErrUnknownType, tag)
	}
	if d.Description, err = r.ReadString(); err != nil {
		return Descriptor{}, err
	}
	if d.AdditionalConstraints, err = r.ReadString(); err != nil {
		return Descriptor{}, err
	}
	if d.ReadOnly, err = r.ReadBool(); err != nil {
		return Descriptor{}, err
	}
	if d.DynamicTyping, err = r.ReadBool(); err != nil {
		return Descriptor{}, err
	}
	n, err := r.ReadSequenceLen(1, 24)
	if err != nil {
		return Descriptor{}, err
	}
	if n == 1 {
		var fr FloatingPointRange
		if fr.Min, err = r.ReadFloat64(); err != nil {
			return Descriptor{}, err
		}
		if fr.Max, err = r.ReadFloat64(); err != nil {
			return Descriptor{}, err
		}
		if fr.Step, err = r.ReadFloat64(); err != nil {
			return Descriptor{}, err
		}
		d.FloatRange = &fr
	}
	if n, err = r.ReadSequenceLen(1, 24); err != nil {
		return Descriptor{}, err
	}
	if n == 1 {
		var ir IntegerRange
		if ir.Min, err = r.ReadInt64(); err != nil {
			return Descriptor{}, err
		}
		if ir.Max, err = r.ReadInt64(); err != nil {
			return Descriptor{}, err
		}
		step, err := r.ReadUint64()
		if err != nil {
			return Descriptor{}, err
		}
		ir.Step = int64(step)
		d.IntRange = &ir
	}
	return d, nil
}
