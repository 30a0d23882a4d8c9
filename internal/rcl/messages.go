package rcl

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/params"
)

// Message is a request or reply body with a CDR layout.
type Message interface {
	MarshalCDR(w *cdr.Writer) error
	UnmarshalCDR(r *cdr.Reader) error
}

// ErrTrailingBytes reports a message followed by more than alignment
// padding.
var ErrTrailingBytes = errors.New("rcl: trailing bytes after message")

// Marshal encodes m behind a little-endian encapsulation header into buf
// and returns the written prefix. A nil buf grows as needed.
func Marshal(m Message, buf []byte) ([]byte, error) {
	size := len(buf)
	if buf == nil {
		size = 256
	}
	for {
		out := buf
		if out == nil {
			out = make([]byte, size)
		}
		w := cdr.NewWriter(out)
		err := w.WriteHeader()
		if err == nil {
			err = m.MarshalCDR(w)
		}
		if err == nil {
			return w.Bytes(), nil
		}
		if buf != nil || !errors.Is(err, cdr.ErrBufferFull) || size >= 1<<24 {
			return nil, err
		}
		size *= 4
	}
}

// Unmarshal decodes b (encapsulation header included) into m.
func Unmarshal(b []byte, m Message) error {
	r, err := cdr.NewEncapsulatedReader(b)
	if err != nil {
		return err
	}
	if err := m.UnmarshalCDR(r); err != nil {
		return err
	}
	if r.Remaining() > 3 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, r.Remaining())
	}
	return nil
}

// NewRequest returns an empty request message for k.
func NewRequest(k Kind) (Message, error) {
	switch k {
	case KindGetParameters, KindGetParameterTypes, KindDescribeParameters:
		return &NamesRequest{}, nil
	case KindSetParameters:
		return &SetParametersRequest{}, nil
	case KindListParameters:
		return &ListParametersRequest{}, nil
	}
	return nil, fmt.Errorf("rcl: no request for %s", k)
}

// NewReply returns an empty reply message for k.
func NewReply(k Kind) (Message, error) {
	switch k {
	case KindGetParameters:
		return &GetParametersReply{}, nil
	case KindGetParameterTypes:
		return &GetParameterTypesReply{}, nil
	case KindSetParameters:
		return &SetParametersReply{}, nil
	case KindDescribeParameters:
		return &DescribeParametersReply{}, nil
	case KindListParameters:
		return &ListParametersReply{}, nil
	}
	return nil, fmt.Errorf("rcl: no reply for %s", k)
}

// NamesRequest is the request body of get_parameters,
// get_parameter_types and describe_parameters.
type NamesRequest struct {
	Names []string
}

func (m *NamesRequest) MarshalCDR(w *cdr.Writer) error {
	return writeStrings(w, m.Names)
}

func (m *NamesRequest) UnmarshalCDR(r *cdr.Reader) error {
	names, err := readStrings(r)
	m.Names = names
	return err
}

type GetParametersReply struct {
	Values []params.Value
}

func (m *GetParametersReply) MarshalCDR(w *cdr.Writer) error {
	if err := w.WriteUint32(uint32(len(m.Values))); err != nil {
		return err
	}
	for _, v := range m.Values {
		if err := params.WriteValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *GetParametersReply) UnmarshalCDR(r *cdr.Reader) error {
	n, err := r.ReadSequenceLen(0, 1)
	if err != nil {
		return err
	}
	m.Values = make([]params.Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := params.ReadValue(r)
		if err != nil {
			return err
		}
		m.Values = append(m.Values, v)
	}
	return nil
}

type GetParameterTypesReply struct {
	Types []params.Type
}

func (m *GetParameterTypesReply) MarshalCDR(w *cdr.Writer) error {
	if err := w.WriteUint32(uint32(len(m.Types))); err != nil {
		return err
	}
	for _, t := range m.Types {
		if err := w.WriteUint8(uint8(t)); err != nil {
			return err
		}
	}
	return nil
}

func (m *GetParameterTypesReply) UnmarshalCDR(r *cdr.Reader) error {
	raw, err := r.ReadOctets()
	if err != nil {
		return err
	}
	m.Types = make([]params.Type, len(raw))
	for i, b := range raw {
		m.Types[i] = params.Type(b)
	}
	return nil
}

type SetParametersRequest struct {
	Parameters []params.Parameter
}

func (m *SetParametersRequest) MarshalCDR(w *cdr.Writer) error {
	if err := w.WriteUint32(uint32(len(m.Parameters))); err != nil {
		return err
	}
	for _, p := range m.Parameters {
		if err := params.WriteParameter(w, p); err != nil {
			return err
		}
	}
	return nil
}

func (m *SetParametersRequest) UnmarshalCDR(r *cdr.Reader) error {
	n, err := r.ReadSequenceLen(0, 4)
	if err != nil {
		return err
	}
	m.Parameters = make([]params.Parameter, 0, n)
	for i := 0; i < n; i++ {
		p, err := params.ReadParameter(r)
		if err != nil {
			return err
		}
		m.Parameters = append(m.Parameters, p)
	}
	return nil
}

// SetParametersResult is rcl_interfaces/msg/SetParametersResult.
type SetParametersResult struct {
	Successful bool
	Reason     string
}

// WriteSetResult encodes one SetParametersResult.
func WriteSetResult(w *cdr.Writer, res SetParametersResult) error {
	if err := w.WriteBool(res.Successful); err != nil {
		return err
	}
	return w.WriteString(res.Reason)
}

type SetParametersReply struct {
	Results []SetParametersResult
}

func (m *SetParametersReply) MarshalCDR(w *cdr.Writer) error {
	if err := w.WriteUint32(uint32(len(m.Results))); err != nil {
		return err
	}
	for _, res := range m.Results {
		if err := WriteSetResult(w, res); err != nil {
			return err
		}
	}
	return nil
}

func (m *SetParametersReply) UnmarshalCDR(r *cdr.Reader) error {
	n, err := r.ReadSequenceLen(0, 5)
	if err != nil {
		return err
	}
	m.Results = make([]SetParametersResult, n)
	for i := range m.Results {
		if m.Results[i].Successful, err = r.ReadBool(); err != nil {
			return err
		}
		if m.Results[i].Reason, err = r.ReadString(); err != nil {
			return err
		}
	}
	return nil
}

type DescribeParametersReply struct {
	Descriptors []params.Descriptor
}

func (m *DescribeParametersReply) MarshalCDR(w *cdr.Writer) error {
	if err := w.WriteUint32(uint32(len(m.Descriptors))); err != nil {
		return err
	}
	for _, d := range m.Descriptors {
		if err := params.WriteDescriptor(w, d); err != nil {
			return err
		}
	}
	return nil
}

func (m *DescribeParametersReply) UnmarshalCDR(r *cdr.Reader) error {
	n, err := r.ReadSequenceLen(0, 4)
	if err != nil {
		return err
	}
	m.Descriptors = make([]params.Descriptor, 0, n)
	for i := 0; i < n; i++ {
		d, err := params.ReadDescriptor(r)
		if err != nil {
			return err
		}
		m.Descriptors = append(m.Descriptors, d)
	}
	return nil
}

type ListParametersRequest struct {
	Prefixes []string
	Depth    uint64
}

// DepthRecursive asks for an unbounded listing.
const DepthRecursive uint64 = 0

func (m *ListParametersRequest) MarshalCDR(w *cdr.Writer) error {
	if err := writeStrings(w, m.Prefixes); err != nil {
		return err
	}
	return w.WriteUint64(m.Depth)
}

func (m *ListParametersRequest) UnmarshalCDR(r *cdr.Reader) error {
	prefixes, err := readStrings(r)
	if err != nil {
		return err
	}
	m.Prefixes = prefixes
	m.Depth, err = r.ReadUint64()
	return err
}

// ListParametersReply is the ListParametersResult carried by the
// list_parameters response.
type ListParametersReply struct {
	Names    []string
	Prefixes []string
}

func (m *ListParametersReply) MarshalCDR(w *cdr.Writer) error {
	if err := writeStrings(w, m.Names); err != nil {
		return err
	}
	return writeStrings(w, m.Prefixes)
}

func (m *ListParametersReply) UnmarshalCDR(r *cdr.Reader) error {
	var err error
	if m.Names, err = readStrings(r); err != nil {
		return err
	}
	m.Prefixes, err = readStrings(r)
	return err
}

func writeStrings(w *cdr.Writer, ss []string) error {
	if err := w.WriteUint32(uint32(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r *cdr.Reader) ([]string, error) {
	n, err := r.ReadSequenceLen(0, 4)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
