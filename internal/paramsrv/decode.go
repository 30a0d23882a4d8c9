package paramsrv

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/rcl"
)

// Request holds the decoded arguments of one request. Only the fields for
// Kind are populated. Storage is fixed-capacity so a Request can live on
// the caller's stack.
type Request struct {
	Kind     rcl.Kind
	Names    params.Batch[string]
	Params   params.Batch[params.Parameter]
	Prefixes params.Batch[string]
	Depth    uint64
}

func (r *Request) Reset() {
	r.Kind = rcl.KindUnknown
	r.Names.Reset()
	r.Params.Reset()
	r.Prefixes.Reset()
	r.Depth = 0
}

// Smallest encodings, padding excluded, used to reject impossible counts.
const (
	minStringSize    = 4
	minParameterSize = 4 + 1 + 1 + 8 + 8 + 4 + 5*4
)

// Decode parses buf (encapsulation header included) as the request body of
// kind into req. More than params.MaxRequestStrings entries fails with
// ErrTooManyEntries before any entry is read.
func Decode(kind rcl.Kind, buf []byte, req *Request) error {
	req.Reset()
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	req.Kind = kind
	r, err := cdr.NewEncapsulatedReader(buf)
	if err != nil {
		return malformed(err)
	}
	switch kind {
	case rcl.KindGetParameters, rcl.KindGetParameterTypes, rcl.KindDescribeParameters:
		return decodeStrings(r, &req.Names)
	case rcl.KindSetParameters:
		n, err := r.ReadSequenceLen(params.MaxRequestStrings, minParameterSize)
		if err != nil {
			return malformed(err)
		}
		for i := 0; i < n; i++ {
			p, err := params.ReadParameter(r)
			if err != nil {
				return malformed(fmt.Errorf("parameter %d: %w", i, err))
			}
			if err := req.Params.Append(p); err != nil {
				return malformed(err)
			}
		}
		return nil
	case rcl.KindListParameters:
		if err := decodeStrings(r, &req.Prefixes); err != nil {
			return err
		}
		if req.Depth, err = r.ReadUint64(); err != nil {
			return malformed(fmt.Errorf("depth: %w", err))
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

func decodeStrings(r *cdr.Reader, out *params.Batch[string]) error {
	n, err := r.ReadSequenceLen(params.MaxRequestStrings, minStringSize)
	if err != nil {
		return malformed(err)
	}
	for i := 0; i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return malformed(fmt.Errorf("entry %d: %w", i, err))
		}
		if err := out.Append(s); err != nil {
			return malformed(err)
		}
	}
	return nil
}

func malformed(err error) error {
	if errors.Is(err, cdr.ErrSequenceTooLong) {
		return fmt.Errorf("%w: limit %d", ErrTooManyEntries, params.MaxRequestStrings)
	}
	return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
}
