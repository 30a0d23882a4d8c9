package paramsrv

import (
	"fmt"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/rcl"
	"github.com/rs/zerolog/log"
)

func (e *Engine) dispatch(req *Request, w *cdr.Writer) error {
	switch req.Kind {
	case rcl.KindGetParameters:
		return e.getParameters(req, w)
	case rcl.KindGetParameterTypes:
		return e.getParameterTypes(req, w)
	case rcl.KindSetParameters:
		return e.setParameters(req, w)
	case rcl.KindDescribeParameters:
		return e.describeParameters(req, w)
	case rcl.KindListParameters:
		return e.listParameters(req, w)
	}
	return fmt.Errorf("%w: %s", ErrUnknownKind, req.Kind)
}

// getParameters emits one value per name, TypeNotSet for unresolved names.
func (e *Engine) getParameters(req *Request, w *cdr.Writer) error {
	names := req.Names.Items()
	seq, err := w.BeginSequence()
	if err != nil {
		return replyTooSmall(err)
	}
	for _, name := range names {
		var v params.Value
		if ref, ok := e.provider.Resolve(name); ok {
			v = e.provider.Get(ref)
		}
		ok, err := element(w, func() error { return params.WriteValue(w, v) })
		if err != nil {
			log.Warn().Err(err).Str("name", name).Msg("paramsrv.Engine.getParameters provider value not encodable")
			ok, _ = element(w, func() error { return params.WriteValue(w, params.Value{}) })
		}
		if !ok {
			break
		}
		seq.Add()
	}
	seq.End()
	e.checkTruncated(req.Kind, seq, len(names))
	return nil
}

func (e *Engine) getParameterTypes(req *Request, w *cdr.Writer) error {
	names := req.Names.Items()
	seq, err := w.BeginSequence()
	if err != nil {
		return replyTooSmall(err)
	}
	for _, name := range names {
		t := params.TypeNotSet
		if ref, ok := e.provider.Resolve(name); ok {
			if t = e.provider.Type(ref); !t.Valid() {
				t = params.TypeNotSet
			}
		}
		if w.WriteUint8(uint8(t)) != nil {
			break
		}
		seq.Add()
	}
	seq.End()
	e.checkTruncated(req.Kind, seq, len(names))
	return nil
}

// describeParameters emits the full descriptor per name; unresolved names
// get a descriptor carrying only the name.
func (e *Engine) describeParameters(req *Request, w *cdr.Writer) error {
	names := req.Names.Items()
	seq, err := w.BeginSequence()
	if err != nil {
		return replyTooSmall(err)
	}
	for _, name := range names {
		desc := params.Descriptor{Name: name}
		if ref, ok := e.provider.Resolve(name); ok {
			desc = e.provider.Describe(ref)
			if desc.Name == "" {
				desc.Name = name
			}
		}
		ok, err := element(w, func() error { return params.WriteDescriptor(w, desc) })
		if err != nil || !ok {
			break
		}
		seq.Add()
	}
	seq.End()
	e.checkTruncated(req.Kind, seq, len(names))
	return nil
}

// setParameters applies each pair independently and in order. Room for
// every result with an empty reason is checked before the provider is
// touched, so the reply always lines up 1:1 with the request; a reason
// that does not fit is dropped rather than the result.
func (e *Engine) setParameters(req *Request, w *cdr.Writer) error {
	pairs := req.Params.Items()
	seq, err := w.BeginSequence()
	if err != nil {
		return replyTooSmall(err)
	}
	if need := len(pairs) * minSetResultSize; w.Available() < need {
		return fmt.Errorf("%w: %d results need %d bytes, have %d", ErrReplyTooSmall, len(pairs), need, w.Available())
	}

	for i, p := range pairs {
		res := rcl.SetParametersResult{Successful: true}
		if err := e.apply(p); err != nil {
			res = rcl.SetParametersResult{Reason: err.Error()}
			e.observer.SetRejected(req.Kind, p.Name, err)
		}

		w.Reserve((len(pairs) - i - 1) * minSetResultSize)
		ok, _ := element(w, func() error { return rcl.WriteSetResult(w, res) })
		if !ok {
			res.Reason = ""
			if ok, _ = element(w, func() error { return rcl.WriteSetResult(w, res) }); !ok {
				w.Reserve(0)
				return fmt.Errorf("%w: set result %d", ErrReplyTooSmall, i)
			}
			e.observer.Truncated(req.Kind, i, len(pairs))
		}
		seq.Add()
	}
	w.Reserve(0)
	seq.End()
	return nil
}

// apply runs the descriptor checks for one pair and hands accepted values
// to the provider. A CheckedSetter runs the checks itself so they see the
// descriptor the value is stored under.
func (e *Engine) apply(p params.Parameter) error {
	ref, ok := e.provider.Resolve(p.Name)
	if !ok {
		return params.ErrNotFound
	}
	if cs, ok := e.provider.(params.CheckedSetter); ok {
		return cs.SetChecked(ref, p.Value, params.CheckSet)
	}
	if err := params.CheckSet(e.provider.Describe(ref), p.Value); err != nil {
		return err
	}
	return e.provider.Set(ref, p.Value)
}

// listParameters streams the names and child prefixes one level below each
// requested prefix (the root when none is given). The depth argument is
// accepted but listing never recurses.
func (e *Engine) listParameters(req *Request, w *cdr.Writer) error {
	prefixes := req.Prefixes.Items()
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	if req.Depth != rcl.DepthRecursive && req.Depth != 1 {
		log.Debug().Uint64("depth", req.Depth).Msg("paramsrv.Engine.listParameters depth ignored")
	}

	// keep the trailing prefixes count encodable while names stream
	w.Reserve(maxSeqHeaderSize)
	names, total, err := e.stream(w, prefixes, e.provider.ListParameters)
	w.Reserve(0)
	if err != nil {
		return err
	}
	e.checkTruncated(req.Kind, names, total)

	children, total, err := e.stream(w, prefixes, e.provider.ListPrefixes)
	if err != nil {
		return err
	}
	e.checkTruncated(req.Kind, children, total)
	return nil
}

type listFunc func(prefix string, emit func(string) bool) int

func (e *Engine) stream(w *cdr.Writer, prefixes []string, list listFunc) (cdr.Sequence, int, error) {
	seq, err := w.BeginSequence()
	if err != nil {
		return seq, 0, replyTooSmall(err)
	}
	full := false
	emit := func(s string) bool {
		if full {
			return false
		}
		if w.WriteString(s) != nil {
			full = true
			return false
		}
		seq.Add()
		return true
	}
	total := 0
	for _, prefix := range prefixes {
		total += list(prefix, emit)
	}
	seq.End()
	return seq, total, nil
}

func (e *Engine) checkTruncated(kind rcl.Kind, seq cdr.Sequence, total int) {
	if written := int(seq.Count()); written < total {
		e.observer.Truncated(kind, written, total)
	}
}
