package paramsrv

import (
	"fmt"

	"github.com/danmuck/edgeparams/internal/cdr"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/rcl"
)

// Observer receives per-request outcomes that never reach the protocol
// layer. Implementations must not block.
type Observer interface {
	// SetRejected reports a Set pair that failed validation or was refused
	// by the provider.
	SetRejected(kind rcl.Kind, name string, err error)
	// Truncated reports a reply sequence cut short by reply capacity.
	Truncated(kind rcl.Kind, written, total int)
}

type nopObserver struct{}

func (nopObserver) SetRejected(rcl.Kind, string, error) {}
func (nopObserver) Truncated(rcl.Kind, int, int) {}

// Engine decodes parameter service requests, runs them against a Provider
// and encodes the reply into the caller's buffer. It holds no per-request
// state and takes no locks; concurrent Handle calls are safe when the
// Provider is.
type Engine struct {
	provider params.Provider
	observer Observer
}

func NewEngine(p params.Provider) *Engine {
	return NewEngineWithObserver(p, nil)
}

func NewEngineWithObserver(p params.Provider, o Observer) *Engine {
	if o == nil {
		o = nopObserver{}
	}
	return &Engine{provider: p, observer: o}
}

// Handle serves one request of the given kind and returns the number of
// reply bytes written. On error nothing in reply is meaningful and the
// returned length is zero. Neither buffer is retained.
func (e *Engine) Handle(kind rcl.Kind, request, reply []byte) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	if len(reply) < minReplySize(kind) {
		return 0, fmt.Errorf("%w: %d bytes, need %d", ErrReplyTooSmall, len(reply), minReplySize(kind))
	}

	var req Request
	if err := Decode(kind, request, &req); err != nil {
		return 0, err
	}

	w := cdr.NewWriter(reply)
	if err := w.WriteHeader(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrReplyTooSmall, err)
	}
	if err := e.dispatch(&req, w); err != nil {
		return 0, err
	}
	return w.Len(), nil
}
