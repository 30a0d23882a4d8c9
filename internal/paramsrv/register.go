package paramsrv

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/rcl"
)

// DefaultReplyBufSize is used when Interface.ReplyBufSize is unset by
// configuration loaders. Register itself rejects a zero size.
const DefaultReplyBufSize = 4096

var ErrNoProvider = errors.New("paramsrv: nil provider")

// Interface binds a Provider to a node.
type Interface struct {
	Provider params.Provider
	// ReplyBufSize is the reply buffer capacity of each declared service.
	ReplyBufSize int
	// Registry supplies type hashes; nil uses the defaults.
	Registry *rcl.Registry
	Observer Observer
}

// Register declares the five parameter services on n, all backed by one
// Engine over iface.Provider. Errors map to node result codes through
// node.ResultOf.
func Register(n *node.Node, iface Interface) ([]*node.Service, error) {
	if iface.Provider == nil {
		return nil, ErrNoProvider
	}
	if iface.ReplyBufSize <= 0 {
		return nil, fmt.Errorf("%w: reply buffer size %d", node.ErrInvalidService, iface.ReplyBufSize)
	}
	if !n.Ready() {
		return nil, node.ErrNotReady
	}
	engine := NewEngineWithObserver(iface.Provider, iface.Observer)

	services := make([]*node.Service, 0, len(rcl.Kinds()))
	for _, kind := range rcl.Kinds() {
		st, _ := iface.Registry.Lookup(kind)
		svc, err := n.DeclareService(node.ServiceSpec{
			Name:         st.Service,
			TypeName:     st.TypeName,
			Hash:         st.Hash,
			ReplyBufSize: iface.ReplyBufSize,
			Handler: func(request, reply []byte) (int, error) {
				return engine.Handle(kind, request, reply)
			},
		})
		if err != nil {
			return services, fmt.Errorf("paramsrv: declare %s: %w", st.Service, err)
		}
		services = append(services, svc)
	}
	return services, nil
}
