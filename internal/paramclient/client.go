// Package paramclient calls the parameter services of a remote node, the
// way ros2 param tooling would.
package paramclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/danmuck/edgeparams/internal/rcl"
	"github.com/rs/zerolog/log"
)

var (
	ErrTooManyItems  = errors.New("paramclient: too many items in one request")
	ErrShortReply    = errors.New("paramclient: reply has fewer entries than requested")
	ErrInvalidTarget = errors.New("paramclient: invalid target")
)

// Caller sends one service request and waits for its reply.
// *transport.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, keyExpr string, request []byte) (session.Reply, error)
}

// Target names the node whose parameter services are called.
type Target struct {
	DomainID uint32
	// Node is the fully qualified node name, e.g. "/robot/arm".
	Node string
	// Registry supplies type hashes; nil uses the defaults.
	Registry *rcl.Registry
}

// Client issues typed parameter requests to one node.
type Client struct {
	caller Caller
	target Target
}

func New(caller Caller, target Target) (*Client, error) {
	target.Node = strings.TrimSpace(target.Node)
	if caller == nil || strings.Trim(target.Node, "/") == "" {
		return nil, fmt.Errorf("%w: node %q", ErrInvalidTarget, target.Node)
	}
	if !strings.HasPrefix(target.Node, "/") {
		target.Node = "/" + target.Node
	}
	return &Client{caller: caller, target: target}, nil
}

// KeyExpr returns the key expression of the node's service for kind.
func (c *Client) KeyExpr(kind rcl.Kind) (string, error) {
	st, ok := c.target.Registry.Lookup(kind)
	if !ok {
		return "", fmt.Errorf("paramclient: unknown kind %s", kind)
	}
	return node.KeyExpr(c.target.DomainID, c.target.Node, st.Service, st.TypeName, st.Hash), nil
}

// Get returns the value of each name in order. Undeclared names come back
// with TypeNotSet.
func (c *Client) Get(ctx context.Context, names ...string) ([]params.Value, error) {
	if err := checkCount(len(names)); err != nil {
		return nil, err
	}
	var reply rcl.GetParametersReply
	if err := c.call(ctx, rcl.KindGetParameters, &rcl.NamesRequest{Names: names}, &reply); err != nil {
		return nil, err
	}
	if len(reply.Values) < len(names) {
		return reply.Values, fmt.Errorf("%w: %d of %d", ErrShortReply, len(reply.Values), len(names))
	}
	return reply.Values, nil
}

// GetTypes returns the current type tag of each name in order.
func (c *Client) GetTypes(ctx context.Context, names ...string) ([]params.Type, error) {
	if err := checkCount(len(names)); err != nil {
		return nil, err
	}
	var reply rcl.GetParameterTypesReply
	if err := c.call(ctx, rcl.KindGetParameterTypes, &rcl.NamesRequest{Names: names}, &reply); err != nil {
		return nil, err
	}
	if len(reply.Types) < len(names) {
		return reply.Types, fmt.Errorf("%w: %d of %d", ErrShortReply, len(reply.Types), len(names))
	}
	return reply.Types, nil
}

// Describe returns the descriptor of each name in order.
func (c *Client) Describe(ctx context.Context, names ...string) ([]params.Descriptor, error) {
	if err := checkCount(len(names)); err != nil {
		return nil, err
	}
	var reply rcl.DescribeParametersReply
	if err := c.call(ctx, rcl.KindDescribeParameters, &rcl.NamesRequest{Names: names}, &reply); err != nil {
		return nil, err
	}
	if len(reply.Descriptors) < len(names) {
		return reply.Descriptors, fmt.Errorf("%w: %d of %d", ErrShortReply, len(reply.Descriptors), len(names))
	}
	return reply.Descriptors, nil
}

// Set applies each parameter independently and returns one result per
// parameter. A rejected parameter is reported in its result, not as an
// error.
func (c *Client) Set(ctx context.Context, ps ...params.Parameter) ([]rcl.SetParametersResult, error) {
	if err := checkCount(len(ps)); err != nil {
		return nil, err
	}
	var reply rcl.SetParametersReply
	if err := c.call(ctx, rcl.KindSetParameters, &rcl.SetParametersRequest{Parameters: ps}, &reply); err != nil {
		return nil, err
	}
	for i, res := range reply.Results {
		if !res.Successful && i < len(ps) {
			log.Debug().Str("name", ps[i].Name).Str("reason", res.Reason).Msg("paramclient.Client.Set rejected")
		}
	}
	if len(reply.Results) < len(ps) {
		return reply.Results, fmt.Errorf("%w: %d of %d", ErrShortReply, len(reply.Results), len(ps))
	}
	return reply.Results, nil
}

// List returns the parameters and child prefixes one level below each
// prefix. No prefixes lists the root.
func (c *Client) List(ctx context.Context, prefixes []string, depth uint64) (rcl.ListParametersReply, error) {
	if err := checkCount(len(prefixes)); err != nil {
		return rcl.ListParametersReply{}, err
	}
	var reply rcl.ListParametersReply
	req := &rcl.ListParametersRequest{Prefixes: prefixes, Depth: depth}
	if err := c.call(ctx, rcl.KindListParameters, req, &reply); err != nil {
		return rcl.ListParametersReply{}, err
	}
	return reply, nil
}

func (c *Client) call(ctx context.Context, kind rcl.Kind, req, reply rcl.Message) error {
	ke, err := c.KeyExpr(kind)
	if err != nil {
		return err
	}
	body, err := rcl.Marshal(req, nil)
	if err != nil {
		return fmt.Errorf("paramclient: %s: encode: %w", kind, err)
	}
	rep, err := c.caller.Call(ctx, ke, body)
	if err != nil {
		return fmt.Errorf("paramclient: %s: %w", kind, err)
	}
	if err := rcl.Unmarshal(rep.Payload, reply); err != nil {
		return fmt.Errorf("paramclient: %s: decode: %w", kind, err)
	}
	log.Debug().Str("key_expr", ke).Int("request_bytes", len(body)).Int("reply_bytes", len(rep.Payload)).
		Msg("paramclient.Client.call")
	return nil
}

func checkCount(n int) error {
	if n > params.MaxRequestStrings {
		return fmt.Errorf("%w: %d > %d", ErrTooManyItems, n, params.MaxRequestStrings)
	}
	return nil
}
