package node

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler fills reply from request and returns the reply length. It must
// not retain either slice.
type Handler func(request, reply []byte) (int, error)

// SendFunc transmits one reply. reply is only valid during the call.
type SendFunc func(reply []byte, att Attachment) error

// ServiceSpec declares one service.
type ServiceSpec struct {
	// Name is the service suffix relative to the node, e.g. "get_parameters".
	Name     string
	TypeName string
	Hash     string
	// ReplyBufSize is the capacity of the service's reply buffer.
	ReplyBufSize int
	Handler      Handler
}

// Service is a declared request/reply endpoint. It owns one reply buffer
// allocated at declaration; requests are served one at a time.
type Service struct {
	node     *Node
	name     string
	typeName string
	keyExpr  string
	handler  Handler

	mu    sync.Mutex
	reply []byte
	seq   int64
}

// DeclareService registers spec under its key expression.
func (n *Node) DeclareService(spec ServiceSpec) (*Service, error) {
	name := strings.Trim(strings.TrimPrefix(strings.TrimSpace(spec.Name), "~"), "/")
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: missing name", ErrInvalidService)
	case strings.TrimSpace(spec.TypeName) == "":
		return nil, fmt.Errorf("%w: %s: missing type name", ErrInvalidService, name)
	case spec.ReplyBufSize <= 0:
		return nil, fmt.Errorf("%w: %s: reply buffer size %d", ErrInvalidService, name, spec.ReplyBufSize)
	case spec.Handler == nil:
		return nil, fmt.Errorf("%w: %s: nil handler", ErrInvalidService, name)
	}
	hash := strings.TrimSpace(spec.Hash)
	if hash == "" {
		return nil, fmt.Errorf("%w: %s: missing type hash", ErrInvalidService, name)
	}

	ke := KeyExpr(n.domainID, n.FullyQualifiedName(), name, spec.TypeName, hash)
	s := &Service{
		node:     n,
		name:     name,
		typeName: spec.TypeName,
		keyExpr:  ke,
		handler:  spec.Handler,
		reply:    make([]byte, spec.ReplyBufSize),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNotReady
	}
	if _, ok := n.services[ke]; ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateService, ke)
	}
	n.services[ke] = s
	n.order = append(n.order, s)
	log.Info().Str("node", n.FullyQualifiedName()).Str("service", name).Str("key_expr", ke).
		Int("reply_buf", spec.ReplyBufSize).Msg("node.Node.DeclareService")
	return s, nil
}

func (s *Service) Name() string { return s.name }
func (s *Service) KeyExpr() string { return s.keyExpr }

func (s *Service) TypeName() string { return s.typeName }

// Serve runs the handler into the service's reply buffer and passes the
// result to send while still holding the buffer.
func (s *Service) Serve(request []byte, send SendFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	n, err := s.handler(request, s.reply)
	if err == nil {
		s.seq++
		att := Attachment{Sequence: s.seq, Time: time.Now().UnixNano(), GID: s.node.guid}
		err = send(s.reply[:n], att)
	} else {
		n = 0
	}
	if s.node.observer != nil {
		s.node.observer.ObserveRequest(s.name, time.Since(start), n, err)
	}
	if err != nil {
		log.Debug().Err(err).Str("service", s.name).Msg("node.Service.Serve")
	}
	return err
}
