package node

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config identifies a node on the graph.
type Config struct {
	Name      string
	Namespace string
	DomainID  uint32
	// GUID is used as the rmw GID in reply attachments. A zero GUID is
	// replaced with random bytes.
	GUID [GIDSize]byte
	// Observer, when set, sees every served request.
	Observer RequestObserver
}

// RequestObserver receives one call per served request.
type RequestObserver interface {
	ObserveRequest(service string, duration time.Duration, replyBytes int, err error)
}

// Node holds the declared services. It is ready from New until Close.
type Node struct {
	name      string
	namespace string
	domainID  uint32
	guid      [GIDSize]byte
	observer  RequestObserver

	mu       sync.RWMutex
	closed   bool
	services map[string]*Service
	order    []*Service
}

func New(cfg Config) (*Node, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" || strings.ContainsAny(name, "/ \t\r\n") {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidNode, cfg.Name)
	}
	ns, err := normalizeNamespace(cfg.Namespace)
	if err != nil {
		return nil, err
	}
	guid := cfg.GUID
	if guid == ([GIDSize]byte{}) {
		if _, err := rand.Read(guid[:]); err != nil {
			return nil, fmt.Errorf("%w: guid: %w", ErrInvalidNode, err)
		}
	}
	return &Node{
		name:      name,
		namespace: ns,
		domainID:  cfg.DomainID,
		guid:      guid,
		observer:  cfg.Observer,
		services:  make(map[string]*Service),
	}, nil
}

func normalizeNamespace(raw string) (string, error) {
	ns := strings.Trim(strings.TrimSpace(raw), "/")
	if ns == "" {
		return "/", nil
	}
	for _, seg := range strings.Split(ns, "/") {
		if seg == "" || strings.ContainsAny(seg, " \t\r\n") {
			return "", fmt.Errorf("%w: namespace %q", ErrInvalidNode, raw)
		}
	}
	return "/" + ns, nil
}

func (n *Node) Name() string { return n.name }
func (n *Node) Namespace() string { return n.namespace }
func (n *Node) DomainID() uint32 { return n.domainID }
func (n *Node) GUID() [GIDSize]byte { return n.guid }

// FullyQualifiedName is namespace + "/" + name, e.g. "/robot/arm".
func (n *Node) FullyQualifiedName() string {
	if n.namespace == "/" {
		return "/" + n.name
	}
	return n.namespace + "/" + n.name
}

// Ready reports whether services may still be declared and served.
func (n *Node) Ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.closed
}

// Close stops serving. Later declarations and queries fail with
// ErrNotReady.
func (n *Node) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	log.Info().Str("node", n.FullyQualifiedName()).Msg("node.Node.Close")
}

// Services lists declared services in declaration order.
func (n *Node) Services() []*Service {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Service, len(n.order))
	copy(out, n.order)
	return out
}

// Lookup finds the service declared under keyExpr.
func (n *Node) Lookup(keyExpr string) (*Service, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return nil, ErrNotReady
	}
	s, ok := n.services[keyExpr]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, keyExpr)
	}
	return s, nil
}

// ServeQuery routes one query to its service. send is called at most once
// with the reply; the bytes are only valid during the call.
func (n *Node) ServeQuery(keyExpr string, request []byte, send SendFunc) error {
	s, err := n.Lookup(keyExpr)
	if err != nil {
		return err
	}
	return s.Serve(request, send)
}
