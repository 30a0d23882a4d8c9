package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/danmuck/edgeparams/internal/transport"

var (
	ErrRegistrationRejected = errors.New("transport: registration rejected")
	ErrNilNode              = errors.New("transport: nil node")
)

// Config describes how a node attaches to the graph.
type Config struct {
	Mode    Mode
	Locator Locator
	Session session.Config
	// MaxConnectAttempts bounds client-mode dials per reconnect; zero
	// retries until the context ends.
	MaxConnectAttempts int
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// Interface binds a node to a locator. In peer mode it listens and serves
// every accepted link; in client mode it dials a router, registers the
// node's services and serves queries the router forwards.
type Interface struct {
	cfg  Config
	node *node.Node

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
}

// NewInterface validates cfg against the locator's security requirements.
func NewInterface(n *node.Node, cfg Config) (*Interface, error) {
	if n == nil {
		return nil, ErrNilNode
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePeer
	}
	if cfg.Mode != ModePeer && cfg.Mode != ModeClient {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, cfg.Mode)
	}
	if cfg.Locator.Address == "" {
		return nil, fmt.Errorf("%w: missing address", ErrInvalidLocator)
	}
	cfg.Session = cfg.Session.WithDefaults()
	cfg.Session.TLS.Enabled = cfg.Locator.Secure()
	var err error
	if cfg.Mode == ModePeer {
		err = cfg.Session.ValidateServerTransport()
	} else {
		err = cfg.Session.ValidateClientTransport()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Interface{cfg: cfg, node: n, conns: make(map[net.Conn]struct{})}, nil
}

func (i *Interface) Mode() Mode { return i.cfg.Mode }

// ActiveLinks reports how many links are being served.
func (i *Interface) ActiveLinks() int64 { return i.active.Load() }

// Run blocks until ctx is done or the interface fails.
func (i *Interface) Run(ctx context.Context) error {
	if i.cfg.Mode == ModeClient {
		return i.runClient(ctx)
	}
	ln, err := i.Listen()
	if err != nil {
		return err
	}
	return i.Serve(ctx, ln)
}

// Listen opens the peer-mode listener for the configured locator.
func (i *Interface) Listen() (net.Listener, error) {
	return listen(i.cfg.Locator, i.cfg.Session)
}

func listen(loc Locator, cfg session.Config) (net.Listener, error) {
	if !loc.Secure() {
		return net.Listen("tcp", loc.Address)
	}
	tlsCfg, err := cfg.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", loc.Address, tlsCfg)
}

// Serve accepts links on ln until ctx is done.
func (i *Interface) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		i.closeAllConns()
		_ = ln.Close()
	}()
	log.Info().Str("node", i.node.FullyQualifiedName()).Str("addr", ln.Addr().String()).
		Msg("transport.Interface.Serve listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		i.trackConn(conn)
		go func() {
			defer i.untrackConn(conn)
			if err := i.serveConn(ctx, conn); err != nil {
				log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("transport.Interface.Serve link closed")
			}
		}()
	}
}

func (i *Interface) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := i.active.Add(1)
	log.Info().Str("remote", remote).Int64("active_links", active).Msg("transport.Interface link connected")
	defer func() {
		remaining := i.active.Add(-1)
		log.Info().Str("remote", remote).Int64("active_links", remaining).Msg("transport.Interface link disconnected")
	}()
	if tc, ok := conn.(*tls.Conn); ok {
		if err := handshake(ctx, tc, i.cfg.Session.HandshakeTimeout); err != nil {
			return err
		}
	}
	l := &link{
		conn:   conn,
		reader: bufio.NewReader(conn),
		node:   i.node,
		cfg:    i.cfg.Session,
		tracer: i.cfg.Tracer,
		remote: remote,
	}
	return l.serve(ctx)
}

func handshake(ctx context.Context, conn *tls.Conn, timeout time.Duration) error {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.HandshakeContext(hctx)
}

// runClient keeps one registered link to the router, reconnecting with
// backoff until ctx ends or the router rejects the node.
func (i *Interface) runClient(ctx context.Context) error {
	backoff := session.NewBackoff(i.cfg.Session.Backoff)
	for {
		conn, reader, err := i.connectAndRegister(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrRegistrationRejected) {
				return err
			}
			if i.cfg.MaxConnectAttempts > 0 && backoff.Attempt()+1 >= i.cfg.MaxConnectAttempts {
				return err
			}
			log.Warn().Err(err).Int("attempt", backoff.Attempt()+1).Str("locator", i.cfg.Locator.String()).
				Msg("transport.Interface.runClient connect failed")
			if err := backoff.Wait(ctx); err != nil {
				return nil
			}
			continue
		}
		backoff.Reset()
		i.trackConn(conn)
		l := &link{
			conn:   conn,
			reader: reader,
			node:   i.node,
			cfg:    i.cfg.Session,
			tracer: i.cfg.Tracer,
			remote: conn.RemoteAddr().String(),
		}
		i.active.Add(1)
		err = l.serve(ctx)
		i.active.Add(-1)
		i.untrackConn(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Str("locator", i.cfg.Locator.String()).Msg("transport.Interface.runClient link lost")
		if err := backoff.Wait(ctx); err != nil {
			return nil
		}
		backoff.Reset()
	}
}

func (i *Interface) connectAndRegister(ctx context.Context) (net.Conn, *bufio.Reader, error) {
	conn, err := dial(ctx, i.cfg.Locator, i.cfg.Session)
	if err != nil {
		return nil, nil, err
	}
	reader, err := i.register(conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, reader, nil
}

func (i *Interface) register(conn net.Conn) (*bufio.Reader, error) {
	_ = conn.SetDeadline(time.Now().Add(i.cfg.Session.HandshakeTimeout))
	reader := bufio.NewReader(conn)
	guid := i.node.GUID()
	reg := session.Registration{
		Node:      i.node.Name(),
		Namespace: i.node.Namespace(),
		DomainID:  i.node.DomainID(),
		GID:       hex.EncodeToString(guid[:]),
		Services:  make([]session.ServiceInfo, 0),
	}
	for _, svc := range i.node.Services() {
		reg.Services = append(reg.Services, session.ServiceInfo{KeyExpr: svc.KeyExpr(), TypeName: svc.TypeName()})
	}
	if err := session.WriteRegistration(conn, reg); err != nil {
		return nil, err
	}
	ack, err := session.ReadRegistrationAck(reader)
	if err != nil {
		return nil, err
	}
	if ack.Status != session.AckStatusAccepted {
		return nil, fmt.Errorf("%w: code=%d message=%q", ErrRegistrationRejected, ack.Code, ack.Message)
	}
	_ = conn.SetDeadline(time.Time{})
	log.Info().Str("node", reg.FullyQualifiedName()).Int("services", len(reg.Services)).
		Str("locator", i.cfg.Locator.String()).Msg("transport.Interface registered")
	return reader, nil
}

// dial opens a link to loc, completing the TLS handshake for tls/ locators.
func dial(ctx context.Context, loc Locator, cfg session.Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", loc.Address)
	if err != nil {
		return nil, err
	}
	if !loc.Secure() {
		return raw, nil
	}
	tlsCfg, err := cfg.ClientTLSConfig(loc.Address)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	conn := tls.Client(raw, tlsCfg)
	if err := handshake(ctx, conn, cfg.HandshakeTimeout); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return conn, nil
}

// Shutdown closes every open link. Run returns once its context is done.
func (i *Interface) Shutdown() {
	i.closeAllConns()
}

func (i *Interface) trackConn(conn net.Conn) {
	i.connsMu.Lock()
	defer i.connsMu.Unlock()
	i.conns[conn] = struct{}{}
}

func (i *Interface) untrackConn(conn net.Conn) {
	i.connsMu.Lock()
	defer i.connsMu.Unlock()
	delete(i.conns, conn)
}

func (i *Interface) closeAllConns() {
	i.connsMu.Lock()
	defer i.connsMu.Unlock()
	for conn := range i.conns {
		_ = conn.Close()
		delete(i.conns, conn)
	}
}
