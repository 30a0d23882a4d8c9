package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/edgeparams/internal/protocol/frame"
	"github.com/danmuck/edgeparams/internal/protocol/schema"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/danmuck/edgeparams/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrRouteUnavailable = errors.New("transport: route unavailable")

// RouterConfig configures a router that client-mode nodes register with
// and callers query through.
type RouterConfig struct {
	Session session.Config
	// RequireIdentityBinding rejects registrations whose node name differs
	// from the verified TLS peer identity.
	RequireIdentityBinding bool
	Tracer                 trace.Tracer
	// Observer, when set, sees the outcome of every caller query.
	Observer RouteObserver
}

// RouteObserver receives one outcome per routed query: "ok", "no_route",
// "unavailable" or "malformed".
type RouteObserver interface {
	ObserveRoute(outcome string)
}

// RouteInfo describes one registered node.
type RouteInfo struct {
	Node         string
	DomainID     uint32
	Remote       string
	Services     []session.ServiceInfo
	RegisteredAt time.Time
}

// Router accepts node registrations and forwards caller queries to the
// node that declared the queried key expression.
type Router struct {
	cfg RouterConfig

	mu     sync.RWMutex
	nodes  map[string]*routedNode
	routes map[string]*routedNode

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

type routedNode struct {
	info RouteInfo

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
}

func NewRouter(cfg RouterConfig) *Router {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &Router{
		cfg:    cfg,
		nodes:  make(map[string]*routedNode),
		routes: make(map[string]*routedNode),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Listen opens a listener for loc using the router's TLS material.
func (r *Router) Listen(loc Locator) (net.Listener, error) {
	cfg := r.cfg.Session
	cfg.TLS.Enabled = loc.Secure()
	if err := cfg.ValidateServerTransport(); err != nil {
		return nil, err
	}
	return listen(loc, cfg)
}

// Serve accepts nodes and callers on ln until ctx is done.
func (r *Router) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		r.closeAllConns()
		_ = ln.Close()
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("transport.Router.Serve listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.trackConn(conn)
		go r.handleConn(ctx, conn)
	}
}

// Routes snapshots registered nodes sorted by name.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	out := make([]RouteInfo, 0, len(r.nodes))
	for _, n := range r.nodes {
		info := n.info
		info.Services = append([]session.ServiceInfo(nil), n.info.Services...)
		out = append(out, info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// handleConn tells nodes from callers by the first byte: registrations are
// JSON control lines, callers start with a frame header.
func (r *Router) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	peerID := ""
	if tc, ok := conn.(*tls.Conn); ok {
		if err := handshake(ctx, tc, r.cfg.Session.HandshakeTimeout); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("transport.Router.handleConn tls handshake")
			r.drop(conn)
			return
		}
		if certs := tc.ConnectionState().PeerCertificates; len(certs) > 0 {
			peerID = session.PeerIdentity(certs[0])
		}
	}
	reader := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(r.cfg.Session.HandshakeTimeout))
	first, err := reader.Peek(1)
	if err != nil {
		r.drop(conn)
		return
	}
	if first[0] == '{' {
		r.handleRegistration(conn, reader, peerID)
		return
	}
	r.serveCaller(ctx, conn, reader)
}

func (r *Router) handleRegistration(conn net.Conn, reader *bufio.Reader, peerID string) {
	remote := conn.RemoteAddr().String()
	_ = conn.SetDeadline(time.Now().Add(r.cfg.Session.HandshakeTimeout))
	now := uint64(time.Now().UnixMilli())
	reg, err := session.ReadRegistration(reader)
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("transport.Router.handleRegistration read")
		_ = session.WriteRegistrationAck(conn, session.RegistrationAck{
			Status:      session.AckStatusRejected,
			Code:        session.AckCodeInvalidPayload,
			Message:     "invalid registration payload",
			Node:        "unknown",
			TimestampMS: now,
		})
		r.drop(conn)
		return
	}
	fqn := reg.FullyQualifiedName()
	reject := func(code uint32, msg string) {
		log.Warn().Str("node", fqn).Str("remote", remote).Uint32("code", code).Msg("transport.Router.handleRegistration rejected: " + msg)
		_ = session.WriteRegistrationAck(conn, session.RegistrationAck{
			Status:      session.AckStatusRejected,
			Code:        code,
			Message:     msg,
			Node:        fqn,
			TimestampMS: now,
		})
		r.drop(conn)
	}
	if r.cfg.RequireIdentityBinding && peerID != "" && peerID != reg.Node {
		reject(session.AckCodeIdentityBinding, "identity binding failure")
		return
	}

	n := &routedNode{
		info: RouteInfo{
			Node:         fqn,
			DomainID:     reg.DomainID,
			Remote:       remote,
			Services:     reg.Services,
			RegisteredAt: time.Now(),
		},
		conn:   conn,
		reader: reader,
	}
	if code, msg := r.addNode(n); code != session.AckCodeOK {
		reject(code, msg)
		return
	}
	if err := session.WriteRegistrationAck(conn, session.RegistrationAck{
		Status:      session.AckStatusAccepted,
		Code:        session.AckCodeOK,
		Message:     "ok",
		Node:        fqn,
		TimestampMS: now,
	}); err != nil {
		log.Warn().Err(err).Str("node", fqn).Msg("transport.Router.handleRegistration write ack")
		r.removeNode(n)
		return
	}
	_ = conn.SetDeadline(time.Time{})
	log.Info().Str("node", fqn).Str("remote", remote).Int("services", len(reg.Services)).Msg("transport.Router registered node")
}

func (r *Router) addNode(n *routedNode) (uint32, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.nodes[n.info.Node]; dup {
		return session.AckCodeDuplicateNode, "node already registered"
	}
	for _, svc := range n.info.Services {
		if _, dup := r.routes[svc.KeyExpr]; dup {
			return session.AckCodeDuplicateKey, fmt.Sprintf("key_expr already routed: %s", svc.KeyExpr)
		}
	}
	r.nodes[n.info.Node] = n
	for _, svc := range n.info.Services {
		r.routes[svc.KeyExpr] = n
	}
	return session.AckCodeOK, ""
}

func (r *Router) removeNode(n *routedNode) {
	r.mu.Lock()
	if r.nodes[n.info.Node] == n {
		delete(r.nodes, n.info.Node)
		for _, svc := range n.info.Services {
			if r.routes[svc.KeyExpr] == n {
				delete(r.routes, svc.KeyExpr)
			}
		}
	}
	r.mu.Unlock()
	r.drop(n.conn)
	log.Info().Str("node", n.info.Node).Msg("transport.Router removed node")
}

func (r *Router) lookup(keyExpr string) (*routedNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.routes[keyExpr]
	return n, ok
}

func (r *Router) serveCaller(ctx context.Context, conn net.Conn, reader *bufio.Reader) {
	defer r.drop(conn)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	remote := conn.RemoteAddr().String()
	for {
		if r.cfg.Session.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(r.cfg.Session.IdleTimeout))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}
		fr, err := session.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			return
		}
		out := r.route(ctx, remote, fr)
		_ = conn.SetWriteDeadline(time.Now().Add(r.cfg.Session.WriteTimeout))
		if err := frame.WriteFrame(conn, out, frame.DefaultLimits()); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("transport.Router.serveCaller write")
			return
		}
	}
}

// route forwards one caller frame and returns the frame to send back,
// carrying the caller's message id.
func (r *Router) route(ctx context.Context, remote string, fr frame.Frame) frame.Frame {
	id := fr.Header.MessageID
	if fr.Header.MessageType != schema.MsgQuery {
		r.observe("malformed")
		return errorFrame(id, "", session.ErrorCodeMalformed, "expected query")
	}
	q, err := session.DecodeQueryFrame(fr)
	if err != nil {
		r.observe("malformed")
		return errorFrame(id, "", session.ErrorCodeMalformed, err.Error())
	}
	_, span := r.cfg.Tracer.Start(ctx, "edgeparams.route",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("edgeparams.key_expr", q.KeyExpr)),
	)
	defer span.End()

	n, ok := r.lookup(q.KeyExpr)
	if !ok {
		span.SetStatus(codes.Error, "unknown service")
		log.Debug().Str("remote", remote).Str("key_expr", q.KeyExpr).Msg("transport.Router.route no route")
		r.observe("no_route")
		return errorFrame(id, q.KeyExpr, session.ErrorCodeUnknownService, "no node declares "+q.KeyExpr)
	}
	span.SetAttributes(attribute.String("edgeparams.node", n.info.Node))
	reply, err := r.forward(n, fr.Payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("node", n.info.Node).Str("key_expr", q.KeyExpr).Msg("transport.Router.route forward failed")
		r.removeNode(n)
		r.observe("unavailable")
		return errorFrame(id, q.KeyExpr, session.ErrorCodeNotReady, fmt.Sprintf("%v: %v", ErrRouteUnavailable, err))
	}
	reply.Header.MessageID = id
	r.observe("ok")
	return reply
}

func (r *Router) observe(outcome string) {
	if r.cfg.Observer != nil {
		r.cfg.Observer.ObserveRoute(outcome)
	}
}

// forward relays a query payload to n and waits for its answer. Queries to
// one node are serialized.
func (r *Router) forward(n *routedNode, payload []byte) (frame.Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	_ = n.conn.SetWriteDeadline(time.Now().Add(r.cfg.Session.WriteTimeout))
	if err := frame.WriteFrame(n.conn, frame.Frame{
		Header:  frame.Header{MessageID: id, MessageType: schema.MsgQuery},
		Payload: payload,
	}, frame.DefaultLimits()); err != nil {
		return frame.Frame{}, err
	}
	_ = n.conn.SetReadDeadline(time.Now().Add(r.cfg.Session.QueryTimeout))
	for {
		fr, err := session.ReadFrame(n.reader, frame.DefaultLimits())
		if err != nil {
			return frame.Frame{}, err
		}
		if fr.Header.MessageID == id {
			return fr, nil
		}
	}
}

func errorFrame(id uint64, keyExpr string, code uint32, msg string) frame.Frame {
	return frame.Frame{
		Header: frame.Header{
			MessageID:   id,
			MessageType: schema.MsgError,
			Flags:       frame.FlagIsResponse | frame.FlagIsError,
		},
		Payload: tlv.EncodeFields([]tlv.Field{
			tlv.String(schema.FieldKeyExpr, keyExpr),
			tlv.U32(schema.FieldErrorCode, code),
			tlv.String(schema.FieldErrorMessage, msg),
		}),
	}
}

func (r *Router) trackConn(conn net.Conn) {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	r.conns[conn] = struct{}{}
}

func (r *Router) drop(conn net.Conn) {
	_ = conn.Close()
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	delete(r.conns, conn)
}

func (r *Router) closeAllConns() {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	for conn := range r.conns {
		_ = conn.Close()
		delete(r.conns, conn)
	}
}
