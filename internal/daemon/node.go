package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgeparams/internal/admin"
	"github.com/danmuck/edgeparams/internal/config"
	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/observability"
	"github.com/danmuck/edgeparams/internal/paramsrv"
	"github.com/danmuck/edgeparams/internal/paramstore"
	"github.com/danmuck/edgeparams/internal/transport"
	"github.com/rs/zerolog/log"
)

var ErrNotStarted = errors.New("daemon: not started")

// NodeService owns one parameter node for the life of the process.
type NodeService struct {
	cfg   config.NodeConfig
	store *paramstore.Store

	node    *node.Node
	iface   *transport.Interface
	admin   *admin.Server
	linkLn  net.Listener
	adminLn net.Listener

	// cancelWatch stops the declaration watcher started by Start.
	cancelWatch context.CancelFunc
}

// NewNodeService prepares a node from cfg. store may be nil, in which case
// an empty one is created; callers embedding the node pass their own.
func NewNodeService(cfg config.NodeConfig, store *paramstore.Store) *NodeService {
	if store == nil {
		store = paramstore.New()
	}
	return &NodeService{cfg: cfg, store: store}
}

func (s *NodeService) Store() *paramstore.Store { return s.store }

// Node is nil until Start succeeds.
func (s *NodeService) Node() *node.Node { return s.node }

// LinkAddr is the bound peer-mode address, nil in client mode.
func (s *NodeService) LinkAddr() net.Addr {
	if s.linkLn == nil {
		return nil
	}
	return s.linkLn.Addr()
}

func (s *NodeService) AdminAddr() net.Addr {
	if s.adminLn == nil {
		return nil
	}
	return s.adminLn.Addr()
}

// Run starts the node and serves until SIGINT or SIGTERM.
func (s *NodeService) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Start loads declarations, declares the parameter services and binds the
// link and admin listeners.
func (s *NodeService) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if s.cfg.ParamsFile != "" {
		added, updated, err := paramstore.LoadInto(s.store, s.cfg.ParamsFile)
		if err != nil {
			return err
		}
		log.Info().Str("path", s.cfg.ParamsFile).Int("added", added).Int("updated", updated).
			Msg("daemon.NodeService.Start declarations loaded")
	}

	nodeCfg := s.cfg.NodeIdentity()
	srvIface := paramsrv.Interface{Provider: s.store, ReplyBufSize: s.cfg.ReplyBufSize}
	if s.cfg.Metrics {
		m := observability.NewNodeMetrics(s.cfg.Name)
		nodeCfg.Observer = m
		srvIface.Observer = m
	}
	n, err := node.New(nodeCfg)
	if err != nil {
		return err
	}
	if srvIface.Registry, err = s.cfg.Registry(); err != nil {
		return err
	}
	if _, err := paramsrv.Register(n, srvIface); err != nil {
		return err
	}
	iface, err := transport.NewInterface(n, s.cfg.TransportConfig())
	if err != nil {
		return err
	}
	if iface.Mode() == transport.ModePeer {
		if s.linkLn, err = iface.Listen(); err != nil {
			return fmt.Errorf("daemon: listen %s: %w", s.cfg.Locator, err)
		}
	}
	if s.cfg.AdminAddr != "" {
		if s.adminLn, err = net.Listen("tcp", s.cfg.AdminAddr); err != nil {
			s.closeListeners()
			return fmt.Errorf("daemon: admin listen %s: %w", s.cfg.AdminAddr, err)
		}
		s.admin = admin.New(admin.Options{
			Name:        n.FullyQualifiedName(),
			Provider:    s.store,
			Ready:       s.ready,
			Metrics:     s.cfg.Metrics,
			CorsOrigins: s.cfg.CorsOrigins,
			Auth:        config.AdminAuth(s.cfg.AdminToken),
		})
	}
	if s.cfg.WatchParams {
		watchCtx, cancel := context.WithCancel(ctx)
		if err := paramstore.Watch(watchCtx, s.store, s.cfg.ParamsFile, nil); err != nil {
			cancel()
			s.closeListeners()
			return err
		}
		s.cancelWatch = cancel
	}

	s.node = n
	s.iface = iface
	log.Info().Str("node", n.FullyQualifiedName()).Uint32("domain", n.DomainID()).
		Str("mode", string(iface.Mode())).Str("locator", s.cfg.Locator.String()).
		Int("parameters", s.store.Len()).Msg("daemon.NodeService.Start ready")
	return nil
}

// ready reports whether the node can currently answer queries: always in
// peer mode, only while registered with the router in client mode.
func (s *NodeService) ready() bool {
	if s.node == nil || !s.node.Ready() {
		return false
	}
	return s.iface.Mode() == transport.ModePeer || s.iface.ActiveLinks() > 0
}

// Serve blocks until ctx is done or the link or admin server fails.
func (s *NodeService) Serve(ctx context.Context) error {
	if s.node == nil {
		return ErrNotStarted
	}
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingOptions{
		Endpoint:    s.cfg.Tracing.Endpoint,
		Insecure:    s.cfg.Tracing.Insecure,
		ServiceName: s.cfg.Tracing.ServiceName,
		Version:     admin.Version,
		SampleRatio: s.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		s.closeListeners()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 2)
	running := 1
	go func() {
		if s.linkLn != nil {
			errs <- s.iface.Serve(ctx, s.linkLn)
			return
		}
		errs <- s.iface.Run(ctx)
	}()
	if s.admin != nil {
		running++
		go func() { errs <- s.admin.Serve(ctx, s.adminLn) }()
	}

	var first error
	for ; running > 0; running-- {
		err := <-errs
		if err != nil && first == nil {
			first = err
			log.Error().Err(err).Str("node", s.node.FullyQualifiedName()).Msg("daemon.NodeService.Serve failed")
		}
		cancel()
	}

	if s.cancelWatch != nil {
		s.cancelWatch()
	}
	s.node.Close()
	if err := shutdownTracing(context.Background()); err != nil {
		log.Warn().Err(err).Msg("daemon.NodeService.Serve tracing shutdown")
	}
	log.Info().Str("node", s.node.FullyQualifiedName()).Msg("daemon.NodeService.Serve stopped")
	return first
}

func (s *NodeService) closeListeners() {
	if s.linkLn != nil {
		_ = s.linkLn.Close()
	}
	if s.adminLn != nil {
		_ = s.adminLn.Close()
	}
}
