package daemon

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgeparams/internal/admin"
	"github.com/danmuck/edgeparams/internal/config"
	"github.com/danmuck/edgeparams/internal/observability"
	"github.com/danmuck/edgeparams/internal/transport"
	"github.com/rs/zerolog/log"
)

// RouterService runs a router that client-mode nodes register with.
type RouterService struct {
	cfg     config.RouterConfig
	router  *transport.Router
	admin   *admin.Server
	ln      net.Listener
	adminLn net.Listener
}

func NewRouterService(cfg config.RouterConfig) *RouterService {
	return &RouterService{cfg: cfg}
}

func (s *RouterService) Router() *transport.Router { return s.router }

func (s *RouterService) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *RouterService) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := s.Start(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *RouterService) Start() error {
	rcfg := s.cfg.TransportConfig()
	rcfg.Observer = observability.RouterMetrics{}
	s.router = transport.NewRouter(rcfg)
	ln, err := s.router.Listen(s.cfg.Locator)
	if err != nil {
		return fmt.Errorf("daemon: router listen %s: %w", s.cfg.Locator, err)
	}
	s.ln = ln
	if s.cfg.AdminAddr != "" {
		if s.adminLn, err = net.Listen("tcp", s.cfg.AdminAddr); err != nil {
			_ = s.ln.Close()
			return fmt.Errorf("daemon: admin listen %s: %w", s.cfg.AdminAddr, err)
		}
		s.admin = admin.New(admin.Options{
			Name:    "router",
			Routes:  s.router.Routes,
			Metrics: true,
			Auth:    config.AdminAuth(s.cfg.AdminToken),
		})
	}
	log.Info().Str("locator", s.cfg.Locator.String()).Bool("identity_binding", s.cfg.RequireIdentityBinding).
		Msg("daemon.RouterService.Start ready")
	return nil
}

func (s *RouterService) Serve(ctx context.Context) error {
	if s.router == nil {
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
		_ = s.ln.Close()
		if s.adminLn != nil {
			_ = s.adminLn.Close()
		}
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("daemon.RouterService.Serve tracing shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 2)
	running := 1
	go func() { errs <- s.router.Serve(ctx, s.ln) }()
	if s.admin != nil {
		running++
		go func() { errs <- s.admin.Serve(ctx, s.adminLn) }()
	}
	var first error
	for ; running > 0; running-- {
		if err := <-errs; err != nil && first == nil {
			first = err
			log.Error().Err(err).Msg("daemon.RouterService.Serve failed")
		}
		cancel()
	}
	return first
}
