// Package admin serves the HTTP side of a node or router: health,
// readiness, Prometheus metrics and a read-only view of the parameter tree
// or the routing table.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgeparams/internal/auth"
	"github.com/danmuck/edgeparams/internal/observability"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/transport"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const Version = "0.1.0"

// Options selects what the admin server exposes. A nil Provider omits the
// /params routes; a nil Routes omits /routes. A non-nil Auth guards both.
type Options struct {
	Name        string
	Provider    params.Provider
	Ready       func() bool
	Routes      func() []transport.RouteInfo
	Metrics     bool
	CorsOrigins []string
	Auth        auth.Validator
	Tracer      trace.Tracer
}

type Server struct {
	opts    Options
	router  *gin.Engine
	started time.Time
}

func New(opts Options) *Server {
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/danmuck/edgeparams/internal/admin")
	}
	if opts.Metrics {
		observability.RegisterMetrics()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestTracing(opts.Tracer))
	if opts.Metrics {
		r.Use(observability.RequestMetricsMiddleware(opts.Name))
	}
	if origins := normalizeOrigins(opts.CorsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{opts: opts, router: r, started: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.opts.Name,
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.opts.Ready == nil || s.opts.Ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":  ready,
			"uptime": time.Since(s.started).String(),
			"node":   s.opts.Name,
		})
	})

	if s.opts.Metrics {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	guarded := s.router.Group("/")
	if s.opts.Auth != nil {
		guarded.Use(auth.Middleware(s.opts.Auth))
	}
	if s.opts.Provider != nil {
		guarded.GET("/params", s.listParams)
		guarded.GET("/params/*name", s.getParam)
	}
	if s.opts.Routes != nil {
		guarded.GET("/routes", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"routes": s.opts.Routes()})
		})
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", ln.Addr().String()).Str("node", s.opts.Name).Msg("admin.Server.Serve listening")
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	return out
}
