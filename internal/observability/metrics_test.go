package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/paramsrv"
	"github.com/danmuck/edgeparams/internal/rcl"
	"github.com/danmuck/edgeparams/internal/testutil/testlog"
	"github.com/danmuck/edgeparams/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	_ node.RequestObserver    = (*NodeMetrics)(nil)
	_ paramsrv.Observer       = (*NodeMetrics)(nil)
	_ transport.RouteObserver = RouterMetrics{}
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()
	RecordHTTPRequest("arm", "GET", "/health", 200, 12*time.Millisecond)
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("arm", "GET", "/health", "200")); got < 1 {
		t.Fatalf("http counter=%v", got)
	}
}

func TestNodeMetricsRecordsOutcomes(t *testing.T) {
	testlog.Start(t)
	m := NewNodeMetrics("metrics-node")

	m.ObserveRequest("get_parameters", time.Millisecond, 64, nil)
	m.ObserveRequest("get_parameters", time.Millisecond, 0, node.ErrNotReady)
	m.ObserveRequest("get_parameters", time.Millisecond, 0, errors.New("boom"))
	for result, want := range map[string]float64{"ok": 1, "not_ready": 1, "error": 1} {
		if got := testutil.ToFloat64(serviceRequests.WithLabelValues("metrics-node", "get_parameters", result)); got != want {
			t.Fatalf("result %s=%v want %v", result, got, want)
		}
	}

	m.SetRejected(rcl.KindSetParameters, "a", params.ErrReadOnly)
	m.SetRejected(rcl.KindSetParameters, "b", params.ErrOutOfRange)
	m.SetRejected(rcl.KindSetParameters, "c", errors.New("motor busy"))
	for reason, want := range map[string]float64{"read_only": 1, "out_of_range": 1, "provider": 1, "not_found": 0} {
		if got := testutil.ToFloat64(setRejected.WithLabelValues("metrics-node", reason)); got != want {
			t.Fatalf("reason %s=%v want %v", reason, got, want)
		}
	}

	m.Truncated(rcl.KindListParameters, 3, 9)
	if got := testutil.ToFloat64(replyTruncated.WithLabelValues("metrics-node", "list_parameters")); got != 1 {
		t.Fatalf("truncated=%v", got)
	}

	before := testutil.ToFloat64(routedQueries.WithLabelValues("no_route"))
	RouterMetrics{}.ObserveRoute("no_route")
	if got := testutil.ToFloat64(routedQueries.WithLabelValues("no_route")); got != before+1 {
		t.Fatalf("routed=%v", got)
	}
}

func TestMiddlewareChain(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(
		RequestLogger(zerolog.Nop()),
		RequestMetricsMiddleware("mw-node"),
		RequestTracing(noop.NewTracerProvider().Tracer("test")),
	)
	r.GET("/items/:id", func(c *gin.Context) {
		if c.Request.Context() == context.Background() {
			t.Errorf("expected span context on request")
		}
		c.String(http.StatusOK, c.Param("id"))
	})

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-node", "GET", "/items/:id", "200")); got != 2 {
		t.Fatalf("route counter=%v", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("mw-node", "GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched counter=%v", got)
	}
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	testlog.Start(t)
	shutdown, err := InitTracing(context.Background(), TracingOptions{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
