package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/params"
	"github.com/danmuck/edgeparams/internal/rcl"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeparams",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeparams",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	serviceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeparams",
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Service requests served by the node.",
		},
		[]string{"node", "service", "result"},
	)
	serviceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeparams",
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "Service handler duration in seconds.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"node", "service"},
	)
	serviceReplyBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeparams",
			Subsystem: "service",
			Name:      "reply_bytes",
			Help:      "Encoded reply size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 7),
		},
		[]string{"node", "service"},
	)
	setRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeparams",
			Subsystem: "params",
			Name:      "set_rejected_total",
			Help:      "Parameter sets refused by validation or the provider.",
		},
		[]string{"node", "reason"},
	)
	replyTruncated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeparams",
			Subsystem: "params",
			Name:      "reply_truncated_total",
			Help:      "Replies cut short because the reply buffer filled.",
		},
		[]string{"node", "service"},
	)
	routedQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeparams",
			Subsystem: "router",
			Name:      "queries_total",
			Help:      "Caller queries handled by the router.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			serviceRequests, serviceDuration, serviceReplyBytes,
			setRejected, replyTruncated,
			routedQueries,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordRoutedQuery counts one router forward by outcome ("ok",
// "no_route", "unavailable", "malformed").
func RecordRoutedQuery(outcome string) {
	RegisterMetrics()
	routedQueries.WithLabelValues(outcome).Inc()
}

// NodeMetrics records request and parameter events for one node. It
// satisfies node.RequestObserver and paramsrv.Observer.
type NodeMetrics struct {
	node string
}

func NewNodeMetrics(nodeName string) *NodeMetrics {
	RegisterMetrics()
	return &NodeMetrics{node: nodeName}
}

func (m *NodeMetrics) ObserveRequest(service string, duration time.Duration, replyBytes int, err error) {
	serviceRequests.WithLabelValues(m.node, service, node.ResultOf(err).String()).Inc()
	serviceDuration.WithLabelValues(m.node, service).Observe(duration.Seconds())
	if err == nil {
		serviceReplyBytes.WithLabelValues(m.node, service).Observe(float64(replyBytes))
	}
}

func (m *NodeMetrics) SetRejected(_ rcl.Kind, _ string, err error) {
	setRejected.WithLabelValues(m.node, rejectReason(err)).Inc()
}

func (m *NodeMetrics) Truncated(kind rcl.Kind, _, _ int) {
	replyTruncated.WithLabelValues(m.node, kind.String()).Inc()
}

// rejectReason keeps the label set bounded; provider errors are free text.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, params.ErrNotFound):
		return "not_found"
	case errors.Is(err, params.ErrReadOnly):
		return "read_only"
	case errors.Is(err, params.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, params.ErrOutOfRange):
		return "out_of_range"
	default:
		return "provider"
	}
}

// RouterMetrics satisfies transport.RouteObserver.
type RouterMetrics struct{}

func (RouterMetrics) ObserveRoute(outcome string) {
	RecordRoutedQuery(outcome)
}
