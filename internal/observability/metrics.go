package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "simplesla_notifier"

// Metrics stores Prometheus collectors used by the API and the notifier.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	completionsReceived *prometheus.CounterVec
	ticketsSent         *prometheus.CounterVec
	ticketsFailed       *prometheus.CounterVec
	ticketsSkipped      *prometheus.CounterVec
	ticketSendDuration  *prometheus.HistogramVec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
	}, labels)
}

func newHistogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: newCounterVec("http_requests_total",
			"HTTP requests processed, by method, route and status.",
			"method", "path", "status"),
		httpRequestDuration: newHistogramVec("http_request_duration_seconds",
			"HTTP request duration in seconds, by method and route.",
			prometheus.DefBuckets, "method", "path"),

		completionsReceived: newCounterVec("build_completions_received_total",
			"Well-formed build completion signals, by source (http, amqp).",
			"source"),
		ticketsSent: newCounterVec("notifications_sent_total",
			"Tickets the monitoring server answered with 200, by build result.",
			"result"),
		ticketsFailed: newCounterVec("notifications_failed_total",
			"Ticket deliveries that failed, by reason (error kind or status_<code>).",
			"reason"),
		ticketsSkipped: newCounterVec("notifications_skipped_total",
			"Build completions that produced no request, by reason.",
			"reason"),
		ticketSendDuration: newHistogramVec("notification_send_duration_seconds",
			"Ticket POST duration in seconds, by build result.",
			prometheus.ExponentialBuckets(0.01, 2, 12), "result"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.completionsReceived,
		m.ticketsSent,
		m.ticketsFailed,
		m.ticketsSkipped,
		m.ticketSendDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncCompletionReceived(source string) {
	if m == nil {
		return
	}
	m.completionsReceived.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *Metrics) IncNotificationSent(result string) {
	if m == nil {
		return
	}
	m.ticketsSent.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncNotificationFailed(reason string) {
	if m == nil {
		return
	}
	m.ticketsFailed.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncNotificationSkipped(reason string) {
	if m == nil {
		return
	}
	m.ticketsSkipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveNotificationSendDuration(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ticketSendDuration.WithLabelValues(normalizeLabel(result)).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
