package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics holds the prometheus request instruments served on /metrics.
type HTTPMetrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics builds a dedicated registry for request instruments. The
// default registry (runtime collectors, gorm pool stats) is gathered alongside.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(cfg, prometheus.NewRegistry())
}

func newHTTPMetrics(cfg Config, registry *prometheus.Registry) *HTTPMetrics {
	constLabels := prometheus.Labels{"service": cfg.ServiceName}
	if env := strings.TrimSpace(cfg.Environment); env != "" {
		constLabels["env"] = env
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "tryon_http_requests_total",
		Help:        "HTTP requests by route, method and status.",
		ConstLabels: constLabels,
	}, []string{"route", "method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "tryon_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60, 120},
	}, []string{"route", "method"})

	registry.MustRegister(requests, duration)

	return &HTTPMetrics{registry: registry, requests: requests, duration: duration}
}

// Middleware records one observation per request, keyed by route template.
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// Handler serves this registry together with the default gatherer.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	gatherers := prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
	h := promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
