package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marker"

// promMetrics mirrors the collector into Prometheus series.
type promMetrics struct {
	registry    *prometheus.Registry
	opDuration  *prometheus.HistogramVec
	tokensTotal *prometheus.CounterVec
	jobsTotal   *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func newPromMetrics() *promMetrics {
	p := &promMetrics{
		registry: prometheus.NewRegistry(),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent per pipeline operation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"op"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed, partitioned by operation and direction.",
		}, []string{"op", "direction"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Marking jobs by status transition.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests partitioned by status code, method and HTTP path.",
		}, []string{"code", "method", "path"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_milliseconds",
			Help:      "Time spent on the request partitioned by status code, method and HTTP path.",
			Buckets:   []float64{50, 300, 1000, 5000},
		}, []string{"code", "method", "path"}),
	}

	p.registry.MustRegister(
		p.opDuration, p.tokensTotal, p.jobsTotal, p.requests, p.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *promMetrics) observe(op string, d time.Duration) {
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *promMetrics) tokens(op string, in, out int64) {
	p.tokensTotal.WithLabelValues(op, "input").Add(float64(in))
	p.tokensTotal.WithLabelValues(op, "output").Add(float64(out))
}

func (p *promMetrics) job(status string) {
	p.jobsTotal.WithLabelValues(status).Inc()
}

// Registry exposes the Prometheus registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.prom.registry
}

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.prom.registry, promhttp.HandlerOpts{})
}

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// Middleware counts requests and their latency by route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Raw paths would give 404 scans one series each.
		path := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		c.prom.requests.WithLabelValues(code, r.Method, path).Inc()
		c.prom.latency.WithLabelValues(code, r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}
