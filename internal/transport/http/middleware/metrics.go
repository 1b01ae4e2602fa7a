package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Credential endpoints spend most of their time in argon2, so the buckets
// stretch further than prometheus.DefBuckets at the low end.
var defaultLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2.5, 5}

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// HTTPMetrics holds the request collectors. Errors counts responses by the
// API error code they carried, so rejected recovery keys, exhausted rate
// limits and missing grants can be told apart on a dashboard.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the collectors, reusing ones already present on the registerer.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	if opts.Namespace == "" {
		opts.Namespace = "jumbojolt"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = defaultLatencyBuckets
	}
	name := func(metric string) string {
		return prometheus.BuildFQName(opts.Namespace, "http", metric)
	}

	var (
		m   HTTPMetrics
		err error
	)
	m.Requests, err = register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name("requests_total"),
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}
	m.Errors, err = register(opts.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name("errors_total"),
		Help: "HTTP error responses by route and API error code.",
	}, []string{"route", "code"}))
	if err != nil {
		return nil, err
	}
	m.Duration, err = register(opts.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name("request_duration_seconds"),
		Help:    "HTTP request latency by method and route.",
		Buckets: opts.Buckets,
	}, []string{"method", "route"}))
	if err != nil {
		return nil, err
	}
	m.InFlight, err = register[prometheus.Gauge](opts.Registerer, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name("in_flight_requests"),
		Help: "HTTP requests currently being served.",
	}))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		return collector, nil
	case !errors.As(err, &already):
		return collector, fmt.Errorf("register http collector: %w", err)
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return collector, fmt.Errorf("register http collector: existing %T has a different type", already.ExistingCollector)
	}
	return existing, nil
}

// Handler records the request; a nil receiver yields a pass-through middleware.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
		if code := c.GetString(ErrorCodeKey); code != "" {
			m.Errors.WithLabelValues(route, code).Inc()
		}
	}
}
