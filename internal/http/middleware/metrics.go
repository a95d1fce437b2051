// Package middleware – HTTP metrics
//
// Metrics() instruments the ops API with Prometheus. Labels:
//
//   - method: HTTP verb
//   - route:  the registered Gin route, or "unmatched" when none matched,
//     so scanners hitting random URLs cannot grow the series set
//   - status: numeric status code as a string
//
// The concierge's own work is counted in internal/metrics; these series only
// cover the operator surface.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_http_requests_total",
			Help: "Ops API requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	// Status is left off the histogram to keep its cardinality low.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_http_request_duration_seconds",
			Help:    "Ops API request duration in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "concierge_http_requests_inflight",
			Help: "Ops API requests currently being served.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight)
}

// Metrics returns a Gin middleware that records request counts, latency and
// in-flight requests. Trigger endpoints run a greeting or a sweep inline, so
// the latency buckets reach up to a minute.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
