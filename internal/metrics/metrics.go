// Package metrics exposes Prometheus counters for the auth flows and an
// echo middleware for request totals and latency.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bean_counter_auth_events_total",
			Help: "Login, refresh and logout outcomes by result.",
		},
		[]string{"flow", "result"},
	)

	gateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bean_counter_gate_decisions_total",
			Help: "Permission gate and edge gatekeeper decisions.",
		},
		[]string{"gate", "decision"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registerOnce sync.Once
)

// Init registers the collectors with the default registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(authEvents, gateDecisions, httpRequestsTotal, httpRequestDuration)
	})
}

// Handler serves /metrics.
func Handler() http.Handler { return promhttp.Handler() }

// Auth counts one outcome of flow ("login", "refresh", "logout").
// result is "ok" or an error kind such as "session_invalid".
func Auth(flow, result string) { authEvents.WithLabelValues(flow, result).Inc() }

// Gate counts one decision of gate ("page", "action", "edge").
func Gate(gate, decision string) { gateDecisions.WithLabelValues(gate, decision).Inc() }

// Middleware records request totals and latency by route template, so
// path parameters do not explode label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
