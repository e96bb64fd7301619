// Package metrics exposes Prometheus instrumentation for the server:
//
//   - kitemcp_orders_total{outcome}          – order placements by terminal outcome
//   - kitemcp_auth_attempts_total{result}    – authentication flows by result
//   - kitemcp_kite_request_seconds{endpoint} – brokerage round-trip latency
//   - kitemcp_session_valid                  – 1 while a live session is bound
//   - kitemcp_stream_subscribers             – connected websocket subscribers
//
// Collectors live on a dedicated registry served at /metrics so the default
// registry's Go runtime collectors don't leak into the exposition unasked.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitemcp_orders_total",
			Help: "Order placements by terminal outcome",
		},
		[]string{"outcome"}, // SUCCESS|PLACED_BUT_REJECTED|REJECTED|ERROR|AUTH_ERROR
	)

	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitemcp_auth_attempts_total",
			Help: "Authentication flows by result",
		},
		[]string{"result"}, // success|failure|timeout
	)

	kiteRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kitemcp_kite_request_seconds",
			Help:    "Latency of brokerage REST round trips",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	sessionValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitemcp_session_valid",
			Help: "1 while a live brokerage session is bound, 0 otherwise",
		},
	)

	streamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitemcp_stream_subscribers",
			Help: "Connected websocket event subscribers",
		},
	)
)

func init() {
	registry.MustRegister(ordersTotal, authAttempts, kiteRequestSeconds, sessionValid, streamSubscribers)
}

// Handler returns the /metrics HTTP handler for the package registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncOrderOutcome counts one terminal order outcome.
func IncOrderOutcome(outcome string) { ordersTotal.WithLabelValues(outcome).Inc() }

// IncAuthAttempt counts one authentication flow result.
func IncAuthAttempt(result string) { authAttempts.WithLabelValues(result).Inc() }

// ObserveKiteRequest records the latency of one brokerage round trip.
func ObserveKiteRequest(endpoint string, seconds float64) {
	kiteRequestSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// SetSessionValid flips the session gauge.
func SetSessionValid(valid bool) {
	if valid {
		sessionValid.Set(1)
	} else {
		sessionValid.Set(0)
	}
}

// SetStreamSubscribers records the current websocket subscriber count.
func SetStreamSubscribers(n int) { streamSubscribers.Set(float64(n)) }
