// Package metrics provides Prometheus instrumentation for the wager engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WagersTotal counts accepted wagers, partitioned by market and outcome.
	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piki_wagers_total",
		Help: "Total number of wagers placed",
	}, []string{"market_id", "outcome"})

	// WagerRejections counts rejected wager attempts by reason.
	WagerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piki_wager_rejections_total",
		Help: "Wager attempts rejected, by reason",
	}, []string{"reason"})

	// WagerLatency tracks time spent inside PlaceWager.
	WagerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "piki_wager_latency_seconds",
		Help:    "Wager placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"market_id"})

	// StakedVolume tracks cumulative dollars staked per market.
	StakedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piki_staked_volume_total",
		Help: "Cumulative dollars staked",
	}, []string{"market_id"})

	// AccountsOpened counts registrations.
	AccountsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "piki_accounts_opened_total",
		Help: "Accounts opened",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "piki_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piki_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "piki_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(duration)
	})
}

// routePattern returns the matched chi route pattern so that path labels
// stay low-cardinality, falling back to the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
