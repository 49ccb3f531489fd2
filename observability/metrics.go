package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks the lending service.
type LendingMetrics struct {
	operations     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	events         *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	oracleFailures *prometheus.CounterVec
	reserves       *prometheus.GaugeVec
	borrowed       *prometheus.GaugeVec
	utilisation    *prometheus.GaugeVec
}

// HTTPMetrics tracks the HTTP gateway.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *LendingMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// Lending returns the lazily registered lending metrics.
func Lending() *LendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Lending operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "operation_duration_seconds",
				Help:      "Latency of lending operations including the commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "events_total",
				Help:      "Committed lending events by type.",
			}, []string{"type"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Committed liquidations by repaid asset.",
			}, []string{"asset"}),
			oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "oracle_failures_total",
				Help:      "Operations aborted because a price was unavailable.",
			}, []string{"operation"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "pool_reserves",
				Help:      "Liquid reserves per pool, in asset units.",
			}, []string{"asset"}),
			borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "pool_borrowed",
				Help:      "Outstanding debt per pool, in asset units.",
			}, []string{"asset"}),
			utilisation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendhub",
				Subsystem: "lending",
				Name:      "pool_utilisation_bp",
				Help:      "Pool utilisation in base points.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.events,
			lendingRegistry.liquidations,
			lendingRegistry.oracleFailures,
			lendingRegistry.reserves,
			lendingRegistry.borrowed,
			lendingRegistry.utilisation,
		)
	})
	return lendingRegistry
}

// ObserveOperation records the outcome of one external call.
func (m *LendingMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := label(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEvent counts a committed event.
func (m *LendingMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(label(eventType)).Inc()
}

// RecordLiquidation counts a committed liquidation.
func (m *LendingMetrics) RecordLiquidation(asset string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(label(asset)).Inc()
}

// RecordOracleFailure counts an operation aborted by a missing price.
func (m *LendingMetrics) RecordOracleFailure(operation string) {
	if m == nil {
		return
	}
	m.oracleFailures.WithLabelValues(label(operation)).Inc()
}

// RecordPool publishes the ledger totals of one pool.
func (m *LendingMetrics) RecordPool(asset string, reserves, borrowed, utilisation *big.Int) {
	if m == nil {
		return
	}
	asset = label(asset)
	m.reserves.WithLabelValues(asset).Set(bigToFloat(reserves))
	m.borrowed.WithLabelValues(asset).Set(bigToFloat(borrowed))
	m.utilisation.WithLabelValues(asset).Set(bigToFloat(utilisation))
}

// HTTP returns the lazily registered gateway metrics.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendhub",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route, method and status.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendhub",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP handler latency by route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendhub",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records one served request.
func (m *HTTPMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = label(route)
	method = label(method)
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request.
func (m *HTTPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason)).Inc()
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
