// pkg/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// "service" label lets one query compare the api and the worker
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Name:      "requests_total",
			Help:      "Total requests handled per service",
		},
		[]string{"service", "status", "method"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bank",
			Name:      "request_duration_seconds",
			Help:      "Request duration per service",
			// dense sub-second buckets
			Buckets: []float64{
				0.01, 0.02, 0.03, 0.05, 0.08, 0.12,
				0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5,
			},
		},
		[]string{"service", "status"},
	)

	MomoCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Subsystem: "momo",
			Name:      "callbacks_total",
			Help:      "MOMO callbacks by outcome",
		},
		[]string{"result"},
	)

	MomoProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Subsystem: "momo",
			Name:      "provider_calls_total",
			Help:      "Calls made to the MOMO API",
		},
		[]string{"op", "status"},
	)

	MarketCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Subsystem: "market",
			Name:      "cache_total",
			Help:      "Market data cache lookups",
		},
		[]string{"result"},
	)

	EventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bank",
			Subsystem: "queue",
			Name:      "events_consumed_total",
			Help:      "Transaction events handled by the worker",
		},
		[]string{"type", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, RequestDuration,
		MomoCallbacks, MomoProviderCalls,
		MarketCache, EventsConsumed,
	)
}

func IncRequest(service, status, method string) {
	RequestsTotal.WithLabelValues(service, status, method).Inc()
}

func ObserveDuration(service, status string, seconds float64) {
	RequestDuration.WithLabelValues(service, status).Observe(seconds)
}

func IncCallback(result string) {
	MomoCallbacks.WithLabelValues(result).Inc()
}

func IncProviderCall(op, status string) {
	MomoProviderCalls.WithLabelValues(op, status).Inc()
}

func IncCache(result string) {
	MarketCache.WithLabelValues(result).Inc()
}

func IncEvent(typ, status string) {
	EventsConsumed.WithLabelValues(typ, status).Inc()
}
