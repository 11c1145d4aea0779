package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		processorCallsTotal,
		processorCallLatencyMs,
	)
}

var (
	processorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_billing_processor_calls_total",
			Help: "Processor API calls by method and result (ok or the error type).",
		},
		[]string{"method", "result"},
	)

	processorCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "course_billing_processor_call_latency_ms",
			Help:    "Processor API call latency in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 6000, 12000},
		},
		[]string{"method"},
	)
)

// ObserveProcessorCall records one processor call.
func ObserveProcessorCall(method, result string, elapsed time.Duration) {
	processorCallsTotal.WithLabelValues(method, norm(result)).Inc()
	processorCallLatencyMs.WithLabelValues(method).Observe(float64(elapsed.Milliseconds()))
}
