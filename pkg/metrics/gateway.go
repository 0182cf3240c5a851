package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics provides observability for the HTTP gateway.
//
// Example usage:
//
//	m := metrics.NewGatewayMetrics(reg) // prometheus-backed
//	m := metrics.NewGatewayMetrics(nil) // no-op
type GatewayMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - op: Operation name (e.g., "OPEN", "LISTSTATUS"), or "-" when the
	//     request failed before the operation was known
	//   - status: HTTP status code sent to the client
	//   - duration: Time from arrival to the end of the response body
	RecordRequest(op string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge.
	RecordRequestStart(op string)

	// RecordRequestEnd decrements the in-flight gauge.
	RecordRequestEnd(op string)

	// RecordBytesTransferred records body bytes.
	//
	// Parameters:
	//   - direction: "read" (to the client) or "write" (from the client)
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(direction string, bytes int64)

	// RecordHandleAcquired counts backend sessions opened by the gateway.
	RecordHandleAcquired()

	// RecordHandleReleased counts backend sessions closed by the gateway.
	RecordHandleReleased()

	// RecordImpersonation counts doAs decisions.
	RecordImpersonation(allowed bool)
}

// NewGatewayMetrics creates a Prometheus-backed GatewayMetrics, or a no-op
// implementation when reg is nil.
func NewGatewayMetrics(reg *Registry) GatewayMetrics {
	if !reg.Enabled() {
		return NewNoopGatewayMetrics()
	}

	factory := promauto.With(reg.Registry)

	return &gatewayMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of gateway requests by operation and status code",
			},
			[]string{"op", "code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of gateway requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					10,    // 10s
					60,    // 1min
				},
			},
			[]string{"op"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Current number of gateway requests being processed",
			},
			[]string{"op"},
		),
		bytesTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_transferred_total",
				Help:      "Total body bytes transferred by direction",
			},
			[]string{"direction"},
		),
		handles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_handles_total",
				Help:      "Backend sessions acquired and released by the gateway",
			},
			[]string{"event"},
		),
		impersonations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "impersonations_total",
				Help:      "doAs requests by authorization outcome",
			},
			[]string{"outcome"},
		),
	}
}

type gatewayMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	bytesTransferred *prometheus.CounterVec
	handles          *prometheus.CounterVec
	impersonations   *prometheus.CounterVec
}

func (m *gatewayMetrics) RecordRequest(op string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *gatewayMetrics) RecordRequestStart(op string) {
	m.requestsInFlight.WithLabelValues(op).Inc()
}

func (m *gatewayMetrics) RecordRequestEnd(op string) {
	m.requestsInFlight.WithLabelValues(op).Dec()
}

func (m *gatewayMetrics) RecordBytesTransferred(direction string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *gatewayMetrics) RecordHandleAcquired() {
	m.handles.WithLabelValues("acquired").Inc()
}

func (m *gatewayMetrics) RecordHandleReleased() {
	m.handles.WithLabelValues("released").Inc()
}

func (m *gatewayMetrics) RecordImpersonation(allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.impersonations.WithLabelValues(outcome).Inc()
}

// noopGatewayMetrics is a no-op implementation of GatewayMetrics.
type noopGatewayMetrics struct{}

// NewNoopGatewayMetrics returns a GatewayMetrics that discards everything.
func NewNoopGatewayMetrics() GatewayMetrics {
	return noopGatewayMetrics{}
}

func (noopGatewayMetrics) RecordRequest(string, int, time.Duration) {}
func (noopGatewayMetrics) RecordRequestStart(string)                {}
func (noopGatewayMetrics) RecordRequestEnd(string)                  {}
func (noopGatewayMetrics) RecordBytesTransferred(string, int64)     {}
func (noopGatewayMetrics) RecordHandleAcquired()                    {}
func (noopGatewayMetrics) RecordHandleReleased()                    {}
func (noopGatewayMetrics) RecordImpersonation(bool)                 {}
