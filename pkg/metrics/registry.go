// Package metrics provides Prometheus metrics collection for fsgate.
//
// Metrics are optional. Components receive a *Registry at construction; a nil
// registry yields no-op implementations with zero overhead.
//
// Usage:
//
//	reg := metrics.NewRegistry()
//	gw := metrics.NewGatewayMetrics(reg)
//	s3m := metrics.NewS3Metrics(reg)
//
//	// Or disabled
//	gw := metrics.NewGatewayMetrics(nil)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fsgate"

// Registry wraps the Prometheus registry shared by all fsgate collectors.
type Registry struct {
	*prometheus.Registry
}

// NewRegistry creates a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{Registry: reg}
}

// Enabled reports whether r collects anything.
func (r *Registry) Enabled() bool {
	return r != nil && r.Registry != nil
}

// RegisterGaugeFunc exposes a value computed at scrape time.
func (r *Registry) RegisterGaugeFunc(name, help string, fn func() float64) {
	if !r.Enabled() {
		return
	}
	r.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
