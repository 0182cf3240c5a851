package config

import (
	"github.com/marmos91/fsgate/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Registry collects every fsgate metric (nil if disabled)
	Registry *metrics.Registry

	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Gateway is the request metrics collector (never nil, uses noop if disabled)
	Gateway metrics.GatewayMetrics

	// Snapshots backs the INSTRUMENTATION operation (never nil, empty if disabled)
	Snapshots *metrics.Snapshotter
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Creates a Prometheus registry with the runtime collectors
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed gateway metrics
//
// If metrics are disabled:
//   - Returns nil registry and server
//   - Returns no-op metrics implementations (zero overhead)
//
// Parameters:
//   - cfg: The complete fsgate configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Gateway:   metrics.NewNoopGatewayMetrics(),
			Snapshots: metrics.NewSnapshotter(nil),
		}
	}

	reg := metrics.NewRegistry()

	return &MetricsResult{
		Registry:  reg,
		Server:    metrics.NewServer(reg, cfg.Metrics.Port),
		Gateway:   metrics.NewGatewayMetrics(reg),
		Snapshots: metrics.NewSnapshotter(reg),
	}
}
