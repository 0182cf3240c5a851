package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Snapshotter renders the current value of every collected metric as a
// JSON-friendly map, grouped by metric type:
//
//	{
//	  "counters":   {"fsgate_requests_total{code=200,op=OPEN}": 12, ...},
//	  "gauges":     {"fsgate_requests_in_flight{op=OPEN}": 1, ...},
//	  "histograms": {"fsgate_request_duration_seconds{op=OPEN}": {"count": 12, "sum": 0.4}},
//	  "summaries":  {...}
//	}
type Snapshotter struct {
	gatherer prometheus.Gatherer
}

// NewSnapshotter reads from reg. A nil registry produces empty snapshots.
func NewSnapshotter(reg *Registry) *Snapshotter {
	if !reg.Enabled() {
		return &Snapshotter{}
	}
	return &Snapshotter{gatherer: reg.Registry}
}

// Snapshot gathers all metric families.
func (s *Snapshotter) Snapshot() (map[string]any, error) {
	counters := map[string]any{}
	gauges := map[string]any{}
	histograms := map[string]any{}
	summaries := map[string]any{}

	result := map[string]any{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
		"summaries":  summaries,
	}
	if s.gatherer == nil {
		return result, nil
	}

	families, err := s.gatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	for _, family := range families {
		for _, m := range family.GetMetric() {
			key := seriesKey(family.GetName(), m.GetLabel())

			switch family.GetType() {
			case dto.MetricType_COUNTER:
				counters[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				gauges[key] = m.GetGauge().GetValue()
			case dto.MetricType_UNTYPED:
				gauges[key] = m.GetUntyped().GetValue()
			case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				h := m.GetHistogram()
				histograms[key] = map[string]any{
					"count": h.GetSampleCount(),
					"sum":   h.GetSampleSum(),
				}
			case dto.MetricType_SUMMARY:
				sm := m.GetSummary()
				summaries[key] = map[string]any{
					"count": sm.GetSampleCount(),
					"sum":   sm.GetSampleSum(),
				}
			}
		}
	}

	return result, nil
}

// seriesKey formats name{k=v,...} with labels sorted by name.
func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}

	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}
