package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var reg *Registry
	assert.False(t, reg.Enabled())

	m := NewGatewayMetrics(nil)
	m.RecordRequest("OPEN", 200, time.Millisecond)
	m.RecordHandleAcquired()

	assert.Nil(t, NewS3Metrics(nil))

	snap, err := NewSnapshotter(nil).Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap["counters"])
}

func TestSnapshot(t *testing.T) {
	reg := NewRegistry()
	m := NewGatewayMetrics(reg)

	m.RecordRequest("OPEN", 200, 20*time.Millisecond)
	m.RecordRequest("OPEN", 200, 30*time.Millisecond)
	m.RecordRequestStart("DELETE")
	m.RecordHandleAcquired()
	m.RecordHandleReleased()
	m.RecordImpersonation(false)
	m.RecordBytesTransferred("read", 50)

	reg.RegisterGaugeFunc("backend_active_sessions", "Open backend sessions", func() float64 { return 2 })

	snap, err := NewSnapshotter(reg).Snapshot()
	require.NoError(t, err)

	counters := snap["counters"].(map[string]any)
	assert.Equal(t, 2.0, counters["fsgate_requests_total{code=200,op=OPEN}"])
	assert.Equal(t, 1.0, counters["fsgate_backend_handles_total{event=acquired}"])
	assert.Equal(t, 1.0, counters["fsgate_impersonations_total{outcome=denied}"])
	assert.Equal(t, 50.0, counters["fsgate_bytes_transferred_total{direction=read}"])

	gauges := snap["gauges"].(map[string]any)
	assert.Equal(t, 1.0, gauges["fsgate_requests_in_flight{op=DELETE}"])
	assert.Equal(t, 2.0, gauges["fsgate_backend_active_sessions"])

	histograms := snap["histograms"].(map[string]any)
	h := histograms["fsgate_request_duration_seconds{op=OPEN}"].(map[string]any)
	assert.Equal(t, uint64(2), h["count"])
	assert.InDelta(t, 0.05, h["sum"], 1e-9)
}

func TestS3Metrics(t *testing.T) {
	reg := NewRegistry()
	m := NewS3Metrics(reg)
	require.NotNil(t, m)

	m.ObserveOperation("PutObject", time.Millisecond, nil)
	m.RecordMultipart("completed")

	snap, err := NewSnapshotter(reg).Snapshot()
	require.NoError(t, err)
	counters := snap["counters"].(map[string]any)
	assert.Equal(t, 1.0, counters["fsgate_s3_operations_total{operation=PutObject,status=success}"])
	assert.Equal(t, 1.0, counters["fsgate_s3_multipart_uploads_total{status=completed}"])
}
