package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerScrape(t *testing.T) {
	reg := NewRegistry()
	NewGatewayMetrics(reg).RecordRequest("OPEN", 200, time.Millisecond)

	s := NewServer(reg, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var body string
	require.Eventually(t, func() bool {
		if s.Port() == 0 {
			return false
		}
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", s.Port()))
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, "fsgate_requests_total")

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", s.Port()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServerStopBeforeStart(t *testing.T) {
	s := NewServer(nil, 0)
	require.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, s.Start(context.Background()))
}

func TestServerDisabledRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(nil, 0).handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
