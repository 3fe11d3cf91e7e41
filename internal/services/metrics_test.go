package services

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementFrames()
	m.IncrementFrames()
	m.RecordLatency(4 * time.Millisecond)
	m.IncrementDropped()
	m.SessionStarted()
	m.SessionEnded(true, false)
	m.SessionStarted()

	assert.Equal(t, int64(2), m.GetTotalFrames())
	assert.InDelta(t, 2.0, m.GetAvgLatency(), 1e-9)
	assert.Equal(t, 1, m.GetActiveSessions())

	snap := m.Snapshot()
	sessions := snap["sessions"].(map[string]interface{})
	assert.Equal(t, int64(1), sessions["saved"])
	assert.Equal(t, int64(2), sessions["started"])
}

func TestMetricsPrometheusHandler(t *testing.T) {
	m := NewMetrics()
	m.IncrementAlerts()
	m.IncrementWebSocketConnections()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "driveguardian_alerts_total 1")
	assert.Contains(t, string(body), "driveguardian_ws_connections 1")
}
