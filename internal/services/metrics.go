package services

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	totalFrames   atomic.Int64
	droppedFrames atomic.Int64
	noFaceFrames  atomic.Int64
	totalErrors   atomic.Int64
	totalLatency  atomic.Int64
	lastFrameTime atomic.Int64

	alertsRaised      atomic.Int64
	sessionsStarted   atomic.Int64
	sessionsSaved     atomic.Int64
	sessionsDiscarded atomic.Int64
	sessionsFailed    atomic.Int64
	activeSessions    atomic.Int32

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registerCollectors()
	return m
}

func (m *Metrics) registerCollectors() {
	counter := func(name, help string, v *atomic.Int64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}
	counter("driveguardian_frames_total", "Frames run through the detection engine", &m.totalFrames)
	counter("driveguardian_frames_dropped_total", "Frames dropped while a previous frame was in flight", &m.droppedFrames)
	counter("driveguardian_frames_no_face_total", "Frames without a detected face", &m.noFaceFrames)
	counter("driveguardian_errors_total", "Processing errors", &m.totalErrors)
	counter("driveguardian_alerts_total", "Drowsiness alerts raised", &m.alertsRaised)
	counter("driveguardian_sessions_started_total", "Monitoring sessions started", &m.sessionsStarted)
	counter("driveguardian_sessions_saved_total", "Sessions written to history", &m.sessionsSaved)
	counter("driveguardian_sessions_discarded_total", "Sessions stopped without a start time", &m.sessionsDiscarded)
	counter("driveguardian_sessions_failed_total", "Sessions ended by an acquisition failure", &m.sessionsFailed)
	counter("driveguardian_ws_messages_total", "WebSocket messages received", &m.wsMessages)
	counter("driveguardian_ws_errors_total", "WebSocket errors", &m.wsErrors)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "driveguardian_active_sessions", Help: "Sessions currently monitoring"},
		func() float64 { return float64(m.activeSessions.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "driveguardian_ws_connections", Help: "Open WebSocket connections"},
		func() float64 { return float64(m.wsConnections.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "driveguardian_frame_latency_avg_ms", Help: "Average frame processing latency"},
		m.GetAvgLatency,
	))
}

// Handler serves the Prometheus exposition of the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementFrames() {
	m.totalFrames.Add(1)
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementDropped()   { m.droppedFrames.Add(1) }
func (m *Metrics) IncrementNoFace()    { m.noFaceFrames.Add(1) }
func (m *Metrics) IncrementErrors()    { m.totalErrors.Add(1) }
func (m *Metrics) IncrementAlerts()    { m.alertsRaised.Add(1) }
func (m *Metrics) IncrementDiscarded() { m.sessionsDiscarded.Add(1) }

func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Add(1)
	m.activeSessions.Add(1)
}

// SessionEnded records how an active session finished. A session whose
// save failed is neither saved nor failed; the error counter tracks it.
func (m *Metrics) SessionEnded(saved, failed bool) {
	m.activeSessions.Add(-1)
	switch {
	case failed:
		m.sessionsFailed.Add(1)
	case saved:
		m.sessionsSaved.Add(1)
	}
}

func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Microseconds())
}

func (m *Metrics) GetTotalFrames() int64   { return m.totalFrames.Load() }
func (m *Metrics) GetDroppedFrames() int64 { return m.droppedFrames.Load() }
func (m *Metrics) GetTotalErrors() int64   { return m.totalErrors.Load() }
func (m *Metrics) GetAlerts() int64        { return m.alertsRaised.Load() }
func (m *Metrics) GetActiveSessions() int  { return int(m.activeSessions.Load()) }
func (m *Metrics) GetLastFrameTime() int64 { return m.lastFrameTime.Load() }

// GetAvgLatency is in milliseconds.
func (m *Metrics) GetAvgLatency() float64 {
	frames := m.totalFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(frames) / 1000
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

// Snapshot is the JSON form served on /api/metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"frames": map[string]interface{}{
			"total":       m.totalFrames.Load(),
			"dropped":     m.droppedFrames.Load(),
			"no_face":     m.noFaceFrames.Load(),
			"avg_latency": m.GetAvgLatency(),
			"last_frame":  m.lastFrameTime.Load(),
		},
		"sessions": map[string]interface{}{
			"active":    m.activeSessions.Load(),
			"started":   m.sessionsStarted.Load(),
			"saved":     m.sessionsSaved.Load(),
			"discarded": m.sessionsDiscarded.Load(),
			"failed":    m.sessionsFailed.Load(),
		},
		"alerts": m.alertsRaised.Load(),
		"errors": m.totalErrors.Load(),
		"websocket": map[string]interface{}{
			"connections": m.wsConnections.Load(),
			"messages":    m.wsMessages.Load(),
			"errors":      m.wsErrors.Load(),
		},
	}
}
