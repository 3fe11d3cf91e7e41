package models

import "time"

// MinLandmarks is the number of points the face-mesh model emits per face.
const MinLandmarks = 468

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LandmarkFrame is one result from the landmark provider. Landmarks belong
// to the first detected face and are only meaningful when Detected is set.
type LandmarkFrame struct {
	Detected  bool    `json:"detected"`
	Landmarks []Point `json:"landmarks,omitempty"`
}

// Valid reports whether a frame that claims a face carries a full mesh.
func (f LandmarkFrame) Valid() bool {
	return !f.Detected || len(f.Landmarks) >= MinLandmarks
}

type FrameResult struct {
	EAR                 float64 `json:"ear"`
	Phase               string  `json:"phase"`
	Indicator           string  `json:"indicator"`
	Status              Status  `json:"status"`
	CalibrationProgress int     `json:"calibration_progress"`
	Threshold           float64 `json:"threshold,omitempty"`
	ClosedStreak        int     `json:"closed_streak"`
	AlertActive         bool    `json:"alert_active"`
	AlertCount          int     `json:"alert_count"`
	SequenceNumber      int32   `json:"sequence_number,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

type HealthStatus struct {
	Status         string        `json:"status"`
	Store          string        `json:"store"`
	StoreHealthy   bool          `json:"store_healthy"`
	ActiveSessions int           `json:"active_sessions"`
	Uptime         time.Duration `json:"uptime"`
	Version        string        `json:"version,omitempty"`
}
