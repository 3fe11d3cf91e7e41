// Package detection turns face-mesh landmarks into eye-openness readings and
// runs the per-session calibration and drowsiness state machine.
package detection

import (
	"math"

	"driveguardian/go-backend/internal/models"
)

// Face-mesh indices for each eye, ordered outer corner, upper lid 1, upper
// lid 2, inner corner, lower lid 2, lower lid 1.
var (
	LeftEye  = [6]int{33, 160, 158, 133, 153, 144}
	RightEye = [6]int{362, 385, 387, 263, 373, 380}
)

func dist(a, b models.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// EyeAspectRatio computes the openness ratio of a single eye. It is large
// for an open eye and tends to zero as the lids close.
func EyeAspectRatio(p [6]models.Point) float64 {
	return (dist(p[1], p[5]) + dist(p[2], p[4])) / (2 * dist(p[0], p[3]))
}

func eyePoints(landmarks []models.Point, idx [6]int) [6]models.Point {
	var pts [6]models.Point
	for i, j := range idx {
		pts[i] = landmarks[j]
	}
	return pts
}

// FrameEAR averages the ratio of both eyes. The landmark slice must hold a
// full face mesh.
func FrameEAR(landmarks []models.Point) float64 {
	left := EyeAspectRatio(eyePoints(landmarks, LeftEye))
	right := EyeAspectRatio(eyePoints(landmarks, RightEye))
	return (left + right) / 2
}
