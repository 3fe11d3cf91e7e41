package detection

import "driveguardian/go-backend/internal/models"

// SyntheticFrame builds a full face mesh whose eyes both measure ear. The
// corners sit one unit apart and both lid pairs are opened to ear.
func SyntheticFrame(ear float64) models.LandmarkFrame {
	pts := make([]models.Point, models.MinLandmarks)
	for _, idx := range [][6]int{LeftEye, RightEye} {
		pts[idx[0]] = models.Point{X: 0, Y: 0}
		pts[idx[1]] = models.Point{X: 0.25, Y: ear}
		pts[idx[2]] = models.Point{X: 0.75, Y: ear}
		pts[idx[3]] = models.Point{X: 1, Y: 0}
		pts[idx[4]] = models.Point{X: 0.75, Y: 0}
		pts[idx[5]] = models.Point{X: 0.25, Y: 0}
	}
	return models.LandmarkFrame{Detected: true, Landmarks: pts}
}

// NoFace is the frame the provider reports when no face is in view.
func NoFace() models.LandmarkFrame {
	return models.LandmarkFrame{}
}
