package detection

import (
	"errors"
	"fmt"

	"driveguardian/go-backend/internal/models"
)

type Phase int

const (
	Calibrating Phase = iota
	Monitoring
)

func (p Phase) String() string {
	switch p {
	case Calibrating:
		return "CALIBRATING"
	case Monitoring:
		return "MONITORING"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

type Indicator string

const (
	IndicatorCalibrating Indicator = "CALIBRATING"
	IndicatorNormal      Indicator = "NORMAL"
	IndicatorEyesClosing Indicator = "EYES_CLOSING"
	IndicatorDrowsy      Indicator = "DROWSY"
	IndicatorNoFace      Indicator = "NO_FACE"
)

// Params tunes the state machine.
type Params struct {
	// CalibrationFrames is the number of face frames averaged into the baseline.
	CalibrationFrames int
	// ThresholdRatio scales the baseline EAR into the closed-eye threshold.
	ThresholdRatio float64
	// WarningFrames is the closed streak after which the alert condition holds.
	WarningFrames int
	// AlarmFrame is the closed streak at which one alert is tallied.
	AlarmFrame int
}

func DefaultParams() Params {
	return Params{
		CalibrationFrames: 100,
		ThresholdRatio:    0.75,
		WarningFrames:     10,
		AlarmFrame:        21,
	}
}

var ErrInvalidParams = errors.New("invalid detection parameters")

func (p Params) Validate() error {
	switch {
	case p.CalibrationFrames <= 0:
		return fmt.Errorf("%w: calibration frames must be positive", ErrInvalidParams)
	case p.ThresholdRatio <= 0 || p.ThresholdRatio > 1:
		return fmt.Errorf("%w: threshold ratio must be in (0, 1]", ErrInvalidParams)
	case p.WarningFrames < 0:
		return fmt.Errorf("%w: warning frames must not be negative", ErrInvalidParams)
	case p.AlarmFrame <= p.WarningFrames:
		return fmt.Errorf("%w: alarm frame must come after the warning window", ErrInvalidParams)
	}
	return nil
}

// State is the mutable part of one monitoring session. Step never modifies
// the State it is given; callers keep the returned value.
type State struct {
	Phase        Phase
	Samples      []float64
	Threshold    float64
	ClosedStreak int
	AlertActive  bool
	AlertCount   int
}

func (s State) Calibrated() bool {
	return s.Phase == Monitoring
}

// Event describes what a single frame did to the session.
type Event struct {
	Detected            bool
	EAR                 float64
	Indicator           Indicator
	Status              models.Status
	CalibrationProgress int
	CalibrationDone     bool
	AlertStarted        bool
	AlertStopped        bool
	AlertRaised         bool
}

func progress(samples int, p Params) int {
	return min(100, samples*100/p.CalibrationFrames)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Step advances the session by one frame.
func Step(s State, f models.LandmarkFrame, p Params) (State, Event) {
	if !f.Detected {
		if s.Phase == Calibrating {
			return s, Event{
				Indicator:           IndicatorCalibrating,
				Status:              models.StatusWarning,
				CalibrationProgress: progress(len(s.Samples), p),
			}
		}
		return s, Event{
			Indicator:           IndicatorNoFace,
			Status:              models.StatusWarning,
			CalibrationProgress: 100,
		}
	}

	ear := FrameEAR(f.Landmarks)
	ev := Event{Detected: true, EAR: ear}

	if s.Phase == Calibrating {
		n := len(s.Samples)
		s.Samples = append(s.Samples[:n:n], ear)
		ev.Indicator = IndicatorCalibrating
		ev.Status = models.StatusWarning
		ev.CalibrationProgress = progress(len(s.Samples), p)
		if len(s.Samples) == p.CalibrationFrames {
			s.Threshold = mean(s.Samples) * p.ThresholdRatio
			s.Phase = Monitoring
			ev.CalibrationDone = true
			ev.Indicator = IndicatorNormal
			ev.Status = models.StatusSafe
		}
		return s, ev
	}

	ev.CalibrationProgress = 100
	if ear < s.Threshold {
		s.ClosedStreak++
		if s.ClosedStreak > p.WarningFrames {
			ev.Indicator = IndicatorDrowsy
			ev.Status = models.StatusDanger
			if !s.AlertActive {
				s.AlertActive = true
				ev.AlertStarted = true
			}
			if s.ClosedStreak == p.AlarmFrame {
				s.AlertCount++
				ev.AlertRaised = true
			}
		} else {
			ev.Indicator = IndicatorEyesClosing
			ev.Status = models.StatusWarning
		}
		return s, ev
	}

	s.ClosedStreak = 0
	if s.AlertActive {
		s.AlertActive = false
		ev.AlertStopped = true
	}
	ev.Indicator = IndicatorNormal
	ev.Status = models.StatusSafe
	return s, ev
}

// Reset returns a fresh calibrating state. AlertStopped is set on the event
// when the previous state had the tone on.
func Reset(s State) (State, Event) {
	ev := Event{
		Indicator: IndicatorCalibrating,
		Status:    models.StatusWarning,
	}
	if s.AlertActive {
		ev.AlertStopped = true
	}
	return State{}, ev
}

// Result renders the state after ev for clients.
func (s State) Result(ev Event) models.FrameResult {
	return models.FrameResult{
		EAR:                 ev.EAR,
		Phase:               s.Phase.String(),
		Indicator:           string(ev.Indicator),
		Status:              ev.Status,
		CalibrationProgress: ev.CalibrationProgress,
		Threshold:           s.Threshold,
		ClosedStreak:        s.ClosedStreak,
		AlertActive:         s.AlertActive,
		AlertCount:          s.AlertCount,
	}
}
