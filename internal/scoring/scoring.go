// Package scoring converts the outcome of a session into a 1-10 focus score,
// a safety status and a short note.
package scoring

import (
	"math"
	"time"

	"driveguardian/go-backend/internal/models"
)

const (
	MinScore = 1.0
	MaxScore = 10.0

	alertPenalty     = 0.5
	maxDurationBonus = 2.0
	bonusMinutes     = 15.0
)

// Minutes is the whole number of minutes in d, rounded down.
func Minutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// Score rewards long sessions and penalises every raised alert.
func Score(alerts, minutes int) float64 {
	score := MaxScore - float64(alerts)*alertPenalty + math.Min(maxDurationBonus, float64(minutes)/bonusMinutes)
	score = math.Round(score*10) / 10
	return math.Max(MinScore, math.Min(MaxScore, score))
}

func Status(score float64, alerts int) models.Status {
	switch {
	case score >= 8 && alerts <= 2:
		return models.StatusSafe
	case score >= 6 && alerts <= 5:
		return models.StatusWarning
	default:
		return models.StatusDanger
	}
}

type noteRule struct {
	match func(score float64, alerts int) bool
	note  string
}

var noteRules = []noteRule{
	{func(s float64, a int) bool { return s >= 9 && a == 0 }, "Excellent focus! Perfect session."},
	{func(s float64, a int) bool { return s >= 8 && a <= 2 }, "Good focus with minor distractions."},
	{func(s float64, a int) bool { return s >= 7 && a <= 4 }, "Average focus, room for improvement."},
}

const fallbackNote = "Needs improvement - high alert count detected."

func Notes(score float64, alerts int) string {
	for _, r := range noteRules {
		if r.match(score, alerts) {
			return r.note
		}
	}
	return fallbackNote
}

// Badge is the headline shown on the last-session card.
func Badge(score float64) string {
	switch {
	case score >= 8:
		return "Excellent"
	case score >= 6:
		return "Good"
	default:
		return "Needs Improvement"
	}
}

// Summary is the scored outcome of one session.
type Summary struct {
	Minutes int
	Score   float64
	Alerts  int
	Status  models.Status
	Notes   string
}

func Summarize(alerts int, elapsed time.Duration) Summary {
	minutes := Minutes(elapsed)
	score := Score(alerts, minutes)
	return Summary{
		Minutes: minutes,
		Score:   score,
		Alerts:  alerts,
		Status:  Status(score, alerts),
		Notes:   Notes(score, alerts),
	}
}
