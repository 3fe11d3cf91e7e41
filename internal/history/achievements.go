package history

import (
	"fmt"
	"math"
	"time"

	"driveguardian/go-backend/internal/models"
)

type Achievement struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Earned      bool    `json:"earned"`
	Progress    float64 `json:"progress"`
	Label       string  `json:"label"`
}

type achievementRule struct {
	id          int
	name        string
	description string
	icon        string
	earned      func(h []models.SessionRecord, loc *time.Location) bool
	progress    func(h []models.SessionRecord, loc *time.Location) float64
}

func count(h []models.SessionRecord, keep func(models.SessionRecord) bool) int {
	n := 0
	for _, rec := range h {
		if keep(rec) {
			n++
		}
	}
	return n
}

func pct(x float64) float64 {
	return math.Min(100, x)
}

func alertFree(rec models.SessionRecord) bool { return rec.Alerts == 0 }
func longDrive(rec models.SessionRecord) bool { return rec.Duration >= 30 }
func highScore(rec models.SessionRecord) bool { return rec.Score >= 9 }

var achievementRules = []achievementRule{
	{
		id: 1, name: "First Drive", description: "Complete your first monitoring session", icon: "play-circle",
		earned:   func(h []models.SessionRecord, _ *time.Location) bool { return len(h) >= 1 },
		progress: func(h []models.SessionRecord, _ *time.Location) float64 { return pct(float64(len(h)) * 100) },
	},
	{
		id: 2, name: "Alert-Free Session", description: "Complete a session with 0 alerts", icon: "bell-slash",
		earned:   func(h []models.SessionRecord, _ *time.Location) bool { return count(h, alertFree) > 0 },
		progress: func(h []models.SessionRecord, _ *time.Location) float64 { return pct(float64(count(h, alertFree)) * 100) },
	},
	{
		id: 3, name: "30-Minute Master", description: "Complete a 30+ minute session", icon: "clock",
		earned:   func(h []models.SessionRecord, _ *time.Location) bool { return count(h, longDrive) > 0 },
		progress: func(h []models.SessionRecord, _ *time.Location) float64 { return pct(float64(count(h, longDrive)) * 100) },
	},
	{
		id: 4, name: "Safety Champion", description: "3 sessions with 90%+ focus score", icon: "shield-alt",
		earned:   func(h []models.SessionRecord, _ *time.Location) bool { return count(h, highScore) >= 3 },
		progress: func(h []models.SessionRecord, _ *time.Location) float64 { return pct(float64(count(h, highScore)) / 3 * 100) },
	},
	{
		id: 5, name: "Weekly Warrior", description: "Use Drive Guardian 5 days in a row", icon: "calendar-alt",
		earned:   func(h []models.SessionRecord, loc *time.Location) bool { return BestStreak(h, loc) >= 5 },
		progress: func(h []models.SessionRecord, loc *time.Location) float64 { return pct(float64(BestStreak(h, loc)) / 5 * 100) },
	},
	{
		id: 6, name: "Focus Master", description: "Achieve 95%+ focus score", icon: "brain",
		earned: func(h []models.SessionRecord, _ *time.Location) bool {
			return count(h, func(rec models.SessionRecord) bool { return rec.Score >= 9.5 }) > 0
		},
		progress: func(h []models.SessionRecord, _ *time.Location) float64 {
			var best float64
			for _, rec := range h {
				best = math.Max(best, rec.Score)
			}
			return pct(best / 9.5 * 100)
		},
	},
}

// Achievements evaluates every badge against the full, unfiltered history.
func Achievements(all []models.SessionRecord, loc *time.Location) []Achievement {
	out := make([]Achievement, 0, len(achievementRules))
	for _, r := range achievementRules {
		a := Achievement{
			ID:          r.id,
			Name:        r.name,
			Description: r.description,
			Icon:        r.icon,
			Earned:      r.earned(all, loc),
			Progress:    r.progress(all, loc),
		}
		if a.Earned {
			a.Label = "Achievement Unlocked!"
		} else {
			a.Label = fmt.Sprintf("%d%% complete", int(roundHalfUp(a.Progress)))
		}
		out = append(out, a)
	}
	return out
}
