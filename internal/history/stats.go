package history

import (
	"fmt"
	"math"
	"slices"
	"time"

	"driveguardian/go-backend/internal/models"
)

type Summary struct {
	Range           TimeRange `json:"range"`
	TotalSessions   int       `json:"total_sessions"`
	TotalAlerts     int       `json:"total_alerts"`
	AverageScore    float64   `json:"average_score"`
	AverageDuration int       `json:"average_duration"`
	AverageAlerts   float64   `json:"average_alerts"`
	PeakTime        string    `json:"peak_time"`
	Trend           int       `json:"trend"`
	TrendLabel      string    `json:"trend_label"`
	BestStreak      int       `json:"best_streak"`
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Summarize computes the dashboard figures over the records in r. Hours and
// calendar days are taken in now's location.
func Summarize(records []models.SessionRecord, r TimeRange, now time.Time) Summary {
	filtered := Filter(records, r, now)
	s := Summary{
		Range:         r,
		TotalSessions: len(filtered),
		PeakTime:      "N/A",
		TrendLabel:    "0%",
	}
	if len(filtered) == 0 {
		return s
	}

	var scores float64
	var minutes int
	for _, rec := range filtered {
		s.TotalAlerts += rec.Alerts
		scores += rec.Score
		minutes += rec.Duration
	}
	n := float64(len(filtered))
	s.AverageScore = math.Round(scores/n*10) / 10
	s.AverageDuration = int(roundHalfUp(float64(minutes) / n))
	s.AverageAlerts = math.Round(float64(s.TotalAlerts)/n*10) / 10

	if hour, ok := PeakHour(filtered, now.Location()); ok {
		s.PeakTime = fmt.Sprintf("%d:00", hour)
	}
	if len(filtered) >= 2 {
		s.Trend = Trend(filtered)
		s.TrendLabel = fmt.Sprintf("%+d%%", s.Trend)
	}
	s.BestStreak = BestStreak(filtered, now.Location())
	return s
}

// PeakHour is the most frequent hour of day. Ties go to the earliest hour.
func PeakHour(records []models.SessionRecord, loc *time.Location) (int, bool) {
	if len(records) == 0 {
		return 0, false
	}
	var counts [24]int
	for _, rec := range records {
		counts[rec.Date.In(loc).Hour()]++
	}
	best := 0
	for h := 1; h < len(counts); h++ {
		if counts[h] > counts[best] {
			best = h
		}
	}
	return best, true
}

// Trend is the percentage change in alerts between the two newest records
// and the two before them. Without four records, or when the older pair had
// no alerts, the change is zero.
func Trend(newestFirst []models.SessionRecord) int {
	if len(newestFirst) < 4 {
		return 0
	}
	recent := newestFirst[0].Alerts + newestFirst[1].Alerts
	older := newestFirst[2].Alerts + newestFirst[3].Alerts
	if older == 0 {
		return 0
	}
	change := float64(recent-older) / float64(older) * 100
	return int(roundHalfUp(change))
}

func dayNumber(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// BestStreak is the longest run of consecutive calendar days with at least
// one session.
func BestStreak(records []models.SessionRecord, loc *time.Location) int {
	if len(records) == 0 {
		return 0
	}
	days := make([]int64, len(records))
	for i, rec := range records {
		days[i] = dayNumber(rec.Date, loc)
	}
	slices.Sort(days)

	best, cur := 1, 1
	for i := 1; i < len(days); i++ {
		switch days[i] - days[i-1] {
		case 0:
		case 1:
			cur++
		default:
			cur = 1
		}
		best = max(best, cur)
	}
	return best
}
