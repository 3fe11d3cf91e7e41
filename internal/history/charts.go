package history

import (
	"fmt"
	"time"

	"driveguardian/go-backend/internal/models"
)

type Series struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

type Charts struct {
	AlertTrend        Series `json:"alert_trend"`
	ScoreDistribution Series `json:"score_distribution"`
	TimeDistribution  Series `json:"time_distribution"`
	DurationTrend     Series `json:"duration_trend"`
}

// BuildCharts derives the dashboard series from newest-first records.
func BuildCharts(newestFirst []models.SessionRecord, now time.Time) Charts {
	return Charts{
		AlertTrend:        alertTrend(newestFirst, now),
		ScoreDistribution: scoreDistribution(newestFirst),
		TimeDistribution:  timeDistribution(newestFirst, now.Location()),
		DurationTrend:     durationTrend(newestFirst),
	}
}

// alertTrend sums alerts per calendar day over the last seven days, oldest first.
func alertTrend(records []models.SessionRecord, now time.Time) Series {
	loc := now.Location()
	s := Series{Labels: make([]string, 7), Values: make([]float64, 7)}
	byDay := make(map[int64]int, len(records))
	for _, rec := range records {
		byDay[dayNumber(rec.Date, loc)] += rec.Alerts
	}
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, i-6)
		s.Labels[i] = day.Weekday().String()[:3]
		s.Values[i] = float64(byDay[dayNumber(day, loc)])
	}
	return s
}

var scoreBuckets = []struct {
	label    string
	min, max float64
}{
	{"<6", 0, 6},
	{"6-7", 6, 7},
	{"7-8", 7, 8},
	{"8-9", 8, 9},
	{"9-10", 9, 10.01},
}

func scoreDistribution(records []models.SessionRecord) Series {
	s := Series{Labels: make([]string, len(scoreBuckets)), Values: make([]float64, len(scoreBuckets))}
	for i, b := range scoreBuckets {
		s.Labels[i] = b.label
	}
	for _, rec := range records {
		for i, b := range scoreBuckets {
			if rec.Score >= b.min && rec.Score < b.max {
				s.Values[i]++
				break
			}
		}
	}
	return s
}

func timeDistribution(records []models.SessionRecord, loc *time.Location) Series {
	s := Series{
		Labels: []string{"Morning (6AM-12PM)", "Afternoon (12PM-6PM)", "Evening (6PM-12AM)", "Night (12AM-6AM)"},
		Values: make([]float64, 4),
	}
	for _, rec := range records {
		switch h := rec.Date.In(loc).Hour(); {
		case h >= 6 && h < 12:
			s.Values[0]++
		case h >= 12 && h < 18:
			s.Values[1]++
		case h >= 18:
			s.Values[2]++
		default:
			s.Values[3]++
		}
	}
	return s
}

// durationTrend lists the last five sessions oldest first.
func durationTrend(newestFirst []models.SessionRecord) Series {
	n := min(5, len(newestFirst))
	s := Series{Labels: make([]string, n), Values: make([]float64, n)}
	for i := 0; i < n; i++ {
		rec := newestFirst[n-1-i]
		s.Labels[i] = fmt.Sprintf("Session %d", i+1)
		s.Values[i] = float64(rec.Duration)
	}
	return s
}
