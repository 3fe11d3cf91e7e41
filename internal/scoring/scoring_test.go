package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"driveguardian/go-backend/internal/models"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		alerts  int
		minutes int
		want    float64
	}{
		{"clamped high", 0, 30, 10.0},
		{"clamped low", 20, 0, 1.0},
		{"no bonus", 2, 0, 9.0},
		{"partial bonus rounds up", 3, 7, 9.0},
		{"bonus caps at two", 6, 120, 9.0},
		{"clamps after bonus", 1, 10, 10.0},
		{"one decimal", 5, 4, 7.8},
		{"many alerts long drive", 17, 60, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.alerts, tt.minutes), 1e-9)
		})
	}
}

func TestScore_AlwaysInRange(t *testing.T) {
	for alerts := 0; alerts <= 40; alerts++ {
		for minutes := 0; minutes <= 200; minutes += 7 {
			s := Score(alerts, minutes)
			assert.GreaterOrEqual(t, s, MinScore)
			assert.LessOrEqual(t, s, MaxScore)
		}
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, models.StatusSafe, Status(8.5, 2))
	assert.Equal(t, models.StatusWarning, Status(8.5, 3))
	assert.Equal(t, models.StatusDanger, Status(5.0, 1))
	assert.Equal(t, models.StatusWarning, Status(6.0, 5))
	assert.Equal(t, models.StatusDanger, Status(9.0, 6))
}

func TestNotes_FirstMatchWins(t *testing.T) {
	assert.Equal(t, "Excellent focus! Perfect session.", Notes(9.5, 0))
	assert.Equal(t, "Good focus with minor distractions.", Notes(9.5, 1))
	assert.Equal(t, "Good focus with minor distractions.", Notes(8.0, 2))
	assert.Equal(t, "Average focus, room for improvement.", Notes(7.5, 3))
	assert.Equal(t, "Needs improvement - high alert count detected.", Notes(7.5, 5))
	assert.Equal(t, "Needs improvement - high alert count detected.", Notes(2.0, 0))
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "Excellent", Badge(8))
	assert.Equal(t, "Good", Badge(6.5))
	assert.Equal(t, "Needs Improvement", Badge(5.9))
}

func TestMinutes(t *testing.T) {
	assert.Equal(t, 0, Minutes(59*time.Second))
	assert.Equal(t, 1, Minutes(time.Minute))
	assert.Equal(t, 14, Minutes(14*time.Minute+59*time.Second))
	assert.Equal(t, 0, Minutes(-time.Second))
}

func TestSummarize(t *testing.T) {
	got := Summarize(0, 45*time.Minute+30*time.Second)
	assert.Equal(t, Summary{
		Minutes: 45,
		Score:   10,
		Alerts:  0,
		Status:  models.StatusSafe,
		Notes:   "Excellent focus! Perfect session.",
	}, got)
}
