package history

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driveguardian/go-backend/internal/models"
)

var now = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

func rec(id string, date time.Time, minutes int, score float64, alerts int) models.SessionRecord {
	return models.SessionRecord{ID: id, Date: date, Duration: minutes, Score: score, Alerts: alerts}
}

func TestPrepend_CapsAndEvictsOldest(t *testing.T) {
	var list []models.SessionRecord
	for i := 1; i <= 150; i++ {
		list = Prepend(list, rec(fmt.Sprint(i), now.Add(time.Duration(i)*time.Minute), 1, 9, 0), DefaultLimit)
		require.LessOrEqual(t, len(list), DefaultLimit)
	}
	require.Len(t, list, 100)
	assert.Equal(t, "150", list[0].ID)
	assert.Equal(t, "51", list[99].ID)
}

func TestPrepend_DoesNotAliasInput(t *testing.T) {
	list := []models.SessionRecord{rec("a", now, 1, 9, 0), rec("b", now, 1, 9, 0)}
	out := Prepend(list, rec("c", now, 1, 9, 0), 2)
	assert.Equal(t, []string{"c", "a"}, []string{out[0].ID, out[1].ID})
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestParseTimeRange(t *testing.T) {
	r, err := ParseTimeRange("")
	require.NoError(t, err)
	assert.Equal(t, RangeAll, r)

	for _, s := range []string{"all", "week", "month", "year"} {
		r, err := ParseTimeRange(s)
		require.NoError(t, err)
		assert.Equal(t, TimeRange(s), r)
	}

	_, err = ParseTimeRange("decade")
	assert.True(t, errors.Is(err, ErrUnknownRange))
}

func TestFilter(t *testing.T) {
	records := []models.SessionRecord{
		rec("today", now.Add(-time.Hour), 10, 9, 0),
		rec("6d", now.AddDate(0, 0, -6), 10, 9, 0),
		rec("7d", now.AddDate(0, 0, -7), 10, 9, 0),
		rec("20d", now.AddDate(0, 0, -20), 10, 9, 0),
		rec("2mo", now.AddDate(0, -2, 0), 10, 9, 0),
		rec("2y", now.AddDate(-2, 0, 0), 10, 9, 0),
	}
	ids := func(rs []models.SessionRecord) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []string{"today", "6d", "7d"}, ids(Filter(records, RangeWeek, now)))
	assert.Equal(t, []string{"today", "6d", "7d", "20d"}, ids(Filter(records, RangeMonth, now)))
	assert.Equal(t, []string{"today", "6d", "7d", "20d", "2mo"}, ids(Filter(records, RangeYear, now)))
	assert.Len(t, Filter(records, RangeAll, now), 6)
}
