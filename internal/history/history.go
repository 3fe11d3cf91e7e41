// Package history keeps the capped list of completed sessions and derives the
// dashboard statistics, achievements and community leaderboard from it.
package history

import (
	"errors"
	"fmt"
	"time"

	"driveguardian/go-backend/internal/models"
)

// DefaultLimit caps both the session history and the community list.
const DefaultLimit = 100

var (
	ErrUnknownRange  = errors.New("unknown time range")
	ErrUnknownSort   = errors.New("unknown sort option")
	ErrUnknownFilter = errors.New("unknown community filter")
)

// Prepend puts rec at the head of a newest-first list and evicts the oldest
// entries beyond limit. The input slice is not modified.
func Prepend(list []models.SessionRecord, rec models.SessionRecord, limit int) []models.SessionRecord {
	if limit <= 0 {
		limit = DefaultLimit
	}
	n := min(len(list), limit-1)
	out := make([]models.SessionRecord, 0, n+1)
	out = append(out, rec)
	return append(out, list[:n]...)
}

type TimeRange string

const (
	RangeAll   TimeRange = "all"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeYear  TimeRange = "year"
)

// ParseTimeRange accepts the dashboard range names; empty means all.
func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(s); r {
	case "":
		return RangeAll, nil
	case RangeAll, RangeWeek, RangeMonth, RangeYear:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
	}
}

// Cutoff is the oldest instant included in r, and false for RangeAll.
func (r TimeRange) Cutoff(now time.Time) (time.Time, bool) {
	switch r {
	case RangeWeek:
		return now.AddDate(0, 0, -7), true
	case RangeMonth:
		return now.AddDate(0, -1, 0), true
	case RangeYear:
		return now.AddDate(-1, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// Filter keeps the records dated at or after the range cutoff, preserving order.
func Filter(records []models.SessionRecord, r TimeRange, now time.Time) []models.SessionRecord {
	cutoff, ok := r.Cutoff(now)
	if !ok {
		return records
	}
	out := make([]models.SessionRecord, 0, len(records))
	for _, rec := range records {
		if !rec.Date.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}
