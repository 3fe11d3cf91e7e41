package history

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"driveguardian/go-backend/internal/models"
)

const (
	AnonymousDriver    = "Anonymous Driver"
	defaultVehicleType = "Car"
	defaultDistance    = "Unknown"
)

// DriverName derives the public name from the logged-in identity.
func DriverName(current string) string {
	if current == "" {
		return AnonymousDriver
	}
	if at := strings.IndexByte(current, '@'); at >= 0 {
		return current[:at]
	}
	return current
}

func NewPublishedJourney(last models.SessionRecord, driver string, req models.PublishRequest, now time.Time) models.PublishedJourney {
	j := models.PublishedJourney{
		SessionRecord: last,
		DriverName:    DriverName(driver),
		Timestamp:     now,
		PublishedAt:   now.Format("1/2/2006, 3:04:05 PM"),
		VehicleType:   strings.TrimSpace(req.VehicleType),
		Distance:      strings.TrimSpace(req.Distance),
		IsPublished:   true,
	}
	if j.VehicleType == "" {
		j.VehicleType = defaultVehicleType
	}
	if j.Distance == "" {
		j.Distance = defaultDistance
	}
	return j
}

// AppendPublished adds j at the tail of the oldest-first community list and
// evicts from the head beyond limit.
func AppendPublished(list []models.PublishedJourney, j models.PublishedJourney, limit int) []models.PublishedJourney {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]models.PublishedJourney, 0, min(len(list)+1, limit))
	if drop := len(list) + 1 - limit; drop > 0 {
		list = list[drop:]
	}
	out = append(out, list...)
	return append(out, j)
}

type CommunityFilter string

const (
	FilterAll   CommunityFilter = "all"
	FilterTop   CommunityFilter = "top"
	FilterWeek  CommunityFilter = "week"
	FilterMonth CommunityFilter = "month"
)

func ParseCommunityFilter(s string) (CommunityFilter, error) {
	switch f := CommunityFilter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterTop, FilterWeek, FilterMonth:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
	}
}

type SortOption string

const (
	SortDateDesc     SortOption = "date-desc"
	SortDateAsc      SortOption = "date-asc"
	SortScoreDesc    SortOption = "score-desc"
	SortScoreAsc     SortOption = "score-asc"
	SortNameAsc      SortOption = "name-asc"
	SortNameDesc     SortOption = "name-desc"
	SortDurationDesc SortOption = "duration-desc"
	SortDurationAsc  SortOption = "duration-asc"
)

func nameOf(j models.PublishedJourney) string {
	if j.DriverName == "" {
		return strings.ToLower(AnonymousDriver)
	}
	return strings.ToLower(j.DriverName)
}

var sorters = map[SortOption]func(a, b models.PublishedJourney) int{
	SortDateDesc:     func(a, b models.PublishedJourney) int { return b.Timestamp.Compare(a.Timestamp) },
	SortDateAsc:      func(a, b models.PublishedJourney) int { return a.Timestamp.Compare(b.Timestamp) },
	SortScoreDesc:    func(a, b models.PublishedJourney) int { return cmp.Compare(b.Score, a.Score) },
	SortScoreAsc:     func(a, b models.PublishedJourney) int { return cmp.Compare(a.Score, b.Score) },
	SortNameAsc:      func(a, b models.PublishedJourney) int { return strings.Compare(nameOf(a), nameOf(b)) },
	SortNameDesc:     func(a, b models.PublishedJourney) int { return strings.Compare(nameOf(b), nameOf(a)) },
	SortDurationDesc: func(a, b models.PublishedJourney) int { return cmp.Compare(b.Duration, a.Duration) },
	SortDurationAsc:  func(a, b models.PublishedJourney) int { return cmp.Compare(a.Duration, b.Duration) },
}

func ParseSort(s string) (SortOption, error) {
	if s == "" {
		return SortDateDesc, nil
	}
	if _, ok := sorters[SortOption(s)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSort, s)
	}
	return SortOption(s), nil
}

// CommunityQuery selects and orders the community list.
type CommunityQuery struct {
	Filter CommunityFilter
	Search string
	Sort   SortOption
}

// ListJourneys applies the time filter, the driver-name search and the sort
// order. The input is not modified.
func ListJourneys(all []models.PublishedJourney, q CommunityQuery, now time.Time) []models.PublishedJourney {
	var cutoff time.Time
	switch q.Filter {
	case FilterWeek:
		cutoff = now.AddDate(0, 0, -7)
	case FilterMonth:
		cutoff = now.AddDate(0, -1, 0)
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.PublishedJourney, 0, len(all))
	for _, j := range all {
		if !cutoff.IsZero() && j.Timestamp.Before(cutoff) {
			continue
		}
		if search != "" && !strings.Contains(nameOf(j), search) {
			continue
		}
		out = append(out, j)
	}
	if less, ok := sorters[q.Sort]; ok {
		slices.SortStableFunc(out, less)
	}
	return out
}

type CommunityStats struct {
	TotalPublished int     `json:"total_published"`
	AverageScore   float64 `json:"average_score"`
	TotalDrivers   int     `json:"total_drivers"`
	TopScore       float64 `json:"top_score"`
}

func Community(all []models.PublishedJourney) CommunityStats {
	stats := CommunityStats{TotalPublished: len(all)}
	if len(all) == 0 {
		return stats
	}
	drivers := make(map[string]struct{})
	var sum float64
	stats.TopScore = math.Inf(-1)
	for _, j := range all {
		sum += j.Score
		stats.TopScore = math.Max(stats.TopScore, j.Score)
		if j.DriverName != "" {
			drivers[j.DriverName] = struct{}{}
		}
	}
	stats.AverageScore = math.Round(sum/float64(len(all))*10) / 10
	stats.TotalDrivers = len(drivers)
	return stats
}

// Tags are the badges shown on a community journey card.
func Tags(j models.PublishedJourney) []string {
	var tags []string
	if j.Score >= 8 {
		tags = append(tags, "Excellent Focus")
	}
	if j.Alerts == 0 {
		tags = append(tags, "Alert-Free")
	}
	if j.Duration >= 30 {
		tags = append(tags, "Long Drive")
	}
	vehicle := j.VehicleType
	if vehicle == "" {
		vehicle = defaultVehicleType
	}
	return append(tags, vehicle)
}
