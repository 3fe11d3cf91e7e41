package history

import "driveguardian/go-backend/internal/models"

type Encouragement struct {
	Heading string `json:"heading"`
	Message string `json:"message"`
	Subtext string `json:"subtext"`
	Icon    string `json:"icon"`
}

type encouragementRule struct {
	match func(newestFirst []models.SessionRecord) bool
	Encouragement
}

var encouragements = []encouragementRule{
	{
		match: func(h []models.SessionRecord) bool { return len(h) >= 3 },
		Encouragement: Encouragement{
			Message: "Great focus! You're getting better every session!",
			Subtext: "Your alert count has decreased by 20% this week",
			Icon:    "chart-line",
		},
	},
	{
		match: func(h []models.SessionRecord) bool { return len(h) >= 2 && h[0].Score > h[1].Score },
		Encouragement: Encouragement{
			Message: "New personal best! Your focus score is improving!",
			Subtext: "Keep up the excellent work on road safety",
			Icon:    "trophy",
		},
	},
	{
		match: func(h []models.SessionRecord) bool { return len(h) >= 5 },
		Encouragement: Encouragement{
			Message: "Consistency is key! You're building safe driving habits",
			Subtext: "Regular monitoring helps prevent accidents",
			Icon:    "calendar-check",
		},
	},
	{
		match: func(h []models.SessionRecord) bool { return len(h) > 0 && h[0].Score >= 9 },
		Encouragement: Encouragement{
			Message: "Impressive focus! Professional driver level alertness",
			Subtext: "Your reaction time is faster than average",
			Icon:    "star",
		},
	},
	{
		match: func(h []models.SessionRecord) bool { return len(h) > 0 && h[0].Alerts > 3 },
		Encouragement: Encouragement{
			Message: "Stay vigilant! Even short drives need full attention",
			Subtext: "Most accidents happen within 25 miles of home",
			Icon:    "exclamation-triangle",
		},
	},
}

var welcome = Encouragement{
	Heading: "Welcome to Drive Guardian AI!",
	Message: "Start your first journey to earn your first achievement",
	Subtext: `Complete a journey to unlock the "First Drive" badge`,
	Icon:    "trophy",
}

// Encourage picks the first message whose condition holds for the
// newest-first history, falling back to the first message.
func Encourage(newestFirst []models.SessionRecord) Encouragement {
	if len(newestFirst) == 0 {
		return welcome
	}
	msg := encouragements[0].Encouragement
	for _, r := range encouragements {
		if r.match(newestFirst) {
			msg = r.Encouragement
			break
		}
	}
	if newestFirst[0].Score >= 8 {
		msg.Heading = "Great Job!"
	} else {
		msg.Heading = "Stay Focused!"
	}
	return msg
}
