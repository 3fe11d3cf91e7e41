package models

import "time"

type Status string

const (
	StatusSafe    Status = "safe"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
)

// SessionRecord is the summary of one completed monitoring session.
// JSON keys match the layout persisted by the browser dashboard.
type SessionRecord struct {
	ID       string    `json:"id"`
	Date     time.Time `json:"date"`
	Duration int       `json:"duration"`
	Score    float64   `json:"score"`
	Alerts   int       `json:"alerts"`
	Status   Status    `json:"status"`
	Notes    string    `json:"notes"`
}

// PublishedJourney is a session shared on the community leaderboard.
type PublishedJourney struct {
	SessionRecord
	DriverName  string    `json:"driverName"`
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt string    `json:"publishedAt"`
	VehicleType string    `json:"vehicleType"`
	Distance    string    `json:"distance"`
	IsPublished bool      `json:"isPublished"`
}

type LoginState struct {
	LoggedIn bool   `json:"logged_in"`
	Driver   string `json:"driver,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider,omitempty"`
}

type PublishRequest struct {
	VehicleType string `json:"vehicleType,omitempty"`
	Distance    string `json:"distance,omitempty"`
}
