package models

import "time"

// Settings is the singleton site configuration editable by admins.
type Settings struct {
	SiteName              string    `json:"site_name"`
	SiteDescription       string    `json:"site_description"`
	ContactEmail          string    `json:"contact_email"`
	SubmissionsOpen       bool      `json:"submissions_open"`
	MaxSubmissionsPerWeek int       `json:"max_submissions_per_week"` // 0 = unlimited
	UpdatedAt             time.Time `json:"updated_at"`
}
