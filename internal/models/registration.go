package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Registration is an attendee signup; the audience for seminar announcements.
type Registration struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Affiliation string    `json:"affiliation,omitempty"`
	Interests   string    `json:"interests,omitempty"`
	Sections    []string  `json:"sections"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasSection reports whether the registration subscribed to section.
func (r *Registration) HasSection(section string) bool {
	for _, s := range r.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// NormalizeSection is the stored form of a section tag: lower-case, with inner whitespace runs
// collapsed to single dashes. "Asia  Politics" becomes "asia-politics".
func NormalizeSection(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}
