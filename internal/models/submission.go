package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	SubmissionPending     SubmissionStatus = "PENDING"
	SubmissionUnderReview SubmissionStatus = "UNDER_REVIEW"
	SubmissionAccepted    SubmissionStatus = "ACCEPTED"
	SubmissionScheduled   SubmissionStatus = "SCHEDULED"
	SubmissionPresented   SubmissionStatus = "PRESENTED"
	SubmissionRejected    SubmissionStatus = "REJECTED"
)

// SubmissionStatuses lists every status in lifecycle order.
var SubmissionStatuses = []SubmissionStatus{
	SubmissionPending,
	SubmissionUnderReview,
	SubmissionAccepted,
	SubmissionScheduled,
	SubmissionPresented,
	SubmissionRejected,
}

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	for _, v := range SubmissionStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Submission is a research proposal progressing through review.
type Submission struct {
	ID                uuid.UUID        `json:"id"`
	Title             string           `json:"title"`
	Abstract          string           `json:"abstract"`
	AuthorName        string           `json:"author_name"`
	AuthorEmail       string           `json:"author_email"`
	AuthorAffiliation string           `json:"author_affiliation"`
	AuthorBio         string           `json:"author_bio,omitempty"`
	CoAuthors         string           `json:"co_authors,omitempty"`
	Methodology       string           `json:"methodology,omitempty"`
	Keywords          string           `json:"keywords"`
	ResearchField     string           `json:"research_field"`
	PaperKey          string           `json:"paper_key,omitempty"`
	Status            SubmissionStatus `json:"status"`
	SubmittedAt       time.Time        `json:"submitted_at"`
	ReviewedAt        *time.Time       `json:"reviewed_at,omitempty"`
	ScheduledAt       *time.Time       `json:"scheduled_at,omitempty"`
	EventID           *uuid.UUID       `json:"event_id,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// SubmissionWithEvent is a submission plus its linked event, if any.
type SubmissionWithEvent struct {
	Submission
	Event *Event `json:"event,omitempty"`
}
