package models

import (
	"time"

	"github.com/google/uuid"
)

// Email types sent by the platform.
const (
	EmailTypeSubmissionReceived  = "submission_received"
	EmailTypeSubmissionAlert     = "submission_alert"
	EmailTypeStatusUpdate        = "status_update"
	EmailTypeSeminarAnnouncement = "seminar_announcement"
	EmailTypeMagicLink           = "magic_link"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records one delivery attempt.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	EventID        *uuid.UUID `json:"event_id,omitempty"`
	SubmissionID   *uuid.UUID `json:"submission_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
