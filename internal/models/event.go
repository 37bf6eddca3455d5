package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the state of a seminar session.
type EventStatus string

const (
	EventScheduled EventStatus = "SCHEDULED"
	EventOngoing   EventStatus = "ONGOING"
	EventCompleted EventStatus = "COMPLETED"
	EventCancelled EventStatus = "CANCELLED"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventScheduled, EventOngoing, EventCompleted, EventCancelled:
		return true
	}
	return false
}

var eventTransitions = map[EventStatus][]EventStatus{
	EventScheduled: {EventOngoing, EventCompleted, EventCancelled},
	EventOngoing:   {EventCompleted, EventCancelled},
	EventCancelled: {EventScheduled},
}

// CanTransition reports whether an event may move from s to to. Staying put is always allowed.
// COMPLETED is terminal; a CANCELLED event can only be reinstated as SCHEDULED.
func (s EventStatus) CanTransition(to EventStatus) bool {
	if s == to {
		return true
	}
	for _, next := range eventTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Public reports whether events in this status are listed on the public site.
func (s EventStatus) Public() bool {
	return s == EventScheduled || s == EventCompleted
}

// DefaultEventDurationMinutes is used when an event is created without an explicit length.
const DefaultEventDurationMinutes = 60

// Event is a scheduled seminar session, optionally derived from a submission.
type Event struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	ScheduledAt     time.Time   `json:"scheduled_at"`
	DurationMinutes int         `json:"duration_minutes"`
	PresenterName   string      `json:"presenter_name"`
	PresenterEmail  string      `json:"presenter_email"`
	Status          EventStatus `json:"status"`
	ZoomMeetingID   string      `json:"zoom_meeting_id,omitempty"`
	ZoomJoinURL     string      `json:"zoom_join_url,omitempty"`
	ZoomStartURL    string      `json:"zoom_start_url,omitempty"`
	ZoomPassword    string      `json:"zoom_password,omitempty"`
	SubmissionID    *uuid.UUID  `json:"submission_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// PublicEvent is the event shape shown to anonymous visitors.
type PublicEvent struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	ScheduledAt     time.Time   `json:"scheduled_at"`
	DurationMinutes int         `json:"duration_minutes"`
	PresenterName   string      `json:"presenter_name"`
	Status          EventStatus `json:"status"`
	ZoomJoinURL     string      `json:"zoom_join_url,omitempty"`
}

// ToPublic strips host credentials and presenter contact details.
func (e *Event) ToPublic() PublicEvent {
	return PublicEvent{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		ScheduledAt:     e.ScheduledAt,
		DurationMinutes: e.DurationMinutes,
		PresenterName:   e.PresenterName,
		Status:          e.Status,
		ZoomJoinURL:     e.ZoomJoinURL,
	}
}
