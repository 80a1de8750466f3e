package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status of a booked session. Appointments are never deleted, only
// transitioned.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ReminderKind distinguishes the two scheduled nudges.
type ReminderKind string

const (
	Reminder24Hour ReminderKind = "24h"
	Reminder1Hour  ReminderKind = "1h"
)

// Appointment is a scheduled session between two matched users.
type Appointment struct {
	ID                   uuid.UUID `json:"id"`
	User1Phone           string    `json:"user1_phone"`
	User2Phone           string    `json:"user2_phone"`
	ScheduledAt          time.Time `json:"scheduled_at"`
	DurationMinutes      int       `json:"duration_minutes"`
	MeetLink             string    `json:"meet_link,omitempty"`
	PointsUsed           int       `json:"points_used"`
	Status               Status    `json:"status"`
	ConfirmationReceived bool      `json:"confirmation_received"`
	Reminder24hSent      bool      `json:"reminder_24h_sent"`
	Reminder1hSent       bool      `json:"reminder_1h_sent"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Involves reports whether the phone is one of the two participants.
func (a *Appointment) Involves(phone string) bool {
	return a.User1Phone == phone || a.User2Phone == phone
}

// Counterpart returns the other participant's phone, or "" if the phone is
// not a participant.
func (a *Appointment) Counterpart(phone string) string {
	switch phone {
	case a.User1Phone:
		return a.User2Phone
	case a.User2Phone:
		return a.User1Phone
	default:
		return ""
	}
}
