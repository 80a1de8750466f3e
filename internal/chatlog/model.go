package chatlog

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a logged message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ReminderMarker is embedded in logged nudge messages so the registration
// reminder job can count how many a user has already received.
const ReminderMarker = "[REMINDER_SENT]"

// Entry is an append-only record of one exchanged message. Never mutated
// after insert.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	AIUsed    bool      `json:"ai_used"`
	CreatedAt time.Time `json:"created_at"`
}
