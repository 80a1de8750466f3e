package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/users"
)

// ErrNotConnected is returned when the user has no stored OAuth credentials.
var ErrNotConnected = errors.New("calendar not connected")

// BusyInterval is one occupied span from a free/busy query.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Client is the calendar capability. It is resolved once at startup; a nil
// Client means the feature is not configured and callers skip it.
type Client interface {
	// FreeBusy returns the user's occupied intervals inside the range.
	FreeBusy(ctx context.Context, user *users.User, from, to time.Time) ([]BusyInterval, error)
	// CreateEvent books a session on the user's calendar and returns the
	// generated meeting link.
	CreateEvent(ctx context.Context, user *users.User, start time.Time, minutes int, counterpartPhone string) (string, error)
}
