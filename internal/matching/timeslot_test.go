package matching

import (
	"context"
	"testing"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/calendar"
	"github.com/nelo-ai/nelo-bot/internal/users"
)

func TestTimezoneOffset(t *testing.T) {
	if got := TimezoneOffset("Asia/Tokyo"); got != 9 {
		t.Errorf("Asia/Tokyo = %d, want 9", got)
	}
	if got := TimezoneOffset("Pacific/Honolulu"); got != -10 {
		t.Errorf("Pacific/Honolulu = %d, want -10", got)
	}
	if got := TimezoneOffset("Mars/Olympus"); got != 0 {
		t.Errorf("unknown zone = %d, want 0", got)
	}
}

func TestTimezoneGapHours(t *testing.T) {
	if got := TimezoneGapHours("Asia/Tokyo", "America/New_York"); got != 14 {
		t.Errorf("gap = %d, want 14", got)
	}
	if got := TimezoneGapHours("Europe/London", "Europe/Paris"); got != 1 {
		t.Errorf("gap = %d, want 1", got)
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestNextSlotWithoutCalendar(t *testing.T) {
	p := NewSlotPlanner(nil, 20, 15, nil)
	p.now = fixedNow

	a := testUser("+1", "Japanese", "English", users.LevelIntermediate)
	a.Preferences.Timezone = "Asia/Tokyo"
	b := testUser("+2", "English", "Japanese", users.LevelIntermediate)

	got := p.NextSlot(context.Background(), a, b)
	// 20:00 JST on March 11 is 11:00 UTC.
	want := time.Date(2025, 3, 11, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("slot = %v, want %v", got, want)
	}
}

type busyFirstDayCalendar struct {
	busyUntil time.Time
}

func (c *busyFirstDayCalendar) FreeBusy(_ context.Context, _ *users.User, from, _ time.Time) ([]calendar.BusyInterval, error) {
	if from.Before(c.busyUntil) {
		return []calendar.BusyInterval{{Start: from, End: from.Add(time.Hour)}}, nil
	}
	return nil, nil
}

func (c *busyFirstDayCalendar) CreateEvent(_ context.Context, _ *users.User, _ time.Time, _ int, _ string) (string, error) {
	return "", nil
}

func TestNextSlotSkipsBusyDay(t *testing.T) {
	firstSlot := time.Date(2025, 3, 11, 20, 0, 0, 0, time.UTC)
	p := NewSlotPlanner(&busyFirstDayCalendar{busyUntil: firstSlot.Add(time.Hour)}, 20, 15, nil)
	p.now = fixedNow

	a := testUser("+1", "Japanese", "English", users.LevelIntermediate)
	a.Calendar.AccessToken = "tok"
	b := testUser("+2", "English", "Japanese", users.LevelIntermediate)
	b.Calendar.AccessToken = "tok"

	got := p.NextSlot(context.Background(), a, b)
	want := firstSlot.AddDate(0, 0, 1)
	if !got.Equal(want) {
		t.Errorf("slot = %v, want day after busy slot %v", got, want)
	}
}

func TestCounterpartLocal(t *testing.T) {
	utc := time.Date(2025, 3, 11, 11, 0, 0, 0, time.UTC)
	got := CounterpartLocal(utc, "America/New_York")
	want := time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("local = %v, want %v", got, want)
	}
}
