package matching

import (
	"context"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/calendar"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// timezoneOffsets maps the supported IANA names to their UTC offset in
// hours. Unknown or empty zones fall back to UTC.
var timezoneOffsets = map[string]int{
	"Asia/Tokyo":          9,
	"America/New_York":    -5,
	"America/Los_Angeles": -8,
	"Europe/London":       0,
	"Europe/Paris":        1,
	"America/Chicago":     -6,
	"America/Denver":      -7,
	"America/Phoenix":     -7,
	"America/Anchorage":   -9,
	"Pacific/Honolulu":    -10,
}

// TimezoneOffset returns the UTC offset in hours for a supported zone name.
func TimezoneOffset(zone string) int {
	if off, ok := timezoneOffsets[zone]; ok {
		return off
	}
	return 0
}

// TimezoneGapHours is the absolute offset difference between two zones.
func TimezoneGapHours(a, b string) int {
	gap := TimezoneOffset(a) - TimezoneOffset(b)
	if gap < 0 {
		gap = -gap
	}
	return gap
}

// SlotPlanner proposes session start times. The slot hour is local to the
// first user's timezone; calendar free/busy is consulted when the capability
// is configured.
type SlotPlanner struct {
	calendar calendar.Client
	hour     int
	minutes  int
	logger   *logging.Logger
	now      func() time.Time
}

// DefaultSlotHour is the local evening hour proposed for automated matches.
const DefaultSlotHour = 20

func NewSlotPlanner(cal calendar.Client, hour, sessionMinutes int, logger *logging.Logger) *SlotPlanner {
	if hour <= 0 || hour > 23 {
		hour = DefaultSlotHour
	}
	if sessionMinutes <= 0 {
		sessionMinutes = 15
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SlotPlanner{
		calendar: cal,
		hour:     hour,
		minutes:  sessionMinutes,
		logger:   logger.Component("timeslot"),
		now:      time.Now,
	}
}

// NextSlot returns the next-day slot at the planner's hour in user a's
// timezone, expressed in UTC. When both users have connected calendars the
// planner walks forward day by day (up to a week) until a slot is free for
// both; a busy week falls back to the first slot.
func (p *SlotPlanner) NextSlot(ctx context.Context, a, b *users.User) time.Time {
	first := p.slotOnDay(p.now().UTC().AddDate(0, 0, 1), a.Preferences.Timezone)
	if p.calendar == nil {
		return first
	}

	slot := first
	for day := 0; day < 7; day++ {
		if p.freeForBoth(ctx, a, b, slot) {
			return slot
		}
		slot = slot.AddDate(0, 0, 1)
	}
	p.logger.Warn("no free slot found within a week, using first slot",
		"user1", a.Phone, "user2", b.Phone)
	return first
}

// slotOnDay pins the planner hour in the given zone to a UTC instant on the
// calendar day of the reference time.
func (p *SlotPlanner) slotOnDay(ref time.Time, zone string) time.Time {
	y, m, d := ref.Date()
	local := time.Date(y, m, d, p.hour, 0, 0, 0, time.UTC)
	return local.Add(-time.Duration(TimezoneOffset(zone)) * time.Hour)
}

func (p *SlotPlanner) freeForBoth(ctx context.Context, a, b *users.User, start time.Time) bool {
	end := start.Add(time.Duration(p.minutes) * time.Minute)
	for _, u := range []*users.User{a, b} {
		if !u.Calendar.Connected() {
			continue
		}
		busy, err := p.calendar.FreeBusy(ctx, u, start, end)
		if err != nil {
			p.logger.Warn("freebusy lookup failed, assuming free", "phone", u.Phone, "error", err)
			continue
		}
		for _, b := range busy {
			if b.Start.Before(end) && b.End.After(start) {
				return false
			}
		}
	}
	return true
}

// CounterpartLocal renders a UTC instant in the counterpart's local clock
// for notification text.
func CounterpartLocal(t time.Time, zone string) time.Time {
	return t.Add(time.Duration(TimezoneOffset(zone)) * time.Hour)
}
