package matching

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/calendar"
	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/internal/users"
)

type staticScoreLLM struct {
	score int
}

func (s staticScoreLLM) Complete(_ context.Context, _ conversation.LLMRequest) (conversation.LLMResponse, error) {
	return scoreJSON(s.score, "You complement each other well.", "What made you start learning?"), nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]string)}
}

func (f *fakeNotifier) Send(_ context.Context, to string, bubbles ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[to] = append(f.sent[to], bubbles...)
	return nil
}

type fakeCalendar struct {
	mu      sync.Mutex
	created []string
}

func (f *fakeCalendar) FreeBusy(_ context.Context, _ *users.User, _, _ time.Time) ([]calendar.BusyInterval, error) {
	return nil, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, u *users.User, _ time.Time, _ int, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, u.Phone)
	return "https://meet.google.com/abc-defg-hij", nil
}

type schedulerEnv struct {
	scheduler   *Scheduler
	users       *users.InMemoryRepository
	appts       *appointments.InMemoryRepository
	suggestions *InMemorySuggestionStore
	notifier    *fakeNotifier
	calendar    *fakeCalendar
}

func newSchedulerEnv(t *testing.T, llm conversation.LLMClient) *schedulerEnv {
	t.Helper()
	userRepo := users.NewInMemoryRepository()
	apptRepo := appointments.NewInMemoryRepository()
	store := NewInMemorySuggestionStore()
	notifier := newFakeNotifier()
	cal := &fakeCalendar{}

	planner := NewSlotPlanner(cal, 20, 15, nil)
	planner.now = fixedNow

	sched := NewScheduler(SchedulerOptions{
		Engine:         NewEngine(llm, userRepo, nil),
		Users:          userRepo,
		Appts:          apptRepo,
		Suggestions:    store,
		Planner:        planner,
		Calendar:       cal,
		Notifier:       notifier,
		SessionCost:    100,
		SessionMinutes: 15,
	})
	sched.now = fixedNow

	return &schedulerEnv{
		scheduler:   sched,
		users:       userRepo,
		appts:       apptRepo,
		suggestions: store,
		notifier:    notifier,
		calendar:    cal,
	}
}

func seedEligible(t *testing.T, repo *users.InMemoryRepository, phone, target, native string, points int, tz string) *users.User {
	t.Helper()
	u := testUser(phone, target, native, users.LevelIntermediate)
	u.Calendar.AccessToken = "tok-" + phone
	u.Calendar.RefreshToken = "ref-" + phone
	u.PointsBalance = points
	u.Preferences.Timezone = tz
	if err := repo.Upsert(context.Background(), u); err != nil {
		t.Fatalf("seed %s: %v", phone, err)
	}
	return u
}

func TestRunPassTier1BooksOnce(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 85})
	ctx := context.Background()

	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "America/New_York")
	seedEligible(t, env.users, "+2", "English", "Japanese", 150, "Asia/Tokyo")

	if err := env.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	booked, err := env.appts.ListConfirmedBetween(ctx, fixedNow(), fixedNow().AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("got %d confirmed appointments, want exactly 1", len(booked))
	}
	appt := booked[0]
	if appt.DurationMinutes != 15 || appt.PointsUsed != 100 {
		t.Errorf("appointment = %d min / %d pts, want 15 / 100", appt.DurationMinutes, appt.PointsUsed)
	}
	if appt.MeetLink == "" {
		t.Error("appointment has no meet link")
	}

	for _, phone := range []string{"+1", "+2"} {
		u, err := env.users.GetByPhone(ctx, phone)
		if err != nil {
			t.Fatalf("load %s: %v", phone, err)
		}
		if u.PointsBalance != 50 {
			t.Errorf("%s balance = %d, want 50 after deduction", phone, u.PointsBalance)
		}
		if u.Phase != users.PhaseMatched {
			t.Errorf("%s phase = %q, want matched", phone, u.Phase)
		}
		msgs := env.notifier.sent[phone]
		if len(msgs) != 1 || !strings.Contains(msgs[0], "Perfect match found") {
			t.Errorf("%s notifications = %v, want one perfect-match message", phone, msgs)
		}
	}
	if len(env.calendar.created) != 2 {
		t.Errorf("calendar events created for %v, want both sides", env.calendar.created)
	}
}

func TestRunPassNeverBooksUserTwice(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 85})
	ctx := context.Background()

	// +1 mirrors both +2 and +3. Only one of the pairs may be booked in a
	// single pass; the leftover user keeps waiting.
	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "America/New_York")
	seedEligible(t, env.users, "+2", "English", "Japanese", 150, "Asia/Tokyo")
	seedEligible(t, env.users, "+3", "English", "Japanese", 150, "Asia/Tokyo")

	if err := env.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	booked, err := env.appts.ListConfirmedBetween(ctx, fixedNow(), fixedNow().AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("got %d confirmed appointments in one pass, want 1", len(booked))
	}

	u1, err := env.users.GetByPhone(ctx, "+1")
	if err != nil {
		t.Fatalf("load +1: %v", err)
	}
	if u1.PointsBalance != 50 {
		t.Errorf("+1 balance = %d, want 50 after a single deduction", u1.PointsBalance)
	}
	if u1.Phase != users.PhaseMatched {
		t.Errorf("+1 phase = %q, want matched", u1.Phase)
	}

	leftover := booked[0].Counterpart("+1")
	waiting := "+2"
	if leftover == "+2" {
		waiting = "+3"
	}
	u, err := env.users.GetByPhone(ctx, waiting)
	if err != nil {
		t.Fatalf("load %s: %v", waiting, err)
	}
	if u.Phase == users.PhaseMatched {
		t.Errorf("%s phase = matched without an appointment", waiting)
	}
	if u.PointsBalance != 150 {
		t.Errorf("%s balance = %d, want untouched 150", waiting, u.PointsBalance)
	}
}

func TestRunPassTier2Suggests(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 65})
	ctx := context.Background()

	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "America/New_York")
	seedEligible(t, env.users, "+2", "English", "Japanese", 150, "Asia/Tokyo")

	if err := env.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	booked, _ := env.appts.ListConfirmedBetween(ctx, fixedNow(), fixedNow().AddDate(0, 0, 14))
	if len(booked) != 0 {
		t.Fatalf("tier 2 score booked %d appointments, want 0", len(booked))
	}

	pending, err := env.suggestions.List(ctx, "+1")
	if err != nil {
		t.Fatalf("list suggestions: %v", err)
	}
	if len(pending) != 1 || pending[0].Position != 1 || pending[0].CandidatePhone != "+2" {
		t.Fatalf("pending = %+v, want one suggestion for +2 at position 1", pending)
	}

	u, _ := env.users.GetByPhone(ctx, "+1")
	if u.Phase != users.PhaseReviewingSuggestions {
		t.Errorf("phase = %q, want reviewing_suggestions", u.Phase)
	}

	msgs := env.notifier.sent["+1"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Reply with the number") {
		t.Errorf("notification = %v, want suggestion list with reply instructions", msgs)
	}
	// A 14-hour gap must surface in the trade-off reason.
	if !strings.Contains(msgs[0], "time difference") {
		t.Errorf("notification %q does not mention the timezone trade-off", msgs[0])
	}
}

func TestRunPassBelowThresholdStillLooking(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 40})
	ctx := context.Background()

	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "Europe/London")
	seedEligible(t, env.users, "+2", "English", "Japanese", 150, "Europe/Paris")

	if err := env.scheduler.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	pending, _ := env.suggestions.List(ctx, "+1")
	if len(pending) != 0 {
		t.Errorf("suggestions persisted below threshold: %+v", pending)
	}
	msgs := env.notifier.sent["+1"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "still looking") {
		t.Errorf("notification = %v, want still-looking message", msgs)
	}
}

func TestRunPassNeedsTwoEligible(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 85})
	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "Asia/Tokyo")

	if err := env.scheduler.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(env.notifier.sent) != 0 {
		t.Errorf("notifications sent with a single eligible user: %v", env.notifier.sent)
	}
}

func TestAcceptSuggestionBooks(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 65})
	ctx := context.Background()

	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "America/New_York")
	seedEligible(t, env.users, "+2", "English", "Japanese", 150, "Asia/Tokyo")

	err := env.suggestions.Replace(ctx, "+1", []Suggestion{{
		Phone:          "+1",
		Position:       1,
		CandidatePhone: "+2",
		Score:          65,
		Reason:         "You both like music",
		Icebreaker:     "What do you listen to?",
	}})
	if err != nil {
		t.Fatalf("seed suggestion: %v", err)
	}

	if err := env.scheduler.AcceptSuggestion(ctx, "+1", 1); err != nil {
		t.Fatalf("AcceptSuggestion: %v", err)
	}

	booked, _ := env.appts.ListConfirmedBetween(ctx, fixedNow(), fixedNow().AddDate(0, 0, 14))
	if len(booked) != 1 {
		t.Fatalf("got %d appointments, want 1", len(booked))
	}
	pending, _ := env.suggestions.List(ctx, "+1")
	if len(pending) != 0 {
		t.Errorf("suggestions not cleared after booking: %+v", pending)
	}
	if err := env.scheduler.AcceptSuggestion(ctx, "+1", 2); err == nil {
		t.Error("accepting a missing position should fail")
	}
}

func TestCandidatesSummaries(t *testing.T) {
	env := newSchedulerEnv(t, staticScoreLLM{score: 72})
	ctx := context.Background()

	seedEligible(t, env.users, "+1", "Japanese", "English", 150, "Asia/Tokyo")
	seedEligible(t, env.users, "+2", "English", "Japanese", 150, "Asia/Tokyo")

	got, err := env.scheduler.Candidates(ctx, "+1")
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].Phone != "+2" || got[0].Score != 72 {
		t.Errorf("candidates = %+v, want +2 at score 72", got)
	}
}
