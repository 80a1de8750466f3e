package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/calendar"
	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/internal/observability/metrics"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// suggestionThreshold is the minimum score for a curated (tier 2)
// suggestion.
const suggestionThreshold = 60

// maxSuggestions caps how many curated options a user gets per pass.
const maxSuggestions = 3

// Notifier is the outbound side of the scheduler. messaging.Dispatcher
// satisfies it.
type Notifier interface {
	Send(ctx context.Context, to string, bubbles ...string) error
}

// Scheduler runs matching passes over the eligible population. Tier 1
// matches are booked automatically; everything else becomes curated
// suggestions the user replies to.
type Scheduler struct {
	engine         *Engine
	users          users.Repository
	appts          appointments.Repository
	suggestions    SuggestionStore
	planner        *SlotPlanner
	calendar       calendar.Client
	notifier       Notifier
	metrics        *metrics.Metrics
	logger         *logging.Logger
	sessionCost    int
	sessionMinutes int
	now            func() time.Time
}

type SchedulerOptions struct {
	Engine         *Engine
	Users          users.Repository
	Appts          appointments.Repository
	Suggestions    SuggestionStore
	Planner        *SlotPlanner
	Calendar       calendar.Client
	Notifier       Notifier
	Metrics        *metrics.Metrics
	Logger         *logging.Logger
	SessionCost    int
	SessionMinutes int
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if opts.SessionCost <= 0 {
		opts.SessionCost = 100
	}
	if opts.SessionMinutes <= 0 {
		opts.SessionMinutes = 15
	}
	return &Scheduler{
		engine:         opts.Engine,
		users:          opts.Users,
		appts:          opts.Appts,
		suggestions:    opts.Suggestions,
		planner:        opts.Planner,
		calendar:       opts.Calendar,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		logger:         logger.Component("scheduler"),
		sessionCost:    opts.SessionCost,
		sessionMinutes: opts.SessionMinutes,
		now:            time.Now,
	}
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// RunPass processes every eligible user once. Per-user failures are logged
// and skipped so one bad record cannot stall the whole pass.
func (s *Scheduler) RunPass(ctx context.Context) error {
	eligible, err := s.users.ListEligibleForMatching(ctx, s.sessionCost)
	if err != nil {
		return fmt.Errorf("matching: list eligible: %w", err)
	}
	if len(eligible) < 2 {
		s.logger.Info("matching pass skipped, not enough eligible users", "eligible", len(eligible))
		return nil
	}

	// Pairs booked in this pass. Stops the reverse direction from booking
	// the same two people twice before the phase updates land.
	matchedPairs := make(map[string]bool)
	consumed := make(map[string]bool)

	for _, user := range eligible {
		if consumed[user.Phone] {
			continue
		}
		if err := s.processUser(ctx, user, eligible, matchedPairs, consumed); err != nil {
			s.logger.Error("matching pass user failed", "phone", user.Phone, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) processUser(ctx context.Context, user *users.User, pool []*users.User, matchedPairs, consumed map[string]bool) error {
	candidates := s.engine.CandidatesAmong(ctx, user, pool)

	for _, cand := range candidates {
		// The pool is a snapshot from the start of the pass; anyone booked
		// by an earlier iteration is off the table.
		if consumed[cand.User.Phone] {
			continue
		}
		if !s.tier1Eligible(user, cand) {
			continue
		}
		key := pairKey(user.Phone, cand.User.Phone)
		if matchedPairs[key] {
			continue
		}
		if err := s.book(ctx, user, cand.User, cand.MatchScore); err != nil {
			return fmt.Errorf("book tier1: %w", err)
		}
		matchedPairs[key] = true
		consumed[user.Phone] = true
		consumed[cand.User.Phone] = true
		s.metrics.IncMatch("tier1")
		return nil
	}

	var kept []Candidate
	for _, cand := range candidates {
		if consumed[cand.User.Phone] {
			continue
		}
		if cand.Score >= suggestionThreshold {
			kept = append(kept, cand)
		}
		if len(kept) == maxSuggestions {
			break
		}
	}
	if len(kept) == 0 {
		return s.notify(ctx, user.Phone, stillLookingMsg)
	}
	return s.suggest(ctx, user, kept)
}

// tier1Eligible checks the automatic-booking gate on top of the engine's
// hard filter: a great score, both calendars connected, and both able to
// pay for the session.
func (s *Scheduler) tier1Eligible(user *users.User, cand Candidate) bool {
	return IsGreatMatch(cand.MatchScore) &&
		user.Calendar.Connected() && cand.User.Calendar.Connected() &&
		user.PointsBalance >= s.sessionCost && cand.User.PointsBalance >= s.sessionCost
}

// book creates the session end to end: slot, calendar events, confirmed
// appointment, point deduction, phase transition, and notifications.
func (s *Scheduler) book(ctx context.Context, a, b *users.User, verdict MatchScore) error {
	slot := s.planner.NextSlot(ctx, a, b)

	var meetLink string
	if s.calendar != nil {
		link, err := s.calendar.CreateEvent(ctx, a, slot, s.sessionMinutes, b.Phone)
		if err != nil {
			return fmt.Errorf("create event for %s: %w", a.Phone, err)
		}
		meetLink = link
		if _, err := s.calendar.CreateEvent(ctx, b, slot, s.sessionMinutes, a.Phone); err != nil {
			s.logger.Warn("counterpart calendar event failed", "phone", b.Phone, "error", err)
		}
	}

	appt := &appointments.Appointment{
		User1Phone:      a.Phone,
		User2Phone:      b.Phone,
		ScheduledAt:     slot,
		DurationMinutes: s.sessionMinutes,
		MeetLink:        meetLink,
		PointsUsed:      s.sessionCost,
		Status:          appointments.StatusConfirmed,
	}
	if err := s.appts.Create(ctx, appt); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}

	for _, u := range []*users.User{a, b} {
		if err := s.users.CreditPoints(ctx, u.Phone, -s.sessionCost); err != nil {
			return fmt.Errorf("deduct points for %s: %w", u.Phone, err)
		}
		if err := s.users.UpdateState(ctx, u.Phone, users.PhaseMatched, "", nil); err != nil {
			return fmt.Errorf("mark matched for %s: %w", u.Phone, err)
		}
	}

	s.logger.Info("automatic match booked",
		"user1", a.Phone, "user2", b.Phone, "score", verdict.Score, "slot", slot)

	for _, u := range []*users.User{a, b} {
		local := CounterpartLocal(slot, u.Preferences.Timezone)
		if err := s.notify(ctx, u.Phone, perfectMatchMsg(local, s.sessionMinutes, meetLink, verdict.Reason, verdict.Icebreaker)); err != nil {
			s.logger.Warn("match notification failed", "phone", u.Phone, "error", err)
		}
	}
	return nil
}

// suggest persists the curated options and moves the user to reviewing.
func (s *Scheduler) suggest(ctx context.Context, user *users.User, kept []Candidate) error {
	stored := make([]Suggestion, 0, len(kept))
	lines := make([]string, 0, len(kept))
	for i, cand := range kept {
		reason := joinReasons(tradeOffReason(user, cand.User), cand.Reason)
		stored = append(stored, Suggestion{
			Phone:          user.Phone,
			Position:       i + 1,
			CandidatePhone: cand.User.Phone,
			Score:          cand.Score,
			Reason:         reason,
			Icebreaker:     cand.Icebreaker,
		})
		lines = append(lines, suggestionLine(i+1, cand.User, reason))
	}

	if err := s.suggestions.Replace(ctx, user.Phone, stored); err != nil {
		return fmt.Errorf("persist suggestions: %w", err)
	}
	if err := s.users.UpdateState(ctx, user.Phone, users.PhaseReviewingSuggestions, "", nil); err != nil {
		return fmt.Errorf("mark reviewing: %w", err)
	}
	s.metrics.IncMatch("tier2")
	return s.notify(ctx, user.Phone, suggestionsMsg(lines))
}

// tradeOffReason names the honest compromises of a non-perfect pairing.
func tradeOffReason(a, b *users.User) string {
	var parts []string
	if TimezoneGapHours(a.Preferences.Timezone, b.Preferences.Timezone) >= 8 {
		parts = append(parts, "the time difference is big, so scheduling takes some flexibility")
	}
	if a.Level != b.Level && a.Level != users.LevelNative && b.Level != users.LevelNative {
		parts = append(parts, "your levels are a bit different")
	}
	if shared := sharedInterests(a, b); len(shared) > 0 {
		parts = append(parts, "you both like "+strings.Join(shared, " and "))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", but ")
}

func sharedInterests(a, b *users.User) []string {
	theirs := make(map[string]bool, len(b.Interests))
	for _, i := range b.Interests {
		theirs[strings.ToLower(i)] = true
	}
	var shared []string
	for _, i := range a.Interests {
		if theirs[strings.ToLower(i)] {
			shared = append(shared, i)
		}
		if len(shared) == 2 {
			break
		}
	}
	return shared
}

func joinReasons(tradeOff, aiReason string) string {
	switch {
	case tradeOff == "":
		return aiReason
	case aiReason == "":
		return tradeOff
	default:
		return tradeOff + ". " + aiReason
	}
}

func (s *Scheduler) notify(ctx context.Context, phone, body string) error {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Send(ctx, phone, body)
}

// Candidates backs the manual "match" command.
func (s *Scheduler) Candidates(ctx context.Context, phone string) ([]conversation.CandidateSummary, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("matching: load user: %w", err)
	}
	found, err := s.engine.FindCandidates(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.CandidateSummary, 0, len(found))
	for _, cand := range found {
		out = append(out, conversation.CandidateSummary{
			Phone:          cand.User.Phone,
			TargetLanguage: cand.User.TargetLanguage,
			NativeLanguage: cand.User.NativeLanguage,
			Level:          string(cand.User.Level),
			TrustScore:     cand.User.TrustScore,
			Score:          cand.Score,
			Reason:         cand.Reason,
			Icebreaker:     cand.Icebreaker,
		})
	}
	return out, nil
}

// AcceptSuggestion books the pending suggestion the user picked by number.
func (s *Scheduler) AcceptSuggestion(ctx context.Context, phone string, choice int) error {
	sg, err := s.suggestions.Get(ctx, phone, choice)
	if err != nil {
		return fmt.Errorf("matching: load suggestion %d: %w", choice, err)
	}
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("matching: load user: %w", err)
	}
	cand, err := s.users.GetByPhone(ctx, sg.CandidatePhone)
	if err != nil {
		return fmt.Errorf("matching: load candidate: %w", err)
	}

	if err := s.book(ctx, user, cand, MatchScore{Score: sg.Score, Reason: sg.Reason, Icebreaker: sg.Icebreaker}); err != nil {
		return err
	}
	if err := s.suggestions.Clear(ctx, phone); err != nil {
		s.logger.Warn("clear suggestions after booking failed", "phone", phone, "error", err)
	}
	s.metrics.IncMatch("accepted")
	return nil
}

// ClearSuggestions drops the pending set, used by skip and reset.
func (s *Scheduler) ClearSuggestions(ctx context.Context, phone string) error {
	return s.suggestions.Clear(ctx, phone)
}
