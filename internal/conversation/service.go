package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/chatlog"
	"github.com/nelo-ai/nelo-bot/internal/messaging"
	"github.com/nelo-ai/nelo-bot/internal/observability/metrics"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Dispatcher is the outbound side of a conversation turn.
// messaging.Dispatcher satisfies it.
type Dispatcher interface {
	Send(ctx context.Context, to string, bubbles ...string) error
	SendWithFollowUps(ctx context.Context, to string, bubbles ...string) error
	CancelFollowUps(to string)
}

// CandidateSummary is what the matchmaker reports back for the manual
// "match" command.
type CandidateSummary struct {
	Phone          string
	TargetLanguage string
	NativeLanguage string
	Level          string
	TrustScore     int
	Score          int
	Reason         string
	Icebreaker     string
}

// Matchmaker is implemented by the matching package. It may be nil when
// matching is not configured; the related commands then degrade.
type Matchmaker interface {
	Candidates(ctx context.Context, phone string) ([]CandidateSummary, error)
	AcceptSuggestion(ctx context.Context, phone string, choice int) error
	ClearSuggestions(ctx context.Context, phone string) error
}

// Service is the per-user conversation state machine. One inbound message
// plus the persisted user record produce a transition, outbound messages,
// and persisted side effects.
type Service struct {
	users      users.Repository
	appts      appointments.Repository
	log        chatlog.Repository
	extractor  *Extractor
	llm        LLMClient
	quota      *Quota
	dispatcher Dispatcher
	matchmaker Matchmaker
	baseURL    string
	locks      *keyLock
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

// Options carries the collaborators for NewService. LLM and Matchmaker are
// optional capabilities; absence degrades the related features.
type Options struct {
	Users      users.Repository
	Appts      appointments.Repository
	Log        chatlog.Repository
	LLM        LLMClient
	Quota      *Quota
	Dispatcher Dispatcher
	Matchmaker Matchmaker
	BaseURL    string
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		users:      opts.Users,
		appts:      opts.Appts,
		log:        opts.Log,
		extractor:  NewExtractor(opts.LLM, logger),
		llm:        opts.LLM,
		quota:      opts.Quota,
		dispatcher: opts.Dispatcher,
		matchmaker: opts.Matchmaker,
		baseURL:    opts.BaseURL,
		locks:      newKeyLock(),
		metrics:    opts.Metrics,
		logger:     logger.Component("conversation"),
		now:        time.Now,
	}
}

// HandleInboundMessage is the core entry point for one webhook delivery.
// Turns for the same phone are serialized; different phones proceed in
// parallel. The user always gets a reply, a generic apology at worst.
func (s *Service) HandleInboundMessage(ctx context.Context, from, body string) error {
	phone := messaging.NormalizePhone(from)
	if phone == "" {
		return fmt.Errorf("conversation: unparseable sender %q", from)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	s.locks.Lock(phone)
	defer s.locks.Unlock(phone)

	s.metrics.IncInbound()
	s.appendLog(ctx, phone, chatlog.DirectionInbound, body, false)

	if err := s.handle(ctx, phone, body); err != nil {
		s.logger.Error("conversation turn failed", "phone", phone, "error", err)
		_ = s.dispatcher.Send(ctx, phone, msgGenericApology)
		return err
	}
	return nil
}

func (s *Service) handle(ctx context.Context, phone, body string) error {
	// Reset is checked before any phase dispatch.
	if isResetCommand(body) {
		return s.reset(ctx, phone)
	}

	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		if err != users.ErrNotFound {
			return fmt.Errorf("load user: %w", err)
		}
		user = &users.User{Phone: phone, Phase: users.PhaseNew, TrustScore: users.DefaultTrustScore}
	}
	if user.Phase == "" {
		// Pre-state-machine records behave like registered users.
		user.Phase = users.PhaseRegistered
	}

	switch user.Phase {
	case users.PhaseNew:
		return s.handleNew(ctx, user, body)
	case users.PhaseRegistration, users.PhaseProfileExtraction:
		return s.handleRegistration(ctx, user, body)
	case users.PhaseConfirmation:
		return s.handleConfirmation(ctx, user, body)
	case users.PhaseLifestyleQuestions:
		return s.handleLifestyle(ctx, user, body)
	case users.PhaseReviewingSuggestions:
		return s.handleSuggestionReply(ctx, user, body)
	default:
		// registered, matching, waiting, matched
		return s.handleOpenTurn(ctx, user, body)
	}
}

func isResetCommand(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	return lower == "reset" || lower == "superreset"
}

// reset wipes the user's own durable state and restarts at new. Booked
// sessions are status-transitioned, never deleted: the counterpart paid for
// theirs, so they get a refund and a heads-up.
func (s *Service) reset(ctx context.Context, phone string) error {
	s.dispatcher.CancelFollowUps(phone)
	if err := s.cancelUpcomingSessions(ctx, phone); err != nil {
		return fmt.Errorf("reset appointments: %w", err)
	}
	if err := s.log.DeleteForUser(ctx, phone); err != nil {
		return fmt.Errorf("reset chat log: %w", err)
	}
	if s.matchmaker != nil {
		if err := s.matchmaker.ClearSuggestions(ctx, phone); err != nil {
			s.logger.Warn("reset: clear suggestions failed", "phone", phone, "error", err)
		}
	}
	if err := s.users.Delete(ctx, phone); err != nil {
		return fmt.Errorf("reset user: %w", err)
	}
	s.logger.Info("user state reset", "phone", phone)
	return s.send(ctx, phone, msgResetDone)
}

// handleNew treats a greeting as a registration trigger and anything else
// as the user's name.
func (s *Service) handleNew(ctx context.Context, user *users.User, body string) error {
	if isGreeting(body) {
		user.Step = users.StepCollectName
		if err := s.users.Upsert(ctx, user); err != nil {
			return fmt.Errorf("save new user: %w", err)
		}
		return s.send(ctx, user.Phone, msgNameQuestion)
	}

	user.Name = strings.TrimSpace(body)
	user.Phase = users.PhaseRegistration
	user.Step = users.StepCollectAnswers
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("save name: %w", err)
	}
	return s.sendWithFollowUps(ctx, user.Phone, msgNameReaction(user.Name), msgFourQuestions)
}

// handleRegistration guards the four-question step with the on-topic
// classifier, then runs extraction synchronously within the same turn.
func (s *Service) handleRegistration(ctx context.Context, user *users.User, body string) error {
	onTopic := s.classifyOnTopic(ctx, user.Phone, body)
	if !onTopic {
		reaction := s.offTopicReaction(ctx, user.Phone, body)
		pivot := "Let's get back to it! I still need to know: " + DescribeMissing(user) + "."
		return s.sendWithFollowUps(ctx, user.Phone, reaction, pivot)
	}

	// Store the raw answer, then extract immediately.
	if user.StateData == nil {
		user.StateData = make(map[string]string)
	}
	user.StateData["answers"] = body
	user.Phase = users.PhaseProfileExtraction

	profile := s.extractWithQuota(ctx, user.Phone, body)
	ApplyProfile(user, profile)
	user.Phase = users.PhaseConfirmation
	user.Step = ""
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("save extracted profile: %w", err)
	}

	return s.sendWithFollowUps(ctx, user.Phone, msgConfirmation, msgCalendarLink(s.baseURL, user.Phone))
}

// handleConfirmation waits for an affirmative token; anything else re-sends
// the confirmation plus the no-show policy.
func (s *Service) handleConfirmation(ctx context.Context, user *users.User, body string) error {
	if !isAffirmation(body) {
		return s.sendWithFollowUps(ctx, user.Phone, msgConfirmation, msgNoShowWarning)
	}

	// Registered, then immediately re-tagged as matching so open-ended
	// profile enrichment starts right away.
	user.Phase = users.PhaseMatching
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return s.sendWithFollowUps(ctx, user.Phone, msgSearching1, msgSearching2)
}

// handleLifestyle merges the post-calendar answer into preferences.
func (s *Service) handleLifestyle(ctx context.Context, user *users.User, body string) error {
	var prefs users.Preferences
	if s.allowAI(ctx, user.Phone) {
		var usedAI bool
		prefs, usedAI = s.extractor.ExtractLifestyle(ctx, body)
		if usedAI {
			s.recordAIUse(ctx, user.Phone)
		}
	} else {
		prefs = users.Preferences{Other: map[string]string{"lifestyle": truncate(body, maxRawInterestLen)}}
	}
	user.Preferences = user.Preferences.Merge(prefs)
	user.Phase = users.PhaseWaiting
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("save lifestyle preferences: %w", err)
	}
	return s.send(ctx, user.Phone, msgLifestyleSaved)
}

// handleSuggestionReply resolves a digit 1-3 or "skip" against the pending
// suggestions.
func (s *Service) handleSuggestionReply(ctx context.Context, user *users.User, body string) error {
	lower := strings.ToLower(strings.TrimSpace(body))

	if strings.Contains(lower, "skip") {
		if s.matchmaker != nil {
			if err := s.matchmaker.ClearSuggestions(ctx, user.Phone); err != nil {
				s.logger.Warn("clear suggestions failed", "phone", user.Phone, "error", err)
			}
		}
		if err := s.users.UpdateState(ctx, user.Phone, users.PhaseWaiting, "", nil); err != nil {
			return fmt.Errorf("revert to waiting: %w", err)
		}
		return s.send(ctx, user.Phone, msgSkipAck)
	}

	choice, err := strconv.Atoi(lower)
	if err != nil || choice < 1 || choice > 3 {
		return s.send(ctx, user.Phone, msgSuggestionReprompt)
	}
	if s.matchmaker == nil {
		return s.send(ctx, user.Phone, msgSuggestionReprompt)
	}

	if err := s.send(ctx, user.Phone, msgBookingSuggestion); err != nil {
		return err
	}
	if err := s.matchmaker.AcceptSuggestion(ctx, user.Phone, choice); err != nil {
		s.logger.Error("accept suggestion failed", "phone", user.Phone, "choice", choice, "error", err)
		return s.send(ctx, user.Phone, msgGenericApology)
	}
	return nil
}

// handleOpenTurn serves registered users: commands first, then continuous
// learning, then constrained open chat under the daily quota.
func (s *Service) handleOpenTurn(ctx context.Context, user *users.User, body string) error {
	if reply, handled := s.handleCommand(ctx, user, body); handled {
		return s.send(ctx, user.Phone, reply)
	}

	// A matched user replying with an affirmation is confirming their
	// upcoming session, which stops the auto-cancel job.
	if user.Phase == users.PhaseMatched && isAffirmation(body) {
		confirmed, err := s.confirmNextSession(ctx, user.Phone)
		if err != nil {
			return err
		}
		if confirmed {
			return s.send(ctx, user.Phone, msgSessionConfirmed)
		}
	}

	if !s.allowAI(ctx, user.Phone) {
		return s.send(ctx, user.Phone, msgQuotaExceeded)
	}

	learned, usedAI := s.extractor.ContinuousLearn(ctx, body)
	if usedAI {
		s.recordAIUse(ctx, user.Phone)
	}
	if learned.Found() {
		user.Interests = users.MergeInterests(user.Interests, learned.Interests)
		if learned.JobTitle != "" {
			user.JobTitle = learned.JobTitle
		}
		if learned.MatchingGoal != "" {
			user.MatchingGoal = learned.MatchingGoal
		}
		if err := s.users.Upsert(ctx, user); err != nil {
			return fmt.Errorf("save learned profile: %w", err)
		}
		return s.send(ctx, user.Phone, msgLearnAck)
	}

	reply, chatUsedAI := s.openChat(ctx, body)
	if chatUsedAI {
		s.recordAIUse(ctx, user.Phone)
	}
	return s.send(ctx, user.Phone, reply)
}

// CalendarConnected stores the user's OAuth credentials and moves them to
// the lifestyle question. Called by the OAuth callback handler, so it takes
// the same per-phone lock as inbound messages.
func (s *Service) CalendarConnected(ctx context.Context, phone string, creds users.CalendarCredentials) error {
	phone = messaging.NormalizePhone(phone)
	if phone == "" {
		return fmt.Errorf("conversation: unparseable phone")
	}
	s.locks.Lock(phone)
	defer s.locks.Unlock(phone)

	if err := s.users.UpdateCalendar(ctx, phone, creds); err != nil {
		return fmt.Errorf("store calendar credentials: %w", err)
	}
	if err := s.users.UpdateState(ctx, phone, users.PhaseLifestyleQuestions, "", nil); err != nil {
		return fmt.Errorf("move to lifestyle: %w", err)
	}
	return s.send(ctx, phone, msgCalendarConnected, msgLifestyleQuestion)
}

// cancelUpcomingSessions cancels the phone's future confirmed sessions,
// refunding and notifying the other participant.
func (s *Service) cancelUpcomingSessions(ctx context.Context, phone string) error {
	upcoming, err := s.appts.ListUpcomingForUser(ctx, phone, s.now())
	if err != nil {
		return fmt.Errorf("list upcoming: %w", err)
	}
	for _, a := range upcoming {
		if a.Status != appointments.StatusConfirmed {
			continue
		}
		if err := s.appts.UpdateStatus(ctx, a.ID, appointments.StatusCancelled); err != nil {
			return fmt.Errorf("cancel appointment %s: %w", a.ID, err)
		}
		other := a.Counterpart(phone)
		if err := s.users.CreditPoints(ctx, other, a.PointsUsed); err != nil {
			s.logger.Warn("counterpart refund failed", "phone", other, "error", err)
			continue
		}
		if err := s.send(ctx, other, msgPartnerCancelled); err != nil {
			s.logger.Warn("counterpart cancel notice failed", "phone", other, "error", err)
		}
	}
	return nil
}

// confirmNextSession marks the user's nearest unconfirmed session as
// confirmed. Returns false when there is nothing to confirm.
func (s *Service) confirmNextSession(ctx context.Context, phone string) (bool, error) {
	upcoming, err := s.appts.ListUpcomingForUser(ctx, phone, s.now())
	if err != nil {
		return false, fmt.Errorf("list upcoming: %w", err)
	}
	for _, a := range upcoming {
		if a.Status != appointments.StatusConfirmed || a.ConfirmationReceived {
			continue
		}
		if err := s.appts.MarkConfirmed(ctx, a.ID); err != nil {
			return false, fmt.Errorf("mark confirmed: %w", err)
		}
		return true, nil
	}
	return false, nil
}

const openChatPrompt = `You are Nelo, the assistant of a language-exchange matching service. Answer the user's question kindly and briefly, in a friendly tone. Keep it under three sentences.`

// openChat produces the constrained fallback reply for unclassified turns.
func (s *Service) openChat(ctx context.Context, body string) (string, bool) {
	if s.llm == nil {
		return "I can help with these commands:\n- \"match\"\n- \"points\"\n- \"appointment\"", false
	}
	resp, err := s.llm.Complete(ctx, LLMRequest{
		System:      []string{openChatPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: body}},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		s.logger.Warn("open chat model call failed", "error", err)
		return "Sorry, I can't answer that right now. 🙏", false
	}
	return resp.Text, true
}

// offTopicReaction asks the model for a one-line friendly reaction to small
// talk; fixed text when the model is unavailable.
func (s *Service) offTopicReaction(ctx context.Context, phone, body string) string {
	if s.llm == nil || !s.allowAI(ctx, phone) {
		return "Haha, I hear you! 😄"
	}
	resp, err := s.llm.Complete(ctx, LLMRequest{
		System:      []string{"Reply with one short, friendly sentence reacting to the user's message. No questions."},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: body}},
		MaxTokens:   60,
		Temperature: 0.8,
	})
	if err != nil {
		return "Haha, I hear you! 😄"
	}
	s.recordAIUse(ctx, phone)
	return resp.Text
}

func (s *Service) classifyOnTopic(ctx context.Context, phone, body string) bool {
	if !s.allowAI(ctx, phone) {
		return KeywordOnTopic(body)
	}
	onTopic, usedAI := s.extractor.ClassifyOnTopic(ctx, body)
	if usedAI {
		s.recordAIUse(ctx, phone)
	}
	return onTopic
}

func (s *Service) extractWithQuota(ctx context.Context, phone, body string) Profile {
	if !s.allowAI(ctx, phone) {
		return KeywordExtract(body)
	}
	profile, usedAI := s.extractor.Extract(ctx, body)
	if usedAI {
		s.recordAIUse(ctx, phone)
	}
	return profile
}

func (s *Service) allowAI(ctx context.Context, phone string) bool {
	return s.quota == nil || s.quota.Allow(ctx, phone)
}

// aiUsageMarker is the log entry text for quota bookkeeping. One ai-flagged
// entry is appended per successful model call, never for fallbacks.
const aiUsageMarker = "[AI_CALL]"

// recordAIUse appends one ai-flagged log entry. This is the only thing the
// daily quota counts.
func (s *Service) recordAIUse(ctx context.Context, phone string) {
	s.appendLog(ctx, phone, chatlog.DirectionOutbound, aiUsageMarker, true)
	s.metrics.IncAICall("success")
}

// send delivers the bubbles synchronously and logs them.
func (s *Service) send(ctx context.Context, phone string, bubbles ...string) error {
	if err := s.dispatcher.Send(ctx, phone, bubbles...); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	s.logBubbles(ctx, phone, bubbles)
	return nil
}

// sendWithFollowUps delivers the first bubble synchronously, the rest
// paced in the background.
func (s *Service) sendWithFollowUps(ctx context.Context, phone string, bubbles ...string) error {
	if err := s.dispatcher.SendWithFollowUps(ctx, phone, bubbles...); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	s.logBubbles(ctx, phone, bubbles)
	return nil
}

func (s *Service) logBubbles(ctx context.Context, phone string, bubbles []string) {
	sent := 0
	for _, b := range bubbles {
		if b == "" {
			continue
		}
		s.appendLog(ctx, phone, chatlog.DirectionOutbound, b, false)
		sent++
	}
	s.metrics.IncOutbound(sent)
}

// appendLog is soft-fail: the conversation must not die on bookkeeping.
func (s *Service) appendLog(ctx context.Context, phone string, dir chatlog.Direction, text string, aiUsed bool) {
	entry := &chatlog.Entry{Phone: phone, Direction: dir, Text: text, AIUsed: aiUsed}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Warn("chat log append failed", "phone", phone, "error", err)
	}
}
