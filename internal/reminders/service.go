package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/appointments"
	"github.com/nelo-ai/nelo-bot/internal/chatlog"
	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Reminder windows around the scheduled start. The wide bounds tolerate
// job-timer drift; the persisted sent flags stop duplicates.
const (
	reminder24hLow  = 23 * time.Hour
	reminder24hHigh = 25 * time.Hour
	reminder1hLow   = 54 * time.Minute
	reminder1hHigh  = 66 * time.Minute
)

// registrationStaleAfter is how long a mid-registration user can sit idle
// before a nudge.
const registrationStaleAfter = 23 * time.Hour

// maxRegistrationNudges caps nudges per user, counted via the log marker.
const maxRegistrationNudges = 2

// Notifier is the outbound side of the jobs. messaging.Dispatcher
// satisfies it.
type Notifier interface {
	Send(ctx context.Context, to string, bubbles ...string) error
}

// Service owns the periodic appointment reminders, the unconfirmed-session
// auto-cancel, and the stalled-registration nudges.
type Service struct {
	appts    appointments.Repository
	users    users.Repository
	log      chatlog.Repository
	llm      conversation.LLMClient
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

type Options struct {
	Appts    appointments.Repository
	Users    users.Repository
	Log      chatlog.Repository
	LLM      conversation.LLMClient
	Notifier Notifier
	Logger   *logging.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		appts:    opts.Appts,
		users:    opts.Users,
		log:      opts.Log,
		llm:      opts.LLM,
		notifier: opts.Notifier,
		logger:   logger.Component("reminders"),
		now:      time.Now,
	}
}

// RunReminderPass sends the 24-hour and 1-hour reminders for confirmed
// appointments. Per-appointment failures are logged, not fatal.
func (s *Service) RunReminderPass(ctx context.Context) error {
	now := s.now()
	if err := s.remind(ctx, now.Add(reminder24hLow), now.Add(reminder24hHigh), appointments.Reminder24Hour); err != nil {
		return err
	}
	return s.remind(ctx, now.Add(reminder1hLow), now.Add(reminder1hHigh), appointments.Reminder1Hour)
}

func (s *Service) remind(ctx context.Context, from, to time.Time, kind appointments.ReminderKind) error {
	appts, err := s.appts.ListConfirmedBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("reminders: list window: %w", err)
	}
	for _, a := range appts {
		if reminderAlreadySent(a, kind) {
			continue
		}
		body := reminderMsg(kind, a)
		for _, phone := range []string{a.User1Phone, a.User2Phone} {
			if err := s.notifier.Send(ctx, phone, body); err != nil {
				s.logger.Warn("reminder send failed", "phone", phone, "appointment", a.ID, "error", err)
			}
		}
		if err := s.appts.MarkReminderSent(ctx, a.ID, kind); err != nil {
			s.logger.Error("mark reminder failed", "appointment", a.ID, "kind", kind, "error", err)
		}
	}
	return nil
}

func reminderAlreadySent(a *appointments.Appointment, kind appointments.ReminderKind) bool {
	if kind == appointments.Reminder1Hour {
		return a.Reminder1hSent
	}
	return a.Reminder24hSent
}

// RunAutoCancelPass cancels every confirmed appointment entering the
// 24-hour window with no confirmation on record, refunds both parties, and
// tells them.
func (s *Service) RunAutoCancelPass(ctx context.Context) error {
	now := s.now()
	appts, err := s.appts.ListConfirmedBetween(ctx, now.Add(reminder24hLow), now.Add(reminder24hHigh))
	if err != nil {
		return fmt.Errorf("reminders: list cancel window: %w", err)
	}
	for _, a := range appts {
		if a.ConfirmationReceived {
			continue
		}
		if err := s.cancelAndRefund(ctx, a); err != nil {
			s.logger.Error("auto-cancel failed", "appointment", a.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) cancelAndRefund(ctx context.Context, a *appointments.Appointment) error {
	if err := s.appts.UpdateStatus(ctx, a.ID, appointments.StatusCancelled); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	for _, phone := range []string{a.User1Phone, a.User2Phone} {
		if err := s.users.CreditPoints(ctx, phone, a.PointsUsed); err != nil {
			s.logger.Error("refund failed", "phone", phone, "appointment", a.ID, "error", err)
			continue
		}
		if err := s.notifier.Send(ctx, phone, cancelledMsg(a.PointsUsed)); err != nil {
			s.logger.Warn("cancel notification failed", "phone", phone, "error", err)
		}
	}
	s.logger.Info("appointment auto-cancelled", "appointment", a.ID, "refund", a.PointsUsed)
	return nil
}

// RunRegistrationNudgePass pokes users stuck mid-registration. At most two
// nudges per user, tracked by a marker entry in the message log.
func (s *Service) RunRegistrationNudgePass(ctx context.Context) error {
	stalled, err := s.users.ListByPhase(ctx, users.PhaseRegistration)
	if err != nil {
		return fmt.Errorf("reminders: list registration: %w", err)
	}
	now := s.now()
	for _, u := range stalled {
		last, err := s.log.LastOutboundAt(ctx, u.Phone)
		if err != nil {
			s.logger.Warn("last outbound lookup failed", "phone", u.Phone, "error", err)
			continue
		}
		if last.IsZero() || now.Sub(last) < registrationStaleAfter {
			continue
		}
		sent, err := s.log.CountContaining(ctx, u.Phone, chatlog.ReminderMarker)
		if err != nil {
			s.logger.Warn("nudge count lookup failed", "phone", u.Phone, "error", err)
			continue
		}
		if sent >= maxRegistrationNudges {
			continue
		}
		if err := s.nudge(ctx, u); err != nil {
			s.logger.Error("registration nudge failed", "phone", u.Phone, "error", err)
		}
	}
	return nil
}

func (s *Service) nudge(ctx context.Context, u *users.User) error {
	body := s.nudgeText(ctx, u)
	if err := s.notifier.Send(ctx, u.Phone, body); err != nil {
		return fmt.Errorf("send nudge: %w", err)
	}
	entry := &chatlog.Entry{
		Phone:     u.Phone,
		Direction: chatlog.DirectionOutbound,
		Text:      body + "\n" + chatlog.ReminderMarker,
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Warn("nudge log append failed", "phone", u.Phone, "error", err)
	}
	return nil
}

const nudgePrompt = `Write one short, humorous WhatsApp message (under 30 words) gently reminding someone that they never finished signing up for a language-exchange partner service. Friendly, never pushy. Plain text only.`

const fallbackNudge = "Hey, your future language partner is still waiting to hear from you! 😄 Just answer my last question and we're back in business."

func (s *Service) nudgeText(ctx context.Context, u *users.User) string {
	if s.llm == nil {
		return fallbackNudge
	}
	resp, err := s.llm.Complete(ctx, conversation.LLMRequest{
		System:      []string{nudgePrompt},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: "The user's name is " + u.Name + "."}},
		MaxTokens:   100,
		Temperature: 0.9,
	})
	if err != nil || resp.Text == "" {
		s.logger.Warn("nudge model call failed, using fallback", "error", err)
		return fallbackNudge
	}
	return resp.Text
}

func reminderMsg(kind appointments.ReminderKind, a *appointments.Appointment) string {
	when := a.ScheduledAt.Format("Mon, Jan 2, 03:04 PM")
	if kind == appointments.Reminder1Hour {
		return fmt.Sprintf("⏰ Your language exchange session starts in about an hour!\n\n📅 %s\n🔗 %s\n\nSee you there! ✨", when, a.MeetLink)
	}
	return fmt.Sprintf("⏰ Reminder: your language exchange session is tomorrow.\n\n📅 %s\n🔗 %s\n\nPlease reply \"ok\" to confirm. Unconfirmed sessions are cancelled and points refunded.", when, a.MeetLink)
}

func cancelledMsg(refund int) string {
	return fmt.Sprintf("Your session was cancelled because it wasn't confirmed in time. %dpt have been refunded to your balance. Type \"match\" whenever you want to find a new partner! 🙏", refund)
}
