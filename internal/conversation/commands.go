package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/nelo-ai/nelo-bot/internal/users"
)

// handleCommand short-circuits recognized commands to dedicated query
// handlers. These never consume AI quota. The second return reports whether
// the message was a command.
func (s *Service) handleCommand(ctx context.Context, user *users.User, body string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "match", "matching":
		return s.commandMatch(ctx, user), true
	case "points", "balance":
		return msgPointsBalance(user.PointsBalance), true
	case "buy", "buy points":
		return msgBuyPoints, true
	case "appointment", "appointments", "schedule":
		return s.commandAppointments(ctx, user), true
	default:
		return "", false
	}
}

// commandMatch lists ranked candidates on demand. Automatic matching keeps
// running regardless.
func (s *Service) commandMatch(ctx context.Context, user *users.User) string {
	if s.matchmaker == nil {
		return msgNoCandidates
	}
	candidates, err := s.matchmaker.Candidates(ctx, user.Phone)
	if err != nil {
		s.logger.Error("match command failed", "phone", user.Phone, "error", err)
		return msgGenericApology
	}
	if len(candidates) == 0 {
		return msgNoCandidates
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d candidate(s) for you:\n\n", len(candidates))
	for i, c := range candidates {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "%d. Learning %s, native %s\n", i+1, c.TargetLanguage, c.NativeLanguage)
		fmt.Fprintf(&b, "   Level: %s\n", c.Level)
		fmt.Fprintf(&b, "   Trust: %d/100\n", c.TrustScore)
		fmt.Fprintf(&b, "   Compatibility: %d/100\n\n", c.Score)
	}
	b.WriteString("I'll send you the details as soon as automatic matching books a session.")
	return b.String()
}

func (s *Service) commandAppointments(ctx context.Context, user *users.User) string {
	appts, err := s.appts.ListUpcomingForUser(ctx, user.Phone, s.now())
	if err != nil {
		s.logger.Error("appointment command failed", "phone", user.Phone, "error", err)
		return msgGenericApology
	}
	if len(appts) == 0 {
		return msgNoAppointments
	}
	if len(appts) > 5 {
		appts = appts[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your upcoming appointments (%d):\n\n", len(appts))
	for i, a := range appts {
		b.WriteString(msgAppointmentItem(i+1, a.ScheduledAt, a.Counterpart(user.Phone), a.DurationMinutes, a.MeetLink))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
