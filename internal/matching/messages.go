package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/users"
)

const stillLookingMsg = "I'm still looking for your perfect match. I'll keep searching and let you know when I find someone! 🔍✨"

func perfectMatchMsg(when time.Time, minutes int, meetLink, reason, icebreaker string) string {
	return "🎉 Perfect match found!\n\n" +
		"I found someone perfect for you and booked your session!\n\n" +
		fmt.Sprintf("📅 Date & Time: %s\n", when.Format("Mon, Jan 2, 03:04 PM")) +
		fmt.Sprintf("⏱️ Duration: %d minutes\n", minutes) +
		fmt.Sprintf("🔗 Google Meet: %s\n\n", meetLink) +
		fmt.Sprintf("💬 %s\n\n", reason) +
		fmt.Sprintf("💡 First question: \"%s\"\n\n", icebreaker) +
		"See you there! ✨"
}

func suggestionLine(position int, cand *users.User, reason string) string {
	line := fmt.Sprintf("%d. %s speaker learning %s (Level: %s)",
		position, cand.NativeLanguage, cand.TargetLanguage, cand.Level)
	if reason != "" {
		line += "\n   " + reason
	}
	return line
}

func suggestionsMsg(lines []string) string {
	return "I found some potential matches for you! 🎉\n\n" +
		strings.Join(lines, "\n\n") + "\n\n" +
		`Reply with the number (1, 2, or 3) to book a session, or "skip" to wait for more options.`
}
