package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Fixed reply templates. AI-generated replies are used only where a phase
// explicitly calls for them; everything else is deterministic.

const msgNameQuestion = "Hello! Welcome to SuperMatch 🎉\n\nFirst, could you please tell me your name?"

func msgNameReaction(name string) string {
	return fmt.Sprintf("Love that name, %s! ✨ To find your perfect match, I have 4 quick questions for you:", name)
}

const msgFourQuestions = "1. Which language do you want to talk in? 🗣️\n" +
	"2. What is your level in that language? (Beginner, Intermediate, or Advanced)\n" +
	"3. What is your native language? 🌏\n" +
	"4. Tell us about yourself! (Your hobbies, job, or why you're here) 🎨\n\n" +
	"Feel free to answer all at once! The more you tell us, the better the match!"

const msgConfirmation = "Got it! You're all set. 100pt/session. To start matching, please connect your Google Calendar so we can find a time that works for you!"

func msgCalendarLink(baseURL, phone string) string {
	return fmt.Sprintf("%s/api/calendar/connect?phone=%s", baseURL, phone)
}

const msgNoShowWarning = "⚠️ Important: No-shows or cancellations may result in points being forfeited or being blacklisted."

const msgSearching1 = "Perfect! Your profile is saved. 🎉"
const msgSearching2 = "I'm searching for your ideal language partner now. I'll message you as soon as I find a great match! 🔍✨"

const msgCalendarConnected = "Your calendar is connected! 🎉"

const msgLifestyleQuestion = "One last thing: what kind of partner suits you best? Tell me about preferred gender, age range, whether you want business-focused talk, or anything else that matters to you!"

const msgLifestyleSaved = "Thanks! I've noted your preferences. I'm searching for your ideal partner now! 🔍✨"

const msgSkipAck = "Got it! I'll keep looking for more options. 🔍✨"

const msgSuggestionReprompt = `Please reply with 1, 2, or 3 to accept a suggestion, or "skip" to wait for more options.`

const msgBookingSuggestion = "I'll book that match for you! Give me a moment... ⏳"

const msgQuotaExceeded = "You've reached today's AI chat limit. 😅\n\n" +
	"Your matching is still running in the background! You can always use:\n" +
	"- \"match\" to see candidates\n" +
	"- \"points\" to check your balance\n" +
	"- \"appointment\" to see your sessions"

const msgSessionConfirmed = "Your session is confirmed! See you there. ✅"

const msgGenericApology = "Sorry, something went wrong on my side. Please try again in a moment. 🙏"

const msgResetDone = "All your data has been deleted. Send any message to start over! 👋"

const msgPartnerCancelled = "Unfortunately your partner had to cancel your upcoming session. 🙏 Your points have been refunded, and I'm already looking for a new match for you!"

const msgLearnAck = "Nice, I've added that to your profile! The more I know, the better your matches. ✨"

func msgPointsBalance(balance int) string {
	return fmt.Sprintf("Current points balance: %dpt\n\n1 session = 100pt\nTo buy more points, type \"buy\".", balance)
}

const msgBuyPoints = "Point purchases are coming soon! 🚀 For now, ask support to top you up."

const msgNoAppointments = "You have no upcoming appointments.\n\nTo look for candidates, type \"match\"."

func msgAppointmentItem(index int, when time.Time, counterpart string, minutes int, link string) string {
	return fmt.Sprintf("%d. %s\n   Partner: %s\n   Duration: %d min\n   Meet: %s\n",
		index, when.Format("Mon Jan 2 15:04"), counterpart, minutes, link)
}

const msgNoCandidates = "No candidates found right now.\n\nPlease try again later. Automatic matching is also running, so I'll let you know as soon as someone shows up!"

// affirmations is the fixed vocabulary accepted in the confirmation phase,
// matched by case-insensitive containment.
var affirmations = []string{"ok", "yes", "continue", "next", "done", "complete", "confirm", "got it"}

func isAffirmation(text string) bool {
	lower := strings.ToLower(text)
	for _, token := range affirmations {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// greetings trigger the name prompt instead of being taken as the name.
var greetings = []string{"hi", "hello", "hey", "hola", "start", "join", "register", "こんにちは"}

func isGreeting(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.Trim(lower, "!.? ")
	for _, g := range greetings {
		if lower == g {
			return true
		}
	}
	return false
}
