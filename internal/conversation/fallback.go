package conversation

import (
	"sort"
	"strings"

	"github.com/nelo-ai/nelo-bot/internal/users"
)

// Shared fallback policy for every AI call site: detect quota pressure,
// salvage JSON from chatty model output, and extract the minimum viable
// profile by keyword when the model is unavailable.

// IsRateLimitError matches quota and rate-limit failures by error text, so
// callers can soft-skip instead of retry-storming the model.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "quota", "rate limit", "ratelimit", "resource exhausted", "resource_exhausted"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// ExtractJSONBlock strips markdown code fences and returns the outermost
// JSON object in the text, or "" when none is present.
func ExtractJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// knownLanguages is the keyword vocabulary for degraded extraction. The
// canonical casing is what gets stored.
var knownLanguages = []string{
	"Spanish", "English", "Japanese", "French", "German", "Italian",
	"Portuguese", "Chinese", "Mandarin", "Korean", "Arabic", "Russian",
	"Hindi", "Dutch", "Turkish", "Vietnamese", "Thai", "Indonesian",
}

const (
	fallbackLevel          = users.LevelIntermediate
	fallbackNativeLanguage = "English"
)

// KeywordExtract populates the minimum viable profile from free text by
// substring matching. Always returns a usable profile: unknown fields get
// fixed defaults so registration never stalls.
func KeywordExtract(text string) Profile {
	lower := strings.ToLower(text)

	type mention struct {
		lang string
		pos  int
	}
	var found []mention
	for _, lang := range knownLanguages {
		if pos := strings.Index(lower, strings.ToLower(lang)); pos >= 0 {
			found = append(found, mention{lang: lang, pos: pos})
		}
	}
	// Heuristic: the first language mentioned in the text is what the user
	// wants to learn, the second (if any) is their native language.
	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })

	p := Profile{
		NativeLanguage: fallbackNativeLanguage,
		UserLevel:      string(fallbackLevel),
	}
	if len(found) > 0 {
		p.TargetLanguage = found[0].lang
	}
	if len(found) > 1 {
		p.NativeLanguage = found[1].lang
	}

	for _, level := range []users.Level{users.LevelBeginner, users.LevelIntermediate, users.LevelAdvanced, users.LevelNative} {
		if strings.Contains(lower, strings.ToLower(string(level))) {
			p.UserLevel = string(level)
			break
		}
	}
	if strings.Contains(lower, "basic") {
		p.UserLevel = string(users.LevelBeginner)
	}
	if strings.Contains(lower, "fluent") {
		p.UserLevel = string(users.LevelAdvanced)
	}
	return p
}

// onTopicKeywords signal that a message is answering one of the four
// onboarding questions rather than small talk.
var onTopicKeywords = []string{
	"language", "learn", "practice", "speak", "level", "native",
	"beginner", "intermediate", "advanced", "fluent", "partner",
}

// KeywordOnTopic is the degraded stand-in for the on-topic classifier.
func KeywordOnTopic(text string) bool {
	lower := strings.ToLower(text)
	for _, lang := range knownLanguages {
		if strings.Contains(lower, strings.ToLower(lang)) {
			return true
		}
	}
	for _, kw := range onTopicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
