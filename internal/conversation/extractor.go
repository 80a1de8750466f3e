package conversation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Profile is the structured extraction target for registration answers.
// Field names match the JSON schema embedded in the prompt.
type Profile struct {
	TargetLanguage string             `json:"target_language"`
	NativeLanguage string             `json:"native_language"`
	UserLevel      string             `json:"user_level"`
	Interests      []string           `json:"interests"`
	JobTitle       string             `json:"job_title"`
	MatchingGoal   string             `json:"matching_goal"`
	Preferences    ProfilePreferences `json:"preferences"`
}

type ProfilePreferences struct {
	Gender             string `json:"gender"`
	Age                string `json:"age"`
	BusinessFocused    bool   `json:"business_focused"`
	NativeSpeakersOnly bool   `json:"native_speakers_only"`
}

// LifestyleUpdate is the extraction target for the post-calendar question.
type LifestyleUpdate struct {
	Availability string            `json:"availability"`
	Timezone     string            `json:"timezone"`
	Age          string            `json:"age"`
	Gender       string            `json:"gender"`
	Vibe         string            `json:"vibe"`
	Other        map[string]string `json:"other"`
}

// Extractor wraps the generative model with a strict extraction contract
// and the shared keyword fallback. It never returns an error to callers in
// the registration flow: some usable result always comes back.
type Extractor struct {
	llm    LLMClient
	logger *logging.Logger
}

// NewExtractor builds an extractor. llm may be nil; every call then takes
// the keyword fallback path.
func NewExtractor(llm LLMClient, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{llm: llm, logger: logger.Component("extractor")}
}

const extractionPrompt = `Extract the following information from the user's response to the 4 onboarding questions. Even if the response is brief, infer as much as possible:

1. Target language (target_language): which language they want to practice/talk in
2. User level (user_level): their level in the TARGET LANGUAGE. Must be one of: Beginner, Intermediate, Advanced, or Native
3. Native language (native_language): the language they speak fluently
4. Interests (interests): hobbies, interests, or activities mentioned, as an array of strings
5. Job title (job_title): their job or profession if mentioned
6. Matching goal (matching_goal): why they're here - business, travel, casual conversation, etc.
7. Preferences (preferences): gender ("Male"/"Female"/"Either" or empty), age range, business_focused flag, native_speakers_only flag

IMPORTANT:
- user_level is their proficiency in the TARGET language, not the native one
- If information is missing, use reasonable defaults ("Intermediate" for level, "English" for native)
- interests must be an array, even if empty

Respond ONLY with valid JSON, no additional text:
{
  "target_language": "language name",
  "user_level": "Beginner/Intermediate/Advanced/Native",
  "native_language": "language name",
  "interests": ["hobby1", "hobby2"],
  "job_title": "",
  "matching_goal": "",
  "preferences": {
    "gender": "",
    "age": "",
    "business_focused": false,
    "native_speakers_only": false
  }
}`

// Extract parses registration answers into a Profile. The second return is
// true only when a model call succeeded, which is what the daily AI quota
// counts.
func (e *Extractor) Extract(ctx context.Context, freeText string) (Profile, bool) {
	if e.llm == nil {
		return e.fallbackExtract(freeText), false
	}

	resp, err := e.llm.Complete(ctx, LLMRequest{
		System:      []string{extractionPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: freeText}},
		MaxTokens:   512,
		Temperature: 0.1,
	})
	if err != nil {
		if IsRateLimitError(err) {
			e.logger.Warn("extraction rate limited, using keyword fallback")
		} else {
			e.logger.Error("extraction model call failed", "error", err)
		}
		return e.fallbackExtract(freeText), false
	}

	block := ExtractJSONBlock(resp.Text)
	if block == "" {
		e.logger.Warn("extraction returned no json, using keyword fallback")
		return e.fallbackExtract(freeText), true
	}
	var p Profile
	if err := json.Unmarshal([]byte(block), &p); err != nil {
		e.logger.Warn("extraction json parse failed, using keyword fallback", "error", err)
		return e.fallbackExtract(freeText), true
	}

	// Fill holes from the keyword pass so the profile is always usable.
	fb := KeywordExtract(freeText)
	if p.TargetLanguage == "" {
		p.TargetLanguage = fb.TargetLanguage
	}
	if p.NativeLanguage == "" {
		p.NativeLanguage = fb.NativeLanguage
	}
	p.UserLevel = string(users.ParseLevel(p.UserLevel))
	return p, true
}

func (e *Extractor) fallbackExtract(freeText string) Profile {
	return KeywordExtract(freeText)
}

const continuousLearningPrompt = `You are a data extraction service. The user is already registered; extract only NEW profile information from this message. Respond with JSON only:
{
  "interests": ["any new hobbies or interests mentioned"],
  "job_title": "job or profession if mentioned, else empty string",
  "matching_goal": "partner-search goal if mentioned, else empty string"
}
If the message contains no profile information, return {"interests":[],"job_title":"","matching_goal":""}.`

// LearnResult carries opportunistically harvested profile additions.
type LearnResult struct {
	Interests    []string
	JobTitle     string
	MatchingGoal string
}

// Found reports whether the message yielded any new information.
func (r LearnResult) Found() bool {
	return len(r.Interests) > 0 || r.JobTitle != "" || r.MatchingGoal != ""
}

// maxRawInterestLen bounds the verbatim text stored when extraction is
// entirely unavailable.
const maxRawInterestLen = 80

// ContinuousLearn harvests new interests and goals from an ordinary
// post-registration message. When the model is unavailable the raw text is
// stored truncated so no information is silently lost. The second return is
// true only on a successful model call.
func (e *Extractor) ContinuousLearn(ctx context.Context, freeText string) (LearnResult, bool) {
	raw := strings.TrimSpace(freeText)
	if raw == "" {
		return LearnResult{}, false
	}

	if e.llm == nil {
		return LearnResult{Interests: []string{truncate(raw, maxRawInterestLen)}}, false
	}

	resp, err := e.llm.Complete(ctx, LLMRequest{
		System:      []string{continuousLearningPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: raw}},
		MaxTokens:   256,
		Temperature: 0.1,
	})
	if err != nil {
		if IsRateLimitError(err) {
			e.logger.Warn("continuous learning rate limited, storing raw text")
		} else {
			e.logger.Error("continuous learning model call failed", "error", err)
		}
		return LearnResult{Interests: []string{truncate(raw, maxRawInterestLen)}}, false
	}

	block := ExtractJSONBlock(resp.Text)
	if block == "" {
		return LearnResult{}, true
	}
	var out LearnResult
	var parsed struct {
		Interests    []string `json:"interests"`
		JobTitle     string   `json:"job_title"`
		MatchingGoal string   `json:"matching_goal"`
	}
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		e.logger.Warn("continuous learning parse failed", "error", err)
		return LearnResult{}, true
	}
	out.Interests = parsed.Interests
	out.JobTitle = parsed.JobTitle
	out.MatchingGoal = parsed.MatchingGoal
	return out, true
}

const onTopicPrompt = `You are a binary classifier. The user was asked four onboarding questions: which language they want to practice, their native language, their proficiency level, and what kind of partner they want. Decide whether the message answers ANY of those questions. Respond with exactly one word: ONTOPIC or OFFTOPIC.`

// ClassifyOnTopic decides whether a message answers the onboarding
// questions or is small talk. Degrades to the keyword heuristic. The second
// return is true only on a successful model call.
func (e *Extractor) ClassifyOnTopic(ctx context.Context, freeText string) (bool, bool) {
	if e.llm == nil {
		return KeywordOnTopic(freeText), false
	}

	resp, err := e.llm.Complete(ctx, LLMRequest{
		System:      []string{onTopicPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: freeText}},
		MaxTokens:   8,
		Temperature: 0,
	})
	if err != nil {
		if IsRateLimitError(err) {
			e.logger.Warn("on-topic classification rate limited, using keyword heuristic")
		} else {
			e.logger.Error("on-topic classification failed", "error", err)
		}
		return KeywordOnTopic(freeText), false
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Text))
	switch {
	case strings.Contains(answer, "OFFTOPIC"), strings.Contains(answer, "OFF-TOPIC"):
		return false, true
	case strings.Contains(answer, "ONTOPIC"), strings.Contains(answer, "ON-TOPIC"):
		return true, true
	default:
		// Unparseable verdict: fail safe to the keyword heuristic.
		return KeywordOnTopic(freeText), true
	}
}

const lifestylePrompt = `You are a data extraction service. Extract partner preferences from the user's message. Respond with JSON only:
{
  "availability": "when the user is free for sessions, or empty string",
  "timezone": "IANA timezone or UTC offset if mentioned, or empty string",
  "age": "the user's age or age range, or empty string",
  "gender": "the user's gender if mentioned, or empty string",
  "vibe": "conversational style they want, or empty string",
  "other": {}
}`

// ExtractLifestyle parses the post-calendar lifestyle answer into a
// preferences update. The second return is true only on a successful model
// call.
func (e *Extractor) ExtractLifestyle(ctx context.Context, freeText string) (users.Preferences, bool) {
	if e.llm == nil {
		return users.Preferences{Other: map[string]string{"lifestyle": truncate(freeText, maxRawInterestLen)}}, false
	}

	resp, err := e.llm.Complete(ctx, LLMRequest{
		System:      []string{lifestylePrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: freeText}},
		MaxTokens:   256,
		Temperature: 0.1,
	})
	if err != nil {
		if IsRateLimitError(err) {
			e.logger.Warn("lifestyle extraction rate limited, storing raw text")
		} else {
			e.logger.Error("lifestyle extraction failed", "error", err)
		}
		return users.Preferences{Other: map[string]string{"lifestyle": truncate(freeText, maxRawInterestLen)}}, false
	}

	var update LifestyleUpdate
	block := ExtractJSONBlock(resp.Text)
	if block == "" {
		return users.Preferences{}, true
	}
	if err := json.Unmarshal([]byte(block), &update); err != nil {
		e.logger.Warn("lifestyle parse failed", "error", err)
		return users.Preferences{}, true
	}

	prefs := users.Preferences{
		Gender:       update.Gender,
		AgeRange:     update.Age,
		Timezone:     update.Timezone,
		Availability: update.Availability,
		Other:        update.Other,
	}
	if update.Vibe != "" {
		if prefs.Other == nil {
			prefs.Other = make(map[string]string)
		}
		prefs.Other["vibe"] = update.Vibe
	}
	return prefs, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ApplyProfile maps an extraction result onto a user record, merging
// interests rather than replacing them.
func ApplyProfile(u *users.User, p Profile) {
	if p.TargetLanguage != "" {
		u.TargetLanguage = p.TargetLanguage
	}
	if p.NativeLanguage != "" {
		u.NativeLanguage = p.NativeLanguage
	}
	u.Level = users.ParseLevel(p.UserLevel)
	u.Interests = users.MergeInterests(u.Interests, p.Interests)
	if p.JobTitle != "" {
		u.JobTitle = p.JobTitle
	}
	if p.MatchingGoal != "" {
		u.MatchingGoal = p.MatchingGoal
	}
	u.Preferences = u.Preferences.Merge(users.Preferences{
		Gender:             p.Preferences.Gender,
		AgeRange:           p.Preferences.Age,
		BusinessFocused:    p.Preferences.BusinessFocused,
		NativeSpeakersOnly: p.Preferences.NativeSpeakersOnly,
	})
}

// DescribeMissing lists which of the four onboarding facts are still absent,
// for the off-topic pivot message.
func DescribeMissing(u *users.User) string {
	var missing []string
	if u.TargetLanguage == "" {
		missing = append(missing, "which language you want to practice")
	}
	if u.NativeLanguage == "" {
		missing = append(missing, "your native language")
	}
	if u.Level == "" {
		missing = append(missing, "your level")
	}
	if u.MatchingGoal == "" && len(u.Interests) == 0 {
		missing = append(missing, "what kind of partner you're looking for")
	}
	if len(missing) == 0 {
		return ""
	}
	return strings.Join(missing, ", ")
}
