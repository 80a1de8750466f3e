package users

import (
	"strings"
	"time"
)

// Phase is a user's position in the conversation flow. It is the single
// canonical state field; step-level detail lives in Step.
type Phase string

const (
	PhaseNew                  Phase = "new"
	PhaseRegistration         Phase = "registration"
	PhaseProfileExtraction    Phase = "profile_extraction"
	PhaseConfirmation         Phase = "confirmation"
	PhaseLifestyleQuestions   Phase = "lifestyle_questions"
	PhaseWaiting              Phase = "waiting"
	PhaseMatching             Phase = "matching"
	PhaseReviewingSuggestions Phase = "reviewing_suggestions"
	PhaseMatched              Phase = "matched"
	PhaseRegistered           Phase = "registered"
)

// Registration substeps.
const (
	StepCollectName    = "collect_name"
	StepCollectAnswers = "collect_answers"
)

// Level is a self-reported proficiency tier.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
	LevelNative       Level = "Native"
)

// ParseLevel maps free text onto one of the four tiers, defaulting to
// Intermediate when the text matches none.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "beginner", "basic":
		return LevelBeginner
	case "intermediate":
		return LevelIntermediate
	case "advanced", "fluent":
		return LevelAdvanced
	case "native":
		return LevelNative
	default:
		return LevelIntermediate
	}
}

// Preferences captures partner preferences harvested from conversation.
// Other holds free-form keys that don't map to a structured field.
type Preferences struct {
	Gender             string            `json:"gender,omitempty"`
	AgeRange           string            `json:"age_range,omitempty"`
	BusinessFocused    bool              `json:"business_focused,omitempty"`
	NativeSpeakersOnly bool              `json:"native_speakers_only,omitempty"`
	InterestMatch      []string          `json:"interest_match,omitempty"`
	Timezone           string            `json:"timezone,omitempty"`
	Availability       string            `json:"availability,omitempty"`
	Other              map[string]string `json:"other,omitempty"`
}

// Merge overlays non-zero fields of p2 onto p. Other is merged key by key
// rather than replaced wholesale.
func (p Preferences) Merge(p2 Preferences) Preferences {
	out := p
	if p2.Gender != "" {
		out.Gender = p2.Gender
	}
	if p2.AgeRange != "" {
		out.AgeRange = p2.AgeRange
	}
	if p2.BusinessFocused {
		out.BusinessFocused = true
	}
	if p2.NativeSpeakersOnly {
		out.NativeSpeakersOnly = true
	}
	if len(p2.InterestMatch) > 0 {
		out.InterestMatch = MergeInterests(out.InterestMatch, p2.InterestMatch)
	}
	if p2.Timezone != "" {
		out.Timezone = p2.Timezone
	}
	if p2.Availability != "" {
		out.Availability = p2.Availability
	}
	if len(p2.Other) > 0 {
		if out.Other == nil {
			out.Other = make(map[string]string, len(p2.Other))
		} else {
			merged := make(map[string]string, len(out.Other)+len(p2.Other))
			for k, v := range out.Other {
				merged[k] = v
			}
			out.Other = merged
		}
		for k, v := range p2.Other {
			out.Other[k] = v
		}
	}
	return out
}

// CalendarCredentials are present only after the user completes OAuth.
type CalendarCredentials struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	CalendarID   string    `json:"calendar_id,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Connected reports whether the user can be booked on a calendar.
func (c CalendarCredentials) Connected() bool {
	return c.RefreshToken != "" || c.AccessToken != ""
}

// User is keyed by normalized phone number.
type User struct {
	Phone          string               `json:"phone"`
	Name           string               `json:"name"`
	TargetLanguage string               `json:"target_language"`
	NativeLanguage string               `json:"native_language"`
	Level          Level                `json:"user_level"`
	Interests      []string             `json:"interests"`
	JobTitle       string               `json:"job_title,omitempty"`
	MatchingGoal   string               `json:"matching_goal,omitempty"`
	Preferences    Preferences          `json:"preferences"`
	Calendar       CalendarCredentials  `json:"calendar"`
	PointsBalance  int                  `json:"points_balance"`
	TrustScore     int                  `json:"trust_score"`
	Phase          Phase                `json:"phase"`
	Step           string               `json:"step,omitempty"`
	StateData      map[string]string    `json:"state_data,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// DefaultTrustScore is assigned to every new user.
const DefaultTrustScore = 100

// MergeInterests appends additions to base, suppressing duplicates
// case-insensitively while preserving first-seen order and casing.
func MergeInterests(base, additions []string) []string {
	out := make([]string, 0, len(base)+len(additions))
	seen := make(map[string]struct{}, len(base)+len(additions))
	for _, list := range [][]string{base, additions} {
		for _, item := range list {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			key := strings.ToLower(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
