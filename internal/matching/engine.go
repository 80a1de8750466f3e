package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nelo-ai/nelo-bot/internal/conversation"
	"github.com/nelo-ai/nelo-bot/internal/users"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// MatchScore is the engine's verdict on a candidate pair.
type MatchScore struct {
	Score      int    `json:"score"`
	Reason     string `json:"reason"`
	Icebreaker string `json:"icebreaker"`
}

// Candidate pairs a user with the score against the querying user.
type Candidate struct {
	User *users.User
	MatchScore
}

// greatMatchThreshold gates whether an automated proposal is sent at all.
const greatMatchThreshold = 80

// IsGreatMatch reports whether the score clears the proposal threshold.
func IsGreatMatch(m MatchScore) bool {
	return m.Score >= greatMatchThreshold
}

// topCandidateLimit bounds how many hard-filter survivors get the expensive
// AI scoring step.
const topCandidateLimit = 5

// neutralScore is the fixed degraded verdict when the model is unavailable.
// The engine never raises.
func neutralScore() MatchScore {
	return MatchScore{
		Score:      50,
		Reason:     "You both want to learn each other's language.",
		Icebreaker: "Hello! How are you?",
	}
}

// Engine scores candidate pairs with language-complementarity rules plus an
// AI compatibility score.
type Engine struct {
	llm    conversation.LLMClient
	users  users.Repository
	logger *logging.Logger
}

func NewEngine(llm conversation.LLMClient, repo users.Repository, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{llm: llm, users: repo, logger: logger.Component("matching")}
}

// MirroredPair reports whether each user's target language is the other's
// native language.
func MirroredPair(a, b *users.User) bool {
	return a.TargetLanguage != "" && b.TargetLanguage != "" &&
		a.TargetLanguage == b.NativeLanguage &&
		a.NativeLanguage == b.TargetLanguage
}

// LevelsCompatible allows a native speaker with anyone, otherwise requires
// equal non-native tiers.
func LevelsCompatible(a, b users.Level) bool {
	if a == "" {
		a = users.LevelIntermediate
	}
	if b == "" {
		b = users.LevelIntermediate
	}
	if a == users.LevelNative || b == users.LevelNative {
		return true
	}
	return a == b
}

func describeProfile(u *users.User) string {
	interests, _ := json.Marshal(u.Interests)
	prefs, _ := json.Marshal(u.Preferences)
	return fmt.Sprintf(
		"- Target Language: %s\n- Native Language: %s\n- Level: %s\n- Interests: %s\n- Job Title: %s\n- Matching Goal: %s\n- Preferences: %s",
		orUnknown(u.TargetLanguage), orUnknown(u.NativeLanguage), orUnknown(string(u.Level)),
		interests, orNotSpecified(u.JobTitle), orNotSpecified(u.MatchingGoal), prefs,
	)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}

const scoringPrompt = `You are a matchmaking AI for a language learning platform. Analyze the two user profiles and calculate a compatibility score (0-100) based on:
1. Language complementarity (they should want to learn each other's native language)
2. Shared interests and hobbies
3. Complementary goals (e.g., business-focused with business-focused)
4. Personality fit based on their descriptions

Respond with ONLY valid JSON (no additional text):
{
  "score": 0-100,
  "reason": "Why they are good together (1-2 short sentences, simple words)",
  "icebreaker": "A simple first question they can ask (use easy words)"
}`

// Score asks the model for a compatibility verdict; degraded calls return
// the fixed neutral score.
func (e *Engine) Score(ctx context.Context, a, b *users.User) MatchScore {
	if e.llm == nil {
		return neutralScore()
	}

	prompt := fmt.Sprintf("User A Profile:\n%s\n\nUser B Profile:\n%s", describeProfile(a), describeProfile(b))
	resp, err := e.llm.Complete(ctx, conversation.LLMRequest{
		System:      []string{scoringPrompt},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: prompt}},
		MaxTokens:   256,
		Temperature: 0.3,
	})
	if err != nil {
		if conversation.IsRateLimitError(err) {
			e.logger.Warn("scoring rate limited, using neutral score")
		} else {
			e.logger.Error("scoring model call failed", "error", err)
		}
		return neutralScore()
	}

	block := conversation.ExtractJSONBlock(resp.Text)
	if block == "" {
		return neutralScore()
	}
	var verdict MatchScore
	if err := json.Unmarshal([]byte(block), &verdict); err != nil {
		e.logger.Warn("scoring json parse failed", "error", err)
		return neutralScore()
	}

	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 100 {
		verdict.Score = 100
	}
	if verdict.Reason == "" {
		verdict.Reason = neutralScore().Reason
	}
	if verdict.Icebreaker == "" {
		verdict.Icebreaker = neutralScore().Icebreaker
	}
	return verdict
}

// FindCandidates scores against the whole population. Backs the manual
// "match" command.
func (e *Engine) FindCandidates(ctx context.Context, user *users.User) ([]Candidate, error) {
	all, err := e.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("matching: list users: %w", err)
	}
	return e.CandidatesAmong(ctx, user, all), nil
}

// CandidatesAmong hard-filters the pool (cheap, deterministic) and scores
// only the top survivors, sorted descending by score. The querying user is
// never their own candidate.
func (e *Engine) CandidatesAmong(ctx context.Context, user *users.User, pool []*users.User) []Candidate {
	var survivors []*users.User
	for _, other := range pool {
		if other.Phone == user.Phone {
			continue
		}
		if !MirroredPair(user, other) {
			continue
		}
		if !LevelsCompatible(user.Level, other.Level) {
			continue
		}
		survivors = append(survivors, other)
		if len(survivors) >= topCandidateLimit {
			break
		}
	}

	candidates := make([]Candidate, 0, len(survivors))
	for _, other := range survivors {
		candidates = append(candidates, Candidate{
			User:       other,
			MatchScore: e.Score(ctx, user, other),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}
