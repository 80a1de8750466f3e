package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/nelo-ai/nelo-bot/internal/users"
)

// scriptedLLM returns queued responses in order; when the queue is empty it
// returns the last entry again.
type scriptedLLM struct {
	queue []scriptedReply
	calls int
}

type scriptedReply struct {
	text string
	err  error
}

func (s *scriptedLLM) Complete(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	s.calls++
	if len(s.queue) == 0 {
		return LLMResponse{}, errors.New("scripted llm: queue empty")
	}
	reply := s.queue[0]
	if len(s.queue) > 1 {
		s.queue = s.queue[1:]
	}
	if reply.err != nil {
		return LLMResponse{}, reply.err
	}
	return LLMResponse{Text: reply.text}, nil
}

func TestExtractParsesModelJSON(t *testing.T) {
	llm := &scriptedLLM{queue: []scriptedReply{{text: "```json\n" + `{
		"target_language": "Spanish",
		"native_language": "English",
		"user_level": "Intermediate",
		"interests": ["hiking"],
		"job_title": "engineer",
		"matching_goal": "travel",
		"preferences": {"gender": "Either", "age": "", "business_focused": false, "native_speakers_only": false}
	}` + "\n```"}}}
	e := NewExtractor(llm, nil)

	p, usedAI := e.Extract(context.Background(), "I want to practice Spanish...")
	if !usedAI {
		t.Error("usedAI = false, want true for a successful model call")
	}
	if p.TargetLanguage != "Spanish" || p.NativeLanguage != "English" || p.UserLevel != "Intermediate" {
		t.Errorf("profile = %+v", p)
	}
	if len(p.Interests) != 1 || p.Interests[0] != "hiking" {
		t.Errorf("interests = %v", p.Interests)
	}
}

func TestExtractFallsBackOnMalformedOutput(t *testing.T) {
	llm := &scriptedLLM{queue: []scriptedReply{{text: "sorry, I cannot help with that"}}}
	e := NewExtractor(llm, nil)

	p, usedAI := e.Extract(context.Background(), "I want to learn French, native Spanish, advanced level")
	if !usedAI {
		t.Error("the model call itself succeeded, usedAI should be true")
	}
	if p.TargetLanguage != "French" {
		t.Errorf("keyword fallback target = %q, want French", p.TargetLanguage)
	}
	if p.UserLevel != "Advanced" {
		t.Errorf("keyword fallback level = %q, want Advanced", p.UserLevel)
	}
}

func TestExtractFallsBackOnRateLimit(t *testing.T) {
	llm := &scriptedLLM{queue: []scriptedReply{{err: errors.New("429 resource exhausted")}}}
	e := NewExtractor(llm, nil)

	p, usedAI := e.Extract(context.Background(), "I want to learn German")
	if usedAI {
		t.Error("usedAI = true, want false on a rate-limited call")
	}
	if p.TargetLanguage != "German" {
		t.Errorf("target = %q, want German from keyword fallback", p.TargetLanguage)
	}
}

func TestExtractWithoutModel(t *testing.T) {
	e := NewExtractor(nil, nil)
	p, usedAI := e.Extract(context.Background(), "practice Italian please")
	if usedAI {
		t.Error("usedAI must be false with no model")
	}
	if p.TargetLanguage != "Italian" {
		t.Errorf("target = %q", p.TargetLanguage)
	}
}

func TestContinuousLearnMergesInterests(t *testing.T) {
	llm := &scriptedLLM{queue: []scriptedReply{{text: `{"interests":["surfing"],"job_title":"","matching_goal":""}`}}}
	e := NewExtractor(llm, nil)

	got, usedAI := e.ContinuousLearn(context.Background(), "I went surfing last weekend, it was great")
	if !usedAI {
		t.Error("usedAI = false, want true")
	}
	if !got.Found() {
		t.Fatal("expected new information")
	}
	if len(got.Interests) != 1 || got.Interests[0] != "surfing" {
		t.Errorf("interests = %v", got.Interests)
	}
}

func TestContinuousLearnStoresRawTextWhenUnavailable(t *testing.T) {
	llm := &scriptedLLM{queue: []scriptedReply{{err: errors.New("quota exceeded")}}}
	e := NewExtractor(llm, nil)

	got, usedAI := e.ContinuousLearn(context.Background(), "I love pottery and jazz")
	if usedAI {
		t.Error("usedAI must be false on failure")
	}
	if len(got.Interests) != 1 || got.Interests[0] != "I love pottery and jazz" {
		t.Errorf("raw text fallback = %v", got.Interests)
	}
}

func TestContinuousLearnTruncatesRawText(t *testing.T) {
	e := NewExtractor(nil, nil)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	got, _ := e.ContinuousLearn(context.Background(), string(long))
	if len(got.Interests) != 1 || len(got.Interests[0]) != maxRawInterestLen {
		t.Errorf("raw fallback should be truncated to %d chars", maxRawInterestLen)
	}
}

func TestClassifyOnTopic(t *testing.T) {
	tests := []struct {
		name    string
		reply   scriptedReply
		message string
		want    bool
	}{
		{"model ontopic", scriptedReply{text: "ONTOPIC"}, "whatever", true},
		{"model offtopic", scriptedReply{text: "OFFTOPIC"}, "I want to learn Spanish", false},
		{"unparseable falls back to keywords", scriptedReply{text: "maybe?"}, "I want to learn Spanish", true},
		{"error falls back to keywords", scriptedReply{err: errors.New("boom")}, "nice weather", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(&scriptedLLM{queue: []scriptedReply{tt.reply}}, nil)
			got, _ := e.ClassifyOnTopic(context.Background(), tt.message)
			if got != tt.want {
				t.Errorf("ClassifyOnTopic = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyProfile(t *testing.T) {
	u := &users.User{Interests: []string{"hiking"}}
	ApplyProfile(u, Profile{
		TargetLanguage: "Spanish",
		NativeLanguage: "English",
		UserLevel:      "Intermediate",
		Interests:      []string{"Hiking", "cooking"},
		JobTitle:       "designer",
	})
	if u.TargetLanguage != "Spanish" || u.Level != users.LevelIntermediate {
		t.Errorf("user = %+v", u)
	}
	if len(u.Interests) != 2 {
		t.Errorf("interests = %v, want deduped merge", u.Interests)
	}
	if u.JobTitle != "designer" {
		t.Errorf("job title = %q", u.JobTitle)
	}
}
