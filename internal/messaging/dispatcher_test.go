package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/observability/metrics"
)

type recordingMessenger struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	delay time.Duration
}

func (m *recordingMessenger) SendMessage(ctx context.Context, to, body string) (string, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", errors.New("send failed")
	}
	m.sent = append(m.sent, body)
	return "SM123", nil
}

func (m *recordingMessenger) bodies() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

func TestDispatcherSendDeliversInOrder(t *testing.T) {
	m := &recordingMessenger{}
	d := NewDispatcher(m, time.Millisecond, time.Millisecond, nil)

	err := d.Send(context.Background(), "+14155550100", "one", "", "two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := m.bodies()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("bodies = %v, want [one two]", got)
	}
}

func TestDispatcherSendStopsOnFailure(t *testing.T) {
	m := &recordingMessenger{fail: true}
	d := NewDispatcher(m, time.Millisecond, time.Millisecond, nil)

	if err := d.Send(context.Background(), "+14155550100", "one", "two"); err == nil {
		t.Fatal("expected error")
	}
	if len(m.bodies()) != 0 {
		t.Errorf("no bodies should have been recorded, got %v", m.bodies())
	}
}

func TestDispatcherFollowUpsArriveEventually(t *testing.T) {
	m := &recordingMessenger{}
	d := NewDispatcher(m, time.Millisecond, time.Millisecond, nil)

	err := d.SendWithFollowUps(context.Background(), "+14155550100", "first", "second", "third")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Close()

	got := m.bodies()
	if len(got) != 3 || got[0] != "first" || got[1] != "second" || got[2] != "third" {
		t.Errorf("bodies = %v, want [first second third]", got)
	}
}

func TestDispatcherCancelDropsQueuedFollowUps(t *testing.T) {
	m := &recordingMessenger{}
	d := NewDispatcher(m, time.Millisecond, 500*time.Millisecond, nil)

	err := d.SendWithFollowUps(context.Background(), "+14155550100", "first", "late follow-up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.CancelFollowUps("+14155550100")
	d.Close()

	got := m.bodies()
	if len(got) != 1 || got[0] != "first" {
		t.Errorf("bodies = %v, want only the first bubble", got)
	}
}

func TestDispatcherNewSendSupersedesOldFollowUps(t *testing.T) {
	m := &recordingMessenger{}
	d := NewDispatcher(m, time.Millisecond, 500*time.Millisecond, nil)

	if err := d.SendWithFollowUps(context.Background(), "+14155550100", "a1", "a2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.SendWithFollowUps(context.Background(), "+14155550100", "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Close()

	for _, body := range m.bodies() {
		if body == "a2" {
			t.Error("superseded follow-up a2 should not have been sent")
		}
	}
}

func TestRateLimitedMessengerRejectsWhenWindowFull(t *testing.T) {
	m := &recordingMessenger{}
	limiter := NewWindowLimiter(1, time.Minute)
	mtr := metrics.New()
	rl := NewRateLimitedMessenger(m, limiter, mtr, nil)
	ctx := context.Background()

	if _, err := rl.SendMessage(ctx, "+14155550100", "one"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, err := rl.SendMessage(ctx, "+14155550100", "two")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(m.bodies()) != 1 {
		t.Errorf("limited send must not reach the messenger, got %v", m.bodies())
	}

	// The suppressed send must show up on the scrape endpoint.
	rec := httptest.NewRecorder()
	mtr.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "nelo_outbound_rate_limited_total 1") {
		t.Error("rate-limited counter not incremented")
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitedMessengerAllowsOnLimiterFailure(t *testing.T) {
	m := &recordingMessenger{}
	rl := NewRateLimitedMessenger(m, failingLimiter{}, nil, nil)

	if _, err := rl.SendMessage(context.Background(), "+14155550100", "hi"); err != nil {
		t.Fatalf("limiter failure should be soft: %v", err)
	}
	if len(m.bodies()) != 1 {
		t.Error("message should have been sent despite limiter failure")
	}
}
