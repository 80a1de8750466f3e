package messaging

import (
	"context"
	"fmt"

	"github.com/nelo-ai/nelo-bot/internal/observability/metrics"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Messenger delivers a single outbound WhatsApp message.
// Implementations return the provider message id on success.
type Messenger interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// RateLimitedMessenger enforces the per-recipient sliding window at the
// outbound boundary, so no caller can bypass it.
type RateLimitedMessenger struct {
	inner   Messenger
	limiter Limiter
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewRateLimitedMessenger wraps a messenger with a limiter. A nil limiter
// disables limiting.
func NewRateLimitedMessenger(inner Messenger, limiter Limiter, m *metrics.Metrics, logger *logging.Logger) *RateLimitedMessenger {
	if logger == nil {
		logger = logging.Default()
	}
	return &RateLimitedMessenger{inner: inner, limiter: limiter, metrics: m, logger: logger}
}

// SendMessage rejects with ErrRateLimited when the recipient's window is
// full; callers treat that as retryable, not fatal to the conversation.
func (m *RateLimitedMessenger) SendMessage(ctx context.Context, to, body string) (string, error) {
	if m.limiter != nil {
		ok, err := m.limiter.Allow(ctx, to)
		if err != nil {
			// Limiter bookkeeping failure is soft: log and let the send through.
			m.logger.Warn("rate limiter unavailable, allowing send", "to", to, "error", err)
		} else if !ok {
			m.logger.Warn("outbound message rate limited", "to", to)
			m.metrics.IncOutboundRateLimited()
			return "", fmt.Errorf("messaging: send to %s: %w", to, ErrRateLimited)
		}
	}
	return m.inner.SendMessage(ctx, to, body)
}
