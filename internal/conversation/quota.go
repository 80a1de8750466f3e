package conversation

import (
	"context"

	"github.com/nelo-ai/nelo-bot/internal/chatlog"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Quota gates model calls on the per-phone daily budget. The check is
// deterministic and happens before the call; the counter itself is the
// count of ai-flagged message log entries, appended only after a call
// succeeds.
type Quota struct {
	log    chatlog.Repository
	limit  int
	logger *logging.Logger
}

// NewQuota builds a quota with the given daily limit.
func NewQuota(log chatlog.Repository, limit int, logger *logging.Logger) *Quota {
	if limit <= 0 {
		limit = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Quota{log: log, limit: limit, logger: logger}
}

// Allow reports whether the phone has model budget left today. Bookkeeping
// failures are soft: the call is allowed and the error logged.
func (q *Quota) Allow(ctx context.Context, phone string) bool {
	used, err := q.log.TodayAICount(ctx, phone)
	if err != nil {
		q.logger.Warn("ai quota check failed, allowing call", "phone", phone, "error", err)
		return true
	}
	return used < q.limit
}
