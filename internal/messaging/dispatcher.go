package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Dispatcher sends multi-bubble replies. The first bubble goes out
// synchronously so the webhook handler can surface delivery failures;
// follow-up bubbles are paced in the background and can be cancelled when a
// newer inbound message supersedes them.
type Dispatcher struct {
	messenger     Messenger
	messageDelay  time.Duration
	followUpDelay time.Duration
	logger        *logging.Logger

	mu      sync.Mutex
	pending map[string]*followUpTask
	wg      sync.WaitGroup
}

type followUpTask struct {
	cancel context.CancelFunc
}

// NewDispatcher builds a dispatcher. messageDelay paces bubbles within one
// reply, followUpDelay is the pause before the first background bubble.
func NewDispatcher(messenger Messenger, messageDelay, followUpDelay time.Duration, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if messageDelay <= 0 {
		messageDelay = time.Second
	}
	if followUpDelay <= 0 {
		followUpDelay = 1500 * time.Millisecond
	}
	return &Dispatcher{
		messenger:     messenger,
		messageDelay:  messageDelay,
		followUpDelay: followUpDelay,
		logger:        logger,
		pending:       make(map[string]*followUpTask),
	}
}

// Send delivers every bubble synchronously with the configured pacing.
// It stops at the first failure and returns that error.
func (d *Dispatcher) Send(ctx context.Context, to string, bubbles ...string) error {
	for i, body := range bubbles {
		if body == "" {
			continue
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.messageDelay):
			}
		}
		if _, err := d.messenger.SendMessage(ctx, to, body); err != nil {
			return err
		}
	}
	return nil
}

// SendWithFollowUps delivers the first bubble synchronously and the rest in
// the background. A later call for the same recipient, or CancelFollowUps,
// aborts any follow-ups still queued. The background sends detach from the
// caller's context so the webhook response does not cancel them.
func (d *Dispatcher) SendWithFollowUps(ctx context.Context, to string, bubbles ...string) error {
	if len(bubbles) == 0 {
		return nil
	}
	d.CancelFollowUps(to)

	if _, err := d.messenger.SendMessage(ctx, to, bubbles[0]); err != nil {
		return err
	}
	rest := rest(bubbles)
	if len(rest) == 0 {
		return nil
	}

	followCtx, cancel := context.WithCancel(context.Background())
	task := &followUpTask{cancel: cancel}
	d.mu.Lock()
	d.pending[to] = task
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.clear(to, task)

		delay := d.followUpDelay
		for _, body := range rest {
			select {
			case <-followCtx.Done():
				d.logger.Debug("follow-up bubbles cancelled", "to", to)
				return
			case <-time.After(delay):
			}
			if _, err := d.messenger.SendMessage(followCtx, to, body); err != nil {
				d.logger.Warn("follow-up bubble failed", "to", to, "error", err)
				return
			}
			delay = d.messageDelay
		}
	}()
	return nil
}

// CancelFollowUps aborts queued follow-ups for a recipient, if any.
func (d *Dispatcher) CancelFollowUps(to string) {
	d.mu.Lock()
	task, ok := d.pending[to]
	if ok {
		delete(d.pending, to)
	}
	d.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// Close cancels all queued follow-ups and waits for in-flight sends.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for to, task := range d.pending {
		task.cancel()
		delete(d.pending, to)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// clear removes the registry entry only if it still belongs to this run.
func (d *Dispatcher) clear(to string, task *followUpTask) {
	d.mu.Lock()
	if current, ok := d.pending[to]; ok && current == task {
		delete(d.pending, to)
	}
	d.mu.Unlock()
}

func rest(bubbles []string) []string {
	out := make([]string, 0, len(bubbles)-1)
	for _, b := range bubbles[1:] {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
