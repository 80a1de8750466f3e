package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/nelo-ai/nelo-bot/internal/observability/metrics"
	"github.com/nelo-ai/nelo-bot/pkg/logging"
)

// Job is one periodic task. Run errors are recorded and the job keeps its
// schedule.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a fixed set of periodic jobs. Each job runs once at start
// and then on its own ticker until the context is cancelled.
type Runner struct {
	jobs    []Job
	metrics *metrics.Metrics
	logger  *logging.Logger
	wg      sync.WaitGroup
}

func NewRunner(m *metrics.Metrics, logger *logging.Logger, jobs ...Job) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		jobs:    jobs,
		metrics: m,
		logger:  logger.Component("jobs"),
	}
}

// Start launches one goroutine per job. It returns immediately; use Wait
// for shutdown.
func (r *Runner) Start(ctx context.Context) {
	for _, job := range r.jobs {
		r.wg.Add(1)
		go func(job Job) {
			defer r.wg.Done()
			r.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has observed cancellation and returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	r.runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.metrics.IncJobRun(job.Name, "error")
		r.logger.Error("job run failed", "job", job.Name, "error", err)
		return
	}
	r.metrics.IncJobRun(job.Name, "ok")
	r.logger.Debug("job run finished", "job", job.Name, "elapsed", time.Since(start))
}
