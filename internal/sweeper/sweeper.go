package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Job is one periodic maintenance task. Run returns how many items it
// removed or touched, for logging.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Sweeper runs all registered jobs from a single goroutine instead of one
// bespoke timer thread per concern. Jobs run sequentially; a slow job delays
// the others, which is acceptable for cache maintenance.
type Sweeper struct {
	jobs   []Job
	logger *slog.Logger
}

func New(logger *slog.Logger) *Sweeper {
	return &Sweeper{logger: logger}
}

// Register adds a job. Must be called before Start.
func (s *Sweeper) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start runs the scheduling loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	s.logger.Info("Sweeper started", slog.Int("jobs", len(s.jobs)))
	defer s.logger.Info("Sweeper stopped")

	if len(s.jobs) == 0 {
		return
	}

	next := make([]time.Time, len(s.jobs))
	now := time.Now()
	for i, job := range s.jobs {
		next[i] = now.Add(job.Interval)
	}

	for {
		soonest := next[0]
		for _, t := range next[1:] {
			if t.Before(soonest) {
				soonest = t
			}
		}

		timer := time.NewTimer(time.Until(soonest))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		now = time.Now()
		for i, job := range s.jobs {
			if now.Before(next[i]) {
				continue
			}
			next[i] = now.Add(job.Interval)

			count, err := job.Run(ctx)
			if err != nil {
				s.logger.Warn("Sweeper job failed",
					slog.String("job", job.Name),
					slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				s.logger.Debug("Sweeper job completed",
					slog.String("job", job.Name),
					slog.Int("removed", count))
			}
		}
	}
}
