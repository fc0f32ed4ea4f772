package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/angeloszaimis/session-cache/internal/health"
	"github.com/angeloszaimis/session-cache/internal/metrics"
)

type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Executor wraps backend operations with a health gate, bounded retry, and a
// fallback value. Backend errors never escape a wrapped call: callers always
// receive either a real result or the fallback.
type Executor struct {
	monitor *health.Monitor
	opts    Options
	logger  *slog.Logger
	events  chan<- metrics.Event
}

func NewExecutor(monitor *health.Monitor, opts Options, logger *slog.Logger) *Executor {
	return &Executor{
		monitor: monitor,
		opts:    opts,
		logger:  logger,
	}
}

// SetEventChannel wires an optional metrics event sink.
func (e *Executor) SetEventChannel(ch chan<- metrics.Event) {
	e.events = ch
}

// Do runs op against the endpoint with up to MaxRetries+1 attempts.
//
// If the endpoint is unhealthy or its circuit is open, the fallback is
// returned immediately without an attempt. Every attempt's outcome is fed to
// the health monitor, so ordinary traffic failures can trip the breaker. The
// second return value reports whether op produced the result; false means
// the caller got the fallback.
func Do[T any](ctx context.Context, e *Executor, endpoint string, op func(context.Context) (T, error), fallback T) (T, bool) {
	if !e.monitor.IsHealthy(ctx, endpoint) {
		metrics.Emit(e.events, metrics.Event{
			Type:      metrics.EventFallbackServed,
			Timestamp: time.Now(),
			Endpoint:  endpoint,
		})
		return fallback, false
	}

	attempts := e.opts.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		result, err := op(ctx)
		elapsed := time.Since(start)

		e.monitor.RecordResult(endpoint, err, elapsed)
		metrics.Emit(e.events, metrics.Event{
			Type:      metrics.EventOperationCompleted,
			Timestamp: time.Now(),
			Endpoint:  endpoint,
			Duration:  elapsed,
		})

		if err == nil {
			return result, true
		}

		if attempt < attempts-1 {
			delay := backoff(attempt, e.opts.BaseDelay, e.opts.MaxDelay)
			e.logger.Warn("Backend operation failed, retrying",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))

			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				break
			}
			continue
		}

		e.logger.Error("Backend operation failed, attempts exhausted",
			slog.String("endpoint", endpoint),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
	}

	metrics.Emit(e.events, metrics.Event{
		Type:      metrics.EventRetryExhausted,
		Timestamp: time.Now(),
		Endpoint:  endpoint,
	})
	return fallback, false
}

// backoff returns the delay before the next attempt: exponential growth
// capped at max, scaled by half-jitter (a random factor in [0.5, 1.0)).
func backoff(attempt int, base, max time.Duration) time.Duration {
	delay := base << attempt
	if delay > max || delay <= 0 {
		delay = max
	}

	jitter := 0.5 + rand.Float64()/2
	return time.Duration(float64(delay) * jitter)
}

// sleep waits for d, returning early if ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
