// Package metrics provides real-time metrics collection for the session store.
//
// It uses a channel-based event pipeline to asynchronously collect metrics about:
//   - Operation counts and durations per backend endpoint
//   - Remote hits versus fallback-served responses
//   - Retry exhaustion counts
//   - Circuit breaker transitions per endpoint
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the operation path. Events are sent via buffered channels with
// non-blocking semantics so a full buffer drops events instead of stalling
// a store call.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	metrics.Emit(collector.EventChannel(), metrics.Event{
//		Type:     metrics.EventFallbackServed,
//		Endpoint: "redis://localhost:6379/0",
//	})
//
//	snapshot := collector.Snapshot()
//
// The package provides thread-safe metrics storage using sync.RWMutex and
// supports graceful shutdown with event draining to prevent data loss.
package metrics
