// Package health tracks per-endpoint backend health and implements the
// circuit breaker protecting the session store from a failing cache backend.
//
// The breaker has two states:
//
//   - CLOSED: normal operation, calls pass through
//   - OPEN: backend failing, calls short-circuit to the local fallback
//
// There is no separate half-open state. Once the cooldown expires, the next
// health check is allowed exactly one real probe: a success closes the
// circuit, a failure re-arms the cooldown.
//
// Usage:
//
//	monitor := health.NewMonitor(probe, health.Options{
//	    FailureThreshold: 3,
//	    ResetTimeout:     15 * time.Second,
//	    CheckInterval:    3 * time.Second,
//	}, logger)
//	if monitor.IsHealthy(ctx, endpoint) {
//	    // Make the call...
//	    monitor.RecordResult(endpoint, err, elapsed)
//	}
package health
