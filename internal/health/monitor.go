package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/session-cache/internal/metrics"
)

// responseTimeWindow bounds how many recent response times are kept per endpoint.
const responseTimeWindow = 10

// ProbeFunc performs one lightweight liveness check against an endpoint,
// typically a PING over a pooled connection.
type ProbeFunc func(ctx context.Context, endpoint string) error

type Options struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	CheckInterval    time.Duration
}

// EndpointHealth is a point-in-time view of one endpoint's state.
type EndpointHealth struct {
	EndpointID           string        `json:"endpoint_id"`
	Healthy              bool          `json:"is_healthy"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	CircuitOpen          bool          `json:"circuit_open"`
	CircuitOpenUntil     time.Time     `json:"circuit_open_until"`
	LastError            string        `json:"last_error,omitempty"`
	LastResponseTime     time.Duration `json:"last_response_time"`
	AvgResponseTime      time.Duration `json:"avg_response_time"`
}

type endpointState struct {
	healthy              bool
	checked              bool
	lastChecked          time.Time
	consecutiveFailures  int
	consecutiveSuccesses int
	circuitOpen          bool
	circuitOpenUntil     time.Time
	lastError            string
	responseTimes        [responseTimeWindow]time.Duration
	timesIndex           int
	timesCount           int
}

// Monitor tracks per-endpoint health and owns the circuit breaker state
// machine. The breaker has two states: CLOSED (operations proceed) and OPEN
// (operations short-circuit to fallback without I/O). There is no half-open
// state; once the cooldown elapses the next health check performs exactly
// one real probe and the circuit closes or re-arms based on its outcome.
type Monitor struct {
	mutex     sync.Mutex
	endpoints map[string]*endpointState
	probe     ProbeFunc
	opts      Options
	logger    *slog.Logger
	events    chan<- metrics.Event
}

func NewMonitor(probe ProbeFunc, opts Options, logger *slog.Logger) *Monitor {
	return &Monitor{
		endpoints: make(map[string]*endpointState),
		probe:     probe,
		opts:      opts,
		logger:    logger,
	}
}

// SetEventChannel wires an optional metrics event sink.
func (m *Monitor) SetEventChannel(ch chan<- metrics.Event) {
	m.events = ch
}

// IsHealthy reports whether the endpoint should receive traffic.
//
// If the circuit is open and still within its cooldown, it returns false
// without any I/O. If the endpoint was checked within the configured
// interval, it returns the cached flag. Otherwise it performs one probe and
// feeds the outcome back into the breaker counters.
func (m *Monitor) IsHealthy(ctx context.Context, endpoint string) bool {
	now := time.Now()

	m.mutex.Lock()
	st := m.state(endpoint)

	if st.circuitOpen && now.Before(st.circuitOpenUntil) {
		m.mutex.Unlock()
		return false
	}

	if st.checked && now.Sub(st.lastChecked) < m.opts.CheckInterval {
		cached := st.healthy && !st.circuitOpen
		m.mutex.Unlock()
		return cached
	}

	// Claim the probe before releasing the lock so concurrent callers
	// get the debounced answer instead of piling on.
	st.checked = true
	st.lastChecked = now
	m.mutex.Unlock()

	start := time.Now()
	err := m.probe(ctx, endpoint)
	m.RecordResult(endpoint, err, time.Since(start))

	return err == nil
}

// IsCircuitOpen reports whether the endpoint's breaker is currently open.
// The flag stays set through the cooldown until a successful probe clears it.
func (m *Monitor) IsCircuitOpen(endpoint string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state(endpoint).circuitOpen
}

// RecordResult feeds the outcome of a real operation (or probe) into the
// breaker counters. Ordinary traffic failures trip the breaker exactly like
// probe failures do.
func (m *Monitor) RecordResult(endpoint string, opErr error, elapsed time.Duration) {
	now := time.Now()

	m.mutex.Lock()
	st := m.state(endpoint)

	st.responseTimes[st.timesIndex] = elapsed
	st.timesIndex = (st.timesIndex + 1) % responseTimeWindow
	if st.timesCount < responseTimeWindow {
		st.timesCount++
	}

	var opened, closed bool

	if opErr == nil {
		st.consecutiveSuccesses++
		st.consecutiveFailures = 0
		st.healthy = true
		st.lastError = ""

		if st.circuitOpen {
			st.circuitOpen = false
			closed = true
		}
	} else {
		st.consecutiveFailures++
		st.consecutiveSuccesses = 0
		st.healthy = false
		st.lastError = opErr.Error()

		if st.circuitOpen {
			// Failed probe re-arms the cooldown.
			st.circuitOpenUntil = now.Add(m.opts.ResetTimeout)
		} else if st.consecutiveFailures >= m.opts.FailureThreshold {
			st.circuitOpen = true
			st.circuitOpenUntil = now.Add(m.opts.ResetTimeout)
			opened = true
		}
	}
	failures := st.consecutiveFailures
	m.mutex.Unlock()

	if opened {
		m.logger.Error("Circuit opened",
			slog.String("endpoint", endpoint),
			slog.Int("consecutive_failures", failures),
			slog.String("error", opErr.Error()))
		metrics.Emit(m.events, metrics.Event{
			Type:        metrics.EventCircuitChanged,
			Timestamp:   now,
			Endpoint:    endpoint,
			CircuitOpen: true,
		})
	}

	if closed {
		m.logger.Info("Circuit closed", slog.String("endpoint", endpoint))
		metrics.Emit(m.events, metrics.Event{
			Type:      metrics.EventCircuitChanged,
			Timestamp: now,
			Endpoint:  endpoint,
		})
	}
}

// Snapshot returns a copy of every tracked endpoint's state.
func (m *Monitor) Snapshot() map[string]EndpointHealth {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	snap := make(map[string]EndpointHealth, len(m.endpoints))
	for endpoint, st := range m.endpoints {
		var sum time.Duration
		for i := 0; i < st.timesCount; i++ {
			sum += st.responseTimes[i]
		}

		eh := EndpointHealth{
			EndpointID:           endpoint,
			Healthy:              st.healthy,
			ConsecutiveFailures:  st.consecutiveFailures,
			ConsecutiveSuccesses: st.consecutiveSuccesses,
			CircuitOpen:          st.circuitOpen,
			CircuitOpenUntil:     st.circuitOpenUntil,
			LastError:            st.lastError,
		}
		if st.timesCount > 0 {
			last := (st.timesIndex - 1 + responseTimeWindow) % responseTimeWindow
			eh.LastResponseTime = st.responseTimes[last]
			eh.AvgResponseTime = sum / time.Duration(st.timesCount)
		}
		snap[endpoint] = eh
	}
	return snap
}

// Reset clears all tracked endpoint state. Intended for test isolation.
func (m *Monitor) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.endpoints = make(map[string]*endpointState)
}

// state returns the entry for endpoint, creating it. Caller holds the lock.
func (m *Monitor) state(endpoint string) *endpointState {
	st, exists := m.endpoints[endpoint]
	if !exists {
		st = &endpointState{healthy: true}
		m.endpoints[endpoint] = st
	}
	return st
}
