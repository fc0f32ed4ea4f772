package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	operations    map[string]int64
	remoteHits    map[string]int64
	fallbacks     map[string]int64
	exhausted     map[string]int64
	circuitOpens  map[string]int64
	circuitStates map[string]bool
	durations     map[string][]time.Duration
	startTime     time.Time
}

type Snapshot struct {
	TotalOperations int64                      `json:"total_operations"`
	Uptime          time.Duration              `json:"uptime"`
	Endpoints       map[string]EndpointMetrics `json:"endpoints"`
}

type EndpointMetrics struct {
	Operations     int64         `json:"operations"`
	RemoteHits     int64         `json:"remote_hits"`
	FallbackServes int64         `json:"fallback_serves"`
	RetryExhausted int64         `json:"retry_exhausted"`
	CircuitOpens   int64         `json:"circuit_opens"`
	CircuitOpen    bool          `json:"circuit_open"`
	AvgDuration    time.Duration `json:"avg_duration"`
	P50Duration    time.Duration `json:"p50_duration"`
	P95Duration    time.Duration `json:"p95_duration"`
	P99Duration    time.Duration `json:"p99_duration"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		operations:    make(map[string]int64),
		remoteHits:    make(map[string]int64),
		fallbacks:     make(map[string]int64),
		exhausted:     make(map[string]int64),
		circuitOpens:  make(map[string]int64),
		circuitStates: make(map[string]bool),
		durations:     make(map[string][]time.Duration),
		startTime:     time.Now(),
	}
}

func (m *Metrics) recordOperation(endpoint string, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.operations[endpoint]++
	m.durations[endpoint] = append(m.durations[endpoint], duration)

	if len(m.durations[endpoint]) > 1000 {
		m.durations[endpoint] = m.durations[endpoint][1:]
	}
}

func (m *Metrics) incrementRemoteHits(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.remoteHits[endpoint]++
}

func (m *Metrics) incrementFallbacks(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.fallbacks[endpoint]++
}

func (m *Metrics) incrementExhausted(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.exhausted[endpoint]++
}

func (m *Metrics) updateCircuit(endpoint string, open bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if open && !m.circuitStates[endpoint] {
		m.circuitOpens[endpoint]++
	}
	m.circuitStates[endpoint] = open
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Endpoints: make(map[string]EndpointMetrics),
	}

	allEndpoints := make(map[string]bool)
	for endpoint := range m.operations {
		allEndpoints[endpoint] = true
	}
	for endpoint := range m.fallbacks {
		allEndpoints[endpoint] = true
	}
	for endpoint := range m.circuitStates {
		allEndpoints[endpoint] = true
	}

	for endpoint := range allEndpoints {
		snap.TotalOperations += m.operations[endpoint]

		em := EndpointMetrics{
			Operations:     m.operations[endpoint],
			RemoteHits:     m.remoteHits[endpoint],
			FallbackServes: m.fallbacks[endpoint],
			RetryExhausted: m.exhausted[endpoint],
			CircuitOpens:   m.circuitOpens[endpoint],
			CircuitOpen:    m.circuitStates[endpoint],
		}

		durations := m.durations[endpoint]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			em.AvgDuration = average(sorted)
			em.P50Duration = percentile(sorted, 0.50)
			em.P95Duration = percentile(sorted, 0.95)
			em.P99Duration = percentile(sorted, 0.99)
		}

		snap.Endpoints[endpoint] = em
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
