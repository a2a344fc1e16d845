package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	outcomes      map[string]map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	breakerStates map[string]string
	replicaHealth map[string]map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                         `json:"total_requests"`
	Uptime        time.Duration                 `json:"uptime"`
	Dependencies  map[string]DependencyMetrics `json:"dependencies"`
}

type DependencyMetrics struct {
	Requests     int64            `json:"requests"`
	Outcomes     map[string]int64 `json:"outcomes"`
	BreakerState string           `json:"breaker_state,omitempty"`
	Replicas     map[string]bool  `json:"replicas,omitempty"`
	AvgResponse  time.Duration    `json:"avg_response"`
	P50Response  time.Duration    `json:"p50_response"`
	P95Response  time.Duration    `json:"p95_response"`
	P99Response  time.Duration    `json:"p99_response"`
	StatusCodes  map[int]int64    `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		outcomes:      make(map[string]map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		breakerStates: make(map[string]string),
		replicaHealth: make(map[string]map[string]bool),
		startTime:     time.Now(),
	}
}

func (m *Metrics) IncrementRequests(dependency string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[dependency]++
}

func (m *Metrics) RecordResponse(dependency string, duration time.Duration, statusCode int, outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[dependency] = append(m.responseTimes[dependency], duration)
	if len(m.responseTimes[dependency]) > maxSamples {
		m.responseTimes[dependency] = m.responseTimes[dependency][1:]
	}

	if m.statusCodes[dependency] == nil {
		m.statusCodes[dependency] = make(map[int]int64)
	}
	m.statusCodes[dependency][statusCode]++

	if m.outcomes[dependency] == nil {
		m.outcomes[dependency] = make(map[string]int64)
	}
	m.outcomes[dependency][outcome]++
}

func (m *Metrics) UpdateBreakerState(dependency, state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerStates[dependency] = state
}

func (m *Metrics) UpdateHealthStatus(dependency, replica string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.replicaHealth[dependency] == nil {
		m.replicaHealth[dependency] = make(map[string]bool)
	}
	m.replicaHealth[dependency][replica] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:       time.Since(m.startTime),
		Dependencies: make(map[string]DependencyMetrics),
	}

	all := make(map[string]bool)
	for dependency := range m.requests {
		all[dependency] = true
	}
	for dependency := range m.responseTimes {
		all[dependency] = true
	}
	for dependency := range m.breakerStates {
		all[dependency] = true
	}
	for dependency := range m.replicaHealth {
		all[dependency] = true
	}

	for dependency := range all {
		snap.TotalRequests += m.requests[dependency]

		dm := DependencyMetrics{
			Requests:     m.requests[dependency],
			Outcomes:     copyCounts(m.outcomes[dependency]),
			BreakerState: m.breakerStates[dependency],
			StatusCodes:  copyCounts(m.statusCodes[dependency]),
		}

		if replicas := m.replicaHealth[dependency]; len(replicas) > 0 {
			dm.Replicas = make(map[string]bool, len(replicas))
			for r, healthy := range replicas {
				dm.Replicas[r] = healthy
			}
		}

		durations := m.responseTimes[dependency]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			dm.AvgResponse = average(sorted)
			dm.P50Response = percentile(sorted, 0.50)
			dm.P95Response = percentile(sorted, 0.95)
			dm.P99Response = percentile(sorted, 0.99)
		}

		snap.Dependencies[dependency] = dm
	}

	return snap
}

func copyCounts[K comparable](src map[K]int64) map[K]int64 {
	dst := make(map[K]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
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
