package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// Metrics provides basic in-memory counters for HTTP traffic and engine
// outcomes.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	outcomeCount map[domain.ChangeOutcome]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		outcomeCount: make(map[domain.ChangeOutcome]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordOutcome counts one processed proposal by its outcome kind.
func (m *Metrics) RecordOutcome(outcome domain.ChangeOutcome) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomeCount[outcome]++
}

// OutcomeCounts returns a copy of the per-outcome counters.
func (m *Metrics) OutcomeCounts() map[domain.ChangeOutcome]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.ChangeOutcome]int64, len(m.outcomeCount))
	for outcome, count := range m.outcomeCount {
		counts[outcome] = count
	}
	return counts
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
