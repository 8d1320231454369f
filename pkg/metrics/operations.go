package metrics

import (
	"sync"
	"time"
)

// OperationMetrics tracks success/failure counts and cumulative latency
// per operation. It satisfies the memory manager's Observer contract.
type OperationMetrics struct {
	mu  sync.RWMutex
	ops map[string]*opStats
}

type opStats struct {
	count    int64
	failures int64
	total    time.Duration
}

// OperationSnapshot is a read-only view of one operation's counters.
type OperationSnapshot struct {
	Count      int64         `json:"count"`
	Failures   int64         `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// NewOperationMetrics creates an empty metrics sink.
func NewOperationMetrics() *OperationMetrics {
	return &OperationMetrics{ops: make(map[string]*opStats)}
}

// Record registers one operation outcome.
func (m *OperationMetrics) Record(op string, success bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.ops[op]

	if !ok {
		stats = &opStats{}
		m.ops[op] = stats
	}

	stats.count++
	stats.total += elapsed

	if !success {
		stats.failures++
	}
}

// Snapshot returns current counters keyed by operation name.
func (m *OperationMetrics) Snapshot() map[string]OperationSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]OperationSnapshot, len(m.ops))

	for op, stats := range m.ops {
		snapshot := OperationSnapshot{
			Count:    stats.count,
			Failures: stats.failures,
		}

		if stats.count > 0 {
			snapshot.AvgLatency = stats.total / time.Duration(stats.count)
		}

		out[op] = snapshot
	}

	return out
}

// Reset clears all counters.
func (m *OperationMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ops = make(map[string]*opStats)
}
