package monitoring

import (
	"sync"
	"time"
)

// Monitor collects display-state metrics for a running client: connection
// status, last reconciliation, unstable heartbeat. Values here drive status
// indicators; hard counters live in the prometheus collectors.
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns all current metrics
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	// Create a copy to avoid concurrent map access
	metrics := make(map[string]interface{}, len(m.metrics))
	for k, v := range m.metrics {
		metrics[k] = v
	}

	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// RecordReconciliation notes the outcome of one merge pass for display
func (m *Monitor) RecordReconciliation(scope string, orders int, changed bool) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics["last_reconciliation_scope"] = scope
	m.metrics["last_reconciliation_orders"] = orders
	m.metrics["last_reconciliation_changed"] = changed
	m.metrics["last_reconciliation_at"] = time.Now().Format(time.RFC3339)
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}
