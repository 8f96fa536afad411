package monitoring

import "time"

// Snapshot returns a copy of the current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.Wrappers = make(map[string]int64, len(m.snapshot.Wrappers))
	for k, v := range m.snapshot.Wrappers {
		snap.Wrappers[k] = v
	}
	snap.Executions = make(map[string]int64, len(m.snapshot.Executions))
	for k, v := range m.snapshot.Executions {
		snap.Executions[k] = v
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	snap.Latency = m.latency.Summary()
	return snap
}
