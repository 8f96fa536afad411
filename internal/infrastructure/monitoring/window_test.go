package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestWindowSummary(t *testing.T) {
	w := NewWindow(100)
	assert.Equal(t, Latency{}, w.Summary())

	for i := 1; i <= 100; i++ {
		w.Add(time.Duration(i) * time.Millisecond)
	}

	sum := w.Summary()
	assert.Equal(t, 100, sum.Count)
	assert.InDelta(t, 50.5, sum.Mean, 0.001)
	assert.InDelta(t, 50, sum.P50, 0.001)
	assert.InDelta(t, 95, sum.P95, 0.001)
	assert.InDelta(t, 100, sum.Max, 0.001)
}

func TestWindowWrapsAround(t *testing.T) {
	w := NewWindow(3)
	for _, ms := range []int{100, 100, 100, 1, 2} {
		w.Add(time.Duration(ms) * time.Millisecond)
	}

	sum := w.Summary()
	assert.Equal(t, 3, sum.Count)
	assert.InDelta(t, 100, sum.Max, 0.001)
	assert.InDelta(t, 2, sum.P50, 0.001)
}

func TestSnapshotLatency(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordExecution("success", 10*time.Millisecond)
	m.RecordExecution("error", 30*time.Millisecond)

	lat := m.Snapshot().Latency
	assert.Equal(t, 2, lat.Count)
	assert.InDelta(t, 20, lat.Mean, 0.001)
	assert.InDelta(t, 30, lat.Max, 0.001)
}
