package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/membrane/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
)

// MetricsSnapshot represents a snapshot of all service metrics
type MetricsSnapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Metrics   monitoring.Snapshot `json:"metrics"`
	Pool      sandbox.Stats       `json:"pool"`
	Summary   MetricsSummary      `json:"summary"`
}

// MetricsSummary provides high-level metrics
type MetricsSummary struct {
	TotalRequests    int64   `json:"total_requests"`
	ErrorRate        float64 `json:"error_rate"`
	TotalExecutions  int64   `json:"total_executions"`
	FailureRate      float64 `json:"failure_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	P95LatencyMs     float64 `json:"p95_latency_ms"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Metrics returns the JSON metrics snapshot
func (h *Handlers) Metrics(c *gin.Context) {
	snap := h.metrics.Snapshot()
	respond(c, http.StatusOK, MetricsSnapshot{
		Timestamp: time.Now(),
		Metrics:   snap,
		Pool:      h.executor.Stats(),
		Summary:   summarize(snap),
	})
}

func summarize(snap monitoring.Snapshot) MetricsSummary {
	summary := MetricsSummary{
		TotalRequests:    snap.TotalRequests,
		AverageLatencyMs: snap.Latency.Mean,
		P95LatencyMs:     snap.Latency.P95,
		UptimeSeconds:    snap.UptimeSeconds,
	}
	if snap.TotalRequests > 0 {
		summary.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}

	var failed int64
	for status, n := range snap.Executions {
		summary.TotalExecutions += n
		if status != sandbox.StatusSuccess {
			failed += n
		}
	}
	if summary.TotalExecutions > 0 {
		summary.FailureRate = float64(failed) / float64(summary.TotalExecutions)
	}
	return summary
}
