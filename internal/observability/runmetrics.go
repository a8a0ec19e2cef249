package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/valter-silva-au/sectriage/internal/core"
)

// RunMetrics collects per-invocation pipeline counters in a private registry
// and exports them in the Prometheus text format, for a node exporter
// textfile collector.
type RunMetrics struct {
	registry *prometheus.Registry
	items    *prometheus.CounterVec
	duration *prometheus.GaugeVec
	lastRun  *prometheus.GaugeVec
}

// NewRunMetrics creates an empty RunMetrics.
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sectriage",
			Name:      "items_total",
			Help:      "Items handled by a pipeline stage, by outcome.",
		}, []string{"stage", "outcome"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sectriage",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run of a pipeline stage.",
		}, []string{"stage"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sectriage",
			Name:      "stage_last_run_timestamp_seconds",
			Help:      "Unix time the pipeline stage last completed.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.items, m.duration, m.lastRun)
	return m
}

// Registry exposes the underlying registry as a Gatherer.
func (m *RunMetrics) Registry() prometheus.Gatherer {
	return m.registry
}

func (m *RunMetrics) observe(stage string, took time.Duration, counts map[string]int) {
	if m == nil {
		return
	}
	for outcome, n := range counts {
		m.items.WithLabelValues(stage, outcome).Add(float64(n))
	}
	m.duration.WithLabelValues(stage).Set(took.Seconds())
	m.lastRun.WithLabelValues(stage).SetToCurrentTime()
}

// ObserveRoute records a router pass.
func (m *RunMetrics) ObserveRoute(res *core.RouteResult, took time.Duration) {
	if res == nil {
		return
	}
	m.observe("route", took, map[string]int{
		"routed":     res.Processed,
		"skipped":    len(res.Skipped),
		"artifacts":  res.Artifacts,
		"registered": res.ThreadsRegistered,
	})
}

// ObserveFollowUp records a scheduler pass.
func (m *RunMetrics) ObserveFollowUp(res *core.FollowUpResult, took time.Duration) {
	if res == nil {
		return
	}
	m.observe("followup", took, map[string]int{
		"recorded": res.Recorded,
		"sent":     res.Sent,
		"failed":   res.Failed,
		"invalid":  len(res.Invalid),
	})
}

// ObservePublish records a publisher pass.
func (m *RunMetrics) ObservePublish(res *core.PublishResult, took time.Duration) {
	if res == nil {
		return
	}
	m.observe("publish", took, map[string]int{
		"created":  res.Created,
		"existing": res.Existing,
		"resolved": res.Resolved,
		"closed":   res.Closed,
		"failed":   res.Failed,
	})
}

// WriteTextfile writes the collected metrics to path atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
