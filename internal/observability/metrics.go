package observability

import (
	"fmt"
	"time"
)

// Metrics holds counts derived from the event log.
type Metrics struct {
	ReportsRouted     int            `json:"reports_routed"`
	ReportsSkipped    int            `json:"reports_skipped"`
	ArtifactsWritten  int            `json:"artifacts_written"`
	ReportsBySeverity map[string]int `json:"reports_by_severity"`
	ThreadsRegistered int            `json:"threads_registered"`
	FollowUpsRecorded int            `json:"followups_recorded"`
	FollowUpsSent     int            `json:"followups_sent"`
	FollowUpsFailed   int            `json:"followups_failed"`
	IssuesCreated     int            `json:"issues_created"`
	IssuesExisting    int            `json:"issues_existing"`
	IssuesClosed      int            `json:"issues_closed"`
	IssuesFailed      int            `json:"issues_failed"`
	IssuesByChannel   map[string]int `json:"issues_by_channel"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		ReportsBySeverity: make(map[string]int),
		IssuesByChannel:   make(map[string]int),
	}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "report.routed":
			m.ReportsRouted++
			if sev, ok := event.Data["severity"].(string); ok {
				m.ReportsBySeverity[sev]++
			}
			if paths, ok := event.Data["paths"].([]any); ok {
				m.ArtifactsWritten += len(paths)
			}
		case "report.skipped":
			m.ReportsSkipped++
		case "thread.registered":
			m.ThreadsRegistered += intField(event.Data, "count")
		case "followup.recorded":
			m.FollowUpsRecorded++
		case "followup.sent":
			m.FollowUpsSent++
		case "followup.failed":
			m.FollowUpsFailed++
		case "issue.created":
			m.IssuesCreated++
			if ch, ok := event.Data["channel"].(string); ok {
				m.IssuesByChannel[ch]++
			}
		case "issue.skipped":
			m.IssuesExisting++
		case "issue.closed":
			m.IssuesClosed++
		case "issue.failed":
			m.IssuesFailed++
		}
	}

	return m, nil
}

// intField reads a numeric field from decoded event data. JSON numbers
// decode as float64; in-process data may still hold an int.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
