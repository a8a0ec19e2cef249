package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	// GraceHours is how long a due follow-up may stay unrecorded before the
	// scheduler is considered stalled.
	GraceHours int `yaml:"grace_hours" json:"grace_hours"`
	// FailureWindowHours bounds the look-back for send and publish failures.
	FailureWindowHours int `yaml:"failure_window_hours" json:"failure_window_hours"`
}

// DefaultAlertThresholds returns the default thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		GraceHours:         2,
		FailureWindowHours: 24,
	}
}

// AlertEngine evaluates alert conditions.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	threads    storage.ThreadRepository
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over the follow-up threads and,
// optionally, the event log.
func NewAlertEngine(threads storage.ThreadRepository, eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		threads:    threads,
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate checks every condition and returns the triggered alerts ordered by
// severity, then id.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()

	threads, err := ae.threads.Load()
	if err != nil {
		return nil, fmt.Errorf("loading threads: %w", err)
	}

	alerts := ae.checkSLA(threads, now)
	alerts = append(alerts, ae.checkStalledFollowUps(threads, now)...)

	if ae.eventLog != nil {
		failures, err := ae.checkFailures(now)
		if err != nil {
			return nil, fmt.Errorf("checking failures: %w", err)
		}
		alerts = append(alerts, failures...)
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

// checkSLA flags threads past their SLA window whose follow-up plan is not
// yet complete.
func (ae *alertEngine) checkSLA(threads []models.Thread, now time.Time) []Alert {
	var alerts []Alert
	for _, t := range threads {
		created, err := t.Created()
		if err != nil {
			continue
		}
		plan := core.FollowUpPlan(t.Severity)
		if len(t.FollowUpsSent) >= len(plan) {
			continue
		}
		sla := core.SLAHours(t.Severity)
		if now.Sub(created) <= time.Duration(sla)*time.Hour {
			continue
		}

		sev := SeverityMedium
		if core.Escalates(t.Severity) {
			sev = SeverityHigh
		}
		alerts = append(alerts, Alert{
			ID:          "sla-" + t.ID,
			Condition:   "sla_breached",
			Severity:    sev,
			Message:     fmt.Sprintf("%s report %s is past its %dh SLA with %d of %d follow-ups recorded", t.Severity, t.ID, sla, len(t.FollowUpsSent), len(plan)),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkStalledFollowUps flags due steps that stayed unrecorded past the grace
// period, which means the scheduler is not running.
func (ae *alertEngine) checkStalledFollowUps(threads []models.Thread, now time.Time) []Alert {
	grace := time.Duration(ae.thresholds.GraceHours) * time.Hour
	var alerts []Alert
	for _, t := range threads {
		due, err := core.DueSteps(t, now)
		if err != nil {
			continue
		}
		for _, d := range due {
			if now.Sub(d.DueAt) <= grace {
				continue
			}
			alerts = append(alerts, Alert{
				ID:          fmt.Sprintf("stalled-%s-%d", t.ID, d.Step),
				Condition:   "followup_stalled",
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("follow-up %q for %s was due at %s and has not been recorded", d.Reason, t.ID, d.DueAt.Format(time.RFC3339)),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkFailures counts recent failed sends, failed issue operations and
// skipped inbox files.
func (ae *alertEngine) checkFailures(now time.Time) ([]Alert, error) {
	since := now.Add(-time.Duration(ae.thresholds.FailureWindowHours) * time.Hour)
	events, err := ae.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, e := range events {
		counts[e.Type]++
	}

	var alerts []Alert
	add := func(eventType, condition string, sev AlertSeverity, what string) {
		n := counts[eventType]
		if n == 0 {
			return
		}
		alerts = append(alerts, Alert{
			ID:          condition,
			Condition:   condition,
			Severity:    sev,
			Message:     fmt.Sprintf("%d %s in the last %dh", n, what, ae.thresholds.FailureWindowHours),
			TriggeredAt: now,
		})
	}
	add("followup.failed", "followup_send_failed", SeverityHigh, "follow-up sends failed and will not be retried")
	add("issue.failed", "issue_publish_failed", SeverityMedium, "issue operations failed")
	add("report.skipped", "inbox_file_skipped", SeverityLow, "inbox files could not be parsed")
	return alerts, nil
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
