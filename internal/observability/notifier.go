package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Notifier sends alert notifications to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// maxAlertsPerGroup caps the lines listed under one condition in a digest.
const maxAlertsPerGroup = 10

var conditionTitles = map[string]string{
	"sla_breached":         "SLA breaches",
	"followup_stalled":     "Stalled follow-ups",
	"followup_send_failed": "Failed follow-up sends",
	"issue_publish_failed": "Failed issue operations",
	"inbox_file_skipped":   "Skipped inbox files",
}

// slackNotifier posts a triage digest to a Slack incoming webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier posting to the given Slack webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts alerts as one digest. It makes no request when alerts is
// empty. Alert messages carry ids and counts only, never report content.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildDigest(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type alertGroup struct {
	condition string
	severity  AlertSeverity
	alerts    []Alert
}

// groupAlerts groups alerts by condition, most urgent group first. A group's
// severity is the highest of its alerts.
func groupAlerts(alerts []Alert) []alertGroup {
	index := map[string]int{}
	var groups []alertGroup
	for _, a := range alerts {
		i, ok := index[a.Condition]
		if !ok {
			i = len(groups)
			index[a.Condition] = i
			groups = append(groups, alertGroup{condition: a.Condition, severity: a.Severity})
		}
		g := &groups[i]
		g.alerts = append(g.alerts, a)
		if severityRank(a.Severity) < severityRank(g.severity) {
			g.severity = a.Severity
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return severityRank(groups[i].severity) < severityRank(groups[j].severity)
	})
	return groups
}

// buildDigest renders one section per condition, listing its alerts, and a
// footer with the evaluation time.
func buildDigest(alerts []Alert) slackMessage {
	groups := groupAlerts(alerts)

	var summary []string
	for _, g := range groups {
		summary = append(summary, fmt.Sprintf("%d %s", len(g.alerts), strings.ToLower(conditionTitle(g.condition))))
	}
	msg := slackMessage{
		Text: "Security triage: " + strings.Join(summary, ", "),
		Blocks: []slackBlock{{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Security triage: %d alert(s)", len(alerts))},
		}},
	}

	for _, g := range groups {
		var b strings.Builder
		fmt.Fprintf(&b, "%s *%s* (%d)", severityMarker(g.severity), conditionTitle(g.condition), len(g.alerts))
		for i, a := range g.alerts {
			if i == maxAlertsPerGroup {
				fmt.Fprintf(&b, "\n_and %d more_", len(g.alerts)-maxAlertsPerGroup)
				break
			}
			fmt.Fprintf(&b, "\n• `%s` %s", a.ID, a.Message)
		}
		msg.Blocks = append(msg.Blocks,
			slackBlock{Type: "divider"},
			slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: b.String()}},
		)
	}

	msg.Blocks = append(msg.Blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: "Evaluated " + latestTrigger(alerts).Format("2006-01-02 15:04 UTC")}},
	})
	return msg
}

func conditionTitle(condition string) string {
	if t, ok := conditionTitles[condition]; ok {
		return t
	}
	return condition
}

func latestTrigger(alerts []Alert) time.Time {
	var latest time.Time
	for _, a := range alerts {
		if a.TriggeredAt.After(latest) {
			latest = a.TriggeredAt
		}
	}
	return latest.UTC()
}

func severityMarker(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return ":rotating_light:"
	case SeverityMedium:
		return ":warning:"
	case SeverityLow:
		return ":information_source:"
	default:
		return ":grey_question:"
	}
}
