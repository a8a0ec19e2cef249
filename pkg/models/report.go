package models

import "strings"

// Severity is the triage severity assigned to a report.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

// Severities lists every severity in priority order, highest first.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityUnknown}
}

// CategoryOther is the sentinel returned by a detector when nothing matches.
const CategoryOther = "other"

// StatusResolved is the report status an operator sets to close a routed artifact.
const StatusResolved = "resolved"

// Report is an inbound security report as filed in the inbox directory.
// Every field is optional and defaults to the empty string.
type Report struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	MessageID string `json:"messageId,omitempty" yaml:"message_id,omitempty"`
	Subject   string `json:"subject" yaml:"subject"`
	Body      string `json:"body" yaml:"body"`
	From      string `json:"from" yaml:"from"`
	Status    string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Text returns the classifiable text of the report: subject and body joined
// by a newline.
func (r Report) Text() string {
	return r.Subject + "\n" + r.Body
}

// Resolved reports whether an operator has marked the report resolved.
func (r Report) Resolved() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusResolved)
}

// Categories maps a detector name (nphies, banking, rcm) to the category it
// detected, or CategoryOther.
type Categories map[string]string

// Primary returns the first detector result, in the given detector order,
// that is not CategoryOther. ok is false when every detector returned other.
func (c Categories) Primary(order []string) (detector, category string, ok bool) {
	for _, name := range order {
		if cat, found := c[name]; found && cat != "" && cat != CategoryOther {
			return name, cat, true
		}
	}
	return "", "", false
}
