package models

import (
	"fmt"
	"time"
)

// FollowUpStep is one entry of a severity-keyed follow-up plan.
type FollowUpStep struct {
	InHours int    `json:"inHours" yaml:"in_hours"`
	Reason  string `json:"reason" yaml:"reason"`
}

// Thread is a persisted follow-up record for one report.
type Thread struct {
	ID            string     `json:"id" yaml:"id"`
	CreatedAt     string     `json:"createdAt" yaml:"created_at"`
	Event         Report     `json:"event" yaml:"event"`
	Severity      Severity   `json:"severity" yaml:"severity"`
	Categories    Categories `json:"categories,omitempty" yaml:"categories,omitempty"`
	FollowUpsSent []int      `json:"followUpsSent" yaml:"follow_ups_sent"`
}

// Created parses CreatedAt as RFC 3339.
func (t Thread) Created() (time.Time, error) {
	created, err := time.Parse(time.RFC3339, t.CreatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing createdAt of thread %s: %w", t.ID, err)
	}
	return created, nil
}

// HasSent reports whether the follow-up step at index has been recorded.
func (t Thread) HasSent(index int) bool {
	for _, i := range t.FollowUpsSent {
		if i == index {
			return true
		}
	}
	return false
}

// MarkSent records the step index once. It returns false if the index was
// already present.
func (t *Thread) MarkSent(index int) bool {
	if t.HasSent(index) {
		return false
	}
	t.FollowUpsSent = append(t.FollowUpsSent, index)
	return true
}
