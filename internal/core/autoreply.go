package core

import (
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// AutoReply is the computed response to an inbound report. Computing it has
// no side effects; sending is done by a Mailer.
type AutoReply struct {
	Severity     models.Severity       `json:"severity" yaml:"severity"`
	SLAHours     int                   `json:"slaHours" yaml:"sla_hours"`
	Categories   models.Categories     `json:"categories" yaml:"categories"`
	InitialReply Reply                 `json:"initialReply" yaml:"initial_reply"`
	FollowUps    []models.FollowUpStep `json:"followUps" yaml:"follow_ups"`
	Escalate     bool                  `json:"escalate" yaml:"escalate"`
}

// AutoResponder composes initial replies and follow-up plans.
type AutoResponder struct {
	rules        SeverityRules
	escalationCC []string
}

// NewAutoResponder creates an AutoResponder. escalationCC is copied into the
// CC list of replies to escalated reports.
func NewAutoResponder(escalationCC []string) *AutoResponder {
	cc := make([]string, 0, len(escalationCC))
	for _, addr := range escalationCC {
		if addr != "" {
			cc = append(cc, addr)
		}
	}
	return &AutoResponder{rules: DefaultSeverityRules(), escalationCC: cc}
}

// Reply classifies the report and builds its initial reply and plan.
func (a *AutoResponder) Reply(r models.Report) AutoReply {
	sev := a.rules.Classify(r.Text())
	sla := SLAHours(sev)
	escalate := Escalates(sev)

	reply := Reply{
		To:      r.From,
		Subject: replySubject(r.Subject) + " [Security case pending]",
		Text:    render(ackTmpl, replyData{Severity: sev, SLAHours: sla}),
	}
	if escalate && len(a.escalationCC) > 0 {
		reply.CC = append([]string(nil), a.escalationCC...)
	}

	return AutoReply{
		Severity:     sev,
		SLAHours:     sla,
		Categories:   DetectAll(r.Text()),
		InitialReply: reply,
		FollowUps:    FollowUpPlan(sev),
		Escalate:     escalate,
	}
}
