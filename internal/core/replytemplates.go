package core

import (
	"strings"
	"text/template"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// sensitiveDataNotice is appended to every outbound message.
const sensitiveDataNotice = "Please do not include PHI, PII, patient or member identifiers, card numbers, passwords, tokens, or other secrets. Redacted samples and request IDs are enough."

// Reply is an outbound message. Detector templates fill only Subject and Text;
// the auto-responder adds recipients.
type Reply struct {
	To      string   `json:"to,omitempty" yaml:"to,omitempty"`
	CC      []string `json:"cc,omitempty" yaml:"cc,omitempty"`
	Subject string   `json:"subject" yaml:"subject"`
	Text    string   `json:"text" yaml:"text"`
}

type replyData struct {
	Label    string
	Category string
	Severity models.Severity
	SLAHours int
	Subject  string
	CaseID   string
	Reason   string
	Guidance []string
	Notice   string
}

var (
	categoryInitialTmpl = template.Must(template.New("category-initial").Parse(
		`Thank you for reporting this {{.Label}} security concern.

We have filed it under the "{{.Category}}" category. To help us triage, please reply with:
{{range .Guidance}}- {{.}}
{{end}}
{{.Notice}}
`))

	categoryFollowUpTmpl = template.Must(template.New("category-followup").Parse(
		`This is a follow-up on your {{.Label}} report ({{.Category}}, severity {{.Severity}}).

If you have new details, the most useful are:
{{range .Guidance}}- {{.}}
{{end}}
{{.Notice}}
`))

	ackTmpl = template.Must(template.New("ack").Parse(
		`Thank you for your report. It has been received and a case is pending triage.

Preliminary severity: {{.Severity}}
Target response time: {{.SLAHours}} hours

We will follow up as the investigation progresses.

{{.Notice}}
`))

	genericFollowUpTmpl = template.Must(template.New("generic-followup").Parse(
		`This is a scheduled follow-up on your security report{{if .Subject}} "{{.Subject}}"{{end}}.

Reason: {{.Reason}}
Current severity: {{.Severity}}

Our team is still working on it. If you have additional, non-sensitive details, reply to this message.

{{.Notice}}
`))
)

func render(t *template.Template, data replyData) string {
	data.Notice = sensitiveDataNotice
	var b strings.Builder
	// The templates are static and the data is plain strings, so Execute
	// cannot fail on anything but a broken writer.
	_ = t.Execute(&b, data)
	return b.String()
}

// BuildInitialReply renders the category-specific first reply for a report.
func (d Detector) BuildInitialReply(subject, category string) Reply {
	if category == "" {
		category = models.CategoryOther
	}
	return Reply{
		Subject: replySubject(subject) + " [" + d.Label + ": " + category + "]",
		Text: render(categoryInitialTmpl, replyData{
			Label:    d.Label,
			Category: category,
			Guidance: d.guidance(category),
		}),
	}
}

// BuildFollowUpText renders the category-specific follow-up body.
func (d Detector) BuildFollowUpText(category string, sev models.Severity) string {
	if category == "" {
		category = models.CategoryOther
	}
	return render(categoryFollowUpTmpl, replyData{
		Label:    d.Label,
		Category: category,
		Severity: sev,
		Guidance: d.guidance(category),
	})
}

// GenericFollowUpText is used when no detector recorded a category.
func GenericFollowUpText(subject, reason string, sev models.Severity) string {
	return render(genericFollowUpTmpl, replyData{Subject: subject, Reason: reason, Severity: sev})
}

func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: Security report"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
