package core

import (
	"strings"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// SeverityTier pairs a severity with the keywords that select it.
type SeverityTier struct {
	Severity models.Severity
	Keywords []string
}

// SeverityRules is an ordered list of tiers. The first tier with a keyword
// contained in the lowercased text wins.
type SeverityRules []SeverityTier

// DefaultSeverityRules returns the built-in tiers, critical first.
func DefaultSeverityRules() SeverityRules {
	return SeverityRules{
		{Severity: models.SeverityCritical, Keywords: []string{
			"remote code execution", "data breach", "phi exposure", "phi leak",
			"patient data exposed", "patient data leak", "authentication bypass",
			"auth bypass", "account takeover", "privilege escalation", "ransomware",
			"leaked credentials", "credentials leaked", "production database exposed",
		}},
		{Severity: models.SeverityHigh, Keywords: []string{
			"sql injection", "sqli", "stored xss", "insecure direct object",
			"ssrf", "server-side request forgery", "csrf", "broken access control",
			"insecure deserialization", "path traversal", "exposed api key",
			"hardcoded secret", "jwt",
		}},
		{Severity: models.SeverityMedium, Keywords: []string{
			"xss", "cross-site scripting", "open redirect", "clickjacking",
			"information disclosure", "misconfiguration", "rate limit",
			"weak password", "cors", "session fixation", "enumeration",
		}},
		{Severity: models.SeverityLow, Keywords: []string{
			"missing header", "security header", "best practice", "version disclosure",
			"banner", "spf", "dmarc", "autocomplete", "cookie flag",
		}},
	}
}

// Classify returns the severity of text using the default rules.
func Classify(text string) models.Severity {
	return DefaultSeverityRules().Classify(text)
}

// Classify returns the severity of the first tier with a matching keyword,
// or SeverityUnknown.
func (r SeverityRules) Classify(text string) models.Severity {
	lower := strings.ToLower(text)
	for _, tier := range r {
		if containsAny(lower, tier.Keywords) {
			return tier.Severity
		}
	}
	return models.SeverityUnknown
}

// SLAHours returns the response SLA for a severity.
func SLAHours(sev models.Severity) int {
	switch sev {
	case models.SeverityCritical:
		return 24
	case models.SeverityHigh:
		return 72
	case models.SeverityMedium:
		return 168
	case models.SeverityLow:
		return 336
	default:
		return 168
	}
}

// Escalates reports whether a severity requires escalation.
func Escalates(sev models.Severity) bool {
	return sev == models.SeverityCritical || sev == models.SeverityHigh
}

// FollowUpPlan returns the fixed follow-up cadence for a severity.
func FollowUpPlan(sev models.Severity) []models.FollowUpStep {
	switch sev {
	case models.SeverityCritical:
		return []models.FollowUpStep{
			{InHours: 4, Reason: "Containment check"},
			{InHours: 24, Reason: "Triage update"},
			{InHours: 72, Reason: "Mitigation or status"},
		}
	case models.SeverityHigh:
		return []models.FollowUpStep{
			{InHours: 24, Reason: "Triage update"},
			{InHours: 72, Reason: "Mitigation or status"},
		}
	case models.SeverityLow:
		return []models.FollowUpStep{
			{InHours: 120, Reason: "Status update"},
		}
	default:
		// medium and unknown share a cadence, matching their shared SLA.
		return []models.FollowUpStep{
			{InHours: 72, Reason: "Triage update"},
		}
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
