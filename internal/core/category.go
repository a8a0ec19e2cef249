package core

import (
	"strings"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Detector names, also used as keys in models.Categories.
const (
	DetectorNPHIES  = "nphies"
	DetectorBanking = "banking"
	DetectorRCM     = "rcm"
)

// CategoryRule maps a category key to its keywords and the reporter guidance
// used in reply templates.
type CategoryRule struct {
	Key      string
	Keywords []string
	Guidance []string
}

// Detector classifies text into a domain sub-category by ordered keyword
// rules. A Detector is immutable once built.
type Detector struct {
	Name  string
	Label string
	Rules []CategoryRule
}

// Detect returns the key of the first rule with a keyword contained in the
// lowercased text, or models.CategoryOther.
func (d Detector) Detect(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range d.Rules {
		if containsAny(lower, rule.Keywords) {
			return rule.Key
		}
	}
	return models.CategoryOther
}

// Keys returns the rule keys in detection order.
func (d Detector) Keys() []string {
	keys := make([]string, len(d.Rules))
	for i, r := range d.Rules {
		keys[i] = r.Key
	}
	return keys
}

func (d Detector) guidance(category string) []string {
	for _, r := range d.Rules {
		if r.Key == category {
			return r.Guidance
		}
	}
	return genericGuidance
}

var genericGuidance = []string{
	"A short description of the affected feature or endpoint",
	"Steps to reproduce, with any identifiers replaced by placeholders",
	"When you first observed the behaviour (date and timezone)",
}

// NPHIESDetector detects sub-categories of NPHIES integration reports.
func NPHIESDetector() Detector {
	return Detector{
		Name:  DetectorNPHIES,
		Label: "NPHIES",
		Rules: []CategoryRule{
			{Key: "eligibility", Keywords: []string{"eligibility", "coverage check", "coverageeligibility"}, Guidance: []string{
				"Timestamps of the eligibility request and response",
				"The payer or insurer identifier (no member IDs)",
				"Any error codes returned by the platform",
			}},
			{Key: "prior_authorization", Keywords: []string{"prior auth", "preauth", "pre-auth", "authorization request"}, Guidance: []string{
				"The authorization request type and timestamp",
				"Which response or status you expected versus received",
				"Correlation or message-header IDs, not patient details",
			}},
			{Key: "claims", Keywords: []string{"claim submission", "claim response", "claim bundle", "claim"}, Guidance: []string{
				"The claim bundle type and submission timestamp",
				"Error or outcome codes from the claim response",
				"Whether the issue affects one claim or a batch",
			}},
			{Key: "communication", Keywords: []string{"communication request", "poll request", "task bundle"}, Guidance: []string{
				"The poll or communication message type",
				"Message-header IDs of affected exchanges",
				"How often the behaviour reproduces",
			}},
			{Key: "certificates", Keywords: []string{"certificate", "mtls", "tls handshake", "client cert"}, Guidance: []string{
				"The certificate subject and expiry date (never the private key)",
				"The environment affected (sandbox or production)",
				"The exact TLS error string",
			}},
			{Key: "fhir_api", Keywords: []string{"fhir", "$process-message", "bundle", "endpoint"}, Guidance: []string{
				"The FHIR resource type and operation involved",
				"HTTP status and OperationOutcome codes",
				"A redacted sample of the request structure",
			}},
		},
	}
}

// BankingDetector detects sub-categories of banking and payment reports.
func BankingDetector() Detector {
	return Detector{
		Name:  DetectorBanking,
		Label: "Banking and payments",
		Rules: []CategoryRule{
			{Key: "pci", Keywords: []string{"pci", "cardholder data", "card number"}, Guidance: []string{
				"Where card data appeared (page, log, or API), without the data itself",
				"Whether the data was masked or complete",
				"The time window in which it was visible",
			}},
			{Key: "fraud", Keywords: []string{"fraud", "chargeback", "stolen", "unauthorized transaction"}, Guidance: []string{
				"Transaction reference numbers (no card or account numbers)",
				"Amounts and currencies involved",
				"When the suspicious activity was first noticed",
			}},
			{Key: "card_payments", Keywords: []string{"3ds", "3-d secure", "checkout", "payment gateway", "card"}, Guidance: []string{
				"The checkout step where the issue occurs",
				"Gateway response codes",
				"Browser or client used",
			}},
			{Key: "transfers", Keywords: []string{"iban", "wire", "transfer", "sarie", "swift"}, Guidance: []string{
				"Transfer reference IDs, with account numbers masked",
				"The beneficiary bank or rail involved",
				"Expected versus actual transfer status",
			}},
			{Key: "settlement", Keywords: []string{"settlement", "reconciliation", "payout"}, Guidance: []string{
				"The settlement or payout batch identifier",
				"Which figures do not reconcile",
				"The reporting period affected",
			}},
		},
	}
}

// RCMDetector detects sub-categories of revenue cycle management reports.
func RCMDetector() Detector {
	return Detector{
		Name:  DetectorRCM,
		Label: "Revenue cycle",
		Rules: []CategoryRule{
			{Key: "denials", Keywords: []string{"denial", "denied", "rejection", "rejected"}, Guidance: []string{
				"Denial or rejection reason codes",
				"The payer and date range affected",
				"How many claims are affected, as a count only",
			}},
			{Key: "claims_submission", Keywords: []string{"claim submission", "837", "clearinghouse", "scrubber"}, Guidance: []string{
				"The submission batch or file identifier",
				"Clearinghouse acknowledgement codes",
				"When submissions started failing",
			}},
			{Key: "remittance", Keywords: []string{"remittance", "835", "eob", "explanation of benefits"}, Guidance: []string{
				"The remittance file or check/EFT trace number",
				"Which amounts or adjustments look wrong",
				"The payer involved",
			}},
			{Key: "coding", Keywords: []string{"icd-10", "icd10", "cpt", "drg", "coding"}, Guidance: []string{
				"The code set and codes involved",
				"Where the incorrect coding is shown",
				"Whether it affects billing output",
			}},
			{Key: "billing", Keywords: []string{"invoice", "billing", "statement", "patient balance"}, Guidance: []string{
				"Invoice or statement numbers",
				"The screen or export where the issue appears",
				"Expected versus actual amounts",
			}},
		},
	}
}

// Detectors returns the built-in detectors in their fixed order.
func Detectors() []Detector {
	return []Detector{NPHIESDetector(), BankingDetector(), RCMDetector()}
}

// DetectorOrder returns the names of Detectors() in order.
func DetectorOrder() []string {
	return []string{DetectorNPHIES, DetectorBanking, DetectorRCM}
}

// DetectorByName returns the built-in detector with the given name.
func DetectorByName(name string) (Detector, bool) {
	for _, d := range Detectors() {
		if d.Name == name {
			return d, true
		}
	}
	return Detector{}, false
}

// DetectAll runs every built-in detector over text.
func DetectAll(text string) models.Categories {
	cats := make(models.Categories, 3)
	for _, d := range Detectors() {
		cats[d.Name] = d.Detect(text)
	}
	return cats
}
