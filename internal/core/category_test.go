package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

func TestDetectors_Detect(t *testing.T) {
	tests := []struct {
		detector Detector
		text     string
		want     string
	}{
		{NPHIESDetector(), "Eligibility response leaks data", "eligibility"},
		{NPHIESDetector(), "Prior auth requests can be replayed", "prior_authorization"},
		{NPHIESDetector(), "claim bundle accepted twice", "claims"},
		{NPHIESDetector(), "mTLS client cert not validated", "certificates"},
		{NPHIESDetector(), "FHIR endpoint returns stack traces", "fhir_api"},
		{NPHIESDetector(), "unrelated", models.CategoryOther},
		{BankingDetector(), "Card number visible in logs, PCI issue", "pci"},
		{BankingDetector(), "IBAN transfer to wrong beneficiary", "transfers"},
		{BankingDetector(), "checkout skips 3DS", "card_payments"},
		{RCMDetector(), "Claims denied with wrong reason", "denials"},
		{RCMDetector(), "835 remittance totals off", "remittance"},
		{RCMDetector(), "wrong CPT coding on invoices", "coding"},
	}
	for _, tt := range tests {
		t.Run(tt.detector.Name+"/"+tt.want, func(t *testing.T) {
			if got := tt.detector.Detect(tt.text); got != tt.want {
				t.Errorf("%s.Detect(%q) = %q, want %q", tt.detector.Name, tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectAll(t *testing.T) {
	got := DetectAll("NPHIES claim denied after PCI review")
	want := models.Categories{
		DetectorNPHIES:  "claims",
		DetectorBanking: "pci",
		DetectorRCM:     "denials",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectAll mismatch (-want +got):\n%s", diff)
	}

	empty := DetectAll("")
	for _, name := range DetectorOrder() {
		if empty[name] != models.CategoryOther {
			t.Errorf("%s on empty text = %q, want other", name, empty[name])
		}
	}
}

func TestDetectorByName(t *testing.T) {
	for _, name := range DetectorOrder() {
		d, ok := DetectorByName(name)
		if !ok || d.Name != name {
			t.Errorf("DetectorByName(%q) = %+v, %t", name, d, ok)
		}
		if len(d.Keys()) != len(d.Rules) {
			t.Errorf("%s Keys() length mismatch", name)
		}
	}
	if _, ok := DetectorByName("crypto"); ok {
		t.Error("unknown detector should not be found")
	}
}

func TestCategoriesPrimary(t *testing.T) {
	cats := models.Categories{DetectorNPHIES: models.CategoryOther, DetectorBanking: "fraud", DetectorRCM: "billing"}
	name, cat, ok := cats.Primary(DetectorOrder())
	if !ok || name != DetectorBanking || cat != "fraud" {
		t.Errorf("Primary = %s/%s/%t, want banking/fraud/true", name, cat, ok)
	}

	_, _, ok = DetectAll("nothing here").Primary(DetectorOrder())
	if ok {
		t.Error("all-other categories should have no primary")
	}
}
