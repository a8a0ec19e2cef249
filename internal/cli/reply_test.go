package cli

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

const rceReport = `{"subject":"Remote code execution in upload service","body":"Crafted archive runs commands.","from":"finder@example.com"}`

func TestReplyCmd_EscalatedReplyCarriesCC(t *testing.T) {
	cfg := testWorkspace(t)
	cfg.Mail.EscalationCC = []string{"ciso@example.com"}
	path := writeInbox(t, "rce.json", rceReport)

	out, err := execute(t, "reply", path)
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	var res replyOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if res.Severity != models.SeverityCritical || res.SLAHours != 24 || !res.Escalate {
		t.Errorf("severity=%s sla=%d escalate=%t", res.Severity, res.SLAHours, res.Escalate)
	}
	if res.InitialReply.To != "finder@example.com" {
		t.Errorf("To = %q", res.InitialReply.To)
	}
	if len(res.InitialReply.CC) != 1 || res.InitialReply.CC[0] != "ciso@example.com" {
		t.Errorf("CC = %v", res.InitialReply.CC)
	}
	if res.Registered || res.Sent {
		t.Error("reply without flags must not register or send")
	}
}

func TestReplyCmd_Register(t *testing.T) {
	testWorkspace(t)
	path := writeInbox(t, "r1.json", sqliReport)

	for i, want := range []bool{true, false} {
		out, err := execute(t, "reply", "--register", path)
		if err != nil {
			t.Fatal(err)
		}
		var res replyOutput
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			t.Fatal(err)
		}
		if res.Registered != want {
			t.Errorf("run %d: registered = %t, want %t", i, res.Registered, want)
		}
	}
}

func TestReplyCmd_Payloads(t *testing.T) {
	testWorkspace(t)
	path := writeInbox(t, "r1.json", sqliReport)

	out, err := execute(t, "reply", "--payload", "ses", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"FromEmailAddress": "security@example.com"`) {
		t.Errorf("ses payload missing sender:\n%s", out)
	}

	out, err = execute(t, "reply", "--payload", "gmail", path)
	if err != nil {
		t.Fatal(err)
	}
	var gm map[string]string
	if err := json.Unmarshal([]byte(out), &gm); err != nil {
		t.Fatal(err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(gm["raw"])
	if err != nil {
		t.Fatalf("raw is not base64url: %v", err)
	}
	if !strings.Contains(string(raw), "To: researcher@example.com\r\n") {
		t.Errorf("MIME message missing recipient:\n%s", raw)
	}

	if _, err := execute(t, "reply", "--payload", "fax", path); err == nil {
		t.Error("expected error for unknown payload")
	}
}

func TestReplyCmd_SendWithoutTransport(t *testing.T) {
	testWorkspace(t)
	path := writeInbox(t, "r1.json", sqliReport)

	out, err := execute(t, "reply", "--send", path)
	if err != nil {
		t.Fatal(err)
	}
	var res replyOutput
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Sent || res.Transport != "none" {
		t.Errorf("sent=%t transport=%q, want false/none", res.Sent, res.Transport)
	}
}

func TestClassifyCmd(t *testing.T) {
	testWorkspace(t)

	out, err := execute(t, "classify", "--json", "Stored", "XSS", "on", "the", "claims", "portal")
	if err != nil {
		t.Fatal(err)
	}
	var c classification
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if c.Severity != models.SeverityHigh || c.SLAHours != 72 {
		t.Errorf("severity=%s sla=%d, want high/72", c.Severity, c.SLAHours)
	}
	if len(c.Categories) != 3 {
		t.Errorf("expected one category per detector, got %v", c.Categories)
	}

	if _, err := execute(t, "classify"); err == nil {
		t.Error("expected error with no input")
	}
}

func TestClassifyCmd_File(t *testing.T) {
	testWorkspace(t)
	path := writeInbox(t, "r1.json", sqliReport)

	out, err := execute(t, "classify", "--file", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"severity:  high", "sla:       72h", "id:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
