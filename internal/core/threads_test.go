package core

import (
	"errors"
	"testing"
	"time"

	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// memThreads is an in-memory ThreadRepository that counts saves.
type memThreads struct {
	threads []models.Thread
	saves   int
	loadErr error
	saveErr error
}

func (m *memThreads) Load() ([]models.Thread, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]models.Thread(nil), m.threads...), nil
}

func (m *memThreads) Save(threads []models.Thread) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.threads = append([]models.Thread(nil), threads...)
	return nil
}

var _ storage.ThreadRepository = (*memThreads)(nil)

func TestNewThread(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("AST", 3*3600))
	th := NewThread("r1", models.Report{Subject: "NPHIES claim SQL injection"}, now)

	if th.CreatedAt != "2024-06-01T09:00:00Z" {
		t.Errorf("CreatedAt = %q, want UTC RFC3339", th.CreatedAt)
	}
	if th.Severity != models.SeverityHigh {
		t.Errorf("Severity = %s", th.Severity)
	}
	if th.Categories[DetectorNPHIES] != "claims" {
		t.Errorf("Categories = %v", th.Categories)
	}
	if th.FollowUpsSent == nil || len(th.FollowUpsSent) != 0 {
		t.Errorf("FollowUpsSent = %#v, want empty non-nil", th.FollowUpsSent)
	}
}

func TestRegisterThreads_SkipsKnownIDs(t *testing.T) {
	repo := &memThreads{}
	now := time.Now()

	n, err := RegisterThreads(repo, []models.Thread{
		NewThread("a", models.Report{}, now),
		NewThread("b", models.Report{}, now),
		NewThread("a", models.Report{}, now),
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || len(repo.threads) != 2 {
		t.Fatalf("added %d, stored %d, want 2/2", n, len(repo.threads))
	}

	n, err = RegisterThreads(repo, []models.Thread{NewThread("b", models.Report{}, now)})
	if err != nil || n != 0 {
		t.Fatalf("re-register: n=%d err=%v", n, err)
	}
	if repo.saves != 1 {
		t.Errorf("no-op registration should not save, saves=%d", repo.saves)
	}
}

func TestRegisterThread(t *testing.T) {
	repo := &memThreads{}
	for i, want := range []bool{true, false} {
		created, err := RegisterThread(repo, "r1", models.Report{Subject: "x"}, time.Now())
		if err != nil {
			t.Fatal(err)
		}
		if created != want {
			t.Errorf("call %d: created = %t, want %t", i, created, want)
		}
	}
}

func TestRegisterThreads_Errors(t *testing.T) {
	if _, err := RegisterThreads(&memThreads{}, []models.Thread{{ID: ""}}); err == nil {
		t.Error("expected error for empty id")
	}

	boom := errors.New("disk full")
	if _, err := RegisterThreads(&memThreads{loadErr: boom}, []models.Thread{{ID: "a"}}); !errors.Is(err, boom) {
		t.Errorf("load error not wrapped: %v", err)
	}
	if _, err := RegisterThreads(&memThreads{saveErr: boom}, []models.Thread{{ID: "a"}}); !errors.Is(err, boom) {
		t.Errorf("save error not wrapped: %v", err)
	}
}
