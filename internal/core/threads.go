package core

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/sectriage/internal/storage"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// NewThread builds the follow-up record for a report received at now.
func NewThread(id string, r models.Report, now time.Time) models.Thread {
	return models.Thread{
		ID:            id,
		CreatedAt:     now.UTC().Format(time.RFC3339),
		Event:         r,
		Severity:      Classify(r.Text()),
		Categories:    DetectAll(r.Text()),
		FollowUpsSent: []int{},
	}
}

// RegisterThreads adds the given threads to the repository, skipping any id
// already present. It returns how many were added.
func RegisterThreads(repo storage.ThreadRepository, threads []models.Thread) (int, error) {
	if locker, ok := repo.(storage.Locker); ok {
		unlock, err := locker.Lock()
		if err != nil {
			return 0, fmt.Errorf("locking follow-up store: %w", err)
		}
		defer unlock()
	}

	existing, err := repo.Load()
	if err != nil {
		return 0, fmt.Errorf("loading threads: %w", err)
	}

	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	added := 0
	for _, t := range threads {
		if t.ID == "" {
			return 0, fmt.Errorf("registering thread: id must not be empty")
		}
		if known[t.ID] {
			continue
		}
		known[t.ID] = true
		existing = append(existing, t)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	if err := repo.Save(existing); err != nil {
		return 0, fmt.Errorf("saving threads: %w", err)
	}
	return added, nil
}

// RegisterThread registers a single report. It reports whether a new thread
// was created.
func RegisterThread(repo storage.ThreadRepository, id string, r models.Report, now time.Time) (bool, error) {
	n, err := RegisterThreads(repo, []models.Thread{NewThread(id, r, now)})
	return n == 1, err
}
