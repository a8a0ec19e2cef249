package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Inbox reads one JSON report per file from a directory. It implements
// core.InboxSource.
type Inbox struct {
	dir string
}

// NewInbox creates an Inbox over dir. The directory need not exist yet.
func NewInbox(dir string) *Inbox {
	return &Inbox{dir: dir}
}

// Dir returns the inbox directory.
func (i *Inbox) Dir() string {
	return i.dir
}

// Fetch reads every *.json file in the inbox, in name order. Files that
// cannot be read or parsed are returned as failures so one bad file does not
// stop the batch. A missing directory is an empty inbox.
func (i *Inbox) Fetch() ([]models.InboxItem, []models.InboxFailure, error) {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading inbox directory: %w", err)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	var (
		items    []models.InboxItem
		failures []models.InboxFailure
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		item, err := ReadReportFile(filepath.Join(i.dir, entry.Name()))
		if err != nil {
			failures = append(failures, models.InboxFailure{File: entry.Name(), Error: err.Error()})
			continue
		}
		item.File = entry.Name()
		items = append(items, item)
	}

	return items, failures, nil
}

// ReadReportFile reads and parses a single report file. The report must be a
// JSON object.
func ReadReportFile(path string) (models.InboxItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.InboxItem{}, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	var r models.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.InboxItem{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return models.InboxItem{File: filepath.Base(path), Raw: raw, Report: r}, nil
}
