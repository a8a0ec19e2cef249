package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/sectriage/pkg/models"
)

// ErrThreadNotFound is returned when no thread has the requested id.
var ErrThreadNotFound = errors.New("thread not found")

// ThreadRepository persists follow-up threads. Load returns every thread;
// Save replaces the stored set with the given threads.
type ThreadRepository interface {
	Load() ([]models.Thread, error)
	Save(threads []models.Thread) error
}

// Locker is implemented by repositories that can hold an exclusive lock for
// the duration of a read-modify-write pass.
type Locker interface {
	Lock() (unlock func() error, err error)
}

// JSONThreadStore keeps threads as a single JSON array in a file.
type JSONThreadStore struct {
	path string
}

// NewJSONThreadStore creates a JSONThreadStore backed by the file at path.
func NewJSONThreadStore(path string) *JSONThreadStore {
	return &JSONThreadStore{path: path}
}

// Path returns the backing file path.
func (s *JSONThreadStore) Path() string {
	return s.path
}

// Load reads all threads. A missing or empty file yields no threads.
func (s *JSONThreadStore) Load() ([]models.Thread, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading follow-up store %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var threads []models.Thread
	if err := json.Unmarshal(data, &threads); err != nil {
		return nil, fmt.Errorf("parsing follow-up store %s: %w", s.path, err)
	}
	return threads, nil
}

// Save writes all threads, replacing the file contents.
func (s *JSONThreadStore) Save(threads []models.Thread) error {
	if threads == nil {
		threads = []models.Thread{}
	}
	data, err := json.MarshalIndent(threads, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling follow-up store: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating follow-up store directory: %w", err)
	}
	return writeFileAtomic(s.path, data, 0o644)
}

// Lock takes an exclusive advisory lock on a sibling .lock file.
func (s *JSONThreadStore) Lock() (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating follow-up store directory: %w", err)
	}
	return lockFile(s.path + ".lock")
}

// FindThread loads the repository and returns the thread with id.
func FindThread(repo ThreadRepository, id string) (models.Thread, error) {
	threads, err := repo.Load()
	if err != nil {
		return models.Thread{}, err
	}
	for _, t := range threads {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
}
