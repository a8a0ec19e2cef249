package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

var (
	threadPrefix = []byte("thread:")
	// threadPrefixEnd is the first key after every "thread:" key.
	threadPrefixEnd = []byte("thread;")
)

// PebbleThreadStore keeps one key per thread in an embedded pebble database.
type PebbleThreadStore struct {
	db *pebble.DB
}

// OpenPebbleThreadStore opens (creating if needed) a pebble database at dir.
func OpenPebbleThreadStore(dir string) (*PebbleThreadStore, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("creating pebble parent directory: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble thread store %s: %w", dir, err)
	}
	return &PebbleThreadStore{db: db}, nil
}

// Close closes the database.
func (s *PebbleThreadStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns every thread, ordered by id.
func (s *PebbleThreadStore) Load() ([]models.Thread, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: threadPrefix, UpperBound: threadPrefixEnd})
	if err != nil {
		return nil, fmt.Errorf("iterating threads: %w", err)
	}
	defer it.Close()

	var threads []models.Thread
	for ok := it.First(); ok; ok = it.Next() {
		if !bytes.HasPrefix(it.Key(), threadPrefix) {
			continue
		}
		var t models.Thread
		if err := json.Unmarshal(it.Value(), &t); err != nil {
			return nil, fmt.Errorf("decoding thread %s: %w", it.Key()[len(threadPrefix):], err)
		}
		threads = append(threads, t)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterating threads: %w", err)
	}
	return threads, nil
}

// Save replaces all stored threads in one atomic batch.
func (s *PebbleThreadStore) Save(threads []models.Thread) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(threadPrefix, threadPrefixEnd, nil); err != nil {
		return fmt.Errorf("clearing threads: %w", err)
	}
	for _, t := range threads {
		if t.ID == "" {
			return fmt.Errorf("saving thread: id must not be empty")
		}
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding thread %s: %w", t.ID, err)
		}
		key := append(append([]byte(nil), threadPrefix...), t.ID...)
		if err := b.Set(key, data, nil); err != nil {
			return fmt.Errorf("writing thread %s: %w", t.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("committing threads: %w", err)
	}
	return nil
}
