//go:build windows

package storage

import (
	"fmt"
	"os"
)

// lockFile on Windows only checks that the lock file can be opened; the
// scheduler is expected to be serialized externally there.
func lockFile(path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f.Close, nil
}
