//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"os"
)

// Without flock the lock is the existence of the file itself.
func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	return f, nil
}

func release(f *os.File, path string) error {
	f.Close()
	return os.Remove(path)
}
