// Package lock provides an advisory, process-exclusive file lock used to
// serialize writers of the durable stores.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock held by another writer")

// Lock is a held lock. Release it exactly once.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes the lock at path without waiting. The lock file and its
// directory are created if needed.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := acquire(path)
	if err != nil {
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release gives up the lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := release(l.f, l.path)
	l.f = nil
	return err
}
