// Package snapshot maintains the cumulative historical parquet file.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// Store reads and replaces one snapshot file.
type Store struct {
	path string
	cfg  tables.ParquetConfig
}

// New creates a store for the snapshot at path.
func New(path string, cfg tables.ParquetConfig) *Store {
	return &Store{path: path, cfg: cfg}
}

// Path returns the snapshot location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current snapshot rows, or none if the file does not
// exist yet.
func (s *Store) Load() ([]tables.CanonicalRecord, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	return tables.ReadRecords(s.path)
}

// Merge appends incoming to existing and keeps only the last occurrence of
// each auction_id. Surviving rows stay in concatenation order, so a
// re-ingested auction moves to the position of its newest copy.
func Merge(existing, incoming []tables.CanonicalRecord) []tables.CanonicalRecord {
	all := make([]tables.CanonicalRecord, 0, len(existing)+len(incoming))
	all = append(all, existing...)
	all = append(all, incoming...)

	seen := make(map[string]struct{}, len(all))
	keep := make([]bool, len(all))
	kept := 0
	for i := len(all) - 1; i >= 0; i-- {
		id := all[i].AuctionID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keep[i] = true
		kept++
	}

	out := make([]tables.CanonicalRecord, 0, kept)
	for i, r := range all {
		if keep[i] {
			out = append(out, r)
		}
	}
	return out
}

// Write replaces the snapshot with records. The file is written to a
// uniquely named sibling and renamed into place, so readers see either the
// old snapshot or the new one.
func (s *Store) Write(records []tables.CanonicalRecord) error {
	data, err := tables.EncodeRecords(records, s.cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), uuid.NewString()))

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create temp file %s: %w", tempPath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync temp file %s: %w", tempPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, s.path, err)
	}
	return nil
}

// Apply loads, merges and writes in one step. It returns the number of
// incoming rows and the snapshot row count after the merge.
func (s *Store) Apply(incoming []tables.CanonicalRecord) (added, total int, err error) {
	existing, err := s.Load()
	if err != nil {
		return 0, 0, err
	}

	merged := Merge(existing, incoming)
	if err := s.Write(merged); err != nil {
		return 0, 0, err
	}
	return len(incoming), len(merged), nil
}
